package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"regent/internal/protocol"
)

// Client is the peer side of a session connection. It satisfies
// lockstep.Conn; Recv blocks on the socket, Send is safe from any
// goroutine.
type Client struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Send(typ byte, v any) error {
	frame, err := protocol.Encode(typ, v)
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.BinaryMessage, frame)
}

func (c *Client) Recv() (protocol.Record, error) {
	for {
		typ, msg, err := c.conn.ReadMessage()
		if err != nil {
			return protocol.Record{}, err
		}
		if typ != websocket.BinaryMessage {
			continue
		}
		return protocol.Unmarshal(msg)
	}
}

func (c *Client) Close() error {
	c.wmu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.wmu.Unlock()
	return c.conn.Close()
}
