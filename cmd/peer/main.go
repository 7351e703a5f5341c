// Command peer is a headless lockstep client. It joins a session, mirrors
// the simulation, and optionally plays a trivial economic script so a
// server can be exercised without a real player.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"regent/internal/lockstep"
	"regent/internal/protocol"
	"regent/internal/sim/catalogs"
	"regent/internal/sim/state"
	"regent/internal/sim/step"
	"regent/internal/sim/tuning"
	"regent/internal/sim/visibility"
	"regent/internal/transport/ws"
)

func main() {
	var (
		url       = flag.String("url", "ws://localhost:8080/v1/ws", "session websocket url")
		configDir = flag.String("configs", "./configs", "config directory")
		scenario  = flag.String("scenario", "two_crowns", "scenario name, for building day zero locally")
		seed      = flag.Uint64("seed", 1444, "campaign seed, must match the host")
		name      = flag.String("name", "peer", "player name")
		country   = flag.String("country", "", "country tag to claim (empty = host assigns)")
		session   = flag.String("session", "", "seat session id for reconnecting")
		midJoin   = flag.Bool("join_running", false, "skip local day zero and request a state transfer")
		autoplay  = flag.Bool("autoplay", false, "queue a monthly develop order for the capital")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[peer] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}
	tune, err := tuning.Load(filepath.Join(*configDir, "tuning.yaml"))
	if err != nil {
		if os.IsNotExist(err) {
			tune = tuning.Default()
		} else {
			logger.Fatalf("load tuning: %v", err)
		}
	}
	cfg := &step.Config{Rates: tune.Rates, Logger: logger}

	var initial *state.WorldState
	if !*midJoin {
		sc, err := catalogs.LoadScenario(filepath.Join(*configDir, "scenarios", *scenario+".json"))
		if err != nil {
			logger.Fatalf("load scenario: %v", err)
		}
		initial, err = sc.Build(cats, *seed)
		if err != nil {
			logger.Fatalf("build scenario: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := ws.Dial(ctx, *url)
	if err != nil {
		logger.Fatalf("dial %s: %v", *url, err)
	}
	defer conn.Close()

	peer := lockstep.NewPeer(conn, lockstep.PeerOptions{
		Logger:        logger,
		Cats:          cats,
		StepCfg:       cfg,
		Initial:       initial,
		ChecksumEvery: tune.ChecksumEveryTicks,
	})
	if *autoplay {
		var src visibility.CommandSource = visibility.SourceFunc(developCapital)
		fog := visibility.Fog{}
		peer.OnTick = func(s *state.WorldState) {
			if s.Date.Day != 1 {
				return
			}
			view := fog.Project(s, cats, peer.Country())
			for _, cmd := range src.ProduceCommands(view) {
				// Pre-flight validation drops unaffordable orders, so
				// the queue never floods.
				_ = peer.Queue(cmd)
			}
		}
	} else {
		lastMonth := uint8(0)
		peer.OnTick = func(s *state.WorldState) {
			if s.Date.Month != lastMonth {
				lastMonth = s.Date.Month
				logger.Printf("tick %d, %s, checksum %.12s", s.Tick, s.Date, s.Checksum())
			}
		}
	}

	if err := peer.Handshake(helloFor(tune, cats, *name, *country, *session)); err != nil {
		logger.Fatalf("handshake: %v", err)
	}
	logger.Printf("seated as %s, session %s", peer.Country(), peer.Session())

	if err := peer.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Fatalf("session: %v", err)
	}
}

func helloFor(tune tuning.Tuning, cats *catalogs.Catalogs, name, country, session string) protocol.HelloMsg {
	return protocol.HelloMsg{
		SimVersion:   tune.SimVersion,
		ManifestHash: cats.ManifestHash,
		PlayerName:   name,
		Country:      state.Tag(strings.ToUpper(country)),
		Session:      session,
	}
}

// developCapital is the trivial autoplay policy: one develop order for the
// viewer's capital per month.
func developCapital(v *visibility.View) []step.Command {
	for _, c := range v.Countries {
		if c.Tag == v.Viewer {
			return []step.Command{{Kind: step.CmdDevelopProvince, Target: c.Capital}}
		}
	}
	return nil
}
