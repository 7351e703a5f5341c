package lockstep

import (
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"regent/internal/sim/state"
	"regent/internal/sim/step"
)

// Link is the host's outbound half of one peer connection. Implementations
// must be safe to call from the host loop; Send failures are treated as a
// disconnect.
type Link interface {
	Send(typ byte, v any) error
	Close()
}

// Seat is one peer's place in the session.
type Seat struct {
	Session string
	Country state.Tag
	Name    string

	link    Link
	limiter *rate.Limiter

	// synced is false while a mid-game joiner is still receiving the
	// state transfer; unsynced seats neither submit nor vote.
	synced bool

	strikes  int
	desynced bool

	submitted bool
	commands  []step.Command
}

func newSeat(country state.Tag, name string, link Link, cmdsPerSec, burst int) *Seat {
	if cmdsPerSec < 1 {
		cmdsPerSec = 1
	}
	if burst < 1 {
		burst = 1
	}
	return &Seat{
		Session: uuid.NewString(),
		Country: country,
		Name:    name,
		link:    link,
		limiter: rate.NewLimiter(rate.Limit(cmdsPerSec), burst),
		synced:  true,
	}
}
