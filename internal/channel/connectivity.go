package channel

import (
	"sync"

	"blastbot/pkg/logx"
)

// State is the connection lifecycle of the messaging channel.
//
//	Disconnected → PairingRequested → Authenticated → Ready
//	Ready → Disconnected | AuthFailed
type State int

const (
	StateDisconnected State = iota
	StatePairingRequested
	StateAuthenticated
	StateReady
	StateAuthFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StatePairingRequested:
		return "pairing"
	case StateAuthenticated:
		return "authenticated"
	case StateReady:
		return "ready"
	case StateAuthFailed:
		return "auth_failed"
	default:
		return "unknown"
	}
}

// Event is a connectivity transition pushed to subscribers. QR carries the
// pairing challenge image (PNG) for StatePairingRequested, Detail a
// human-readable reason for disconnects and auth failures.
type Event struct {
	State  State
	Detail string
	QR     []byte
}

// Connectivity tracks the channel connection as a queryable state machine.
// Lifecycle callbacks from the client feed it; the campaign manager gates
// Start on Ready(); the control router subscribes for operator notices.
type Connectivity struct {
	mu    sync.RWMutex
	state State
	log   logx.Logger

	subs []chan Event
}

func NewConnectivity(log logx.Logger) *Connectivity {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Connectivity{state: StateDisconnected, log: log}
}

func (c *Connectivity) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Connectivity) Ready() bool { return c.State() == StateReady }

// Subscribe returns a buffered channel of transitions. Events are dropped,
// never blocked on, when the subscriber lags.
func (c *Connectivity) Subscribe() <-chan Event {
	ch := make(chan Event, 8)
	c.mu.Lock()
	c.subs = append(c.subs, ch)
	c.mu.Unlock()
	return ch
}

func (c *Connectivity) OnReady() { c.transition(Event{State: StateReady}) }

func (c *Connectivity) OnAuthenticated() { c.transition(Event{State: StateAuthenticated}) }

func (c *Connectivity) OnDisconnected(reason string) {
	c.transition(Event{State: StateDisconnected, Detail: reason})
}

func (c *Connectivity) OnAuthFailure(detail string) {
	c.transition(Event{State: StateAuthFailed, Detail: detail})
}

func (c *Connectivity) OnPairingChallenge(qr []byte) {
	c.transition(Event{State: StatePairingRequested, QR: qr})
}

func (c *Connectivity) transition(ev Event) {
	c.mu.Lock()
	prev := c.state
	if prev == ev.State && ev.State != StatePairingRequested {
		// Pairing challenges repeat with fresh QR codes; everything else is
		// only interesting on change.
		c.mu.Unlock()
		return
	}
	c.state = ev.State
	subs := append([]chan Event(nil), c.subs...)
	c.mu.Unlock()

	c.log.Info("channel state changed",
		logx.String("from", prev.String()),
		logx.String("to", ev.State.String()),
		logx.String("detail", ev.Detail))

	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
