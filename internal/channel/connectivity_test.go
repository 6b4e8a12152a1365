package channel

import (
	"testing"

	"blastbot/pkg/logx"
)

func TestConnectivityTransitions(t *testing.T) {
	t.Parallel()
	c := NewConnectivity(logx.Nop())
	sub := c.Subscribe()

	if c.State() != StateDisconnected || c.Ready() {
		t.Fatalf("initial state = %s", c.State())
	}

	c.OnPairingChallenge([]byte("qr-1"))
	c.OnAuthenticated()
	c.OnReady()

	if !c.Ready() {
		t.Fatal("Ready() should be true after OnReady")
	}

	want := []State{StatePairingRequested, StateAuthenticated, StateReady}
	for i, w := range want {
		ev := <-sub
		if ev.State != w {
			t.Fatalf("event %d = %s, want %s", i, ev.State, w)
		}
	}
}

func TestConnectivityDedupesRepeatedStates(t *testing.T) {
	t.Parallel()
	c := NewConnectivity(logx.Nop())
	sub := c.Subscribe()

	c.OnReady()
	c.OnReady() // no transition
	c.OnDisconnected("socket closed")

	ev := <-sub
	if ev.State != StateReady {
		t.Fatalf("first event = %s", ev.State)
	}
	ev = <-sub
	if ev.State != StateDisconnected || ev.Detail != "socket closed" {
		t.Fatalf("second event = %+v, want the disconnect", ev)
	}
	select {
	case ev := <-sub:
		t.Fatalf("unexpected extra event %+v", ev)
	default:
	}
}

func TestConnectivityRepeatedPairingPassesThrough(t *testing.T) {
	t.Parallel()
	c := NewConnectivity(logx.Nop())
	sub := c.Subscribe()

	// QR codes rotate; each challenge must reach subscribers.
	c.OnPairingChallenge([]byte("qr-1"))
	c.OnPairingChallenge([]byte("qr-2"))

	if ev := <-sub; string(ev.QR) != "qr-1" {
		t.Fatalf("first QR = %q", ev.QR)
	}
	if ev := <-sub; string(ev.QR) != "qr-2" {
		t.Fatalf("second QR = %q", ev.QR)
	}
}
