package bot

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"blastbot/internal/campaign"
	"blastbot/internal/channel"
	"blastbot/internal/contacts"
	"blastbot/internal/notify"
	"blastbot/internal/session"
	"blastbot/internal/transport"
	"blastbot/pkg/logx"
)

// fakeAdapter records outbound control-channel traffic.
type fakeAdapter struct {
	mu     sync.Mutex
	texts  []string
	photos int
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- transport.Message) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                                { return nil }

func (f *fakeAdapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()
	return transport.MessageRef{ChatID: to.ChatID}, nil
}

func (f *fakeAdapter) SendPhoto(ctx context.Context, to transport.ChatTarget, png []byte, caption string) error {
	f.mu.Lock()
	f.photos++
	f.mu.Unlock()
	return nil
}

func (f *fakeAdapter) joined() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strings.Join(f.texts, "\n---\n")
}

func (f *fakeAdapter) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.texts) == 0 {
		return ""
	}
	return f.texts[len(f.texts)-1]
}

// fakeChannel accepts every send instantly.
type fakeChannel struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeChannel) SendMessage(ctx context.Context, id, text string) (channel.MessageID, error) {
	f.mu.Lock()
	f.sent = append(f.sent, id)
	f.mu.Unlock()
	return "m1", nil
}

func (f *fakeChannel) Lookup(ctx context.Context, id string) (bool, error) { return true, nil }

func (f *fakeChannel) AckLevel(ctx context.Context, id channel.MessageID) (channel.AckLevel, error) {
	return channel.AckDelivered, nil
}

type fixture struct {
	router   *Router
	adapter  *fakeAdapter
	client   *fakeChannel
	registry *contacts.Registry
	mgr      *campaign.Manager
	conn     *channel.Connectivity
}

func newFixture(t *testing.T, operators []int64) *fixture {
	t.Helper()
	adapter := &fakeAdapter{}
	client := &fakeChannel{}
	conn := channel.NewConnectivity(logx.Nop())
	conn.OnReady()

	registry := contacts.NewRegistry(contacts.Normalizer{CountryCode: "212", Suffix: "@c.us"})
	notif := notify.New(adapter, 1000, logx.Nop())
	mgr := campaign.NewManager(campaign.Config{
		Pacing: campaign.PacingPolicy{MinDelay: time.Millisecond, MaxDelay: time.Millisecond},
		Retry:  campaign.RetryPolicy{MaxAttempts: 1, Backoff: time.Millisecond},
	}, client, conn, notif, logx.Nop())
	sessions := session.NewManager(session.Config{}, registry, mgr, client, notif, logx.Nop())

	router := New(Config{Operators: operators}, registry, mgr, sessions, notif, conn, logx.Nop())
	return &fixture{router: router, adapter: adapter, client: client, registry: registry, mgr: mgr, conn: conn}
}

func msg(from int64, text string) transport.Message {
	return transport.Message{ChatID: from, FromID: from, Text: text}
}

func TestUnauthorizedOperatorRejected(t *testing.T) {
	t.Parallel()
	f := newFixture(t, []int64{1})
	f.router.handle(context.Background(), msg(999, "/send"))

	if !strings.Contains(f.adapter.last(), "not authorized") {
		t.Fatalf("reply = %q, want rejection", f.adapter.last())
	}
	if f.registry.Len() != 0 {
		t.Fatal("unauthorized input must not touch state")
	}
}

func TestEmptyAllowListPermitsEveryone(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	f.router.handle(context.Background(), msg(999, "/help"))

	if !strings.Contains(f.adapter.last(), "/send") {
		t.Fatalf("reply = %q, want help text", f.adapter.last())
	}
}

func TestApplySwapsAllowList(t *testing.T) {
	t.Parallel()
	f := newFixture(t, []int64{1})
	f.router.Apply(Config{Operators: []int64{2}})

	f.router.handle(context.Background(), msg(1, "/help"))
	if !strings.Contains(f.adapter.last(), "not authorized") {
		t.Fatal("old operator should be rejected after Apply")
	}
	f.router.handle(context.Background(), msg(2, "/help"))
	if strings.Contains(f.adapter.last(), "not authorized") {
		t.Fatal("new operator should be accepted after Apply")
	}
}

func TestAddContactCommand(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	ctx := context.Background()

	saves := 0
	f.router.OnMutate(func(context.Context) { saves++ })

	f.router.handle(ctx, msg(1, "/addcontact 0612345678"))
	if f.registry.Len() != 1 {
		t.Fatalf("registry len = %d, want 1", f.registry.Len())
	}
	if saves != 1 {
		t.Fatalf("persistence hook fired %d times, want 1", saves)
	}

	f.router.handle(ctx, msg(1, "/addcontact 0612345678"))
	if !strings.Contains(f.adapter.last(), "Already present") {
		t.Fatalf("duplicate reply = %q", f.adapter.last())
	}
	if saves != 1 {
		t.Fatal("duplicate add must not trigger a save")
	}

	f.router.handle(ctx, msg(1, "/addcontact"))
	if !strings.Contains(f.adapter.last(), "Usage:") {
		t.Fatalf("missing-arg reply = %q", f.adapter.last())
	}
}

func TestContactsAndClear(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	ctx := context.Background()

	f.router.handle(ctx, msg(1, "/contacts"))
	if !strings.Contains(f.adapter.last(), "No contacts") {
		t.Fatalf("empty list reply = %q", f.adapter.last())
	}

	f.registry.AddBulk("0611111111\n0622222222")
	f.router.handle(ctx, msg(1, "/contacts"))
	if !strings.Contains(f.adapter.last(), "2 contact(s)") || !strings.Contains(f.adapter.last(), "212611111111@c.us") {
		t.Fatalf("list reply = %q", f.adapter.last())
	}

	f.router.handle(ctx, msg(1, "/clearcontacts"))
	if f.registry.Len() != 0 {
		t.Fatal("registry should be empty after /clearcontacts")
	}
}

func TestStatusAndStopWithoutCampaign(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	ctx := context.Background()

	f.router.handle(ctx, msg(1, "/status"))
	last := f.adapter.last()
	if !strings.Contains(last, "ready") || !strings.Contains(last, "No campaign running") {
		t.Fatalf("status reply = %q", last)
	}

	f.router.handle(ctx, msg(1, "/stop"))
	if !strings.Contains(f.adapter.last(), "No campaign is running") {
		t.Fatalf("stop reply = %q", f.adapter.last())
	}

	f.router.handle(ctx, msg(1, "/campaigns"))
	if !strings.Contains(f.adapter.last(), "No campaigns yet") {
		t.Fatalf("campaigns reply = %q", f.adapter.last())
	}
}

func TestUnknownAndStrayInput(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	ctx := context.Background()

	f.router.handle(ctx, msg(1, "/frobnicate"))
	if !strings.Contains(f.adapter.last(), "Unknown command") {
		t.Fatalf("reply = %q", f.adapter.last())
	}

	before := len(f.adapter.texts)
	f.router.handle(ctx, msg(1, "stray text outside any dialog"))
	if len(f.adapter.texts) != before {
		t.Fatal("stray free text must be ignored silently")
	}

	f.router.handle(ctx, msg(1, "/cancel"))
	if !strings.Contains(f.adapter.last(), "No active dialog") {
		t.Fatalf("reply = %q", f.adapter.last())
	}
}

// TestFullCampaignFlow drives the whole surface: bulk add, compose, confirm,
// dispatch, and history.
func TestFullCampaignFlow(t *testing.T) {
	t.Parallel()
	f := newFixture(t, []int64{1})
	ctx := context.Background()

	f.router.handle(ctx, msg(1, "/addcontacts"))
	f.router.handle(ctx, msg(1, "0611111111\n0622222222\n0633333333"))
	f.router.handle(ctx, msg(1, "/done"))
	if f.registry.Len() != 3 {
		t.Fatalf("registry len = %d, want 3", f.registry.Len())
	}

	f.router.handle(ctx, msg(1, "/send"))
	f.router.handle(ctx, msg(1, "flash sale, today only"))
	if !strings.Contains(f.adapter.last(), "Reply YES") {
		t.Fatalf("confirmation prompt missing: %q", f.adapter.last())
	}
	f.router.handle(ctx, msg(1, "YES"))
	f.mgr.Wait()

	f.client.mu.Lock()
	sent := len(f.client.sent)
	f.client.mu.Unlock()
	if sent != 3 {
		t.Fatalf("channel got %d sends, want 3", sent)
	}
	if !strings.Contains(f.adapter.joined(), "Campaign completed") {
		t.Fatalf("no completion summary in:\n%s", f.adapter.joined())
	}

	f.router.handle(ctx, msg(1, "/campaigns"))
	if !strings.Contains(f.adapter.last(), "sent 3/3") {
		t.Fatalf("history reply = %q", f.adapter.last())
	}
}

func TestConnectivityPushToOperators(t *testing.T) {
	t.Parallel()
	f := newFixture(t, []int64{1, 2})
	ctx := context.Background()

	f.router.pushConnectivity(ctx, channel.Event{State: channel.StatePairingRequested, QR: []byte("png")})
	if f.adapter.photos != 2 {
		t.Fatalf("QR photos = %d, want one per operator", f.adapter.photos)
	}

	f.router.pushConnectivity(ctx, channel.Event{State: channel.StateDisconnected, Detail: "socket closed"})
	if !strings.Contains(f.adapter.last(), "disconnected") {
		t.Fatalf("reply = %q", f.adapter.last())
	}
}
