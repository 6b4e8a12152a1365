package session

import (
	"context"
	"strings"
	"sync"
	"testing"

	"blastbot/internal/campaign"
	"blastbot/internal/channel"
	"blastbot/internal/contacts"
	"blastbot/internal/transport"
	"blastbot/pkg/logx"
)

type fakeStarter struct {
	mu      sync.Mutex
	started int
	message string
	recips  []string
	err     error
}

func (f *fakeStarter) Start(ctx context.Context, op transport.ChatTarget, message string, recipients []string) (*campaign.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.started++
	f.message = message
	f.recips = append([]string(nil), recipients...)
	// A real campaign object is only needed for Total(); build one via the
	// manager is overkill here, so return nil and let callers check err.
	return nil, nil
}

func (f *fakeStarter) Pacing() campaign.PacingPolicy {
	return campaign.PacingPolicy{}
}

type fakeReplier struct {
	mu    sync.Mutex
	texts []string
}

func (f *fakeReplier) Send(ctx context.Context, to transport.ChatTarget, text string) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()
}

func (f *fakeReplier) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.texts) == 0 {
		return ""
	}
	return f.texts[len(f.texts)-1]
}

type fakeChannel struct {
	mu   sync.Mutex
	sent map[string]string
	err  error
}

func (f *fakeChannel) SendMessage(ctx context.Context, id, text string) (channel.MessageID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	if f.sent == nil {
		f.sent = map[string]string{}
	}
	f.sent[id] = text
	return "m1", nil
}

func (f *fakeChannel) Lookup(ctx context.Context, id string) (bool, error) { return true, nil }

func (f *fakeChannel) AckLevel(ctx context.Context, id channel.MessageID) (channel.AckLevel, error) {
	return channel.AckDelivered, nil
}

func msg(from int64, text string) transport.Message {
	return transport.Message{ChatID: from, FromID: from, Text: text}
}

func newTestManager(cfg Config) (*Manager, *contacts.Registry, *fakeStarter, *fakeReplier, *fakeChannel) {
	registry := contacts.NewRegistry(contacts.Normalizer{CountryCode: "212", Suffix: "@c.us"})
	starter := &fakeStarter{}
	replier := &fakeReplier{}
	client := &fakeChannel{}
	m := NewManager(cfg, registry, starter, client, replier, logx.Nop())
	return m, registry, starter, replier, client
}

func TestAddContactsDialog(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, registry, _, replier, _ := newTestManager(Config{})

	mutations := 0
	m.OnMutate(func(context.Context) { mutations++ })

	m.BeginAddContacts(ctx, msg(1, "/addcontacts"))
	if !m.Active(1) {
		t.Fatal("dialog should be active")
	}

	if !m.HandleInput(ctx, msg(1, "0611111111\n0622222222")) {
		t.Fatal("number lines must be consumed by the dialog")
	}
	if !m.HandleInput(ctx, msg(1, "0611111111")) { // duplicate
		t.Fatal("duplicate line still belongs to the dialog")
	}
	if !m.HandleInput(ctx, msg(1, "/done")) {
		t.Fatal("/done must be consumed")
	}

	if m.Active(1) {
		t.Fatal("dialog should have ended")
	}
	if got := registry.Len(); got != 2 {
		t.Fatalf("registry has %d contacts, want 2", got)
	}
	if mutations != 1 {
		t.Fatalf("persistence hook fired %d times, want 1 (no-op adds skipped)", mutations)
	}
	if !strings.Contains(replier.last(), "2 new contact(s)") {
		t.Fatalf("final reply = %q", replier.last())
	}
}

func TestComposeConfirmStart(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, registry, starter, replier, _ := newTestManager(Config{})
	registry.AddBulk("0611111111\n0622222222")

	m.BeginCompose(ctx, msg(7, "/send"))
	if !m.HandleInput(ctx, msg(7, "big promo tonight")) {
		t.Fatal("message body must be consumed")
	}
	if !strings.Contains(replier.last(), "Recipients: 2") {
		t.Fatalf("preview reply = %q", replier.last())
	}

	// Anything but YES re-prompts without starting.
	if !m.HandleInput(ctx, msg(7, "yes please")) {
		t.Fatal("confirmation input must be consumed")
	}
	if starter.started != 0 {
		t.Fatal("campaign must not start without an exact YES")
	}

	// Case-insensitive YES launches.
	if !m.HandleInput(ctx, msg(7, "yes")) {
		t.Fatal("YES must be consumed")
	}
	if starter.started != 1 {
		t.Fatalf("started = %d, want 1", starter.started)
	}
	if starter.message != "big promo tonight" || len(starter.recips) != 2 {
		t.Fatalf("starter got (%q, %v)", starter.message, starter.recips)
	}
	if m.Active(7) {
		t.Fatal("dialog should be finished after launch")
	}
}

func TestComposeRequiresContacts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, _, _, replier, _ := newTestManager(Config{})

	m.BeginCompose(ctx, msg(7, "/send"))
	if m.Active(7) {
		t.Fatal("compose must not start with an empty registry")
	}
	if !strings.Contains(replier.last(), "No contacts") {
		t.Fatalf("reply = %q", replier.last())
	}
}

func TestComposeStartErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, registry, starter, replier, _ := newTestManager(Config{})
	registry.Add("0611111111")
	starter.err = campaign.ErrChannelNotReady

	m.BeginCompose(ctx, msg(7, "/send"))
	m.HandleInput(ctx, msg(7, "text"))
	m.HandleInput(ctx, msg(7, "YES"))

	if !strings.Contains(replier.last(), "not connected") {
		t.Fatalf("reply = %q, want channel-not-ready hint", replier.last())
	}
}

func TestCancelEndsAnyDialog(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, registry, _, replier, _ := newTestManager(Config{})
	registry.Add("0611111111")

	m.BeginCompose(ctx, msg(7, "/send"))
	if !m.HandleInput(ctx, msg(7, "/cancel")) {
		t.Fatal("/cancel must be consumed")
	}
	if m.Active(7) {
		t.Fatal("dialog should be gone")
	}
	if !strings.Contains(replier.last(), "canceled") {
		t.Fatalf("reply = %q", replier.last())
	}
}

func TestOtherCommandsFallThrough(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, _, _, _, _ := newTestManager(Config{})

	m.BeginAddContacts(ctx, msg(1, "/addcontacts"))
	if m.HandleInput(ctx, msg(1, "/status")) {
		t.Fatal("/status must fall through to command dispatch")
	}
	if !m.Active(1) {
		t.Fatal("the dialog survives a fall-through command")
	}
	// /done only terminates add-contacts; in compose it falls through.
	m.BeginCompose(ctx, msg(2, "/send")) // empty registry: refused
	if m.Active(2) {
		t.Fatal("compose refused, no dialog expected")
	}
}

func TestNewDialogReplacesPrevious(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, registry, _, replier, _ := newTestManager(Config{})
	registry.Add("0611111111")

	m.BeginAddContacts(ctx, msg(1, "/addcontacts"))
	m.BeginCompose(ctx, msg(1, "/send"))

	if !strings.Contains(strings.Join(replier.texts, "\n"), "Previous add-contacts dialog canceled") {
		t.Fatalf("missing replacement notice in %v", replier.texts)
	}
	// The live dialog is now compose: a body line moves it to confirm.
	m.HandleInput(ctx, msg(1, "hello"))
	if !strings.Contains(replier.last(), "Reply YES") {
		t.Fatalf("reply = %q, want compose confirmation prompt", replier.last())
	}
}

func TestDialogsAreIndependentPerOperator(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, registry, _, _, _ := newTestManager(Config{})
	registry.Add("0611111111")

	m.BeginAddContacts(ctx, msg(1, "/addcontacts"))
	m.BeginCompose(ctx, msg(2, "/send"))

	if !m.Active(1) || !m.Active(2) {
		t.Fatal("both operators should hold their own dialogs")
	}
	if m.HandleInput(ctx, msg(3, "stray text")) {
		t.Fatal("operator without a dialog must not consume input")
	}
}

func TestTestSendGoesStraightToChannel(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, _, starter, replier, client := newTestManager(Config{TestRecipient: "212600000000@c.us"})

	m.BeginTest(ctx, msg(9, "/test"))
	if !m.HandleInput(ctx, msg(9, "ping")) {
		t.Fatal("test body must be consumed")
	}

	got, ok := client.sent["212600000000@c.us"]
	if !ok {
		t.Fatalf("nothing sent to the test recipient: %v", client.sent)
	}
	if !strings.Contains(got, "ping") || !strings.Contains(got, "[TEST]") {
		t.Fatalf("test payload = %q", got)
	}
	if starter.started != 0 {
		t.Fatal("a test send must not start a campaign")
	}
	if !strings.Contains(replier.last(), "Test message sent") {
		t.Fatalf("reply = %q", replier.last())
	}
}

func TestTestSendDisabledWithoutRecipient(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, _, _, replier, _ := newTestManager(Config{})

	m.BeginTest(ctx, msg(9, "/test"))
	if m.Active(9) {
		t.Fatal("dialog must not open without a configured test number")
	}
	if !strings.Contains(replier.last(), "TEST_NUMBER") {
		t.Fatalf("reply = %q", replier.last())
	}
}
