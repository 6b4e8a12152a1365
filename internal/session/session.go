// Package session implements the per-operator conversational dialogs that
// collect campaign input over the control channel: add-contacts, compose →
// confirm → send, and test-send.
//
// The manager owns a session table keyed by operator ID. Inbound messages
// are offered to the operator's active session first; anything the session
// does not consume falls through to normal command dispatch. At most one
// session exists per operator: starting a new dialog cancels the previous
// one, whatever its kind.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"blastbot/internal/campaign"
	"blastbot/internal/channel"
	"blastbot/internal/contacts"
	"blastbot/internal/transport"
	"blastbot/pkg/logx"
)

type Kind int

const (
	KindAddContacts Kind = iota
	KindCompose
	KindTest
)

func (k Kind) String() string {
	switch k {
	case KindAddContacts:
		return "add-contacts"
	case KindCompose:
		return "compose"
	case KindTest:
		return "test"
	default:
		return "unknown"
	}
}

type composeStage int

const (
	stageBody composeStage = iota
	stageConfirm
)

// session is one in-flight dialog. Only the manager touches it.
type session struct {
	kind     Kind
	operator transport.ChatTarget

	// compose
	stage   composeStage
	message string

	// add-contacts
	added int
}

// previewLimit caps the message preview shown in the confirmation step.
const previewLimit = 150

// testMarker prefixes /test sends so they are recognizable on the receiving
// device.
const testMarker = "🧪 [TEST]\n"

// CampaignStarter is the terminal transition of the compose dialog.
type CampaignStarter interface {
	Start(ctx context.Context, operator transport.ChatTarget, message string, recipients []string) (*campaign.Campaign, error)
	Pacing() campaign.PacingPolicy
}

// Replier sends dialog prompts and reports back to the operator.
type Replier interface {
	Send(ctx context.Context, to transport.ChatTarget, text string)
}

type Config struct {
	// TestRecipient is the operator's own channel identity for /test sends
	// (already normalized). Empty disables the test dialog with a hint.
	TestRecipient string
}

type Manager struct {
	cfg       Config
	registry  *contacts.Registry
	campaigns CampaignStarter
	client    channel.Client
	reply     Replier
	log       logx.Logger

	// onMutate fires after registry changes so the app can persist state.
	onMutate func(ctx context.Context)

	mu       sync.Mutex
	sessions map[int64]*session
}

func NewManager(cfg Config, registry *contacts.Registry, campaigns CampaignStarter, client channel.Client, reply Replier, log logx.Logger) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Manager{
		cfg:       cfg,
		registry:  registry,
		campaigns: campaigns,
		client:    client,
		reply:     reply,
		log:       log,
		sessions:  map[int64]*session{},
	}
}

// OnMutate registers the registry-persistence hook.
func (m *Manager) OnMutate(fn func(ctx context.Context)) { m.onMutate = fn }

// Apply swaps the dialog configuration at runtime (config hot reload).
// In-flight dialogs keep running; the change applies to new ones.
func (m *Manager) Apply(cfg Config) {
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
}

// Active reports whether the operator has a dialog in flight.
func (m *Manager) Active(operator int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[operator]
	return ok
}

// begin installs a fresh session, canceling any previous dialog for the
// same operator.
func (m *Manager) begin(ctx context.Context, msg transport.Message, kind Kind) *session {
	to := transport.ChatTarget{ChatID: msg.ChatID}

	m.mu.Lock()
	prev := m.sessions[msg.FromID]
	s := &session{kind: kind, operator: to}
	m.sessions[msg.FromID] = s
	m.mu.Unlock()

	if prev != nil {
		m.log.Debug("session replaced",
			logx.Int64("operator", msg.FromID),
			logx.String("old", prev.kind.String()),
			logx.String("new", kind.String()))
		m.reply.Send(ctx, to, fmt.Sprintf("Previous %s dialog canceled.", prev.kind))
	}
	return s
}

func (m *Manager) end(operator int64) {
	m.mu.Lock()
	delete(m.sessions, operator)
	m.mu.Unlock()
}

// BeginAddContacts starts the bulk contact-entry dialog.
func (m *Manager) BeginAddContacts(ctx context.Context, msg transport.Message) {
	s := m.begin(ctx, msg, KindAddContacts)
	m.reply.Send(ctx, s.operator,
		"📇 Send phone numbers, one per line (several messages are fine).\nFinish with /done, abort with /cancel.")
}

// BeginCompose starts the compose → confirm → send dialog.
func (m *Manager) BeginCompose(ctx context.Context, msg transport.Message) {
	if m.registry.Len() == 0 {
		m.end(msg.FromID)
		m.reply.Send(ctx, transport.ChatTarget{ChatID: msg.ChatID},
			"No contacts yet. Add some with /addcontacts first.")
		return
	}
	s := m.begin(ctx, msg, KindCompose)
	m.reply.Send(ctx, s.operator, "✏️ Send the message text for this campaign (or /cancel).")
}

func (m *Manager) testRecipient() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg.TestRecipient
}

// BeginTest starts the single-message test dialog.
func (m *Manager) BeginTest(ctx context.Context, msg transport.Message) {
	if m.testRecipient() == "" {
		m.reply.Send(ctx, transport.ChatTarget{ChatID: msg.ChatID},
			"Test sends are disabled: TEST_NUMBER is not configured.")
		return
	}
	s := m.begin(ctx, msg, KindTest)
	m.reply.Send(ctx, s.operator, "🧪 Send the text to test-deliver to your own number (or /cancel).")
}

// HandleInput offers an inbound message to the operator's active session.
// It reports whether the message was consumed. Recognized commands other
// than the session's own terminators are left for command dispatch.
func (m *Manager) HandleInput(ctx context.Context, msg transport.Message) bool {
	m.mu.Lock()
	s := m.sessions[msg.FromID]
	m.mu.Unlock()
	if s == nil {
		return false
	}

	text := strings.TrimSpace(msg.Text)
	if strings.HasPrefix(text, "/") {
		switch strings.ToLower(strings.Fields(text)[0]) {
		case "/cancel":
			m.end(msg.FromID)
			m.reply.Send(ctx, s.operator, fmt.Sprintf("❎ %s dialog canceled.", s.kind))
			return true
		case "/done":
			if s.kind == KindAddContacts {
				m.end(msg.FromID)
				m.reply.Send(ctx, s.operator,
					fmt.Sprintf("✅ Done. %d new contact(s) added, %d total.", s.added, m.registry.Len()))
				return true
			}
			return false
		default:
			// Another command interrupts nothing; normal dispatch takes it.
			return false
		}
	}

	switch s.kind {
	case KindAddContacts:
		m.handleAddContacts(ctx, s, text)
	case KindCompose:
		m.handleCompose(ctx, msg.FromID, s, text)
	case KindTest:
		m.handleTest(ctx, msg.FromID, s, text)
	}
	return true
}

func (m *Manager) handleAddContacts(ctx context.Context, s *session, text string) {
	added := m.registry.AddBulk(text)
	s.added += added
	if added > 0 && m.onMutate != nil {
		m.onMutate(ctx)
	}
	m.reply.Send(ctx, s.operator,
		fmt.Sprintf("➕ %d new (%d in this dialog). /done to finish.", added, s.added))
}

func (m *Manager) handleCompose(ctx context.Context, operator int64, s *session, text string) {
	switch s.stage {
	case stageBody:
		s.message = text
		s.stage = stageConfirm

		preview := s.message
		if r := []rune(preview); len(r) > previewLimit {
			preview = string(r[:previewLimit]) + "…"
		}
		n := m.registry.Len()
		eta := m.campaigns.Pacing().Estimate(n)
		m.reply.Send(ctx, s.operator, fmt.Sprintf(
			"📋 Preview:\n%s\n\n👥 Recipients: %d\n⏳ Estimated duration: %s\n\nReply YES to start, /cancel to abort.",
			preview, n, eta.Round(time.Second)))

	case stageConfirm:
		if !strings.EqualFold(text, "YES") {
			m.reply.Send(ctx, s.operator, "Reply YES to confirm, or /cancel to abort.")
			return
		}
		m.end(operator)
		recipients := m.registry.Snapshot()
		if _, err := m.campaigns.Start(ctx, s.operator, s.message, recipients); err != nil {
			m.reply.Send(ctx, s.operator, startErrorReply(err))
			return
		}
		m.reply.Send(ctx, s.operator,
			fmt.Sprintf("🚀 Campaign started: %d recipient(s). /status for progress, /stop to cancel.", len(recipients)))
	}
}

func (m *Manager) handleTest(ctx context.Context, operator int64, s *session, text string) {
	m.end(operator)
	rcpt := m.testRecipient()
	// Straight through the channel client: no retry, no pacing, no campaign.
	_, err := m.client.SendMessage(ctx, rcpt, testMarker+text)
	if err != nil {
		m.log.Warn("test send failed", logx.Int64("operator", operator), logx.Err(err))
		m.reply.Send(ctx, s.operator, "❌ Test send failed: "+err.Error())
		return
	}
	m.reply.Send(ctx, s.operator, "✅ Test message sent to "+rcpt)
}

func startErrorReply(err error) string {
	switch {
	case errors.Is(err, campaign.ErrAlreadyRunning):
		return "⚠️ A campaign is already running. /stop it first."
	case errors.Is(err, campaign.ErrChannelNotReady):
		return "⚠️ Messaging channel is not connected yet."
	case errors.Is(err, campaign.ErrNoRecipients):
		return "⚠️ Contact list is empty."
	default:
		return "❌ Could not start campaign: " + err.Error()
	}
}
