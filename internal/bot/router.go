// Package bot routes inbound control-channel messages: authorization
// first, then the operator's active dialog session, then command dispatch.
package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"blastbot/internal/campaign"
	"blastbot/internal/channel"
	"blastbot/internal/contacts"
	"blastbot/internal/notify"
	"blastbot/internal/session"
	"blastbot/internal/transport"
	"blastbot/pkg/logx"
)

const rejectionReply = "⛔ You are not authorized to use this bot."

type Config struct {
	// Operators is the allow-list. Empty means everyone is authorized
	// (documented permissive default).
	Operators []int64
}

type Router struct {
	mu  sync.RWMutex
	cfg Config

	registry  *contacts.Registry
	campaigns *campaign.Manager
	sessions  *session.Manager
	notif     *notify.Service
	conn      *channel.Connectivity
	log       logx.Logger

	// onMutate fires after direct registry mutations (/addcontact,
	// /clearcontacts) so the app can persist state.
	onMutate func(ctx context.Context)
}

func New(cfg Config, registry *contacts.Registry, campaigns *campaign.Manager, sessions *session.Manager, notif *notify.Service, conn *channel.Connectivity, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{
		cfg:       cfg,
		registry:  registry,
		campaigns: campaigns,
		sessions:  sessions,
		notif:     notif,
		conn:      conn,
		log:       log,
	}
}

// OnMutate registers the registry-persistence hook.
func (r *Router) OnMutate(fn func(ctx context.Context)) { r.onMutate = fn }

// Apply swaps the allow-list at runtime (config hot reload).
func (r *Router) Apply(cfg Config) {
	r.mu.Lock()
	r.cfg = cfg
	r.mu.Unlock()
}

func (r *Router) authorized(id int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.cfg.Operators) == 0 {
		return true
	}
	for _, op := range r.cfg.Operators {
		if op == id {
			return true
		}
	}
	return false
}

func (r *Router) operators() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]int64(nil), r.cfg.Operators...)
}

// Run consumes inbound control messages until ctx is canceled.
func (r *Router) Run(ctx context.Context, in <-chan transport.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			r.handle(ctx, msg)
		}
	}
}

func (r *Router) handle(ctx context.Context, msg transport.Message) {
	to := transport.ChatTarget{ChatID: msg.ChatID}

	if !r.authorized(msg.FromID) {
		r.log.Warn("unauthorized message",
			logx.Int64("from", msg.FromID),
			logx.String("username", msg.FromUsername))
		r.notif.Send(ctx, to, rejectionReply)
		return
	}

	// Active dialog gets first claim on the input.
	if r.sessions.HandleInput(ctx, msg) {
		return
	}

	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return // stray free text outside any dialog
	}
	fields := strings.Fields(text)
	cmd := strings.ToLower(fields[0])
	args := fields[1:]

	r.log.Debug("command", logx.Int64("from", msg.FromID), logx.String("cmd", cmd))

	switch cmd {
	case "/start", "/help":
		r.notif.Send(ctx, to, helpText)
	case "/send":
		r.sessions.BeginCompose(ctx, msg)
	case "/test":
		r.sessions.BeginTest(ctx, msg)
	case "/addcontacts":
		r.sessions.BeginAddContacts(ctx, msg)
	case "/addcontact":
		r.cmdAddContact(ctx, to, args)
	case "/contacts":
		r.cmdContacts(ctx, to)
	case "/clearcontacts":
		r.cmdClearContacts(ctx, to)
	case "/stop":
		r.cmdStop(ctx, to)
	case "/status":
		r.cmdStatus(ctx, to)
	case "/campaigns":
		r.cmdCampaigns(ctx, to)
	case "/done", "/cancel":
		r.notif.Send(ctx, to, "No active dialog.")
	default:
		r.notif.Send(ctx, to, "Unknown command. See /help.")
	}
}

const helpText = `📡 blastbot commands:
/send — compose and launch a campaign
/test — send a test message to your own number
/stop — stop the running campaign
/status — channel state and campaign progress
/addcontact <number> — add one contact
/addcontacts — add contacts in bulk (dialog)
/contacts — list contacts
/clearcontacts — empty the contact list
/campaigns — recent campaign history
/done, /cancel — finish or abort a dialog`

func (r *Router) cmdAddContact(ctx context.Context, to transport.ChatTarget, args []string) {
	if len(args) == 0 {
		r.notif.Send(ctx, to, "Usage: /addcontact <number>")
		return
	}
	raw := strings.Join(args, "")
	if r.registry.Add(raw) {
		if r.onMutate != nil {
			r.onMutate(ctx)
		}
		r.notif.Send(ctx, to, fmt.Sprintf("➕ Added. %d contact(s) total.", r.registry.Len()))
		return
	}
	r.notif.Send(ctx, to, "Already present.")
}

const contactsListMax = 30

func (r *Router) cmdContacts(ctx context.Context, to transport.ChatTarget) {
	n := r.registry.Len()
	if n == 0 {
		r.notif.Send(ctx, to, "No contacts. Add some with /addcontacts.")
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "👥 %d contact(s):", n)
	for _, id := range r.registry.List(contactsListMax) {
		b.WriteString("\n• " + id)
	}
	if n > contactsListMax {
		fmt.Fprintf(&b, "\n… and %d more", n-contactsListMax)
	}
	r.notif.Send(ctx, to, b.String())
}

func (r *Router) cmdClearContacts(ctx context.Context, to transport.ChatTarget) {
	n := r.registry.Len()
	r.registry.Clear()
	if r.onMutate != nil {
		r.onMutate(ctx)
	}
	r.notif.Send(ctx, to, fmt.Sprintf("🗑 Cleared %d contact(s).", n))
}

func (r *Router) cmdStop(ctx context.Context, to transport.ChatTarget) {
	if r.campaigns.RequestStop() {
		r.notif.Send(ctx, to, "🛑 Stop requested. The current recipient finishes first.")
		return
	}
	r.notif.Send(ctx, to, "No campaign is running.")
}

func (r *Router) cmdStatus(ctx context.Context, to transport.ChatTarget) {
	var b strings.Builder
	fmt.Fprintf(&b, "📶 Channel: %s\n👥 Contacts: %d", r.conn.State(), r.registry.Len())
	if c, ok := r.campaigns.Current(); ok {
		p := c.Progress()
		fmt.Fprintf(&b, "\n📤 Campaign %s: %d/%d (%.0f%%), sent %d, failed %d",
			shortID(c.ID()), p.Processed, p.Total, p.Percent, p.Sent, p.Failed)
	} else {
		b.WriteString("\n💤 No campaign running.")
	}
	r.notif.Send(ctx, to, b.String())
}

const campaignsListMax = 10

func (r *Router) cmdCampaigns(ctx context.Context, to transport.ChatTarget) {
	hist := r.campaigns.History()
	if len(hist) == 0 {
		r.notif.Send(ctx, to, "No campaigns yet.")
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "🗂 Last %d campaign(s):", min(len(hist), campaignsListMax))
	start := 0
	if len(hist) > campaignsListMax {
		start = len(hist) - campaignsListMax
	}
	for i := len(hist) - 1; i >= start; i-- {
		rec := hist[i]
		fmt.Fprintf(&b, "\n• %s %s — sent %d/%d, failed %d (%s)",
			shortID(rec.ID), rec.StartedAt.Format("2006-01-02 15:04"),
			rec.Sent, rec.Total, rec.Failed, rec.Status)
	}
	r.notif.Send(ctx, to, b.String())
}

// WatchConnectivity forwards channel transitions to the allow-listed
// operators: pairing QR codes as photos, disconnects and auth failures as
// notices. With an empty allow-list there is no one to push to; events are
// only logged.
func (r *Router) WatchConnectivity(ctx context.Context, events <-chan channel.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			r.pushConnectivity(ctx, ev)
		}
	}
}

func (r *Router) pushConnectivity(ctx context.Context, ev channel.Event) {
	ops := r.operators()
	if len(ops) == 0 {
		r.log.Info("channel event (no operators configured)", logx.String("state", ev.State.String()))
		return
	}
	for _, op := range ops {
		to := transport.ChatTarget{ChatID: op}
		switch ev.State {
		case channel.StatePairingRequested:
			if len(ev.QR) > 0 {
				r.notif.SendPhoto(ctx, to, ev.QR, "📱 Scan to pair the messaging channel.")
			} else {
				r.notif.Send(ctx, to, "📱 Channel pairing requested; QR unavailable.")
			}
		case channel.StateReady:
			r.notif.Send(ctx, to, "✅ Messaging channel connected.")
		case channel.StateDisconnected:
			r.notif.Send(ctx, to, "⚠️ Messaging channel disconnected: "+ev.Detail)
		case channel.StateAuthFailed:
			r.notif.Send(ctx, to, "❌ Channel authentication failed: "+ev.Detail)
		}
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
