package campaign

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"blastbot/internal/channel"
	"blastbot/internal/store"
	"blastbot/internal/transport"
	"blastbot/pkg/logx"
)

type Config struct {
	Pacing PacingPolicy
	Retry  RetryPolicy

	EnableDeliveryCheck bool
	// DeliveryCheckDelay is the observation delay between a successful send
	// and the delivery acknowledgment query.
	DeliveryCheckDelay time.Duration

	// HistoryMax bounds the archived campaign history (janitor cap).
	HistoryMax int
}

// Notifier delivers operator-facing reports over the control channel.
// Implementations must not block the dispatch loop beyond their own rate
// limiting and must swallow transport errors.
type Notifier interface {
	Send(ctx context.Context, to transport.ChatTarget, text string)
}

// Readiness gates campaign start on channel connectivity.
type Readiness interface {
	Ready() bool
}

// Manager owns the single running campaign slot and the campaign history.
type Manager struct {
	cfg    Config
	client channel.Client
	conn   Readiness
	notif  Notifier
	log    logx.Logger

	mu      sync.Mutex
	current *Campaign
	history []store.CampaignRecord
	done    chan struct{} // closed when the running dispatch loop exits

	// onFinished is invoked after a campaign is archived; the app uses it
	// to persist the updated state snapshot.
	onFinished func(ctx context.Context)

	// sleep is a seam for tests; the default is a context-aware timer wait.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewManager(cfg Config, client channel.Client, conn Readiness, notif Notifier, log logx.Logger) *Manager {
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = 1
	}
	if cfg.HistoryMax <= 0 {
		cfg.HistoryMax = 200
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Manager{
		cfg:    cfg,
		client: client,
		conn:   conn,
		notif:  notif,
		log:    log,
		sleep:  sleepCtx,
	}
}

// OnFinished registers the post-archive hook (state persistence).
func (m *Manager) OnFinished(fn func(ctx context.Context)) { m.onFinished = fn }

// Apply swaps pacing/retry knobs; the change takes effect on the next Start.
func (m *Manager) Apply(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = 1
	}
	if cfg.HistoryMax <= 0 {
		cfg.HistoryMax = 200
	}
	m.cfg = cfg
}

func (m *Manager) Pacing() PacingPolicy {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg.Pacing
}

// Start creates a Running campaign over the given recipient snapshot and
// launches the dispatch loop. Guards, in order: a campaign already running,
// channel not ready, empty snapshot.
func (m *Manager) Start(ctx context.Context, operator transport.ChatTarget, message string, recipients []string) (*Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		return nil, ErrAlreadyRunning
	}
	if m.conn != nil && !m.conn.Ready() {
		return nil, ErrChannelNotReady
	}
	if len(recipients) == 0 {
		return nil, ErrNoRecipients
	}

	c := newCampaign(uuid.NewString(), message, append([]string(nil), recipients...), operator)
	m.current = c
	m.done = make(chan struct{})

	m.log.Info("campaign started",
		logx.String("id", c.ID()),
		logx.Int("total", c.Total()),
		logx.Int64("operator", operator.ChatID))

	go m.run(ctx, c, m.done)
	return c, nil
}

// RequestStop asks the running campaign to stop. It reports whether a
// campaign was running; the loop itself performs the stop at its next
// recipient boundary.
func (m *Manager) RequestStop() bool {
	m.mu.Lock()
	c := m.current
	m.mu.Unlock()
	if c == nil {
		return false
	}
	c.RequestStop()
	m.log.Info("campaign stop requested", logx.String("id", c.ID()))
	return true
}

// Current returns the running campaign, if any.
func (m *Manager) Current() (*Campaign, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current, m.current != nil
}

// History returns a copy of the archived campaigns, oldest first.
func (m *Manager) History() []store.CampaignRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.CampaignRecord(nil), m.history...)
}

// RestoreHistory seeds the archive from persisted state at startup.
func (m *Manager) RestoreHistory(recs []store.CampaignRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append([]store.CampaignRecord(nil), recs...)
}

// PruneHistory caps the archive at the configured maximum, dropping the
// oldest entries. It returns the number removed.
func (m *Manager) PruneHistory() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	max := m.cfg.HistoryMax
	if len(m.history) <= max {
		return 0
	}
	excess := len(m.history) - max
	m.history = append([]store.CampaignRecord(nil), m.history[excess:]...)
	return excess
}

// Wait blocks until the running dispatch loop exits (used in shutdown and
// tests). It returns immediately when nothing is running.
func (m *Manager) Wait() {
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()
	if done != nil {
		<-done
	}
}

// refreshRecord re-snapshots a campaign's history entry after a late
// delivery acknowledgment lands on an already archived run.
func (m *Manager) refreshRecord(c *Campaign) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.history {
		if m.history[i].ID == c.ID() {
			m.history[i] = c.Record()
			return
		}
	}
}

// archive moves the finished campaign into history and clears the slot.
func (m *Manager) archive(c *Campaign) {
	m.mu.Lock()
	m.history = append(m.history, c.Record())
	if m.current == c {
		m.current = nil
	}
	m.mu.Unlock()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
