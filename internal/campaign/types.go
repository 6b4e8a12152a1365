package campaign

import (
	"sync"
	"time"

	"blastbot/internal/store"
	"blastbot/internal/transport"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusStopped   Status = "stopped"
)

// Campaign is one bulk-send run. The dispatch loop owns it while running;
// the delivery tracker may bump Delivered from its own goroutines, so all
// counter access goes through the mutex.
type Campaign struct {
	mu sync.Mutex

	id         string
	message    string
	recipients []string
	operator   transport.ChatTarget

	status    Status
	stopAsked bool
	startedAt time.Time
	endedAt   time.Time

	sent      int
	failed    int
	delivered int
	failures  []store.FailureRecord
}

func newCampaign(id, message string, recipients []string, operator transport.ChatTarget) *Campaign {
	return &Campaign{
		id:         id,
		message:    message,
		recipients: recipients,
		operator:   operator,
		status:     StatusRunning,
		startedAt:  time.Now(),
	}
}

func (c *Campaign) ID() string                    { return c.id }
func (c *Campaign) Message() string               { return c.message }
func (c *Campaign) Total() int                    { return len(c.recipients) }
func (c *Campaign) Operator() transport.ChatTarget { return c.operator }

func (c *Campaign) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// RequestStop marks the campaign for cooperative cancellation. The dispatch
// loop observes it at the top of the next recipient iteration; a retry
// sequence already in flight runs to completion first.
func (c *Campaign) RequestStop() {
	c.mu.Lock()
	c.stopAsked = true
	c.mu.Unlock()
}

func (c *Campaign) stopRequested() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopAsked
}

func (c *Campaign) markSent() {
	c.mu.Lock()
	c.sent++
	c.mu.Unlock()
}

func (c *Campaign) markDelivered() {
	c.mu.Lock()
	c.delivered++
	c.mu.Unlock()
}

func (c *Campaign) recordFailure(contact, reason string, attempts int) {
	c.mu.Lock()
	c.failed++
	c.failures = append(c.failures, store.FailureRecord{Contact: contact, Reason: reason, Attempts: attempts})
	c.mu.Unlock()
}

func (c *Campaign) finalize(status Status) {
	c.mu.Lock()
	c.status = status
	c.endedAt = time.Now()
	c.mu.Unlock()
}

// Progress is a point-in-time view used for operator reports.
type Progress struct {
	Total     int
	Sent      int
	Failed    int
	Delivered int
	Processed int
	Percent   float64
	Status    Status
	StartedAt time.Time
}

func (c *Campaign) Progress() Progress {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := Progress{
		Total:     len(c.recipients),
		Sent:      c.sent,
		Failed:    c.failed,
		Delivered: c.delivered,
		Processed: c.sent + c.failed,
		Status:    c.status,
		StartedAt: c.startedAt,
	}
	if p.Total > 0 {
		p.Percent = float64(p.Processed) / float64(p.Total) * 100
	}
	return p
}

// Record converts the campaign into its persisted form.
func (c *Campaign) Record() store.CampaignRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec := store.CampaignRecord{
		ID:         c.id,
		Message:    c.message,
		Recipients: append([]string(nil), c.recipients...),
		Total:      len(c.recipients),
		Sent:       c.sent,
		Failed:     c.failed,
		Delivered:  c.delivered,
		Failures:   append([]store.FailureRecord(nil), c.failures...),
		Status:     string(c.status),
		StartedAt:  c.startedAt,
	}
	if !c.endedAt.IsZero() {
		t := c.endedAt
		rec.EndedAt = &t
	}
	return rec
}
