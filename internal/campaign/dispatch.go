package campaign

import (
	"context"
	"time"

	"blastbot/pkg/logx"
)

// progressEvery is the processed-recipient interval between progress reports.
const progressEvery = 10

// ledgerReportMax is the largest failure ledger echoed in full to the
// operator; larger ledgers are summarized as a count.
const ledgerReportMax = 20

// run is the dispatch loop. It owns the campaign until it archives it.
func (m *Manager) run(ctx context.Context, c *Campaign, done chan struct{}) {
	defer close(done)

	m.mu.Lock()
	cfg := m.cfg
	m.mu.Unlock()

	recipients := c.recipients
	total := len(recipients)
	batchCount := 0
	stopped := false

	for i, rcpt := range recipients {
		// Cooperative cancellation boundary: once per recipient, never
		// mid-retry.
		if c.stopRequested() || ctx.Err() != nil {
			stopped = true
			break
		}

		exists, lookupErr := m.client.Lookup(ctx, rcpt)
		switch {
		case lookupErr == nil && !exists:
			// Terminal for this recipient; consumes no send attempts.
			c.recordFailure(rcpt, invalidNumberReason, 0)
			m.log.Debug("recipient rejected", logx.String("campaign", c.ID()), logx.String("to", rcpt))
		default:
			// Lookup errors degrade to ordinary send attempts; a dead
			// channel then surfaces as transient failures per recipient.
			m.attemptSend(ctx, cfg, c, rcpt)
		}

		processed := i + 1
		if processed%progressEvery == 0 || processed == total {
			m.notif.Send(ctx, c.operator, formatProgress(c.Progress(), cfg.Pacing))
		}

		if processed == total {
			break // no pacing after the final recipient
		}
		batchCount++
		delay, isBatch := cfg.Pacing.Pause(batchCount)
		if isBatch {
			batchCount = 0
			m.notif.Send(ctx, c.operator, formatBatchPause(cfg.Pacing))
		}
		if err := m.sleep(ctx, delay); err != nil {
			stopped = true
			break
		}
	}

	status := StatusCompleted
	if stopped {
		status = StatusStopped
	}
	c.finalize(status)

	rec := c.Record()
	m.log.Info("campaign finished",
		logx.String("id", c.ID()),
		logx.String("status", string(status)),
		logx.Int("sent", rec.Sent),
		logx.Int("failed", rec.Failed),
		logx.Duration("dur", rec.EndedAt.Sub(rec.StartedAt)))

	m.notif.Send(ctx, c.operator, formatSummary(rec))
	if n := len(rec.Failures); n > 0 {
		if n <= ledgerReportMax {
			m.notif.Send(ctx, c.operator, formatLedger(rec.Failures))
		} else {
			m.notif.Send(ctx, c.operator, formatLedgerCount(n))
		}
	}

	m.archive(c)
	if m.onFinished != nil {
		m.onFinished(ctx)
	}
}

// attemptSend drives the bounded retry loop for one recipient.
func (m *Manager) attemptSend(ctx context.Context, cfg Config, c *Campaign, rcpt string) {
	attempts := 0
	var last error
	for {
		attempts++
		id, err := m.client.SendMessage(ctx, rcpt, c.message)
		if err == nil {
			c.markSent()
			if cfg.EnableDeliveryCheck {
				m.trackDelivery(c, id, cfg.DeliveryCheckDelay)
			}
			return
		}
		last = err
		if !cfg.Retry.ShouldRetry(attempts) {
			break
		}
		m.log.Debug("send retry scheduled",
			logx.String("campaign", c.ID()),
			logx.String("to", rcpt),
			logx.Int("attempt", attempts+1),
			logx.Err(err))
		// Fixed backoff; a canceled context still lets the loop record the
		// failure before the per-recipient stop check fires.
		if m.sleep(ctx, cfg.Retry.Backoff) != nil {
			break
		}
	}
	c.recordFailure(rcpt, last.Error(), attempts)
	m.log.Warn("send failed",
		logx.String("campaign", c.ID()),
		logx.String("to", rcpt),
		logx.Int("attempts", attempts),
		logx.Err(last))
}

// etaFor estimates remaining wall time from current progress.
func etaFor(p Progress, pacing PacingPolicy) time.Duration {
	remaining := p.Total - p.Processed
	if remaining <= 0 {
		return 0
	}
	return pacing.Estimate(remaining + 1)
}
