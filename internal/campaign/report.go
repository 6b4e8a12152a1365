package campaign

import (
	"fmt"
	"strings"
	"time"

	"blastbot/internal/store"
)

func formatProgress(p Progress, pacing PacingPolicy) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📤 Progress: %d/%d (%.0f%%)\n", p.Processed, p.Total, p.Percent)
	fmt.Fprintf(&b, "✅ Sent: %d  ❌ Failed: %d", p.Sent, p.Failed)
	if p.Delivered > 0 {
		fmt.Fprintf(&b, "  📬 Delivered: %d", p.Delivered)
	}
	if eta := etaFor(p, pacing); eta > 0 {
		fmt.Fprintf(&b, "\n⏳ Est. remaining: %s", roundDuration(eta))
	}
	return b.String()
}

func formatBatchPause(p PacingPolicy) string {
	return fmt.Sprintf("⏸ Batch of %d done, pausing for %s...", p.BatchSize, roundDuration(p.BatchDelay))
}

func formatSummary(rec store.CampaignRecord) string {
	dur := time.Duration(0)
	if rec.EndedAt != nil {
		dur = rec.EndedAt.Sub(rec.StartedAt)
	}

	successRate := 0.0
	if rec.Total > 0 {
		successRate = float64(rec.Sent) / float64(rec.Total) * 100
	}
	deliveryRate := 0.0
	if rec.Sent > 0 {
		deliveryRate = float64(rec.Delivered) / float64(rec.Sent) * 100
	}
	throughput := 0.0
	if mins := dur.Minutes(); mins > 0 {
		throughput = float64(rec.Sent) / mins
	}

	title := "🏁 Campaign completed"
	if rec.Status == string(StatusStopped) {
		title = "🛑 Campaign stopped"
	}

	var b strings.Builder
	b.WriteString(title)
	fmt.Fprintf(&b, "\n✅ Sent: %d/%d (%.1f%%)", rec.Sent, rec.Total, successRate)
	fmt.Fprintf(&b, "\n❌ Failed: %d", rec.Failed)
	fmt.Fprintf(&b, "\n📬 Delivered: %d (%.1f%%)", rec.Delivered, deliveryRate)
	fmt.Fprintf(&b, "\n⏱ Duration: %s", roundDuration(dur))
	if throughput > 0 {
		fmt.Fprintf(&b, "\n🚀 Throughput: %.1f msgs/min", throughput)
	}
	return b.String()
}

func formatLedger(failures []store.FailureRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Failed recipients (%d):", len(failures))
	for _, f := range failures {
		fmt.Fprintf(&b, "\n• %s — %s", f.Contact, f.Reason)
		if f.Attempts > 1 {
			fmt.Fprintf(&b, " (%d attempts)", f.Attempts)
		}
	}
	return b.String()
}

func formatLedgerCount(n int) string {
	return fmt.Sprintf("❌ %d recipients failed. Use /campaigns for details.", n)
}

func roundDuration(d time.Duration) time.Duration {
	switch {
	case d >= time.Minute:
		return d.Round(time.Second)
	case d >= time.Second:
		return d.Round(100 * time.Millisecond)
	default:
		return d.Round(time.Millisecond)
	}
}
