// Package campaign is the bulk dispatch engine.
//
// A Campaign is one run: a message, an immutable recipient snapshot taken
// from the contact registry at start, and running counters plus a failure
// ledger. The Manager guards the single process-wide running slot, drives
// the sequential send loop under the pacing and retry policies, reports
// progress back over the control channel, and archives finished runs.
//
// Delivery semantics
//
// Sends are best-effort. A recipient that fails its existence check is
// recorded once with reason "Invalid number" and consumes no send attempts.
// Transient send failures are retried with a fixed backoff up to the
// configured bound. Per-recipient errors never abort the run.
//
// Exactly one send is in flight at any time; throughput is deliberately
// bounded by the pacing policy to stay under the host channel's abuse
// thresholds.
package campaign
