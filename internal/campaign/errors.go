package campaign

import "errors"

var (
	// ErrAlreadyRunning guards the one-active-campaign-per-process invariant.
	ErrAlreadyRunning = errors.New("a campaign is already running")
	// ErrChannelNotReady means the messaging channel is not connected.
	ErrChannelNotReady = errors.New("messaging channel is not ready")
	// ErrNoRecipients means the contact registry snapshot was empty.
	ErrNoRecipients = errors.New("no recipients")
)

// invalidNumberReason is the ledger reason recorded for recipients whose
// existence check comes back negative.
const invalidNumberReason = "Invalid number"
