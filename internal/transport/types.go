// Package transport defines the control-channel port: the chat interface
// operators use to drive the dispatcher. A single Adapter implementation
// (Telegram) lives in the telegram subpackage.
package transport

import "context"

// Message is one inbound control-channel line with operator identity.
type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	Text         string
}

// ChatTarget addresses an outbound reply.
type ChatTarget struct {
	ChatID int64
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Adapter is the control-channel client. Start pushes inbound messages to
// out until the context is canceled or Stop is called.
type Adapter interface {
	Start(ctx context.Context, out chan<- Message) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	// SendPhoto delivers raw PNG bytes (pairing QR challenges).
	SendPhoto(ctx context.Context, to ChatTarget, png []byte, caption string) error
}
