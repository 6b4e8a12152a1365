// Package channel defines the messaging-channel port: the external
// instant-messaging client the dispatcher sends through. The engine only
// depends on the Client interface plus the Connectivity state machine;
// the gateway subpackage provides the production implementation.
package channel

import (
	"context"
	"errors"
)

// AckLevel mirrors the channel's delivery acknowledgment ladder.
type AckLevel int

const (
	AckError AckLevel = iota - 1
	AckPending
	AckServer
	AckDelivered
	AckRead
)

// MessageID is the channel's opaque handle for one accepted message.
type MessageID string

// ErrNotReady is returned by clients when the channel connection is not in
// a state that allows sending.
var ErrNotReady = errors.New("channel not ready")

// Client is the minimal send/lookup surface the dispatch loop consumes.
//
// Lookup reports whether the identifier resolves to a real account.
// AckLevel queries the delivery acknowledgment for a previously sent message.
type Client interface {
	SendMessage(ctx context.Context, identifier, text string) (MessageID, error)
	Lookup(ctx context.Context, identifier string) (bool, error)
	AckLevel(ctx context.Context, id MessageID) (AckLevel, error)
}
