package store

import (
	"context"
	"time"
)

// FailureRecord is one failed recipient inside a campaign's ledger.
type FailureRecord struct {
	Contact  string `json:"contact"`
	Reason   string `json:"reason"`
	Attempts int    `json:"attempts"`
}

// CampaignRecord is the schema-stable persisted form of one dispatch run.
type CampaignRecord struct {
	ID         string          `json:"id"`
	Message    string          `json:"message"`
	Recipients []string        `json:"recipients"`
	Total      int             `json:"total"`
	Sent       int             `json:"sent"`
	Failed     int             `json:"failed"`
	Delivered  int             `json:"delivered"`
	Failures   []FailureRecord `json:"failedEntries"`
	Status     string          `json:"status"`
	StartedAt  time.Time       `json:"startedAt"`
	EndedAt    *time.Time      `json:"endedAt,omitempty"`
}

// State is the durable snapshot rewritten in full after every registry or
// campaign-history mutation. In-flight progress is memory-only: Current is
// persisted for visibility, not for mid-campaign recovery.
type State struct {
	Contacts  []string         `json:"contacts"`
	Campaigns []CampaignRecord `json:"campaigns"`
	Current   *CampaignRecord  `json:"currentCampaign"`
}

// Store is the minimal persistence API. Save rewrites the whole snapshot.
type Store interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, st State) error
	Close() error
}
