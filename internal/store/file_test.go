package store

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"blastbot/pkg/logx"
)

func sampleState() State {
	ended := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	return State{
		Contacts: []string{"212611111111@c.us", "212622222222@c.us"},
		Campaigns: []CampaignRecord{{
			ID:         "c1",
			Message:    "hello",
			Recipients: []string{"212611111111@c.us"},
			Total:      1,
			Sent:       1,
			Status:     "completed",
			StartedAt:  ended.Add(-time.Minute),
			EndedAt:    &ended,
		}},
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "state.json")
	s, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	want := sampleState()
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}

	// No stray temp file after a successful save.
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}
}

func TestFileStoreMissingFileIsEmptyState(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "never-written.json")
	s, err := Open(Config{Path: path}, logx.Nop()) // empty driver defaults to file
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	got, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got.Contacts) != 0 || len(got.Campaigns) != 0 || got.Current != nil {
		t.Fatalf("want empty state, got %+v", got)
	}
}

func TestFileStoreCorruptFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	s, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if _, err := s.Load(context.Background()); err == nil {
		t.Fatal("corrupt snapshot should fail to load")
	}
}

func TestMemoryStoreDetachesSnapshots(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	ctx := context.Background()

	st := sampleState()
	if err := m.Save(ctx, st); err != nil {
		t.Fatalf("Save: %v", err)
	}
	st.Contacts[0] = "mutated"

	got, err := m.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Contacts[0] != "212611111111@c.us" {
		t.Fatalf("stored state aliased the caller's slice: %v", got.Contacts)
	}
	if m.Saves != 1 {
		t.Fatalf("Saves = %d, want 1", m.Saves)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "etcd"}, logx.Nop()); err == nil {
		t.Fatal("unknown driver must be rejected")
	}
}
