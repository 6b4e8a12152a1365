// Package contacts holds the deduplicated recipient registry and the
// phone-number normalization rule that feeds it.
package contacts

import (
	"strings"
	"sync"
)

// minFullLen is the digit count at or above which a number is assumed to
// already carry its country prefix.
const minFullLen = 12

// Normalizer projects raw operator input into the channel's addressing form.
type Normalizer struct {
	// CountryCode is prepended to short national numbers ("212").
	CountryCode string
	// AltPrefixes are additional prefixes accepted as already-international.
	AltPrefixes []string
	// Suffix is the channel address suffix appended to every identifier.
	Suffix string
}

// Normalize is deterministic and never fails: malformed input produces a
// degenerate identifier that surfaces as a send-time failure instead.
func (n Normalizer) Normalize(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := strings.TrimLeft(b.String(), "0")

	if !n.hasKnownPrefix(digits) && len(digits) < minFullLen {
		digits = n.CountryCode + digits
	}
	return digits + n.Suffix
}

func (n Normalizer) hasKnownPrefix(digits string) bool {
	if n.CountryCode != "" && strings.HasPrefix(digits, n.CountryCode) {
		return true
	}
	for _, p := range n.AltPrefixes {
		if p != "" && strings.HasPrefix(digits, p) {
			return true
		}
	}
	return false
}

// Registry is the insert-ordered, deduplicated set of normalized recipient
// identifiers. Campaigns take an immutable snapshot at start; later edits
// never affect an in-flight run.
type Registry struct {
	mu    sync.Mutex
	norm  Normalizer
	seen  map[string]struct{}
	order []string
}

func NewRegistry(norm Normalizer) *Registry {
	return &Registry{norm: norm, seen: map[string]struct{}{}}
}

// Add normalizes raw and inserts it, reporting whether it was new.
func (r *Registry) Add(raw string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.add(raw)
}

func (r *Registry) add(raw string) bool {
	id := r.norm.Normalize(raw)
	if _, ok := r.seen[id]; ok {
		return false
	}
	r.seen[id] = struct{}{}
	r.order = append(r.order, id)
	return true
}

// AddBulk splits input on line breaks and adds each trimmed, non-empty line
// that is not itself a command token. It returns the number of identifiers
// that were actually new.
func (r *Registry) AddBulk(input string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	added := 0
	for _, line := range strings.Split(input, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "/") {
			continue
		}
		if r.add(line) {
			added++
		}
	}
	return added
}

func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = map[string]struct{}{}
	r.order = nil
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// List returns up to limit identifiers in insertion order (all if limit <= 0).
func (r *Registry) List(limit int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.order)
	if limit > 0 && limit < n {
		n = limit
	}
	return append([]string(nil), r.order[:n]...)
}

// Snapshot copies the full registry for a campaign's immutable recipient set.
func (r *Registry) Snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

// Replace swaps the registry contents with the given identifiers, assumed to
// be already normalized (used when loading persisted state).
func (r *Registry) Replace(ids []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = map[string]struct{}{}
	r.order = nil
	for _, id := range ids {
		if _, ok := r.seen[id]; ok {
			continue
		}
		r.seen[id] = struct{}{}
		r.order = append(r.order, id)
	}
}
