// Package tierstate tracks per-record migration state. The journal is
// transient bookkeeping for operators and tests; correctness of the
// migration protocol never depends on it, only on the write-confirm-delete
// ordering against the stores themselves.
package tierstate

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/smallbiznis/coldline/internal/clock"
	"go.uber.org/fx"
)

// State of a record with respect to migration.
type State string

const (
	// StateResident: only in the hot tier.
	StateResident State = "RESIDENT"
	// StateCopying: copy to the cold tier in progress, not yet confirmed.
	StateCopying State = "COPYING"
	// StateArchived: confirmed in the cold tier; hot delete pending or done.
	StateArchived State = "ARCHIVED"
	// StateRestored: rehydrated into the hot tier, cold copy retained.
	StateRestored State = "RESTORED"
)

var ErrIllegalTransition = errors.New("illegal_state_transition")

type Entry struct {
	ID        string    `json:"id"`
	State     State     `json:"state"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Journal holds the most recent state per record id, capped in size.
type Journal struct {
	mu       sync.Mutex
	entries  map[string]Entry
	capacity int
	clock    clock.Clock
}

const defaultCapacity = 100_000

func NewJournal(clk clock.Clock) *Journal {
	return &Journal{
		entries:  make(map[string]Entry),
		capacity: defaultCapacity,
		clock:    clk,
	}
}

var Module = fx.Module("tierstate",
	fx.Provide(NewJournal),
)

// Observe records a transition. Unknown records may enter at any state;
// known records must follow the migration protocol.
func (j *Journal) Observe(id string, state State) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	current, known := j.entries[id]
	if known && !legal(current.State, state) {
		return ErrIllegalTransition
	}

	if !known && len(j.entries) >= j.capacity {
		j.evictOldestLocked()
	}
	j.entries[id] = Entry{ID: id, State: state, UpdatedAt: j.clock.Now()}
	return nil
}

func (j *Journal) Get(id string) (Entry, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	entry, ok := j.entries[id]
	return entry, ok
}

// Snapshot returns all entries ordered by most recent first.
func (j *Journal) Snapshot() []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Entry, 0, len(j.entries))
	for _, entry := range j.entries {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, k int) bool {
		return out[i].UpdatedAt.After(out[k].UpdatedAt)
	})
	return out
}

func legal(from, to State) bool {
	if from == to {
		return true
	}
	switch from {
	case StateResident:
		return to == StateCopying
	case StateCopying:
		// Archived on confirmed copy; back to Resident when the copy or
		// its confirmation failed and the record stays hot.
		return to == StateArchived || to == StateResident
	case StateArchived:
		return to == StateRestored || to == StateCopying
	case StateRestored:
		// A restored record ages out again and re-enters the pipeline.
		return to == StateCopying || to == StateResident
	default:
		return true
	}
}

func (j *Journal) evictOldestLocked() {
	var oldestID string
	var oldest time.Time
	first := true
	for id, entry := range j.entries {
		if first || entry.UpdatedAt.Before(oldest) {
			oldestID, oldest = id, entry.UpdatedAt
			first = false
		}
	}
	if oldestID != "" {
		delete(j.entries, oldestID)
	}
}
