package sanctions

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Entity is one sanctioned or watch-listed party
type Entity struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Programs    []string  `json:"programs,omitempty"`
	Country     string    `json:"country,omitempty"`
	LastUpdated time.Time `json:"last_updated"`
}

// Valid reports whether the entity carries the fields scoring needs
func (e Entity) Valid() bool {
	return strings.TrimSpace(e.ID) != "" && strings.TrimSpace(e.Name) != ""
}

// Snapshot is the complete registry at one point in time. A new snapshot
// replaces the previous one wholesale; entities are never merged across
// snapshots.
type Snapshot struct {
	ID        uuid.UUID `json:"id"`
	FetchedAt time.Time `json:"fetched_at"`
	Source    string    `json:"source,omitempty"`
	Entities  []Entity  `json:"entities"`
}

// NewSnapshot builds a snapshot from fetched entities, dropping entries
// without an id or name. The entity slice is copied.
func NewSnapshot(source string, fetchedAt time.Time, entities []Entity) *Snapshot {
	kept := make([]Entity, 0, len(entities))
	for _, e := range entities {
		if !e.Valid() {
			continue
		}
		e.Programs = append([]string(nil), e.Programs...)
		kept = append(kept, e)
	}
	return &Snapshot{
		ID:        uuid.New(),
		FetchedAt: fetchedAt.UTC(),
		Source:    source,
		Entities:  kept,
	}
}

// Len returns the number of entities; nil-safe
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Entities)
}

// Empty reports whether there is nothing to score against
func (s *Snapshot) Empty() bool {
	return s.Len() == 0
}
