package flow

import (
	"sort"
	"time"

	"github.com/proxytap/core/internal/store"
)

// Store is the Flow Store: listAll, getByID, save (upsert with timestamp
// update), delete, and toggle.
type Store struct {
	docs *store.Documents[FlowDefinition]
}

// NewStore wires a document store rooted at dir.
func NewStore(dir string) (*Store, error) {
	docs, err := store.NewDocuments[FlowDefinition](dir)
	if err != nil {
		return nil, err
	}
	return &Store{docs: docs}, nil
}

// ListAll returns every flow, malformed documents skipped.
func (s *Store) ListAll() ([]FlowDefinition, []error) { return s.docs.ListAll() }

// GetByID looks up a single flow.
func (s *Store) GetByID(id string) (FlowDefinition, bool, error) { return s.docs.GetByID(id) }

// Save validates and upserts f, stamping UpdatedAt (and CreatedAt on first
// save).
func (s *Store) Save(f FlowDefinition) error {
	if err := f.Validate(); err != nil {
		return err
	}
	now := time.Now()
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}
	f.UpdatedAt = now
	return s.docs.Save(f)
}

// Delete removes a flow.
func (s *Store) Delete(id string) error { return s.docs.Delete(id) }

// Toggle sets a flow's Enabled flag to enabled; an unknown id is a no-op.
func (s *Store) Toggle(id string, enabled bool) error {
	f, ok, err := s.docs.GetByID(id)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	f.Enabled = enabled
	f.UpdatedAt = time.Now()
	return s.docs.Save(f)
}

// EnabledSortedByID returns every enabled flow ordered by ascending ID,
// resolving the open question of flow iteration order for "first Entry
// match wins": this implementation stabilizes on flow ID.
func (s *Store) EnabledSortedByID() ([]FlowDefinition, []error) {
	all, errs := s.docs.ListAll()
	out := make([]FlowDefinition, 0, len(all))
	for _, f := range all {
		if f.Enabled {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, errs
}
