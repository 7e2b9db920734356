// Package memstore provides an in-memory implementation of incident.Store.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/linnemanlabs/gatekeeper/internal/incident"
)

// Store holds incidents in memory. Suitable for dev/testing. It enforces
// the same (signature, version) uniqueness a relational backend would.
type Store struct {
	mu    sync.RWMutex
	byID  map[string]*incident.Incident
	bySig map[string][]*incident.Incident // ascending version order
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{
		byID:  make(map[string]*incident.Incident),
		bySig: make(map[string][]*incident.Incident),
	}
}

// FindLatestBySignature returns a copy of the highest-version incident
// for the signature.
func (s *Store) FindLatestBySignature(_ context.Context, signature string) (*incident.Incident, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions := s.bySig[signature]
	if len(versions) == 0 {
		return nil, false, nil
	}
	cp := *versions[len(versions)-1]
	return &cp, true, nil
}

// Get retrieves an incident by id. Returns a copy.
func (s *Store) Get(_ context.Context, id string) (*incident.Incident, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inc, ok := s.byID[id]
	if !ok {
		return nil, false, nil
	}
	cp := *inc
	return &cp, true, nil
}

// Create inserts a new incident version, rejecting duplicates on
// (signature, version) with incident.ErrVersionConflict.
func (s *Store) Create(_ context.Context, inc *incident.Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.bySig[inc.Signature] {
		if existing.Version == inc.Version {
			return incident.ErrVersionConflict
		}
	}

	cp := *inc
	s.byID[cp.ID] = &cp
	versions := append(s.bySig[cp.Signature], &cp)
	sort.Slice(versions, func(i, j int) bool { return versions[i].Version < versions[j].Version })
	s.bySig[cp.Signature] = versions
	return nil
}

// Update rewrites an existing incident in place.
func (s *Store) Update(_ context.Context, inc *incident.Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.byID[inc.ID]
	if !ok {
		return incident.ErrNotFound
	}

	cp := *inc
	s.byID[cp.ID] = &cp

	versions := s.bySig[old.Signature]
	for i, v := range versions {
		if v.ID == cp.ID {
			versions[i] = &cp
			break
		}
	}
	return nil
}

// SetEnrichment merges AI analysis fields only.
func (s *Store) SetEnrichment(_ context.Context, id string, a *incident.Analysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inc, ok := s.byID[id]
	if !ok {
		return incident.ErrNotFound
	}

	inc.AISummary = a.Summary
	inc.AISuggestedFix = a.SuggestedFix
	inc.AILocation = a.Location
	return nil
}

// List returns copies of all incidents ordered by last seen, most recent
// first.
func (s *Store) List(_ context.Context) ([]*incident.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*incident.Incident, 0, len(s.byID))
	for _, inc := range s.byID {
		cp := *inc
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastSeen.After(out[j].LastSeen) })
	return out, nil
}

// DeleteAll wipes the store.
func (s *Store) DeleteAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byID = make(map[string]*incident.Incident)
	s.bySig = make(map[string][]*incident.Incident)
	return nil
}
