// Package store holds the in-memory response table shared by all participants.
package store

import (
	"context"
	"sort"
	"sync"

	"pairsurvey/internal/models"
)

// Persister receives a full snapshot of the table after every mutation.
type Persister interface {
	Save(ctx context.Context, records []models.ResponseRecord) error
}

type key struct {
	participantID string
	pairID        int
}

type entry struct {
	seq    uint64
	record models.ResponseRecord
}

// ResponseStore keeps at most one record per (participant, pair). Iteration order is
// the order records were last written, which matches the filter-then-append layout
// of the backup file.
type ResponseStore struct {
	mu        sync.Mutex
	records   map[key]entry
	seq       uint64
	persister Persister

	// saveMu serializes persister calls outside mu; saved is the seq of the
	// newest snapshot handed to the persister.
	saveMu sync.Mutex
	saved  uint64
}

// New creates a store seeded with records, typically the loaded backup. Later rows
// win over earlier rows for the same key.
func New(seed []models.ResponseRecord, persister Persister) *ResponseStore {
	s := &ResponseStore{
		records:   make(map[key]entry, len(seed)),
		persister: persister,
	}
	for _, r := range seed {
		s.put(r)
	}
	return s
}

func (s *ResponseStore) put(r models.ResponseRecord) {
	s.seq++
	s.records[key{r.ParticipantID, r.PairID}] = entry{seq: s.seq, record: r}
}

// Upsert replaces any record for the same (participant, pair) and persists the whole
// table. The record stays in memory when persisting fails. Readers are not held up
// by a slow persister, and a snapshot older than one already saved is dropped.
func (s *ResponseStore) Upsert(ctx context.Context, r models.ResponseRecord) error {
	s.mu.Lock()
	s.put(r)
	gen := s.seq
	var snap []models.ResponseRecord
	if s.persister != nil {
		snap = s.snapshot()
	}
	s.mu.Unlock()

	if s.persister == nil {
		return nil
	}

	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if gen <= s.saved {
		return nil
	}
	s.saved = gen
	return s.persister.Save(ctx, snap)
}

// Get returns the record for (participantID, pairID).
func (s *ResponseStore) Get(participantID string, pairID int) (models.ResponseRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.records[key{participantID, pairID}]
	return e.record, ok
}

// Has reports whether participantID already answered pairID.
func (s *ResponseStore) Has(participantID string, pairID int) bool {
	_, ok := s.Get(participantID, pairID)
	return ok
}

// All returns every record in write order.
func (s *ResponseStore) All() []models.ResponseRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// ForParticipant returns a participant's records ordered by pair id.
func (s *ResponseStore) ForParticipant(participantID string) []models.ResponseRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.ResponseRecord
	for k, e := range s.records {
		if k.participantID == participantID {
			out = append(out, e.record)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PairID < out[j].PairID })
	return out
}

// Latest returns the most recently written record of a participant.
func (s *ResponseStore) Latest(participantID string) (models.ResponseRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		best  entry
		found bool
	)
	for k, e := range s.records {
		if k.participantID == participantID && (!found || e.seq > best.seq) {
			best, found = e, true
		}
	}
	return best.record, found
}

// Participants lists distinct participant ids in order of first appearance.
func (s *ResponseStore) Participants() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	first := make(map[string]uint64)
	for k, e := range s.records {
		if seq, ok := first[k.participantID]; !ok || e.seq < seq {
			first[k.participantID] = e.seq
		}
	}
	ids := make([]string, 0, len(first))
	for id := range first {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return first[ids[i]] < first[ids[j]] })
	return ids
}

// Len returns the number of records.
func (s *ResponseStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *ResponseStore) snapshot() []models.ResponseRecord {
	entries := make([]entry, 0, len(s.records))
	for _, e := range s.records {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	out := make([]models.ResponseRecord, len(entries))
	for i, e := range entries {
		out[i] = e.record
	}
	return out
}
