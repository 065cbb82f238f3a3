package memory

import (
	"context"
	"sync"

	"github.com/aidecisionlog/server/internal/decisionlog/store"
)

// JournalStore is an in-memory append-only submission journal.
// It is intended for use in tests and dev environments.
type JournalStore struct {
	mu      sync.Mutex
	records []store.SubmissionRecord
}

func NewJournalStore() *JournalStore {
	return &JournalStore{}
}

func (s *JournalStore) RecordSubmission(_ context.Context, rec store.SubmissionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *JournalStore) ListSubmissions(_ context.Context, limit int) ([]store.SubmissionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.records)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]store.SubmissionRecord, 0, n)
	for i := len(s.records) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.records[i])
	}
	return out, nil
}

// Records returns a copy of all records in insertion order.  Test-only helper.
func (s *JournalStore) Records() []store.SubmissionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.SubmissionRecord, len(s.records))
	copy(out, s.records)
	return out
}
