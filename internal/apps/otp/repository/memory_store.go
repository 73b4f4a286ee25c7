package repository

import (
	"context"
	"sync"
	"time"

	"bell-backend/internal/apps/otp/models"

	"github.com/google/uuid"
)

// memoryStore keeps records in process memory. It is only correct for a single instance.
type memoryStore struct {
	mu      sync.Mutex
	records map[string]models.OTPRecord
}

// NewMemoryStore creates an in-process Store
func NewMemoryStore() Store {
	return &memoryStore{records: make(map[string]models.OTPRecord)}
}

func (s *memoryStore) Put(_ context.Context, rec *models.OTPRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Destination] = *rec
	return nil
}

func (s *memoryStore) Get(_ context.Context, destination string) (*models.OTPRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[destination]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (s *memoryStore) Remove(_ context.Context, destination string, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[destination]
	if !ok || rec.ID != id {
		return false, nil
	}
	delete(s.records, destination)
	return true, nil
}

func (s *memoryStore) IncrementAttempts(_ context.Context, destination string, id uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[destination]
	if !ok || rec.ID != id {
		return 0, ErrNotFound
	}

	rec.Attempts++
	if rec.Attempts >= rec.MaxAttempts {
		delete(s.records, destination)
		return rec.Attempts, nil
	}
	rec.UpdatedAt = time.Now()
	s.records[destination] = rec
	return rec.Attempts, nil
}

func (s *memoryStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for dest, rec := range s.records {
		if rec.IsExpired(now) {
			delete(s.records, dest)
			n++
		}
	}
	return n, nil
}
