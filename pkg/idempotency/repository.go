package idempotency

import (
	"context"
	"sync"
	"time"
)

// Repository stores idempotency records. Acquire must be atomic per record ID.
type Repository interface {
	// Acquire locks rec.ID for a new request. It returns the stored record and
	// true when the caller now owns the key, or the existing record and false
	// when the key is completed or locked by a request younger than lockTimeout.
	Acquire(ctx context.Context, rec *Record, lockTimeout time.Duration) (*Record, bool, error)

	// Complete stores the response and clears the lock
	Complete(ctx context.Context, id string, statusCode int, contentType string, body []byte, completedAt time.Time) error

	// Release clears the lock without storing a response
	Release(ctx context.Context, id string) error
}

// MemoryRepository is a process-local Repository
type MemoryRepository struct {
	mu      sync.Mutex
	records map[string]*Record
}

// NewMemoryRepository creates an empty MemoryRepository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]*Record)}
}

// Acquire implements Repository
func (r *MemoryRepository) Acquire(_ context.Context, rec *Record, lockTimeout time.Duration) (*Record, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := rec.CreatedAt
	if existing, ok := r.records[rec.ID]; ok && now.Before(existing.ExpiresAt) {
		if existing.IsCompleted() || existing.IsLocked(now, lockTimeout) {
			cp := *existing
			return &cp, false, nil
		}
	}

	stored := *rec
	stored.LockedAt = &now
	stored.CompletedAt = nil
	r.records[rec.ID] = &stored

	cp := stored
	return &cp, true, nil
}

// Complete implements Repository
func (r *MemoryRepository) Complete(_ context.Context, id string, statusCode int, contentType string, body []byte, completedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return nil
	}
	rec.StatusCode = statusCode
	rec.ContentType = contentType
	rec.Body = append([]byte(nil), body...)
	rec.CompletedAt = &completedAt
	rec.LockedAt = nil
	return nil
}

// Release implements Repository
func (r *MemoryRepository) Release(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.records[id]; ok && !rec.IsCompleted() {
		rec.LockedAt = nil
	}
	return nil
}
