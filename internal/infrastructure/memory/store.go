// Package memory holds in-process repositories used for local runs and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dubox-platform/production-service/internal/domain"
	"github.com/dubox-platform/production-service/pkg/outbox"
)

// Store keeps every collection in maps guarded by one mutex. Records are
// copied on the way in and out so callers never share state with the store.
type Store struct {
	mu       sync.Mutex
	txMu     sync.Mutex
	boxes    map[string]*domain.Box
	progress map[string]*domain.ProgressRecord
	wirs     map[string]*domain.WIRHistory
	outbox   map[string]*outbox.OutboxEvent
	order    []string
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		boxes:    make(map[string]*domain.Box),
		progress: make(map[string]*domain.ProgressRecord),
		wirs:     make(map[string]*domain.WIRHistory),
		outbox:   make(map[string]*outbox.OutboxEvent),
	}
}

// Boxes returns the box repository
func (s *Store) Boxes() *BoxRepository { return &BoxRepository{s: s} }

// Progress returns the progress repository
func (s *Store) Progress() *ProgressRepository { return &ProgressRepository{s: s} }

// WIRs returns the inspection history repository
func (s *Store) WIRs() *WIRRepository { return &WIRRepository{s: s} }

// Outbox returns the outbox repository
func (s *Store) Outbox() *OutboxRepository { return &OutboxRepository{s: s} }

// UnitOfWork returns a unit of work over the whole store
func (s *Store) UnitOfWork() *UnitOfWork { return &UnitOfWork{s: s} }

type snapshot struct {
	boxes    map[string]*domain.Box
	progress map[string]*domain.ProgressRecord
	wirs     map[string]*domain.WIRHistory
	outbox   map[string]*outbox.OutboxEvent
	order    []string
}

// Stored values are never mutated in place, so copying the maps is enough.
func (s *Store) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := snapshot{
		boxes:    make(map[string]*domain.Box, len(s.boxes)),
		progress: make(map[string]*domain.ProgressRecord, len(s.progress)),
		wirs:     make(map[string]*domain.WIRHistory, len(s.wirs)),
		outbox:   make(map[string]*outbox.OutboxEvent, len(s.outbox)),
		order:    append([]string(nil), s.order...),
	}
	for k, v := range s.boxes {
		snap.boxes[k] = v
	}
	for k, v := range s.progress {
		snap.progress[k] = v
	}
	for k, v := range s.wirs {
		snap.wirs[k] = v
	}
	for k, v := range s.outbox {
		snap.outbox[k] = v
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.boxes = snap.boxes
	s.progress = snap.progress
	s.wirs = snap.wirs
	s.outbox = snap.outbox
	s.order = snap.order
}

// UnitOfWork runs functions against the store and rolls every change back
// when the function fails. Units of work run one at a time.
type UnitOfWork struct {
	s *Store
}

// Do implements domain.UnitOfWork
func (u *UnitOfWork) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	u.s.txMu.Lock()
	defer u.s.txMu.Unlock()

	snap := u.s.snapshot()
	if err := fn(ctx); err != nil {
		u.s.restore(snap)
		return err
	}
	return nil
}

// BoxRepository implements domain.BoxRepository
type BoxRepository struct {
	s *Store
}

// Create inserts a box; IDs must be unique
func (r *BoxRepository) Create(ctx context.Context, box *domain.Box) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.boxes[box.ID]; exists {
		return fmt.Errorf("box %s already exists", box.ID)
	}
	r.s.boxes[box.ID] = box.Clone()
	return nil
}

// Update replaces a stored box
func (r *BoxRepository) Update(ctx context.Context, box *domain.Box) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.boxes[box.ID]; !exists {
		return domain.ErrBoxNotFound
	}
	r.s.boxes[box.ID] = box.Clone()
	return nil
}

// FindByID returns a copy of the box or nil
func (r *BoxRepository) FindByID(ctx context.Context, boxID string) (*domain.Box, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if b, ok := r.s.boxes[boxID]; ok {
		return b.Clone(), nil
	}
	return nil, nil
}

// ProgressRepository implements domain.ProgressRepository
type ProgressRepository struct {
	s *Store
}

// Save stores the record when its version matches the stored one
func (r *ProgressRepository) Save(ctx context.Context, record *domain.ProgressRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var stored int64
	if existing, ok := r.s.progress[record.BoxID]; ok {
		stored = existing.Version
	}
	if stored != record.Version {
		return domain.ErrConcurrentUpdate
	}

	record.Version++
	r.s.progress[record.BoxID] = record.Clone()
	return nil
}

// FindByBoxID returns a copy of the record or nil
func (r *ProgressRepository) FindByBoxID(ctx context.Context, boxID string) (*domain.ProgressRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if p, ok := r.s.progress[boxID]; ok {
		return p.Clone(), nil
	}
	return nil, nil
}

// WIRRepository implements domain.WIRRepository
type WIRRepository struct {
	s *Store
}

// Save stores the history when its version matches the stored one
func (r *WIRRepository) Save(ctx context.Context, history *domain.WIRHistory) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var stored int64
	if existing, ok := r.s.wirs[history.ID]; ok {
		stored = existing.Version
	}
	if stored != history.Version {
		return domain.ErrConcurrentUpdate
	}

	history.Version++
	r.s.wirs[history.ID] = history.Clone()
	return nil
}

// FindByBoxAndActivity returns a copy of the history or nil
func (r *WIRRepository) FindByBoxAndActivity(ctx context.Context, boxID, activityCode string) (*domain.WIRHistory, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if h, ok := r.s.wirs[domain.WIRHistoryID(boxID, activityCode)]; ok {
		return h.Clone(), nil
	}
	return nil, nil
}

// FindByBoxID returns every history of a box ordered by activity code
func (r *WIRRepository) FindByBoxID(ctx context.Context, boxID string) ([]*domain.WIRHistory, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*domain.WIRHistory
	for _, h := range r.s.wirs {
		if h.BoxID == boxID {
			out = append(out, h.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ActivityCode < out[j].ActivityCode })
	return out, nil
}

// FindPending returns histories whose latest attempt is open or submitted
func (r *WIRRepository) FindPending(ctx context.Context) ([]*domain.WIRHistory, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*domain.WIRHistory
	for _, h := range r.s.wirs {
		if _, ok := h.Pending(); ok {
			out = append(out, h.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// OutboxRepository implements outbox.Repository
type OutboxRepository struct {
	s *Store
}

// SaveAll appends events in order
func (r *OutboxRepository) SaveAll(ctx context.Context, events []*outbox.OutboxEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, e := range events {
		cp := *e
		r.s.outbox[e.ID] = &cp
		r.s.order = append(r.s.order, e.ID)
	}
	return nil
}

// FindUnpublished returns unpublished events with retries left, oldest first
func (r *OutboxRepository) FindUnpublished(ctx context.Context, limit int) ([]*outbox.OutboxEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*outbox.OutboxEvent
	for _, id := range r.s.order {
		e := r.s.outbox[id]
		if !e.ShouldRetry() {
			continue
		}
		cp := *e
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// MarkPublished marks an event as published
func (r *OutboxRepository) MarkPublished(ctx context.Context, eventID string) error {
	return r.update(eventID, func(e *outbox.OutboxEvent) {
		now := time.Now().UTC()
		e.PublishedAt = &now
	})
}

// IncrementRetry records a failed publish attempt
func (r *OutboxRepository) IncrementRetry(ctx context.Context, eventID string, errorMsg string) error {
	return r.update(eventID, func(e *outbox.OutboxEvent) {
		e.RetryCount++
		e.LastError = errorMsg
	})
}

func (r *OutboxRepository) update(eventID string, fn func(*outbox.OutboxEvent)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	e, ok := r.s.outbox[eventID]
	if !ok {
		return fmt.Errorf("outbox event %s not found", eventID)
	}
	cp := *e
	fn(&cp)
	r.s.outbox[eventID] = &cp
	return nil
}

// FindByAggregateID returns every event of one box, oldest first
func (r *OutboxRepository) FindByAggregateID(ctx context.Context, aggregateID string) ([]*outbox.OutboxEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*outbox.OutboxEvent
	for _, id := range r.s.order {
		if e := r.s.outbox[id]; e.AggregateID == aggregateID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}
