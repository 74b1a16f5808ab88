package calls

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines call record storage.
type Repository interface {
	// FindByCallSID returns the record for the provider session id or
	// ErrCallNotFound.
	FindByCallSID(ctx context.Context, callSID string) (*CallRecord, error)
	// Create inserts a new record.
	Create(ctx context.Context, record *CallRecord) (*CallRecord, error)
	// Save persists changes to an existing record.
	Save(ctx context.Context, record *CallRecord) error
}

// InMemoryRepository is a map-backed Repository for tests and local runs.
type InMemoryRepository struct {
	mu      sync.RWMutex
	records map[string]*CallRecord
}

// NewInMemoryRepository creates an empty in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{records: make(map[string]*CallRecord)}
}

// FindByCallSID returns a copy of the stored record.
func (r *InMemoryRepository) FindByCallSID(_ context.Context, callSID string) (*CallRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[callSID]
	if !ok {
		return nil, ErrCallNotFound
	}
	copied := *record
	return &copied, nil
}

// Create stores a new record keyed by its call SID.
func (r *InMemoryRepository) Create(_ context.Context, record *CallRecord) (*CallRecord, error) {
	if record.CallSID == "" {
		return nil, ErrMissingCallSID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *record
	if copied.ID == "" {
		copied.ID = uuid.NewString()
	}
	if copied.StartedAt.IsZero() {
		copied.StartedAt = time.Now().UTC()
	}
	if copied.Status == "" {
		copied.Status = StatusInProgress
	}
	r.records[copied.CallSID] = &copied
	result := copied
	return &result, nil
}

// Save overwrites the stored record.
func (r *InMemoryRepository) Save(_ context.Context, record *CallRecord) error {
	if record.CallSID == "" {
		return ErrMissingCallSID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[record.CallSID]; !ok {
		return ErrCallNotFound
	}
	copied := *record
	r.records[record.CallSID] = &copied
	return nil
}

var _ Repository = (*InMemoryRepository)(nil)
