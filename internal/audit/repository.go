package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for audit record operations.
type Repository interface {
	// Append records an entry to the audit log.
	// Returns the created record.
	Append(ctx context.Context, entry Entry) (*Record, error)

	// QueryByResource retrieves records for a specific resource, newest first.
	// Limit specifies the maximum number of entries to return (0 = no limit).
	QueryByResource(ctx context.Context, resourceKind, resourceID string, limit int) ([]*Record, error)

	// QueryByUser retrieves records for a specific user, newest first.
	// Limit specifies the maximum number of entries to return (0 = no limit).
	QueryByUser(ctx context.Context, userID string, limit int) ([]*Record, error)
}

// InMemoryRepository is an in-memory implementation of Repository.
// Thread-safe via RWMutex.
type InMemoryRepository struct {
	mu      sync.RWMutex
	records map[string]*Record
	// Maintain insertion order for queries
	order []string
}

// NewInMemoryRepository creates a new in-memory audit repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		records: make(map[string]*Record),
		order:   make([]string, 0),
	}
}

// Append records an entry to the audit log.
func (r *InMemoryRepository) Append(ctx context.Context, entry Entry) (*Record, error) {
	record := &Record{
		ID:           uuid.New().String(),
		UserID:       entry.UserID,
		Action:       entry.Action,
		ResourceKind: entry.ResourceKind,
		ResourceID:   entry.ResourceID,
		Details:      copyDetails(entry.Details),
		OccurredAt:   time.Now().UTC(),
	}

	r.mu.Lock()
	r.records[record.ID] = record
	r.order = append(r.order, record.ID)
	r.mu.Unlock()

	copied := cloneRecord(record)
	return copied, nil
}

// QueryByResource retrieves records for a specific resource, newest first.
func (r *InMemoryRepository) QueryByResource(ctx context.Context, resourceKind, resourceID string, limit int) ([]*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []*Record
	for i := len(r.order) - 1; i >= 0; i-- {
		record := r.records[r.order[i]]
		if record.ResourceKind == resourceKind && record.ResourceID == resourceID {
			results = append(results, cloneRecord(record))
			if limit > 0 && len(results) >= limit {
				break
			}
		}
	}

	return results, nil
}

// QueryByUser retrieves records for a specific user, newest first.
func (r *InMemoryRepository) QueryByUser(ctx context.Context, userID string, limit int) ([]*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []*Record
	for i := len(r.order) - 1; i >= 0; i-- {
		record := r.records[r.order[i]]
		if record.UserID == userID {
			results = append(results, cloneRecord(record))
			if limit > 0 && len(results) >= limit {
				break
			}
		}
	}

	return results, nil
}

// cloneRecord returns a deep copy to prevent external modification.
func cloneRecord(record *Record) *Record {
	copied := *record
	copied.Details = copyDetails(record.Details)
	return &copied
}

func copyDetails(details map[string]string) map[string]string {
	if details == nil {
		return nil
	}
	copied := make(map[string]string, len(details))
	for k, v := range details {
		copied[k] = v
	}
	return copied
}
