package customers

import (
	"context"
	"sort"
	"sync"
)

// Repository defines the interface for customer storage
type Repository interface {
	List(ctx context.Context, filter ListFilter) ([]Customer, error)
	Get(ctx context.Context, id string) (*Customer, error)
}

// InMemoryRepository keeps customers in memory, used for local runs and tests.
type InMemoryRepository struct {
	mu        sync.RWMutex
	customers []Customer
}

// NewInMemoryRepository creates a repository seeded with the given customers.
func NewInMemoryRepository(seed ...Customer) *InMemoryRepository {
	r := &InMemoryRepository{}
	r.customers = append(r.customers, seed...)
	return r
}

// Upsert adds or replaces a customer by id.
func (r *InMemoryRepository) Upsert(c Customer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.customers {
		if r.customers[i].ID == c.ID {
			r.customers[i] = c
			return
		}
	}
	r.customers = append(r.customers, c)
}

// List returns customers ordered by total spent, highest first.
func (r *InMemoryRepository) List(ctx context.Context, filter ListFilter) ([]Customer, error) {
	filter = filter.normalized()

	r.mu.RLock()
	matched := make([]Customer, 0, len(r.customers))
	for _, c := range r.customers {
		if filter.Segment != "" && c.Segment != filter.Segment {
			continue
		}
		matched = append(matched, c)
	}
	r.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].TotalSpent > matched[j].TotalSpent
	})
	if filter.Offset >= len(matched) {
		return []Customer{}, nil
	}
	matched = matched[filter.Offset:]
	if len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

// Get retrieves a customer by id.
func (r *InMemoryRepository) Get(ctx context.Context, id string) (*Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.customers {
		if c.ID == id {
			found := c
			return &found, nil
		}
	}
	return nil, ErrCustomerNotFound
}
