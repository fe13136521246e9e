package storage

import (
	"context"
	"sync"

	"github.com/radiusdt/vector-gateway/internal/models"
)

// InMemoryStatsRepo implements StatsRepo with a mutex-guarded map. Used in
// development mode and tests; increments are atomic under the lock.
type InMemoryStatsRepo struct {
	mu    sync.Mutex
	stats map[string]map[string]models.VariantStats // rotator -> variant -> counters
}

// NewInMemoryStatsRepo creates a new in-memory stats repository.
func NewInMemoryStatsRepo() *InMemoryStatsRepo {
	return &InMemoryStatsRepo{
		stats: make(map[string]map[string]models.VariantStats),
	}
}

func (r *InMemoryStatsRepo) IncrClick(ctx context.Context, rotatorKey, variantID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.variant(rotatorKey, variantID)
	s.Clicks++
	r.stats[rotatorKey][variantID] = s
	return nil
}

func (r *InMemoryStatsRepo) IncrPostback(ctx context.Context, rotatorKey, variantID string, approved bool, payout float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.variant(rotatorKey, variantID)
	s.Actions++
	if approved {
		s.Approved++
		s.RevenueApproved += payout
	}
	r.stats[rotatorKey][variantID] = s
	return nil
}

func (r *InMemoryStatsRepo) Stats(ctx context.Context, rotatorKey string) (map[string]models.VariantStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]models.VariantStats, len(r.stats[rotatorKey]))
	for id, s := range r.stats[rotatorKey] {
		out[id] = s
	}
	return out, nil
}

func (r *InMemoryStatsRepo) variant(rotatorKey, variantID string) models.VariantStats {
	if r.stats[rotatorKey] == nil {
		r.stats[rotatorKey] = make(map[string]models.VariantStats)
	}
	return r.stats[rotatorKey][variantID]
}
