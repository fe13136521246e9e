package storage

import (
	"context"
	"sync"

	"github.com/radiusdt/vector-gateway/internal/models"
)

// InMemoryEventStore provides in-memory storage for click and conversion
// events. Used in development mode and tests.
type InMemoryEventStore struct {
	mu          sync.RWMutex
	clicks      map[string]*models.ClickEvent
	conversions []*models.ConversionEvent

	// Index for faster correlation lookups
	conversionsByClick map[string][]int // click_id -> indexes into conversions
}

// NewInMemoryEventStore creates a new in-memory event store.
func NewInMemoryEventStore() *InMemoryEventStore {
	return &InMemoryEventStore{
		clicks:             make(map[string]*models.ClickEvent),
		conversionsByClick: make(map[string][]int),
	}
}

func (s *InMemoryEventStore) SaveClick(ctx context.Context, click *models.ClickEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clicks[click.ClickID] = click
	return nil
}

func (s *InMemoryEventStore) GetClick(ctx context.Context, clickID string) (*models.ClickEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	click, ok := s.clicks[clickID]
	if !ok {
		return nil, nil
	}
	return click, nil
}

func (s *InMemoryEventStore) SaveConversion(ctx context.Context, conv *models.ConversionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversions = append(s.conversions, conv)
	if conv.ClickID != "" {
		s.conversionsByClick[conv.ClickID] = append(s.conversionsByClick[conv.ClickID], len(s.conversions)-1)
	}
	return nil
}

func (s *InMemoryEventStore) GetConversionsByClick(ctx context.Context, clickID string) ([]*models.ConversionEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idxs, ok := s.conversionsByClick[clickID]
	if !ok {
		return nil, nil
	}

	result := make([]*models.ConversionEvent, 0, len(idxs))
	for _, i := range idxs {
		result = append(result, s.conversions[i])
	}
	return result, nil
}

func (s *InMemoryEventStore) ListConversions(ctx context.Context, limit int) ([]*models.ConversionEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.conversions) {
		limit = len(s.conversions)
	}

	// Most recent first
	result := make([]*models.ConversionEvent, 0, limit)
	for i := len(s.conversions) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, s.conversions[i])
	}
	return result, nil
}
