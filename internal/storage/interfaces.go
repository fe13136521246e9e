package storage

import (
	"context"

	"github.com/radiusdt/vector-gateway/internal/models"
)

// =============================================
// EVENT STORE
// =============================================

// EventStore is the durable append-only record of click and conversion
// events. GetClick returns (nil, nil) when the click is unknown; a missing
// click is a degraded state, not an error.
type EventStore interface {
	SaveClick(ctx context.Context, click *models.ClickEvent) error
	GetClick(ctx context.Context, clickID string) (*models.ClickEvent, error)

	SaveConversion(ctx context.Context, conv *models.ConversionEvent) error
	GetConversionsByClick(ctx context.Context, clickID string) ([]*models.ConversionEvent, error)
	ListConversions(ctx context.Context, limit int) ([]*models.ConversionEvent, error)
}

// =============================================
// STATS REPOSITORY
// =============================================

// StatsRepo stores per-(rotator, variant) counters. Implementations must
// make each increment atomic so concurrent clicks and postbacks cannot
// interleave read-modify-write cycles.
type StatsRepo interface {
	IncrClick(ctx context.Context, rotatorKey, variantID string) error
	IncrPostback(ctx context.Context, rotatorKey, variantID string, approved bool, payout float64) error
	Stats(ctx context.Context, rotatorKey string) (map[string]models.VariantStats, error)
}
