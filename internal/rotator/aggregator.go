package rotator

import (
	"context"

	"github.com/radiusdt/vector-gateway/internal/models"
	"go.uber.org/zap"
)

// StatsRepo is the durable counter store behind the aggregator. Increments
// must be atomic per counter so concurrent clicks and postbacks cannot lose
// updates.
type StatsRepo interface {
	IncrClick(ctx context.Context, rotatorKey, variantID string) error
	IncrPostback(ctx context.Context, rotatorKey, variantID string, approved bool, payout float64) error
	Stats(ctx context.Context, rotatorKey string) (map[string]models.VariantStats, error)
}

// VariantChecker reports whether a (rotator, variant) pair is configured.
// *catalog.Catalog satisfies it.
type VariantChecker interface {
	HasVariant(rotatorKey, variantID string) bool
}

// Aggregator maintains per-(rotator, variant) performance counters.
type Aggregator struct {
	repo    StatsRepo
	checker VariantChecker
	logger  *zap.Logger
}

// NewAggregator creates an aggregator over the given stats repo.
func NewAggregator(repo StatsRepo, checker VariantChecker, logger *zap.Logger) *Aggregator {
	return &Aggregator{repo: repo, checker: checker, logger: logger}
}

// RecordClick increments the variant's click counter. One call per routed
// click, exactly once; not idempotent.
func (a *Aggregator) RecordClick(ctx context.Context, rotatorKey, variantID string) error {
	return a.repo.IncrClick(ctx, rotatorKey, variantID)
}

// RecordPostback increments the variant's action counter and, for approved
// conversions, the approved counter and approved revenue. A postback whose
// rotator or variant is unknown is skipped silently: conversions may arrive
// for clicks that never passed through a rotator.
func (a *Aggregator) RecordPostback(ctx context.Context, rotatorKey, variantID, status string, payout float64) error {
	if rotatorKey == "" || variantID == "" {
		return nil
	}
	if a.checker != nil && !a.checker.HasVariant(rotatorKey, variantID) {
		a.logger.Debug("postback for unconfigured rotator variant, skipping",
			zap.String("rotator", rotatorKey),
			zap.String("variant", variantID),
		)
		return nil
	}
	approved := status == models.StatusApproved
	return a.repo.IncrPostback(ctx, rotatorKey, variantID, approved, payout)
}

// Stats returns the current per-variant counters for a rotator.
func (a *Aggregator) Stats(ctx context.Context, rotatorKey string) (map[string]models.VariantStats, error) {
	return a.repo.Stats(ctx, rotatorKey)
}
