package tracking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/radiusdt/vector-gateway/internal/catalog"
	"github.com/radiusdt/vector-gateway/internal/deeplink"
	"github.com/radiusdt/vector-gateway/internal/metrics"
	"github.com/radiusdt/vector-gateway/internal/models"
	"github.com/radiusdt/vector-gateway/internal/rotator"
	"go.uber.org/zap"
)

// ErrTargetRequired is returned when an offer demands a target URL and the
// click request carries none.
var ErrTargetRequired = errors.New("target is required for this offer")

// ClickStore is the event store slice the tracking service needs.
type ClickStore interface {
	SaveClick(ctx context.Context, click *models.ClickEvent) error
}

// GeoDetector resolves an IP to a country code. May be nil.
type GeoDetector interface {
	Country(ip string) string
}

// Service handles click intake: rotator resolution, variant selection,
// deep-link construction and click persistence.
type Service struct {
	catalog    *catalog.Catalog
	selector   *rotator.Selector
	aggregator *rotator.Aggregator
	clickStore ClickStore
	geoDetect  GeoDetector
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewService creates a new tracking service.
func NewService(
	cat *catalog.Catalog,
	selector *rotator.Selector,
	aggregator *rotator.Aggregator,
	clickStore ClickStore,
	geoDetect GeoDetector,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Service {
	return &Service{
		catalog:    cat,
		selector:   selector,
		aggregator: aggregator,
		clickStore: clickStore,
		geoDetect:  geoDetect,
		metrics:    m,
		logger:     logger,
	}
}

// ClickParams holds parameters for click registration.
type ClickParams struct {
	OfferID   string
	Target    string
	IP        string
	UserAgent string
}

// ClickResult holds the result of click registration.
type ClickResult struct {
	ClickID    string
	RedirectTo string
}

// RegisterClick routes one inbound click. When OfferID names a rotator, the
// rotator's offer and the selected variant's target are substituted
// transparently and the click is recorded against that variant.
func (s *Service) RegisterClick(ctx context.Context, params *ClickParams) (*ClickResult, error) {
	offerID := params.OfferID
	target := params.Target

	var meta *models.RotatorMeta
	if s.catalog.HasRotator(offerID) {
		rot, err := s.catalog.RotatorByKey(offerID)
		if err != nil {
			return nil, err
		}

		stats, err := s.aggregator.Stats(ctx, rot.Key)
		if err != nil {
			return nil, fmt.Errorf("failed to load rotator stats: %w", err)
		}

		variant, phase, err := s.selector.Select(rot.Variants, stats)
		if err != nil {
			return nil, err
		}
		if s.metrics != nil {
			s.metrics.RotatorSelections.WithLabelValues(rot.Key, variant.ID, phase).Inc()
		}

		offerID = rot.OfferID
		target = variant.Target
		meta = &models.RotatorMeta{RotatorKey: rot.Key, VariantID: variant.ID}

		if err := s.aggregator.RecordClick(ctx, rot.Key, variant.ID); err != nil {
			return nil, fmt.Errorf("failed to record rotator click: %w", err)
		}
	}

	offer, err := s.catalog.OfferByID(offerID)
	if err != nil {
		return nil, err
	}
	if offer.TargetRequired && target == "" {
		return nil, ErrTargetRequired
	}

	clickID := uuid.New().String()

	builder, err := deeplink.ForNetwork(offer.Network)
	if err != nil {
		return nil, err
	}
	redirectTo, err := builder.Build(offer, target, map[string]string{"sub1": clickID})
	if err != nil {
		return nil, fmt.Errorf("failed to build deeplink: %w", err)
	}

	country := ""
	if s.geoDetect != nil && params.IP != "" {
		country = s.geoDetect.Country(params.IP)
	}

	click := &models.ClickEvent{
		ClickID:     clickID,
		Timestamp:   time.Now().UTC(),
		OfferID:     offerID,
		Network:     offer.Network,
		Target:      target,
		RotatorMeta: meta,
		IP:          params.IP,
		UserAgent:   params.UserAgent,
		GeoCountry:  country,
	}

	if err := s.clickStore.SaveClick(ctx, click); err != nil {
		// Don't block the redirect on a failed write; the click just
		// won't correlate later.
		s.logger.Error("failed to save click", zap.Error(err), zap.String("click_id", clickID))
	}

	if s.metrics != nil {
		s.metrics.Clicks.WithLabelValues(offerID, offer.Network).Inc()
	}

	s.logger.Info("click registered",
		zap.String("click_id", clickID),
		zap.String("offer_id", offerID),
		zap.String("network", offer.Network),
		zap.Stringp("rotator", rotatorKey(meta)),
		zap.String("redirect_to", redirectTo),
	)

	return &ClickResult{
		ClickID:    clickID,
		RedirectTo: redirectTo,
	}, nil
}

func rotatorKey(meta *models.RotatorMeta) *string {
	if meta == nil {
		return nil
	}
	return &meta.RotatorKey
}
