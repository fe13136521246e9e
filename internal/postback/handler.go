package postback

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/radiusdt/vector-gateway/internal/alerts"
	"github.com/radiusdt/vector-gateway/internal/metrics"
	"github.com/radiusdt/vector-gateway/internal/models"
	"github.com/radiusdt/vector-gateway/internal/rotator"
	"go.uber.org/zap"
)

// EventStore is the store slice the postback path needs: click correlation
// and conversion appends.
type EventStore interface {
	GetClick(ctx context.Context, clickID string) (*models.ClickEvent, error)
	SaveConversion(ctx context.Context, conv *models.ConversionEvent) error
}

// Handler ingests conversion postbacks: correlates them to the originating
// click, appends the conversion event and updates rotator stats.
type Handler struct {
	eventStore EventStore
	aggregator *rotator.Aggregator
	notifier   alerts.Notifier
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewHandler creates a new postback handler.
func NewHandler(
	eventStore EventStore,
	aggregator *rotator.Aggregator,
	notifier alerts.Notifier,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		eventStore: eventStore,
		aggregator: aggregator,
		notifier:   notifier,
		metrics:    m,
		logger:     logger,
	}
}

// Params are the raw postback query parameters. The shared secret is
// verified by the HTTP layer before Process is called.
type Params struct {
	ClickID  string
	Payout   string
	Currency string
	Status   string
	OrderID  string
	Network  string
}

// Process handles one conversion postback. A postback whose click_id does
// not correlate is still recorded for audit; it just carries no offer or
// rotator attribution and cannot move variant stats.
func (h *Handler) Process(ctx context.Context, params *Params) (*models.ConversionEvent, error) {
	payout := 0.0
	if params.Payout != "" {
		if v, err := strconv.ParseFloat(params.Payout, 64); err == nil {
			payout = v
		}
	}

	status := params.Status
	if status == "" {
		status = "unknown"
	}
	currency := params.Currency
	if currency == "" {
		currency = "RUB"
	}

	click, err := h.eventStore.GetClick(ctx, params.ClickID)
	if err != nil {
		// Correlation is degraded-but-valid: record the conversion
		// without attribution rather than dropping it.
		h.logger.Error("click lookup failed", zap.Error(err), zap.String("click_id", params.ClickID))
		click = nil
	}

	conv := &models.ConversionEvent{
		ClickID:   params.ClickID,
		Timestamp: time.Now().UTC(),
		Payout:    payout,
		Currency:  currency,
		Status:    status,
		OrderID:   params.OrderID,
		Network:   params.Network,
	}
	if click != nil {
		if conv.Network == "" {
			conv.Network = click.Network
		}
		conv.OfferID = click.OfferID
		if click.RotatorMeta != nil {
			meta := *click.RotatorMeta
			conv.RotatorMeta = &meta
		}
	}

	if err := h.eventStore.SaveConversion(ctx, conv); err != nil {
		return nil, fmt.Errorf("failed to save conversion: %w", err)
	}

	if conv.RotatorMeta != nil {
		meta := conv.RotatorMeta
		if err := h.aggregator.RecordPostback(ctx, meta.RotatorKey, meta.VariantID, status, payout); err != nil {
			h.logger.Error("failed to update rotator stats",
				zap.Error(err),
				zap.String("rotator", meta.RotatorKey),
				zap.String("variant", meta.VariantID),
			)
		} else if h.metrics != nil && status == models.StatusApproved {
			h.metrics.RevenueApproved.WithLabelValues(meta.RotatorKey).Add(payout)
		}
	}

	if h.metrics != nil {
		h.metrics.Postbacks.WithLabelValues(status).Inc()
		if click == nil {
			h.metrics.OrphanPostbacks.Inc()
		}
	}

	h.logger.Info("conversion registered",
		zap.String("click_id", params.ClickID),
		zap.String("status", status),
		zap.Float64("payout", payout),
		zap.String("currency", currency),
		zap.Bool("correlated", click != nil),
	)

	h.notifier.Send(h.alertText(conv))

	return conv, nil
}

// alertText formats the Telegram notification for a conversion.
func (h *Handler) alertText(conv *models.ConversionEvent) string {
	offer := conv.OfferID
	if offer == "" {
		offer = "?"
	}
	network := conv.Network
	if network == "" {
		network = "?"
	}

	text := fmt.Sprintf("Postback: %s %.2f %s\nclick_id %s\noffer %s net %s",
		conv.Status, conv.Payout, conv.Currency, conv.ClickID, offer, network)
	if conv.RotatorMeta != nil {
		text += fmt.Sprintf("\nvariant %s", conv.RotatorMeta.VariantID)
	}
	return text
}
