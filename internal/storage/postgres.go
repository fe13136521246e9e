package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/radiusdt/vector-gateway/internal/models"
)

// PostgresEventStore implements EventStore using PostgreSQL.
type PostgresEventStore struct {
	pool *pgxpool.Pool
}

// NewPostgresEventStore creates a new PostgreSQL event store.
func NewPostgresEventStore(pool *pgxpool.Pool) *PostgresEventStore {
	return &PostgresEventStore{pool: pool}
}

func (s *PostgresEventStore) SaveClick(ctx context.Context, click *models.ClickEvent) error {
	var rotatorKey, variantID *string
	if click.RotatorMeta != nil {
		rotatorKey = &click.RotatorMeta.RotatorKey
		variantID = &click.RotatorMeta.VariantID
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO clicks (click_id, ts, offer_id, network, target, rotator_key, variant_id, ip, user_agent, geo_country)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (click_id) DO NOTHING
	`, click.ClickID, click.Timestamp, click.OfferID, click.Network, nullString(click.Target),
		rotatorKey, variantID, nullString(click.IP), nullString(click.UserAgent), nullString(click.GeoCountry))

	if err != nil {
		return fmt.Errorf("failed to save click: %w", err)
	}
	return nil
}

func (s *PostgresEventStore) GetClick(ctx context.Context, clickID string) (*models.ClickEvent, error) {
	var click models.ClickEvent
	var target, rotatorKey, variantID, ip, userAgent, geoCountry *string

	err := s.pool.QueryRow(ctx, `
		SELECT click_id, ts, offer_id, network, target, rotator_key, variant_id, ip, user_agent, geo_country
		FROM clicks WHERE click_id = $1
	`, clickID).Scan(&click.ClickID, &click.Timestamp, &click.OfferID, &click.Network,
		&target, &rotatorKey, &variantID, &ip, &userAgent, &geoCountry)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get click: %w", err)
	}

	if target != nil {
		click.Target = *target
	}
	if rotatorKey != nil && variantID != nil {
		click.RotatorMeta = &models.RotatorMeta{RotatorKey: *rotatorKey, VariantID: *variantID}
	}
	if ip != nil {
		click.IP = *ip
	}
	if userAgent != nil {
		click.UserAgent = *userAgent
	}
	if geoCountry != nil {
		click.GeoCountry = *geoCountry
	}

	return &click, nil
}

func (s *PostgresEventStore) SaveConversion(ctx context.Context, conv *models.ConversionEvent) error {
	var rotatorKey, variantID *string
	if conv.RotatorMeta != nil {
		rotatorKey = &conv.RotatorMeta.RotatorKey
		variantID = &conv.RotatorMeta.VariantID
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO conversions (click_id, ts, payout, currency, status, order_id, network, offer_id, rotator_key, variant_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, conv.ClickID, conv.Timestamp, conv.Payout, conv.Currency, conv.Status,
		nullString(conv.OrderID), nullString(conv.Network), nullString(conv.OfferID), rotatorKey, variantID)

	if err != nil {
		return fmt.Errorf("failed to save conversion: %w", err)
	}
	return nil
}

func (s *PostgresEventStore) GetConversionsByClick(ctx context.Context, clickID string) ([]*models.ConversionEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT click_id, ts, payout, currency, status, order_id, network, offer_id, rotator_key, variant_id
		FROM conversions WHERE click_id = $1 ORDER BY ts
	`, clickID)
	if err != nil {
		return nil, fmt.Errorf("failed to get conversions: %w", err)
	}
	defer rows.Close()

	return scanConversions(rows)
}

func (s *PostgresEventStore) ListConversions(ctx context.Context, limit int) ([]*models.ConversionEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, `
		SELECT click_id, ts, payout, currency, status, order_id, network, offer_id, rotator_key, variant_id
		FROM conversions ORDER BY ts DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversions: %w", err)
	}
	defer rows.Close()

	return scanConversions(rows)
}

func scanConversions(rows pgx.Rows) ([]*models.ConversionEvent, error) {
	var conversions []*models.ConversionEvent
	for rows.Next() {
		var conv models.ConversionEvent
		var orderID, network, offerID, rotatorKey, variantID *string

		if err := rows.Scan(&conv.ClickID, &conv.Timestamp, &conv.Payout, &conv.Currency, &conv.Status,
			&orderID, &network, &offerID, &rotatorKey, &variantID); err != nil {
			return nil, err
		}

		if orderID != nil {
			conv.OrderID = *orderID
		}
		if network != nil {
			conv.Network = *network
		}
		if offerID != nil {
			conv.OfferID = *offerID
		}
		if rotatorKey != nil && variantID != nil {
			conv.RotatorMeta = &models.RotatorMeta{RotatorKey: *rotatorKey, VariantID: *variantID}
		}

		conversions = append(conversions, &conv)
	}
	return conversions, rows.Err()
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
