package storage

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/radiusdt/vector-gateway/internal/models"
	"github.com/redis/go-redis/v9"
)

// RedisStatsRepo implements StatsRepo on a Redis hash per rotator. Counters
// are bumped with HIncrBy/HIncrByFloat, which Redis serializes, so two
// concurrent clicks (or a click racing a postback) cannot lose updates.
type RedisStatsRepo struct {
	client *redis.Client
}

// NewRedisStatsRepo creates a Redis-backed stats repository.
func NewRedisStatsRepo(client *redis.Client) *RedisStatsRepo {
	return &RedisStatsRepo{client: client}
}

// Hash layout: key "rotator:stats:<rotator>", fields "<variant>:clicks",
// "<variant>:actions", "<variant>:approved", "<variant>:revenue_approved".
func statsKey(rotatorKey string) string {
	return "rotator:stats:" + rotatorKey
}

func (r *RedisStatsRepo) IncrClick(ctx context.Context, rotatorKey, variantID string) error {
	err := r.client.HIncrBy(ctx, statsKey(rotatorKey), variantID+":clicks", 1).Err()
	if err != nil {
		return fmt.Errorf("failed to increment clicks: %w", err)
	}
	return nil
}

func (r *RedisStatsRepo) IncrPostback(ctx context.Context, rotatorKey, variantID string, approved bool, payout float64) error {
	key := statsKey(rotatorKey)

	pipe := r.client.Pipeline()
	pipe.HIncrBy(ctx, key, variantID+":actions", 1)
	if approved {
		pipe.HIncrBy(ctx, key, variantID+":approved", 1)
		pipe.HIncrByFloat(ctx, key, variantID+":revenue_approved", payout)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record postback: %w", err)
	}
	return nil
}

func (r *RedisStatsRepo) Stats(ctx context.Context, rotatorKey string) (map[string]models.VariantStats, error) {
	fields, err := r.client.HGetAll(ctx, statsKey(rotatorKey)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read stats: %w", err)
	}

	stats := make(map[string]models.VariantStats)
	for field, raw := range fields {
		idx := strings.LastIndex(field, ":")
		if idx < 0 {
			continue
		}
		variantID, counter := field[:idx], field[idx+1:]

		s := stats[variantID]
		switch counter {
		case "clicks":
			s.Clicks, _ = strconv.ParseInt(raw, 10, 64)
		case "actions":
			s.Actions, _ = strconv.ParseInt(raw, 10, 64)
		case "approved":
			s.Approved, _ = strconv.ParseInt(raw, 10, 64)
		case "revenue_approved":
			s.RevenueApproved, _ = strconv.ParseFloat(raw, 64)
		default:
			continue
		}
		stats[variantID] = s
	}
	return stats, nil
}
