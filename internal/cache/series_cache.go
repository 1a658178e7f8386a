// Package cache implements the shared evolution-series cache on Redis.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/craniometry-server/internal/domain"
)

// RedisSeriesCache stores computed evolution series in Redis, keyed by
// patient. Every Redis call goes through a circuit breaker so a slow or
// dead cache degrades the service to recompute-on-demand instead of
// stalling requests.
type RedisSeriesCache struct {
	redis      *redis.Client
	breaker    *gobreaker.CircuitBreaker
	defaultTTL time.Duration
	log        *logrus.Logger
}

// NewRedisSeriesCache creates a series cache from the cache configuration
// and verifies the connection with a ping.
func NewRedisSeriesCache(cfg domain.CacheConfig, logger *logrus.Logger) (*RedisSeriesCache, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing Redis URL: %w", err)
	}

	opts.PoolSize = cfg.PoolSize
	opts.PoolTimeout = cfg.PoolTimeout
	opts.MaxRetries = cfg.MaxRetries

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to Redis: %w", err)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "series-cache",
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	return &RedisSeriesCache{
		redis:      client,
		breaker:    breaker,
		defaultTTL: cfg.DefaultTTL,
		log:        logger,
	}, nil
}

// Get retrieves the cached series for a patient. The second return is
// false on a miss.
func (c *RedisSeriesCache) Get(ctx context.Context, patientID int64) (*domain.EvolutionSeries, bool, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		val, err := c.redis.Get(ctx, seriesKey(patientID)).Result()
		if err == redis.Nil {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return []byte(val), nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("series cache get: %w", err)
	}
	if result == nil {
		return nil, false, nil
	}

	var series domain.EvolutionSeries
	if err := json.Unmarshal(result.([]byte), &series); err != nil {
		// Corrupted entry, drop it and treat as a miss.
		c.redis.Del(ctx, seriesKey(patientID))
		c.log.WithField("patient_id", patientID).Warn("Dropped corrupted series cache entry")
		return nil, false, nil
	}

	return &series, true, nil
}

// Set caches a computed series with the default TTL.
func (c *RedisSeriesCache) Set(ctx context.Context, patientID int64, series *domain.EvolutionSeries) error {
	payload, err := json.Marshal(series)
	if err != nil {
		return fmt.Errorf("marshaling series: %w", err)
	}

	_, err = c.breaker.Execute(func() (interface{}, error) {
		return nil, c.redis.Set(ctx, seriesKey(patientID), payload, c.defaultTTL).Err()
	})
	if err != nil {
		return fmt.Errorf("series cache set: %w", err)
	}
	return nil
}

// Invalidate drops the cached series for a patient.
func (c *RedisSeriesCache) Invalidate(ctx context.Context, patientID int64) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.redis.Del(ctx, seriesKey(patientID)).Err()
	})
	if err != nil {
		return fmt.Errorf("series cache invalidate: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func (c *RedisSeriesCache) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisSeriesCache) Close() error {
	return c.redis.Close()
}

func seriesKey(patientID int64) string {
	return fmt.Sprintf("evolution:series:%d", patientID)
}
