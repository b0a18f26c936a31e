package history

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/davidleathers/risk-forecast-engine/internal/domain/forecast"
	"github.com/davidleathers/risk-forecast-engine/internal/infrastructure/config"
	"github.com/davidleathers/risk-forecast-engine/internal/infrastructure/telemetry"
)

const keyPrefix = "riskhistory"

// RedisStore keeps each tenant and domain's snapshots in a sorted set scored
// by recording time. Only the newest retention entries are kept.
type RedisStore struct {
	client    *redis.Client
	retention int
	logger    *zap.Logger
	tracer    trace.Tracer
}

// NewRedisStore connects to Redis and verifies the connection. cfg.URL may be
// a redis:// URL or a bare host:port.
func NewRedisStore(ctx context.Context, cfg *config.RedisConfig, retention int, logger *zap.Logger) (*RedisStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config is required")
	}

	opts, err := redisOptions(cfg)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	store := NewRedisStoreFromClient(client, retention, logger)
	store.logger.Info("redis history store initialized",
		zap.String("addr", opts.Addr),
		zap.Int("db", opts.DB),
		zap.Int("retention", retention))

	return store, nil
}

// NewRedisStoreFromClient wraps an existing client
func NewRedisStoreFromClient(client *redis.Client, retention int, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retention <= 0 {
		retention = 365
	}
	return &RedisStore{
		client:    client,
		retention: retention,
		logger:    logger.Named("history.redis"),
		tracer:    telemetry.Tracer("github.com/davidleathers/risk-forecast-engine/internal/infrastructure/history"),
	}
}

func redisOptions(cfg *config.RedisConfig) (*redis.Options, error) {
	var opts *redis.Options
	if strings.Contains(cfg.URL, "://") {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: cfg.URL, DB: cfg.DB}
	}

	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	return opts, nil
}

// Key returns the sorted set holding a tenant's snapshots for one domain
func Key(tenantID uuid.UUID, domain forecast.Domain) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, tenantID, domain)
}

// Append adds snapshots and trims each touched domain to the retention limit.
// A snapshot replaces any entry already recorded at the same instant for its
// tenant and domain, and within one call the last such snapshot wins.
func (s *RedisStore) Append(ctx context.Context, tenantID uuid.UUID, snapshots []forecast.HistorySnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	ctx, span := telemetry.StartStoreSpan(ctx, s.tracer, "redis", "ZADD")
	defer span.End()

	byKey := make(map[string][]redis.Z)
	var order []string
	for _, snap := range snapshots {
		member, err := json.Marshal(snap)
		if err != nil {
			return fmt.Errorf("encoding snapshot: %w", err)
		}
		key := Key(tenantID, snap.Domain)
		if _, seen := byKey[key]; !seen {
			order = append(order, key)
		}
		byKey[key] = upsertMember(byKey[key], redis.Z{
			Score:  float64(snap.RecordedAt.UnixMilli()),
			Member: string(member),
		})
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, key := range order {
			for _, z := range byKey[key] {
				score := strconv.FormatInt(int64(z.Score), 10)
				pipe.ZRemRangeByScore(ctx, key, score, score)
			}
			pipe.ZAdd(ctx, key, byKey[key]...)
			pipe.ZRemRangeByRank(ctx, key, 0, int64(-s.retention-1))
		}
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		s.logger.Error("redis history append failed",
			zap.String("tenant_id", tenantID.String()),
			zap.Int("snapshots", len(snapshots)),
			zap.Error(err))
		return fmt.Errorf("redis history append failed: %w", err)
	}

	return nil
}

func upsertMember(members []redis.Z, z redis.Z) []redis.Z {
	for i := range members {
		if members[i].Score == z.Score {
			members[i] = z
			return members
		}
	}
	return append(members, z)
}

// Recent returns up to limit snapshots, newest first
func (s *RedisStore) Recent(ctx context.Context, tenantID uuid.UUID, domain forecast.Domain, limit int) ([]forecast.HistorySnapshot, error) {
	if limit <= 0 {
		return nil, nil
	}

	ctx, span := telemetry.StartStoreSpan(ctx, s.tracer, "redis", "ZREVRANGE")
	defer span.End()

	members, err := s.client.ZRevRange(ctx, Key(tenantID, domain), 0, int64(limit-1)).Result()
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("redis history read failed: %w", err)
	}

	out := make([]forecast.HistorySnapshot, 0, len(members))
	for _, m := range members {
		var snap forecast.HistorySnapshot
		if err := json.Unmarshal([]byte(m), &snap); err != nil {
			s.logger.Warn("skipping undecodable history entry",
				zap.String("key", Key(tenantID, domain)),
				zap.Error(err))
			continue
		}
		out = append(out, snap)
	}
	return out, nil
}

// Purge removes every snapshot recorded before cutoff for a tenant and domain
func (s *RedisStore) Purge(ctx context.Context, tenantID uuid.UUID, domain forecast.Domain, cutoff time.Time) (int64, error) {
	upper := fmt.Sprintf("(%d", cutoff.UnixMilli())
	n, err := s.client.ZRemRangeByScore(ctx, Key(tenantID, domain), "-inf", upper).Result()
	if err != nil {
		return 0, fmt.Errorf("redis history purge failed: %w", err)
	}
	return n, nil
}

// Ping checks connectivity
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the client
func (s *RedisStore) Close() error {
	return s.client.Close()
}
