package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/compliance-console/internal/domain"
	"github.com/xela07ax/compliance-console/internal/infra"
	"github.com/xela07ax/compliance-console/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultStatsTTL = time.Minute
	warmupLockTTL   = 30 * time.Second
)

type DashboardService struct {
	repo   repository.StatsRepository
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewDashboardService — rdb может быть nil, тогда статистика считается на каждый запрос.
func NewDashboardService(repo repository.StatsRepository, rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *DashboardService {
	if ttl <= 0 {
		ttl = defaultStatsTTL
	}
	return &DashboardService{
		repo:   repo,
		rdb:    rdb,
		ttl:    ttl,
		logger: logger.Named("dashboard-service"),
	}
}

// GetStats отдает сводку из кэша Redis, при промахе считает ее в хранилище.
// Недоступный Redis не ломает дашборд: идем прямо в базу.
func (s *DashboardService) GetStats(ctx context.Context) (*domain.DashboardStats, error) {
	// 1. Кэш
	if s.rdb != nil {
		raw, err := s.rdb.Get(ctx, infra.RedisKeyDashboardStats).Bytes()
		switch {
		case err == nil:
			var cached domain.DashboardStats
			if jErr := json.Unmarshal(raw, &cached); jErr == nil {
				return &cached, nil
			}
			s.logger.Warn("corrupted stats cache entry, recomputing")
		case !errors.Is(err, redis.Nil):
			s.logger.Warn("stats cache unavailable", zap.Error(err))
		}
	}

	// 2. Тяжелые агрегаты в хранилище
	stats, err := s.repo.GetDashboardStats(ctx)
	if err != nil {
		s.logger.Error("failed to compute dashboard stats", zap.Error(err))
		return nil, fmt.Errorf("dashboard: %w", err)
	}

	// 3. Прогрев кэша
	if s.rdb != nil {
		if err := s.cache(ctx, stats); err != nil {
			s.logger.Warn("failed to cache stats", zap.Error(err))
		}
	}
	return stats, nil
}

func (s *DashboardService) cache(ctx context.Context, stats *domain.DashboardStats) error {
	payload, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, infra.RedisKeyDashboardStats, payload, s.ttl).Err()
}

// Warmup заполняет пустой кэш при старте инстанса.
// Агрегаты в базе тяжелые, поэтому греет только один инстанс (SetNX).
func (s *DashboardService) Warmup(ctx context.Context) error {
	if s.rdb == nil {
		return nil
	}

	// 1. Распределенная блокировка
	ok, err := s.rdb.SetNX(ctx, infra.RedisKeyDashboardWarmupLock, "processing", warmupLockTTL).Result()
	if err != nil || !ok {
		return nil // Либо ошибка сети, либо другой уже греет кэш
	}

	// 2. Кэш уже заполнен
	n, err := s.rdb.Exists(ctx, infra.RedisKeyDashboardStats).Result()
	if err != nil {
		s.logger.Warn("could not check stats cache, proceeding with warm-up", zap.Error(err))
	}
	if n > 0 {
		return nil
	}

	// 3. Считаем в базе и кладем в Redis
	stats, err := s.repo.GetDashboardStats(ctx)
	if err != nil {
		return fmt.Errorf("dashboard: warm-up: %w", err)
	}
	if err := s.cache(ctx, stats); err != nil {
		return fmt.Errorf("dashboard: warm-up: %w", err)
	}
	s.logger.Info("stats cache warmed up", zap.Int64("workflows", stats.Workflows.Total))
	return nil
}

// Invalidate сбрасывает кэш; вызывается слушателем событий на каждом решении по workflow.
func (s *DashboardService) Invalidate(ctx context.Context) error {
	if s.rdb == nil {
		return nil
	}
	if err := s.rdb.Del(ctx, infra.RedisKeyDashboardStats).Err(); err != nil {
		return fmt.Errorf("dashboard: invalidate cache: %w", err)
	}
	return nil
}
