package events

/*
Файл invalidator.go — сброс кэша статистики дашборда по событиям.
Любое решение по workflow или завершенная загрузка меняют агрегаты, поэтому
кэш сбрасывается целиком, а не пересчитывается по событию.
*/

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/compliance-console/internal/domain"
	"github.com/xela07ax/compliance-console/internal/infra"
	"go.uber.org/zap"
)

type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

type StatsInvalidator struct {
	rdb    *redis.Client
	cache  CacheInvalidator
	logger *zap.Logger
}

func NewStatsInvalidator(rdb *redis.Client, cache CacheInvalidator, logger *zap.Logger) *StatsInvalidator {
	return &StatsInvalidator{rdb: rdb, cache: cache, logger: logger.Named("stats-invalidator")}
}

// Run блокируется до отмены ctx.
func (s *StatsInvalidator) Run(ctx context.Context) {
	s.logger.Info("listening for dashboard events")
	ListenResilient(ctx, s.rdb, s.logger,
		[]string{infra.RedisChanWorkflowDecisions, infra.RedisChanUploads},
		// пока подписки не было, события могли потеряться
		s.cache.Invalidate,
		s.handle,
	)
}

func (s *StatsInvalidator) handle(ctx context.Context, channel string, payload []byte) {
	switch channel {
	case infra.RedisChanWorkflowDecisions:
		var ev domain.WorkflowEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			s.logger.Error("invalid workflow event", zap.String("payload", string(payload)), zap.Error(err))
			return
		}
		s.logger.Debug("workflow event", zap.String("workflow_id", ev.WorkflowID), zap.String("action", ev.Action))
	case infra.RedisChanUploads:
		var ev domain.UploadEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			s.logger.Error("invalid upload event", zap.String("payload", string(payload)), zap.Error(err))
			return
		}
		if ev.Succeeded == 0 {
			return
		}
	default:
		return
	}

	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("failed to invalidate stats cache", zap.String("channel", channel), zap.Error(err))
	}
}
