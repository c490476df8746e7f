package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xela07ax/compliance-console/internal/domain"
	"github.com/xela07ax/compliance-console/internal/infra"
	"go.uber.org/zap"
)

type countingStats struct {
	calls int
	err   error
}

func (c *countingStats) GetDashboardStats(context.Context) (*domain.DashboardStats, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return &domain.DashboardStats{Workflows: domain.WorkflowStats{Total: int64(c.calls)}}, nil
}

func TestDashboardService_Cache(t *testing.T) {
	mr, rdb := newRedis(t)
	repo := &countingStats{}
	svc := NewDashboardService(repo, rdb, 30*time.Second, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		stats, err := svc.GetStats(ctx)
		if err != nil {
			t.Fatalf("GetStats: %v", err)
		}
		if stats.Workflows.Total != 1 {
			t.Fatalf("call %d served %d, want cached 1", i, stats.Workflows.Total)
		}
	}
	if repo.calls != 1 {
		t.Fatalf("repo calls = %d, want 1", repo.calls)
	}
	if ttl := mr.TTL(infra.RedisKeyDashboardStats); ttl != 30*time.Second {
		t.Fatalf("ttl = %v", ttl)
	}

	if err := svc.Invalidate(ctx); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	stats, _ := svc.GetStats(ctx)
	if stats.Workflows.Total != 2 {
		t.Fatalf("after invalidate served %d, want fresh 2", stats.Workflows.Total)
	}

	// устаревание по TTL
	mr.FastForward(31 * time.Second)
	stats, _ = svc.GetStats(ctx)
	if stats.Workflows.Total != 3 {
		t.Fatalf("after ttl served %d, want 3", stats.Workflows.Total)
	}
}

func TestDashboardService_DegradedRedis(t *testing.T) {
	mr, rdb := newRedis(t)
	mr.Close()
	repo := &countingStats{}
	svc := NewDashboardService(repo, rdb, 0, zap.NewNop())

	if _, err := svc.GetStats(context.Background()); err != nil {
		t.Fatalf("redis outage must fall back to storage: %v", err)
	}

	noCache := NewDashboardService(repo, nil, 0, zap.NewNop())
	_, _ = noCache.GetStats(context.Background())
	if err := noCache.Invalidate(context.Background()); err != nil {
		t.Fatalf("Invalidate without redis: %v", err)
	}
	if repo.calls != 2 {
		t.Fatalf("repo calls = %d", repo.calls)
	}

	failing := NewDashboardService(&countingStats{err: errors.New("db down")}, nil, 0, zap.NewNop())
	if _, err := failing.GetStats(context.Background()); err == nil {
		t.Fatal("expected storage error")
	}
}

func TestDashboardService_Warmup(t *testing.T) {
	mr, rdb := newRedis(t)
	repo := &countingStats{}
	ctx := context.Background()

	first := NewDashboardService(repo, rdb, time.Minute, zap.NewNop())
	second := NewDashboardService(repo, rdb, time.Minute, zap.NewNop())

	if err := first.Warmup(ctx); err != nil {
		t.Fatalf("Warmup: %v", err)
	}
	// второй инстанс упирается в блокировку
	if err := second.Warmup(ctx); err != nil {
		t.Fatalf("Warmup: %v", err)
	}
	if repo.calls != 1 {
		t.Fatalf("repo calls = %d, want 1", repo.calls)
	}
	if !mr.Exists(infra.RedisKeyDashboardStats) {
		t.Fatal("stats cache is empty after warm-up")
	}

	// после снятия блокировки заполненный кэш не пересчитывается
	mr.Del(infra.RedisKeyDashboardWarmupLock)
	if err := second.Warmup(ctx); err != nil {
		t.Fatalf("Warmup: %v", err)
	}
	if repo.calls != 1 {
		t.Fatalf("repo calls = %d, want 1", repo.calls)
	}
	if _, err := second.GetStats(ctx); err != nil || repo.calls != 1 {
		t.Fatalf("GetStats after warm-up hit storage: calls=%d err=%v", repo.calls, err)
	}
}
