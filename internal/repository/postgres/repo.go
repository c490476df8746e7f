package postgres

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xela07ax/compliance-console/internal/infra"
	"github.com/xela07ax/compliance-console/internal/repository"
)

//go:embed schema.sql
var schemaSQL string

// ComplianceRepo — единая точка доступа к таблицам консоли.
// Методы разнесены по файлам по доменам (workflow, checks, entities, users, stats).
type ComplianceRepo struct {
	pool *pgxpool.Pool
}

// NewPool создает пул соединений по DatabaseConfig
func NewPool(ctx context.Context, cfg infra.DatabaseConfig) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres: invalid database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pcfg.MinConns = cfg.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to create pool: %w", err)
	}
	return pool, nil
}

func NewComplianceRepo(pool *pgxpool.Pool) *ComplianceRepo {
	return &ComplianceRepo{pool: pool}
}

// Ping проверяет доступность базы при старте
func (r *ComplianceRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// ApplySchema накатывает схему (идемпотентно, CREATE ... IF NOT EXISTS).
func (r *ComplianceRepo) ApplySchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("postgres: failed to apply schema: %w", err)
	}
	return nil
}

var (
	_ repository.WorkflowRepository = (*ComplianceRepo)(nil)
	_ repository.CheckRepository    = (*ComplianceRepo)(nil)
	_ repository.EntityRepository   = (*ComplianceRepo)(nil)
	_ repository.UserRepository     = (*ComplianceRepo)(nil)
	_ repository.StatsRepository    = (*ComplianceRepo)(nil)
	_ repository.AuditRepository    = (*AuditRepo)(nil)
)
