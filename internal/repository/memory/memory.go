package memory

/*
Файл memory.go — хранилище в памяти процесса: локальный запуск без PostgreSQL
(database.driver: memory) и тесты сервисов.
Наружу отдаются копии, поэтому мутация прочитанного значения не меняет хранилище.
*/

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/xela07ax/compliance-console/internal/audit"
	"github.com/xela07ax/compliance-console/internal/domain"
	"github.com/xela07ax/compliance-console/internal/repository"
)

var (
	_ repository.WorkflowRepository = (*Store)(nil)
	_ repository.CheckRepository    = (*Store)(nil)
	_ repository.EntityRepository   = (*Store)(nil)
	_ repository.UserRepository     = (*Store)(nil)
	_ repository.StatsRepository    = (*Store)(nil)
	_ repository.AuditRepository    = (*Store)(nil)
)

type Store struct {
	mu        sync.RWMutex
	workflows map[string]*domain.ApprovalWorkflow
	checks    map[string]*domain.ComplianceCheck
	investors map[string]*domain.Investor // ключ — email
	issuers   map[string]*domain.Issuer   // ключ — регистрационный номер
	users     map[string]*domain.User     // ключ — username
	logs      []audit.AuditEvent
}

func NewStore() *Store {
	return &Store{
		workflows: make(map[string]*domain.ApprovalWorkflow),
		checks:    make(map[string]*domain.ComplianceCheck),
		investors: make(map[string]*domain.Investor),
		issuers:   make(map[string]*domain.Issuer),
		users:     make(map[string]*domain.User),
	}
}

// SaveUser нужен для посева учетных записей при запуске без базы.
func (s *Store) SaveUser(u *domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.users[u.Username] = &cp
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[username]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (s *Store) CreateWorkflow(ctx context.Context, w *domain.ApprovalWorkflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.workflows[w.ID]; exists {
		return fmt.Errorf("workflow %s: %w", w.ID, domain.ErrConflict)
	}
	s.workflows[w.ID] = w.Clone()
	return nil
}

func (s *Store) GetWorkflowByID(ctx context.Context, id string) (*domain.ApprovalWorkflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.workflows[id]
	if !ok {
		return nil, fmt.Errorf("workflow %s: %w", id, domain.ErrNotFound)
	}
	return w.Clone(), nil
}

func (s *Store) UpdateWorkflow(ctx context.Context, w *domain.ApprovalWorkflow, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.workflows[w.ID]
	if !ok {
		return fmt.Errorf("workflow %s: %w", w.ID, domain.ErrNotFound)
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("workflow %s (version %d): %w", w.ID, expectedVersion, domain.ErrConflict)
	}

	stored := w.Clone()
	stored.Version = expectedVersion + 1
	// Неизменяемые поля берем из хранилища, как и UPDATE в postgres
	stored.EntityID = current.EntityID
	stored.EntityType = current.EntityType
	stored.RiskLevel = current.RiskLevel
	stored.RequiredLevels = slices.Clone(current.RequiredLevels)
	stored.CreatedAt = current.CreatedAt
	s.workflows[w.ID] = stored

	w.Version = stored.Version
	return nil
}

func (s *Store) QueryWorkflows(ctx context.Context, f domain.WorkflowFilter) ([]*domain.ApprovalWorkflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]*domain.ApprovalWorkflow, 0)
	for _, w := range s.workflows {
		if !matchQuery(w, f.WorkflowQuery) || !f.Match(w) {
			continue
		}
		results = append(results, w.Clone())
	}

	// Свежие сверху, затем стабильная сортировка по ключу: равные остаются в порядке создания
	slices.SortFunc(results, func(a, b *domain.ApprovalWorkflow) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	f.Sort(results)

	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 500
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func matchQuery(w *domain.ApprovalWorkflow, q domain.WorkflowQuery) bool {
	if len(q.Statuses) > 0 && !slices.Contains(q.Statuses, w.Status) {
		return false
	}
	if q.EntityType != "" && w.EntityType != q.EntityType {
		return false
	}
	if q.EntityID != "" && w.EntityID != q.EntityID {
		return false
	}
	if q.RiskLevel != "" && w.RiskLevel != q.RiskLevel {
		return false
	}
	if q.ApproverID != "" {
		return slices.ContainsFunc(w.Approvers, func(a domain.Approver) bool { return a.UserID == q.ApproverID })
	}
	return true
}

func cloneCheck(c *domain.ComplianceCheck) *domain.ComplianceCheck {
	cp := *c
	cp.Details = slices.Clone(c.Details)
	return &cp
}

func (s *Store) CreateCheck(ctx context.Context, c *domain.ComplianceCheck) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.checks[c.ID]; exists {
		return fmt.Errorf("compliance check %s: %w", c.ID, domain.ErrConflict)
	}
	s.checks[c.ID] = cloneCheck(c)
	return nil
}

func (s *Store) GetCheck(ctx context.Context, id string) (*domain.ComplianceCheck, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.checks[id]
	if !ok {
		return nil, fmt.Errorf("compliance check %s: %w", id, domain.ErrNotFound)
	}
	return cloneCheck(c), nil
}

func (s *Store) UpdateCheck(ctx context.Context, c *domain.ComplianceCheck) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.checks[c.ID]
	if !ok {
		return fmt.Errorf("compliance check %s: %w", c.ID, domain.ErrNotFound)
	}
	updated := cloneCheck(current)
	updated.Status = c.Status
	updated.Result = c.Result
	updated.CompletedAt = c.CompletedAt
	if len(c.Details) > 0 {
		updated.Details = slices.Clone(c.Details)
	}
	s.checks[c.ID] = updated
	return nil
}

func (s *Store) ListChecks(ctx context.Context, entityID string) ([]*domain.ComplianceCheck, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	results := make([]*domain.ComplianceCheck, 0)
	for _, c := range s.checks {
		if c.EntityID == entityID {
			results = append(results, cloneCheck(c))
		}
	}
	slices.SortFunc(results, func(a, b *domain.ComplianceCheck) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return results, nil
}

func (s *Store) UpsertInvestor(ctx context.Context, inv *domain.Investor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	cp := *inv
	if existing, ok := s.investors[inv.Email]; ok {
		cp.ID = existing.ID
		cp.CreatedAt = existing.CreatedAt
	} else {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	s.investors[inv.Email] = &cp
	return nil
}

func (s *Store) UpsertIssuer(ctx context.Context, iss *domain.Issuer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	cp := *iss
	if existing, ok := s.issuers[iss.RegistrationNumber]; ok {
		cp.ID = existing.ID
		cp.CreatedAt = existing.CreatedAt
	} else {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	s.issuers[iss.RegistrationNumber] = &cp
	return nil
}

func (s *Store) ListInvestors(ctx context.Context) ([]*domain.Investor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	results := make([]*domain.Investor, 0, len(s.investors))
	for _, inv := range s.investors {
		cp := *inv
		results = append(results, &cp)
	}
	slices.SortFunc(results, func(a, b *domain.Investor) int { return strings.Compare(a.Name, b.Name) })
	return results, nil
}

func (s *Store) ListIssuers(ctx context.Context) ([]*domain.Issuer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	results := make([]*domain.Issuer, 0, len(s.issuers))
	for _, iss := range s.issuers {
		cp := *iss
		results = append(results, &cp)
	}
	slices.SortFunc(results, func(a, b *domain.Issuer) int { return strings.Compare(a.Name, b.Name) })
	return results, nil
}
