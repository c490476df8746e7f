package memory

import (
	"context"
	"slices"

	"github.com/xela07ax/compliance-console/internal/audit"
)

func (s *Store) WriteBatch(ctx context.Context, events []audit.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, events...)
	return nil
}

// FetchLogs повторяет семантику выборки postgres: свежие сверху, лимит по умолчанию 200.
func (s *Store) FetchLogs(ctx context.Context, f audit.Filter) ([]audit.AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]audit.AuditEvent, 0)
	for _, e := range s.logs {
		switch {
		case f.EntityID != "" && e.EntityID != f.EntityID,
			f.Actor != "" && e.Actor != f.Actor,
			f.Action != "" && e.Action != f.Action,
			!f.From.IsZero() && e.Timestamp.Before(f.From),
			!f.To.IsZero() && !e.Timestamp.Before(f.To):
			continue
		}
		results = append(results, e)
	}

	slices.SortStableFunc(results, func(a, b audit.AuditEvent) int {
		return b.Timestamp.Compare(a.Timestamp)
	})

	limit := f.Limit
	if limit <= 0 || limit > 5000 {
		limit = 200
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}
