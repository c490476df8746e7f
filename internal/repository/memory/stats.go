package memory

import (
	"context"
	"time"

	"github.com/xela07ax/compliance-console/internal/domain"
)

// GetDashboardStats считает ту же сводку, что и агрегирующие запросы postgres.
func (s *Store) GetDashboardStats(ctx context.Context) (*domain.DashboardStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &domain.DashboardStats{
		Workflows: domain.WorkflowStats{
			ByStatus:       map[domain.WorkflowStatus]int64{},
			PendingByLevel: map[domain.ApprovalLevel]int64{},
			ByRiskLevel:    map[domain.RiskLevel]int64{},
		},
		Checks: domain.CheckStats{
			ByType:   map[domain.CheckType]int64{},
			ByResult: map[domain.CheckResult]int64{},
		},
	}

	var (
		decided   int64
		totalHrs  float64
		weekStart = time.Now().Add(-7 * 24 * time.Hour)
	)
	for _, w := range s.workflows {
		stats.Workflows.Total++
		stats.Workflows.ByStatus[w.Status]++
		stats.Workflows.ByRiskLevel[w.RiskLevel]++
		if w.Status == domain.WorkflowPending || w.Status == domain.WorkflowEscalated {
			stats.Workflows.PendingByLevel[w.CurrentLevel]++
		}
		if w.CompletedAt != nil {
			decided++
			totalHrs += w.CompletedAt.Sub(w.CreatedAt).Hours()
			if w.CompletedAt.After(weekStart) {
				stats.Quality.CompletedLast7d++
			}
		}
	}
	if decided > 0 {
		stats.Quality.AvgDecisionHours = totalHrs / float64(decided)
	}

	for _, c := range s.checks {
		stats.Checks.Total++
		stats.Checks.ByType[c.Type]++
		if c.Result != nil {
			stats.Checks.ByResult[*c.Result]++
		}
	}
	return stats, nil
}
