package domain

import (
	"cmp"
	"slices"
	"strings"
)

// WorkflowQuery — предикаты выборки, которые хранилище умеет применять на своей стороне.
type WorkflowQuery struct {
	Statuses   []WorkflowStatus
	EntityType EntityType
	EntityID   string
	RiskLevel  RiskLevel
	ApproverID string // есть запись ревьюера с этим userId (на любой ступени)
	Limit      int
}

type SortDir string

const (
	SortAsc  SortDir = "asc"
	SortDesc SortDir = "desc"
)

// WorkflowFilter — то, что приходит из вкладки согласований: фильтр + сортировка.
type WorkflowFilter struct {
	WorkflowQuery
	Search  string // подстрока имени/ID сущности
	SortKey string // created_at | updated_at | risk_level | entity_name | status
	SortDir SortDir
}

var riskRank = map[RiskLevel]int{RiskLow: 0, RiskMedium: 1, RiskHigh: 2}

// Match применяет клиентские предикаты (поиск по подстроке).
func (f WorkflowFilter) Match(w *ApprovalWorkflow) bool {
	if f.Search == "" {
		return true
	}
	q := strings.ToLower(f.Search)
	return strings.Contains(strings.ToLower(w.EntityName), q) ||
		strings.Contains(strings.ToLower(w.EntityID), q) ||
		strings.Contains(strings.ToLower(w.ID), q)
}

// Sort — стабильная сортировка по ключу с переключателем направления.
// Неизвестный ключ сортирует по created_at, без направления — по убыванию.
func (f WorkflowFilter) Sort(items []*ApprovalWorkflow) {
	compare := func(a, b *ApprovalWorkflow) int {
		switch f.SortKey {
		case "updated_at":
			return a.UpdatedAt.Compare(b.UpdatedAt)
		case "risk_level":
			return cmp.Compare(riskRank[a.RiskLevel], riskRank[b.RiskLevel])
		case "entity_name":
			return strings.Compare(strings.ToLower(a.EntityName), strings.ToLower(b.EntityName))
		case "status":
			return strings.Compare(string(a.Status), string(b.Status))
		default:
			return a.CreatedAt.Compare(b.CreatedAt)
		}
	}
	desc := f.SortDir != SortAsc
	slices.SortStableFunc(items, func(a, b *ApprovalWorkflow) int {
		if desc {
			return compare(b, a)
		}
		return compare(a, b)
	})
}
