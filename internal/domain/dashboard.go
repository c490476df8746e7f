package domain

// DashboardStats — сводка для главной вкладки консоли.
type DashboardStats struct {
	Workflows WorkflowStats `json:"workflows"` // Очередь согласований
	Checks    CheckStats    `json:"checks"`    // Результаты KYC/AML/Risk
	Quality   QualityStats  `json:"quality"`   // Скорость принятия решений
}

type WorkflowStats struct {
	Total          int64                    `json:"total"`
	ByStatus       map[WorkflowStatus]int64 `json:"by_status"`
	PendingByLevel map[ApprovalLevel]int64  `json:"pending_by_level"`
	ByRiskLevel    map[RiskLevel]int64      `json:"by_risk_level"`
}

type CheckStats struct {
	Total    int64                 `json:"total"`
	ByType   map[CheckType]int64   `json:"by_type"`
	ByResult map[CheckResult]int64 `json:"by_result"`
}

type QualityStats struct {
	// Среднее время от создания workflow до финального решения
	AvgDecisionHours float64 `json:"avg_decision_hours"`
	CompletedLast7d  int64   `json:"completed_last_7d"`
}
