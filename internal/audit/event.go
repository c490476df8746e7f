package audit

import "time"

// Действия, которые попадают в журнал аудита
const (
	ActionWorkflowCreated   = "workflow.created"
	ActionWorkflowApproved  = "workflow.approved"
	ActionWorkflowRejected  = "workflow.rejected"
	ActionWorkflowEscalated = "workflow.escalated"
	ActionKYCStarted        = "kyc.started"
	ActionKYCRefreshed      = "kyc.refreshed"
	ActionAMLChecked        = "aml.checked"
	ActionAMLBatch          = "aml.batch"
	ActionRiskAssessed      = "risk.assessed"
	ActionBulkUpload        = "upload.completed"
	ActionExport            = "data.exported"
	ActionLogin             = "auth.login"
)

type AuditEvent struct {
	ID         string                 `json:"id"`          // UUID события
	TraceID    string                 `json:"trace_id"`    // X-Request-ID запроса
	Actor      string                 `json:"actor"`       // Кто делал
	Action     string                 `json:"action"`      // Что сделал
	EntityType string                 `json:"entity_type"` // investor, issuer, workflow, ...
	EntityID   string                 `json:"entity_id"`
	Details    map[string]interface{} `json:"details,omitempty"`

	// Результат
	Status    string    `json:"status"` // "SUCCESS", "FAILED"
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Filter — параметры выборки журнала для вкладки аудита
type Filter struct {
	EntityID string
	Actor    string
	Action   string
	From     time.Time
	To       time.Time
	Limit    int
}
