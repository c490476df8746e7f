package domain

import "time"

// WorkflowEvent — сообщение о переходе workflow в канале Redis.
type WorkflowEvent struct {
	WorkflowID   string         `json:"workflow_id"`
	Action       string         `json:"action"` // created, approved, rejected, escalated
	Status       WorkflowStatus `json:"status"`
	CurrentLevel ApprovalLevel  `json:"current_level"`
	Actor        string         `json:"actor"`
	At           time.Time      `json:"at"`
}

// UploadEvent — итог массовой загрузки.
type UploadEvent struct {
	JobID     string    `json:"job_id"`
	Kind      string    `json:"kind"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Actor     string    `json:"actor"`
	At        time.Time `json:"at"`
}
