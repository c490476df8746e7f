package domain

import (
	"fmt"
	"slices"
	"time"
)

// Статусы State Machine многоуровневого согласования
type WorkflowStatus string

const (
	WorkflowPending    WorkflowStatus = "PENDING"
	WorkflowInProgress WorkflowStatus = "IN_PROGRESS"
	WorkflowApproved   WorkflowStatus = "APPROVED"
	WorkflowRejected   WorkflowStatus = "REJECTED"
	WorkflowEscalated  WorkflowStatus = "ESCALATED"
)

// ApprovalLevel — ступень согласования. Порядок ступеней задается RequiredLevels.
type ApprovalLevel string

const (
	LevelL1        ApprovalLevel = "L1"
	LevelL2        ApprovalLevel = "L2"
	LevelExecutive ApprovalLevel = "EXECUTIVE"
)

type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

type EntityType string

const (
	EntityInvestor EntityType = "investor"
	EntityIssuer   EntityType = "issuer"
)

type ApproverRole string

const (
	RoleComplianceOfficer ApproverRole = "COMPLIANCE_OFFICER"
	RoleManager           ApproverRole = "MANAGER"
	RoleDirector          ApproverRole = "DIRECTOR"
	RoleExecutive         ApproverRole = "EXECUTIVE"
)

type ApproverStatus string

const (
	ApproverPending  ApproverStatus = "PENDING"
	ApproverApproved ApproverStatus = "APPROVED"
	ApproverRejected ApproverStatus = "REJECTED"
	ApproverRecused  ApproverStatus = "RECUSED"
)

// requiredLevels — фиксированная таблица: уровень риска -> обязательные ступени.
var requiredLevels = map[RiskLevel][]ApprovalLevel{
	RiskLow:    {LevelL1},
	RiskMedium: {LevelL1, LevelL2},
	RiskHigh:   {LevelL1, LevelL2, LevelExecutive},
}

// RequiredLevelsFor возвращает копию списка ступеней для уровня риска.
func RequiredLevelsFor(risk RiskLevel) ([]ApprovalLevel, error) {
	levels, ok := requiredLevels[risk]
	if !ok {
		return nil, fmt.Errorf("%w: unknown risk level %q", ErrValidation, risk)
	}
	return slices.Clone(levels), nil
}

func (r RiskLevel) Valid() bool {
	_, ok := requiredLevels[r]
	return ok
}

func (t EntityType) Valid() bool {
	return t == EntityInvestor || t == EntityIssuer
}

// Approver — назначение одного ревьюера на одну ступень.
// Идентичность записи: пара (UserID, Level).
type Approver struct {
	UserID    string         `json:"userId"`
	Level     ApprovalLevel  `json:"level"`
	Role      ApproverRole   `json:"role"`
	Status    ApproverStatus `json:"status"`
	Timestamp *time.Time     `json:"timestamp,omitempty"`
	Comments  *string        `json:"comments,omitempty"`
}

type ApprovalWorkflow struct {
	ID         string     `json:"id"`
	EntityID   string     `json:"entity_id"`
	EntityType EntityType `json:"entity_type"`
	EntityName string     `json:"entity_name,omitempty"`

	Status         WorkflowStatus  `json:"status"`
	RiskLevel      RiskLevel       `json:"risk_level"`
	RequiredLevels []ApprovalLevel `json:"required_levels"`
	CurrentLevel   ApprovalLevel   `json:"current_level"`
	Approvers      []Approver      `json:"approvers"`

	EscalationReason *string    `json:"escalation_reason,omitempty"`
	EscalatedBy      *string    `json:"escalated_by,omitempty"`
	EscalatedAt      *time.Time `json:"escalated_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`

	// Version растет на каждом изменении, используется для условного UPDATE.
	Version int64 `json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsTerminal — из APPROVED/REJECTED переходов нет.
func (w *ApprovalWorkflow) IsTerminal() bool {
	return w.Status == WorkflowApproved || w.Status == WorkflowRejected
}

// CanDecide проверяет, допускает ли статус approve/reject.
func (w *ApprovalWorkflow) CanDecide() error {
	if w.Status == WorkflowPending || w.Status == WorkflowEscalated {
		return nil
	}
	return fmt.Errorf("%w: workflow %s is %s", ErrInvalidState, w.ID, w.Status)
}

// CanEscalate проверяет, допускает ли статус эскалацию.
func (w *ApprovalWorkflow) CanEscalate() error {
	if w.Status == WorkflowPending || w.Status == WorkflowInProgress {
		return nil
	}
	return fmt.Errorf("%w: workflow %s is %s", ErrInvalidState, w.ID, w.Status)
}

// ApproverAt ищет индекс записи ревьюера на ступени, -1 если не назначен.
func (w *ApprovalWorkflow) ApproverAt(userID string, level ApprovalLevel) int {
	for i := range w.Approvers {
		if w.Approvers[i].UserID == userID && w.Approvers[i].Level == level {
			return i
		}
	}
	return -1
}

// LevelSatisfied — единогласие: все ревьюеры ступени APPROVED или RECUSED.
// Ступень без назначенных ревьюеров удовлетворенной не считается.
func (w *ApprovalWorkflow) LevelSatisfied(level ApprovalLevel) bool {
	seen := false
	for _, a := range w.Approvers {
		if a.Level != level {
			continue
		}
		seen = true
		if a.Status != ApproverApproved && a.Status != ApproverRecused {
			return false
		}
	}
	return seen
}

func (w *ApprovalWorkflow) lastLevel() ApprovalLevel {
	return w.RequiredLevels[len(w.RequiredLevels)-1]
}

func (w *ApprovalWorkflow) nextLevel() (ApprovalLevel, bool) {
	idx := slices.Index(w.RequiredLevels, w.CurrentLevel)
	if idx < 0 || idx+1 >= len(w.RequiredLevels) {
		return "", false
	}
	return w.RequiredLevels[idx+1], true
}

// authorize объединяет общие предусловия всех действий ревьюера.
func (w *ApprovalWorkflow) authorize(userID string) (int, error) {
	idx := w.ApproverAt(userID, w.CurrentLevel)
	if idx < 0 {
		return -1, fmt.Errorf("%w: user %s is not an approver at level %s", ErrNotAuthorized, userID, w.CurrentLevel)
	}
	return idx, nil
}

// Approve фиксирует одобрение ревьюера и, если ступень закрыта единогласно,
// продвигает workflow на следующую ступень или завершает его.
// При ошибке значение не меняется.
func (w *ApprovalWorkflow) Approve(userID string, comment *string, now time.Time) error {
	if err := w.CanDecide(); err != nil {
		return err
	}
	idx, err := w.authorize(userID)
	if err != nil {
		return err
	}

	ts := now
	w.Approvers[idx].Status = ApproverApproved
	w.Approvers[idx].Timestamp = &ts
	w.Approvers[idx].Comments = comment
	w.UpdatedAt = now

	if !w.LevelSatisfied(w.CurrentLevel) {
		return nil
	}

	if w.CurrentLevel == w.lastLevel() {
		w.Status = WorkflowApproved
		w.CompletedAt = &ts
		return nil
	}
	if next, ok := w.nextLevel(); ok {
		w.CurrentLevel = next
	}
	return nil
}

// Reject — одного отказа на любой ступени достаточно, чтобы закрыть workflow.
func (w *ApprovalWorkflow) Reject(userID, reason string, now time.Time) error {
	if err := w.CanDecide(); err != nil {
		return err
	}
	idx, err := w.authorize(userID)
	if err != nil {
		return err
	}

	ts := now
	w.Approvers[idx].Status = ApproverRejected
	w.Approvers[idx].Timestamp = &ts
	if reason != "" {
		r := reason
		w.Approvers[idx].Comments = &r
	}
	w.Status = WorkflowRejected
	w.CompletedAt = &ts
	w.UpdatedAt = now
	return nil
}

// Escalate перебрасывает workflow сразу на последнюю ступень.
// Запись самого эскалирующего ревьюера не меняется.
func (w *ApprovalWorkflow) Escalate(userID, reason string, now time.Time) error {
	if err := w.CanEscalate(); err != nil {
		return err
	}
	if _, err := w.authorize(userID); err != nil {
		return err
	}

	ts := now
	by := userID
	r := reason
	w.Status = WorkflowEscalated
	w.CurrentLevel = w.lastLevel()
	w.EscalationReason = &r
	w.EscalatedBy = &by
	w.EscalatedAt = &ts
	w.UpdatedAt = now
	return nil
}

// Clone нужен сервису, чтобы неудачная попытка перехода не портила прочитанное значение.
func (w *ApprovalWorkflow) Clone() *ApprovalWorkflow {
	c := *w
	c.RequiredLevels = slices.Clone(w.RequiredLevels)
	c.Approvers = slices.Clone(w.Approvers)
	return &c
}

// PendingFor — есть ли у пользователя неотработанная запись на текущей ступени.
func (w *ApprovalWorkflow) PendingFor(userID string) bool {
	if w.Status != WorkflowPending && w.Status != WorkflowEscalated {
		return false
	}
	idx := w.ApproverAt(userID, w.CurrentLevel)
	return idx >= 0 && w.Approvers[idx].Status == ApproverPending
}
