package domain

import (
	"encoding/json"
	"time"
)

type CheckType string

const (
	CheckKYC      CheckType = "KYC"
	CheckAML      CheckType = "AML"
	CheckDocument CheckType = "DOCUMENT"
	CheckRisk     CheckType = "RISK"
)

// VerificationStatus — общий словарь статусов, к которому адаптеры
// приводят ответы конкретных провайдеров.
type VerificationStatus string

const (
	VerificationPending    VerificationStatus = "PENDING"
	VerificationInProgress VerificationStatus = "IN_PROGRESS"
	VerificationCompleted  VerificationStatus = "COMPLETED"
	VerificationFailed     VerificationStatus = "FAILED"
)

type CheckResult string

const (
	ResultPass           CheckResult = "PASS"
	ResultFail           CheckResult = "FAIL"
	ResultReviewRequired CheckResult = "REVIEW_REQUIRED"
)

// ComplianceCheck производят KYC/AML/risk подпроцессы, дашборд только читает.
type ComplianceCheck struct {
	ID          string             `json:"id"`
	EntityID    string             `json:"entity_id"`
	Type        CheckType          `json:"type"`
	Provider    string             `json:"provider"`
	ExternalID  string             `json:"external_id,omitempty"` // id проверки у провайдера
	Status      VerificationStatus `json:"status"`
	Result      *CheckResult       `json:"result,omitempty"`
	Details     json.RawMessage    `json:"details,omitempty"` // непрозрачный payload провайдера
	CreatedAt   time.Time          `json:"created_at"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
}

// Complete проставляет итог проверки.
func (c *ComplianceCheck) Complete(status VerificationStatus, result CheckResult, details json.RawMessage, now time.Time) {
	c.Status = status
	c.Result = &result
	if len(details) > 0 {
		c.Details = details
	}
	ts := now
	c.CompletedAt = &ts
}

type PersonalData struct {
	FirstName   string `json:"first_name" validate:"required"`
	LastName    string `json:"last_name" validate:"required"`
	DateOfBirth string `json:"date_of_birth,omitempty" validate:"omitempty,isodate"`
	Email       string `json:"email,omitempty" validate:"omitempty,email"`
	Country     string `json:"country,omitempty" validate:"omitempty,len=2"`
}

func (p PersonalData) FullName() string {
	return p.FirstName + " " + p.LastName
}

type Applicant struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
}

// VerificationHandle — то, что провайдер вернул при старте проверки.
type VerificationHandle struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
	// URL для прохождения проверки пользователем (если провайдер его выдает)
	RedirectURL string `json:"redirect_url,omitempty"`
}

type VerificationState struct {
	Status  VerificationStatus `json:"status"`
	Result  *CheckResult       `json:"result,omitempty"`
	Details json.RawMessage    `json:"details,omitempty"`
}

type AMLCheckType string

const (
	AMLSanction     AMLCheckType = "sanction"
	AMLPEP          AMLCheckType = "pep"
	AMLAdverseMedia AMLCheckType = "adverse_media"
	AMLFull         AMLCheckType = "full"
)

func (t AMLCheckType) Valid() bool {
	switch t {
	case AMLSanction, AMLPEP, AMLAdverseMedia, AMLFull:
		return true
	}
	return false
}

type AMLMatch string

const (
	AMLMatchFound    AMLMatch = "match"
	AMLNoMatch       AMLMatch = "no_match"
	AMLPossibleMatch AMLMatch = "possible_match"
)

// CheckResult сводит ответ AML к результату ComplianceCheck.
func (m AMLMatch) CheckResult() CheckResult {
	switch m {
	case AMLNoMatch:
		return ResultPass
	case AMLMatchFound:
		return ResultFail
	default:
		return ResultReviewRequired
	}
}

type AMLResult struct {
	Result  AMLMatch        `json:"result"`
	Details json.RawMessage `json:"details,omitempty"`
}

type AMLBatchItem struct {
	EntityID string       `json:"entity_id,omitempty"`
	Person   PersonalData `json:"person"`
	CheckID  string       `json:"check_id,omitempty"`
	Result   *AMLResult   `json:"result,omitempty"`
	Error    string       `json:"error,omitempty"`
}

const (
	AMLBatchProcessing = "processing"
	AMLBatchCompleted  = "completed"
)

type AMLBatch struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
	// ExternalID — id пакета у провайдера, пусто если пакет прогнан поштучно
	ExternalID string         `json:"external_id,omitempty"`
	CheckType  AMLCheckType   `json:"check_type"`
	Status     string         `json:"status"` // processing, completed
	Items      []AMLBatchItem `json:"items"`
	CreatedAt  time.Time      `json:"created_at"`
}

type RiskFactor struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
	Score  float64 `json:"score"`
}

type RiskAssessment struct {
	EntityID string       `json:"entity_id"`
	Score    float64      `json:"score"`
	Level    RiskLevel    `json:"level"`
	Factors  []RiskFactor `json:"factors"`
	CheckID  string       `json:"check_id"`
}

// RiskLevelForScore — пороги шкалы 0..100.
func RiskLevelForScore(score float64) RiskLevel {
	switch {
	case score < 30:
		return RiskLow
	case score < 70:
		return RiskMedium
	default:
		return RiskHigh
	}
}
