package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidState  = errors.New("invalid workflow state")
	ErrNotAuthorized = errors.New("not authorized")
	ErrValidation    = errors.New("validation failed")
	// ErrConflict — запись изменили параллельно (проиграли условный UPDATE по version).
	ErrConflict = errors.New("concurrent modification")
)

// FieldViolation — одно нарушение правила поля в строке файла или теле запроса.
type FieldViolation struct {
	Row     int    `json:"row,omitempty"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError собирает все нарушения сразу, а не первое встреченное.
type ValidationError struct {
	Violations []FieldViolation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		if v.Row > 0 {
			parts = append(parts, fmt.Sprintf("row %d: %s %s", v.Row, v.Field, v.Message))
			continue
		}
		parts = append(parts, v.Field+" "+v.Message)
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ProviderErrorKind различает, где именно сломался внешний вызов.
type ProviderErrorKind string

const (
	ProviderKindHTTP  ProviderErrorKind = "http"  // провайдер ответил не-2xx
	ProviderKindRelay ProviderErrorKind = "relay" // шлюз функций не достучался до провайдера
	ProviderKindFetch ProviderErrorKind = "fetch" // сетевая ошибка, ответа нет
)

type ProviderError struct {
	Provider   string
	Kind       ProviderErrorKind
	StatusCode int
	Cause      error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider %s: %s error (status %d): %v", e.Provider, e.Kind, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("provider %s: %s error: %v", e.Provider, e.Kind, e.Cause)
}

func (e *ProviderError) Unwrap() error { return e.Cause }
