package models

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
)

// SuggestionStatus определяет возможные статусы попытки генерации подсказки.
// Совпадает со значениями колонки 'status' в БД.
type SuggestionStatus string

const (
	StatusGenerating SuggestionStatus = "generating" // Задача отправлена воркеру, результата еще нет
	StatusReady      SuggestionStatus = "ready"      // Генерация завершилась успешно
	StatusError      SuggestionStatus = "error"      // Генерация завершилась ошибкой
)

// EmptyResultJSON - канонический пустой результат. Попытка всегда несет
// валидный JSON-документ, даже до завершения генерации.
const EmptyResultJSON = "{}"

// IsValid reports whether the status is one of the known values.
func (s SuggestionStatus) IsValid() bool {
	switch s {
	case StatusGenerating, StatusReady, StatusError:
		return true
	}
	return false
}

// IsTerminal reports whether the status is final. Terminal attempts never
// change again.
func (s SuggestionStatus) IsTerminal() bool {
	return s == StatusReady || s == StatusError
}

// CanTransitionTo reports whether a transition from s to target is allowed.
// Единственные допустимые переходы: generating -> ready и generating -> error.
func (s SuggestionStatus) CanTransitionTo(target SuggestionStatus) bool {
	return s == StatusGenerating && target.IsTerminal()
}

// SuggestionAttempt представляет одну попытку генерации AI-подсказки для
// редакционного события.
type SuggestionAttempt struct {
	ID                 uuid.UUID        `json:"id" db:"id"`
	EventID            string           `json:"eventId" db:"event_id"`
	CreatedByProfileID string           `json:"createdByProfileId" db:"created_by_profile_id"`
	Model              string           `json:"model" db:"model"`
	PromptVersion      string           `json:"promptVersion" db:"prompt_version"`
	InputSummary       string           `json:"inputSummary,omitempty" db:"input_summary"`
	Status             SuggestionStatus `json:"status" db:"status"`
	ResultJSON         json.RawMessage  `json:"resultJson" db:"result_json"`
	ErrorMessage       string           `json:"errorMessage,omitempty" db:"error_message"` // Пустая строка = отсутствует
	CreatedAt          int64            `json:"createdAt" db:"created_at_ms"`              // Unix-миллисекунды
	UpdatedAt          int64            `json:"updatedAt" db:"updated_at_ms"`              // Unix-миллисекунды
}

// NormalizeErrorMessage trims surrounding whitespace. A message that is empty
// after trimming is treated as absent.
func NormalizeErrorMessage(msg string) string {
	return strings.TrimSpace(msg)
}
