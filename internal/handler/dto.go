package handler

import (
	"encoding/json"

	sharedModels "mission-server/shared/models"
)

// APIError представляет стандартизированный ответ об ошибке.
type APIError struct {
	Message string `json:"message"`
}

// CreateSuggestionRequest - тело POST /events/:event_id/suggestions.
type CreateSuggestionRequest struct {
	Model         string `json:"model" validate:"required"`
	PromptVersion string `json:"promptVersion" validate:"required"`
	InputSummary  string `json:"inputSummary"`
}

// FinishSuggestionRequest - тело POST /internal/suggestions/:id/finish.
// Тот же контракт, что у колбэка из очереди: status только ready/error.
type FinishSuggestionRequest struct {
	Status       string          `json:"status" validate:"required"`
	ResultJSON   json.RawMessage `json:"resultJson,omitempty"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
}

// SuggestionAttemptResponse - представление попытки для клиентов дашборда.
// CreatedByProfileID скрывается, если запрашивающий не co-visible с автором.
type SuggestionAttemptResponse struct {
	ID                 string          `json:"id"`
	EventID            string          `json:"eventId"`
	CreatedByProfileID string          `json:"createdByProfileId,omitempty"`
	Model              string          `json:"model"`
	PromptVersion      string          `json:"promptVersion"`
	InputSummary       string          `json:"inputSummary"`
	Status             string          `json:"status"`
	ResultJSON         json.RawMessage `json:"resultJson"`
	ErrorMessage       string          `json:"errorMessage,omitempty"`
	CreatedAt          int64           `json:"createdAt"`
	UpdatedAt          int64           `json:"updatedAt"`
}

// SuggestionListResponse - ответ GET /events/:event_id/suggestions.
type SuggestionListResponse struct {
	EventID  string                      `json:"eventId"`
	Attempts []SuggestionAttemptResponse `json:"attempts"`
}

// toAttemptResponse конвертирует модель в DTO. showCreator управляет
// видимостью createdByProfileId (правило co-visibility).
func toAttemptResponse(a *sharedModels.SuggestionAttempt, showCreator bool) SuggestionAttemptResponse {
	resp := SuggestionAttemptResponse{
		ID:            a.ID.String(),
		EventID:       a.EventID,
		Model:         a.Model,
		PromptVersion: a.PromptVersion,
		InputSummary:  a.InputSummary,
		Status:        string(a.Status),
		ResultJSON:    a.ResultJSON,
		ErrorMessage:  a.ErrorMessage,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
	if showCreator {
		resp.CreatedByProfileID = a.CreatedByProfileID
	}
	return resp
}
