package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"mission-server/internal/service"
	serviceMocks "mission-server/internal/service/mocks"
	sharedModels "mission-server/shared/models"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestHandler(mockService *serviceMocks.SuggestionService) *SuggestionHandler {
	resolver := service.NewVisibilityResolver(
		[][]string{{"alice@corp.com", "a.liddell@corp.com"}},
		map[string]string{
			"P1": "alice@corp.com",
			"P2": "a.liddell@corp.com",
			"P3": "bob@corp.com",
		},
		zap.NewNop(),
	)
	return NewSuggestionHandler(mockService, resolver, zap.NewNop())
}

func sampleAttempt(profileID string) *sharedModels.SuggestionAttempt {
	return &sharedModels.SuggestionAttempt{
		ID:                 uuid.New(),
		EventID:            "E1",
		CreatedByProfileID: profileID,
		Model:              "gpt-4o",
		PromptVersion:      "v2",
		InputSummary:       "summary",
		Status:             sharedModels.StatusGenerating,
		ResultJSON:         json.RawMessage(sharedModels.EmptyResultJSON),
		CreatedAt:          1000,
		UpdatedAt:          1000,
	}
}

func TestCreateSuggestion_Accepted(t *testing.T) {
	mockService := new(serviceMocks.SuggestionService)
	h := newTestHandler(mockService)

	attempt := sampleAttempt("P1")
	mockService.On("CreateSuggestionAttempt", mock.Anything, "E1", "P1", "gpt-4o", "v2", "summary").
		Return(attempt, nil).Once()

	e := echo.New()
	body := `{"model":"gpt-4o","promptVersion":"v2","inputSummary":"summary"}`
	req := httptest.NewRequest(http.MethodPost, "/events/E1/suggestions", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("X-Profile-ID", "P1")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("event_id")
	c.SetParamValues("E1")

	require.NoError(t, h.createSuggestion(c))
	assert.Equal(t, http.StatusAccepted, rec.Code)

	var resp SuggestionAttemptResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, attempt.ID.String(), resp.ID)
	assert.Equal(t, string(sharedModels.StatusGenerating), resp.Status)
	assert.Equal(t, "P1", resp.CreatedByProfileID)
	assert.JSONEq(t, sharedModels.EmptyResultJSON, string(resp.ResultJSON))

	mockService.AssertExpectations(t)
}

func TestCreateSuggestion_MissingProfileHeader(t *testing.T) {
	mockService := new(serviceMocks.SuggestionService)
	h := newTestHandler(mockService)

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/events/E1/suggestions", strings.NewReader(`{"model":"m","promptVersion":"v1"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("event_id")
	c.SetParamValues("E1")

	require.NoError(t, h.createSuggestion(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	mockService.AssertNotCalled(t, "CreateSuggestionAttempt", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateSuggestion_ValidationFailure(t *testing.T) {
	mockService := new(serviceMocks.SuggestionService)
	h := newTestHandler(mockService)

	e := echo.New()
	// Нет обязательного model
	req := httptest.NewRequest(http.MethodPost, "/events/E1/suggestions", strings.NewReader(`{"promptVersion":"v1"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("X-Profile-ID", "P1")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("event_id")
	c.SetParamValues("E1")

	require.NoError(t, h.createSuggestion(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	mockService.AssertNotCalled(t, "CreateSuggestionAttempt", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateSuggestion_LimitConflict(t *testing.T) {
	mockService := new(serviceMocks.SuggestionService)
	h := newTestHandler(mockService)

	mockService.On("CreateSuggestionAttempt", mock.Anything, "E1", "P1", "m", "v1", "").
		Return(nil, sharedModels.ErrEventHasActiveGeneration).Once()

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/events/E1/suggestions", strings.NewReader(`{"model":"m","promptVersion":"v1"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("X-Profile-ID", "P1")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("event_id")
	c.SetParamValues("E1")

	require.NoError(t, h.createSuggestion(c))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetSuggestion_OK_CreatorVisible(t *testing.T) {
	mockService := new(serviceMocks.SuggestionService)
	h := newTestHandler(mockService)

	attempt := sampleAttempt("P2")
	mockService.On("GetAttempt", mock.Anything, attempt.ID).Return(attempt, nil).Once()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/suggestions/"+attempt.ID.String(), nil)
	// P1 и P2 co-visible через набор эквивалентности
	req.Header.Set("X-Profile-ID", "P1")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(attempt.ID.String())

	require.NoError(t, h.getSuggestion(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp SuggestionAttemptResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "P2", resp.CreatedByProfileID)
}

func TestGetSuggestion_OK_CreatorRedacted(t *testing.T) {
	mockService := new(serviceMocks.SuggestionService)
	h := newTestHandler(mockService)

	attempt := sampleAttempt("P3")
	mockService.On("GetAttempt", mock.Anything, attempt.ID).Return(attempt, nil).Once()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/suggestions/"+attempt.ID.String(), nil)
	req.Header.Set("X-Profile-ID", "P1")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(attempt.ID.String())

	require.NoError(t, h.getSuggestion(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp SuggestionAttemptResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.CreatedByProfileID)
}

func TestGetSuggestion_InvalidID(t *testing.T) {
	mockService := new(serviceMocks.SuggestionService)
	h := newTestHandler(mockService)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/suggestions/abc", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("abc")

	require.NoError(t, h.getSuggestion(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetSuggestion_NotFound(t *testing.T) {
	mockService := new(serviceMocks.SuggestionService)
	h := newTestHandler(mockService)

	id := uuid.New()
	mockService.On("GetAttempt", mock.Anything, id).Return(nil, sharedModels.ErrAttemptNotFound).Once()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/suggestions/"+id.String(), nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(id.String())

	require.NoError(t, h.getSuggestion(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListEventSuggestions_OK(t *testing.T) {
	mockService := new(serviceMocks.SuggestionService)
	h := newTestHandler(mockService)

	own := sampleAttempt("P1")
	foreign := sampleAttempt("P3")
	mockService.On("ListEventAttempts", mock.Anything, "E1").
		Return([]sharedModels.SuggestionAttempt{*own, *foreign}, nil).Once()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/events/E1/suggestions", nil)
	req.Header.Set("X-Profile-ID", "P1")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("event_id")
	c.SetParamValues("E1")

	require.NoError(t, h.listEventSuggestions(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp SuggestionListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "E1", resp.EventID)
	require.Len(t, resp.Attempts, 2)
	// Свой автор виден, чужой скрыт
	assert.Equal(t, "P1", resp.Attempts[0].CreatedByProfileID)
	assert.Empty(t, resp.Attempts[1].CreatedByProfileID)
}

func TestFinishSuggestion_OK(t *testing.T) {
	mockService := new(serviceMocks.SuggestionService)
	h := newTestHandler(mockService)

	id := uuid.New()
	resultDoc := `{"suggestion":"rework the intro"}`
	finished := sampleAttempt("P1")
	finished.ID = id
	finished.Status = sharedModels.StatusReady
	finished.ResultJSON = json.RawMessage(resultDoc)

	mockService.On("FinishSuggestionAttempt", mock.Anything, id, sharedModels.StatusReady, json.RawMessage(resultDoc), "").
		Return(finished, nil).Once()

	e := echo.New()
	body := `{"status":"ready","resultJson":` + resultDoc + `}`
	req := httptest.NewRequest(http.MethodPost, "/internal/suggestions/"+id.String()+"/finish", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(id.String())

	require.NoError(t, h.finishSuggestion(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp SuggestionAttemptResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(sharedModels.StatusReady), resp.Status)
	assert.JSONEq(t, resultDoc, string(resp.ResultJSON))
}

func TestFinishSuggestion_Conflict(t *testing.T) {
	mockService := new(serviceMocks.SuggestionService)
	h := newTestHandler(mockService)

	id := uuid.New()
	mockService.On("FinishSuggestionAttempt", mock.Anything, id, sharedModels.StatusError, mock.Anything, "late").
		Return(nil, sharedModels.ErrAttemptFinished).Once()

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/internal/suggestions/"+id.String()+"/finish", strings.NewReader(`{"status":"error","errorMessage":"late"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(id.String())

	require.NoError(t, h.finishSuggestion(c))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestFinishSuggestion_InvalidTransition(t *testing.T) {
	mockService := new(serviceMocks.SuggestionService)
	h := newTestHandler(mockService)

	id := uuid.New()
	mockService.On("FinishSuggestionAttempt", mock.Anything, id, sharedModels.StatusGenerating, mock.Anything, "").
		Return(nil, sharedModels.ErrInvalidTransition).Once()

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/internal/suggestions/"+id.String()+"/finish", strings.NewReader(`{"status":"generating"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(id.String())

	require.NoError(t, h.finishSuggestion(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleServiceError_Unknown(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, handleServiceError(c, errors.New("boom")))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var apiErr APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	assert.Equal(t, "Internal server error", apiErr.Message)
}
