package handler

import (
	"errors"
	"net/http"

	"mission-server/internal/service"
	sharedModels "mission-server/shared/models"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// requesterProfileHeader - заголовок, из которого берется профиль
// запрашивающего. Значение приходит от вышестоящего шлюза.
const requesterProfileHeader = "X-Profile-ID"

// SuggestionHandler обрабатывает HTTP запросы жизненного цикла попыток.
type SuggestionHandler struct {
	service  service.SuggestionService
	resolver *service.VisibilityResolver
	logger   *zap.Logger
	validate *validator.Validate
}

// NewSuggestionHandler создает новый SuggestionHandler.
func NewSuggestionHandler(s service.SuggestionService, resolver *service.VisibilityResolver, logger *zap.Logger) *SuggestionHandler {
	return &SuggestionHandler{
		service:  s,
		resolver: resolver,
		logger:   logger.Named("SuggestionHandler"),
		validate: validator.New(),
	}
}

// RegisterRoutes регистрирует маршруты сервиса.
func (h *SuggestionHandler) RegisterRoutes(e *echo.Echo) {
	eventsGroup := e.Group("/events")
	{
		eventsGroup.POST("/:event_id/suggestions", h.createSuggestion)
		eventsGroup.GET("/:event_id/suggestions", h.listEventSuggestions)
	}

	e.GET("/suggestions/:id", h.getSuggestion)

	// Внутренний маршрут: прямой finish без очереди (для операторов и тестов).
	internalGroup := e.Group("/internal")
	{
		internalGroup.POST("/suggestions/:id/finish", h.finishSuggestion)
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
}

// --- Вспомогательные функции --- //

// getRequesterProfileID извлекает профиль запрашивающего из заголовка.
func getRequesterProfileID(c echo.Context) string {
	return c.Request().Header.Get(requesterProfileHeader)
}

func handleServiceError(c echo.Context, err error) error {
	var statusCode int
	var apiErr APIError

	switch {
	case errors.Is(err, sharedModels.ErrAttemptNotFound) || errors.Is(err, sharedModels.ErrNotFound):
		statusCode = http.StatusNotFound
		apiErr = APIError{Message: "Suggestion attempt not found"}
	case errors.Is(err, sharedModels.ErrAttemptFinished):
		statusCode = http.StatusConflict // 409: попытка уже закрыта
		apiErr = APIError{Message: err.Error()}
	case errors.Is(err, sharedModels.ErrEventHasActiveGeneration):
		statusCode = http.StatusConflict
		apiErr = APIError{Message: err.Error()}
	case errors.Is(err, sharedModels.ErrInvalidTransition):
		statusCode = http.StatusBadRequest
		apiErr = APIError{Message: err.Error()}
	case errors.Is(err, sharedModels.ErrInvalidInput) || errors.Is(err, sharedModels.ErrBadRequest):
		statusCode = http.StatusBadRequest
		apiErr = APIError{Message: err.Error()}
	default:
		statusCode = http.StatusInternalServerError
		apiErr = APIError{Message: "Internal server error"}
	}
	return c.JSON(statusCode, apiErr)
}

// --- Обработчики HTTP --- //

// createSuggestion открывает новую попытку генерации для события.
func (h *SuggestionHandler) createSuggestion(c echo.Context) error {
	eventID := c.Param("event_id")
	profileID := getRequesterProfileID(c)
	if profileID == "" {
		return c.JSON(http.StatusUnauthorized, APIError{Message: "Missing " + requesterProfileHeader + " header"})
	}

	var req CreateSuggestionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, APIError{Message: "Invalid request body: " + err.Error()})
	}
	if err := h.validate.Struct(req); err != nil {
		h.logger.Warn("Create request failed validation", zap.String("eventID", eventID), zap.Error(err))
		return c.JSON(http.StatusBadRequest, APIError{Message: "Invalid request body: " + err.Error()})
	}

	attempt, err := h.service.CreateSuggestionAttempt(c.Request().Context(), eventID, profileID, req.Model, req.PromptVersion, req.InputSummary)
	if err != nil {
		// Логируем только если это НЕ стандартная ошибка
		if !errors.Is(err, sharedModels.ErrEventHasActiveGeneration) &&
			!errors.Is(err, sharedModels.ErrInvalidInput) {
			h.logger.Error("Error creating suggestion attempt (unhandled)", zap.String("eventID", eventID), zap.String("profileID", profileID), zap.Error(err))
		}
		return handleServiceError(c, err)
	}

	// 202 Accepted: попытка создана и уже видна в статусе generating,
	// результат придет позже через колбэк воркера.
	return c.JSON(http.StatusAccepted, toAttemptResponse(attempt, true))
}

// getSuggestion возвращает одну попытку по ID.
func (h *SuggestionHandler) getSuggestion(c echo.Context) error {
	idStr := c.Param("id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		h.logger.Warn("Invalid suggestion ID format in getSuggestion", zap.String("id", idStr), zap.Error(err))
		return c.JSON(http.StatusBadRequest, APIError{Message: "Invalid suggestion ID format"})
	}

	attempt, err := h.service.GetAttempt(c.Request().Context(), id)
	if err != nil {
		if !errors.Is(err, sharedModels.ErrAttemptNotFound) && !errors.Is(err, sharedModels.ErrNotFound) {
			h.logger.Error("Error getting suggestion attempt", zap.String("suggestionID", id.String()), zap.Error(err))
		}
		return handleServiceError(c, err)
	}

	requesterID := getRequesterProfileID(c)
	showCreator := h.resolver.SameScopeByID(requesterID, attempt.CreatedByProfileID)
	return c.JSON(http.StatusOK, toAttemptResponse(attempt, showCreator))
}

// listEventSuggestions возвращает историю попыток события, старые первыми.
func (h *SuggestionHandler) listEventSuggestions(c echo.Context) error {
	eventID := c.Param("event_id")
	if eventID == "" {
		return c.JSON(http.StatusBadRequest, APIError{Message: "Missing event ID"})
	}

	attempts, err := h.service.ListEventAttempts(c.Request().Context(), eventID)
	if err != nil {
		h.logger.Error("Error listing event suggestions", zap.String("eventID", eventID), zap.Error(err))
		return handleServiceError(c, err)
	}

	requesterID := getRequesterProfileID(c)
	resp := SuggestionListResponse{
		EventID:  eventID,
		Attempts: make([]SuggestionAttemptResponse, len(attempts)),
	}
	for i := range attempts {
		showCreator := h.resolver.SameScopeByID(requesterID, attempts[i].CreatedByProfileID)
		resp.Attempts[i] = toAttemptResponse(&attempts[i], showCreator)
	}
	return c.JSON(http.StatusOK, resp)
}

// finishSuggestion закрывает попытку напрямую, минуя очередь результатов.
func (h *SuggestionHandler) finishSuggestion(c echo.Context) error {
	idStr := c.Param("id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		h.logger.Warn("Invalid suggestion ID format in finishSuggestion", zap.String("id", idStr), zap.Error(err))
		return c.JSON(http.StatusBadRequest, APIError{Message: "Invalid suggestion ID format"})
	}

	var req FinishSuggestionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, APIError{Message: "Invalid request body: " + err.Error()})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, APIError{Message: "Invalid request body: " + err.Error()})
	}

	status := sharedModels.SuggestionStatus(req.Status)
	attempt, err := h.service.FinishSuggestionAttempt(c.Request().Context(), id, status, req.ResultJSON, req.ErrorMessage)
	if err != nil {
		if !errors.Is(err, sharedModels.ErrAttemptNotFound) &&
			!errors.Is(err, sharedModels.ErrAttemptFinished) &&
			!errors.Is(err, sharedModels.ErrInvalidTransition) {
			h.logger.Error("Error finishing suggestion attempt (unhandled)", zap.String("suggestionID", id.String()), zap.Error(err))
		}
		return handleServiceError(c, err)
	}

	return c.JSON(http.StatusOK, toAttemptResponse(attempt, true))
}
