package repository

import (
	"context"
	"errors"
	"fmt"

	sharedModels "mission-server/shared/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// DBTX абстрагирует pgxpool.Pool или pgx.Tx, чтобы репозиторий работал
// и внутри транзакции.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Compile-time check
var _ AttemptRepository = (*pgAttemptRepository)(nil)

type pgAttemptRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewPgAttemptRepository создает Postgres-реализацию AttemptRepository.
func NewPgAttemptRepository(db DBTX, logger *zap.Logger) AttemptRepository {
	return &pgAttemptRepository{
		db:     db,
		logger: logger.Named("PgAttemptRepo"),
	}
}

const attemptColumns = `id, event_id, created_by_profile_id, model, prompt_version, input_summary, status, result_json, COALESCE(error_message, ''), created_at_ms, updated_at_ms`

func scanAttempt(row pgx.Row, a *sharedModels.SuggestionAttempt) error {
	return row.Scan(
		&a.ID, &a.EventID, &a.CreatedByProfileID, &a.Model, &a.PromptVersion,
		&a.InputSummary, &a.Status, &a.ResultJSON, &a.ErrorMessage,
		&a.CreatedAt, &a.UpdatedAt,
	)
}

// Create - Реализация метода Create. Вставка одной строки, seq назначает БД.
func (r *pgAttemptRepository) Create(ctx context.Context, attempt *sharedModels.SuggestionAttempt) error {
	query := `
        INSERT INTO suggestion_attempts
            (id, event_id, created_by_profile_id, model, prompt_version, input_summary, status, result_json, error_message, created_at_ms, updated_at_ms)
        VALUES
            ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10, $11)
    `
	logFields := []zap.Field{zap.String("suggestionID", attempt.ID.String()), zap.String("eventID", attempt.EventID)}
	r.logger.Debug("Creating suggestion attempt", logFields...)

	_, err := r.db.Exec(ctx, query,
		attempt.ID,
		attempt.EventID,
		attempt.CreatedByProfileID,
		attempt.Model,
		attempt.PromptVersion,
		attempt.InputSummary,
		attempt.Status,
		attempt.ResultJSON,
		attempt.ErrorMessage,
		attempt.CreatedAt,
		attempt.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create suggestion attempt", append(logFields, zap.Error(err))...)
		return fmt.Errorf("ошибка создания suggestion attempt: %w", err)
	}
	r.logger.Info("Suggestion attempt created successfully", logFields...)
	return nil
}

// GetByID - Реализация метода GetByID
func (r *pgAttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*sharedModels.SuggestionAttempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM suggestion_attempts WHERE id = $1`
	attempt := &sharedModels.SuggestionAttempt{}
	logFields := []zap.Field{zap.String("suggestionID", id.String())}
	r.logger.Debug("Getting suggestion attempt by ID", logFields...)

	err := scanAttempt(r.db.QueryRow(ctx, query, id), attempt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Warn("Suggestion attempt not found by ID", logFields...)
			return nil, sharedModels.ErrAttemptNotFound
		}
		r.logger.Error("Failed to get suggestion attempt by ID", append(logFields, zap.Error(err))...)
		return nil, fmt.Errorf("ошибка получения suggestion attempt %s: %w", id, err)
	}
	return attempt, nil
}

// ListByEvent возвращает историю попыток события по возрастанию created_at.
// seq разруливает ничьи по времени в порядке вставки.
func (r *pgAttemptRepository) ListByEvent(ctx context.Context, eventID string) ([]sharedModels.SuggestionAttempt, error) {
	query := `
        SELECT ` + attemptColumns + `
        FROM suggestion_attempts
        WHERE event_id = $1
        ORDER BY created_at_ms ASC, seq ASC
    `
	logFields := []zap.Field{zap.String("eventID", eventID)}
	r.logger.Debug("Listing suggestion attempts by event", logFields...)

	rows, err := r.db.Query(ctx, query, eventID)
	if err != nil {
		r.logger.Error("Failed to query suggestion attempts", append(logFields, zap.Error(err))...)
		return nil, fmt.Errorf("ошибка получения списка попыток из БД: %w", err)
	}
	defer rows.Close()

	attempts := make([]sharedModels.SuggestionAttempt, 0)
	for rows.Next() {
		var a sharedModels.SuggestionAttempt
		if err := scanAttempt(rows, &a); err != nil {
			r.logger.Error("Failed to scan suggestion attempt row", append(logFields, zap.Error(err))...)
			return nil, fmt.Errorf("ошибка чтения данных из БД: %w", err)
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating suggestion attempt rows", append(logFields, zap.Error(err))...)
		return nil, fmt.Errorf("ошибка после чтения данных из БД: %w", err)
	}

	r.logger.Debug("Suggestion attempts listed successfully", append(logFields, zap.Int("count", len(attempts)))...)
	return attempts, nil
}

// Finish применяет terminal-патч одним guarded UPDATE: условие
// status = 'generating' делает гонку двух колбэков безопасной - выигрывает
// ровно один, второй получает ErrAttemptFinished.
func (r *pgAttemptRepository) Finish(ctx context.Context, id uuid.UUID, patch AttemptFinish) (*sharedModels.SuggestionAttempt, error) {
	query := `
        UPDATE suggestion_attempts SET
            status = $2,
            result_json = COALESCE($3, result_json),
            error_message = NULLIF($4, ''),
            updated_at_ms = $5
        WHERE id = $1 AND status = 'generating'
        RETURNING ` + attemptColumns

	logFields := []zap.Field{zap.String("suggestionID", id.String()), zap.String("newStatus", string(patch.Status))}
	r.logger.Debug("Finishing suggestion attempt", logFields...)

	attempt := &sharedModels.SuggestionAttempt{}
	err := scanAttempt(r.db.QueryRow(ctx, query, id, patch.Status, patch.ResultJSON, patch.ErrorMessage, patch.UpdatedAt), attempt)
	if err == nil {
		r.logger.Info("Suggestion attempt finished successfully", logFields...)
		return attempt, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		r.logger.Error("Failed to finish suggestion attempt", append(logFields, zap.Error(err))...)
		return nil, fmt.Errorf("ошибка обновления suggestion attempt %s: %w", id, err)
	}

	// UPDATE не нашел строку: либо попытки нет, либо она уже terminal.
	var status sharedModels.SuggestionStatus
	checkErr := r.db.QueryRow(ctx, `SELECT status FROM suggestion_attempts WHERE id = $1`, id).Scan(&status)
	if checkErr != nil {
		if errors.Is(checkErr, pgx.ErrNoRows) {
			r.logger.Warn("Attempted to finish non-existent suggestion attempt", logFields...)
			return nil, sharedModels.ErrAttemptNotFound
		}
		r.logger.Error("Failed to check suggestion attempt status", append(logFields, zap.Error(checkErr))...)
		return nil, fmt.Errorf("ошибка проверки статуса suggestion attempt %s: %w", id, checkErr)
	}
	r.logger.Warn("Attempted to finish suggestion attempt already in terminal state",
		append(logFields, zap.String("currentStatus", string(status)))...)
	return nil, sharedModels.ErrAttemptFinished
}

// CountActiveForEvent считает попытки события в статусе generating.
func (r *pgAttemptRepository) CountActiveForEvent(ctx context.Context, eventID string) (int, error) {
	query := `SELECT COUNT(*) FROM suggestion_attempts WHERE event_id = $1 AND status = 'generating'`
	var count int
	logFields := []zap.Field{zap.String("eventID", eventID)}
	r.logger.Debug("Counting active generations for event", logFields...)

	if err := r.db.QueryRow(ctx, query, eventID).Scan(&count); err != nil {
		r.logger.Error("Failed to count active generations", append(logFields, zap.Error(err))...)
		return 0, fmt.Errorf("ошибка подсчета активных генераций для события %s: %w", eventID, err)
	}
	return count, nil
}

// MarkStale закрывает зависшие generating-попытки синтетической ошибкой.
func (r *pgAttemptRepository) MarkStale(ctx context.Context, cutoffMs int64, nowMs int64, message string) (int64, error) {
	query := `
        UPDATE suggestion_attempts SET
            status = 'error',
            error_message = $3,
            updated_at_ms = $2
        WHERE status = 'generating' AND created_at_ms < $1
    `
	logFields := []zap.Field{zap.Int64("cutoffMs", cutoffMs)}
	r.logger.Debug("Marking stale suggestion attempts", logFields...)

	tag, err := r.db.Exec(ctx, query, cutoffMs, nowMs, message)
	if err != nil {
		r.logger.Error("Failed to mark stale suggestion attempts", append(logFields, zap.Error(err))...)
		return 0, fmt.Errorf("ошибка закрытия зависших попыток: %w", err)
	}
	if tag.RowsAffected() > 0 {
		r.logger.Info("Stale suggestion attempts marked as error", append(logFields, zap.Int64("count", tag.RowsAffected()))...)
	}
	return tag.RowsAffected(), nil
}
