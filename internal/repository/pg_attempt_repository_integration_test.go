package repository_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"mission-server/internal/repository"
	"mission-server/migrations"
	"mission-server/pkg/migration"
	sharedModels "mission-server/shared/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

// PgAttemptRepositorySuite - интеграционные тесты Postgres-реализации
// хранилища попыток поверх testcontainers.
type PgAttemptRepositorySuite struct {
	suite.Suite
	pgContainer *postgres.PostgresContainer
	dbPool      *pgxpool.Pool
	repo        repository.AttemptRepository
}

func (s *PgAttemptRepositorySuite) SetupSuite() {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("test-db"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(5*time.Minute),
		),
	)
	require.NoError(s.T(), err)
	s.pgContainer = pgContainer

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(s.T(), err)

	s.dbPool, err = pgxpool.New(ctx, connStr)
	require.NoError(s.T(), err)

	migrator := migration.NewMigrator(migration.Config{
		MigrationsPath: ".",
		MigrationsFS:   migrations.FS,
	}, s.dbPool)
	require.NoError(s.T(), migrator.Up(ctx))

	s.repo = repository.NewPgAttemptRepository(s.dbPool, zap.NewNop())
}

func (s *PgAttemptRepositorySuite) TearDownSuite() {
	if s.dbPool != nil {
		s.dbPool.Close()
	}
	if s.pgContainer != nil {
		_ = s.pgContainer.Terminate(context.Background())
	}
}

func (s *PgAttemptRepositorySuite) newAttempt(eventID string, createdAt int64) *sharedModels.SuggestionAttempt {
	return &sharedModels.SuggestionAttempt{
		ID:                 uuid.New(),
		EventID:            eventID,
		CreatedByProfileID: "P1",
		Model:              "test-model",
		PromptVersion:      "v1",
		InputSummary:       "summary",
		Status:             sharedModels.StatusGenerating,
		ResultJSON:         json.RawMessage(sharedModels.EmptyResultJSON),
		CreatedAt:          createdAt,
		UpdatedAt:          createdAt,
	}
}

func (s *PgAttemptRepositorySuite) TestCreateAndGet() {
	ctx := context.Background()
	attempt := s.newAttempt(uuid.NewString(), 1000)

	s.Require().NoError(s.repo.Create(ctx, attempt))

	got, err := s.repo.GetByID(ctx, attempt.ID)
	s.Require().NoError(err)
	s.Equal(attempt.ID, got.ID)
	s.Equal(attempt.EventID, got.EventID)
	s.Equal(sharedModels.StatusGenerating, got.Status)
	s.JSONEq(sharedModels.EmptyResultJSON, string(got.ResultJSON))
	s.Equal(int64(1000), got.CreatedAt)
	s.Empty(got.ErrorMessage)
}

func (s *PgAttemptRepositorySuite) TestGetByID_NotFound() {
	_, err := s.repo.GetByID(context.Background(), uuid.New())
	s.ErrorIs(err, sharedModels.ErrAttemptNotFound)
}

func (s *PgAttemptRepositorySuite) TestListByEvent_OrderAndTieBreak() {
	ctx := context.Background()
	eventID := uuid.NewString()

	first := s.newAttempt(eventID, 1000)
	second := s.newAttempt(eventID, 2000)
	third := s.newAttempt(eventID, 2000) // Ничья по created_at: решает порядок вставки

	s.Require().NoError(s.repo.Create(ctx, first))
	s.Require().NoError(s.repo.Create(ctx, second))
	s.Require().NoError(s.repo.Create(ctx, third))

	attempts, err := s.repo.ListByEvent(ctx, eventID)
	s.Require().NoError(err)
	s.Require().Len(attempts, 3)
	s.Equal(first.ID, attempts[0].ID)
	s.Equal(second.ID, attempts[1].ID)
	s.Equal(third.ID, attempts[2].ID)
}

func (s *PgAttemptRepositorySuite) TestFinish_SuccessAndDoubleFinish() {
	ctx := context.Background()
	attempt := s.newAttempt(uuid.NewString(), 1000)
	s.Require().NoError(s.repo.Create(ctx, attempt))

	result := json.RawMessage(`{"suggestion":"use a stronger headline"}`)
	finished, err := s.repo.Finish(ctx, attempt.ID, repository.AttemptFinish{
		Status:     sharedModels.StatusReady,
		ResultJSON: result,
		UpdatedAt:  2000,
	})
	s.Require().NoError(err)
	s.Equal(sharedModels.StatusReady, finished.Status)
	s.JSONEq(string(result), string(finished.ResultJSON))
	s.Equal(int64(2000), finished.UpdatedAt)

	// Повторный finish отклоняется, запись не меняется
	_, err = s.repo.Finish(ctx, attempt.ID, repository.AttemptFinish{
		Status:       sharedModels.StatusError,
		ErrorMessage: "late callback",
		UpdatedAt:    3000,
	})
	s.ErrorIs(err, sharedModels.ErrAttemptFinished)

	got, err := s.repo.GetByID(ctx, attempt.ID)
	s.Require().NoError(err)
	s.Equal(sharedModels.StatusReady, got.Status)
	s.Equal(int64(2000), got.UpdatedAt)
	s.Empty(got.ErrorMessage)
}

func (s *PgAttemptRepositorySuite) TestFinish_NotFound() {
	_, err := s.repo.Finish(context.Background(), uuid.New(), repository.AttemptFinish{
		Status:    sharedModels.StatusReady,
		UpdatedAt: 2000,
	})
	s.ErrorIs(err, sharedModels.ErrAttemptNotFound)
}

func (s *PgAttemptRepositorySuite) TestFinish_ErrorKeepsCanonicalEmptyResult() {
	ctx := context.Background()
	attempt := s.newAttempt(uuid.NewString(), 1000)
	s.Require().NoError(s.repo.Create(ctx, attempt))

	finished, err := s.repo.Finish(ctx, attempt.ID, repository.AttemptFinish{
		Status:       sharedModels.StatusError,
		ResultJSON:   nil, // Результат не трогаем
		ErrorMessage: "model unavailable",
		UpdatedAt:    2000,
	})
	s.Require().NoError(err)
	s.Equal(sharedModels.StatusError, finished.Status)
	s.JSONEq(sharedModels.EmptyResultJSON, string(finished.ResultJSON))
	s.Equal("model unavailable", finished.ErrorMessage)
}

func (s *PgAttemptRepositorySuite) TestCountActiveForEvent() {
	ctx := context.Background()
	eventID := uuid.NewString()

	first := s.newAttempt(eventID, 1000)
	second := s.newAttempt(eventID, 1100)
	s.Require().NoError(s.repo.Create(ctx, first))
	s.Require().NoError(s.repo.Create(ctx, second))

	count, err := s.repo.CountActiveForEvent(ctx, eventID)
	s.Require().NoError(err)
	s.Equal(2, count)

	_, err = s.repo.Finish(ctx, first.ID, repository.AttemptFinish{Status: sharedModels.StatusReady, UpdatedAt: 2000})
	s.Require().NoError(err)

	count, err = s.repo.CountActiveForEvent(ctx, eventID)
	s.Require().NoError(err)
	s.Equal(1, count)
}

func (s *PgAttemptRepositorySuite) TestMarkStale() {
	ctx := context.Background()
	eventID := uuid.NewString()

	stale := s.newAttempt(eventID, 1000)
	fresh := s.newAttempt(eventID, 9000)
	s.Require().NoError(s.repo.Create(ctx, stale))
	s.Require().NoError(s.repo.Create(ctx, fresh))

	marked, err := s.repo.MarkStale(ctx, 5000, 10000, "suggestion generation timed out")
	s.Require().NoError(err)
	s.GreaterOrEqual(marked, int64(1))

	got, err := s.repo.GetByID(ctx, stale.ID)
	s.Require().NoError(err)
	s.Equal(sharedModels.StatusError, got.Status)
	s.Equal("suggestion generation timed out", got.ErrorMessage)

	got, err = s.repo.GetByID(ctx, fresh.ID)
	s.Require().NoError(err)
	s.Equal(sharedModels.StatusGenerating, got.Status)
}

func TestPgAttemptRepositorySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Пропускаем интеграционные тесты в режиме -short")
	}
	suite.Run(t, new(PgAttemptRepositorySuite))
}
