package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// StalenessSweeper периодически закрывает попытки, зависшие в generating
// (например, если воркер умер, не отправив колбэк). Отдельный
// reconciliation-проход, не лежащий на пути create/finish.
type StalenessSweeper struct {
	svc      SuggestionService
	interval time.Duration
	maxAge   time.Duration
	logger   *zap.Logger
	stop     chan struct{}
	done     chan struct{}
}

// NewStalenessSweeper создает sweeper. maxAge <= 0 отключает его полностью.
func NewStalenessSweeper(svc SuggestionService, interval, maxAge time.Duration, logger *zap.Logger) *StalenessSweeper {
	return &StalenessSweeper{
		svc:      svc,
		interval: interval,
		maxAge:   maxAge,
		logger:   logger.Named("StalenessSweeper"),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start запускает фоновую горутину sweep'а. Возвращается сразу.
func (s *StalenessSweeper) Start(ctx context.Context) {
	if s.maxAge <= 0 {
		s.logger.Info("Staleness sweeper disabled (maxAge <= 0)")
		close(s.done)
		return
	}

	s.logger.Info("Starting staleness sweeper",
		zap.Duration("interval", s.interval),
		zap.Duration("maxAge", s.maxAge))

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.sweepOnce(ctx)
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop останавливает sweeper и дожидается завершения горутины.
func (s *StalenessSweeper) Stop() {
	select {
	case <-s.stop:
		// Уже остановлен
	default:
		close(s.stop)
	}
	<-s.done
	s.logger.Info("Staleness sweeper stopped")
}

func (s *StalenessSweeper) sweepOnce(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := s.svc.SweepStaleAttempts(sweepCtx, s.maxAge); err != nil {
		s.logger.Error("Sweep pass failed", zap.Error(err))
	}
}
