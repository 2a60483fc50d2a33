package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"agroforward/internal/repository"
)

// ExpiryService flips overdue CREATED contracts to EXPIRED. Driven by cron.
type ExpiryService struct {
	Repo   repository.Repository
	Logger *zap.Logger
}

func (s *ExpiryService) SweepOnce(ctx context.Context) (int64, error) {
	if s == nil || s.Repo == nil {
		return 0, nil
	}
	expired, err := s.Repo.ExpireDueContracts(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	if expired > 0 && s.Logger != nil {
		s.Logger.Info("expired overdue contracts", zap.Int64("count", expired))
	}
	return expired, nil
}
