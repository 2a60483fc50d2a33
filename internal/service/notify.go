package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"agroforward/internal/models"
	"agroforward/internal/repository"
)

// PushSender delivers a push message to a party's devices. Best effort.
type PushSender interface {
	Send(ctx context.Context, userID, title, message string, data map[string]any) error
}

// NotifyService writes in-app notifications and fans out to the push gateway.
// Delivery is best effort; callers log failures and move on.
type NotifyService struct {
	Repo   repository.Repository
	Push   PushSender
	Logger *zap.Logger
}

func (s *NotifyService) Send(ctx context.Context, userID, title, message string, data map[string]any) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil
	}

	var payload datatypes.JSON
	if len(data) > 0 {
		if b, err := json.Marshal(data); err == nil {
			payload = datatypes.JSON(b)
		}
	}

	item := &models.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		Message:   message,
		Type:      "contract",
		Data:      payload,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.Repo.InsertNotification(ctx, item); err != nil {
		return err
	}

	if s.Push != nil {
		if err := s.Push.Send(ctx, userID, title, message, data); err != nil && s.Logger != nil {
			s.Logger.Warn("push delivery failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return nil
}
