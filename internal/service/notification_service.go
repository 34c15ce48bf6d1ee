package service

import (
	"context"

	"go.uber.org/zap"

	"parking_garage/internal/domain"
	"parking_garage/internal/logger"
	"parking_garage/internal/repository"
)

// UserPusher delivers an event to a user's open connections.
type UserPusher interface {
	SendToUser(userID int, event domain.UserNotificationEvent)
}

// NotificationService stores user notifications and pushes them live.
type NotificationService struct {
	repo   repository.NotificationRepository
	pusher UserPusher
	log    *logger.Logger
}

func NewNotificationService(repo repository.NotificationRepository, pusher UserPusher) *NotificationService {
	return &NotificationService{repo: repo, pusher: pusher, log: logger.Named("notifications")}
}

// Notify never fails the caller; a notification that cannot be stored is logged.
func (s *NotificationService) Notify(ctx context.Context, userID int, title, content string) {
	n, err := s.repo.Create(ctx, &domain.Notification{UserID: userID, Title: title, Content: content})
	if err != nil {
		s.log.Warn("could not store notification", zap.Int("user_id", userID), zap.String("title", title), zap.Error(err))
		return
	}
	if s.pusher != nil {
		s.pusher.SendToUser(userID, domain.UserNotificationEvent{Type: domain.PushNotification, Notification: *n})
	}
}

func (s *NotificationService) List(ctx context.Context, userID int) ([]domain.Notification, error) {
	return s.repo.FindByUserID(ctx, userID)
}

func (s *NotificationService) MarkSeen(ctx context.Context, userID, id int) error {
	if err := s.repo.MarkSeen(ctx, id, userID); err != nil {
		return repository.NotFound(err, repository.EntityNotification, id)
	}
	return nil
}
