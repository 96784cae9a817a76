package service

import (
	"encoding/json"

	"go.uber.org/zap"

	"agbado/internal/models"
	"agbado/internal/repository"
)

// NotificationService persists in-app notification rows. Delivery beyond the
// database (push, email) is out of scope here.
type NotificationService struct {
	repo *repository.NotificationRepository
	log  *zap.Logger
}

func NewNotificationService(repo *repository.NotificationRepository, log *zap.Logger) *NotificationService {
	return &NotificationService{repo: repo, log: log}
}

// Notify satisfies the Notifier interface used by the withdrawal flow.
func (s *NotificationService) Notify(userID uint, notifType, title, body string, data map[string]interface{}) error {
	payload := ""
	if len(data) > 0 {
		b, err := json.Marshal(data)
		if err != nil {
			s.log.Warn("notification payload marshal failed", zap.Error(err))
		} else {
			payload = string(b)
		}
	}
	return s.repo.Create(&models.Notification{
		UserID: userID,
		Type:   notifType,
		Title:  title,
		Body:   body,
		Data:   payload,
	})
}

func (s *NotificationService) ListForUser(userID uint, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.ListByUser(userID, limit)
}

func (s *NotificationService) MarkRead(id, userID uint) error {
	return s.repo.MarkRead(id, userID)
}
