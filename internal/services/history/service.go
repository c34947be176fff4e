package history

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"titan/internal/models"
	"titan/internal/services/connection"
)

// DefaultLimit is used when a non-positive limit is requested
const DefaultLimit = 10

// Service persists one event per connect outcome
type Service struct {
	db *gorm.DB
}

// NewService creates a new history service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// NewEvent describes a connect outcome. Exactly one of session and err is set.
func NewEvent(profile *models.ConnectionProfile, session *connection.Session, err error, took time.Duration) *models.ConnectionEvent {
	event := &models.ConnectionEvent{
		DurationMs: took.Milliseconds(),
	}
	if profile != nil {
		event.ProfileID = profile.ID
		event.ProfileName = profile.Name
	}

	if err != nil {
		event.Status = models.EventFailed
		event.ErrorKind = connection.ErrorKind(err)
		event.Error = err.Error()
		return event
	}

	event.Status = models.EventConnected
	if session != nil {
		event.ServerVersion = session.ServerVersion
	}
	return event
}

// Record stores an event
func (s *Service) Record(ctx context.Context, event *models.ConnectionEvent) error {
	if err := s.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("failed to record connection event: %w", err)
	}
	return nil
}

// Recent returns the last limit events, newest first
func (s *Service) Recent(limit int) ([]models.ConnectionEvent, error) {
	return s.find(s.db, limit)
}

// ForProfile returns the last limit events of one profile, newest first
func (s *Service) ForProfile(profileID string, limit int) ([]models.ConnectionEvent, error) {
	return s.find(s.db.Where("profile_id = ?", profileID), limit)
}

func (s *Service) find(q *gorm.DB, limit int) ([]models.ConnectionEvent, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	var events []models.ConnectionEvent
	if err := q.Order("created_at DESC").Limit(limit).Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to list connection events: %w", err)
	}
	return events, nil
}

// Summary is a one-line description of an event
func Summary(event *models.ConnectionEvent) string {
	switch event.Status {
	case models.EventConnected:
		if event.ServerVersion != "" {
			return "Connected to " + event.ServerVersion
		}
		return "Connected"
	case models.EventFailed:
		if event.ErrorKind != "" {
			return "Failed (" + event.ErrorKind + ")"
		}
		return "Failed"
	default:
		return event.Status
	}
}
