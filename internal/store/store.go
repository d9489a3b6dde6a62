package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"smart-building-backend/internal/model"
)

// Store defines the interface for all database operations.
type Store interface {
	// Schedule rules.
	ListRules(ctx context.Context) ([]model.ScheduleRule, error)
	ActiveRulesForDay(ctx context.Context, day string) ([]model.ScheduleRule, error)
	CreateRule(ctx context.Context, rule *model.ScheduleRule) error
	UpdateRule(ctx context.Context, rule *model.ScheduleRule) error
	DeleteRule(ctx context.Context, id int64) error

	// Overtime sessions.
	ListSessions(ctx context.Context) ([]model.OvertimeSession, error)
	GetSession(ctx context.Context, id int64) (model.OvertimeSession, error)
	CreateSession(ctx context.Context, session *model.OvertimeSession) error
	UpdateSession(ctx context.Context, session *model.OvertimeSession) error
	DeleteSession(ctx context.Context, id int64) error
	StartSession(ctx context.Context, id int64) error
	CompleteSession(ctx context.Context, id int64, endTime string, durationMinutes *int) error

	// DB exposes the underlying handle for callers that need raw access.
	DB() *gorm.DB
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB { return s.db }

func (s *gormStore) ListRules(ctx context.Context) ([]model.ScheduleRule, error) {
	var rules []model.ScheduleRule
	if err := s.db.WithContext(ctx).Order("day_of_week, start_time").Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("failed to list schedule rules: %w", err)
	}
	return rules, nil
}

func (s *gormStore) ActiveRulesForDay(ctx context.Context, day string) ([]model.ScheduleRule, error) {
	var rules []model.ScheduleRule
	err := s.db.WithContext(ctx).
		Where("is_active = ? AND day_of_week = ?", true, day).
		Find(&rules).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch active rules for %s: %w", day, err)
	}
	return rules, nil
}

func (s *gormStore) CreateRule(ctx context.Context, rule *model.ScheduleRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(rule).Error
}

func (s *gormStore) UpdateRule(ctx context.Context, rule *model.ScheduleRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Save(rule).Error
}

func (s *gormStore) DeleteRule(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Delete(&model.ScheduleRule{}, id).Error
}

func (s *gormStore) ListSessions(ctx context.Context) ([]model.OvertimeSession, error) {
	var sessions []model.OvertimeSession
	err := s.db.WithContext(ctx).
		Order("overtime_date DESC, start_time DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list overtime sessions: %w", err)
	}
	return sessions, nil
}

func (s *gormStore) GetSession(ctx context.Context, id int64) (model.OvertimeSession, error) {
	var session model.OvertimeSession
	if err := s.db.WithContext(ctx).First(&session, id).Error; err != nil {
		return model.OvertimeSession{}, err
	}
	return session, nil
}

func (s *gormStore) CreateSession(ctx context.Context, session *model.OvertimeSession) error {
	if err := session.Validate(); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(session).Error
}

func (s *gormStore) UpdateSession(ctx context.Context, session *model.OvertimeSession) error {
	if err := session.Validate(); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Save(session).Error
}

func (s *gormStore) DeleteSession(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Delete(&model.OvertimeSession{}, id).Error
}

// StartSession marks a session Running. The caller is responsible for
// checking the transition is legal; this is the persistence step only.
func (s *gormStore) StartSession(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).
		Model(&model.OvertimeSession{}).
		Where("id = ?", id).
		Update("status", model.StatusRunning).Error
}

// CompleteSession marks a session Completed, recording its actual end
// time and, when known, the elapsed duration in minutes.
func (s *gormStore) CompleteSession(ctx context.Context, id int64, endTime string, durationMinutes *int) error {
	updates := map[string]any{
		"status":   model.StatusCompleted,
		"end_time": endTime,
	}
	if durationMinutes != nil {
		updates["duration_minutes"] = *durationMinutes
	}
	return s.db.WithContext(ctx).
		Model(&model.OvertimeSession{}).
		Where("id = ?", id).
		Updates(updates).Error
}
