package model

import (
	"fmt"
	"time"
)

// OvertimeSession is a manually scheduled period during which selected
// lights must stay on regardless of the default schedule. Sessions move
// NotStarted -> Running -> Completed as wall-clock time passes; Completed
// is terminal and is never re-activated by the evaluator.
type OvertimeSession struct {
	ID              int64          `gorm:"primaryKey" json:"id"`
	EmployeeName    string         `gorm:"size:100;not null" json:"employee_name"`
	DivisionName    string         `gorm:"size:100;not null" json:"division_name"`
	OvertimeDate    string         `gorm:"size:10;not null;index" json:"overtime_date"` // YYYY-MM-DD
	StartTime       string         `gorm:"size:5;not null" json:"start_time"`           // HH:MM
	EndTime         *string        `gorm:"size:5" json:"end_time"`                      // nil = open-ended
	DurationMinutes *int           `json:"duration"`
	Status          SessionStatus  `gorm:"not null;default:0;index" json:"status"`
	LightSelection  LightSelection `gorm:"size:8;not null;default:all" json:"light_selection"`
	Notes           string         `gorm:"size:500" json:"notes"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

const dateLayout = "2006-01-02"

// Validate checks the fields an operator supplies on create/edit.
func (s OvertimeSession) Validate() error {
	if s.EmployeeName == "" {
		return fmt.Errorf("employee_name is required")
	}
	if s.DivisionName == "" {
		return fmt.Errorf("division_name is required")
	}
	if _, err := time.Parse(dateLayout, s.OvertimeDate); err != nil {
		return fmt.Errorf("overtime_date: %w", err)
	}
	start, err := ParseClock(s.StartTime)
	if err != nil {
		return fmt.Errorf("start_time: %w", err)
	}
	if s.EndTime != nil {
		end, err := ParseClock(*s.EndTime)
		if err != nil {
			return fmt.Errorf("end_time: %w", err)
		}
		if end <= start {
			return fmt.Errorf("end_time must be after start_time")
		}
	}
	if _, err := ParseLightSelection(string(s.LightSelection)); err != nil {
		return err
	}
	return nil
}

// StartAt resolves the session's start instant in the given location.
func (s OvertimeSession) StartAt(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(dateLayout+" 15:04", s.OvertimeDate+" "+s.StartTime, loc)
}

// EndAt resolves the session's end instant, or nil for open-ended sessions.
func (s OvertimeSession) EndAt(loc *time.Location) (*time.Time, error) {
	if s.EndTime == nil || *s.EndTime == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(dateLayout+" 15:04", s.OvertimeDate+" "+*s.EndTime, loc)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
