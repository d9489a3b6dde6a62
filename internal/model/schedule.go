package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ScheduleRule is a recurring automatic-control instruction: keep one relay
// on inside a same-day time window on a given weekday. Windows that cross
// midnight (start >= end) are a configuration error and are rejected at
// creation time; the evaluator additionally skips them defensively.
type ScheduleRule struct {
	ID         int64     `gorm:"primaryKey" json:"id"`
	Name       string    `gorm:"size:128" json:"name"`
	DeviceType RelayID   `gorm:"size:16;not null;index" json:"device_type"`
	DayOfWeek  string    `gorm:"size:16;not null;index" json:"day_of_week"` // monday..sunday
	StartTime  string    `gorm:"size:5;not null" json:"start_time"`         // HH:MM
	EndTime    string    `gorm:"size:5;not null" json:"end_time"`           // HH:MM
	IsActive   bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// DayName returns the lowercase weekday name used in DayOfWeek.
func DayName(t time.Time) string {
	return strings.ToLower(t.Weekday().String())
}

// ParseClock parses an HH:MM string into minutes since midnight.
func ParseClock(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return 0, fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h*60 + m, nil
}

var validDays = map[string]bool{
	"sunday": true, "monday": true, "tuesday": true, "wednesday": true,
	"thursday": true, "friday": true, "saturday": true,
}

// Validate checks every invariant a rule must hold before it may be stored.
func (r ScheduleRule) Validate() error {
	if _, err := ParseRelayID(string(r.DeviceType)); err != nil {
		return err
	}
	if !validDays[r.DayOfWeek] {
		return fmt.Errorf("unknown day of week %q", r.DayOfWeek)
	}
	start, err := ParseClock(r.StartTime)
	if err != nil {
		return fmt.Errorf("start_time: %w", err)
	}
	end, err := ParseClock(r.EndTime)
	if err != nil {
		return fmt.Errorf("end_time: %w", err)
	}
	if start >= end {
		return fmt.Errorf("window %s-%s does not lie within one day", r.StartTime, r.EndTime)
	}
	return nil
}

// Contains reports whether the rule's window covers the given instant.
// Both window bounds are inclusive. Malformed rules never match.
func (r ScheduleRule) Contains(now time.Time) bool {
	if DayName(now) != r.DayOfWeek {
		return false
	}
	start, err := ParseClock(r.StartTime)
	if err != nil {
		return false
	}
	end, err := ParseClock(r.EndTime)
	if err != nil || start >= end {
		return false
	}
	cur := now.Hour()*60 + now.Minute()
	return cur >= start && cur <= end
}
