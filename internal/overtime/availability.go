package overtime

import (
	"time"

	"smart-building-backend/internal/model"
)

// availabilityBuffer is how long after the day's last schedule window
// ends before overtime may be scheduled.
const availabilityBuffer = time.Minute

// AvailableAt reports whether a new overtime session may be scheduled at
// the given instant, based on the day's active schedule rules: overtime
// opens one minute after the last schedule window of the day ends, and is
// closed while any window is active. Days without rules are always open.
// Malformed rules are ignored.
func AvailableAt(rules []model.ScheduleRule, now time.Time) bool {
	latestEnd := -1
	active := false
	for _, rule := range rules {
		if !rule.IsActive || rule.Validate() != nil {
			continue
		}
		end, err := model.ParseClock(rule.EndTime)
		if err != nil {
			continue
		}
		if end > latestEnd {
			latestEnd = end
		}
		if rule.Contains(now) {
			active = true
		}
	}

	if latestEnd < 0 {
		return true
	}
	if active {
		return false
	}
	buffered := time.Date(now.Year(), now.Month(), now.Day(), latestEnd/60, latestEnd%60, 0, 0, now.Location()).
		Add(availabilityBuffer)
	return !now.Before(buffered)
}
