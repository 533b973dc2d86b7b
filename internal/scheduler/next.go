package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vrsandeep/litpush/internal/models"
)

// DefaultTimeOfDay is used when neither the subscription nor the config
// carries a valid HH:MM value.
const DefaultTimeOfDay = "09:00"

// parseTimeOfDay reads "HH:MM". ok is false on anything malformed.
func parseTimeOfDay(s string) (hour, minute int, ok bool) {
	h, m, found := strings.Cut(strings.TrimSpace(s), ":")
	if !found {
		return 0, 0, false
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, false
	}
	minute, err = strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, false
	}
	return hour, minute, true
}

func clockOf(sub *models.Subscription, fallback string) (int, int) {
	if h, m, ok := parseTimeOfDay(sub.TimeOfDay); ok {
		return h, m
	}
	if h, m, ok := parseTimeOfDay(fallback); ok {
		return h, m
	}
	h, m, _ := parseTimeOfDay(DefaultTimeOfDay)
	return h, m
}

// daysIn returns the number of days of month m in year y.
func daysIn(y int, m time.Month, loc *time.Location) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, loc).Day()
}

func monthlyAt(y int, m time.Month, day, hour, minute int, loc *time.Location) time.Time {
	// Normalize the month first so day clamping sees the real target month.
	first := time.Date(y, m, 1, 0, 0, 0, 0, loc)
	y, m = first.Year(), first.Month()
	if last := daysIn(y, m, loc); day > last {
		day = last
	}
	return time.Date(y, m, day, hour, minute, 0, 0, loc)
}

// NextRun computes the next execution instant of sub strictly after now, in
// loc. A malformed time of day falls back to defaultTime, then to 09:00.
// Weekday follows time.Weekday and defaults to Monday when out of range; a
// day of month outside 1..31 becomes 1; an unknown frequency is daily.
func NextRun(sub *models.Subscription, now time.Time, loc *time.Location, defaultTime string) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	now = now.In(loc)
	hour, minute := clockOf(sub, defaultTime)
	today := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, loc)

	switch sub.Frequency {
	case models.FrequencyWeekly:
		weekday := time.Weekday(sub.Weekday)
		if sub.Weekday < 0 || sub.Weekday > 6 {
			weekday = time.Monday
		}
		ahead := (int(weekday) - int(now.Weekday()) + 7) % 7
		candidate := today.AddDate(0, 0, ahead)
		if !candidate.After(now) {
			candidate = candidate.AddDate(0, 0, 7)
		}
		return candidate

	case models.FrequencyMonthly:
		day := sub.DayOfMonth
		if day < 1 || day > 31 {
			day = 1
		}
		candidate := monthlyAt(now.Year(), now.Month(), day, hour, minute, loc)
		if !candidate.After(now) {
			candidate = monthlyAt(now.Year(), now.Month()+1, day, hour, minute, loc)
		}
		return candidate

	default:
		candidate := today
		if !candidate.After(now) {
			candidate = candidate.AddDate(0, 0, 1)
		}
		return candidate
	}
}

// JobKey is the idempotency key of a run of subscriptionID at runAt.
func JobKey(subscriptionID int64, runAt time.Time) string {
	return fmt.Sprintf("sub:%d:%d", subscriptionID, runAt.Unix())
}
