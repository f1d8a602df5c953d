package booking

import (
	"time"

	"github.com/avenlabs/chat-scheduler/internal/httperr"
	"github.com/avenlabs/chat-scheduler/internal/timezone"
)

// Business rules are fixed and evaluated in UTC: weekday slots on the
// hour, starting between 09:00 and 16:00 so the last one ends at 17:00.
const (
	OpenHourUTC  = 9
	CloseHourUTC = 17
	SlotDuration = time.Hour
)

// WithinBusinessHours reports whether a start time is a legal slot. Pure:
// same input, same verdict.
func WithinBusinessHours(start time.Time) bool {
	t := start.UTC()

	if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	if t.Minute() != 0 || t.Second() != 0 || t.Nanosecond() != 0 {
		return false
	}
	return t.Hour() >= OpenHourUTC && t.Hour()+int(SlotDuration.Hours()) <= CloseHourUTC
}

func SlotEnd(start time.Time) time.Time {
	return start.Add(SlotDuration)
}

// ResolveStart combines the date, time and timezone slots into the UTC
// slot start. An unknown timezone name falls back to UTC rather than
// failing the turn.
func ResolveStart(dateStr, timeStr, tz string) (time.Time, error) {
	loc := timezone.Location(tz)

	local, err := time.ParseInLocation("2006-01-02 15:04", dateStr+" "+timeStr, loc)
	if err != nil {
		return time.Time{}, httperr.ErrBusiness("invalid_date_or_time")
	}
	return local.UTC(), nil
}
