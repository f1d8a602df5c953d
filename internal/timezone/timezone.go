package timezone

import "time"

// DefaultTimezone is what the engine assumes when the user never states
// one: slots are interpreted as UTC.
const DefaultTimezone = "UTC"

func IsValid(tz string) bool {
	if tz == "" {
		return false
	}
	_, err := time.LoadLocation(tz)
	return err == nil
}

// Location resolves a timezone name, falling back to UTC for anything
// unknown instead of failing a turn over a bad label.
func Location(tz string) *time.Location {
	if IsValid(tz) {
		if loc, err := time.LoadLocation(tz); err == nil {
			return loc
		}
	}
	return time.UTC
}

func NowUTC() time.Time {
	return time.Now().UTC()
}
