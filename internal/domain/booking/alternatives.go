package booking

import "time"

// alternativeScanBound caps the forward scan at one week of hour steps;
// from any weekday slot the next two free business slots are well inside
// that window unless the calendar is fully booked.
const alternativeScanBound = 24 * 7

// Alternatives returns the next `limit` bookable slots strictly after
// the requested start, in chronological order, skipping slots the
// predicate reports as taken.
func Alternatives(isBooked func(time.Time) (bool, error), after time.Time, limit int) ([]time.Time, error) {
	var out []time.Time
	cursor := after.UTC().Truncate(time.Hour)

	for i := 0; i < alternativeScanBound && len(out) < limit; i++ {
		cursor = cursor.Add(time.Hour)
		if !WithinBusinessHours(cursor) {
			continue
		}
		taken, err := isBooked(cursor)
		if err != nil {
			return nil, err
		}
		if taken {
			continue
		}
		out = append(out, cursor)
	}

	return out, nil
}
