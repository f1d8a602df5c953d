package nlu

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/avenlabs/chat-scheduler/internal/domain/conversation"
)

// Parser is the deterministic fallback understanding step. It always
// runs, so a turn never depends on the external model being reachable.
type Parser struct{}

var weekdays = map[string]time.Weekday{
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "tues": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
	"sunday": time.Sunday, "sun": time.Sunday,
}

var months = map[string]time.Month{
	"jan": time.January, "january": time.January,
	"feb": time.February, "february": time.February,
	"mar": time.March, "march": time.March,
	"apr": time.April, "april": time.April,
	"may": time.May,
	"jun": time.June, "june": time.June,
	"jul": time.July, "july": time.July,
	"aug": time.August, "august": time.August,
	"sep": time.September, "sept": time.September, "september": time.September,
	"oct": time.October, "october": time.October,
	"nov": time.November, "november": time.November,
	"dec": time.December, "december": time.December,
}

var (
	isoDateRe  = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)
	time24Re   = regexp.MustCompile(`\b([01]\d|2[0-3]):([0-5]\d)\b`)
	time12Re   = regexp.MustCompile(`(?i)\b(1[0-2]|0?[1-9])(?::([0-5]\d))?\s*(am|pm)\b`)
	ianaTzRe   = regexp.MustCompile(`\b([A-Za-z]+/[A-Za-z_]+)\b`)
	utcRe      = regexp.MustCompile(`(?i)\b(utc|gmt)\b`)
	monthDayRe = regexp.MustCompile(`(?i)\b(jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|jun(?:e)?|jul(?:y)?|aug(?:ust)?|sep(?:t)?(?:ember)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\s+(\d{1,2})(?:st|nd|rd|th)?\b`)
	dayMonthRe = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+(jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|jun(?:e)?|jul(?:y)?|aug(?:ust)?|sep(?:t)?(?:ember)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\b`)
	weekdayRe  = regexp.MustCompile(`(?i)\b(next\s+)?(mon(?:day)?|tue(?:s|sday)?|wed(?:nesday)?|thu(?:r|rs|rsday)?|fri(?:day)?|sat(?:urday)?|sun(?:day)?)\b`)
)

var hedgeWords = []string{
	"maybe", "sometime", "some time", "probably", "perhaps",
	"around", "roughly", "not sure", "possibly",
}

var bookingWords = []string{"book", "schedule", "appointment", "meeting", "reserve"}

var rescheduleWords = []string{"reschedule", "move", "change time", "change the time", "different time"}

var cancelWords = []string{"cancel", "never mind", "nevermind", "forget it", "stop"}

// serviceWords maps recognized service keywords to the stored service
// type; several phrasings collapse into "consultation".
var serviceWords = map[string]string{
	"consultation": "consultation",
	"demo":         "demo",
	"intro":        "consultation",
	"introduction": "consultation",
	"call":         "call",
	"meeting":      "meeting",
	"check-in":     "consultation",
	"sync":         "consultation",
}

func containsAny(msg string, words []string) bool {
	for _, w := range words {
		if strings.Contains(msg, w) {
			return true
		}
	}
	return false
}

func IsHedged(message string) bool {
	return containsAny(strings.ToLower(message), hedgeWords)
}

func IsCancel(message string) bool {
	return containsAny(strings.ToLower(message), cancelWords)
}

func IsReschedule(message string) bool {
	return containsAny(strings.ToLower(message), rescheduleWords)
}

func IsViewBooking(message string) bool {
	msg := strings.ToLower(message)
	for _, p := range []string{"what did i book", "what have i booked", "my booking", "my appointment"} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return strings.Contains(msg, "what") && strings.Contains(msg, "book")
}

// InferIntent classifies the message by keyword. Booking and reschedule
// phrasing is a strong signal; anything else defaults to inquiry at a
// confidence that never displaces an in-progress booking intent.
func InferIntent(message string) conversation.Candidate {
	msg := strings.ToLower(message)
	if containsAny(msg, rescheduleWords) || containsAny(msg, bookingWords) {
		conf := 0.9
		if IsHedged(message) {
			conf = 0.7
		}
		return conversation.Candidate{Value: conversation.IntentBooking, Confidence: conf}
	}
	return conversation.Candidate{Value: conversation.IntentInquiry, Confidence: 0.65}
}

func ParseTime(text string) (string, bool) {
	if m := time24Re.FindStringSubmatch(text); m != nil {
		return m[1] + ":" + m[2], true
	}

	if m := time12Re.FindStringSubmatch(text); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute := 0
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		ampm := strings.ToLower(m[3])
		if ampm == "pm" && hour != 12 {
			hour += 12
		}
		if ampm == "am" && hour == 12 {
			hour = 0
		}
		return fmt.Sprintf("%02d:%02d", hour, minute), true
	}

	return "", false
}

func ParseTimezone(text string) (string, bool) {
	if m := ianaTzRe.FindStringSubmatch(text); m != nil {
		return m[1], true
	}

	lowered := strings.ToLower(text)
	if strings.Contains(lowered, "new york") {
		return "America/New_York", true
	}
	if strings.Contains(lowered, "london") {
		return "Europe/London", true
	}

	if utcRe.MatchString(text) {
		return "UTC", true
	}
	return "", false
}

func ParseServiceType(text string) (string, bool) {
	msg := strings.ToLower(text)
	for keyword, service := range serviceWords {
		if strings.Contains(msg, keyword) {
			return service, true
		}
	}
	return "", false
}

func ParseDate(text string, now time.Time) (string, bool) {
	if m := isoDateRe.FindStringSubmatch(text); m != nil {
		return m[1], true
	}

	lower := strings.ToLower(text)
	today := now.UTC().Truncate(24 * time.Hour)
	if strings.Contains(lower, "today") {
		return today.Format("2006-01-02"), true
	}
	if strings.Contains(lower, "tomorrow") {
		return today.AddDate(0, 0, 1).Format("2006-01-02"), true
	}

	if d, ok := parseMonthDay(text, now); ok {
		return d, true
	}
	if d, ok := parseDayMonth(text, now); ok {
		return d, true
	}
	return parseNextWeekday(text, now)
}

func parseMonthDay(text string, now time.Time) (string, bool) {
	m := monthDayRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	month, ok := months[strings.ToLower(m[1])]
	if !ok {
		return "", false
	}
	day, _ := strconv.Atoi(m[2])
	return resolveMonthDay(month, day, now)
}

func parseDayMonth(text string, now time.Time) (string, bool) {
	m := dayMonthRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	day, _ := strconv.Atoi(m[1])
	month, ok := months[strings.ToLower(m[2])]
	if !ok {
		return "", false
	}
	return resolveMonthDay(month, day, now)
}

// resolveMonthDay picks this year's occurrence, or next year's when the
// date already passed.
func resolveMonthDay(month time.Month, day int, now time.Time) (string, bool) {
	year := now.UTC().Year()
	candidate := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if candidate.Month() != month || candidate.Day() != day {
		return "", false
	}

	today := time.Date(now.UTC().Year(), now.UTC().Month(), now.UTC().Day(), 0, 0, 0, 0, time.UTC)
	if candidate.Before(today) {
		candidate = time.Date(year+1, month, day, 0, 0, 0, 0, time.UTC)
		if candidate.Month() != month || candidate.Day() != day {
			return "", false
		}
	}
	return candidate.Format("2006-01-02"), true
}

func parseNextWeekday(text string, now time.Time) (string, bool) {
	m := weekdayRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}

	key := strings.ToLower(m[2])
	target, ok := weekdays[key]
	if !ok {
		// Normalize short forms like "tues" / "thurs".
		for name, wd := range weekdays {
			if strings.HasPrefix(name, key) || strings.HasPrefix(key, name) {
				target = wd
				ok = true
				break
			}
		}
		if !ok {
			return "", false
		}
	}

	today := now.UTC()
	delta := (int(target) - int(today.Weekday()) + 7) % 7
	if delta == 0 {
		delta = 7
	}
	// An explicit "next" pushes to the following week's occurrence.
	if m[1] != "" && delta < 7 {
		delta += 7
	}

	return today.AddDate(0, 0, delta).Format("2006-01-02"), true
}

// vagueDateRe catches phrasing that names a period rather than a day;
// the result is a hint, never a value.
var vagueDateRe = regexp.MustCompile(`(?i)\b(next week|this week|next month|in a few days|later)\b`)

// ExtractCandidates runs every deterministic parser over one message and
// returns the candidate set. Hedged messages ("maybe Tuesday") get their
// date/time confidence lowered below any sane threshold so the policy
// asks instead of assuming.
func (p *Parser) ExtractCandidates(message string, now time.Time) conversation.Candidates {
	cands := conversation.Candidates{}

	cands[conversation.FieldIntent] = InferIntent(message)

	dateConf := conversation.DeterministicConf
	timeConf := conversation.DeterministicConf
	if IsHedged(message) {
		dateConf = 0.4
		timeConf = 0.4
	}

	if d, ok := ParseDate(message, now); ok {
		cands[conversation.FieldDate] = conversation.Candidate{Value: d, Confidence: dateConf}
	} else if m := vagueDateRe.FindString(message); m != "" {
		cands[conversation.FieldDate] = conversation.Candidate{Value: strings.ToLower(m), Confidence: 0.3}
	}

	if t, ok := ParseTime(message); ok {
		cands[conversation.FieldTime] = conversation.Candidate{Value: t, Confidence: timeConf}
	}

	if tz, ok := ParseTimezone(message); ok {
		cands[conversation.FieldTimezone] = conversation.Candidate{Value: tz, Confidence: conversation.DeterministicConf}
	}

	if svc, ok := ParseServiceType(message); ok {
		cands[conversation.FieldServiceType] = conversation.Candidate{Value: svc, Confidence: 0.8}
	}

	return cands
}
