package conversation

import "github.com/avenlabs/chat-scheduler/internal/models"

// ===============================
// Slot fields
// ===============================

const (
	FieldIntent      = "intent"
	FieldDate        = "date"     // YYYY-MM-DD
	FieldTime        = "time"     // HH:MM, 24-hour
	FieldTimezone    = "timezone" // IANA name or UTC
	FieldServiceType = "service_type"
)

const (
	IntentBooking = "booking"
	IntentInquiry = "inquiry"
)

const (
	DefaultTimezone = "UTC"
	DefaultService  = "general"

	// DeterministicConf is assigned to values recovered by the regex
	// fallback parser; DefaultConf marks applied defaults, kept low so
	// any explicit later value can replace them.
	DeterministicConf = 0.95
	DefaultConf       = 0.5
)

// RequiredOrder is the fixed clarification order. Intent gates the rest:
// nothing else is required until intent resolves to booking.
var RequiredOrder = []string{FieldIntent, FieldDate, FieldTime, FieldTimezone, FieldServiceType}

// Candidate is one extracted field value. Candidates below the configured
// confidence threshold never become slot values; they survive only as
// hints for the next clarifying question.
type Candidate struct {
	Value      string
	Confidence float64
}

type Candidates map[string]Candidate

// ===============================
// SlotSet helpers
// ===============================

func SlotValue(slots models.SlotSet, field string) (string, bool) {
	v, ok := slots.Fields[field]
	if !ok || v.Value == "" {
		return "", false
	}
	return v.Value, true
}

func setSlot(slots *models.SlotSet, field, value string, confidence float64) {
	if slots.Fields == nil {
		slots.Fields = make(map[string]models.SlotValue)
	}
	slots.Fields[field] = models.SlotValue{Value: value, Confidence: confidence}
	delete(slots.Hints, field)
}

func setHint(slots *models.SlotSet, field, value string) {
	if slots.Hints == nil {
		slots.Hints = make(map[string]string)
	}
	slots.Hints[field] = value
}

func markPrompted(slots *models.SlotSet, field string) {
	if slots.Prompts == nil {
		slots.Prompts = make(map[string]int)
	}
	slots.Prompts[field]++
}

// CloneSlots deep-copies a slot set so a retried turn never sees partial
// mutations from the failed attempt.
func CloneSlots(slots models.SlotSet) models.SlotSet {
	out := models.SlotSet{}
	if slots.Fields != nil {
		out.Fields = make(map[string]models.SlotValue, len(slots.Fields))
		for k, v := range slots.Fields {
			out.Fields[k] = v
		}
	}
	if slots.Hints != nil {
		out.Hints = make(map[string]string, len(slots.Hints))
		for k, v := range slots.Hints {
			out.Hints[k] = v
		}
	}
	if slots.Prompts != nil {
		out.Prompts = make(map[string]int, len(slots.Prompts))
		for k, v := range slots.Prompts {
			out.Prompts[k] = v
		}
	}
	return out
}
