package booking

import "time"

// Unavailability reasons surfaced to the reply composer.
const (
	ReasonOutsideHours = "outside_hours"
	ReasonSlotTaken    = "slot_taken"
)

// Verdict is the availability engine's answer for one requested slot.
type Verdict struct {
	Available    bool
	Reason       string
	Alternatives []time.Time
}
