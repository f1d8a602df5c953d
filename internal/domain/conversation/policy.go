package conversation

import "github.com/avenlabs/chat-scheduler/internal/models"

// ===============================
// Slot-filling policy
// ===============================

type ActionKind string

const (
	// ActionAsk emits one clarifying question about Action.Field.
	ActionAsk ActionKind = "ask"
	// ActionInquiry short-circuits slot filling for this turn.
	ActionInquiry ActionKind = "inquiry"
	// ActionReady means every required slot is resolved.
	ActionReady ActionKind = "ready"
)

type Action struct {
	Kind  ActionKind
	Field string
	Hint  string
}

// Merge folds extracted candidates into the current slot set.
//
// Rules:
//   - empty candidates are ignored;
//   - a candidate at or above the threshold fills an absent field, and
//     replaces a present one only when its confidence is not lower than
//     the stored confidence (a solid value is never downgraded);
//   - a sub-threshold candidate never becomes a value; for an absent
//     field it is kept as a hint so the policy can ask a targeted
//     question instead of assuming.
func Merge(slots models.SlotSet, cands Candidates, threshold float64) models.SlotSet {
	out := CloneSlots(slots)

	for field, c := range cands {
		if c.Value == "" {
			continue
		}

		if c.Confidence < threshold {
			if _, filled := SlotValue(out, field); !filled {
				setHint(&out, field, c.Value)
			}
			continue
		}

		cur, filled := out.Fields[field]
		if !filled || c.Confidence >= cur.Confidence {
			setSlot(&out, field, c.Value, c.Confidence)
		}
	}

	return out
}

// Advance applies the one-prompt-then-default rule for the optional
// fields and returns the next action. It asks about exactly one field,
// the first missing one in RequiredOrder, and records the prompt so the
// process stays strictly monotonic: each optional field is asked about
// at most once, so clarification cannot loop.
func Advance(slots models.SlotSet) (models.SlotSet, Action) {
	out := CloneSlots(slots)

	intent, ok := SlotValue(out, FieldIntent)
	if !ok {
		markPrompted(&out, FieldIntent)
		return out, Action{Kind: ActionAsk, Field: FieldIntent, Hint: out.Hints[FieldIntent]}
	}
	if intent == IntentInquiry {
		return out, Action{Kind: ActionInquiry}
	}

	for _, field := range []string{FieldDate, FieldTime} {
		if _, ok := SlotValue(out, field); !ok {
			markPrompted(&out, field)
			return out, Action{Kind: ActionAsk, Field: field, Hint: out.Hints[field]}
		}
	}

	// Timezone and service type are asked about once, then defaulted.
	if _, ok := SlotValue(out, FieldTimezone); !ok {
		if out.Prompts[FieldTimezone] == 0 {
			markPrompted(&out, FieldTimezone)
			return out, Action{Kind: ActionAsk, Field: FieldTimezone, Hint: out.Hints[FieldTimezone]}
		}
		setSlot(&out, FieldTimezone, DefaultTimezone, DefaultConf)
	}

	if _, ok := SlotValue(out, FieldServiceType); !ok {
		if out.Prompts[FieldServiceType] == 0 {
			markPrompted(&out, FieldServiceType)
			return out, Action{Kind: ActionAsk, Field: FieldServiceType, Hint: out.Hints[FieldServiceType]}
		}
		setSlot(&out, FieldServiceType, DefaultService, DefaultConf)
	}

	return out, Action{Kind: ActionReady}
}
