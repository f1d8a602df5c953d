package chat

import (
	"fmt"
	"strings"
	"time"

	domain "github.com/avenlabs/chat-scheduler/internal/domain/booking"
	"github.com/avenlabs/chat-scheduler/internal/domain/conversation"
	"github.com/avenlabs/chat-scheduler/internal/models"
	"github.com/avenlabs/chat-scheduler/internal/timezone"
)

// ======================================================
// Canned replies
// ======================================================
//
// Every turn has a deterministic reply for its decided action. The
// language model, when configured, rephrases these; it never decides.

const (
	replyGeneral = "Happy to help! I can also book a one-hour appointment for you - just tell me a date and time."

	replyCancelled = "No problem, I've cancelled this booking request. Tell me whenever you want to schedule something."

	replyNothingToCancel = "There's no booking in progress to cancel. If you want to change an existing appointment, just say \"reschedule\"."

	replyNoBooking = "You don't have a booked appointment yet. Want to schedule one?"

	replyInvalidDatetime = "I couldn't turn that into a valid date and time. Could you give me the date (like 2026-09-01) and an on-the-hour time?"

	replyTryAgain = "Sorry, something went wrong on my side. Please send that message again."
)

var askReplies = map[string]string{
	conversation.FieldIntent:      "Hi! I can book a one-hour appointment for you. Would you like to schedule one?",
	conversation.FieldDate:        "What date works for you?",
	conversation.FieldTime:        "What time would you like? Slots are one hour, on the hour, weekdays 09:00-17:00 UTC.",
	conversation.FieldTimezone:    "Which timezone should I use? An IANA name like America/New_York works; otherwise I'll assume UTC.",
	conversation.FieldServiceType: "What kind of appointment is this - consultation, demo, call or meeting? Otherwise I'll book it as general.",
}

func askReply(field, hint string) string {
	base, ok := askReplies[field]
	if !ok {
		base = fmt.Sprintf("Could you tell me the %s?", strings.ReplaceAll(field, "_", " "))
	}
	if hint != "" {
		return fmt.Sprintf("%s You mentioned %q - could you confirm exactly?", base, hint)
	}
	return base
}

func formatSlot(t time.Time, tz string) string {
	loc := timezone.Location(tz)
	return t.In(loc).Format("Monday, Jan 2 2006 at 15:04 (MST)")
}

func formatSlots(ts []time.Time, tz string) []string {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		out = append(out, formatSlot(t, tz))
	}
	return out
}

func bookedReply(start time.Time, tz, serviceType string) string {
	return fmt.Sprintf("You're booked! A one-hour %s appointment on %s. See you then.", serviceType, formatSlot(start, tz))
}

func conflictReply(v *domain.Verdict, tz string) string {
	var sb strings.Builder
	if v.Reason == domain.ReasonOutsideHours {
		sb.WriteString("That time is outside business hours - I can only book weekday slots on the hour between 09:00 and 17:00 UTC.")
	} else {
		sb.WriteString("That slot is already taken.")
	}

	switch len(v.Alternatives) {
	case 0:
		sb.WriteString(" I couldn't find a free slot in the following week; could you try a different date?")
	case 1:
		sb.WriteString(fmt.Sprintf(" The nearest opening is %s - does that work?", formatSlot(v.Alternatives[0], tz)))
	default:
		sb.WriteString(fmt.Sprintf(" The nearest openings are %s and %s - does either work?",
			formatSlot(v.Alternatives[0], tz), formatSlot(v.Alternatives[1], tz)))
	}
	return sb.String()
}

func viewReply(ap *models.Appointment, tz string) string {
	return fmt.Sprintf("Your latest booking is a %s appointment on %s.", ap.ServiceType, formatSlot(ap.StartTime, tz))
}

func alreadyBookedReply(s *models.ChatSession) string {
	date, _ := conversation.SlotValue(s.Slots, conversation.FieldDate)
	tme, _ := conversation.SlotValue(s.Slots, conversation.FieldTime)
	tz, _ := conversation.SlotValue(s.Slots, conversation.FieldTimezone)
	if date != "" && tme != "" {
		return fmt.Sprintf("You're all set - your appointment is booked for %s at %s (%s). Say \"reschedule\" if you need a different time.", date, tme, tz)
	}
	return "You're all set - your appointment is booked. Say \"reschedule\" if you need a different time."
}
