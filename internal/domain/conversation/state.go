package conversation

import (
	"time"

	"github.com/avenlabs/chat-scheduler/internal/httperr"
	"github.com/avenlabs/chat-scheduler/internal/models"
)

// ===============================
// Domain Actions
// ===============================

func AppendUserMessage(s *models.ChatSession, content string, now time.Time) {
	s.Messages = append(s.Messages, models.ChatMessage{
		Role:      "user",
		Content:   content,
		Timestamp: now,
	})
}

func AppendAssistantMessage(s *models.ChatSession, content string, now time.Time) {
	s.Messages = append(s.Messages, models.ChatMessage{
		Role:      "assistant",
		Content:   content,
		Timestamp: now,
	})
}

// Confirm moves the session into CONFIRMING once every required slot is
// resolved.
func Confirm(s *models.ChatSession) error {
	if err := CanConfirm(Phase(s.BookingPhase)); err != nil {
		return err
	}
	s.BookingPhase = string(PhaseConfirming)
	return nil
}

// MarkBooked finalizes a confirmed booking. The appointment reference is
// mandatory: BOOKED without it is an illegal state.
func MarkBooked(s *models.ChatSession, appointmentID string) error {
	if err := CanBook(Phase(s.BookingPhase)); err != nil {
		return err
	}
	if appointmentID == "" {
		return httperr.ErrBusiness("missing_appointment_ref")
	}
	s.BookingPhase = string(PhaseBooked)
	s.LastAppointmentID = &appointmentID
	return nil
}

// Reopen returns the session to COLLECTING with date and time cleared, so
// the next user message is treated as a fresh time request. Timezone and
// service type survive unless the user overrides them later.
func Reopen(s *models.ChatSession) error {
	if err := CanReopen(Phase(s.BookingPhase)); err != nil {
		return err
	}
	s.BookingPhase = string(PhaseCollecting)
	clearDateTime(&s.Slots)
	return nil
}

// CancelByUser handles an explicit cancellation intent mid-collection.
func CancelByUser(s *models.ChatSession) error {
	if err := CanCancel(Phase(s.BookingPhase)); err != nil {
		return err
	}
	s.BookingPhase = string(PhaseCancelled)
	s.Slots = models.SlotSet{}
	return nil
}

// DropDateTime discards the date/time pair without touching the phase,
// used when the pair resolves to an unparsable instant and must be
// re-collected.
func DropDateTime(s *models.ChatSession) {
	clearDateTime(&s.Slots)
}

func clearDateTime(slots *models.SlotSet) {
	delete(slots.Fields, FieldDate)
	delete(slots.Fields, FieldTime)
	delete(slots.Hints, FieldDate)
	delete(slots.Hints, FieldTime)
	delete(slots.Prompts, FieldDate)
	delete(slots.Prompts, FieldTime)
}

// CheckInvariants guards against a turn persisting an illegal state. A
// violation indicates a bug and must fail the turn loudly.
func CheckInvariants(s *models.ChatSession) error {
	if Phase(s.BookingPhase) == PhaseBooked {
		if s.LastAppointmentID == nil || *s.LastAppointmentID == "" {
			return httperr.ErrBusiness("booked_without_appointment")
		}
	}
	if len(s.Messages)%2 != 0 {
		return httperr.ErrBusiness("unbalanced_message_log")
	}
	return nil
}
