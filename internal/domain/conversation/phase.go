package conversation

import "github.com/avenlabs/chat-scheduler/internal/httperr"

// ===============================
// Booking Phase
// ===============================

type Phase string

const (
	PhaseCollecting Phase = "COLLECTING"
	PhaseConfirming Phase = "CONFIRMING"
	PhaseBooked     Phase = "BOOKED"
	PhaseCancelled  Phase = "CANCELLED_BY_USER"
)

// ===============================
// Transition guards
// ===============================

// CanConfirm allows COLLECTING -> CONFIRMING once every required slot
// is resolved.
func CanConfirm(current Phase) error {
	if current != PhaseCollecting {
		return httperr.ErrBusiness("invalid_phase")
	}
	return nil
}

// CanBook allows CONFIRMING -> BOOKED within the same turn that produced
// a successful availability result.
func CanBook(current Phase) error {
	if current != PhaseConfirming {
		return httperr.ErrBusiness("invalid_phase")
	}
	return nil
}

// CanReopen allows BOOKED -> COLLECTING (reschedule),
// CONFIRMING -> COLLECTING (availability rejected) and
// CANCELLED_BY_USER -> COLLECTING (a fresh booking intent).
func CanReopen(current Phase) error {
	if current != PhaseBooked && current != PhaseConfirming && current != PhaseCancelled {
		return httperr.ErrBusiness("invalid_phase")
	}
	return nil
}

// CanCancel allows an explicit user cancellation while a booking is
// still in progress.
func CanCancel(current Phase) error {
	if current != PhaseCollecting && current != PhaseConfirming {
		return httperr.ErrBusiness("invalid_phase")
	}
	return nil
}

func InitialPhase() Phase {
	return PhaseCollecting
}
