package booking

import (
	"context"
	"time"

	"github.com/google/uuid"

	domain "github.com/avenlabs/chat-scheduler/internal/domain/booking"
	"github.com/avenlabs/chat-scheduler/internal/domain/conversation"
	"github.com/avenlabs/chat-scheduler/internal/httperr"
	"github.com/avenlabs/chat-scheduler/internal/models"
)

// ======================================================
// Use case: booking commit
// ======================================================

type Commit struct {
	repo domain.Repository
}

func NewCommit(repo domain.Repository) *Commit {
	return &Commit{repo: repo}
}

type CommitInput struct {
	Session     *models.ChatSession
	Start       time.Time
	ServiceType string
	// Reply is the assistant confirmation appended to the session log; it
	// is composed before the transaction so the insert, the phase change
	// and the log entry land as one unit.
	Reply string
	Now   time.Time
}

// Execute books the slot. The overlap re-check, the previous-appointment
// cancellation on reschedule, the insert and the session save share one
// database transaction: either the user ends up with exactly one BOOKED
// appointment and a BOOKED session, or nothing changed.
//
// A retried commit for slots identical to the session's last booked
// appointment returns that appointment instead of inserting again.
func (uc *Commit) Execute(ctx context.Context, in CommitInput) (*models.Appointment, error) {
	s := in.Session
	end := domain.SlotEnd(in.Start)

	var booked *models.Appointment

	err := uc.repo.Transaction(ctx, func(tx domain.Repository) error {
		if s.LastAppointmentID != nil {
			prev, err := tx.GetAppointment(ctx, *s.LastAppointmentID)
			if err != nil {
				return err
			}
			if prev != nil && domain.Status(prev.Status) == domain.StatusBooked {
				if prev.StartTime.Equal(in.Start) && prev.ServiceType == in.ServiceType {
					// Same slot, same service: nothing to change.
					booked = prev
					return uc.finalize(ctx, tx, s, prev, in)
				}
				// Reschedule: the old slot is released in the same
				// transaction that claims the new one.
				if err := domain.Cancel(prev, in.Now); err != nil {
					return err
				}
				if err := tx.UpdateAppointment(ctx, prev); err != nil {
					return err
				}
			}
		}

		taken, err := tx.HasOverlap(ctx, s.UserID, in.Start, end)
		if err != nil {
			return err
		}
		if taken {
			return httperr.ErrBusiness("slot_taken")
		}

		ap := &models.Appointment{
			ID:          uuid.NewString(),
			UserID:      s.UserID,
			StartTime:   in.Start,
			EndTime:     end,
			ServiceType: in.ServiceType,
			Status:      string(domain.InitialStatus()),
		}
		if err := tx.CreateAppointment(ctx, ap); err != nil {
			return err
		}

		booked = ap
		return uc.finalize(ctx, tx, s, ap, in)
	})
	if err != nil {
		return nil, err
	}

	return booked, nil
}

func (uc *Commit) finalize(ctx context.Context, tx domain.Repository, s *models.ChatSession, ap *models.Appointment, in CommitInput) error {
	if err := conversation.MarkBooked(s, ap.ID); err != nil {
		return err
	}
	conversation.AppendAssistantMessage(s, in.Reply, in.Now)
	if err := conversation.CheckInvariants(s); err != nil {
		return err
	}
	return tx.SaveSession(ctx, s)
}
