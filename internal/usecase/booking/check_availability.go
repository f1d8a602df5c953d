package booking

import (
	"context"
	"time"

	domain "github.com/avenlabs/chat-scheduler/internal/domain/booking"
)

// alternativeCount: a rejected slot is always answered with up to two
// concrete counter-offers.
const alternativeCount = 2

// ======================================================
// Use case: availability check
// ======================================================

type CheckAvailability struct {
	repo domain.Repository
}

func NewCheckAvailability(repo domain.Repository) *CheckAvailability {
	return &CheckAvailability{repo: repo}
}

// Execute answers whether the user can book the requested start. The
// verdict for an unavailable slot carries the next free business slots
// after it, skipping slots the user already holds.
func (uc *CheckAvailability) Execute(ctx context.Context, userID string, start time.Time) (*domain.Verdict, error) {
	isBooked := func(t time.Time) (bool, error) {
		return uc.repo.HasOverlap(ctx, userID, t, domain.SlotEnd(t))
	}

	if !domain.WithinBusinessHours(start) {
		alts, err := domain.Alternatives(isBooked, start, alternativeCount)
		if err != nil {
			return nil, err
		}
		return &domain.Verdict{Reason: domain.ReasonOutsideHours, Alternatives: alts}, nil
	}

	taken, err := isBooked(start)
	if err != nil {
		return nil, err
	}
	if taken {
		alts, err := domain.Alternatives(isBooked, start, alternativeCount)
		if err != nil {
			return nil, err
		}
		return &domain.Verdict{Reason: domain.ReasonSlotTaken, Alternatives: alts}, nil
	}

	return &domain.Verdict{Available: true}, nil
}
