package booking

import (
	"context"
	"time"

	"github.com/avenlabs/chat-scheduler/internal/models"
)

type Repository interface {
	// -------- Chat session --------
	GetSession(
		ctx context.Context,
		sessionID string,
	) (*models.ChatSession, error)

	EnsureSession(
		ctx context.Context,
		userID string,
		sessionID string,
	) (*models.ChatSession, error)

	// SaveSession persists the full session state, guarded by the
	// version column. A concurrent writer makes it fail with the
	// session_conflict business error.
	SaveSession(
		ctx context.Context,
		s *models.ChatSession,
	) error

	// -------- Appointment (create / conflict) --------
	CreateAppointment(
		ctx context.Context,
		ap *models.Appointment,
	) error

	HasOverlap(
		ctx context.Context,
		userID string,
		start time.Time,
		end time.Time,
	) (bool, error)

	GetAppointment(
		ctx context.Context,
		appointmentID string,
	) (*models.Appointment, error)

	LatestBooked(
		ctx context.Context,
		userID string,
	) (*models.Appointment, error)

	UpdateAppointment(
		ctx context.Context,
		ap *models.Appointment,
	) error

	// Transaction runs fn against a repository bound to one database
	// transaction, so the availability check and the booking insert are
	// a single atomic decision per user.
	Transaction(
		ctx context.Context,
		fn func(Repository) error,
	) error
}
