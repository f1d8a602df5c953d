package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domain "github.com/avenlabs/chat-scheduler/internal/domain/booking"
	"github.com/avenlabs/chat-scheduler/internal/domain/conversation"
	"github.com/avenlabs/chat-scheduler/internal/httperr"
	"github.com/avenlabs/chat-scheduler/internal/models"
)

// ======================================================
// Booking repository (GORM / Postgres)
// ======================================================

type BookingGormRepository struct {
	db *gorm.DB
}

func NewBookingGormRepository(db *gorm.DB) *BookingGormRepository {
	return &BookingGormRepository{db: db}
}

func (r *BookingGormRepository) GetSession(ctx context.Context, sessionID string) (*models.ChatSession, error) {
	var s models.ChatSession
	err := r.db.WithContext(ctx).First(&s, "id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// EnsureSession loads the session or creates a fresh COLLECTING one under
// the caller-chosen id. A session is private to the user who created it.
func (r *BookingGormRepository) EnsureSession(ctx context.Context, userID, sessionID string) (*models.ChatSession, error) {
	s, err := r.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if s == nil {
		s = &models.ChatSession{
			ID:           sessionID,
			UserID:       userID,
			Messages:     models.MessageLog{},
			Slots:        models.SlotSet{},
			BookingPhase: string(conversation.InitialPhase()),
		}
		if cerr := r.db.WithContext(ctx).Create(s).Error; cerr != nil {
			if !isUniqueViolation(cerr) {
				return nil, cerr
			}
			// A concurrent creator won; fall through to the ownership
			// check on the stored row.
			if s, err = r.GetSession(ctx, sessionID); err != nil || s == nil {
				return nil, cerr
			}
		}
	}

	if s.UserID != userID {
		return nil, httperr.ErrBusiness("session_forbidden")
	}
	return s, nil
}

// SaveSession writes the full session state guarded by the version
// column. Zero affected rows means another turn won the race.
func (r *BookingGormRepository) SaveSession(ctx context.Context, s *models.ChatSession) error {
	res := r.db.WithContext(ctx).
		Model(&models.ChatSession{}).
		Where("id = ? AND version = ?", s.ID, s.Version).
		Updates(map[string]any{
			"messages":            s.Messages,
			"slots":               s.Slots,
			"booking_phase":       s.BookingPhase,
			"last_appointment_id": s.LastAppointmentID,
			"version":             s.Version + 1,
			"updated_at":          time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return httperr.ErrBusiness("session_conflict")
	}

	s.Version++
	return nil
}

// CreateAppointment inserts the row; the partial unique index on
// (user_id, start_time) WHERE status = 'BOOKED' is the last line of
// defense against double booking, surfaced as slot_taken.
func (r *BookingGormRepository) CreateAppointment(ctx context.Context, ap *models.Appointment) error {
	err := r.db.WithContext(ctx).Create(ap).Error
	if isUniqueViolation(err) {
		return httperr.ErrBusiness("slot_taken")
	}
	return err
}

// HasOverlap reports a booked appointment of the user intersecting
// [start, end). Inside a transaction the matched rows are locked, so a
// concurrent reschedule of the same user serializes here.
func (r *BookingGormRepository) HasOverlap(ctx context.Context, userID string, start, end time.Time) (bool, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&models.Appointment{}).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND status = ? AND start_time < ? AND end_time > ?",
			userID, string(domain.StatusBooked), end, start).
		Limit(1).
		Pluck("id", &ids).Error
	if err != nil {
		return false, err
	}
	return len(ids) > 0, nil
}

func (r *BookingGormRepository) GetAppointment(ctx context.Context, appointmentID string) (*models.Appointment, error) {
	var ap models.Appointment
	err := r.db.WithContext(ctx).First(&ap, "id = ?", appointmentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ap, nil
}

func (r *BookingGormRepository) LatestBooked(ctx context.Context, userID string) (*models.Appointment, error) {
	var ap models.Appointment
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, string(domain.StatusBooked)).
		Order("created_at DESC").
		First(&ap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ap, nil
}

func (r *BookingGormRepository) UpdateAppointment(ctx context.Context, ap *models.Appointment) error {
	return r.db.WithContext(ctx).Save(ap).Error
}

func (r *BookingGormRepository) Transaction(ctx context.Context, fn func(domain.Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&BookingGormRepository{db: tx})
	})
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ domain.Repository = (*BookingGormRepository)(nil)
