package chat

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	domain "github.com/avenlabs/chat-scheduler/internal/domain/booking"
	"github.com/avenlabs/chat-scheduler/internal/domain/conversation"
	"github.com/avenlabs/chat-scheduler/internal/httperr"
	"github.com/avenlabs/chat-scheduler/internal/models"
	"github.com/avenlabs/chat-scheduler/internal/nlu"
)

// Thursday 2026-08-27 12:00 UTC; "next tuesday" resolves to 2026-09-08.
var turnNow = time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)

// ---------- fakes ----------

type fakeRepo struct {
	sessions     map[string]*models.ChatSession
	appointments []*models.Appointment
	failSaves    int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{sessions: map[string]*models.ChatSession{}}
}

func cloneSession(s *models.ChatSession) *models.ChatSession {
	cp := *s
	cp.Messages = append(models.MessageLog{}, s.Messages...)
	cp.Slots = conversation.CloneSlots(s.Slots)
	return &cp
}

func (r *fakeRepo) GetSession(_ context.Context, sessionID string) (*models.ChatSession, error) {
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	return cloneSession(s), nil
}

func (r *fakeRepo) EnsureSession(ctx context.Context, userID, sessionID string) (*models.ChatSession, error) {
	s, _ := r.GetSession(ctx, sessionID)
	if s == nil {
		s = &models.ChatSession{
			ID:           sessionID,
			UserID:       userID,
			Messages:     models.MessageLog{},
			Slots:        models.SlotSet{},
			BookingPhase: string(conversation.InitialPhase()),
		}
		r.sessions[sessionID] = cloneSession(s)
		return s, nil
	}
	if s.UserID != userID {
		return nil, httperr.ErrBusiness("session_forbidden")
	}
	return s, nil
}

func (r *fakeRepo) SaveSession(_ context.Context, s *models.ChatSession) error {
	if r.failSaves > 0 {
		r.failSaves--
		return httperr.ErrBusiness("session_conflict")
	}
	cur, ok := r.sessions[s.ID]
	if !ok || cur.Version != s.Version {
		return httperr.ErrBusiness("session_conflict")
	}
	s.Version++
	r.sessions[s.ID] = cloneSession(s)
	return nil
}

func (r *fakeRepo) CreateAppointment(_ context.Context, ap *models.Appointment) error {
	for _, other := range r.appointments {
		if other.UserID == ap.UserID &&
			other.Status == string(domain.StatusBooked) &&
			other.StartTime.Equal(ap.StartTime) {
			return httperr.ErrBusiness("slot_taken")
		}
	}
	cp := *ap
	r.appointments = append(r.appointments, &cp)
	return nil
}

func (r *fakeRepo) HasOverlap(_ context.Context, userID string, start, end time.Time) (bool, error) {
	for _, ap := range r.appointments {
		if ap.UserID == userID &&
			ap.Status == string(domain.StatusBooked) &&
			ap.StartTime.Before(end) && ap.EndTime.After(start) {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeRepo) GetAppointment(_ context.Context, appointmentID string) (*models.Appointment, error) {
	for _, ap := range r.appointments {
		if ap.ID == appointmentID {
			cp := *ap
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeRepo) LatestBooked(_ context.Context, userID string) (*models.Appointment, error) {
	for i := len(r.appointments) - 1; i >= 0; i-- {
		ap := r.appointments[i]
		if ap.UserID == userID && ap.Status == string(domain.StatusBooked) {
			cp := *ap
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeRepo) UpdateAppointment(_ context.Context, ap *models.Appointment) error {
	for i, other := range r.appointments {
		if other.ID == ap.ID {
			cp := *ap
			r.appointments[i] = &cp
			return nil
		}
	}
	return httperr.ErrBusiness("not_found")
}

func (r *fakeRepo) Transaction(_ context.Context, fn func(domain.Repository) error) error {
	return fn(r)
}

var _ domain.Repository = (*fakeRepo)(nil)

type fakeLocker struct {
	busy bool
}

func (l *fakeLocker) Acquire(context.Context, string) (func(), error) {
	if l.busy {
		return nil, httperr.ErrBusiness("session_busy")
	}
	return func() {}, nil
}

func newTestUC(repo *fakeRepo) *HandleTurn {
	return NewHandleTurn(Deps{
		Repo:      repo,
		Extractor: nlu.NewAdapter(nil, time.Second, zap.NewNop()),
		Locker:    &fakeLocker{},
		Log:       zap.NewNop(),
		Threshold: 0.6,
		Now:       func() time.Time { return turnNow },
	})
}

func send(t *testing.T, uc *HandleTurn, sessionID, message string) *Result {
	t.Helper()
	res, err := uc.Execute(context.Background(), Input{
		UserID:    "user-1",
		SessionID: sessionID,
		Message:   message,
	})
	if err != nil {
		t.Fatalf("Execute(%q) error: %v", message, err)
	}
	return res
}

// ---------- scenarios ----------

func TestMultiTurnBookingFlow(t *testing.T) {
	repo := newFakeRepo()
	uc := newTestUC(repo)

	res := send(t, uc, "", "I want to book an appointment next Tuesday at 3pm")
	if res.BookingPhase != string(conversation.PhaseCollecting) {
		t.Fatalf("phase after turn 1 = %s", res.BookingPhase)
	}
	if !strings.Contains(res.Reply, "timezone") {
		t.Fatalf("turn 1 should ask for timezone, got %q", res.Reply)
	}

	res = send(t, uc, res.SessionID, "UTC is fine")
	if !strings.Contains(res.Reply, "kind of appointment") {
		t.Fatalf("turn 2 should ask for service type, got %q", res.Reply)
	}

	res = send(t, uc, res.SessionID, "a demo please")
	if res.BookingPhase != string(conversation.PhaseBooked) {
		t.Fatalf("phase after turn 3 = %s, reply %q", res.BookingPhase, res.Reply)
	}
	if res.AppointmentID == nil {
		t.Fatalf("no appointment id on booked turn")
	}

	ap, _ := repo.GetAppointment(context.Background(), *res.AppointmentID)
	if ap == nil {
		t.Fatalf("appointment not stored")
	}
	wantStart := time.Date(2026, 9, 8, 15, 0, 0, 0, time.UTC)
	if !ap.StartTime.Equal(wantStart) || !ap.EndTime.Equal(wantStart.Add(time.Hour)) {
		t.Fatalf("appointment span = %v..%v, want %v + 1h", ap.StartTime, ap.EndTime, wantStart)
	}
	if ap.ServiceType != "demo" {
		t.Fatalf("service type = %s, want demo", ap.ServiceType)
	}

	s := repo.sessions[res.SessionID]
	if len(s.Messages) != 6 {
		t.Fatalf("message log = %d entries, want 6 (two per turn)", len(s.Messages))
	}
}

func TestEveryTurnAppendsExactlyTwoMessages(t *testing.T) {
	repo := newFakeRepo()
	uc := newTestUC(repo)

	res := send(t, uc, "", "hello there")
	if got := len(repo.sessions[res.SessionID].Messages); got != 2 {
		t.Fatalf("message log = %d entries, want 2", got)
	}

	send(t, uc, res.SessionID, "what can you do?")
	if got := len(repo.sessions[res.SessionID].Messages); got != 4 {
		t.Fatalf("message log = %d entries, want 4", got)
	}
}

func TestConflictProposesAlternativesAndReopens(t *testing.T) {
	repo := newFakeRepo()
	start := time.Date(2026, 9, 8, 15, 0, 0, 0, time.UTC)
	repo.appointments = append(repo.appointments, &models.Appointment{
		ID:        "existing",
		UserID:    "user-1",
		StartTime: start,
		EndTime:   start.Add(time.Hour),
		Status:    string(domain.StatusBooked),
	})
	uc := newTestUC(repo)

	res := send(t, uc, "", "Book a meeting on 2026-09-08 at 15:00 UTC")
	if res.BookingPhase != string(conversation.PhaseCollecting) {
		t.Fatalf("phase = %s, want COLLECTING after rejection", res.BookingPhase)
	}
	if !strings.Contains(res.Reply, "already taken") {
		t.Fatalf("reply should mention the conflict, got %q", res.Reply)
	}
	if !strings.Contains(res.Reply, "16:00") || !strings.Contains(res.Reply, "09:00") {
		t.Fatalf("reply should propose the next two openings, got %q", res.Reply)
	}

	s := repo.sessions[res.SessionID]
	if _, ok := conversation.SlotValue(s.Slots, conversation.FieldDate); ok {
		t.Fatalf("date slot should be cleared after rejection")
	}
	if tz, _ := conversation.SlotValue(s.Slots, conversation.FieldTimezone); tz != "UTC" {
		t.Fatalf("timezone should survive rejection, got %q", tz)
	}
}

func TestOutsideBusinessHoursRejected(t *testing.T) {
	repo := newFakeRepo()
	uc := newTestUC(repo)

	// 2026-09-05 is a Saturday.
	res := send(t, uc, "", "Book a meeting on 2026-09-05 at 10:00 UTC")
	if res.BookingPhase != string(conversation.PhaseCollecting) {
		t.Fatalf("phase = %s, want COLLECTING", res.BookingPhase)
	}
	if !strings.Contains(res.Reply, "business hours") {
		t.Fatalf("reply should explain the hours rule, got %q", res.Reply)
	}
	if len(repo.appointments) != 0 {
		t.Fatalf("no appointment should be created")
	}
}

func TestRepeatedCommitIsIdempotent(t *testing.T) {
	repo := newFakeRepo()
	uc := newTestUC(repo)

	res1 := send(t, uc, "", "Book a meeting on 2026-09-08 at 15:00 UTC")
	if res1.BookingPhase != string(conversation.PhaseBooked) {
		t.Fatalf("phase after booking = %s, reply %q", res1.BookingPhase, res1.Reply)
	}

	res2 := send(t, uc, res1.SessionID, "Book a meeting on 2026-09-08 at 15:00 UTC")
	if res2.BookingPhase != string(conversation.PhaseBooked) {
		t.Fatalf("phase after repeat = %s", res2.BookingPhase)
	}
	if res2.AppointmentID == nil || *res2.AppointmentID != *res1.AppointmentID {
		t.Fatalf("repeat booked a different appointment: %v vs %v", res2.AppointmentID, res1.AppointmentID)
	}
	if len(repo.appointments) != 1 {
		t.Fatalf("repeat inserted a duplicate row: %d appointments", len(repo.appointments))
	}
}

func TestRescheduleCancelsPreviousAppointment(t *testing.T) {
	repo := newFakeRepo()
	uc := newTestUC(repo)

	res1 := send(t, uc, "", "Book a meeting on 2026-09-08 at 15:00 UTC")
	if res1.BookingPhase != string(conversation.PhaseBooked) {
		t.Fatalf("phase after booking = %s", res1.BookingPhase)
	}
	firstID := *res1.AppointmentID

	// 2026-09-09 is a Wednesday.
	res2 := send(t, uc, res1.SessionID, "reschedule to 2026-09-09 at 10:00")
	if res2.BookingPhase != string(conversation.PhaseBooked) {
		t.Fatalf("phase after reschedule = %s, reply %q", res2.BookingPhase, res2.Reply)
	}
	if res2.AppointmentID == nil || *res2.AppointmentID == firstID {
		t.Fatalf("reschedule should create a new appointment")
	}

	old, _ := repo.GetAppointment(context.Background(), firstID)
	if old.Status != string(domain.StatusCancelled) || old.CancelledAt == nil {
		t.Fatalf("previous appointment not cancelled: %+v", old)
	}

	fresh, _ := repo.GetAppointment(context.Background(), *res2.AppointmentID)
	wantStart := time.Date(2026, 9, 9, 10, 0, 0, 0, time.UTC)
	if !fresh.StartTime.Equal(wantStart) {
		t.Fatalf("new start = %v, want %v", fresh.StartTime, wantStart)
	}
}

func TestExplicitCancelMidCollection(t *testing.T) {
	repo := newFakeRepo()
	uc := newTestUC(repo)

	res := send(t, uc, "", "I'd like to book an appointment")
	res = send(t, uc, res.SessionID, "actually, cancel that")

	if res.BookingPhase != string(conversation.PhaseCancelled) {
		t.Fatalf("phase = %s, want CANCELLED_BY_USER", res.BookingPhase)
	}
	if !strings.Contains(res.Reply, "cancelled") {
		t.Fatalf("reply should confirm the cancellation, got %q", res.Reply)
	}
	if len(repo.sessions[res.SessionID].Slots.Fields) != 0 {
		t.Fatalf("slots should be cleared after cancel")
	}
}

func TestViewBookingTurn(t *testing.T) {
	repo := newFakeRepo()
	uc := newTestUC(repo)

	res := send(t, uc, "", "Book a meeting on 2026-09-08 at 15:00 UTC")
	res = send(t, uc, res.SessionID, "what did I book?")

	if !strings.Contains(res.Reply, "meeting") {
		t.Fatalf("view reply should name the booking, got %q", res.Reply)
	}
	if res.BookingPhase != string(conversation.PhaseBooked) {
		t.Fatalf("viewing must not change the phase, got %s", res.BookingPhase)
	}
}

func TestSaveConflictRetriesTurnOnce(t *testing.T) {
	repo := newFakeRepo()
	repo.failSaves = 1
	uc := newTestUC(repo)

	res := send(t, uc, "", "hello there")
	if res.Reply == replyTryAgain {
		t.Fatalf("single conflict should be retried, not surfaced")
	}
	if got := len(repo.sessions[res.SessionID].Messages); got != 2 {
		t.Fatalf("retried turn stored %d messages, want 2", got)
	}
}

func TestSecondSaveConflictDegradesToApology(t *testing.T) {
	repo := newFakeRepo()
	repo.failSaves = 2
	uc := newTestUC(repo)

	res := send(t, uc, "", "hello there")
	if res.Reply != replyTryAgain {
		t.Fatalf("expected try-again reply, got %q", res.Reply)
	}
}

func TestConcurrentTurnRejected(t *testing.T) {
	repo := newFakeRepo()
	uc := NewHandleTurn(Deps{
		Repo:      repo,
		Extractor: nlu.NewAdapter(nil, time.Second, zap.NewNop()),
		Locker:    &fakeLocker{busy: true},
		Log:       zap.NewNop(),
		Threshold: 0.6,
		Now:       func() time.Time { return turnNow },
	})

	_, err := uc.Execute(context.Background(), Input{UserID: "user-1", SessionID: "s", Message: "hi"})
	if !httperr.IsBusiness(err, "session_busy") {
		t.Fatalf("expected session_busy, got %v", err)
	}
}

func TestEmptyMessageRejected(t *testing.T) {
	uc := newTestUC(newFakeRepo())
	_, err := uc.Execute(context.Background(), Input{UserID: "user-1", Message: "   "})
	if !httperr.IsBusiness(err, "empty_message") {
		t.Fatalf("expected empty_message, got %v", err)
	}
}

func TestForeignSessionRejected(t *testing.T) {
	repo := newFakeRepo()
	repo.sessions["sess-x"] = &models.ChatSession{
		ID:           "sess-x",
		UserID:       "someone-else",
		BookingPhase: string(conversation.PhaseCollecting),
	}
	uc := newTestUC(repo)

	_, err := uc.Execute(context.Background(), Input{UserID: "user-1", SessionID: "sess-x", Message: "hi"})
	if !httperr.IsBusiness(err, "session_forbidden") {
		t.Fatalf("expected session_forbidden, got %v", err)
	}
}

func TestHedgedTimeAsksInsteadOfAssuming(t *testing.T) {
	repo := newFakeRepo()
	uc := newTestUC(repo)

	res := send(t, uc, "", "book me something, maybe around 3pm next tuesday")
	if res.BookingPhase != string(conversation.PhaseCollecting) {
		t.Fatalf("phase = %s, want COLLECTING", res.BookingPhase)
	}

	s := repo.sessions[res.SessionID]
	if _, ok := conversation.SlotValue(s.Slots, conversation.FieldDate); ok {
		t.Fatalf("hedged date must not become a value: %+v", s.Slots)
	}
	if s.Slots.Hints[conversation.FieldDate] == "" {
		t.Fatalf("hedged date should be kept as a hint: %+v", s.Slots)
	}
	if !strings.Contains(res.Reply, "date") {
		t.Fatalf("should ask a targeted date question, got %q", res.Reply)
	}
}
