package chat

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/avenlabs/chat-scheduler/internal/audit"
	domain "github.com/avenlabs/chat-scheduler/internal/domain/booking"
	"github.com/avenlabs/chat-scheduler/internal/domain/conversation"
	"github.com/avenlabs/chat-scheduler/internal/httperr"
	"github.com/avenlabs/chat-scheduler/internal/models"
	"github.com/avenlabs/chat-scheduler/internal/nlu"
	"github.com/avenlabs/chat-scheduler/internal/timezone"
	ucbooking "github.com/avenlabs/chat-scheduler/internal/usecase/booking"
)

// SessionLocker serializes turns per session. A second turn arriving
// while one is in flight is rejected, not queued.
type SessionLocker interface {
	Acquire(ctx context.Context, sessionID string) (func(), error)
}

// ======================================================
// Use case: one conversational turn
// ======================================================

type HandleTurn struct {
	repo      domain.Repository
	extractor nlu.Extractor
	composer  nlu.Composer
	locker    SessionLocker
	avail     *ucbooking.CheckAvailability
	commit    *ucbooking.Commit
	audit     *audit.Dispatcher
	log       *zap.Logger
	threshold float64
	now       func() time.Time
}

type Deps struct {
	Repo      domain.Repository
	Extractor nlu.Extractor
	Composer  nlu.Composer // nil disables model-written replies
	Locker    SessionLocker
	Audit     *audit.Dispatcher
	Log       *zap.Logger
	Threshold float64
	Now       func() time.Time
}

func NewHandleTurn(d Deps) *HandleTurn {
	if d.Now == nil {
		d.Now = time.Now
	}
	return &HandleTurn{
		repo:      d.Repo,
		extractor: d.Extractor,
		composer:  d.Composer,
		locker:    d.Locker,
		avail:     ucbooking.NewCheckAvailability(d.Repo),
		commit:    ucbooking.NewCommit(d.Repo),
		audit:     d.Audit,
		log:       d.Log,
		threshold: d.Threshold,
		now:       d.Now,
	}
}

type Input struct {
	UserID    string
	SessionID string // empty starts a new conversation
	Message   string
}

type Result struct {
	Reply         string
	SessionID     string
	BookingPhase  string
	AppointmentID *string
}

// Execute runs one turn under the per-session lock. A turn that loses
// the optimistic save race is retried once in full against the fresh
// state; a second loss degrades to an apologetic reply.
func (uc *HandleTurn) Execute(ctx context.Context, in Input) (*Result, error) {
	if strings.TrimSpace(in.Message) == "" {
		return nil, httperr.ErrBusiness("empty_message")
	}

	sessionID := in.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	release, err := uc.locker.Acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	res, err := uc.processTurn(ctx, in.UserID, sessionID, in.Message)
	if httperr.IsBusiness(err, "session_conflict") {
		uc.log.Warn("session version conflict, retrying turn",
			zap.String("session_id", sessionID))
		res, err = uc.processTurn(ctx, in.UserID, sessionID, in.Message)
	}
	if httperr.IsBusiness(err, "session_conflict") {
		uc.log.Error("turn lost the save race twice, giving up",
			zap.String("session_id", sessionID))
		out := &Result{Reply: replyTryAgain, SessionID: sessionID}
		if s, gerr := uc.repo.GetSession(ctx, sessionID); gerr == nil && s != nil {
			out.BookingPhase = s.BookingPhase
		}
		return out, nil
	}
	return res, err
}

func (uc *HandleTurn) processTurn(ctx context.Context, userID, sessionID, message string) (*Result, error) {
	now := uc.now().UTC()

	s, err := uc.repo.EnsureSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if err := conversation.CheckInvariants(s); err != nil {
		uc.log.Error("session loaded in illegal state",
			zap.String("session_id", s.ID), zap.Error(err))
		return nil, err
	}

	// Extraction runs before the user message is appended so the known
	// slots it sees are the prior turn's.
	ext := uc.extractor.Extract(ctx, message, s.Slots, now)
	if ext.Fallback {
		uc.log.Debug("extraction degraded to deterministic parsing",
			zap.String("session_id", s.ID))
	}

	conversation.AppendUserMessage(s, message, now)

	// Explicit cancellation wins over everything else in the message.
	if nlu.IsCancel(message) {
		if cerr := conversation.CancelByUser(s); cerr == nil {
			reply := uc.reply(ctx, "cancelled", nil, s.Messages, replyCancelled)
			uc.dispatch(s, "session_cancelled", "chat_session", &s.ID)
			return uc.saveTurn(ctx, s, reply, now)
		}
		reply := uc.reply(ctx, "general_chat",
			map[string]any{"note": "nothing in progress to cancel"},
			s.Messages, replyNothingToCancel)
		return uc.saveTurn(ctx, s, reply, now)
	}

	if nlu.IsViewBooking(message) {
		return uc.viewTurn(ctx, s, now)
	}

	intentCand, hasIntent := ext.Candidates[conversation.FieldIntent]
	wantsBooking := nlu.IsReschedule(message) ||
		(hasIntent && intentCand.Value == conversation.IntentBooking && intentCand.Confidence >= uc.threshold)

	// A finished session only moves again on a fresh booking intent:
	// reopening clears date/time but keeps timezone and service type.
	phase := conversation.Phase(s.BookingPhase)
	if phase == conversation.PhaseBooked || phase == conversation.PhaseCancelled {
		if !wantsBooking {
			fallback := replyGeneral
			if phase == conversation.PhaseBooked {
				fallback = alreadyBookedReply(s)
			}
			reply := uc.reply(ctx, "general_chat", nil, s.Messages, fallback)
			return uc.saveTurn(ctx, s, reply, now)
		}
		if err := conversation.Reopen(s); err != nil {
			return nil, err
		}
		s.Slots = conversation.Merge(s.Slots, conversation.Candidates{
			conversation.FieldIntent: {Value: conversation.IntentBooking, Confidence: conversation.DeterministicConf},
		}, uc.threshold)
	}

	s.Slots = conversation.Merge(s.Slots, ext.Candidates, uc.threshold)
	updated, action := conversation.Advance(s.Slots)
	s.Slots = updated

	switch action.Kind {
	case conversation.ActionInquiry:
		reply := uc.reply(ctx, "general_chat", nil, s.Messages, replyGeneral)
		return uc.saveTurn(ctx, s, reply, now)

	case conversation.ActionAsk:
		reply := uc.reply(ctx, "ask_"+action.Field,
			map[string]any{"hint": action.Hint}, s.Messages,
			askReply(action.Field, action.Hint))
		return uc.saveTurn(ctx, s, reply, now)
	}

	return uc.bookTurn(ctx, s, now)
}

// bookTurn handles ActionReady: resolve the slots to a UTC instant,
// confirm, check availability and commit.
func (uc *HandleTurn) bookTurn(ctx context.Context, s *models.ChatSession, now time.Time) (*Result, error) {
	date, _ := conversation.SlotValue(s.Slots, conversation.FieldDate)
	timeStr, _ := conversation.SlotValue(s.Slots, conversation.FieldTime)
	tz, _ := conversation.SlotValue(s.Slots, conversation.FieldTimezone)
	svc, _ := conversation.SlotValue(s.Slots, conversation.FieldServiceType)

	start, err := domain.ResolveStart(date, timeStr, tz)
	if err != nil {
		conversation.DropDateTime(s)
		reply := uc.reply(ctx, "invalid_datetime", nil, s.Messages, replyInvalidDatetime)
		return uc.saveTurn(ctx, s, reply, now)
	}

	if err := conversation.Confirm(s); err != nil {
		return nil, err
	}

	// A replay of the slots already booked by this session skips the
	// availability check: the commit answers it with the existing
	// appointment instead of treating it as a conflict with itself.
	replay, err := uc.isReplay(ctx, s, start, svc)
	if err != nil {
		return nil, err
	}
	if !replay {
		verdict, err := uc.avail.Execute(ctx, s.UserID, start)
		if err != nil {
			return nil, err
		}
		if !verdict.Available {
			return uc.rejectSlot(ctx, s, verdict, now)
		}
	}

	reply := uc.reply(ctx, "booked", map[string]any{
		"start":        formatSlot(start, tz),
		"service_type": svc,
	}, s.Messages, bookedReply(start, tz, svc))

	prevID := s.LastAppointmentID
	ap, err := uc.commit.Execute(ctx, ucbooking.CommitInput{
		Session:     s,
		Start:       start,
		ServiceType: svc,
		Reply:       reply,
		Now:         now,
	})
	if err != nil {
		if httperr.IsBusiness(err, "slot_taken") {
			// Lost the race between the check and the insert.
			verdict, verr := uc.avail.Execute(ctx, s.UserID, start)
			if verr != nil {
				return nil, verr
			}
			return uc.rejectSlot(ctx, s, verdict, now)
		}
		return nil, err
	}

	if prevID != nil && *prevID != ap.ID {
		uc.dispatch(s, "appointment_cancelled", "appointment", prevID)
	}
	uc.dispatch(s, "appointment_booked", "appointment", &ap.ID)
	return &Result{
		Reply:         reply,
		SessionID:     s.ID,
		BookingPhase:  s.BookingPhase,
		AppointmentID: s.LastAppointmentID,
	}, nil
}

func (uc *HandleTurn) isReplay(ctx context.Context, s *models.ChatSession, start time.Time, serviceType string) (bool, error) {
	if s.LastAppointmentID == nil {
		return false, nil
	}
	prev, err := uc.repo.GetAppointment(ctx, *s.LastAppointmentID)
	if err != nil {
		return false, err
	}
	return prev != nil &&
		domain.Status(prev.Status) == domain.StatusBooked &&
		prev.StartTime.Equal(start) &&
		prev.ServiceType == serviceType, nil
}

func (uc *HandleTurn) viewTurn(ctx context.Context, s *models.ChatSession, now time.Time) (*Result, error) {
	ap, err := uc.repo.LatestBooked(ctx, s.UserID)
	if err != nil {
		return nil, err
	}

	tz := sessionTZ(s)
	var reply string
	if ap == nil {
		reply = uc.reply(ctx, "view_booking", nil, s.Messages, replyNoBooking)
	} else {
		reply = uc.reply(ctx, "view_booking", map[string]any{
			"start":        formatSlot(ap.StartTime, tz),
			"service_type": ap.ServiceType,
		}, s.Messages, viewReply(ap, tz))
	}
	return uc.saveTurn(ctx, s, reply, now)
}

// rejectSlot answers an unavailable request with counter-offers and
// reopens collection so the next message is read as a new time.
func (uc *HandleTurn) rejectSlot(ctx context.Context, s *models.ChatSession, v *domain.Verdict, now time.Time) (*Result, error) {
	if err := conversation.Reopen(s); err != nil {
		return nil, err
	}

	tz := sessionTZ(s)
	action := "conflict"
	if v.Reason == domain.ReasonOutsideHours {
		action = "outside_rules"
	}

	reply := uc.reply(ctx, action, map[string]any{
		"alternatives": formatSlots(v.Alternatives, tz),
	}, s.Messages, conflictReply(v, tz))

	uc.dispatch(s, "slot_rejected", "chat_session", &s.ID)
	return uc.saveTurn(ctx, s, reply, now)
}

// saveTurn appends the assistant reply and persists the session, keeping
// the message log balanced at exactly two entries per turn.
func (uc *HandleTurn) saveTurn(ctx context.Context, s *models.ChatSession, reply string, now time.Time) (*Result, error) {
	conversation.AppendAssistantMessage(s, reply, now)
	if err := conversation.CheckInvariants(s); err != nil {
		uc.log.Error("turn produced illegal session state",
			zap.String("session_id", s.ID), zap.Error(err))
		return nil, err
	}
	if err := uc.repo.SaveSession(ctx, s); err != nil {
		return nil, err
	}
	uc.dispatch(s, "turn_processed", "chat_session", &s.ID)

	var apID *string
	if conversation.Phase(s.BookingPhase) == conversation.PhaseBooked {
		apID = s.LastAppointmentID
	}
	return &Result{
		Reply:         reply,
		SessionID:     s.ID,
		BookingPhase:  s.BookingPhase,
		AppointmentID: apID,
	}, nil
}

func (uc *HandleTurn) reply(ctx context.Context, action string, payload map[string]any, history models.MessageLog, fallback string) string {
	if uc.composer == nil {
		return fallback
	}
	text, err := uc.composer.Compose(ctx, action, payload, history)
	if err != nil || strings.TrimSpace(text) == "" {
		uc.log.Debug("reply composition fell back to template",
			zap.String("action", action), zap.Error(err))
		return fallback
	}
	return text
}

func (uc *HandleTurn) dispatch(s *models.ChatSession, action, entity string, entityID *string) {
	if uc.audit == nil {
		return
	}
	uc.audit.Dispatch(audit.Event{
		UserID:    &s.UserID,
		SessionID: &s.ID,
		Action:    action,
		Entity:    entity,
		EntityID:  entityID,
		Metadata:  map[string]any{"booking_phase": s.BookingPhase},
	})
}

func sessionTZ(s *models.ChatSession) string {
	if tz, ok := conversation.SlotValue(s.Slots, conversation.FieldTimezone); ok {
		return tz
	}
	return timezone.DefaultTimezone
}
