package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/avenlabs/chat-scheduler/internal/httperr"
	"github.com/avenlabs/chat-scheduler/internal/httpresp"
	"github.com/avenlabs/chat-scheduler/internal/middleware"
	ucchat "github.com/avenlabs/chat-scheduler/internal/usecase/chat"
)

type ChatHandler struct {
	handleTurn *ucchat.HandleTurn
}

func NewChatHandler(handleTurn *ucchat.HandleTurn) *ChatHandler {
	return &ChatHandler{handleTurn: handleTurn}
}

type ChatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message" binding:"required"`
}

type ChatResponse struct {
	Reply         string  `json:"reply"`
	SessionID     string  `json:"session_id"`
	BookingPhase  string  `json:"booking_phase"`
	AppointmentID *string `json:"appointment_id,omitempty"`
}

// Chat runs one conversational turn for the authenticated user. Omitting
// session_id starts a new conversation; the response carries the id to
// continue it.
func (h *ChatHandler) Chat(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.BadRequest(c, "invalid_request", err.Error())
		return
	}

	res, err := h.handleTurn.Execute(c.Request.Context(), ucchat.Input{
		UserID:    userID,
		SessionID: req.SessionID,
		Message:   req.Message,
	})
	if err != nil {
		writeTurnError(c, err)
		return
	}

	httpresp.OK(c, ChatResponse{
		Reply:         res.Reply,
		SessionID:     res.SessionID,
		BookingPhase:  res.BookingPhase,
		AppointmentID: res.AppointmentID,
	})
}

func writeTurnError(c *gin.Context, err error) {
	code, ok := httperr.BusinessCode(err)
	if !ok {
		httperr.Internal(c, "internal_error", "something went wrong processing the turn")
		return
	}

	switch code {
	case "session_busy":
		httperr.Conflict(c, code, "another message for this session is still being processed")
	case "session_forbidden":
		httperr.Write(c, http.StatusForbidden, code, "this session belongs to another user")
	case "empty_message":
		httperr.BadRequest(c, code, "message must not be empty")
	default:
		// Remaining business codes are invariant violations; they are
		// bugs, not user errors.
		httperr.Internal(c, code, "the turn could not be completed")
	}
}
