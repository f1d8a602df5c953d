package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	domain "github.com/avenlabs/chat-scheduler/internal/domain/booking"
	"github.com/avenlabs/chat-scheduler/internal/httperr"
	"github.com/avenlabs/chat-scheduler/internal/httpresp"
	"github.com/avenlabs/chat-scheduler/internal/middleware"
	"github.com/avenlabs/chat-scheduler/internal/models"
)

type MeHandler struct {
	db   *gorm.DB
	repo domain.Repository
}

func NewMeHandler(db *gorm.DB, repo domain.Repository) *MeHandler {
	return &MeHandler{db: db, repo: repo}
}

func (h *MeHandler) GetMe(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)

	var user models.User
	if err := h.db.First(&user, "id = ?", userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			httperr.NotFound(c, "user_not_found", "user does not exist")
			return
		}
		httperr.Internal(c, "internal_error", "failed to load user")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":    user.ID,
		"name":  user.Name,
		"email": user.Email,
	})
}

// LatestAppointment returns the user's most recent booked appointment,
// the same record the chat turn answers "what did I book" with.
func (h *MeHandler) LatestAppointment(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)

	ap, err := h.repo.LatestBooked(c.Request.Context(), userID)
	if err != nil {
		httperr.Internal(c, "internal_error", "failed to load appointment")
		return
	}
	if ap == nil {
		httperr.NotFound(c, "no_booked_appointment", "no booked appointment found")
		return
	}

	httpresp.OK(c, ap)
}
