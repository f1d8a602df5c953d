package routes

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/avenlabs/chat-scheduler/internal/audit"
	"github.com/avenlabs/chat-scheduler/internal/config"
	"github.com/avenlabs/chat-scheduler/internal/handlers"
	infraRepo "github.com/avenlabs/chat-scheduler/internal/infra/repository"
	"github.com/avenlabs/chat-scheduler/internal/middleware"
	"github.com/avenlabs/chat-scheduler/internal/nlu"
	"github.com/avenlabs/chat-scheduler/internal/sessionlock"
	ucchat "github.com/avenlabs/chat-scheduler/internal/usecase/chat"
)

func RegisterRoutes(r *gin.Engine, db *gorm.DB, rdb *redis.Client, cfg *config.Config, log *zap.Logger) {

	// ======================================================
	// INFRA (SINGLETONS)
	// ======================================================
	bookingRepo := infraRepo.NewBookingGormRepository(db)

	auditLogger := audit.New(db)
	auditDispatcher := audit.NewDispatcher(auditLogger, log)

	locker := sessionlock.New(rdb, cfg.SessionLockTTL)

	// ======================================================
	// NLU (model optional, parser always on)
	// ======================================================
	var gem *nlu.GeminiClient
	if cfg.GeminiAPIKey != "" {
		g, err := nlu.NewGeminiClient(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			log.Warn("gemini unavailable, running with deterministic parsing only", zap.Error(err))
		} else {
			gem = g
		}
	} else {
		log.Info("GEMINI_API_KEY not set, running with deterministic parsing only")
	}

	extractor := nlu.NewAdapter(gem, cfg.NLUTimeout, log)

	var composer nlu.Composer
	if gem != nil {
		composer = gem
	}

	// ======================================================
	// USE CASES
	// ======================================================
	handleTurnUC := ucchat.NewHandleTurn(ucchat.Deps{
		Repo:      bookingRepo,
		Extractor: extractor,
		Composer:  composer,
		Locker:    locker,
		Audit:     auditDispatcher,
		Log:       log,
		Threshold: cfg.SlotConfidenceThreshold,
	})

	// ======================================================
	// HANDLERS
	// ======================================================
	authHandler := handlers.NewAuthHandler(db, cfg)
	chatHandler := handlers.NewChatHandler(handleTurnUC)
	meHandler := handlers.NewMeHandler(db, bookingRepo)

	// ======================================================
	// API (JSON)
	// ======================================================
	api := r.Group("/api")
	{
		api.POST("/auth/register", authHandler.Register)
		api.POST("/auth/login", authHandler.Login)

		secured := api.Group("/")
		secured.Use(middleware.AuthMiddleware(cfg))
		{
			secured.POST("/chat", chatHandler.Chat)

			secured.GET("/me", meHandler.GetMe)
			secured.GET("/me/appointments/latest", meHandler.LatestAppointment)
		}
	}
}
