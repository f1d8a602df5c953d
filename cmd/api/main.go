package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/avenlabs/chat-scheduler/internal/config"
	dbpkg "github.com/avenlabs/chat-scheduler/internal/db"
	"github.com/avenlabs/chat-scheduler/internal/logger"
	"github.com/avenlabs/chat-scheduler/internal/middleware"
	"github.com/avenlabs/chat-scheduler/internal/routes"
	"github.com/avenlabs/chat-scheduler/internal/sessionlock"
)

func main() {

	cfg := config.Load()

	logger.Init(cfg.IsProduction())
	log := logger.Get()
	defer log.Sync()

	db := dbpkg.NewDB(cfg)
	rdb := sessionlock.NewRedisClient(cfg)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()

	r.Use(middleware.CORSMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	routes.RegisterRoutes(r, db, rdb, cfg, log)

	log.Info("server running on " + cfg.Addr())
	if err := r.Run(cfg.Addr()); err != nil {
		log.Fatal("failed to start server: " + err.Error())
	}
}
