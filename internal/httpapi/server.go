package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/tokengate/internal/persona"
	"github.com/MarkoPoloResearchLab/tokengate/pkg/metering"
)

// Server exposes the vote webhook and the metering API over one HTTP
// listener. The webhook feeds the vote reward machine; the API lets the
// chat host consult the gate and persona store without linking the core.
type Server struct {
	logger   *zap.Logger
	cfg      Config
	gate     *metering.Gate
	votes    *metering.VoteMachine
	personas *persona.Manager
}

// New wires a Server.
func New(cfg Config, gate *metering.Gate, votes *metering.VoteMachine, personas *persona.Manager, logger *zap.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if gate == nil {
		return nil, fmt.Errorf("gate dependency is nil")
	}
	if votes == nil {
		return nil, fmt.Errorf("vote machine dependency is nil")
	}
	if personas == nil {
		return nil, fmt.Errorf("persona manager dependency is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{logger: logger, cfg: cfg, gate: gate, votes: votes, personas: personas}, nil
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (server *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    server.cfg.ListenAddr,
		Handler: server.router(),
	}

	errCh := make(chan error, 1)
	go func() {
		server.logger.Info("http server listening",
			zap.String("addr", server.cfg.ListenAddr),
			zap.String("webhook_path", server.cfg.WebhookPath))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
			server.logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (server *Server) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if len(server.cfg.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     server.cfg.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Content-Type", "Authorization", "Origin", "Accept"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST(server.cfg.WebhookPath, server.handleVoteWebhook)

	api := router.Group("/api/users/:user")
	api.POST("/cansend", server.handleCanSend)
	api.POST("/usage", server.handleRecordUsage)
	api.GET("/balance", server.handleBalance)
	api.GET("/quota", server.handleQuota)
	api.GET("/vote", server.handleVoteInfo)
	api.GET("/persona", server.handlePersona)
	api.PUT("/persona", server.handleSelectPersona)

	router.GET("/api/personas", server.handleListPersonas)

	return router
}

func (server *Server) pathUserID(ctx *gin.Context) (metering.UserID, bool) {
	userID, err := metering.NewUserID(ctx.Param("user"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return metering.UserID{}, false
	}
	return userID, true
}
