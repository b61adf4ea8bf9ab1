package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/tokengate/pkg/metering"
)

const (
	voteTypeUpvote = "upvote"
	voteTypeTest   = "test"
)

// votePayload is the top.gg webhook body.
type votePayload struct {
	Bot       string `json:"bot"`
	User      string `json:"user"`
	Type      string `json:"type"`
	IsWeekend bool   `json:"isWeekend"`
	Query     string `json:"query"`
}

func (server *Server) handleVoteWebhook(ctx *gin.Context) {
	deliveryID := uuid.NewString()
	if server.cfg.WebhookAuthorization != "" &&
		ctx.GetHeader("Authorization") != server.cfg.WebhookAuthorization {
		server.logger.Warn("webhook authorization rejected", zap.String("delivery_id", deliveryID))
		ctx.String(http.StatusUnauthorized, "Unauthorized")
		return
	}

	var payload votePayload
	if err := ctx.ShouldBindJSON(&payload); err != nil {
		server.logger.Warn("webhook body invalid", zap.String("delivery_id", deliveryID), zap.Error(err))
		ctx.String(http.StatusBadRequest, "Invalid JSON")
		return
	}
	userID, err := metering.NewUserID(payload.User)
	if err != nil {
		server.logger.Warn("webhook missing user id", zap.String("delivery_id", deliveryID))
		ctx.String(http.StatusBadRequest, "Missing user_id")
		return
	}

	switch payload.Type {
	case voteTypeUpvote, voteTypeTest:
		result := server.votes.ProcessVote(userID, payload.IsWeekend)
		server.logger.Info("vote processed",
			zap.String("delivery_id", deliveryID),
			zap.String("user_id", userID.String()),
			zap.String("type", payload.Type),
			zap.Bool("weekend", payload.IsWeekend),
			zap.Int("streak", result.Streak),
			zap.Bool("rewarded", result.Rewarded))
	default:
		server.logger.Info("vote type ignored",
			zap.String("delivery_id", deliveryID),
			zap.String("type", payload.Type))
	}

	ctx.String(http.StatusOK, "OK")
}
