package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MarkoPoloResearchLab/tokengate/pkg/metering"
)

type canSendRequest struct {
	// EstimatedCost wins when both fields are present; Text falls back
	// to the chars-per-token heuristic.
	EstimatedCost *int64 `json:"estimated_cost"`
	Text          string `json:"text"`
}

type usageRequest struct {
	ActualCost int64 `json:"actual_cost"`
}

type selectPersonaRequest struct {
	Name string `json:"name"`
}

func (server *Server) handleCanSend(ctx *gin.Context) {
	userID, ok := server.pathUserID(ctx)
	if !ok {
		return
	}
	var request canSendRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "expected JSON body"})
		return
	}
	estimatedCost := metering.EstimateTokens(request.Text)
	if request.EstimatedCost != nil {
		estimatedCost = metering.TokenAmount(*request.EstimatedCost)
	}

	decision := server.gate.CanSend(userID, estimatedCost)
	ctx.JSON(http.StatusOK, gin.H{
		"allow":          decision.Allow,
		"basis":          decision.Basis,
		"remaining_free": decision.RemainingFree,
		"balance":        decision.Balance.Int64(),
		"estimated_cost": decision.EstimatedCost.Int64(),
	})
}

func (server *Server) handleRecordUsage(ctx *gin.Context) {
	userID, ok := server.pathUserID(ctx)
	if !ok {
		return
	}
	var request usageRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "expected JSON body"})
		return
	}
	server.gate.RecordUsage(userID, metering.TokenAmount(request.ActualCost))
	ctx.JSON(http.StatusOK, gin.H{
		"balance":        server.gate.Balance(userID).Int64(),
		"remaining_free": server.gate.RemainingFree(userID),
	})
}

func (server *Server) handleBalance(ctx *gin.Context) {
	userID, ok := server.pathUserID(ctx)
	if !ok {
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"balance": server.gate.Balance(userID).Int64()})
}

func (server *Server) handleQuota(ctx *gin.Context) {
	userID, ok := server.pathUserID(ctx)
	if !ok {
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"remaining_free": server.gate.RemainingFree(userID)})
}

func (server *Server) handleVoteInfo(ctx *gin.Context) {
	userID, ok := server.pathUserID(ctx)
	if !ok {
		return
	}
	info := server.votes.VoteInfo(userID)
	ctx.JSON(http.StatusOK, gin.H{
		"user_id":          info.UserID,
		"is_voter":         info.IsVoter,
		"active":           server.votes.IsActiveVoter(userID),
		"voter_streak":     info.VoterStreak,
		"last_vote_time":   info.LastVoteUnixUTC,
		"last_reward_time": info.LastRewardUnixUTC,
		"is_weekend":       info.IsWeekend,
	})
}

func (server *Server) handlePersona(ctx *gin.Context) {
	userID, ok := server.pathUserID(ctx)
	if !ok {
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"selected": server.personas.Selected(userID.String()),
		"prompt":   server.personas.PromptFor(userID.String()),
	})
}

func (server *Server) handleSelectPersona(ctx *gin.Context) {
	userID, ok := server.pathUserID(ctx)
	if !ok {
		return
	}
	var request selectPersonaRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "expected JSON body"})
		return
	}
	if err := server.personas.Select(userID.String(), request.Name); err != nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"selected": request.Name})
}

func (server *Server) handleListPersonas(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"personas": server.personas.SystemPersonas()})
}
