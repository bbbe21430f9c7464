package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"zeenix-trading-bot/internal/database"
	"zeenix-trading-bot/internal/deriv"

	"github.com/gin-gonic/gin"
)

// handleHealth reports database and market-data health
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	dbStatus := "ok"
	if err := s.repo.HealthCheck(ctx); err != nil {
		status = "degraded"
		dbStatus = err.Error()
	}

	resp := gin.H{
		"status":    status,
		"database":  dbStatus,
		"timestamp": time.Now().UTC(),
	}
	if st, ok := s.gateway.Status(c.Query("symbol")); ok {
		resp["market_data"] = st
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, resp)
}

// handleActiveSessions lists every currently active session
func (s *Server) handleActiveSessions(c *gin.Context) {
	sessions, err := s.repo.GetActiveSessions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions, "count": len(sessions)})
}

// handleTicks returns the in-memory tick window for a symbol
func (s *Server) handleTicks(c *gin.Context) {
	symbol := c.Param("symbol")

	snapshot := s.store.Snapshot(symbol)
	resp := gin.H{
		"symbol": symbol,
		"count":  len(snapshot),
		"ticks":  snapshot,
	}
	if st, ok := s.gateway.Status(symbol); ok {
		resp["stream"] = st
	}
	c.JSON(http.StatusOK, resp)
}

// handleGetSession returns the user's active session, if any
func (s *Server) handleGetSession(c *gin.Context) {
	userID := c.Param("id")

	session, err := s.repo.GetActiveSessionByUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if session == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active session"})
		return
	}
	c.JSON(http.StatusOK, session)
}

// activateRequest is the session activation payload
type activateRequest struct {
	DerivToken          string   `json:"deriv_token" binding:"required"`
	Currency            string   `json:"currency" binding:"required"`
	StakeAmount         float64  `json:"stake_amount" binding:"required,gt=0"`
	EntryValue          float64  `json:"entry_value" binding:"required,gt=0"`
	Mode                string   `json:"mode" binding:"required,oneof=veloz moderado preciso"`
	ModoMartingale      string   `json:"modo_martingale" binding:"required,oneof=conservador moderado agressivo"`
	Strategy            string   `json:"strategy"`
	ProfitTarget        float64  `json:"profit_target" binding:"required,gt=0"`
	LossLimit           float64  `json:"loss_limit" binding:"required,gt=0"`
	StopBlindadoPercent *float64 `json:"stop_blindado_percent"`
}

// handleActivateSession atomically replaces the user's active session
// with a fresh one and mirrors it into the runtime right away
func (s *Server) handleActivateSession(c *gin.Context) {
	userID := c.Param("id")

	var req activateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	strategyName := req.Strategy
	if strategyName == "" {
		strategyName = "zenix"
	}

	// Validate the token against the venue and resolve the account that
	// matches the requested currency ("demo" selects the virtual account)
	accounts, err := s.gateway.Authorize(c.Request.Context(), req.DerivToken)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token inválido na corretora: " + err.Error()})
		return
	}
	sel := deriv.ResolveAccount(accounts, req.DerivToken, req.Currency)
	currency := sel.Currency
	if currency == "" {
		currency = req.Currency
	}

	// Shielded stop: nil disables; zero-or-negative means "enabled at the
	// configured default percent"
	shielded := req.StopBlindadoPercent
	if shielded != nil && *shielded <= 0 {
		def := s.trading.ShieldedDefaultPct
		shielded = &def
	}

	session := &database.Session{
		UserID:              userID,
		IsActive:            true,
		SessionStatus:       database.SessionActive,
		StakeAmount:         req.StakeAmount,
		EntryValue:          req.EntryValue,
		DerivToken:          sel.Token,
		Currency:            currency,
		Mode:                req.Mode,
		ModoMartingale:      req.ModoMartingale,
		Strategy:            strategyName,
		ProfitTarget:        req.ProfitTarget,
		LossLimit:           req.LossLimit,
		StopBlindadoPercent: shielded,
	}

	if err := s.repo.ActivateSession(c.Request.Context(), session); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.sessions.Invalidate(c.Request.Context(), userID)
	s.syncer.SyncNow(c.Request.Context())

	s.logger.WithUser(userID).Info("session activated",
		"session_id", session.ID, "mode", session.Mode, "stake", session.StakeAmount)
	c.JSON(http.StatusCreated, session)
}

// handleDeactivateSession manually stops the user's active session
func (s *Server) handleDeactivateSession(c *gin.Context) {
	userID := c.Param("id")

	session, err := s.repo.GetActiveSessionByUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if session == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active session"})
		return
	}

	if err := s.repo.DeactivateSession(c.Request.Context(), session.ID,
		database.SessionStoppedManual, "Sessão encerrada pelo usuário"); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.sessions.Invalidate(c.Request.Context(), userID)
	s.syncer.SyncNow(c.Request.Context())

	s.logger.WithUser(userID).Info("session deactivated manually", "session_id", session.ID)

	final, err := s.repo.GetSessionByID(c.Request.Context(), session.ID)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"session_id": session.ID, "status": database.SessionStoppedManual})
		return
	}
	trades, err := s.repo.GetSessionTrades(c.Request.Context(), session.ID)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"session": final})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": final, "trades": trades, "trade_count": len(trades)})
}

// handleLogs returns the user's most recent activity logs
func (s *Server) handleLogs(c *gin.Context) {
	userID := c.Param("id")
	limit := intQuery(c, "limit", 100, 1000)

	logs, err := s.repo.GetRecentLogs(c.Request.Context(), userID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs, "count": len(logs)})
}

// handleTrades returns the user's settled trade history
func (s *Server) handleTrades(c *gin.Context) {
	userID := c.Param("id")
	limit := intQuery(c, "limit", 50, 500)
	offset := intQuery(c, "offset", 0, 1<<30)

	trades, err := s.repo.GetTradeHistory(c.Request.Context(), userID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades, "count": len(trades)})
}

func intQuery(c *gin.Context, name string, def, max int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil || v < 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}
