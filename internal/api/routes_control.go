package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/energizer-project/palrcon/internal/protocol"
	"github.com/energizer-project/palrcon/internal/server"
)

type broadcastRequest struct {
	Message string `json:"message" binding:"required"`
}

type shutdownRequest struct {
	Seconds int    `json:"seconds"`
	Message string `json:"message"`
	Save    *bool  `json:"save"`
}

type commandRequest struct {
	Command string `json:"command" binding:"required"`
}

// commandContext detaches the RCON call from the HTTP request: a client
// hanging up mid-command must not abandon the exchange and break the
// shared connection.
func (s *Server) commandContext(c *gin.Context) (context.Context, context.CancelFunc) {
	ctx := context.WithoutCancel(c.Request.Context())
	if timeout := s.cfg.GetRCON().CommandTimeout(); timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}

func actor(c *gin.Context) string {
	if a := c.GetString(ctxActor); a != "" {
		return a
	}
	return "api"
}

// respond writes the outcome of an RCON operation.
func (s *Server) respond(c *gin.Context, op string, resp *protocol.Response, err error) {
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			s.logger.Warn().Err(err).Str("op", op).Str("actor", actor(c)).Msg("RCON operation failed")
		}
		c.JSON(status, gin.H{"error": err.Error(), "op": op})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"op":         op,
		"successful": resp.Successful,
		"message":    resp.Message,
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, server.ErrEmptyArgument):
		return http.StatusBadRequest
	case protocol.IsContextError(err):
		return http.StatusGatewayTimeout
	case protocol.IsConnectionFailure(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

// handleBroadcast sends an in-game message.
func (s *Server) handleBroadcast(c *gin.Context) {
	var req broadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := s.commandContext(c)
	defer cancel()
	resp, err := s.manager.Broadcast(ctx, actor(c), req.Message)
	s.respond(c, "broadcast", resp, err)
}

// handleKick kicks the player with the given steam id.
func (s *Server) handleKick(c *gin.Context) {
	ctx, cancel := s.commandContext(c)
	defer cancel()
	resp, err := s.manager.Kick(ctx, actor(c), c.Param("steam_id"))
	s.respond(c, "kick", resp, err)
}

// handleBan bans the player with the given steam id.
func (s *Server) handleBan(c *gin.Context) {
	ctx, cancel := s.commandContext(c)
	defer cancel()
	resp, err := s.manager.Ban(ctx, actor(c), c.Param("steam_id"))
	s.respond(c, "ban", resp, err)
}

// handleSave saves the world.
func (s *Server) handleSave(c *gin.Context) {
	ctx, cancel := s.commandContext(c)
	defer cancel()
	resp, err := s.manager.Save(ctx, actor(c))
	s.respond(c, "save", resp, err)
}

// handleShutdown schedules a shutdown. The world is saved first unless
// the body sets "save": false.
func (s *Server) handleShutdown(c *gin.Context) {
	var req shutdownRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.Seconds < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "seconds must not be negative"})
		return
	}
	save := req.Save == nil || *req.Save

	ctx, cancel := s.commandContext(c)
	defer cancel()
	resp, err := s.manager.Shutdown(ctx, actor(c), req.Seconds, req.Message, save)
	s.respond(c, "shutdown", resp, err)
}

// handleDoExit stops the server immediately.
func (s *Server) handleDoExit(c *gin.Context) {
	ctx, cancel := s.commandContext(c)
	defer cancel()
	resp, err := s.manager.DoExit(ctx, actor(c))
	s.respond(c, "doexit", resp, err)
}

// handleCommand runs a raw console command.
func (s *Server) handleCommand(c *gin.Context) {
	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := s.commandContext(c)
	defer cancel()
	resp, err := s.manager.Command(ctx, actor(c), req.Command)
	s.respond(c, "command", resp, err)
}

// handlePoll refreshes the player list now instead of waiting for the
// scheduler.
func (s *Server) handlePoll(c *gin.Context) {
	ctx, cancel := s.commandContext(c)
	defer cancel()

	list, diff, err := s.manager.Poll(ctx)
	if err != nil {
		s.respond(c, "poll", nil, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"op":         "poll",
		"successful": list.Successful,
		"count":      list.Count(),
		"players":    list.Players,
		"unresolved": list.InvalidUIDPlayers,
		"joined":     diff.Joined,
		"left":       diff.Left,
	})
}
