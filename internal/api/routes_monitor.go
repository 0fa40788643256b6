package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/energizer-project/palrcon/internal/events"
)

const defaultHistoryLimit = 100

// handlePlayers returns the players seen in the latest poll.
func (s *Server) handlePlayers(c *gin.Context) {
	c.JSON(http.StatusOK, s.manager.State().Snapshot())
}

// handlePlayerHistory returns every player the ledger knows, most recent first.
func (s *Server) handlePlayerHistory(c *gin.Context) {
	if !s.requireLedger(c) {
		return
	}
	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	players, err := s.ledger.Players(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("player history query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"players": players, "total": len(players)})
}

// handleModeration returns recorded moderation actions, optionally for a
// single steam id.
func (s *Server) handleModeration(c *gin.Context) {
	if !s.requireLedger(c) {
		return
	}
	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	records, err := s.ledger.Moderation(c.Request.Context(), c.Query("steam_id"), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("moderation query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"actions": records, "total": len(records)})
}

// handleUnresolved returns sightings of players with the zero UID.
func (s *Server) handleUnresolved(c *gin.Context) {
	if !s.requireLedger(c) {
		return
	}
	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	sightings, err := s.ledger.Unresolved(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("unresolved query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sightings": sightings, "total": len(sightings)})
}

// handleHealth returns the latest health probe result.
func (s *Server) handleHealth(c *gin.Context) {
	if s.monitor == nil {
		c.JSON(http.StatusOK, gin.H{
			"state":     events.HealthUnknown,
			"connected": s.manager.Connected(),
		})
		return
	}
	c.JSON(http.StatusOK, s.monitor.Status())
}

func (s *Server) requireLedger(c *gin.Context) bool {
	if s.ledger == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "player ledger is disabled"})
		return false
	}
	return true
}

func parseLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultHistoryLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return 0, false
	}
	return limit, true
}
