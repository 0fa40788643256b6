package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/energizer-project/palrcon/internal/events"
	"github.com/energizer-project/palrcon/internal/util"
)

// handlePing returns a simple liveness response.
func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "palrcon",
		"version": s.version,
	})
}

// handleStatus returns a summary safe to expose without a token.
func (s *Server) handleStatus(c *gin.Context) {
	snap := s.manager.State().Snapshot()
	sysInfo := util.GetSystemInfo()

	healthState := events.HealthUnknown
	if s.monitor != nil {
		healthState = s.monitor.Status().State
	}

	body := gin.H{
		"connected":    s.manager.Connected(),
		"health":       healthState,
		"player_count": snap.Count,
		"last_poll":    snap.LastPoll,
		"uptime":       snap.Uptime,
		"host": gin.H{
			"hostname":  sysInfo.Hostname,
			"os":        sysInfo.OS,
			"cpu_model": sysInfo.CPUModel,
			"cpu_cores": sysInfo.CPUCores,
			"memory_mb": sysInfo.TotalMemory,
		},
	}
	if sess := s.manager.Session(); !sess.ConnectedAt.IsZero() {
		body["connected_at"] = sess.ConnectedAt
		body["last_activity"] = sess.LastActivity
	}
	if snap.Info != nil {
		body["server_name"] = snap.Info.Name
		body["server_version"] = snap.Info.Version
	}
	c.JSON(http.StatusOK, body)
}
