package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/energizer-project/blazer/internal/util"
)

func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": s.name,
		"version": s.version,
	})
}

func (s *Server) handleGetServerInfo(c *gin.Context) {
	sysInfo := util.GetSystemInfo()
	stats := s.games.Stats()

	c.JSON(http.StatusOK, gin.H{
		"server_name":     s.name,
		"version":         s.version,
		"uptime_sec":      int64(time.Since(s.started).Seconds()),
		"sessions":        s.sessions.Count(),
		"authenticated":   s.sessions.CountAuthenticated(),
		"games":           stats.Games,
		"players_in_game": stats.Players,
		"queued":          stats.Queued,
		"platform":        sysInfo.Platform,
		"cpu_model":       sysInfo.CPUModel,
		"cpu_cores":       sysInfo.CPUCores,
		"total_memory_mb": sysInfo.TotalMemory,
	})
}

// handleListGames serves list_active_games.
func (s *Server) handleListGames(c *gin.Context) {
	games := s.games.List()
	c.JSON(http.StatusOK, gin.H{
		"games": games,
		"total": len(games),
	})
}

func (s *Server) handleGetGame(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid game id"})
		return
	}
	snap, ok := s.games.Get(uint32(id))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "game not found"})
		return
	}
	c.JSON(http.StatusOK, snap)
}
