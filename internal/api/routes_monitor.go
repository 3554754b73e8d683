package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/energizer-project/blazer/internal/util"
)

func (s *Server) handleListSessions(c *gin.Context) {
	sessions := s.sessions.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"sessions":      sessions,
		"total":         len(sessions),
		"authenticated": s.sessions.CountAuthenticated(),
	})
}

func (s *Server) handleKickSession(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}
	if !s.sessions.Disconnect(uint32(id), "kicked by operator") {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	s.logger.Info().Uint64("session_id", id).Str("client_ip", c.ClientIP()).Msg("session kicked via API")
	c.JSON(http.StatusOK, gin.H{"kicked": id})
}

func (s *Server) handleGetQueue(c *gin.Context) {
	queue := s.games.Queue()
	c.JSON(http.StatusOK, gin.H{
		"queue": queue,
		"total": len(queue),
	})
}

func (s *Server) handleGetStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"games":         s.games.Stats(),
		"sessions":      s.sessions.Count(),
		"authenticated": s.sessions.CountAuthenticated(),
	})
}

func (s *Server) handleGetCPUUsage(c *gin.Context) {
	usage, err := util.GetCPUUsage()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cpu_percent": usage})
}

func (s *Server) handleGetMemoryUsage(c *gin.Context) {
	mem, err := util.GetMemoryUsage()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	resp := gin.H{
		"total_mb":     mem.Total,
		"used_mb":      mem.Used,
		"available_mb": mem.Available,
		"used_percent": mem.UsedPercent,
	}
	if proc, err := util.GetProcessUsage(); err == nil {
		resp["process"] = proc
	}
	c.JSON(http.StatusOK, resp)
}

// handleGetLogEntries returns the tail of the newest log file.
func (s *Server) handleGetLogEntries(c *gin.Context) {
	count, err := strconv.Atoi(c.DefaultQuery("count", "100"))
	if err != nil || count < 1 {
		count = 100
	}
	if count > 1000 {
		count = 1000
	}

	entries, err := readRecentLogEntries(s.logDir, count)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"count":   len(entries),
	})
}

// logEntry is a parsed log entry for the API response.
type logEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// readRecentLogEntries reads and parses the most recent log entries from log files.
func readRecentLogEntries(logDir string, count int) ([]logEntry, error) {
	dirEntries, err := os.ReadDir(logDir)
	if err != nil {
		return nil, err
	}

	if len(dirEntries) == 0 {
		return []logEntry{}, nil
	}

	// Log files are named by date, so the last name sorts newest.
	var names []string
	for _, e := range dirEntries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".log" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	var latestFile string
	if len(names) > 0 {
		latestFile = filepath.Join(logDir, names[len(names)-1])
	}

	if latestFile == "" {
		return []logEntry{}, nil
	}

	data, err := os.ReadFile(latestFile)
	if err != nil {
		return nil, err
	}

	lines := strings.Split(string(data), "\n")

	start := len(lines) - count
	if start < 0 {
		start = 0
	}

	knownKeys := map[string]bool{
		"level": true, "time": true, "message": true,
		"caller": true, "app": true,
	}

	result := make([]logEntry, 0, count)
	for _, line := range lines[start:] {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var raw map[string]interface{}
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			// Console output or a torn line.
			result = append(result, logEntry{Message: line})
			continue
		}

		entry := logEntry{
			Level:   stringFromMap(raw, "level"),
			Message: stringFromMap(raw, "message"),
		}

		if t, ok := raw["time"]; ok {
			entry.Timestamp = fmt.Sprintf("%v", t)
		}

		extra := make(map[string]interface{})
		for k, v := range raw {
			if !knownKeys[k] {
				extra[k] = v
			}
		}
		if len(extra) > 0 {
			entry.Fields = extra
		}

		result = append(result, entry)
	}

	return result, nil
}

// stringFromMap extracts a string value from a map, returning "" if missing.
func stringFromMap(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		return fmt.Sprintf("%v", v)
	}
	return ""
}
