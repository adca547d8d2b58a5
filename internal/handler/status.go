package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"scalpbot/internal/heartbeat"
)

type StatusHandler struct {
	Heartbeat      *heartbeat.Service
	StaleThreshold time.Duration
}

func (h *StatusHandler) Register(r *gin.Engine) {
	r.GET("/api/v1/status", h.getStatus)
}

func (h *StatusHandler) getStatus(c *gin.Context) {
	if h.Heartbeat == nil {
		Error(c, http.StatusInternalServerError, "heartbeat unavailable", nil)
		return
	}
	latest, err := h.Heartbeat.Latest(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if latest == nil {
		Ok(c, map[string]any{"alive": false, "stale": true}, nil)
		return
	}

	var pausedPairs []string
	if len(latest.PausedPairs) > 0 {
		_ = json.Unmarshal(latest.PausedPairs, &pausedPairs)
	}

	ts := latest.TS
	stale := heartbeat.IsStale(&ts, time.Now().UTC(), h.StaleThreshold)
	Ok(c, map[string]any{
		"alive":         !stale,
		"stale":         stale,
		"mode":          latest.Mode,
		"version":       latest.Version,
		"uptime_sec":    latest.UptimeSec,
		"last_seen":     latest.TS,
		"last_cycle_at": latest.LastCycleAt,
		"paused_pairs":  pausedPairs,
	}, nil)
}
