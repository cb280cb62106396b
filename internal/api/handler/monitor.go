package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/willianribas/bots/internal/domain"
	"github.com/willianribas/bots/internal/logger"
	"github.com/willianribas/bots/internal/service"
)

// MonitorControl is the command surface the admin panel drives.
type MonitorControl interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Restart(ctx context.Context) error
	Status() service.Status
	ClearCache(ctx context.Context) (int, error)
	Stats(ctx context.Context) (domain.MonitorStats, error)
}

// MonitorHandler exposes loop status and control.
type MonitorHandler struct {
	control MonitorControl
}

// NewMonitorHandler creates a monitor handler.
func NewMonitorHandler(control MonitorControl) *MonitorHandler {
	return &MonitorHandler{control: control}
}

// StatusResponse is the JSON view of service.Status.
type StatusResponse struct {
	Running          bool       `json:"running"`
	Paused           bool       `json:"paused"`
	LastHeartbeat    *time.Time `json:"last_heartbeat,omitempty"`
	HeartbeatAgeSecs float64    `json:"heartbeat_age_seconds"`
	Now              time.Time  `json:"now"`
	Timezone         string     `json:"timezone"`
	CacheSize        int        `json:"cache_size"`
	LastError        string     `json:"last_error,omitempty"`
}

// ControlResponse reports the outcome of a control action.
type ControlResponse struct {
	Action  string `json:"action"`
	Message string `json:"message"`
	Removed *int   `json:"removed,omitempty"`
}

// Status handles GET /api/v1/status.
func (h *MonitorHandler) Status(c *gin.Context) {
	st := h.control.Status()
	resp := StatusResponse{
		Running:          st.Running,
		Paused:           st.Paused,
		HeartbeatAgeSecs: st.HeartbeatAge.Seconds(),
		Now:              st.Now,
		Timezone:         st.Now.Location().String(),
		CacheSize:        st.CacheSize,
		LastError:        st.LastError,
	}
	if !st.LastHeartbeat.IsZero() {
		resp.LastHeartbeat = &st.LastHeartbeat
	}
	c.JSON(http.StatusOK, resp)
}

// Stats handles GET /api/v1/stats.
func (h *MonitorHandler) Stats(c *gin.Context) {
	stats, err := h.control.Stats(c.Request.Context())
	if err != nil {
		logger.FromContext(c.Request.Context()).WithError(err).Error("stats query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load statistics"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Control handles POST /api/v1/control/:action where action is one of
// start, stop, restart or clear_cache.
func (h *MonitorHandler) Control(c *gin.Context) {
	ctx := c.Request.Context()
	action := c.Param("action")
	ctx = logger.WithField(ctx, logger.FieldCommand, action)

	resp := ControlResponse{Action: action}
	var err error
	switch action {
	case "start":
		err = h.control.Start(ctx)
		resp.Message = "Monitor started"
	case "stop":
		err = h.control.Stop(ctx)
		resp.Message = "Monitor stopped"
	case "restart":
		err = h.control.Restart(ctx)
		resp.Message = "Monitor restarted"
	case "clear_cache":
		var n int
		n, err = h.control.ClearCache(ctx)
		resp.Message = "Cache cleared"
		resp.Removed = &n
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown action: " + action})
		return
	}

	switch {
	case errors.Is(err, service.ErrAlreadyRunning), errors.Is(err, service.ErrNotRunning):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		logger.FromContext(ctx).WithError(err).Error("control action failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	logger.CtxInfo(ctx, "control action %s from %s", action, c.ClientIP())
	c.JSON(http.StatusOK, resp)
}
