package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/audit"
	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/domain/device"
	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/domain/restriction"
	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/infrastructure/logging"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// History reads recorded level transitions
type History interface {
	History(ctx context.Context, uid int, pkg string, limit int) ([]audit.Record, error)
	Recent(ctx context.Context, limit int) ([]audit.Record, error)
}

// Handlers contains all HTTP handlers
type Handlers struct {
	ctl     *restriction.Controller
	dev     *device.Device
	history History
	logger  *logging.Logger
}

// NewHandlers creates a new handler set
func NewHandlers(ctl *restriction.Controller, dev *device.Device, logger *logging.Logger) *Handlers {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handlers{
		ctl:    ctl,
		dev:    dev,
		logger: logger.Named("api"),
	}
}

// WithHistory enables the transition history endpoint
func (h *Handlers) WithHistory(history History) *Handlers {
	h.history = history
	return h
}

// Register mounts every route on r
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)

	v1 := r.Group("/v1")

	// Controller read path
	v1.GET("/levels", h.ListLevels)
	v1.GET("/levels/:uid", h.UIDLevel)
	v1.POST("/refresh", h.Refresh)
	v1.GET("/dump", h.Dump)
	v1.GET("/history", h.History)
	v1.GET("/trackers", h.ListTrackers)

	// Device signals
	v1.GET("/users", h.ListUsers)
	v1.POST("/users", h.AddUser)
	v1.DELETE("/users/:user", h.RemoveUser)
	v1.POST("/users/:user/start", h.StartUser)
	v1.POST("/users/:user/stop", h.StopUser)

	v1.GET("/users/:user/packages", h.ListPackages)
	v1.POST("/users/:user/packages", h.InstallPackage)
	v1.GET("/users/:user/packages/:package", h.GetPackage)
	v1.DELETE("/users/:user/packages/:package", h.UninstallPackage)
	v1.GET("/users/:user/packages/:package/level", h.PackageLevel)
	v1.PUT("/users/:user/packages/:package/bucket", h.SetBucket)
	v1.POST("/users/:user/packages/:package/interaction", h.ReportInteraction)
	v1.PUT("/users/:user/packages/:package/hibernation", h.SetHibernation)
	v1.PUT("/users/:user/packages/:package/background-restriction", h.SetBackgroundRestriction)

	v1.GET("/processes", h.ListProcesses)
	v1.POST("/processes/:uid", h.StartProcess)
	v1.DELETE("/processes/:uid", h.StopProcess)
	v1.POST("/processes/:uid/focus", h.FocusProcess)
	v1.POST("/processes/:uid/background", h.BackgroundProcess)
	v1.PUT("/processes/:uid/disabled", h.SetProcessDisabled)

	v1.GET("/properties", h.ListProperties)
	v1.PATCH("/properties", h.SetProperties)

	v1.GET("/escalations", h.ListEscalations)
	v1.POST("/escalations/:id", h.ResolveEscalation)

	// Standby service contract, consumed by remote instances
	standby := v1.Group("/standby/users/:user")
	standby.GET("/buckets", h.StandbyBuckets)
	standby.GET("/packages/:package/bucket", h.StandbyBucket)
	standby.POST("/packages/:package/restrict", h.StandbyRestrict)
	standby.POST("/packages/:package/unrestrict", h.StandbyUnrestrict)
}

// Root handles the service banner
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "bgrestrict",
		"version": "1.0.0",
	})
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	status := http.StatusOK
	state := "healthy"
	if !h.ctl.Ready() {
		status = http.StatusServiceUnavailable
		state = "starting"
	}
	c.JSON(status, gin.H{
		"status":    state,
		"ready":     h.ctl.Ready(),
		"queue":     h.ctl.QueueLen(),
		"trackers":  h.ctl.Trackers().Names(),
		"users":     h.dev.Users(),
		"processes": h.dev.Processes().Stats(),
		"history":   h.history != nil,
	})
}

// respondError maps domain errors onto status codes
func (h *Handlers) respondError(c *gin.Context, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, restriction.ErrPackageNotFound),
		errors.Is(err, device.ErrUserNotFound),
		errors.Is(err, device.ErrNoSuchUID),
		errors.Is(err, device.ErrRequestNotFound):
		status = http.StatusNotFound
	case errors.Is(err, device.ErrUserExists):
		status = http.StatusConflict
	case errors.Is(err, restriction.ErrLaneClosed):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	if status >= http.StatusInternalServerError {
		h.logger.Warn("Request failed",
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": err.Error()})
}

func intParam(c *gin.Context, name string) (int, bool) {
	raw := c.Param(name)
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid %s %q", name, raw)})
		return 0, false
	}
	return v, true
}

func intQuery(c *gin.Context, name string, def int) (int, bool) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid %s %q", name, raw)})
		return 0, false
	}
	return v, true
}

// bind decodes the JSON body into v, answering 400 on failure
func bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return false
	}
	return true
}
