package http

import (
	"fmt"
	"net/http"

	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/domain/device"
	"github.com/gin-gonic/gin"
)

// DisabledRequest marks a process's app disabled
type DisabledRequest struct {
	Disabled bool `json:"disabled"`
}

// ListProcesses lists running processes, optionally filtered by ?state=
func (h *Handlers) ListProcesses(c *gin.Context) {
	var filter *device.ProcessState
	if raw := c.Query("state"); raw != "" {
		state := device.ProcessState(raw)
		if state != device.StateForeground && state != device.StateBackground {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid state %q", raw)})
			return
		}
		filter = &state
	}
	procs := h.dev.Processes()
	c.JSON(http.StatusOK, gin.H{
		"processes": procs.List(filter),
		"stats":     procs.Stats(),
	})
}

// StartProcess launches a uid in the foreground
func (h *Handlers) StartProcess(c *gin.Context) {
	uid, ok := intParam(c, "uid")
	if !ok {
		return
	}
	proc, err := h.dev.Processes().Start(uid)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, proc)
}

// FocusProcess brings a running uid to the foreground
func (h *Handlers) FocusProcess(c *gin.Context) {
	h.processOp(c, h.dev.Processes().Focus)
}

// BackgroundProcess sends a running uid to the background
func (h *Handlers) BackgroundProcess(c *gin.Context) {
	h.processOp(c, h.dev.Processes().Background)
}

// StopProcess ends a uid's process
func (h *Handlers) StopProcess(c *gin.Context) {
	h.processOp(c, h.dev.Processes().Stop)
}

// SetProcessDisabled marks whether a running uid's app is disabled
func (h *Handlers) SetProcessDisabled(c *gin.Context) {
	var req DisabledRequest
	if !bind(c, &req) {
		return
	}
	h.processOp(c, func(uid int) bool {
		return h.dev.Processes().SetDisabled(uid, req.Disabled)
	})
}

func (h *Handlers) processOp(c *gin.Context, op func(uid int) bool) {
	uid, ok := intParam(c, "uid")
	if !ok {
		return
	}
	if !op(uid) {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("no process for uid %d", uid)})
		return
	}
	proc, running := h.dev.Processes().Get(uid)
	if !running {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, proc)
}
