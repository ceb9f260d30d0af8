package http

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/audit"
	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/domain/restriction"
	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/shared/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultHistoryLimit = 50

// RefreshRequest asks the controller to recompute levels. With neither
// UID nor UserID set every running user is reevaluated.
type RefreshRequest struct {
	UID             *int   `json:"uid"`
	UserID          *int   `json:"user_id"`
	Reason          string `json:"reason"`
	AllowEscalation bool   `json:"allow_escalation"`
	// Wait blocks until the refresh has run on the lane.
	Wait bool `json:"wait"`
}

// UIDLevelResponse is the level of one uid and its packages
type UIDLevelResponse struct {
	UID      int                        `json:"uid"`
	Level    types.RestrictionLevel     `json:"level"`
	Packages []restriction.PackageState `json:"packages"`
}

// PackageLevelResponse is the level of one package for a user
type PackageLevelResponse struct {
	Package  string                 `json:"package"`
	UserID   int                    `json:"user_id"`
	UID      int                    `json:"uid"`
	Level    types.RestrictionLevel `json:"level"`
	Previous types.RestrictionLevel `json:"previous"`
	Reason   string                 `json:"reason"`
	Active   bool                   `json:"active"`
}

// ListLevels returns every recorded (uid, package) level
func (h *Handlers) ListLevels(c *gin.Context) {
	levels := h.ctl.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"levels": levels,
		"count":  len(levels),
		"ready":  h.ctl.Ready(),
	})
}

// UIDLevel returns the aggregate level of a uid
func (h *Handlers) UIDLevel(c *gin.Context) {
	uid, ok := intParam(c, "uid")
	if !ok {
		return
	}
	resp := UIDLevelResponse{
		UID:      uid,
		Level:    h.ctl.Level(uid),
		Packages: []restriction.PackageState{},
	}
	for _, st := range h.ctl.Snapshot() {
		if st.UID == uid {
			resp.Packages = append(resp.Packages, st)
		}
	}
	c.JSON(http.StatusOK, resp)
}

// PackageLevel returns the level of a package for a user
func (h *Handlers) PackageLevel(c *gin.Context) {
	userID, ok := intParam(c, "user")
	if !ok {
		return
	}
	pkg := c.Param("package")

	level, err := h.ctl.LevelForPackage(pkg, userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	uid, err := h.dev.UIDForPackage(pkg, userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	resp := PackageLevelResponse{
		Package: pkg,
		UserID:  userID,
		UID:     uid,
		Level:   level,
		Reason:  h.ctl.Reason(uid, pkg).String(),
		Active:  h.ctl.IsActive(uid, pkg),
	}
	if st, ok := h.ctl.State(uid, pkg); ok {
		resp.Previous = st.Previous
	}
	c.JSON(http.StatusOK, resp)
}

// Refresh enqueues a recomputation on the controller's lane
func (h *Handlers) Refresh(c *gin.Context) {
	var req RefreshRequest
	if !bind(c, &req) {
		return
	}
	if req.UID != nil && req.UserID != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "uid and user_id are mutually exclusive"})
		return
	}
	reason := types.ReasonSystemForced
	if req.Reason != "" {
		parsed, err := types.ParseReason(req.Reason)
		if err != nil {
			h.respondError(c, err)
			return
		}
		reason = parsed
	}

	var (
		err   error
		scope string
	)
	switch {
	case req.UID != nil:
		scope = "uid"
		err = h.ctl.RefreshForUID(*req.UID, reason, req.AllowEscalation)
	case req.UserID != nil:
		scope = "user"
		err = h.ctl.RefreshForUser(*req.UserID, reason)
	default:
		scope = "all"
		err = h.ctl.ReevaluateAll(reason)
	}
	if err != nil {
		h.respondError(c, err)
		return
	}

	if !req.Wait {
		c.JSON(http.StatusAccepted, gin.H{"scope": scope, "reason": reason.String()})
		return
	}
	if err := h.ctl.Sync(c.Request.Context()); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"scope": scope, "reason": reason.String(), "done": true})
}

// Dump writes the controller's diagnostic dump as text
func (h *Handlers) Dump(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.ctl.Dump(&buf); err != nil {
		h.respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", buf.Bytes())
}

// History returns recorded transitions, newest first. With a uid query
// the result is narrowed to it, and further to a package if one is given.
func (h *Handlers) History(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "transition history is disabled"})
		return
	}
	limit, ok := intQuery(c, "limit", defaultHistoryLimit)
	if !ok {
		return
	}
	_, hasUID := c.GetQuery("uid")
	pkg := c.Query("package")
	if !hasUID && pkg != "" {
		h.respondError(c, errors.New("package filter requires uid"))
		return
	}

	ctx := c.Request.Context()
	var (
		records []audit.Record
		err     error
	)
	if hasUID {
		uid, ok := intQuery(c, "uid", 0)
		if !ok {
			return
		}
		records, err = h.history.History(ctx, uid, pkg, limit)
	} else {
		records, err = h.history.Recent(ctx, limit)
	}
	if err != nil {
		h.logger.Error("History query failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if records == nil {
		records = []audit.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"transitions": records, "count": len(records)})
}

// ListTrackers returns the registered tracker names in evaluation order
func (h *Handlers) ListTrackers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"trackers": h.ctl.Trackers().Names()})
}
