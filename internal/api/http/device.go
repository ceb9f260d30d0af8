package http

import (
	"net/http"

	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/domain/device"
	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/shared/types"
	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/shared/utils"
	"github.com/gin-gonic/gin"
)

// AddUserRequest creates a user
type AddUserRequest struct {
	ID int `json:"id"`
}

// InstallRequest installs a package for a user
type InstallRequest struct {
	Name   string               `json:"name" binding:"required"`
	Bucket *types.StandbyBucket `json:"bucket"`
}

// BucketRequest moves a package to another standby bucket
type BucketRequest struct {
	Bucket types.StandbyBucket `json:"bucket" binding:"required"`
}

// FlagRequest toggles a per-package flag
type FlagRequest struct {
	Enabled bool `json:"enabled"`
}

// EscalationDecision answers a pending escalation request
type EscalationDecision struct {
	Approve bool `json:"approve"`
}

// Users

// ListUsers lists every user
func (h *Handlers) ListUsers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"users": h.dev.Users()})
}

// AddUser creates a stopped user
func (h *Handlers) AddUser(c *gin.Context) {
	var req AddUserRequest
	if !bind(c, &req) {
		return
	}
	if err := h.dev.AddUser(req.ID); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, device.UserInfo{ID: req.ID})
}

// StartUser marks a user running
func (h *Handlers) StartUser(c *gin.Context) {
	h.userOp(c, h.dev.StartUser)
}

// StopUser marks a user stopped
func (h *Handlers) StopUser(c *gin.Context) {
	h.userOp(c, h.dev.StopUser)
}

// RemoveUser deletes a user and everything installed for it
func (h *Handlers) RemoveUser(c *gin.Context) {
	h.userOp(c, h.dev.RemoveUser)
}

func (h *Handlers) userOp(c *gin.Context, op func(int) error) {
	userID, ok := intParam(c, "user")
	if !ok {
		return
	}
	if err := op(userID); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Packages

// ListPackages lists the packages installed for a user
func (h *Handlers) ListPackages(c *gin.Context) {
	userID, ok := intParam(c, "user")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"packages": h.dev.Packages(userID)})
}

// InstallPackage installs or replaces a package
func (h *Handlers) InstallPackage(c *gin.Context) {
	userID, ok := intParam(c, "user")
	if !ok {
		return
	}
	var req InstallRequest
	if !bind(c, &req) {
		return
	}
	bucket := types.BucketActive
	if req.Bucket != nil {
		bucket = *req.Bucket
	}
	if _, err := h.dev.Install(req.Name, userID, bucket); err != nil {
		h.respondError(c, err)
		return
	}
	info, err := h.dev.Package(req.Name, userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, info)
}

// GetPackage returns one installed package
func (h *Handlers) GetPackage(c *gin.Context) {
	userID, ok := intParam(c, "user")
	if !ok {
		return
	}
	info, err := h.dev.Package(c.Param("package"), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// UninstallPackage removes a package for a user
func (h *Handlers) UninstallPackage(c *gin.Context) {
	h.packageOp(c, func(pkg string, userID int) error {
		return h.dev.Uninstall(pkg, userID)
	})
}

// SetBucket moves a package to another bucket
func (h *Handlers) SetBucket(c *gin.Context) {
	var req BucketRequest
	if !bind(c, &req) {
		return
	}
	h.packageOp(c, func(pkg string, userID int) error {
		return h.dev.SetBucket(pkg, userID, req.Bucket)
	})
}

// ReportInteraction records that the user interacted with a package
func (h *Handlers) ReportInteraction(c *gin.Context) {
	h.packageOp(c, h.dev.ReportInteraction)
}

// SetHibernation toggles hibernation. Nothing broadcasts hibernation
// changes, so the uid is refreshed here.
func (h *Handlers) SetHibernation(c *gin.Context) {
	var req FlagRequest
	if !bind(c, &req) {
		return
	}
	h.packageOp(c, func(pkg string, userID int) error {
		uid, err := h.dev.SetHibernating(pkg, userID, req.Enabled)
		if err != nil {
			return err
		}
		return h.ctl.RefreshForUID(uid, types.ReasonSystemForced, false)
	})
}

// SetBackgroundRestriction toggles the user-set background restriction flag
func (h *Handlers) SetBackgroundRestriction(c *gin.Context) {
	var req FlagRequest
	if !bind(c, &req) {
		return
	}
	h.packageOp(c, func(pkg string, userID int) error {
		uid, err := h.dev.UIDForPackage(pkg, userID)
		if err != nil {
			return err
		}
		return h.dev.SetBackgroundRestricted(uid, pkg, req.Enabled)
	})
}

func (h *Handlers) packageOp(c *gin.Context, op func(pkg string, userID int) error) {
	userID, ok := intParam(c, "user")
	if !ok {
		return
	}
	if err := op(c.Param("package"), userID); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Properties

// ListProperties returns every configuration property
func (h *Handlers) ListProperties(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"properties": h.dev.Properties()})
}

// SetProperties merges the body into the properties. Empty values delete.
func (h *Handlers) SetProperties(c *gin.Context) {
	var values map[string]string
	if !bind(c, &values) {
		return
	}
	if err := utils.ValidateProperties(values); err != nil {
		h.respondError(c, err)
		return
	}
	changed := h.dev.SetProperties(values)
	if changed == nil {
		changed = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"changed": changed})
}

// Escalations

// ListEscalations returns the pending escalation requests
func (h *Handlers) ListEscalations(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"requests": h.dev.EscalationRequests()})
}

// ResolveEscalation approves or denies a pending request
func (h *Handlers) ResolveEscalation(c *gin.Context) {
	var req EscalationDecision
	if !bind(c, &req) {
		return
	}
	if err := h.dev.ResolveEscalation(c.Param("id"), req.Approve); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
