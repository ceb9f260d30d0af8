package http

import (
	"net/http"

	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/adapters/standby"
	"github.com/gin-gonic/gin"
)

// StandbyBuckets serves the buckets of every package of a user
func (h *Handlers) StandbyBuckets(c *gin.Context) {
	userID, ok := intParam(c, "user")
	if !ok {
		return
	}
	buckets, err := h.dev.Buckets(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, standby.BucketsResponse{Buckets: buckets})
}

// StandbyBucket serves the bucket of one package
func (h *Handlers) StandbyBucket(c *gin.Context) {
	userID, ok := intParam(c, "user")
	if !ok {
		return
	}
	pkg := c.Param("package")
	bucket, err := h.dev.Bucket(c.Request.Context(), pkg, userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, standby.BucketResponse{Package: pkg, Bucket: bucket})
}

// StandbyRestrict moves a package into the restricted bucket
func (h *Handlers) StandbyRestrict(c *gin.Context) {
	var req standby.RestrictRequest
	if !bind(c, &req) {
		return
	}
	h.packageOp(c, func(pkg string, userID int) error {
		return h.dev.Restrict(c.Request.Context(), pkg, userID, req.Reason)
	})
}

// StandbyUnrestrict lifts a restriction made for the same main reason
func (h *Handlers) StandbyUnrestrict(c *gin.Context) {
	var req standby.UnrestrictRequest
	if !bind(c, &req) {
		return
	}
	h.packageOp(c, func(pkg string, userID int) error {
		return h.dev.Unrestrict(c.Request.Context(), pkg, userID, req.PrevReason, req.Reason)
	})
}
