package device

import (
	"errors"
	"fmt"
	"time"

	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/infrastructure/logging"
	"github.com/google/uuid"
)

// ErrRequestNotFound is returned for unknown escalation requests
var ErrRequestNotFound = errors.New("device: escalation request not found")

// EscalationRequest is a pending prompt asking the user to background
// restrict a package
type EscalationRequest struct {
	ID          string    `json:"id"`
	Package     string    `json:"package"`
	UID         int       `json:"uid"`
	RequestedAt time.Time `json:"requested_at"`
}

// RequestEscalation implements restriction.ConsentSurface. Repeated
// requests for a pending pair are folded into the first.
func (d *Device) RequestEscalation(pkg string, uid int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, r := range d.escalation {
		if r.Package == pkg && r.UID == uid {
			return
		}
	}
	req := EscalationRequest{
		ID:          uuid.New().String(),
		Package:     pkg,
		UID:         uid,
		RequestedAt: d.now(),
	}
	d.escalation = append(d.escalation, req)
	d.logger.Info("Escalation requested", logging.Package(pkg), logging.UID(uid))
}

// EscalationRequests returns the pending requests, oldest first
func (d *Device) EscalationRequests() []EscalationRequest {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]EscalationRequest(nil), d.escalation...)
}

// ResolveEscalation answers a pending request. Approving sets the
// background restriction flag.
func (d *Device) ResolveEscalation(id string, approve bool) error {
	d.mu.Lock()
	var req EscalationRequest
	found := false
	for i, r := range d.escalation {
		if r.ID == id {
			req, found = r, true
			d.escalation = append(d.escalation[:i], d.escalation[i+1:]...)
			break
		}
	}
	d.mu.Unlock()

	if !found {
		return fmt.Errorf("%w: %s", ErrRequestNotFound, id)
	}
	if !approve {
		d.logger.Info("Escalation denied", logging.Package(req.Package), logging.UID(req.UID))
		return nil
	}
	return d.SetBackgroundRestricted(req.UID, req.Package, true)
}
