package handle

import (
	"fmt"
	"net/http"

	"medilink/internal/applog"
	"medilink/internal/authmw"
	"medilink/internal/dispatch-service/core/ports"
	"medilink/internal/myerrors"
)

// DispatchHandler serves the plain-HTTP read side of the dispatch
// service. Everything mutating goes through the websocket channels.
type DispatchHandler struct {
	assignment ports.IAssignmentService
	presence   ports.IPresenceService
	log        applog.Logger
}

func NewDispatchHandler(assignment ports.IAssignmentService, presence ports.IPresenceService, log applog.Logger) *DispatchHandler {
	return &DispatchHandler{
		assignment: assignment,
		presence:   presence,
		log:        log,
	}
}

// ActiveRequest returns the caller's active assignable request, looked
// up by role: requesters see the request they opened, candidates the
// one assigned to them.
func (dh *DispatchHandler) ActiveRequest() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userId := r.Header.Get(authmw.HeaderUserId)
		role := r.Header.Get(authmw.HeaderRole)

		var (
			req any
			ok  bool
		)
		switch role {
		case "PATIENT":
			req, ok = dh.assignment.ActiveForRequester(userId)
		case "AMBULANCE", "DOCTOR":
			req, ok = dh.assignment.ActiveForCandidate(userId)
		default:
			jsonError(w, fmt.Errorf("%w: role %s has no active requests", myerrors.ErrForbidden, role))
			return
		}
		if !ok {
			jsonError(w, fmt.Errorf("%w: no active request", myerrors.ErrNotFound))
			return
		}

		jsonResponse(w, http.StatusOK, req)
	}
}

// Presence returns the caller's own presence record.
func (dh *DispatchHandler) Presence() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userId := r.Header.Get(authmw.HeaderUserId)

		candidate, ok := dh.presence.Get(userId)
		if !ok {
			jsonError(w, fmt.Errorf("%w: candidate is not registered", myerrors.ErrNotFound))
			return
		}

		jsonResponse(w, http.StatusOK, candidate)
	}
}
