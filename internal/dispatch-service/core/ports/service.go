package ports

import (
	"context"

	"medilink/internal/dispatch-service/core/domain/dto"
	"medilink/internal/dispatch-service/core/domain/model"
)

// IPresenceService tracks which candidates are online, their last
// location and their current commitment. Reserve/Release are the only
// code paths allowed to mutate CurrentAssignmentID.
type IPresenceService interface {
	GoOnline(ctx context.Context, candidateID string, role model.CandidateRole, loc model.Location) error
	GoOffline(ctx context.Context, candidateID string) error
	UpdateLocation(candidateID string, loc model.Location) error
	Reserve(candidateID, assignmentID string) error
	Release(candidateID string) error
	Get(candidateID string) (model.Candidate, bool)
	Snapshot() []model.Candidate
}

// IAssignmentService owns the assignable-request state machine and the
// accept race.
type IAssignmentService interface {
	Create(ctx context.Context, requesterID string, req dto.CreateRequestDto) (model.AssignableRequest, error)
	Accept(ctx context.Context, requestID, candidateID string) (model.AssignableRequest, error)
	Complete(ctx context.Context, requestID, candidateID string) (model.AssignableRequest, error)
	Cancel(ctx context.Context, requestID, actorID, reason string) (model.AssignableRequest, error)
	UpdateOrigin(ctx context.Context, requestID, requesterID string, loc model.Location) (model.AssignableRequest, error)
	ActiveForRequester(requesterID string) (model.AssignableRequest, bool)
	ActiveForCandidate(candidateID string) (model.AssignableRequest, bool)
}
