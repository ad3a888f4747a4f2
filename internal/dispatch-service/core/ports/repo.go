package ports

import (
	"context"

	"medilink/internal/dispatch-service/core/domain/model"
)

// IRequestRepo persists assignable requests for snapshots and restart
// recovery. The in-memory state machine is authoritative; writes here
// never gate a transition.
type IRequestRepo interface {
	Insert(ctx context.Context, req model.AssignableRequest) error
	UpdateStatus(ctx context.Context, id string, status model.RequestStatus, assignedCandidateID string) error
	UpdateOrigin(ctx context.Context, id string, loc model.Location) error
}

// ICandidateRepo mirrors the presence registry into the store.
type ICandidateRepo interface {
	UpsertPresence(ctx context.Context, c model.Candidate) error
}
