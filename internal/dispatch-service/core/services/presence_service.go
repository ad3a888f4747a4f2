package services

import (
	"context"
	"fmt"
	"sync"

	"medilink/internal/applog"
	"medilink/internal/dispatch-service/core/domain/model"
	"medilink/internal/dispatch-service/core/ports"
	"medilink/internal/myerrors"
)

// PresenceService is the single source of truth for candidate
// availability. All transitions happen under one mutex; Reserve is the
// compare-and-set that makes the accept race safe.
type PresenceService struct {
	mu         sync.RWMutex
	candidates map[string]*model.Candidate

	repo  ports.ICandidateRepo
	mylog applog.Logger
	ctx   context.Context
}

func NewPresenceService(ctx context.Context, log applog.Logger, repo ports.ICandidateRepo) *PresenceService {
	return &PresenceService{
		ctx:        ctx,
		candidates: make(map[string]*model.Candidate),
		repo:       repo,
		mylog:      log,
	}
}

// GoOnline marks the candidate eligible for offers. A candidate still
// committed to an assignment cannot re-register as free; it must
// complete or cancel first.
func (ps *PresenceService) GoOnline(ctx context.Context, candidateID string, role model.CandidateRole, loc model.Location) error {
	if err := ValidateLocation(loc); err != nil {
		return err
	}

	ps.mu.Lock()
	c, ok := ps.candidates[candidateID]
	if ok && c.CurrentAssignmentID != "" {
		ps.mu.Unlock()
		return fmt.Errorf("%w: candidate %s is mid-assignment", myerrors.ErrConflict, candidateID)
	}
	if !ok {
		c = &model.Candidate{ID: candidateID}
		ps.candidates[candidateID] = c
	}
	c.Role = role
	c.Online = true
	c.LastLocation = loc
	snapshot := *c
	ps.mu.Unlock()

	go ps.persist(snapshot)
	return nil
}

// GoOffline stops future offers. An active assignment is not
// auto-cancelled; the in-progress job continues.
func (ps *PresenceService) GoOffline(ctx context.Context, candidateID string) error {
	ps.mu.Lock()
	c, ok := ps.candidates[candidateID]
	if !ok {
		ps.mu.Unlock()
		return fmt.Errorf("%w: candidate %s", myerrors.ErrNotFound, candidateID)
	}
	c.Online = false
	snapshot := *c
	ps.mu.Unlock()

	go ps.persist(snapshot)
	return nil
}

// UpdateLocation is a no-op for offline candidates.
func (ps *PresenceService) UpdateLocation(candidateID string, loc model.Location) error {
	if err := ValidateLocation(loc); err != nil {
		return err
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()
	c, ok := ps.candidates[candidateID]
	if !ok || !c.Online {
		return nil
	}
	c.LastLocation = loc
	return nil
}

// Reserve is an atomic compare-and-set: it fails when the candidate is
// already committed. The caller must treat failure as a lost race, not
// a crash.
func (ps *PresenceService) Reserve(candidateID, assignmentID string) error {
	ps.mu.Lock()
	c, ok := ps.candidates[candidateID]
	if !ok {
		ps.mu.Unlock()
		return fmt.Errorf("%w: candidate %s", myerrors.ErrNotFound, candidateID)
	}
	if c.CurrentAssignmentID != "" {
		ps.mu.Unlock()
		return fmt.Errorf("%w: candidate %s already committed", myerrors.ErrConflict, candidateID)
	}
	c.CurrentAssignmentID = assignmentID
	snapshot := *c
	ps.mu.Unlock()

	go ps.persist(snapshot)
	return nil
}

func (ps *PresenceService) Release(candidateID string) error {
	ps.mu.Lock()
	c, ok := ps.candidates[candidateID]
	if !ok {
		ps.mu.Unlock()
		return fmt.Errorf("%w: candidate %s", myerrors.ErrNotFound, candidateID)
	}
	c.CurrentAssignmentID = ""
	snapshot := *c
	ps.mu.Unlock()

	go ps.persist(snapshot)
	return nil
}

func (ps *PresenceService) Get(candidateID string) (model.Candidate, bool) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	c, ok := ps.candidates[candidateID]
	if !ok {
		return model.Candidate{}, false
	}
	return *c, true
}

// Snapshot returns a copy of the registry for the selector.
func (ps *PresenceService) Snapshot() []model.Candidate {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	out := make([]model.Candidate, 0, len(ps.candidates))
	for _, c := range ps.candidates {
		out = append(out, *c)
	}
	return out
}

// persist mirrors the registry into the store after the in-memory
// commit. It always runs off the caller's path with a bounded context:
// Reserve sits inside the accept critical section, and a slow
// candidate-row write must never stall a state transition. A write
// failure is logged, never propagated.
func (ps *PresenceService) persist(c model.Candidate) {
	if ps.repo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ps.ctx, publishTimeout)
	defer cancel()
	if err := ps.repo.UpsertPresence(ctx, c); err != nil {
		ps.mylog.Action("persist_presence").Warn("failed to write candidate row", "candidate_id", c.ID, "err", err.Error())
	}
}
