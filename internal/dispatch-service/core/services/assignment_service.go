package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"medilink/internal/applog"
	"medilink/internal/config"
	"medilink/internal/dispatch-service/core/domain/dto"
	messagebrokerdto "medilink/internal/dispatch-service/core/domain/message_broker_dto"
	"medilink/internal/dispatch-service/core/domain/model"
	websocketdto "medilink/internal/dispatch-service/core/domain/websocket_dto"
	"medilink/internal/dispatch-service/core/ports"
	"medilink/internal/myerrors"

	"github.com/google/uuid"
)

const publishTimeout = 5 * time.Second

// AssignmentService serializes every transition of an assignable
// request. The accept race is resolved here: request-assign and
// presence-reserve execute as one step under the service mutex, so at
// most one accept can ever set AssignedCandidateID.
type AssignmentService struct {
	mu sync.Mutex
	// requests holds live requests only; terminal entries are evicted
	// once their notices go out, the store keeps the history.
	requests map[string]*model.AssignableRequest
	// byRequester maps a requester to its single live request id.
	byRequester map[string]string
	// offered remembers who received an offer for a request so losers
	// can be sent a withdrawal notice. Ephemeral, never persisted.
	offered map[string]map[string]float64

	presence ports.IPresenceService
	repo     ports.IRequestRepo
	broker   ports.IDispatchBroker
	mylog    applog.Logger
	cfg      *config.Appconfig
	ctx      context.Context
	now      func() time.Time
}

func NewAssignmentService(
	ctx context.Context,
	log applog.Logger,
	cfg *config.Appconfig,
	presence ports.IPresenceService,
	repo ports.IRequestRepo,
	broker ports.IDispatchBroker,
) *AssignmentService {
	return &AssignmentService{
		ctx:         ctx,
		requests:    make(map[string]*model.AssignableRequest),
		byRequester: make(map[string]string),
		offered:     make(map[string]map[string]float64),
		presence: presence,
		repo:     repo,
		broker:   broker,
		mylog:    log,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Create validates the intent, persists the request and fans offers
// out to ranked candidates. With zero eligible candidates the request
// stays OPEN and a bounded re-offer loop retries in the background;
// the caller gets the request back together with ErrUnavailable so the
// requester sees "no responders nearby" instead of a hard failure.
func (as *AssignmentService) Create(ctx context.Context, requesterID string, req dto.CreateRequestDto) (model.AssignableRequest, error) {
	log := as.mylog.Action("CreateRequest")

	kind := model.RequestKind(req.Kind)
	if kind != model.KindSOS && kind != model.KindConsult {
		return model.AssignableRequest{}, fmt.Errorf("%w: unknown request kind %q", myerrors.ErrValidation, req.Kind)
	}
	if req.Latitude == nil || req.Longitude == nil {
		return model.AssignableRequest{}, fmt.Errorf("%w: missing coordinates", myerrors.ErrValidation)
	}
	origin := model.Location{Latitude: *req.Latitude, Longitude: *req.Longitude, Address: req.Address}
	if err := ValidateLocation(origin); err != nil {
		return model.AssignableRequest{}, err
	}
	radius := req.RadiusKm
	if radius == 0 {
		radius = float64(as.cfg.DefaultSearchRadiusKm)
	}
	if radius <= 0 {
		return model.AssignableRequest{}, ErrInvalidRadius
	}

	now := as.now()
	r := &model.AssignableRequest{
		ID:          uuid.NewString(),
		RequesterID: requesterID,
		Kind:        kind,
		Origin:      origin,
		RadiusKm:    radius,
		Status:      model.StatusOpen,
		Metadata:    req.Metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	as.mu.Lock()
	if _, active := as.byRequester[requesterID]; active {
		as.mu.Unlock()
		return model.AssignableRequest{}, fmt.Errorf("%w: requester already has an active request", myerrors.ErrConflict)
	}
	as.requests[r.ID] = r
	as.byRequester[requesterID] = r.ID
	as.mu.Unlock()

	if err := as.repo.Insert(ctx, *r); err != nil {
		as.mu.Lock()
		delete(as.requests, r.ID)
		delete(as.byRequester, requesterID)
		as.mu.Unlock()
		log.Error("cannot insert request", err)
		return model.AssignableRequest{}, err
	}

	offers := as.fanOut(r.ID)
	if len(offers) == 0 {
		log.Info("no responders nearby, scheduling re-offer", "request_id", r.ID, "kind", string(kind))
		go as.reofferLoop(r.ID)
		snapshot, _ := as.get(r.ID)
		return snapshot, myerrors.ErrUnavailable
	}

	log.Info("request offered", "request_id", r.ID, "kind", string(kind), "offers", len(offers))
	snapshot, _ := as.get(r.ID)
	return snapshot, nil
}

// Accept resolves the race: the first caller that still finds the
// request seeking a candidate and whose presence reservation succeeds
// wins. Everyone else gets ALREADY_TAKEN with no side effects.
func (as *AssignmentService) Accept(ctx context.Context, requestID, candidateID string) (model.AssignableRequest, error) {
	log := as.mylog.Action("AcceptRequest")

	as.mu.Lock()
	r, ok := as.requests[requestID]
	if !ok {
		as.mu.Unlock()
		return model.AssignableRequest{}, fmt.Errorf("%w: request %s", myerrors.ErrNotFound, requestID)
	}
	if r.Status != model.StatusOpen && r.Status != model.StatusOffered {
		as.mu.Unlock()
		return model.AssignableRequest{}, myerrors.ErrAlreadyTaken
	}
	// Reserve-and-assign is the atomic step: if the candidate was
	// concurrently committed elsewhere the whole accept fails and the
	// request stays available for the next claimant.
	if err := as.presence.Reserve(candidateID, requestID); err != nil {
		as.mu.Unlock()
		if errors.Is(err, myerrors.ErrNotFound) {
			return model.AssignableRequest{}, err
		}
		return model.AssignableRequest{}, myerrors.ErrAlreadyTaken
	}
	r.Status = model.StatusAssigned
	r.AssignedCandidateID = candidateID
	r.UpdatedAt = as.now()
	losers := as.takeOfferedExcept(requestID, candidateID)
	snapshot := *r
	as.mu.Unlock()

	as.persistStatus(snapshot)
	as.publishStatus(snapshot, websocketdto.EventRequestAssigned, "", snapshot.RequesterID, candidateID)
	as.withdraw(snapshot.ID, string(snapshot.Status), losers)

	log.Info("request assigned", "request_id", requestID, "candidate_id", candidateID)
	return snapshot, nil
}

// Complete finishes an assigned request and frees the candidate.
func (as *AssignmentService) Complete(ctx context.Context, requestID, candidateID string) (model.AssignableRequest, error) {
	log := as.mylog.Action("CompleteRequest")

	as.mu.Lock()
	r, ok := as.requests[requestID]
	if !ok {
		as.mu.Unlock()
		return model.AssignableRequest{}, fmt.Errorf("%w: request %s", myerrors.ErrNotFound, requestID)
	}
	if r.Status != model.StatusAssigned {
		as.mu.Unlock()
		return model.AssignableRequest{}, fmt.Errorf("%w: request is %s", myerrors.ErrConflict, r.Status)
	}
	if r.AssignedCandidateID != candidateID {
		as.mu.Unlock()
		return model.AssignableRequest{}, fmt.Errorf("%w: not the assigned candidate", myerrors.ErrForbidden)
	}
	r.Status = model.StatusCompleted
	r.UpdatedAt = as.now()
	snapshot := *r
	delete(as.requests, requestID)
	delete(as.byRequester, r.RequesterID)
	as.mu.Unlock()

	if err := as.presence.Release(candidateID); err != nil {
		log.Warn("failed to release candidate", "candidate_id", candidateID, "err", err.Error())
	}
	as.persistStatus(snapshot)
	as.publishStatus(snapshot, websocketdto.EventRequestResolved, "", snapshot.RequesterID, candidateID)

	log.Info("request completed", "request_id", requestID, "candidate_id", candidateID)
	return snapshot, nil
}

// Cancel is allowed to the requester while the request is non-terminal
// and to the assigned candidate as an abandonment; both release any
// held commitment.
func (as *AssignmentService) Cancel(ctx context.Context, requestID, actorID, reason string) (model.AssignableRequest, error) {
	log := as.mylog.Action("CancelRequest")

	as.mu.Lock()
	r, ok := as.requests[requestID]
	if !ok {
		as.mu.Unlock()
		return model.AssignableRequest{}, fmt.Errorf("%w: request %s", myerrors.ErrNotFound, requestID)
	}
	if actorID != r.RequesterID && actorID != r.AssignedCandidateID {
		as.mu.Unlock()
		return model.AssignableRequest{}, fmt.Errorf("%w: not a party to this request", myerrors.ErrForbidden)
	}
	released := r.AssignedCandidateID
	losers := as.takeOfferedExcept(requestID, "")
	r.Status = model.StatusCancelled
	r.UpdatedAt = as.now()
	snapshot := *r
	delete(as.requests, requestID)
	delete(as.byRequester, r.RequesterID)
	as.mu.Unlock()

	if released != "" {
		if err := as.presence.Release(released); err != nil {
			log.Warn("failed to release candidate", "candidate_id", released, "err", err.Error())
		}
	}
	as.persistStatus(snapshot)
	recipients := []string{snapshot.RequesterID}
	if released != "" {
		recipients = append(recipients, released)
	}
	as.publishStatus(snapshot, websocketdto.EventRequestResolved, reason, recipients...)
	as.withdraw(snapshot.ID, string(snapshot.Status), losers)

	log.Info("request cancelled", "request_id", requestID, "actor_id", actorID)
	return snapshot, nil
}

// UpdateOrigin records the requester's live position. Informational
// only; no re-ranking happens.
func (as *AssignmentService) UpdateOrigin(ctx context.Context, requestID, requesterID string, loc model.Location) (model.AssignableRequest, error) {
	if err := ValidateLocation(loc); err != nil {
		return model.AssignableRequest{}, err
	}

	as.mu.Lock()
	r, ok := as.requests[requestID]
	if !ok {
		as.mu.Unlock()
		return model.AssignableRequest{}, fmt.Errorf("%w: request %s", myerrors.ErrNotFound, requestID)
	}
	if r.RequesterID != requesterID {
		as.mu.Unlock()
		return model.AssignableRequest{}, fmt.Errorf("%w: not the requester", myerrors.ErrForbidden)
	}
	r.Origin = loc
	r.UpdatedAt = as.now()
	snapshot := *r
	as.mu.Unlock()

	ctxTo, cancel := context.WithTimeout(as.ctx, publishTimeout)
	defer cancel()
	if err := as.repo.UpdateOrigin(ctxTo, snapshot.ID, loc); err != nil {
		as.mylog.Action("UpdateOrigin").Warn("failed to persist origin", "request_id", snapshot.ID, "err", err.Error())
	}
	if snapshot.AssignedCandidateID != "" {
		as.publishStatus(snapshot, websocketdto.EventRequestUpdated, "", snapshot.AssignedCandidateID)
	}
	return snapshot, nil
}

// ActiveForRequester returns the requester's non-terminal request, if
// any. Used by the snapshot endpoint for reconnect/resume.
func (as *AssignmentService) ActiveForRequester(requesterID string) (model.AssignableRequest, bool) {
	as.mu.Lock()
	defer as.mu.Unlock()
	id, ok := as.byRequester[requesterID]
	if !ok {
		return model.AssignableRequest{}, false
	}
	r, ok := as.requests[id]
	if !ok {
		return model.AssignableRequest{}, false
	}
	return *r, true
}

// ActiveForCandidate returns the request currently assigned to the
// candidate, if any.
func (as *AssignmentService) ActiveForCandidate(candidateID string) (model.AssignableRequest, bool) {
	as.mu.Lock()
	defer as.mu.Unlock()
	for _, r := range as.requests {
		if r.AssignedCandidateID == candidateID && r.Status == model.StatusAssigned {
			return *r, true
		}
	}
	return model.AssignableRequest{}, false
}

func (as *AssignmentService) get(requestID string) (model.AssignableRequest, bool) {
	as.mu.Lock()
	defer as.mu.Unlock()
	r, ok := as.requests[requestID]
	if !ok {
		return model.AssignableRequest{}, false
	}
	return *r, true
}

// fanOut ranks the current presence snapshot and publishes an offer to
// the top candidates. The OPEN->OFFERED transition commits under the
// lock; publishing happens after, so a slow broker never blocks the
// state machine.
func (as *AssignmentService) fanOut(requestID string) []messagebrokerdto.Offer {
	log := as.mylog.Action("FanOut")
	snapshot := as.presence.Snapshot()

	as.mu.Lock()
	r, ok := as.requests[requestID]
	if !ok || (r.Status != model.StatusOpen && r.Status != model.StatusOffered) {
		as.mu.Unlock()
		return nil
	}
	ranked, err := RankCandidates(r.Origin, r.RadiusKm, r.Kind, snapshot)
	if err != nil || len(ranked) == 0 {
		as.mu.Unlock()
		return nil
	}
	if len(ranked) > as.cfg.MaxOfferFanout {
		ranked = ranked[:as.cfg.MaxOfferFanout]
	}

	r.Status = model.StatusOffered
	r.UpdatedAt = as.now()
	recipients, ok := as.offered[requestID]
	if !ok {
		recipients = make(map[string]float64)
		as.offered[requestID] = recipients
	}
	offers := make([]messagebrokerdto.Offer, 0, len(ranked))
	ts := as.now().Format(time.RFC3339)
	for _, rc := range ranked {
		if _, already := recipients[rc.ID]; already {
			continue
		}
		recipients[rc.ID] = rc.DistanceKm
		offers = append(offers, messagebrokerdto.Offer{
			RequestID:   r.ID,
			CandidateID: rc.ID,
			RequesterID: r.RequesterID,
			Kind:        string(r.Kind),
			Latitude:    r.Origin.Latitude,
			Longitude:   r.Origin.Longitude,
			Address:     r.Origin.Address,
			DistanceKm:  rc.DistanceKm,
			OfferedAt:   ts,
		})
	}
	snapshotReq := *r
	as.mu.Unlock()

	as.persistStatus(snapshotReq)
	for _, offer := range offers {
		ctx, cancel := context.WithTimeout(as.ctx, publishTimeout)
		if err := as.broker.PushOffer(ctx, offer); err != nil {
			log.Warn("failed to publish offer", "request_id", offer.RequestID, "candidate_id", offer.CandidateID, "err", err.Error())
		}
		cancel()
	}
	return offers
}

// reofferLoop retries fan-out for a request that found zero candidates,
// on a fixed interval and for a bounded number of attempts. After the
// last attempt the request is left OPEN for operator escalation.
func (as *AssignmentService) reofferLoop(requestID string) {
	log := as.mylog.Action("Reoffer").With("request_id", requestID)
	interval := time.Duration(as.cfg.ReofferIntervalSec) * time.Second
	t := time.NewTicker(interval)
	defer t.Stop()

	for attempt := 1; attempt <= as.cfg.MaxReofferAttempts; attempt++ {
		select {
		case <-as.ctx.Done():
			return
		case <-t.C:
		}

		r, ok := as.get(requestID)
		if !ok || r.Status != model.StatusOpen {
			return
		}
		if offers := as.fanOut(requestID); len(offers) > 0 {
			log.Info("re-offer succeeded", "attempt", attempt, "offers", len(offers))
			return
		}
		log.Info("re-offer found no responders", "attempt", attempt)
	}

	r, ok := as.get(requestID)
	if ok && r.Status == model.StatusOpen {
		as.publishStatus(r, websocketdto.EventRequestUpdated, "no responders available", r.RequesterID)
		log.Warn("re-offer attempts exhausted, awaiting operator")
	}
}

// takeOfferedExcept removes and returns the offered-candidate set for
// a request, minus the given id. Must be called under the lock.
func (as *AssignmentService) takeOfferedExcept(requestID, except string) []string {
	recipients := as.offered[requestID]
	delete(as.offered, requestID)
	losers := make([]string, 0, len(recipients))
	for id := range recipients {
		if id != except {
			losers = append(losers, id)
		}
	}
	return losers
}

func (as *AssignmentService) persistStatus(r model.AssignableRequest) {
	ctx, cancel := context.WithTimeout(as.ctx, publishTimeout)
	defer cancel()
	if err := as.repo.UpdateStatus(ctx, r.ID, r.Status, r.AssignedCandidateID); err != nil {
		as.mylog.Action("persist_request").Warn("failed to write request row", "request_id", r.ID, "err", err.Error())
	}
}

func (as *AssignmentService) publishStatus(r model.AssignableRequest, eventType, reason string, recipients ...string) {
	ts := as.now().Format(time.RFC3339)
	for _, recipient := range recipients {
		ctx, cancel := context.WithTimeout(as.ctx, publishTimeout)
		err := as.broker.PushRequestStatus(ctx, messagebrokerdto.RequestStatus{
			RequestID:           r.ID,
			RecipientID:         recipient,
			EventType:           eventType,
			Status:              string(r.Status),
			AssignedCandidateID: r.AssignedCandidateID,
			Reason:              reason,
			Timestamp:           ts,
		})
		cancel()
		if err != nil {
			as.mylog.Action("publish_status").Warn("failed to publish status", "request_id", r.ID, "recipient", recipient, "err", err.Error())
		}
	}
}

// withdraw notifies losing candidates that the request is gone. A
// lost race is normal contention, so this is informational traffic.
func (as *AssignmentService) withdraw(requestID, status string, candidateIDs []string) {
	ts := as.now().Format(time.RFC3339)
	for _, id := range candidateIDs {
		ctx, cancel := context.WithTimeout(as.ctx, publishTimeout)
		err := as.broker.PushRequestStatus(ctx, messagebrokerdto.RequestStatus{
			RequestID:   requestID,
			RecipientID: id,
			EventType:   websocketdto.EventOfferWithdrawn,
			Status:      status,
			Timestamp:   ts,
		})
		cancel()
		if err != nil {
			as.mylog.Action("withdraw_offer").Warn("failed to publish withdrawal", "request_id", requestID, "candidate_id", id, "err", err.Error())
		}
	}
}
