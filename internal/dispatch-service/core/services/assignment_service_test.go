package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"medilink/internal/config"
	"medilink/internal/dispatch-service/core/domain/dto"
	messagebrokerdto "medilink/internal/dispatch-service/core/domain/message_broker_dto"
	"medilink/internal/dispatch-service/core/domain/model"
	websocketdto "medilink/internal/dispatch-service/core/domain/websocket_dto"
	"medilink/internal/myerrors"
)

type fakeRequestRepo struct {
	mu       sync.Mutex
	inserted []model.AssignableRequest
}

func (f *fakeRequestRepo) Insert(ctx context.Context, req model.AssignableRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted = append(f.inserted, req)
	return nil
}

func (f *fakeRequestRepo) UpdateStatus(ctx context.Context, id string, status model.RequestStatus, assignedCandidateID string) error {
	return nil
}

func (f *fakeRequestRepo) UpdateOrigin(ctx context.Context, id string, loc model.Location) error {
	return nil
}

type fakeBroker struct {
	mu       sync.Mutex
	offers   []messagebrokerdto.Offer
	statuses []messagebrokerdto.RequestStatus
}

func (f *fakeBroker) PushOffer(ctx context.Context, msg messagebrokerdto.Offer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offers = append(f.offers, msg)
	return nil
}

func (f *fakeBroker) PushRequestStatus(ctx context.Context, msg messagebrokerdto.RequestStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, msg)
	return nil
}

func (f *fakeBroker) offersFor(candidateID string) []messagebrokerdto.Offer {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []messagebrokerdto.Offer
	for _, o := range f.offers {
		if o.CandidateID == candidateID {
			out = append(out, o)
		}
	}
	return out
}

func (f *fakeBroker) statusesOf(eventType string) []messagebrokerdto.RequestStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []messagebrokerdto.RequestStatus
	for _, s := range f.statuses {
		if s.EventType == eventType {
			out = append(out, s)
		}
	}
	return out
}

func testAppConfig() *config.Appconfig {
	return &config.Appconfig{
		MaxOfferFanout:        10,
		ReofferIntervalSec:    1,
		MaxReofferAttempts:    3,
		DefaultSearchRadiusKm: 15,
	}
}

func newTestAssignment(t *testing.T) (*AssignmentService, *PresenceService, *fakeBroker) {
	t.Helper()
	log := testLogger(t)
	presence := NewPresenceService(context.Background(), log, nil)
	broker := &fakeBroker{}
	as := NewAssignmentService(context.Background(), log, testAppConfig(), presence, &fakeRequestRepo{}, broker)
	return as, presence, broker
}

func sosRequest(lat, lon float64) dto.CreateRequestDto {
	return dto.CreateRequestDto{
		Kind:      "SOS",
		Latitude:  &lat,
		Longitude: &lon,
	}
}

func TestAcceptRaceHasExactlyOneWinner(t *testing.T) {
	as, presence, _ := newTestAssignment(t)
	ctx := context.Background()

	candidates := []string{"amb-1", "amb-2", "amb-3", "amb-4", "amb-5"}
	for _, id := range candidates {
		if err := presence.GoOnline(ctx, id, model.RoleAmbulance, model.Location{Latitude: 12.91, Longitude: 77.60}); err != nil {
			t.Fatalf("go online %s: %v", id, err)
		}
	}

	req, err := as.Create(ctx, "patient-1", sosRequest(12.90, 77.60))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var wg sync.WaitGroup
	winners := make(chan string, len(candidates))
	losses := make(chan error, len(candidates))
	for _, id := range candidates {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := as.Accept(ctx, req.ID, id); err != nil {
				losses <- err
			} else {
				winners <- id
			}
		}(id)
	}
	wg.Wait()
	close(winners)
	close(losses)

	var winner string
	winCount := 0
	for id := range winners {
		winner = id
		winCount++
	}
	if winCount != 1 {
		t.Fatalf("expected exactly one winner, got %d", winCount)
	}

	lossCount := 0
	for err := range losses {
		if !errors.Is(err, myerrors.ErrAlreadyTaken) {
			t.Fatalf("loser got %v, want ALREADY_TAKEN", err)
		}
		lossCount++
	}
	if lossCount != len(candidates)-1 {
		t.Fatalf("expected %d losers, got %d", len(candidates)-1, lossCount)
	}

	got, ok := as.ActiveForCandidate(winner)
	if !ok || got.AssignedCandidateID != winner || got.Status != model.StatusAssigned {
		t.Fatalf("unexpected assigned request: %+v", got)
	}

	c, _ := presence.Get(winner)
	if c.CurrentAssignmentID != req.ID {
		t.Fatalf("winner not committed: %+v", c)
	}
}

func TestTwoAmbulanceScenario(t *testing.T) {
	as, presence, broker := newTestAssignment(t)
	ctx := context.Background()

	// Ambulances roughly 2km and 9km from the origin (12.90, 77.60).
	if err := presence.GoOnline(ctx, "amb-near", model.RoleAmbulance, model.Location{Latitude: 12.918, Longitude: 77.60}); err != nil {
		t.Fatalf("go online: %v", err)
	}
	if err := presence.GoOnline(ctx, "amb-far", model.RoleAmbulance, model.Location{Latitude: 12.981, Longitude: 77.60}); err != nil {
		t.Fatalf("go online: %v", err)
	}

	req, err := as.Create(ctx, "patient-1", sosRequest(12.90, 77.60))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if req.Status != model.StatusOffered {
		t.Fatalf("expected OFFERED, got %s", req.Status)
	}

	broker.mu.Lock()
	if len(broker.offers) != 2 {
		broker.mu.Unlock()
		t.Fatalf("expected 2 offers, got %d", len(broker.offers))
	}
	if broker.offers[0].CandidateID != "amb-near" {
		broker.mu.Unlock()
		t.Fatalf("nearest ambulance should be offered first, got %s", broker.offers[0].CandidateID)
	}
	broker.mu.Unlock()

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for _, id := range []string{"amb-near", "amb-far"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := as.Accept(ctx, req.ID, id)
			results <- err
		}(id)
	}
	wg.Wait()
	close(results)

	okCount, takenCount := 0, 0
	for err := range results {
		switch {
		case err == nil:
			okCount++
		case errors.Is(err, myerrors.ErrAlreadyTaken):
			takenCount++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if okCount != 1 || takenCount != 1 {
		t.Fatalf("expected 1 winner and 1 loser, got %d/%d", okCount, takenCount)
	}
}

func TestRoundTripCompleteFreesCandidate(t *testing.T) {
	as, presence, _ := newTestAssignment(t)
	ctx := context.Background()

	if err := presence.GoOnline(ctx, "doc-1", model.RoleDoctor, model.Location{Latitude: 10.01, Longitude: 10}); err != nil {
		t.Fatalf("go online: %v", err)
	}

	lat, lon := 10.0, 10.0
	req, err := as.Create(ctx, "patient-1", dto.CreateRequestDto{Kind: "CONSULT", Latitude: &lat, Longitude: &lon})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := as.Accept(ctx, req.ID, "doc-1"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	done, err := as.Complete(ctx, req.ID, "doc-1")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != model.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", done.Status)
	}

	c, _ := presence.Get("doc-1")
	if c.CurrentAssignmentID != "" {
		t.Fatalf("candidate should be free after complete: %+v", c)
	}
}

func TestCancelReleasesAssignedCandidate(t *testing.T) {
	as, presence, _ := newTestAssignment(t)
	ctx := context.Background()

	if err := presence.GoOnline(ctx, "amb-1", model.RoleAmbulance, model.Location{Latitude: 10.01, Longitude: 10}); err != nil {
		t.Fatalf("go online: %v", err)
	}

	req, err := as.Create(ctx, "patient-1", sosRequest(10, 10))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := as.Accept(ctx, req.ID, "amb-1"); err != nil {
		t.Fatalf("accept: %v", err)
	}

	cancelled, err := as.Cancel(ctx, req.ID, "patient-1", "changed my mind")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != model.StatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", cancelled.Status)
	}

	c, _ := presence.Get("amb-1")
	if c.CurrentAssignmentID != "" {
		t.Fatalf("candidate should be free after cancel: %+v", c)
	}

	if _, err := as.Accept(ctx, req.ID, "amb-1"); !errors.Is(err, myerrors.ErrNotFound) {
		t.Fatalf("accept on cancelled request should be NOT_FOUND, got %v", err)
	}
}

func TestCompleteByWrongCandidate(t *testing.T) {
	as, presence, _ := newTestAssignment(t)
	ctx := context.Background()

	for _, id := range []string{"amb-1", "amb-2"} {
		if err := presence.GoOnline(ctx, id, model.RoleAmbulance, model.Location{Latitude: 10.01, Longitude: 10}); err != nil {
			t.Fatalf("go online: %v", err)
		}
	}

	req, err := as.Create(ctx, "patient-1", sosRequest(10, 10))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := as.Accept(ctx, req.ID, "amb-1"); err != nil {
		t.Fatalf("accept: %v", err)
	}

	if _, err := as.Complete(ctx, req.ID, "amb-2"); !errors.Is(err, myerrors.ErrForbidden) {
		t.Fatalf("expected FORBIDDEN, got %v", err)
	}
}

func TestLosersGetWithdrawalNotice(t *testing.T) {
	as, presence, broker := newTestAssignment(t)
	ctx := context.Background()

	for _, id := range []string{"amb-1", "amb-2", "amb-3"} {
		if err := presence.GoOnline(ctx, id, model.RoleAmbulance, model.Location{Latitude: 10.01, Longitude: 10}); err != nil {
			t.Fatalf("go online: %v", err)
		}
	}

	req, err := as.Create(ctx, "patient-1", sosRequest(10, 10))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := as.Accept(ctx, req.ID, "amb-2"); err != nil {
		t.Fatalf("accept: %v", err)
	}

	withdrawn := broker.statusesOf(websocketdto.EventOfferWithdrawn)
	if len(withdrawn) != 2 {
		t.Fatalf("expected 2 withdrawal notices, got %d", len(withdrawn))
	}
	for _, s := range withdrawn {
		if s.RecipientID == "amb-2" {
			t.Fatal("winner must not get a withdrawal notice")
		}
	}
}

func TestCreateWithNoCandidatesStaysOpenAndReoffers(t *testing.T) {
	as, presence, broker := newTestAssignment(t)
	ctx := context.Background()

	req, err := as.Create(ctx, "patient-1", sosRequest(10, 10))
	if !errors.Is(err, myerrors.ErrUnavailable) {
		t.Fatalf("expected UNAVAILABLE, got %v", err)
	}
	if req.Status != model.StatusOpen {
		t.Fatalf("expected OPEN, got %s", req.Status)
	}

	// A responder comes online; the re-offer loop should pick it up.
	if err := presence.GoOnline(ctx, "amb-1", model.RoleAmbulance, model.Location{Latitude: 10.01, Longitude: 10}); err != nil {
		t.Fatalf("go online: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if offers := broker.offersFor("amb-1"); len(offers) > 0 {
			got, ok := as.ActiveForRequester("patient-1")
			if !ok || got.Status != model.StatusOffered {
				t.Fatalf("expected OFFERED after re-offer, got %+v", got)
			}
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("re-offer never reached the candidate")
}

func TestOfflineCandidateKeepsAssignmentButGetsNoNewOffers(t *testing.T) {
	as, presence, broker := newTestAssignment(t)
	ctx := context.Background()

	if err := presence.GoOnline(ctx, "amb-1", model.RoleAmbulance, model.Location{Latitude: 10.01, Longitude: 10}); err != nil {
		t.Fatalf("go online: %v", err)
	}

	req, err := as.Create(ctx, "patient-1", sosRequest(10, 10))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := as.Accept(ctx, req.ID, "amb-1"); err != nil {
		t.Fatalf("accept: %v", err)
	}

	if err := presence.GoOffline(ctx, "amb-1"); err != nil {
		t.Fatalf("go offline: %v", err)
	}

	// The in-progress request is unaffected.
	got, ok := as.ActiveForCandidate("amb-1")
	if !ok || got.Status != model.StatusAssigned {
		t.Fatalf("in-progress request affected by go-offline: %+v", got)
	}

	// A new request must not be offered to the offline candidate.
	before := len(broker.offersFor("amb-1"))
	if _, err := as.Create(ctx, "patient-2", sosRequest(10, 10)); !errors.Is(err, myerrors.ErrUnavailable) {
		t.Fatalf("expected UNAVAILABLE with only an offline candidate, got %v", err)
	}
	if after := len(broker.offersFor("amb-1")); after != before {
		t.Fatal("offline candidate received a new offer")
	}
}

func TestSecondActiveRequestPerRequesterRejected(t *testing.T) {
	as, presence, _ := newTestAssignment(t)
	ctx := context.Background()

	if err := presence.GoOnline(ctx, "amb-1", model.RoleAmbulance, model.Location{Latitude: 10.01, Longitude: 10}); err != nil {
		t.Fatalf("go online: %v", err)
	}

	if _, err := as.Create(ctx, "patient-1", sosRequest(10, 10)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := as.Create(ctx, "patient-1", sosRequest(10, 10)); !errors.Is(err, myerrors.ErrConflict) {
		t.Fatalf("expected CONFLICT for second active request, got %v", err)
	}
}

func TestUpdateOriginIsInformational(t *testing.T) {
	as, presence, _ := newTestAssignment(t)
	ctx := context.Background()

	if err := presence.GoOnline(ctx, "amb-1", model.RoleAmbulance, model.Location{Latitude: 10.01, Longitude: 10}); err != nil {
		t.Fatalf("go online: %v", err)
	}

	req, err := as.Create(ctx, "patient-1", sosRequest(10, 10))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	moved := model.Location{Latitude: 10.02, Longitude: 10.01}
	got, err := as.UpdateOrigin(ctx, req.ID, "patient-1", moved)
	if err != nil {
		t.Fatalf("update origin: %v", err)
	}
	if got.Origin != moved {
		t.Fatalf("origin not updated: %+v", got.Origin)
	}
	if got.Status != model.StatusOffered {
		t.Fatalf("update origin must not change status, got %s", got.Status)
	}

	if _, err := as.UpdateOrigin(ctx, req.ID, "someone-else", moved); !errors.Is(err, myerrors.ErrForbidden) {
		t.Fatalf("expected FORBIDDEN, got %v", err)
	}
}

func TestAcceptByUnknownCandidateIsNotFound(t *testing.T) {
	as, presence, _ := newTestAssignment(t)
	ctx := context.Background()

	if err := presence.GoOnline(ctx, "amb-1", model.RoleAmbulance, model.Location{Latitude: 10.01, Longitude: 10}); err != nil {
		t.Fatalf("go online: %v", err)
	}

	req, err := as.Create(ctx, "patient-1", sosRequest(10, 10))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := as.Accept(ctx, req.ID, "ghost-99"); !errors.Is(err, myerrors.ErrNotFound) {
		t.Fatalf("expected NOT_FOUND for unregistered candidate, got %v", err)
	}

	// The failed accept must leave the request claimable.
	if _, err := as.Accept(ctx, req.ID, "amb-1"); err != nil {
		t.Fatalf("accept after unknown candidate: %v", err)
	}
}

func TestTerminalRequestsAreEvicted(t *testing.T) {
	as, presence, _ := newTestAssignment(t)
	ctx := context.Background()

	if err := presence.GoOnline(ctx, "amb-1", model.RoleAmbulance, model.Location{Latitude: 10.01, Longitude: 10}); err != nil {
		t.Fatalf("go online: %v", err)
	}

	req, err := as.Create(ctx, "patient-1", sosRequest(10, 10))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := as.Accept(ctx, req.ID, "amb-1"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := as.Complete(ctx, req.ID, "amb-1"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if _, ok := as.ActiveForRequester("patient-1"); ok {
		t.Fatal("completed request still reported active")
	}
	as.mu.Lock()
	reqCount, idxCount := len(as.requests), len(as.byRequester)
	as.mu.Unlock()
	if reqCount != 0 || idxCount != 0 {
		t.Fatalf("terminal request not evicted: %d requests, %d index entries", reqCount, idxCount)
	}

	// The requester is immediately free to open the next request.
	if _, err := as.Create(ctx, "patient-1", sosRequest(10, 10)); err != nil {
		t.Fatalf("create after complete: %v", err)
	}
}

// blockingCandidateRepo stalls every presence write until released,
// standing in for a wedged store connection.
type blockingCandidateRepo struct {
	release chan struct{}
}

func (b *blockingCandidateRepo) UpsertPresence(ctx context.Context, c model.Candidate) error {
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return nil
}

func TestAcceptNotStalledByCandidateWrites(t *testing.T) {
	log := testLogger(t)
	repo := &blockingCandidateRepo{release: make(chan struct{})}
	defer close(repo.release)
	presence := NewPresenceService(context.Background(), log, repo)
	broker := &fakeBroker{}
	as := NewAssignmentService(context.Background(), log, testAppConfig(), presence, &fakeRequestRepo{}, broker)
	ctx := context.Background()

	for _, id := range []string{"amb-1", "amb-2"} {
		if err := presence.GoOnline(ctx, id, model.RoleAmbulance, model.Location{Latitude: 10.01, Longitude: 10}); err != nil {
			t.Fatalf("go online: %v", err)
		}
	}

	reqA, err := as.Create(ctx, "patient-1", sosRequest(10, 10))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	reqB, err := as.Create(ctx, "patient-2", sosRequest(10, 10))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := as.Accept(ctx, reqA.ID, "amb-1"); err != nil {
		t.Fatalf("accept: %v", err)
	}

	// With every candidate-row write wedged, an unrelated accept must
	// still commit promptly.
	done := make(chan error, 1)
	go func() {
		_, err := as.Accept(ctx, reqB.ID, "amb-2")
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("accept: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("accept stalled behind a candidate write")
	}
}
