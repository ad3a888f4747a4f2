package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"medilink/internal/applog"
	"medilink/internal/booking-service/core/domain/dto"
	messagebrokerdto "medilink/internal/booking-service/core/domain/message_broker_dto"
	"medilink/internal/booking-service/core/domain/model"
	"medilink/internal/config"
	"medilink/internal/myerrors"
)

func testLogger(t *testing.T) applog.Logger {
	t.Helper()
	log, err := applog.New(applog.LevelError)
	if err != nil {
		t.Fatalf("cannot create logger: %v", err)
	}
	return log
}

type fakeReservationRepo struct {
	mu       sync.Mutex
	inserted []model.Reservation
	statuses map[string]model.ReservationStatus
}

func newFakeReservationRepo() *fakeReservationRepo {
	return &fakeReservationRepo{statuses: make(map[string]model.ReservationStatus)}
}

func (f *fakeReservationRepo) Insert(_ context.Context, r model.Reservation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted = append(f.inserted, r)
	return nil
}

func (f *fakeReservationRepo) UpdateStatus(_ context.Context, id string, status model.ReservationStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[id] = status
	return nil
}

type fakeBookingBroker struct {
	mu       sync.Mutex
	statuses []messagebrokerdto.ReservationStatus
}

func (f *fakeBookingBroker) PushReservationStatus(_ context.Context, msg messagebrokerdto.ReservationStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, msg)
	return nil
}

func (f *fakeBookingBroker) statusesOf(reservationID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, s := range f.statuses {
		if s.ReservationID == reservationID {
			out = append(out, s.Status)
		}
	}
	return out
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func testBookingConfig() *config.Appconfig {
	return &config.Appconfig{
		DefaultHoldTTLSeconds: 180,
		MinHoldTTLSeconds:     1,
		MaxHoldTTLSeconds:     900,
	}
}

func newTestReservation(t *testing.T) (*ReservationService, *fakeBookingBroker, *fakeClock) {
	t.Helper()
	broker := &fakeBookingBroker{}
	clock := newFakeClock()
	rs := NewReservationService(context.Background(), testLogger(t), testBookingConfig(), newFakeReservationRepo(), broker)
	rs.now = clock.Now
	return rs, broker, clock
}

func holdRequest() dto.HoldRequestDto {
	return dto.HoldRequestDto{
		DoctorID:  "8a5bd2d8-8e5c-4fd2-9e51-111111111111",
		StartTime: "2025-06-02T10:00:00Z",
	}
}

func TestHoldConflictOnActiveUnit(t *testing.T) {
	rs, _, _ := newTestReservation(t)
	ctx := context.Background()

	first, err := rs.Hold(ctx, "patient-1", holdRequest())
	if err != nil {
		t.Fatalf("first hold: %v", err)
	}
	if first.Status != model.StatusHeld {
		t.Fatalf("expected HELD, got %s", first.Status)
	}

	if _, err := rs.Hold(ctx, "patient-2", holdRequest()); !errors.Is(err, myerrors.ErrConflict) {
		t.Fatalf("expected conflict on held unit, got %v", err)
	}

	other := holdRequest()
	other.StartTime = "2025-06-02T11:00:00Z"
	if _, err := rs.Hold(ctx, "patient-2", other); err != nil {
		t.Fatalf("hold on a different slot: %v", err)
	}
}

func TestConfirmIsIdempotentForHolder(t *testing.T) {
	rs, _, _ := newTestReservation(t)
	ctx := context.Background()

	held, err := rs.Hold(ctx, "patient-1", holdRequest())
	if err != nil {
		t.Fatalf("hold: %v", err)
	}

	if _, err := rs.Confirm(ctx, held.ID, "patient-2"); !errors.Is(err, myerrors.ErrForbidden) {
		t.Fatalf("expected forbidden for another holder, got %v", err)
	}

	first, err := rs.Confirm(ctx, held.ID, "patient-1")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	second, err := rs.Confirm(ctx, held.ID, "patient-1")
	if err != nil {
		t.Fatalf("repeat confirm: %v", err)
	}
	if first.Status != model.StatusConfirmed || second.Status != model.StatusConfirmed {
		t.Fatalf("expected CONFIRMED both times, got %s and %s", first.Status, second.Status)
	}
}

func TestConfirmPastDeadlineExpiresHold(t *testing.T) {
	rs, broker, clock := newTestReservation(t)
	ctx := context.Background()

	held, err := rs.Hold(ctx, "patient-1", holdRequest())
	if err != nil {
		t.Fatalf("hold: %v", err)
	}

	clock.Advance(181 * time.Second)

	if _, err := rs.Confirm(ctx, held.ID, "patient-1"); !errors.Is(err, myerrors.ErrExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
	// The stale hold must not silently convert on retry either.
	if _, err := rs.Confirm(ctx, held.ID, "patient-1"); !errors.Is(err, myerrors.ErrExpired) {
		t.Fatalf("expected expired on retry, got %v", err)
	}

	if _, err := rs.Hold(ctx, "patient-2", holdRequest()); err != nil {
		t.Fatalf("expired unit should accept a new hold: %v", err)
	}

	got := broker.statusesOf(held.ID)
	if len(got) == 0 || got[len(got)-1] != string(model.StatusExpired) {
		t.Fatalf("expected EXPIRED event published, got %v", got)
	}
}

func TestTimerExpiryFreesUnit(t *testing.T) {
	broker := &fakeBookingBroker{}
	rs := NewReservationService(context.Background(), testLogger(t), testBookingConfig(), newFakeReservationRepo(), broker)
	ctx := context.Background()

	req := holdRequest()
	req.TTLSeconds = 1
	held, err := rs.Hold(ctx, "patient-1", req)
	if err != nil {
		t.Fatalf("hold: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		if _, active := rs.ActiveForHolder("patient-1"); !active {
			break
		}
		select {
		case <-deadline:
			t.Fatal("hold never expired")
		case <-time.After(50 * time.Millisecond):
		}
	}

	if _, err := rs.Hold(ctx, "patient-2", req); err != nil {
		t.Fatalf("unit should be free after expiry: %v", err)
	}

	got := broker.statusesOf(held.ID)
	if len(got) == 0 || got[len(got)-1] != string(model.StatusExpired) {
		t.Fatalf("expected EXPIRED event, got %v", got)
	}
}

func TestExpiryAndConfirmPickExactlyOneWinner(t *testing.T) {
	rs, _, _ := newTestReservation(t)
	ctx := context.Background()

	held, err := rs.Hold(ctx, "patient-1", holdRequest())
	if err != nil {
		t.Fatalf("hold: %v", err)
	}

	var (
		wg         sync.WaitGroup
		confirmErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, confirmErr = rs.Confirm(ctx, held.ID, "patient-1")
	}()
	go func() {
		defer wg.Done()
		rs.expire(held.ID)
	}()
	wg.Wait()

	rs.mu.Lock()
	final := rs.byID[held.ID].Status
	rs.mu.Unlock()

	switch final {
	case model.StatusConfirmed:
		if confirmErr != nil {
			t.Fatalf("confirmed state but confirm errored: %v", confirmErr)
		}
	case model.StatusExpired:
		if !errors.Is(confirmErr, myerrors.ErrExpired) {
			t.Fatalf("expired state but confirm saw %v", confirmErr)
		}
	default:
		t.Fatalf("reservation ended in %s", final)
	}
}

func TestConfirmedUnitBlocksForever(t *testing.T) {
	rs, _, clock := newTestReservation(t)
	ctx := context.Background()

	held, err := rs.Hold(ctx, "patient-1", holdRequest())
	if err != nil {
		t.Fatalf("hold at t=0: %v", err)
	}

	clock.Advance(10 * time.Second)
	if _, err := rs.Hold(ctx, "patient-2", holdRequest()); !errors.Is(err, myerrors.ErrConflict) {
		t.Fatalf("expected conflict at t=10, got %v", err)
	}

	clock.Advance(20 * time.Second)
	confirmed, err := rs.Confirm(ctx, held.ID, "patient-1")
	if err != nil {
		t.Fatalf("confirm at t=30: %v", err)
	}
	if confirmed.Status != model.StatusConfirmed {
		t.Fatalf("expected CONFIRMED, got %s", confirmed.Status)
	}

	// Way past the original TTL: the confirmed booking still blocks.
	clock.Advance(170 * time.Second)
	if _, err := rs.Hold(ctx, "patient-3", holdRequest()); !errors.Is(err, myerrors.ErrConflict) {
		t.Fatalf("expected conflict at t=200, got %v", err)
	}
}

func TestCancelReleasesUnitAndIsTerminal(t *testing.T) {
	rs, _, _ := newTestReservation(t)
	ctx := context.Background()

	held, err := rs.Hold(ctx, "patient-1", holdRequest())
	if err != nil {
		t.Fatalf("hold: %v", err)
	}

	cancelled, err := rs.Cancel(ctx, held.ID, "patient-1")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != model.StatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", cancelled.Status)
	}

	if _, err := rs.Cancel(ctx, held.ID, "patient-1"); !errors.Is(err, myerrors.ErrConflict) {
		t.Fatalf("expected conflict cancelling a terminal reservation, got %v", err)
	}
	if _, err := rs.Confirm(ctx, held.ID, "patient-1"); !errors.Is(err, myerrors.ErrConflict) {
		t.Fatalf("expected conflict confirming a cancelled reservation, got %v", err)
	}

	if _, err := rs.Hold(ctx, "patient-2", holdRequest()); err != nil {
		t.Fatalf("cancelled unit should accept a new hold: %v", err)
	}
}

func TestInvalidTTLAndStartTime(t *testing.T) {
	rs, _, _ := newTestReservation(t)
	ctx := context.Background()

	bad := holdRequest()
	bad.TTLSeconds = 10000
	if _, err := rs.Hold(ctx, "patient-1", bad); !errors.Is(err, myerrors.ErrValidation) {
		t.Fatalf("expected validation error for oversized ttl, got %v", err)
	}

	bad = holdRequest()
	bad.StartTime = "next tuesday"
	if _, err := rs.Hold(ctx, "patient-1", bad); !errors.Is(err, myerrors.ErrValidation) {
		t.Fatalf("expected validation error for bad start_time, got %v", err)
	}
}

func TestHoldLazilyExpiresStaleHold(t *testing.T) {
	rs, broker, clock := newTestReservation(t)
	ctx := context.Background()

	first, err := rs.Hold(ctx, "patient-1", holdRequest())
	if err != nil {
		t.Fatalf("hold: %v", err)
	}

	// The deadline passes but the timer callback has not fired yet; a
	// rival must not be turned away by the dead hold.
	clock.Advance(181 * time.Second)

	second, err := rs.Hold(ctx, "patient-2", holdRequest())
	if err != nil {
		t.Fatalf("rival hold after deadline: %v", err)
	}
	if second.Status != model.StatusHeld {
		t.Fatalf("expected HELD, got %s", second.Status)
	}

	if _, err := rs.Confirm(ctx, first.ID, "patient-1"); !errors.Is(err, myerrors.ErrExpired) {
		t.Fatalf("stale hold should be EXPIRED, got %v", err)
	}
	statuses := broker.statusesOf(first.ID)
	if len(statuses) == 0 || statuses[len(statuses)-1] != string(model.StatusExpired) {
		t.Fatalf("expected EXPIRED published for the stale hold, got %v", statuses)
	}
}

// confirmDuringInsertRepo confirms the hold from inside the insert,
// reproducing a confirm that lands before the expiry timer is armed.
type confirmDuringInsertRepo struct {
	fakeReservationRepo
	rs *ReservationService
}

func (f *confirmDuringInsertRepo) Insert(ctx context.Context, r model.Reservation) error {
	if _, err := f.rs.Confirm(ctx, r.ID, r.HolderID); err != nil {
		return err
	}
	return nil
}

func TestConfirmDuringPersistLeavesNoTimer(t *testing.T) {
	broker := &fakeBookingBroker{}
	clock := newFakeClock()
	repo := &confirmDuringInsertRepo{fakeReservationRepo: fakeReservationRepo{statuses: make(map[string]model.ReservationStatus)}}
	rs := NewReservationService(context.Background(), testLogger(t), testBookingConfig(), repo, broker)
	rs.now = clock.Now
	repo.rs = rs

	r, err := rs.Hold(context.Background(), "patient-1", holdRequest())
	if err != nil {
		t.Fatalf("hold: %v", err)
	}

	rs.mu.Lock()
	status := rs.byID[r.ID].Status
	armed := len(rs.timers)
	rs.mu.Unlock()
	if status != model.StatusConfirmed {
		t.Fatalf("expected CONFIRMED, got %s", status)
	}
	if armed != 0 {
		t.Fatalf("expected no armed timers, got %d", armed)
	}
}
