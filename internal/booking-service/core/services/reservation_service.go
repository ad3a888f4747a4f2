package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"medilink/internal/applog"
	"medilink/internal/booking-service/core/domain/dto"
	messagebrokerdto "medilink/internal/booking-service/core/domain/message_broker_dto"
	"medilink/internal/booking-service/core/domain/model"
	"medilink/internal/booking-service/core/ports"
	"medilink/internal/config"
	"medilink/internal/myerrors"

	"github.com/google/uuid"
)

const publishTimeout = 5 * time.Second

// ReservationService is the authoritative reservation state machine.
// One mutex serializes every transition, so the expiry timer and a
// concurrent confirm resolve to exactly one winner. Persistence and
// broker publishes happen after the in-memory commit.
type ReservationService struct {
	mu sync.Mutex

	byID map[string]*model.Reservation
	// byUnit holds the single active (HELD or CONFIRMED) reservation
	// per schedule unit key. CONFIRMED entries never leave the map.
	byUnit map[string]*model.Reservation
	timers map[string]*time.Timer

	repo   ports.IReservationRepo
	broker ports.IBookingBroker
	mylog  applog.Logger
	cfg    *config.Appconfig
	ctx    context.Context
	now    func() time.Time
}

func NewReservationService(
	ctx context.Context,
	log applog.Logger,
	cfg *config.Appconfig,
	repo ports.IReservationRepo,
	broker ports.IBookingBroker,
) *ReservationService {
	return &ReservationService{
		ctx:    ctx,
		byID:   make(map[string]*model.Reservation),
		byUnit: make(map[string]*model.Reservation),
		timers: make(map[string]*time.Timer),
		repo:   repo,
		broker: broker,
		mylog:  log,
		cfg:    cfg,
		now:    time.Now,
	}
}

// Hold creates an exclusive time-bound hold on a schedule unit. A unit
// with an active reservation rejects the hold with a conflict, whether
// that reservation is still HELD or already CONFIRMED. A standing hold
// past its deadline is expired in place and does not block.
func (rs *ReservationService) Hold(ctx context.Context, holderID string, req dto.HoldRequestDto) (model.Reservation, error) {
	log := rs.mylog.Action("Hold")

	startTime, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		return model.Reservation{}, fmt.Errorf("%w: start_time must be RFC3339: %v", myerrors.ErrValidation, err)
	}

	ttl, err := rs.clampTTL(req.TTLSeconds)
	if err != nil {
		return model.Reservation{}, err
	}

	unit := model.ScheduleUnit{DoctorID: req.DoctorID, StartTime: startTime}
	now := rs.now()

	rs.mu.Lock()
	var stale model.Reservation
	hadStale := false
	if existing, ok := rs.byUnit[unit.Key()]; ok && !existing.Status.Terminal() {
		if existing.Status == model.StatusHeld && !now.Before(existing.ExpiresAt) {
			// Lazy expiry: a dead hold whose timer callback has not
			// fired yet must not block a rival.
			stale = rs.markExpiredLocked(existing)
			hadStale = true
		} else {
			rs.mu.Unlock()
			return model.Reservation{}, fmt.Errorf("%w: schedule unit is already reserved", myerrors.ErrConflict)
		}
	}

	r := &model.Reservation{
		ID:        uuid.NewString(),
		Unit:      unit,
		HolderID:  holderID,
		Status:    model.StatusHeld,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		UpdatedAt: now,
	}
	rs.byID[r.ID] = r
	rs.byUnit[unit.Key()] = r
	snapshot := *r
	rs.mu.Unlock()

	if hadStale {
		rs.persistStatus(stale)
		rs.publishStatus(stale)
	}

	if rs.repo != nil {
		if err := rs.repo.Insert(ctx, snapshot); err != nil {
			rs.mu.Lock()
			delete(rs.byID, r.ID)
			if rs.byUnit[unit.Key()] == r {
				delete(rs.byUnit, unit.Key())
			}
			rs.mu.Unlock()
			log.Error("cannot persist reservation", err, "reservation_id", snapshot.ID)
			return model.Reservation{}, fmt.Errorf("persist reservation: %w", err)
		}
	}

	// The deadline was fixed before the insert, so the timer is armed
	// against ExpiresAt rather than the original TTL; a slow insert
	// must not stretch the hold. If the hold already left HELD during
	// the insert no timer is needed.
	rs.mu.Lock()
	if cur, ok := rs.byID[r.ID]; ok && cur.Status == model.StatusHeld {
		rs.timers[r.ID] = time.AfterFunc(cur.ExpiresAt.Sub(rs.now()), func() { rs.expire(r.ID) })
	}
	rs.mu.Unlock()

	log.Info("reservation held",
		"reservation_id", snapshot.ID,
		"holder_id", holderID,
		"doctor_id", unit.DoctorID,
		"ttl_seconds", int(ttl.Seconds()),
	)
	rs.publishStatus(snapshot)
	return snapshot, nil
}

// Confirm converts a hold into a permanent booking. A hold past its
// expiry deadline is transitioned to EXPIRED as a side effect so a
// stale hold can never silently convert; the caller sees EXPIRED.
// Re-confirming an already confirmed reservation by the same holder is
// idempotent.
func (rs *ReservationService) Confirm(ctx context.Context, reservationID, holderID string) (model.Reservation, error) {
	log := rs.mylog.Action("Confirm")

	rs.mu.Lock()
	r, ok := rs.byID[reservationID]
	if !ok {
		rs.mu.Unlock()
		return model.Reservation{}, fmt.Errorf("%w: reservation %s", myerrors.ErrNotFound, reservationID)
	}
	if r.HolderID != holderID {
		rs.mu.Unlock()
		return model.Reservation{}, fmt.Errorf("%w: reservation belongs to another holder", myerrors.ErrForbidden)
	}

	switch r.Status {
	case model.StatusConfirmed:
		snapshot := *r
		rs.mu.Unlock()
		return snapshot, nil
	case model.StatusExpired:
		rs.mu.Unlock()
		return model.Reservation{}, fmt.Errorf("%w: hold has expired", myerrors.ErrExpired)
	case model.StatusCancelled:
		rs.mu.Unlock()
		return model.Reservation{}, fmt.Errorf("%w: reservation was cancelled", myerrors.ErrConflict)
	}

	if !rs.now().Before(r.ExpiresAt) {
		// Lazy expiry: the wall clock beat the timer callback.
		snapshot := rs.markExpiredLocked(r)
		rs.mu.Unlock()

		rs.persistStatus(snapshot)
		rs.publishStatus(snapshot)
		return model.Reservation{}, fmt.Errorf("%w: hold has expired", myerrors.ErrExpired)
	}

	r.Status = model.StatusConfirmed
	r.UpdatedAt = rs.now()
	rs.stopTimerLocked(r.ID)
	snapshot := *r
	rs.mu.Unlock()

	log.Info("reservation confirmed", "reservation_id", snapshot.ID, "holder_id", holderID)
	rs.persistStatus(snapshot)
	rs.publishStatus(snapshot)
	return snapshot, nil
}

// Cancel releases a hold. Terminal reservations and confirmed bookings
// reject the cancel.
func (rs *ReservationService) Cancel(ctx context.Context, reservationID, holderID string) (model.Reservation, error) {
	log := rs.mylog.Action("Cancel")

	rs.mu.Lock()
	r, ok := rs.byID[reservationID]
	if !ok {
		rs.mu.Unlock()
		return model.Reservation{}, fmt.Errorf("%w: reservation %s", myerrors.ErrNotFound, reservationID)
	}
	if r.HolderID != holderID {
		rs.mu.Unlock()
		return model.Reservation{}, fmt.Errorf("%w: reservation belongs to another holder", myerrors.ErrForbidden)
	}
	if r.Status != model.StatusHeld {
		rs.mu.Unlock()
		return model.Reservation{}, fmt.Errorf("%w: reservation is %s", myerrors.ErrConflict, r.Status)
	}

	r.Status = model.StatusCancelled
	r.UpdatedAt = rs.now()
	rs.stopTimerLocked(r.ID)
	if rs.byUnit[r.Unit.Key()] == r {
		delete(rs.byUnit, r.Unit.Key())
	}
	snapshot := *r
	rs.mu.Unlock()

	log.Info("reservation cancelled", "reservation_id", snapshot.ID, "holder_id", holderID)
	rs.persistStatus(snapshot)
	rs.publishStatus(snapshot)
	return snapshot, nil
}

// ActiveForHolder returns the holder's newest HELD or CONFIRMED
// reservation, for reconnect/resume.
func (rs *ReservationService) ActiveForHolder(holderID string) (model.Reservation, bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	var (
		best  model.Reservation
		found bool
	)
	for _, r := range rs.byID {
		if r.HolderID != holderID || r.Status.Terminal() {
			continue
		}
		if !found || r.CreatedAt.After(best.CreatedAt) {
			best = *r
			found = true
		}
	}
	return best, found
}

// expire is the timer callback. It races any in-flight confirm on the
// same mutex; whichever transition commits first wins and the loser
// observes the terminal state.
func (rs *ReservationService) expire(reservationID string) {
	rs.mu.Lock()
	r, ok := rs.byID[reservationID]
	if !ok || r.Status != model.StatusHeld {
		delete(rs.timers, reservationID)
		rs.mu.Unlock()
		return
	}
	snapshot := rs.markExpiredLocked(r)
	rs.mu.Unlock()

	rs.mylog.Action("expire").Info("hold expired",
		"reservation_id", snapshot.ID,
		"holder_id", snapshot.HolderID,
		"doctor_id", snapshot.Unit.DoctorID,
	)
	rs.persistStatus(snapshot)
	rs.publishStatus(snapshot)
}

func (rs *ReservationService) markExpiredLocked(r *model.Reservation) model.Reservation {
	r.Status = model.StatusExpired
	r.UpdatedAt = rs.now()
	rs.stopTimerLocked(r.ID)
	if rs.byUnit[r.Unit.Key()] == r {
		delete(rs.byUnit, r.Unit.Key())
	}
	return *r
}

func (rs *ReservationService) stopTimerLocked(reservationID string) {
	if t, ok := rs.timers[reservationID]; ok {
		t.Stop()
		delete(rs.timers, reservationID)
	}
}

func (rs *ReservationService) clampTTL(ttlSeconds int) (time.Duration, error) {
	if ttlSeconds == 0 {
		return time.Duration(rs.cfg.DefaultHoldTTLSeconds) * time.Second, nil
	}
	if ttlSeconds < rs.cfg.MinHoldTTLSeconds || ttlSeconds > rs.cfg.MaxHoldTTLSeconds {
		return 0, fmt.Errorf("%w: ttl_seconds must be between %d and %d",
			myerrors.ErrValidation, rs.cfg.MinHoldTTLSeconds, rs.cfg.MaxHoldTTLSeconds)
	}
	return time.Duration(ttlSeconds) * time.Second, nil
}

func (rs *ReservationService) persistStatus(r model.Reservation) {
	if rs.repo == nil {
		return
	}
	if err := rs.repo.UpdateStatus(rs.ctx, r.ID, r.Status); err != nil {
		rs.mylog.Action("persist_status").Warn("cannot persist reservation status",
			"reservation_id", r.ID, "status", string(r.Status), "err", err.Error())
	}
}

func (rs *ReservationService) publishStatus(r model.Reservation) {
	if rs.broker == nil {
		return
	}
	ctx, cancel := context.WithTimeout(rs.ctx, publishTimeout)
	defer cancel()

	msg := messagebrokerdto.ReservationStatus{
		ReservationID: r.ID,
		HolderID:      r.HolderID,
		DoctorID:      r.Unit.DoctorID,
		StartTime:     r.Unit.StartTime.UTC().Format(time.RFC3339),
		Status:        string(r.Status),
		Timestamp:     r.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if err := rs.broker.PushReservationStatus(ctx, msg); err != nil {
		rs.mylog.Action("publish_status").Warn("cannot publish reservation status",
			"reservation_id", r.ID, "status", string(r.Status), "err", err.Error())
	}
}
