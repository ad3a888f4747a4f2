package model

import "time"

// ScheduleUnit identifies one bookable doctor+timeslot pair. At most
// one active reservation may exist per unit at any instant, and at
// most one confirmed booking permanently.
type ScheduleUnit struct {
	DoctorID  string    `json:"doctor_id"`
	StartTime time.Time `json:"start_time"`
}

// Key normalizes the unit into the map key used for conflict checks.
func (u ScheduleUnit) Key() string {
	return u.DoctorID + "|" + u.StartTime.UTC().Format(time.RFC3339)
}

type ReservationStatus string

const (
	StatusHeld      ReservationStatus = "HELD"
	StatusConfirmed ReservationStatus = "CONFIRMED"
	StatusExpired   ReservationStatus = "EXPIRED"
	StatusCancelled ReservationStatus = "CANCELLED"
)

// Terminal reports whether no further transition is allowed.
func (s ReservationStatus) Terminal() bool {
	return s == StatusExpired || s == StatusCancelled
}

// Reservation is a time-bound exclusive claim on a schedule unit,
// owned by its holder until confirmed, expired or cancelled.
type Reservation struct {
	ID        string            `json:"id"`
	Unit      ScheduleUnit      `json:"schedule_unit"`
	HolderID  string            `json:"holder_id"`
	Status    ReservationStatus `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	ExpiresAt time.Time         `json:"expires_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}
