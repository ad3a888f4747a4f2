package ports

import (
	"context"

	"medilink/internal/booking-service/core/domain/model"
)

// IReservationRepo is the write-through persistence port. Update
// failures are logged by the caller and never revert a committed
// in-memory transition.
type IReservationRepo interface {
	Insert(ctx context.Context, r model.Reservation) error
	UpdateStatus(ctx context.Context, reservationID string, status model.ReservationStatus) error
}
