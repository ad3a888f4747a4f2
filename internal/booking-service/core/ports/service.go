package ports

import (
	"context"

	"medilink/internal/booking-service/core/domain/dto"
	"medilink/internal/booking-service/core/domain/model"
)

// IReservationService owns the reservation state machine: exclusive
// holds per schedule unit, TTL expiry and confirm/cancel transitions.
type IReservationService interface {
	Hold(ctx context.Context, holderID string, req dto.HoldRequestDto) (model.Reservation, error)
	Confirm(ctx context.Context, reservationID, holderID string) (model.Reservation, error)
	Cancel(ctx context.Context, reservationID, holderID string) (model.Reservation, error)
	ActiveForHolder(holderID string) (model.Reservation, bool)
}
