package ports

import (
	"context"

	messagebrokerdto "medilink/internal/booking-service/core/domain/message_broker_dto"
)

// IBookingBroker publishes post-commit reservation transitions.
type IBookingBroker interface {
	PushReservationStatus(ctx context.Context, msg messagebrokerdto.ReservationStatus) error
}
