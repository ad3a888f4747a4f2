package ports

import (
	"context"

	messagebrokerdto "medilink/internal/dispatch-service/core/domain/message_broker_dto"
)

// IDispatchBroker publishes post-commit lifecycle events.
type IDispatchBroker interface {
	PushOffer(ctx context.Context, msg messagebrokerdto.Offer) error
	PushRequestStatus(ctx context.Context, msg messagebrokerdto.RequestStatus) error
}
