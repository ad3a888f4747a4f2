package bm

import (
	"context"

	messagebrokerdto "medilink/internal/booking-service/core/domain/message_broker_dto"
	"medilink/internal/booking-service/core/ports"
	"medilink/internal/rabbit"
)

// Publisher pushes reservation lifecycle events onto the shared topic
// exchange, routed by holder id.
type Publisher struct {
	mq *rabbit.RabbitMQ
}

func NewPublisher(mq *rabbit.RabbitMQ) ports.IBookingBroker {
	return &Publisher{mq: mq}
}

func (p *Publisher) PushReservationStatus(ctx context.Context, msg messagebrokerdto.ReservationStatus) error {
	return p.mq.Publish(ctx, messagebrokerdto.KeyReservationStatus+msg.HolderID, msg)
}
