package bm

import (
	"context"

	messagebrokerdto "medilink/internal/dispatch-service/core/domain/message_broker_dto"
	"medilink/internal/dispatch-service/core/ports"
	"medilink/internal/rabbit"
)

// Publisher emits dispatch lifecycle events on the shared topic
// exchange. Routing keys end with the recipient principal id.
type Publisher struct {
	mq *rabbit.RabbitMQ
}

func NewPublisher(mq *rabbit.RabbitMQ) ports.IDispatchBroker {
	return &Publisher{
		mq: mq,
	}
}

func (p *Publisher) PushOffer(ctx context.Context, msg messagebrokerdto.Offer) error {
	return p.mq.Publish(ctx, messagebrokerdto.KeyOffer+msg.CandidateID, msg)
}

func (p *Publisher) PushRequestStatus(ctx context.Context, msg messagebrokerdto.RequestStatus) error {
	return p.mq.Publish(ctx, messagebrokerdto.KeyRequestStatus+msg.RecipientID, msg)
}
