package consumer

import (
	"context"
	"encoding/json"

	"medilink/internal/applog"
	messagebrokerdto "medilink/internal/dispatch-service/core/domain/message_broker_dto"
	websocketdto "medilink/internal/dispatch-service/core/domain/websocket_dto"
	"medilink/internal/dispatch-service/core/ports"
	"medilink/internal/rabbit"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	offerQueue             = "dispatch.offers"
	requestStatusQueue     = "dispatch.request_statuses"
	reservationStatusQueue = "dispatch.reservation_statuses"
)

// Notification pumps post-commit events from the broker to connected
// websocket clients. Delivery is fire-and-forget relative to the state
// transitions that produced the events.
type Notification struct {
	ctx        context.Context
	dispatcher ports.INotifyWebsocket
	mq         *rabbit.RabbitMQ
	mylog      applog.Logger
}

func New(ctx context.Context, log applog.Logger, mq *rabbit.RabbitMQ, dispatcher ports.INotifyWebsocket) *Notification {
	return &Notification{
		ctx:        ctx,
		dispatcher: dispatcher,
		mq:         mq,
		mylog:      log,
	}
}

func (n *Notification) Run() error {
	offers, err := n.mq.Subscribe(n.ctx, offerQueue, messagebrokerdto.PatternOffer, "dispatch-service")
	if err != nil {
		return err
	}
	statuses, err := n.mq.Subscribe(n.ctx, requestStatusQueue, messagebrokerdto.PatternRequestStatus, "dispatch-service")
	if err != nil {
		return err
	}
	reservations, err := n.mq.Subscribe(n.ctx, reservationStatusQueue, messagebrokerdto.PatternReservationStatus, "dispatch-service")
	if err != nil {
		return err
	}

	go n.pumpOffers(offers)
	go n.pumpRequestStatuses(statuses)
	go n.pumpReservationStatuses(reservations)
	return nil
}

func (n *Notification) pumpOffers(deliveries <-chan amqp.Delivery) {
	log := n.mylog.Action("pump_offers")
	for {
		select {
		case <-n.ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			var msg messagebrokerdto.Offer
			if err := json.Unmarshal(d.Body, &msg); err != nil {
				log.Warn("cannot decode offer", "err", err.Error())
				_ = d.Nack(false, false)
				continue
			}
			n.notify(msg.CandidateID, websocketdto.EventRequestOffer, websocketdto.OfferPayload{
				RequestID:   msg.RequestID,
				Kind:        msg.Kind,
				Latitude:    msg.Latitude,
				Longitude:   msg.Longitude,
				Address:     msg.Address,
				DistanceKm:  msg.DistanceKm,
				RequesterID: msg.RequesterID,
				OfferedAt:   msg.OfferedAt,
			})
			_ = d.Ack(false)
		}
	}
}

func (n *Notification) pumpRequestStatuses(deliveries <-chan amqp.Delivery) {
	log := n.mylog.Action("pump_request_statuses")
	for {
		select {
		case <-n.ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			var msg messagebrokerdto.RequestStatus
			if err := json.Unmarshal(d.Body, &msg); err != nil {
				log.Warn("cannot decode request status", "err", err.Error())
				_ = d.Nack(false, false)
				continue
			}
			n.notify(msg.RecipientID, msg.EventType, websocketdto.RequestStatusPayload{
				RequestID:           msg.RequestID,
				Status:              msg.Status,
				AssignedCandidateID: msg.AssignedCandidateID,
				Reason:              msg.Reason,
				Timestamp:           msg.Timestamp,
			})
			_ = d.Ack(false)
		}
	}
}

func (n *Notification) pumpReservationStatuses(deliveries <-chan amqp.Delivery) {
	log := n.mylog.Action("pump_reservation_statuses")
	for {
		select {
		case <-n.ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			var msg messagebrokerdto.ReservationStatus
			if err := json.Unmarshal(d.Body, &msg); err != nil {
				log.Warn("cannot decode reservation status", "err", err.Error())
				_ = d.Nack(false, false)
				continue
			}
			// Only expiry is pushed over the live channel; the rest of
			// the reservation lifecycle is request/response.
			if msg.Status != "EXPIRED" {
				_ = d.Ack(false)
				continue
			}
			n.notify(msg.HolderID, websocketdto.EventReservationExpired, websocketdto.ReservationStatusPayload{
				ReservationID: msg.ReservationID,
				DoctorID:      msg.DoctorID,
				StartTime:     msg.StartTime,
				Status:        msg.Status,
				Timestamp:     msg.Timestamp,
			})
			_ = d.Ack(false)
		}
	}
}

func (n *Notification) notify(principalID, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		n.mylog.Action("notify").Warn("cannot marshal payload", "err", err.Error())
		return
	}
	n.dispatcher.Notify(principalID, websocketdto.Event{Type: eventType, Data: data})
}
