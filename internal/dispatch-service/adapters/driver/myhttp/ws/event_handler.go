package ws

import (
	"encoding/json"
	"errors"
	"fmt"

	"medilink/internal/applog"
	"medilink/internal/authmw"
	"medilink/internal/dispatch-service/core/domain/dto"
	"medilink/internal/dispatch-service/core/domain/model"
	websocketdto "medilink/internal/dispatch-service/core/domain/websocket_dto"
	"medilink/internal/dispatch-service/core/ports"
	"medilink/internal/myerrors"

	"github.com/go-playground/validator/v10"
)

// EventHandler routes authenticated websocket events into the core
// services and writes the synchronous reply back to the same client.
type EventHandler struct {
	accessSecret string
	presence     ports.IPresenceService
	assignment   ports.IAssignmentService
	validate     *validator.Validate
	log          applog.Logger
}

func NewEventHandler(accessSecret string, log applog.Logger, presence ports.IPresenceService, assignment ports.IAssignmentService) *EventHandler {
	return &EventHandler{
		accessSecret: accessSecret,
		presence:     presence,
		assignment:   assignment,
		validate:     validator.New(),
		log:          log,
	}
}

func (eh *EventHandler) Route(c *Client, e websocketdto.Event) {
	if e.Type == websocketdto.EventAuth {
		eh.handleAuth(c, e)
		return
	}
	if !c.Authed() {
		eh.ReplyError(c, e.Type, fmt.Errorf("%w: authenticate first", myerrors.ErrForbidden))
		return
	}

	switch e.Type {
	case websocketdto.EventGoOnline:
		eh.handleGoOnline(c, e)
	case websocketdto.EventGoOffline:
		eh.handleGoOffline(c, e)
	case websocketdto.EventUpdateLocation:
		eh.handleUpdateLocation(c, e)
	case websocketdto.EventCreateRequest:
		eh.handleCreate(c, e)
	case websocketdto.EventAcceptRequest:
		eh.handleAccept(c, e)
	case websocketdto.EventCompleteRequest:
		eh.handleComplete(c, e)
	case websocketdto.EventCancelRequest:
		eh.handleCancel(c, e)
	case websocketdto.EventUpdateOrigin:
		eh.handleUpdateOrigin(c, e)
	default:
		eh.ReplyError(c, e.Type, fmt.Errorf("%w: unknown event type %q", myerrors.ErrValidation, e.Type))
	}
}

func (eh *EventHandler) handleAuth(c *Client, e websocketdto.Event) {
	var msg websocketdto.AuthMessage
	if err := json.Unmarshal(e.Data, &msg); err != nil {
		eh.ReplyError(c, e.Type, fmt.Errorf("%w: %v", myerrors.ErrValidation, err))
		return
	}

	userId, role, err := authmw.ParseToken(msg.Token, eh.accessSecret)
	if err != nil {
		eh.ReplyError(c, e.Type, fmt.Errorf("%w: %v", myerrors.ErrForbidden, err))
		c.Close()
		return
	}
	if userId != c.principalID {
		eh.ReplyError(c, e.Type, fmt.Errorf("%w: token does not match channel principal", myerrors.ErrForbidden))
		c.Close()
		return
	}
	switch c.kind {
	case ChannelCandidate:
		if role != "AMBULANCE" && role != "DOCTOR" {
			eh.ReplyError(c, e.Type, fmt.Errorf("%w: role %s cannot open a candidate channel", myerrors.ErrForbidden, role))
			c.Close()
			return
		}
	case ChannelRequester:
		if role != "PATIENT" {
			eh.ReplyError(c, e.Type, fmt.Errorf("%w: role %s cannot open a requester channel", myerrors.ErrForbidden, role))
			c.Close()
			return
		}
	}

	c.setAuthed(role)
	c.dis.AddClient(c)
	eh.replyAck(c, e.Type, nil, "authenticated")
}

func (eh *EventHandler) handleGoOnline(c *Client, e websocketdto.Event) {
	if !eh.requireKind(c, e.Type, ChannelCandidate) {
		return
	}
	var msg dto.GoOnlineDto
	if !eh.decode(c, e, &msg) {
		return
	}
	loc := model.Location{Latitude: *msg.Latitude, Longitude: *msg.Longitude, Address: msg.Address}
	if err := eh.presence.GoOnline(c.ctx, c.principalID, candidateRole(c.Role()), loc); err != nil {
		eh.ReplyError(c, e.Type, err)
		return
	}
	eh.replyAck(c, e.Type, nil, "you are now online and eligible for offers")
}

func (eh *EventHandler) handleGoOffline(c *Client, e websocketdto.Event) {
	if !eh.requireKind(c, e.Type, ChannelCandidate) {
		return
	}
	if err := eh.presence.GoOffline(c.ctx, c.principalID); err != nil {
		eh.ReplyError(c, e.Type, err)
		return
	}
	eh.replyAck(c, e.Type, nil, "you are now offline")
}

func (eh *EventHandler) handleUpdateLocation(c *Client, e websocketdto.Event) {
	if !eh.requireKind(c, e.Type, ChannelCandidate) {
		return
	}
	var msg dto.UpdateLocationDto
	if !eh.decode(c, e, &msg) {
		return
	}
	loc := model.Location{Latitude: *msg.Latitude, Longitude: *msg.Longitude, Address: msg.Address}
	if err := eh.presence.UpdateLocation(c.principalID, loc); err != nil {
		eh.ReplyError(c, e.Type, err)
		return
	}
	// Periodic fire-and-forget traffic, no ack.
}

func (eh *EventHandler) handleCreate(c *Client, e websocketdto.Event) {
	if !eh.requireKind(c, e.Type, ChannelRequester) {
		return
	}
	var msg dto.CreateRequestDto
	if !eh.decode(c, e, &msg) {
		return
	}
	req, err := eh.assignment.Create(c.ctx, c.principalID, msg)
	if errors.Is(err, myerrors.ErrUnavailable) {
		// Soft outcome: the request is open and retried in the
		// background, the requester keeps "searching".
		eh.replyAck(c, e.Type, req, "no responders nearby - retrying")
		return
	}
	if err != nil {
		eh.ReplyError(c, e.Type, err)
		return
	}
	eh.replyAck(c, e.Type, req, "searching")
}

func (eh *EventHandler) handleAccept(c *Client, e websocketdto.Event) {
	if !eh.requireKind(c, e.Type, ChannelCandidate) {
		return
	}
	var msg dto.AcceptRequestDto
	if !eh.decode(c, e, &msg) {
		return
	}
	req, err := eh.assignment.Accept(c.ctx, msg.RequestID, c.principalID)
	if err != nil {
		// A lost race is normal contention, not an error-level event.
		eh.log.Action("accept").Debug("accept rejected", "request_id", msg.RequestID, "candidate_id", c.principalID, "reason", err.Error())
		eh.ReplyError(c, e.Type, err)
		return
	}
	eh.replyAck(c, e.Type, req, "request assigned to you")
}

func (eh *EventHandler) handleComplete(c *Client, e websocketdto.Event) {
	if !eh.requireKind(c, e.Type, ChannelCandidate) {
		return
	}
	var msg dto.CompleteRequestDto
	if !eh.decode(c, e, &msg) {
		return
	}
	req, err := eh.assignment.Complete(c.ctx, msg.RequestID, c.principalID)
	if err != nil {
		eh.ReplyError(c, e.Type, err)
		return
	}
	eh.replyAck(c, e.Type, req, "request completed")
}

func (eh *EventHandler) handleCancel(c *Client, e websocketdto.Event) {
	var msg dto.CancelRequestDto
	if !eh.decode(c, e, &msg) {
		return
	}
	req, err := eh.assignment.Cancel(c.ctx, msg.RequestID, c.principalID, msg.Reason)
	if err != nil {
		eh.ReplyError(c, e.Type, err)
		return
	}
	eh.replyAck(c, e.Type, req, "request cancelled")
}

func (eh *EventHandler) handleUpdateOrigin(c *Client, e websocketdto.Event) {
	if !eh.requireKind(c, e.Type, ChannelRequester) {
		return
	}
	var msg dto.UpdateOriginDto
	if !eh.decode(c, e, &msg) {
		return
	}
	loc := model.Location{Latitude: *msg.Latitude, Longitude: *msg.Longitude, Address: msg.Address}
	req, err := eh.assignment.UpdateOrigin(c.ctx, msg.RequestID, c.principalID, loc)
	if err != nil {
		eh.ReplyError(c, e.Type, err)
		return
	}
	eh.replyAck(c, e.Type, req, "")
}

func (eh *EventHandler) requireKind(c *Client, of string, kind ChannelKind) bool {
	if c.kind != kind {
		eh.ReplyError(c, of, fmt.Errorf("%w: not allowed on a %s channel", myerrors.ErrForbidden, c.kind))
		return false
	}
	return true
}

func (eh *EventHandler) decode(c *Client, e websocketdto.Event, out any) bool {
	if err := json.Unmarshal(e.Data, out); err != nil {
		eh.ReplyError(c, e.Type, fmt.Errorf("%w: %v", myerrors.ErrValidation, err))
		return false
	}
	if err := eh.validate.Struct(out); err != nil {
		eh.ReplyError(c, e.Type, fmt.Errorf("%w: %v", myerrors.ErrValidation, err))
		return false
	}
	return true
}

func (eh *EventHandler) replyAck(c *Client, of string, result any, message string) {
	var raw json.RawMessage
	if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			eh.log.Action("reply_ack").Warn("cannot marshal result", "err", err.Error())
		} else {
			raw = data
		}
	}
	payload, _ := json.Marshal(websocketdto.AckPayload{Of: of, Result: raw, Message: message})
	c.Send(websocketdto.Event{Type: websocketdto.EventAck, Data: payload})
}

// ReplyError sends the taxonomy error back to the caller on the same
// channel.
func (eh *EventHandler) ReplyError(c *Client, of string, err error) {
	payload, _ := json.Marshal(websocketdto.ErrorPayload{
		Code:    myerrors.Code(err),
		Message: err.Error(),
	})
	c.Send(websocketdto.Event{Type: websocketdto.EventError, Data: payload})
}

func candidateRole(role string) model.CandidateRole {
	if role == "DOCTOR" {
		return model.RoleDoctor
	}
	return model.RoleAmbulance
}
