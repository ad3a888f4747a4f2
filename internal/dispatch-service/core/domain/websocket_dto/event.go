package websocketdto

import "encoding/json"

// Event is the framing for every websocket message, both directions.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Client -> server message types.
const (
	EventAuth           = "auth"
	EventGoOnline       = "candidate.go_online"
	EventGoOffline      = "candidate.go_offline"
	EventUpdateLocation = "candidate.update_location"
	EventCreateRequest  = "request.create"
	EventAcceptRequest  = "request.accept"
	EventCompleteRequest = "request.complete"
	EventCancelRequest  = "request.cancel"
	EventUpdateOrigin   = "request.update_location"
)

// Server -> client message types.
const (
	EventAck                = "ack"
	EventError              = "error"
	EventRequestOffer       = "request.offer"
	EventOfferWithdrawn     = "request.offer_withdrawn"
	EventRequestAssigned    = "request.assigned"
	EventRequestUpdated     = "request.updated"
	EventRequestResolved    = "request.resolved"
	EventReservationExpired = "reservation.expired"
)

type AuthMessage struct {
	Token string `json:"token"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type AckPayload struct {
	Of      string          `json:"of"`
	Result  json.RawMessage `json:"result,omitempty"`
	Message string          `json:"message,omitempty"`
}

type OfferPayload struct {
	RequestID   string  `json:"request_id"`
	Kind        string  `json:"kind"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Address     string  `json:"address,omitempty"`
	DistanceKm  float64 `json:"distance_km"`
	RequesterID string  `json:"requester_id"`
	OfferedAt   string  `json:"offered_at"`
}

type RequestStatusPayload struct {
	RequestID           string `json:"request_id"`
	Status              string `json:"status"`
	AssignedCandidateID string `json:"assigned_candidate_id,omitempty"`
	Reason              string `json:"reason,omitempty"`
	Timestamp           string `json:"timestamp"`
}

type ReservationStatusPayload struct {
	ReservationID string `json:"reservation_id"`
	DoctorID      string `json:"doctor_id"`
	StartTime     string `json:"start_time"`
	Status        string `json:"status"`
	Timestamp     string `json:"timestamp"`
}
