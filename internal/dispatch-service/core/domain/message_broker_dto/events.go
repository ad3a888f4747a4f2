package messagebrokerdto

// Post-commit lifecycle events published on the topic exchange. The
// in-process consumer routes each one to the recipient's websocket
// channel; delivery failures never block or revert the state
// transition that produced the event.

const (
	// Routing key prefixes. The suffix is the recipient principal id.
	KeyOffer             = "request.offer."
	KeyRequestStatus     = "request.status."
	KeyReservationStatus = "reservation.status."

	// Binding patterns used by the consumer.
	PatternOffer             = "request.offer.*"
	PatternRequestStatus     = "request.status.*"
	PatternReservationStatus = "reservation.status.*"
)

type Offer struct {
	RequestID   string  `json:"request_id"`
	CandidateID string  `json:"candidate_id"`
	RequesterID string  `json:"requester_id"`
	Kind        string  `json:"kind"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Address     string  `json:"address,omitempty"`
	DistanceKm  float64 `json:"distance_km"`
	OfferedAt   string  `json:"offered_at"`
}

// RequestStatus notifies a single recipient (requester or candidate)
// of a request transition. EventType selects the websocket event the
// consumer emits: assigned, updated, resolved or offer_withdrawn.
type RequestStatus struct {
	RequestID           string `json:"request_id"`
	RecipientID         string `json:"recipient_id"`
	EventType           string `json:"event_type"`
	Status              string `json:"status"`
	AssignedCandidateID string `json:"assigned_candidate_id,omitempty"`
	Reason              string `json:"reason,omitempty"`
	Timestamp           string `json:"timestamp"`
}

type ReservationStatus struct {
	ReservationID string `json:"reservation_id"`
	HolderID      string `json:"holder_id"`
	DoctorID      string `json:"doctor_id"`
	StartTime     string `json:"start_time"`
	Status        string `json:"status"`
	Timestamp     string `json:"timestamp"`
}
