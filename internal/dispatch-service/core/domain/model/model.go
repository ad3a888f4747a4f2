package model

import "time"

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
}

// RequestKind distinguishes the two urgent flows: an SOS ambulance
// call and an on-demand freelance consultation.
type RequestKind string

const (
	KindSOS     RequestKind = "SOS"
	KindConsult RequestKind = "CONSULT"
)

type RequestStatus string

const (
	StatusOpen      RequestStatus = "OPEN"
	StatusOffered   RequestStatus = "OFFERED"
	StatusAssigned  RequestStatus = "ASSIGNED"
	StatusCancelled RequestStatus = "CANCELLED"
	StatusCompleted RequestStatus = "COMPLETED"
)

// Terminal reports whether no further transition is allowed.
func (s RequestStatus) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// AssignableRequest is a pending urgent task seeking exactly one
// responder. AssignedCandidateID is set by at most one successful
// accept, ever.
type AssignableRequest struct {
	ID                  string            `json:"id"`
	RequesterID         string            `json:"requester_id"`
	Kind                RequestKind       `json:"kind"`
	Origin              Location          `json:"origin"`
	RadiusKm            float64           `json:"radius_km"`
	Status              RequestStatus     `json:"status"`
	AssignedCandidateID string            `json:"assigned_candidate_id,omitempty"`
	Metadata            map[string]string `json:"metadata,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

type CandidateRole string

const (
	RoleAmbulance CandidateRole = "AMBULANCE"
	RoleDoctor    CandidateRole = "DOCTOR"
)

// Serves reports whether a responder role handles the request kind.
func (r CandidateRole) Serves(kind RequestKind) bool {
	switch kind {
	case KindSOS:
		return r == RoleAmbulance
	case KindConsult:
		return r == RoleDoctor
	}
	return false
}

// Candidate is an online responder. CurrentAssignmentID is the single
// source of truth for "is this responder busy" and is only mutated
// through the presence registry's Reserve/Release.
type Candidate struct {
	ID                  string        `json:"id"`
	Role                CandidateRole `json:"role"`
	Online              bool          `json:"online"`
	LastLocation        Location      `json:"last_location"`
	CurrentAssignmentID string        `json:"current_assignment_id,omitempty"`
}

// RankedCandidate annotates a candidate with its great-circle distance
// to a request origin.
type RankedCandidate struct {
	Candidate
	DistanceKm float64 `json:"distance_km"`
}
