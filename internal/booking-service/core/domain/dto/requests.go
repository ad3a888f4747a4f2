package dto

// HoldRequestDto asks for a time-bound hold on a doctor+timeslot pair.
// StartTime is RFC3339. TTLSeconds of zero means the server default.
type HoldRequestDto struct {
	DoctorID   string `json:"doctor_id" validate:"required,uuid4"`
	StartTime  string `json:"start_time" validate:"required"`
	TTLSeconds int    `json:"ttl_seconds" validate:"omitempty,gte=0"`
}
