package dto

// Client-side payloads for the dispatch flows. Validation tags are
// enforced by the handlers before anything reaches the core.

type CreateRequestDto struct {
	Kind      string            `json:"kind" validate:"required,oneof=SOS CONSULT"`
	Latitude  *float64          `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude *float64          `json:"longitude" validate:"required,gte=-180,lte=180"`
	Address   string            `json:"address" validate:"max=255"`
	RadiusKm  float64           `json:"radius_km" validate:"omitempty,gt=0,lte=100"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type AcceptRequestDto struct {
	RequestID string `json:"request_id" validate:"required,uuid4"`
}

type CompleteRequestDto struct {
	RequestID string `json:"request_id" validate:"required,uuid4"`
}

type CancelRequestDto struct {
	RequestID string `json:"request_id" validate:"required,uuid4"`
	Reason    string `json:"reason" validate:"max=255"`
}

type GoOnlineDto struct {
	Latitude  *float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
	Address   string   `json:"address" validate:"max=255"`
}

type UpdateLocationDto struct {
	Latitude  *float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
	Address   string   `json:"address" validate:"max=255"`
}

type UpdateOriginDto struct {
	RequestID string   `json:"request_id" validate:"required,uuid4"`
	Latitude  *float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
	Address   string   `json:"address" validate:"max=255"`
}
