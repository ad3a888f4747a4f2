package messagebrokerdto

// KeyReservationStatus is the routing-key prefix for post-commit
// reservation transitions; the suffix is the holder id. The dispatch
// service consumes these to push expiry notices to connected clients.
const KeyReservationStatus = "reservation.status."

type ReservationStatus struct {
	ReservationID string `json:"reservation_id"`
	HolderID      string `json:"holder_id"`
	DoctorID      string `json:"doctor_id"`
	StartTime     string `json:"start_time"`
	Status        string `json:"status"`
	Timestamp     string `json:"timestamp"`
}
