package db

import (
	"context"

	"medilink/internal/booking-service/core/domain/model"
	"medilink/internal/booking-service/core/ports"
	"medilink/internal/postgres"
)

type ReservationRepo struct {
	db *postgres.DB
}

func NewReservationRepo(db *postgres.DB) ports.IReservationRepo {
	return &ReservationRepo{
		db: db,
	}
}

func (rr *ReservationRepo) Insert(ctx context.Context, r model.Reservation) error {
	q := `INSERT INTO reservations(
			reservation_id,
			doctor_id,
			slot_start_time,
			holder_id,
			status,
			created_at,
			expires_at,
			updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := rr.db.Conn().Exec(ctx, q,
		r.ID,
		r.Unit.DoctorID,
		r.Unit.StartTime,
		r.HolderID,
		string(r.Status),
		r.CreatedAt,
		r.ExpiresAt,
		r.UpdatedAt,
	)
	return err
}

func (rr *ReservationRepo) UpdateStatus(ctx context.Context, id string, status model.ReservationStatus) error {
	q := `UPDATE reservations
		SET status = $2,
			updated_at = now()
		WHERE reservation_id = $1`

	_, err := rr.db.Conn().Exec(ctx, q, id, string(status))
	return err
}
