package db

import (
	"context"

	"medilink/internal/dispatch-service/core/domain/model"
	"medilink/internal/dispatch-service/core/ports"
	"medilink/internal/postgres"
)

type RequestRepo struct {
	db *postgres.DB
}

func NewRequestRepo(db *postgres.DB) ports.IRequestRepo {
	return &RequestRepo{
		db: db,
	}
}

func (rr *RequestRepo) Insert(ctx context.Context, req model.AssignableRequest) error {
	q := `INSERT INTO assignable_requests(
			request_id,
			requester_id,
			kind,
			origin_latitude,
			origin_longitude,
			origin_address,
			radius_km,
			status,
			created_at,
			updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := rr.db.Conn().Exec(ctx, q,
		req.ID,
		req.RequesterID,
		string(req.Kind),
		req.Origin.Latitude,
		req.Origin.Longitude,
		req.Origin.Address,
		req.RadiusKm,
		string(req.Status),
		req.CreatedAt,
		req.UpdatedAt,
	)
	return err
}

func (rr *RequestRepo) UpdateStatus(ctx context.Context, id string, status model.RequestStatus, assignedCandidateID string) error {
	q := `UPDATE assignable_requests
		SET status = $2,
			assigned_candidate_id = NULLIF($3, ''),
			updated_at = now()
		WHERE request_id = $1`

	_, err := rr.db.Conn().Exec(ctx, q, id, string(status), assignedCandidateID)
	return err
}

func (rr *RequestRepo) UpdateOrigin(ctx context.Context, id string, loc model.Location) error {
	q := `UPDATE assignable_requests
		SET origin_latitude = $2,
			origin_longitude = $3,
			origin_address = $4,
			updated_at = now()
		WHERE request_id = $1`

	_, err := rr.db.Conn().Exec(ctx, q, id, loc.Latitude, loc.Longitude, loc.Address)
	return err
}
