package db

import (
	"context"

	"medilink/internal/dispatch-service/core/domain/model"
	"medilink/internal/dispatch-service/core/ports"
	"medilink/internal/postgres"
)

type CandidateRepo struct {
	db *postgres.DB
}

func NewCandidateRepo(db *postgres.DB) ports.ICandidateRepo {
	return &CandidateRepo{
		db: db,
	}
}

// UpsertPresence mirrors the in-memory registry row for the candidate.
func (cr *CandidateRepo) UpsertPresence(ctx context.Context, c model.Candidate) error {
	q := `INSERT INTO candidates(
			candidate_id,
			role,
			online,
			last_latitude,
			last_longitude,
			current_assignment_id,
			updated_at
		) VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), now())
		ON CONFLICT (candidate_id) DO UPDATE SET
			role = EXCLUDED.role,
			online = EXCLUDED.online,
			last_latitude = EXCLUDED.last_latitude,
			last_longitude = EXCLUDED.last_longitude,
			current_assignment_id = EXCLUDED.current_assignment_id,
			updated_at = now()`

	_, err := cr.db.Conn().Exec(ctx, q,
		c.ID,
		string(c.Role),
		c.Online,
		c.LastLocation.Latitude,
		c.LastLocation.Longitude,
		c.CurrentAssignmentID,
	)
	return err
}
