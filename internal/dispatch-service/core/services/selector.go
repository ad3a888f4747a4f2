package services

import (
	"fmt"
	"math"
	"sort"

	"medilink/internal/dispatch-service/core/domain/model"
	"medilink/internal/myerrors"
)

const earthRadiusKm = 6371.0

var (
	ErrInvalidLatitude  = fmt.Errorf("%w: latitude outside [-90, 90]", myerrors.ErrValidation)
	ErrInvalidLongitude = fmt.Errorf("%w: longitude outside [-180, 180]", myerrors.ErrValidation)
	ErrInvalidRadius    = fmt.Errorf("%w: radius must be positive", myerrors.ErrValidation)
)

// RankCandidates returns the candidates that are online, uncommitted
// and of the role serving the request kind, within radiusKm of the
// origin, ordered ascending by great-circle distance. Ties are broken
// by candidate id so fixtures stay reproducible. Pure function over
// the supplied presence snapshot.
func RankCandidates(origin model.Location, radiusKm float64, kind model.RequestKind, candidates []model.Candidate) ([]model.RankedCandidate, error) {
	if err := ValidateLocation(origin); err != nil {
		return nil, err
	}
	if radiusKm <= 0 {
		return nil, ErrInvalidRadius
	}

	var ranked []model.RankedCandidate
	for _, c := range candidates {
		if !c.Online || c.CurrentAssignmentID != "" {
			continue
		}
		if !c.Role.Serves(kind) {
			continue
		}
		dist := HaversineKm(origin, c.LastLocation)
		if dist > radiusKm {
			continue
		}
		ranked = append(ranked, model.RankedCandidate{Candidate: c, DistanceKm: dist})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].DistanceKm != ranked[j].DistanceKm {
			return ranked[i].DistanceKm < ranked[j].DistanceKm
		}
		return ranked[i].ID < ranked[j].ID
	})

	return ranked, nil
}

// ValidateLocation rejects malformed coordinates.
func ValidateLocation(loc model.Location) error {
	if math.Abs(loc.Latitude) > 90 {
		return ErrInvalidLatitude
	}
	if math.Abs(loc.Longitude) > 180 {
		return ErrInvalidLongitude
	}
	return nil
}

// HaversineKm computes the great-circle distance between two points.
func HaversineKm(a, b model.Location) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)

	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}
