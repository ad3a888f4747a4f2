package handle

import (
	"encoding/json"
	"fmt"
	"net/http"

	"medilink/internal/applog"
	"medilink/internal/authmw"
	"medilink/internal/booking-service/core/domain/dto"
	"medilink/internal/booking-service/core/ports"
	"medilink/internal/myerrors"

	"github.com/go-playground/validator/v10"
)

type ReservationHandler struct {
	reservations ports.IReservationService
	validate     *validator.Validate
	log          applog.Logger
}

func NewReservationHandler(rs ports.IReservationService, log applog.Logger) *ReservationHandler {
	return &ReservationHandler{
		reservations: rs,
		validate:     validator.New(),
		log:          log,
	}
}

func (rh *ReservationHandler) Hold() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		holderID := r.Header.Get(authmw.HeaderUserId)

		req := dto.HoldRequestDto{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			jsonError(w, fmt.Errorf("%w: %v", myerrors.ErrValidation, err))
			return
		}
		if err := rh.validate.Struct(req); err != nil {
			jsonError(w, fmt.Errorf("%w: %v", myerrors.ErrValidation, err))
			return
		}

		res, err := rh.reservations.Hold(r.Context(), holderID, req)
		if err != nil {
			jsonError(w, err)
			return
		}

		jsonResponse(w, http.StatusCreated, res)
	}
}

func (rh *ReservationHandler) Confirm() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		holderID := r.Header.Get(authmw.HeaderUserId)
		reservationID := r.PathValue("reservation_id")

		res, err := rh.reservations.Confirm(r.Context(), reservationID, holderID)
		if err != nil {
			jsonError(w, err)
			return
		}

		jsonResponse(w, http.StatusOK, res)
	}
}

func (rh *ReservationHandler) Cancel() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		holderID := r.Header.Get(authmw.HeaderUserId)
		reservationID := r.PathValue("reservation_id")

		res, err := rh.reservations.Cancel(r.Context(), reservationID, holderID)
		if err != nil {
			jsonError(w, err)
			return
		}

		jsonResponse(w, http.StatusOK, res)
	}
}

// Active returns the caller's newest live reservation, used by clients
// to resume a countdown after reconnect.
func (rh *ReservationHandler) Active() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		holderID := r.Header.Get(authmw.HeaderUserId)

		res, ok := rh.reservations.ActiveForHolder(holderID)
		if !ok {
			jsonError(w, fmt.Errorf("%w: no active reservation", myerrors.ErrNotFound))
			return
		}

		jsonResponse(w, http.StatusOK, res)
	}
}
