package handle

import (
	"encoding/json"
	"fmt"
	"net/http"

	"medilink/internal/applog"
	"medilink/internal/auth-service/core/domain/dto"
	"medilink/internal/auth-service/core/ports"
	"medilink/internal/myerrors"

	"github.com/go-playground/validator/v10"
)

type AuthHandler struct {
	authService ports.IAuthService
	validate    *validator.Validate
	mylog       applog.Logger
}

func NewAuthHandler(authService ports.IAuthService, mylog applog.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		validate:    validator.New(),
		mylog:       mylog,
	}
}

func (ah *AuthHandler) Signup() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req dto.SignupDto
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			jsonError(w, fmt.Errorf("%w: %v", myerrors.ErrValidation, err))
			return
		}
		if err := ah.validate.Struct(req); err != nil {
			jsonError(w, fmt.Errorf("%w: %v", myerrors.ErrValidation, err))
			return
		}

		res, err := ah.authService.Signup(r.Context(), req)
		if err != nil {
			jsonError(w, err)
			return
		}

		jsonResponse(w, http.StatusCreated, res)
	}
}

func (ah *AuthHandler) Signin() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req dto.SigninDto
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			jsonError(w, fmt.Errorf("%w: %v", myerrors.ErrValidation, err))
			return
		}
		if err := ah.validate.Struct(req); err != nil {
			jsonError(w, fmt.Errorf("%w: %v", myerrors.ErrValidation, err))
			return
		}

		res, err := ah.authService.Signin(r.Context(), req)
		if err != nil {
			jsonError(w, err)
			return
		}

		jsonResponse(w, http.StatusOK, res)
	}
}
