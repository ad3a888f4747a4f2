package ports

import (
	"context"

	"medilink/internal/auth-service/core/domain/dto"
)

// IAuthService registers platform principals and issues the JWTs the
// other services authenticate with.
type IAuthService interface {
	Signup(ctx context.Context, req dto.SignupDto) (dto.TokenResponse, error)
	Signin(ctx context.Context, req dto.SigninDto) (dto.TokenResponse, error)
}
