package ports

import (
	"context"

	"medilink/internal/auth-service/core/domain/model"
)

type IUserRepo interface {
	Create(ctx context.Context, user model.User) (string, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
}
