package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"medilink/internal/applog"
	"medilink/internal/auth-service/core/domain/dto"
	"medilink/internal/auth-service/core/domain/model"
	"medilink/internal/auth-service/core/ports"
	"medilink/internal/config"
	"medilink/internal/myerrors"

	"github.com/golang-jwt/jwt"
	"golang.org/x/crypto/bcrypt"
)

const (
	hashFactor = 10
	tokenTTL   = 24 * time.Hour
)

type AuthService struct {
	ctx      context.Context
	cfg      *config.Config
	userRepo ports.IUserRepo
	mylog    applog.Logger
}

func NewAuthService(ctx context.Context, mylog applog.Logger, cfg *config.Config, userRepo ports.IUserRepo) *AuthService {
	return &AuthService{
		ctx:      ctx,
		cfg:      cfg,
		userRepo: userRepo,
		mylog:    mylog,
	}
}

// Signup registers a new principal and returns a signed access token.
func (as *AuthService) Signup(ctx context.Context, req dto.SignupDto) (dto.TokenResponse, error) {
	mylog := as.mylog.Action("Signup")

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), hashFactor)
	if err != nil {
		return dto.TokenResponse{}, fmt.Errorf("hash password: %w", err)
	}

	user := model.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hashedPassword,
		Role:         req.Role,
	}

	id, err := as.userRepo.Create(ctx, user)
	if err != nil {
		if errors.Is(err, myerrors.ErrConflict) {
			mylog.Warn("signup rejected, email already registered", "email", req.Email)
			return dto.TokenResponse{}, err
		}
		mylog.Error("cannot save user", err)
		return dto.TokenResponse{}, fmt.Errorf("save user: %w", err)
	}

	token, err := as.issueToken(id, req.Role)
	if err != nil {
		mylog.Error("cannot sign access token", err)
		return dto.TokenResponse{}, err
	}

	mylog.Info("user registered", "user_id", id, "role", req.Role)
	return dto.TokenResponse{UserID: id, Role: req.Role, AccessToken: token}, nil
}

// Signin authenticates by email and password and returns a fresh
// access token.
func (as *AuthService) Signin(ctx context.Context, req dto.SigninDto) (dto.TokenResponse, error) {
	mylog := as.mylog.Action("Signin")

	user, err := as.userRepo.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, myerrors.ErrNotFound) {
			mylog.Debug("signin rejected, unknown email", "email", req.Email)
			return dto.TokenResponse{}, err
		}
		mylog.Error("cannot load user", err)
		return dto.TokenResponse{}, fmt.Errorf("load user: %w", err)
	}

	if bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(req.Password)) != nil {
		mylog.Debug("signin rejected, wrong password", "email", req.Email)
		return dto.TokenResponse{}, fmt.Errorf("%w: wrong credentials", myerrors.ErrForbidden)
	}

	token, err := as.issueToken(user.ID, user.Role)
	if err != nil {
		mylog.Error("cannot sign access token", err)
		return dto.TokenResponse{}, err
	}

	mylog.Info("user signed in", "user_id", user.ID, "role", user.Role)
	return dto.TokenResponse{UserID: user.ID, Role: user.Role, AccessToken: token}, nil
}

func (as *AuthService) issueToken(userID, role string) (string, error) {
	claims := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"exp":     time.Now().Add(tokenTTL).Unix(),
	})
	return claims.SignedString([]byte(as.cfg.App.JwtSecret))
}
