package authmw

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt"
)

const (
	HeaderUserId = "X-UserId"
	HeaderRole   = "X-Role"
)

type AuthMiddleware struct {
	accessSecret string
}

func NewAuthMiddleware(accessSecret string) *AuthMiddleware {
	return &AuthMiddleware{
		accessSecret: accessSecret,
	}
}

// ParseToken validates the given JWT and returns its user_id and role
// claims. Used both by the HTTP middleware and by the websocket
// first-frame auth.
func ParseToken(tokenString, accessSecret string) (userId, role string, err error) {
	tokenString = strings.TrimPrefix(tokenString, "Bearer ")
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(accessSecret), nil
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to parse JWT-Token: %w", err)
	}

	if !token.Valid {
		return "", "", fmt.Errorf("invalid JWT-Token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", fmt.Errorf("invalid claims")
	}

	userId, ok = claims["user_id"].(string)
	if !ok {
		return "", "", fmt.Errorf("user_id not found in token")
	}

	role, ok = claims["role"].(string)
	if !ok {
		return "", "", fmt.Errorf("role not found in token")
	}

	return userId, role, nil
}

// Wrap authenticates the request and, when allowedRoles is non-empty,
// requires the token role to be among them. The principal is passed
// down via request headers.
func (am *AuthMiddleware) Wrap(next http.Handler, allowedRoles ...string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.Header.Get("Authorization")
		if tokenString == "" {
			jsonError(w, http.StatusUnauthorized, fmt.Errorf("empty JWT-Token"))
			return
		}

		userId, role, err := ParseToken(tokenString, am.accessSecret)
		if err != nil {
			jsonError(w, http.StatusUnauthorized, err)
			return
		}

		if len(allowedRoles) > 0 {
			allowed := false
			for _, ar := range allowedRoles {
				if role == ar {
					allowed = true
					break
				}
			}
			if !allowed {
				jsonError(w, http.StatusForbidden, fmt.Errorf("role %s not allowed", role))
				return
			}
		}

		r.Header.Set(HeaderUserId, userId)
		r.Header.Set(HeaderRole, role)

		next.ServeHTTP(w, r)
	})
}

func jsonError(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": err.Error(),
		"code":  code,
	})
}
