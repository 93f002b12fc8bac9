package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
)

const (
	roleClaim   = "role"
	serviceRole = "service"

	DefaultServiceTokenTTL = 5 * time.Minute
)

type contextKey string

const sessionIdKey contextKey = "session-id"

func WithSessionId(ctx context.Context, sessionId string) context.Context {
	return context.WithValue(ctx, sessionIdKey, sessionId)
}

func SessionId(ctx context.Context) (string, bool) {
	sessionId, ok := ctx.Value(sessionIdKey).(string)

	return sessionId, ok && sessionId != ""
}

// NewServiceToken mints a short-lived HS256 token carrying the service
// role. Only service tokens may trigger administrative operations.
func NewServiceToken(signingKey []byte, ttl time.Duration) (string, error) {
	if len(signingKey) == 0 {
		return "", errors.New("signing key is empty")
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		roleClaim: serviceRole,
		"iat":     now.Unix(),
		"exp":     now.Add(ttl).Unix(),
	})

	return token.SignedString(signingKey)
}

func verifyServiceToken(signingKey []byte, tokenString string) error {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return signingKey, nil
	})
	if err != nil {
		return fmt.Errorf("parse token: %w", err)
	}

	if !token.Valid {
		return errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return errors.New("invalid token claims")
	}

	if _, ok := claims["exp"]; !ok {
		return errors.New("token has no expiry")
	}

	if role, _ := claims[roleClaim].(string); role != serviceRole {
		return fmt.Errorf("role %q is not allowed", role)
	}

	return nil
}
