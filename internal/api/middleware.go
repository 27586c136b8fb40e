// Package api implements the canvasd REST API using chi.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	jwt "github.com/golang-jwt/jwt/v5"
)

// Auth modes.
const (
	AuthDisabled = "disabled"
	AuthToken    = "token"
	AuthJWT      = "jwt"
)

type contextKey string

const userIDKey contextKey = "userID"

// UserID returns the authenticated subject for the request, or "" when the
// auth mode carries no identity.
func UserID(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey).(string)
	return id
}

// AuthMiddleware returns middleware enforcing the configured auth mode.
// "disabled" passes everything through. "token" requires a matching static
// Bearer token. "jwt" requires an HS256-signed Bearer JWT; its `sub` claim
// becomes the request's user id for camera attribution.
func AuthMiddleware(mode, token, jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch mode {
			case "", AuthDisabled:
				next.ServeHTTP(w, r)
				return
			case AuthToken:
				if bearer(r) != token {
					writeError(w, http.StatusUnauthorized, "unauthorized")
					return
				}
				next.ServeHTTP(w, r)
				return
			case AuthJWT:
				sub, err := verifyJWT(bearer(r), jwtSecret)
				if err != nil {
					writeError(w, http.StatusUnauthorized, "unauthorized")
					return
				}
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, sub)))
				return
			default:
				writeError(w, http.StatusUnauthorized, "unknown auth mode")
			}
		})
	}
}

func bearer(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(auth, "Bearer ")
}

func verifyJWT(raw, secret string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("missing token")
	}
	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("unexpected claims type")
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return "", err
	}
	return sub, nil
}
