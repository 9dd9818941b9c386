package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ecowatt/tourate/pkg/log"
)

// requireOperator checks the bearer ID token on scheduler and operator
// endpoints. Without a configured verifier every request is let through, for
// local development and for deployments that restrict ingress instead.
func (s *Server) requireOperator(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.verifier == nil {
			next(w, r)
			return
		}
		ctx := r.Context()

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeJSONError(w, "missing authorization header", http.StatusUnauthorized)
			return
		}
		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
			writeJSONError(w, "invalid authorization header", http.StatusUnauthorized)
			return
		}

		email, err := s.authenticateToken(ctx, token)
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "operator token validation failed", slog.Any("error", err))
			writeJSONError(w, "invalid id token", http.StatusUnauthorized)
			return
		}
		if !s.isOperator(email) {
			log.Ctx(ctx).WarnContext(ctx, "operator email mismatch", slog.String("got", email))
			writeJSONError(w, "forbidden", http.StatusForbidden)
			return
		}

		ctx = log.WithAttrs(ctx, slog.String("caller", email))
		next(w, r.WithContext(ctx))
	}
}

func (s *Server) authenticateToken(ctx context.Context, token string) (string, error) {
	idToken, err := s.verifier(ctx, token)
	if err != nil {
		return "", fmt.Errorf("verifier failed: %w", err)
	}
	var claims struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return "", fmt.Errorf("failed to parse claims: %w", err)
	}
	if claims.Email == "" {
		return "", errors.New("token has no email claim")
	}
	if !claims.EmailVerified {
		return "", errors.New("token email is not verified")
	}
	return claims.Email, nil
}

func (s *Server) isOperator(email string) bool {
	var ok bool
	for _, allowed := range s.operatorEmails {
		if subtle.ConstantTimeCompare([]byte(email), []byte(allowed)) == 1 {
			ok = true
		}
	}
	return ok
}
