// Package auth verifies identity-provider tokens and carries the result on the request context.
package auth

import (
	"context"
	"time"

	"example/healing-api/app/models"
)

type ctxKey int

const (
	claimsKey ctxKey = iota
	userIDKey
)

// Claims is what the rest of the service needs from a verified token.
type Claims struct {
	Subject   string
	Issuer    string
	Audience  []string
	ExpiresAt time.Time
	Scope     string
	Email     string
	Name      string
}

// Identity is the profile used to upsert the local user.
func (c *Claims) Identity() models.Identity {
	return models.Identity{
		Subject:     c.Subject,
		Email:       c.Email,
		DisplayName: c.Name,
	}
}

// WithClaims stores auth claims in a context.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext returns claims from a context.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*Claims)
	return claims, ok
}

// WithUserID stores the local user id resolved for the verified subject.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns the local user id, if one was resolved.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}
