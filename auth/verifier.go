package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"example/healing-api/app/config"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

const clockSkew = 30 * time.Second

var signingAlgs = []string{
	jwt.SigningMethodRS256.Name,
	jwt.SigningMethodRS384.Name,
	jwt.SigningMethodRS512.Name,
}

// Verifier checks RSA-signed access tokens against the issuer's published key set.
type Verifier struct {
	issuer   string
	audience string
	keys     keyfunc.Keyfunc
	parser   *jwt.Parser
}

// tokenClaims is the access token body as the identity provider issues it.
type tokenClaims struct {
	jwt.RegisteredClaims
	Scope    string `json:"scope"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Nickname string `json:"nickname"`
}

func NewVerifierFromConfig(cfg config.AuthConfig) (*Verifier, error) {
	if strings.TrimSpace(cfg.Issuer) == "" || strings.TrimSpace(cfg.Audience) == "" {
		return nil, errors.New("auth.issuer and auth.audience are required unless auth.disabled is set")
	}
	return NewVerifier(cfg.Issuer, cfg.Audience, cfg.JWKSURL)
}

// NewVerifier fetches keys from jwksURL, or from the issuer's
// .well-known/jwks.json when jwksURL is empty.
func NewVerifier(issuer, audience, jwksURL string) (*Verifier, error) {
	issuer = strings.TrimSpace(issuer)
	audience = strings.TrimSpace(audience)
	if issuer == "" || audience == "" {
		return nil, errors.New("verifier needs both issuer and audience")
	}
	if !strings.HasSuffix(issuer, "/") {
		issuer += "/"
	}
	if jwksURL = strings.TrimSpace(jwksURL); jwksURL == "" {
		jwksURL = issuer + ".well-known/jwks.json"
	}

	keys, err := keyfunc.NewDefault([]string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("load jwks from %s: %w", jwksURL, err)
	}
	return &Verifier{
		issuer:   issuer,
		audience: audience,
		keys:     keys,
		parser: jwt.NewParser(
			jwt.WithIssuer(issuer),
			jwt.WithAudience(audience),
			jwt.WithLeeway(clockSkew),
			jwt.WithValidMethods(signingAlgs),
			jwt.WithExpirationRequired(),
		),
	}, nil
}

func (v *Verifier) Verify(raw string) (*Claims, error) {
	var tc tokenClaims
	if _, err := v.parser.ParseWithClaims(raw, &tc, v.keys.Keyfunc); err != nil {
		return nil, err
	}
	if tc.Subject == "" {
		return nil, errors.New("token has no subject")
	}

	c := &Claims{
		Subject:  tc.Subject,
		Issuer:   tc.Issuer,
		Audience: []string(tc.Audience),
		Scope:    tc.Scope,
		Email:    strings.TrimSpace(tc.Email),
		Name:     strings.TrimSpace(tc.Name),
	}
	if c.Name == "" {
		c.Name = strings.TrimSpace(tc.Nickname)
	}
	if tc.ExpiresAt != nil {
		c.ExpiresAt = tc.ExpiresAt.Time
	}
	return c, nil
}
