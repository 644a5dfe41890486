package auth

import (
	"net/http"
	"strings"

	"example/healing-api/app/apperr"
	"example/healing-api/app/logger"

	"github.com/gin-gonic/gin"
)

// TokenVerifier validates a bearer token.
type TokenVerifier interface {
	Verify(token string) (*Claims, error)
}

// MiddlewareConfig controls auth enforcement behavior.
type MiddlewareConfig struct {
	RequireScopes []string
	PublicPaths   map[string]bool
	// DisableAuth injects DevSubject instead of verifying tokens. Local development only.
	DisableAuth bool
	DevSubject  string
	// OnAuthenticated runs after verification; a non-nil error aborts the request.
	OnAuthenticated func(c *gin.Context, claims *Claims) error
	Logger          logger.Logger
}

// Middleware enforces bearer token auth and injects claims into the request context.
func Middleware(verifier TokenVerifier, cfg MiddlewareConfig) gin.HandlerFunc {
	log := cfg.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	return func(c *gin.Context) {
		if cfg.PublicPaths != nil && cfg.PublicPaths[c.FullPath()] {
			c.Next()
			return
		}

		var claims *Claims
		if cfg.DisableAuth {
			sub := cfg.DevSubject
			if sub == "" {
				sub = "local-dev"
			}
			claims = &Claims{Subject: sub, Issuer: "local"}
		} else {
			var ok bool
			claims, ok = verify(c, verifier, cfg, log)
			if !ok {
				return
			}
		}

		ctx := WithClaims(c.Request.Context(), claims)
		c.Request = c.Request.WithContext(ctx)

		if cfg.OnAuthenticated != nil {
			if err := cfg.OnAuthenticated(c, claims); err != nil {
				log.Error("post-auth hook failed", map[string]interface{}{
					"path":  c.Request.URL.Path,
					"sub":   claims.Subject,
					"error": err.Error(),
				})
				c.AbortWithStatusJSON(apperr.HTTPStatus(err), gin.H{
					"error": apperr.PublicMessage(err),
					"code":  apperr.KindOf(err),
				})
				return
			}
		}
		c.Next()
	}
}

func verify(c *gin.Context, verifier TokenVerifier, cfg MiddlewareConfig, log logger.Logger) (*Claims, bool) {
	path := c.Request.URL.Path
	if verifier == nil {
		respondUnauthorized(c, "auth verifier not configured")
		return nil, false
	}

	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		log.Debug("auth failure: missing Authorization header", map[string]interface{}{"path": path})
		respondUnauthorized(c, "missing authorization header")
		return nil, false
	}

	token, ok := extractBearerToken(authHeader)
	if !ok {
		log.Info("auth failure: malformed Authorization header", map[string]interface{}{"path": path})
		respondUnauthorized(c, "invalid authorization header")
		return nil, false
	}

	claims, err := verifier.Verify(token)
	if err != nil {
		log.Info("auth failure: token invalid", map[string]interface{}{"path": path, "error": err.Error()})
		respondUnauthorized(c, "invalid token")
		return nil, false
	}

	if len(cfg.RequireScopes) > 0 && !hasScopes(claims.Scope, cfg.RequireScopes) {
		log.Info("auth failure: missing scopes", map[string]interface{}{"path": path})
		respondUnauthorized(c, "insufficient scope")
		return nil, false
	}
	return claims, true
}

func extractBearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return "", false
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}

func hasScopes(scopeClaim string, required []string) bool {
	if scopeClaim == "" {
		return false
	}
	available := map[string]struct{}{}
	for _, s := range strings.Fields(scopeClaim) {
		available[s] = struct{}{}
	}
	for _, scope := range required {
		if _, ok := available[scope]; !ok {
			return false
		}
	}
	return true
}

func respondUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": message,
		"code":  apperr.KindUnauthenticated,
	})
}
