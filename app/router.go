// Package app wires shared HTTP routes for both local and Lambda execution.
package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"example/healing-api/app/billing"
	"example/healing-api/app/config"
	"example/healing-api/app/entitlement"
	"example/healing-api/app/ledger"
	"example/healing-api/app/logger"
	"example/healing-api/app/models"
	"example/healing-api/app/sessions"
	"example/healing-api/app/store"
	"example/healing-api/auth"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const dbTimeout = 5 * time.Second

// Deps are the collaborators the router is built from.
type Deps struct {
	Config   *config.Config
	Store    store.Store
	Provider billing.Provider
	// Dedupe is optional; without it webhook redeliveries rely on idempotent transitions.
	Dedupe billing.Deduper
	// Verifier overrides the JWKS verifier built from Config.Auth.
	Verifier auth.TokenVerifier
	Logger   logger.Logger
}

// Server holds the services behind the HTTP handlers.
type Server struct {
	cfg          *config.Config
	store        store.Store
	provider     billing.Provider
	entitlements *entitlement.Service
	sessions     *sessions.Service
	ledger       *ledger.Ledger
	billing      *billing.Reconciler
	log          logger.Logger
}

func NewServer(d Deps) *Server {
	log := d.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Server{
		cfg:          d.Config,
		store:        d.Store,
		provider:     d.Provider,
		entitlements: entitlement.NewService(d.Store, log),
		sessions:     sessions.NewService(d.Store, d.Config.Sessions.TTL, log),
		ledger:       ledger.New(d.Store, d.Config.App.HistoryDays),
		billing:      billing.NewReconciler(d.Store, d.Provider, d.Dedupe, d.Config.App.FrontendURL, log),
		log:          log,
	}
}

// NewRouter builds the shared HTTP router for both local and Lambda execution.
func NewRouter(d Deps) (*gin.Engine, error) {
	if d.Config == nil || d.Store == nil || d.Provider == nil {
		return nil, errors.New("router requires config, store and provider")
	}

	verifier := d.Verifier
	if verifier == nil && !d.Config.Auth.Disabled {
		v, err := auth.NewVerifierFromConfig(d.Config.Auth)
		if err != nil {
			return nil, err
		}
		verifier = v
	}

	s := NewServer(d)
	return s.routes(verifier), nil
}

func (s *Server) routes(verifier auth.TokenVerifier) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(s.log))
	router.Use(cors.New(cors.Config{
		AllowOrigins: allowedOrigins(s.cfg.App.FrontendURL),
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))

	router.GET("/health", s.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.POST("/api/stripe/webhook", s.StripeWebhook)
	router.GET("/api/plans", s.Plans)

	protected := router.Group("/api")
	protected.Use(auth.Middleware(verifier, auth.MiddlewareConfig{
		DisableAuth:     s.cfg.Auth.Disabled,
		OnAuthenticated: s.resolveUser,
		Logger:          s.log,
	}))

	protected.GET("/me", s.Me)

	for _, f := range models.Features {
		protected.GET("/"+f.Slug()+"/can-use", s.CanUse(f))
		protected.POST("/"+f.Slug()+"/use", s.Use(f))
	}

	protected.POST("/sessions/start", s.StartSession)
	protected.GET("/sessions/active", s.ActiveSession)
	protected.POST("/sessions/:id/record-removal", s.RecordRemoval)
	protected.POST("/sessions/:id/complete", s.CompleteSession)

	protected.GET("/usage/stats", s.UsageStats)

	protected.POST("/checkout/start", s.StartCheckout)
	protected.POST("/cancel-subscription", s.CancelSubscription)

	protected.GET("/journal", s.ListJournal)
	protected.POST("/journal", s.CreateJournal)
	protected.PUT("/journal/:id", s.UpdateJournal)
	protected.DELETE("/journal/:id", s.DeleteJournal)

	protected.GET("/artworks", s.ListArtworks)
	protected.POST("/artworks", s.CreateArtwork)
	protected.DELETE("/artworks/:id", s.DeleteArtwork)

	return router
}

// resolveUser upserts the local user for the verified subject and records its id.
func (s *Server) resolveUser(c *gin.Context, claims *auth.Claims) error {
	ctx, cancel := context.WithTimeout(c.Request.Context(), dbTimeout)
	defer cancel()

	u, err := s.store.UpsertUser(ctx, claims.Identity())
	if err != nil {
		return err
	}
	c.Request = c.Request.WithContext(auth.WithUserID(c.Request.Context(), u.ID))
	return nil
}

func allowedOrigins(frontendURL string) []string {
	origin := strings.TrimRight(strings.TrimSpace(frontendURL), "/")
	if origin == "" {
		return []string{"*"}
	}
	return []string{origin}
}
