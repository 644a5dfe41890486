package app

import (
	"context"
	"fmt"

	"example/healing-api/app/billing"
	"example/healing-api/app/cache"
	"example/healing-api/app/config"
	"example/healing-api/app/logger"
	"example/healing-api/app/sessions"
	"example/healing-api/app/store"
	"example/healing-api/app/store/memory"
	"example/healing-api/app/store/postgres"

	"github.com/gin-gonic/gin"
)

// Runtime is everything an entrypoint needs to serve and shut down.
type Runtime struct {
	Router  *gin.Engine
	Sweeper *sessions.Sweeper
	Store   store.Store

	redis *cache.RedisClient
	log   logger.Logger
}

// Bootstrap opens the store, payment provider and optional redis deduper and builds the router.
func Bootstrap(ctx context.Context, cfg *config.Config, log logger.Logger) (*Runtime, error) {
	if cfg.App.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	var st store.Store
	if cfg.Database.Memory {
		log.Warn("using in-memory store; data is lost on restart", nil)
		st = memory.New()
	} else {
		pg, err := postgres.Open(ctx, cfg.Database, log)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		st = pg
	}

	rt := &Runtime{Store: st, log: log}

	var dedupe billing.Deduper
	if cfg.Redis.Enabled {
		rc := cache.NewRedis(cfg.Redis)
		if err := rc.Ping(ctx); err != nil {
			log.Warn("redis unavailable; webhook dedupe disabled", map[string]interface{}{"error": err.Error()})
			_ = rc.Close()
		} else {
			rt.redis = rc
			dedupe = rc.Deduper(cfg.Redis.EventTTL)
		}
	}

	provider := billing.NewStripeProvider(cfg.Stripe, cfg.App.Production(), log)

	router, err := NewRouter(Deps{
		Config:   cfg,
		Store:    st,
		Provider: provider,
		Dedupe:   dedupe,
		Logger:   log,
	})
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("build router: %w", err)
	}
	rt.Router = router
	rt.Sweeper = sessions.NewSweeper(st, cfg.Sessions.TTL, cfg.Sessions.SweepInterval, log)
	return rt, nil
}

// Close stops the sweeper and releases connections.
func (r *Runtime) Close() error {
	if r.Sweeper != nil {
		r.Sweeper.Stop()
	}
	if r.redis != nil {
		if err := r.redis.Close(); err != nil {
			r.log.Warn("redis close failed", map[string]interface{}{"error": err.Error()})
		}
	}
	return r.Store.Close()
}
