// Package api implements the HTTP surface of the loyaltylink service.
package api

import (
	"log"

	"golang.org/x/time/rate"

	"loyaltylink/internal/codes"
	"loyaltylink/internal/config"
	"loyaltylink/internal/partner"
	"loyaltylink/internal/pipeline"
	"loyaltylink/internal/shopify"
	"loyaltylink/internal/store"
)

type Server struct {
	Cfg      config.Config
	Store    store.Store
	Pipeline *pipeline.Pipeline
	Shopify  *shopify.Client
	Broker   EventBroker
	Limiter  *rate.Limiter
}

// NewServer wires the service from config. If DATABASE_URL is unset, uses the
// in-memory store. A missing Shopify configuration leaves the annotator nil:
// the failure is logged, unrelated routes keep working, and annotate stages
// fail cleanly at runtime.
func NewServer(cfg config.Config) (*Server, error) {
	var s store.Store
	if cfg.DatabaseURL == "" {
		s = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := sp.MigrateDir("db/migrations"); err != nil {
			log.Printf("migrations: %v", err)
		}
		s = sp
	}

	var broker EventBroker
	if cfg.RedisURL != "" {
		if rb, err := NewRedisBroker(cfg.RedisURL); err == nil {
			broker = rb
		} else {
			log.Printf("redis broker unavailable, using in-memory: %v", err)
			broker = NewBroker()
		}
	} else {
		broker = NewBroker()
	}

	var shop *shopify.Client
	var annotator pipeline.Annotator
	if c, err := shopify.NewClient(cfg.Shopify.ShopDomain, cfg.Shopify.AdminToken, cfg.Shopify.APIVersion); err != nil {
		log.Printf("shopify client not initialized: %v", err)
	} else {
		shop = c
		annotator = c
	}

	notifier := partner.NewNotifier(cfg.Partner.BaseURL, cfg.Partner.RateRPS, cfg.Partner.RateBurst)
	gen := codes.NewGenerator(s, cfg.CodeMaxAttempts)
	p := pipeline.New(s, gen, notifier, annotator, broker, cfg.QualifyingProducts)
	p.SkipTestOrders = cfg.SkipTestOrders

	srv := &Server{
		Cfg:      cfg,
		Store:    s,
		Pipeline: p,
		Shopify:  shop,
		Broker:   broker,
		Limiter:  rate.NewLimiter(rate.Limit(webhookRPS(cfg)), webhookBurst(cfg)),
	}
	return srv, nil
}

func webhookRPS(cfg config.Config) float64 {
	if cfg.Partner.RateRPS > 0 {
		return cfg.Partner.RateRPS * 4
	}
	return 50
}

func webhookBurst(cfg config.Config) int {
	if cfg.Partner.RateBurst > 0 {
		return cfg.Partner.RateBurst * 4
	}
	return 100
}

// NewAnnotationWorker creates the background reconciliation worker.
func (s *Server) NewAnnotationWorker() *pipeline.Worker {
	return pipeline.NewWorker(s.Store, s.Pipeline.Annotator, s.Cfg.Annotation.MaxAttempts)
}
