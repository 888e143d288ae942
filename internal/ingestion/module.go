// Package ingestion provides the lead-ingestion bounded context module.
// This file defines the module that encapsulates all ingestion setup and
// route registration.
package ingestion

import (
	"recruitbase_backend/internal/events"
	apphttp "recruitbase_backend/internal/http"
	"recruitbase_backend/platform/config"
	"recruitbase_backend/platform/logger"
	"recruitbase_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ModuleConfig combines the config interfaces the ingestion module needs.
type ModuleConfig interface {
	config.WebhookConfig
	config.GraphConfig
}

// Module is the ingestion bounded context module implementing http.Module.
type Module struct {
	handler *Handler
	service *Service
}

// NewModule creates and initializes the ingestion module with all its
// dependencies. directory and merger are usually the same candidates
// repository; scheduler may be nil when no queue backend is configured.
func NewModule(
	pool *pgxpool.Pool,
	cfg ModuleConfig,
	directory CandidateDirectory,
	merger CandidateMerger,
	scheduler ReplayScheduler,
	eventBus events.Bus,
	val *validator.Validator,
	log *logger.Logger,
) *Module {
	repo := NewRepository(pool)
	normalizer := NewNormalizer(cfg.GetDefaultCallingCode())
	fetcher := NewGraphFetcher(cfg, log)
	resolver := NewResolver(directory, cfg.GetResolverStrict())
	verifier := NewVerifier(cfg, log)

	service := NewService(repo, normalizer, fetcher, resolver, merger, eventBus, scheduler, cfg.GetResolverStrict(), log)
	handler := NewHandler(service, verifier, val, cfg.GetAckAfterPersist(), log)

	return &Module{
		handler: handler,
		service: service,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "ingestion"
}

// Service exposes the pipeline service for the replay worker runtime.
func (m *Module) Service() *Service {
	return m.service
}

// RegisterRoutes mounts ingestion routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	// Public webhook endpoints (token handshake auth, rate limited)
	webhooks := ctx.V1.Group("/webhooks")
	webhooks.Use(ctx.WebhookRateLimiter.RateLimit())
	webhooks.GET("/leads", m.handler.HandleVerify)
	webhooks.POST("/leads", m.handler.HandleDelivery)

	// Operator endpoints for inspection and replay
	admin := ctx.Admin.Group("/ingestion")
	admin.GET("/leads/pending", m.handler.HandleListPending)
	admin.GET("/leads/:externalId", m.handler.HandleGetLeadEvent)
	admin.POST("/leads/:externalId/replay", m.handler.HandleReplay)
	admin.POST("/leads/:externalId/link", m.handler.HandleResolvePending)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
