// Package handler 提供HTTP请求处理器
package handler

import (
	"context"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	zh_translations "github.com/go-playground/validator/v10/translations/zh"
	"github.com/paiban/shiftplan/internal/config"
	"github.com/paiban/shiftplan/internal/metrics"
	"github.com/paiban/shiftplan/internal/middleware"
	"github.com/paiban/shiftplan/internal/tenant"
	"github.com/paiban/shiftplan/pkg/scheduler"
	"github.com/paiban/shiftplan/pkg/stats"
	"github.com/paiban/shiftplan/pkg/swap"
	rules "github.com/paiban/shiftplan/pkg/validator"
)

// Services 处理器依赖的排班组件
type Services struct {
	Generator *scheduler.Generator
	Patterns  *scheduler.PatternApplier
	Status    *scheduler.StatusUpdater
	Swaps     *swap.Manager
	Coverage  *stats.CoverageAnalyzer
	Fairness  *stats.FairnessAnalyzer
	Conflicts *rules.ConflictDetector

	// Health 检查外部依赖，为空时始终健康
	Health func(ctx context.Context) error
}

type Handler struct {
	validate   *validator.Validate
	translator ut.Translator
	config     *config.Config
	services   Services
	limiter    *tenant.Limiter

	Mux *chi.Mux
}

func NewHandler(cfg *config.Config, services Services) (*Handler, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())
	zh := zh.New()
	uni := ut.New(zh, zh)
	trans, _ := uni.GetTranslator("zh")
	if err := zh_translations.RegisterDefaultTranslations(validate, trans); err != nil {
		return nil, err
	}

	return &Handler{
		validate:   validate,
		translator: trans,
		config:     cfg,
		services:   services,
		limiter:    tenant.NewLimiter(cfg.API.RateLimit, cfg.API.RateBurst),

		Mux: chi.NewRouter(),
	}, nil
}

func (h *Handler) RegisterRoutes() {
	h.Mux.Use(middleware.RequestID)
	h.Mux.Use(middleware.Logging)
	h.Mux.Use(middleware.Recovery)
	h.Mux.Use(middleware.SecurityHeaders)

	h.Mux.Get("/health", h.Health)
	if h.config.Metrics.Enabled {
		h.Mux.Handle(h.config.Metrics.Path, metrics.Handler())
	}

	h.Mux.Route("/api/v1/tenants/{tenantID}", func(r chi.Router) {
		r.Use(middleware.Tenant(h.limiter))
		r.Use(middleware.Timeout(h.config.API.Timeout))

		r.Post("/schedule/generate", h.GenerateSchedule)
		r.Post("/patterns/apply", h.ApplyPattern)
		r.Patch("/assignments/{id}/status", h.UpdateAssignmentStatus)
		r.Post("/swaps", h.SwapShift)

		r.Get("/coverage", h.GetCoverage)
		r.Get("/workload", h.GetWorkload)
		r.Get("/workers/{workerID}/conflicts", h.GetWorkerConflicts)
	})
}
