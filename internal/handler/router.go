package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/paiban/busplan/internal/metrics"
	"github.com/paiban/busplan/internal/middleware"
	"github.com/paiban/busplan/internal/service"
)

// BuildInfo 版本信息
type BuildInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
}

// RouterOptions 路由配置
type RouterOptions struct {
	Build       BuildInfo
	Metrics     *metrics.Registry // nil 时使用全局注册表
	MetricsPath string            // 为空时不暴露指标端点
	Limiter     *middleware.RateLimiter
	CORSOrigins []string // 为空时不启用跨域
	Timeout     time.Duration
}

// NewRouter 组装中间件与全部端点
func NewRouter(svc *service.PlanningService, opts RouterOptions) http.Handler {
	reg := opts.Metrics
	if reg == nil {
		reg = metrics.GetRegistry()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recovery)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(reg))
	r.Use(middleware.SecurityHeaders)
	if len(opts.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", middleware.RequestIDHeader},
			ExposedHeaders: []string{middleware.RequestIDHeader},
			MaxAge:         300,
		}))
	}

	// ========================================
	// 系统端点
	// ========================================

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()

		if err := svc.Ping(ctx); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
				"status":    "error",
				"service":   "busplan",
				"timestamp": time.Now().UTC(),
				"error":     err.Error(),
			})
			return
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"status":    "ok",
			"service":   "busplan",
			"timestamp": time.Now().UTC(),
		})
	})

	r.Get("/version", func(w http.ResponseWriter, req *http.Request) {
		respondJSON(w, http.StatusOK, opts.Build)
	})

	if opts.MetricsPath != "" {
		r.Handle(opts.MetricsPath, reg.Handler())
	}

	// ========================================
	// API v1 端点
	// ========================================

	schedule := NewScheduleHandler(svc)
	dispatch := NewDispatchHandler(svc)
	stats := NewStatsHandler(svc)
	fleet := NewFleetHandler(svc)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(opts.Limiter))
		if opts.Timeout > 0 {
			r.Use(middleware.Timeout(opts.Timeout))
		}

		r.Route("/lines", func(r chi.Router) {
			r.Get("/", fleet.ListLines)
			r.Post("/", fleet.CreateLine)
			r.Get("/{id}", fleet.GetLine)
			r.Put("/{id}", fleet.UpdateLine)
			r.Delete("/{id}", fleet.DeleteLine)
			r.Get("/{id}/day", schedule.LineDay)
		})

		r.Route("/buses", func(r chi.Router) {
			r.Get("/", fleet.ListBuses)
			r.Post("/", fleet.CreateBus)
			r.Get("/{id}", fleet.GetBus)
			r.Put("/{id}", fleet.UpdateBus)
			r.Delete("/{id}", fleet.DeleteBus)
			r.Put("/{id}/availability", fleet.SetBusAvailability)
		})

		r.Route("/drivers", func(r chi.Router) {
			r.Get("/", fleet.ListDrivers)
			r.Post("/", fleet.CreateDriver)
			r.Get("/{id}", fleet.GetDriver)
			r.Put("/{id}", fleet.UpdateDriver)
			r.Delete("/{id}", fleet.DeleteDriver)
			r.Put("/{id}/availability", fleet.SetDriverAvailability)
		})

		r.Route("/assignments", func(r chi.Router) {
			r.Get("/", schedule.List)
			r.Post("/", schedule.Create)
			r.Post("/validate", schedule.Validate)
			r.Delete("/{id}", schedule.Delete)
		})

		r.Get("/candidates", dispatch.Candidates)
		r.Get("/planning/status", stats.PlanningStatus)
		r.Get("/stats", stats.Stats)
	})

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		respondJSON(w, http.StatusNotFound, map[string]interface{}{
			"error":   true,
			"code":    "NOT_FOUND",
			"message": "接口不存在",
		})
	})

	return r
}
