package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"familyvault/internal/config"
	fvmiddleware "familyvault/internal/middleware"
)

// HealthChecker 汇报一个依赖的可用性，键为依赖名。
type HealthChecker func(ctx context.Context) map[string]bool

// NewRouter 构建 HTTP 路由，集中注册所有对外服务的端点。
func NewRouter(cfg *config.Config, fileHandler *FileHandler, health HealthChecker) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(fvmiddleware.CORS(cfg.CORSAllowedOrigins))
	r.Use(fvmiddleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
	r.Use(fvmiddleware.Metrics())

	// 健康检查不需要鉴权
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		status := http.StatusOK
		body := map[string]any{"status": "ok"}

		if health != nil {
			ctx, cancel := context.WithTimeout(req.Context(), 3*time.Second)
			defer cancel()

			deps := health(ctx)
			body["dependencies"] = deps
			for _, healthy := range deps {
				if !healthy {
					status = http.StatusServiceUnavailable
					body["status"] = "degraded"
					break
				}
			}
		}

		writeJSON(w, status, body)
	})

	// Prometheus 指标端点
	r.Handle("/metrics", promhttp.Handler())

	if fileHandler != nil {
		r.Group(func(r chi.Router) {
			if cfg.AuthEnabled {
				r.Use(fvmiddleware.JWTAuth(cfg.JWTSecret, cfg.JWKSURL))
			} else {
				// 开发模式：身份来自请求头
				r.Use(fvmiddleware.HeaderAuth())
			}
			fileHandler.RegisterRoutes(r)
		})
	}

	return r
}
