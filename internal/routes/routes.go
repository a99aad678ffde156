package routes

import (
	"log/slog"
	"time"

	"github.com/BradenHooton/otpflow/internal/handlers"
	middlewareCustom "github.com/BradenHooton/otpflow/internal/middleware"
	pkghttp "github.com/BradenHooton/otpflow/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Options configures the authority router
type Options struct {
	Env                string
	AllowedOrigins     []string
	IPConfig           *pkghttp.IPConfig
	RateLimitPerMinute int
	RequestTimeout     time.Duration
	Logger             *slog.Logger
}

// NewRouter builds the authority router with its middleware chain
func NewRouter(authHandler *handlers.AuthHandler, opts Options) chi.Router {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: opts.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.NewCORSConfig(opts.AllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(opts.Logger, opts.IPConfig))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(opts.RequestTimeout))

	router.Get("/health", handlers.Health)

	RegisterRoutes(router, authHandler, middlewareCustom.RateLimitConfig{
		RequestsPerMinute: opts.RateLimitPerMinute,
		IPConfig:          opts.IPConfig,
	})

	return router
}

// RegisterRoutes registers the OTP and login endpoints under /auth, all rate limited per client IP
func RegisterRoutes(router chi.Router, authHandler *handlers.AuthHandler, rateLimit middlewareCustom.RateLimitConfig) {
	router.Route("/auth", func(r chi.Router) {
		r.Use(middlewareCustom.RateLimitByIP(rateLimit))

		// Signup
		r.Post("/signup", authHandler.Signup)
		r.Post("/verify-otp", authHandler.VerifySignup)
		r.Post("/resend-otp", authHandler.ResendSignup)

		// Password reset
		r.Post("/forgot-password", authHandler.ForgotPassword)
		r.Post("/verify-forgot-otp", authHandler.VerifyReset)
		r.Post("/resend-forgot-otp", authHandler.ResendReset)
		r.Post("/reset-password", authHandler.ResetPassword)

		r.Post("/login", authHandler.Login)
	})
}
