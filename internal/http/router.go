// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, compression,
// metrics, authentication, idempotency, rate limiting, CORS and security
// headers.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/go-library-backend/internal/config"
	"github.com/tbourn/go-library-backend/internal/domain"
	"github.com/tbourn/go-library-backend/internal/http/handlers"
	"github.com/tbourn/go-library-backend/internal/http/middleware"
)

const (
	healthTimeout     = 2 * time.Second
	profileImageRoute = "/user/:id/profile-image"

	// tokens spent per call on the credential endpoints
	credentialCost = 5
)

// Store is the slice of the persistence layer the router needs directly:
// health checks and idempotency lookups.
type Store interface {
	Ping(ctx context.Context) error
	GetIdempotency(ctx context.Context, subject, bookID, key string, now time.Time) (*domain.Idempotency, error)
}

// Deps are the collaborators injected into RegisterRoutes.
type Deps struct {
	Services handlers.Services
	Store    Store
	Tokens   middleware.TokenParser
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Gzip
//  6. Body size limiter (larger cap on the image upload)
//  7. Metrics
//  8. Authenticate: resolve the bearer token, if any
//  9. Idempotency validator (before rate limiter to allow bypass on replay)
//  10. Rate limiter (per user/IP, bypass on replay)
//  11. CORS and security headers
func RegisterRoutes(r *gin.Engine, d Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key"},
	}))
	r.Use(middleware.Recovery())
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))
	r.Use(limitBody(cfg.MaxBodyBytes, map[string]int64{
		joinPath(cfg.APIBasePath, profileImageRoute): cfg.Media.MaxUploadBytes,
	}))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(middleware.Authenticate(d.Tokens))
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200},
		func(ctx context.Context, subject, bookID, key string, now time.Time) (bool, error) {
			rec, err := d.Store.GetIdempotency(ctx, subject, bookID, key, now)
			if err != nil || rec == nil {
				return false, nil
			}
			return true, nil
		},
	))

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP()).
		WithCost(credentialCost,
			joinPath(cfg.APIBasePath, "/login"),
			joinPath(cfg.APIBasePath, "/admin/login"),
			joinPath(cfg.APIBasePath, "/register"),
			joinPath(cfg.APIBasePath, "/create-admin"),
		)
	r.Use(rl.Handler())

	useCORS(r, cfg.CORS.AllowedOrigins)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:     cfg.Security.EnableHSTS,
		HSTSMaxAge:     cfg.Security.HSTSMaxAge,
		PrivateNoStore: true,
		EnablePolicy:   true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", health(d.Store))

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(d.Services)
	api := groupWithPrefix(r, cfg.APIBasePath)
	authed := api.Group("", middleware.RequireAuth())
	admin := api.Group("", middleware.RequireAdmin())

	// Reviews
	api.GET("/reviews/:bookId", h.ListReviews)
	api.GET("/reviews/:bookId/rating", h.RatingStats)
	api.GET("/reviews/:bookId/user/:userId", h.GetUserReview)
	api.GET("/reviews/user/:userId", h.ListUserReviews)
	api.POST("/reviews", h.CreateReview)
	api.PUT("/reviews/:reviewId", h.UpdateReview)
	api.DELETE("/reviews/:reviewId", h.DeleteReview)

	// Catalog
	api.GET("/books", h.ListBooks)
	api.GET("/books/search", h.SearchBooks)
	api.GET("/books/:id", h.GetBook)
	api.POST("/books/:id/rate", h.QuickRate)
	admin.POST("/admin/books", h.CreateBook)
	admin.PUT("/admin/books/:id", h.UpdateBook)
	admin.DELETE("/admin/books/:id", h.DeleteBook)
	admin.GET("/admin/stats", h.AdminStats)

	// Users and auth
	api.POST("/register", h.Register)
	api.POST("/login", h.Login)
	api.POST("/admin/login", h.AdminLogin)
	api.POST("/create-admin", h.CreateAdmin)
	admin.GET("/users", h.ListUsers)
	authed.GET("/user/:id", h.GetUser)
	authed.PUT("/user/:id", h.UpdateUser)
	authed.POST(profileImageRoute, h.UploadProfileImage)
	authed.DELETE(profileImageRoute, h.DeleteProfileImage)
}

// health reports liveness plus store reachability.
func health(st Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()
		if err := st.Ping(ctx); err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Msg("health: store ping failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func useCORS(r *gin.Engine, origins []string) {
	base := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match", middleware.HeaderIdempotencyKey},
		ExposeHeaders:    []string{"X-Request-ID", "ETag", middleware.HeaderIdempotencyReplayed, "Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		base.AllowAllOrigins = true
		r.Use(cors.New(base))
		return
	}
	base.AllowOrigins = origins
	r.Use(cors.New(base))
}

// limitBody caps request bodies with http.MaxBytesReader. Routes listed in
// overrides (by full path) get their own cap. Reads past the cap fail with
// *http.MaxBytesError.
func limitBody(maxBytes int64, overrides map[string]int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := maxBytes
		if n, ok := overrides[c.FullPath()]; ok {
			limit = n
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}

func joinPath(prefix, p string) string {
	if prefix == "" || prefix == "/" {
		return p
	}
	return prefix + p
}
