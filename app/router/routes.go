// Package router provides HTTP routing, middleware configuration, and server setup for the web application
package router

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/amirphl/magpie/app/dto"
	"github.com/amirphl/magpie/app/handlers"
	"github.com/amirphl/magpie/app/middleware"
	"github.com/amirphl/magpie/config"
	_ "github.com/amirphl/magpie/docs"
	"github.com/amirphl/magpie/utils"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cache"
	"github.com/gofiber/fiber/v3/middleware/compress"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/helmet"
	"github.com/gofiber/fiber/v3/middleware/limiter"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/swaggo/swag"
)

// Router interface for HTTP routing
type Router interface {
	SetupRoutes()
	Start(address string) error
	GetApp() *fiber.App
}

// Handlers groups every HTTP handler the router mounts
type Handlers struct {
	Link     handlers.LinkHandlerInterface
	Public   handlers.PublicHandlerInterface
	Auth     handlers.AuthHandlerInterface
	Category handlers.CategoryHandlerInterface
	Settings handlers.SettingsHandlerInterface
	Token    handlers.APITokenHandlerInterface
	Site     handlers.SiteHandlerInterface
}

// FiberRouter implements Router using Fiber v3
type FiberRouter struct {
	app      *fiber.App
	cfg      *config.ProductionConfig
	handlers Handlers
	auth     *middleware.AuthMiddleware
	log      logrus.FieldLogger
}

// NewFiberRouter creates a new Fiber router
func NewFiberRouter(cfg *config.ProductionConfig, h Handlers, auth *middleware.AuthMiddleware, logger logrus.FieldLogger) Router {
	log := logger.WithField("component", "router")
	app := fiber.New(fiber.Config{
		AppName:      "Magpie API",
		ServerHeader: "Magpie",
		ErrorHandler: newErrorHandler(log),
		BodyLimit:    cfg.Server.BodyLimit,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
		TrustProxy:   len(cfg.Server.TrustedProxies) > 0,
		TrustProxyConfig: fiber.TrustProxyConfig{
			Proxies: cfg.Server.TrustedProxies,
		},
		ProxyHeader: cfg.Server.ProxyHeader,
	})

	return &FiberRouter{
		app:      app,
		cfg:      cfg,
		handlers: h,
		auth:     auth,
		log:      log,
	}
}

// SetupRoutes configures all application routes
func (r *FiberRouter) SetupRoutes() {
	r.setupMiddleware()

	// Static artifacts live at the site root
	r.app.Get("/sitemap.xml", r.handlers.Public.Sitemap)
	r.app.Get("/feed.xml", r.handlers.Public.Feed)

	if r.cfg.Metrics.Enabled {
		r.app.Get(r.cfg.Metrics.Path, adaptor.HTTPHandler(promhttp.Handler()))
	}
	if r.cfg.Server.EnableSwagger {
		r.app.Get("/swagger/doc.json", r.serveSwaggerJSON)
	}

	api := r.app.Group("/api/v1")
	api.Get("/health", r.healthCheck)

	api.Use(r.rateLimiter(r.cfg.Security.GlobalRateLimit, func(c fiber.Ctx) bool {
		return c.Path() == "/api/v1/health"
	}))

	// Public read path
	publicCache := r.publicCache()
	api.Get("/links", publicCache, r.handlers.Public.ListLinks)
	api.Get("/links/:id", r.handlers.Public.GetLink)
	api.Get("/categories", publicCache, r.handlers.Public.ListCategories)
	api.Get("/stats", publicCache, r.handlers.Public.Stats)

	// API token or admin
	api.Post("/links", r.auth.TokenOrAdmin(), r.handlers.Link.Ingest)
	api.Get("/auth/verify", r.auth.TokenOrAdmin(), r.handlers.Auth.Verify)

	admin := api.Group("/admin")

	// Unauthenticated admin entry points get the stricter limit
	authLimit := r.rateLimiter(r.cfg.Security.AuthRateLimit, nil)
	admin.Post("/login", authLimit, r.handlers.Auth.Login)
	admin.Post("/captcha/init", authLimit, r.handlers.Auth.InitCaptcha)

	protected := admin.Group("", r.auth.Admin())
	protected.Post("/logout", r.handlers.Auth.Logout)
	protected.Put("/password", r.handlers.Auth.ChangePassword)

	// Static segments are registered before :id
	protected.Get("/links", r.handlers.Link.AdminList)
	protected.Get("/links/export", r.handlers.Link.Export)
	protected.Post("/links/batch", r.handlers.Link.Batch)
	protected.Get("/links/:id", r.handlers.Link.AdminGet)
	protected.Put("/links/:id", r.handlers.Link.AdminUpdate)
	protected.Delete("/links/:id", r.handlers.Link.AdminDelete)
	protected.Post("/links/:id/confirm", r.handlers.Link.Confirm)
	protected.Post("/links/:id/reanalyze", r.handlers.Link.Reanalyze)

	protected.Get("/categories", r.handlers.Category.List)
	protected.Post("/categories", r.handlers.Category.Create)
	protected.Put("/categories/reorder", r.handlers.Category.Reorder)
	protected.Put("/categories/:id", r.handlers.Category.Update)
	protected.Delete("/categories/:id", r.handlers.Category.Delete)

	protected.Get("/settings", r.handlers.Settings.Get)
	protected.Put("/settings", r.handlers.Settings.Update)
	protected.Post("/settings/test-ai", r.handlers.Settings.TestAI)

	protected.Get("/tokens", r.handlers.Token.List)
	protected.Post("/tokens", r.handlers.Token.Create)
	protected.Delete("/tokens/:id", r.handlers.Token.Revoke)

	protected.Get("/logs", r.handlers.Site.ListOperationLogs)
	protected.Post("/regenerate", r.handlers.Site.Regenerate)

	r.app.Use(r.notFoundHandler)

	r.log.Info("Routes configured")
}

func (r *FiberRouter) setupMiddleware() {
	// Request ID middleware - must be first
	r.app.Use(requestid.New(requestid.Config{
		Header:    fiber.HeaderXRequestID,
		Generator: uuid.NewString,
	}))

	r.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c fiber.Ctx, e any) {
			r.log.WithFields(logrus.Fields{
				"request_id": requestid.FromContext(c),
				"path":       c.Path(),
				"method":     c.Method(),
				"ip":         c.IP(),
			}).Errorf("Panic recovered: %v", e)
		},
	}))

	r.app.Use(helmet.New(helmet.Config{
		XSSProtection:             "0",
		ContentTypeNosniff:        "nosniff",
		XFrameOptions:             r.cfg.Security.XFrameOptions,
		HSTSMaxAge:                r.cfg.Security.HSTSMaxAge,
		ContentSecurityPolicy:     r.cfg.Security.CSPPolicy,
		ReferrerPolicy:            r.cfg.Security.ReferrerPolicy,
		CrossOriginResourcePolicy: "cross-origin",
		XDNSPrefetchControl:       "off",
		XDownloadOptions:          "noopen",
		XPermittedCrossDomain:     "none",
	}))

	r.app.Use(cors.New(cors.Config{
		AllowOrigins:     r.cfg.Security.AllowedOrigins,
		AllowMethods:     r.cfg.Security.AllowedMethods,
		AllowHeaders:     r.cfg.Security.AllowedHeaders,
		ExposeHeaders:    []string{fiber.HeaderXRequestID},
		AllowCredentials: r.cfg.Security.AllowCredentials,
		MaxAge:           r.cfg.Security.CORSMaxAge,
	}))

	if r.cfg.Server.EnableCompression {
		r.app.Use(compress.New(compress.Config{
			Level: compress.LevelBestSpeed,
			Next: func(c fiber.Ctx) bool {
				// the workbook is already zipped
				return strings.HasSuffix(c.Path(), "/links/export")
			},
		}))
	}

	if r.cfg.Metrics.Enabled {
		r.app.Use(middleware.Metrics())
	}

	if r.cfg.Logging.AccessLog {
		r.app.Use(logger.New(logger.Config{
			Format:     `{"time":"${time}","request_id":"${respHeader:X-Request-ID}","level":"info","method":"${method}","path":"${path}","ip":"${ip}","status":${status},"latency":"${latency}","bytes_in":${bytesReceived},"bytes_out":${bytesSent}}` + "\n",
			TimeFormat: time.RFC3339,
			TimeZone:   "UTC",
			Next: func(c fiber.Ctx) bool {
				return c.Path() == "/api/v1/health" || c.Path() == r.cfg.Metrics.Path
			},
		}))
	}
}

func (r *FiberRouter) rateLimiter(max int, next func(c fiber.Ctx) bool) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: r.cfg.Security.RateLimitWindow,
		KeyGenerator: func(c fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(dto.APIResponse{
				Success: false,
				Message: "Too many requests. Please try again later.",
				Error: dto.ErrorDetail{
					Code: "RATE_LIMIT_EXCEEDED",
				},
			})
		},
		Next: next,
	})
}

// publicCache keeps public listings in memory for a short TTL, keyed by the full URL
func (r *FiberRouter) publicCache() fiber.Handler {
	ttl := r.cfg.Server.PublicCacheTTL
	if ttl <= 0 {
		return func(c fiber.Ctx) error { return c.Next() }
	}
	return cache.New(cache.Config{
		Expiration:   ttl,
		CacheControl: true,
		KeyGenerator: func(c fiber.Ctx) string {
			return string(c.Request().URI().RequestURI())
		},
	})
}

// Start starts the HTTP server
func (r *FiberRouter) Start(address string) error {
	r.log.WithField("address", address).Info("Starting server")
	return r.app.Listen(address, fiber.ListenConfig{DisableStartupMessage: true})
}

// GetApp returns the Fiber app instance
func (r *FiberRouter) GetApp() *fiber.App {
	return r.app
}

// healthCheck godoc
// @Summary Health check
// @Tags System
// @Produce json
// @Success 200 {object} dto.APIResponse
// @Router /api/v1/health [get]
func (r *FiberRouter) healthCheck(c fiber.Ctx) error {
	return c.JSON(dto.APIResponse{
		Success: true,
		Message: "Service is healthy",
		Data: fiber.Map{
			"status":    "ok",
			"timestamp": utils.UTCNow().Unix(),
			"service":   "magpie-api",
		},
	})
}

func (r *FiberRouter) serveSwaggerJSON(c fiber.Ctx) error {
	doc, err := swag.ReadDoc()
	if err != nil {
		r.log.WithError(err).Error("Failed to render swagger document")
		return c.Status(fiber.StatusInternalServerError).JSON(dto.APIResponse{
			Success: false,
			Message: "Failed to load Swagger documentation",
			Error: dto.ErrorDetail{
				Code: "SWAGGER_LOAD_ERROR",
			},
		})
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.SendString(doc)
}

func (r *FiberRouter) notFoundHandler(c fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(dto.APIResponse{
		Success: false,
		Message: "The requested resource was not found",
		Error: dto.ErrorDetail{
			Code: "NOT_FOUND",
			Details: fiber.Map{
				"path":       c.Path(),
				"method":     c.Method(),
				"request_id": requestid.FromContext(c),
			},
		},
	})
}

func newErrorHandler(log logrus.FieldLogger) fiber.ErrorHandler {
	return func(c fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		errorCode := "INTERNAL_ERROR"
		message := "An internal server error occurred"

		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
			if code < fiber.StatusInternalServerError {
				errorCode = strings.ToUpper(strings.ReplaceAll(http.StatusText(code), " ", "_"))
				message = e.Message
			}
		}
		if code >= fiber.StatusInternalServerError {
			log.WithError(err).WithFields(logrus.Fields{
				"path":       c.Path(),
				"method":     c.Method(),
				"request_id": requestid.FromContext(c),
			}).Error("Unhandled error")
		}

		return c.Status(code).JSON(dto.APIResponse{
			Success: false,
			Message: message,
			Error: dto.ErrorDetail{
				Code: errorCode,
				Details: fiber.Map{
					"request_id": requestid.FromContext(c),
				},
			},
		})
	}
}
