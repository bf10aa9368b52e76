// Package router provides HTTP routing, middleware configuration, and server setup for the web application
package router

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/amirphl/marketplace-settlement/app/dto"
	"github.com/amirphl/marketplace-settlement/app/handlers"
	"github.com/amirphl/marketplace-settlement/app/middleware"
	"github.com/amirphl/marketplace-settlement/config"
	"github.com/amirphl/marketplace-settlement/utils"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/helmet"
	"github.com/gofiber/fiber/v3/middleware/limiter"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthCheck reports whether a dependency is reachable
type HealthCheck func(ctx context.Context) error

// Router interface for HTTP routing
type Router interface {
	SetupRoutes()
	Start(address string) error
	GetApp() *fiber.App
}

// FiberRouter implements Router using Fiber v3
type FiberRouter struct {
	app               *fiber.App
	cfg               *config.ProductionConfig
	settlementHandler handlers.SettlementHandlerInterface
	commissionHandler handlers.CommissionHandlerInterface
	auditHandler      handlers.AuditHandlerInterface
	authMiddleware    *middleware.AuthMiddleware
	health            map[string]HealthCheck
	logger            *slog.Logger
}

// NewFiberRouter creates a new Fiber router
func NewFiberRouter(
	cfg *config.ProductionConfig,
	settlementHandler handlers.SettlementHandlerInterface,
	commissionHandler handlers.CommissionHandlerInterface,
	auditHandler handlers.AuditHandlerInterface,
	authMiddleware *middleware.AuthMiddleware,
	health map[string]HealthCheck,
	logger *slog.Logger,
) Router {
	fiberCfg := fiber.Config{
		AppName:      "Marketplace Settlement API",
		ServerHeader: "marketplace-settlement",
		ErrorHandler: errorHandler,
		BodyLimit:    cfg.Server.BodyLimit,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	}
	if cfg.Server.ProxyHeader != "" {
		fiberCfg.ProxyHeader = cfg.Server.ProxyHeader
		fiberCfg.TrustProxy = len(cfg.Server.TrustedProxies) > 0
		fiberCfg.TrustProxyConfig = fiber.TrustProxyConfig{Proxies: cfg.Server.TrustedProxies}
	}

	return &FiberRouter{
		app:               fiber.New(fiberCfg),
		cfg:               cfg,
		settlementHandler: settlementHandler,
		commissionHandler: commissionHandler,
		auditHandler:      auditHandler,
		authMiddleware:    authMiddleware,
		health:            health,
		logger:            logger,
	}
}

// SetupRoutes configures all application routes
func (r *FiberRouter) SetupRoutes() {
	r.setupMiddleware()

	if r.cfg.Metrics.Enabled {
		r.app.Get(r.cfg.Metrics.Path, adaptor.HTTPHandler(promhttp.Handler()))
	}

	api := r.app.Group("/api/v1")

	// Health check route (no rate limiting)
	api.Get("/health", r.healthCheck)

	if r.cfg.Deployment.Environment == "development" || r.cfg.Deployment.Environment == "local" {
		api.Get("/docs", r.getAPIDocumentation)
	}

	api.Use(limiter.New(limiter.Config{
		Max:        2000,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(dto.APIResponse{
				Success: false,
				Message: "Too many requests. Please try again later.",
				Error:   dto.ErrorDetail{Code: "RATE_LIMIT_EXCEEDED"},
			})
		},
		Next: func(c fiber.Ctx) bool {
			// gateway redeliveries must never be throttled
			return c.Path() == "/api/v1/webhooks/gateway"
		},
	}))

	// Gateway webhooks
	api.Post("/webhooks/gateway", r.settlementHandler.GatewayWebhook)

	// Split payments
	splitPayments := api.Group("/split-payments")
	splitPayments.Post("/", r.settlementHandler.CreateSplitPayment)
	splitPayments.Get("/:id", r.settlementHandler.GetSplitPayment)
	splitPayments.Post("/:id/initiate", r.settlementHandler.InitiatePayment)
	splitPayments.Post("/:id/capture", r.settlementHandler.CaptureSplitPayment)
	splitPayments.Post("/:id/refund", r.settlementHandler.RefundSplitPayment)

	api.Post("/payment-collections/capture", r.settlementHandler.CaptureOrderSet)
	api.Get("/orders/:order_id/payout", r.settlementHandler.GetOrderPayout)

	// Commission
	commission := api.Group("/commission")
	commission.Post("/resolve", r.commissionHandler.ResolveCommission)
	commission.Post("/lines", r.commissionHandler.CreateCommissionLines)

	// Admin
	admin := api.Group("/admin", r.authMiddleware.AdminAuthenticate())
	admin.Get("/commission-rules", r.commissionHandler.ListCommissionRules)
	admin.Post("/commission-rules", r.commissionHandler.CreateCommissionRule)
	admin.Put("/commission-rules/:id", r.commissionHandler.UpdateCommissionRule)
	admin.Delete("/commission-rules/:id", r.commissionHandler.DeleteCommissionRule)
	admin.Get("/audit-logs", r.auditHandler.ListAuditLogs)

	// Not found handler
	r.app.Use(r.notFoundHandler)

	r.logger.Info("routes configured")
}

// setupMiddleware configures global middleware
func (r *FiberRouter) setupMiddleware() {
	// Request ID middleware - must be first
	r.app.Use(requestid.New(requestid.Config{
		Header: fiber.HeaderXRequestID,
		Generator: func() string {
			return uuid.NewString()
		},
	}))

	r.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c fiber.Ctx, e any) {
			r.logger.Error("panic recovered",
				"request_id", requestid.FromContext(c),
				"error", e,
				"path", c.Path(),
				"method", c.Method(),
				"ip", c.IP(),
			)
		},
	}))

	if r.cfg.Metrics.Enabled {
		r.app.Use(middleware.Metrics())
	}

	r.app.Use(helmet.New(helmet.Config{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
		ReferrerPolicy:     "no-referrer",
	}))

	r.app.Use(logger.New(logger.Config{
		Format:     `{"time":"${time}","request_id":"${respHeader:X-Request-ID}","level":"info","method":"${method}","path":"${path}","ip":"${ip}","status":${status},"latency":"${latency}","bytes_in":${bytesReceived},"bytes_out":${bytesSent}}` + "\n",
		TimeFormat: time.RFC3339,
		TimeZone:   "UTC",
		Next: func(c fiber.Ctx) bool {
			return c.Path() == "/api/v1/health" || c.Path() == r.cfg.Metrics.Path
		},
	}))
}

func (r *FiberRouter) Start(address string) error {
	r.logger.Info("starting server", "address", address)
	return r.app.Listen(address)
}

func (r *FiberRouter) GetApp() *fiber.App {
	return r.app
}

func (r *FiberRouter) healthCheck(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	checks := make(map[string]string, len(r.health))
	healthy := true
	for name, check := range r.health {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			healthy = false
			continue
		}
		checks[name] = "ok"
	}

	data := fiber.Map{
		"status":    "ok",
		"checks":    checks,
		"timestamp": utils.UTCNow().Unix(),
		"version":   r.cfg.Deployment.Version,
		"service":   "marketplace-settlement",
	}
	if !healthy {
		data["status"] = "degraded"
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.APIResponse{
			Success: false,
			Message: "Service is degraded",
			Data:    data,
		})
	}

	return c.JSON(dto.APIResponse{
		Success: true,
		Message: "Service is healthy",
		Data:    data,
	})
}

func (r *FiberRouter) getAPIDocumentation(c fiber.Ctx) error {
	return c.JSON(dto.APIResponse{
		Success: true,
		Message: "API documentation retrieved successfully",
		Data: fiber.Map{
			"title":     "Marketplace Settlement API",
			"version":   r.cfg.Deployment.Version,
			"endpoints": GetRouteDocumentation(),
		},
	})
}

func (r *FiberRouter) notFoundHandler(c fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(dto.APIResponse{
		Success: false,
		Message: "Endpoint not found",
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

// errorHandler renders errors that escaped the handlers, such as fiber's own 404/405 or a panic
func errorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code: "HTTP_ERROR",
		},
	})
}

// GetRouteDocumentation returns a short description of every route
func GetRouteDocumentation() []map[string]string {
	return []map[string]string{
		{"method": "POST", "path": "/api/v1/webhooks/gateway", "description": "Apply a payment gateway event to the ledger"},
		{"method": "POST", "path": "/api/v1/split-payments", "description": "Open the ledger row of one seller order"},
		{"method": "GET", "path": "/api/v1/split-payments/:id", "description": "Get a split payment"},
		{"method": "POST", "path": "/api/v1/split-payments/:id/initiate", "description": "Open a gateway payment intent"},
		{"method": "POST", "path": "/api/v1/split-payments/:id/capture", "description": "Capture an authorized split payment"},
		{"method": "POST", "path": "/api/v1/split-payments/:id/refund", "description": "Refund part or all of a captured split payment"},
		{"method": "POST", "path": "/api/v1/payment-collections/capture", "description": "Capture every split payment of a checkout"},
		{"method": "GET", "path": "/api/v1/orders/:order_id/payout", "description": "Seller payout of an order"},
		{"method": "POST", "path": "/api/v1/commission/resolve", "description": "Resolve the commission rule of a line item"},
		{"method": "POST", "path": "/api/v1/commission/lines", "description": "Write per line commissions of an order"},
		{"method": "GET", "path": "/api/v1/admin/commission-rules", "description": "List commission rules"},
		{"method": "POST", "path": "/api/v1/admin/commission-rules", "description": "Create a commission rule"},
		{"method": "PUT", "path": "/api/v1/admin/commission-rules/:id", "description": "Update a commission rule"},
		{"method": "DELETE", "path": "/api/v1/admin/commission-rules/:id", "description": "Soft delete a commission rule"},
		{"method": "GET", "path": "/api/v1/admin/audit-logs", "description": "List audit entries by split payment, entity, action or failure"},
		{"method": "GET", "path": "/api/v1/health", "description": "Health check"},
	}
}
