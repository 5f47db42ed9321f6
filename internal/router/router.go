package router

import (
	"context"
	"time"

	"sourcedpos/internal/authz"
	"sourcedpos/internal/config"
	"sourcedpos/internal/handler"
	"sourcedpos/internal/middleware"
	"sourcedpos/internal/obs"
	"sourcedpos/internal/repository"
	"sourcedpos/internal/service"
	"sourcedpos/internal/worker"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// New wires all dependencies and returns a configured Gin engine.
// Dependency graph: Handler ← Service ← Repository ← DB/Redis
// Background helpers started here stop when ctx is done.
func New(ctx context.Context, cfg *config.Config, db *gorm.DB, rdb *redis.Client) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	obs.MustRegisterMetrics(cfg.MetricsNamespace, nil)

	r := gin.New()

	// Global middleware chain (order matters)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS(cfg.AllowedOrigins()))
	r.Use(middleware.ErrorHandler())

	// ── Repositories ─────────────────────────────────────────────────────────
	productRepo := repository.NewProductRepository(db)
	saleRepo := repository.NewSaleRepository(db)
	movementRepo := repository.NewStockMovementRepository(db)
	settlementRepo := repository.NewSettlementRepository(db)
	partExchangeRepo := repository.NewPartExchangeRepository(db)
	cashRepo := repository.NewCashRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	commissionRepo := repository.NewCommissionRepository(db)

	// ── Services ─────────────────────────────────────────────────────────────
	authorizer := authz.RoleAuthorizer{}

	var alerts service.StockAlertPublisher
	if cfg.LowStockAlerts {
		alerts = worker.NewDispatcher(rdb)
	}

	saleSvc := service.NewSaleService(service.SaleServiceDeps{
		Sales:         saleRepo,
		Products:      productRepo,
		PartExchanges: partExchangeRepo,
		Settlements:   settlementRepo,
		Cash:          cashRepo,
		Audit:         auditRepo,
		Ledger:        service.NewStockLedger(productRepo, movementRepo),
		Linker:        service.NewSettlementLinker(settlementRepo),
		Authz:         authorizer,
		Alerts:        alerts,
	})
	commissionSvc := service.NewCommissionService(saleRepo, commissionRepo, auditRepo, authorizer, service.CommissionConfig{
		Enabled:     cfg.CommissionEnabled,
		DefaultRate: cfg.CommissionRate(),
		Basis:       cfg.CommissionBasis,
	})

	// ── Handlers ─────────────────────────────────────────────────────────────
	salesH := handler.NewSalesHandler(saleSvc)
	commissionH := handler.NewCommissionHandler(commissionSvc)

	// ── Routes ───────────────────────────────────────────────────────────────

	// Public
	r.GET("/health", handler.Health(db, rdb))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Protected routes
	jwtMW := middleware.JWTAuth(cfg.JWTSecret)
	v1 := r.Group("/v1", jwtMW, middleware.RateLimiter(ctx, cfg.RateLimitPerMinute, time.Minute))
	{
		can := func(c authz.Capability) gin.HandlerFunc { return middleware.RequireCapability(authorizer, c) }

		sales := v1.Group("/sales")
		{
			sales.POST("/quote", can(authz.CapSell), salesH.Quote)
			sales.POST("", can(authz.CapSell), salesH.Commit)
			sales.GET("", can(authz.CapSell), salesH.List)
			sales.GET("/summary", can(authz.CapSell), salesH.Summary)
			sales.GET("/:id", can(authz.CapSell), salesH.Get)
			sales.PATCH("/:id", can(authz.CapEditSales), salesH.Edit)
			sales.POST("/:id/void", can(authz.CapVoidSales), salesH.Void)
			sales.POST("/:id/part-exchanges", can(authz.CapAddPartExchange), salesH.AddPartExchange)

			sales.GET("/:id/commission", can(authz.CapViewCommissions), commissionH.ForSale)
			sales.PUT("/:id/commission-override", can(authz.CapEditSales), commissionH.SetOverride)
			sales.DELETE("/:id/commission-override", can(authz.CapEditSales), commissionH.ClearOverride)
		}

		v1.GET("/commissions/summary", can(authz.CapViewCommissions), commissionH.StaffSummary)
	}

	// Swagger UI, only enabled outside production
	if cfg.Env != "production" {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	return r
}
