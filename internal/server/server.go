package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	analyticsdomain "github.com/smallbiznis/settlement/internal/analytics/domain"
	auditdomain "github.com/smallbiznis/settlement/internal/audit/domain"
	"github.com/smallbiznis/settlement/internal/authorization"
	balancedomain "github.com/smallbiznis/settlement/internal/balance/domain"
	"github.com/smallbiznis/settlement/internal/config"
	"github.com/smallbiznis/settlement/internal/observability"
	obslogger "github.com/smallbiznis/settlement/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/settlement/internal/observability/metrics"
	obstracing "github.com/smallbiznis/settlement/internal/observability/tracing"
	payoutdomain "github.com/smallbiznis/settlement/internal/payout/domain"
	"github.com/smallbiznis/settlement/internal/provider/adapters"
	"github.com/smallbiznis/settlement/internal/ratelimit"
	refunddomain "github.com/smallbiznis/settlement/internal/refund/domain"
	revsharedomain "github.com/smallbiznis/settlement/internal/revenueshare/domain"
	txdomain "github.com/smallbiznis/settlement/internal/transaction/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(RunHTTP),
)

type EngineParams struct {
	fx.In

	ObsCfg      observability.Config
	HTTPMetrics *obsmetrics.HTTPMetrics `optional:"true"`
	DB          *gorm.DB                `optional:"true"`
}

func NewEngine(p EngineParams) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           p.ObsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(p.HTTPMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", healthHandler(p.DB))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

func healthHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db != nil {
			sqlDB, err := db.DB()
			if err == nil {
				ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
				err = sqlDB.PingContext(ctx)
				cancel()
			}
			if err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": "unreachable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func RunHTTP(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine       *gin.Engine
	log          *zap.Logger
	authzSvc     authorization.Service
	transactions txdomain.Service
	refunds      refunddomain.Service
	payouts      payoutdomain.Service
	balances     balancedomain.Service
	revenueShare revsharedomain.Service
	analytics    analyticsdomain.Service
	providers    *adapters.Registry
	audit        auditdomain.Service
	limiter      *ratelimit.CallbackLimiter
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Log          *zap.Logger
	AuthzSvc     authorization.Service
	Transactions txdomain.Service
	Refunds      refunddomain.Service
	Payouts      payoutdomain.Service
	Balances     balancedomain.Service
	RevenueShare revsharedomain.Service
	Analytics    analyticsdomain.Service
	Providers    *adapters.Registry
	Audit        auditdomain.Service        `optional:"true"`
	Limiter      *ratelimit.CallbackLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:       p.Gin,
		log:          p.Log.Named("http.server"),
		authzSvc:     p.AuthzSvc,
		transactions: p.Transactions,
		refunds:      p.Refunds,
		payouts:      p.Payouts,
		balances:     p.Balances,
		revenueShare: p.RevenueShare,
		analytics:    p.Analytics,
		providers:    p.Providers,
		audit:        p.Audit,
		limiter:      p.Limiter,
	}
	s.registerAPIRoutes()
	s.registerAdminRoutes()
	s.registerFallback()
	return s
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api/v1")

	// -------- Payments --------
	api.POST("/payments/quote", s.QuotePayment)
	api.POST("/payments", s.InitializePayment)
	api.GET("/payments", s.ListPayments)
	api.GET("/payments/:id", s.GetPayment)
	api.POST("/payments/:id/verify", s.VerifyPayment)
	api.POST("/payments/:id/cancel", s.CancelPayment)
	api.GET("/payments/:id/notes", s.ListPaymentNotes)
	api.POST("/payments/:id/notes", s.AddPaymentNote)
	api.GET("/payments/:id/refunds", s.ListPaymentRefunds)

	// -------- Provider callbacks --------
	api.POST("/payments/callbacks/:provider", s.limitCallbacks(), s.HandleProviderCallback)

	// -------- Refunds --------
	api.POST("/refunds", s.RequestRefund)
	api.GET("/refunds/:id", s.GetRefund)
	api.POST("/refunds/:id/verify", s.VerifyRefund)

	// -------- Sellers --------
	api.GET("/sellers/:id/balances/:currency", s.GetSellerBalance)
	api.GET("/sellers/:id/balances/:currency/entries", s.ListSellerBalanceEntries)
	api.POST("/sellers/:id/payout-accounts", s.RegisterPayoutAccount)
	api.GET("/sellers/:id/payout-accounts", s.ListPayoutAccounts)

	// -------- Payouts --------
	api.POST("/payouts", s.CreatePayout)
	api.GET("/payouts", s.ListPayouts)
	api.GET("/payouts/:id", s.GetPayout)
	api.GET("/payouts/:id/items", s.ListPayoutItems)
	api.POST("/payouts/:id/verify", s.VerifyPayout)
	api.POST("/payouts/:id/cancel", s.authorizeAction(authorization.ObjectPayout, authorization.ActionPayoutCancel), s.CancelPayout)
	api.GET("/payouts/:id/statement", s.GetPayoutStatement)

	// -------- Reporting --------
	api.GET("/analytics", s.authorizeAction(authorization.ObjectAnalytics, authorization.ActionAnalyticsView), s.GetAnalytics)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/api/v1/admin")

	admin.GET("/revenue-shares",
		s.authorizeAction(authorization.ObjectRevenueShare, authorization.ActionRevenueShareView),
		s.ListRevenueShares)
	admin.POST("/revenue-shares",
		s.authorizeAction(authorization.ObjectRevenueShare, authorization.ActionRevenueShareCreate),
		s.CreateRevenueShare)
	admin.GET("/revenue-shares/:id",
		s.authorizeAction(authorization.ObjectRevenueShare, authorization.ActionRevenueShareView),
		s.GetRevenueShare)
	admin.POST("/revenue-shares/:id/revise",
		s.authorizeAction(authorization.ObjectRevenueShare, authorization.ActionRevenueShareRevise),
		s.ReviseRevenueShare)
	admin.POST("/revenue-shares/:id/default",
		s.authorizeAction(authorization.ObjectRevenueShare, authorization.ActionRevenueShareDefault),
		s.SetDefaultRevenueShare)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
