package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"

	"github.com/trackvault/trackvault/internal/collection"
	collectiondomain "github.com/trackvault/trackvault/internal/collection/domain"
	"github.com/trackvault/trackvault/internal/config"
	"github.com/trackvault/trackvault/internal/metricspush"
	"github.com/trackvault/trackvault/internal/observability"
	obsmiddleware "github.com/trackvault/trackvault/internal/observability/logger"
	obsmetrics "github.com/trackvault/trackvault/internal/observability/metrics"
	obstracing "github.com/trackvault/trackvault/internal/observability/tracing"
	"github.com/trackvault/trackvault/internal/payment"
	paymentdomain "github.com/trackvault/trackvault/internal/payment/domain"
	"github.com/trackvault/trackvault/internal/product"
	productdomain "github.com/trackvault/trackvault/internal/product/domain"
	"github.com/trackvault/trackvault/internal/productrate"
	ratedomain "github.com/trackvault/trackvault/internal/productrate/domain"
	"github.com/trackvault/trackvault/internal/providers/pdf"
	"github.com/trackvault/trackvault/internal/ratelimit"
	"github.com/trackvault/trackvault/internal/reconciliation"
	recondomain "github.com/trackvault/trackvault/internal/reconciliation/domain"
	"github.com/trackvault/trackvault/internal/supplier"
	supplierdomain "github.com/trackvault/trackvault/internal/supplier/domain"
)

var Module = fx.Module("http.server",
	config.Module,
	fx.Provide(registerGin),
	supplier.Module,
	product.Module,
	productrate.Module,
	collection.Module,
	payment.Module,
	reconciliation.Module,
	pdf.Module,
	ratelimit.Module,
	metricspush.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	addr := cfg.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
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
	engine            *gin.Engine
	supplierSvc       supplierdomain.Service
	productSvc        productdomain.Service
	rateSvc           ratedomain.Service
	collectionSvc     collectiondomain.Service
	paymentSvc        paymentdomain.Service
	reconSvc          recondomain.Service
	obsMetrics        *obsmetrics.Metrics
	collectionLimiter *ratelimit.CollectionIngestLimiter
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	SupplierSvc   supplierdomain.Service
	ProductSvc    productdomain.Service
	RateSvc       ratedomain.Service
	CollectionSvc collectiondomain.Service
	PaymentSvc    paymentdomain.Service
	ReconSvc      recondomain.Service

	ObsMetrics        *obsmetrics.Metrics                `optional:"true"`
	CollectionLimiter *ratelimit.CollectionIngestLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:            p.Gin,
		supplierSvc:       p.SupplierSvc,
		productSvc:        p.ProductSvc,
		rateSvc:           p.RateSvc,
		collectionSvc:     p.CollectionSvc,
		paymentSvc:        p.PaymentSvc,
		reconSvc:          p.ReconSvc,
		obsMetrics:        p.ObsMetrics,
		collectionLimiter: p.CollectionLimiter,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Suppliers --------
	api.POST("/suppliers", s.CreateSupplier)
	api.GET("/suppliers", s.ListSuppliers)
	api.GET("/suppliers/:id", s.GetSupplierByID)
	api.PATCH("/suppliers/:id", s.UpdateSupplier)
	api.GET("/suppliers/:id/balance", s.GetSupplierBalance)

	// -------- Products --------
	api.POST("/products", s.CreateProduct)
	api.GET("/products", s.ListProducts)
	api.GET("/products/:id", s.GetProductByID)
	api.PATCH("/products/:id", s.UpdateProduct)

	// -------- Rates --------
	api.POST("/products/:id/rates", s.AddProductRate)
	api.GET("/products/:id/rates", s.ListProductRates)
	api.GET("/products/:id/rates/current", s.GetCurrentProductRate)
	api.POST("/rates/:id/deactivate", s.DeactivateProductRate)

	// -------- Collections --------
	api.POST("/collections", s.CollectionIngestRateLimit(), s.RecordCollection)
	api.GET("/collections", s.ListCollections)
	api.GET("/collections/:id", s.GetCollectionByID)
	api.GET("/collections/receipt/:receipt", s.GetCollectionByReceipt)

	// -------- Payments --------
	api.POST("/payments", s.RecordPayment)
	api.GET("/payments", s.ListPayments)
	api.GET("/payments/:id", s.GetPaymentByID)
	api.GET("/payments/:id/receipt.pdf", s.GetPaymentReceipt)

	// -------- Reconciliation --------
	api.GET("/reconciliation/overview", s.GetReconciliationOverview)
}
