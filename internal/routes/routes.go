package routes

import (
	"time"

	"go-alias-scanner/internal/handlers"
	"go-alias-scanner/internal/logger"
	"go-alias-scanner/internal/middleware"
	"go-alias-scanner/internal/monitoring"

	"github.com/gin-gonic/gin"
)

// Handlers groups everything the router serves
type Handlers struct {
	Scan      *handlers.ScanHandler
	Transfers *handlers.TransferHandler
	Codes     *handlers.CodeHandler
	Fallback  *ScanFallbackHandler
	Errors    *monitoring.ErrorTracker
}

// Options tune the router
type Options struct {
	MaxUploadBytes  int64
	DecodeRateLimit int
	SlowRequest     time.Duration
	HealthChecks    map[string]middleware.HealthCheck
	TrustedProxies  []string
}

// SetupRoutes builds the API router
func SetupRoutes(r *gin.Engine, h Handlers, log *logger.StructuredLogger, opts Options) *middleware.PerformanceMonitor {
	if opts.SlowRequest <= 0 {
		opts.SlowRequest = 2 * time.Second
	}
	if opts.DecodeRateLimit <= 0 {
		opts.DecodeRateLimit = 30
	}

	_ = r.SetTrustedProxies(opts.TrustedProxies)

	monitor := middleware.NewPerformanceMonitor(opts.SlowRequest, log.Component("http"))

	r.Use(gin.Recovery())
	r.Use(log.LoggingMiddleware())
	r.Use(monitor.PerformanceMiddleware())
	r.Use(middleware.SecurityHeadersMiddleware())
	if opts.MaxUploadBytes > 0 {
		r.Use(middleware.RequestSizeLimitMiddleware(opts.MaxUploadBytes))
	}
	if h.Errors != nil {
		r.Use(h.Errors.Middleware())
	}

	r.GET("/health", middleware.HealthHandler(monitor, opts.HealthChecks))

	api := r.Group("/api")
	{
		scanGroup := api.Group("/scan")
		{
			scanGroup.POST("/frames", h.Scan.SubmitFrame)
			scanGroup.POST("/motion", h.Scan.SubmitMotion)
			scanGroup.GET("/state", h.Scan.State)
			scanGroup.POST("/reset", h.Scan.Reset)
			scanGroup.POST("/select", h.Scan.Select)
			scanGroup.GET("/events", h.Scan.Events)

			if h.Fallback != nil {
				SetupScanFallbackRoutes(scanGroup, h.Fallback, opts.DecodeRateLimit)
			}
		}

		transfers := api.Group("/transfers")
		{
			transfers.POST("", h.Transfers.Create)
			transfers.GET("", h.Transfers.List)
			transfers.GET("/:id", h.Transfers.Get)
			transfers.GET("/:id/receipt", h.Transfers.Receipt)
		}

		api.GET("/scans", h.Transfers.ListScans)

		codes := api.Group("/codes")
		{
			codes.GET("/qr", h.Codes.GenerateQR)
			codes.GET("/barcode", h.Codes.GenerateBarcode)
		}

		if h.Errors != nil {
			api.GET("/errors", h.Errors.ListHandler)
			api.POST("/errors/:fingerprint/resolve", h.Errors.ResolveHandler)
		}
	}

	return monitor
}
