package routes

import (
	"net/http"

	"go-alias-scanner/internal/middleware"
	"go-alias-scanner/internal/scan"

	"github.com/gin-gonic/gin"
)

// ScanFallbackHandler decodes single uploaded images outside the live session
type ScanFallbackHandler struct {
	detector *scan.ZXingDetector
	enabled  bool
}

func NewScanFallbackHandler(detector *scan.ZXingDetector, enabled bool) *ScanFallbackHandler {
	if detector == nil {
		detector = scan.NewZXingDetector()
	}
	return &ScanFallbackHandler{detector: detector, enabled: enabled}
}

// IsEnabled returns whether the fallback decoder is enabled
func (h *ScanFallbackHandler) IsEnabled() bool {
	return h.enabled
}

// DecodeFallback decodes a base64 image posted as {"imageData": ..., "roi": ...}
func (h *ScanFallbackHandler) DecodeFallback(c *gin.Context) {
	if !h.enabled {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "FEATURE_DISABLED",
			"message": "Server-side decode is disabled",
		})
		return
	}

	var req scan.DecodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "INVALID_REQUEST",
			"message": err.Error(),
		})
		return
	}

	if req.ROI != nil && (req.ROI.Width <= 0 || req.ROI.Height <= 0) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "INVALID_DIMENSIONS",
			"message": "ROI width and height must be positive",
		})
		return
	}

	response := h.detector.DecodeUpload(&req)
	if response.Success {
		c.JSON(http.StatusOK, response)
		return
	}
	// valid request, nothing readable in it
	c.JSON(http.StatusUnprocessableEntity, response)
}

// GetDecoderStatus reports whether the fallback decoder is available
func (h *ScanFallbackHandler) GetDecoderStatus(c *gin.Context) {
	formats := make([]string, 0, len(scan.SupportedFormats()))
	for _, f := range scan.SupportedFormats() {
		formats = append(formats, scan.FormatName(f))
	}

	c.JSON(http.StatusOK, gin.H{
		"enabled":          h.enabled,
		"status":           "ready",
		"serverSide":       true,
		"supportedFormats": formats,
	})
}

// SetupScanFallbackRoutes registers the decode endpoints on group, rate
// limiting decodes per client IP
func SetupScanFallbackRoutes(group *gin.RouterGroup, handler *ScanFallbackHandler, requestsPerMinute int) {
	group.POST("/decode", middleware.RateLimitMiddleware(requestsPerMinute), handler.DecodeFallback)
	group.GET("/status", handler.GetDecoderStatus)
}
