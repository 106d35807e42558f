package handlers

import (
	"net/http"
	"strconv"

	"go-alias-scanner/internal/services"

	"github.com/gin-gonic/gin"
)

type CodeHandler struct {
	codeService *services.CodeService
}

func NewCodeHandler(codeService *services.CodeService) *CodeHandler {
	return &CodeHandler{codeService: codeService}
}

// GenerateQR renders ?data= as a QR code of ?size= pixels
func (h *CodeHandler) GenerateQR(c *gin.Context) {
	data := c.Query("data")
	if data == "" {
		respondError(c, http.StatusBadRequest, "MISSING_DATA", "Query parameter data is required")
		return
	}
	size, _ := strconv.Atoi(c.Query("size"))

	qrBytes, err := h.codeService.QR(data, size)
	if err != nil {
		respondError(c, http.StatusUnprocessableEntity, "ENCODE_FAILED", err.Error())
		return
	}

	c.Header("Content-Disposition", "inline; filename=qr.png")
	c.Data(http.StatusOK, "image/png", qrBytes)
}

// GenerateBarcode renders ?data= as Code128
func (h *CodeHandler) GenerateBarcode(c *gin.Context) {
	data := c.Query("data")
	if data == "" {
		respondError(c, http.StatusBadRequest, "MISSING_DATA", "Query parameter data is required")
		return
	}
	width, _ := strconv.Atoi(c.Query("width"))
	height, _ := strconv.Atoi(c.Query("height"))

	barcodeBytes, err := h.codeService.Barcode(data, width, height)
	if err != nil {
		respondError(c, http.StatusUnprocessableEntity, "ENCODE_FAILED", err.Error())
		return
	}

	c.Header("Content-Disposition", "inline; filename=barcode.png")
	c.Data(http.StatusOK, "image/png", barcodeBytes)
}
