package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go-alias-scanner/internal/flow"
	"go-alias-scanner/internal/logger"
	"go-alias-scanner/internal/models"
	"go-alias-scanner/internal/services"

	"github.com/gin-gonic/gin"
)

// HistoryReader lists the scan audit log and past transfers
type HistoryReader interface {
	ListScans(ctx context.Context, params models.FilterParams) ([]models.ScanRecord, error)
	ListTransfers(ctx context.Context, params models.FilterParams) ([]models.TransferRecord, error)
	GetTransfer(ctx context.Context, id string) (*models.TransferRecord, error)
}

type TransferHandler struct {
	flow    *flow.Controller
	history HistoryReader
	logger  *logger.StructuredLogger
}

func NewTransferHandler(controller *flow.Controller, history HistoryReader, log *logger.StructuredLogger) *TransferHandler {
	return &TransferHandler{
		flow:    controller,
		history: history,
		logger:  log.Component("transfer-api"),
	}
}

// Create sends money to the alias the flow has validated
func (h *TransferHandler) Create(c *gin.Context) {
	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	record, err := h.flow.Transfer(c.Request.Context(), req.Amount, req.Category, req.PIN)
	if err != nil {
		if errors.Is(err, services.ErrInvalidPIN) {
			h.logger.LogSecurityEvent("Transfer PIN rejected", "medium", map[string]interface{}{
				"ip":     c.ClientIP(),
				"amount": req.Amount,
			})
		}
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, record)
}

// Get returns one transfer
func (h *TransferHandler) Get(c *gin.Context) {
	record, err := h.history.GetTransfer(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// Receipt renders the PDF receipt of a transfer
func (h *TransferHandler) Receipt(c *gin.Context) {
	id := c.Param("id")
	pdf, err := h.flow.Receipt(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=transfer-%s.pdf", id))
	c.Data(http.StatusOK, "application/pdf", pdf)
}

// List returns past transfers, newest first
func (h *TransferHandler) List(c *gin.Context) {
	params, err := filterParams(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_QUERY", err.Error())
		return
	}

	transfers, err := h.history.ListTransfers(c.Request.Context(), params)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transfers": transfers, "count": len(transfers)})
}

// ListScans returns the scan audit log, newest first
func (h *TransferHandler) ListScans(c *gin.Context) {
	params, err := filterParams(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_QUERY", err.Error())
		return
	}

	scans, err := h.history.ListScans(c.Request.Context(), params)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"scans": scans, "count": len(scans)})
}

func filterParams(c *gin.Context) (models.FilterParams, error) {
	var params models.FilterParams
	if err := c.ShouldBindQuery(&params); err != nil {
		return params, err
	}
	params.Normalize()
	return params, nil
}
