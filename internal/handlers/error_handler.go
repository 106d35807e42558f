package handlers

import (
	"context"
	"errors"
	"net/http"

	"go-alias-scanner/internal/flow"
	"go-alias-scanner/internal/remote"
	"go-alias-scanner/internal/repository"
	"go-alias-scanner/internal/scan"
	"go-alias-scanner/internal/services"

	"github.com/gin-gonic/gin"
)

// respondError writes the JSON error body used by every API endpoint
func respondError(c *gin.Context, status int, code string, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error":   code,
		"message": message,
	})
}

// respondDomainError maps errors from the scan flow onto HTTP statuses
func respondDomainError(c *gin.Context, err error) {
	_ = c.Error(err)

	var statusErr *remote.StatusError

	switch {
	case errors.Is(err, flow.ErrNoValidatedAlias):
		respondError(c, http.StatusConflict, "NO_VALIDATED_ALIAS", err.Error())
	case errors.Is(err, flow.ErrBusy):
		respondError(c, http.StatusConflict, "BUSY", err.Error())
	case errors.Is(err, flow.ErrInvalidAmount):
		respondError(c, http.StatusBadRequest, "INVALID_AMOUNT", err.Error())
	case errors.Is(err, services.ErrInvalidPIN):
		respondError(c, http.StatusForbidden, "INVALID_PIN", "The confirmation code was rejected")
	case errors.Is(err, scan.ErrSelectionNotPending):
		respondError(c, http.StatusConflict, "SELECTION_NOT_PENDING", err.Error())
	case errors.Is(err, flow.ErrNotCompleted):
		respondError(c, http.StatusConflict, "TRANSFER_NOT_COMPLETED", err.Error())
	case errors.Is(err, flow.ErrNoTransfers):
		respondError(c, http.StatusServiceUnavailable, "TRANSFERS_DISABLED", err.Error())
	case errors.Is(err, scan.ErrSessionClosed), errors.Is(err, flow.ErrNoSession):
		respondError(c, http.StatusServiceUnavailable, "SESSION_CLOSED", err.Error())
	case errors.Is(err, repository.ErrTransferNotFound):
		respondError(c, http.StatusNotFound, "TRANSFER_NOT_FOUND", err.Error())
	case errors.Is(err, remote.ErrUnauthorized), errors.Is(err, remote.ErrNoToken):
		respondError(c, http.StatusBadGateway, "UPSTREAM_UNAUTHORIZED", err.Error())
	case errors.As(err, &statusErr):
		respondError(c, http.StatusBadGateway, "UPSTREAM_ERROR", statusErr.Error())
	case errors.Is(err, context.DeadlineExceeded):
		respondError(c, http.StatusGatewayTimeout, "TIMEOUT", err.Error())
	default:
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}
