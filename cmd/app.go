package cmd

import (
	"errors"
	"net/http"

	"go-alias-scanner/internal/config"
	"go-alias-scanner/internal/flow"
	"go-alias-scanner/internal/handlers"
	"go-alias-scanner/internal/logger"
	"go-alias-scanner/internal/middleware"
	"go-alias-scanner/internal/remote"
	"go-alias-scanner/internal/repository"
	"go-alias-scanner/internal/services"
)

// historyStore is written by the flow and read by the API
type historyStore interface {
	flow.HistoryStore
	handlers.HistoryReader
}

// openHistory returns the MySQL history when a database host is configured
// and an in-memory history otherwise. The returned close func is never nil.
func openHistory(dbCfg config.DatabaseConfig, log *logger.StructuredLogger) (historyStore, map[string]middleware.HealthCheck, func(), error) {
	if !dbCfg.Enabled() {
		log.Info("No database configured, keeping history in memory")
		return repository.NewMemoryHistory(0), nil, func() {}, nil
	}

	db, err := repository.NewDatabase(dbCfg)
	if err != nil {
		return nil, nil, nil, err
	}
	log.Info("Connected to history database", map[string]interface{}{
		"host":     dbCfg.Host,
		"database": dbCfg.Database,
	})

	checks := map[string]middleware.HealthCheck{"database": db.Ping}
	return repository.NewHistoryRepository(db), checks, func() { db.Close() }, nil
}

// newTokenSource picks a static token, a token command or the password
// grant, in that order; nil when none is configured
func newTokenSource(authCfg config.AuthConfig, client *http.Client) remote.TokenSource {
	switch {
	case authCfg.StaticToken != "":
		return remote.StaticToken(authCfg.StaticToken)
	case len(authCfg.TokenCommand) > 0:
		return &remote.CommandToken{Command: authCfg.TokenCommand, TTL: authCfg.GetTokenTTL()}
	case authCfg.URL != "" && authCfg.Username != "":
		return remote.NewPasswordGrant(remote.AuthConfig{
			URL:        authCfg.URL,
			ClientID:   authCfg.ClientID,
			Audience:   authCfg.Audience,
			Username:   authCfg.Username,
			Password:   authCfg.Password,
			Scope:      authCfg.Scope,
			Connection: authCfg.Connection,
			Device:     authCfg.Device,
			Claim:      authCfg.Claim,
			TTL:        authCfg.GetTokenTTL(),
		}, client)
	default:
		return nil
	}
}

// newDependencies builds the flow's collaborators from the configuration.
// Remote steps without an endpoint or without credentials stay disabled.
func newDependencies(c *config.Config, history flow.HistoryStore, log *logger.StructuredLogger) (flow.Dependencies, error) {
	pins := services.NewPinVerifier(c.Transfer.TOTPSecret, c.Transfer.PinHash)
	deps := flow.Dependencies{
		Pins:            pins,
		Receipts:        services.NewReceiptService(c.Transfer.Issuer, c.Transfer.Currency),
		History:         history,
		Logger:          log.Component("flow"),
		DeviceID:        c.Transfer.DeviceID,
		DefaultCategory: c.Transfer.Category,
	}

	tokens := newTokenSource(c.Auth, nil)
	if tokens == nil {
		if c.OCR.Enabled && c.OCR.URL != "" {
			return deps, errors.New("text recognition is enabled but no auth is configured")
		}
		log.Warn("No auth configured, remote recognition and transfers are disabled")
		return deps, nil
	}

	if c.OCR.Enabled && c.OCR.URL != "" {
		deps.Classifier = remote.NewOCRClient(remote.OCRConfig{
			URL:          c.OCR.URL,
			Model:        c.OCR.Model,
			Temperature:  c.OCR.Temperature,
			SystemPrompt: c.OCR.SystemPrompt,
			UserPrompt:   c.OCR.UserPrompt,
			JPEGQuality:  c.OCR.JPEGQuality,
			Timeout:      c.OCR.GetTimeout(),
		}, tokens, nil)
	}
	if c.Alias.BaseURL != "" {
		deps.Validator = remote.NewAliasClient(remote.AliasConfig{
			BaseURL:  c.Alias.BaseURL,
			Currency: c.Alias.Currency,
			Timeout:  c.Alias.GetTimeout(),
		}, tokens, nil)
	}
	if c.Transfer.Endpoint != "" {
		deps.Transfers = remote.NewTransferClient(c.Transfer.Endpoint, tokens, nil)
	}

	log.Info("Remote services configured", map[string]interface{}{
		"ocr":       deps.Classifier != nil,
		"alias":     deps.Validator != nil,
		"transfers": deps.Transfers != nil,
		"pin_mode":  pins.Mode(),
	})
	return deps, nil
}
