package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// AliasInfo is the account an alias resolves to
type AliasInfo struct {
	Identifier  string `json:"identifier"`
	Name        string `json:"name"`
	Bank        string `json:"bank"`
	BankID      string `json:"bank_id"`
	CUIT        string `json:"cuit"`
	AccountType string `json:"account_type"`
	CBU         string `json:"cbu"`
	CVU         string `json:"cvu"`
}

// AccountKind is CVU for virtual accounts and CBU otherwise
func (a *AliasInfo) AccountKind() string {
	if a.CVU != "" {
		return "CVU"
	}
	return "CBU"
}

// DisplayName returns the holder name or a placeholder
func (a *AliasInfo) DisplayName() string {
	if a.Name == "" {
		return "Desconocido"
	}
	return a.Name
}

// DisplayBank returns the bank name or a placeholder
func (a *AliasInfo) DisplayBank() string {
	if a.Bank == "" {
		return "Entidad desconocida"
	}
	return a.Bank
}

// Account returns the account number transfers are sent to
func (a *AliasInfo) Account() string {
	if a.CVU != "" {
		return a.CVU
	}
	return a.CBU
}

// AliasConfig configures the alias lookup service
type AliasConfig struct {
	BaseURL  string
	Currency string
	Timeout  time.Duration
}

// AliasClient looks up the account behind an alias
type AliasClient struct {
	cfg    AliasConfig
	client *http.Client
	tokens TokenSource
}

// NewAliasClient creates a client; client may be nil
func NewAliasClient(cfg AliasConfig, tokens TokenSource, client *http.Client) *AliasClient {
	if cfg.Currency == "" {
		cfg.Currency = "ars"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &AliasClient{cfg: cfg, client: defaultClient(client, cfg.Timeout), tokens: tokens}
}

// Validate resolves alias; ErrAliasNotFound when the service does not know it
func (c *AliasClient) Validate(ctx context.Context, alias string) (*AliasInfo, error) {
	query := url.Values{}
	query.Set("identifier", alias)
	query.Set("currency", c.cfg.Currency)
	endpoint := c.cfg.BaseURL + "/identifiers/info?" + query.Encode()

	resp, err := sendAuthorized(ctx, c.client, c.tokens, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
		defer resp.Body.Close()
		var info AliasInfo
		if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
			return nil, fmt.Errorf("invalid alias response: %w", err)
		}
		if info.Identifier == "" {
			info.Identifier = alias
		}
		return &info, nil
	case http.StatusNotFound:
		drain(resp)
		return nil, ErrAliasNotFound
	default:
		return nil, &StatusError{Op: "alias validation", StatusCode: resp.StatusCode, Body: readBody(resp)}
	}
}
