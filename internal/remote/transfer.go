package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"
)

// TransferRequest is the body of a cash-out transfer
type TransferRequest struct {
	Amount                 float64 `json:"amount"`
	BankID                 string  `json:"bankId"`
	Beneficiary            string  `json:"beneficiary"`
	Category               string  `json:"category"`
	Comment                string  `json:"comment"`
	Concept                string  `json:"concept"`
	Destination            string  `json:"destination"`
	DestinationName        string  `json:"destinationName"`
	DestinationTaxDocument string  `json:"destinationTaxDocument"`
	DeviceID               string  `json:"DeviceId"`
	FinancialEntity        string  `json:"financialEntity"`
	IsTrinity              bool    `json:"isTrinity"`
	PIN                    string  `json:"pin"`
}

// NewTransferRequest fills a transfer to the account behind info
func NewTransferRequest(info *AliasInfo, amount float64, category, deviceID, pin string) TransferRequest {
	return TransferRequest{
		Amount:                 amount,
		BankID:                 info.BankID,
		Beneficiary:            info.DisplayName(),
		Category:               category,
		Concept:                "VAR",
		Destination:            info.Account(),
		DestinationName:        info.DisplayName(),
		DestinationTaxDocument: info.CUIT,
		DeviceID:               deviceID,
		FinancialEntity:        info.DisplayBank(),
		PIN:                    pin,
	}
}

// TransferResponse identifies an accepted transfer
type TransferResponse struct {
	AuthorizationID string `json:"authorization_id"`
	TransactionID   string `json:"transaction_id"`
}

// TransferClient executes cash-out transfers
type TransferClient struct {
	endpoint string
	client   *http.Client
	tokens   TokenSource
}

// NewTransferClient creates a client; client may be nil
func NewTransferClient(endpoint string, tokens TokenSource, client *http.Client) *TransferClient {
	return &TransferClient{endpoint: endpoint, client: defaultClient(client, 30*time.Second), tokens: tokens}
}

// Execute sends the transfer. An accepted transfer with an unreadable body
// yields an empty response rather than an error.
func (c *TransferClient) Execute(ctx context.Context, transfer TransferRequest) (*TransferResponse, error) {
	body, err := json.Marshal(transfer)
	if err != nil {
		return nil, err
	}

	resp, err := sendAuthorized(ctx, c.client, c.tokens, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		var out TransferResponse
		_ = json.Unmarshal(data, &out)
		return &out, nil
	default:
		return nil, &StatusError{Op: "transfer", StatusCode: resp.StatusCode, Body: readBody(resp)}
	}
}
