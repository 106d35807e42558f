package models

import (
	"time"
)

// ScanRecord is one published scan outcome in the audit log
type ScanRecord struct {
	ScanID    uint      `json:"scanID" gorm:"primaryKey;autoIncrement;column:scanID"`
	SessionID string    `json:"sessionID" gorm:"size:36;index;not null;column:sessionID"`
	Kind      string    `json:"kind" gorm:"size:32;index;not null;column:kind"`
	Payload   string    `json:"payload" gorm:"type:text;column:payload"`
	CodeCount int       `json:"codeCount" gorm:"not null;default:0;column:code_count"`
	CreatedAt time.Time `json:"createdAt" gorm:"index;column:created_at"`
}

func (ScanRecord) TableName() string {
	return "scan_records"
}

// Transfer statuses
const (
	TransferCompleted = "completed"
	TransferFailed    = "failed"
)

// TransferRecord is one cash-out attempt sent to a validated alias
type TransferRecord struct {
	TransferID      string    `json:"transferID" gorm:"primaryKey;size:36;column:transferID"`
	Alias           string    `json:"alias" gorm:"size:64;index;not null;column:alias"`
	Beneficiary     string    `json:"beneficiary" gorm:"size:255;column:beneficiary"`
	Bank            string    `json:"bank" gorm:"size:255;column:bank"`
	BankID          string    `json:"bankID" gorm:"size:16;column:bank_id"`
	AccountKind     string    `json:"accountKind" gorm:"size:8;column:account_kind"`
	Account         string    `json:"account" gorm:"size:32;column:account"`
	TaxDocument     string    `json:"taxDocument" gorm:"size:32;column:tax_document"`
	Amount          float64   `json:"amount" gorm:"type:decimal(14,2);not null;column:amount"`
	Category        string    `json:"category" gorm:"size:64;column:category"`
	Status          string    `json:"status" gorm:"size:16;index;not null;column:status"`
	AuthorizationID string    `json:"authorizationID,omitempty" gorm:"size:64;column:authorization_id"`
	TransactionID   string    `json:"transactionID,omitempty" gorm:"size:64;column:transaction_id"`
	Error           string    `json:"error,omitempty" gorm:"type:text;column:error"`
	CreatedAt       time.Time `json:"createdAt" gorm:"index;column:created_at"`
}

func (TransferRecord) TableName() string {
	return "transfer_records"
}

// FilterParams represents parameters for listing history
type FilterParams struct {
	Kind   string `form:"kind"`
	Status string `form:"status"`
	Limit  int    `form:"limit"`
	Offset int    `form:"offset"`
}

// Normalize clamps Limit into [1,200] and Offset to non-negative
func (p *FilterParams) Normalize() {
	if p.Limit <= 0 {
		p.Limit = 50
	}
	if p.Limit > 200 {
		p.Limit = 200
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
}
