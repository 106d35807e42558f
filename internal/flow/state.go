// Package flow drives the scanner screen: it consumes scan outcomes, runs
// text recognition and alias validation off the delivery goroutine, and
// carries a validated alias through to a confirmed transfer.
package flow

import (
	"time"

	"go-alias-scanner/internal/models"
	"go-alias-scanner/internal/remote"
	"go-alias-scanner/internal/scan"
)

// State is the screen the user is looking at
type State string

const (
	StateScanning      State = "scanning"
	StateAnalyzing     State = "analyzing"
	StateValidating    State = "validating"
	StateAliasResolved State = "alias_resolved"
	StateAliasNotFound State = "alias_not_found"
	StateQRFound       State = "qr_found"
	StateBarcodeFound  State = "barcode_found"
	StateChoosingCode  State = "choosing_code"
	StateTransferred   State = "transferred"
)

// acceptsOutcomes reports whether new scan outcomes are handled in s
func (s State) acceptsOutcomes() bool {
	return s == StateScanning
}

// Event is broadcast on every state change and carries the data shown in
// the new state
type Event struct {
	Seq      uint64                 `json:"seq"`
	State    State                  `json:"state"`
	Outcome  *scan.Outcome          `json:"outcome,omitempty"`
	Payload  string                 `json:"payload,omitempty"`
	Codes    []scan.DetectedCode    `json:"codes,omitempty"`
	Alias    string                 `json:"alias,omitempty"`
	Account  *remote.AliasInfo      `json:"account,omitempty"`
	Transfer *models.TransferRecord `json:"transfer,omitempty"`
	Message  string                 `json:"message,omitempty"`
	At       time.Time              `json:"at"`
}
