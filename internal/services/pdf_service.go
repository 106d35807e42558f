package services

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// TransferReceipt is everything printed on a transfer receipt
type TransferReceipt struct {
	ID              string
	CreatedAt       time.Time
	Alias           string
	Beneficiary     string
	Bank            string
	AccountKind     string
	Account         string
	TaxDocument     string
	Amount          float64
	Category        string
	AuthorizationID string
	TransactionID   string
}

// ReceiptService renders transfer receipts as PDF
type ReceiptService struct {
	issuer   string
	currency string
}

func NewReceiptService(issuer, currency string) *ReceiptService {
	if issuer == "" {
		issuer = "Alias Scanner"
	}
	if currency == "" {
		currency = "$"
	}
	return &ReceiptService{issuer: issuer, currency: currency}
}

// Render produces the PDF bytes of receipt
func (s *ReceiptService) Render(receipt TransferReceipt) ([]byte, error) {
	if receipt.ID == "" {
		return nil, fmt.Errorf("receipt id cannot be empty")
	}
	if receipt.CreatedAt.IsZero() {
		receipt.CreatedAt = time.Now()
	}

	pdf := gofpdf.New("P", "mm", "A5", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()

	// Header
	pdf.SetFont("Arial", "B", 16)
	pdf.SetTextColor(37, 99, 235)
	pdf.Cell(0, 10, tr(s.issuer))
	pdf.Ln(10)

	pdf.SetFont("Arial", "B", 20)
	pdf.SetTextColor(0, 0, 0)
	pdf.Cell(0, 12, tr("Comprobante de transferencia"))
	pdf.Ln(14)

	pdf.SetFont("Arial", "B", 24)
	pdf.CellFormat(0, 14, fmt.Sprintf("%s %s", s.currency, formatAmount(receipt.Amount)), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	// Detail table
	rows := []struct{ label, value string }{
		{"Fecha", receipt.CreatedAt.Format("02/01/2006 15:04")},
		{"Destinatario", receipt.Beneficiary},
		{"Alias", receipt.Alias},
		{"Entidad", receipt.Bank},
		{receipt.AccountKind, receipt.Account},
		{"CUIT/CUIL", receipt.TaxDocument},
		{"Categoría", receipt.Category},
		{"Autorización", receipt.AuthorizationID},
		{"Transacción", receipt.TransactionID},
	}

	pdf.SetFillColor(248, 249, 250)
	labelWidth := 40.0
	for _, row := range rows {
		if row.value == "" || row.label == "" {
			continue
		}
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(labelWidth, 8, tr(row.label+":"), "1", 0, "", true, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 8, tr(row.value), "1", 1, "", false, 0, "")
	}

	pdf.Ln(8)
	pdf.SetFont("Arial", "I", 8)
	pdf.SetTextColor(128, 128, 128)
	pdf.Cell(0, 5, "ID: "+receipt.ID)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render receipt: %w", err)
	}
	return buf.Bytes(), nil
}

// formatAmount prints 1234567.5 as 1.234.567,50
func formatAmount(amount float64) string {
	negative := amount < 0
	if negative {
		amount = -amount
	}
	raw := fmt.Sprintf("%.2f", amount)
	whole, cents := raw[:len(raw)-3], raw[len(raw)-2:]

	var b strings.Builder
	for i, digit := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(digit)
	}

	out := b.String() + "," + cents
	if negative {
		out = "-" + out
	}
	return out
}
