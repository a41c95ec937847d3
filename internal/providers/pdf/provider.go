package pdf

import (
	"context"
	"io"
)

// ReceiptData carries the already formatted fields printed on a payment
// receipt. Amounts and dates are formatted by the caller so the
// renderer stays free of money and date logic.
type ReceiptData struct {
	ReceiptNumber    string
	PaidAt           string
	SupplierName     string
	SupplierCode     string
	SupplierRegion   string
	Amount           string
	Method           string
	Reference        string
	Notes            string
	OutstandingAfter string
}

type Provider interface {
	PaymentReceipt(ctx context.Context, data ReceiptData) (io.Reader, error)
}
