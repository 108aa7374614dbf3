/**
 * @description
 * Request/response models for the purchase and payout API surface.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PurchaseAuthorization is returned when a purchase is authorized with the
// payment provider. PaymentRef identifies the provider-side payment and is the
// handle the client reports back at completion time.
type PurchaseAuthorization struct {
	PaymentRef      string          `json:"payment_ref"`
	ClientSecret    string          `json:"client_secret,omitempty"`
	Provider        string          `json:"provider"`
	SalePrice       decimal.Decimal `json:"sale_price"`
	PlatformFee     decimal.Decimal `json:"platform_fee"`
	BreederEarnings decimal.Decimal `json:"breeder_earnings"`
}

// PayoutRequest is the acknowledgement returned when a breeder requests payout
// of their available balance.
type PayoutRequest struct {
	BreederID   uuid.UUID       `json:"breeder_id"`
	Amount      decimal.Decimal `json:"amount"`
	SaleCount   int             `json:"sale_count"`
	RequestedAt time.Time       `json:"requested_at"`
}
