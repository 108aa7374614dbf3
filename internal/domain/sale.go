/**
 * @description
 * This file defines the core settlement models: the immutable SaleRecord
 * produced by a successful purchase settlement, the payout buckets derived
 * from sale records, and the append-only audit record written alongside
 * every settlement outcome.
 *
 * @dependencies
 * - github.com/google/uuid: For record identifiers.
 * - github.com/shopspring/decimal: Monetary amounts in USD with 2 fractional digits.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payment providers supported by the settlement flow.
const (
	ProviderStripe = "stripe"
	ProviderPayPal = "paypal"
)

// Payout statuses stored on a sale record. A record with status "pending"
// is reported as Pending or Available purely by comparing the current time
// against FundsAvailableDate; no write moves it between those buckets.
const (
	PayoutStatusPending   = "pending"
	PayoutStatusPaid      = "paid"
	PayoutStatusCancelled = "cancelled"
)

// Ledger bucket names used by the payout summary.
const (
	BucketPending   = "pending"
	BucketAvailable = "available"
	BucketPaid      = "paid"
	BucketCancelled = "cancelled"
)

// SaleRecord is the durable settlement artifact. It is created exactly once
// per successful settlement and never mutated afterwards, except for the
// payout columns which are owned by the external batch payout process.
type SaleRecord struct {
	ID                 uuid.UUID       `json:"id"`
	PetID              uuid.UUID       `json:"pet_id"`
	BreederID          uuid.UUID       `json:"breeder_id"`
	BuyerID            uuid.UUID       `json:"buyer_id"`
	SalePrice          decimal.Decimal `json:"sale_price"`
	PlatformFee        decimal.Decimal `json:"platform_fee"`
	BreederEarnings    decimal.Decimal `json:"breeder_earnings"`
	PaymentProvider    string          `json:"payment_provider"`
	PaymentRef         string          `json:"payment_ref"`
	SaleDate           time.Time       `json:"sale_date"`
	FundsAvailableDate time.Time       `json:"funds_available_date"`
	PayoutStatus       string          `json:"payout_status"`
	PayoutDate         *time.Time      `json:"payout_date,omitempty"`
}

// PayoutEntry is one sale record classified into a ledger bucket, with the
// remaining escrow hold rendered for display.
type PayoutEntry struct {
	Sale          SaleRecord `json:"sale"`
	Bucket        string     `json:"bucket"`
	RemainingHold string     `json:"remaining_hold"`
}

// PayoutSummary is the breeder-facing read model over sale records.
type PayoutSummary struct {
	PendingTotal   decimal.Decimal `json:"pending_total"`
	AvailableTotal decimal.Decimal `json:"available_total"`
	PaidTotal      decimal.Decimal `json:"paid_total"`
	PendingCount   int             `json:"pending_count"`
	AvailableCount int             `json:"available_count"`
	Entries        []PayoutEntry   `json:"entries"`
}

// AuditRecord is a write-once trace of a settlement-path action. It is never
// read back by this service.
type AuditRecord struct {
	ID            uuid.UUID       `json:"id"`
	ActorID       uuid.UUID       `json:"actor_id"`
	Action        string          `json:"action"`
	PetID         *uuid.UUID      `json:"pet_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	PlatformFee   decimal.Decimal `json:"platform_fee"`
	CorrelationID string          `json:"correlation_id"`
	Detail        string          `json:"detail"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Audit action kinds.
const (
	AuditActionSaleSettled     = "sale.settled"
	AuditActionSaleRejected    = "sale.rejected"
	AuditActionRefundIssued    = "refund.issued"
	AuditActionRefundFailed    = "refund.failed"
	AuditActionPayoutRequested = "payout.requested"
)
