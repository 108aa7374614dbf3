/**
 * @description
 * Payout ledger over settled sales. Buckets are derived, not stored: a sale
 * with payout status "pending" is Pending while the escrow hold runs and
 * Available once the hold elapses, purely by comparing the current time
 * against its funds-available date. No scheduled job moves records between
 * buckets.
 */

package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pawhaven/settlement-service/internal/domain"
	"github.com/pawhaven/settlement-service/pkg/rabbitmq"
)

// BuildPayoutSummary classifies sale records into payout buckets as of the
// given instant and totals the breeder earnings per bucket.
func BuildPayoutSummary(sales []domain.SaleRecord, now time.Time) domain.PayoutSummary {
	summary := domain.PayoutSummary{
		PendingTotal:   decimal.Zero,
		AvailableTotal: decimal.Zero,
		PaidTotal:      decimal.Zero,
	}

	for _, sale := range sales {
		entry := domain.PayoutEntry{Sale: sale}
		switch sale.PayoutStatus {
		case domain.PayoutStatusPaid:
			entry.Bucket = domain.BucketPaid
			entry.RemainingHold = "Available now"
			summary.PaidTotal = summary.PaidTotal.Add(sale.BreederEarnings)
		case domain.PayoutStatusCancelled:
			entry.Bucket = domain.BucketCancelled
			entry.RemainingHold = "Available now"
		default:
			if now.Before(sale.FundsAvailableDate) {
				entry.Bucket = domain.BucketPending
				entry.RemainingHold = formatRemainingHold(sale.FundsAvailableDate.Sub(now))
				summary.PendingTotal = summary.PendingTotal.Add(sale.BreederEarnings)
				summary.PendingCount++
			} else {
				entry.Bucket = domain.BucketAvailable
				entry.RemainingHold = "Available now"
				summary.AvailableTotal = summary.AvailableTotal.Add(sale.BreederEarnings)
				summary.AvailableCount++
			}
		}
		summary.Entries = append(summary.Entries, entry)
	}

	return summary
}

// formatRemainingHold renders the time left on an escrow hold, rounded up to
// the next whole minute so a hold never displays as elapsed early.
func formatRemainingHold(remaining time.Duration) string {
	minutes := int64((remaining + time.Minute - 1) / time.Minute)
	hours := minutes / 60
	minutes = minutes % 60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}

// GetPayoutSummary returns the breeder's sales classified into payout buckets
// as of now.
func (s *Service) GetPayoutSummary(ctx context.Context, breederID uuid.UUID) (*domain.PayoutSummary, error) {
	sales, err := s.repo.FindSalesByBreederID(ctx, breederID)
	if err != nil {
		return nil, fmt.Errorf("failed to load sales: %w", err)
	}
	summary := BuildPayoutSummary(sales, time.Now().UTC())
	return &summary, nil
}

// RequestPayout records a breeder's request to pay out their available
// balance and announces it for the external batch payout process. No money
// moves here; the batch process owns the payout columns.
func (s *Service) RequestPayout(ctx context.Context, breederID uuid.UUID) (*domain.PayoutRequest, error) {
	sales, err := s.repo.FindSalesByBreederID(ctx, breederID)
	if err != nil {
		return nil, fmt.Errorf("failed to load sales: %w", err)
	}

	now := time.Now().UTC()
	summary := BuildPayoutSummary(sales, now)
	if summary.AvailableCount == 0 || !summary.AvailableTotal.IsPositive() {
		return nil, ErrNoPayoutAvailable
	}

	request := &domain.PayoutRequest{
		BreederID:   breederID,
		Amount:      summary.AvailableTotal,
		SaleCount:   summary.AvailableCount,
		RequestedAt: now,
	}

	audit := &domain.AuditRecord{
		ID:            uuid.New(),
		ActorID:       breederID,
		Action:        domain.AuditActionPayoutRequested,
		Amount:        request.Amount,
		PlatformFee:   decimal.Zero,
		CorrelationID: breederID.String(),
		Detail:        fmt.Sprintf("payout requested for %d sales", request.SaleCount),
		CreatedAt:     now,
	}
	if err := s.repo.InsertAuditRecord(ctx, audit); err != nil {
		log.Printf("level=warn component=service msg=\"payout audit write failed\" breeder_id=%s err=%v", breederID, err)
	}

	event := rabbitmq.PayoutRequestedEvent{
		BreederID: breederID,
		Amount:    request.Amount,
		SaleCount: request.SaleCount,
		Timestamp: now,
	}
	if err := s.eventProducer.Publish(ctx, rabbitmq.MarketplaceExchange, rabbitmq.RoutingKeyPayoutRequested, event); err != nil {
		log.Printf("level=warn component=service msg=\"payout.requested publish failed\" breeder_id=%s err=%v", breederID, err)
	}

	log.Printf("RequestPayout: breeder %s requested payout of %s across %d sales", breederID, request.Amount, request.SaleCount)
	return request, nil
}
