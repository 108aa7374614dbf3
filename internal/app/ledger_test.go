package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pawhaven/settlement-service/internal/domain"
)

func saleAt(breederID uuid.UUID, earnings string, saleDate time.Time, hold time.Duration, payoutStatus string) domain.SaleRecord {
	return domain.SaleRecord{
		ID:                 uuid.New(),
		PetID:              uuid.New(),
		BreederID:          breederID,
		BuyerID:            uuid.New(),
		SalePrice:          decimal.RequireFromString(earnings).Div(decimal.RequireFromString("0.85")).Round(2),
		BreederEarnings:    decimal.RequireFromString(earnings),
		SaleDate:           saleDate,
		FundsAvailableDate: saleDate.Add(hold),
		PayoutStatus:       payoutStatus,
	}
}

func TestBuildPayoutSummary_Buckets(t *testing.T) {
	breeder := uuid.New()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	sales := []domain.SaleRecord{
		// Hold still running: pending.
		saleAt(breeder, "850.00", now.Add(-24*time.Hour), 72*time.Hour, domain.PayoutStatusPending),
		// Hold elapsed: available.
		saleAt(breeder, "425.00", now.Add(-96*time.Hour), 72*time.Hour, domain.PayoutStatusPending),
		// Already paid out.
		saleAt(breeder, "100.00", now.Add(-200*time.Hour), 72*time.Hour, domain.PayoutStatusPaid),
		// Cancelled sales count toward no total.
		saleAt(breeder, "50.00", now.Add(-200*time.Hour), 72*time.Hour, domain.PayoutStatusCancelled),
	}

	summary := BuildPayoutSummary(sales, now)

	if summary.PendingTotal.StringFixed(2) != "850.00" || summary.PendingCount != 1 {
		t.Errorf("pending: got %s/%d, want 850.00/1", summary.PendingTotal, summary.PendingCount)
	}
	if summary.AvailableTotal.StringFixed(2) != "425.00" || summary.AvailableCount != 1 {
		t.Errorf("available: got %s/%d, want 425.00/1", summary.AvailableTotal, summary.AvailableCount)
	}
	if summary.PaidTotal.StringFixed(2) != "100.00" {
		t.Errorf("paid: got %s, want 100.00", summary.PaidTotal)
	}
	if len(summary.Entries) != 4 {
		t.Fatalf("entries: got %d, want 4", len(summary.Entries))
	}

	buckets := map[string]int{}
	for _, e := range summary.Entries {
		buckets[e.Bucket]++
	}
	if buckets[domain.BucketPending] != 1 || buckets[domain.BucketAvailable] != 1 || buckets[domain.BucketPaid] != 1 || buckets[domain.BucketCancelled] != 1 {
		t.Errorf("bucket spread: %v", buckets)
	}
}

// A sale crosses from pending to available purely by the clock; the record is
// untouched.
func TestBuildPayoutSummary_TimeCrossesHoldWithoutWrites(t *testing.T) {
	breeder := uuid.New()
	saleDate := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	sales := []domain.SaleRecord{saleAt(breeder, "850.00", saleDate, 72*time.Hour, domain.PayoutStatusPending)}

	before := BuildPayoutSummary(sales, saleDate.Add(71*time.Hour))
	if before.Entries[0].Bucket != domain.BucketPending {
		t.Fatalf("before hold: got %s, want pending", before.Entries[0].Bucket)
	}

	after := BuildPayoutSummary(sales, saleDate.Add(73*time.Hour))
	if after.Entries[0].Bucket != domain.BucketAvailable {
		t.Fatalf("after hold: got %s, want available", after.Entries[0].Bucket)
	}
	if after.Entries[0].RemainingHold != "Available now" {
		t.Errorf("remaining hold: got %q", after.Entries[0].RemainingHold)
	}
}

func TestFormatRemainingHold(t *testing.T) {
	tests := []struct {
		remaining time.Duration
		want      string
	}{
		{72 * time.Hour, "72h 0m"},
		{47*time.Hour + 59*time.Minute, "47h 59m"},
		{90 * time.Second, "0h 2m"}, // rounds up to the next minute
		{30 * time.Minute, "0h 30m"},
	}
	for _, tt := range tests {
		if got := formatRemainingHold(tt.remaining); got != tt.want {
			t.Errorf("formatRemainingHold(%s): got %q, want %q", tt.remaining, got, tt.want)
		}
	}
}

func TestRequestPayout(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo, newStubStripe(), newStubPayPal(), &stubMailer{})
	breeder := uuid.New()

	// One sale past its hold, one still escrowed.
	available := saleAt(breeder, "425.00", time.Now().UTC().Add(-96*time.Hour), 72*time.Hour, domain.PayoutStatusPending)
	pending := saleAt(breeder, "850.00", time.Now().UTC().Add(-time.Hour), 72*time.Hour, domain.PayoutStatusPending)
	repo.sales[available.PaymentRef+"a"] = &available
	repo.sales[pending.PaymentRef+"b"] = &pending

	request, err := svc.RequestPayout(context.Background(), breeder)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if request.Amount.StringFixed(2) != "425.00" {
		t.Errorf("amount: got %s, want only the available earnings", request.Amount)
	}
	if request.SaleCount != 1 {
		t.Errorf("sale count: got %d, want 1", request.SaleCount)
	}
	if !contains(repo.auditActions(), domain.AuditActionPayoutRequested) {
		t.Error("expected a payout.requested audit row")
	}
}

func TestRequestPayout_NothingAvailable(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo, newStubStripe(), newStubPayPal(), &stubMailer{})
	breeder := uuid.New()

	pending := saleAt(breeder, "850.00", time.Now().UTC(), 72*time.Hour, domain.PayoutStatusPending)
	repo.sales[pending.PaymentRef+"a"] = &pending

	if _, err := svc.RequestPayout(context.Background(), breeder); !errors.Is(err, ErrNoPayoutAvailable) {
		t.Fatalf("expected ErrNoPayoutAvailable, got %v", err)
	}
}
