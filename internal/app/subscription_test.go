package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/pawhaven/settlement-service/internal/domain"
	"github.com/pawhaven/settlement-service/pkg/paypalclient"
)

func TestCreateStripeSubscription(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo, newStubStripe(), newStubPayPal(), &stubMailer{})
	userID := uuid.New()
	repo.contacts[userID] = &domain.UserContact{ID: userID, Email: "new@example.com", FullName: "New Breeder"}

	checkout, err := svc.CreateStripeSubscription(context.Background(), userID, "monthly", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if checkout.SubscriptionID == "" || checkout.ClientSecret == "" || checkout.CustomerID == "" {
		t.Fatalf("incomplete checkout: %+v", checkout)
	}

	recorded, err := repo.FindActiveSubscriptionByUserID(context.Background(), userID)
	if err != nil {
		t.Fatalf("subscription not recorded: %v", err)
	}
	if !recorded.IsTrial {
		t.Error("subscription not marked as trial")
	}
	if got := recorded.TrialEnd.Sub(recorded.TrialStart); got != 7*24*time.Hour {
		t.Errorf("trial window: got %s, want 168h", got)
	}
}

func TestCreateStripeSubscription_AlreadySubscribed(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo, newStubStripe(), newStubPayPal(), &stubMailer{})
	userID := uuid.New()
	repo.contacts[userID] = &domain.UserContact{ID: userID, Email: "new@example.com", FullName: "New Breeder"}

	if _, err := svc.CreateStripeSubscription(context.Background(), userID, "monthly", ""); err != nil {
		t.Fatalf("first subscription: %v", err)
	}
	if _, err := svc.CreateStripeSubscription(context.Background(), userID, "yearly", ""); !errors.Is(err, ErrAlreadySubscribed) {
		t.Fatalf("expected ErrAlreadySubscribed, got %v", err)
	}
}

func TestCreateStripeSubscription_ReusesExistingCustomer(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo, newStubStripe(), newStubPayPal(), &stubMailer{})

	// No contact seeded: reusing the supplied customer must not require a
	// lookup or a new customer.
	checkout, err := svc.CreateStripeSubscription(context.Background(), uuid.New(), "monthly", "cus_existing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if checkout.CustomerID != "cus_existing" {
		t.Fatalf("customer id: got %q, want the supplied one", checkout.CustomerID)
	}
}

func TestCreateStripeSubscription_UnknownPlan(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo, newStubStripe(), newStubPayPal(), &stubMailer{})

	if _, err := svc.CreateStripeSubscription(context.Background(), uuid.New(), "lifetime", ""); !errors.Is(err, ErrUnknownPlan) {
		t.Fatalf("expected ErrUnknownPlan, got %v", err)
	}
}

func TestCompletePayPalSubscription(t *testing.T) {
	repo := newStubRepo()
	paypal := newStubPayPal()
	svc := newTestService(repo, newStubStripe(), paypal, &stubMailer{})
	userID := uuid.New()

	checkout, err := svc.CreatePayPalSubscription(context.Background(), userID, "monthly")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Not yet approved by the buyer: completion must refuse.
	if _, err := svc.CompletePayPalSubscription(context.Background(), userID, checkout.SubscriptionID); !errors.Is(err, ErrPaymentNotCompleted) {
		t.Fatalf("expected ErrPaymentNotCompleted, got %v", err)
	}
	if _, err := repo.FindActiveSubscriptionByUserID(context.Background(), userID); err == nil {
		t.Fatal("subscription recorded before approval")
	}

	paypal.subs[checkout.SubscriptionID].Status = paypalclient.SubscriptionStatusActive

	recorded, err := svc.CompletePayPalSubscription(context.Background(), userID, checkout.SubscriptionID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if recorded.Provider != domain.ProviderPayPal || recorded.ProviderSubscriptionID != checkout.SubscriptionID {
		t.Errorf("unexpected record: %+v", recorded)
	}
	if recorded.SubscriptionType != "monthly" {
		t.Errorf("subscription type: got %q, want the provider plan's type", recorded.SubscriptionType)
	}
}

func TestCompletePayPalSubscription_TypeComesFromProviderPlan(t *testing.T) {
	repo := newStubRepo()
	paypal := newStubPayPal()
	svc := newTestService(repo, newStubStripe(), paypal, &stubMailer{})
	userID := uuid.New()

	// Active provider subscription on the monthly plan; the recorded type
	// must come from the plan id, with no way for the client to claim a
	// different tier.
	paypal.subs["I-MONTHLY-SUB"] = &paypalclient.Subscription{
		ID:     "I-MONTHLY-SUB",
		Status: paypalclient.SubscriptionStatusActive,
		PlanID: "P-MONTHLY",
	}

	recorded, err := svc.CompletePayPalSubscription(context.Background(), userID, "I-MONTHLY-SUB")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if recorded.SubscriptionType != "monthly" {
		t.Fatalf("subscription type: got %q, want %q", recorded.SubscriptionType, "monthly")
	}
}

func TestCompletePayPalSubscription_UnrecognizedProviderPlan(t *testing.T) {
	repo := newStubRepo()
	paypal := newStubPayPal()
	svc := newTestService(repo, newStubStripe(), paypal, &stubMailer{})
	userID := uuid.New()

	paypal.subs["I-RETIRED-SUB"] = &paypalclient.Subscription{
		ID:     "I-RETIRED-SUB",
		Status: paypalclient.SubscriptionStatusActive,
		PlanID: "P-RETIRED",
	}

	if _, err := svc.CompletePayPalSubscription(context.Background(), userID, "I-RETIRED-SUB"); !errors.Is(err, ErrUnknownPlan) {
		t.Fatalf("expected ErrUnknownPlan, got %v", err)
	}
	if _, err := repo.FindActiveSubscriptionByUserID(context.Background(), userID); err == nil {
		t.Fatal("subscription recorded despite unrecognized plan")
	}
}
