/**
 * @description
 * Subscription creation with a trial window. Stripe subscriptions are created
 * trialing with the first invoice left incomplete so the frontend can confirm
 * the payment method; PayPal subscriptions go through an approve-then-complete
 * round trip because the subscription only activates after buyer approval.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/pawhaven/settlement-service/internal/domain"
	"github.com/pawhaven/settlement-service/internal/store"
	"github.com/pawhaven/settlement-service/pkg/paypalclient"
)

// CreateStripeSubscription starts a trialing Stripe subscription for the user.
// One active subscription per user is enforced by a pre-check. A Stripe
// customer is created only when the caller has none yet.
func (s *Service) CreateStripeSubscription(ctx context.Context, userID uuid.UUID, subscriptionType, customerID string) (*domain.SubscriptionCheckout, error) {
	log.Printf("CreateStripeSubscription: user %s subscribing to plan %s", userID, subscriptionType)

	priceID, ok := s.stripePriceIDs[subscriptionType]
	if !ok {
		return nil, ErrUnknownPlan
	}
	if err := s.ensureNotSubscribed(ctx, userID); err != nil {
		return nil, err
	}

	if customerID == "" {
		contact, err := s.repo.FindUserContactByID(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to find user: %w", err)
		}
		customerID, err = s.stripe.CreateCustomer(ctx, contact.Email)
		if err != nil {
			return nil, fmt.Errorf("failed to create customer: %w", err)
		}
	}

	sub, err := s.stripe.CreateTrialSubscription(ctx, customerID, priceID, s.trialDays)
	if err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}

	if err := s.insertTrialSubscription(ctx, userID, subscriptionType, domain.ProviderStripe, sub.ID); err != nil {
		return nil, err
	}

	return &domain.SubscriptionCheckout{
		SubscriptionID: sub.ID,
		ClientSecret:   sub.ClientSecret,
		CustomerID:     customerID,
	}, nil
}

// CreatePayPalSubscription creates a PayPal billing subscription pending buyer
// approval. The local record is written only once the client reports the
// approval complete.
func (s *Service) CreatePayPalSubscription(ctx context.Context, userID uuid.UUID, subscriptionType string) (*domain.SubscriptionCheckout, error) {
	log.Printf("CreatePayPalSubscription: user %s subscribing to plan %s", userID, subscriptionType)

	planID, ok := s.paypalPlanIDs[subscriptionType]
	if !ok {
		return nil, ErrUnknownPlan
	}
	if err := s.ensureNotSubscribed(ctx, userID); err != nil {
		return nil, err
	}

	sub, err := s.paypal.CreateSubscription(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to create paypal subscription: %w", err)
	}

	return &domain.SubscriptionCheckout{SubscriptionID: sub.ID}, nil
}

// CompletePayPalSubscription verifies the PayPal subscription went active
// after buyer approval and records it locally with its trial window. The plan
// type is derived from the provider-stored plan id, never from the client.
func (s *Service) CompletePayPalSubscription(ctx context.Context, userID uuid.UUID, providerSubscriptionID string) (*domain.Subscription, error) {
	log.Printf("CompletePayPalSubscription: user %s completing subscription %s", userID, providerSubscriptionID)

	sub, err := s.paypal.GetSubscription(ctx, providerSubscriptionID)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve paypal subscription: %w", err)
	}
	if sub.Status != paypalclient.SubscriptionStatusActive {
		log.Printf("CompletePayPalSubscription: subscription %s not active (status=%s)", providerSubscriptionID, sub.Status)
		return nil, ErrPaymentNotCompleted
	}
	subscriptionType, ok := s.planTypeForPayPalPlan(sub.PlanID)
	if !ok {
		log.Printf("CompletePayPalSubscription: subscription %s is on unrecognized plan %s", providerSubscriptionID, sub.PlanID)
		return nil, ErrUnknownPlan
	}

	if err := s.ensureNotSubscribed(ctx, userID); err != nil {
		return nil, err
	}
	if err := s.insertTrialSubscription(ctx, userID, subscriptionType, domain.ProviderPayPal, providerSubscriptionID); err != nil {
		return nil, err
	}
	return s.repo.FindActiveSubscriptionByUserID(ctx, userID)
}

// planTypeForPayPalPlan reverse-maps a provider plan id to its configured
// subscription type.
func (s *Service) planTypeForPayPalPlan(planID string) (string, bool) {
	for subscriptionType, id := range s.paypalPlanIDs {
		if id == planID {
			return subscriptionType, true
		}
	}
	return "", false
}

// ensureNotSubscribed rejects subscription creation for users who already
// have an active subscription.
func (s *Service) ensureNotSubscribed(ctx context.Context, userID uuid.UUID) error {
	_, err := s.repo.FindActiveSubscriptionByUserID(ctx, userID)
	if err == nil {
		return ErrAlreadySubscribed
	}
	if errors.Is(err, store.ErrSubscriptionNotFound) {
		return nil
	}
	return fmt.Errorf("failed to check existing subscription: %w", err)
}

func (s *Service) insertTrialSubscription(ctx context.Context, userID uuid.UUID, subscriptionType, provider, providerSubscriptionID string) error {
	now := time.Now().UTC()
	record := &domain.Subscription{
		ID:                     uuid.New(),
		UserID:                 userID,
		SubscriptionType:       subscriptionType,
		Status:                 domain.SubscriptionStatusActive,
		Provider:               provider,
		ProviderSubscriptionID: providerSubscriptionID,
		StartedAt:              now,
		IsTrial:                true,
		TrialStart:             now,
		TrialEnd:               now.Add(time.Duration(s.trialDays) * 24 * time.Hour),
	}
	if err := s.repo.CreateSubscription(ctx, record); err != nil {
		return fmt.Errorf("failed to record subscription: %w", err)
	}
	log.Printf("CreateSubscription: recorded %s subscription %s for user %s (trial ends %s)", provider, record.ID, userID, record.TrialEnd)
	return nil
}
