/**
 * @description
 * This package wraps the official Stripe Go SDK behind the small surface the
 * settlement flow needs: payment intents for one-time pet purchases, customers
 * and trialing subscriptions for the breeder plan, and full refunds for
 * settlement rejections. Amounts cross this boundary as integer cents.
 *
 * @dependencies
 * - github.com/stripe/stripe-go/v74: The official Stripe SDK.
 */
package stripeclient

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
)

// Payment intent statuses this service inspects.
const (
	PaymentIntentStatusSucceeded = string(stripe.PaymentIntentStatusSucceeded)
)

// Client wraps an initialized Stripe API client.
type Client struct {
	api *client.API
}

// NewClient creates a new Stripe client with the given secret key.
func NewClient(apiKey string) *Client {
	api := &client.API{}
	api.Init(apiKey, nil)
	return &Client{api: api}
}

// PaymentIntent is the subset of a Stripe payment intent the settlement flow reads.
type PaymentIntent struct {
	ID           string
	ClientSecret string
	Status       string
	AmountCents  int64
	Metadata     map[string]string
}

// Subscription is the subset of a Stripe subscription the subscription flow reads.
type Subscription struct {
	ID           string
	Status       string
	CustomerID   string
	ClientSecret string
}

// Refund is the result of a payment intent refund.
type Refund struct {
	ID     string
	Status string
}

// CreatePaymentIntent creates a payment intent for the given amount in cents,
// attaching the provided metadata. The metadata is the settlement contract:
// it is read back verbatim when the client reports the payment complete.
func (c *Client) CreatePaymentIntent(ctx context.Context, amountCents int64, metadata map[string]string) (*PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Params:   stripe.Params{Context: ctx},
		Amount:   stripe.Int64(amountCents),
		Currency: stripe.String(string(stripe.CurrencyUSD)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	pi, err := c.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}
	return toPaymentIntent(pi), nil
}

// GetPaymentIntent retrieves a payment intent by its ID.
func (c *Client) GetPaymentIntent(ctx context.Context, paymentIntentID string) (*PaymentIntent, error) {
	pi, err := c.api.PaymentIntents.Get(paymentIntentID, &stripe.PaymentIntentParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve payment intent: %w", err)
	}
	return toPaymentIntent(pi), nil
}

// CreateCustomer creates a Stripe customer for the given email.
func (c *Client) CreateCustomer(ctx context.Context, email string) (string, error) {
	cust, err := c.api.Customers.New(&stripe.CustomerParams{
		Params: stripe.Params{Context: ctx},
		Email:  stripe.String(email),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create customer: %w", err)
	}
	return cust.ID, nil
}

// CreateTrialSubscription creates a subscription on the given price with a
// trial period. The first invoice is left incomplete so the frontend can
// confirm the payment method with the returned client secret.
func (c *Client) CreateTrialSubscription(ctx context.Context, customerID, priceID string, trialDays int64) (*Subscription, error) {
	params := &stripe.SubscriptionParams{
		Params:   stripe.Params{Context: ctx},
		Customer: stripe.String(customerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(priceID)},
		},
		TrialPeriodDays: stripe.Int64(trialDays),
		PaymentBehavior: stripe.String("default_incomplete"),
	}
	params.AddExpand("latest_invoice.payment_intent")

	sub, err := c.api.Subscriptions.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}

	out := &Subscription{
		ID:         sub.ID,
		Status:     string(sub.Status),
		CustomerID: customerID,
	}
	if sub.LatestInvoice != nil && sub.LatestInvoice.PaymentIntent != nil {
		out.ClientSecret = sub.LatestInvoice.PaymentIntent.ClientSecret
	}
	return out, nil
}

// RefundPaymentIntent refunds a payment intent in full.
func (c *Client) RefundPaymentIntent(ctx context.Context, paymentIntentID string) (*Refund, error) {
	refund, err := c.api.Refunds.New(&stripe.RefundParams{
		Params:        stripe.Params{Context: ctx},
		PaymentIntent: stripe.String(paymentIntentID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to refund payment intent: %w", err)
	}
	return &Refund{ID: refund.ID, Status: string(refund.Status)}, nil
}

func toPaymentIntent(pi *stripe.PaymentIntent) *PaymentIntent {
	return &PaymentIntent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		AmountCents:  pi.Amount,
		Metadata:     pi.Metadata,
	}
}
