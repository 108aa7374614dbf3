/**
 * @description
 * This package provides a client for interacting with the PayPal REST API.
 * It encapsulates OAuth2 client-credentials authentication (with in-process
 * token caching), order creation and capture for one-time purchases, capture
 * refunds, and subscription lookups.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, sync, time: Standard Go libraries.
 */
package paypalclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Order statuses returned by PayPal's checkout API.
const (
	OrderStatusCreated   = "CREATED"
	OrderStatusApproved  = "APPROVED"
	OrderStatusCompleted = "COMPLETED"
)

// Subscription statuses returned by PayPal's billing API.
const (
	SubscriptionStatusActive          = "ACTIVE"
	SubscriptionStatusApprovalPending = "APPROVAL_PENDING"
)

// Client is a client for the PayPal REST API.
type Client struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	HTTPClient   *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewClient creates a new PayPal API client.
func NewClient(baseURL, clientID, clientSecret string) *Client {
	return &Client{
		BaseURL:      baseURL,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Amount is a PayPal money object.
type Amount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

// Capture is one completed capture attached to a purchase unit.
type Capture struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Amount Amount `json:"amount"`
}

// PurchaseUnit is one purchase unit of an order. CustomID carries opaque
// application metadata through the checkout round-trip (127 char limit).
type PurchaseUnit struct {
	ReferenceID string `json:"reference_id,omitempty"`
	CustomID    string `json:"custom_id,omitempty"`
	Amount      Amount `json:"amount"`
	Payments    *struct {
		Captures []Capture `json:"captures"`
	} `json:"payments,omitempty"`
}

// Order is a PayPal checkout order.
type Order struct {
	ID            string         `json:"id"`
	Status        string         `json:"status"`
	PurchaseUnits []PurchaseUnit `json:"purchase_units"`
}

// Subscription is a PayPal billing subscription.
type Subscription struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	PlanID string `json:"plan_id"`
}

// Refund is the response from a capture refund.
type Refund struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// ErrorResponse represents an error from the PayPal API.
type ErrorResponse struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Details []struct {
		Issue       string `json:"issue"`
		Description string `json:"description"`
	} `json:"details"`
}

func (e *ErrorResponse) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("paypal api error: %s - %s", e.Name, e.Details[0].Description)
	}
	if e.Message != "" {
		return fmt.Sprintf("paypal api error: %s - %s", e.Name, e.Message)
	}
	return "unknown paypal api error"
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// getAccessToken returns a cached OAuth2 token, refreshing it when it is
// within a minute of expiry.
func (c *Client) getAccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry.Add(-time.Minute)) {
		return c.accessToken, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.SetBasicAuth(c.ClientID, c.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute token request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("level=warn component=paypal_client op=token status=%d msg=\"token request failed\"", resp.StatusCode)
		return "", fmt.Errorf("paypal token request failed (status %d)", resp.StatusCode)
	}

	var token tokenResponse
	if err := json.Unmarshal(bodyBytes, &token); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}

	c.accessToken = token.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)
	return c.accessToken, nil
}

// CreateOrder creates a checkout order for the given USD value. customID is
// carried on the purchase unit and read back at capture time.
func (c *Client) CreateOrder(ctx context.Context, value string, customID string) (*Order, error) {
	payload := map[string]interface{}{
		"intent": "CAPTURE",
		"purchase_units": []PurchaseUnit{
			{
				CustomID: customID,
				Amount:   Amount{CurrencyCode: "USD", Value: value},
			},
		},
	}
	var order Order
	if err := c.do(ctx, "POST", "/v2/checkout/orders", payload, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrder retrieves an order by its ID.
func (c *Client) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	var order Order
	if err := c.do(ctx, "GET", "/v2/checkout/orders/"+orderID, nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// CaptureOrder captures an approved order. Capturing an already-captured
// order returns the completed order rather than an error so retries converge.
func (c *Client) CaptureOrder(ctx context.Context, orderID string) (*Order, error) {
	var order Order
	err := c.do(ctx, "POST", "/v2/checkout/orders/"+orderID+"/capture", map[string]interface{}{}, &order)
	if err != nil {
		var apiErr *ErrorResponse
		if errors.As(err, &apiErr) && hasIssue(apiErr, "ORDER_ALREADY_CAPTURED") {
			return c.GetOrder(ctx, orderID)
		}
		return nil, err
	}
	return &order, nil
}

// RefundCapture refunds a completed capture in full.
func (c *Client) RefundCapture(ctx context.Context, captureID string) (*Refund, error) {
	var refund Refund
	if err := c.do(ctx, "POST", "/v2/payments/captures/"+captureID+"/refund", map[string]interface{}{}, &refund); err != nil {
		return nil, err
	}
	return &refund, nil
}

// CreateSubscription creates a billing subscription on the given plan.
func (c *Client) CreateSubscription(ctx context.Context, planID string) (*Subscription, error) {
	payload := map[string]interface{}{"plan_id": planID}
	var sub Subscription
	if err := c.do(ctx, "POST", "/v1/billing/subscriptions", payload, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetSubscription retrieves a billing subscription by its ID.
func (c *Client) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	var sub Subscription
	if err := c.do(ctx, "GET", "/v1/billing/subscriptions/"+subscriptionID, nil, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// do executes one authenticated API call and decodes the response into out.
func (c *Client) do(ctx context.Context, method, path string, payload, out interface{}) error {
	token, err := c.getAccessToken(ctx)
	if err != nil {
		return err
	}

	var bodyReader io.Reader
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewBuffer(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp ErrorResponse
		if err := json.Unmarshal(bodyBytes, &errResp); err != nil {
			log.Printf("level=warn component=paypal_client op=%s path=%s status=%d msg=\"non-2xx response (unparsable error body)\"", method, path, resp.StatusCode)
			return fmt.Errorf("failed to decode error response (status %d)", resp.StatusCode)
		}
		log.Printf("level=warn component=paypal_client op=%s path=%s status=%d name=%q msg=%q", method, path, resp.StatusCode, errResp.Name, errResp.Message)
		return &errResp
	}

	if out != nil && len(bodyBytes) > 0 {
		if err := json.Unmarshal(bodyBytes, out); err != nil {
			return fmt.Errorf("failed to decode success response: %w", err)
		}
	}
	return nil
}

func hasIssue(err *ErrorResponse, issue string) bool {
	for _, d := range err.Details {
		if d.Issue == issue {
			return true
		}
	}
	return false
}
