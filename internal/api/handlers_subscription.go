/**
 * @description
 * HTTP handlers for subscription creation. Stripe subscriptions come back with
 * a client secret for payment-method confirmation; PayPal subscriptions go
 * through a create / approve / complete round trip.
 */

package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
)

type createSubscriptionRequest struct {
	SubscriptionType string `json:"subscription_type"`
	CustomerID       string `json:"customer_id,omitempty"`
}

type completePayPalSubscriptionRequest struct {
	SubscriptionID string `json:"subscription_id"`
}

// CreateSubscriptionHandler starts a trialing Stripe subscription.
func (h *SettlementHandlers) CreateSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthenticatedUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	var req createSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	checkout, err := h.service.CreateStripeSubscription(r.Context(), userID, req.SubscriptionType, req.CustomerID)
	if err != nil {
		h.writeServiceError(w, "create_subscription", err)
		return
	}

	log.Printf("level=info component=api endpoint=create_subscription outcome=accepted user_id=%s plan=%s", userID, req.SubscriptionType)
	h.writeJSON(w, http.StatusCreated, checkout)
}

// CreatePayPalSubscriptionHandler starts a PayPal subscription pending buyer
// approval.
func (h *SettlementHandlers) CreatePayPalSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthenticatedUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	var req createSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	checkout, err := h.service.CreatePayPalSubscription(r.Context(), userID, req.SubscriptionType)
	if err != nil {
		h.writeServiceError(w, "create_paypal_subscription", err)
		return
	}

	log.Printf("level=info component=api endpoint=create_paypal_subscription outcome=accepted user_id=%s plan=%s", userID, req.SubscriptionType)
	h.writeJSON(w, http.StatusCreated, checkout)
}

// CompletePayPalSubscriptionHandler records a PayPal subscription after the
// buyer approved it.
func (h *SettlementHandlers) CompletePayPalSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthenticatedUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	var req completePayPalSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if req.SubscriptionID == "" {
		h.writeError(w, http.StatusBadRequest, "subscription_id is required")
		return
	}

	sub, err := h.service.CompletePayPalSubscription(r.Context(), userID, req.SubscriptionID)
	if err != nil {
		h.writeServiceError(w, "complete_paypal_subscription", err)
		return
	}

	log.Printf("level=info component=api endpoint=complete_paypal_subscription outcome=recorded user_id=%s subscription_id=%s", userID, sub.ID)
	h.writeJSON(w, http.StatusOK, sub)
}
