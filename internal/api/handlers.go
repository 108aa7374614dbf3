/**
 * @description
 * This file contains the HTTP handlers for the purchase settlement endpoints.
 * Handlers are responsible for parsing incoming requests, calling the
 * appropriate methods on the application service, and writing the HTTP
 * response. They act as the bridge between the web layer and the business
 * logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/store: For service logic and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/google/uuid"

	"github.com/pawhaven/settlement-service/internal/app"
	"github.com/pawhaven/settlement-service/internal/store"
)

// SettlementHandlers holds the application service that handlers will use.
type SettlementHandlers struct {
	service *app.Service
}

// NewSettlementHandlers creates a new instance of SettlementHandlers.
func NewSettlementHandlers(service *app.Service) *SettlementHandlers {
	return &SettlementHandlers{service: service}
}

type authorizePurchaseRequest struct {
	PetID string `json:"pet_id"`
}

type completePurchaseRequest struct {
	PaymentRef string `json:"payment_ref"`
}

// AuthorizePurchaseHandler handles requests to start a Stripe purchase.
func (h *SettlementHandlers) AuthorizePurchaseHandler(w http.ResponseWriter, r *http.Request) {
	buyerID, ok := GetAuthenticatedUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	var req authorizePurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	petID, err := uuid.Parse(req.PetID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid pet id")
		return
	}

	auth, err := h.service.AuthorizePurchase(r.Context(), buyerID, petID)
	if err != nil {
		h.writeServiceError(w, "authorize_purchase", err)
		return
	}

	log.Printf("level=info component=api endpoint=authorize_purchase outcome=accepted buyer_id=%s pet_id=%s", buyerID, petID)
	h.writeJSON(w, http.StatusCreated, auth)
}

// CompletePurchaseHandler settles a Stripe purchase after the client reports
// the payment finished.
func (h *SettlementHandlers) CompletePurchaseHandler(w http.ResponseWriter, r *http.Request) {
	buyerID, ok := GetAuthenticatedUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	var req completePurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if req.PaymentRef == "" {
		h.writeError(w, http.StatusBadRequest, "payment_ref is required")
		return
	}

	sale, err := h.service.CompletePurchase(r.Context(), buyerID, req.PaymentRef)
	if err != nil {
		h.writeServiceError(w, "complete_purchase", err)
		return
	}

	log.Printf("level=info component=api endpoint=complete_purchase outcome=settled buyer_id=%s sale_id=%s", buyerID, sale.ID)
	h.writeJSON(w, http.StatusOK, sale)
}

// AuthorizePayPalPurchaseHandler handles requests to start a PayPal purchase.
func (h *SettlementHandlers) AuthorizePayPalPurchaseHandler(w http.ResponseWriter, r *http.Request) {
	buyerID, ok := GetAuthenticatedUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	var req authorizePurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	petID, err := uuid.Parse(req.PetID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid pet id")
		return
	}

	auth, err := h.service.AuthorizePayPalPurchase(r.Context(), buyerID, petID)
	if err != nil {
		h.writeServiceError(w, "authorize_paypal_purchase", err)
		return
	}

	log.Printf("level=info component=api endpoint=authorize_paypal_purchase outcome=accepted buyer_id=%s pet_id=%s", buyerID, petID)
	h.writeJSON(w, http.StatusCreated, auth)
}

// CompletePayPalPurchaseHandler settles a PayPal purchase after buyer approval.
func (h *SettlementHandlers) CompletePayPalPurchaseHandler(w http.ResponseWriter, r *http.Request) {
	buyerID, ok := GetAuthenticatedUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	var req completePurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if req.PaymentRef == "" {
		h.writeError(w, http.StatusBadRequest, "payment_ref is required")
		return
	}

	sale, err := h.service.CompletePayPalPurchase(r.Context(), buyerID, req.PaymentRef)
	if err != nil {
		h.writeServiceError(w, "complete_paypal_purchase", err)
		return
	}

	log.Printf("level=info component=api endpoint=complete_paypal_purchase outcome=settled buyer_id=%s sale_id=%s", buyerID, sale.ID)
	h.writeJSON(w, http.StatusOK, sale)
}

// writeServiceError maps service errors to HTTP status codes.
func (h *SettlementHandlers) writeServiceError(w http.ResponseWriter, endpoint string, err error) {
	switch {
	case errors.Is(err, store.ErrListingNotFound):
		h.writeError(w, http.StatusNotFound, "Listing not found")
	case errors.Is(err, store.ErrSubscriptionNotFound):
		h.writeError(w, http.StatusNotFound, "Subscription not found")
	case errors.Is(err, store.ErrUserNotFound):
		h.writeError(w, http.StatusNotFound, "User not found")
	case errors.Is(err, store.ErrListingUnavailable):
		h.writeError(w, http.StatusConflict, "This pet is no longer available")
	case errors.Is(err, app.ErrPriceMismatch):
		h.writeError(w, http.StatusConflict, "The listing changed after authorization; the payment has been refunded")
	case errors.Is(err, app.ErrBuyerMismatch):
		h.writeError(w, http.StatusForbidden, "This payment belongs to another buyer")
	case errors.Is(err, app.ErrPaymentNotCompleted):
		h.writeError(w, http.StatusPaymentRequired, "Payment has not completed")
	case errors.Is(err, app.ErrAlreadySubscribed):
		h.writeError(w, http.StatusBadRequest, "You already have an active subscription")
	case errors.Is(err, app.ErrUnknownPlan):
		h.writeError(w, http.StatusBadRequest, "Unknown subscription plan")
	case errors.Is(err, app.ErrNoPayoutAvailable):
		h.writeError(w, http.StatusBadRequest, "No funds available for payout")
	default:
		log.Printf("level=error component=api endpoint=%s msg=\"request failed\" err=%v", endpoint, err)
		h.writeError(w, http.StatusInternalServerError, "Something went wrong")
	}
}

// writeJSON is a helper for writing JSON responses.
func (h *SettlementHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *SettlementHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
