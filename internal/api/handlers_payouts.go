/**
 * @description
 * HTTP handlers for the breeder payout endpoints: the ledger summary and the
 * payout request.
 */

package api

import (
	"log"
	"net/http"
)

// PayoutSummaryHandler returns the authenticated breeder's sales classified
// into payout buckets.
func (h *SettlementHandlers) PayoutSummaryHandler(w http.ResponseWriter, r *http.Request) {
	breederID, ok := GetAuthenticatedUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	summary, err := h.service.GetPayoutSummary(r.Context(), breederID)
	if err != nil {
		h.writeServiceError(w, "payout_summary", err)
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

// RequestPayoutHandler records the breeder's request to pay out their
// available balance.
func (h *SettlementHandlers) RequestPayoutHandler(w http.ResponseWriter, r *http.Request) {
	breederID, ok := GetAuthenticatedUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	request, err := h.service.RequestPayout(r.Context(), breederID)
	if err != nil {
		h.writeServiceError(w, "request_payout", err)
		return
	}

	log.Printf("level=info component=api endpoint=request_payout outcome=accepted breeder_id=%s amount=%s", breederID, request.Amount)
	h.writeJSON(w, http.StatusAccepted, request)
}
