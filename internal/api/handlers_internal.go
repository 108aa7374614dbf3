/**
 * @description
 * HTTP handlers for the internal ops endpoints behind the shared-secret guard:
 * triggering a trial reminder scan out of schedule and force-sending a single
 * reminder.
 */

package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/google/uuid"

	"github.com/pawhaven/settlement-service/internal/domain"
)

type sendReminderRequest struct {
	SubscriptionID string `json:"subscription_id"`
	ReminderType   string `json:"reminder_type"`
}

// TrialReminderCheckHandler runs one reminder scan immediately.
func (h *SettlementHandlers) TrialReminderCheckHandler(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.RunTrialReminderScan(r.Context())
	if err != nil {
		h.writeServiceError(w, "trial_reminder_check", err)
		return
	}
	log.Printf("level=info component=api endpoint=trial_reminder_check checked=%d sent=%d", result.Checked, result.RemindersSent)
	h.writeJSON(w, http.StatusOK, result)
}

// TrialReminderSendHandler force-sends one reminder, subject to the normal
// dedup claim.
func (h *SettlementHandlers) TrialReminderSendHandler(w http.ResponseWriter, r *http.Request) {
	var req sendReminderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	subscriptionID, err := uuid.Parse(req.SubscriptionID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid subscription id")
		return
	}
	switch req.ReminderType {
	case domain.ReminderType48Hours, domain.ReminderType24Hours, domain.ReminderTypeDayOf:
	default:
		h.writeError(w, http.StatusBadRequest, "Invalid reminder type")
		return
	}

	dispatch, err := h.service.SendTrialReminder(r.Context(), subscriptionID, req.ReminderType)
	if err != nil {
		h.writeServiceError(w, "trial_reminder_send", err)
		return
	}
	h.writeJSON(w, http.StatusOK, dispatch)
}
