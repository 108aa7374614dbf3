/**
 * @description
 * This file defines the subscription and trial-reminder domain models.
 * A subscription carries a 7-day trial window; the reminder scanner fans out
 * at the 48-hour, 24-hour, and day-of marks before the trial ends, with
 * duplicates suppressed by the (subscription, reminder type) pair.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatusActive is the only status this service writes or queries;
// cancellations and lapses are recorded by the external billing webhook
// consumer.
const SubscriptionStatusActive = "active"

// Reminder types, ordered from earliest to latest before trial end.
const (
	ReminderType48Hours = "48_hours"
	ReminderType24Hours = "24_hours"
	ReminderTypeDayOf   = "day_of"
)

// Subscription represents a user's subscription record. One active record is
// expected per user, enforced by a pre-check at creation time.
type Subscription struct {
	ID                     uuid.UUID `json:"id"`
	UserID                 uuid.UUID `json:"user_id"`
	SubscriptionType       string    `json:"subscription_type"`
	Status                 string    `json:"status"`
	Provider               string    `json:"provider"`
	ProviderSubscriptionID string    `json:"provider_subscription_id"`
	StartedAt              time.Time `json:"started_at"`
	IsTrial                bool      `json:"is_trial"`
	TrialStart             time.Time `json:"trial_start"`
	TrialEnd               time.Time `json:"trial_end"`
}

// SubscriptionCheckout is the response to a subscription creation request.
type SubscriptionCheckout struct {
	SubscriptionID string `json:"subscriptionId"`
	ClientSecret   string `json:"clientSecret,omitempty"`
	CustomerID     string `json:"customerId,omitempty"`
}

// ReminderDispatchResult reports the outcome of one reminder send attempt.
type ReminderDispatchResult struct {
	SubscriptionID uuid.UUID `json:"subscription_id"`
	ReminderType   string    `json:"reminder_type"`
	Sent           bool      `json:"sent"`
	Error          string    `json:"error,omitempty"`
}

// ReminderScanResult aggregates one idempotent reminder scan run. Individual
// dispatch failures are collected here rather than aborting the scan.
type ReminderScanResult struct {
	Checked       int                      `json:"checked"`
	RemindersSent int                      `json:"reminders_sent"`
	Results       []ReminderDispatchResult `json:"results"`
}
