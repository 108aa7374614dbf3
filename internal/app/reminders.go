/**
 * @description
 * Trial expiration reminder scan. The scheduler invokes the scan repeatedly;
 * each run classifies active trials into the 48-hour, 24-hour, and day-of
 * windows before trial end and sends at most one email per (subscription,
 * window) pair. The dedup claim is taken before the send and released again
 * if the send fails, so a later scan retries it.
 */

package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/pawhaven/settlement-service/internal/domain"
	"github.com/pawhaven/settlement-service/pkg/rabbitmq"
)

// reminderTypeForHours maps the hours remaining on a trial to a reminder
// window. Each window is one hour wide so a scan running at least hourly
// catches every trial exactly once per window.
func reminderTypeForHours(hoursLeft float64) (string, bool) {
	switch {
	case hoursLeft > 0 && hoursLeft <= 1:
		return domain.ReminderTypeDayOf, true
	case hoursLeft > 23 && hoursLeft <= 24:
		return domain.ReminderType24Hours, true
	case hoursLeft > 47 && hoursLeft <= 48:
		return domain.ReminderType48Hours, true
	default:
		return "", false
	}
}

// RunTrialReminderScan checks all active trials and dispatches any reminders
// whose window is open. The scan is idempotent: reminders already claimed by
// an earlier run are skipped, and individual send failures are collected
// rather than aborting the run.
func (s *Service) RunTrialReminderScan(ctx context.Context) (*domain.ReminderScanResult, error) {
	now := time.Now().UTC()
	subs, err := s.repo.FindActiveTrialSubscriptions(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to load active trials: %w", err)
	}

	result := &domain.ReminderScanResult{Checked: len(subs)}
	for _, sub := range subs {
		reminderType, ok := reminderTypeForHours(sub.TrialEnd.Sub(now).Hours())
		if !ok {
			continue
		}

		claimed, err := s.repo.RecordTrialReminder(ctx, sub.ID, reminderType, now)
		if err != nil {
			log.Printf("level=error component=reminders msg=\"reminder claim failed\" subscription_id=%s type=%s err=%v", sub.ID, reminderType, err)
			result.Results = append(result.Results, domain.ReminderDispatchResult{
				SubscriptionID: sub.ID,
				ReminderType:   reminderType,
				Error:          err.Error(),
			})
			continue
		}
		if !claimed {
			continue
		}

		dispatch := domain.ReminderDispatchResult{SubscriptionID: sub.ID, ReminderType: reminderType}
		if err := s.dispatchReminder(ctx, sub, reminderType); err != nil {
			log.Printf("level=error component=reminders msg=\"reminder send failed\" subscription_id=%s type=%s err=%v", sub.ID, reminderType, err)
			// Release the claim so the next scan retries this reminder.
			if delErr := s.repo.DeleteTrialReminder(ctx, sub.ID, reminderType); delErr != nil {
				log.Printf("level=error component=reminders msg=\"reminder claim release failed\" subscription_id=%s type=%s err=%v", sub.ID, reminderType, delErr)
			}
			dispatch.Error = err.Error()
		} else {
			dispatch.Sent = true
			result.RemindersSent++
		}
		result.Results = append(result.Results, dispatch)
	}

	log.Printf("RunTrialReminderScan: checked %d trials, sent %d reminders", result.Checked, result.RemindersSent)
	return result, nil
}

// SendTrialReminder force-sends one reminder for a subscription, subject to
// the same dedup claim as the scan. Used by the internal ops endpoint.
func (s *Service) SendTrialReminder(ctx context.Context, subscriptionID uuid.UUID, reminderType string) (*domain.ReminderDispatchResult, error) {
	switch reminderType {
	case domain.ReminderType48Hours, domain.ReminderType24Hours, domain.ReminderTypeDayOf:
	default:
		return nil, fmt.Errorf("unknown reminder type %q", reminderType)
	}

	sub, err := s.repo.FindSubscriptionByID(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}

	claimed, err := s.repo.RecordTrialReminder(ctx, sub.ID, reminderType, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to claim reminder: %w", err)
	}
	dispatch := &domain.ReminderDispatchResult{SubscriptionID: sub.ID, ReminderType: reminderType}
	if !claimed {
		return dispatch, nil
	}

	if err := s.dispatchReminder(ctx, *sub, reminderType); err != nil {
		if delErr := s.repo.DeleteTrialReminder(ctx, sub.ID, reminderType); delErr != nil {
			log.Printf("level=error component=reminders msg=\"reminder claim release failed\" subscription_id=%s type=%s err=%v", sub.ID, reminderType, delErr)
		}
		dispatch.Error = err.Error()
		return dispatch, nil
	}
	dispatch.Sent = true
	return dispatch, nil
}

// dispatchReminder sends the reminder email and publishes the sent event.
func (s *Service) dispatchReminder(ctx context.Context, sub domain.Subscription, reminderType string) error {
	contact, err := s.repo.FindUserContactByID(ctx, sub.UserID)
	if err != nil {
		return fmt.Errorf("failed to find subscriber: %w", err)
	}

	subject, html := reminderEmail(contact.FullName, reminderType, sub.TrialEnd)
	if _, err := s.mailer.Send(ctx, contact.Email, subject, html); err != nil {
		return fmt.Errorf("failed to send reminder email: %w", err)
	}

	event := rabbitmq.TrialReminderSentEvent{
		SubscriptionID: sub.ID,
		UserID:         sub.UserID,
		ReminderType:   reminderType,
		Timestamp:      time.Now().UTC(),
	}
	if err := s.eventProducer.Publish(ctx, rabbitmq.MarketplaceExchange, rabbitmq.RoutingKeyTrialReminderSent, event); err != nil {
		log.Printf("level=warn component=reminders msg=\"trial.reminder.sent publish failed\" subscription_id=%s err=%v", sub.ID, err)
	}
	return nil
}

func reminderEmail(name, reminderType string, trialEnd time.Time) (subject, html string) {
	when := "soon"
	switch reminderType {
	case domain.ReminderType48Hours:
		when = "in 2 days"
	case domain.ReminderType24Hours:
		when = "tomorrow"
	case domain.ReminderTypeDayOf:
		when = "today"
	}
	subject = fmt.Sprintf("Your free trial ends %s", when)
	html = fmt.Sprintf(
		"<p>Hi %s,</p><p>Your free trial ends %s (%s). Add a payment method to keep your breeder tools active.</p>",
		name, when, trialEnd.Format("January 2, 2006 at 3:04 PM MST"),
	)
	return subject, html
}
