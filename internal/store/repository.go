/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for
 * all data access operations required by the settlement-service. By defining an
 * interface, we decouple the settlement logic from the specific database
 * implementation (e.g., PostgreSQL), making the code more modular and easier to test.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/pawhaven/settlement-service/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Listing and user methods
	FindListingByID(ctx context.Context, listingID uuid.UUID) (*domain.Listing, error)
	FindUserContactByID(ctx context.Context, userID uuid.UUID) (*domain.UserContact, error)

	// Settlement methods
	// SettleSale atomically marks the listing sold and inserts the sale record
	// in a single transaction. It returns ErrListingUnavailable if the listing
	// was already taken by a concurrent settlement.
	SettleSale(ctx context.Context, sale *domain.SaleRecord) error
	FindSaleByPaymentRef(ctx context.Context, paymentRef string) (*domain.SaleRecord, error)
	FindSalesByBreederID(ctx context.Context, breederID uuid.UUID) ([]domain.SaleRecord, error)
	InsertAuditRecord(ctx context.Context, record *domain.AuditRecord) error

	// Subscription methods
	CreateSubscription(ctx context.Context, sub *domain.Subscription) error
	FindSubscriptionByID(ctx context.Context, subscriptionID uuid.UUID) (*domain.Subscription, error)
	FindActiveSubscriptionByUserID(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error)
	FindActiveTrialSubscriptions(ctx context.Context, now time.Time) ([]domain.Subscription, error)

	// Trial reminder methods
	// RecordTrialReminder claims the (subscription, reminder type) pair and
	// reports whether this call won the claim. A false return means the
	// reminder was already recorded by an earlier scan.
	RecordTrialReminder(ctx context.Context, subscriptionID uuid.UUID, reminderType string, sentAt time.Time) (bool, error)
	DeleteTrialReminder(ctx context.Context, subscriptionID uuid.UUID, reminderType string) error
}
