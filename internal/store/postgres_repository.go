/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It contains all the necessary SQL queries to interact with the database tables
 * related to listings, sales, subscriptions, and trial reminders.
 *
 * The settlement write path is the one place this service opens an explicit
 * transaction: marking a listing sold and inserting its sale record must
 * either both happen or neither, and the conditional listing update is the
 * arbiter between concurrent buyers.
 *
 * @dependencies
 * - context, time, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pawhaven/settlement-service/internal/domain"
)

var (
	ErrListingNotFound      = errors.New("listing not found")
	ErrListingUnavailable   = errors.New("listing is no longer available")
	ErrSaleNotFound         = errors.New("sale not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrUserNotFound         = errors.New("user not found")
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// FindListingByID retrieves a pet listing by its ID.
func (r *PostgresRepository) FindListingByID(ctx context.Context, listingID uuid.UUID) (*domain.Listing, error) {
	var listing domain.Listing
	query := `
		SELECT id, breeder_id, name, price, available, created_at, updated_at
		FROM listings
		WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, listingID).Scan(
		&listing.ID,
		&listing.BreederID,
		&listing.Name,
		&listing.Price,
		&listing.Available,
		&listing.CreatedAt,
		&listing.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrListingNotFound
		}
		return nil, err
	}
	return &listing, nil
}

// FindUserContactByID retrieves the contact details used for reminder emails.
func (r *PostgresRepository) FindUserContactByID(ctx context.Context, userID uuid.UUID) (*domain.UserContact, error) {
	var contact domain.UserContact
	query := `SELECT id, email, full_name FROM users WHERE id = $1`
	err := r.db.QueryRow(ctx, query, userID).Scan(&contact.ID, &contact.Email, &contact.FullName)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &contact, nil
}

// SettleSale atomically takes the listing off the market and records the sale.
// The conditional UPDATE is the concurrency arbiter: of two settlements racing
// on the same listing, exactly one sees rows affected and commits its sale
// record; the other rolls back with ErrListingUnavailable.
func (r *PostgresRepository) SettleSale(ctx context.Context, sale *domain.SaleRecord) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE listings
		SET available = FALSE, updated_at = NOW()
		WHERE id = $1 AND available = TRUE
	`, sale.PetID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrListingUnavailable
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO sales (
			id, pet_id, breeder_id, buyer_id,
			sale_price, platform_fee, breeder_earnings,
			payment_provider, payment_ref,
			sale_date, funds_available_date, payout_status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		sale.ID, sale.PetID, sale.BreederID, sale.BuyerID,
		sale.SalePrice, sale.PlatformFee, sale.BreederEarnings,
		sale.PaymentProvider, sale.PaymentRef,
		sale.SaleDate, sale.FundsAvailableDate, sale.PayoutStatus,
	)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// FindSaleByPaymentRef retrieves a sale record by its provider payment reference.
func (r *PostgresRepository) FindSaleByPaymentRef(ctx context.Context, paymentRef string) (*domain.SaleRecord, error) {
	var sale domain.SaleRecord
	query := `
		SELECT id, pet_id, breeder_id, buyer_id,
		       sale_price, platform_fee, breeder_earnings,
		       payment_provider, payment_ref,
		       sale_date, funds_available_date, payout_status, payout_date
		FROM sales
		WHERE payment_ref = $1
	`
	err := r.db.QueryRow(ctx, query, paymentRef).Scan(
		&sale.ID, &sale.PetID, &sale.BreederID, &sale.BuyerID,
		&sale.SalePrice, &sale.PlatformFee, &sale.BreederEarnings,
		&sale.PaymentProvider, &sale.PaymentRef,
		&sale.SaleDate, &sale.FundsAvailableDate, &sale.PayoutStatus, &sale.PayoutDate,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrSaleNotFound
		}
		return nil, err
	}
	return &sale, nil
}

// FindSalesByBreederID retrieves all sale records for a breeder, newest first.
func (r *PostgresRepository) FindSalesByBreederID(ctx context.Context, breederID uuid.UUID) ([]domain.SaleRecord, error) {
	query := `
		SELECT id, pet_id, breeder_id, buyer_id,
		       sale_price, platform_fee, breeder_earnings,
		       payment_provider, payment_ref,
		       sale_date, funds_available_date, payout_status, payout_date
		FROM sales
		WHERE breeder_id = $1
		ORDER BY sale_date DESC
	`
	rows, err := r.db.Query(ctx, query, breederID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sales []domain.SaleRecord
	for rows.Next() {
		var sale domain.SaleRecord
		err := rows.Scan(
			&sale.ID, &sale.PetID, &sale.BreederID, &sale.BuyerID,
			&sale.SalePrice, &sale.PlatformFee, &sale.BreederEarnings,
			&sale.PaymentProvider, &sale.PaymentRef,
			&sale.SaleDate, &sale.FundsAvailableDate, &sale.PayoutStatus, &sale.PayoutDate,
		)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	return sales, rows.Err()
}

// InsertAuditRecord appends one audit trace row. Audit rows are write-once and
// never read back by this service.
func (r *PostgresRepository) InsertAuditRecord(ctx context.Context, record *domain.AuditRecord) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO settlement_audit (
			id, actor_id, action, pet_id,
			amount, platform_fee, correlation_id, detail, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		record.ID, record.ActorID, record.Action, record.PetID,
		record.Amount, record.PlatformFee, record.CorrelationID, record.Detail, record.CreatedAt,
	)
	return err
}

// CreateSubscription inserts a new subscription record.
func (r *PostgresRepository) CreateSubscription(ctx context.Context, sub *domain.Subscription) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO subscriptions (
			id, user_id, subscription_type, status,
			provider, provider_subscription_id, started_at,
			is_trial, trial_start, trial_end
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		sub.ID, sub.UserID, sub.SubscriptionType, sub.Status,
		sub.Provider, sub.ProviderSubscriptionID, sub.StartedAt,
		sub.IsTrial, sub.TrialStart, sub.TrialEnd,
	)
	return err
}

// FindSubscriptionByID retrieves a subscription by its ID.
func (r *PostgresRepository) FindSubscriptionByID(ctx context.Context, subscriptionID uuid.UUID) (*domain.Subscription, error) {
	var sub domain.Subscription
	query := `
		SELECT id, user_id, subscription_type, status,
		       provider, provider_subscription_id, started_at,
		       is_trial, trial_start, trial_end
		FROM subscriptions
		WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, subscriptionID).Scan(
		&sub.ID, &sub.UserID, &sub.SubscriptionType, &sub.Status,
		&sub.Provider, &sub.ProviderSubscriptionID, &sub.StartedAt,
		&sub.IsTrial, &sub.TrialStart, &sub.TrialEnd,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	return &sub, nil
}

// FindActiveSubscriptionByUserID retrieves a user's active subscription, if any.
func (r *PostgresRepository) FindActiveSubscriptionByUserID(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	var sub domain.Subscription
	query := `
		SELECT id, user_id, subscription_type, status,
		       provider, provider_subscription_id, started_at,
		       is_trial, trial_start, trial_end
		FROM subscriptions
		WHERE user_id = $1 AND status = $2
		ORDER BY started_at DESC
		LIMIT 1
	`
	err := r.db.QueryRow(ctx, query, userID, domain.SubscriptionStatusActive).Scan(
		&sub.ID, &sub.UserID, &sub.SubscriptionType, &sub.Status,
		&sub.Provider, &sub.ProviderSubscriptionID, &sub.StartedAt,
		&sub.IsTrial, &sub.TrialStart, &sub.TrialEnd,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	return &sub, nil
}

// FindActiveTrialSubscriptions retrieves active trial subscriptions whose
// trial window has not yet ended. The reminder scanner narrows these down to
// the 48h/24h/day-of windows in memory.
func (r *PostgresRepository) FindActiveTrialSubscriptions(ctx context.Context, now time.Time) ([]domain.Subscription, error) {
	query := `
		SELECT id, user_id, subscription_type, status,
		       provider, provider_subscription_id, started_at,
		       is_trial, trial_start, trial_end
		FROM subscriptions
		WHERE status = $1 AND is_trial = TRUE AND trial_end > $2
	`
	rows, err := r.db.Query(ctx, query, domain.SubscriptionStatusActive, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []domain.Subscription
	for rows.Next() {
		var sub domain.Subscription
		err := rows.Scan(
			&sub.ID, &sub.UserID, &sub.SubscriptionType, &sub.Status,
			&sub.Provider, &sub.ProviderSubscriptionID, &sub.StartedAt,
			&sub.IsTrial, &sub.TrialStart, &sub.TrialEnd,
		)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// RecordTrialReminder claims the (subscription, reminder type) pair. The unique
// constraint on the pair makes this safe against overlapping scans: only the
// call that inserts the row reports true.
func (r *PostgresRepository) RecordTrialReminder(ctx context.Context, subscriptionID uuid.UUID, reminderType string, sentAt time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO trial_reminders (subscription_id, reminder_type, sent_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (subscription_id, reminder_type) DO NOTHING
	`, subscriptionID, reminderType, sentAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteTrialReminder releases a claimed reminder so a later scan can retry it.
// Used to compensate when the email send fails after the claim succeeded.
func (r *PostgresRepository) DeleteTrialReminder(ctx context.Context, subscriptionID uuid.UUID, reminderType string) error {
	_, err := r.db.Exec(ctx, `
		DELETE FROM trial_reminders
		WHERE subscription_id = $1 AND reminder_type = $2
	`, subscriptionID, reminderType)
	return err
}
