/**
 * @description
 * This file defines the domain models for pet listings as seen by the
 * settlement-service. Listings are owned by the marketplace catalog; this
 * service reads them as the single source of truth for price and ownership,
 * and flips availability exactly once per successful settlement.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Listing represents a pet listing row. The stored price is authoritative;
// client-supplied amounts are never trusted for fee computation.
type Listing struct {
	ID        uuid.UUID       `json:"id"`
	BreederID uuid.UUID       `json:"breeder_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Available bool            `json:"available"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// UserContact carries the contact details needed to dispatch a notification
// email to a user.
type UserContact struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	FullName string    `json:"full_name"`
}
