/**
 * @description
 * PayPal variant of the purchase settlement flow. PayPal orders carry their
 * settlement context in the purchase unit custom_id (pet, buyer, and breeder,
 * pipe separated) and the amount lives on the provider-stored order, so
 * completion re-fetches the order, captures it if needed, and cross-checks the
 * stored parties and amount against the listing before settling.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pawhaven/settlement-service/internal/domain"
	"github.com/pawhaven/settlement-service/internal/store"
	"github.com/pawhaven/settlement-service/pkg/paypalclient"
)

// AuthorizePayPalPurchase creates a PayPal order for the listing's current
// price. The order id is the payment ref the client reports back after buyer
// approval.
func (s *Service) AuthorizePayPalPurchase(ctx context.Context, buyerID, petID uuid.UUID) (*domain.PurchaseAuthorization, error) {
	log.Printf("AuthorizePayPalPurchase: buyer %s authorizing purchase of pet %s", buyerID, petID)

	listing, err := s.repo.FindListingByID(ctx, petID)
	if err != nil {
		return nil, err
	}
	if !listing.Available {
		return nil, store.ErrListingUnavailable
	}

	fees, err := ComputeFees(listing.Price)
	if err != nil {
		return nil, fmt.Errorf("failed to compute fees: %w", err)
	}

	order, err := s.paypal.CreateOrder(ctx, fees.SalePrice.StringFixed(2), purchaseCustomID(petID, buyerID, listing.BreederID))
	if err != nil {
		log.Printf("AuthorizePayPalPurchase: order creation failed for pet %s: %v", petID, err)
		return nil, fmt.Errorf("failed to create paypal order: %w", err)
	}

	log.Printf("AuthorizePayPalPurchase: created order %s for pet %s amount %s", order.ID, petID, fees.SalePrice)
	return &domain.PurchaseAuthorization{
		PaymentRef:      order.ID,
		Provider:        domain.ProviderPayPal,
		SalePrice:       fees.SalePrice,
		PlatformFee:     fees.PlatformFee,
		BreederEarnings: fees.BreederEarnings,
	}, nil
}

// CompletePayPalPurchase captures an approved PayPal order and settles the
// sale. The order's stored amount and custom_id are the settlement contract;
// nothing from the client beyond the order id is trusted.
func (s *Service) CompletePayPalPurchase(ctx context.Context, callerID uuid.UUID, orderID string) (*domain.SaleRecord, error) {
	log.Printf("CompletePayPalPurchase: caller %s completing order %s", callerID, orderID)

	// 1. Fetch the order; capture it if the buyer has approved but the
	// capture has not run yet.
	order, err := s.paypal.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve paypal order: %w", err)
	}
	if order.Status == paypalclient.OrderStatusApproved {
		order, err = s.paypal.CaptureOrder(ctx, orderID)
		if err != nil {
			return nil, fmt.Errorf("failed to capture paypal order: %w", err)
		}
	}
	if order.Status != paypalclient.OrderStatusCompleted {
		log.Printf("CompletePayPalPurchase: order %s not completed (status=%s)", orderID, order.Status)
		return nil, ErrPaymentNotCompleted
	}
	if len(order.PurchaseUnits) == 0 {
		return nil, ErrPaymentNotCompleted
	}
	unit := order.PurchaseUnits[0]
	captureID := firstCaptureID(unit)

	// 2. Recover the settlement context from the purchase unit.
	petID, buyerID, breederID, err := parsePurchaseCustomID(unit.CustomID)
	if err != nil {
		return nil, s.rejectSettlement(ctx, rejection{
			callerID:   callerID,
			paymentRef: orderID,
			provider:   domain.ProviderPayPal,
			captureID:  captureID,
			reason:     err.Error(),
			cause:      ErrPaymentNotCompleted,
		})
	}
	if callerID != buyerID {
		log.Printf("CompletePayPalPurchase: caller %s does not match order buyer %s", callerID, buyerID)
		return nil, ErrBuyerMismatch
	}

	// 3. Cross-check the stored breeder and captured amount against the
	// listing's current state.
	listing, err := s.repo.FindListingByID(ctx, petID)
	if err != nil {
		if errors.Is(err, store.ErrListingNotFound) {
			return nil, s.rejectSettlement(ctx, rejection{
				callerID:   buyerID,
				petID:      &petID,
				buyerID:    &buyerID,
				paymentRef: orderID,
				provider:   domain.ProviderPayPal,
				captureID:  captureID,
				reason:     "listing no longer exists",
				cause:      store.ErrListingNotFound,
			})
		}
		return nil, err
	}
	if listing.BreederID != breederID {
		return nil, s.rejectSettlement(ctx, rejection{
			callerID:   buyerID,
			petID:      &petID,
			buyerID:    &buyerID,
			paymentRef: orderID,
			provider:   domain.ProviderPayPal,
			captureID:  captureID,
			reason:     "listing owner does not match order metadata",
			cause:      ErrPriceMismatch,
		})
	}
	fees, err := ComputeFees(listing.Price)
	if err != nil {
		return nil, fmt.Errorf("failed to compute fees: %w", err)
	}
	captured, err := decimal.NewFromString(unit.Amount.Value)
	if err != nil || unit.Amount.CurrencyCode != "USD" || !withinTolerance(captured, fees.SalePrice) {
		return nil, s.rejectSettlement(ctx, rejection{
			callerID:   buyerID,
			petID:      &petID,
			buyerID:    &buyerID,
			paymentRef: orderID,
			provider:   domain.ProviderPayPal,
			captureID:  captureID,
			amount:     fees.SalePrice,
			fee:        fees.PlatformFee,
			reason:     fmt.Sprintf("captured amount %s %s does not match listing price %s", unit.Amount.Value, unit.Amount.CurrencyCode, fees.SalePrice),
			cause:      ErrPriceMismatch,
		})
	}

	// 4. Settle atomically, with the same duplicate-completion and lost-race
	// handling as the Stripe flow.
	sale := s.buildSaleRecord(listing, buyerID, domain.ProviderPayPal, orderID, fees)
	if err := s.repo.SettleSale(ctx, sale); err != nil {
		if errors.Is(err, store.ErrListingUnavailable) {
			if existing, findErr := s.repo.FindSaleByPaymentRef(ctx, orderID); findErr == nil {
				log.Printf("CompletePayPalPurchase: order %s already settled as sale %s", orderID, existing.ID)
				return existing, nil
			}
			return nil, s.rejectSettlement(ctx, rejection{
				callerID:   buyerID,
				petID:      &petID,
				buyerID:    &buyerID,
				paymentRef: orderID,
				provider:   domain.ProviderPayPal,
				captureID:  captureID,
				amount:     fees.SalePrice,
				fee:        fees.PlatformFee,
				reason:     "listing was sold to another buyer",
				cause:      store.ErrListingUnavailable,
			})
		}
		return nil, fmt.Errorf("failed to settle sale: %w", err)
	}

	s.recordSettled(ctx, sale)
	log.Printf("CompletePayPalPurchase: settled sale %s for pet %s buyer %s", sale.ID, petID, buyerID)
	return sale, nil
}

func firstCaptureID(unit paypalclient.PurchaseUnit) string {
	if unit.Payments == nil || len(unit.Payments.Captures) == 0 {
		return ""
	}
	return unit.Payments.Captures[0].ID
}
