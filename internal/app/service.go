/**
 * @description
 * This file contains the core business logic for the settlement-service. The
 * `Service` struct orchestrates the purchase settlement flow, coordinating
 * between the database repository, the payment provider gateways, and the
 * message broker.
 *
 * Key features:
 * - Authorizes purchases against the authoritative listing price, never a
 *   client-supplied amount.
 * - Settles verified payments atomically: the listing is taken off the market
 *   and the sale record written in one transaction, with concurrent buyers
 *   resolved by the database.
 * - Refunds captured payments whose settlement is rejected, so no money is
 *   held against a sale that never happened.
 * - Publishes events to RabbitMQ for asynchronous processing by other services.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/stripeclient, pkg/paypalclient, pkg/rabbitmq: For external service communication.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pawhaven/settlement-service/internal/domain"
	"github.com/pawhaven/settlement-service/internal/store"
	"github.com/pawhaven/settlement-service/pkg/paypalclient"
	"github.com/pawhaven/settlement-service/pkg/rabbitmq"
	"github.com/pawhaven/settlement-service/pkg/stripeclient"
)

var (
	ErrBuyerMismatch       = errors.New("authenticated user is not the buyer on this payment")
	ErrPriceMismatch       = errors.New("payment amount does not match the listing price")
	ErrPaymentNotCompleted = errors.New("payment has not completed")
	ErrAlreadySubscribed   = errors.New("user already has an active subscription")
	ErrUnknownPlan         = errors.New("unknown subscription plan")
	ErrNoPayoutAvailable   = errors.New("no funds available for payout")
)

// StripeGateway is the Stripe surface the service depends on.
type StripeGateway interface {
	CreatePaymentIntent(ctx context.Context, amountCents int64, metadata map[string]string) (*stripeclient.PaymentIntent, error)
	GetPaymentIntent(ctx context.Context, paymentIntentID string) (*stripeclient.PaymentIntent, error)
	CreateCustomer(ctx context.Context, email string) (string, error)
	CreateTrialSubscription(ctx context.Context, customerID, priceID string, trialDays int64) (*stripeclient.Subscription, error)
	RefundPaymentIntent(ctx context.Context, paymentIntentID string) (*stripeclient.Refund, error)
}

// PayPalGateway is the PayPal surface the service depends on.
type PayPalGateway interface {
	CreateOrder(ctx context.Context, value string, customID string) (*paypalclient.Order, error)
	GetOrder(ctx context.Context, orderID string) (*paypalclient.Order, error)
	CaptureOrder(ctx context.Context, orderID string) (*paypalclient.Order, error)
	RefundCapture(ctx context.Context, captureID string) (*paypalclient.Refund, error)
	CreateSubscription(ctx context.Context, planID string) (*paypalclient.Subscription, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*paypalclient.Subscription, error)
}

// Mailer sends transactional email.
type Mailer interface {
	Send(ctx context.Context, to, subject, html string) (string, error)
}

// Service provides the core business logic for settlements, payouts, and subscriptions.
type Service struct {
	repo          store.Repository
	stripe        StripeGateway
	paypal        PayPalGateway
	mailer        Mailer
	eventProducer rabbitmq.Publisher

	escrowHold     time.Duration
	trialDays      int64
	stripePriceIDs map[string]string
	paypalPlanIDs  map[string]string
}

// NewService creates a new settlement service instance.
func NewService(
	repo store.Repository,
	stripe StripeGateway,
	paypal PayPalGateway,
	mailer Mailer,
	producer rabbitmq.Publisher,
	escrowHold time.Duration,
	trialDays int64,
	stripePriceIDs map[string]string,
	paypalPlanIDs map[string]string,
) *Service {
	return &Service{
		repo:           repo,
		stripe:         stripe,
		paypal:         paypal,
		mailer:         mailer,
		eventProducer:  producer,
		escrowHold:     escrowHold,
		trialDays:      trialDays,
		stripePriceIDs: stripePriceIDs,
		paypalPlanIDs:  paypalPlanIDs,
	}
}

// Metadata keys attached to provider payments at authorization time and read
// back at completion time.
const (
	metadataKeyPetID           = "pet_id"
	metadataKeyBuyerID         = "buyer_id"
	metadataKeyBreederID       = "breeder_id"
	metadataKeySalePrice       = "sale_price"
	metadataKeyPlatformFee     = "platform_fee"
	metadataKeyBreederEarnings = "breeder_earnings"
)

// AuthorizePurchase creates a Stripe payment intent for the listing's current
// price. The intent carries the pet and buyer in its metadata; the amount is
// derived from the listing row, never from the client.
func (s *Service) AuthorizePurchase(ctx context.Context, buyerID, petID uuid.UUID) (*domain.PurchaseAuthorization, error) {
	log.Printf("AuthorizePurchase: buyer %s authorizing purchase of pet %s", buyerID, petID)

	// 1. Load the listing and confirm it is still on the market.
	listing, err := s.repo.FindListingByID(ctx, petID)
	if err != nil {
		return nil, err
	}
	if !listing.Available {
		return nil, store.ErrListingUnavailable
	}

	// 2. Compute the fee split from the stored price.
	fees, err := ComputeFees(listing.Price)
	if err != nil {
		return nil, fmt.Errorf("failed to compute fees: %w", err)
	}

	// 3. Create the payment intent with the settlement metadata. The full
	// fee split rides on the provider object so completion can cross-check
	// it without re-trusting the client.
	metadata := map[string]string{
		metadataKeyPetID:           petID.String(),
		metadataKeyBuyerID:         buyerID.String(),
		metadataKeyBreederID:       listing.BreederID.String(),
		metadataKeySalePrice:       fees.SalePrice.StringFixed(2),
		metadataKeyPlatformFee:     fees.PlatformFee.StringFixed(2),
		metadataKeyBreederEarnings: fees.BreederEarnings.StringFixed(2),
	}
	intent, err := s.stripe.CreatePaymentIntent(ctx, AmountToCents(fees.SalePrice), metadata)
	if err != nil {
		log.Printf("AuthorizePurchase: payment intent creation failed for pet %s: %v", petID, err)
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	log.Printf("AuthorizePurchase: created payment intent %s for pet %s amount %s", intent.ID, petID, fees.SalePrice)
	return &domain.PurchaseAuthorization{
		PaymentRef:      intent.ID,
		ClientSecret:    intent.ClientSecret,
		Provider:        domain.ProviderStripe,
		SalePrice:       fees.SalePrice,
		PlatformFee:     fees.PlatformFee,
		BreederEarnings: fees.BreederEarnings,
	}, nil
}

// CompletePurchase settles a Stripe purchase after the client reports the
// payment finished. The provider is the source of truth: the payment intent is
// re-fetched, its status verified, and its metadata cross-checked against the
// listing before the sale is committed.
func (s *Service) CompletePurchase(ctx context.Context, callerID uuid.UUID, paymentRef string) (*domain.SaleRecord, error) {
	log.Printf("CompletePurchase: caller %s completing payment %s", callerID, paymentRef)

	// 1. Fetch the payment from the provider and verify it actually succeeded.
	intent, err := s.stripe.GetPaymentIntent(ctx, paymentRef)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve payment intent: %w", err)
	}
	if intent.Status != stripeclient.PaymentIntentStatusSucceeded {
		log.Printf("CompletePurchase: payment %s not succeeded (status=%s)", paymentRef, intent.Status)
		return nil, ErrPaymentNotCompleted
	}

	// 2. Recover the settlement context from the payment metadata.
	petID, err := uuid.Parse(intent.Metadata[metadataKeyPetID])
	if err != nil {
		return nil, s.rejectSettlement(ctx, rejection{
			callerID:   callerID,
			paymentRef: paymentRef,
			provider:   domain.ProviderStripe,
			reason:     "payment metadata missing pet id",
			cause:      ErrPaymentNotCompleted,
		})
	}
	buyerID, err := uuid.Parse(intent.Metadata[metadataKeyBuyerID])
	if err != nil {
		return nil, s.rejectSettlement(ctx, rejection{
			callerID:   callerID,
			petID:      &petID,
			paymentRef: paymentRef,
			provider:   domain.ProviderStripe,
			reason:     "payment metadata missing buyer id",
			cause:      ErrPaymentNotCompleted,
		})
	}
	breederID, err := uuid.Parse(intent.Metadata[metadataKeyBreederID])
	if err != nil {
		return nil, s.rejectSettlement(ctx, rejection{
			callerID:   callerID,
			petID:      &petID,
			paymentRef: paymentRef,
			provider:   domain.ProviderStripe,
			reason:     "payment metadata missing breeder id",
			cause:      ErrPaymentNotCompleted,
		})
	}
	claimed, err := feesFromMetadata(intent.Metadata)
	if err != nil {
		return nil, s.rejectSettlement(ctx, rejection{
			callerID:   callerID,
			petID:      &petID,
			paymentRef: paymentRef,
			provider:   domain.ProviderStripe,
			reason:     err.Error(),
			cause:      ErrPaymentNotCompleted,
		})
	}

	// 3. The caller must be the buyer the payment was authorized for. No
	// refund here: the payment still belongs to the real buyer, who can
	// complete it themselves.
	if callerID != buyerID {
		log.Printf("CompletePurchase: caller %s does not match payment buyer %s", callerID, buyerID)
		return nil, ErrBuyerMismatch
	}

	// 4. The listing must still belong to the breeder the payment was
	// authorized against, and the fee split recomputed from its current
	// price must match the split stored at authorization. Drift means the
	// listing changed after authorization or the metadata was tampered with.
	listing, err := s.repo.FindListingByID(ctx, petID)
	if err != nil {
		if errors.Is(err, store.ErrListingNotFound) {
			return nil, s.rejectSettlement(ctx, rejection{
				callerID:   buyerID,
				petID:      &petID,
				buyerID:    &buyerID,
				paymentRef: paymentRef,
				provider:   domain.ProviderStripe,
				amount:     claimed.SalePrice,
				fee:        claimed.PlatformFee,
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
			paymentRef: paymentRef,
			provider:   domain.ProviderStripe,
			amount:     claimed.SalePrice,
			fee:        claimed.PlatformFee,
			reason:     "listing owner does not match payment metadata",
			cause:      ErrPriceMismatch,
		})
	}
	fees, err := ComputeFees(listing.Price)
	if err != nil {
		return nil, fmt.Errorf("failed to compute fees: %w", err)
	}
	if !FeesMatch(fees, claimed) || intent.AmountCents != AmountToCents(claimed.SalePrice) {
		return nil, s.rejectSettlement(ctx, rejection{
			callerID:   buyerID,
			petID:      &petID,
			buyerID:    &buyerID,
			paymentRef: paymentRef,
			provider:   domain.ProviderStripe,
			amount:     fees.SalePrice,
			fee:        fees.PlatformFee,
			reason:     fmt.Sprintf("authorized split %s/%s no longer matches listing price %s", claimed.SalePrice, claimed.PlatformFee, fees.SalePrice),
			cause:      ErrPriceMismatch,
		})
	}

	// 5. Settle atomically. The conditional listing update decides between
	// concurrent buyers.
	sale := s.buildSaleRecord(listing, buyerID, domain.ProviderStripe, paymentRef, fees)
	if err := s.repo.SettleSale(ctx, sale); err != nil {
		if errors.Is(err, store.ErrListingUnavailable) {
			// A sale under this payment ref means this is a duplicate
			// completion of an already-settled purchase, not a lost race.
			if existing, findErr := s.repo.FindSaleByPaymentRef(ctx, paymentRef); findErr == nil {
				log.Printf("CompletePurchase: payment %s already settled as sale %s", paymentRef, existing.ID)
				return existing, nil
			}
			return nil, s.rejectSettlement(ctx, rejection{
				callerID:   buyerID,
				petID:      &petID,
				buyerID:    &buyerID,
				paymentRef: paymentRef,
				provider:   domain.ProviderStripe,
				amount:     fees.SalePrice,
				fee:        fees.PlatformFee,
				reason:     "listing was sold to another buyer",
				cause:      store.ErrListingUnavailable,
			})
		}
		return nil, fmt.Errorf("failed to settle sale: %w", err)
	}

	s.recordSettled(ctx, sale)
	log.Printf("CompletePurchase: settled sale %s for pet %s buyer %s", sale.ID, petID, buyerID)
	return sale, nil
}

// buildSaleRecord assembles the immutable sale record for a settlement. The
// escrow hold starts at the sale timestamp.
func (s *Service) buildSaleRecord(listing *domain.Listing, buyerID uuid.UUID, provider, paymentRef string, fees FeeBreakdown) *domain.SaleRecord {
	now := time.Now().UTC()
	return &domain.SaleRecord{
		ID:                 uuid.New(),
		PetID:              listing.ID,
		BreederID:          listing.BreederID,
		BuyerID:            buyerID,
		SalePrice:          fees.SalePrice,
		PlatformFee:        fees.PlatformFee,
		BreederEarnings:    fees.BreederEarnings,
		PaymentProvider:    provider,
		PaymentRef:         paymentRef,
		SaleDate:           now,
		FundsAvailableDate: now.Add(s.escrowHold),
		PayoutStatus:       domain.PayoutStatusPending,
	}
}

// recordSettled writes the settlement audit row and publishes the settled
// event. Both are best-effort: the sale is already durable.
func (s *Service) recordSettled(ctx context.Context, sale *domain.SaleRecord) {
	audit := &domain.AuditRecord{
		ID:            uuid.New(),
		ActorID:       sale.BuyerID,
		Action:        domain.AuditActionSaleSettled,
		PetID:         &sale.PetID,
		Amount:        sale.SalePrice,
		PlatformFee:   sale.PlatformFee,
		CorrelationID: sale.PaymentRef,
		Detail:        fmt.Sprintf("sale %s settled via %s", sale.ID, sale.PaymentProvider),
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.repo.InsertAuditRecord(ctx, audit); err != nil {
		log.Printf("level=warn component=service msg=\"settlement audit write failed\" sale_id=%s err=%v", sale.ID, err)
	}

	event := rabbitmq.SaleSettledEvent{
		SaleID:             sale.ID,
		PetID:              sale.PetID,
		BuyerID:            sale.BuyerID,
		BreederID:          sale.BreederID,
		SalePrice:          sale.SalePrice,
		PlatformFee:        sale.PlatformFee,
		BreederEarnings:    sale.BreederEarnings,
		FundsAvailableDate: sale.FundsAvailableDate,
		Timestamp:          time.Now().UTC(),
	}
	if err := s.eventProducer.Publish(ctx, rabbitmq.MarketplaceExchange, rabbitmq.RoutingKeySaleSettled, event); err != nil {
		log.Printf("level=warn component=service msg=\"sale.settled publish failed\" sale_id=%s err=%v", sale.ID, err)
	}
}

// rejection captures one failed settlement of a captured payment.
type rejection struct {
	callerID   uuid.UUID
	petID      *uuid.UUID
	buyerID    *uuid.UUID
	paymentRef string
	provider   string
	captureID  string // PayPal only; empty for Stripe
	amount     decimal.Decimal
	fee        decimal.Decimal
	reason     string
	cause      error
}

// rejectSettlement handles a captured payment that failed validation: the
// payment is refunded (unless a sale already exists for it), the rejection is
// audited, and the rejected event published. It returns the rejection cause
// for the handler to map to a status code.
func (s *Service) rejectSettlement(ctx context.Context, rej rejection) error {
	log.Printf("CompletePurchase: rejecting settlement of payment %s: %s", rej.paymentRef, rej.reason)

	refunded := s.refundRejectedPayment(ctx, rej)

	audit := &domain.AuditRecord{
		ID:            uuid.New(),
		ActorID:       rej.callerID,
		Action:        domain.AuditActionSaleRejected,
		PetID:         rej.petID,
		Amount:        rej.amount,
		PlatformFee:   rej.fee,
		CorrelationID: rej.paymentRef,
		Detail:        rej.reason,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.repo.InsertAuditRecord(ctx, audit); err != nil {
		log.Printf("level=warn component=service msg=\"rejection audit write failed\" payment_ref=%s err=%v", rej.paymentRef, err)
	}

	event := rabbitmq.SaleRejectedEvent{
		PaymentRef: rej.paymentRef,
		Reason:     rej.reason,
		Refunded:   refunded,
		Timestamp:  time.Now().UTC(),
	}
	if rej.petID != nil {
		event.PetID = *rej.petID
	}
	if rej.buyerID != nil {
		event.BuyerID = *rej.buyerID
	}
	if err := s.eventProducer.Publish(ctx, rabbitmq.MarketplaceExchange, rabbitmq.RoutingKeySaleRejected, event); err != nil {
		log.Printf("level=warn component=service msg=\"sale.rejected publish failed\" payment_ref=%s err=%v", rej.paymentRef, err)
	}

	return rej.cause
}

// refundRejectedPayment refunds a captured payment whose settlement was
// rejected. If a sale record already exists under the payment ref the money is
// owed to the breeder and must not be refunded.
func (s *Service) refundRejectedPayment(ctx context.Context, rej rejection) bool {
	if _, err := s.repo.FindSaleByPaymentRef(ctx, rej.paymentRef); err == nil {
		log.Printf("level=warn component=service msg=\"skipping refund; sale exists for payment\" payment_ref=%s", rej.paymentRef)
		return false
	}

	var err error
	switch rej.provider {
	case domain.ProviderStripe:
		_, err = s.stripe.RefundPaymentIntent(ctx, rej.paymentRef)
	case domain.ProviderPayPal:
		if rej.captureID == "" {
			err = errors.New("no capture to refund")
		} else {
			_, err = s.paypal.RefundCapture(ctx, rej.captureID)
		}
	default:
		err = fmt.Errorf("unknown payment provider %q", rej.provider)
	}

	action := domain.AuditActionRefundIssued
	detail := fmt.Sprintf("refunded rejected payment: %s", rej.reason)
	if err != nil {
		log.Printf("level=error component=service msg=\"refund failed for rejected payment\" payment_ref=%s err=%v", rej.paymentRef, err)
		action = domain.AuditActionRefundFailed
		detail = fmt.Sprintf("refund failed: %v", err)
	}

	audit := &domain.AuditRecord{
		ID:            uuid.New(),
		ActorID:       rej.callerID,
		Action:        action,
		PetID:         rej.petID,
		Amount:        rej.amount,
		PlatformFee:   decimal.Zero,
		CorrelationID: rej.paymentRef,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}
	if auditErr := s.repo.InsertAuditRecord(ctx, audit); auditErr != nil {
		log.Printf("level=warn component=service msg=\"refund audit write failed\" payment_ref=%s err=%v", rej.paymentRef, auditErr)
	}

	return err == nil
}

// feesFromMetadata reconstructs the fee split stored on a payment at
// authorization time.
func feesFromMetadata(metadata map[string]string) (FeeBreakdown, error) {
	salePrice, err := decimal.NewFromString(metadata[metadataKeySalePrice])
	if err != nil {
		return FeeBreakdown{}, fmt.Errorf("malformed sale price in payment metadata: %w", err)
	}
	platformFee, err := decimal.NewFromString(metadata[metadataKeyPlatformFee])
	if err != nil {
		return FeeBreakdown{}, fmt.Errorf("malformed platform fee in payment metadata: %w", err)
	}
	breederEarnings, err := decimal.NewFromString(metadata[metadataKeyBreederEarnings])
	if err != nil {
		return FeeBreakdown{}, fmt.Errorf("malformed breeder earnings in payment metadata: %w", err)
	}
	return FeeBreakdown{SalePrice: salePrice, PlatformFee: platformFee, BreederEarnings: breederEarnings}, nil
}

// purchaseCustomID packs the pet, buyer, and breeder into the opaque metadata
// string carried on a PayPal purchase unit (127 char provider limit; three
// UUIDs fit, the fee split does not and is recomputed at completion).
func purchaseCustomID(petID, buyerID, breederID uuid.UUID) string {
	return petID.String() + "|" + buyerID.String() + "|" + breederID.String()
}

// parsePurchaseCustomID unpacks a purchase unit custom id.
func parsePurchaseCustomID(customID string) (petID, buyerID, breederID uuid.UUID, err error) {
	parts := strings.SplitN(customID, "|", 3)
	if len(parts) != 3 {
		return uuid.Nil, uuid.Nil, uuid.Nil, fmt.Errorf("malformed purchase metadata %q", customID)
	}
	petID, err = uuid.Parse(parts[0])
	if err != nil {
		return uuid.Nil, uuid.Nil, uuid.Nil, fmt.Errorf("malformed pet id in purchase metadata: %w", err)
	}
	buyerID, err = uuid.Parse(parts[1])
	if err != nil {
		return uuid.Nil, uuid.Nil, uuid.Nil, fmt.Errorf("malformed buyer id in purchase metadata: %w", err)
	}
	breederID, err = uuid.Parse(parts[2])
	if err != nil {
		return uuid.Nil, uuid.Nil, uuid.Nil, fmt.Errorf("malformed breeder id in purchase metadata: %w", err)
	}
	return petID, buyerID, breederID, nil
}
