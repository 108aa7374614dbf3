package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pawhaven/settlement-service/internal/domain"
	"github.com/pawhaven/settlement-service/internal/store"
	"github.com/pawhaven/settlement-service/pkg/paypalclient"
	"github.com/pawhaven/settlement-service/pkg/rabbitmq"
	"github.com/pawhaven/settlement-service/pkg/stripeclient"
)

// stubRepo is an in-memory Repository used across the service tests. Methods
// not implemented here panic via the embedded interface.
type stubRepo struct {
	store.Repository

	mu        sync.Mutex
	listings  map[uuid.UUID]*domain.Listing
	sales     map[string]*domain.SaleRecord
	audits    []domain.AuditRecord
	subs      map[uuid.UUID]*domain.Subscription
	reminders map[string]bool
	contacts  map[uuid.UUID]*domain.UserContact
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		listings:  make(map[uuid.UUID]*domain.Listing),
		sales:     make(map[string]*domain.SaleRecord),
		subs:      make(map[uuid.UUID]*domain.Subscription),
		reminders: make(map[string]bool),
		contacts:  make(map[uuid.UUID]*domain.UserContact),
	}
}

func (r *stubRepo) FindListingByID(ctx context.Context, listingID uuid.UUID) (*domain.Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	listing, ok := r.listings[listingID]
	if !ok {
		return nil, store.ErrListingNotFound
	}
	copied := *listing
	return &copied, nil
}

func (r *stubRepo) SettleSale(ctx context.Context, sale *domain.SaleRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	listing, ok := r.listings[sale.PetID]
	if !ok {
		return store.ErrListingNotFound
	}
	if !listing.Available {
		return store.ErrListingUnavailable
	}
	listing.Available = false
	r.sales[sale.PaymentRef] = sale
	return nil
}

func (r *stubRepo) FindSaleByPaymentRef(ctx context.Context, paymentRef string) (*domain.SaleRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sale, ok := r.sales[paymentRef]
	if !ok {
		return nil, store.ErrSaleNotFound
	}
	return sale, nil
}

func (r *stubRepo) FindSalesByBreederID(ctx context.Context, breederID uuid.UUID) ([]domain.SaleRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.SaleRecord
	for _, sale := range r.sales {
		if sale.BreederID == breederID {
			out = append(out, *sale)
		}
	}
	return out, nil
}

func (r *stubRepo) InsertAuditRecord(ctx context.Context, record *domain.AuditRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audits = append(r.audits, *record)
	return nil
}

func (r *stubRepo) CreateSubscription(ctx context.Context, sub *domain.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[sub.ID] = sub
	return nil
}

func (r *stubRepo) FindSubscriptionByID(ctx context.Context, subscriptionID uuid.UUID) (*domain.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[subscriptionID]
	if !ok {
		return nil, store.ErrSubscriptionNotFound
	}
	return sub, nil
}

func (r *stubRepo) FindActiveSubscriptionByUserID(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sub := range r.subs {
		if sub.UserID == userID && sub.Status == domain.SubscriptionStatusActive {
			return sub, nil
		}
	}
	return nil, store.ErrSubscriptionNotFound
}

func (r *stubRepo) FindActiveTrialSubscriptions(ctx context.Context, now time.Time) ([]domain.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Subscription
	for _, sub := range r.subs {
		if sub.Status == domain.SubscriptionStatusActive && sub.IsTrial && sub.TrialEnd.After(now) {
			out = append(out, *sub)
		}
	}
	return out, nil
}

func (r *stubRepo) RecordTrialReminder(ctx context.Context, subscriptionID uuid.UUID, reminderType string, sentAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := subscriptionID.String() + "|" + reminderType
	if r.reminders[key] {
		return false, nil
	}
	r.reminders[key] = true
	return true, nil
}

func (r *stubRepo) DeleteTrialReminder(ctx context.Context, subscriptionID uuid.UUID, reminderType string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.reminders, subscriptionID.String()+"|"+reminderType)
	return nil
}

func (r *stubRepo) FindUserContactByID(ctx context.Context, userID uuid.UUID) (*domain.UserContact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	contact, ok := r.contacts[userID]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	return contact, nil
}

func (r *stubRepo) auditActions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var actions []string
	for _, a := range r.audits {
		actions = append(actions, a.Action)
	}
	return actions
}

// stubStripe fakes the Stripe gateway.
type stubStripe struct {
	mu      sync.Mutex
	intents map[string]*stripeclient.PaymentIntent
	refunds []string

	refundErr error
	subResult *stripeclient.Subscription
}

func newStubStripe() *stubStripe {
	return &stubStripe{intents: make(map[string]*stripeclient.PaymentIntent)}
}

func (g *stubStripe) CreatePaymentIntent(ctx context.Context, amountCents int64, metadata map[string]string) (*stripeclient.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	intent := &stripeclient.PaymentIntent{
		ID:           "pi_" + uuid.NewString(),
		ClientSecret: "secret",
		Status:       "requires_payment_method",
		AmountCents:  amountCents,
		Metadata:     metadata,
	}
	g.intents[intent.ID] = intent
	return intent, nil
}

func (g *stubStripe) GetPaymentIntent(ctx context.Context, paymentIntentID string) (*stripeclient.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	intent, ok := g.intents[paymentIntentID]
	if !ok {
		return nil, errors.New("no such payment_intent")
	}
	return intent, nil
}

func (g *stubStripe) CreateCustomer(ctx context.Context, email string) (string, error) {
	return "cus_" + uuid.NewString(), nil
}

func (g *stubStripe) CreateTrialSubscription(ctx context.Context, customerID, priceID string, trialDays int64) (*stripeclient.Subscription, error) {
	if g.subResult != nil {
		return g.subResult, nil
	}
	return &stripeclient.Subscription{ID: "sub_" + uuid.NewString(), Status: "trialing", CustomerID: customerID, ClientSecret: "sub_secret"}, nil
}

func (g *stubStripe) RefundPaymentIntent(ctx context.Context, paymentIntentID string) (*stripeclient.Refund, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	g.refunds = append(g.refunds, paymentIntentID)
	return &stripeclient.Refund{ID: "re_" + uuid.NewString(), Status: "succeeded"}, nil
}

// markSucceeded flips a created intent to succeeded, as the frontend payment
// confirmation would.
func (g *stubStripe) markSucceeded(paymentIntentID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.intents[paymentIntentID].Status = stripeclient.PaymentIntentStatusSucceeded
}

// stubPayPal fakes the PayPal gateway.
type stubPayPal struct {
	mu      sync.Mutex
	orders  map[string]*paypalclient.Order
	refunds []string
	subs    map[string]*paypalclient.Subscription
}

func newStubPayPal() *stubPayPal {
	return &stubPayPal{
		orders: make(map[string]*paypalclient.Order),
		subs:   make(map[string]*paypalclient.Subscription),
	}
}

func (g *stubPayPal) CreateOrder(ctx context.Context, value string, customID string) (*paypalclient.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	order := &paypalclient.Order{
		ID:     "ord_" + uuid.NewString(),
		Status: paypalclient.OrderStatusCreated,
		PurchaseUnits: []paypalclient.PurchaseUnit{
			{CustomID: customID, Amount: paypalclient.Amount{CurrencyCode: "USD", Value: value}},
		},
	}
	g.orders[order.ID] = order
	return order, nil
}

func (g *stubPayPal) GetOrder(ctx context.Context, orderID string) (*paypalclient.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	order, ok := g.orders[orderID]
	if !ok {
		return nil, errors.New("no such order")
	}
	return order, nil
}

func (g *stubPayPal) CaptureOrder(ctx context.Context, orderID string) (*paypalclient.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	order, ok := g.orders[orderID]
	if !ok {
		return nil, errors.New("no such order")
	}
	order.Status = paypalclient.OrderStatusCompleted
	order.PurchaseUnits[0].Payments = &struct {
		Captures []paypalclient.Capture `json:"captures"`
	}{Captures: []paypalclient.Capture{{ID: "cap_" + uuid.NewString(), Status: "COMPLETED", Amount: order.PurchaseUnits[0].Amount}}}
	return order, nil
}

func (g *stubPayPal) RefundCapture(ctx context.Context, captureID string) (*paypalclient.Refund, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refunds = append(g.refunds, captureID)
	return &paypalclient.Refund{ID: "ref_" + uuid.NewString(), Status: "COMPLETED"}, nil
}

func (g *stubPayPal) CreateSubscription(ctx context.Context, planID string) (*paypalclient.Subscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	sub := &paypalclient.Subscription{ID: "I-" + uuid.NewString(), Status: paypalclient.SubscriptionStatusApprovalPending, PlanID: planID}
	g.subs[sub.ID] = sub
	return sub, nil
}

func (g *stubPayPal) GetSubscription(ctx context.Context, subscriptionID string) (*paypalclient.Subscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	sub, ok := g.subs[subscriptionID]
	if !ok {
		return nil, errors.New("no such subscription")
	}
	return sub, nil
}

// stubMailer records sent email and can be made to fail.
type stubMailer struct {
	mu      sync.Mutex
	sent    []string
	sendErr error
}

func (m *stubMailer) Send(ctx context.Context, to, subject, html string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return "", m.sendErr
	}
	m.sent = append(m.sent, to)
	return "email_" + uuid.NewString(), nil
}

func newTestService(repo *stubRepo, stripe *stubStripe, paypal *stubPayPal, mailer *stubMailer) *Service {
	return NewService(
		repo, stripe, paypal, mailer,
		&rabbitmq.EventProducerFallback{},
		72*time.Hour, 7,
		map[string]string{"monthly": "price_monthly", "yearly": "price_yearly"},
		map[string]string{"monthly": "P-MONTHLY", "yearly": "P-YEARLY"},
	)
}

func seedListing(repo *stubRepo, price string) *domain.Listing {
	listing := &domain.Listing{
		ID:        uuid.New(),
		BreederID: uuid.New(),
		Name:      "Golden Retriever",
		Price:     decimal.RequireFromString(price),
		Available: true,
	}
	repo.listings[listing.ID] = listing
	return listing
}

func TestAuthorizeAndCompletePurchase(t *testing.T) {
	repo := newStubRepo()
	stripe := newStubStripe()
	svc := newTestService(repo, stripe, newStubPayPal(), &stubMailer{})
	listing := seedListing(repo, "1000.00")
	buyer := uuid.New()

	auth, err := svc.AuthorizePurchase(context.Background(), buyer, listing.ID)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if auth.SalePrice.StringFixed(2) != "1000.00" || auth.PlatformFee.StringFixed(2) != "150.00" || auth.BreederEarnings.StringFixed(2) != "850.00" {
		t.Fatalf("unexpected fee split: %s / %s / %s", auth.SalePrice, auth.PlatformFee, auth.BreederEarnings)
	}

	stripe.markSucceeded(auth.PaymentRef)
	sale, err := svc.CompletePurchase(context.Background(), buyer, auth.PaymentRef)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}

	if sale.BreederID != listing.BreederID || sale.BuyerID != buyer {
		t.Error("sale parties do not match listing and buyer")
	}
	if sale.PayoutStatus != domain.PayoutStatusPending {
		t.Errorf("payout status: got %s, want pending", sale.PayoutStatus)
	}
	if got := sale.FundsAvailableDate.Sub(sale.SaleDate); got != 72*time.Hour {
		t.Errorf("escrow hold: got %s, want 72h", got)
	}
	if repo.listings[listing.ID].Available {
		t.Error("listing still available after settlement")
	}
}

func TestCompletePurchase_NotSucceeded(t *testing.T) {
	repo := newStubRepo()
	stripe := newStubStripe()
	svc := newTestService(repo, stripe, newStubPayPal(), &stubMailer{})
	listing := seedListing(repo, "500.00")
	buyer := uuid.New()

	auth, err := svc.AuthorizePurchase(context.Background(), buyer, listing.ID)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}

	// Intent never confirmed; completion must refuse to settle.
	if _, err := svc.CompletePurchase(context.Background(), buyer, auth.PaymentRef); !errors.Is(err, ErrPaymentNotCompleted) {
		t.Fatalf("expected ErrPaymentNotCompleted, got %v", err)
	}
	if len(repo.sales) != 0 {
		t.Error("sale recorded for unconfirmed payment")
	}
}

func TestCompletePurchase_BuyerMismatch(t *testing.T) {
	repo := newStubRepo()
	stripe := newStubStripe()
	svc := newTestService(repo, stripe, newStubPayPal(), &stubMailer{})
	listing := seedListing(repo, "500.00")
	buyer := uuid.New()

	auth, _ := svc.AuthorizePurchase(context.Background(), buyer, listing.ID)
	stripe.markSucceeded(auth.PaymentRef)

	if _, err := svc.CompletePurchase(context.Background(), uuid.New(), auth.PaymentRef); !errors.Is(err, ErrBuyerMismatch) {
		t.Fatalf("expected ErrBuyerMismatch, got %v", err)
	}
	if len(stripe.refunds) != 0 {
		t.Error("payment refunded on caller mismatch; it still belongs to the real buyer")
	}
	if repo.listings[listing.ID] == nil || !repo.listings[listing.ID].Available {
		t.Error("listing should remain available")
	}
}

func TestCompletePurchase_PriceChangedAfterAuthorization(t *testing.T) {
	repo := newStubRepo()
	stripe := newStubStripe()
	svc := newTestService(repo, stripe, newStubPayPal(), &stubMailer{})
	listing := seedListing(repo, "500.00")
	buyer := uuid.New()

	auth, _ := svc.AuthorizePurchase(context.Background(), buyer, listing.ID)
	stripe.markSucceeded(auth.PaymentRef)

	// Breeder raises the price between authorization and completion.
	repo.listings[listing.ID].Price = decimal.RequireFromString("800.00")

	if _, err := svc.CompletePurchase(context.Background(), buyer, auth.PaymentRef); !errors.Is(err, ErrPriceMismatch) {
		t.Fatalf("expected ErrPriceMismatch, got %v", err)
	}
	if len(stripe.refunds) != 1 || stripe.refunds[0] != auth.PaymentRef {
		t.Errorf("expected the captured payment to be refunded, refunds=%v", stripe.refunds)
	}
	if len(repo.sales) != 0 {
		t.Error("sale recorded despite price mismatch")
	}

	actions := repo.auditActions()
	if !contains(actions, domain.AuditActionSaleRejected) || !contains(actions, domain.AuditActionRefundIssued) {
		t.Errorf("expected rejection and refund audit rows, got %v", actions)
	}
}

func TestCompletePurchase_ListingRemovedAfterCapture(t *testing.T) {
	repo := newStubRepo()
	stripe := newStubStripe()
	svc := newTestService(repo, stripe, newStubPayPal(), &stubMailer{})
	listing := seedListing(repo, "250.00")
	buyer := uuid.New()

	auth, _ := svc.AuthorizePurchase(context.Background(), buyer, listing.ID)
	stripe.markSucceeded(auth.PaymentRef)

	// Listing row deleted between authorization and completion.
	delete(repo.listings, listing.ID)

	if _, err := svc.CompletePurchase(context.Background(), buyer, auth.PaymentRef); !errors.Is(err, store.ErrListingNotFound) {
		t.Fatalf("expected ErrListingNotFound, got %v", err)
	}
	if len(stripe.refunds) != 1 {
		t.Errorf("expected the captured payment to be refunded, refunds=%v", stripe.refunds)
	}
	actions := repo.auditActions()
	if !contains(actions, domain.AuditActionSaleRejected) || !contains(actions, domain.AuditActionRefundIssued) {
		t.Errorf("expected rejection and refund audit rows, got %v", actions)
	}
}

func TestCompletePurchase_ListingOwnerChangedAfterAuthorization(t *testing.T) {
	repo := newStubRepo()
	stripe := newStubStripe()
	svc := newTestService(repo, stripe, newStubPayPal(), &stubMailer{})
	listing := seedListing(repo, "500.00")
	buyer := uuid.New()

	auth, _ := svc.AuthorizePurchase(context.Background(), buyer, listing.ID)
	stripe.markSucceeded(auth.PaymentRef)

	// Listing relisted under a different breeder between authorization and
	// completion.
	repo.listings[listing.ID].BreederID = uuid.New()

	if _, err := svc.CompletePurchase(context.Background(), buyer, auth.PaymentRef); !errors.Is(err, ErrPriceMismatch) {
		t.Fatalf("expected ErrPriceMismatch, got %v", err)
	}
	if len(stripe.refunds) != 1 {
		t.Errorf("expected the captured payment to be refunded, refunds=%v", stripe.refunds)
	}
	if len(repo.sales) != 0 {
		t.Error("sale recorded despite owner mismatch")
	}
}

func TestCompletePurchase_ConcurrentBuyers(t *testing.T) {
	repo := newStubRepo()
	stripe := newStubStripe()
	svc := newTestService(repo, stripe, newStubPayPal(), &stubMailer{})
	listing := seedListing(repo, "300.00")

	buyers := []uuid.UUID{uuid.New(), uuid.New()}
	refs := make([]string, len(buyers))
	for i, buyer := range buyers {
		auth, err := svc.AuthorizePurchase(context.Background(), buyer, listing.ID)
		if err != nil {
			t.Fatalf("authorize buyer %d: %v", i, err)
		}
		stripe.markSucceeded(auth.PaymentRef)
		refs[i] = auth.PaymentRef
	}

	var wg sync.WaitGroup
	errs := make([]error, len(buyers))
	for i := range buyers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.CompletePurchase(context.Background(), buyers[i], refs[i])
		}(i)
	}
	wg.Wait()

	var wins, losses int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, store.ErrListingUnavailable):
			losses++
		default:
			t.Fatalf("unexpected completion error: %v", err)
		}
	}
	if wins != 1 || losses != 1 {
		t.Fatalf("expected exactly one winner and one loser, got wins=%d losses=%d", wins, losses)
	}
	if len(repo.sales) != 1 {
		t.Fatalf("expected exactly one sale record, got %d", len(repo.sales))
	}
	if len(stripe.refunds) != 1 {
		t.Fatalf("expected the losing payment to be refunded, refunds=%v", stripe.refunds)
	}
}

func TestCompletePurchase_DuplicateCompletionReturnsExistingSale(t *testing.T) {
	repo := newStubRepo()
	stripe := newStubStripe()
	svc := newTestService(repo, stripe, newStubPayPal(), &stubMailer{})
	listing := seedListing(repo, "300.00")
	buyer := uuid.New()

	auth, _ := svc.AuthorizePurchase(context.Background(), buyer, listing.ID)
	stripe.markSucceeded(auth.PaymentRef)

	first, err := svc.CompletePurchase(context.Background(), buyer, auth.PaymentRef)
	if err != nil {
		t.Fatalf("first completion: %v", err)
	}
	second, err := svc.CompletePurchase(context.Background(), buyer, auth.PaymentRef)
	if err != nil {
		t.Fatalf("second completion: %v", err)
	}
	if second.ID != first.ID {
		t.Error("duplicate completion produced a different sale record")
	}
	if len(stripe.refunds) != 0 {
		t.Error("duplicate completion must not refund a settled payment")
	}
}

func TestCompletePayPalPurchase(t *testing.T) {
	repo := newStubRepo()
	paypal := newStubPayPal()
	svc := newTestService(repo, newStubStripe(), paypal, &stubMailer{})
	listing := seedListing(repo, "640.00")
	buyer := uuid.New()

	auth, err := svc.AuthorizePayPalPurchase(context.Background(), buyer, listing.ID)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	// Buyer approves in the PayPal popup.
	paypal.orders[auth.PaymentRef].Status = paypalclient.OrderStatusApproved

	sale, err := svc.CompletePayPalPurchase(context.Background(), buyer, auth.PaymentRef)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if sale.PaymentProvider != domain.ProviderPayPal {
		t.Errorf("provider: got %s, want paypal", sale.PaymentProvider)
	}
	if sale.SalePrice.StringFixed(2) != "640.00" || sale.PlatformFee.StringFixed(2) != "96.00" {
		t.Errorf("unexpected amounts: %s / %s", sale.SalePrice, sale.PlatformFee)
	}
}

func TestParsePurchaseCustomID(t *testing.T) {
	petID, buyerID, breederID := uuid.New(), uuid.New(), uuid.New()
	gotPet, gotBuyer, gotBreeder, err := parsePurchaseCustomID(purchaseCustomID(petID, buyerID, breederID))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPet != petID || gotBuyer != buyerID || gotBreeder != breederID {
		t.Error("round trip lost ids")
	}

	malformed := []string{
		"",
		"abc",
		petID.String(),
		petID.String() + "|" + buyerID.String(),
		petID.String() + "|" + buyerID.String() + "|not-a-uuid",
	}
	for _, customID := range malformed {
		if _, _, _, err := parsePurchaseCustomID(customID); err == nil {
			t.Errorf("custom id %q: expected error", customID)
		}
	}
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
