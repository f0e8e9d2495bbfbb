package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/marketloop/storefront-backend/internal/cart"
	"github.com/marketloop/storefront-backend/pkg/config"
	"github.com/marketloop/storefront-backend/pkg/db/models"
	"github.com/marketloop/storefront-backend/pkg/enums"
	pkgerrors "github.com/marketloop/storefront-backend/pkg/errors"
	"github.com/marketloop/storefront-backend/pkg/flutterwave"
	"github.com/marketloop/storefront-backend/pkg/logger"
	"github.com/marketloop/storefront-backend/pkg/metrics"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type providerClient interface {
	CreateCharge(ctx context.Context, params flutterwave.ChargeParams) (*flutterwave.Charge, error)
	VerifyTransaction(ctx context.Context, transactionID string) (*flutterwave.Transaction, error)
}

type userLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// InitiateResult carries the provider handle back to the caller.
type InitiateResult struct {
	TxRef       string
	Amount      decimal.Decimal
	Currency    enums.Currency
	PaymentLink string
}

// ReconcileOutcome names the terminal state of one callback reconciliation.
type ReconcileOutcome string

const (
	ReconcileCompleted        ReconcileOutcome = "completed"
	ReconcileAlreadyProcessed ReconcileOutcome = "already_processed"
	ReconcileFailed           ReconcileOutcome = "failed"
)

// ReconcileResult reports what the callback did.
type ReconcileResult struct {
	Outcome ReconcileOutcome
	TxRef   string
	Message string
}

// Service orchestrates checkout: transaction creation, provider charge
// initiation, and callback reconciliation.
type Service interface {
	InitiatePayment(ctx context.Context, userID uuid.UUID, cartCode string) (*InitiateResult, error)
	ReconcileCallback(ctx context.Context, userID *uuid.UUID, status, txRef, providerTxID string) (*ReconcileResult, error)
}

type service struct {
	carts    cart.Repository
	txs      Repository
	tx       txRunner
	provider providerClient
	users    userLoader
	logg     *logger.Logger
	metrics  *metrics.PaymentMetrics

	tax         decimal.Decimal
	currency    enums.Currency
	redirectURL string
}

// NewService builds a payments service backed by the provided stack.
func NewService(
	carts cart.Repository,
	txs Repository,
	tx txRunner,
	provider providerClient,
	users userLoader,
	logg *logger.Logger,
	paymentMetrics *metrics.PaymentMetrics,
	paymentCfg config.PaymentConfig,
	providerCfg config.FlutterwaveConfig,
) (Service, error) {
	if carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if txs == nil {
		return nil, fmt.Errorf("transaction repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if provider == nil {
		return nil, fmt.Errorf("provider client required")
	}
	if users == nil {
		return nil, fmt.Errorf("user loader required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}

	tax, err := decimal.NewFromString(paymentCfg.TaxAmount)
	if err != nil {
		return nil, fmt.Errorf("invalid tax amount %q: %w", paymentCfg.TaxAmount, err)
	}
	if tax.IsNegative() {
		return nil, fmt.Errorf("tax amount must be non-negative")
	}
	currency, err := enums.ParseCurrency(paymentCfg.Currency)
	if err != nil {
		return nil, err
	}

	return &service{
		carts:       carts,
		txs:         txs,
		tx:          tx,
		provider:    provider,
		users:       users,
		logg:        logg,
		metrics:     paymentMetrics,
		tax:         tax,
		currency:    currency,
		redirectURL: strings.TrimSpace(providerCfg.RedirectBaseURL),
	}, nil
}

// InitiatePayment snapshots the cart into a pending transaction and asks the
// provider for a hosted charge. The transaction row exists before the
// provider call so an early callback can still be reconciled.
func (s *service) InitiatePayment(ctx context.Context, userID uuid.UUID, cartCode string) (*InitiateResult, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "unknown user")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}

	openCart, err := s.loadCart(ctx, userID, cartCode)
	if err != nil {
		return nil, err
	}
	if openCart.Paid {
		return nil, pkgerrors.New(pkgerrors.CodeDuplicatePayment, "cart has already been paid for").
			WithDetails(map[string]any{"cart_code": openCart.Code})
	}
	if len(openCart.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}

	amount := s.cartTotal(openCart)
	currency := openCart.Currency
	if !currency.IsValid() {
		currency = s.currency
	}
	ref := uuid.NewString()

	transaction := &models.Transaction{
		ID:       uuid.New(),
		Ref:      ref,
		CartID:   openCart.ID,
		UserID:   &userID,
		Amount:   amount,
		Currency: currency,
		Status:   enums.TransactionStatusPending,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.txs.WithTx(tx).Create(ctx, transaction)
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create transaction")
	}

	ctx = s.logg.WithTxRef(s.logg.WithCartCode(ctx, openCart.Code), ref)
	charge, err := s.provider.CreateCharge(ctx, flutterwave.ChargeParams{
		TxRef:         ref,
		Amount:        amount,
		Currency:      currency.String(),
		RedirectURL:   s.callbackURL(),
		CustomerEmail: user.Email,
		CustomerName:  user.Email,
		Title:         "Storefront checkout",
		Description:   fmt.Sprintf("Payment for cart %s", openCart.Code),
	})
	if err != nil {
		// Provider error responses carry their own code; the pending row
		// stays behind and a retry mints a fresh transaction.
		s.logg.Warn(ctx, "payment initiation failed at provider")
		return nil, err
	}

	s.metrics.IncInitiated(currency.String())
	s.logg.Info(ctx, "payment initiated")
	return &InitiateResult{
		TxRef:       ref,
		Amount:      amount,
		Currency:    currency,
		PaymentLink: charge.PaymentLink,
	}, nil
}

// ReconcileCallback verifies a provider callback against the stored
// transaction and, on an exact match, marks the transaction completed and the
// cart paid. Re-reconciling a completed transaction is a reported no-op.
func (s *service) ReconcileCallback(ctx context.Context, userID *uuid.UUID, status, txRef, providerTxID string) (*ReconcileResult, error) {
	txRef = strings.TrimSpace(txRef)
	if txRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tx_ref is required")
	}
	ctx = s.logg.WithTxRef(ctx, txRef)

	if !callbackStatusOK(status) {
		s.metrics.IncReconciled(string(ReconcileFailed))
		s.logg.Warn(ctx, "payment callback reported failure")
		return &ReconcileResult{Outcome: ReconcileFailed, TxRef: txRef, Message: "payment was not completed"}, nil
	}

	verifyStart := time.Now()
	verified, err := s.provider.VerifyTransaction(ctx, providerTxID)
	if err != nil {
		s.metrics.ObserveVerify("error", time.Since(verifyStart))
		s.metrics.IncReconciled(string(ReconcileFailed))
		s.logg.Error(ctx, "provider verification failed", err)
		return &ReconcileResult{Outcome: ReconcileFailed, TxRef: txRef, Message: "payment verification failed"}, nil
	}
	s.metrics.ObserveVerify("success", time.Since(verifyStart))

	transaction, err := s.txs.FindByRef(ctx, txRef)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction")
	}

	if transaction.Status == enums.TransactionStatusCompleted {
		s.logg.Info(ctx, "callback for already completed transaction")
		return &ReconcileResult{Outcome: ReconcileAlreadyProcessed, TxRef: txRef, Message: "transaction already processed"}, nil
	}

	if !verified.Settled() ||
		!verified.Amount.Equal(transaction.Amount) ||
		!strings.EqualFold(verified.Currency, transaction.Currency.String()) {
		s.metrics.IncMismatched()
		s.logg.Warn(ctx, "payment verification mismatch")
		return nil, pkgerrors.New(pkgerrors.CodeVerificationMismatch, "payment verification failed").
			WithDetails(map[string]any{
				"expected_amount":   transaction.Amount.String(),
				"reported_amount":   verified.Amount.String(),
				"expected_currency": transaction.Currency.String(),
				"reported_currency": verified.Currency,
			})
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.txs.WithTx(tx).Complete(ctx, txRef, fmt.Sprint(verified.ID)); err != nil {
			return err
		}
		// Attach the reconciling user so a guest cart ends up owned by
		// whoever paid for it.
		owner := userID
		if owner == nil {
			owner = transaction.UserID
		}
		return s.carts.WithTx(tx).MarkPaid(ctx, transaction.CartID, owner)
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "finalize payment")
	}

	s.metrics.IncReconciled(string(ReconcileCompleted))
	s.logg.Info(ctx, "payment reconciled")
	return &ReconcileResult{Outcome: ReconcileCompleted, TxRef: txRef, Message: "payment completed"}, nil
}

func (s *service) loadCart(ctx context.Context, userID uuid.UUID, cartCode string) (*models.Cart, error) {
	cartCode = strings.TrimSpace(cartCode)
	var (
		found *models.Cart
		err   error
	)
	if cartCode != "" {
		found, err = s.carts.FindByCode(ctx, cartCode)
	} else {
		found, err = s.carts.FindUnpaidByUser(ctx, userID)
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	return found, nil
}

func (s *service) cartTotal(cart *models.Cart) decimal.Decimal {
	total := decimal.Zero
	for _, item := range cart.Items {
		if item.Product == nil {
			continue
		}
		total = total.Add(item.Product.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total.Add(s.tax)
}

func (s *service) callbackURL() string {
	if s.redirectURL == "" {
		return ""
	}
	return strings.TrimRight(s.redirectURL, "/") + "/api/v1/payments/callback"
}

func callbackStatusOK(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "successful", "completed":
		return true
	default:
		return false
	}
}
