package payments

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
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

type gormTxRunner struct {
	db *gorm.DB
}

func (r *gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type stubProvider struct {
	charge      *flutterwave.Charge
	chargeErr   error
	lastCharge  flutterwave.ChargeParams
	verify      *flutterwave.Transaction
	verifyErr   error
	verifyCalls int
}

func (s *stubProvider) CreateCharge(ctx context.Context, params flutterwave.ChargeParams) (*flutterwave.Charge, error) {
	s.lastCharge = params
	if s.chargeErr != nil {
		return nil, s.chargeErr
	}
	return s.charge, nil
}

func (s *stubProvider) VerifyTransaction(ctx context.Context, transactionID string) (*flutterwave.Transaction, error) {
	s.verifyCalls++
	if s.verifyErr != nil {
		return nil, s.verifyErr
	}
	return s.verify, nil
}

type stubUserLoader struct {
	users map[uuid.UUID]*models.User
}

func (s *stubUserLoader) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if user, ok := s.users[id]; ok {
		return user, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func setupPaymentsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	schema := []string{
		`CREATE TABLE IF NOT EXISTS products (
  id TEXT PRIMARY KEY,
  slug TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  price NUMERIC NOT NULL,
  image_url TEXT,
  featured INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS carts (
  id TEXT PRIMARY KEY,
  code TEXT NOT NULL UNIQUE,
  user_id TEXT,
  paid INTEGER NOT NULL DEFAULT 0,
  currency TEXT NOT NULL DEFAULT 'USD',
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS cart_items (
  id TEXT PRIMARY KEY,
  cart_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  quantity INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (cart_id, product_id)
);`,
		`CREATE TABLE IF NOT EXISTS transactions (
  id TEXT PRIMARY KEY,
  ref TEXT NOT NULL UNIQUE,
  cart_id TEXT NOT NULL,
  user_id TEXT,
  amount NUMERIC NOT NULL,
  currency TEXT NOT NULL DEFAULT 'USD',
  status TEXT NOT NULL DEFAULT 'pending',
  provider_tx_id TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
	}
	for _, stmt := range schema {
		require.NoError(t, conn.Exec(stmt).Error)
	}
	return conn
}

type fixture struct {
	svc      Service
	conn     *gorm.DB
	provider *stubProvider
	userID   uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := setupPaymentsTestDB(t)
	userID := uuid.New()
	provider := &stubProvider{
		charge: &flutterwave.Charge{PaymentLink: "https://checkout.example.com/pay/abc"},
	}
	users := &stubUserLoader{users: map[uuid.UUID]*models.User{
		userID: {ID: userID, Email: "shopper@example.com", Role: enums.UserRoleCustomer},
	}}
	logg := logger.New(logger.Options{ServiceName: "payments-test", Output: io.Discard})

	svc, err := NewService(
		cart.NewRepository(conn),
		NewRepository(conn),
		&gormTxRunner{db: conn},
		provider,
		users,
		logg,
		metrics.NewPaymentMetrics(prometheus.NewRegistry()),
		config.PaymentConfig{TaxAmount: "4.00", Currency: "USD"},
		config.FlutterwaveConfig{RedirectBaseURL: "https://shop.example.com"},
	)
	require.NoError(t, err)
	return &fixture{svc: svc, conn: conn, provider: provider, userID: userID}
}

func (f *fixture) seedCartWithItems(t *testing.T) *models.Cart {
	t.Helper()
	coffee := models.Product{ID: uuid.New(), Slug: "espresso-beans", Name: "espresso beans", Price: decimal.RequireFromString("10.00")}
	kit := models.Product{ID: uuid.New(), Slug: "pour-over-kit", Name: "pour over kit", Price: decimal.RequireFromString("5.00")}
	require.NoError(t, f.conn.Create(&coffee).Error)
	require.NoError(t, f.conn.Create(&kit).Error)

	openCart := models.Cart{ID: uuid.New(), Code: uuid.NewString(), UserID: &f.userID, Currency: enums.CurrencyUSD}
	require.NoError(t, f.conn.Create(&openCart).Error)
	require.NoError(t, f.conn.Create(&models.CartItem{ID: uuid.New(), CartID: openCart.ID, ProductID: coffee.ID, Quantity: 2}).Error)
	require.NoError(t, f.conn.Create(&models.CartItem{ID: uuid.New(), CartID: openCart.ID, ProductID: kit.ID, Quantity: 1}).Error)
	return &openCart
}

func (f *fixture) transactionCount(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.conn.Model(&models.Transaction{}).Count(&count).Error)
	return count
}

func TestInitiatePaymentComputesAmountWithTax(t *testing.T) {
	f := newFixture(t)
	openCart := f.seedCartWithItems(t)

	result, err := f.svc.InitiatePayment(context.Background(), f.userID, openCart.Code)
	require.NoError(t, err)

	// 10.00*2 + 5.00*1 + 4.00 tax
	require.True(t, result.Amount.Equal(decimal.RequireFromString("29.00")))
	require.Equal(t, enums.CurrencyUSD, result.Currency)
	require.Equal(t, "https://checkout.example.com/pay/abc", result.PaymentLink)
	require.True(t, f.provider.lastCharge.Amount.Equal(decimal.RequireFromString("29.00")))
	require.Equal(t, "https://shop.example.com/api/v1/payments/callback", f.provider.lastCharge.RedirectURL)

	var transaction models.Transaction
	require.NoError(t, f.conn.Where("ref = ?", result.TxRef).First(&transaction).Error)
	require.Equal(t, enums.TransactionStatusPending, transaction.Status)
	require.True(t, transaction.Amount.Equal(decimal.RequireFromString("29.00")))
}

func TestInitiatePaymentOnPaidCart(t *testing.T) {
	f := newFixture(t)
	openCart := f.seedCartWithItems(t)
	require.NoError(t, f.conn.Model(&models.Cart{}).Where("id = ?", openCart.ID).Update("paid", true).Error)

	_, err := f.svc.InitiatePayment(context.Background(), f.userID, openCart.Code)
	require.Equal(t, pkgerrors.CodeDuplicatePayment, pkgerrors.As(err).Code())
	require.Zero(t, f.transactionCount(t))
}

func TestInitiatePaymentProviderFailureKeepsPendingRow(t *testing.T) {
	f := newFixture(t)
	openCart := f.seedCartWithItems(t)
	f.provider.chargeErr = pkgerrors.New(pkgerrors.CodeDependency, "provider down")

	_, err := f.svc.InitiatePayment(context.Background(), f.userID, openCart.Code)
	require.Equal(t, pkgerrors.CodeDependency, pkgerrors.As(err).Code())
	require.Equal(t, int64(1), f.transactionCount(t))

	// a retry creates a fresh transaction instead of reusing the stale one
	f.provider.chargeErr = nil
	_, err = f.svc.InitiatePayment(context.Background(), f.userID, openCart.Code)
	require.NoError(t, err)
	require.Equal(t, int64(2), f.transactionCount(t))
}

func TestReconcileCallbackCompletesAndIsIdempotent(t *testing.T) {
	f := newFixture(t)
	openCart := f.seedCartWithItems(t)

	initiated, err := f.svc.InitiatePayment(context.Background(), f.userID, openCart.Code)
	require.NoError(t, err)

	f.provider.verify = &flutterwave.Transaction{
		ID:       9001,
		TxRef:    initiated.TxRef,
		Amount:   decimal.RequireFromString("29.00"),
		Currency: "USD",
		Status:   flutterwave.TxStatusSuccessful,
	}

	result, err := f.svc.ReconcileCallback(context.Background(), &f.userID, "successful", initiated.TxRef, "9001")
	require.NoError(t, err)
	require.Equal(t, ReconcileCompleted, result.Outcome)

	var reloaded models.Cart
	require.NoError(t, f.conn.Where("id = ?", openCart.ID).First(&reloaded).Error)
	require.True(t, reloaded.Paid)

	var transaction models.Transaction
	require.NoError(t, f.conn.Where("ref = ?", initiated.TxRef).First(&transaction).Error)
	require.Equal(t, enums.TransactionStatusCompleted, transaction.Status)

	// identical repeat is a reported no-op
	again, err := f.svc.ReconcileCallback(context.Background(), &f.userID, "successful", initiated.TxRef, "9001")
	require.NoError(t, err)
	require.Equal(t, ReconcileAlreadyProcessed, again.Outcome)
}

func TestReconcileCallbackAmountMismatch(t *testing.T) {
	f := newFixture(t)
	openCart := f.seedCartWithItems(t)

	initiated, err := f.svc.InitiatePayment(context.Background(), f.userID, openCart.Code)
	require.NoError(t, err)

	f.provider.verify = &flutterwave.Transaction{
		ID:       9002,
		TxRef:    initiated.TxRef,
		Amount:   decimal.RequireFromString("20.00"),
		Currency: "USD",
		Status:   flutterwave.TxStatusSuccessful,
	}

	_, err = f.svc.ReconcileCallback(context.Background(), &f.userID, "successful", initiated.TxRef, "9002")
	require.Equal(t, pkgerrors.CodeVerificationMismatch, pkgerrors.As(err).Code())

	var reloaded models.Cart
	require.NoError(t, f.conn.Where("id = ?", openCart.ID).First(&reloaded).Error)
	require.False(t, reloaded.Paid)

	var transaction models.Transaction
	require.NoError(t, f.conn.Where("ref = ?", initiated.TxRef).First(&transaction).Error)
	require.Equal(t, enums.TransactionStatusPending, transaction.Status)
}

func TestReconcileCallbackFailureStatusSkipsProvider(t *testing.T) {
	f := newFixture(t)

	result, err := f.svc.ReconcileCallback(context.Background(), nil, "cancelled", "some-ref", "9003")
	require.NoError(t, err)
	require.Equal(t, ReconcileFailed, result.Outcome)
	require.Zero(t, f.provider.verifyCalls)
}

func TestReconcileCallbackUnknownRef(t *testing.T) {
	f := newFixture(t)
	f.provider.verify = &flutterwave.Transaction{
		ID:       9004,
		TxRef:    "missing-ref",
		Amount:   decimal.RequireFromString("29.00"),
		Currency: "USD",
		Status:   flutterwave.TxStatusSuccessful,
	}

	_, err := f.svc.ReconcileCallback(context.Background(), nil, "successful", "missing-ref", "9004")
	require.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestReconcileCallbackAdoptsGuestCart(t *testing.T) {
	f := newFixture(t)

	coffee := models.Product{ID: uuid.New(), Slug: "espresso-beans", Name: "espresso beans", Price: decimal.RequireFromString("25.00")}
	require.NoError(t, f.conn.Create(&coffee).Error)
	guestCart := models.Cart{ID: uuid.New(), Code: uuid.NewString(), Currency: enums.CurrencyUSD}
	require.NoError(t, f.conn.Create(&guestCart).Error)
	require.NoError(t, f.conn.Create(&models.CartItem{ID: uuid.New(), CartID: guestCart.ID, ProductID: coffee.ID, Quantity: 1}).Error)

	initiated, err := f.svc.InitiatePayment(context.Background(), f.userID, guestCart.Code)
	require.NoError(t, err)

	f.provider.verify = &flutterwave.Transaction{
		ID:       9005,
		TxRef:    initiated.TxRef,
		Amount:   decimal.RequireFromString("29.00"),
		Currency: "USD",
		Status:   flutterwave.TxStatusSuccessful,
	}

	result, err := f.svc.ReconcileCallback(context.Background(), &f.userID, "successful", initiated.TxRef, "9005")
	require.NoError(t, err)
	require.Equal(t, ReconcileCompleted, result.Outcome)

	var reloaded models.Cart
	require.NoError(t, f.conn.Where("id = ?", guestCart.ID).First(&reloaded).Error)
	require.True(t, reloaded.Paid)
	require.NotNil(t, reloaded.UserID)
	require.Equal(t, f.userID, *reloaded.UserID)
}
