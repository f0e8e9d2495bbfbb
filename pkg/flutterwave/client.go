package flutterwave

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/marketloop/storefront-backend/pkg/config"
	pkgerrors "github.com/marketloop/storefront-backend/pkg/errors"
	"github.com/marketloop/storefront-backend/pkg/logger"
)

const (
	testEnv = "test"
	liveEnv = "live"

	statusSuccess = "success"

	// TxStatusSuccessful is the provider-side status of a settled charge.
	TxStatusSuccessful = "successful"
)

var (
	errSecretKeyRequired = errors.New("flutterwave secret key is required")
	errBaseURLRequired   = errors.New("flutterwave base url is required")
	errInvalidEnv        = fmt.Errorf("flutterwave environment must be %q or %q", testEnv, liveEnv)
	errLoggerRequired    = errors.New("flutterwave logger is required")
)

// Client exposes the payment provider primitives with centralized auth,
// logging, and error mapping.
type Client struct {
	httpClient  *http.Client
	secretKey   string
	environment string
	baseURL     string
	logger      *logger.Logger
}

// ChargeParams describes a hosted-payment charge to create.
type ChargeParams struct {
	TxRef         string
	Amount        decimal.Decimal
	Currency      string
	RedirectURL   string
	CustomerEmail string
	CustomerName  string
	Title         string
	Description   string
}

// Charge is the provider's answer to a charge creation: the hosted link the
// shopper is redirected to.
type Charge struct {
	PaymentLink string
}

// Transaction is the provider's verified view of one transaction.
type Transaction struct {
	ID       int64
	TxRef    string
	Amount   decimal.Decimal
	Currency string
	Status   string
}

// Settled reports whether the provider considers the charge paid.
func (t *Transaction) Settled() bool {
	return t != nil && t.Status == TxStatusSuccessful
}

// NewClient initializes the provider wrapper and validates the credentials.
func NewClient(ctx context.Context, cfg config.FlutterwaveConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}

	secretKey := strings.TrimSpace(cfg.SecretKey)
	if secretKey == "" {
		return nil, errSecretKeyRequired
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errBaseURLRequired
	}

	c := &Client{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		secretKey:   secretKey,
		environment: env,
		baseURL:     baseURL,
		logger:      logg,
	}

	logg.Info(ctx, "flutterwave client initialized")
	return c, nil
}

// Environment reports the normalized provider environment.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// CreateCharge registers a hosted payment with the provider and returns the
// link the shopper completes the charge on.
func (c *Client) CreateCharge(ctx context.Context, params ChargeParams) (*Charge, error) {
	if strings.TrimSpace(params.TxRef) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tx_ref is required")
	}
	if !params.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}

	body := map[string]any{
		"tx_ref":       params.TxRef,
		"amount":       params.Amount.String(),
		"currency":     params.Currency,
		"redirect_url": params.RedirectURL,
		"customer": map[string]any{
			"email": params.CustomerEmail,
			"name":  params.CustomerName,
		},
		"customizations": map[string]any{
			"title":       params.Title,
			"description": params.Description,
		},
	}

	c.log(ctx, "request", "create_charge", map[string]any{
		"tx_ref":   params.TxRef,
		"amount":   params.Amount.String(),
		"currency": params.Currency,
	})

	var payload struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Data    struct {
			Link string `json:"link"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, "/payments", body, &payload); err != nil {
		c.log(ctx, "error", "create_charge", map[string]any{"error": err.Error()})
		return nil, err
	}
	if payload.Status != statusSuccess || payload.Data.Link == "" {
		err := pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("flutterwave create charge rejected: %s", payload.Message))
		c.log(ctx, "error", "create_charge", map[string]any{"error": err.Error()})
		return nil, err
	}

	c.log(ctx, "response", "create_charge", map[string]any{"tx_ref": params.TxRef})
	return &Charge{PaymentLink: payload.Data.Link}, nil
}

// VerifyTransaction asks the provider for the settled state of a transaction
// by its provider-side id.
func (c *Client) VerifyTransaction(ctx context.Context, transactionID string) (*Transaction, error) {
	id := strings.TrimSpace(transactionID)
	if id == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id is required")
	}

	c.log(ctx, "request", "verify_transaction", map[string]any{"transaction_id": id})

	var payload struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Data    struct {
			ID       int64           `json:"id"`
			TxRef    string          `json:"tx_ref"`
			Amount   decimal.Decimal `json:"amount"`
			Currency string          `json:"currency"`
			Status   string          `json:"status"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/transactions/%s/verify", id), nil, &payload); err != nil {
		c.log(ctx, "error", "verify_transaction", map[string]any{"error": err.Error()})
		return nil, err
	}
	if payload.Status != statusSuccess {
		err := pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("flutterwave verify rejected: %s", payload.Message))
		c.log(ctx, "error", "verify_transaction", map[string]any{"error": err.Error()})
		return nil, err
	}

	tx := &Transaction{
		ID:       payload.Data.ID,
		TxRef:    payload.Data.TxRef,
		Amount:   payload.Data.Amount,
		Currency: payload.Data.Currency,
		Status:   payload.Data.Status,
	}
	c.log(ctx, "response", "verify_transaction", map[string]any{
		"transaction_id": id,
		"tx_ref":         tx.TxRef,
		"status":         tx.Status,
	})
	return tx, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding flutterwave request")
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building flutterwave request")
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "calling flutterwave")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading flutterwave response")
	}

	if resp.StatusCode >= 400 {
		return pkgerrors.New(domainCodeForStatus(resp.StatusCode), fmt.Sprintf("flutterwave %s %s returned %d", method, path, resp.StatusCode))
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding flutterwave response")
		}
	}
	return nil
}

const maxResponseBytes = 1 << 20

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = c.redact(k, v)
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("flutterwave %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("flutterwave %s", phase))
	}
}

func (c *Client) redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, sensitive := range []string{"card", "token", "cvv", "secret", "email", "phone"} {
		if strings.Contains(lower, sensitive) {
			return "[REDACTED]"
		}
	}
	return value
}

func domainCodeForStatus(status int) pkgerrors.Code {
	switch status {
	case http.StatusUnauthorized:
		return pkgerrors.CodeUnauthorized
	case http.StatusForbidden:
		return pkgerrors.CodeForbidden
	case http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case http.StatusConflict:
		return pkgerrors.CodeConflict
	case http.StatusTooManyRequests:
		return pkgerrors.CodeRateLimit
	default:
		if status >= 400 && status < 500 {
			return pkgerrors.CodeValidation
		}
		return pkgerrors.CodeDependency
	}
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = testEnv
	}
	switch env {
	case testEnv, liveEnv:
		return env, nil
	default:
		return "", errInvalidEnv
	}
}
