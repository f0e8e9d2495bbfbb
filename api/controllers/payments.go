package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/marketloop/storefront-backend/api/middleware"
	"github.com/marketloop/storefront-backend/api/responses"
	"github.com/marketloop/storefront-backend/api/validators"
	paymentsvc "github.com/marketloop/storefront-backend/internal/payments"
	pkgerrors "github.com/marketloop/storefront-backend/pkg/errors"
	"github.com/marketloop/storefront-backend/pkg/logger"
)

type initiatePaymentRequest struct {
	CartCode string `json:"cart_code,omitempty"`
}

// PaymentInitiate starts checkout for the authenticated shopper's cart and
// returns the provider's hosted payment link.
func PaymentInitiate(svc paymentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		raw := middleware.UserIDFromContext(r.Context())
		if raw == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}
		userID, err := uuid.Parse(raw)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id"))
			return
		}

		var payload initiatePaymentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.InitiatePayment(r.Context(), userID, strings.TrimSpace(payload.CartCode))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"tx_ref":       result.TxRef,
			"amount":       result.Amount,
			"currency":     result.Currency,
			"payment_link": result.PaymentLink,
		})
	}
}

// PaymentCallback reconciles the provider redirect. The provider calls back
// with status, tx_ref and transaction_id in the query string; the shopper may
// or may not still be authenticated when the redirect lands.
func PaymentCallback(svc paymentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		status, _ := validators.QueryString(r, "status", false)
		txRef, err := validators.QueryString(r, "tx_ref", true)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		providerTxID, _ := validators.QueryString(r, "transaction_id", false)

		var userID *uuid.UUID
		if raw := middleware.UserIDFromContext(r.Context()); raw != "" {
			if parsed, parseErr := uuid.Parse(raw); parseErr == nil {
				userID = &parsed
			}
		}

		result, err := svc.ReconcileCallback(r.Context(), userID, status, txRef, providerTxID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"outcome": result.Outcome,
			"tx_ref":  result.TxRef,
			"message": result.Message,
		})
	}
}
