package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/marketloop/storefront-backend/api/middleware"
	"github.com/marketloop/storefront-backend/api/responses"
	"github.com/marketloop/storefront-backend/api/validators"
	cartsvc "github.com/marketloop/storefront-backend/internal/cart"
	pkgerrors "github.com/marketloop/storefront-backend/pkg/errors"
	"github.com/marketloop/storefront-backend/pkg/logger"
)

type addCartItemRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"omitempty,min=1"`
	CartCode  string `json:"cart_code,omitempty"`
}

type setCartItemQuantityRequest struct {
	Quantity int    `json:"quantity" validate:"required,min=1"`
	CartCode string `json:"cart_code,omitempty"`
}

type cartItemResponse struct {
	Item     any    `json:"item"`
	CartCode string `json:"cart_code"`
}

// cartIdentity builds the cart owner from the (optional) authenticated user
// and the cart_code carried in the query string or request body.
func cartIdentity(r *http.Request, bodyCode string) (cartsvc.Identity, error) {
	identity := cartsvc.Identity{}

	if raw := middleware.UserIDFromContext(r.Context()); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			return identity, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id")
		}
		identity.UserID = &parsed
	}

	code := strings.TrimSpace(bodyCode)
	if code == "" {
		code = strings.TrimSpace(r.URL.Query().Get("cart_code"))
	}
	identity.Code = code

	return identity, nil
}

// CartAddItem puts a product into the shopper's cart, creating the cart on
// first touch. Quantities for an existing line are summed.
func CartAddItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		var payload addCartItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		productID, err := uuid.Parse(strings.TrimSpace(payload.ProductID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id"))
			return
		}

		identity, err := cartIdentity(r, payload.CartCode)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		qty := payload.Quantity
		if qty == 0 {
			qty = 1
		}

		result, err := svc.AddItem(r.Context(), identity, productID, qty)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, cartItemResponse{
			Item:     result.Item,
			CartCode: result.CartCode,
		})
	}
}

// CartItemExists reports whether a product already sits in the cart. It never
// creates a cart for the asker.
func CartItemExists(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		raw, err := validators.QueryString(r, "product_id", true)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := uuid.Parse(raw)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id"))
			return
		}

		identity, err := cartIdentity(r, "")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		exists, err := svc.ProductInCart(r.Context(), identity, productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]bool{"exists": exists})
	}
}

// CartGet returns the full cart with its lines and computed totals.
func CartGet(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		identity, err := cartIdentity(r, "")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		detail, err := svc.GetCart(r.Context(), identity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"cart":           detail.Cart,
			"sub_total":      detail.SubTotal,
			"total_quantity": detail.TotalQuantity,
		})
	}
}

// CartStat returns the lightweight badge counters for the header widget.
func CartStat(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		identity, err := cartIdentity(r, "")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		summary, err := svc.Summary(r.Context(), identity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"cart_code":      summary.CartCode,
			"total_quantity": summary.TotalQuantity,
			"sub_total":      summary.SubTotal,
		})
	}
}

// CartSetItemQuantity overwrites a line's quantity.
func CartSetItemQuantity(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		itemID, err := uuid.Parse(chi.URLParam(r, "itemId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid item id"))
			return
		}

		var payload setCartItemQuantityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		identity, err := cartIdentity(r, payload.CartCode)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.SetQuantity(r.Context(), identity, itemID, payload.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, cartItemResponse{
			Item:     result.Item,
			CartCode: result.CartCode,
		})
	}
}

// CartRemoveItem drops a line from the cart.
func CartRemoveItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		itemID, err := uuid.Parse(chi.URLParam(r, "itemId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid item id"))
			return
		}

		identity, err := cartIdentity(r, "")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.RemoveItem(r.Context(), identity, itemID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "removed"})
	}
}
