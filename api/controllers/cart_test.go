package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	cartsvc "github.com/marketloop/storefront-backend/internal/cart"
	"github.com/marketloop/storefront-backend/pkg/db/models"
	pkgerrors "github.com/marketloop/storefront-backend/pkg/errors"
)

type stubCartService struct {
	lastIdentity cartsvc.Identity
	lastQty      int
	addResult    *cartsvc.ItemResult
	addErr       error
	exists       bool
	detail       *cartsvc.Detail
	summary      *cartsvc.Summary
	removeErr    error
}

func (s *stubCartService) ResolveCart(_ context.Context, identity cartsvc.Identity) (*models.Cart, error) {
	s.lastIdentity = identity
	return nil, nil
}

func (s *stubCartService) AddItem(_ context.Context, identity cartsvc.Identity, _ uuid.UUID, qty int) (*cartsvc.ItemResult, error) {
	s.lastIdentity = identity
	s.lastQty = qty
	if s.addErr != nil {
		return nil, s.addErr
	}
	return s.addResult, nil
}

func (s *stubCartService) SetQuantity(_ context.Context, identity cartsvc.Identity, _ uuid.UUID, qty int) (*cartsvc.ItemResult, error) {
	s.lastIdentity = identity
	s.lastQty = qty
	return s.addResult, nil
}

func (s *stubCartService) RemoveItem(_ context.Context, identity cartsvc.Identity, _ uuid.UUID) error {
	s.lastIdentity = identity
	return s.removeErr
}

func (s *stubCartService) ProductInCart(_ context.Context, identity cartsvc.Identity, _ uuid.UUID) (bool, error) {
	s.lastIdentity = identity
	return s.exists, nil
}

func (s *stubCartService) GetCart(_ context.Context, identity cartsvc.Identity) (*cartsvc.Detail, error) {
	s.lastIdentity = identity
	return s.detail, nil
}

func (s *stubCartService) Summary(_ context.Context, identity cartsvc.Identity) (*cartsvc.Summary, error) {
	s.lastIdentity = identity
	return s.summary, nil
}

func TestCartAddItemEchoesCartCode(t *testing.T) {
	svc := &stubCartService{
		addResult: &cartsvc.ItemResult{
			Item:     &models.CartItem{ID: uuid.New(), Quantity: 2},
			CartID:   uuid.New(),
			CartCode: "anon-code-1",
		},
	}

	body := `{"product_id":"` + uuid.NewString() + `","quantity":2,"cart_code":"anon-code-1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(body))
	rec := httptest.NewRecorder()
	CartAddItem(svc, nil)(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.lastIdentity.Code != "anon-code-1" {
		t.Fatalf("expected cart code from body, got %q", svc.lastIdentity.Code)
	}
	if svc.lastQty != 2 {
		t.Fatalf("expected quantity 2, got %d", svc.lastQty)
	}
	var envelope struct {
		Data cartItemResponse `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.CartCode != "anon-code-1" {
		t.Fatalf("expected cart code echoed, got %q", envelope.Data.CartCode)
	}
}

func TestCartAddItemDefaultsQuantityToOne(t *testing.T) {
	svc := &stubCartService{addResult: &cartsvc.ItemResult{Item: &models.CartItem{}, CartCode: "c"}}

	body := `{"product_id":"` + uuid.NewString() + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(body))
	rec := httptest.NewRecorder()
	CartAddItem(svc, nil)(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if svc.lastQty != 1 {
		t.Fatalf("expected default quantity 1, got %d", svc.lastQty)
	}
}

func TestCartAddItemRejectsBadProductID(t *testing.T) {
	svc := &stubCartService{}

	body := `{"product_id":"not-a-uuid"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(body))
	rec := httptest.NewRecorder()
	CartAddItem(svc, nil)(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCartAddItemSurfacesNotFound(t *testing.T) {
	svc := &stubCartService{addErr: pkgerrors.New(pkgerrors.CodeNotFound, "product not found")}

	body := `{"product_id":"` + uuid.NewString() + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(body))
	rec := httptest.NewRecorder()
	CartAddItem(svc, nil)(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCartItemExistsReadsQueryIdentity(t *testing.T) {
	svc := &stubCartService{exists: true}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart/items/exists?product_id="+uuid.NewString()+"&cart_code=anon-code-2", nil)
	rec := httptest.NewRecorder()
	CartItemExists(svc, nil)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.lastIdentity.Code != "anon-code-2" {
		t.Fatalf("expected cart code from query, got %q", svc.lastIdentity.Code)
	}
	var envelope struct {
		Data map[string]bool `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !envelope.Data["exists"] {
		t.Fatal("expected exists true")
	}
}

func TestCartItemExistsRequiresProductID(t *testing.T) {
	svc := &stubCartService{}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart/items/exists", nil)
	rec := httptest.NewRecorder()
	CartItemExists(svc, nil)(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCartStatReturnsSummary(t *testing.T) {
	svc := &stubCartService{summary: &cartsvc.Summary{
		CartCode:      "anon-code-3",
		TotalQuantity: 3,
		SubTotal:      decimal.RequireFromString("25.00"),
	}}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart/stat?cart_code=anon-code-3", nil)
	rec := httptest.NewRecorder()
	CartStat(svc, nil)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var envelope struct {
		Data struct {
			CartCode      string `json:"cart_code"`
			TotalQuantity int    `json:"total_quantity"`
			SubTotal      string `json:"sub_total"`
		} `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.TotalQuantity != 3 || envelope.Data.SubTotal != "25.00" {
		t.Fatalf("unexpected summary: %+v", envelope.Data)
	}
}

func TestCartSetItemQuantityUpdatesLine(t *testing.T) {
	svc := &stubCartService{addResult: &cartsvc.ItemResult{Item: &models.CartItem{Quantity: 4}, CartCode: "c"}}

	router := chi.NewRouter()
	router.Patch("/api/v1/cart/items/{itemId}", CartSetItemQuantity(svc, nil))

	body := `{"quantity":4}`
	req := httptest.NewRequest(http.MethodPatch, "/api/v1/cart/items/"+uuid.NewString(), strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.lastQty != 4 {
		t.Fatalf("expected quantity 4, got %d", svc.lastQty)
	}
}

func TestCartSetItemQuantityRejectsZero(t *testing.T) {
	svc := &stubCartService{}

	router := chi.NewRouter()
	router.Patch("/api/v1/cart/items/{itemId}", CartSetItemQuantity(svc, nil))

	body := `{"quantity":0}`
	req := httptest.NewRequest(http.MethodPatch, "/api/v1/cart/items/"+uuid.NewString(), strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCartRemoveItemCrossCartReturns404(t *testing.T) {
	svc := &stubCartService{removeErr: pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")}

	router := chi.NewRouter()
	router.Delete("/api/v1/cart/items/{itemId}", CartRemoveItem(svc, nil))

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/cart/items/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
