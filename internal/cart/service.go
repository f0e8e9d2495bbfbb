package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/marketloop/storefront-backend/pkg/db"
	"github.com/marketloop/storefront-backend/pkg/db/models"
	"github.com/marketloop/storefront-backend/pkg/enums"
	pkgerrors "github.com/marketloop/storefront-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type productLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

// Identity names the owner of a cart: an authenticated user, or an anonymous
// shopper carrying a cart code. UserID wins when both are set.
type Identity struct {
	UserID *uuid.UUID
	Code   string
}

// ItemResult is the outcome of an item mutation. CartCode is echoed so
// anonymous shoppers can hold on to their cart.
type ItemResult struct {
	Item     *models.CartItem
	CartID   uuid.UUID
	CartCode string
}

// Detail is a cart with its lines and computed totals.
type Detail struct {
	Cart          *models.Cart
	SubTotal      decimal.Decimal
	TotalQuantity int
}

// Summary is the lightweight cart badge: line quantities summed plus total.
type Summary struct {
	CartCode      string
	TotalQuantity int
	SubTotal      decimal.Decimal
}

// Service exposes cart resolution and line management.
type Service interface {
	ResolveCart(ctx context.Context, identity Identity) (*models.Cart, error)
	AddItem(ctx context.Context, identity Identity, productID uuid.UUID, qty int) (*ItemResult, error)
	SetQuantity(ctx context.Context, identity Identity, itemID uuid.UUID, qty int) (*ItemResult, error)
	RemoveItem(ctx context.Context, identity Identity, itemID uuid.UUID) error
	ProductInCart(ctx context.Context, identity Identity, productID uuid.UUID) (bool, error)
	GetCart(ctx context.Context, identity Identity) (*Detail, error)
	Summary(ctx context.Context, identity Identity) (*Summary, error)
}

type service struct {
	repo     Repository
	tx       txRunner
	products productLoader
}

// NewService builds a cart service backed by the provided stack.
func NewService(repo Repository, tx txRunner, products productLoader) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if products == nil {
		return nil, fmt.Errorf("product loader required")
	}
	return &service{repo: repo, tx: tx, products: products}, nil
}

// ResolveCart returns the identity's open cart, creating one when none
// exists. Creation races resolve through the store's unique constraints:
// a losing insert re-reads the winner instead of failing.
func (s *service) ResolveCart(ctx context.Context, identity Identity) (*models.Cart, error) {
	return s.resolve(ctx, s.repo, identity)
}

func (s *service) resolve(ctx context.Context, repo Repository, identity Identity) (*models.Cart, error) {
	if identity.UserID != nil {
		cart, err := repo.FindUnpaidByUser(ctx, *identity.UserID)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}
		return s.createCart(ctx, repo, identity)
	}

	if code := strings.TrimSpace(identity.Code); code != "" {
		cart, err := repo.FindUnpaidByCode(ctx, code)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}
	}
	return s.createCart(ctx, repo, identity)
}

func (s *service) createCart(ctx context.Context, repo Repository, identity Identity) (*models.Cart, error) {
	cart := &models.Cart{
		ID:       uuid.New(),
		Code:     uuid.NewString(),
		UserID:   identity.UserID,
		Currency: enums.CurrencyUSD,
	}
	err := repo.Create(ctx, cart)
	if err == nil {
		return cart, nil
	}

	// Lost the insert race: another request created the cart. Re-read it.
	if db.IsUniqueViolation(err, "") {
		if identity.UserID != nil {
			if existing, findErr := repo.FindUnpaidByUser(ctx, *identity.UserID); findErr == nil {
				return existing, nil
			}
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "cart creation conflict")
	}
	return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart")
}

// AddItem adds qty of the product to the identity's cart, summing quantities
// when the line already exists.
func (s *service) AddItem(ctx context.Context, identity Identity, productID uuid.UUID, qty int) (*ItemResult, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if qty < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}

	var result *ItemResult
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		cart, err := s.resolve(ctx, repo, identity)
		if err != nil {
			return err
		}

		item, err := repo.FindItem(ctx, cart.ID, product.ID)
		switch {
		case err == nil:
			item.Quantity += qty
			if err := repo.UpdateItemQuantity(ctx, item.ID, item.Quantity); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart item")
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			item = &models.CartItem{
				ID:        uuid.New(),
				CartID:    cart.ID,
				ProductID: product.ID,
				Quantity:  qty,
			}
			if err := repo.CreateItem(ctx, item); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart item")
			}
		default:
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart item")
		}

		result = &ItemResult{Item: item, CartID: cart.ID, CartCode: cart.Code}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SetQuantity sets the exact quantity of a line in the identity's cart.
func (s *service) SetQuantity(ctx context.Context, identity Identity, itemID uuid.UUID, qty int) (*ItemResult, error) {
	if itemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id is required")
	}
	if qty < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}

	var result *ItemResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		cart, err := s.resolve(ctx, repo, identity)
		if err != nil {
			return err
		}

		item, err := repo.FindItemByID(ctx, cart.ID, itemID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart item")
		}

		if err := repo.UpdateItemQuantity(ctx, item.ID, qty); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart item")
		}
		item.Quantity = qty
		result = &ItemResult{Item: item, CartID: cart.ID, CartCode: cart.Code}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RemoveItem deletes a line from the identity's cart.
func (s *service) RemoveItem(ctx context.Context, identity Identity, itemID uuid.UUID) error {
	if itemID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "item id is required")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		cart, err := s.resolve(ctx, repo, identity)
		if err != nil {
			return err
		}

		item, err := repo.FindItemByID(ctx, cart.ID, itemID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart item")
		}

		if err := repo.DeleteItem(ctx, item.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete cart item")
		}
		return nil
	})
}

// ProductInCart reports whether the identity's cart holds the product.
// It never creates a cart.
func (s *service) ProductInCart(ctx context.Context, identity Identity, productID uuid.UUID) (bool, error) {
	if productID == uuid.Nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}

	cart, err := s.peek(ctx, identity)
	if err != nil {
		return false, err
	}
	if cart == nil {
		return false, nil
	}

	_, err = s.repo.FindItem(ctx, cart.ID, productID)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart item")
}

// GetCart returns the identity's cart with lines and computed totals.
func (s *service) GetCart(ctx context.Context, identity Identity) (*Detail, error) {
	cart, err := s.ResolveCart(ctx, identity)
	if err != nil {
		return nil, err
	}

	subTotal, totalQty := totals(cart)
	return &Detail{Cart: cart, SubTotal: subTotal, TotalQuantity: totalQty}, nil
}

// Summary returns the cart badge numbers without the line payload.
func (s *service) Summary(ctx context.Context, identity Identity) (*Summary, error) {
	cart, err := s.peek(ctx, identity)
	if err != nil {
		return nil, err
	}
	if cart == nil {
		return &Summary{SubTotal: decimal.Zero}, nil
	}

	subTotal, totalQty := totals(cart)
	return &Summary{CartCode: cart.Code, TotalQuantity: totalQty, SubTotal: subTotal}, nil
}

// peek finds the identity's open cart without creating one.
func (s *service) peek(ctx context.Context, identity Identity) (*models.Cart, error) {
	var (
		cart *models.Cart
		err  error
	)
	switch {
	case identity.UserID != nil:
		cart, err = s.repo.FindUnpaidByUser(ctx, *identity.UserID)
	case strings.TrimSpace(identity.Code) != "":
		cart, err = s.repo.FindUnpaidByCode(ctx, strings.TrimSpace(identity.Code))
	default:
		return nil, nil
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	return cart, nil
}

func totals(cart *models.Cart) (decimal.Decimal, int) {
	subTotal := decimal.Zero
	totalQty := 0
	for _, item := range cart.Items {
		totalQty += item.Quantity
		if item.Product != nil {
			line := item.Product.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
			subTotal = subTotal.Add(line)
		}
	}
	return subTotal, totalQty
}
