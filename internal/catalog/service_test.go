package catalog

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/marketloop/storefront-backend/pkg/db/models"
	pkgerrors "github.com/marketloop/storefront-backend/pkg/errors"
)

type stubRepo struct {
	products []models.Product
	bySlug   map[string]*models.Product
	listErr  error
}

func (s *stubRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubRepo) List(ctx context.Context) ([]models.Product, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.products, nil
}

func (s *stubRepo) FindBySlug(ctx context.Context, slug string) (*models.Product, error) {
	if product, ok := s.bySlug[slug]; ok {
		return product, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	for i := range s.products {
		if s.products[i].ID == id {
			return &s.products[i], nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func TestServiceListProducts(t *testing.T) {
	repo := &stubRepo{products: []models.Product{{ID: uuid.New(), Slug: "a"}, {ID: uuid.New(), Slug: "b"}}}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	products, err := svc.ListProducts(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(products) != 2 {
		t.Fatalf("expected 2 products, got %d", len(products))
	}
}

func TestServiceGetProductBySlug(t *testing.T) {
	product := &models.Product{ID: uuid.New(), Slug: "espresso-beans"}
	repo := &stubRepo{bySlug: map[string]*models.Product{"espresso-beans": product}}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	found, err := svc.GetProductBySlug(context.Background(), "espresso-beans")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found.ID != product.ID {
		t.Fatalf("unexpected product %s", found.ID)
	}

	_, err = svc.GetProductBySlug(context.Background(), "missing")
	if pkgerrors.As(err) == nil || pkgerrors.As(err).Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}

	_, err = svc.GetProductBySlug(context.Background(), "  ")
	if pkgerrors.As(err) == nil || pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestNewServiceRequiresRepository(t *testing.T) {
	if _, err := NewService(nil); err == nil {
		t.Fatal("expected error for nil repository")
	}
}
