package payments

import (
	"context"

	"gorm.io/gorm"

	"github.com/marketloop/storefront-backend/pkg/db/models"
	"github.com/marketloop/storefront-backend/pkg/enums"
)

// Repository defines the transaction persistence surface.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, transaction *models.Transaction) error
	FindByRef(ctx context.Context, ref string) (*models.Transaction, error)
	Complete(ctx context.Context, ref string, providerTxID string) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds the repository to the provided GORM handle.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// WithTx scopes the repository to the provided transaction.
func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create inserts the provided transaction row.
func (r *repository) Create(ctx context.Context, transaction *models.Transaction) error {
	return r.db.WithContext(ctx).Create(transaction).Error
}

// FindByRef returns the transaction with the given merchant reference.
func (r *repository) FindByRef(ctx context.Context, ref string) (*models.Transaction, error) {
	var transaction models.Transaction
	err := r.db.WithContext(ctx).
		Where("ref = ?", ref).
		First(&transaction).Error
	if err != nil {
		return nil, err
	}
	return &transaction, nil
}

// Complete marks the transaction completed and records the provider-side id.
func (r *repository) Complete(ctx context.Context, ref string, providerTxID string) error {
	updates := map[string]any{"status": enums.TransactionStatusCompleted}
	if providerTxID != "" {
		updates["provider_tx_id"] = providerTxID
	}
	return r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("ref = ?", ref).
		Updates(updates).Error
}
