package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/marketloop/storefront-backend/pkg/enums"
)

// Transaction records one payment attempt against a cart. Ref is the
// merchant-side reference (tx_ref) handed to the provider at initiation and
// echoed back on the callback. Status moves from pending to exactly one of
// completed or failed and never changes after that.
type Transaction struct {
	ID           uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Ref          string                  `gorm:"column:ref;type:text;not null;uniqueIndex"`
	CartID       uuid.UUID               `gorm:"column:cart_id;type:uuid;not null"`
	UserID       *uuid.UUID              `gorm:"column:user_id;type:uuid"`
	Amount       decimal.Decimal         `gorm:"column:amount;type:numeric(10,2);not null"`
	Currency     enums.Currency          `gorm:"column:currency;type:text;not null;default:'USD'"`
	Status       enums.TransactionStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	ProviderTxID *string                 `gorm:"column:provider_tx_id;type:text"`
	Cart         *Cart                   `gorm:"foreignKey:CartID"`
	CreatedAt    time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
