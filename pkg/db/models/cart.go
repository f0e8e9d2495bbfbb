package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/marketloop/storefront-backend/pkg/enums"
)

// Cart is the pre-purchase line item collection for one owner identity.
// Either UserID or the anonymous Code is authoritative at a time. Paid is
// monotonic: it flips false to true once, at payment reconciliation, and a
// fresh cart is created for any later purchase.
type Cart struct {
	ID        uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Code      string         `gorm:"column:code;not null;uniqueIndex"`
	UserID    *uuid.UUID     `gorm:"column:user_id;type:uuid"`
	Paid      bool           `gorm:"column:paid;not null;default:false"`
	Currency  enums.Currency `gorm:"column:currency;not null;default:'USD'"`
	Items     []CartItem     `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
