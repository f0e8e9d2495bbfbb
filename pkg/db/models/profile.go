package models

import (
	"time"

	"github.com/google/uuid"
)

// Profile holds the optional display data attached to a user account.
type Profile struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;not null;uniqueIndex"`
	FirstName *string   `gorm:"column:first_name;type:text"`
	LastName  *string   `gorm:"column:last_name;type:text"`
	Country   *string   `gorm:"column:country;type:text"`
	City      *string   `gorm:"column:city;type:text"`
	Address   *string   `gorm:"column:address;type:text"`
	Phone     *string   `gorm:"column:phone;type:text"`
	Bio       *string   `gorm:"column:bio;type:text"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
