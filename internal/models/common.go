// internal/models/common.go
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// EnsureID assigns a fresh UUID when the record has none yet.
func (b *BaseModel) EnsureID() {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
}

func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	b.EnsureID()
	return nil
}

// Enums
type UserType string

const (
	UserTypeMember UserType = "member"
	UserTypeVendor UserType = "vendor"
	UserTypeAdmin  UserType = "admin"
)

type MemberRole string

const (
	MemberRoleMember MemberRole = "member"
	MemberRoleAdmin  MemberRole = "admin"
)

type ProductStatus string

const (
	ProductStatusActive    ProductStatus = "active"
	ProductStatusRequested ProductStatus = "requested"
)

type ListingStatus string

const (
	ListingStatusActive ListingStatus = "active"
	ListingStatusClosed ListingStatus = "closed"
)

type ReservationStatus string

const (
	ReservationStatusFilling   ReservationStatus = "filling"
	ReservationStatusFulfilled ReservationStatus = "fulfilled"
)

type OrderStatus string

const (
	OrderStatusPlaced OrderStatus = "placed"
)

// Actor identifies the caller of a service operation.
type Actor struct {
	UserID    string
	SiteAdmin bool
}
