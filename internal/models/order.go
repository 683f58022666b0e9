// internal/models/order.go
package models

// QuickOrder is a lightweight checkout whose items are piece reservations.
type QuickOrder struct {
	BaseModel
	UserID  string           `json:"userId" gorm:"type:varchar(64);not null;index"`
	GroupID string           `json:"groupId,omitempty" gorm:"type:varchar(36);index"`
	Status  OrderStatus      `json:"status" gorm:"type:varchar(20);not null;default:'placed'"`
	Items   []QuickOrderItem `json:"items" gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
}

type QuickOrderItem struct {
	ID        uint   `json:"-" gorm:"primaryKey"`
	OrderID   string `json:"-" gorm:"type:varchar(36);not null;index"`
	ListingID string `json:"listingId" gorm:"type:varchar(36);index"`
	Title     string `json:"title" gorm:"size:255"`
	Pieces    int    `json:"pieces" gorm:"not null;default:0"`
}

// TotalPieces sums the requested pieces of all items.
func (o *QuickOrder) TotalPieces() int {
	total := 0
	for _, item := range o.Items {
		total += item.Pieces
	}
	return total
}
