// internal/models/ranked_product.go
package models

import (
	"time"
)

const (
	ProductNameMaxLength = 120
	ProductTextMaxLength = 500
)

// UserSet is an insertion-ordered set of user ids.
type UserSet []string

func (s UserSet) Contains(userID string) bool {
	for _, id := range s {
		if id == userID {
			return true
		}
	}
	return false
}

// Add returns the set with userID included and whether it changed.
func (s UserSet) Add(userID string) (UserSet, bool) {
	if s.Contains(userID) {
		return s, false
	}
	return append(s, userID), true
}

// Remove returns the set without userID and whether it changed.
func (s UserSet) Remove(userID string) (UserSet, bool) {
	for i, id := range s {
		if id == userID {
			out := make(UserSet, 0, len(s)-1)
			out = append(out, s[:i]...)
			return append(out, s[i+1:]...), true
		}
	}
	return s, false
}

// RankedProduct is a group's suggested bulk-buy candidate.
type RankedProduct struct {
	BaseModel
	GroupID        string        `json:"groupId" gorm:"type:varchar(36);not null;index"`
	Name           string        `json:"name" gorm:"size:120;not null"`
	Note           string        `json:"note" gorm:"size:500"`
	ImageURL       string        `json:"imageUrl" gorm:"size:500"`
	ProductURL     string        `json:"productUrl" gorm:"size:500"`
	CreatedBy      string        `json:"createdBy" gorm:"type:varchar(64);index"`
	Status         ProductStatus `json:"status" gorm:"type:varchar(20);not null;default:'requested'"`
	Score          int           `json:"score" gorm:"not null"`
	Upvoters       UserSet       `json:"upvoters" gorm:"type:text;serializer:json"`
	Downvoters     UserSet       `json:"downvoters" gorm:"type:text;serializer:json"`
	Pinned         bool          `json:"pinned" gorm:"not null"`
	LastActivityAt *time.Time    `json:"lastActivityAt"`
	Position       int           `json:"-" gorm:"not null"`
}
