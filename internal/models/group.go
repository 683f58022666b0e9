// internal/models/group.go
package models

import (
	"time"
)

const (
	DefaultMaxActiveProducts = 20
	MaxActiveProductsCeiling = 200
)

type Group struct {
	BaseModel
	Name              string `json:"name" gorm:"size:120;not null"`
	Description       string `json:"description" gorm:"type:text"`
	CreatedBy         string `json:"createdBy" gorm:"type:varchar(64);index"`
	MaxActiveProducts int    `json:"maxActiveProducts" gorm:"not null"`
	Version           int64  `json:"-" gorm:"not null;default:0"`

	// Relationships
	Members  []GroupMember   `json:"members,omitempty" gorm:"foreignKey:GroupID;constraint:OnDelete:CASCADE"`
	Products []RankedProduct `json:"-" gorm:"foreignKey:GroupID;constraint:OnDelete:CASCADE"`
}

type GroupMember struct {
	ID       uint       `json:"-" gorm:"primaryKey"`
	GroupID  string     `json:"groupId" gorm:"type:varchar(36);not null;uniqueIndex:idx_group_members_user"`
	UserID   string     `json:"userId" gorm:"type:varchar(64);not null;uniqueIndex:idx_group_members_user"`
	Role     MemberRole `json:"role" gorm:"type:varchar(20);not null;default:'member'"`
	JoinedAt time.Time  `json:"joinedAt"`
}

// ActiveCap returns maxActiveProducts clamped to [0, 200].
func (g *Group) ActiveCap() int {
	switch {
	case g.MaxActiveProducts < 0:
		return 0
	case g.MaxActiveProducts > MaxActiveProductsCeiling:
		return MaxActiveProductsCeiling
	default:
		return g.MaxActiveProducts
	}
}

func (g *Group) member(userID string) *GroupMember {
	for i := range g.Members {
		if g.Members[i].UserID == userID {
			return &g.Members[i]
		}
	}
	return nil
}

func (g *Group) IsMember(userID string) bool {
	return userID != "" && g.member(userID) != nil
}

func (g *Group) IsAdmin(userID string) bool {
	m := g.member(userID)
	return m != nil && m.Role == MemberRoleAdmin
}

// CanParticipate reports whether the actor may list, suggest and vote.
func (g *Group) CanParticipate(actor Actor) bool {
	return actor.SiteAdmin || g.IsMember(actor.UserID)
}

// CanAdminister reports whether the actor may pin, remove or change capacity.
func (g *Group) CanAdminister(actor Actor) bool {
	return actor.SiteAdmin || g.IsAdmin(actor.UserID)
}

// AddMember is idempotent; an existing member keeps the stronger role.
func (g *Group) AddMember(userID string, role MemberRole, now time.Time) bool {
	if m := g.member(userID); m != nil {
		if role == MemberRoleAdmin && m.Role != MemberRoleAdmin {
			m.Role = MemberRoleAdmin
			return true
		}
		return false
	}
	g.Members = append(g.Members, GroupMember{GroupID: g.ID, UserID: userID, Role: role, JoinedAt: now})
	return true
}

// FindProduct returns the index of the product with the given id, or -1.
func (g *Group) FindProduct(productID string) int {
	for i := range g.Products {
		if g.Products[i].ID == productID {
			return i
		}
	}
	return -1
}

// RemoveProduct splices the product out of the list.
func (g *Group) RemoveProduct(productID string) bool {
	idx := g.FindProduct(productID)
	if idx < 0 {
		return false
	}
	g.Products = append(g.Products[:idx], g.Products[idx+1:]...)
	return true
}
