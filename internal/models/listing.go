// internal/models/listing.go
package models

import (
	"encoding/json"
	"sort"
	"time"
)

type Listing struct {
	BaseModel
	Title         string        `json:"title" gorm:"size:255;not null"`
	Description   string        `json:"description" gorm:"type:text"`
	VendorID      string        `json:"vendorId" gorm:"type:varchar(64);index"`
	CreatedBy     string        `json:"createdBy" gorm:"type:varchar(64);index"`
	CaseSize      int           `json:"caseSize" gorm:"not null"`
	CasePrice     float64       `json:"casePrice" gorm:"type:decimal(10,2);default:0"`
	Status        ListingStatus `json:"status" gorm:"type:varchar(20);not null;default:'active';index"`
	PieceOrdering PieceOrdering `json:"pieceOrdering" gorm:"embedded;embeddedPrefix:po_"`
	Version       int64         `json:"-" gorm:"not null;default:0"`
}

// PieceOrdering is the per-listing case filling state.
type PieceOrdering struct {
	Enabled              bool         `json:"enabled" gorm:"not null"`
	CurrentCaseNumber    int          `json:"currentCaseNumber" gorm:"not null"`
	CurrentCaseRemaining int          `json:"currentCaseRemaining" gorm:"not null"`
	CasesFulfilled       int          `json:"casesFulfilled" gorm:"not null"`
	Reservations         Reservations `json:"reservations" gorm:"type:text;serializer:json"`
}

// ReservationKey identifies a user's reservation within one case.
type ReservationKey struct {
	UserID     string
	CaseNumber int
}

type PieceReservation struct {
	UserID     string            `json:"user"`
	CaseNumber int               `json:"caseNumber"`
	Pieces     int               `json:"pieces"`
	Status     ReservationStatus `json:"status"`
	ReservedAt time.Time         `json:"reservedAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

func (r PieceReservation) Key() ReservationKey {
	return ReservationKey{UserID: r.UserID, CaseNumber: r.CaseNumber}
}

// Reservations holds at most one entry per (user, case number). It encodes as
// a JSON list ordered by case number then reservation time.
type Reservations map[ReservationKey]*PieceReservation

// List returns the reservations in stable display order.
func (r Reservations) List() []PieceReservation {
	out := make([]PieceReservation, 0, len(r))
	for _, res := range r {
		out = append(out, *res)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CaseNumber != out[j].CaseNumber {
			return out[i].CaseNumber < out[j].CaseNumber
		}
		if !out[i].ReservedAt.Equal(out[j].ReservedAt) {
			return out[i].ReservedAt.Before(out[j].ReservedAt)
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

// FromList rebuilds the map; a later duplicate key replaces an earlier one.
func ReservationsFromList(list []PieceReservation) Reservations {
	out := make(Reservations, len(list))
	for i := range list {
		res := list[i]
		out[res.Key()] = &res
	}
	return out
}

func (r Reservations) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.List())
}

func (r *Reservations) UnmarshalJSON(data []byte) error {
	var list []PieceReservation
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*r = ReservationsFromList(list)
	return nil
}
