// Package reservation allocates per-user pieces of a listing's current case.
//
// A listing sells by the case. Members reserve pieces of the case that is
// currently filling; when the last piece is taken the case closes, every
// filling reservation of that case becomes fulfilled and the next case opens
// with full capacity. At all times
//
//	currentCaseRemaining + Σ pieces(filling, current case) == caseSize
//
// The functions mutate the listing in memory only. Persisting is up to the caller.
package reservation

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/freshshare/freshshare-api/internal/models"
)

var (
	ErrInvalidCaseSize       = errors.New("listing has no usable case size")
	ErrPieceOrderingDisabled = errors.New("piece ordering is disabled for this listing")
	ErrNegativePieces        = errors.New("pieces must be zero or greater")
)

// Status is the per-call outcome reported to batch callers such as reorder.
type Status string

const (
	StatusOK              Status = "ok"
	StatusSkipped         Status = "skipped"
	StatusMissing         Status = "missing"
	StatusPODisabled      Status = "po-disabled"
	StatusInvalidCaseSize Status = "invalid-case-size"
	StatusError           Status = "error"
)

// StatusForError maps an engine error to its batch status.
func StatusForError(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrInvalidCaseSize):
		return StatusInvalidCaseSize
	case errors.Is(err, ErrPieceOrderingDisabled):
		return StatusPODisabled
	case errors.Is(err, ErrNegativePieces):
		return StatusSkipped
	default:
		return StatusError
	}
}

type Options struct {
	// AutoEnable turns piece ordering on for listings that still sell whole cases.
	AutoEnable bool
	// DefaultCaseSize is used when auto-enabling a listing without a case size.
	DefaultCaseSize int
}

func DefaultOptions() Options {
	return Options{AutoEnable: true, DefaultCaseSize: 1}
}

type Participant struct {
	UserID string `json:"userId"`
	Pieces int    `json:"pieces"`
}

// ClosedCase describes a case that just filled up.
type ClosedCase struct {
	ListingID    string        `json:"listingId"`
	CaseNumber   int           `json:"caseNumber"`
	CaseSize     int           `json:"caseSize"`
	Participants []Participant `json:"participants"`
	ClosedAt     time.Time     `json:"closedAt"`
}

type Result struct {
	ReservedPieces       int          `json:"reservedPieces"`
	Status               Status       `json:"status"`
	CaseNumber           int          `json:"caseNumber"`
	CurrentCaseNumber    int          `json:"currentCaseNumber"`
	CurrentCaseRemaining int          `json:"currentCaseRemaining"`
	CasesFulfilled       int          `json:"casesFulfilled"`
	CaseClosed           bool         `json:"caseClosed"`
	ClosedCases          []ClosedCase `json:"closedCases,omitempty"`
	// Changed reports whether the listing needs to be persisted.
	Changed bool `json:"-"`
}

// PieceSet sets userID's pieces in the current case to requested, clamped to
// the case size and to what is still available.
func PieceSet(l *models.Listing, userID string, requested int, now time.Time, opts Options) (Result, error) {
	if requested < 0 {
		return Result{}, ErrNegativePieces
	}
	if l.Status == models.ListingStatusClosed {
		return Result{}, fmt.Errorf("%w: listing is closed", ErrPieceOrderingDisabled)
	}

	changed, err := ensureEnabled(l, opts)
	if err != nil {
		return Result{}, err
	}

	result := Result{Status: StatusOK}
	if repaired, closed := normalize(l, now); repaired {
		changed = true
		if closed != nil {
			result.ClosedCases = append(result.ClosedCases, *closed)
		}
	}

	po := &l.PieceOrdering
	caseNumber := po.CurrentCaseNumber
	key := models.ReservationKey{UserID: userID, CaseNumber: caseNumber}

	prev := 0
	res := po.Reservations[key]
	if res != nil && res.Status == models.ReservationStatusFilling {
		prev = res.Pieces
	}

	desired := min(requested, l.CaseSize)
	desired = min(desired, prev+po.CurrentCaseRemaining)

	// Signed on purpose: releasing pieces hands capacity back to the case.
	delta := desired - prev
	po.CurrentCaseRemaining -= delta

	switch {
	case res == nil && desired > 0:
		po.Reservations[key] = &models.PieceReservation{
			UserID:     userID,
			CaseNumber: caseNumber,
			Pieces:     desired,
			Status:     models.ReservationStatusFilling,
			ReservedAt: now,
			UpdatedAt:  now,
		}
		changed = true
	case res != nil && (res.Pieces != desired || res.Status != models.ReservationStatusFilling):
		res.Pieces = desired
		res.Status = models.ReservationStatusFilling
		res.UpdatedAt = now
		changed = true
	}

	result.ReservedPieces = desired
	result.CaseNumber = caseNumber

	if po.CurrentCaseRemaining == 0 {
		closed := advanceCase(l, now)
		result.ClosedCases = append(result.ClosedCases, closed)
		changed = true
	}

	result.CaseClosed = len(result.ClosedCases) > 0
	result.CurrentCaseNumber = po.CurrentCaseNumber
	result.CurrentCaseRemaining = po.CurrentCaseRemaining
	result.CasesFulfilled = po.CasesFulfilled
	result.Changed = changed
	return result, nil
}

// PieceCancel releases userID's reservation in the current case.
func PieceCancel(l *models.Listing, userID string, now time.Time, opts Options) (Result, error) {
	return PieceSet(l, userID, 0, now, opts)
}

func ensureEnabled(l *models.Listing, opts Options) (bool, error) {
	po := &l.PieceOrdering
	if po.Enabled {
		if l.CaseSize <= 0 {
			return false, ErrInvalidCaseSize
		}
		return false, nil
	}

	if !opts.AutoEnable {
		return false, ErrPieceOrderingDisabled
	}
	if l.CaseSize <= 0 {
		l.CaseSize = opts.DefaultCaseSize
	}
	if l.CaseSize <= 0 {
		return false, ErrInvalidCaseSize
	}

	*po = models.PieceOrdering{
		Enabled:              true,
		CurrentCaseNumber:    1,
		CurrentCaseRemaining: l.CaseSize,
		CasesFulfilled:       0,
		Reservations:         models.Reservations{},
	}
	return true, nil
}

// normalize repairs counters that disagree with the reservations, for example
// after the case size of a listing was edited.
func normalize(l *models.Listing, now time.Time) (bool, *ClosedCase) {
	po := &l.PieceOrdering
	changed := false

	if po.Reservations == nil {
		po.Reservations = models.Reservations{}
	}
	if po.CurrentCaseNumber < 1 {
		po.CurrentCaseNumber = 1
		changed = true
	}

	remaining := max(l.CaseSize-FilledPieces(l), 0)
	if po.CurrentCaseRemaining != remaining {
		po.CurrentCaseRemaining = remaining
		changed = true
	}

	if remaining == 0 {
		closed := advanceCase(l, now)
		return true, &closed
	}
	return changed, nil
}

// advanceCase closes the current case and opens the next one. It is the only
// place the case counters move forward.
func advanceCase(l *models.Listing, now time.Time) ClosedCase {
	po := &l.PieceOrdering
	closed := ClosedCase{
		ListingID:    l.ID,
		CaseNumber:   po.CurrentCaseNumber,
		CaseSize:     l.CaseSize,
		Participants: []Participant{},
		ClosedAt:     now,
	}

	for _, res := range po.Reservations {
		if res.CaseNumber != po.CurrentCaseNumber || res.Status != models.ReservationStatusFilling {
			continue
		}
		res.Status = models.ReservationStatusFulfilled
		res.UpdatedAt = now
		if res.Pieces > 0 {
			closed.Participants = append(closed.Participants, Participant{UserID: res.UserID, Pieces: res.Pieces})
		}
	}
	sort.Slice(closed.Participants, func(i, j int) bool {
		return closed.Participants[i].UserID < closed.Participants[j].UserID
	})

	po.CasesFulfilled++
	po.CurrentCaseNumber++
	po.CurrentCaseRemaining = l.CaseSize
	return closed
}

// FilledPieces sums the filling reservations of the current case.
func FilledPieces(l *models.Listing) int {
	po := &l.PieceOrdering
	total := 0
	for _, res := range po.Reservations {
		if res.CaseNumber == po.CurrentCaseNumber && res.Status == models.ReservationStatusFilling {
			total += res.Pieces
		}
	}
	return total
}

// Conserved reports whether the listing satisfies the case conservation rule.
func Conserved(l *models.Listing) bool {
	if !l.PieceOrdering.Enabled {
		return true
	}
	return l.PieceOrdering.CurrentCaseRemaining+FilledPieces(l) == l.CaseSize
}

// PieceStatus is a read-only view of a listing's case state for one user.
type PieceStatus struct {
	ListingID            string                    `json:"listingId"`
	Enabled              bool                      `json:"enabled"`
	CaseSize             int                       `json:"caseSize"`
	CurrentCaseNumber    int                       `json:"currentCaseNumber"`
	CurrentCaseRemaining int                       `json:"currentCaseRemaining"`
	CasesFulfilled       int                       `json:"casesFulfilled"`
	MyPieces             int                       `json:"myPieces"`
	MyReservations       []models.PieceReservation `json:"myReservations"`
}

func Snapshot(l *models.Listing, userID string) PieceStatus {
	po := &l.PieceOrdering
	s := PieceStatus{
		ListingID:            l.ID,
		Enabled:              po.Enabled,
		CaseSize:             l.CaseSize,
		CurrentCaseNumber:    po.CurrentCaseNumber,
		CurrentCaseRemaining: po.CurrentCaseRemaining,
		CasesFulfilled:       po.CasesFulfilled,
		MyReservations:       []models.PieceReservation{},
	}
	if !po.Enabled {
		s.CurrentCaseRemaining = l.CaseSize
		return s
	}

	for _, res := range po.Reservations.List() {
		if res.UserID != userID {
			continue
		}
		s.MyReservations = append(s.MyReservations, res)
		if res.CaseNumber == po.CurrentCaseNumber && res.Status == models.ReservationStatusFilling {
			s.MyPieces = res.Pieces
		}
	}
	return s
}
