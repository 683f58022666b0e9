package reservation

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freshshare/freshshare-api/internal/models"
)

var t0 = time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)

func tick(n int) time.Time {
	return t0.Add(time.Duration(n) * time.Second)
}

func enabledListing(caseSize int) *models.Listing {
	l := &models.Listing{
		BaseModel: models.BaseModel{ID: "listing-1"},
		Title:     "Organic apples",
		CaseSize:  caseSize,
		Status:    models.ListingStatusActive,
	}
	l.PieceOrdering = models.PieceOrdering{
		Enabled:              true,
		CurrentCaseNumber:    1,
		CurrentCaseRemaining: caseSize,
		Reservations:         models.Reservations{},
	}
	return l
}

func reservationOf(l *models.Listing, user string, caseNumber int) *models.PieceReservation {
	return l.PieceOrdering.Reservations[models.ReservationKey{UserID: user, CaseNumber: caseNumber}]
}

func TestCaseFillsAndRollsOver(t *testing.T) {
	l := enabledListing(10)
	opts := DefaultOptions()

	res, err := PieceSet(l, "A", 7, tick(1), opts)
	require.NoError(t, err)
	assert.Equal(t, 7, res.ReservedPieces)
	assert.Equal(t, 3, l.PieceOrdering.CurrentCaseRemaining)

	res, err = PieceSet(l, "A", 2, tick(2), opts)
	require.NoError(t, err)
	assert.Equal(t, 2, res.ReservedPieces)
	assert.Equal(t, 8, l.PieceOrdering.CurrentCaseRemaining, "lowering pieces returns capacity")

	res, err = PieceSet(l, "B", 8, tick(3), opts)
	require.NoError(t, err)
	assert.Equal(t, 8, res.ReservedPieces)
	assert.Equal(t, 1, res.CaseNumber)
	assert.True(t, res.CaseClosed)
	require.Len(t, res.ClosedCases, 1)
	assert.Equal(t, []Participant{{UserID: "A", Pieces: 2}, {UserID: "B", Pieces: 8}}, res.ClosedCases[0].Participants)

	po := l.PieceOrdering
	assert.Equal(t, 1, po.CasesFulfilled)
	assert.Equal(t, 2, po.CurrentCaseNumber)
	assert.Equal(t, 10, po.CurrentCaseRemaining)
	assert.Equal(t, models.ReservationStatusFulfilled, reservationOf(l, "A", 1).Status)
	assert.Equal(t, models.ReservationStatusFulfilled, reservationOf(l, "B", 1).Status)

	// The next request lands in case 2 and leaves case 1 untouched.
	res, err = PieceSet(l, "A", 4, tick(4), opts)
	require.NoError(t, err)
	assert.Equal(t, 2, res.CaseNumber)
	assert.Equal(t, 2, reservationOf(l, "A", 1).Pieces)
	assert.Equal(t, 4, reservationOf(l, "A", 2).Pieces)
	assert.Equal(t, 6, l.PieceOrdering.CurrentCaseRemaining)
}

func TestRequestIsClampedToAvailable(t *testing.T) {
	l := enabledListing(6)
	opts := DefaultOptions()

	_, err := PieceSet(l, "A", 4, tick(1), opts)
	require.NoError(t, err)

	res, err := PieceSet(l, "B", 50, tick(2), opts)
	require.NoError(t, err)
	assert.Equal(t, 2, res.ReservedPieces)
	assert.True(t, res.CaseClosed)
}

func TestRequestIsClampedToCaseSize(t *testing.T) {
	l := enabledListing(5)
	res, err := PieceSet(l, "A", 9, tick(1), DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 5, res.ReservedPieces)
	assert.Equal(t, 1, l.PieceOrdering.CasesFulfilled)
}

func TestCancelReleasesPieces(t *testing.T) {
	l := enabledListing(10)
	opts := DefaultOptions()

	_, err := PieceSet(l, "A", 3, tick(1), opts)
	require.NoError(t, err)

	res, err := PieceCancel(l, "A", tick(2), opts)
	require.NoError(t, err)
	assert.Equal(t, 0, res.ReservedPieces)
	assert.Equal(t, 10, l.PieceOrdering.CurrentCaseRemaining)

	entry := reservationOf(l, "A", 1)
	require.NotNil(t, entry, "the entry stays with zero pieces")
	assert.Equal(t, 0, entry.Pieces)
	assert.Equal(t, tick(1), entry.ReservedAt)
	assert.Equal(t, tick(2), entry.UpdatedAt)
}

func TestZeroRequestWithoutReservationRecordsNothing(t *testing.T) {
	l := enabledListing(10)
	res, err := PieceSet(l, "A", 0, tick(1), DefaultOptions())
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Empty(t, l.PieceOrdering.Reservations)
}

func TestRepeatedRequestIsNoChange(t *testing.T) {
	l := enabledListing(10)
	opts := DefaultOptions()

	_, err := PieceSet(l, "A", 3, tick(1), opts)
	require.NoError(t, err)
	res, err := PieceSet(l, "A", 3, tick(2), opts)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, tick(1), reservationOf(l, "A", 1).UpdatedAt)
}

func TestNegativeRequestRejected(t *testing.T) {
	l := enabledListing(10)
	_, err := PieceSet(l, "A", -1, tick(1), DefaultOptions())
	assert.ErrorIs(t, err, ErrNegativePieces)
	assert.Equal(t, StatusSkipped, StatusForError(err))
}

func TestAutoEnableUsesDefaultCaseSize(t *testing.T) {
	l := &models.Listing{BaseModel: models.BaseModel{ID: "l"}, Status: models.ListingStatusActive}

	res, err := PieceSet(l, "A", 3, tick(1), Options{AutoEnable: true, DefaultCaseSize: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, l.CaseSize)
	assert.True(t, l.PieceOrdering.Enabled)
	assert.Equal(t, 1, res.ReservedPieces)
	assert.True(t, res.CaseClosed)
	assert.Equal(t, 2, l.PieceOrdering.CurrentCaseNumber)
}

func TestAutoEnableKeepsExistingCaseSize(t *testing.T) {
	l := &models.Listing{BaseModel: models.BaseModel{ID: "l"}, CaseSize: 12, Status: models.ListingStatusActive}

	res, err := PieceSet(l, "A", 5, tick(1), DefaultOptions())
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, 12, l.CaseSize)
	assert.Equal(t, 7, l.PieceOrdering.CurrentCaseRemaining)
}

func TestDisabledWithoutAutoEnable(t *testing.T) {
	l := &models.Listing{CaseSize: 12, Status: models.ListingStatusActive}
	_, err := PieceSet(l, "A", 5, tick(1), Options{AutoEnable: false, DefaultCaseSize: 1})
	assert.ErrorIs(t, err, ErrPieceOrderingDisabled)
	assert.Equal(t, StatusPODisabled, StatusForError(err))
	assert.False(t, l.PieceOrdering.Enabled)
}

func TestInvalidCaseSize(t *testing.T) {
	l := enabledListing(10)
	l.CaseSize = 0
	_, err := PieceSet(l, "A", 1, tick(1), DefaultOptions())
	assert.ErrorIs(t, err, ErrInvalidCaseSize)
	assert.Equal(t, StatusInvalidCaseSize, StatusForError(err))

	fresh := &models.Listing{Status: models.ListingStatusActive}
	_, err = PieceSet(fresh, "A", 1, tick(1), Options{AutoEnable: true, DefaultCaseSize: 0})
	assert.ErrorIs(t, err, ErrInvalidCaseSize)
}

func TestClosedListingRejected(t *testing.T) {
	l := enabledListing(10)
	l.Status = models.ListingStatusClosed
	_, err := PieceSet(l, "A", 1, tick(1), DefaultOptions())
	assert.ErrorIs(t, err, ErrPieceOrderingDisabled)
}

func TestNormalizeRepairsDriftedCounters(t *testing.T) {
	l := enabledListing(10)
	opts := DefaultOptions()
	_, err := PieceSet(l, "A", 4, tick(1), opts)
	require.NoError(t, err)

	l.PieceOrdering.CurrentCaseRemaining = 9
	l.PieceOrdering.CurrentCaseNumber = 1

	res, err := PieceSet(l, "B", 1, tick(2), opts)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, 5, l.PieceOrdering.CurrentCaseRemaining)
	assert.True(t, Conserved(l))
}

func TestShrunkCaseSizeClosesOverfilledCase(t *testing.T) {
	l := enabledListing(10)
	opts := DefaultOptions()
	_, err := PieceSet(l, "A", 6, tick(1), opts)
	require.NoError(t, err)

	l.CaseSize = 4
	res, err := PieceSet(l, "B", 1, tick(2), opts)
	require.NoError(t, err)
	require.NotEmpty(t, res.ClosedCases)
	assert.Equal(t, 1, res.ClosedCases[0].CaseNumber)
	assert.Equal(t, 2, res.CaseNumber)
	assert.Equal(t, 3, l.PieceOrdering.CurrentCaseRemaining)
	assert.True(t, Conserved(l))
}

func TestSnapshot(t *testing.T) {
	l := enabledListing(4)
	opts := DefaultOptions()
	_, _ = PieceSet(l, "A", 1, tick(1), opts)
	_, _ = PieceSet(l, "B", 3, tick(2), opts)
	_, _ = PieceSet(l, "A", 2, tick(3), opts)

	s := Snapshot(l, "A")
	assert.True(t, s.Enabled)
	assert.Equal(t, 2, s.CurrentCaseNumber)
	assert.Equal(t, 2, s.CurrentCaseRemaining)
	assert.Equal(t, 2, s.MyPieces)
	require.Len(t, s.MyReservations, 2)
	assert.Equal(t, models.ReservationStatusFulfilled, s.MyReservations[0].Status)

	disabled := Snapshot(&models.Listing{CaseSize: 6}, "A")
	assert.False(t, disabled.Enabled)
	assert.Equal(t, 6, disabled.CurrentCaseRemaining)
	assert.Empty(t, disabled.MyReservations)
}

// Random request sequences must conserve pieces and never overfill a case.
func TestConservationUnderRandomRequests(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	opts := DefaultOptions()

	for round := 0; round < 25; round++ {
		caseSize := 1 + rng.Intn(12)
		l := enabledListing(caseSize)
		closedBefore := 0

		for step := 0; step < 300; step++ {
			user := fmt.Sprintf("u%d", rng.Intn(6))
			requested := rng.Intn(caseSize + 3)

			var res Result
			var err error
			if rng.Intn(8) == 0 {
				res, err = PieceCancel(l, user, tick(step), opts)
			} else {
				res, err = PieceSet(l, user, requested, tick(step), opts)
				require.LessOrEqual(t, res.ReservedPieces, requested)
			}
			require.NoError(t, err)

			po := l.PieceOrdering
			require.True(t, Conserved(l), "round %d step %d", round, step)
			require.Greater(t, po.CurrentCaseRemaining, 0)
			require.LessOrEqual(t, po.CurrentCaseRemaining, caseSize)
			require.Equal(t, po.CasesFulfilled+1, po.CurrentCaseNumber)
			require.GreaterOrEqual(t, po.CasesFulfilled, closedBefore)
			closedBefore = po.CasesFulfilled

			for key, entry := range po.Reservations {
				require.Equal(t, key, entry.Key())
				if entry.CaseNumber < po.CurrentCaseNumber {
					require.Equal(t, models.ReservationStatusFulfilled, entry.Status)
				}
			}
		}
	}
}
