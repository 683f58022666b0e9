// internal/services/marketplace_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/freshshare/freshshare-api/internal/config"
	"github.com/freshshare/freshshare-api/internal/events"
	"github.com/freshshare/freshshare-api/internal/lock"
	"github.com/freshshare/freshshare-api/internal/metrics"
	"github.com/freshshare/freshshare-api/internal/models"
	"github.com/freshshare/freshshare-api/internal/repository"
	"github.com/freshshare/freshshare-api/internal/reservation"
	"github.com/freshshare/freshshare-api/internal/utils"
)

type MarketplaceService struct {
	aggregates aggregateRunner
	repo       repository.Repository
	publisher  events.Publisher
	metrics    *metrics.Metrics
	options    reservation.Options
	now        func() time.Time
}

type CreateListingRequest struct {
	Title         string  `json:"title" validate:"required,notblank,max=255"`
	Description   string  `json:"description" validate:"max=5000"`
	VendorID      string  `json:"vendorId" validate:"max=64"`
	CaseSize      int     `json:"caseSize" validate:"min=0,max=100000"`
	CasePrice     float64 `json:"casePrice" validate:"min=0"`
	PieceOrdering bool    `json:"pieceOrdering"`
}

// SetPiecesRequest uses a pointer so a missing value is told apart from 0.
type SetPiecesRequest struct {
	Pieces *int `json:"pieces" validate:"required,min=0"`
}

func NewMarketplaceService(repo repository.Repository, locker lock.Locker, publisher events.Publisher, m *metrics.Metrics, cfg *config.Config) *MarketplaceService {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &MarketplaceService{
		aggregates: newAggregateRunner(locker, m, cfg.Concurrency.MaxRetries),
		repo:       repo,
		publisher:  publisher,
		metrics:    m,
		options: reservation.Options{
			AutoEnable:      cfg.Marketplace.AutoEnablePieceOrdering,
			DefaultCaseSize: cfg.Marketplace.DefaultCaseSize,
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (s *MarketplaceService) CreateListing(ctx context.Context, actor models.Actor, req *CreateListingRequest) (*models.Listing, error) {
	if actor.UserID == "" {
		return nil, ErrUnauthenticated
	}
	if err := utils.ValidateStruct(req); err != nil {
		return nil, invalidRequest(err)
	}
	if req.PieceOrdering && req.CaseSize <= 0 {
		return nil, validationError("caseSize must be greater than 0 when piece ordering is enabled")
	}

	listing := &models.Listing{
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		VendorID:    req.VendorID,
		CreatedBy:   actor.UserID,
		CaseSize:    req.CaseSize,
		CasePrice:   req.CasePrice,
		Status:      models.ListingStatusActive,
	}
	if listing.VendorID == "" {
		listing.VendorID = actor.UserID
	}
	if req.PieceOrdering {
		listing.PieceOrdering = models.PieceOrdering{
			Enabled:              true,
			CurrentCaseNumber:    1,
			CurrentCaseRemaining: req.CaseSize,
			Reservations:         models.Reservations{},
		}
	}

	if err := s.repo.CreateListing(ctx, listing); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"listing_id": listing.ID,
		"user_id":    actor.UserID,
		"case_size":  listing.CaseSize,
	}).Info("Listing created")

	return listing, nil
}

func (s *MarketplaceService) SetPieces(ctx context.Context, actor models.Actor, listingID string, pieces int) (*reservation.Result, error) {
	if actor.UserID == "" {
		return nil, ErrUnauthenticated
	}
	result, err := s.reserve(ctx, actor.UserID, listingID, pieces)
	if err != nil {
		return nil, engineError(err)
	}
	return &result, nil
}

func (s *MarketplaceService) CancelPieces(ctx context.Context, actor models.Actor, listingID string) (*reservation.Result, error) {
	return s.SetPieces(ctx, actor, listingID, 0)
}

func (s *MarketplaceService) PieceStatus(ctx context.Context, actor models.Actor, listingID string) (*reservation.PieceStatus, error) {
	if actor.UserID == "" {
		return nil, ErrUnauthenticated
	}
	listing, err := s.loadListing(ctx, listingID)
	if err != nil {
		return nil, err
	}
	snapshot := reservation.Snapshot(listing, actor.UserID)
	return &snapshot, nil
}

// reserve runs PieceSet under the listing lock and persists the result. Raw
// engine errors are returned so batch callers can map them to item statuses.
func (s *MarketplaceService) reserve(ctx context.Context, userID, listingID string, pieces int) (reservation.Result, error) {
	var (
		result  reservation.Result
		listing *models.Listing
	)

	err := s.aggregates.run(ctx, lock.ListingKey(listingID), "listing", func(ctx context.Context) error {
		l, err := s.loadListing(ctx, listingID)
		if err != nil {
			return err
		}

		res, err := reservation.PieceSet(l, userID, pieces, s.now(), s.options)
		if err != nil {
			return err
		}
		if res.Changed {
			if err := s.repo.SaveListing(ctx, l); err != nil {
				return err
			}
		}

		result, listing = res, l
		return nil
	})

	status := reservation.StatusForError(err)
	var nf *NotFoundError
	if errors.As(err, &nf) {
		status = reservation.StatusMissing
	}
	s.metrics.PieceRequest(string(status))
	if err != nil {
		return reservation.Result{}, err
	}

	s.metrics.CasesClosed(len(result.ClosedCases))
	for _, closed := range result.ClosedCases {
		s.publishCaseClosed(ctx, listing, closed)
	}

	logrus.WithFields(logrus.Fields{
		"listing_id":  listingID,
		"user_id":     userID,
		"requested":   pieces,
		"reserved":    result.ReservedPieces,
		"case_number": result.CaseNumber,
		"case_closed": result.CaseClosed,
	}).Debug("Pieces set")

	return result, nil
}

func (s *MarketplaceService) publishCaseClosed(ctx context.Context, listing *models.Listing, closed reservation.ClosedCase) {
	event := events.NewCaseClosed(listing.Title, closed)
	if err := s.publisher.PublishCaseClosed(ctx, event); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"listing_id":  listing.ID,
			"case_number": closed.CaseNumber,
		}).Warn("Failed to publish case closed event")
		return
	}

	logrus.WithFields(logrus.Fields{
		"listing_id":   listing.ID,
		"case_number":  closed.CaseNumber,
		"participants": len(closed.Participants),
	}).Info("Case closed")
}

func (s *MarketplaceService) loadListing(ctx context.Context, listingID string) (*models.Listing, error) {
	listing, err := s.repo.GetListing(ctx, listingID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("listing")
	}
	return listing, err
}

// engineError translates reservation engine errors for single-item callers.
func engineError(err error) error {
	switch {
	case errors.Is(err, reservation.ErrNegativePieces):
		return fmt.Errorf("%w: %w", ErrValidation, err)
	case errors.Is(err, reservation.ErrPieceOrderingDisabled), errors.Is(err, reservation.ErrInvalidCaseSize):
		return fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
	default:
		return err
	}
}
