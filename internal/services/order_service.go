// internal/services/order_service.go
package services

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/freshshare/freshshare-api/internal/models"
	"github.com/freshshare/freshshare-api/internal/repository"
	"github.com/freshshare/freshshare-api/internal/reservation"
	"github.com/freshshare/freshshare-api/internal/utils"
)

type OrderService struct {
	repo        repository.Repository
	marketplace *MarketplaceService
}

type QuickOrderItemRequest struct {
	ListingID string `json:"listingId" validate:"required,notblank"`
	Pieces    int    `json:"pieces" validate:"min=1"`
}

type QuickOrderRequest struct {
	GroupID string                  `json:"groupId"`
	Items   []QuickOrderItemRequest `json:"items" validate:"required,min=1,max=50,dive"`
}

// ItemResult is the outcome of reserving one order line.
type ItemResult struct {
	ListingID       string             `json:"listingId"`
	Title           string             `json:"title,omitempty"`
	RequestedPieces int                `json:"requestedPieces"`
	ReservedPieces  int                `json:"reservedPieces"`
	Status          reservation.Status `json:"status"`
	Error           string             `json:"error,omitempty"`
	CaseNumber      int                `json:"caseNumber,omitempty"`
	CaseClosed      bool               `json:"caseClosed"`
}

type ReorderResult struct {
	OrderID       string       `json:"orderId"`
	TotalReserved int          `json:"totalReserved"`
	Items         []ItemResult `json:"items"`
}

type QuickOrderResult struct {
	Order       *models.QuickOrder `json:"order"`
	Reservation *ReorderResult     `json:"reservation"`
}

func NewOrderService(repo repository.Repository, marketplace *MarketplaceService) *OrderService {
	return &OrderService{repo: repo, marketplace: marketplace}
}

// CreateQuickOrder stores the order and reserves its pieces right away.
func (s *OrderService) CreateQuickOrder(ctx context.Context, actor models.Actor, req *QuickOrderRequest) (*QuickOrderResult, error) {
	if actor.UserID == "" {
		return nil, ErrUnauthenticated
	}
	if err := utils.ValidateStruct(req); err != nil {
		return nil, invalidRequest(err)
	}

	if req.GroupID != "" {
		group, err := s.repo.GetGroup(ctx, req.GroupID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound("group")
		}
		if err != nil {
			return nil, err
		}
		if !group.CanParticipate(actor) {
			return nil, forbidden("only group members can order for a group")
		}
	}

	order := &models.QuickOrder{
		UserID:  actor.UserID,
		GroupID: req.GroupID,
		Status:  models.OrderStatusPlaced,
		Items:   make([]models.QuickOrderItem, 0, len(req.Items)),
	}
	for _, item := range req.Items {
		listing, err := s.repo.GetListing(ctx, item.ListingID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound("listing")
		}
		if err != nil {
			return nil, err
		}
		order.Items = append(order.Items, models.QuickOrderItem{
			ListingID: listing.ID,
			Title:     listing.Title,
			Pieces:    item.Pieces,
		})
	}

	if err := s.repo.CreateOrder(ctx, order); err != nil {
		return nil, err
	}

	result := s.replay(ctx, actor.UserID, order)

	logrus.WithFields(logrus.Fields{
		"order_id":       order.ID,
		"user_id":        actor.UserID,
		"items":          len(order.Items),
		"total_reserved": result.TotalReserved,
	}).Info("Quick order placed")

	return &QuickOrderResult{Order: order, Reservation: result}, nil
}

func (s *OrderService) GetOrder(ctx context.Context, actor models.Actor, orderID string) (*models.QuickOrder, error) {
	if actor.UserID == "" {
		return nil, ErrUnauthenticated
	}

	order, err := s.repo.GetOrder(ctx, orderID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("order")
	}
	if err != nil {
		return nil, err
	}
	if order.UserID != actor.UserID {
		return nil, forbidden("order belongs to another user")
	}
	return order, nil
}

// Reorder replays every line of a past order against the listings' current
// cases. Per-item failures are reported in the items and never abort the batch.
func (s *OrderService) Reorder(ctx context.Context, actor models.Actor, orderID string) (*ReorderResult, error) {
	order, err := s.GetOrder(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}

	result := s.replay(ctx, actor.UserID, order)

	logrus.WithFields(logrus.Fields{
		"order_id":       order.ID,
		"user_id":        actor.UserID,
		"total_reserved": result.TotalReserved,
	}).Info("Order replayed")

	return result, nil
}

func (s *OrderService) replay(ctx context.Context, userID string, order *models.QuickOrder) *ReorderResult {
	result := &ReorderResult{OrderID: order.ID, Items: make([]ItemResult, 0, len(order.Items))}

	for _, item := range order.Items {
		entry := ItemResult{
			ListingID:       item.ListingID,
			Title:           item.Title,
			RequestedPieces: item.Pieces,
			Status:          reservation.StatusOK,
		}

		if item.Pieces <= 0 || item.ListingID == "" {
			entry.Status = reservation.StatusSkipped
			result.Items = append(result.Items, entry)
			continue
		}

		res, err := s.marketplace.reserve(ctx, userID, item.ListingID, item.Pieces)
		if err != nil {
			var nf *NotFoundError
			if errors.As(err, &nf) {
				entry.Status = reservation.StatusMissing
			} else {
				entry.Status = reservation.StatusForError(err)
				entry.Error = err.Error()
			}
			logrus.WithError(err).WithFields(logrus.Fields{
				"order_id":   order.ID,
				"listing_id": item.ListingID,
				"status":     entry.Status,
			}).Warn("Reorder item not reserved")
			result.Items = append(result.Items, entry)
			continue
		}

		entry.ReservedPieces = res.ReservedPieces
		entry.CaseNumber = res.CaseNumber
		entry.CaseClosed = res.CaseClosed
		result.TotalReserved += res.ReservedPieces
		result.Items = append(result.Items, entry)
	}

	return result
}
