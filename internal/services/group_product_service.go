// internal/services/group_product_service.go
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/freshshare/freshshare-api/internal/config"
	"github.com/freshshare/freshshare-api/internal/lock"
	"github.com/freshshare/freshshare-api/internal/metrics"
	"github.com/freshshare/freshshare-api/internal/models"
	"github.com/freshshare/freshshare-api/internal/ranking"
	"github.com/freshshare/freshshare-api/internal/repository"
	"github.com/freshshare/freshshare-api/internal/utils"
)

type GroupProductService struct {
	aggregates       aggregateRunner
	repo             repository.Repository
	metrics          *metrics.Metrics
	defaultMaxActive int
	now              func() time.Time
}

type StarterProductRequest struct {
	Name string `json:"name" validate:"required,notblank,max=120"`
	Note string `json:"note" validate:"max=500"`
}

type CreateGroupRequest struct {
	Name              string                  `json:"name" validate:"required,notblank,max=120"`
	Description       string                  `json:"description" validate:"max=2000"`
	MaxActiveProducts *int                    `json:"maxActiveProducts" validate:"omitempty,min=0,max=200"`
	StarterProducts   []StarterProductRequest `json:"starterProducts" validate:"max=200,dive"`
}

type SuggestProductRequest struct {
	Name       string `json:"name" validate:"required,notblank,max=120"`
	Note       string `json:"note" validate:"max=500"`
	ImageURL   string `json:"imageUrl" validate:"max=500"`
	ProductURL string `json:"productUrl" validate:"max=500"`
}

type VoteRequest struct {
	Vote string `json:"vote" validate:"required,vote"`
}

type PinRequest struct {
	Pinned *bool `json:"pinned" validate:"required"`
}

type CapacityRequest struct {
	MaxActiveProducts *int `json:"maxActiveProducts" validate:"required,min=0,max=200"`
}

type GroupResult struct {
	Group    *models.Group         `json:"group"`
	Products []ranking.ProductView `json:"products"`
	Metrics  ranking.Metrics       `json:"metrics"`
}

// ProductResult is a single product in the context of its group's ranking.
type ProductResult struct {
	Product  ranking.ProductView   `json:"product"`
	Products []ranking.ProductView `json:"products,omitempty"`
	Metrics  ranking.Metrics       `json:"metrics"`
}

func NewGroupProductService(repo repository.Repository, locker lock.Locker, m *metrics.Metrics, cfg *config.Config) *GroupProductService {
	return &GroupProductService{
		aggregates:       newAggregateRunner(locker, m, cfg.Concurrency.MaxRetries),
		repo:             repo,
		metrics:          m,
		defaultMaxActive: cfg.Ranking.DefaultMaxActiveProducts,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

func (s *GroupProductService) CreateGroup(ctx context.Context, actor models.Actor, req *CreateGroupRequest) (*GroupResult, error) {
	if actor.UserID == "" {
		return nil, ErrUnauthenticated
	}
	if err := utils.ValidateStruct(req); err != nil {
		return nil, invalidRequest(err)
	}

	now := s.now()
	group := &models.Group{
		Name:              strings.TrimSpace(req.Name),
		Description:       strings.TrimSpace(req.Description),
		CreatedBy:         actor.UserID,
		MaxActiveProducts: s.defaultMaxActive,
	}
	if req.MaxActiveProducts != nil {
		group.MaxActiveProducts = *req.MaxActiveProducts
	}
	group.EnsureID()
	group.AddMember(actor.UserID, models.MemberRoleAdmin, now)

	for _, starter := range req.StarterProducts {
		if ranking.HasName(group, starter.Name) {
			continue
		}
		group.Products = append(group.Products, ranking.NewStarter(group.ID, actor.UserID, starter.Name, starter.Note, now))
	}
	ranking.Recalculate(group, now)

	if err := s.repo.CreateGroup(ctx, group); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"group_id": group.ID,
		"user_id":  actor.UserID,
		"starters": len(group.Products),
	}).Info("Group created")

	c := ranking.Compose(group, actor.UserID)
	return &GroupResult{Group: group, Products: c.Products, Metrics: c.Metrics}, nil
}

// JoinGroup adds the caller as a member. Joining twice is a no-op.
func (s *GroupProductService) JoinGroup(ctx context.Context, actor models.Actor, groupID string) (*models.Group, error) {
	if actor.UserID == "" {
		return nil, ErrUnauthenticated
	}
	return s.mutateGroup(ctx, groupID, func(g *models.Group) (bool, error) {
		return g.AddMember(actor.UserID, models.MemberRoleMember, s.now()), nil
	})
}

// ListProducts returns the ranked list. A group whose stored ranking is stale
// is repaired and saved on the way.
func (s *GroupProductService) ListProducts(ctx context.Context, actor models.Actor, groupID string, filter ranking.Filter) (*ranking.Composition, error) {
	group, err := s.loadGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !group.CanParticipate(actor) {
		return nil, forbidden("only group members can view products")
	}

	if ranking.Recalculate(group, s.now()) {
		repaired, err := s.mutateGroup(ctx, groupID, func(*models.Group) (bool, error) { return false, nil })
		if err != nil {
			logrus.WithError(err).WithField("group_id", groupID).Warn("Failed to persist recalculated ranks")
		} else {
			group = repaired
		}
	}

	c := ranking.Compose(group, actor.UserID).Filter(filter, actor.UserID)
	return &c, nil
}

func (s *GroupProductService) Suggest(ctx context.Context, actor models.Actor, groupID string, req *SuggestProductRequest) (*ProductResult, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, invalidRequest(err)
	}

	var productID string
	group, err := s.mutateGroup(ctx, groupID, func(g *models.Group) (bool, error) {
		if !g.CanParticipate(actor) {
			return false, forbidden("only group members can suggest products")
		}
		if ranking.HasName(g, req.Name) {
			return false, conflict("a product named %q already exists in this group", req.Name)
		}
		p := ranking.NewSuggestion(g.ID, actor.UserID, req.Name, req.Note, req.ImageURL, req.ProductURL, s.now())
		productID = p.ID
		g.Products = append(g.Products, p)
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"group_id":   groupID,
		"product_id": productID,
		"user_id":    actor.UserID,
	}).Info("Product suggested")

	return productResult(group, productID, actor.UserID, true), nil
}

func (s *GroupProductService) Vote(ctx context.Context, actor models.Actor, groupID, productID, rawVote string) (*ProductResult, error) {
	vote, err := ranking.ParseVote(rawVote)
	if err != nil {
		return nil, invalidRequest(err)
	}

	var applied bool
	group, err := s.mutateGroup(ctx, groupID, func(g *models.Group) (bool, error) {
		if !g.CanParticipate(actor) {
			return false, forbidden("only group members can vote")
		}
		idx := g.FindProduct(productID)
		if idx < 0 {
			return false, notFound("product")
		}
		changed, err := ranking.ApplyVote(&g.Products[idx], actor.UserID, vote, s.now())
		applied = changed
		return changed, err
	})
	if err != nil {
		return nil, err
	}
	if applied {
		s.metrics.VoteApplied(string(vote))
	}

	return productResult(group, productID, actor.UserID, false), nil
}

func (s *GroupProductService) SetPinned(ctx context.Context, actor models.Actor, groupID, productID string, pinned bool) (*ProductResult, error) {
	group, err := s.mutateGroup(ctx, groupID, func(g *models.Group) (bool, error) {
		if !g.CanAdminister(actor) {
			return false, forbidden("only group admins can pin products")
		}
		idx := g.FindProduct(productID)
		if idx < 0 {
			return false, notFound("product")
		}
		return ranking.SetPinned(&g.Products[idx], pinned, s.now()), nil
	})
	if err != nil {
		return nil, err
	}

	return productResult(group, productID, actor.UserID, true), nil
}

func (s *GroupProductService) Remove(ctx context.Context, actor models.Actor, groupID, productID string) (*ranking.Composition, error) {
	group, err := s.mutateGroup(ctx, groupID, func(g *models.Group) (bool, error) {
		if !g.CanAdminister(actor) {
			return false, forbidden("only group admins can remove products")
		}
		if !g.RemoveProduct(productID) {
			return false, notFound("product")
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"group_id":   groupID,
		"product_id": productID,
		"user_id":    actor.UserID,
	}).Info("Product removed")

	c := ranking.Compose(group, actor.UserID)
	return &c, nil
}

func (s *GroupProductService) SetCapacity(ctx context.Context, actor models.Actor, groupID string, maxActive int) (*ranking.Composition, error) {
	if maxActive < 0 || maxActive > models.MaxActiveProductsCeiling {
		return nil, validationError("maxActiveProducts must be between 0 and %d", models.MaxActiveProductsCeiling)
	}

	group, err := s.mutateGroup(ctx, groupID, func(g *models.Group) (bool, error) {
		if !g.CanAdminister(actor) {
			return false, forbidden("only group admins can change capacity")
		}
		if g.MaxActiveProducts == maxActive {
			return false, nil
		}
		g.MaxActiveProducts = maxActive
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	c := ranking.Compose(group, actor.UserID)
	return &c, nil
}

func (s *GroupProductService) loadGroup(ctx context.Context, groupID string) (*models.Group, error) {
	group, err := s.repo.GetGroup(ctx, groupID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("group")
	}
	return group, err
}

// mutateGroup loads the group under its lock, applies fn, recalculates ranks
// and saves when anything changed.
func (s *GroupProductService) mutateGroup(ctx context.Context, groupID string, fn func(*models.Group) (bool, error)) (*models.Group, error) {
	var result *models.Group
	err := s.aggregates.run(ctx, lock.GroupKey(groupID), "group", func(ctx context.Context) error {
		group, err := s.loadGroup(ctx, groupID)
		if err != nil {
			return err
		}

		changed, err := fn(group)
		if err != nil {
			return err
		}
		if ranking.Recalculate(group, s.now()) {
			s.metrics.Recalculated()
			changed = true
		}
		if changed {
			if err := s.repo.SaveGroup(ctx, group); err != nil {
				return err
			}
		}

		result = group
		return nil
	})
	return result, err
}

func productResult(g *models.Group, productID, viewerID string, withList bool) *ProductResult {
	c := ranking.Compose(g, viewerID)
	view, _ := c.Find(productID)
	result := &ProductResult{Product: view, Metrics: c.Metrics}
	if withList {
		result.Products = c.Products
	}
	return result
}
