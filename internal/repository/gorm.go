// internal/repository/gorm.go
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/freshshare/freshshare-api/internal/database"
	"github.com/freshshare/freshshare-api/internal/models"
)

// GormRepository stores aggregates in PostgreSQL or SQLite.
type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) GetGroup(ctx context.Context, id string) (*models.Group, error) {
	var group models.Group
	err := r.db.WithContext(ctx).
		Preload("Members", func(db *gorm.DB) *gorm.DB {
			return db.Order("joined_at ASC, id ASC")
		}).
		Preload("Products", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC, created_at ASC")
		}).
		First(&group, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &group, nil
}

func (r *GormRepository) CreateGroup(ctx context.Context, group *models.Group) error {
	group.EnsureID()
	for i := range group.Members {
		group.Members[i].GroupID = group.ID
	}
	for i := range group.Products {
		group.Products[i].GroupID = group.ID
	}

	if err := r.db.WithContext(ctx).Create(group).Error; err != nil {
		return fmt.Errorf("failed to create group: %w", err)
	}
	return nil
}

// SaveGroup writes the group row, its members and the full product list in
// one transaction. Products missing from the list are deleted.
func (r *GormRepository) SaveGroup(ctx context.Context, group *models.Group) error {
	now := time.Now().UTC()

	err := database.WithTransaction(r.db.WithContext(ctx), func(tx *gorm.DB) error {
		res := tx.Model(&models.Group{}).
			Where("id = ? AND version = ?", group.ID, group.Version).
			Updates(map[string]interface{}{
				"name":                group.Name,
				"description":         group.Description,
				"max_active_products": group.MaxActiveProducts,
				"version":             group.Version + 1,
				"updated_at":          now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return r.missingOrConflict(tx, &models.Group{}, group.ID)
		}

		keep := make([]string, 0, len(group.Products))
		for i := range group.Products {
			group.Products[i].GroupID = group.ID
			group.Products[i].EnsureID()
			keep = append(keep, group.Products[i].ID)
		}

		stale := tx.Where("group_id = ?", group.ID)
		if len(keep) > 0 {
			stale = stale.Where("id NOT IN ?", keep)
		}
		if err := stale.Delete(&models.RankedProduct{}).Error; err != nil {
			return err
		}

		if len(group.Products) > 0 {
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&group.Products).Error; err != nil {
				return err
			}
		}

		for i := range group.Members {
			m := &group.Members[i]
			m.GroupID = group.ID
			if m.ID != 0 {
				if err := tx.Model(&models.GroupMember{}).Where("id = ?", m.ID).Update("role", m.Role).Error; err != nil {
					return err
				}
				continue
			}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "group_id"}, {Name: "user_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"role"}),
			}).Create(m).Error
			if err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	group.Version++
	group.UpdatedAt = now
	return nil
}

func (r *GormRepository) GetListing(ctx context.Context, id string) (*models.Listing, error) {
	var listing models.Listing
	if err := r.db.WithContext(ctx).First(&listing, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &listing, nil
}

func (r *GormRepository) CreateListing(ctx context.Context, listing *models.Listing) error {
	if err := r.db.WithContext(ctx).Create(listing).Error; err != nil {
		return fmt.Errorf("failed to create listing: %w", err)
	}
	return nil
}

// listingStateColumns are the columns the reservation engine may change.
var listingStateColumns = []string{
	"case_size",
	"status",
	"po_enabled",
	"po_current_case_number",
	"po_current_case_remaining",
	"po_cases_fulfilled",
	"po_reservations",
	"version",
	"updated_at",
}

func (r *GormRepository) SaveListing(ctx context.Context, listing *models.Listing) error {
	next := *listing
	next.Version = listing.Version + 1
	next.UpdatedAt = time.Now().UTC()

	db := r.db.WithContext(ctx)
	res := db.Model(&models.Listing{}).
		Where("id = ? AND version = ?", listing.ID, listing.Version).
		Select(listingStateColumns).
		Updates(&next)
	if res.Error != nil {
		return fmt.Errorf("failed to save listing: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return r.missingOrConflict(db, &models.Listing{}, listing.ID)
	}

	listing.Version = next.Version
	listing.UpdatedAt = next.UpdatedAt
	return nil
}

func (r *GormRepository) GetOrder(ctx context.Context, id string) (*models.QuickOrder, error) {
	var order models.QuickOrder
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC")
		}).
		First(&order, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &order, nil
}

func (r *GormRepository) CreateOrder(ctx context.Context, order *models.QuickOrder) error {
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

func (r *GormRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (r *GormRepository) Close(context.Context) error {
	database.Close(r.db)
	return nil
}

func (r *GormRepository) missingOrConflict(db *gorm.DB, model interface{}, id string) error {
	var count int64
	if err := db.Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrVersionConflict
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
