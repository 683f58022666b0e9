// internal/repository/repository.go
package repository

import (
	"context"
	"errors"

	"github.com/freshshare/freshshare-api/internal/models"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrVersionConflict means the aggregate changed since it was loaded.
	ErrVersionConflict = errors.New("version conflict")
)

// Repository persists the two aggregates the engines mutate (groups with
// their ranked products, and listings with their piece ordering) plus quick
// orders. Save methods are optimistic: they succeed only when the stored
// version equals the loaded one, and bump the in-memory version on success.
type Repository interface {
	GetGroup(ctx context.Context, id string) (*models.Group, error)
	CreateGroup(ctx context.Context, group *models.Group) error
	SaveGroup(ctx context.Context, group *models.Group) error

	GetListing(ctx context.Context, id string) (*models.Listing, error)
	CreateListing(ctx context.Context, listing *models.Listing) error
	SaveListing(ctx context.Context, listing *models.Listing) error

	GetOrder(ctx context.Context, id string) (*models.QuickOrder, error)
	CreateOrder(ctx context.Context, order *models.QuickOrder) error

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
