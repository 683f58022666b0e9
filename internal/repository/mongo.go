// internal/repository/mongo.go
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/freshshare/freshshare-api/internal/models"
)

// MongoRepository keeps each aggregate in a single document, so a group and
// its products (or a listing and its reservations) are replaced atomically.
type MongoRepository struct {
	client   *mongo.Client
	groups   *mongo.Collection
	listings *mongo.Collection
	orders   *mongo.Collection
}

func NewMongoRepository(client *mongo.Client, database string) *MongoRepository {
	db := client.Database(database)
	return &MongoRepository{
		client:   client,
		groups:   db.Collection("groups"),
		listings: db.Collection("listings"),
		orders:   db.Collection("orders"),
	}
}

type memberDocument struct {
	UserID   string            `bson:"userId"`
	Role     models.MemberRole `bson:"role"`
	JoinedAt time.Time         `bson:"joinedAt"`
}

type productDocument struct {
	ID             string               `bson:"id"`
	Name           string               `bson:"name"`
	Note           string               `bson:"note,omitempty"`
	ImageURL       string               `bson:"imageUrl,omitempty"`
	ProductURL     string               `bson:"productUrl,omitempty"`
	CreatedBy      string               `bson:"createdBy"`
	Status         models.ProductStatus `bson:"status"`
	Score          int                  `bson:"score"`
	Upvoters       []string             `bson:"upvoters"`
	Downvoters     []string             `bson:"downvoters"`
	Pinned         bool                 `bson:"pinned"`
	LastActivityAt *time.Time           `bson:"lastActivityAt,omitempty"`
	CreatedAt      time.Time            `bson:"createdAt"`
	UpdatedAt      time.Time            `bson:"updatedAt"`
}

type groupDocument struct {
	ID                string            `bson:"_id"`
	Name              string            `bson:"name"`
	Description       string            `bson:"description,omitempty"`
	CreatedBy         string            `bson:"createdBy"`
	MaxActiveProducts int               `bson:"maxActiveProducts"`
	Version           int64             `bson:"version"`
	Members           []memberDocument  `bson:"members"`
	Products          []productDocument `bson:"products"`
	CreatedAt         time.Time         `bson:"createdAt"`
	UpdatedAt         time.Time         `bson:"updatedAt"`
}

type reservationDocument struct {
	UserID     string                   `bson:"user"`
	CaseNumber int                      `bson:"caseNumber"`
	Pieces     int                      `bson:"pieces"`
	Status     models.ReservationStatus `bson:"status"`
	ReservedAt time.Time                `bson:"reservedAt"`
	UpdatedAt  time.Time                `bson:"updatedAt"`
}

type pieceOrderingDocument struct {
	Enabled              bool                  `bson:"enabled"`
	CurrentCaseNumber    int                   `bson:"currentCaseNumber"`
	CurrentCaseRemaining int                   `bson:"currentCaseRemaining"`
	CasesFulfilled       int                   `bson:"casesFulfilled"`
	Reservations         []reservationDocument `bson:"reservations"`
}

type listingDocument struct {
	ID            string                `bson:"_id"`
	Title         string                `bson:"title"`
	Description   string                `bson:"description,omitempty"`
	VendorID      string                `bson:"vendorId,omitempty"`
	CreatedBy     string                `bson:"createdBy"`
	CaseSize      int                   `bson:"caseSize"`
	CasePrice     float64               `bson:"casePrice"`
	Status        models.ListingStatus  `bson:"status"`
	PieceOrdering pieceOrderingDocument `bson:"pieceOrdering"`
	Version       int64                 `bson:"version"`
	CreatedAt     time.Time             `bson:"createdAt"`
	UpdatedAt     time.Time             `bson:"updatedAt"`
}

type orderItemDocument struct {
	ListingID string `bson:"listingId"`
	Title     string `bson:"title"`
	Pieces    int    `bson:"pieces"`
}

type orderDocument struct {
	ID        string              `bson:"_id"`
	UserID    string              `bson:"userId"`
	GroupID   string              `bson:"groupId,omitempty"`
	Status    models.OrderStatus  `bson:"status"`
	Items     []orderItemDocument `bson:"items"`
	CreatedAt time.Time           `bson:"createdAt"`
	UpdatedAt time.Time           `bson:"updatedAt"`
}

func (r *MongoRepository) GetGroup(ctx context.Context, id string) (*models.Group, error) {
	var doc groupDocument
	if err := r.groups.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return nil, translateMongo(err)
	}
	return doc.toModel(), nil
}

func (r *MongoRepository) CreateGroup(ctx context.Context, group *models.Group) error {
	group.EnsureID()
	now := time.Now().UTC()
	stamp(&group.BaseModel, now)

	if _, err := r.groups.InsertOne(ctx, newGroupDocument(group)); err != nil {
		return fmt.Errorf("failed to create group: %w", err)
	}
	return nil
}

func (r *MongoRepository) SaveGroup(ctx context.Context, group *models.Group) error {
	doc := newGroupDocument(group)
	doc.Version = group.Version + 1
	doc.UpdatedAt = time.Now().UTC()

	if err := r.replace(ctx, r.groups, group.ID, group.Version, doc); err != nil {
		return err
	}
	group.Version = doc.Version
	group.UpdatedAt = doc.UpdatedAt
	return nil
}

func (r *MongoRepository) GetListing(ctx context.Context, id string) (*models.Listing, error) {
	var doc listingDocument
	if err := r.listings.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return nil, translateMongo(err)
	}
	return doc.toModel(), nil
}

func (r *MongoRepository) CreateListing(ctx context.Context, listing *models.Listing) error {
	listing.EnsureID()
	stamp(&listing.BaseModel, time.Now().UTC())

	if _, err := r.listings.InsertOne(ctx, newListingDocument(listing)); err != nil {
		return fmt.Errorf("failed to create listing: %w", err)
	}
	return nil
}

func (r *MongoRepository) SaveListing(ctx context.Context, listing *models.Listing) error {
	doc := newListingDocument(listing)
	doc.Version = listing.Version + 1
	doc.UpdatedAt = time.Now().UTC()

	if err := r.replace(ctx, r.listings, listing.ID, listing.Version, doc); err != nil {
		return err
	}
	listing.Version = doc.Version
	listing.UpdatedAt = doc.UpdatedAt
	return nil
}

func (r *MongoRepository) GetOrder(ctx context.Context, id string) (*models.QuickOrder, error) {
	var doc orderDocument
	if err := r.orders.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return nil, translateMongo(err)
	}

	order := &models.QuickOrder{
		BaseModel: models.BaseModel{ID: doc.ID, CreatedAt: doc.CreatedAt, UpdatedAt: doc.UpdatedAt},
		UserID:    doc.UserID,
		GroupID:   doc.GroupID,
		Status:    doc.Status,
		Items:     make([]models.QuickOrderItem, 0, len(doc.Items)),
	}
	for i, item := range doc.Items {
		order.Items = append(order.Items, models.QuickOrderItem{
			ID:        uint(i + 1),
			OrderID:   doc.ID,
			ListingID: item.ListingID,
			Title:     item.Title,
			Pieces:    item.Pieces,
		})
	}
	return order, nil
}

func (r *MongoRepository) CreateOrder(ctx context.Context, order *models.QuickOrder) error {
	order.EnsureID()
	stamp(&order.BaseModel, time.Now().UTC())

	doc := orderDocument{
		ID:        order.ID,
		UserID:    order.UserID,
		GroupID:   order.GroupID,
		Status:    order.Status,
		Items:     make([]orderItemDocument, 0, len(order.Items)),
		CreatedAt: order.CreatedAt,
		UpdatedAt: order.UpdatedAt,
	}
	for i := range order.Items {
		order.Items[i].OrderID = order.ID
		doc.Items = append(doc.Items, orderItemDocument{
			ListingID: order.Items[i].ListingID,
			Title:     order.Items[i].Title,
			Pieces:    order.Items[i].Pieces,
		})
	}

	if _, err := r.orders.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

func (r *MongoRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, nil)
}

func (r *MongoRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

// replace swaps the stored document only if its version still matches.
func (r *MongoRepository) replace(ctx context.Context, coll *mongo.Collection, id string, version int64, doc interface{}) error {
	res, err := coll.ReplaceOne(ctx, bson.M{"_id": id, "version": version}, doc)
	if err != nil {
		return fmt.Errorf("failed to replace %s: %w", coll.Name(), err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	count, err := coll.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrVersionConflict
}

func stamp(b *models.BaseModel, now time.Time) {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
}

func translateMongo(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return err
}

func newGroupDocument(g *models.Group) groupDocument {
	doc := groupDocument{
		ID:                g.ID,
		Name:              g.Name,
		Description:       g.Description,
		CreatedBy:         g.CreatedBy,
		MaxActiveProducts: g.MaxActiveProducts,
		Version:           g.Version,
		Members:           make([]memberDocument, 0, len(g.Members)),
		Products:          make([]productDocument, 0, len(g.Products)),
		CreatedAt:         g.CreatedAt,
		UpdatedAt:         g.UpdatedAt,
	}
	for _, m := range g.Members {
		doc.Members = append(doc.Members, memberDocument{UserID: m.UserID, Role: m.Role, JoinedAt: m.JoinedAt})
	}
	for i := range g.Products {
		p := &g.Products[i]
		p.EnsureID()
		doc.Products = append(doc.Products, productDocument{
			ID:             p.ID,
			Name:           p.Name,
			Note:           p.Note,
			ImageURL:       p.ImageURL,
			ProductURL:     p.ProductURL,
			CreatedBy:      p.CreatedBy,
			Status:         p.Status,
			Score:          p.Score,
			Upvoters:       nonNil(p.Upvoters),
			Downvoters:     nonNil(p.Downvoters),
			Pinned:         p.Pinned,
			LastActivityAt: p.LastActivityAt,
			CreatedAt:      p.CreatedAt,
			UpdatedAt:      p.UpdatedAt,
		})
	}
	return doc
}

// toModel keeps the stored product order, which is the rank order.
func (d groupDocument) toModel() *models.Group {
	g := &models.Group{
		BaseModel:         models.BaseModel{ID: d.ID, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt},
		Name:              d.Name,
		Description:       d.Description,
		CreatedBy:         d.CreatedBy,
		MaxActiveProducts: d.MaxActiveProducts,
		Version:           d.Version,
		Members:           make([]models.GroupMember, 0, len(d.Members)),
		Products:          make([]models.RankedProduct, 0, len(d.Products)),
	}
	for i, m := range d.Members {
		g.Members = append(g.Members, models.GroupMember{
			ID:       uint(i + 1),
			GroupID:  d.ID,
			UserID:   m.UserID,
			Role:     m.Role,
			JoinedAt: m.JoinedAt,
		})
	}
	for i, p := range d.Products {
		g.Products = append(g.Products, models.RankedProduct{
			BaseModel:      models.BaseModel{ID: p.ID, CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt},
			GroupID:        d.ID,
			Name:           p.Name,
			Note:           p.Note,
			ImageURL:       p.ImageURL,
			ProductURL:     p.ProductURL,
			CreatedBy:      p.CreatedBy,
			Status:         p.Status,
			Score:          p.Score,
			Upvoters:       models.UserSet(p.Upvoters),
			Downvoters:     models.UserSet(p.Downvoters),
			Pinned:         p.Pinned,
			LastActivityAt: p.LastActivityAt,
			Position:       i,
		})
	}
	return g
}

func newListingDocument(l *models.Listing) listingDocument {
	po := l.PieceOrdering
	doc := listingDocument{
		ID:          l.ID,
		Title:       l.Title,
		Description: l.Description,
		VendorID:    l.VendorID,
		CreatedBy:   l.CreatedBy,
		CaseSize:    l.CaseSize,
		CasePrice:   l.CasePrice,
		Status:      l.Status,
		PieceOrdering: pieceOrderingDocument{
			Enabled:              po.Enabled,
			CurrentCaseNumber:    po.CurrentCaseNumber,
			CurrentCaseRemaining: po.CurrentCaseRemaining,
			CasesFulfilled:       po.CasesFulfilled,
			Reservations:         make([]reservationDocument, 0, len(po.Reservations)),
		},
		Version:   l.Version,
		CreatedAt: l.CreatedAt,
		UpdatedAt: l.UpdatedAt,
	}
	for _, res := range po.Reservations.List() {
		doc.PieceOrdering.Reservations = append(doc.PieceOrdering.Reservations, reservationDocument(res))
	}
	return doc
}

func (d listingDocument) toModel() *models.Listing {
	list := make([]models.PieceReservation, 0, len(d.PieceOrdering.Reservations))
	for _, res := range d.PieceOrdering.Reservations {
		list = append(list, models.PieceReservation(res))
	}

	return &models.Listing{
		BaseModel:   models.BaseModel{ID: d.ID, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt},
		Title:       d.Title,
		Description: d.Description,
		VendorID:    d.VendorID,
		CreatedBy:   d.CreatedBy,
		CaseSize:    d.CaseSize,
		CasePrice:   d.CasePrice,
		Status:      d.Status,
		PieceOrdering: models.PieceOrdering{
			Enabled:              d.PieceOrdering.Enabled,
			CurrentCaseNumber:    d.PieceOrdering.CurrentCaseNumber,
			CurrentCaseRemaining: d.PieceOrdering.CurrentCaseRemaining,
			CasesFulfilled:       d.PieceOrdering.CasesFulfilled,
			Reservations:         models.ReservationsFromList(list),
		},
		Version: d.Version,
	}
}

func nonNil(s models.UserSet) []string {
	if s == nil {
		return []string{}
	}
	return s
}
