// internal/services/services_test.go
package services

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/freshshare/freshshare-api/internal/config"
	"github.com/freshshare/freshshare-api/internal/database"
	"github.com/freshshare/freshshare-api/internal/events"
	"github.com/freshshare/freshshare-api/internal/lock"
	"github.com/freshshare/freshshare-api/internal/metrics"
	"github.com/freshshare/freshshare-api/internal/models"
	"github.com/freshshare/freshshare-api/internal/ranking"
	"github.com/freshshare/freshshare-api/internal/repository"
)

// stepClock advances one second on every reading so activity ordering is
// deterministic.
type stepClock struct {
	t time.Time
}

func (c *stepClock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

type ServiceTestSuite struct {
	suite.Suite
	ctx         context.Context
	cfg         *config.Config
	repo        *repository.GormRepository
	publisher   *events.RecordingPublisher
	groups      *GroupProductService
	marketplace *MarketplaceService
	orders      *OrderService
}

func testConfig() *config.Config {
	return &config.Config{
		Ranking:     config.RankingConfig{DefaultMaxActiveProducts: 20},
		Marketplace: config.MarketplaceConfig{AutoEnablePieceOrdering: true, DefaultCaseSize: 1},
		Concurrency: config.ConcurrencyConfig{MaxRetries: 3},
	}
}

func (suite *ServiceTestSuite) SetupTest() {
	db, err := database.Initialize(config.DatabaseConfig{
		Driver:      "sqlite",
		SQLitePath:  filepath.Join(suite.T().TempDir(), "services.db"),
		MaxLifetime: 60,
		LogLevel:    "silent",
	})
	suite.Require().NoError(err)
	suite.Require().NoError(database.RunMigrations(db))

	suite.ctx = context.Background()
	suite.cfg = testConfig()
	suite.repo = repository.NewGormRepository(db)
	suite.publisher = &events.RecordingPublisher{}
	suite.build(suite.repo)
}

func (suite *ServiceTestSuite) TearDownTest() {
	suite.repo.Close(suite.ctx)
}

// build wires the services against repo, which may wrap the sqlite repository.
func (suite *ServiceTestSuite) build(repo repository.Repository) {
	clock := &stepClock{t: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	m := metrics.New()
	locker := lock.NewLocalLocker()

	suite.groups = NewGroupProductService(repo, locker, m, suite.cfg)
	suite.groups.now = clock.now
	suite.marketplace = NewMarketplaceService(repo, locker, suite.publisher, m, suite.cfg)
	suite.marketplace.now = clock.now
	suite.orders = NewOrderService(repo, suite.marketplace)
}

func actor(userID string) models.Actor {
	return models.Actor{UserID: userID}
}

func intPtr(v int) *int {
	return &v
}

func (suite *ServiceTestSuite) createGroup(maxActive int, starters ...string) *GroupResult {
	req := &CreateGroupRequest{Name: "Maple Street", MaxActiveProducts: intPtr(maxActive)}
	for _, name := range starters {
		req.StarterProducts = append(req.StarterProducts, StarterProductRequest{Name: name})
	}
	result, err := suite.groups.CreateGroup(suite.ctx, actor("admin"), req)
	suite.Require().NoError(err)
	return result
}

func (suite *ServiceTestSuite) join(groupID string, users ...string) {
	for _, u := range users {
		_, err := suite.groups.JoinGroup(suite.ctx, actor(u), groupID)
		suite.Require().NoError(err)
	}
}

func (suite *ServiceTestSuite) suggest(groupID, userID, name string) string {
	result, err := suite.groups.Suggest(suite.ctx, actor(userID), groupID, &SuggestProductRequest{Name: name})
	suite.Require().NoError(err)
	return result.Product.ID
}

func (suite *ServiceTestSuite) createListing(caseSize int, pieceOrdering bool) *models.Listing {
	listing, err := suite.marketplace.CreateListing(suite.ctx, actor("vendor"), &CreateListingRequest{
		Title:         "Organic apples",
		CaseSize:      caseSize,
		CasePrice:     42,
		PieceOrdering: pieceOrdering,
	})
	suite.Require().NoError(err)
	return listing
}

func (suite *ServiceTestSuite) TestCreateGroupRanksStarters() {
	result := suite.createGroup(1, "Rice", "rice ", "Beans")

	suite.True(result.Group.IsAdmin("admin"))
	suite.Require().Len(result.Products, 2)
	suite.Equal(2, result.Metrics.Total)
	suite.Equal(1, result.Metrics.Active)
	for _, p := range result.Products {
		suite.Equal(0, p.Score)
	}

	_, err := suite.groups.CreateGroup(suite.ctx, actor(""), &CreateGroupRequest{Name: "x"})
	suite.ErrorIs(err, ErrUnauthenticated)

	_, err = suite.groups.CreateGroup(suite.ctx, actor("admin"), &CreateGroupRequest{Name: "  "})
	suite.ErrorIs(err, ErrValidation)
}

func (suite *ServiceTestSuite) TestJoinIsIdempotent() {
	group := suite.createGroup(5)
	suite.join(group.Group.ID, "alice", "alice")

	loaded, err := suite.repo.GetGroup(suite.ctx, group.Group.ID)
	suite.Require().NoError(err)
	suite.Len(loaded.Members, 2)

	_, err = suite.groups.JoinGroup(suite.ctx, actor("alice"), "missing")
	suite.ErrorIs(err, ErrNotFound)
}

func (suite *ServiceTestSuite) TestListProductsAccess() {
	group := suite.createGroup(5, "Rice")

	_, err := suite.groups.ListProducts(suite.ctx, actor("stranger"), group.Group.ID, ranking.Filter{})
	suite.ErrorIs(err, ErrForbidden)

	_, err = suite.groups.ListProducts(suite.ctx, actor("admin"), "missing", ranking.Filter{})
	var nf *NotFoundError
	suite.Require().ErrorAs(err, &nf)
	suite.Equal("group", nf.Resource)

	site := models.Actor{UserID: "ops", SiteAdmin: true}
	list, err := suite.groups.ListProducts(suite.ctx, site, group.Group.ID, ranking.Filter{})
	suite.Require().NoError(err)
	suite.Len(list.Products, 1)
}

func (suite *ServiceTestSuite) TestTiedSuggestionsRankByRecency() {
	group := suite.createGroup(2)
	id := group.Group.ID
	x := suite.suggest(id, "admin", "X")
	y := suite.suggest(id, "admin", "Y")
	z := suite.suggest(id, "admin", "Z")

	list, err := suite.groups.ListProducts(suite.ctx, actor("admin"), id, ranking.Filter{})
	suite.Require().NoError(err)
	suite.Require().Len(list.Products, 3)
	suite.Equal([]string{z, y, x}, []string{list.Products[0].ID, list.Products[1].ID, list.Products[2].ID})
	suite.Equal(models.ProductStatusActive, list.Products[0].Status)
	suite.Equal(models.ProductStatusActive, list.Products[1].Status)
	suite.Equal(models.ProductStatusRequested, list.Products[2].Status)
	suite.Equal(2, list.Metrics.Active)
	suite.Equal([]string{z, y}, list.Metrics.ActiveProductIDs)

	requested, err := suite.groups.ListProducts(suite.ctx, actor("admin"), id, ranking.Filter{Status: models.ProductStatusRequested})
	suite.Require().NoError(err)
	suite.Require().Len(requested.Products, 1)
	suite.Equal(x, requested.Products[0].ID)
	suite.Equal(3, requested.Metrics.Total)
}

func (suite *ServiceTestSuite) TestPinnedProductTakesTheOnlySlot() {
	group := suite.createGroup(5)
	id := group.Group.ID
	suite.join(id, "u1", "u2")

	p := suite.suggest(id, "u1", "P")
	for _, u := range []string{"u2", "admin"} {
		_, err := suite.groups.Vote(suite.ctx, actor(u), id, p, "up")
		suite.Require().NoError(err)
	}
	q := suite.suggest(id, "admin", "Q")
	voted, err := suite.groups.Vote(suite.ctx, actor("admin"), id, q, "down")
	suite.Require().NoError(err)
	suite.Equal(-1, voted.Product.Score)

	_, err = suite.groups.SetPinned(suite.ctx, actor("admin"), id, q, true)
	suite.Require().NoError(err)
	capped, err := suite.groups.SetCapacity(suite.ctx, actor("admin"), id, 1)
	suite.Require().NoError(err)

	suite.Require().Len(capped.Products, 2)
	suite.Equal(q, capped.Products[0].ID)
	suite.Equal(models.ProductStatusActive, capped.Products[0].Status)
	suite.Equal(p, capped.Products[1].ID)
	suite.Equal(3, capped.Products[1].Score)
	suite.Equal(models.ProductStatusRequested, capped.Products[1].Status)
}

func (suite *ServiceTestSuite) TestRepeatedVoteIsNoop() {
	group := suite.createGroup(5, "P")
	id := group.Group.ID
	p := group.Products[0].ID
	suite.join(id, "voter")

	up, err := suite.groups.Vote(suite.ctx, actor("voter"), id, p, "up")
	suite.Require().NoError(err)
	suite.Equal(1, up.Product.Score)
	suite.Require().NotNil(up.Product.ViewerVote)

	again, err := suite.groups.Vote(suite.ctx, actor("voter"), id, p, "UP")
	suite.Require().NoError(err)
	suite.Equal(1, again.Product.Score)
	suite.Equal(1, again.Product.Upvotes)
	suite.Equal(up.Product.LastActivityAt.Unix(), again.Product.LastActivityAt.Unix())

	cleared, err := suite.groups.Vote(suite.ctx, actor("voter"), id, p, "clear")
	suite.Require().NoError(err)
	suite.Equal(0, cleared.Product.Score)
	suite.Nil(cleared.Product.ViewerVote)
}

func (suite *ServiceTestSuite) TestVoteErrors() {
	group := suite.createGroup(5, "P")
	id := group.Group.ID
	p := group.Products[0].ID

	_, err := suite.groups.Vote(suite.ctx, actor("admin"), id, p, "sideways")
	suite.ErrorIs(err, ErrValidation)

	_, err = suite.groups.Vote(suite.ctx, actor("stranger"), id, p, "up")
	suite.ErrorIs(err, ErrForbidden)

	_, err = suite.groups.Vote(suite.ctx, actor("admin"), id, "missing", "up")
	var nf *NotFoundError
	suite.Require().ErrorAs(err, &nf)
	suite.Equal("product", nf.Resource)
}

func (suite *ServiceTestSuite) TestSuggestRules() {
	group := suite.createGroup(5)
	id := group.Group.ID
	suite.join(id, "member")

	result, err := suite.groups.Suggest(suite.ctx, actor("member"), id, &SuggestProductRequest{Name: "Oat milk", Note: "barista"})
	suite.Require().NoError(err)
	suite.Equal(1, result.Product.Score)
	suite.True(result.Product.IsMine)
	suite.Len(result.Products, 1)

	_, err = suite.groups.Suggest(suite.ctx, actor("admin"), id, &SuggestProductRequest{Name: " OAT MILK "})
	suite.ErrorIs(err, ErrConflict)

	_, err = suite.groups.Suggest(suite.ctx, actor("member"), id, &SuggestProductRequest{Name: "   "})
	suite.ErrorIs(err, ErrValidation)

	_, err = suite.groups.Suggest(suite.ctx, actor("stranger"), id, &SuggestProductRequest{Name: "Tea"})
	suite.ErrorIs(err, ErrForbidden)
}

func (suite *ServiceTestSuite) TestAdminOnlyOperations() {
	group := suite.createGroup(5)
	id := group.Group.ID
	suite.join(id, "member")
	p := suite.suggest(id, "member", "Honey")

	_, err := suite.groups.SetPinned(suite.ctx, actor("member"), id, p, true)
	suite.ErrorIs(err, ErrForbidden)
	_, err = suite.groups.Remove(suite.ctx, actor("member"), id, p)
	suite.ErrorIs(err, ErrForbidden)
	_, err = suite.groups.SetCapacity(suite.ctx, actor("member"), id, 1)
	suite.ErrorIs(err, ErrForbidden)
	_, err = suite.groups.SetCapacity(suite.ctx, actor("admin"), id, 201)
	suite.ErrorIs(err, ErrValidation)

	pinned, err := suite.groups.SetPinned(suite.ctx, actor("admin"), id, p, true)
	suite.Require().NoError(err)
	suite.True(pinned.Product.Pinned)

	_, err = suite.groups.Remove(suite.ctx, actor("admin"), id, "missing")
	suite.ErrorIs(err, ErrNotFound)

	remaining, err := suite.groups.Remove(suite.ctx, actor("admin"), id, p)
	suite.Require().NoError(err)
	suite.Empty(remaining.Products)
	suite.Equal(0, remaining.Metrics.Total)
}

func (suite *ServiceTestSuite) TestCaseRolloverPublishesEvent() {
	listing := suite.createListing(10, true)

	a, err := suite.marketplace.SetPieces(suite.ctx, actor("A"), listing.ID, 7)
	suite.Require().NoError(err)
	suite.Equal(3, a.CurrentCaseRemaining)

	a, err = suite.marketplace.SetPieces(suite.ctx, actor("A"), listing.ID, 2)
	suite.Require().NoError(err)
	suite.Equal(2, a.ReservedPieces)
	suite.Equal(8, a.CurrentCaseRemaining)

	b, err := suite.marketplace.SetPieces(suite.ctx, actor("B"), listing.ID, 8)
	suite.Require().NoError(err)
	suite.True(b.CaseClosed)
	suite.Equal(1, b.CaseNumber)
	suite.Equal(1, b.CasesFulfilled)
	suite.Equal(2, b.CurrentCaseNumber)
	suite.Equal(10, b.CurrentCaseRemaining)

	stored, err := suite.repo.GetListing(suite.ctx, listing.ID)
	suite.Require().NoError(err)
	for _, res := range stored.PieceOrdering.Reservations {
		suite.Equal(models.ReservationStatusFulfilled, res.Status)
	}

	published := suite.publisher.Events()
	suite.Require().Len(published, 1)
	suite.Equal(events.TypeCaseClosed, published[0].Type)
	suite.Equal(listing.ID, published[0].ListingID)
	suite.Equal("Organic apples", published[0].Title)
	suite.Len(published[0].Participants, 2)

	status, err := suite.marketplace.PieceStatus(suite.ctx, actor("A"), listing.ID)
	suite.Require().NoError(err)
	suite.Equal(2, status.CurrentCaseNumber)
	suite.Equal(0, status.MyPieces)
	suite.Len(status.MyReservations, 1)
}

func (suite *ServiceTestSuite) TestCancelAndErrors() {
	listing := suite.createListing(6, true)

	_, err := suite.marketplace.SetPieces(suite.ctx, actor("A"), listing.ID, 4)
	suite.Require().NoError(err)
	cancelled, err := suite.marketplace.CancelPieces(suite.ctx, actor("A"), listing.ID)
	suite.Require().NoError(err)
	suite.Equal(0, cancelled.ReservedPieces)
	suite.Equal(6, cancelled.CurrentCaseRemaining)

	_, err = suite.marketplace.SetPieces(suite.ctx, actor("A"), listing.ID, -1)
	suite.ErrorIs(err, ErrValidation)

	_, err = suite.marketplace.SetPieces(suite.ctx, actor("A"), "missing", 1)
	var nf *NotFoundError
	suite.Require().ErrorAs(err, &nf)
	suite.Equal("listing", nf.Resource)

	_, err = suite.marketplace.CreateListing(suite.ctx, actor("vendor"), &CreateListingRequest{Title: "Bad", PieceOrdering: true})
	suite.ErrorIs(err, ErrValidation)
}

func (suite *ServiceTestSuite) TestDisabledListingWithoutAutoEnable() {
	suite.cfg.Marketplace.AutoEnablePieceOrdering = false
	suite.build(suite.repo)
	listing := suite.createListing(12, false)

	_, err := suite.marketplace.SetPieces(suite.ctx, actor("A"), listing.ID, 1)
	suite.ErrorIs(err, ErrInvalidConfiguration)

	status, err := suite.marketplace.PieceStatus(suite.ctx, actor("A"), listing.ID)
	suite.Require().NoError(err)
	suite.False(status.Enabled)
}

func (suite *ServiceTestSuite) TestQuickOrderAndReorderWithMissingListing() {
	apples := suite.createListing(10, true)

	placed, err := suite.orders.CreateQuickOrder(suite.ctx, actor("buyer"), &QuickOrderRequest{
		Items: []QuickOrderItemRequest{{ListingID: apples.ID, Pieces: 3}},
	})
	suite.Require().NoError(err)
	suite.Equal(3, placed.Reservation.TotalReserved)
	suite.Equal("Organic apples", placed.Order.Items[0].Title)

	_, err = suite.orders.CreateQuickOrder(suite.ctx, actor("buyer"), &QuickOrderRequest{
		Items: []QuickOrderItemRequest{{ListingID: "missing", Pieces: 1}},
	})
	suite.ErrorIs(err, ErrNotFound)

	_, err = suite.orders.CreateQuickOrder(suite.ctx, actor("buyer"), &QuickOrderRequest{})
	suite.ErrorIs(err, ErrValidation)

	// An older order whose first listing has since been deleted.
	past := &models.QuickOrder{
		UserID: "buyer",
		Status: models.OrderStatusPlaced,
		Items: []models.QuickOrderItem{
			{ListingID: "deleted-listing", Title: "Pears", Pieces: 2},
			{ListingID: apples.ID, Title: "Organic apples", Pieces: 5},
		},
	}
	suite.Require().NoError(suite.repo.CreateOrder(suite.ctx, past))

	result, err := suite.orders.Reorder(suite.ctx, actor("buyer"), past.ID)
	suite.Require().NoError(err)
	suite.Equal(past.ID, result.OrderID)
	suite.Require().Len(result.Items, 2)
	suite.Equal("missing", string(result.Items[0].Status))
	suite.Equal(0, result.Items[0].ReservedPieces)
	suite.Equal("ok", string(result.Items[1].Status))
	suite.Equal(5, result.Items[1].ReservedPieces)
	suite.Equal(5, result.TotalReserved)

	_, err = suite.orders.Reorder(suite.ctx, actor("someone-else"), past.ID)
	suite.ErrorIs(err, ErrForbidden)
	_, err = suite.orders.GetOrder(suite.ctx, actor("buyer"), "missing")
	suite.ErrorIs(err, ErrNotFound)
	_, err = suite.orders.GetOrder(suite.ctx, actor(""), past.ID)
	suite.ErrorIs(err, ErrUnauthenticated)
}

func (suite *ServiceTestSuite) TestQuickOrderForGroupRequiresMembership() {
	group := suite.createGroup(5)
	apples := suite.createListing(10, true)
	req := &QuickOrderRequest{
		GroupID: group.Group.ID,
		Items:   []QuickOrderItemRequest{{ListingID: apples.ID, Pieces: 1}},
	}

	_, err := suite.orders.CreateQuickOrder(suite.ctx, actor("stranger"), req)
	suite.ErrorIs(err, ErrForbidden)

	placed, err := suite.orders.CreateQuickOrder(suite.ctx, actor("admin"), req)
	suite.Require().NoError(err)
	suite.Equal(group.Group.ID, placed.Order.GroupID)
}

// flakyRepository loses the first few listing and group saves to a
// concurrent writer.
type flakyRepository struct {
	repository.Repository
	failures int
}

func (r *flakyRepository) SaveListing(ctx context.Context, l *models.Listing) error {
	if r.failures > 0 {
		r.failures--
		return repository.ErrVersionConflict
	}
	return r.Repository.SaveListing(ctx, l)
}

func (r *flakyRepository) SaveGroup(ctx context.Context, g *models.Group) error {
	if r.failures > 0 {
		r.failures--
		return repository.ErrVersionConflict
	}
	return r.Repository.SaveGroup(ctx, g)
}

func (suite *ServiceTestSuite) TestVersionConflictIsRetried() {
	listing := suite.createListing(10, true)
	flaky := &flakyRepository{Repository: suite.repo, failures: 2}
	suite.build(flaky)

	result, err := suite.marketplace.SetPieces(suite.ctx, actor("A"), listing.ID, 4)
	suite.Require().NoError(err)
	suite.Equal(6, result.CurrentCaseRemaining)

	stored, err := suite.repo.GetListing(suite.ctx, listing.ID)
	suite.Require().NoError(err)
	suite.Equal(6, stored.PieceOrdering.CurrentCaseRemaining)
}

func (suite *ServiceTestSuite) TestVersionConflictGivesUpAfterRetries() {
	group := suite.createGroup(5)
	flaky := &flakyRepository{Repository: suite.repo, failures: suite.cfg.Concurrency.MaxRetries}
	suite.build(flaky)

	_, err := suite.groups.Suggest(suite.ctx, actor("admin"), group.Group.ID, &SuggestProductRequest{Name: "Tea"})
	suite.ErrorIs(err, ErrConflict)

	loaded, err := suite.repo.GetGroup(suite.ctx, group.Group.ID)
	suite.Require().NoError(err)
	suite.Empty(loaded.Products)
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceTestSuite))
}
