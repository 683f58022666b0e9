package ranking

import (
	"time"

	"github.com/freshshare/freshshare-api/internal/models"
)

type ProductView struct {
	ID                string               `json:"id"`
	Name              string               `json:"name"`
	Note              string               `json:"note"`
	ImageURL          string               `json:"imageUrl"`
	ProductURL        string               `json:"productUrl"`
	CreatedBy         string               `json:"createdBy"`
	Status            models.ProductStatus `json:"status"`
	Score             int                  `json:"score"`
	Upvotes           int                  `json:"upvotes"`
	Downvotes         int                  `json:"downvotes"`
	ViewerVote        *Vote                `json:"viewerVote"`
	IsMine            bool                 `json:"isMine"`
	Pinned            bool                 `json:"pinned"`
	LastActivityAt    *time.Time           `json:"lastActivityAt"`
	CreatedAt         time.Time            `json:"createdAt"`
	UpdatedAt         time.Time            `json:"updatedAt"`
	Rank              int                  `json:"rank,omitempty"`
	IsActiveWithinCap bool                 `json:"isActiveWithinCap"`
}

type Metrics struct {
	Total             int      `json:"total"`
	Active            int      `json:"active"`
	Requested         int      `json:"requested"`
	Pinned            int      `json:"pinned"`
	MaxActiveProducts int      `json:"maxActiveProducts"`
	ActiveProductIDs  []string `json:"activeProductIds"`
}

type Composition struct {
	Products []ProductView `json:"products"`
	Metrics  Metrics       `json:"metrics"`
}

// Filter narrows a composition without touching ranks or metrics.
type Filter struct {
	Status models.ProductStatus
	Mine   bool
	Pinned *bool
}

// SerializeProduct projects a product for the given viewer.
func SerializeProduct(p *models.RankedProduct, viewerID string) ProductView {
	view := ProductView{
		ID:             p.ID,
		Name:           p.Name,
		Note:           p.Note,
		ImageURL:       p.ImageURL,
		ProductURL:     p.ProductURL,
		CreatedBy:      p.CreatedBy,
		Status:         p.Status,
		Score:          p.Score,
		Upvotes:        len(p.Upvoters),
		Downvotes:      len(p.Downvoters),
		IsMine:         viewerID != "" && p.CreatedBy == viewerID,
		Pinned:         p.Pinned,
		LastActivityAt: p.LastActivityAt,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}

	if viewerID != "" {
		var v Vote
		switch {
		case p.Upvoters.Contains(viewerID):
			v = VoteUp
		case p.Downvoters.Contains(viewerID):
			v = VoteDown
		}
		if v != "" {
			view.ViewerVote = &v
		}
	}

	return view
}

// Compose serializes the products in their current order; callers run
// Recalculate first so that order is the rank order.
func Compose(g *models.Group, viewerID string) Composition {
	limit := g.ActiveCap()
	c := Composition{
		Products: make([]ProductView, 0, len(g.Products)),
		Metrics: Metrics{
			Total:             len(g.Products),
			MaxActiveProducts: limit,
			ActiveProductIDs:  []string{},
		},
	}

	for i := range g.Products {
		p := &g.Products[i]
		view := SerializeProduct(p, viewerID)
		view.Rank = i + 1
		view.IsActiveWithinCap = view.Rank-1 < limit
		c.Products = append(c.Products, view)

		switch p.Status {
		case models.ProductStatusActive:
			c.Metrics.Active++
			c.Metrics.ActiveProductIDs = append(c.Metrics.ActiveProductIDs, p.ID)
		default:
			c.Metrics.Requested++
		}
		if p.Pinned {
			c.Metrics.Pinned++
		}
	}

	return c
}

// Find returns the composed view of one product.
func (c Composition) Find(productID string) (ProductView, bool) {
	for _, v := range c.Products {
		if v.ID == productID {
			return v, true
		}
	}
	return ProductView{}, false
}

func (c Composition) Filter(f Filter, viewerID string) Composition {
	out := Composition{Products: make([]ProductView, 0, len(c.Products)), Metrics: c.Metrics}
	for _, v := range c.Products {
		if f.Status != "" && v.Status != f.Status {
			continue
		}
		if f.Mine && v.CreatedBy != viewerID {
			continue
		}
		if f.Pinned != nil && v.Pinned != *f.Pinned {
			continue
		}
		out.Products = append(out.Products, v)
	}
	return out
}
