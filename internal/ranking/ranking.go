// Package ranking orders a group's suggested products by votes and decides which
// of them fit inside the group's active-product capacity.
//
// Everything here is pure: callers load a group, mutate it through these
// functions and persist it themselves when a change is reported.
package ranking

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/freshshare/freshshare-api/internal/models"
)

var ErrInvalidVote = errors.New("vote must be one of up, down, clear")

type Vote string

const (
	VoteUp    Vote = "up"
	VoteDown  Vote = "down"
	VoteClear Vote = "clear"
)

func ParseVote(raw string) (Vote, error) {
	switch v := Vote(strings.ToLower(strings.TrimSpace(raw))); v {
	case VoteUp, VoteDown, VoteClear:
		return v, nil
	default:
		return "", ErrInvalidVote
	}
}

// Recalculate recomputes scores, backfills missing activity timestamps, sorts
// the products (pinned, score, last activity; all descending) and assigns
// active/requested status around the group's cap. It reports whether anything
// changed, and a second call without intervening edits always reports false.
func Recalculate(g *models.Group, now time.Time) bool {
	changed := false

	previous := make([]string, len(g.Products))
	for i := range g.Products {
		p := &g.Products[i]
		previous[i] = p.ID

		if score := len(p.Upvoters) - len(p.Downvoters); p.Score != score {
			p.Score = score
			changed = true
		}
		if p.LastActivityAt == nil {
			ts := backfillActivity(p, now)
			p.LastActivityAt = &ts
			changed = true
		}
	}

	sort.SliceStable(g.Products, func(i, j int) bool {
		return Less(&g.Products[i], &g.Products[j])
	})

	limit := g.ActiveCap()
	for i := range g.Products {
		p := &g.Products[i]
		if p.ID != previous[i] {
			changed = true
		}

		status := models.ProductStatusRequested
		if i < limit {
			status = models.ProductStatusActive
		}
		if p.Status != status {
			p.Status = status
			changed = true
		}
		if p.Position != i {
			p.Position = i
			changed = true
		}
	}

	return changed
}

// Less reports whether a ranks strictly above b.
func Less(a, b *models.RankedProduct) bool {
	if a.Pinned != b.Pinned {
		return a.Pinned
	}
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return activityOf(a).After(activityOf(b))
}

func activityOf(p *models.RankedProduct) time.Time {
	if p.LastActivityAt != nil {
		return *p.LastActivityAt
	}
	return backfillActivity(p, time.Time{})
}

func backfillActivity(p *models.RankedProduct, now time.Time) time.Time {
	switch {
	case !p.UpdatedAt.IsZero():
		return p.UpdatedAt
	case !p.CreatedAt.IsZero():
		return p.CreatedAt
	default:
		return now
	}
}

// ApplyVote updates the voter sets. Repeating a vote is a no-op; the activity
// timestamp only moves when membership actually changed.
func ApplyVote(p *models.RankedProduct, userID string, vote Vote, now time.Time) (bool, error) {
	var added, removed bool

	switch vote {
	case VoteUp:
		p.Upvoters, added = p.Upvoters.Add(userID)
		p.Downvoters, removed = p.Downvoters.Remove(userID)
	case VoteDown:
		p.Downvoters, added = p.Downvoters.Add(userID)
		p.Upvoters, removed = p.Upvoters.Remove(userID)
	case VoteClear:
		var up, down bool
		p.Upvoters, up = p.Upvoters.Remove(userID)
		p.Downvoters, down = p.Downvoters.Remove(userID)
		removed = up || down
	default:
		return false, ErrInvalidVote
	}

	if !added && !removed {
		return false, nil
	}

	p.Score = len(p.Upvoters) - len(p.Downvoters)
	touch(p, now)
	return true, nil
}

// SetPinned flips the pin flag and bumps activity when it changes.
func SetPinned(p *models.RankedProduct, pinned bool, now time.Time) bool {
	if p.Pinned == pinned {
		return false
	}
	p.Pinned = pinned
	touch(p, now)
	return true
}

func touch(p *models.RankedProduct, now time.Time) {
	ts := now
	p.LastActivityAt = &ts
}

// NewSuggestion builds a member suggestion: the creator's upvote is included.
func NewSuggestion(groupID, creatorID, name, note, imageURL, productURL string, now time.Time) models.RankedProduct {
	p := newProduct(groupID, creatorID, name, note, imageURL, productURL, now)
	p.Upvoters = models.UserSet{creatorID}
	p.Score = 1
	return p
}

// NewStarter builds a product seeded at group creation, without voters.
func NewStarter(groupID, creatorID, name, note string, now time.Time) models.RankedProduct {
	return newProduct(groupID, creatorID, name, note, "", "", now)
}

func newProduct(groupID, creatorID, name, note, imageURL, productURL string, now time.Time) models.RankedProduct {
	p := models.RankedProduct{
		GroupID:    groupID,
		Name:       clip(name, models.ProductNameMaxLength),
		Note:       clip(note, models.ProductTextMaxLength),
		ImageURL:   clip(imageURL, models.ProductTextMaxLength),
		ProductURL: clip(productURL, models.ProductTextMaxLength),
		CreatedBy:  creatorID,
		Status:     models.ProductStatusRequested,
		Upvoters:   models.UserSet{},
		Downvoters: models.UserSet{},
	}
	p.EnsureID()
	p.CreatedAt = now
	p.UpdatedAt = now
	touch(&p, now)
	return p
}

// clip trims surrounding whitespace and caps the length in runes.
func clip(s string, max int) string {
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > max {
		return strings.TrimSpace(string(r[:max]))
	}
	return s
}

// NormalizeName is the comparison form used for duplicate detection.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// HasName reports whether the group already carries a product with this name.
func HasName(g *models.Group, name string) bool {
	want := NormalizeName(name)
	for i := range g.Products {
		if NormalizeName(g.Products[i].Name) == want {
			return true
		}
	}
	return false
}
