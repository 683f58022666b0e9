// internal/events/events.go
package events

import (
	"context"
	"sync"
	"time"

	"github.com/freshshare/freshshare-api/internal/reservation"
)

const TypeCaseClosed = "case.closed"

// CaseClosed is emitted after a listing's case fills up and is persisted.
type CaseClosed struct {
	Type         string                    `json:"type"`
	ListingID    string                    `json:"listingId"`
	Title        string                    `json:"title"`
	CaseNumber   int                       `json:"caseNumber"`
	CaseSize     int                       `json:"caseSize"`
	Participants []reservation.Participant `json:"participants"`
	ClosedAt     time.Time                 `json:"closedAt"`
}

func NewCaseClosed(title string, closed reservation.ClosedCase) CaseClosed {
	return CaseClosed{
		Type:         TypeCaseClosed,
		ListingID:    closed.ListingID,
		Title:        title,
		CaseNumber:   closed.CaseNumber,
		CaseSize:     closed.CaseSize,
		Participants: closed.Participants,
		ClosedAt:     closed.ClosedAt,
	}
}

type Publisher interface {
	PublishCaseClosed(ctx context.Context, event CaseClosed) error
	Close() error
}

// NoopPublisher drops events. Used when Kafka is disabled.
type NoopPublisher struct{}

func (NoopPublisher) PublishCaseClosed(context.Context, CaseClosed) error { return nil }
func (NoopPublisher) Close() error { return nil }

// RecordingPublisher keeps events in memory for tests.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []CaseClosed
}

func (p *RecordingPublisher) PublishCaseClosed(_ context.Context, event CaseClosed) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *RecordingPublisher) Close() error { return nil }

func (p *RecordingPublisher) Events() []CaseClosed {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]CaseClosed(nil), p.events...)
}
