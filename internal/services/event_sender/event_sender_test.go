package eventsender

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/renshs/auth/internal/domain/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

type stubPublisher struct {
	mu        sync.Mutex
	published []models.Event
}

func (p *stubPublisher) Publish(_ context.Context, key, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, models.Event{Type: string(key), Payload: string(data)})
	return nil
}

func (p *stubPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

type stubProvider struct {
	mu     sync.Mutex
	events []models.Event
}

func (p *stubProvider) NewEvents(_ context.Context, limit int) ([]models.Event, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.events)
	if n > limit {
		n = limit
	}
	events := make([]models.Event, n)
	copy(events, p.events[:n])
	return events, nil
}

func (p *stubProvider) SetEventDone(_ context.Context, eventID uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	remaining := p.events[:0]
	for _, event := range p.events {
		if event.ID != eventID {
			remaining = append(remaining, event)
		}
	}
	p.events = remaining
	return nil
}

func (p *stubProvider) pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func TestSender_PublishesAndMarksDone(t *testing.T) {
	publisher := &stubPublisher{}
	provider := &stubProvider{events: []models.Event{
		{ID: uuid.New(), Type: "user_registered", Payload: `{"username":"alice"}`},
		{ID: uuid.New(), Type: "user_registered", Payload: `{"username":"bob"}`},
	}}

	sender := NewSender(slog.New(slog.NewTextHandler(io.Discard, nil)), publisher, provider)
	sender.StartProducing(context.Background(), 10, 5*time.Millisecond)
	defer sender.StopSending()

	assert.Eventually(t, func() bool {
		return provider.pending() == 0 && publisher.count() == 2
	}, time.Second, 5*time.Millisecond)
}
