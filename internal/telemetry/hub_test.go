package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sentinel/internal/clock"
	"github.com/aristath/sentinel/internal/store"
)

func TestHubPublishDeliversToListenersAndStore(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore(clock.New())
	hub := NewHub(st, zerolog.Nop())

	ch, cancel := hub.Listen(4)
	defer cancel()

	hub.Publish(ctx, &DrawdownEventData{
		Kind:          DrawdownBreach,
		Agent:         "alpha",
		DrawdownPct:   0.12,
		PeakEquity:    1000,
		CurrentEquity: 880,
	})

	select {
	case env := <-ch:
		assert.Equal(t, DrawdownBreach, env.Type)
	case <-time.After(time.Second):
		t.Fatal("expected an event on the listener channel")
	}

	published := st.PublishedMessages()
	require.Len(t, published, 1)
	assert.Equal(t, "telemetry:events", published[0].Channel)
}

func TestHubListenCancelRemovesListener(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore(clock.New())
	hub := NewHub(st, zerolog.Nop())

	ch, cancel := hub.Listen(1)
	cancel()

	hub.Publish(ctx, &ProposalFinalizedData{Proposal: "p1"})

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after cancel")
}
