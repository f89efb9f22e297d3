package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sentinel/internal/apperr"
	"github.com/aristath/sentinel/internal/clock"
)

type testData struct {
	ID    string
	Value int
}

func TestMemoryStoreBasicOperations(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(clock.New())

	data := testData{ID: "test1", Value: 42}
	require.NoError(t, s.Set(ctx, "key1", data, 0))

	var got testData
	require.NoError(t, s.Get(ctx, "key1", &got))
	assert.Equal(t, data, got)

	deleted, err := s.Delete(ctx, "key1")
	require.NoError(t, err)
	assert.True(t, deleted)

	err = s.Get(ctx, "key1", &got)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	v, err := s.Increment(ctx, "counter", 5)
	require.NoError(t, err)
	assert.EqualValues(t, 5, v)

	v, err = s.Increment(ctx, "counter", 3)
	require.NoError(t, err)
	assert.EqualValues(t, 8, v)

	added, err := s.AddToSet(ctx, "myset", "item1")
	require.NoError(t, err)
	assert.True(t, added)
	_, err = s.AddToSet(ctx, "myset", "item2")
	require.NoError(t, err)
	added, err = s.AddToSet(ctx, "myset", "item1")
	require.NoError(t, err)
	assert.False(t, added)

	members, err := s.SetMembers(ctx, "myset")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"item1", "item2"}, members)

	n, err := s.Publish(ctx, "channel1", data)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n) // no subscribers yet

	published := s.PublishedMessages()
	require.Len(t, published, 1)
	assert.Equal(t, "channel1", published[0].Channel)
}

func TestMemoryStoreTTLExpiration(t *testing.T) {
	ctx := context.Background()
	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	s := NewMemoryStore(fake)

	data := testData{ID: "test_ttl", Value: 100}
	require.NoError(t, s.Set(ctx, "expire_key", data, time.Second))

	var got testData
	require.NoError(t, s.Get(ctx, "expire_key", &got))
	assert.Equal(t, data, got)

	fake.Advance(2 * time.Second)

	err := s.Get(ctx, "expire_key", &got)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestMemoryStoreSetIfAbsent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(clock.New())

	ok, err := s.SetIfAbsent(ctx, "k", 1, 0)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.SetIfAbsent(ctx, "k", 2, 0)
	require.NoError(t, err)
	assert.False(t, ok)

	var got int
	require.NoError(t, s.Get(ctx, "k", &got))
	assert.Equal(t, 1, got)
}

func TestMemoryStoreSortedSet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(clock.New())

	require.NoError(t, s.SortedSetAdd(ctx, "z", "a", 1.0))
	require.NoError(t, s.SortedSetAdd(ctx, "z", "b", 3.0))
	require.NoError(t, s.SortedSetAdd(ctx, "z", "c", 2.0))

	members, err := s.SortedSetRangeByScore(ctx, "z", 0, 10)
	require.NoError(t, err)
	require.Len(t, members, 3)
	assert.Equal(t, "a", members[0].Member)
	assert.Equal(t, "c", members[1].Member)
	assert.Equal(t, "b", members[2].Member)

	members, err = s.SortedSetRangeByScore(ctx, "z", 2, 3)
	require.NoError(t, err)
	assert.Len(t, members, 2)

	require.NoError(t, s.SortedSetTrimToRank(ctx, "z", 2))
	members, err = s.SortedSetRangeByScore(ctx, "z", 0, 10)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "c", members[0].Member)
	assert.Equal(t, "b", members[1].Member)
}

func TestMemoryStoreKeysByPattern(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(clock.New())

	require.NoError(t, s.Set(ctx, "exec:logs:alpha", 1, 0))
	require.NoError(t, s.Set(ctx, "exec:logs:beta", 1, 0))
	require.NoError(t, s.Set(ctx, "strategy:status:alpha", 1, 0))

	keys, err := s.KeysByPattern(ctx, "exec:logs:*")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"exec:logs:alpha", "exec:logs:beta"}, keys)
}

func TestMemoryStorePublishSubscribe(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(clock.New())

	sub, err := s.Subscribe(ctx, "events")
	require.NoError(t, err)
	defer sub.Close()

	n, err := s.Publish(ctx, "events", "hello")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	select {
	case msg := <-sub.Channel():
		assert.NotEmpty(t, msg)
	case <-time.After(time.Second):
		t.Fatal("expected a message on the subscription channel")
	}
}
