package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_FetchHonoursStaleTime(t *testing.T) {
	c := NewCache()
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	calls := 0
	fetch := func(ctx context.Context) (any, error) {
		calls++
		return calls, nil
	}

	v, err := c.Fetch(context.Background(), "k", time.Minute, fetch)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, _ = c.Fetch(context.Background(), "k", time.Minute, fetch)
	assert.Equal(t, 1, v, "fresh entries are served from cache")

	now = now.Add(2 * time.Minute)
	v, _ = c.Fetch(context.Background(), "k", time.Minute, fetch)
	assert.Equal(t, 2, v)

	c.Invalidate("k")
	v, _ = c.Fetch(context.Background(), "k", time.Minute, fetch)
	assert.Equal(t, 3, v)
}

func TestCache_CancelDropsInFlightResult(t *testing.T) {
	c := NewCache()
	started := make(chan struct{})
	release := make(chan struct{})

	done := make(chan any)
	go func() {
		v, _ := c.Fetch(context.Background(), "k", 0, func(ctx context.Context) (any, error) {
			close(started)
			<-release
			return "server", nil
		})
		done <- v
	}()

	<-started
	c.Cancel("k")
	c.Set("k", "optimistic")
	close(release)

	assert.Equal(t, "optimistic", <-done)
	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "optimistic", v)
}

func TestCache_SnapshotRestore(t *testing.T) {
	c := NewCache()
	c.Set("k", []string{"a"})

	snap := c.Snapshot("k")
	assert.True(t, c.Update("k", func(old any) any {
		return append([]string{"temp"}, old.([]string)...)
	}))
	v, _ := c.Get("k")
	assert.Equal(t, []string{"temp", "a"}, v)

	c.Restore("k", snap)
	v, _ = c.Get("k")
	assert.Equal(t, []string{"a"}, v)

	empty := c.Snapshot("missing")
	c.Set("missing", 1)
	c.Restore("missing", empty)
	_, ok := c.Get("missing")
	assert.False(t, ok)

	assert.False(t, c.Update("nothing", func(old any) any { return old }))
}

func TestCache_FetchErrorKeepsNoValue(t *testing.T) {
	c := NewCache()
	boom := errors.New("boom")

	_, err := c.Fetch(context.Background(), "k", time.Minute, func(ctx context.Context) (any, error) {
		return nil, boom
	})

	assert.ErrorIs(t, err, boom)
	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestCache_InvalidateProcedureAndClear(t *testing.T) {
	c := NewCache()
	now := time.Unix(0, 0)
	c.now = func() time.Time { return now }

	c.Set(DeckKey("a"), 1)
	c.Set(DeckKey("b"), 2)
	c.Set(DecksKey(), 3)

	c.InvalidateProcedure("deck.getDeck")

	fetched := map[Key]bool{}
	fetch := func(key Key) {
		_, _ = c.Fetch(context.Background(), key, time.Hour, func(ctx context.Context) (any, error) {
			fetched[key] = true
			return 0, nil
		})
	}
	fetch(DeckKey("a"))
	fetch(DeckKey("b"))
	fetch(DecksKey())
	assert.Equal(t, map[Key]bool{DeckKey("a"): true, DeckKey("b"): true}, fetched)

	c.Clear()
	_, ok := c.Get(DecksKey())
	assert.False(t, ok)
}

func TestKeyFor(t *testing.T) {
	assert.Equal(t, Key("deck.getUserDecks"), KeyFor("deck.getUserDecks", nil))
	assert.Equal(t, Key(`deck.getDeck?{"id":"x"}`), DeckKey("x"))
	assert.Equal(t, "deck.getDeck", DeckKey("x").Procedure())
}
