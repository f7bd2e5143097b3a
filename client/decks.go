package client

import (
	"context"
	"time"

	"github.com/andrewpaige1/flashd-api/models"
	"github.com/andrewpaige1/flashd-api/utils"
)

// DecksStaleTime is how long the deck list is served from cache.
const DecksStaleTime = 5 * time.Minute

const (
	procUserDecks = "deck.getUserDecks"
	procDeck      = "deck.getDeck"
	procDeckStats = "deck.getDeckStats"
)

type idInput struct {
	ID string `json:"id"`
}

// CreateDeckInput creates a deck.
type CreateDeckInput struct {
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	Color       *string `json:"color,omitempty"`
	IsPublic    *bool   `json:"isPublic,omitempty"`
}

// UpdateDeckInput changes the non-nil fields of a deck.
type UpdateDeckInput struct {
	ID          string  `json:"id"`
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Color       *string `json:"color,omitempty"`
	IsPublic    *bool   `json:"isPublic,omitempty"`
}

// DecksKey is the cache key of the deck list.
func DecksKey() Key { return KeyFor(procUserDecks, nil) }

// DeckKey is the cache key of one deck with its cards.
func DeckKey(id string) Key { return KeyFor(procDeck, idInput{ID: id}) }

// DeckStatsKey is the cache key of one deck's statistics.
func DeckStatsKey(id string) Key { return KeyFor(procDeckStats, idInput{ID: id}) }

// Decks are the deck list hooks.
type Decks struct {
	c *Client
}

// Decks returns the deck hooks bound to c's cache.
func (c *Client) Decks() *Decks {
	return &Decks{c: c}
}

func cachedQuery[T any](ctx context.Context, cache *Cache, query queryFunc, key Key, staleTime time.Duration, procedure string, input any) (T, error) {
	data, err := cache.Fetch(ctx, key, staleTime, func(ctx context.Context) (any, error) {
		var out T
		if err := query(ctx, procedure, input, &out); err != nil {
			return nil, err
		}
		return out, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	out, _ := data.(T)
	return out, nil
}

// List returns the caller's decks, newest activity first.
func (d *Decks) List(ctx context.Context) ([]models.Deck, error) {
	return cachedQuery[[]models.Deck](ctx, d.c.cache, d.c.Query, DecksKey(), DecksStaleTime, procUserDecks, nil)
}

// Get returns one deck with its cards.
func (d *Decks) Get(ctx context.Context, id string) (models.Deck, error) {
	return cachedQuery[models.Deck](ctx, d.c.cache, d.c.Query, DeckKey(id), 0, procDeck, idInput{ID: id})
}

// Stats returns one deck's review statistics.
func (d *Decks) Stats(ctx context.Context, id string) (models.DeckStats, error) {
	return cachedQuery[models.DeckStats](ctx, d.c.cache, d.c.Query, DeckStatsKey(id), 0, procDeckStats, idInput{ID: id})
}

// optimistic runs a mutation with the cancel, snapshot, write, rollback and
// invalidate steps over keys.
func optimistic(ctx context.Context, cache *Cache, keys []Key, write func(), mutate func() error) error {
	snapshots := make([]Snapshot, len(keys))
	for i, key := range keys {
		cache.Cancel(key)
		snapshots[i] = cache.Snapshot(key)
	}

	write()
	err := mutate()
	if err != nil {
		for i, key := range keys {
			cache.Restore(key, snapshots[i])
		}
	}
	cache.Invalidate(keys...)
	return err
}

// Create adds a deck, showing a placeholder in the list until the server
// answers.
func (d *Decks) Create(ctx context.Context, in CreateDeckInput) (*models.Deck, error) {
	cache := d.c.cache
	now := time.Now()
	placeholder := models.Deck{
		ID:          utils.NewPlaceholderID(),
		Title:       in.Title,
		Description: in.Description,
		Color:       in.Color,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.IsPublic != nil {
		placeholder.IsPublic = *in.IsPublic
	}

	var created models.Deck
	err := optimistic(ctx, cache, []Key{DecksKey()},
		func() {
			cache.Update(DecksKey(), func(old any) any {
				decks, _ := old.([]models.Deck)
				return append([]models.Deck{placeholder}, decks...)
			})
		},
		func() error { return d.c.Mutate(ctx, "deck.createDeck", in, &created) },
	)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func applyDeckUpdate(deck models.Deck, in UpdateDeckInput, now time.Time) models.Deck {
	if in.Title != nil {
		deck.Title = *in.Title
	}
	if in.Description != nil {
		deck.Description = in.Description
	}
	if in.Color != nil {
		deck.Color = in.Color
	}
	if in.IsPublic != nil {
		deck.IsPublic = *in.IsPublic
	}
	deck.UpdatedAt = now
	return deck
}

// Update edits a deck in the list and detail caches before the server
// confirms.
func (d *Decks) Update(ctx context.Context, in UpdateDeckInput) (*models.Deck, error) {
	cache := d.c.cache
	now := time.Now()

	var updated models.Deck
	err := optimistic(ctx, cache, []Key{DecksKey(), DeckKey(in.ID)},
		func() {
			cache.Update(DecksKey(), func(old any) any {
				decks, _ := old.([]models.Deck)
				out := make([]models.Deck, len(decks))
				for i, deck := range decks {
					if deck.ID == in.ID {
						deck = applyDeckUpdate(deck, in, now)
					}
					out[i] = deck
				}
				return out
			})
			cache.Update(DeckKey(in.ID), func(old any) any {
				deck, _ := old.(models.Deck)
				return applyDeckUpdate(deck, in, now)
			})
		},
		func() error { return d.c.Mutate(ctx, "deck.updateDeck", in, &updated) },
	)
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Delete removes a deck from the list before the server confirms.
func (d *Decks) Delete(ctx context.Context, id string) error {
	cache := d.c.cache
	err := optimistic(ctx, cache, []Key{DecksKey()},
		func() {
			cache.Update(DecksKey(), func(old any) any {
				decks, _ := old.([]models.Deck)
				out := make([]models.Deck, 0, len(decks))
				for _, deck := range decks {
					if deck.ID != id {
						out = append(out, deck)
					}
				}
				return out
			})
		},
		func() error { return d.c.Mutate(ctx, "deck.deleteDeck", idInput{ID: id}, nil) },
	)
	if err == nil {
		cache.Remove(DeckKey(id))
		cache.Remove(DeckStatsKey(id))
	}
	return err
}
