package client

import (
	"context"
	"time"

	"github.com/andrewpaige1/flashd-api/models"
	"github.com/andrewpaige1/flashd-api/utils"
)

// CreateCardInput adds a card to a deck.
type CreateCardInput struct {
	Front string  `json:"front"`
	Back  string  `json:"back"`
	Hint  *string `json:"hint,omitempty"`
}

// UpdateCardInput changes the non-nil fields of a card.
type UpdateCardInput struct {
	Front *string `json:"front,omitempty"`
	Back  *string `json:"back,omitempty"`
	Hint  *string `json:"hint,omitempty"`
}

// Cards are the card hooks of one deck.
type Cards struct {
	c      *Client
	deckID string
}

// Cards returns the card hooks for deckID.
func (c *Client) Cards(deckID string) *Cards {
	return &Cards{c: c, deckID: deckID}
}

func (h *Cards) keys() []Key {
	return []Key{DeckKey(h.deckID), DeckStatsKey(h.deckID)}
}

// editDeck replaces the cached deck with fn applied to a copy of its cards.
func (h *Cards) editDeck(fn func(cards []models.Card) []models.Card) {
	h.c.cache.Update(DeckKey(h.deckID), func(old any) any {
		deck, _ := old.(models.Deck)
		cards := make([]models.Card, len(deck.Cards))
		copy(cards, deck.Cards)
		deck.Cards = fn(cards)
		deck.CardCount = len(deck.Cards)
		return deck
	})
}

func (h *Cards) editStats(fn func(stats models.DeckStats) models.DeckStats) {
	h.c.cache.Update(DeckStatsKey(h.deckID), func(old any) any {
		stats, _ := old.(models.DeckStats)
		return fn(stats)
	})
}

// Create adds a card, showing a placeholder in the deck until the server
// answers.
func (h *Cards) Create(ctx context.Context, in CreateCardInput) (*models.Card, error) {
	now := time.Now()
	placeholder := models.Card{
		ID:        utils.NewPlaceholderID(),
		DeckID:    h.deckID,
		Front:     in.Front,
		Back:      in.Back,
		Hint:      in.Hint,
		CreatedAt: now,
		UpdatedAt: now,
	}

	payload := struct {
		DeckID string `json:"deckId"`
		CreateCardInput
	}{DeckID: h.deckID, CreateCardInput: in}

	var created models.Card
	err := optimistic(ctx, h.c.cache, h.keys(),
		func() {
			h.editDeck(func(cards []models.Card) []models.Card { return append(cards, placeholder) })
			h.editStats(func(s models.DeckStats) models.DeckStats {
				s.TotalCards++
				s.UnReviewedCards++
				return s
			})
		},
		func() error { return h.c.Mutate(ctx, "deck.createCard", payload, &created) },
	)
	h.c.cache.Invalidate(DecksKey())
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// Update edits a card in the cached deck before the server confirms.
func (h *Cards) Update(ctx context.Context, id string, in UpdateCardInput) (*models.Card, error) {
	payload := struct {
		ID string `json:"id"`
		UpdateCardInput
	}{ID: id, UpdateCardInput: in}

	var updated models.Card
	err := optimistic(ctx, h.c.cache, h.keys(),
		func() {
			h.editDeck(func(cards []models.Card) []models.Card {
				for i := range cards {
					if cards[i].ID != id {
						continue
					}
					if in.Front != nil {
						cards[i].Front = *in.Front
					}
					if in.Back != nil {
						cards[i].Back = *in.Back
					}
					if in.Hint != nil {
						cards[i].Hint = in.Hint
					}
					cards[i].UpdatedAt = time.Now()
				}
				return cards
			})
		},
		func() error { return h.c.Mutate(ctx, "deck.updateCard", payload, &updated) },
	)
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Delete removes a card from the cached deck and stats before the server
// confirms.
func (h *Cards) Delete(ctx context.Context, id string) error {
	err := optimistic(ctx, h.c.cache, h.keys(),
		func() {
			var removed *models.Card
			h.editDeck(func(cards []models.Card) []models.Card {
				out := cards[:0]
				for _, card := range cards {
					if card.ID == id {
						c := card
						removed = &c
						continue
					}
					out = append(out, card)
				}
				return out
			})
			if removed == nil {
				return
			}
			h.editStats(func(s models.DeckStats) models.DeckStats {
				s.TotalCards--
				if removed.LastReviewed != nil {
					s.ReviewedCards--
				} else {
					s.UnReviewedCards--
				}
				return s
			})
		},
		func() error { return h.c.Mutate(ctx, "deck.deleteCard", idInput{ID: id}, nil) },
	)
	h.c.cache.Invalidate(DecksKey())
	return err
}

// Review records an answer. The server owns the scheduling math, so the
// deck and stats are refetched rather than guessed.
func (h *Cards) Review(ctx context.Context, id string, correct bool) (*models.Card, error) {
	payload := struct {
		ID      string `json:"id"`
		Correct bool   `json:"correct"`
	}{ID: id, Correct: correct}

	var card models.Card
	err := h.c.Mutate(ctx, "deck.reviewCard", payload, &card)
	h.c.cache.Invalidate(h.keys()...)
	if err != nil {
		return nil, err
	}
	return &card, nil
}
