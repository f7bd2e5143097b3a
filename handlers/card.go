package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/andrewpaige1/flashd-api/models"
	"github.com/andrewpaige1/flashd-api/rpc"
)

const (
	maxSideLength = 2000
	maxHintLength = 500
)

// CardInput identifies a card.
type CardInput struct {
	ID string `json:"id"`
}

// CreateCardInput is the payload of deck.createCard.
type CreateCardInput struct {
	DeckID string  `json:"deckId"`
	Front  string  `json:"front"`
	Back   string  `json:"back"`
	Hint   *string `json:"hint,omitempty"`
}

// UpdateCardInput is the payload of deck.updateCard. Absent fields are kept.
type UpdateCardInput struct {
	ID    string  `json:"id"`
	Front *string `json:"front,omitempty"`
	Back  *string `json:"back,omitempty"`
	Hint  *string `json:"hint,omitempty"`
}

// ReviewCardInput records one answer for a card.
type ReviewCardInput struct {
	ID      string `json:"id"`
	Correct bool   `json:"correct"`
}

// ownedCard loads a card only when its deck belongs to userID.
func (db *DBHandler) ownedCard(ctx context.Context, userID, cardID string) (*models.Card, error) {
	decks := db.WithContext(ctx).Model(&models.Deck{}).Select("id").Where("user_id = ?", userID)

	var card models.Card
	err := db.WithContext(ctx).Where("id = ? AND deck_id IN (?)", cardID, decks).First(&card).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, rpc.NotFound("Card")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load card: %w", err)
	}
	return &card, nil
}

// normalizeHint maps a blank hint to nil so the column stores NULL.
func normalizeHint(hint *string) *string {
	if hint == nil || strings.TrimSpace(*hint) == "" {
		return nil
	}
	return hint
}

// CreateCard adds a card to a deck the caller owns.
func (db *DBHandler) CreateCard(ctx context.Context, in CreateCardInput) (*models.Card, error) {
	user, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}

	var v rpc.Validator
	v.Length(strings.TrimSpace(in.Front), "front", 1, maxSideLength)
	v.Length(strings.TrimSpace(in.Back), "back", 1, maxSideLength)
	if in.Hint != nil {
		v.Length(*in.Hint, "hint", 0, maxHintLength)
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	if _, err := db.ownedDeck(ctx, user.ID, in.DeckID); err != nil {
		return nil, err
	}

	card := models.Card{
		DeckID: in.DeckID,
		Front:  strings.TrimSpace(in.Front),
		Back:   strings.TrimSpace(in.Back),
		Hint:   normalizeHint(in.Hint),
	}
	if err := db.WithContext(ctx).Create(&card).Error; err != nil {
		return nil, fmt.Errorf("failed to create card: %w", err)
	}

	log.Debug().Str("card_id", card.ID).Str("deck_id", card.DeckID).Msg("Created card")
	return &card, nil
}

// UpdateCard edits the provided fields of a card the caller owns.
func (db *DBHandler) UpdateCard(ctx context.Context, in UpdateCardInput) (*models.Card, error) {
	user, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}

	var v rpc.Validator
	updates := map[string]any{}
	if in.Front != nil {
		front := strings.TrimSpace(*in.Front)
		v.Length(front, "front", 1, maxSideLength)
		updates["front"] = front
	}
	if in.Back != nil {
		back := strings.TrimSpace(*in.Back)
		v.Length(back, "back", 1, maxSideLength)
		updates["back"] = back
	}
	if in.Hint != nil {
		v.Length(*in.Hint, "hint", 0, maxHintLength)
		if hint := normalizeHint(in.Hint); hint != nil {
			updates["hint"] = *hint
		} else {
			updates["hint"] = nil
		}
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	card, err := db.ownedCard(ctx, user.ID, in.ID)
	if err != nil {
		return nil, err
	}
	if len(updates) == 0 {
		return card, nil
	}

	if err := db.WithContext(ctx).Model(card).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update card: %w", err)
	}
	return db.ownedCard(ctx, user.ID, in.ID)
}

// DeleteCard removes a card the caller owns.
func (db *DBHandler) DeleteCard(ctx context.Context, in CardInput) (Success, error) {
	user, err := currentUser(ctx)
	if err != nil {
		return Success{}, err
	}

	card, err := db.ownedCard(ctx, user.ID, in.ID)
	if err != nil {
		return Success{}, err
	}
	if err := db.WithContext(ctx).Delete(card).Error; err != nil {
		return Success{}, fmt.Errorf("failed to delete card: %w", err)
	}
	return Success{Success: true}, nil
}

// ReviewCard records an answer and reschedules the card.
func (db *DBHandler) ReviewCard(ctx context.Context, in ReviewCardInput) (*models.Card, error) {
	user, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}

	card, err := db.ownedCard(ctx, user.ID, in.ID)
	if err != nil {
		return nil, err
	}

	card.RecordReview(in.Correct, time.Now())
	err = db.WithContext(ctx).Model(card).Updates(map[string]any{
		"difficulty":    card.Difficulty,
		"review_count":  card.ReviewCount,
		"correct_count": card.CorrectCount,
		"last_reviewed": card.LastReviewed,
		"next_review":   card.NextReview,
	}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to record review: %w", err)
	}
	return card, nil
}
