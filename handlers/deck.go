package handlers

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/andrewpaige1/flashd-api/models"
	"github.com/andrewpaige1/flashd-api/rpc"
)

var colorPattern = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

const (
	maxTitleLength       = 100
	maxDescriptionLength = 1000
)

// DeckInput identifies a deck.
type DeckInput struct {
	ID string `json:"id"`
}

// CreateDeckInput is the payload of deck.createDeck.
type CreateDeckInput struct {
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	Color       *string `json:"color,omitempty"`
	IsPublic    *bool   `json:"isPublic,omitempty"`
}

// UpdateDeckInput is the payload of deck.updateDeck. Absent fields are kept.
type UpdateDeckInput struct {
	ID          string  `json:"id"`
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Color       *string `json:"color,omitempty"`
	IsPublic    *bool   `json:"isPublic,omitempty"`
}

func validateDeckFields(v *rpc.Validator, title, description, color *string) {
	if title != nil {
		v.Length(strings.TrimSpace(*title), "title", 1, maxTitleLength)
	}
	if description != nil {
		v.Length(*description, "description", 0, maxDescriptionLength)
	}
	if color != nil {
		v.Check(colorPattern.MatchString(*color), "color", "Must be a hex color like #1a2b3c")
	}
}

// ownedDeck loads a deck only when userID owns it. Missing and foreign
// decks are indistinguishable to the caller.
func (db *DBHandler) ownedDeck(ctx context.Context, userID, deckID string) (*models.Deck, error) {
	var deck models.Deck
	err := db.WithContext(ctx).Where("id = ? AND user_id = ?", deckID, userID).First(&deck).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, rpc.NotFound("Deck")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load deck: %w", err)
	}
	return &deck, nil
}

// GetUserDecks lists the caller's decks, most recently updated first.
func (db *DBHandler) GetUserDecks(ctx context.Context, _ struct{}) ([]models.Deck, error) {
	user, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}

	decks := []models.Deck{}
	if err := db.WithContext(ctx).Where("user_id = ?", user.ID).Order("updated_at desc").Find(&decks).Error; err != nil {
		return nil, fmt.Errorf("failed to list decks: %w", err)
	}
	if len(decks) == 0 {
		return decks, nil
	}

	if err := db.fillCardCounts(ctx, decks); err != nil {
		return nil, err
	}
	return decks, nil
}

// fillCardCounts sets the derived CardCount of each deck.
func (db *DBHandler) fillCardCounts(ctx context.Context, decks []models.Deck) error {
	ids := make([]string, len(decks))
	for i, d := range decks {
		ids[i] = d.ID
	}

	var counts []struct {
		DeckID string
		Count  int
	}
	err := db.WithContext(ctx).Model(&models.Card{}).
		Select("deck_id, COUNT(*) AS count").
		Where("deck_id IN ?", ids).
		Group("deck_id").
		Scan(&counts).Error
	if err != nil {
		return fmt.Errorf("failed to count cards: %w", err)
	}

	byDeck := make(map[string]int, len(counts))
	for _, c := range counts {
		byDeck[c.DeckID] = c.Count
	}
	for i := range decks {
		decks[i].CardCount = byDeck[decks[i].ID]
	}
	return nil
}

// DeckDetail is a deck with its cards, always serialized as an array.
type DeckDetail struct {
	models.Deck
	Cards []models.Card `json:"cards"`
}

// GetDeck returns one deck with its cards in creation order.
func (db *DBHandler) GetDeck(ctx context.Context, in DeckInput) (*DeckDetail, error) {
	user, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}

	var deck models.Deck
	err = db.WithContext(ctx).
		Preload("Cards", func(tx *gorm.DB) *gorm.DB { return tx.Order("created_at asc, id asc") }).
		Where("id = ? AND user_id = ?", in.ID, user.ID).
		First(&deck).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, rpc.NotFound("Deck")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load deck: %w", err)
	}

	cards := deck.Cards
	if cards == nil {
		cards = []models.Card{}
	}
	deck.Cards = nil
	deck.CardCount = len(cards)
	return &DeckDetail{Deck: deck, Cards: cards}, nil
}

// CreateDeck creates a deck owned by the caller.
func (db *DBHandler) CreateDeck(ctx context.Context, in CreateDeckInput) (*models.Deck, error) {
	user, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}

	var v rpc.Validator
	v.Length(strings.TrimSpace(in.Title), "title", 1, maxTitleLength)
	validateDeckFields(&v, nil, in.Description, in.Color)
	if err := v.Err(); err != nil {
		return nil, err
	}

	deck := models.Deck{
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Color:       in.Color,
		UserID:      user.ID,
	}
	if in.IsPublic != nil {
		deck.IsPublic = *in.IsPublic
	}

	if err := db.WithContext(ctx).Create(&deck).Error; err != nil {
		return nil, fmt.Errorf("failed to create deck: %w", err)
	}

	log.Info().Str("deck_id", deck.ID).Str("user_id", user.ID).Msg("Created deck")
	return &deck, nil
}

// UpdateDeck changes the provided fields of a deck the caller owns.
func (db *DBHandler) UpdateDeck(ctx context.Context, in UpdateDeckInput) (*models.Deck, error) {
	user, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}

	var v rpc.Validator
	validateDeckFields(&v, in.Title, in.Description, in.Color)
	if err := v.Err(); err != nil {
		return nil, err
	}

	deck, err := db.ownedDeck(ctx, user.ID, in.ID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if in.Title != nil {
		updates["title"] = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		updates["description"] = *in.Description
	}
	if in.Color != nil {
		updates["color"] = *in.Color
	}
	if in.IsPublic != nil {
		updates["is_public"] = *in.IsPublic
	}
	if len(updates) > 0 {
		if err := db.WithContext(ctx).Model(deck).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("failed to update deck: %w", err)
		}
		if deck, err = db.ownedDeck(ctx, user.ID, in.ID); err != nil {
			return nil, err
		}
	}

	decks := []models.Deck{*deck}
	if err := db.fillCardCounts(ctx, decks); err != nil {
		return nil, err
	}
	return &decks[0], nil
}

// DeleteDeck removes a deck the caller owns together with its cards.
func (db *DBHandler) DeleteDeck(ctx context.Context, in DeckInput) (Success, error) {
	user, err := currentUser(ctx)
	if err != nil {
		return Success{}, err
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ? AND user_id = ?", in.ID, user.ID).Limit(1).Find(&models.Deck{})
		if result.Error != nil {
			return fmt.Errorf("failed to load deck: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return rpc.NotFound("Deck")
		}
		if err := tx.Where("deck_id = ?", in.ID).Delete(&models.Card{}).Error; err != nil {
			return fmt.Errorf("failed to delete cards: %w", err)
		}
		if err := tx.Where("id = ?", in.ID).Delete(&models.Deck{}).Error; err != nil {
			return fmt.Errorf("failed to delete deck: %w", err)
		}
		return nil
	})
	if err != nil {
		return Success{}, err
	}

	log.Info().Str("deck_id", in.ID).Str("user_id", user.ID).Msg("Deleted deck")
	return Success{Success: true}, nil
}

// GetDeckStats summarizes review progress for a deck the caller owns.
func (db *DBHandler) GetDeckStats(ctx context.Context, in DeckInput) (models.DeckStats, error) {
	user, err := currentUser(ctx)
	if err != nil {
		return models.DeckStats{}, err
	}
	if _, err := db.ownedDeck(ctx, user.ID, in.ID); err != nil {
		return models.DeckStats{}, err
	}

	var cards []models.Card
	err = db.WithContext(ctx).
		Select("difficulty", "review_count", "correct_count", "last_reviewed").
		Where("deck_id = ?", in.ID).
		Find(&cards).Error
	if err != nil {
		return models.DeckStats{}, fmt.Errorf("failed to load cards: %w", err)
	}
	return models.ComputeDeckStats(cards), nil
}
