package models

import (
	"time"

	"github.com/andrewpaige1/flashd-api/utils"
	"gorm.io/gorm"
)

// Card represents an individual flashcard.
type Card struct {
	ID     string  `gorm:"primaryKey;size:21" json:"id"`
	DeckID string  `gorm:"not null;index;size:21" json:"deckId"`
	Front  string  `gorm:"not null" json:"front"`
	Back   string  `gorm:"not null" json:"back"`
	Hint   *string `json:"hint"`

	// Review tracking
	Difficulty   float64    `gorm:"not null;default:0" json:"difficulty"`
	ReviewCount  int        `gorm:"not null;default:0" json:"reviewCount"`
	CorrectCount int        `gorm:"not null;default:0" json:"correctCount"`
	LastReviewed *time.Time `json:"lastReviewed"`
	NextReview   *time.Time `json:"nextReview"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Deck Deck `gorm:"foreignKey:DeckID" json:"-"`
}

func (c *Card) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		id, err := utils.NewID()
		if err != nil {
			return err
		}
		c.ID = id
	}
	return nil
}
