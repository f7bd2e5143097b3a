package models

import (
	"time"

	"github.com/andrewpaige1/flashd-api/utils"
	"gorm.io/gorm"
)

// Deck represents a collection of flashcards owned by one user.
type Deck struct {
	ID          string    `gorm:"primaryKey;size:21" json:"id"`
	Title       string    `gorm:"not null;size:100" json:"title"`
	Description *string   `json:"description"`
	Color       *string   `gorm:"size:7" json:"color"`
	IsPublic    bool      `gorm:"not null;default:false" json:"isPublic"`
	UserID      string    `gorm:"not null;index;size:36" json:"userId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	User  User   `gorm:"foreignKey:UserID" json:"-"`
	Cards []Card `gorm:"foreignKey:DeckID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"cards,omitempty"`

	CardCount int `gorm:"-" json:"cardCount"`
}

func (d *Deck) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		id, err := utils.NewID()
		if err != nil {
			return err
		}
		d.ID = id
	}
	return nil
}
