package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	TierFree    = "FREE"
	TierStudent = "STUDENT"
	TierPlus    = "PLUS"
	TierPro     = "PRO"
	TierTeam    = "TEAM"

	StatusInactive = "INACTIVE"
)

// tiers is ordered from lowest to highest.
var tiers = []string{TierFree, TierStudent, TierPlus, TierPro, TierTeam}

// TierRank returns the position of tier in the subscription order, or -1
// for an unknown tier.
func TierRank(tier string) int {
	return slices.Index(tiers, tier)
}

// HasTier reports whether the user's subscription is at least required.
func (u *User) HasTier(required string) bool {
	need := TierRank(required)
	return need >= 0 && TierRank(u.SubscriptionTier) >= need
}

// User represents an account that owns decks.
type User struct {
	ID                 string    `gorm:"primaryKey;size:36" json:"id"`
	Name               string    `gorm:"not null;size:100" json:"name"`
	Email              string    `gorm:"uniqueIndex;not null;size:255" json:"email"`
	EmailVerified      bool      `gorm:"not null;default:false" json:"emailVerified"`
	Image              *string   `json:"image"`
	PasswordHash       string    `gorm:"not null" json:"-"`
	SubscriptionTier   string    `gorm:"not null;size:20;default:FREE" json:"subscriptionTier"`
	SubscriptionStatus string    `gorm:"not null;size:20;default:INACTIVE" json:"subscriptionStatus"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`

	Sessions []Session `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	Decks    []Deck    `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.SubscriptionTier == "" {
		u.SubscriptionTier = TierFree
	}
	if u.SubscriptionStatus == "" {
		u.SubscriptionStatus = StatusInactive
	}
	return nil
}
