package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUser_HasTier(t *testing.T) {
	tests := []struct {
		have, need string
		want       bool
	}{
		{have: TierFree, need: TierFree, want: true},
		{have: TierFree, need: TierPlus, want: false},
		{have: TierStudent, need: TierPlus, want: false},
		{have: TierPlus, need: TierPlus, want: true},
		{have: TierTeam, need: TierPro, want: true},
		{have: "GOLD", need: TierFree, want: false},
		{have: TierTeam, need: "GOLD", want: false},
	}

	for _, tt := range tests {
		u := User{SubscriptionTier: tt.have}
		assert.Equal(t, tt.want, u.HasTier(tt.need), "%s has %s", tt.have, tt.need)
	}
}
