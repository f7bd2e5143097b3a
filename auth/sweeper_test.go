package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrewpaige1/flashd-api/models"
)

func TestPurgeExpired(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	res, err := svc.SignUp(ctx, SignUpInput{Email: "ada@example.com", Password: "password123"}, ClientInfo{})
	require.NoError(t, err)
	_, err = svc.SignIn(ctx, SignInInput{Email: "ada@example.com", Password: "password123"}, ClientInfo{})
	require.NoError(t, err)

	require.NoError(t, db.Model(&models.Session{}).Where("id = ?", res.Session.ID).
		Update("expires_at", time.Now().Add(-time.Minute)).Error)

	n, err := svc.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	var left int64
	require.NoError(t, db.Model(&models.Session{}).Count(&left).Error)
	assert.EqualValues(t, 1, left)
}

func TestNewSweeper(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := NewSweeper(svc, "not a schedule")
	assert.Error(t, err)

	sw, err := NewSweeper(svc, "@every 1h")
	require.NoError(t, err)
	sw.Start()
	sw.Stop()
}
