package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/andrewpaige1/flashd-api/models"
	"github.com/andrewpaige1/flashd-api/rpc"
	"github.com/andrewpaige1/flashd-api/testutil"
	"github.com/andrewpaige1/flashd-api/utils"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := testutil.NewDB(t)
	svc := NewService(db, Options{
		Secret:  "test-secret",
		BaseURL: "http://localhost:3000",
	})
	return svc, db
}

func strPtr(s string) *string { return &s }

func fieldOf(t *testing.T, err error) string {
	t.Helper()
	var rpcErr *rpc.Error
	require.ErrorAs(t, err, &rpcErr)
	require.NotEmpty(t, rpcErr.FieldErrors)
	return rpcErr.FieldErrors[0].Field
}

func TestSignUp_CreatesUserAndSession(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	res, err := svc.SignUp(ctx, SignUpInput{Email: " Ada@Example.com ", Password: "correct-horse"}, ClientInfo{IPAddress: "127.0.0.1"})
	require.NoError(t, err)

	assert.Equal(t, "ada@example.com", res.User.Email)
	assert.Equal(t, "ada", res.User.Name, "name defaults to the email local part")
	assert.Equal(t, models.TierFree, res.User.SubscriptionTier)
	assert.NotEqual(t, "correct-horse", res.User.PasswordHash)
	assert.NotEmpty(t, res.Token)

	var sessions []models.Session
	require.NoError(t, db.Find(&sessions).Error)
	require.Len(t, sessions, 1)
	assert.Equal(t, res.Session.ID, sessions[0].ID)
	assert.Equal(t, "127.0.0.1", sessions[0].IPAddress)
}

func TestSignUp_RejectsShortPassword(t *testing.T) {
	svc, db := newTestService(t)

	_, err := svc.SignUp(context.Background(), SignUpInput{Email: "a@b.co", Password: "short"}, ClientInfo{})
	require.Error(t, err)
	assert.Equal(t, "password", fieldOf(t, err))

	var count int64
	require.NoError(t, db.Model(&models.User{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestSignUp_PasswordByteLimit(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.SignUp(ctx, SignUpInput{Email: "a@b.co", Password: strings.Repeat("p", 72)}, ClientInfo{})
	require.NoError(t, err)

	_, err = svc.SignUp(ctx, SignUpInput{Email: "b@b.co", Password: strings.Repeat("p", 73)}, ClientInfo{})
	require.Error(t, err)
	assert.Equal(t, "password", fieldOf(t, err))

	// 30 characters but 75 bytes.
	_, err = svc.SignUp(ctx, SignUpInput{Email: "c@b.co", Password: strings.Repeat("é€", 15)}, ClientInfo{})
	require.Error(t, err)
	assert.Equal(t, "password", fieldOf(t, err))
}

func TestHashPassword_TooLongIsValidationError(t *testing.T) {
	_, err := HashPassword(strings.Repeat("p", 100))
	require.Error(t, err)
	assert.Equal(t, rpc.CodeBadRequest, rpc.AsError(err).Code)
}

func TestSignUp_DefaultNameFitsColumn(t *testing.T) {
	svc, _ := newTestService(t)

	local := strings.Repeat("n", 150)
	res, err := svc.SignUp(context.Background(), SignUpInput{Email: local + "@b.co", Password: "long-enough"}, ClientInfo{})
	require.NoError(t, err)
	assert.Equal(t, local[:100], res.User.Name)
}

func TestSignUp_RejectsInvalidEmail(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.SignUp(context.Background(), SignUpInput{Email: "nope", Password: "long-enough"}, ClientInfo{})
	require.Error(t, err)
	assert.Equal(t, "email", fieldOf(t, err))
}

func TestSignUp_DuplicateEmail(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.SignUp(ctx, SignUpInput{Email: "a@b.co", Password: "long-enough", Name: strPtr("A")}, ClientInfo{})
	require.NoError(t, err)

	_, err = svc.SignUp(ctx, SignUpInput{Email: "A@B.CO", Password: "long-enough"}, ClientInfo{})
	assert.ErrorIs(t, err, models.ErrEmailTaken)
}

func TestSignIn(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.SignUp(ctx, SignUpInput{Email: "a@b.co", Password: "long-enough"}, ClientInfo{})
	require.NoError(t, err)

	res, err := svc.SignIn(ctx, SignInInput{Email: "a@b.co", Password: "long-enough"}, ClientInfo{})
	require.NoError(t, err)
	assert.Equal(t, "a@b.co", res.User.Email)

	_, err = svc.SignIn(ctx, SignInInput{Email: "a@b.co", Password: "wrong-password"}, ClientInfo{})
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)

	_, err = svc.SignIn(ctx, SignInInput{Email: "ghost@b.co", Password: "long-enough"}, ClientInfo{})
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

func TestIssuedTokenPassesValidator(t *testing.T) {
	svc, _ := newTestService(t)
	res, err := svc.SignUp(context.Background(), SignUpInput{Email: "a@b.co", Password: "long-enough"}, ClientInfo{})
	require.NoError(t, err)

	v, err := svc.Tokens().Validator()
	require.NoError(t, err)

	claims, err := v.ValidateToken(context.Background(), res.Token)
	require.NoError(t, err)
	sessionID, userID, ok := utils.SessionFromClaims(claims)
	require.True(t, ok)
	assert.Equal(t, res.Session.ID, sessionID)
	assert.Equal(t, res.User.ID, userID)

	other := NewTokens("another-secret", "http://localhost:3000", "http://localhost:3000")
	forged, err := other.Issue(res.Session, time.Now())
	require.NoError(t, err)
	_, err = v.ValidateToken(context.Background(), forged)
	assert.Error(t, err)
}

func TestLookup(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	res, err := svc.SignUp(ctx, SignUpInput{Email: "a@b.co", Password: "long-enough"}, ClientInfo{})
	require.NoError(t, err)

	session, err := svc.Lookup(ctx, res.Session.ID, res.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@b.co", session.User.Email)

	_, err = svc.Lookup(ctx, res.Session.ID, "someone-else")
	assert.ErrorIs(t, err, models.ErrNotFound)

	svc.now = func() time.Time { return time.Now().Add(15 * 24 * time.Hour) }
	_, err = svc.Lookup(ctx, res.Session.ID, res.User.ID)
	assert.ErrorIs(t, err, models.ErrSessionExpired)

	var count int64
	require.NoError(t, db.Model(&models.Session{}).Count(&count).Error)
	assert.Zero(t, count, "expired sessions are removed")
}

func TestRefresh(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	res, err := svc.SignUp(ctx, SignUpInput{Email: "a@b.co", Password: "long-enough"}, ClientInfo{})
	require.NoError(t, err)

	session, err := svc.Lookup(ctx, res.Session.ID, res.User.ID)
	require.NoError(t, err)

	token, err := svc.Refresh(ctx, session)
	require.NoError(t, err)
	assert.Empty(t, token, "fresh sessions are left alone")

	later := time.Now().Add(2 * 24 * time.Hour)
	svc.now = func() time.Time { return later }
	token, err = svc.Refresh(ctx, session)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	var stored models.Session
	require.NoError(t, db.First(&stored, "id = ?", session.ID).Error)
	assert.WithinDuration(t, later.Add(14*24*time.Hour), stored.ExpiresAt, time.Second)
}

func TestSignOut(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	res, err := svc.SignUp(ctx, SignUpInput{Email: "a@b.co", Password: "long-enough"}, ClientInfo{})
	require.NoError(t, err)

	require.NoError(t, svc.SignOut(ctx, res.Session.ID))
	require.NoError(t, svc.SignOut(ctx, ""))

	var count int64
	require.NoError(t, db.Model(&models.Session{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestUpdateProfile(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	a, err := svc.SignUp(ctx, SignUpInput{Email: "a@b.co", Password: "long-enough", Name: strPtr("Ada")}, ClientInfo{})
	require.NoError(t, err)
	_, err = svc.SignUp(ctx, SignUpInput{Email: "taken@b.co", Password: "long-enough"}, ClientInfo{})
	require.NoError(t, err)

	user, err := svc.UpdateProfile(ctx, a.User.ID, ProfileInput{Name: strPtr("Ada L.")})
	require.NoError(t, err)
	assert.Equal(t, "Ada L.", user.Name)
	assert.Equal(t, "a@b.co", user.Email, "email left unchanged")

	_, err = svc.UpdateProfile(ctx, a.User.ID, ProfileInput{Email: strPtr("taken@b.co")})
	assert.ErrorIs(t, err, models.ErrEmailTaken)

	_, err = svc.UpdateProfile(ctx, a.User.ID, ProfileInput{Email: strPtr("bad")})
	assert.Equal(t, "email", fieldOf(t, err))

	user, err = svc.UpdateProfile(ctx, a.User.ID, ProfileInput{})
	require.NoError(t, err)
	assert.Equal(t, "Ada L.", user.Name)
}

func TestDeleteAccount_RemovesOwnedData(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	res, err := svc.SignUp(ctx, SignUpInput{Email: "a@b.co", Password: "long-enough"}, ClientInfo{})
	require.NoError(t, err)

	deck := models.Deck{Title: "Spanish", UserID: res.User.ID}
	require.NoError(t, db.Create(&deck).Error)
	require.NoError(t, db.Create(&models.Card{DeckID: deck.ID, Front: "hola", Back: "hello"}).Error)

	require.NoError(t, svc.DeleteAccount(ctx, res.User.ID))

	for _, m := range []any{&models.User{}, &models.Session{}, &models.Deck{}, &models.Card{}} {
		var count int64
		require.NoError(t, db.Model(m).Count(&count).Error)
		assert.Zero(t, count)
	}

	assert.ErrorIs(t, svc.DeleteAccount(ctx, res.User.ID), models.ErrNotFound)
}
