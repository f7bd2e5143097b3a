package auth

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

const maxNameLength = 100

// Options configures the identity service.
type Options struct {
	Secret            string
	BaseURL           string
	SessionTTL        time.Duration
	SessionUpdateAge  time.Duration
	MinPasswordLength int
	CookieDomain      string
	CookieSecure      bool
}

// Service issues and verifies sessions and manages accounts.
type Service struct {
	db     *gorm.DB
	tokens *Tokens
	opts   Options
	now    func() time.Time
}

// NewService creates a Service backed by db.
func NewService(db *gorm.DB, opts Options) *Service {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 14 * 24 * time.Hour
	}
	if opts.SessionUpdateAge <= 0 {
		opts.SessionUpdateAge = 24 * time.Hour
	}
	if opts.MinPasswordLength <= 0 {
		opts.MinPasswordLength = 8
	}
	return &Service{
		db:     db,
		tokens: NewTokens(opts.Secret, opts.BaseURL, opts.BaseURL),
		opts:   opts,
		now:    time.Now,
	}
}

// Tokens exposes the token helper, used to build the session middleware.
func (s *Service) Tokens() *Tokens {
	return s.tokens
}

// ClientInfo describes the device a session is created for.
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

// Result is a freshly issued session.
type Result struct {
	User    models.User
	Session models.Session
	Token   string
}

// SignUpInput holds email sign-up credentials.
type SignUpInput struct {
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Name     *string `json:"name,omitempty"`
}

// SignInInput holds email sign-in credentials.
type SignInInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ProfileInput holds a partial profile update.
type ProfileInput struct {
	Name  *string `json:"name,omitempty"`
	Email *string `json:"email,omitempty"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// defaultName derives a display name from the email's local part, cut to
// the name column's width.
func defaultName(email string) string {
	local := []rune(email[:strings.Index(email, "@")])
	if len(local) > maxNameLength {
		local = local[:maxNameLength]
	}
	return string(local)
}

// SignUp creates an account and signs it in.
func (s *Service) SignUp(ctx context.Context, in SignUpInput, client ClientInfo) (*Result, error) {
	email := normalizeEmail(in.Email)

	var v rpc.Validator
	v.Email(email, "email")
	checkPassword(&v, in.Password, s.opts.MinPasswordLength)
	if in.Name != nil {
		v.Length(strings.TrimSpace(*in.Name), "name", 1, maxNameLength)
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	name := defaultName(email)
	if in.Name != nil {
		name = strings.TrimSpace(*in.Name)
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if count > 0 {
		return nil, models.ErrEmailTaken
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	user := models.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, models.ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	log.Info().Str("user_id", user.ID).Msg("Created new user")
	return s.startSession(ctx, user, client)
}

// SignIn verifies credentials and opens a new session.
func (s *Service) SignIn(ctx context.Context, in SignInInput, client ClientInfo) (*Result, error) {
	email := normalizeEmail(in.Email)

	var v rpc.Validator
	v.Email(email, "email")
	v.Check(in.Password != "", "password", "Required")
	if err := v.Err(); err != nil {
		return nil, err
	}

	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if !CheckPassword(user.PasswordHash, in.Password) {
		log.Warn().Str("user_id", user.ID).Msg("Failed sign-in attempt")
		return nil, models.ErrInvalidCredentials
	}

	return s.startSession(ctx, user, client)
}

func (s *Service) startSession(ctx context.Context, user models.User, client ClientInfo) (*Result, error) {
	now := s.now()
	session := models.Session{
		UserID:    user.ID,
		ExpiresAt: now.Add(s.opts.SessionTTL),
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
	}
	if err := s.db.WithContext(ctx).Create(&session).Error; err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	token, err := s.tokens.Issue(session, now)
	if err != nil {
		return nil, err
	}

	return &Result{User: user, Session: session, Token: token}, nil
}

// Lookup loads a live session and its user. Expired sessions are deleted and
// reported as models.ErrSessionExpired.
func (s *Service) Lookup(ctx context.Context, sessionID, userID string) (*models.Session, error) {
	var session models.Session
	err := s.db.WithContext(ctx).Preload("User").Where("id = ? AND user_id = ?", sessionID, userID).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	if session.Expired(s.now()) {
		if err := s.db.WithContext(ctx).Delete(&models.Session{}, "id = ?", session.ID).Error; err != nil {
			log.Error().Err(err).Str("session_id", session.ID).Msg("Failed to delete expired session")
		}
		return nil, models.ErrSessionExpired
	}
	return &session, nil
}

// Refresh extends a session once it is older than the update age and
// returns a new token for it. It returns an empty token when nothing changed.
func (s *Service) Refresh(ctx context.Context, session *models.Session) (string, error) {
	now := s.now()
	if now.Sub(session.UpdatedAt) < s.opts.SessionUpdateAge {
		return "", nil
	}

	session.ExpiresAt = now.Add(s.opts.SessionTTL)
	err := s.db.WithContext(ctx).Model(&models.Session{}).Where("id = ?", session.ID).
		Updates(map[string]any{"expires_at": session.ExpiresAt, "updated_at": now}).Error
	if err != nil {
		return "", fmt.Errorf("failed to extend session: %w", err)
	}
	session.UpdatedAt = now

	return s.tokens.Issue(*session, now)
}

// SignOut deletes the session. Unknown sessions are ignored.
func (s *Service) SignOut(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.db.WithContext(ctx).Delete(&models.Session{}, "id = ?", sessionID).Error; err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// UpdateProfile changes the provided profile fields only.
func (s *Service) UpdateProfile(ctx context.Context, userID string, in ProfileInput) (*models.User, error) {
	updates := map[string]any{}

	var v rpc.Validator
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		v.Length(name, "name", 1, maxNameLength)
		updates["name"] = name
	}
	var email string
	if in.Email != nil {
		email = normalizeEmail(*in.Email)
		v.Email(email, "email")
		updates["email"] = email
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	if in.Email != nil {
		var count int64
		err := s.db.WithContext(ctx).Model(&models.User{}).
			Where("email = ? AND id <> ?", email, userID).Count(&count).Error
		if err != nil {
			return nil, fmt.Errorf("failed to check email: %w", err)
		}
		if count > 0 {
			return nil, models.ErrEmailTaken
		}
	}

	if len(updates) > 0 {
		result := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(updates)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
				return nil, models.ErrEmailTaken
			}
			return nil, fmt.Errorf("failed to update user: %w", result.Error)
		}
	}

	var user models.User
	err := s.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return &user, nil
}

// DeleteAccount removes the user together with its sessions, decks and cards.
func (s *Service) DeleteAccount(ctx context.Context, userID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		deckIDs := tx.Model(&models.Deck{}).Select("id").Where("user_id = ?", userID)
		if err := tx.Where("deck_id IN (?)", deckIDs).Delete(&models.Card{}).Error; err != nil {
			return fmt.Errorf("failed to delete cards: %w", err)
		}
		if err := tx.Where("user_id = ?", userID).Delete(&models.Deck{}).Error; err != nil {
			return fmt.Errorf("failed to delete decks: %w", err)
		}
		if err := tx.Where("user_id = ?", userID).Delete(&models.Session{}).Error; err != nil {
			return fmt.Errorf("failed to delete sessions: %w", err)
		}
		result := tx.Where("id = ?", userID).Delete(&models.User{})
		if result.Error != nil {
			return fmt.Errorf("failed to delete user: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return models.ErrNotFound
		}
		log.Info().Str("user_id", userID).Msg("Deleted user account")
		return nil
	})
}
