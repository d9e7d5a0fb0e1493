// Package user holds accounts: email registration with one-time codes,
// password and Google sign-in, profiles and account deletion.
package user

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"clanforge/backend/internal/apperr"
	"clanforge/backend/internal/models"
	"clanforge/backend/internal/textutil"
)

const (
	avatarCount       = 8
	minPasswordLen    = 6
	maxNameLen        = 80
	maxBioLen         = 1000
	maxCustomLinks    = 10
	defaultOTPTimeout = 5 * time.Minute
)

var (
	ErrUserNotFound       = apperr.NotFound("User not found")
	ErrEmailTaken         = apperr.Conflict("Email already registered")
	ErrInvalidOTP         = apperr.Validation("Invalid or expired OTP")
	ErrInvalidCredentials = apperr.Unauthenticated("Invalid credentials")
	ErrUseGoogle          = apperr.Validation("Please sign in with Google")
	ErrGoogleDisabled     = apperr.Validation("Google sign-in is not configured")
	ErrInvalidGoogleToken = apperr.Unauthenticated("Invalid Google token")
)

// Store persists users. Lookups return ErrUserNotFound for unknown users and
// Create returns ErrEmailTaken for a duplicate email.
type Store interface {
	Create(ctx context.Context, u *models.User) error
	ByEmail(ctx context.Context, email string) (*models.User, error)
	ByUID(ctx context.Context, uid string) (*models.User, error)
	Update(ctx context.Context, u *models.User) error
	Delete(ctx context.Context, uid string) error
}

// OTPStore keeps one pending verification code per email.
type OTPStore interface {
	Save(ctx context.Context, email, code string, ttl time.Duration) error
	Verify(ctx context.Context, email, code string) (bool, error)
	Delete(ctx context.Context, email string) error
}

type Mailer interface {
	// SendOTP delivers code to the address; ttl is how long it stays valid.
	SendOTP(ctx context.Context, to, code string, ttl time.Duration) error
}

// GoogleIdentity is the verified subset of a Google ID token.
type GoogleIdentity struct {
	Email string
	Name  string
}

type GoogleVerifier interface {
	Verify(ctx context.Context, idToken string) (*GoogleIdentity, error)
}

type TokenIssuer interface {
	GenerateToken(uid string) (string, error)
}

// LobbyPurger removes a deleted user from every lobby.
type LobbyPurger interface {
	PurgeUser(ctx context.Context, uid string) error
}

// Session is returned by every sign-in flow.
type Session struct {
	Token string
	User  *models.User
}

// RegisterInput completes an email registration.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	OTP      string
}

// ProfileInput replaces the editable parts of a profile.
type ProfileInput struct {
	Name        string
	Bio         string
	Phone       string
	AvatarID    int
	ShowContact bool
	Portfolio   string
	LinkedIn    string
	GitHub      string
	CustomLinks []models.CustomLink
}

type Service struct {
	store   Store
	otps    OTPStore
	mailer  Mailer
	google  GoogleVerifier
	tokens  TokenIssuer
	lobbies LobbyPurger
	otpTTL  time.Duration
	logger  *zap.Logger
}

func NewService(store Store, otps OTPStore, mailer Mailer, tokens TokenIssuer, lobbies LobbyPurger, logger *zap.Logger) *Service {
	return &Service{
		store:   store,
		otps:    otps,
		mailer:  mailer,
		tokens:  tokens,
		lobbies: lobbies,
		otpTTL:  defaultOTPTimeout,
		logger:  logger,
	}
}

// WithGoogle enables Google sign-in.
func (s *Service) WithGoogle(v GoogleVerifier) *Service {
	s.google = v
	return s
}

// WithOTPTTL overrides how long verification codes stay valid.
func (s *Service) WithOTPTTL(ttl time.Duration) *Service {
	if ttl > 0 {
		s.otpTTL = ttl
	}
	return s
}

// SendOTP mails a fresh six digit code to an unregistered email. A previous
// code for the same email is replaced.
func (s *Service) SendOTP(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}

	_, err = s.store.ByEmail(ctx, email)
	switch {
	case err == nil:
		return ErrEmailTaken
	case !errors.Is(err, ErrUserNotFound):
		return s.wrap("send_otp", err)
	}

	code, err := newCode()
	if err != nil {
		return s.wrap("send_otp", err)
	}
	if err := s.otps.Save(ctx, email, code, s.otpTTL); err != nil {
		return s.wrap("send_otp", err)
	}
	if err := s.mailer.SendOTP(ctx, email, code, s.otpTTL); err != nil {
		return s.wrap("send_otp", fmt.Errorf("send otp mail: %w", err))
	}

	s.logger.Info("verification code sent", zap.String("email", email))
	return nil
}

// Register verifies the code and creates the account.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	name, err := cleanName(in.Name)
	if err != nil {
		return nil, err
	}
	if utf8.RuneCountInString(in.Password) < minPasswordLen {
		return nil, apperr.Validation("password must be at least 6 characters")
	}

	ok, err := s.otps.Verify(ctx, email, strings.TrimSpace(in.OTP))
	if err != nil {
		return nil, s.wrap("register", err)
	}
	if !ok {
		return nil, ErrInvalidOTP
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, s.wrap("register", err)
	}

	u, err := s.create(ctx, name, email, string(hash))
	if err != nil {
		return nil, err
	}
	if err := s.otps.Delete(ctx, email); err != nil {
		s.logger.Warn("failed to delete used verification code", zap.String("email", email), zap.Error(err))
	}

	s.logger.Info("user registered", zap.String("uid", u.UID))
	return s.session(u)
}

// Login checks email and password.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := s.store.ByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, s.wrap("login", err)
	}
	if u.PasswordHash == "" {
		return nil, ErrUseGoogle
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.session(u)
}

// GoogleLogin signs in with a Google ID token, creating a password-less
// account on first use.
func (s *Service) GoogleLogin(ctx context.Context, idToken string) (*Session, error) {
	if s.google == nil {
		return nil, ErrGoogleDisabled
	}
	id, err := s.google.Verify(ctx, idToken)
	if err != nil {
		s.logger.Warn("google token rejected", zap.Error(err))
		return nil, ErrInvalidGoogleToken
	}
	email, err := normalizeEmail(id.Email)
	if err != nil {
		return nil, ErrInvalidGoogleToken
	}

	u, err := s.store.ByEmail(ctx, email)
	if err == nil {
		return s.session(u)
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, s.wrap("google", err)
	}

	name := textutil.Clean(id.Name)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}
	u, err = s.create(ctx, name, email, "")
	if err != nil {
		return nil, err
	}
	s.logger.Info("user registered with google", zap.String("uid", u.UID))
	return s.session(u)
}

// Get returns a user by uid.
func (s *Service) Get(ctx context.Context, uid string) (*models.User, error) {
	u, err := s.store.ByUID(ctx, uid)
	if err != nil {
		return nil, s.wrap("get", err)
	}
	return u, nil
}

// Update replaces the editable profile fields. The email is not editable.
func (s *Service) Update(ctx context.Context, uid string, in ProfileInput) (*models.User, error) {
	name, err := cleanName(in.Name)
	if err != nil {
		return nil, err
	}
	bio := textutil.Clean(in.Bio)
	if utf8.RuneCountInString(bio) > maxBioLen {
		return nil, apperr.Validation("bio is too long")
	}
	if in.AvatarID < 0 || in.AvatarID >= avatarCount {
		return nil, apperr.Validation("avatarId is invalid")
	}
	links, err := cleanLinks(in.CustomLinks)
	if err != nil {
		return nil, err
	}

	u, err := s.store.ByUID(ctx, uid)
	if err != nil {
		return nil, s.wrap("update", err)
	}
	u.Name = name
	u.Bio = bio
	u.Phone = textutil.Clean(in.Phone)
	u.AvatarID = in.AvatarID
	u.ShowContact = in.ShowContact
	u.Portfolio = strings.TrimSpace(in.Portfolio)
	u.LinkedIn = strings.TrimSpace(in.LinkedIn)
	u.GitHub = strings.TrimSpace(in.GitHub)
	u.CustomLinks = links

	if err := s.store.Update(ctx, u); err != nil {
		return nil, s.wrap("update", err)
	}
	s.logger.Info("profile updated", zap.String("uid", uid))
	return u, nil
}

// Delete removes the account, then every lobby trace of it.
func (s *Service) Delete(ctx context.Context, uid string) error {
	if err := s.store.Delete(ctx, uid); err != nil {
		return s.wrap("delete", err)
	}
	s.logger.Info("user deleted", zap.String("uid", uid))
	return s.lobbies.PurgeUser(ctx, uid)
}

func (s *Service) create(ctx context.Context, name, email, hash string) (*models.User, error) {
	avatar, err := rand.Int(rand.Reader, big.NewInt(avatarCount))
	if err != nil {
		return nil, s.wrap("create", err)
	}
	u := &models.User{
		UID:          uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		AvatarID:     int(avatar.Int64()),
	}
	if err := s.store.Create(ctx, u); err != nil {
		return nil, s.wrap("create", err)
	}
	return u, nil
}

func (s *Service) session(u *models.User) (*Session, error) {
	token, err := s.tokens.GenerateToken(u.UID)
	if err != nil {
		return nil, s.wrap("token", err)
	}
	return &Session{Token: token, User: u}, nil
}

func (s *Service) wrap(op string, err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	s.logger.Error("user operation failed", zap.String("op", op), zap.Error(err))
	return apperr.Storage(err)
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperr.Validation("email is invalid")
	}
	return email, nil
}

func cleanName(raw string) (string, error) {
	name := textutil.Clean(raw)
	if name == "" {
		return "", apperr.Validation("name is required")
	}
	if utf8.RuneCountInString(name) > maxNameLen {
		return "", apperr.Validation("name is too long")
	}
	return name, nil
}

func cleanLinks(in []models.CustomLink) ([]models.CustomLink, error) {
	if len(in) > maxCustomLinks {
		return nil, apperr.Validation("too many custom links")
	}
	out := make([]models.CustomLink, 0, len(in))
	for _, l := range in {
		label := textutil.Clean(l.Label)
		url := strings.TrimSpace(l.URL)
		if label == "" || url == "" {
			return nil, apperr.Validation("custom links need a label and a url")
		}
		out = append(out, models.CustomLink{Position: len(out), Label: label, URL: url})
	}
	return out, nil
}

func newCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
