package user

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"clanforge/backend/internal/apperr"
	"clanforge/backend/internal/models"
)

type capturingMailer struct {
	sent map[string]string
	ttl  time.Duration
	err  error
}

func (m *capturingMailer) SendOTP(_ context.Context, to, code string, ttl time.Duration) error {
	if m.err != nil {
		return m.err
	}
	m.sent[to] = code
	m.ttl = ttl
	return nil
}

type stubIssuer struct{}

func (stubIssuer) GenerateToken(uid string) (string, error) { return "token-" + uid, nil }

type recordingPurger struct{ purged []string }

func (p *recordingPurger) PurgeUser(_ context.Context, uid string) error {
	p.purged = append(p.purged, uid)
	return nil
}

type stubGoogle struct {
	identity *GoogleIdentity
	err      error
}

func (g stubGoogle) Verify(context.Context, string) (*GoogleIdentity, error) {
	return g.identity, g.err
}

type fixture struct {
	svc    *Service
	store  *MemoryStore
	mailer *capturingMailer
	purger *recordingPurger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  NewMemoryStore(),
		mailer: &capturingMailer{sent: map[string]string{}},
		purger: &recordingPurger{},
	}
	f.svc = NewService(f.store, NewMemoryOTPStore(), f.mailer, stubIssuer{}, f.purger, zap.NewNop())
	return f
}

func (f *fixture) register(t *testing.T, name, email, password string) *Session {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.svc.SendOTP(ctx, email))
	s, err := f.svc.Register(ctx, RegisterInput{Name: name, Email: email, Password: password, OTP: f.mailer.sent[email]})
	require.NoError(t, err)
	return s
}

func TestRegisterFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.SendOTP(ctx, " Ada@Uni.edu "))
	code := f.mailer.sent["ada@uni.edu"]
	require.Len(t, code, 6)

	_, err := f.svc.Register(ctx, RegisterInput{Name: "Ada", Email: "ada@uni.edu", Password: "secret1", OTP: "000000"})
	assert.ErrorIs(t, err, ErrInvalidOTP)

	s, err := f.svc.Register(ctx, RegisterInput{Name: "Ada", Email: "ada@uni.edu", Password: "secret1", OTP: code})
	require.NoError(t, err)
	assert.Equal(t, "token-"+s.User.UID, s.Token)
	assert.NotEmpty(t, s.User.UID)
	assert.Equal(t, "ada@uni.edu", s.User.Email)
	assert.NotEqual(t, "secret1", s.User.PasswordHash)
	assert.GreaterOrEqual(t, s.User.AvatarID, 0)
	assert.Less(t, s.User.AvatarID, avatarCount)

	// the code is single use
	_, err = f.svc.Register(ctx, RegisterInput{Name: "Ada", Email: "ada@uni.edu", Password: "secret1", OTP: code})
	assert.ErrorIs(t, err, ErrInvalidOTP)

	err = f.svc.SendOTP(ctx, "ada@uni.edu")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.svc.SendOTP(ctx, "not-an-email")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = f.svc.Register(ctx, RegisterInput{Name: "", Email: "a@b.co", Password: "secret1", OTP: "123456"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = f.svc.Register(ctx, RegisterInput{Name: "A", Email: "a@b.co", Password: "123", OTP: "123456"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestSendOTPMailFailure(t *testing.T) {
	f := newFixture(t)
	f.mailer.err = errors.New("dial tcp: i/o timeout")

	err := f.svc.SendOTP(context.Background(), "ada@uni.edu")
	assert.Equal(t, apperr.KindStorage, apperr.KindOf(err))
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	registered := f.register(t, "Ada", "ada@uni.edu", "secret1")

	s, err := f.svc.Login(ctx, "ADA@uni.edu", "secret1")
	require.NoError(t, err)
	assert.Equal(t, registered.User.UID, s.User.UID)

	_, err = f.svc.Login(ctx, "ada@uni.edu", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.svc.Login(ctx, "nobody@uni.edu", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, apperr.KindUnauthenticated, apperr.KindOf(err))
}

func TestGoogleLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.GoogleLogin(ctx, "tok")
	assert.ErrorIs(t, err, ErrGoogleDisabled)

	f.svc.WithGoogle(stubGoogle{identity: &GoogleIdentity{Email: "grace@uni.edu", Name: "Grace"}})
	first, err := f.svc.GoogleLogin(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, "Grace", first.User.Name)
	assert.Empty(t, first.User.PasswordHash)

	again, err := f.svc.GoogleLogin(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, first.User.UID, again.User.UID)

	_, err = f.svc.Login(ctx, "grace@uni.edu", "anything")
	assert.ErrorIs(t, err, ErrUseGoogle)

	f.svc.WithGoogle(stubGoogle{err: errors.New("token expired")})
	_, err = f.svc.GoogleLogin(ctx, "tok")
	assert.ErrorIs(t, err, ErrInvalidGoogleToken)
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.register(t, "Ada", "ada@uni.edu", "secret1")

	u, err := f.svc.Update(ctx, s.User.UID, ProfileInput{
		Name:        "Ada L.",
		Bio:         "<b>maths</b>",
		Phone:       "555-0100",
		AvatarID:    4,
		ShowContact: true,
		GitHub:      " https://github.com/ada ",
		CustomLinks: []models.CustomLink{{Label: "Blog", URL: "https://ada.dev"}, {Label: "CV", URL: "https://ada.dev/cv"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Ada L.", u.Name)
	assert.Equal(t, "maths", u.Bio)
	assert.Equal(t, "ada@uni.edu", u.Email)
	assert.Equal(t, "https://github.com/ada", u.GitHub)
	assert.True(t, u.ShowContact)
	require.Len(t, u.CustomLinks, 2)
	assert.Equal(t, 1, u.CustomLinks[1].Position)

	stored, err := f.svc.Get(ctx, s.User.UID)
	require.NoError(t, err)
	assert.Equal(t, u.CustomLinks, stored.CustomLinks)

	_, err = f.svc.Update(ctx, s.User.UID, ProfileInput{Name: "Ada", AvatarID: 99})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = f.svc.Update(ctx, "ghost", ProfileInput{Name: "Ghost"})
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestDeletePurgesLobbies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.register(t, "Ada", "ada@uni.edu", "secret1")

	require.NoError(t, f.svc.Delete(ctx, s.User.UID))
	assert.Equal(t, []string{s.User.UID}, f.purger.purged)

	_, err := f.svc.Get(ctx, s.User.UID)
	assert.ErrorIs(t, err, ErrUserNotFound)

	err = f.svc.Delete(ctx, s.User.UID)
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.Len(t, f.purger.purged, 1)
}

func TestSendOTPPassesConfiguredTTL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.SendOTP(ctx, "ada@uni.edu"))
	assert.Equal(t, 5*time.Minute, f.mailer.ttl)

	f.svc.WithOTPTTL(15 * time.Minute)
	require.NoError(t, f.svc.SendOTP(ctx, "bob@uni.edu"))
	assert.Equal(t, 15*time.Minute, f.mailer.ttl)
}
