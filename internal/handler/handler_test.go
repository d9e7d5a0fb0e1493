package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"clanforge/backend/internal/hub"
	"clanforge/backend/internal/lobby"
	"clanforge/backend/internal/models"
	"clanforge/backend/internal/user"
	"clanforge/backend/pkg/jwt"
)

type nopMailer struct{ codes map[string]string }

func (m *nopMailer) SendOTP(_ context.Context, to, code string, _ time.Duration) error {
	m.codes[to] = code
	return nil
}

type testServer struct {
	t       *testing.T
	router  *gin.Engine
	hub     *hub.Hub
	issuer  *jwt.Issuer
	users   *user.MemoryStore
	mailer  *nopMailer
	lobbies *lobby.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zap.NewNop()

	h := hub.NewHub(log)
	store := lobby.NewMemoryStore()
	lobbies := lobby.NewService(store, store, h, log)
	users := user.NewMemoryStore()
	issuer := jwt.NewIssuer("test-secret", time.Hour)
	mailer := &nopMailer{codes: map[string]string{}}
	userSvc := user.NewService(users, user.NewMemoryOTPStore(), mailer, issuer, lobbies, log)

	return &testServer{
		t: t,
		router: NewRouter(RouterConfig{
			Lobbies: lobbies,
			Users:   userSvc,
			Hub:     h,
			Tokens:  issuer,
			Origins: []string{"http://localhost:5173"},
			Logger:  log,
		}),
		hub:     h,
		issuer:  issuer,
		users:   users,
		mailer:  mailer,
		lobbies: lobbies,
	}
}

// addUser stores a profile and returns a bearer token for it.
func (s *testServer) addUser(uid, name string, showContact bool) string {
	s.t.Helper()
	require.NoError(s.t, s.users.Create(context.Background(), &models.User{
		UID:         uid,
		Name:        name,
		Email:       uid + "@uni.edu",
		Phone:       "555-" + uid,
		ShowContact: showContact,
		AvatarID:    1,
	}))
	token, err := s.issuer.GenerateToken(uid)
	require.NoError(s.t, err)
	return token
}

func (s *testServer) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func lobbyBody(max int) gin.H {
	return gin.H{
		"title":      "Weekend football",
		"category":   "sports",
		"skill":      "Beginner",
		"location":   "North field",
		"eventDate":  "2026-11-21T10:00",
		"maxPlayers": max,
	}
}
