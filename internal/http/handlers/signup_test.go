package handlers

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pager/server/internal/auth"
	"github.com/pager/server/internal/model"
	"github.com/pager/server/internal/repo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeUserRepo backs the signup handler with an in-memory user set; methods
// the handler never touches ride on the embedded interface and panic if hit
type fakeUserRepo struct {
	repo.UserRepo
	users map[string]model.User // keyed by UID
}

func (r *fakeUserRepo) GetByUID(_ context.Context, uid string) (model.User, error) {
	user, ok := r.users[uid]
	if !ok {
		return model.User{}, repo.ErrNotFound
	}
	return user, nil
}

func (r *fakeUserRepo) Activate(_ context.Context, id uuid.UUID, rsaKey, expoPushToken string) error {
	for uid, user := range r.users {
		if user.ID == id {
			user.RSAKey = rsaKey
			user.ExpoPushToken = expoPushToken
			user.Activated = true
			r.users[uid] = user
			return nil
		}
	}
	return repo.ErrNotFound
}

type signupFixture struct {
	users   *fakeUserRepo
	tokens  *auth.RegistrationTokenService
	router  *chi.Mux
	uid     string
	userKey string
}

func newSignupFixture(t *testing.T) *signupFixture {
	t.Helper()

	uid, err := auth.GenerateUID()
	require.NoError(t, err)

	users := &fakeUserRepo{users: map[string]model.User{
		uid: {ID: uuid.New(), Name: "carol", UID: uid},
	}}
	tokens := auth.NewRegistrationTokenService("test-secret")
	handler := NewSignupHandler(users, tokens)

	router := chi.NewRouter()
	router.Get("/api/v1/check_uid/{uid}", handler.HandleCheckUID)
	router.Post("/api/v1/register", handler.HandleRegister)

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pemKey, err := auth.EncodePublicKey(&priv.PublicKey)
	require.NoError(t, err)

	return &signupFixture{users: users, tokens: tokens, router: router, uid: uid, userKey: pemKey}
}

func (f *signupFixture) checkUID(t *testing.T, uid string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/check_uid/"+uid, nil)
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *signupFixture) register(t *testing.T, body map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/register", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestCheckUIDMintsRegistrationToken(t *testing.T) {
	f := newSignupFixture(t)

	rec := f.checkUID(t, f.uid)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Failed            bool   `json:"failed"`
		RegistrationToken string `json:"registrationToken"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Failed)

	uid, err := f.tokens.VerifyToken(resp.RegistrationToken)
	require.NoError(t, err)
	assert.Equal(t, f.uid, uid)
}

func TestCheckUIDWrongLength(t *testing.T) {
	f := newSignupFixture(t)
	rec := f.checkUID(t, "12345")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckUIDUnknown(t *testing.T) {
	f := newSignupFixture(t)
	rec := f.checkUID(t, "123456789")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckUIDAlreadyActivated(t *testing.T) {
	f := newSignupFixture(t)
	user := f.users.users[f.uid]
	user.Activated = true
	f.users.users[f.uid] = user

	rec := f.checkUID(t, f.uid)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRegisterActivatesUser(t *testing.T) {
	f := newSignupFixture(t)
	token, err := f.tokens.SignToken(f.uid)
	require.NoError(t, err)

	rec := f.register(t, map[string]string{
		"UID":               f.uid,
		"rsaKey":            f.userKey,
		"expoPushToken":     "ExponentPushToken[carol]",
		"registrationToken": token,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	user := f.users.users[f.uid]
	assert.True(t, user.Activated)
	assert.Equal(t, f.userKey, user.RSAKey)
	assert.Equal(t, "ExponentPushToken[carol]", user.ExpoPushToken)
}

func TestRegisterRejectsMismatchedToken(t *testing.T) {
	f := newSignupFixture(t)

	otherUID, err := auth.GenerateUID()
	require.NoError(t, err)
	token, err := f.tokens.SignToken(otherUID)
	require.NoError(t, err)

	rec := f.register(t, map[string]string{
		"UID":               f.uid,
		"rsaKey":            f.userKey,
		"expoPushToken":     "ExponentPushToken[carol]",
		"registrationToken": token,
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, f.users.users[f.uid].Activated)
}

func TestRegisterRejectsForgedToken(t *testing.T) {
	f := newSignupFixture(t)
	forged, err := auth.NewRegistrationTokenService("other-secret").SignToken(f.uid)
	require.NoError(t, err)

	rec := f.register(t, map[string]string{
		"UID":               f.uid,
		"rsaKey":            f.userKey,
		"expoPushToken":     "ExponentPushToken[carol]",
		"registrationToken": forged,
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegisterRejectsUnparsableKey(t *testing.T) {
	f := newSignupFixture(t)
	token, err := f.tokens.SignToken(f.uid)
	require.NoError(t, err)

	rec := f.register(t, map[string]string{
		"UID":               f.uid,
		"rsaKey":            "not a pem key",
		"expoPushToken":     "ExponentPushToken[carol]",
		"registrationToken": token,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, f.users.users[f.uid].Activated)
}

func TestRegisterRejectsSecondActivation(t *testing.T) {
	f := newSignupFixture(t)
	token, err := f.tokens.SignToken(f.uid)
	require.NoError(t, err)

	body := map[string]string{
		"UID":               f.uid,
		"rsaKey":            f.userKey,
		"expoPushToken":     "ExponentPushToken[carol]",
		"registrationToken": token,
	}
	require.Equal(t, http.StatusOK, f.register(t, body).Code)
	assert.Equal(t, http.StatusConflict, f.register(t, body).Code)
}
