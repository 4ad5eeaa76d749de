package tests

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"

	"github.com/pager/server/internal/auth"
	"github.com/pager/server/internal/config"
	"github.com/pager/server/internal/db"
	httphandler "github.com/pager/server/internal/http"
	"github.com/pager/server/internal/http/handlers"
	"github.com/pager/server/internal/media"
	"github.com/pager/server/internal/model"
	"github.com/pager/server/internal/notify"
	"github.com/pager/server/internal/repo"
	"github.com/pager/server/internal/transport"

	_ "github.com/lib/pq"
)

const (
	// MigrationDir is the path to migrations relative to the module root.
	MigrationDir = "internal/db/migrations"
	// MigrationDirFromInternalTests is used when go test ./... runs tests from internal/tests.
	MigrationDirFromInternalTests = "../../internal/db/migrations"
)

// ResolveMigrationDir returns the first existing directory of:
//   - internal/db/migrations (CWD=module root)
//   - ../../internal/db/migrations (CWD=internal/tests, e.g. go test ./...)
//
// Returns empty string if none exists.
func ResolveMigrationDir() string {
	for _, dir := range []string{MigrationDir, MigrationDirFromInternalTests} {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			abs, _ := filepath.Abs(dir)
			return abs
		}
	}
	return ""
}

// RunMigrations runs goose Up using the resolved migration directory.
func RunMigrations(database *sql.DB) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	dir := ResolveMigrationDir()
	if dir == "" {
		return fmt.Errorf("migrations directory not found (tried %q, %q); run tests from the module root", MigrationDir, MigrationDirFromInternalTests)
	}
	if err := goose.Up(database, dir); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// TruncateAll truncates every application table for a clean test state.
func TruncateAll(ctx context.Context, database *sql.DB) error {
	_, err := database.ExecContext(ctx,
		"TRUNCATE TABLE request_identifiers, images, messages, users, group_chats, chats, groups RESTART IDENTITY CASCADE")
	if err != nil {
		return fmt.Errorf("truncate tables: %w", err)
	}
	return nil
}

// pushRecorder stands in for the Expo endpoint and records every push
type pushRecorder struct {
	mu     sync.Mutex
	pushes []recordedPush
}

type recordedPush struct {
	To    string `json:"to"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

func (p *pushRecorder) record(push recordedPush) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushes = append(p.pushes, push)
}

func (p *pushRecorder) all() []recordedPush {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]recordedPush, len(p.pushes))
	copy(out, p.pushes)
	return out
}

func (p *pushRecorder) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushes = nil
}

// pushEndpoint serves as a stand-in for the Expo push API
func pushEndpoint(recorder *pushRecorder) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var push recordedPush
		if err := json.NewDecoder(r.Body).Decode(&push); err == nil {
			recorder.record(push)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"status":"ok"}}`))
	})
}

// testServer holds the full wired stack for integration tests
type testServer struct {
	Server *httptest.Server
	DB     *sql.DB

	Users  repo.UserRepo
	Groups repo.GroupRepo
	Chats  repo.ChatRepo
	Live   *transport.Server
	Pushes *pushRecorder
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg, err := config.Load()
	require.NoError(t, err, "config load must succeed for integration test")

	ctx := context.Background()
	database, err := db.Open(ctx, cfg.DatabaseURL)
	require.NoError(t, err, "database open must succeed; check DATABASE_URL and that test DB exists")
	t.Cleanup(func() { database.Close() })

	err = RunMigrations(database)
	require.NoError(t, err, "migrations must run successfully")

	recorder := &pushRecorder{}
	pushServer := httptest.NewServer(pushEndpoint(recorder))
	t.Cleanup(pushServer.Close)

	userRepo := repo.NewUserRepo(database)
	groupRepo := repo.NewGroupRepo(database)
	chatRepo := repo.NewChatRepo(database)
	imageRepo := repo.NewImageRepo(database)
	identifierRepo := repo.NewIdentifierRepo(database)

	verifier := auth.NewVerifier(userRepo, groupRepo, identifierRepo)
	registrationTokens := auth.NewRegistrationTokenService(cfg.JWTSecret)
	throttle := notify.NewThrottle()
	t.Cleanup(throttle.Close)
	pusher := notify.NewExpoPusher(pushServer.URL)

	mediaStore, err := media.NewStore(t.TempDir())
	require.NoError(t, err)

	live := transport.NewServer(transport.Deps{
		Verifier:       verifier,
		Users:          userRepo,
		Groups:         groupRepo,
		Chats:          chatRepo,
		Images:         imageRepo,
		Throttle:       throttle,
		Pusher:         pusher,
		Media:          mediaStore,
		MediaBaseURL:   cfg.ServerURL,
		AdminGroupName: cfg.AdminGroupName,
	})

	signupHandler := handlers.NewSignupHandler(userRepo, registrationTokens)
	mediaHandler := handlers.NewMediaHandler(imageRepo, mediaStore, live)
	pagerHandler := handlers.NewPagerHandler(userRepo, groupRepo, pusher)
	lockoutHandler := handlers.NewLockoutHandler(userRepo, groupRepo, pusher, live, cfg.AdminGroupName)

	router := httphandler.NewRouter(verifier, live, signupHandler, mediaHandler, pagerHandler, lockoutHandler)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testServer{
		Server: server,
		DB:     database,
		Users:  userRepo,
		Groups: groupRepo,
		Chats:  chatRepo,
		Live:   live,
		Pushes: recorder,
	}
}

func (s *testServer) BaseURL() string { return s.Server.URL }

func (s *testServer) Truncate(t *testing.T) {
	t.Helper()
	require.NoError(t, TruncateAll(context.Background(), s.DB), "truncate tables")
	s.Pushes.reset()
}

// CreateGroup inserts a group row directly; groups are provisioned
// out of band in production.
func (s *testServer) CreateGroup(t *testing.T, name string) model.Group {
	t.Helper()
	id := uuid.New()
	_, err := s.DB.Exec("INSERT INTO groups (id, name) VALUES ($1, $2)", id, name)
	require.NoError(t, err)
	return model.Group{ID: id, Name: name}
}

// ProvisionUser creates a not-yet-activated user with a fresh UID and an RSA
// key pair the test holds the private half of.
func (s *testServer) ProvisionUser(t *testing.T, name string, group model.Group) testUser {
	t.Helper()

	uid, err := auth.GenerateUID()
	require.NoError(t, err)

	user, err := s.Users.Create(context.Background(), name, "Sgt", group.ID, uid)
	require.NoError(t, err)

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pemKey, err := auth.EncodePublicKey(&priv.PublicKey)
	require.NoError(t, err)

	return testUser{User: user, Group: group, Key: priv, PEMKey: pemKey}
}

// testUser bundles a provisioned user with the signing key the device holds
type testUser struct {
	User   model.User
	Group  model.Group
	Key    *rsa.PrivateKey
	PEMKey string
}

// SignedPayload builds an authenticated payload over the given contents,
// injecting a fresh request identifier.
func (u testUser) SignedPayload(t *testing.T, contents map[string]any) map[string]any {
	t.Helper()

	if _, ok := contents["requestIdentifier"]; !ok {
		contents["requestIdentifier"] = uuid.NewString()
	}
	raw, err := json.Marshal(contents)
	require.NoError(t, err)

	signature, err := auth.Sign(u.Key, raw)
	require.NoError(t, err)

	return map[string]any{
		"authToken": u.PEMKey,
		"signature": signature,
		"contents":  json.RawMessage(raw),
	}
}
