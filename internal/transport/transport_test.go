package transport

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pager/server/internal/auth"
	"github.com/pager/server/internal/media"
	"github.com/pager/server/internal/model"
	"github.com/pager/server/internal/notify"
	"github.com/pager/server/internal/repo"
	"github.com/stretchr/testify/require"
)

// fakeConn records emitted events in order
type fakeConn struct {
	mu     sync.Mutex
	events []fakeEvent
	closed bool
}

type fakeEvent struct {
	Event   string
	Payload any
}

func (c *fakeConn) Emit(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, fakeEvent{Event: event, Payload: payload})
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) named(event string) []fakeEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []fakeEvent
	for _, e := range c.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

// fakePusher records dispatched push notifications
type fakePusher struct {
	mu     sync.Mutex
	pushes []string
}

func (p *fakePusher) Push(_ context.Context, token, title, body string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushes = append(p.pushes, fmt.Sprintf("%s|%s|%s", token, title, body))
	return nil
}

func (p *fakePusher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pushes)
}

// memStore is a shared in-memory backing for the fake repositories
type memStore struct {
	mu          sync.Mutex
	users       map[uuid.UUID]model.User
	groups      map[uuid.UUID]model.Group
	chats       map[uuid.UUID]model.Chat
	messages    []model.Message
	images      map[uuid.UUID]model.Image
	identifiers map[string]uuid.UUID
}

func newMemStore() *memStore {
	return &memStore{
		users:       make(map[uuid.UUID]model.User),
		groups:      make(map[uuid.UUID]model.Group),
		chats:       make(map[uuid.UUID]model.Chat),
		images:      make(map[uuid.UUID]model.Image),
		identifiers: make(map[string]uuid.UUID),
	}
}

func notFound(what string) error {
	return fmt.Errorf("%s not found: %w", what, repo.ErrNotFound)
}

type memUserRepo struct{ s *memStore }

func (r *memUserRepo) GetByID(_ context.Context, id uuid.UUID) (model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	user, ok := r.s.users[id]
	if !ok {
		return model.User{}, notFound("user")
	}
	return user, nil
}

func (r *memUserRepo) GetByRSAKey(_ context.Context, rsaKey string) (model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if rsaKey == "" {
		return model.User{}, notFound("user")
	}
	for _, user := range r.s.users {
		if user.RSAKey == rsaKey {
			return user, nil
		}
	}
	return model.User{}, notFound("user")
}

func (r *memUserRepo) GetByUID(_ context.Context, uid string) (model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, user := range r.s.users {
		if user.UID == uid {
			return user, nil
		}
	}
	return model.User{}, notFound("user")
}

func (r *memUserRepo) ListByGroup(_ context.Context, groupID uuid.UUID) ([]model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.User
	for _, user := range r.s.users {
		if user.GroupID == groupID {
			out = append(out, user)
		}
	}
	return out, nil
}

func (r *memUserRepo) ListWithChatAccess(_ context.Context, chatID uuid.UUID) ([]model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.User
	for _, user := range r.s.users {
		group, ok := r.s.groups[user.GroupID]
		if ok && group.HasChat(chatID) {
			out = append(out, user)
		}
	}
	return out, nil
}

func (r *memUserRepo) Create(_ context.Context, name, rank string, groupID uuid.UUID, uid string) (model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	user := model.User{ID: uuid.New(), Name: name, Rank: rank, GroupID: groupID, UID: uid}
	r.s.users[user.ID] = user
	return user, nil
}

func (r *memUserRepo) Activate(_ context.Context, id uuid.UUID, rsaKey, expoPushToken string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	user, ok := r.s.users[id]
	if !ok {
		return notFound("user")
	}
	user.RSAKey = rsaKey
	user.ExpoPushToken = expoPushToken
	user.Activated = true
	user.Locked = false
	r.s.users[id] = user
	return nil
}

func (r *memUserRepo) SetLocked(_ context.Context, id uuid.UUID, locked bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	user, ok := r.s.users[id]
	if !ok {
		return notFound("user")
	}
	user.Locked = locked
	r.s.users[id] = user
	return nil
}

func (r *memUserRepo) SetLastLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	user, ok := r.s.users[id]
	if !ok {
		return notFound("user")
	}
	user.LastLogin = &at
	r.s.users[id] = user
	return nil
}

func (r *memUserRepo) SetLastLogout(_ context.Context, id uuid.UUID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	user, ok := r.s.users[id]
	if !ok {
		return notFound("user")
	}
	user.LastLogout = &at
	r.s.users[id] = user
	return nil
}

type memGroupRepo struct{ s *memStore }

func (r *memGroupRepo) GetByID(_ context.Context, id uuid.UUID) (model.Group, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	group, ok := r.s.groups[id]
	if !ok {
		return model.Group{}, notFound("group")
	}
	return group, nil
}

func (r *memGroupRepo) GetByName(_ context.Context, name string) (model.Group, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, group := range r.s.groups {
		if group.Name == name {
			return group, nil
		}
	}
	return model.Group{}, notFound("group")
}

func (r *memGroupRepo) GrantChat(_ context.Context, groupID, chatID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	group, ok := r.s.groups[groupID]
	if !ok {
		return notFound("group")
	}
	if !group.HasChat(chatID) {
		group.Chats = append(group.Chats, chatID)
		r.s.groups[groupID] = group
	}
	return nil
}

func (r *memGroupRepo) RevokeChat(_ context.Context, groupID, chatID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	group, ok := r.s.groups[groupID]
	if !ok {
		return notFound("group")
	}
	var chats []uuid.UUID
	for _, id := range group.Chats {
		if id != chatID {
			chats = append(chats, id)
		}
	}
	group.Chats = chats
	r.s.groups[groupID] = group
	return nil
}

type memChatRepo struct{ s *memStore }

func (r *memChatRepo) GetByID(_ context.Context, id uuid.UUID) (model.Chat, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	chat, ok := r.s.chats[id]
	if !ok {
		return model.Chat{}, notFound("chat")
	}
	return chat, nil
}

func (r *memChatRepo) Create(_ context.Context, title string) (model.Chat, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	chat := model.Chat{ID: uuid.New(), Title: title}
	r.s.chats[chat.ID] = chat
	return chat, nil
}

func (r *memChatRepo) AppendMessage(_ context.Context, msg model.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.messages = append(r.s.messages, msg)
	return nil
}

func (r *memChatRepo) LastMessages(_ context.Context, chatID uuid.UUID, n int) ([]model.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.Message
	for i := len(r.s.messages) - 1; i >= 0 && len(out) < n; i-- {
		if r.s.messages[i].ChatID == chatID {
			out = append(out, r.s.messages[i])
		}
	}
	return out, nil
}

func (r *memChatRepo) CountMessages(_ context.Context, chatID uuid.UUID) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	count := 0
	for _, msg := range r.s.messages {
		if msg.ChatID == chatID {
			count++
		}
	}
	return count, nil
}

type memImageRepo struct{ s *memStore }

func (r *memImageRepo) GetByID(_ context.Context, id uuid.UUID) (model.Image, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	image, ok := r.s.images[id]
	if !ok {
		return model.Image{}, notFound("image")
	}
	return image, nil
}

func (r *memImageRepo) GetByResourceID(_ context.Context, resourceID string) (model.Image, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, image := range r.s.images {
		if image.ResourceID == resourceID {
			return image, nil
		}
	}
	return model.Image{}, notFound("image")
}

func (r *memImageRepo) GetByContentHash(_ context.Context, contentHash string) (model.Image, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, image := range r.s.images {
		if image.ContentHash == contentHash {
			return image, nil
		}
	}
	return model.Image{}, notFound("image")
}

func (r *memImageRepo) Create(_ context.Context, createdBy uuid.UUID, resourceID, extension, contentHash string) (model.Image, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	image := model.Image{
		ID:          uuid.New(),
		CreatedAt:   time.Now(),
		CreatedBy:   createdBy,
		ResourceID:  resourceID,
		Extension:   extension,
		ContentHash: contentHash,
	}
	r.s.images[image.ID] = image
	return image, nil
}

type memIdentifierRepo struct{ s *memStore }

func (r *memIdentifierRepo) Claim(_ context.Context, claimedBy uuid.UUID, identifier string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.identifiers[identifier]; ok {
		return repo.ErrIdentifierUsed
	}
	r.s.identifiers[identifier] = claimedBy
	return nil
}

// fixture wires a Server over the in-memory repositories
type fixture struct {
	store  *memStore
	server *Server
	pusher *fakePusher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := newMemStore()
	pusher := &fakePusher{}
	throttle := notify.NewThrottle()
	t.Cleanup(throttle.Close)

	mediaStore, err := media.NewStore(t.TempDir())
	require.NoError(t, err)

	users := &memUserRepo{s: store}
	groups := &memGroupRepo{s: store}
	verifier := auth.NewVerifier(users, groups, &memIdentifierRepo{s: store})

	server := NewServer(Deps{
		Verifier:       verifier,
		Users:          users,
		Groups:         groups,
		Chats:          &memChatRepo{s: store},
		Images:         &memImageRepo{s: store},
		Throttle:       throttle,
		Pusher:         pusher,
		Media:          mediaStore,
		MediaBaseURL:   "http://test.local",
		AdminGroupName: "Admin Group Group",
	})

	return &fixture{store: store, server: server, pusher: pusher}
}

func (f *fixture) addGroup(name string, chats ...uuid.UUID) model.Group {
	group := model.Group{ID: uuid.New(), Name: name, Chats: chats}
	f.store.mu.Lock()
	f.store.groups[group.ID] = group
	f.store.mu.Unlock()
	return group
}

func (f *fixture) addChat(title string) model.Chat {
	chat := model.Chat{ID: uuid.New(), Title: title}
	f.store.mu.Lock()
	f.store.chats[chat.ID] = chat
	f.store.mu.Unlock()
	return chat
}

func (f *fixture) addUser(name string, group model.Group, pushToken string) model.User {
	user := model.User{
		ID:            uuid.New(),
		Name:          name,
		GroupID:       group.ID,
		ExpoPushToken: pushToken,
		Activated:     true,
	}
	f.store.mu.Lock()
	f.store.users[user.ID] = user
	f.store.mu.Unlock()
	return user
}

// addKeyedUser adds a user with a bound RSA key and returns the private half
// for building signed payloads
func (f *fixture) addKeyedUser(t *testing.T, name string, group model.Group) (model.User, *rsa.PrivateKey) {
	t.Helper()

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pemKey, err := auth.EncodePublicKey(&priv.PublicKey)
	require.NoError(t, err)

	user := f.addUser(name, group, "")
	f.store.mu.Lock()
	stored := f.store.users[user.ID]
	stored.RSAKey = pemKey
	f.store.users[user.ID] = stored
	f.store.mu.Unlock()
	user.RSAKey = pemKey
	return user, priv
}

// onlineEnvelope builds a signed status:online frame for the user
func onlineEnvelope(t *testing.T, user model.User, priv *rsa.PrivateKey) Envelope {
	t.Helper()

	contents, err := json.Marshal(map[string]string{"requestIdentifier": uuid.NewString()})
	require.NoError(t, err)
	signature, err := auth.Sign(priv, contents)
	require.NoError(t, err)
	payload, err := json.Marshal(auth.Payload{
		AuthToken: user.RSAKey,
		Signature: signature,
		Contents:  contents,
	})
	require.NoError(t, err)
	return Envelope{Event: EventStatusOnline, Payload: payload}
}

func (f *fixture) admit(t *testing.T, user model.User, group model.Group) (*Client, *fakeConn) {
	t.Helper()
	conn := &fakeConn{}
	client := f.server.Admit(context.Background(), conn, user, group)
	require.NotNil(t, client)
	return client, conn
}
