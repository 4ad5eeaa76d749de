package transport

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pager/server/internal/auth"
	"github.com/pager/server/internal/media"
	"github.com/pager/server/internal/model"
	"github.com/pager/server/internal/notify"
	"github.com/pager/server/internal/repo"
)

// maxMessageSize caps an inbound frame (10 MB, matching the transport the
// clients were built against)
const maxMessageSize = 10 * 1000 * 1000

// Deps are the collaborators a Server needs to run client sessions
type Deps struct {
	Verifier *auth.Verifier
	Users    repo.UserRepo
	Groups   repo.GroupRepo
	Chats    repo.ChatRepo
	Images   repo.ImageRepo
	Throttle *notify.Throttle
	Pusher   notify.Pusher
	Media    *media.Store

	// MediaBaseURL is the public base ("http://host:port") used to build
	// image retrieval URLs sent to clients
	MediaBaseURL string
	// AdminGroupName marks which group gets the admin flag at login
	AdminGroupName string
}

// Server owns the live-connection registry: which user is connected where,
// and which session tokens are currently live. All map mutation happens
// here, under one lock.
type Server struct {
	deps     Deps
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	clients  map[uuid.UUID]*Client
	sessions map[string]uuid.UUID
}

// NewServer creates a connection registry over the given collaborators
func NewServer(deps Deps) *Server {
	return &Server{
		deps: deps,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The app authenticates via signed payloads, not origins
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients:  make(map[uuid.UUID]*Client),
		sessions: make(map[string]uuid.UUID),
	}
}

// HandleWS upgrades an HTTP request and runs the connection's event loop.
// One goroutine per connection; the loop exits on read error (disconnect).
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[SERVER] Failed to upgrade connection: %v", err)
		return
	}
	ws.SetReadLimit(maxMessageSize)
	log.Printf("[SERVER] New connection to server.")

	conn := newWSConn(ws)
	ctx := r.Context()

	var client *Client
	defer func() {
		if client != nil {
			s.handleDisconnect(client)
		}
		_ = ws.Close()
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Printf("[SERVER] Dropping unparseable frame: %v", err)
			continue
		}
		client = s.dispatch(ctx, conn, client, env)
	}
}

// dispatch routes one inbound event. It returns the bound client, which
// changes whenever a status:online succeeds on this connection.
func (s *Server) dispatch(ctx context.Context, conn Conn, client *Client, env Envelope) *Client {
	if env.Event == EventStatusOnline {
		var payload auth.Payload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			_ = conn.Emit(EventAuthFailureOnline, "Malformed authentication payload.")
			return client
		}

		verdict := s.deps.Verifier.Verify(ctx, payload)
		if verdict.Failed {
			_ = conn.Emit(EventAuthFailureOnline, verdict.Message+".")
			return client
		}
		// Re-authenticating over a live connection releases the prior
		// binding; the registry must not keep the old user resolving to a
		// connection that now belongs to someone else
		if client != nil {
			s.handleDisconnect(client)
		}
		return s.Admit(ctx, conn, *verdict.User, *verdict.Group)
	}

	if client == nil {
		// Session-scoped events before admission have nowhere to go
		log.Printf("[SERVER] Ignoring %s event from unauthenticated connection.", env.Event)
		return nil
	}

	switch env.Event {
	case EventChatlistGet:
		var req ChatlistRequest
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			_ = conn.Emit(EventAuthFailure, "Invalid session token.")
			return client
		}
		client.GetChatlist(ctx, req)
	case EventMessageCreate:
		var req MessageCreateRequest
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			_ = conn.Emit(EventMessageSendFailure, "The message data is invalid!")
			return client
		}
		client.CreateMessage(ctx, req, nil)
	case EventImageMessageCreate:
		var req ImageMessageCreateRequest
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			_ = conn.Emit(EventMessageSendFailure, "The message data is invalid!")
			return client
		}
		client.CreateImageMessage(ctx, req)
	case EventChatUsersStatusGet:
		var req ChatStatusRequest
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			_ = conn.Emit(EventChatUsersStatusFailure, "The request data is invalid!")
			return client
		}
		client.GetChatUsersStatus(ctx, req)
	case EventChatOnlineStatusGet:
		var req ChatStatusRequest
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			_ = conn.Emit(EventChatOnlineStatusFailure, "The request data is invalid!")
			return client
		}
		client.GetChatOnlineStatus(ctx, req)
	default:
		log.Printf("[SERVER] Ignoring unknown event %q.", env.Event)
	}
	return client
}

// Admit mints a session token, binds a client session, registers it and runs
// the post-login synchronization. A prior entry for the same user is
// superseded: its connection stays open but can no longer resolve through
// the registry.
func (s *Server) Admit(ctx context.Context, conn Conn, user model.User, group model.Group) *Client {
	sessionToken := uuid.NewString()
	client := newClient(s, conn, user, group, sessionToken)

	s.mu.Lock()
	if prior, ok := s.clients[user.ID]; ok {
		delete(s.sessions, prior.sessionToken)
	}
	s.clients[user.ID] = client
	s.sessions[sessionToken] = user.ID
	s.mu.Unlock()

	if err := client.Update(ctx); err != nil {
		log.Printf("[SERVER] Post-login update failed for user %q (UID: %s): %v", user.Name, user.ID, err)
	}
	return client
}

// Client returns the live client for a user, or nil when the user is offline
func (s *Server) Client(userID uuid.UUID) *Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clients[userID]
}

// SessionLive reports whether the session token belongs to a live connection
func (s *Server) SessionLive(sessionToken string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[sessionToken]
	return ok
}

// Evict forcibly disconnects a user's live session. Returns whether a live
// entry existed. Used for administrative lockout.
func (s *Server) Evict(userID uuid.UUID) bool {
	s.mu.Lock()
	client, ok := s.clients[userID]
	if ok {
		delete(s.clients, userID)
		delete(s.sessions, client.sessionToken)
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	_ = client.conn.Close()
	return true
}

// handleDisconnect stamps the user's logout time and removes the registry
// entry. Best effort: a failure to stamp must not prevent cleanup, and a
// disconnect of a superseded connection must not evict its successor.
func (s *Server) handleDisconnect(client *Client) {
	log.Printf("[SERVER] Client %q disconnected from the server.", client.user.Name)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.deps.Users.SetLastLogout(ctx, client.user.ID, time.Now()); err != nil {
		log.Printf("[SERVER] Failed to stamp logout for user %q: %v", client.user.Name, err)
	}

	s.mu.Lock()
	if current, ok := s.clients[client.user.ID]; ok && current == client {
		delete(s.clients, client.user.ID)
		delete(s.sessions, client.sessionToken)
	}
	s.mu.Unlock()
}
