package handlers

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/pager/server/internal/middleware"
	"github.com/pager/server/internal/notify"
	"github.com/pager/server/internal/repo"
	"github.com/pager/server/internal/transport"
)

// LockoutHandler serves the self-lockout endpoint: the authenticated user is
// locked, their live session evicted and the admin group paged
type LockoutHandler struct {
	users          repo.UserRepo
	groups         repo.GroupRepo
	pusher         notify.Pusher
	live           *transport.Server
	adminGroupName string
}

// NewLockoutHandler creates a new lockout handler
func NewLockoutHandler(users repo.UserRepo, groups repo.GroupRepo, pusher notify.Pusher, live *transport.Server, adminGroupName string) *LockoutHandler {
	return &LockoutHandler{
		users:          users,
		groups:         groups,
		pusher:         pusher,
		live:           live,
		adminGroupName: adminGroupName,
	}
}

// HandleLockout handles POST /api/v1/lockout (behind PayloadAuth)
func (h *LockoutHandler) HandleLockout(w http.ResponseWriter, r *http.Request) {
	log.Printf("[SERVER] A client sent a lockout request.")

	verdict, ok := middleware.GetVerdict(r.Context())
	if !ok {
		http.Error(w, "Page must be properly authenticated", http.StatusUnauthorized)
		return
	}
	user := verdict.User

	if err := h.users.SetLocked(r.Context(), user.ID, true); err != nil {
		log.Printf("[SERVER] Failed to lock user %q (UID: %s): %v", user.Name, user.ID, err)
		respondFailure(w, http.StatusInternalServerError, "Lockout failed")
		return
	}

	h.live.Evict(user.ID)

	// Page the admin group about the lockout; failures only log
	if adminGroup, err := h.groups.GetByName(r.Context(), h.adminGroupName); err == nil {
		admins, err := h.users.ListByGroup(r.Context(), adminGroup.ID)
		if err != nil {
			log.Printf("[SERVER] Failed to list admin group members: %v", err)
		}
		for _, admin := range admins {
			body := fmt.Sprintf("User %s was locked out automatically", user.Name)
			if err := h.pusher.Push(r.Context(), admin.ExpoPushToken, "User locked out", body); err != nil {
				log.Printf("[SERVER] Failed to notify admin %q of lockout: %v", admin.Name, err)
			}
		}
	} else if !errors.Is(err, repo.ErrNotFound) {
		log.Printf("[SERVER] Failed to load admin group: %v", err)
	}

	log.Printf("[SERVER] Successfully self-locked the account for user %q (UID: %s).", user.Name, user.ID)
	respondJSON(w, http.StatusOK, failureResponse{Failed: false, Message: "Successful"})
}
