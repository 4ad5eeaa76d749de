package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/pager/server/internal/middleware"
	"github.com/pager/server/internal/notify"
	"github.com/pager/server/internal/repo"
)

// PagerHandler serves the urgent-page endpoint: a signed request that pushes
// a message to every member of a named group
type PagerHandler struct {
	users  repo.UserRepo
	groups repo.GroupRepo
	pusher notify.Pusher
}

// NewPagerHandler creates a new pager handler
func NewPagerHandler(users repo.UserRepo, groups repo.GroupRepo, pusher notify.Pusher) *PagerHandler {
	return &PagerHandler{users: users, groups: groups, pusher: pusher}
}

// pageContents are the authenticated contents of a page payload
type pageContents struct {
	Message string `json:"message"`
	Group   string `json:"group"`
}

// HandlePage handles POST /api/v1/page (behind PayloadAuth)
func (h *PagerHandler) HandlePage(w http.ResponseWriter, r *http.Request) {
	log.Printf("[SERVER] A client sent a page request.")

	verdict, ok := middleware.GetVerdict(r.Context())
	if !ok {
		http.Error(w, "Page must be properly authenticated", http.StatusUnauthorized)
		return
	}

	var contents pageContents
	if err := json.Unmarshal(verdict.Contents, &contents); err != nil {
		respondFailure(w, http.StatusNotFound, "Page must contain a message")
		return
	}
	if contents.Message == "" {
		respondFailure(w, http.StatusNotFound, "Page must contain a message")
		return
	}
	if contents.Group == "" {
		respondFailure(w, http.StatusNotFound, "Page must contain a group")
		return
	}

	group, err := h.groups.GetByName(r.Context(), contents.Group)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			respondFailure(w, http.StatusNotFound, "Page referenced an invalid group")
			return
		}
		respondFailure(w, http.StatusInternalServerError, "Page failed")
		return
	}

	message := strings.TrimSpace(contents.Message)

	members, err := h.users.ListByGroup(r.Context(), group.ID)
	if err != nil {
		respondFailure(w, http.StatusInternalServerError, "Page failed")
		return
	}
	for _, member := range members {
		if err := notify.UrgentNotification(r.Context(), h.pusher, member.ExpoPushToken, message); err != nil {
			log.Printf("[SERVER] Failed to page user %q: %v", member.Name, err)
		}
	}

	log.Printf("[SERVER] A page was sent to users in the %s with contents %q by user %q (UID: %s).",
		group.Name, message, verdict.User.Name, verdict.User.ID)
	respondJSON(w, http.StatusOK, failureResponse{Failed: false, Message: "Success!"})
}
