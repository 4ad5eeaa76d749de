package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/pager/server/internal/auth"
	"github.com/pager/server/internal/repo"
)

// SignupHandler serves the one-time registration exchange that activates a
// provisioned user and binds their public key
type SignupHandler struct {
	users  repo.UserRepo
	tokens *auth.RegistrationTokenService
}

// NewSignupHandler creates a new signup handler
func NewSignupHandler(users repo.UserRepo, tokens *auth.RegistrationTokenService) *SignupHandler {
	return &SignupHandler{users: users, tokens: tokens}
}

// checkUIDResponse is the JSON response for a successful UID check
type checkUIDResponse struct {
	Failed            bool   `json:"failed"`
	RegistrationToken string `json:"registrationToken"`
}

// HandleCheckUID handles GET /api/v1/check_uid/{uid}. A valid, not yet
// activated UID yields a short-lived registration token for the register call.
func (h *SignupHandler) HandleCheckUID(w http.ResponseWriter, r *http.Request) {
	log.Printf("[SERVER] A client sent a UID check request.")
	uid := strings.TrimSpace(chi.URLParam(r, "uid"))

	if len(uid) != auth.UIDLength {
		respondFailure(w, http.StatusBadRequest, "")
		return
	}

	user, err := h.users.GetByUID(r.Context(), uid)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			log.Printf("[SERVER] UID check request for UID %s failed.", uid)
			respondFailure(w, http.StatusNotFound, "")
			return
		}
		respondFailure(w, http.StatusInternalServerError, "")
		return
	}

	if user.Activated {
		log.Printf("[SERVER] A client tried to activate the already-activated user %q (UID: %s).", user.Name, user.ID)
		respondFailure(w, http.StatusConflict, "")
		return
	}

	token, err := h.tokens.SignToken(uid)
	if err != nil {
		log.Printf("[SERVER] Failed to sign registration token: %v", err)
		respondFailure(w, http.StatusInternalServerError, "")
		return
	}

	respondJSON(w, http.StatusOK, checkUIDResponse{Failed: false, RegistrationToken: token})
}

// registerRequest is the request body for POST /api/v1/register
type registerRequest struct {
	UID               string `json:"UID"`
	RSAKey            string `json:"rsaKey"`
	ExpoPushToken     string `json:"expoPushToken"`
	RegistrationToken string `json:"registrationToken"`
}

// HandleRegister handles POST /api/v1/register: binds the public key and
// push token to the user and marks it activated. Requires the registration
// token minted by the UID check.
func (h *SignupHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	log.Printf("[SERVER] A client sent a register request.")

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondFailure(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	uid := strings.TrimSpace(req.UID)
	if len(uid) != auth.UIDLength {
		respondFailure(w, http.StatusBadRequest, "Wrong UID length.")
		return
	}

	tokenUID, err := h.tokens.VerifyToken(req.RegistrationToken)
	if err != nil || tokenUID != uid {
		respondFailure(w, http.StatusUnauthorized, "Invalid registration token.")
		return
	}

	user, err := h.users.GetByUID(r.Context(), uid)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			respondFailure(w, http.StatusNotFound, "No associated user.")
			return
		}
		respondFailure(w, http.StatusInternalServerError, "Registration failed.")
		return
	}

	if user.Activated {
		log.Printf("[SERVER] A client tried to activate the already-activated user %q (UID: %s).", user.Name, user.ID)
		respondFailure(w, http.StatusConflict, "User already activated.")
		return
	}

	if req.RSAKey == "" || req.ExpoPushToken == "" {
		respondFailure(w, http.StatusBadRequest, "Invalid RSA key.")
		return
	}
	if _, err := auth.ParsePublicKey(req.RSAKey); err != nil {
		respondFailure(w, http.StatusBadRequest, "Invalid RSA key.")
		return
	}

	if err := h.users.Activate(r.Context(), user.ID, req.RSAKey, req.ExpoPushToken); err != nil {
		log.Printf("[SERVER] Failed to activate user %q (UID: %s): %v", user.Name, user.ID, err)
		respondFailure(w, http.StatusInternalServerError, "Registration failed.")
		return
	}

	log.Printf("[SERVER] A client activated the account %q (UID: %s).", user.Name, user.ID)
	respondJSON(w, http.StatusOK, failureResponse{Failed: false})
}
