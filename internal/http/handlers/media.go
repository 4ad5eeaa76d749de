package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pager/server/internal/media"
	"github.com/pager/server/internal/middleware"
	"github.com/pager/server/internal/repo"
	"github.com/pager/server/internal/transport"
)

// maxUploadSize bounds an image upload body (10 MB)
const maxUploadSize = 10 * 1000 * 1000

// MediaHandler serves image retrieval and upload
type MediaHandler struct {
	images repo.ImageRepo
	store  *media.Store
	live   *transport.Server
}

// NewMediaHandler creates a new media handler
func NewMediaHandler(images repo.ImageRepo, store *media.Store, live *transport.Server) *MediaHandler {
	return &MediaHandler{images: images, store: store, live: live}
}

// HandleGetImage handles GET /api/v1/media/image/{resourceID}/{sessionToken}.
// The session token must belong to a currently live connection.
func (h *MediaHandler) HandleGetImage(w http.ResponseWriter, r *http.Request) {
	resourceID := chi.URLParam(r, "resourceID")
	sessionToken := chi.URLParam(r, "sessionToken")

	image, err := h.images.GetByResourceID(r.Context(), resourceID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			log.Printf("[MEDIA] User attempted to request an image that does not have a record on the server.")
			http.Error(w, "Not found!", http.StatusNotFound)
			return
		}
		http.Error(w, "Internal server error.", http.StatusInternalServerError)
		return
	}

	if !h.live.SessionLive(sessionToken) {
		log.Printf("[MEDIA] User attempted to request an image with an invalid session token.")
		http.Error(w, "Invalid session token!", http.StatusUnauthorized)
		return
	}

	// Records predate the intake validation only in theory, but the stored
	// extension still feeds a file path; never serve one that fails the check
	if !media.ValidExtension(image.Extension) {
		log.Printf("[MEDIA] Refusing to serve image record with invalid extension %q.", image.Extension)
		http.Error(w, "Not found!", http.StatusNotFound)
		return
	}

	log.Printf("[MEDIA] User successfully requested an image.")
	http.ServeFile(w, r, h.store.Path(image.ResourceID, image.Extension))
}

// uploadContents are the authenticated contents of an upload payload
type uploadContents struct {
	ChatID string `json:"chatId"`
}

// HandleUpload handles POST /api/v1/media/image/upload. Authentication comes
// from the signed payload in the "authentication" header (HeaderAuth runs
// before this); the body is a multipart form with the image under "image".
// A stored image is only usable in a message through this authenticated
// path, never directly from the live event surface.
func (h *MediaHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	verdict, ok := middleware.GetVerdict(r.Context())
	if !ok {
		http.Error(w, "Page must be properly authenticated", http.StatusUnauthorized)
		return
	}

	var contents uploadContents
	if err := json.Unmarshal(verdict.Contents, &contents); err != nil {
		http.Error(w, "Invalid upload contents.", http.StatusBadRequest)
		return
	}
	chatID, err := uuid.Parse(contents.ChatID)
	if err != nil || !verdict.Group.HasChat(chatID) {
		log.Printf("[MEDIA] Upload failed; no chat access.")
		http.Error(w, "You do not have access to this chat!", http.StatusForbidden)
		return
	}

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		http.Error(w, "Invalid upload body.", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		http.Error(w, "Missing image file.", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadSize))
	if err != nil {
		http.Error(w, "Failed to read image file.", http.StatusBadRequest)
		return
	}

	parts := strings.Split(header.Filename, ".")
	extension := parts[len(parts)-1]
	if !media.ValidExtension(extension) {
		log.Printf("[MEDIA] Upload rejected; invalid extension %q.", extension)
		http.Error(w, "Invalid image file.", http.StatusBadRequest)
		return
	}

	// An upload is only delivered as a message through the uploader's live
	// session; without one there is nothing to attach the image to
	client := h.live.Client(verdict.User.ID)
	if client == nil {
		http.Error(w, "No live session.", http.StatusConflict)
		return
	}

	// Same dedup rule as the live image path: byte-identical content reuses
	// the stored image
	contentHash := media.ContentHash(data)
	record, err := h.images.GetByContentHash(r.Context(), contentHash)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			http.Error(w, "Internal server error.", http.StatusInternalServerError)
			return
		}

		descaled, err := media.Descale(data)
		if err != nil {
			log.Printf("[MEDIA] Failed to descale uploaded image: %v", err)
			http.Error(w, "Invalid image file.", http.StatusBadRequest)
			return
		}

		resourceID := uuid.NewString()
		if err := h.store.Write(resourceID, extension, descaled); err != nil {
			log.Printf("[MEDIA] Error writing file at path %q: %v", h.store.Path(resourceID, extension), err)
			http.Error(w, "Internal server error.", http.StatusInternalServerError)
			return
		}

		record, err = h.images.Create(r.Context(), verdict.User.ID, resourceID, extension, contentHash)
		if err != nil {
			_ = h.store.Remove(resourceID, extension)
			log.Printf("[MEDIA] Failed to create image record: %v", err)
			http.Error(w, "Internal server error.", http.StatusInternalServerError)
			return
		}
	}

	msgReq := transport.MessageCreateRequest{}
	msgReq.Contents.Chat = chatID.String()
	msgReq.Contents.Text = ""
	client.CreateMessage(r.Context(), msgReq, &record)

	log.Printf("[MEDIA] %s %s", record.ResourceID, verdict.User.ID)
	_, _ = w.Write([]byte("Success"))
}
