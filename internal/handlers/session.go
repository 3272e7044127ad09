package handlers

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/wellnest/apiserver/internal/logging"
	"github.com/wellnest/apiserver/internal/services"
	"github.com/wellnest/apiserver/types"
)

const (
	formFieldImage     = "image"
	maxMultipartMemory = 8 << 20
	// Multipart framing on top of the image itself.
	maxUploadOverhead = 1 << 20
	sniffLen          = 512
)

// SessionHandler provides HTTP handlers for wellness sessions.
type SessionHandler struct {
	sessionService *services.SessionService
	imageService   *services.ImageService
	log            logging.Logger
}

// NewSessionHandler constructs a handler. imageService may be nil when no
// object storage is configured.
func NewSessionHandler(sessionService *services.SessionService, imageService *services.ImageService, log logging.Logger) *SessionHandler {
	if log == nil {
		log = logging.Nop()
	}
	return &SessionHandler{
		sessionService: sessionService,
		imageService:   imageService,
		log:            log.With("handler", "session"),
	}
}

// SessionRouter registers session routes on the given router. Every route
// requires authentication.
func SessionRouter(
	r chi.Router,
	sessionService *services.SessionService,
	imageService *services.ImageService,
	authMiddleware func(http.Handler) http.Handler,
	log logging.Logger,
) {
	handler := NewSessionHandler(sessionService, imageService, log)

	r.Use(authMiddleware)
	r.Get("/get-all-sessions", handler.ListPublished)
	r.Get("/get-session/{sessionID}", handler.GetSession)
	r.Get("/my-sessions", handler.ListMine)
	r.Post("/create", handler.CreateSession)
	r.Patch("/update/{sessionID}", handler.UpdateSession)
	r.Delete("/delete/{sessionID}", handler.DeleteSession)
	r.Post("/like/{sessionID}", handler.ToggleLike)
	if imageService != nil {
		r.Post("/upload-image", handler.UploadImage)
	}
}

func (h *SessionHandler) ListPublished(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.sessionService.ListPublished(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		writeServiceError(w, r, h.log, err, "Server error.")
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (h *SessionHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	sessions, err := h.sessionService.ListMine(r.Context(), caller)
	if err != nil {
		writeServiceError(w, r, h.log, err, "Server error.")
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessionService.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeServiceError(w, r, h.log, err, "Server error.")
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var fields types.SessionFields
	if err := decodeJSON(w, r, &fields); err != nil {
		writeDecodeError(w, err)
		return
	}

	session, err := h.sessionService.Create(r.Context(), caller, fields)
	if err != nil {
		writeServiceError(w, r, h.log, err, "Failed to create session.")
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (h *SessionHandler) UpdateSession(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var patch types.SessionPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeDecodeError(w, err)
		return
	}

	session, err := h.sessionService.Update(r.Context(), caller, chi.URLParam(r, "sessionID"), patch)
	if err != nil {
		writeServiceError(w, r, h.log, err, "Failed to update session.")
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	if err := h.sessionService.Delete(r.Context(), caller, chi.URLParam(r, "sessionID")); err != nil {
		writeServiceError(w, r, h.log, err, "Failed to delete session.")
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Session deleted"})
}

func (h *SessionHandler) ToggleLike(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	res, err := h.sessionService.ToggleLike(r.Context(), caller, chi.URLParam(r, "sessionID"))
	if err != nil {
		writeServiceError(w, r, h.log, err, "Server error.")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// UploadImage accepts a multipart form with a single "image" file. The
// content type is sniffed from the file itself.
func (h *SessionHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, services.MaxImageBytes+maxUploadOverhead)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "Image must be 5 MB or smaller.")
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid multipart form.")
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	file, header, err := r.FormFile(formFieldImage)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Image file is required.")
		return
	}
	defer file.Close()

	if header.Size > services.MaxImageBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "Image must be 5 MB or smaller.")
		return
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Failed to read image.")
		return
	}
	head = head[:n]

	url, err := h.imageService.Upload(r.Context(), caller, services.ImageUpload{
		Filename:    header.Filename,
		ContentType: http.DetectContentType(head),
		Size:        header.Size,
		Body:        io.MultiReader(bytes.NewReader(head), file),
	})
	if err != nil {
		writeServiceError(w, r, h.log, err, "Image upload failed.")
		return
	}
	writeJSON(w, http.StatusCreated, ImageUploadResponse{ImageURL: url})
}

func (h *SessionHandler) caller(w http.ResponseWriter, r *http.Request) (types.Identity, bool) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
	}
	return identity, ok
}

type ImageUploadResponse struct {
	ImageURL string `json:"imageUrl"`
}
