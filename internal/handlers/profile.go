package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/campusforum/memberd/internal/services"
	"github.com/campusforum/memberd/types"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const maxAvatarBytes = 8 << 20

// ProfileHandler provides HTTP handlers for the profile attribute bag
// and avatar objects.
type ProfileHandler struct {
	profileService *services.ProfileService
}

// NewProfileHandler constructs a handler with the provided service.
func NewProfileHandler(profileService *services.ProfileService) *ProfileHandler {
	return &ProfileHandler{profileService: profileService}
}

// ProfileRouter registers profile routes on the given router.
func ProfileRouter(r chi.Router, profileService *services.ProfileService, authMiddleware func(http.Handler) http.Handler) {
	handler := NewProfileHandler(profileService)

	r.Route("/{username}", func(r chi.Router) {
		r.Get("/", handler.GetProfile)
		r.Get("/avatar", handler.GetAvatar)
		if authMiddleware != nil {
			r.With(authMiddleware).Post("/", handler.AddProfile)
			r.With(authMiddleware).Put("/", handler.UpdateProfile)
			r.With(authMiddleware).Patch("/names", handler.UpdateProfileNames)
			r.With(authMiddleware).Post("/avatar", handler.UploadAvatar)
		} else {
			r.Post("/", handler.AddProfile)
			r.Put("/", handler.UpdateProfile)
			r.Patch("/names", handler.UpdateProfileNames)
			r.Post("/avatar", handler.UploadAvatar)
		}
	})
}

func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	username, ok := parseUsername(w, r)
	if !ok {
		return
	}

	profile, err := h.profileService.Get(r.Context(), username)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// AddProfile stores the attribute bag for an existing account. The
// fields are kept as submitted; there is no validation layer here.
func (h *ProfileHandler) AddProfile(w http.ResponseWriter, r *http.Request) {
	username, ok := parseUsername(w, r)
	if !ok {
		return
	}

	var profile types.UserProfile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	profile.Username = username

	created, err := h.profileService.Add(r.Context(), profile)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// UpdateProfile replaces the profile when the supplied account id
// matches the account on record.
func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	username, ok := parseUsername(w, r)
	if !ok {
		return
	}
	id, ok := parseAccountID(w, r)
	if !ok {
		return
	}

	var profile types.UserProfile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	updated, err := h.profileService.Update(r.Context(), username, id, profile)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// UpdateProfileNames patches only the name fields, subject to the same
// account-id check as UpdateProfile.
func (h *ProfileHandler) UpdateProfileNames(w http.ResponseWriter, r *http.Request) {
	username, ok := parseUsername(w, r)
	if !ok {
		return
	}
	id, ok := parseAccountID(w, r)
	if !ok {
		return
	}

	var req UpdateNamesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	updated, err := h.profileService.UpdateNames(r.Context(), username, id, req.Firstname, req.Lastname, req.MiddleInitial)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// UploadAvatar stores the avatar object for an account.
func (h *ProfileHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	username, ok := parseUsername(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(maxAvatarBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("avatar")
	if err != nil {
		writeError(w, http.StatusBadRequest, "avatar file is required")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	profile, err := h.profileService.UploadAvatar(r.Context(), username, file, header.Size, contentType)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// GetAvatar streams the stored avatar object.
func (h *ProfileHandler) GetAvatar(w http.ResponseWriter, r *http.Request) {
	username, ok := parseUsername(w, r)
	if !ok {
		return
	}

	reader, err := h.profileService.OpenAvatar(r.Context(), username)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	defer reader.Close()

	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, reader)
}

type UpdateNamesRequest struct {
	Firstname     string `json:"firstname"`
	Lastname      string `json:"lastname"`
	MiddleInitial string `json:"middle_initial"`
}

func parseUsername(w http.ResponseWriter, r *http.Request) (string, bool) {
	username := strings.TrimSpace(chi.URLParam(r, "username"))
	if username == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return "", false
	}
	return username, true
}

func parseAccountID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("id"))
	if raw == "" {
		writeError(w, http.StatusBadRequest, "account id is required")
		return uuid.UUID{}, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return uuid.UUID{}, false
	}
	return id, true
}
