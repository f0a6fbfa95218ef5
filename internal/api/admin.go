package api

import (
	"crypto/subtle"
	"net/http"

	"ogonyok/internal/auth"
	"ogonyok/internal/models"

	"github.com/google/uuid"
)

type adminUserStore interface {
	UpsertUser(user models.User) error
}

// AdminHandler provisions user identities. In production identities come
// from the external auth system; this surface is the stand-in plus the
// backing for the -add-user CLI.
type AdminHandler struct {
	tokens   *auth.TokenService
	users    adminUserStore
	password string
}

func NewAdminHandler(tokens *auth.TokenService, users adminUserStore, password string) *AdminHandler {
	return &AdminHandler{
		tokens:   tokens,
		users:    users,
		password: password,
	}
}

type AddUserRequest struct {
	DisplayName string `json:"displayName" validate:"required"`
	AvatarURL   string `json:"avatarUrl"`
}

type AddUserResponse struct {
	User  models.User `json:"user"`
	Token string      `json:"token"`
}

func (h *AdminHandler) checkBasicAuth(r *http.Request) bool {
	_, pass, ok := r.BasicAuth()
	return ok && subtle.ConstantTimeCompare([]byte(pass), []byte(h.password)) == 1
}

func (h *AdminHandler) AddUserHandler(w http.ResponseWriter, r *http.Request) {
	if !h.checkBasicAuth(r) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req AddUserRequest
	if err := decodeJSON(r, &req); err != nil || req.DisplayName == "" {
		http.Error(w, "displayName is required", http.StatusBadRequest)
		return
	}

	user := models.User{
		ID:          uuid.NewString(),
		DisplayName: req.DisplayName,
		AvatarURL:   req.AvatarURL,
	}
	if err := h.users.UpsertUser(user); err != nil {
		writeError(w, err)
		return
	}

	token, err := h.tokens.Issue(user.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, AddUserResponse{User: user, Token: token})
}
