package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"ogonyok/internal/auth"
	"ogonyok/internal/chat"
	"ogonyok/internal/group"
	"ogonyok/internal/media"
	"ogonyok/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

const maxUploadSize = 10 << 20 // 10 MB

type userStore interface {
	ListUsers() ([]models.User, error)
}

type API struct {
	verifier auth.Verifier
	groups   *group.Manager
	chat     *chat.Service
	media    media.Store
	users    userStore
	validate *validator.Validate
}

func New(verifier auth.Verifier, groups *group.Manager, chatService *chat.Service, mediaStore media.Store, users userStore) *API {
	return &API{
		verifier: verifier,
		groups:   groups,
		chat:     chatService,
		media:    mediaStore,
		users:    users,
		validate: validator.New(),
	}
}

type contextKey string

const userIDKey contextKey = "userID"

func (a *API) getToken(r *http.Request) string {
	token := r.Header.Get("token")
	if token == "" {
		if c, err := r.Cookie("token"); err == nil {
			token = c.Value
		}
	}
	return token
}

// RequireAuth resolves the caller's token and stashes the user ID in the
// request context.
func (a *API) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := a.verifier.Verify(a.getToken(r))
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	}
}

func callerID(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey).(string)
	return id
}

// writeError maps the error taxonomy to HTTP status codes: validation 400,
// wrong password 401, non-admin action 403, absent-or-expired 404,
// everything else is a persistence failure, 500.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, models.ErrUnauthorized):
		http.Error(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, models.ErrForbidden):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, models.ErrNotFound):
		http.Error(w, "not found or expired", http.StatusNotFound)
	default:
		log.Printf("internal error: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func decodeJSON(r *http.Request, req any) error {
	return json.NewDecoder(r.Body).Decode(req)
}

func (a *API) decodeValid(r *http.Request, req any) error {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		return models.ErrValidation
	}
	if err := a.validate.Struct(req); err != nil {
		return models.ErrValidation
	}
	return nil
}

type CreateGroupRequest struct {
	Name     string `json:"name" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (a *API) CreateGroupHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateGroupRequest
	if err := a.decodeValid(r, &req); err != nil {
		writeError(w, err)
		return
	}

	g, err := a.groups.Create(callerID(r), req.Name, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

type JoinGroupRequest struct {
	GroupID  string `json:"groupId" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (a *API) JoinGroupHandler(w http.ResponseWriter, r *http.Request) {
	var req JoinGroupRequest
	if err := a.decodeValid(r, &req); err != nil {
		writeError(w, err)
		return
	}

	g, err := a.groups.Join(req.GroupID, req.Password, callerID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (a *API) JoinViaInviteHandler(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	if token == "" {
		writeError(w, models.ErrValidation)
		return
	}

	g, err := a.groups.JoinViaInvite(token, callerID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (a *API) GenerateInviteHandler(w http.ResponseWriter, r *http.Request) {
	link, err := a.groups.GenerateInvite(r.PathValue("id"), callerID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"inviteLink": link})
}

func (a *API) ExtendGroupHandler(w http.ResponseWriter, r *http.Request) {
	g, err := a.groups.Extend(r.PathValue("id"), callerID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"expiresAt": g.ExpiresAt})
}

func (a *API) EndGroupHandler(w http.ResponseWriter, r *http.Request) {
	if err := a.groups.End(r.PathValue("id"), callerID(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "group ended"})
}

func (a *API) GroupsHandler(w http.ResponseWriter, r *http.Request) {
	groups, err := a.groups.ListForUser(callerID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if groups == nil {
		groups = []models.Group{}
	}
	writeJSON(w, http.StatusOK, groups)
}

// UsersHandler lists everyone except the caller, for the sidebar.
func (a *API) UsersHandler(w http.ResponseWriter, r *http.Request) {
	users, err := a.users.ListUsers()
	if err != nil {
		writeError(w, err)
		return
	}
	me := callerID(r)
	users = lo.Filter(users, func(u models.User, _ int) bool {
		return u.ID != me
	})
	writeJSON(w, http.StatusOK, users)
}

// MessagesHandler serves chat history: /api/messages/{kind}/{chatId}.
// For kind=direct chatId is the peer's user ID; for kind=group it is the
// group ID. Messages come back oldest first, matching live append order.
func (a *API) MessagesHandler(w http.ResponseWriter, r *http.Request) {
	kind := r.PathValue("kind")
	chatID := r.PathValue("chatId")
	if chatID == "" {
		writeError(w, models.ErrValidation)
		return
	}

	var selector models.ChatSelector
	switch models.MessageKind(kind) {
	case models.MessageKindDirect:
		selector = models.DirectChat(callerID(r), chatID)
	case models.MessageKindGroup:
		selector = models.GroupChat(chatID)
	default:
		writeError(w, models.ErrValidation)
		return
	}

	messages, err := a.chat.History(callerID(r), selector)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

// UploadImageHandler accepts raw image bytes and returns the URL to embed
// in a message.
func (a *API) UploadImageHandler(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxUploadSize))
	if err != nil {
		writeError(w, err)
		return
	}

	url, err := a.media.Save(data)
	if errors.Is(err, media.ErrUnsupportedType) {
		writeError(w, models.ErrValidation)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"url": url})
}

func (a *API) GetImageHandler(w http.ResponseWriter, r *http.Request) {
	data, mimeType, err := a.media.Get(r.PathValue("id"))
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", mimeType)
	if _, err := w.Write(data); err != nil {
		log.Printf("failed to write image response: %v", err)
	}
}
