package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/messagely/apiserver/internal/logging"
	"github.com/messagely/apiserver/internal/services"
	"github.com/messagely/apiserver/types"
)

// UserHandler provides the user directory endpoints.
type UserHandler struct {
	users    *services.UserService
	messages *services.MessageService
	logger   logging.Logger
}

func NewUserHandler(users *services.UserService, messages *services.MessageService, logger logging.Logger) *UserHandler {
	return &UserHandler{users: users, messages: messages, logger: logger}
}

// UserRouter registers user routes. Every route requires authentication.
func UserRouter(
	r chi.Router,
	users *services.UserService,
	messages *services.MessageService,
	logger logging.Logger,
	authMiddleware func(http.Handler) http.Handler,
) {
	handler := NewUserHandler(users, messages, logger)

	r.Use(authMiddleware)
	r.Get("/", handler.ListUsers)
	r.Route("/{username}", func(r chi.Router) {
		r.Get("/", handler.GetUser)
		r.Get("/from", handler.MessagesFrom)
		r.Get("/to", handler.MessagesTo)
	})
}

// ListUsers returns every user's summary.
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListAll(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to list users")
		return
	}
	writeJSON(w, http.StatusOK, UsersResponse{Users: users})
}

// GetUser returns a user's full profile.
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.Get(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to load user")
		return
	}
	writeJSON(w, http.StatusOK, UserResponse{User: user})
}

// MessagesFrom lists messages sent by the named user, who must be the caller.
func (h *UserHandler) MessagesFrom(w http.ResponseWriter, r *http.Request) {
	h.listMessages(w, r, h.messages.MessagesFrom)
}

// MessagesTo lists messages received by the named user, who must be the caller.
func (h *UserHandler) MessagesTo(w http.ResponseWriter, r *http.Request) {
	h.listMessages(w, r, h.messages.MessagesTo)
}

type listFunc func(ctx context.Context, caller types.Identity, username string) ([]types.Message, error)

func (h *UserHandler) listMessages(w http.ResponseWriter, r *http.Request, list listFunc) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	messages, err := list(r.Context(), identity, chi.URLParam(r, "username"))
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to list messages")
		return
	}
	writeJSON(w, http.StatusOK, MessagesResponse{Messages: messages})
}

type UsersResponse struct {
	Users []types.UserSummary `json:"users"`
}

type UserResponse struct {
	User types.User `json:"user"`
}
