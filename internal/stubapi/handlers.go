package stubapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/shehryarbajwa/testbed/pkg/models"
)

// Handler holds dependencies for the stub API handlers.
type Handler struct {
	store       *Store
	credentials map[string]string
	log         *slog.Logger

	mu     sync.RWMutex
	tokens map[string]string // token -> username
}

// NewHandler creates a handler that accepts the given username/password
// pairs at login.
func NewHandler(store *Store, credentials map[string]string, log *slog.Logger) *Handler {
	return &Handler{
		store:       store,
		credentials: credentials,
		log:         log,
		tokens:      make(map[string]string),
	}
}

// userForToken returns the user a token was issued to.
func (h *Handler) userForToken(token string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	u, ok := h.tokens[token]
	return u, ok
}

// Login handles POST /auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	want, ok := h.credentials[req.Username]
	if !ok || want != req.Password {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token := uuid.NewString()
	h.mu.Lock()
	h.tokens[token] = req.Username
	h.mu.Unlock()

	h.log.Info("login", "user", req.Username)
	writeJSON(w, http.StatusOK, models.LoginResponse{Token: token})
}

// Headers handles GET /headers. It echoes the request headers the client
// is expected to set.
func (h *Handler) Headers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"authorization": r.Header.Get("Authorization"),
		"contentType":   r.Header.Get("Content-Type"),
		"accept":        r.Header.Get("Accept"),
		"requestId":     r.Header.Get("X-Request-ID"),
	})
}

// WhoAmI handles GET /whoami
func (h *Handler) WhoAmI(w http.ResponseWriter, r *http.Request) {
	user, _ := h.userForToken(bearerToken(r))
	writeJSON(w, http.StatusOK, map[string]string{"username": user})
}

// ListUsers handles GET /users
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.List())
}

// GetUser handles GET /users/{id}
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	u, err := h.store.Get(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// CreateUser handles POST /users
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var u models.User
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, h.store.Create(u))
}

// UpdateUser handles PUT and PATCH /users/{id}
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	var u models.User
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	var (
		updated models.User
		err     error
	)
	if r.Method == http.MethodPatch {
		updated, err = h.store.Patch(id, u)
	} else {
		updated, err = h.store.Update(id, u)
	}
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// DeleteUser handles DELETE /users/{id}
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	if err := h.store.Delete(id); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListPosts handles GET /users/{id}/posts
func (h *Handler) ListPosts(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	posts, err := h.store.Posts(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, posts)
}

// Slow handles GET /slow/{ms}. It replies after the given delay, or earlier
// if the client goes away.
func (h *Handler) Slow(w http.ResponseWriter, r *http.Request) {
	ms, err := strconv.Atoi(mux.Vars(r)["ms"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid delay")
		return
	}

	timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-r.Context().Done():
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"delayMs": ms})
}

func userID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return 0, false
	}
	return id, true
}

func bearerToken(r *http.Request) string {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return ""
	}
	return token
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrUserNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
