package stubapi

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/shehryarbajwa/testbed/internal/ratelimit"
)

// Config controls the stub API.
type Config struct {
	// Credentials accepted by /auth/login. Nil means DefaultCredentials.
	Credentials map[string]string

	// RequireAuth protects the /users write routes with RequireAuth.
	RequireAuth bool

	// Limiter, when set, rate limits every route except /auth/login.
	Limiter *ratelimit.Limiter

	Logger *slog.Logger
}

// DefaultCredentials is the login accepted when Config.Credentials is nil.
var DefaultCredentials = map[string]string{"admin": "password123"}

// NewRouter builds the stub API routes over a fresh Store.
func NewRouter(cfg Config) *mux.Router {
	return NewRouterWithStore(cfg, NewStore())
}

// NewRouterWithStore builds the stub API routes over store.
func NewRouterWithStore(cfg Config, store *Store) *mux.Router {
	if cfg.Credentials == nil {
		cfg.Credentials = DefaultCredentials
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	h := NewHandler(store, cfg.Credentials, cfg.Logger.With("component", "stubapi"))

	r := mux.NewRouter()
	r.HandleFunc("/auth/login", h.Login).Methods(http.MethodPost)

	api := r.PathPrefix("").Subrouter()
	if cfg.Limiter != nil {
		api.Use(RateLimitMiddleware(cfg.Limiter))
	}

	api.HandleFunc("/headers", h.Headers).Methods(http.MethodGet)
	api.HandleFunc("/slow/{ms:[0-9]+}", h.Slow).Methods(http.MethodGet)
	api.HandleFunc("/users", h.ListUsers).Methods(http.MethodGet)
	api.HandleFunc("/users/{id:[0-9]+}", h.GetUser).Methods(http.MethodGet)
	api.HandleFunc("/users/{id:[0-9]+}/posts", h.ListPosts).Methods(http.MethodGet)

	api.Handle("/whoami", h.RequireAuth(http.HandlerFunc(h.WhoAmI))).Methods(http.MethodGet)

	write := func(fn http.HandlerFunc) http.Handler {
		if cfg.RequireAuth {
			return h.RequireAuth(fn)
		}
		return fn
	}
	api.Handle("/users", write(h.CreateUser)).Methods(http.MethodPost)
	api.Handle("/users/{id:[0-9]+}", write(h.UpdateUser)).Methods(http.MethodPut, http.MethodPatch)
	api.Handle("/users/{id:[0-9]+}", write(h.DeleteUser)).Methods(http.MethodDelete)

	return r
}
