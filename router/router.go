package router

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strings"

	"mediastore/config"
	authHandler "mediastore/internal/auth"
	authRepository "mediastore/internal/auth/repository"
	authService "mediastore/internal/auth/service"
	mediaHandler "mediastore/internal/media"
	"mediastore/internal/media/repository"
	"mediastore/internal/media/service"
	"mediastore/middleware"
	"mediastore/pkg/metrics"
	"mediastore/socket"
)

// Setup wires every endpoint. db may be nil, in which case login is
// disabled and only externally issued tokens are accepted.
func Setup(cfg *config.Config, repo *repository.MediaRepository, db *sql.DB, hub *socket.Hub) http.Handler {
	mux := http.NewServeMux()

	// Media API
	mediaSvc := service.NewMediaService(repo, hub)
	mux.Handle(cfg.MediaPath, mediaHandler.NewMediaHandler(mediaSvc, cfg.MaxBodyBytes))

	// Login
	if db != nil {
		users := authRepository.NewUserRepository(db)
		auth := authHandler.NewAuthHandler(authService.NewAuthService(users, cfg.JWTSecret, cfg.TokenTTL))
		mux.HandleFunc("/auth/token", auth.Token)
	} else {
		mux.HandleFunc("/auth/token", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "login is not configured"})
		})
	}

	// Event feed
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		socket.ServeWs(hub, w, r)
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("/metrics", metrics.Handler())

	// Everything else is a static read of the storage root.
	mux.Handle("/", NewStaticHandler(repo.Layout.Root, cfg.DirectoryListing))

	policy := middleware.DefaultPolicy(cfg.PrivateDir, cfg.MediaPath)
	verifier := middleware.NewVerifier(cfg.JWTSecret)

	var h http.Handler = mux
	h = middleware.Enforce(policy, verifier)(h)
	h = metrics.Middleware(routeLabel(cfg))(h)
	h = middleware.RequestLog(h)
	return middleware.CORSMiddleware(h)
}

// routeLabel keeps metric label cardinality bounded: document paths
// collapse onto their visibility directory.
func routeLabel(cfg *config.Config) func(*http.Request) string {
	public := "/" + cfg.PublicDir
	private := "/" + cfg.PrivateDir
	return func(r *http.Request) string {
		p := r.URL.Path
		switch {
		case p == cfg.MediaPath, p == "/auth/token", p == "/events", p == "/health", p == "/metrics":
			return p
		case p == public || strings.HasPrefix(p, public+"/"):
			return public
		case p == private || strings.HasPrefix(p, private+"/"):
			return private
		default:
			return "other"
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
