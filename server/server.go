package server

import (
	"context"
	"errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"net/http"
	"snapgram/authoring"
	"snapgram/engagement"
	"snapgram/graph"
	"snapgram/monitoring/middleware"
	"snapgram/session"
	"snapgram/social"
	"time"
)

// 32 MiB, enough for a full resolution photo
const maxUploadSize = 32 << 20

type Server struct {
	facade     *social.Facade
	graph      *graph.Manager
	engagement *engagement.Manager
	authoring  *authoring.Service
	sessions   *session.JWTSession
	events     http.Handler
	media      http.Handler

	httpServer *http.Server
}

func NewServer(
	port string,
	facade *social.Facade,
	graphManager *graph.Manager,
	engagementManager *engagement.Manager,
	authoringService *authoring.Service,
	sessions *session.JWTSession,
	events http.Handler,
	media http.Handler,
) *Server {
	s := &Server{
		facade:     facade,
		graph:      graphManager,
		engagement: engagementManager,
		authoring:  authoringService,
		sessions:   sessions,
		events:     events,
		media:      media,
	}
	s.httpServer = &http.Server{
		Addr:              ":" + port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler builds the full route table wrapped in the session and metrics
// middlewares.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /metrics", promhttp.Handler())
	if s.media != nil {
		mux.Handle("GET /media/{id}", s.media)
	}
	if s.events != nil {
		mux.Handle("GET /ws", s.authenticated(s.events.ServeHTTP))
	}

	mux.HandleFunc("POST /users", s.createUser)
	mux.HandleFunc("GET /users", s.authenticated(s.listUsers))
	mux.HandleFunc("GET /users/{id}", s.authenticated(s.getProfile))
	mux.HandleFunc("PUT /users/{id}", s.authenticated(s.updateUser))
	mux.HandleFunc("POST /users/{id}/follow", s.authenticated(s.toggleFollow))
	mux.HandleFunc("GET /users/{id}/follow", s.authenticated(s.isFollowing))
	mux.HandleFunc("GET /users/{id}/followers", s.authenticated(s.getFollowers))
	mux.HandleFunc("GET /users/{id}/following", s.authenticated(s.getFollowing))
	mux.HandleFunc("GET /users/{id}/saved", s.authenticated(s.getSavedPosts))

	mux.HandleFunc("GET /posts", s.authenticated(s.getFeed))
	mux.HandleFunc("POST /posts", s.authenticated(s.createPost))
	mux.HandleFunc("GET /posts/{id}", s.authenticated(s.getPost))
	mux.HandleFunc("PUT /posts/{id}", s.authenticated(s.updatePost))
	mux.HandleFunc("DELETE /posts/{id}", s.authenticated(s.deletePost))
	mux.HandleFunc("POST /posts/{id}/like", s.authenticated(s.toggleLike))
	mux.HandleFunc("POST /posts/{id}/save", s.authenticated(s.toggleSave))
	mux.HandleFunc("GET /posts/{id}/save", s.authenticated(s.isSaved))
	mux.HandleFunc("DELETE /saves/{id}", s.authenticated(s.deleteSavedRecord))

	label := func(r *http.Request) string {
		if _, pattern := mux.Handler(r); pattern != "" {
			return pattern
		}
		return "unmatched"
	}
	return middleware.NewServerMiddleware(s.sessions.Middleware(mux), label)
}

// Run blocks until the server stops. A graceful Shutdown is not an error.
func (s *Server) Run() error {
	log.Warnf("Listening on %s", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		log.Warn("server closed")
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// authenticated rejects requests that carry no valid session.
func (s *Server) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := session.CurrentIdentity(r.Context()); !ok {
			sendError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next(w, r)
	}
}
