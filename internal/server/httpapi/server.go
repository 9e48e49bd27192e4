// Package httpapi exposes the blog's auth, post, media and cleanup
// operations over HTTP.
package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/dmitrijs2005/gophblog/internal/logging"
	"github.com/dmitrijs2005/gophblog/internal/server/models"
	"github.com/dmitrijs2005/gophblog/internal/server/services"
	"github.com/gorilla/mux"
)

type AuthService interface {
	SignIn(ctx context.Context, email, password string) (*services.SignInResult, error)
	CheckChallenge(ctx context.Context, token string) error
	RedeemChallenge(ctx context.Context, token, code string) (*services.SessionToken, error)
	Authenticate(ctx context.Context, token string) (*services.Principal, error)
	SignOut(ctx context.Context, sessionID string) error
	BeginTOTPSetup(ctx context.Context, userID string) (*services.TOTPSetup, error)
	EnableTOTP(ctx context.Context, userID, secret, code string) error
	DisableTOTP(ctx context.Context, userID, code string) error
}

type PostService interface {
	Create(ctx context.Context, authorID string, in services.PostInput) (*models.Post, error)
	Get(ctx context.Context, id string, authenticated bool) (*models.Post, error)
	Update(ctx context.Context, id string, in services.PostInput) (*models.Post, error)
	Delete(ctx context.Context, id string) error
}

type MediaService interface {
	Upload(ctx context.Context, uploaderID, filename, contentType string, body io.Reader) (*services.UploadResult, error)
	Serve(ctx context.Context, id string, opts services.ServeOptions, authenticated bool) (*services.MediaContent, error)
}

type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (*services.SweepResult, error)
}

// Limiter throttles sign-in attempts per client.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Deps are the services behind the routes. Limiter and Health may be nil.
type Deps struct {
	Auth    AuthService
	Posts   PostService
	Media   MediaService
	Cleanup Sweeper
	Limiter Limiter
	Metrics *Metrics
	Health  func(ctx context.Context) error
}

// Options tune request handling.
type Options struct {
	CronSecret    string
	MaxUploadSize int64
}

type Server struct {
	address string
	deps    Deps
	opts    Options
	logger  logging.Logger
	nowFn   func() time.Time
}

func NewServer(address string, l logging.Logger, deps Deps, opts Options) *Server {
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics()
	}
	return &Server{
		address: address,
		deps:    deps,
		opts:    opts,
		logger:  l.With("module", "http_server"),
		nowFn:   time.Now,
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.deps.Metrics.instrument, s.session)

	r.HandleFunc("/health", s.health).Methods(http.MethodGet)
	r.Handle("/metrics", s.deps.Metrics.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/auth/2fa", s.challengePage).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()

	api.Handle("/auth/signin", s.rateLimit(http.HandlerFunc(s.signIn))).Methods(http.MethodPost)
	api.Handle("/auth/signout", requireAuth(s.signOut)).Methods(http.MethodPost)
	api.Handle("/auth/2fa/setup", requireAuth(s.totpSetup)).Methods(http.MethodPost)
	api.Handle("/auth/2fa/enable", requireAuth(s.totpEnable)).Methods(http.MethodPost)
	api.Handle("/auth/2fa/disable", requireAuth(s.totpDisable)).Methods(http.MethodPost)

	api.Handle("/posts", requireAuth(s.createPost)).Methods(http.MethodPost)
	api.HandleFunc("/posts/{id}", s.getPost).Methods(http.MethodGet)
	api.Handle("/posts/{id}", requireAuth(s.updatePost)).Methods(http.MethodPut)
	api.Handle("/posts/{id}", requireAuth(s.deletePost)).Methods(http.MethodDelete)

	api.Handle("/media/upload", requireAuth(s.uploadMedia)).Methods(http.MethodPost)
	api.HandleFunc("/media/{id}", s.serveMedia).Methods(http.MethodGet)

	api.HandleFunc("/cron/cleanup", s.cronCleanup).Methods(http.MethodGet)

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "shutdown error", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health != nil {
		if err := s.deps.Health(r.Context()); err != nil {
			s.logger.Warn(r.Context(), "health check failed", "error", err)
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "OK\n")
}
