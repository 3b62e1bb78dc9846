package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"galaxy/config"
	"galaxy/internal/auth"
	"galaxy/internal/database"
	"galaxy/internal/handlers"
	"galaxy/internal/middleware"
	"galaxy/internal/session"
	"galaxy/internal/views"
)

const (
	sessionCleanupInterval = 30 * time.Minute
	shutdownTimeout        = 10 * time.Second

	// Credential form submissions allowed per client IP and window.
	authRateLimit  = 10
	authRateWindow = time.Minute
)

// Server wires the storage, sessions and page handlers into one HTTP server.
type Server struct {
	cfg             *config.Config
	router          chi.Router
	sessions        *session.Manager
	limiter         *middleware.RateLimiter
	log             *zap.Logger
	cleanupInterval time.Duration
}

func New(cfg *config.Config, store *database.Store, log *zap.Logger) (*Server, error) {
	renderer, err := views.New(cfg.Groups, log)
	if err != nil {
		return nil, err
	}
	sessions := session.NewManager(store, session.Options{
		Secret:       cfg.Session.Secret,
		Expiration:   cfg.Session.Expiration,
		CookieSecure: cfg.Server.CookieSecure,
	}, log)

	s := &Server{
		cfg:             cfg,
		sessions:        sessions,
		limiter:         middleware.NewRateLimiter(authRateLimit, authRateWindow, log),
		log:             log,
		cleanupInterval: sessionCleanupInterval,
	}
	h := handlers.New(cfg, store, auth.NewService(store, cfg.Groups, log), sessions, renderer, log)
	s.router = s.routes(h)
	return s, nil
}

// Handler returns the fully wrapped router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes(h *handlers.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(
		chimw.RequestID,
		middleware.Logger(s.log),
		chimw.Recoverer,
		middleware.SecureHeadersMiddleware,
		middleware.SessionMiddleware(s.sessions, s.log),
	)
	r.NotFound(h.Render404)
	r.MethodNotAllowed(h.Render405)

	r.Handle("/static/*", http.StripPrefix("/static/", views.Static()))

	r.Get("/", h.Index)
	r.Get("/forget", h.Forget)
	r.Get("/contents", h.Contents)

	r.Group(func(r chi.Router) {
		r.Use(s.limiter.Middleware)
		r.Get("/register", h.RegisterForm)
		r.Post("/register", h.Register)
		r.Get("/login", h.LoginForm)
		r.Post("/login", h.Login)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Get("/logout", h.Logout)
		r.Get("/dashboard", h.Dashboard)
		r.Get("/user_info", h.UserInfoForm)
		r.Post("/user_info", h.UpdateUserInfo)
		r.Get("/community_overview", h.CommunityOverview)
		r.Get("/communities", h.CommunityOverview)
		r.Get("/community/{group}", h.Community)
		r.Post("/community/{group}", h.CreatePost)
		r.Post("/comment/{postID}", h.CreateComment)
	})
	return r
}

// Run serves HTTP on the configured port until ctx is cancelled, then shuts
// the server down gracefully. Expired sessions are purged in the background.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", ":"+s.cfg.Server.Port)
	if err != nil {
		return fmt.Errorf("server: failed to listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     zap.NewStdLog(s.log),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("server starting", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.log.Info("server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return s.cleanupSessions(gctx)
	})
	g.Go(func() error {
		return s.limiter.Run(gctx)
	})
	return g.Wait()
}

// cleanupSessions deletes expired sessions every cleanupInterval.
func (s *Server) cleanupSessions(ctx context.Context) error {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := s.sessions.Cleanup(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.log.Error("failed to clean up expired sessions", zap.Error(err))
				continue
			}
			if n > 0 {
				s.log.Info("cleaned up expired sessions", zap.Int64("count", n))
			}
		}
	}
}
