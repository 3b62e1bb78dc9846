package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"galaxy/config"
	"galaxy/internal/auth"
	"galaxy/internal/database"
	"galaxy/internal/models"
	"galaxy/internal/session"
	"galaxy/internal/views"
)

// Store is the storage the page handlers read and write.
type Store interface {
	FindUserByID(ctx context.Context, id int) (*models.User, error)
	ListGroupMembers(ctx context.Context, group string, excludingUserID int) ([]models.User, error)
	InsertPost(ctx context.Context, userID int, group, title, content string, ts time.Time) (int, error)
	ListPosts(ctx context.Context, group string) ([]models.Post, error)
	CountPosts(ctx context.Context, group string) (int, error)
	GetPostGroup(ctx context.Context, postID int) (string, error)
	InsertComment(ctx context.Context, postID, userID int, content string, ts time.Time) (int, error)
	ListCommentsForPosts(ctx context.Context, postIDs []int) (map[int][]models.Comment, error)
}

// TemplateData holds data passed to HTML templates.
type TemplateData struct {
	Title     string
	User      *models.User
	Error     string
	Success   string
	Form      auth.Registration
	Groups    []string
	Group     string
	Posts     []models.Post
	Members   []models.User
	PostCount int
	Profile   models.Profile
}

// Handler serves every page of the site.
type Handler struct {
	cfg      *config.Config
	store    Store
	auth     *auth.Service
	sessions *session.Manager
	views    *views.Renderer
	log      *zap.Logger
	now      func() time.Time
}

func New(cfg *config.Config, store Store, authService *auth.Service, sessions *session.Manager, renderer *views.Renderer, log *zap.Logger) *Handler {
	return &Handler{
		cfg:      cfg,
		store:    store,
		auth:     authService,
		sessions: sessions,
		views:    renderer,
		log:      log,
		now:      time.Now,
	}
}

func (h *Handler) render(w http.ResponseWriter, status int, name string, data TemplateData) {
	h.views.Render(w, status, name, data)
}

// currentUser loads the user of the request's session. When it returns false
// a response has already been written.
func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	sess := session.Current(r)
	if sess == nil {
		http.Redirect(w, r, "/login", http.StatusFound)
		return nil, false
	}
	user, err := h.store.FindUserByID(r.Context(), sess.UserID())
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			// The account behind the session no longer exists.
			if err := h.sessions.End(r.Context(), w, r); err != nil {
				h.log.Warn("failed to end orphaned session", zap.Error(err))
			}
			http.Redirect(w, r, "/login", http.StatusFound)
			return nil, false
		}
		h.Render500(w, r, err)
		return nil, false
	}
	return user, true
}

// HTTP error pages

func (h *Handler) Render400(w http.ResponseWriter, r *http.Request, message string) {
	h.render(w, http.StatusBadRequest, "error.html", TemplateData{Title: "Bad request", Error: "400 Bad Request: " + message})
}

func (h *Handler) Render404(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusNotFound, "error.html", TemplateData{Title: "Not found", Error: "404 Not Found"})
}

func (h *Handler) Render405(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusMethodNotAllowed, "error.html", TemplateData{Title: "Not allowed", Error: "405 Method Not Allowed"})
}

// Render500 logs err and shows a generic error page; storage details never
// reach the client.
func (h *Handler) Render500(w http.ResponseWriter, r *http.Request, err error) {
	h.log.Error("internal server error",
		zap.Error(err),
		zap.String("path", r.URL.Path),
		zap.String("request_id", chimw.GetReqID(r.Context())),
	)
	h.render(w, http.StatusInternalServerError, "error.html", TemplateData{Title: "Error", Error: "500 Internal Server Error"})
}
