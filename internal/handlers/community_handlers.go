package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"galaxy/internal/database"
	"galaxy/internal/models"
)

// CommunityOverview lists every galaxy.
func (h *Handler) CommunityOverview(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	h.render(w, http.StatusOK, "communities.html", TemplateData{Title: "Galaxies", User: user, Groups: h.cfg.Groups})
}

// Community shows the feed of one group.
func (h *Handler) Community(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	group := chi.URLParam(r, "group")
	if !h.cfg.IsGroup(group) {
		h.Render404(w, r)
		return
	}
	h.renderFeed(w, r, user, group)
}

// CreatePost adds a post to a group feed and shows the feed again. Posts with
// blank content are dropped without an error.
func (h *Handler) CreatePost(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	group := chi.URLParam(r, "group")
	if !h.cfg.IsGroup(group) {
		h.Render404(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		h.Render400(w, r, "Malformed form.")
		return
	}

	content := strings.TrimSpace(r.PostFormValue("content"))
	if content != "" {
		title := strings.TrimSpace(r.PostFormValue("title"))
		id, err := h.store.InsertPost(r.Context(), user.ID, group, title, content, h.now())
		if err != nil {
			h.Render500(w, r, err)
			return
		}
		h.log.Info("post created", zap.Int("post_id", id), zap.Int("user_id", user.ID), zap.String("group", group))
	}
	h.renderFeed(w, r, user, group)
}

// CreateComment adds a comment to a post and returns to the post's feed.
// Unknown posts send the user back to the overview.
func (h *Handler) CreateComment(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	postID, err := strconv.Atoi(chi.URLParam(r, "postID"))
	if err != nil || postID <= 0 {
		http.Redirect(w, r, "/community_overview", http.StatusSeeOther)
		return
	}

	group, err := h.store.GetPostGroup(r.Context(), postID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			http.Redirect(w, r, "/community_overview", http.StatusSeeOther)
			return
		}
		h.Render500(w, r, err)
		return
	}

	content := strings.TrimSpace(r.PostFormValue("comment_content"))
	if content != "" {
		if _, err := h.store.InsertComment(r.Context(), postID, user.ID, content, h.now()); err != nil {
			h.Render500(w, r, err)
			return
		}
	}
	http.Redirect(w, r, "/community/"+url.PathEscape(group), http.StatusSeeOther)
}

func (h *Handler) renderFeed(w http.ResponseWriter, r *http.Request, user *models.User, group string) {
	posts, err := h.store.ListPosts(r.Context(), group)
	if err != nil {
		h.Render500(w, r, err)
		return
	}

	ids := make([]int, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	comments, err := h.store.ListCommentsForPosts(r.Context(), ids)
	if err != nil {
		h.Render500(w, r, err)
		return
	}
	for i := range posts {
		posts[i].Comments = comments[posts[i].ID]
	}

	h.render(w, http.StatusOK, h.views.FeedTemplate(group), TemplateData{
		Title: strings.ToUpper(group[:1]) + group[1:] + " galaxy",
		User:  user,
		Group: group,
		Posts: posts,
	})
}
