// Package views renders the server-side HTML pages.
package views

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"time"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"
)

//go:embed templates
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// GenericFeedTemplate is used for every group without its own galaxy page.
const GenericFeedTemplate = "community.html"

// Renderer executes the embedded templates.
type Renderer struct {
	templates *template.Template
	feeds     map[string]string
	log       *zap.Logger
}

// New parses every template and decides, once, which template renders each
// group's feed: galaxies/<group>_galaxy.html when it exists, the generic
// community page otherwise.
func New(groups []string, log *zap.Logger) (*Renderer, error) {
	t, err := template.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.html", "templates/galaxies/*.html")
	if err != nil {
		return nil, fmt.Errorf("error parsing templates: %w", err)
	}

	feeds := make(map[string]string, len(groups))
	for _, g := range groups {
		name := g + "_galaxy.html"
		if t.Lookup(name) == nil {
			name = GenericFeedTemplate
		}
		feeds[g] = name
		log.Debug("feed template resolved", zap.String("group", g), zap.String("template", name))
	}
	return &Renderer{templates: t, feeds: feeds, log: log}, nil
}

// FeedTemplate returns the template name for a group's feed.
func (r *Renderer) FeedTemplate(group string) string {
	if name, ok := r.feeds[group]; ok {
		return name
	}
	return GenericFeedTemplate
}

// Render executes name into a buffer first so that a failing template never
// sends a partial page, then writes it with the given status.
func (r *Renderer) Render(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := r.templates.ExecuteTemplate(&buf, name, data); err != nil {
		r.log.Error("error rendering template", zap.String("template", name), zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		r.log.Debug("error writing response", zap.Error(err))
	}
}

// Static serves the embedded CSS and JavaScript.
func Static() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.FileServerFS(sub)
}

var funcs = template.FuncMap{
	"formatDateTime": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format("Jan 02, 2006 at 15:04")
	},
	"title": func(s string) string {
		r, size := utf8.DecodeRuneInString(s)
		if r == utf8.RuneError {
			return s
		}
		return string(unicode.ToUpper(r)) + s[size:]
	},
}
