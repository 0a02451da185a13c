// Package site serves the marketing pages and their static assets. Pages are
// html/template files embedded in the binary and rendered through a shared
// layout.
package site

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"primos/internal/core"
	"primos/internal/types"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Page is one GET route rendered from templates/<Template>.html.
type Page struct {
	Path     string
	Template string
	Title    string
}

// Pages lists every page route.
var Pages = []Page{
	{Path: "/", Template: "home", Title: "Inicio"},
	{Path: "/team", Template: "team", Title: "Equipo"},
	{Path: "/family", Template: "family", Title: "Familia"},
	{Path: "/revolution", Template: "revolution", Title: "Revolución"},
	{Path: "/contacts", Template: "contacts", Title: "Contacto"},
	{Path: "/payment", Template: "payment", Title: "Apoyar"},
	{Path: "/payment-success", Template: "payment_success", Title: "Gracias"},
	{Path: "/payment-cancel", Template: "payment_cancel", Title: "Pago cancelado"},
}

const staticCacheControl = "public, max-age=86400"

// Config holds what the pages need from the environment.
type Config struct {
	// PublishableKey is handed to the checkout page for Stripe.js.
	PublishableKey string
}

type pageData struct {
	Name           string
	Title          string
	Year           int
	PublishableKey string
}

// Site renders pages and serves /static/*.
type Site struct {
	templates map[string]*template.Template
	titles    map[string]string
	static    fs.FS
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
}

// New parses every page template against the layout.
func New(cfg Config, logger *slog.Logger) (*Site, error) {
	if logger == nil {
		logger = slog.Default()
	}

	static, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("site: static assets: %w", err)
	}

	s := &Site{
		templates: make(map[string]*template.Template, len(Pages)),
		titles:    make(map[string]string, len(Pages)),
		static:    static,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
	for _, p := range Pages {
		tmpl, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+p.Template+".html")
		if err != nil {
			return nil, fmt.Errorf("site: parse %s: %w", p.Template, err)
		}
		s.templates[p.Template] = tmpl
		s.titles[p.Template] = p.Title
	}
	return s, nil
}

// RegisterRoutes mounts the page routes and /static/*, gzip-compressed.
func (s *Site) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(core.CompressionMiddleware)

		for _, p := range Pages {
			name := p.Template
			r.Get(p.Path, func(w http.ResponseWriter, r *http.Request) {
				s.Render(w, r, name)
			})
		}

		files := http.StripPrefix("/static/", http.FileServerFS(s.static))
		r.Get("/static/*", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", staticCacheControl)
			files.ServeHTTP(w, r)
		})
	})
}

// Render writes the named page. An unknown name or a template failure is
// answered with 500.
func (s *Site) Render(w http.ResponseWriter, r *http.Request, name string) {
	tmpl, ok := s.templates[name]
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeInternalTemplate,
			"Internal server error", fmt.Errorf("unknown template %q", name)))
		return
	}

	data := pageData{
		Name:  name,
		Title: s.titles[name],
		Year:  s.now().Year(),
	}
	if name == "payment" {
		data.PublishableKey = s.cfg.PublishableKey
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		types.LoggerFromContext(r.Context(), s.logger).ErrorContext(r.Context(), "page render failed",
			slog.String("template", name), "error", err)
		core.Error(w, r, types.NewAppError(types.ErrCodeInternalTemplate, "Internal server error", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// Probe reports whether every page template is loaded.
func (s *Site) Probe() core.HealthProbe {
	return core.ProbeFunc{
		ProbeName: "templates",
		Fn: func(context.Context) error {
			for _, p := range Pages {
				if s.templates[p.Template] == nil {
					return fmt.Errorf("template %q not loaded", p.Template)
				}
			}
			return nil
		},
	}
}
