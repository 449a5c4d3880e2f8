package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"

	"github.com/yuin/goldmark"
	"go.uber.org/zap"

	"github.com/formdepartment/capsule/internal/backend"
	"github.com/formdepartment/capsule/internal/errors"
	"github.com/formdepartment/capsule/internal/suggest"
)

// PageData contains common fields used across all page templates.
type PageData struct {
	Title   string
	Version string
	Nav     string // active nav item: "wizard", "suggestions", "market", "palette", "admin"
}

// Card is one rendered section of a record.
type Card struct {
	Key   suggest.SectionKey
	Title string
	HTML  template.HTML
}

// WizardPageData is the template data for the wizard page.
type WizardPageData struct {
	PageData
	Params     suggest.Params
	Categories []suggest.Category
	Query      template.URL
}

// RecordPageData is the template data for the suggestions and market pages.
type RecordPageData struct {
	PageData
	Fingerprint string
	Source      string
	Cards       []Card
	Colors      []suggest.Color
	Query       template.URL // encoded params for links between pages
	Access      *backend.AccessResult
}

// PalettePageData is the template data for the palette page.
type PalettePageData struct {
	PageData
	Fingerprint string
	Colors      []suggest.Color
	Query       template.URL
}

// AdminPageData is the template data for the admin dashboard.
type AdminPageData struct {
	PageData
	Token       string
	Search      string
	Loaded      bool
	Metrics     backend.DashboardMetrics
	Subscribers []backend.Subscriber
}

// ErrorPageData is the template data for the error page.
type ErrorPageData struct {
	PageData
	StatusCode int
	Message    string
	Redirect   string
}

// Renderer manages template parsing and rendering.
type Renderer struct {
	templates map[string]*template.Template
	version   string
	logger    *zap.Logger
}

// NewRenderer creates a Renderer by parsing templates from the given FS.
func NewRenderer(templateFS fs.FS, version string, logger *zap.Logger) *Renderer {
	funcMap := template.FuncMap{
		"add":   func(a, b int) int { return a + b },
		"deref": derefInt,
	}

	// Parse layout as the base template
	layoutTmpl := template.Must(template.New("layout").Funcs(funcMap).ParseFS(templateFS, "layout.html"))

	pages := map[string]string{
		"wizard":      "wizard.html",
		"suggestions": "suggestions.html",
		"market":      "market.html",
		"palette":     "palette.html",
		"admin":       "admin.html",
		"error":       "error.html",
	}

	templates := make(map[string]*template.Template, len(pages))
	for name, file := range pages {
		t := template.Must(layoutTmpl.Clone())
		template.Must(t.ParseFS(templateFS, file))
		templates[name] = t
	}

	return &Renderer{
		templates: templates,
		version:   version,
		logger:    logger,
	}
}

// page returns PageData for a page with the renderer's version.
func (r *Renderer) page(title, nav string) PageData {
	return PageData{Title: title, Version: r.version, Nav: nav}
}

// renderPage renders a named page template with the given data and HTTP 200 status.
func (r *Renderer) renderPage(w http.ResponseWriter, req *http.Request, name string, data any) {
	r.renderPageStatus(w, req, http.StatusOK, name, data)
}

// renderPageStatus renders a named page template with the given data and HTTP status code.
func (r *Renderer) renderPageStatus(w http.ResponseWriter, req *http.Request, status int, name string, data any) {
	logger := loggerFrom(req.Context(), r.logger)

	t, ok := r.templates[name]
	if !ok {
		logger.Error("template not found", zap.String("template", name))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		logger.Error("template execution error", zap.String("template", name), zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// renderError renders an error response with content negotiation.
func (r *Renderer) renderError(w http.ResponseWriter, req *http.Request, err error) {
	cErr, ok := errors.As(err)
	if !ok {
		cErr = errors.NewInternal(err)
	}

	status := cErr.Status
	message := cErr.Message
	if status >= 500 {
		loggerFrom(req.Context(), r.logger).Warn("request failed", zap.Error(err))
	}

	// JSON request
	if wantsJSON(req) {
		body := map[string]any{
			"code":    string(cErr.Code),
			"message": message,
			"status":  status,
		}
		if redirect, ok := cErr.Details["redirect"].(string); ok {
			body["redirect"] = redirect
		}
		renderJSON(w, status, map[string]any{"error": body})
		return
	}

	// Full error page
	data := ErrorPageData{
		PageData:   r.page(fmt.Sprintf("Error %d", status), ""),
		StatusCode: status,
		Message:    message,
	}
	if redirect, ok := cErr.Details["redirect"].(string); ok {
		data.Redirect = redirect
	}
	r.renderPageStatus(w, req, status, "error", data)
}

// wantsJSON reports whether the client asked for JSON.
func wantsJSON(req *http.Request) bool {
	return strings.Contains(req.Header.Get("Accept"), "application/json") || req.URL.Query().Get("format") == "json"
}

// renderJSON writes a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// renderMarkdown converts markdown text to HTML using goldmark. Raw HTML in
// the input is dropped by goldmark's default renderer.
func renderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(md))
	}
	return template.HTML(buf.String())
}

// cards renders the sections of rec for keys, in key order. An absent
// section yields a card with empty HTML.
func cards(rec suggest.Record, keys ...suggest.SectionKey) []Card {
	entries := rec.Entries(keys...)
	out := make([]Card, 0, len(entries))
	for _, e := range entries {
		c := Card{Key: e.Key, Title: e.Title}
		if e.Body != "" {
			c.HTML = renderMarkdown(e.Body)
		}
		out = append(out, c)
	}
	return out
}

// derefInt dereferences an optional count for display.
func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
