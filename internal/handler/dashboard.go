package handler

import (
	"crypto/rand"
	"encoding/base64"
	"log/slog"
	"net/http"

	"github.com/a-h/templ"

	"github.com/studycompanion/studycompanion/internal/web"
)

// DashboardHandler serves the HTML front page.
type DashboardHandler struct {
	features []web.Feature
	logger   *slog.Logger
}

// NewDashboardHandler creates a new DashboardHandler.
func NewDashboardHandler(logger *slog.Logger) *DashboardHandler {
	return &DashboardHandler{features: web.DefaultFeatures(), logger: logger}
}

// Index handles GET /.
func (h *DashboardHandler) Index(w http.ResponseWriter, r *http.Request) {
	nonce, err := newNonce()
	if err != nil {
		h.logger.Error("failed to generate csp nonce", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
		return
	}

	// Overrides the API policy set by the security middleware.
	w.Header().Set("Content-Security-Policy",
		"default-src 'self'; script-src 'nonce-"+nonce+"'; style-src 'unsafe-inline'; "+
			"connect-src 'self'; base-uri 'none'; form-action 'self'; frame-ancestors 'none'")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	render(w, r, web.Dashboard(h.features), web.Layout(web.Page{Title: "Smart Study Companion", Nonce: nonce}))
}

// render writes content, wrapped by each wrapper in order.
func render(w http.ResponseWriter, r *http.Request, content templ.Component, wrappers ...func(templ.Component) templ.Component) {
	wrapped := content
	for _, wrap := range wrappers {
		wrapped = wrap(wrapped)
	}
	_ = wrapped.Render(r.Context(), w)
}

func newNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawStdEncoding.EncodeToString(b), nil
}
