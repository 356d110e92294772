// Package web embeds the HTML pages served at "/" and "/main".
package web

import (
	"bytes"
	"embed"
	"html/template"
	"log/slog"
	"net/http"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// Page names.
const (
	StartPage = "start.html"
	MainPage  = "main.html"
)

// PageData is passed to every page template.
type PageData struct {
	Title string
}

// PageHandler renders the named embedded template.
func PageHandler(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		var buf bytes.Buffer
		if err := templates.ExecuteTemplate(&buf, name, PageData{Title: "WorldLog TRPG"}); err != nil {
			slog.Error("web: failed to render page", "page", name, "error", err)
			http.Error(w, "failed to render page", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if _, err := buf.WriteTo(w); err != nil {
			slog.Debug("web: failed to write page", "page", name, "error", err)
		}
	}
}
