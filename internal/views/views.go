// Package views holds the HTML pages. Each page is parsed together with the shared
// layout so it can be rendered as a full document or, for HTMX requests, as the
// bare "content" fragment.
package views

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"time"
)

//go:embed templates/*.html
var files embed.FS

// Page is the data every template receives.
type Page struct {
	Title     string
	CSRFToken string
	Nonce     string
	Flash     string
	Admin     bool
	Data      any
}

type Renderer struct {
	pages map[string]*template.Template
}

var pageNames = []string{
	"start", "intro", "instruction", "survey", "complete",
	"admin_login", "admin",
}

var funcs = template.FuncMap{
	"add": func(a, b int) int { return a + b },
	"clock": func(d time.Duration) string {
		d = d.Round(time.Second)
		h := int(d / time.Hour)
		m := int(d%time.Hour) / int(time.Minute)
		s := int(d%time.Minute) / int(time.Second)
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	},
	"percent": func(n, total int) int {
		if total == 0 {
			return 0
		}
		return n * 100 / total
	},
	"safeJS": func(s string) template.JS { return template.JS(s) },
}

func New() (*Renderer, error) {
	r := &Renderer{pages: make(map[string]*template.Template, len(pageNames))}
	for _, name := range pageNames {
		t, err := template.New(name).Funcs(funcs).ParseFS(files, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", name, err)
		}
		r.pages[name] = t
	}
	return r, nil
}

// Render writes page. A partial render skips the layout.
func (r *Renderer) Render(w io.Writer, name string, p Page, partial bool) error {
	t, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("unknown page %q", name)
	}
	if partial {
		return t.ExecuteTemplate(w, "content", p)
	}
	return t.ExecuteTemplate(w, "layout", p)
}
