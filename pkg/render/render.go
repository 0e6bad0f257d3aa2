package render

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"text/template"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// ErrNoTemplate is returned for languages without an embedded template.
var ErrNoTemplate = errors.New("no template for language")

// HandlerData fills a starter handler.
type HandlerData struct {
	Function string
	Export   string
}

// BootstrapData fills a script that loads Module from SourceDir, calls Export with
// the event read from stdin and writes the JSON result to stdout.
type BootstrapData struct {
	SourceDir string
	Module    string
	Export    string
}

// Engine renders the embedded handler scaffolds and local bootstraps.
type Engine struct {
	templates *template.Template
}

var (
	defaultOnce   sync.Once
	defaultEngine *Engine
	defaultErr    error
)

// Default returns a process-wide Engine, parsing the templates on first use.
func Default() (*Engine, error) {
	defaultOnce.Do(func() {
		defaultEngine, defaultErr = New()
	})
	return defaultEngine, defaultErr
}

// New parses every embedded template.
func New() (*Engine, error) {
	t, err := template.New("render").Funcs(template.FuncMap{
		"quote": quote,
	}).ParseFS(templatesFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Engine{templates: t}, nil
}

// quote renders s as a double-quoted literal that both JavaScript and Python accept.
func quote(s string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// Supports reports whether lang ("js", "py") has both a scaffold and a bootstrap.
func (e *Engine) Supports(lang string) bool {
	return e.lookup("handler", lang) != nil && e.lookup("bootstrap", lang) != nil
}

// Handler renders the starter handler for lang.
func (e *Engine) Handler(lang string, data HandlerData) (string, error) {
	return e.execute("handler", lang, data)
}

// Bootstrap renders the local runner script for lang.
func (e *Engine) Bootstrap(lang string, data BootstrapData) (string, error) {
	return e.execute("bootstrap", lang, data)
}

func (e *Engine) lookup(kind, lang string) *template.Template {
	if e == nil || e.templates == nil {
		return nil
	}
	return e.templates.Lookup(kind + "." + strings.ToLower(lang) + ".tmpl")
}

func (e *Engine) execute(kind, lang string, data any) (string, error) {
	if e == nil || e.templates == nil {
		return "", errors.New("nil engine")
	}
	t := e.lookup(kind, lang)
	if t == nil {
		return "", fmt.Errorf("%w %q (%s)", ErrNoTemplate, lang, kind)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}
