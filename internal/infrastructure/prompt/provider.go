package prompt

import (
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/shelfscan/backend/internal/domain"
	"github.com/tyler-sommer/stick"
)

//go:embed templates/*.twig
var templateFS embed.FS

// Provider renders Twig prompt templates with stick
type Provider struct {
	env       *stick.Env
	templates map[string]string
	vars      map[string]stick.Value
}

// Option configures a Provider
type Option func(*Provider) error

// WithFS loads every *.twig file found under dir in the supplied FS
func WithFS(fsys fs.FS, dir string) Option {
	return func(p *Provider) error {
		return fs.WalkDir(fsys, dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !strings.HasSuffix(path, ".twig") {
				return nil
			}
			content, readErr := fs.ReadFile(fsys, path)
			if readErr != nil {
				return fmt.Errorf("read %s: %w", path, readErr)
			}
			tag := strings.TrimSuffix(filepath.Base(path), ".twig")
			p.templates[tag] = string(content)
			return nil
		})
	}
}

// WithTemplate adds or replaces one template
func WithTemplate(tag, tpl string) Option {
	return func(p *Provider) error {
		p.templates[tag] = tpl
		return nil
	}
}

// WithVar adds a variable available to all templates
func WithVar(key string, value any) Option {
	return func(p *Provider) error {
		p.vars[key] = value
		return nil
	}
}

// New builds a provider preloaded with the embedded templates and the
// canonical category list
func New(opts ...Option) (*Provider, error) {
	categories := make([]string, 0, len(domain.Categories))
	for _, c := range domain.Categories {
		categories = append(categories, fmt.Sprintf("%q", string(c)))
	}

	p := &Provider{
		env:       stick.New(nil),
		templates: make(map[string]string),
		vars: map[string]stick.Value{
			"currency":      "IDR",
			"category_list": strings.Join(categories, ", "),
		},
	}

	defaults := []Option{WithFS(templateFS, "templates")}
	for _, opt := range append(defaults, opts...) {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Render executes the template registered under tag. Per-call vars
// override the provider-wide ones.
func (p *Provider) Render(tag string, vars map[string]any) (string, error) {
	tpl, ok := p.templates[tag]
	if !ok {
		return "", fmt.Errorf("template %q not found", tag)
	}

	templateCtx := make(map[string]stick.Value, len(p.vars)+len(vars)+1)
	templateCtx["tag"] = tag
	for k, v := range p.vars {
		templateCtx[k] = v
	}
	for k, v := range vars {
		templateCtx[k] = v
	}

	var out strings.Builder
	if err := p.env.Execute(tpl, &out, templateCtx); err != nil {
		return "", fmt.Errorf("execute %q: %w", tag, err)
	}
	return strings.TrimSpace(out.String()), nil
}

// Tags lists the registered template tags
func (p *Provider) Tags() []string {
	tags := make([]string, 0, len(p.templates))
	for tag := range p.templates {
		tags = append(tags, tag)
	}
	return tags
}
