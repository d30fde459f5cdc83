package templating

import (
	"strings"
	"sync"

	"github.com/nikolalohinski/gonja"
	"github.com/nikolalohinski/gonja/config"
	"github.com/nikolalohinski/gonja/exec"

	"github.com/iamd3vil/rlsr/errors"
)

// Renderer renders a template string against a data map.
type Renderer interface {
	Render(text string, data map[string]interface{}) (string, error)
}

// Engine is the gonja-backed Renderer. Undefined variables are errors.
type Engine struct {
	env *gonja.Environment
}

// EngineOption configures an Engine.
type EngineOption func(*engineOptions)

type engineOptions struct {
	filters exec.FilterSet
}

// WithFilters registers extra filters, replacing same-named ones.
func WithFilters(filters exec.FilterSet) EngineOption {
	return func(o *engineOptions) {
		for name, fn := range filters {
			o.filters[name] = fn
		}
	}
}

// WithChangelogFilters adds the filters only changelog templates get.
func WithChangelogFilters() EngineOption {
	return WithFilters(changelogFilters())
}

// NewEngine returns an Engine carrying the standard filter set.
func NewEngine(opts ...EngineOption) *Engine {
	o := &engineOptions{filters: exec.FilterSet{}}
	WithFilters(stringFilters())(o)
	for _, opt := range opts {
		opt(o)
	}

	cfg := config.NewConfig()
	cfg.StrictUndefined = true

	env := gonja.NewEnvironment(cfg, gonja.DefaultLoader)
	env.Filters.Update(o.filters)
	return &Engine{env: env}
}

var (
	defaultEngine     *Engine
	defaultEngineOnce sync.Once
)

// Default returns the shared Engine with the standard filter set.
func Default() *Engine {
	defaultEngineOnce.Do(func() { defaultEngine = NewEngine() })
	return defaultEngine
}

// Render implements Renderer. Text without template markers is returned
// unchanged.
func (e *Engine) Render(text string, data map[string]interface{}) (string, error) {
	if !strings.Contains(text, "{{") && !strings.Contains(text, "{%") {
		return text, nil
	}

	tpl, err := e.env.FromString(text)
	if err != nil {
		return "", errors.WrapWithContext(err, errors.CodeTemplateFailed, "failed to parse template",
			map[string]interface{}{"template": text})
	}
	out, err := tpl.Execute(data)
	if err != nil {
		return "", errors.WrapWithContext(err, errors.CodeTemplateFailed, "failed to render template",
			map[string]interface{}{"template": text})
	}
	return out, nil
}

// Render renders text against the scope's data.
func (s Scope) Render(r Renderer, text string) (string, error) {
	return r.Render(text, s.Data())
}

// RenderAll renders each entry of texts, stopping at the first failure.
func (s Scope) RenderAll(r Renderer, texts []string) ([]string, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	data := s.Data()
	out := make([]string, 0, len(texts))
	for _, t := range texts {
		v, err := r.Render(t, data)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// RenderMap renders the values of m; keys are rendered too.
func (s Scope) RenderMap(r Renderer, m map[string]string) (map[string]string, error) {
	if m == nil {
		return nil, nil
	}
	data := s.Data()
	out := make(map[string]string, len(m))
	for k, v := range m {
		rk, err := r.Render(k, data)
		if err != nil {
			return nil, err
		}
		rv, err := r.Render(v, data)
		if err != nil {
			return nil, err
		}
		out[rk] = rv
	}
	return out, nil
}
