package filter

import (
	"fmt"
	"strings"
	"sync"

	"github.com/kittclouds/memori/internal/errs"
)

// ParamType is the declared type of a template parameter.
type ParamType string

const (
	ParamString ParamType = "string"
	ParamNumber ParamType = "number"
	ParamBool   ParamType = "bool"
)

// Param describes one named, typed placeholder inside a Template's string.
type Param struct {
	Name       string
	Type       ParamType
	Required   bool
	Default    any
	Validation func(any) error
}

// Template is a named filter expression with `{param}` placeholders.
type Template struct {
	Name   string
	Expr   string
	Params []Param
}

// Registry is a process-wide mapping from template name to Template,
// initialised at startup and immutable after Seal.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]Template
	sealed    bool
}

// NewRegistry creates an empty, not-yet-sealed template registry.
func NewRegistry() *Registry {
	return &Registry{templates: make(map[string]Template)}
}

// Register adds a template. Panics if called after Seal, since the
// registry is documented as immutable thereafter.
func (r *Registry) Register(t Template) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		panic("filter: template registry is sealed; register before startup completes")
	}
	r.templates[t.Name] = t
}

// Seal freezes the registry; subsequent Register calls panic.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

// Get returns a copy of the named template.
func (r *Registry) Get(name string) (Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[name]
	return t, ok
}

// Instantiate substitutes string forms of args into the template's
// placeholders, then re-parses the resulting expression into an AST.
func (r *Registry) Instantiate(name string, args map[string]any) (*Node, error) {
	t, ok := r.Get(name)
	if !ok {
		return nil, errs.Parse(fmt.Sprintf("unknown filter template %q", name))
	}

	expr := t.Expr
	for _, p := range t.Params {
		val, provided := args[p.Name]
		if !provided {
			if p.Required {
				return nil, errs.Validation(p.Name, nil, "required", "missing required template parameter")
			}
			val = p.Default
		}
		if p.Validation != nil {
			if err := p.Validation(val); err != nil {
				return nil, errs.Validation(p.Name, val, "custom", err.Error())
			}
		}
		expr = strings.ReplaceAll(expr, "{"+p.Name+"}", renderValue(val))
	}

	return Parse(expr)
}
