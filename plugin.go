package grantrelay

import (
	"context"
	"slices"
	"strings"

	"github.com/dpup/grantrelay/errors"
	"google.golang.org/grpc/codes"
)

// Plugin is a named component registered with the server.
type Plugin interface {
	Name() string
}

// DependentPlugin lists plugins that must be registered, and are initialized
// first.
type DependentPlugin interface {
	Deps() []string
}

// OptionalDependentPlugin lists plugins that are initialized first when they
// are registered.
type OptionalDependentPlugin interface {
	OptDeps() []string
}

// InitializablePlugin is initialized by Server.Init after its dependencies.
// Plugins usually look up their collaborators in r here.
type InitializablePlugin interface {
	Init(ctx context.Context, r *Registry) error
}

// OptionProvider contributes server options, such as routes, when the plugin
// is added with WithPlugin.
type OptionProvider interface {
	ServerOptions() []ServerOption
}

// Registry holds plugins by name.
type Registry struct {
	plugins map[string]Plugin
	keys    []string
}

// Get returns the plugin registered as name, or nil.
func (r *Registry) Get(name string) Plugin {
	return r.plugins[name]
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	return slices.Clone(r.keys)
}

// Register adds plugin, replacing any plugin already registered under its
// name.
func (r *Registry) Register(plugin Plugin) {
	if r.plugins == nil {
		r.plugins = map[string]Plugin{}
	}
	name := plugin.Name()
	if _, dup := r.plugins[name]; !dup {
		r.keys = append(r.keys, name)
	}
	r.plugins[name] = plugin
}

// Init initializes every plugin once, dependencies first. The whole graph is
// checked before any plugin is initialized, so a missing dependency or a
// cycle leaves every plugin untouched.
func (r *Registry) Init(ctx context.Context) error {
	order, err := r.initOrder()
	if err != nil {
		return err
	}
	for _, name := range order {
		p, ok := r.plugins[name].(InitializablePlugin)
		if !ok {
			continue
		}
		if err := p.Init(ctx, r); err != nil {
			return errors.WrapPrefix(err, "plugin: failed to initialize '"+name+"'", 0)
		}
	}
	return nil
}

// initOrder sorts the registered plugins so that each follows everything it
// depends on.
func (r *Registry) initOrder() ([]string, error) {
	s := &sorter{r: r, done: map[string]bool{}}
	for _, name := range r.keys {
		if err := s.visit(name, true); err != nil {
			return nil, err
		}
	}
	return s.order, nil
}

type sorter struct {
	r     *Registry
	done  map[string]bool
	path  []string
	order []string
}

func (s *sorter) visit(name string, required bool) error {
	if s.done[name] {
		return nil
	}
	if slices.Contains(s.path, name) {
		return errors.Codef(codes.FailedPrecondition,
			"plugin: dependency cycle detected: %s", s.trail(name))
	}
	p, ok := s.r.plugins[name]
	if !ok {
		if !required {
			return nil
		}
		return errors.Codef(codes.FailedPrecondition,
			"plugin: missing dependency, '%s' not registered: %s", name, s.trail(name))
	}

	s.path = append(s.path, name)
	if d, ok := p.(DependentPlugin); ok {
		for _, dep := range d.Deps() {
			if err := s.visit(dep, true); err != nil {
				return err
			}
		}
	}
	if d, ok := p.(OptionalDependentPlugin); ok {
		for _, dep := range d.OptDeps() {
			if err := s.visit(dep, false); err != nil {
				return err
			}
		}
	}
	s.path = s.path[:len(s.path)-1]

	s.done[name] = true
	s.order = append(s.order, name)
	return nil
}

func (s *sorter) trail(last string) string {
	return strings.Join(append(slices.Clone(s.path), last), " -> ")
}
