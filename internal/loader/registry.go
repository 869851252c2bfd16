// Package loader defines the dispatch contract between the population engine
// and the plugins that bring published content into a scene.
package loader

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/pypeclub/tmplbuild/api"
)

var ErrLoaderNotFound = errors.New("loader not found")

// Request is everything a plugin needs to load one representation for one
// placeholder.
type Request struct {
	Representation *api.Representation
	// Placeholder is the marker node the content is loaded for.
	Placeholder api.NodeRef
	// Loader is the registry key named by the placeholder.
	Loader string
	Args   api.LoaderArgs
}

// Plugin imports content into a host scene. Load may fail or panic; callers
// treat both as a failed load.
type Plugin interface {
	Name() string
	Load(req Request) (*api.Container, error)
}

// Registry maps loader names to plugins. It is populated once at startup.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]Plugin
}

func NewRegistry(plugins ...Plugin) *Registry {
	r := &Registry{plugins: make(map[string]Plugin)}
	for _, p := range plugins {
		r.Register(p)
	}
	return r
}

// Register adds or replaces a plugin under its Name.
func (r *Registry) Register(p Plugin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins[p.Name()] = p
}

// Get returns the plugin registered under name.
func (r *Registry) Get(name string) (Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLoaderNotFound, name)
	}
	return p, nil
}

// Names lists registered loader names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.plugins))
	for n := range r.plugins {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Dispatch looks up req.Loader and runs it. A nil container from a plugin
// that reported no error is treated as a failure.
func (r *Registry) Dispatch(req Request) (*api.Container, error) {
	p, err := r.Get(req.Loader)
	if err != nil {
		return nil, err
	}
	c, err := p.Load(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", req.Loader, err)
	}
	if c == nil {
		return nil, fmt.Errorf("%s: returned no container", req.Loader)
	}
	return c, nil
}

// Func adapts a function to the Plugin interface.
type Func struct {
	LoaderName string
	Fn         func(req Request) (*api.Container, error)
}

func (f Func) Name() string { return f.LoaderName }

func (f Func) Load(req Request) (*api.Container, error) { return f.Fn(req) }
