// Package host declares the callbacks a scene application must provide for
// template population. The engine only ever talks to a scene through Host.
package host

import (
	"errors"

	"github.com/pypeclub/tmplbuild/api"
	"github.com/pypeclub/tmplbuild/internal/loader"
	"github.com/pypeclub/tmplbuild/internal/placeholder"
)

// ErrTemplateAlreadyImported is returned by ImportTemplate when the scene
// already holds a template for the current context.
var ErrTemplateAlreadyImported = errors.New("template already imported")

// Host is implemented once per scene application.
type Host interface {
	// TemplateNodes enumerates placeholder markers currently in the scene.
	TemplateNodes() ([]api.NodeRef, error)
	// PlaceholderData reads the raw attributes declared on a marker.
	PlaceholderData(node api.NodeRef) (map[string]any, error)
	// ParentInHierarchy places loaded content relative to its placeholder.
	ParentInHierarchy(node api.NodeRef, c *api.Container) error
	// Clean removes or finalizes a marker after it has been processed.
	Clean(node api.NodeRef) error
	// ImportTemplate brings a template file into the scene.
	ImportTemplate(path string) error
	// LoadedContainers lists containers already present in the scene.
	LoadedContainers() ([]api.Container, error)
	// Load dispatches a request to the loader registry. Hosts wrap the
	// dispatch with whatever scene bookkeeping a load needs.
	Load(loaders *loader.Registry, req loader.Request) (*api.Container, error)
}

// Preloader is an optional Host extension called before each load attempt.
type Preloader interface {
	Preload(p *placeholder.Placeholder) error
}

// ContainerIDs returns the representation ids of the given containers.
func ContainerIDs(cs []api.Container) []string {
	ids := make([]string, 0, len(cs))
	for _, c := range cs {
		if c.Representation != "" {
			ids = append(ids, c.Representation)
		}
	}
	return ids
}
