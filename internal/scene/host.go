package scene

import (
	"errors"
	"fmt"
	"slices"

	"github.com/go-git/go-billy/v5"
	"github.com/pypeclub/tmplbuild/api"
	"github.com/pypeclub/tmplbuild/internal/host"
	"github.com/pypeclub/tmplbuild/internal/loader"
	"github.com/pypeclub/tmplbuild/internal/placeholder"
	"github.com/sirupsen/logrus"
)

// Container attribute keys.
const (
	AttrRepresentation = "representation"
	AttrLoader         = "loader"
	AttrNamespace      = "namespace"
	AttrPath           = "path"
	AttrPlaceholder    = "placeholder"
)

// HostConfig configures a Host.
type HostConfig struct {
	// FS holds the workfile and template files.
	FS billy.Filesystem
	// Path of the current workfile within FS.
	Path string
	// Asset is the current context's asset name. Imported templates are
	// rooted under a node with this name.
	Asset  string
	Logger *logrus.Logger
}

// Host implements host.Host over a Store persisted as a YAML workfile.
type Host struct {
	fs    billy.Filesystem
	path  string
	asset string
	store *Store
	log   *logrus.Logger
}

var _ host.Host = (*Host)(nil)

// Open loads the workfile at cfg.Path, or starts an empty scene if it does
// not exist yet.
func Open(cfg HostConfig) (*Host, error) {
	if cfg.FS == nil {
		return nil, errors.New("scene: filesystem is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	store, err := LoadStore(cfg.FS, cfg.Path)
	if err != nil {
		return nil, err
	}
	return &Host{fs: cfg.FS, path: cfg.Path, asset: cfg.Asset, store: store, log: cfg.Logger}, nil
}

// Store exposes the underlying node store.
func (h *Host) Store() *Store { return h.store }

// Save writes the scene back to its workfile.
func (h *Host) Save() error {
	return WriteWorkfile(h.fs, h.path, h.store.Workfile())
}

// TemplateNodes implements host.Host.
func (h *Host) TemplateNodes() ([]api.NodeRef, error) {
	ids := h.store.Marked(api.MarkerPlaceholder)
	refs := make([]api.NodeRef, len(ids))
	for i, id := range ids {
		refs[i] = api.NodeRef(id)
	}
	return refs, nil
}

// PlaceholderData implements host.Host.
func (h *Host) PlaceholderData(node api.NodeRef) (map[string]any, error) {
	n, err := h.store.Get(string(node))
	if err != nil {
		return nil, err
	}
	return n.Attributes, nil
}

// ParentInHierarchy moves the container node next to its placeholder and
// records which placeholder produced it.
// Containers of the same placeholder stay in load order.
func (h *Host) ParentInHierarchy(node api.NodeRef, c *api.Container) error {
	anchor, err := h.lastPlacedFor(node)
	if err != nil {
		return err
	}
	if err := h.store.PlaceAfter(c.ID, anchor); err != nil {
		return fmt.Errorf("parent %s: %w", c.ID, err)
	}
	return h.store.SetAttribute(c.ID, AttrPlaceholder, string(node))
}

// lastPlacedFor returns the last container directly following the marker
// that was parented to it, or the marker itself.
func (h *Host) lastPlacedFor(node api.NodeRef) (string, error) {
	marker, err := h.store.Get(string(node))
	if err != nil {
		return "", err
	}
	siblings := h.store.Roots()
	if marker.Parent != "" {
		if siblings, err = h.store.Children(marker.Parent); err != nil {
			return "", err
		}
	}
	anchor := marker.ID
	for _, id := range siblings[slices.Index(siblings, marker.ID)+1:] {
		n, err := h.store.Get(id)
		if err != nil {
			return "", err
		}
		if n.Attributes[AttrPlaceholder] != string(node) {
			break
		}
		anchor = id
	}
	return anchor, nil
}

// Clean removes a processed marker. Markers declaring keep_placeholder are
// hidden instead so later update runs still find them.
func (h *Host) Clean(node api.NodeRef) error {
	n, err := h.store.Get(string(node))
	if err != nil {
		return err
	}
	keep, err := placeholder.ParseKeep(n.Attributes[placeholder.KeyKeepPlaceholder])
	if err != nil {
		return fmt.Errorf("clean %s: %w", n.ID, err)
	}
	if keep {
		return h.store.SetAttribute(n.ID, AttrHidden, true)
	}
	h.log.WithField("node", n.ID).Debug("removing placeholder")
	return h.store.Remove(n.ID)
}

// ImportTemplate copies the template workfile at path under a new root
// named after the current asset. Node ids are prefixed with that root.
func (h *Host) ImportTemplate(path string) error {
	if h.store.RootNamed(h.asset) {
		return fmt.Errorf("%w: scene already has %q", host.ErrTemplateAlreadyImported, h.asset)
	}
	tmpl, err := ReadWorkfile(h.fs, path)
	if err != nil {
		return err
	}

	root := h.asset
	if err := h.store.Add(api.SceneNode{ID: root, Name: h.asset}); err != nil {
		return err
	}
	for _, n := range tmpl.Nodes {
		n.ID = root + "/" + n.ID
		if n.Parent == "" {
			n.Parent = root
		} else {
			n.Parent = root + "/" + n.Parent
		}
		if err := h.store.Add(n); err != nil {
			// Roll back the partial import.
			if rmErr := h.store.Remove(root); rmErr != nil {
				err = errors.Join(err, rmErr)
			}
			return fmt.Errorf("import %s: %w", path, err)
		}
	}
	h.log.WithFields(logrus.Fields{
		"template": path,
		"asset":    h.asset,
		"nodes":    len(tmpl.Nodes),
	}).Info("template imported")
	return nil
}

// LoadedContainers implements host.Host.
func (h *Host) LoadedContainers() ([]api.Container, error) {
	var out []api.Container
	for _, id := range h.store.Marked(api.MarkerContainer) {
		n, err := h.store.Get(id)
		if err != nil {
			return nil, err
		}
		out = append(out, containerOf(n))
	}
	return out, nil
}

// Load dispatches to the registry and records the container in the scene.
func (h *Host) Load(loaders *loader.Registry, req loader.Request) (*api.Container, error) {
	c, err := loaders.Dispatch(req)
	if err != nil {
		return nil, err
	}
	attrs := map[string]any{
		api.MarkerContainer: true,
		AttrRepresentation:  c.Representation,
		AttrLoader:          c.Loader,
	}
	if c.Namespace != "" {
		attrs[AttrNamespace] = c.Namespace
	}
	if c.Path != "" {
		attrs[AttrPath] = c.Path
	}
	if err := h.store.Add(api.SceneNode{ID: c.ID, Name: c.Name, Attributes: attrs}); err != nil {
		return nil, fmt.Errorf("record container: %w", err)
	}
	return c, nil
}

func containerOf(n api.SceneNode) api.Container {
	str := func(k string) string {
		s, _ := n.Attributes[k].(string)
		return s
	}
	return api.Container{
		ID:             n.ID,
		Name:           n.Name,
		Representation: str(AttrRepresentation),
		Loader:         str(AttrLoader),
		Namespace:      str(AttrNamespace),
		Path:           str(AttrPath),
	}
}
