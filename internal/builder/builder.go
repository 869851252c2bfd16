// Package builder drives template population: it discovers placeholders in a
// host scene, resolves each against the asset database and loads the
// winning representations.
//
// A run is single-threaded. Loader failures are logged and skipped; host
// callback and database failures abort the run.
package builder

import (
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/pypeclub/tmplbuild/api"
	"github.com/pypeclub/tmplbuild/internal/config"
	"github.com/pypeclub/tmplbuild/internal/database"
	"github.com/pypeclub/tmplbuild/internal/host"
	"github.com/pypeclub/tmplbuild/internal/loader"
	"github.com/pypeclub/tmplbuild/internal/placeholder"
	"github.com/pypeclub/tmplbuild/internal/query"
	"github.com/pypeclub/tmplbuild/internal/resolve"
	"github.com/sirupsen/logrus"
)

var ErrPlaceholderNotFound = errors.New("placeholder not found")

// Config wires a Builder to its collaborators.
type Config struct {
	Host    host.Host
	DB      database.Database
	Loaders *loader.Registry
	Context config.Context
	Logger  *logrus.Logger
}

// Builder populates templates for one run context.
type Builder struct {
	host     host.Host
	db       database.Database
	loaders  *loader.Registry
	resolver *resolve.Resolver
	ctx      config.Context
	log      *logrus.Logger
}

func New(cfg Config) (*Builder, error) {
	if cfg.Host == nil {
		return nil, errors.New("builder: host is required")
	}
	if cfg.DB == nil {
		return nil, errors.New("builder: database is required")
	}
	if cfg.Loaders == nil {
		cfg.Loaders = loader.NewRegistry()
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Builder{
		host:     cfg.Host,
		db:       cfg.DB,
		loaders:  cfg.Loaders,
		resolver: resolve.New(cfg.DB),
		ctx:      cfg.Context,
		log:      cfg.Logger,
	}, nil
}

// run is the state shared by every placeholder of one population pass.
type run struct {
	asset   string
	linked  []string
	ignored map[string]struct{}
}

// LoadPanicError reports a loader that panicked instead of returning.
type LoadPanicError struct {
	Value any
	Stack []byte
}

func (e *LoadPanicError) Error() string {
	return fmt.Sprintf("loader panic: %v", e.Value)
}

// Placeholders returns the valid placeholders of the scene sorted by order.
// Invalid markers are logged and dropped.
func (b *Builder) Placeholders() ([]*placeholder.Placeholder, error) {
	nodes, err := b.host.TemplateNodes()
	if err != nil {
		return nil, fmt.Errorf("list template nodes: %w", err)
	}

	out := make([]*placeholder.Placeholder, 0, len(nodes))
	for _, node := range nodes {
		raw, err := b.host.PlaceholderData(node)
		if err != nil {
			return nil, fmt.Errorf("read placeholder %s: %w", node, err)
		}
		p, err := placeholder.Parse(node, raw)
		if err != nil {
			b.log.WithFields(logrus.Fields{
				"node":  node,
				"error": err,
			}).Warn("dropping invalid placeholder")
			continue
		}
		out = append(out, p)
	}
	placeholder.Sort(out)
	return out, nil
}

// Populate runs every placeholder in the scene. Representations whose id is
// in ignoredIDs are not loaded again.
func (b *Builder) Populate(ignoredIDs []string) error {
	r, err := b.newRun(ignoredIDs)
	if err != nil {
		return err
	}
	placeholders, err := b.Placeholders()
	if err != nil {
		return err
	}
	b.log.WithFields(logrus.Fields{
		"asset":        r.asset,
		"linked":       r.linked,
		"placeholders": len(placeholders),
		"ignored":      len(r.ignored),
	}).Info("populating template")

	for _, p := range placeholders {
		if err := b.populate(r, p); err != nil {
			return err
		}
	}
	return nil
}

// UpdateMissingContainers populates again, skipping every representation
// that already has a container in the scene.
func (b *Builder) UpdateMissingContainers() error {
	ids, err := b.loadedIDs()
	if err != nil {
		return err
	}
	return b.Populate(ids)
}

// UpdatePlaceholder populates a single placeholder, skipping representations
// already loaded in the scene.
func (b *Builder) UpdatePlaceholder(node api.NodeRef) error {
	ids, err := b.loadedIDs()
	if err != nil {
		return err
	}
	placeholders, err := b.Placeholders()
	if err != nil {
		return err
	}
	for _, p := range placeholders {
		if p.Node != node {
			continue
		}
		r, err := b.newRun(ids)
		if err != nil {
			return err
		}
		return b.populate(r, p)
	}
	return fmt.Errorf("%w: %s", ErrPlaceholderNotFound, node)
}

func (b *Builder) loadedIDs() ([]string, error) {
	containers, err := b.host.LoadedContainers()
	if err != nil {
		return nil, fmt.Errorf("list loaded containers: %w", err)
	}
	return host.ContainerIDs(containers), nil
}

func (b *Builder) newRun(ignoredIDs []string) (*run, error) {
	r := &run{
		asset:   b.ctx.Asset,
		ignored: make(map[string]struct{}, len(ignoredIDs)),
	}
	for _, id := range ignoredIDs {
		r.ignored[id] = struct{}{}
	}

	linked, err := database.LinkedAssetNames(b.db, r.asset)
	switch {
	case errors.Is(err, database.ErrNotFound):
		b.log.WithField("asset", r.asset).Warn("current asset not in database, no linked assets")
	case err != nil:
		return nil, fmt.Errorf("linked assets of %s: %w", r.asset, err)
	default:
		r.linked = linked
	}
	return r, nil
}

// populate processes one placeholder to its terminal state and always ends
// with postload.
func (b *Builder) populate(r *run, p *placeholder.Placeholder) error {
	log := b.log.WithFields(logrus.Fields{
		"placeholder": p.Node,
		"loader":      p.Loader,
	})

	matched := 0
	for rep, err := range b.resolver.Resolve(query.Filters(p, r.asset, r.linked)) {
		if err != nil {
			return fmt.Errorf("resolve %s: %w", p.Node, err)
		}
		matched++
		if _, skip := r.ignored[rep.ID]; skip {
			log.WithField("representation", rep.ID).Debug("already loaded, skipping")
			continue
		}
		if err := b.preload(p); err != nil {
			return err
		}
		c, err := b.load(p, rep)
		if err != nil {
			b.loadFailed(p, rep, err)
			continue
		}
		if err := b.loadSucceed(p, c); err != nil {
			return err
		}
	}
	if matched == 0 {
		log.WithFields(logrus.Fields{
			"builder_type":   p.BuilderType,
			"family":         p.Family,
			"representation": p.Representation,
		}).Info("no representation found for placeholder")
	}
	return b.postload(p)
}

func (b *Builder) preload(p *placeholder.Placeholder) error {
	pre, ok := b.host.(host.Preloader)
	if !ok {
		return nil
	}
	if err := pre.Preload(p); err != nil {
		return fmt.Errorf("preload %s: %w", p.Node, err)
	}
	return nil
}

// load runs the loader. A panic is reported as a *LoadPanicError.
func (b *Builder) load(p *placeholder.Placeholder, rep *api.Representation) (c *api.Container, err error) {
	defer func() {
		if v := recover(); v != nil {
			c, err = nil, &LoadPanicError{Value: v, Stack: debug.Stack()}
		}
	}()
	return b.host.Load(b.loaders, loader.Request{
		Representation: rep,
		Placeholder:    p.Node,
		Loader:         p.Loader,
		Args:           p.LoaderArgs,
	})
}

func (b *Builder) loadSucceed(p *placeholder.Placeholder, c *api.Container) error {
	if err := b.host.ParentInHierarchy(p.Node, c); err != nil {
		return fmt.Errorf("parent container %s: %w", c.ID, err)
	}
	b.log.WithFields(logrus.Fields{
		"placeholder":    p.Node,
		"container":      c.ID,
		"representation": c.Representation,
	}).Info("loaded")
	return nil
}

func (b *Builder) loadFailed(p *placeholder.Placeholder, rep *api.Representation, err error) {
	fields := logrus.Fields{
		"placeholder":    p.Node,
		"asset":          rep.Asset,
		"subset":         rep.Subset,
		"representation": rep.ID,
		"loader":         p.Loader,
	}
	var pe *LoadPanicError
	if errors.As(err, &pe) {
		fields["stack"] = string(pe.Stack)
	}
	b.log.WithFields(fields).WithError(err).Error("load failed")
}

func (b *Builder) postload(p *placeholder.Placeholder) error {
	if err := b.host.Clean(p.Node); err != nil {
		return fmt.Errorf("clean placeholder %s: %w", p.Node, err)
	}
	return nil
}
