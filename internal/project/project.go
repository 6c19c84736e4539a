// Package project is the named-layer registry. A project file (YAML) lists
// vector layers by name, the groups they belong to and the subset filter
// expression persisted for each layer.
package project

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/tract-apportion/internal/geometry"
	"github.com/sells-group/tract-apportion/internal/layer"
	"github.com/sells-group/tract-apportion/internal/vector"
)

// Lookup failures, matched with errors.Is.
var (
	ErrLayerNotFound = eris.New("project: layer not found")
	ErrGroupNotFound = eris.New("project: group not found")
)

const defaultLoadConcurrency = 4

// Registry resolves layers and groups by name.
type Registry interface {
	// Layer returns the named layer with its subset applied.
	Layer(ctx context.Context, name string) (*layer.Layer, error)
	// Group returns the member layers of the named group in declared order.
	Group(ctx context.Context, name string) ([]*layer.Layer, error)
	// SetSubset stores expr as the persistent subset of the named layer. An
	// empty expr clears it.
	SetSubset(ctx context.Context, name, expr string) error
	// Names lists every registered layer.
	Names() []string
}

// File is the project document.
type File struct {
	Layers []LayerSpec `yaml:"layers"`
	Groups []GroupSpec `yaml:"groups,omitempty"`
}

// LayerSpec registers one vector layer.
type LayerSpec struct {
	Name string `yaml:"name"`
	// Path is relative to the project file unless absolute.
	Path  string `yaml:"path"`
	Table string `yaml:"table,omitempty"`
	// CRS is assumed when the file itself carries no coordinate system.
	CRS    string `yaml:"crs,omitempty"`
	Subset string `yaml:"subset,omitempty"`
}

// GroupSpec names an ordered set of layers.
type GroupSpec struct {
	Name   string   `yaml:"name"`
	Layers []string `yaml:"layers"`
}

// Option configures a Project.
type Option func(*Project)

// WithTargetCRS reprojects every layer into crs when it is loaded.
func WithTargetCRS(crs geometry.CRS) Option {
	return func(p *Project) { p.targetCRS = crs }
}

// WithLoadConcurrency bounds how many group members are read at once.
func WithLoadConcurrency(n int) Option {
	return func(p *Project) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// Project is a Registry backed by a project file.
type Project struct {
	path        string
	targetCRS   geometry.CRS
	concurrency int
	subsets     *subsetEngine

	mu    sync.Mutex
	file  File
	cache map[string]*layer.Layer
}

var _ Registry = (*Project)(nil)

// Open reads the project file at path.
func Open(path string, opts ...Option) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "project: read %s", path)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "project: parse %s", path)
	}
	if err := f.validate(); err != nil {
		return nil, eris.Wrapf(err, "project: %s", path)
	}

	return newProject(path, f, opts...)
}

// Create starts an empty project that is written to path on the first Save.
func Create(path string, opts ...Option) (*Project, error) {
	return newProject(path, File{}, opts...)
}

func newProject(path string, f File, opts ...Option) (*Project, error) {
	subsets, err := newSubsetEngine()
	if err != nil {
		return nil, err
	}

	p := &Project{
		path:        path,
		concurrency: defaultLoadConcurrency,
		subsets:     subsets,
		file:        f,
		cache:       make(map[string]*layer.Layer),
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

func (f File) validate() error {
	seen := make(map[string]bool, len(f.Layers))
	for i, l := range f.Layers {
		if strings.TrimSpace(l.Name) == "" {
			return eris.Errorf("layer %d has no name", i)
		}
		if l.Path == "" {
			return eris.Errorf("layer %q has no path", l.Name)
		}
		if seen[l.Name] {
			return eris.Errorf("layer %q is registered twice", l.Name)
		}
		seen[l.Name] = true
	}

	groups := make(map[string]bool, len(f.Groups))
	for _, g := range f.Groups {
		if groups[g.Name] {
			return eris.Errorf("group %q is declared twice", g.Name)
		}
		groups[g.Name] = true
		for _, m := range g.Layers {
			if !seen[m] {
				return eris.Errorf("group %q: unknown layer %q", g.Name, m)
			}
		}
	}
	return nil
}

// Path returns the project file location.
func (p *Project) Path() string { return p.path }

// Names lists every registered layer in file order.
func (p *Project) Names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	names := make([]string, len(p.file.Layers))
	for i, l := range p.file.Layers {
		names[i] = l.Name
	}
	return names
}

// Spec returns the registration of the named layer.
func (p *Project) Spec(name string) (LayerSpec, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	i := p.indexOf(name)
	if i < 0 {
		return LayerSpec{}, false
	}
	return p.file.Layers[i], true
}

// Groups returns the declared groups.
func (p *Project) Groups() []GroupSpec {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]GroupSpec, len(p.file.Groups))
	copy(out, p.file.Groups)
	return out
}

func (p *Project) indexOf(name string) int {
	for i, l := range p.file.Layers {
		if l.Name == name {
			return i
		}
	}
	return -1
}

// Layer loads the named layer and applies its subset.
func (p *Project) Layer(ctx context.Context, name string) (*layer.Layer, error) {
	spec, ok := p.Spec(name)
	if !ok {
		return nil, eris.Wrapf(ErrLayerNotFound, "project: layer %q", name)
	}

	l, err := p.load(ctx, spec)
	if err != nil {
		return nil, err
	}
	if spec.Subset == "" {
		return l, nil
	}
	return p.subsets.Apply(ctx, l, spec.Subset)
}

// Group loads every member of the named group, reading up to the configured
// number of files in parallel.
func (p *Project) Group(ctx context.Context, name string) ([]*layer.Layer, error) {
	var members []string
	found := false
	for _, g := range p.Groups() {
		if g.Name == name {
			members, found = g.Layers, true
			break
		}
	}
	if !found {
		return nil, eris.Wrapf(ErrGroupNotFound, "project: group %q", name)
	}

	out := make([]*layer.Layer, len(members))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for i, m := range members {
		g.Go(func() error {
			l, err := p.Layer(gctx, m)
			if err != nil {
				return err
			}
			out[i] = l
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrapf(err, "project: load group %q", name)
	}
	return out, nil
}

// load reads and reprojects a layer, caching the unfiltered result.
func (p *Project) load(ctx context.Context, spec LayerSpec) (*layer.Layer, error) {
	p.mu.Lock()
	cached, ok := p.cache[spec.Name]
	p.mu.Unlock()
	if ok {
		return cached, nil
	}

	log := zap.L().With(zap.String("component", "project"), zap.String("layer", spec.Name))

	l, err := vector.Read(ctx, vector.Source{Name: spec.Name, Path: p.resolve(spec.Path), Table: spec.Table})
	if err != nil {
		return nil, eris.Wrapf(err, "project: load layer %q", spec.Name)
	}

	if l.CRS.IsZero() && spec.CRS != "" {
		crs, err := geometry.ParseCRS(spec.CRS)
		if err != nil {
			return nil, eris.Wrapf(err, "project: layer %q", spec.Name)
		}
		l.CRS = crs
	}

	if !p.targetCRS.IsZero() {
		if l.CRS.IsZero() {
			log.Warn("layer has no coordinate system, assuming target CRS", zap.String("crs", p.targetCRS.Def))
			l.CRS = p.targetCRS
		}
		r, err := geometry.NewReprojector(l.CRS, p.targetCRS)
		if err != nil {
			return nil, eris.Wrapf(err, "project: layer %q", spec.Name)
		}
		if l, err = l.Reproject(r, p.targetCRS); err != nil {
			return nil, eris.Wrapf(err, "project: reproject layer %q", spec.Name)
		}
	}

	log.Debug("layer loaded", zap.Int("features", l.Len()), zap.String("crs", l.CRS.Def))

	p.mu.Lock()
	p.cache[spec.Name] = l
	p.mu.Unlock()
	return l, nil
}

func (p *Project) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(filepath.Dir(p.path), path)
}

// SetSubset validates expr against the layer, stores it and saves the
// project file.
func (p *Project) SetSubset(ctx context.Context, name, expr string) error {
	spec, ok := p.Spec(name)
	if !ok {
		return eris.Wrapf(ErrLayerNotFound, "project: layer %q", name)
	}

	expr = strings.TrimSpace(expr)
	if expr != "" {
		l, err := p.load(ctx, spec)
		if err != nil {
			return err
		}
		if _, err := p.subsets.Apply(ctx, l, expr); err != nil {
			return eris.Wrapf(err, "project: layer %q", name)
		}
	}

	p.mu.Lock()
	if i := p.indexOf(name); i >= 0 {
		p.file.Layers[i].Subset = expr
	}
	p.mu.Unlock()

	return p.Save()
}

// AddLayer registers spec, replacing any layer with the same name, and saves
// the project file.
func (p *Project) AddLayer(spec LayerSpec) error {
	if strings.TrimSpace(spec.Name) == "" || spec.Path == "" {
		return eris.New("project: layer needs a name and a path")
	}

	p.mu.Lock()
	if i := p.indexOf(spec.Name); i >= 0 {
		p.file.Layers[i] = spec
	} else {
		p.file.Layers = append(p.file.Layers, spec)
	}
	delete(p.cache, spec.Name)
	p.mu.Unlock()

	return p.Save()
}

// Save writes the project file.
func (p *Project) Save() error {
	p.mu.Lock()
	data, err := yaml.Marshal(&p.file)
	p.mu.Unlock()
	if err != nil {
		return eris.Wrap(err, "project: encode")
	}

	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return eris.Wrapf(err, "project: write %s", tmp)
	}
	if err := os.Rename(tmp, p.path); err != nil {
		return eris.Wrapf(err, "project: replace %s", p.path)
	}
	return nil
}

// Close releases the subset evaluator.
func (p *Project) Close() error {
	return p.subsets.Close()
}
