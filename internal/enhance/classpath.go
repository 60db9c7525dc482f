package enhance

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/conduit-lang/ormeta/internal/meta"
)

// ClassDef declares one class of a class path manifest.
type ClassDef struct {
	Name       string   `yaml:"name"`
	Super      string   `yaml:"super,omitempty"`
	Interfaces []string `yaml:"interfaces,omitempty"`
	Interface  bool     `yaml:"interface,omitempty"`
	Abstract   bool     `yaml:"abstract,omitempty"`
	// Enhanced classes register with the runtime when initialized.
	Enhanced bool   `yaml:"enhanced,omitempty"`
	Alias    string `yaml:"alias,omitempty"`
	IDClass  string `yaml:"id_class,omitempty"`
}

// Manifest is the on-disk list of classes a class path can load.
type Manifest struct {
	Classes []ClassDef `yaml:"classes"`
}

// ReadManifest parses a YAML class manifest from fs.
func ReadManifest(fs afero.Fs, path string) (*Manifest, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read class manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse class manifest %s: %w", path, err)
	}
	return &m, nil
}

// builtinNames load as builtin classes from every class path.
var builtinNames = map[string]bool{
	"bool": true, "string": true, "byte": true, "rune": true,
	"int": true, "int8": true, "int16": true, "int32": true, "int64": true,
	"uint": true, "uint8": true, "uint16": true, "uint32": true, "uint64": true,
	"float32": true, "float64": true, "time.Time": true, "time.Duration": true,
	"error": true, "any": true,
}

// ClassPath is a meta.Loader over a fixed set of class definitions. Every
// class path defines its own Class values, so the same name loaded from two
// class paths yields two distinct classes.
type ClassPath struct {
	name     string
	registry *Registry
	logger   *zap.Logger

	mu          sync.Mutex
	defs        map[string]ClassDef
	classes     map[string]*meta.Class
	initialized map[*meta.Class]bool
}

// NewClassPath creates a class path named name. Enhanced classes register
// with registry when initialized; a nil registry disables registration.
func NewClassPath(name string, registry *Registry, defs []ClassDef, logger *zap.Logger) (*ClassPath, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &ClassPath{
		name:        name,
		registry:    registry,
		logger:      logger,
		defs:        make(map[string]ClassDef, len(defs)),
		classes:     make(map[string]*meta.Class),
		initialized: make(map[*meta.Class]bool),
	}
	for _, def := range defs {
		if def.Name == "" {
			return nil, fmt.Errorf("class path %s: class definition without a name", name)
		}
		if _, dup := p.defs[def.Name]; dup {
			return nil, fmt.Errorf("class path %s: class %s is defined twice", name, def.Name)
		}
		p.defs[def.Name] = def
	}
	return p, nil
}

func (p *ClassPath) String() string { return p.name }

// Names returns the names of every defined class, sorted.
func (p *ClassPath) Names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, 0, len(p.defs))
	for name := range p.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadClass returns the class named name, defining it and its supertypes on
// first use. Initializing an enhanced class registers it, superclasses
// first.
func (p *ClassPath) LoadClass(name string, initialize bool) (*meta.Class, error) {
	p.mu.Lock()
	cls, err := p.define(name, make(map[string]bool))
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if initialize {
		if err := p.initialize(cls); err != nil {
			return nil, err
		}
	}
	return cls, nil
}

// define must be called with p.mu held.
func (p *ClassPath) define(name string, visiting map[string]bool) (*meta.Class, error) {
	if cls := p.classes[name]; cls != nil {
		return cls, nil
	}
	def, ok := p.defs[name]
	if !ok {
		if builtinNames[name] {
			cls := &meta.Class{Name: name, Builtin: true}
			p.classes[name] = cls
			return cls, nil
		}
		return nil, fmt.Errorf("%w: %s in class path %s", meta.ErrClassNotFound, name, p.name)
	}
	if visiting[name] {
		return nil, fmt.Errorf("class path %s: circular class hierarchy at %s", p.name, name)
	}
	visiting[name] = true

	cls := &meta.Class{Name: name, Interface: def.Interface, Abstract: def.Abstract}
	if def.Super != "" {
		sup, err := p.define(def.Super, visiting)
		if err != nil {
			return nil, fmt.Errorf("superclass of %s: %w", name, err)
		}
		cls.Super = sup
	}
	for _, iname := range def.Interfaces {
		iface, err := p.define(iname, visiting)
		if err != nil {
			return nil, fmt.Errorf("interface of %s: %w", name, err)
		}
		if !iface.Interface {
			return nil, fmt.Errorf("class path %s: %s implements %s, which is not an interface", p.name, name, iname)
		}
		cls.Interfaces = append(cls.Interfaces, iface)
	}
	p.classes[name] = cls
	return cls, nil
}

// identityClass returns the identity class named name, defining a plain
// value class when the manifest does not. p.mu must be held.
func (p *ClassPath) identityClass(name string) (*meta.Class, error) {
	if _, ok := p.defs[name]; ok {
		return p.define(name, make(map[string]bool))
	}
	if cls := p.classes[name]; cls != nil {
		return cls, nil
	}
	cls := &meta.Class{Name: name}
	p.classes[name] = cls
	return cls, nil
}

func (p *ClassPath) initialize(cls *meta.Class) error {
	p.mu.Lock()
	if p.initialized[cls] {
		p.mu.Unlock()
		return nil
	}
	p.initialized[cls] = true
	def := p.defs[cls.Name]

	var persSuper, idCls *meta.Class
	for sup := cls.Super; sup != nil; sup = sup.Super {
		if p.defs[sup.Name].Enhanced {
			persSuper = sup
			break
		}
	}
	if def.IDClass != "" {
		var err error
		if idCls, err = p.identityClass(def.IDClass); err != nil {
			p.mu.Unlock()
			return err
		}
	}
	p.mu.Unlock()

	if cls.Super != nil {
		if err := p.initialize(cls.Super); err != nil {
			return err
		}
	}
	if !def.Enhanced || p.registry == nil {
		return nil
	}

	p.logger.Debug("registering class",
		zap.String("classpath", p.name), zap.Stringer("class", cls), zap.String("alias", def.Alias))
	return p.registry.Register(Registration{
		Class:                cls,
		PersistentSuperclass: persSuper,
		Alias:                def.Alias,
		ObjectIDClass:        idCls,
	})
}

// MultiLoader tries each loader in order. A failure other than a missing
// class stops the search.
type MultiLoader []meta.Loader

func (m MultiLoader) LoadClass(name string, initialize bool) (*meta.Class, error) {
	for _, l := range m {
		cls, err := l.LoadClass(name, initialize)
		if err == nil {
			return cls, nil
		}
		if !errors.Is(err, meta.ErrClassNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s", meta.ErrClassNotFound, name)
}
