// Package factory loads metadata from YAML mapping documents.
package factory

import (
	"fmt"
	"sync"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/conduit-lang/ormeta/internal/meta"
)

// Options configures a Factory.
type Options struct {
	// Resources are mapping files or directories on the factory filesystem.
	Resources []string
	// Types restricts the persistent types of the unit. When empty every
	// mapped entity is persistent.
	Types    []string
	Defaults Defaults
}

// Factory is a meta.Factory over YAML mapping documents. Documents are read
// on first use and re-read after Clear.
type Factory struct {
	fs     afero.Fs
	opts   Options
	logger *zap.Logger

	mu        sync.Mutex
	parsed    bool
	entities  map[string]*EntityDoc
	order     []string
	scopes    map[string]string
	aware     map[string]bool
	nonMapped map[string]bool
	xml       map[string]*XMLDoc
}

// New creates a factory reading from fs.
func New(fs afero.Fs, opts Options, logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{fs: fs, opts: opts, logger: logger}
}

// ensureParsed must be called with f.mu held.
func (f *Factory) ensureParsed() error {
	if f.parsed {
		return nil
	}
	docs, err := ReadDocuments(f.fs, f.opts.Resources)
	if err != nil {
		return err
	}

	f.entities = make(map[string]*EntityDoc)
	f.order = nil
	f.scopes = make(map[string]string)
	f.aware = make(map[string]bool)
	f.nonMapped = make(map[string]bool)
	f.xml = make(map[string]*XMLDoc)
	defined := make(map[string]string)

	for _, doc := range docs {
		for i := range doc.Entities {
			e := &doc.Entities[i]
			if prev, dup := defined[e.Class]; dup {
				return fmt.Errorf("entity %s is mapped in both %s and %s", e.Class, prev, doc.path)
			}
			defined[e.Class] = doc.path
			f.entities[e.Class] = e
			f.order = append(f.order, e.Class)
			for _, q := range e.Queries {
				if _, dup := f.scopes[q.Name]; !dup {
					f.scopes[q.Name] = e.Class
				}
			}
		}
		for _, name := range doc.PersistenceAware {
			f.aware[name] = true
		}
		for _, name := range doc.NonMappedInterfaces {
			f.nonMapped[name] = true
		}
		for i := range doc.XML {
			f.xml[doc.XML[i].Class] = &doc.XML[i]
		}
	}
	f.parsed = true
	f.logger.Debug("parsed mapping documents",
		zap.Int("documents", len(docs)), zap.Int("entities", len(f.order)))
	return nil
}

func (f *Factory) entity(name string) (*EntityDoc, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ensureParsed(); err != nil {
		return nil, err
	}
	return f.entities[name], nil
}

func (f *Factory) Load(cat meta.Catalog, cls *meta.Class, mode meta.Mode, loader meta.Loader) error {
	if cls == nil {
		if !mode.Has(meta.ModeQuery) {
			return nil
		}
		return f.loadAllQueries(cat, loader)
	}

	e, err := f.entity(cls.Name)
	if err != nil {
		return err
	}
	if e == nil {
		if mode.Has(meta.ModeMeta) {
			return f.loadNonPersistent(cat, cls)
		}
		return nil
	}

	if mode.Has(meta.ModeMeta) {
		if err := f.loadMeta(cat, cls, e, loader); err != nil {
			return err
		}
	}
	if mode.Has(meta.ModeMapping) {
		f.loadMapping(cat, cls, e)
	}
	if mode.Has(meta.ModeQuery) {
		f.loadQueries(cat, cls, e, loader)
	}
	return nil
}

func (f *Factory) loadNonPersistent(cat meta.Catalog, cls *meta.Class) error {
	f.mu.Lock()
	aware, nonMapped := f.aware[cls.Name], f.nonMapped[cls.Name]
	f.mu.Unlock()

	switch {
	case aware:
		_, err := cat.AddPersistenceAware(cls)
		return err
	case nonMapped:
		_, err := cat.AddNonMappedInterface(cls)
		return err
	}
	return nil
}

func (f *Factory) loadMeta(cat meta.Catalog, cls *meta.Class, e *EntityDoc, loader meta.Loader) error {
	if cat.CachedMetaData(cls) != nil {
		return nil
	}
	access, err := meta.ParseAccessType(e.Access)
	if err != nil {
		return fmt.Errorf("entity %s: %w", e.Class, err)
	}
	m, err := cat.AddMetaData(cls, loader, access)
	if err != nil {
		return err
	}

	f.logger.Debug("loading class metadata", zap.Stringer("class", cls))
	m.SetSourceMode(meta.ModeMeta, true)
	m.SetEmbeddedOnly(e.Embedded)
	m.SetManagedInterface(e.ManagedInterface)
	if e.Alias != "" {
		m.SetAlias(e.Alias)
	}
	if e.IDClass != "" {
		id, err := loadClass(loader, e.IDClass)
		if err != nil {
			return fmt.Errorf("identity class of %s: %w", e.Class, err)
		}
		m.SetIdentityClass(id)
	}
	for _, name := range e.Interfaces {
		iface, err := loadClass(loader, name)
		if err != nil {
			return fmt.Errorf("declared interface of %s: %w", e.Class, err)
		}
		m.AddDeclaredInterface(iface)
	}

	for _, fd := range e.Fields {
		field := m.AddDeclaredField(fd.Name, fd.Type)
		if fd.PrimaryKey {
			field.SetPrimaryKey(true)
		}
		if fd.Version {
			field.SetVersion(true)
		}
		switch fd.Fetch {
		case "eager":
			field.SetInDefaultFetchGroup(true)
		case "lazy":
			field.SetInDefaultFetchGroup(false)
		}
	}

	for _, sd := range e.Sequences {
		if cat.CachedSequenceMetaData(sd.Name) != nil {
			continue
		}
		seq := cat.AddSequenceMetaData(sd.Name)
		seq.SetSourceMode(meta.ModeMeta)
		if sd.Sequence != "" {
			seq.Sequence = sd.Sequence
		}
		if sd.Strategy != "" {
			seq.Strategy = sd.Strategy
		}
		if sd.Initial != 0 {
			seq.Initial = sd.Initial
		}
		if sd.Increment != 0 {
			seq.Increment = sd.Increment
		}
		if sd.Allocate != 0 {
			seq.Allocate = sd.Allocate
		}
	}
	return nil
}

func (f *Factory) loadMapping(cat meta.Catalog, cls *meta.Class, e *EntityDoc) {
	m := cat.CachedMetaData(cls)
	if m == nil {
		return
	}
	m.SetSourceMode(meta.ModeMapping, true)
	if e.Table != "" {
		m.SetTable(e.Table)
	}
	for _, fd := range e.Fields {
		if fd.Column == "" {
			continue
		}
		if field := m.DeclaredField(fd.Name); field != nil {
			field.SetColumn(fd.Column)
		}
	}
}

// loadQueries registers the entity's named queries globally; named queries
// share one namespace across the unit.
func (f *Factory) loadQueries(cat meta.Catalog, cls *meta.Class, e *EntityDoc, loader meta.Loader) {
	for _, qd := range e.Queries {
		if cat.CachedQueryMetaData(nil, qd.Name) != nil {
			continue
		}
		q := cat.AddQueryMetaData(nil, qd.Name)
		q.SetDefiningType(cls)
		q.SetSourceMode(meta.ModeQuery)
		q.Query = qd.Query
		if qd.Language != "" {
			q.Language = qd.Language
		}
		if qd.Result != "" {
			if res, err := loadClass(loader, qd.Result); err == nil {
				q.SetResultType(res)
			} else {
				f.logger.Warn("query result type not loadable",
					zap.String("query", qd.Name), zap.String("result", qd.Result), zap.Error(err))
			}
		}
		if len(qd.Hints) > 0 {
			q.Hints = make(map[string]string, len(qd.Hints))
			for k, v := range qd.Hints {
				q.Hints[k] = v
			}
		}
	}
}

func (f *Factory) loadAllQueries(cat meta.Catalog, loader meta.Loader) error {
	f.mu.Lock()
	if err := f.ensureParsed(); err != nil {
		f.mu.Unlock()
		return err
	}
	names := append([]string(nil), f.order...)
	f.mu.Unlock()

	for _, name := range names {
		e, err := f.entity(name)
		if err != nil {
			return err
		}
		if len(e.Queries) == 0 {
			continue
		}
		cls, err := loadClass(loader, name)
		if err != nil {
			f.logger.Debug("skipping queries of unloadable class", zap.String("class", name), zap.Error(err))
			continue
		}
		f.loadQueries(cat, cls, e, loader)
	}
	return nil
}

func (f *Factory) LoadXMLMetaData(cat meta.Catalog, field *meta.FieldMetaData) error {
	cls := field.DeclaredType()
	if cls == nil {
		return nil
	}
	f.mu.Lock()
	if err := f.ensureParsed(); err != nil {
		f.mu.Unlock()
		return err
	}
	doc := f.xml[cls.Name]
	f.mu.Unlock()
	if doc == nil {
		return nil
	}

	x := cat.AddXMLMetaData(cls, doc.Name)
	for _, fd := range doc.Fields {
		name := fd.XMLName
		if name == "" {
			name = fd.Name
		}
		x.AddField(fd.Name, name, fd.Attribute)
	}
	return nil
}

func (f *Factory) Defaults() meta.Defaults { return f.opts.Defaults }

// PersistentTypeNames returns the configured types, or every mapped entity
// when none are configured. Unparseable documents yield no names; the
// failure surfaces on the next Load.
func (f *Factory) PersistentTypeNames(devpath bool, _ meta.Loader) []string {
	if len(f.opts.Types) > 0 {
		return append([]string(nil), f.opts.Types...)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ensureParsed(); err != nil {
		f.logger.Warn("failed to list persistent types", zap.Bool("devpath", devpath), zap.Error(err))
		return nil
	}
	return append([]string(nil), f.order...)
}

func (f *Factory) QueryScope(name string, loader meta.Loader) *meta.Class {
	f.mu.Lock()
	if err := f.ensureParsed(); err != nil {
		f.mu.Unlock()
		return nil
	}
	clsName := f.scopes[name]
	f.mu.Unlock()
	if clsName == "" {
		return nil
	}
	cls, err := loadClass(loader, clsName)
	if err != nil {
		return nil
	}
	return cls
}

// Clear forgets the parsed documents so the next use re-reads them.
func (f *Factory) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.parsed = false
	f.entities = nil
	f.order = nil
	f.scopes = nil
	f.aware = nil
	f.nonMapped = nil
	f.xml = nil
}

func loadClass(loader meta.Loader, name string) (*meta.Class, error) {
	if loader == nil {
		return nil, fmt.Errorf("%w: %s (no loader)", meta.ErrClassNotFound, name)
	}
	return loader.LoadClass(name, false)
}
