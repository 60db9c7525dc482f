package meta

import (
	"fmt"
	"sync"
)

// testLoader resolves classes from a fixed set and runs registration hooks
// when a class is initialized.
type testLoader struct {
	mu      sync.Mutex
	classes map[string]*Class
	inits   map[string]func()
	loaded  map[string]int
}

func newTestLoader(classes ...*Class) *testLoader {
	l := &testLoader{
		classes: make(map[string]*Class),
		inits:   make(map[string]func()),
		loaded:  make(map[string]int),
	}
	for _, c := range classes {
		l.classes[c.Name] = c
	}
	return l
}

func (l *testLoader) onInit(name string, fn func()) {
	l.inits[name] = fn
}

func (l *testLoader) LoadClass(name string, initialize bool) (*Class, error) {
	l.mu.Lock()
	cls, ok := l.classes[name]
	l.loaded[name]++
	init := l.inits[name]
	l.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrClassNotFound, name)
	}
	if initialize && init != nil {
		init()
	}
	return cls, nil
}

type fieldDef struct {
	name    string
	typ     string
	pk      bool
	version bool
	column  string
}

type typeDef struct {
	fields    []fieldDef
	table     string
	embedded  bool
	queries   []string
	sequences []string
	ifaces    []*Class
	// metaOnly leaves the META source bit unset, as a factory that only
	// found mapping information would.
	noMetaSource bool
}

// testFactory serves metadata from typeDefs and counts loads per class.
type testFactory struct {
	mu          sync.Mutex
	defs        map[string]*typeDef
	names       []string
	scopes      map[string]*Class
	loadErrs    map[string]error
	ifacePers   bool
	metaLoads   map[string]int
	loadModes   []Mode
	clears      int
	onLoad      func(cls *Class)
	xmlBindings map[string]string
}

func newTestFactory() *testFactory {
	return &testFactory{
		defs:      make(map[string]*typeDef),
		scopes:    make(map[string]*Class),
		loadErrs:  make(map[string]error),
		metaLoads: make(map[string]int),
	}
}

func (f *testFactory) define(name string, def *typeDef) *testFactory {
	f.defs[name] = def
	return f
}

func (f *testFactory) Load(cat Catalog, cls *Class, mode Mode, loader Loader) error {
	if cls == nil {
		return nil
	}
	f.mu.Lock()
	f.loadModes = append(f.loadModes, mode)
	if mode.Has(ModeMeta) {
		f.metaLoads[cls.Name]++
	}
	err := f.loadErrs[cls.Name]
	def := f.defs[cls.Name]
	onLoad := f.onLoad
	f.mu.Unlock()

	if onLoad != nil {
		onLoad(cls)
	}
	if err != nil {
		return err
	}
	if def == nil {
		return nil
	}

	if mode.Has(ModeMeta) && cat.CachedMetaData(cls) == nil {
		meta, err := cat.AddMetaData(cls, loader, AccessField)
		if err != nil {
			return err
		}
		if !def.noMetaSource {
			meta.SetSourceMode(ModeMeta, true)
		}
		meta.SetEmbeddedOnly(def.embedded)
		for _, fd := range def.fields {
			field := meta.AddDeclaredField(fd.name, fd.typ)
			field.SetPrimaryKey(fd.pk)
			field.SetVersion(fd.version)
		}
		for _, iface := range def.ifaces {
			meta.AddDeclaredInterface(iface)
		}
		for _, q := range def.queries {
			qm := cat.AddQueryMetaData(nil, q)
			qm.SetDefiningType(cls)
			qm.Query = "SELECT x FROM " + cls.SimpleName() + " x"
		}
		for _, s := range def.sequences {
			cat.AddSequenceMetaData(s)
		}
	}
	if mode.Has(ModeMapping) {
		if meta := cat.CachedMetaData(cls); meta != nil {
			meta.SetSourceMode(ModeMapping, true)
			if def.table != "" {
				meta.SetTable(def.table)
			}
			for _, fd := range def.fields {
				if fd.column != "" {
					meta.DeclaredField(fd.name).SetColumn(fd.column)
				}
			}
		}
	}
	if mode.Has(ModeQuery) {
		for _, q := range def.queries {
			if cat.CachedQueryMetaData(nil, q) == nil {
				cat.AddQueryMetaData(nil, q).SetDefiningType(cls)
			}
		}
	}
	return nil
}

func (f *testFactory) LoadXMLMetaData(cat Catalog, field *FieldMetaData) error {
	if name, ok := f.xmlBindings[field.TypeName()]; ok {
		x := cat.AddXMLMetaData(field.DeclaredType(), name)
		x.AddField("id", "id", true)
	}
	return nil
}

func (f *testFactory) Defaults() Defaults { return testDefaults{ifacePersistent: f.ifacePers} }

func (f *testFactory) PersistentTypeNames(bool, Loader) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.names...)
}

func (f *testFactory) QueryScope(name string, _ Loader) *Class {
	return f.scopes[name]
}

func (f *testFactory) Clear() {
	f.mu.Lock()
	f.clears++
	f.mu.Unlock()
}

func (f *testFactory) loads(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.metaLoads[name]
}

type testDefaults struct {
	ifacePersistent bool
}

func (testDefaults) Populate(*ClassMetaData, AccessType) {}

func (d testDefaults) DeclaredInterfacePersistent() bool { return d.ifacePersistent }

// testRegistry is a minimal ClassRegistry keyed by class.
type testRegistry struct {
	mu        sync.Mutex
	supers    map[*Class]*Class
	aliases   map[*Class]string
	ids       map[*Class]*Class
	idErrs    map[*Class]error
	listeners []RegisterClassListener
}

func newTestRegistry() *testRegistry {
	return &testRegistry{
		supers:  make(map[*Class]*Class),
		aliases: make(map[*Class]string),
		ids:     make(map[*Class]*Class),
		idErrs:  make(map[*Class]error),
	}
}

func (r *testRegistry) register(cls, super *Class, alias string, id *Class) {
	r.mu.Lock()
	r.supers[cls] = super
	r.aliases[cls] = alias
	r.ids[cls] = id
	listeners := append([]RegisterClassListener(nil), r.listeners...)
	r.mu.Unlock()
	for _, l := range listeners {
		l.Register(cls)
	}
}

func (r *testRegistry) PersistentSuperclass(cls *Class) *Class {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.supers[cls]
}

func (r *testRegistry) TypeAlias(cls *Class) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.aliases[cls]
}

func (r *testRegistry) ObjectIDClass(cls *Class) (*Class, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.idErrs[cls]; err != nil {
		return nil, err
	}
	return r.ids[cls], nil
}

func (r *testRegistry) AddListener(l RegisterClassListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

func (r *testRegistry) IsRegistered(cls *Class) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.supers[cls]
	return ok
}

type recordingListener struct {
	mu      sync.Mutex
	evicted []*Class
}

func (l *recordingListener) MetaDataEvicted(cls *Class) {
	l.mu.Lock()
	l.evicted = append(l.evicted, cls)
	l.mu.Unlock()
}

type closer struct{ closed bool }

func (c *closer) Close() error {
	c.closed = true
	return nil
}
