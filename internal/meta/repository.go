package meta

import (
	"errors"
	"sort"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Config selects how a Repository loads, resolves and validates metadata.
type Config struct {
	ResolveMode Mode
	SourceMode  Mode
	Validate    Validation

	// Preload makes Preload load every configured type and then stop locking.
	Preload bool
	// ReorderFKInPK orders resolved types after the types their primary key
	// references.
	ReorderFKInPK bool
	// RetryClassRegistration re-buffers registered classes that fail to
	// process instead of failing the lookup that processed them.
	RetryClassRegistration bool

	// Registry is consulted for registered classes. The repository adds
	// itself as a listener.
	Registry ClassRegistry
	// Verifier checks mappings at MAPPING_INIT when mapping validation is on.
	Verifier MappingVerifier
}

// DefaultConfig resolves metadata and mappings from all sources and
// validates metadata and registration.
func DefaultConfig() Config {
	return Config{
		ResolveMode: ModeMeta | ModeMapping,
		SourceMode:  ModeMeta | ModeMapping | ModeQuery,
		Validate:    ValidateMeta | ValidateUnenhanced,
	}
}

// Repository caches the metadata of one persistence unit.
//
// Exported methods are safe for concurrent use until Preload switches the
// repository to the fast path; after that only reads are allowed. The
// factory, defaults, verifier and eviction listeners are called while the
// repository lock is held and must not call back into the repository other
// than through the Catalog they are handed.
type Repository struct {
	factory  Factory
	registry ClassRegistry
	verifier MappingVerifier
	logger   *zap.Logger
	catalog  *catalog

	state lockState

	mu          *guard
	aliasesMu   *guard
	oidsMu      *guard
	implsMu     *guard
	nonMappedMu *guard
	pawaresMu   *guard
	registerMu  *guard
	subsMu      *guard

	resolveMode Mode
	sourceMode  Mode
	validate    Validation

	preload         bool
	preloadComplete bool
	reorderFKInPK   bool
	retryRegistered bool

	metas     map[*Class]*ClassMetaData
	ifaces    map[*Class]*Class
	queries   map[queryKey]*QueryMetaData
	seqs      map[string]*SequenceMetaData
	sysSeq    *SequenceMetaData
	xmlmetas  map[*Class]*XMLClassMetaData
	oids      map[*Class]*Class
	impls     map[*Class][]*Class
	subs      map[*Class][]*Class
	aliases   map[string][]*Class
	pawares   map[*Class]*NonPersistentMetaData
	nonMapped map[*Class]*NonPersistentMetaData

	registered []*Class
	resolving  inheritanceOrderedList
	mapping    inheritanceOrderedList
	errs       error

	listeners atomic.Pointer[[]EvictionListener]
}

// NewRepository creates the repository of one persistence unit.
func NewRepository(factory Factory, cfg Config, logger *zap.Logger) (*Repository, error) {
	if factory == nil {
		return nil, errors.New("metadata factory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Repository{
		factory:         factory,
		registry:        cfg.Registry,
		verifier:        cfg.Verifier,
		logger:          logger,
		resolveMode:     cfg.ResolveMode,
		sourceMode:      cfg.SourceMode,
		validate:        cfg.Validate,
		preload:         cfg.Preload,
		reorderFKInPK:   cfg.ReorderFKInPK,
		retryRegistered: cfg.RetryClassRegistration,
	}
	r.mu = newGuard(&r.state)
	r.aliasesMu = newGuard(&r.state)
	r.oidsMu = newGuard(&r.state)
	r.implsMu = newGuard(&r.state)
	r.nonMappedMu = newGuard(&r.state)
	r.pawaresMu = newGuard(&r.state)
	r.registerMu = newGuard(&r.state)
	r.subsMu = newGuard(&r.state)
	r.catalog = &catalog{r: r}
	r.reset()
	r.listeners.Store(&[]EvictionListener{})

	if r.registry != nil {
		r.registry.AddListener(r)
	}
	return r, nil
}

func (r *Repository) reset() {
	r.metas = make(map[*Class]*ClassMetaData)
	r.ifaces = make(map[*Class]*Class)
	r.queries = make(map[queryKey]*QueryMetaData)
	r.seqs = make(map[string]*SequenceMetaData)
	r.xmlmetas = make(map[*Class]*XMLClassMetaData)

	unlock := r.oidsMu.lock()
	r.oids = make(map[*Class]*Class)
	unlock()
	unlock = r.implsMu.lock()
	r.impls = make(map[*Class][]*Class)
	unlock()
	unlock = r.subsMu.lock()
	r.subs = make(map[*Class][]*Class)
	unlock()
	unlock = r.aliasesMu.lock()
	r.aliases = make(map[string][]*Class)
	unlock()
	unlock = r.pawaresMu.lock()
	r.pawares = make(map[*Class]*NonPersistentMetaData)
	unlock()
	unlock = r.nonMappedMu.lock()
	r.nonMapped = make(map[*Class]*NonPersistentMetaData)
	unlock()
	unlock = r.registerMu.lock()
	r.registered = nil
	unlock()
}

// Factory returns the metadata factory.
func (r *Repository) Factory() Factory { return r.factory }

// Locking reports whether the repository still synchronizes access.
func (r *Repository) Locking() bool { return !r.state.fastPath() }

func (r *Repository) ResolveMode() Mode {
	unlock := r.mu.lock()
	defer unlock()
	return r.resolveMode
}

// SetResolve turns a resolve mode on or off. ModeNone clears every mode.
func (r *Repository) SetResolve(mode Mode, on bool) {
	unlock := r.mu.lock()
	defer unlock()
	r.resolveMode = r.resolveMode.With(mode, on)
}

func (r *Repository) SourceMode() Mode {
	unlock := r.mu.lock()
	defer unlock()
	return r.sourceMode
}

// SetSourceMode turns a source mode on or off. ModeNone clears every mode.
func (r *Repository) SetSourceMode(mode Mode, on bool) {
	unlock := r.mu.lock()
	defer unlock()
	r.sourceMode = r.sourceMode.With(mode, on)
}

func (r *Repository) Validate() Validation {
	unlock := r.mu.lock()
	defer unlock()
	return r.validate
}

// SetValidate turns a validation flag on or off. ValidateNone clears every
// flag.
func (r *Repository) SetValidate(flag Validation, on bool) {
	unlock := r.mu.lock()
	defer unlock()
	r.validate = r.validate.With(flag, on)
}

// Preload loads and resolves every configured persistent type, processes
// pending registrations and then switches the repository to the fast path
// for good. It does nothing unless Config.Preload was set, and runs at most
// once. Callers must not mutate the repository concurrently afterwards.
func (r *Repository) Preload(loader Loader) error {
	unlock := r.mu.lock()
	defer unlock()

	if !r.preload || r.preloadComplete {
		return nil
	}

	names := r.factory.PersistentTypeNames(false, loader)
	if len(names) == 0 {
		return invalid(nil, "preload was requested but no persistent types are configured")
	}
	r.logger.Debug("preloading persistent types", zap.Strings("types", names))

	for _, name := range names {
		cls, err := loadClass(loader, name, true)
		if err != nil {
			return resolutionError(name, err, "error preloading type %s", name)
		}
		if err := r.factory.Load(r.catalog, cls, ModeAll, loader); err != nil {
			return resolutionError(cls, err, "error preloading metadata for %s", cls)
		}
	}
	if err := r.resolveAll(loader); err != nil {
		return err
	}
	if _, err := r.processRegisteredClasses(loader); err != nil {
		return err
	}

	r.preloadComplete = true
	r.state.enterFastPath()
	r.logger.Debug("preload complete; repository no longer locks", zap.Int("types", len(names)))
	return nil
}

// GetMetaData returns the resolved metadata for cls. A miss returns nil, or
// a not-found error when mustExist is set.
func (r *Repository) GetMetaData(cls *Class, loader Loader, mustExist bool) (*ClassMetaData, error) {
	unlock := r.mu.lock()
	defer unlock()
	return r.getMetaDataInternal(cls, loader, mustExist)
}

func (r *Repository) getMetaDataInternal(cls *Class, loader Loader, mustExist bool) (*ClassMetaData, error) {
	meta, err := r.lookup(cls, loader)
	if err != nil {
		return nil, err
	}
	if meta == nil && mustExist {
		if cls != nil && cls.Builtin {
			return nil, notFound(cls, "%s is not a managed type", cls)
		}
		if names := r.factory.PersistentTypeNames(false, loader); len(names) > 0 {
			return nil, notFound(cls, "no metadata was found for type %s; the configured persistent types are %v", cls, names)
		}
		return nil, notFound(cls, "no metadata was found for type %s", cls)
	}
	if err := r.resolve(meta); err != nil {
		return nil, err
	}
	return meta, nil
}

func (r *Repository) hasMetaSource(meta *ClassMetaData) bool {
	return meta.source.Has(ModeMeta) || !r.sourceMode.Has(ModeMeta)
}

// lookup returns cached metadata for cls, loading it from the factory on a
// miss. Classes known to have no metadata are cached as nil entries.
func (r *Repository) lookup(cls *Class, loader Loader) (*ClassMetaData, error) {
	if cls == nil {
		return nil, nil
	}

	meta, cached := r.metas[cls]
	if meta != nil && r.hasMetaSource(meta) {
		return meta, nil
	}

	// At runtime only configured types are looked up. Development tools
	// work on types before they are listed.
	if r.validate.Has(ValidateRuntime) {
		if names := r.persistentTypeSet(loader); names != nil && !names[cls.Name] {
			return meta, nil
		}
	}

	if meta == nil {
		if cached || cls.Builtin {
			return nil, nil
		}
		if r.validate.Has(ValidateRuntime) {
			loadQuietly(loader, cls.Name, true)
		}
	}

	mode := ModeNone
	if r.sourceMode.Has(ModeMeta) {
		mode = r.sourceMode &^ ModeMapping
	} else if !r.sourceMode.Has(ModeMapping) {
		mode = r.sourceMode
	}
	if mode != ModeNone {
		r.logger.Debug("loading metadata", zap.Stringer("class", cls), zap.Stringer("mode", mode))
		if err := r.factory.Load(r.catalog, cls, mode, loader); err != nil {
			return nil, resolutionError(cls, err, "failed to load metadata for %s", cls)
		}
	}

	meta = r.metas[cls]
	if meta != nil && r.hasMetaSource(meta) {
		return meta, nil
	}
	if meta != nil {
		r.removeMetaDataInternal(cls)
	}
	r.metas[cls] = nil
	return nil, nil
}

// resolve runs the resolution passes for meta. Only the call that owns the
// outermost pass reports the accumulated errors.
func (r *Repository) resolve(meta *ClassMetaData) error {
	if meta == nil || r.resolveMode == ModeNone || meta.resolve.Has(ModeMeta) {
		return nil
	}

	resolved, owner, err := r.resolveMeta(meta)
	if err != nil {
		return err
	}
	if !owner {
		return nil
	}

	for _, m := range resolved {
		r.loadMapping(m)
	}
	for _, m := range resolved {
		r.preMapping(m)
	}

	report := true
	if r.resolveMode.Has(ModeMapping) {
		for _, m := range resolved {
			if !r.resolveMapping(m) {
				report = false
			}
		}
	}

	if !report || r.errs == nil {
		return nil
	}
	err = combineErrors(r.errs)
	r.errs = nil
	return err
}

func (r *Repository) resolveMeta(meta *ClassMetaData) ([]*ClassMetaData, bool, error) {
	if meta.super == nil {
		for sup := meta.typ.Super; sup != nil; sup = sup.Super {
			supMeta, err := r.getMetaDataInternal(sup, meta.loader, false)
			if err != nil {
				return nil, false, err
			}
			if supMeta != nil {
				if err := meta.SetSuperclass(supMeta); err != nil {
					return nil, false, err
				}
				break
			}
		}
		if meta.super == nil && meta.typ.Interface {
			for _, iface := range meta.typ.Interfaces {
				supMeta, err := r.getMetaDataInternal(iface, meta.loader, false)
				if err != nil {
					return nil, false, err
				}
				if supMeta != nil {
					if err := meta.SetSuperclass(supMeta); err != nil {
						return nil, false, err
					}
					break
				}
			}
		}
		r.logger.Debug("assigned superclass", zap.Stringer("class", meta), zap.Stringer("super", superType(meta)))
	}

	// Types referenced from the primary key are needed before mapping.
	for _, f := range meta.fields {
		if !f.primaryKey || f.typeName == "" || isScalarType(f.typeName) {
			continue
		}
		if f.declaredType == nil {
			f.declaredType = loadQuietly(meta.loader, f.typeName, false)
		}
		if f.declaredType == nil {
			continue
		}
		if _, err := r.getMetaDataInternal(f.declaredType, meta.loader, false); err != nil {
			return nil, false, err
		}
	}

	resolved, owner := r.processBuffer(meta, &r.resolving, ModeMeta)
	return resolved, owner, nil
}

func superType(meta *ClassMetaData) *Class {
	if meta.super == nil {
		return nil
	}
	return meta.super.typ
}

func (r *Repository) loadMapping(meta *ClassMetaData) {
	if meta.resolve.Has(ModeMapping) {
		return
	}
	if meta.source.Has(ModeMapping) || !r.sourceMode.Has(ModeMapping) {
		return
	}
	// Embedded-only types have no mapping of their own.
	if meta.embeddedOnly {
		meta.SetSourceMode(ModeMapping, true)
		return
	}

	mode := r.sourceMode &^ ModeMeta
	r.logger.Debug("loading mapping", zap.Stringer("class", meta), zap.Stringer("mode", mode))
	if err := r.factory.Load(r.catalog, meta.typ, mode, meta.loader); err != nil {
		r.removeMetaDataInternal(meta.typ)
		r.errs = multierr.Append(r.errs, resolutionError(meta, err, "failed to load mapping for %s", meta))
	}
}

func (r *Repository) preMapping(meta *ClassMetaData) {
	if meta.resolve.Has(ModeMapping) {
		return
	}
	if r.resolveMode.Has(ModeMapping) {
		r.logger.Debug("preparing mapping", zap.Stringer("class", meta))
	}
	meta.defineSuperclassFields()
}

// resolveMapping reports false when a mapping pass owned elsewhere is still
// in progress.
func (r *Repository) resolveMapping(meta *ClassMetaData) bool {
	mapped, owner := r.processBuffer(meta, &r.mapping, ModeMapping)
	if !owner {
		return false
	}
	if !r.resolveMode.Has(ModeMappingInit) {
		return true
	}
	for _, m := range mapped {
		if r.metas[m.typ] != m {
			continue
		}
		if err := m.resolveMode(ModeMappingInit); err != nil {
			r.removeMetaDataInternal(m.typ)
			r.errs = multierr.Append(r.errs, err)
		}
	}
	return true
}

// processBuffer queues meta and, when this call made the buffer non-empty,
// resolves everything queued in inheritance order, including types queued
// by reentrant lookups along the way. A failure evicts every queued type.
// The boolean result reports whether this call owned the pass.
func (r *Repository) processBuffer(meta *ClassMetaData, buffer *inheritanceOrderedList, mode Mode) ([]*ClassMetaData, bool) {
	if !buffer.add(meta) || buffer.len() != 1 {
		return nil, false
	}

	processed := make([]*ClassMetaData, 0, 5)
	for !buffer.isEmpty() {
		buffered := buffer.peek()
		if err := buffered.resolveMode(mode); err != nil {
			r.errs = multierr.Append(r.errs, err)
			for _, m := range buffer.drain() {
				r.removeMetaDataInternal(m.typ)
				if m != buffered {
					r.errs = multierr.Append(r.errs, resolutionError(m, nil,
						"type %s was not resolved because of previous errors resolving %s", m, buffered))
				}
			}
			continue
		}
		processed = append(processed, buffered)
		buffer.remove(buffered)
	}

	if r.reorderFKInPK {
		processed = r.orderByIdentityDependencies(processed)
	}
	return processed, true
}

func (r *Repository) orderByIdentityDependencies(list []*ClassMetaData) []*ClassMetaData {
	ordered, cycle := OrderByIdentityDependencies(list)
	if cycle != nil {
		names := make([]string, len(cycle))
		for i, m := range cycle {
			names[i] = m.typ.Name
		}
		r.logger.Warn("primary key dependency cycle; keeping resolution order",
			zap.Strings("cycle", names))
	}
	return ordered
}

// MetaDatas resolves every cached metadata and returns them sorted by class
// name.
func (r *Repository) MetaDatas() ([]*ClassMetaData, error) {
	unlock := r.mu.lock()
	defer unlock()

	snapshot := make([]*ClassMetaData, 0, len(r.metas))
	for _, m := range r.metas {
		if m != nil {
			snapshot = append(snapshot, m)
		}
	}
	for _, m := range snapshot {
		if _, err := r.getMetaDataInternal(m.typ, m.loader, true); err != nil {
			return nil, err
		}
	}

	metas := make([]*ClassMetaData, 0, len(r.metas))
	for _, m := range r.metas {
		if m != nil {
			metas = append(metas, m)
		}
	}
	sortMetaDatas(metas)
	return metas, nil
}

func sortMetaDatas(metas []*ClassMetaData) {
	sort.Slice(metas, func(i, j int) bool {
		return metas[i].typ.Name < metas[j].typ.Name
	})
}

// CachedMetaData returns the cached metadata for cls without resolving it.
func (r *Repository) CachedMetaData(cls *Class) *ClassMetaData {
	unlock := r.mu.lock()
	defer unlock()
	return r.metas[cls]
}

// AddMetaData creates metadata for cls, populates it with defaults and caches
// it, replacing any earlier entry.
func (r *Repository) AddMetaData(cls *Class, loader Loader, access AccessType) (*ClassMetaData, error) {
	if r.preloaded("AddMetaData") {
		return nil, ErrPreloaded
	}
	unlock := r.mu.lock()
	defer unlock()
	return r.addMetaDataInternal(cls, loader, access)
}

func (r *Repository) addMetaDataInternal(cls *Class, loader Loader, access AccessType) (*ClassMetaData, error) {
	if cls == nil || cls.Builtin {
		return nil, nil
	}
	unlock := r.pawaresMu.lock()
	_, aware := r.pawares[cls]
	unlock()
	if aware {
		return nil, invalid(cls, "%s is registered as persistence-aware and cannot also be managed", cls)
	}

	meta := newClassMetaData(r, cls, loader)
	meta.access = access
	r.factory.Defaults().Populate(meta, access)
	r.metas[cls] = meta
	return meta, nil
}

// RemoveMetaData evicts the metadata of cls. It reports whether metadata was
// cached.
func (r *Repository) RemoveMetaData(cls *Class) bool {
	r.preloaded("RemoveMetaData")
	unlock := r.mu.lock()
	defer unlock()
	return r.removeMetaDataInternal(cls)
}

// RemoveMetaDataFor evicts meta.
func (r *Repository) RemoveMetaDataFor(meta *ClassMetaData) bool {
	if meta == nil {
		return false
	}
	return r.RemoveMetaData(meta.typ)
}

// RemoveMetaDataNamed evicts the metadata of every cached class with the
// given name, whatever loader it came from.
func (r *Repository) RemoveMetaDataNamed(name string) bool {
	return r.EvictNamed(name, nil)
}

// EvictNamed is RemoveMetaDataNamed on behalf of source: every system
// listener except source is told about the eviction.
func (r *Repository) EvictNamed(name string, source EvictionListener) bool {
	r.preloaded("EvictNamed")
	unlock := r.mu.lock()
	defer unlock()

	var matches []*Class
	for cls := range r.metas {
		if cls.Name == name {
			matches = append(matches, cls)
		}
	}
	removed := false
	for _, cls := range matches {
		if r.evict(cls, source) {
			removed = true
		}
	}
	return removed
}

func (r *Repository) removeMetaDataInternal(cls *Class) bool {
	return r.evict(cls, nil)
}

func (r *Repository) evict(cls *Class, source EvictionListener) bool {
	if cls == nil {
		return false
	}
	meta, ok := r.metas[cls]
	if !ok {
		return false
	}
	delete(r.metas, cls)
	if meta == nil {
		return false
	}
	if impl, ok := r.ifaces[cls]; ok {
		delete(r.ifaces, cls)
		delete(r.metas, impl)
	}
	r.notifyEvicted(cls, source)
	return true
}

// SetInterfaceImpl records impl as the generated implementation of a managed
// interface.
func (r *Repository) SetInterfaceImpl(meta *ClassMetaData, impl *Class) error {
	if r.preloaded("SetInterfaceImpl") {
		return ErrPreloaded
	}
	unlock := r.mu.lock()
	defer unlock()

	if !meta.managedInterface {
		return invalid(meta, "%s is not a managed interface; cannot set implementation %s", meta, impl)
	}
	r.ifaces[meta.typ] = impl
	r.addDeclaredInterfaceImpl(meta, meta.typ)
	for sup := meta.super; sup != nil; sup = sup.super {
		r.addSubclass(sup.typ, impl)
	}
	return nil
}

// addDeclaredInterfaceImpl lists meta as an implementor of iface unless a
// managed superclass already is.
func (r *Repository) addDeclaredInterfaceImpl(meta *ClassMetaData, iface *Class) {
	unlock := r.implsMu.lock()
	defer unlock()

	vals := r.impls[iface]
	for sup := meta.super; sup != nil; sup = sup.super {
		if containsClass(vals, sup.typ) {
			return
		}
	}
	if !containsClass(vals, meta.typ) {
		r.impls[iface] = append(vals, meta.typ)
	}
}

// ImplementorMetaDatas returns the least-derived metadata of mapped types
// assignable to cls, including managed types whose mapped subclasses make
// them queryable.
func (r *Repository) ImplementorMetaDatas(cls *Class, loader Loader, mustExist bool) ([]*ClassMetaData, error) {
	if cls == nil {
		if mustExist {
			return nil, notFound(cls, "no metadata was found for type %s", cls)
		}
		return nil, nil
	}

	unlock := r.mu.lock()
	defer unlock()

	if err := r.loadRegisteredClassMetaData(loader); err != nil {
		return nil, err
	}

	unlockImpls := r.implsMu.lock()
	vals, ok := r.impls[cls]
	vals = append([]*Class(nil), vals...)
	unlockImpls()

	if !ok {
		if mustExist {
			return nil, notFound(cls, "no metadata was found for type %s", cls)
		}
		return nil, nil
	}

	mapped := make([]*ClassMetaData, 0, len(vals))
	for _, c := range vals {
		meta, err := r.getMetaDataInternal(c, loader, true)
		if err != nil {
			return nil, err
		}
		if meta.Mapped() || len(r.mappedSubclassMetaDatas(meta)) > 0 {
			mapped = append(mapped, meta)
		}
	}
	return mapped, nil
}

func (r *Repository) mappedSubclassMetaDatas(meta *ClassMetaData) []*ClassMetaData {
	var mapped []*ClassMetaData
	for _, sub := range r.pcSubclasses(meta.typ) {
		subMeta, err := r.getMetaDataInternal(sub, meta.loader, false)
		if err != nil || subMeta == nil {
			continue
		}
		if subMeta.Mapped() {
			mapped = append(mapped, subMeta)
		}
	}
	return mapped
}

// PersistenceAware returns the metadata of a persistence-aware class or nil.
func (r *Repository) PersistenceAware(cls *Class) *NonPersistentMetaData {
	unlock := r.pawaresMu.lock()
	defer unlock()
	return r.pawares[cls]
}

// PersistenceAwares returns every persistence-aware class, sorted by name.
func (r *Repository) PersistenceAwares() []*NonPersistentMetaData {
	unlock := r.pawaresMu.lock()
	defer unlock()
	return sortedNonPersistent(r.pawares)
}

// AddPersistenceAware registers cls as persistence-aware. Managed types
// cannot be persistence-aware.
func (r *Repository) AddPersistenceAware(cls *Class) (*NonPersistentMetaData, error) {
	if cls == nil {
		return nil, nil
	}
	if r.preloaded("AddPersistenceAware") {
		return nil, ErrPreloaded
	}
	unlock := r.mu.lock()
	defer unlock()
	return r.addPersistenceAwareInternal(cls)
}

func (r *Repository) addPersistenceAwareInternal(cls *Class) (*NonPersistentMetaData, error) {
	unlock := r.pawaresMu.lock()
	defer unlock()

	if existing, ok := r.pawares[cls]; ok {
		return existing, nil
	}
	if r.metas[cls] != nil {
		return nil, invalid(cls, "%s is registered as persistence-aware and cannot also be managed", cls)
	}
	meta := &NonPersistentMetaData{typ: cls, kind: TypePersistenceAware}
	r.pawares[cls] = meta
	return meta, nil
}

func (r *Repository) RemovePersistenceAware(cls *Class) bool {
	r.preloaded("RemovePersistenceAware")
	unlock := r.pawaresMu.lock()
	defer unlock()
	if _, ok := r.pawares[cls]; !ok {
		return false
	}
	delete(r.pawares, cls)
	return true
}

// NonMappedInterface returns the metadata of a non-mapped interface or nil.
func (r *Repository) NonMappedInterface(iface *Class) *NonPersistentMetaData {
	unlock := r.nonMappedMu.lock()
	defer unlock()
	return r.nonMapped[iface]
}

// NonMappedInterfaces returns every non-mapped interface, sorted by name.
func (r *Repository) NonMappedInterfaces() []*NonPersistentMetaData {
	unlock := r.nonMappedMu.lock()
	defer unlock()
	return sortedNonPersistent(r.nonMapped)
}

// AddNonMappedInterface registers an interface that is queryable without
// being mapped.
func (r *Repository) AddNonMappedInterface(iface *Class) (*NonPersistentMetaData, error) {
	if iface == nil {
		return nil, nil
	}
	if !iface.Interface {
		return nil, invalid(iface, "%s is not an interface and cannot be registered as non-mapped", iface)
	}
	if r.preloaded("AddNonMappedInterface") {
		return nil, ErrPreloaded
	}
	unlock := r.mu.lock()
	defer unlock()
	return r.addNonMappedInterfaceInternal(iface)
}

func (r *Repository) addNonMappedInterfaceInternal(iface *Class) (*NonPersistentMetaData, error) {
	if !iface.Interface {
		return nil, invalid(iface, "%s is not an interface and cannot be registered as non-mapped", iface)
	}
	unlock := r.nonMappedMu.lock()
	defer unlock()

	if existing, ok := r.nonMapped[iface]; ok {
		return existing, nil
	}
	if r.metas[iface] != nil {
		return nil, invalid(iface, "%s is a managed interface and cannot be registered as non-mapped", iface)
	}
	meta := &NonPersistentMetaData{typ: iface, kind: TypeNonMappedInterface}
	r.nonMapped[iface] = meta
	return meta, nil
}

func (r *Repository) RemoveNonMappedInterface(iface *Class) bool {
	r.preloaded("RemoveNonMappedInterface")
	unlock := r.nonMappedMu.lock()
	defer unlock()
	if _, ok := r.nonMapped[iface]; !ok {
		return false
	}
	delete(r.nonMapped, iface)
	return true
}

func sortedNonPersistent(m map[*Class]*NonPersistentMetaData) []*NonPersistentMetaData {
	out := make([]*NonPersistentMetaData, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].typ.Name < out[j].typ.Name })
	return out
}

// PersistentTypeNames returns the configured persistent type names; an empty
// result means there is no restriction.
func (r *Repository) PersistentTypeNames(devpath bool, loader Loader) []string {
	return r.factory.PersistentTypeNames(devpath, loader)
}

func (r *Repository) persistentTypeSet(loader Loader) map[string]bool {
	names := r.factory.PersistentTypeNames(false, loader)
	if len(names) == 0 {
		return nil
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

// LoadPersistentTypes loads every configured persistent type so that its
// registration runs. Types that cannot be loaded are logged and skipped.
func (r *Repository) LoadPersistentTypes(devpath bool, loader Loader) ([]*Class, error) {
	unlock := r.mu.lock()
	defer unlock()
	return r.loadPersistentTypesInternal(devpath, loader)
}

func (r *Repository) loadPersistentTypesInternal(devpath bool, loader Loader) ([]*Class, error) {
	names := r.factory.PersistentTypeNames(devpath, loader)
	classes := make([]*Class, 0, len(names))
	for _, name := range names {
		cls := r.classForName(name, loader)
		if cls == nil {
			continue
		}
		classes = append(classes, cls)
		if cls.Interface {
			if _, err := r.getMetaDataInternal(cls, loader, false); err != nil {
				return classes, err
			}
		}
	}
	return classes, nil
}

func (r *Repository) classForName(name string, loader Loader) *Class {
	cls, err := loadClass(loader, name, true)
	if err == nil {
		return cls
	}
	if r.validate.Has(ValidateRuntime) {
		r.logger.Warn("could not load persistent type", zap.String("class", name), zap.Error(err))
	} else {
		r.logger.Info("could not load persistent type", zap.String("class", name), zap.Error(err))
	}
	return nil
}

// resolveAll looks up every configured type so that its queries and
// sequences are registered.
func (r *Repository) resolveAll(loader Loader) error {
	types, err := r.loadPersistentTypesInternal(false, loader)
	if err != nil {
		return err
	}
	for _, cls := range types {
		if _, err := r.getMetaDataInternal(cls, loader, false); err != nil {
			return err
		}
	}
	return nil
}

// AddSystemListener adds a listener told about every eviction.
func (r *Repository) AddSystemListener(l EvictionListener) {
	unlock := r.mu.lock()
	defer unlock()
	current := *r.listeners.Load()
	next := make([]EvictionListener, 0, len(current)+1)
	next = append(next, current...)
	next = append(next, l)
	r.listeners.Store(&next)
}

// RemoveSystemListener removes l and reports whether it was registered.
func (r *Repository) RemoveSystemListener(l EvictionListener) bool {
	unlock := r.mu.lock()
	defer unlock()
	current := *r.listeners.Load()
	for i, existing := range current {
		if existing == l {
			next := make([]EvictionListener, 0, len(current)-1)
			next = append(next, current[:i]...)
			next = append(next, current[i+1:]...)
			r.listeners.Store(&next)
			return true
		}
	}
	return false
}

// SystemListeners returns the current listeners. The slice is never modified
// in place.
func (r *Repository) SystemListeners() []EvictionListener {
	return *r.listeners.Load()
}

func (r *Repository) notifyEvicted(cls *Class, source EvictionListener) {
	for _, l := range *r.listeners.Load() {
		if l != source {
			l.MetaDataEvicted(cls)
		}
	}
}

// Clear evicts all cached state and clears the factory.
func (r *Repository) Clear() {
	r.EvictAll(nil)
}

// EvictAll is Clear on behalf of source, which is not told about it.
func (r *Repository) EvictAll(source EvictionListener) {
	r.preloaded("Clear")
	r.logger.Debug("clearing metadata repository")
	unlock := r.mu.lock()
	defer unlock()
	r.clearInternal(source)
}

func (r *Repository) clearInternal(source EvictionListener) {
	r.reset()
	r.sysSeq = nil
	r.factory.Clear()
	r.notifyEvicted(nil, source)
}

// Close closes every sequence and then clears the repository.
func (r *Repository) Close() error {
	unlock := r.mu.lock()
	defer unlock()

	var err error
	for _, seq := range r.seqs {
		err = multierr.Append(err, seq.Close())
	}
	if r.sysSeq != nil {
		err = multierr.Append(err, r.sysSeq.Close())
	}
	r.clearInternal(nil)
	return err
}

func containsClass(list []*Class, cls *Class) bool {
	for _, c := range list {
		if c == cls {
			return true
		}
	}
	return false
}
