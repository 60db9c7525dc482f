package meta

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	strutil "github.com/conduit-lang/ormeta/internal/util/strings"
)

// aliasHintThreshold bounds alias suggestions to half the alias length.
const aliasHintThreshold = 0.5

// Register buffers a class that just became known to the runtime. It never
// resolves anything and is safe to call while a resolution pass is running;
// the buffer is processed by the next alias, identity, implementor or
// sequence lookup.
func (r *Repository) Register(cls *Class) {
	if cls == nil {
		return
	}
	r.preloaded("Register")
	unlock := r.registerMu.lock()
	defer unlock()
	if !containsClass(r.registered, cls) {
		r.registered = append(r.registered, cls)
	}
}

func (r *Repository) classRegistry() ClassRegistry {
	if r.registry == nil {
		return nopRegistry{}
	}
	return r.registry
}

// loadRegisteredClassMetaData processes the registration buffer and looks up
// every registered class. Lookup failures are logged, not returned.
func (r *Repository) loadRegisteredClassMetaData(loader Loader) error {
	reg, err := r.processRegisteredClasses(loader)
	if err != nil {
		return err
	}
	for _, cls := range reg {
		if _, err := r.getMetaDataInternal(cls, loader, false); err != nil {
			r.logger.Warn("failed to load metadata of registered class",
				zap.Stringer("class", cls), zap.Error(err))
		}
	}
	return nil
}

// ProcessRegisteredClasses indexes every class registered since the last
// call and returns them. Lookups do this on demand; tools listing aliases
// call it first.
func (r *Repository) ProcessRegisteredClasses(loader Loader) ([]*Class, error) {
	return r.processRegisteredClasses(loader)
}

// processRegisteredClasses drains the registration buffer into the subclass,
// identity, implementor and alias indexes and returns the drained classes.
func (r *Repository) processRegisteredClasses(loader Loader) ([]*Class, error) {
	unlock := r.registerMu.lock()
	if len(r.registered) == 0 {
		unlock()
		return nil, nil
	}
	reg := r.registered
	r.registered = nil
	unlock()

	names := r.persistentTypeSet(loader)
	var failed []*Class
	for _, cls := range reg {
		// Types outside the configured list may belong to another unit.
		if names != nil && !names[cls.Name] {
			continue
		}
		if err := r.processRegisteredClass(cls); err != nil {
			if !r.retryRegistered {
				return reg, resolutionError(cls, err, "error processing registered class %s", cls)
			}
			r.logger.Warn("failed to process registered class; will retry",
				zap.Stringer("class", cls), zap.Error(err))
			failed = append(failed, cls)
		}
	}

	if len(failed) > 0 {
		unlock := r.registerMu.lock()
		for _, cls := range failed {
			if !containsClass(r.registered, cls) {
				r.registered = append(r.registered, cls)
			}
		}
		unlock()
	}
	return reg, nil
}

func (r *Repository) processRegisteredClass(cls *Class) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("registration of %s panicked: %v", cls, p)
		}
	}()

	r.logger.Debug("processing registered class", zap.Stringer("class", cls))
	reg := r.classRegistry()

	leastDerived := r.calculateLeastDerived(cls)

	oidCls, err := reg.ObjectIDClass(cls)
	if err != nil {
		return err
	}
	if oidCls != nil {
		unlock := r.oidsMu.lock()
		if existing := r.oids[oidCls]; existing != nil {
			// Several classes share the identity class: index the least
			// derived managed root so abstract roots resolve too.
			root := cls
			for sup := reg.PersistentSuperclass(root); sup != nil; sup = reg.PersistentSuperclass(root) {
				root = sup
			}
			r.oids[oidCls] = root
		} else {
			r.oids[oidCls] = cls
		}
		unlock()
	}

	unlock := r.implsMu.lock()
	r.updateImpls(cls, leastDerived, cls)
	unlock()

	if alias := reg.TypeAlias(cls); alias != "" {
		unlock := r.aliasesMu.lock()
		if !containsClass(r.aliases[alias], cls) {
			r.aliases[alias] = append(r.aliases[alias], cls)
		}
		unlock()
	}
	return nil
}

// calculateLeastDerived records cls as a subclass of each managed ancestor
// and returns the least derived one.
func (r *Repository) calculateLeastDerived(cls *Class) *Class {
	reg := r.classRegistry()
	leastDerived := cls
	for anc := reg.PersistentSuperclass(cls); anc != nil; anc = reg.PersistentSuperclass(anc) {
		r.addSubclass(anc, cls)
		leastDerived = anc
	}
	return leastDerived
}

// updateImpls indexes cls under its non-managed superclasses and, when
// declared interfaces are persistent, under the interfaces it is the least
// derived implementor of. The implementor lock must be held.
func (r *Repository) updateImpls(cls, leastDerived, check *Class) {
	if sup := check.Super; leastDerived == cls && sup != nil && !sup.Builtin {
		r.addImpl(sup, cls)
		r.updateImpls(cls, leastDerived, sup)
	}

	if !r.factory.Defaults().DeclaredInterfacePersistent() {
		return
	}
	for _, iface := range check.Interfaces {
		if iface.Builtin {
			continue
		}
		if leastDerived == cls || r.isLeastDerivedImpl(iface, cls) {
			r.addImpl(iface, cls)
			r.updateImpls(cls, leastDerived, iface)
		}
	}
}

func (r *Repository) addImpl(key, cls *Class) {
	if !containsClass(r.impls[key], cls) {
		r.impls[key] = append(r.impls[key], cls)
	}
}

func (r *Repository) isLeastDerivedImpl(iface, cls *Class) bool {
	reg := r.classRegistry()
	for parent := reg.PersistentSuperclass(cls); parent != nil; parent = reg.PersistentSuperclass(parent) {
		if parent.Implements(iface) {
			return false
		}
	}
	return true
}

// addSubclass records sub under sup, least derived first.
func (r *Repository) addSubclass(sup, sub *Class) {
	unlock := r.subsMu.lock()
	defer unlock()

	subs := r.subs[sup]
	if containsClass(subs, sub) {
		return
	}
	subs = append(subs, sub)
	sort.SliceStable(subs, func(i, j int) bool { return subs[i].Depth() < subs[j].Depth() })
	r.subs[sup] = subs
}

// pcSubclasses returns the registered managed subclasses of cls.
func (r *Repository) pcSubclasses(cls *Class) []*Class {
	unlock := r.subsMu.lock()
	defer unlock()
	return append([]*Class(nil), r.subs[cls]...)
}

// GetMetaDataByAlias returns the metadata of the class registered under
// alias. Several classes may share an alias across loaders; the first one
// loadable through loader and allowed by the configured persistent types
// wins. Unknown aliases are remembered as invalid.
func (r *Repository) GetMetaDataByAlias(alias string, loader Loader, mustExist bool) (*ClassMetaData, error) {
	if alias == "" {
		if mustExist {
			return nil, notFound(alias, "no metadata was found for an empty alias; registered aliases: %v", r.AliasNames())
		}
		return nil, nil
	}

	if _, err := r.processRegisteredClasses(loader); err != nil {
		return nil, err
	}

	unlock := r.aliasesMu.lock()
	candidates, known := r.aliases[alias]
	candidates = append([]*Class(nil), candidates...)
	unlock()

	names := r.persistentTypeSet(loader)
	var cls *Class
	for _, c := range candidates {
		// Reload by name so a redeployed class replaces the stale one.
		nc := c
		if loader != nil {
			nc = loadQuietly(loader, c.Name, false)
		}
		if nc == nil {
			continue
		}
		if names == nil || names[nc.Name] {
			cls = nc
			unlock := r.aliasesMu.lock()
			if list, ok := r.aliases[alias]; ok && list != nil && !containsClass(list, nc) {
				r.aliases[alias] = append(list, nc)
			}
			unlock()
			break
		}
	}
	if cls != nil {
		return r.GetMetaData(cls, loader, mustExist)
	}

	if !known {
		unlock := r.aliasesMu.lock()
		if _, ok := r.aliases[alias]; !ok {
			r.aliases[alias] = nil
		}
		unlock()
	}
	if !mustExist {
		return nil, nil
	}
	return nil, r.noRegisteredAlias(alias)
}

func (r *Repository) noRegisteredAlias(alias string) error {
	aliases := r.AliasNames()
	if closest := strutil.ClosestLevenshtein(alias, aliases, aliasHintThreshold); closest != "" {
		return notFound(alias, "could not locate metadata for alias %q; registered aliases: %v; perhaps you meant %q",
			alias, aliases, closest)
	}
	return notFound(alias, "could not locate metadata for alias %q; registered aliases: %v", alias, aliases)
}

// AliasNames returns every alias with at least one registered class, sorted.
func (r *Repository) AliasNames() []string {
	unlock := r.aliasesMu.lock()
	defer unlock()

	names := make([]string, 0, len(r.aliases))
	for alias, classes := range r.aliases {
		if classes != nil {
			names = append(names, alias)
		}
	}
	sort.Strings(names)
	return names
}

// ClosestAliasName returns the registered alias nearest to alias, or "".
func (r *Repository) ClosestAliasName(alias string) string {
	return strutil.ClosestLevenshtein(alias, r.AliasNames(), aliasHintThreshold)
}

// GetMetaDataByID returns the least derived metadata for an application
// identity value. Identity values that carry their type resolve directly;
// others go through the identity index, probing for companion classes on the
// first miss.
func (r *Repository) GetMetaDataByID(oid any, loader Loader, mustExist bool) (*ClassMetaData, error) {
	if oid == nil {
		if mustExist {
			return nil, notFound(nil, "no metadata was found for a nil identity; known identity classes: %v", r.identityNames())
		}
		return nil, nil
	}
	if typed, ok := oid.(TypedID); ok && typed.Type() != nil {
		return r.GetMetaData(typed.Type(), loader, mustExist)
	}

	if _, err := r.processRegisteredClasses(loader); err != nil {
		return nil, err
	}
	idCls := identityClassOf(oid)
	cls, known := r.identityOwner(idCls, loader)
	if cls != nil {
		return r.GetMetaData(cls, loader, mustExist)
	}
	if known {
		if mustExist {
			return nil, notFound(oid, "no metadata was found for identity %v of type %s; known identity classes: %v",
				oid, idCls, r.identityNames())
		}
		return nil, nil
	}

	r.resolveIdentityClass(idCls, loader)
	reg, err := r.processRegisteredClasses(loader)
	if err != nil {
		return nil, err
	}
	if len(reg) > 0 {
		if cls, _ := r.identityOwner(idCls, loader); cls != nil {
			return r.GetMetaData(cls, loader, mustExist)
		}
	}

	unlock := r.oidsMu.lock()
	if _, ok := r.oids[idCls]; !ok {
		r.oids[idCls] = nil
	}
	unlock()

	if !mustExist {
		return nil, nil
	}
	return nil, notFound(oid, "no metadata was found for identity %v of type %s; known identity classes: %v",
		oid, idCls, r.identityNames())
}

// identityOwner returns the class owning idCls and whether idCls is known.
// An identity class that was never indexed falls back to owners of
// same-named identity classes, reloaded by name through loader so another
// loader's type is never returned.
func (r *Repository) identityOwner(idCls *Class, loader Loader) (*Class, bool) {
	unlock := r.oidsMu.lock()
	cls, ok := r.oids[idCls]
	var owners []*Class
	if !ok {
		for other, owner := range r.oids {
			if owner != nil && other.Name == idCls.Name {
				owners = append(owners, owner)
			}
		}
	}
	unlock()
	if ok {
		return cls, true
	}

	sort.Slice(owners, func(i, j int) bool { return owners[i].Name < owners[j].Name })
	for _, owner := range owners {
		if loader == nil {
			return owner, true
		}
		if nc := loadQuietly(loader, owner.Name, false); nc != nil {
			return nc, true
		}
	}
	return nil, false
}

func (r *Repository) identityNames() []string {
	unlock := r.oidsMu.lock()
	defer unlock()
	seen := make(map[string]bool, len(r.oids))
	names := make([]string, 0, len(r.oids))
	for idCls, cls := range r.oids {
		if cls != nil && !seen[idCls.Name] {
			seen[idCls.Name] = true
			names = append(names, idCls.Name)
		}
	}
	sort.Strings(names)
	return names
}

// resolveIdentityClass is a heuristic: it initializes every class whose name
// is a prefix of the identity class name within its last package segment,
// for the identity class and each of its superclasses, so that companions
// such as pkg.Order for pkg.OrderID register themselves. Every failure is
// ignored and nothing is guaranteed to be found.
func (r *Repository) resolveIdentityClass(idCls *Class, loader Loader) {
	r.logger.Debug("probing for identity owner", zap.Stringer("identity", idCls))
	for c := idCls; c != nil; c = c.Super {
		name := c.Name
		for i := len(name); i > 1; i-- {
			if name[i-1] == '.' {
				break
			}
			loadQuietly(loader, name[:i], true)
		}
	}
}
