package meta

import (
	"sort"
	"strings"
)

// QueryMetaData returns the named query. A nil cls looks the query up by
// name alone. On a miss every configured type is resolved before giving up,
// so queries declared on types nobody has touched yet are found.
func (r *Repository) QueryMetaData(cls *Class, name string, loader Loader, mustExist bool) (*QueryMetaData, error) {
	unlock := r.mu.lock()
	defer unlock()

	qm, err := r.queryMetaDataInternal(cls, name, loader)
	if err != nil {
		return nil, err
	}
	if qm == nil {
		if err := r.resolveAll(loader); err != nil {
			return nil, err
		}
		if qm, err = r.queryMetaDataInternal(cls, name, loader); err != nil {
			return nil, err
		}
	}

	if qm == nil && mustExist {
		if cls == nil {
			return nil, notFound(name, "no named query %q was found in any of the persistent types %v",
				name, r.factory.PersistentTypeNames(false, loader))
		}
		return nil, notFound(name, "no named query %q is defined on %s", name, cls)
	}
	return qm, nil
}

func (r *Repository) queryMetaDataInternal(cls *Class, name string, loader Loader) (*QueryMetaData, error) {
	if name == "" {
		return nil, nil
	}

	if qm := r.cachedQuery(cls, name); qm != nil {
		return qm, nil
	}

	// Class metadata loading registers the queries declared with it.
	if cls != nil {
		meta, err := r.getMetaDataInternal(cls, loader, false)
		if err != nil {
			return nil, err
		}
		if meta != nil {
			if qm := r.cachedQuery(cls, name); qm != nil {
				return qm, nil
			}
		}
	}
	if !r.sourceMode.Has(ModeQuery) {
		return nil, nil
	}

	scope := cls
	if scope == nil {
		scope = r.factory.QueryScope(name, loader)
	}
	if err := r.factory.Load(r.catalog, scope, ModeQuery, loader); err != nil {
		return nil, resolutionError(name, err, "failed to load query %q", name)
	}
	return r.cachedQuery(cls, name), nil
}

// cachedQuery finds name under cls. Queries registered in the unit-wide
// namespace also answer for the type that defines them.
func (r *Repository) cachedQuery(cls *Class, name string) *QueryMetaData {
	if qm := r.queries[newQueryKey(cls, name)]; qm != nil || cls == nil {
		return qm
	}
	if qm := r.queries[newQueryKey(nil, name)]; qm != nil && qm.DefiningType() == cls {
		return qm
	}
	return nil
}

// QueryMetaDatas returns every cached query, sorted by class and name.
func (r *Repository) QueryMetaDatas() []*QueryMetaData {
	unlock := r.mu.lock()
	defer unlock()

	out := make([]*QueryMetaData, 0, len(r.queries))
	for _, qm := range r.queries {
		out = append(out, qm)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].key.class != out[j].key.class {
			return out[i].key.class < out[j].key.class
		}
		return out[i].key.name < out[j].key.name
	})
	return out
}

func (r *Repository) CachedQueryMetaData(cls *Class, name string) *QueryMetaData {
	unlock := r.mu.lock()
	defer unlock()
	return r.queries[newQueryKey(cls, name)]
}

// AddQueryMetaData creates and caches a query, replacing any query with the
// same class and name.
func (r *Repository) AddQueryMetaData(cls *Class, name string) *QueryMetaData {
	r.preloaded("AddQueryMetaData")
	unlock := r.mu.lock()
	defer unlock()
	return r.addQueryMetaDataInternal(cls, name)
}

func (r *Repository) addQueryMetaDataInternal(cls *Class, name string) *QueryMetaData {
	qm := newQueryMetaData(cls, name)
	r.queries[qm.key] = qm
	return qm
}

func (r *Repository) RemoveQueryMetaDataFor(qm *QueryMetaData) bool {
	if qm == nil {
		return false
	}
	r.preloaded("RemoveQueryMetaData")
	unlock := r.mu.lock()
	defer unlock()
	return r.removeQuery(qm.key)
}

func (r *Repository) RemoveQueryMetaData(cls *Class, name string) bool {
	if name == "" {
		return false
	}
	r.preloaded("RemoveQueryMetaData")
	unlock := r.mu.lock()
	defer unlock()
	return r.removeQuery(newQueryKey(cls, name))
}

func (r *Repository) removeQuery(key queryKey) bool {
	if _, ok := r.queries[key]; !ok {
		return false
	}
	delete(r.queries, key)
	return true
}

// SequenceMetaData returns the named sequence. Registered classes are
// loaded on a miss since sequences are usually declared with a class. The
// system sequence always exists.
func (r *Repository) SequenceMetaData(name string, loader Loader, mustExist bool) (*SequenceMetaData, error) {
	unlock := r.mu.lock()
	defer unlock()
	return r.sequenceMetaDataInternal(name, loader, mustExist)
}

func (r *Repository) sequenceMetaDataInternal(name string, loader Loader, mustExist bool) (*SequenceMetaData, error) {
	if name == "" {
		if mustExist {
			return nil, notFound(name, "no sequence named %q", name)
		}
		return nil, nil
	}

	seq := r.seqs[name]
	if seq == nil {
		if err := r.loadRegisteredClassMetaData(loader); err != nil {
			return nil, err
		}
		seq = r.seqs[name]
	}
	if seq == nil && name == SystemSequence {
		if r.sysSeq == nil {
			r.sysSeq = newSequenceMetaData(name)
		}
		return r.sysSeq, nil
	}
	if seq == nil && mustExist {
		return nil, notFound(name, "no sequence named %q", name)
	}
	return seq, nil
}

// SequenceMetaDataFor looks name up as given and, when it is unqualified,
// again inside the package of the context type. A failure reports the
// original lookup.
func (r *Repository) SequenceMetaDataFor(context *ClassMetaData, name string, mustExist bool) (*SequenceMetaData, error) {
	unlock := r.mu.lock()
	defer unlock()

	seq, firstErr := r.sequenceMetaDataInternal(name, context.loader, mustExist)
	if seq != nil {
		return seq, nil
	}
	if strings.Contains(name, ".") || context.typ.Package() == "" {
		return nil, firstErr
	}

	qualified := context.typ.Package() + "." + name
	seq, err := r.sequenceMetaDataInternal(qualified, context.loader, mustExist)
	if err != nil {
		if firstErr != nil {
			return nil, firstErr
		}
		return nil, err
	}
	return seq, nil
}

// SequenceMetaDatas returns every cached sequence sorted by name. The system
// sequence is only included once declared explicitly.
func (r *Repository) SequenceMetaDatas() []*SequenceMetaData {
	unlock := r.mu.lock()
	defer unlock()

	out := make([]*SequenceMetaData, 0, len(r.seqs))
	for _, s := range r.seqs {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

func (r *Repository) CachedSequenceMetaData(name string) *SequenceMetaData {
	unlock := r.mu.lock()
	defer unlock()
	return r.seqs[name]
}

// AddSequenceMetaData creates and caches a sequence, replacing any sequence
// of the same name.
func (r *Repository) AddSequenceMetaData(name string) *SequenceMetaData {
	r.preloaded("AddSequenceMetaData")
	unlock := r.mu.lock()
	defer unlock()
	return r.addSequenceMetaDataInternal(name)
}

func (r *Repository) addSequenceMetaDataInternal(name string) *SequenceMetaData {
	seq := newSequenceMetaData(name)
	r.seqs[name] = seq
	return seq
}

func (r *Repository) RemoveSequenceMetaDataFor(seq *SequenceMetaData) bool {
	if seq == nil {
		return false
	}
	return r.RemoveSequenceMetaData(seq.name)
}

func (r *Repository) RemoveSequenceMetaData(name string) bool {
	if name == "" {
		return false
	}
	r.preloaded("RemoveSequenceMetaData")
	unlock := r.mu.lock()
	defer unlock()
	if _, ok := r.seqs[name]; !ok {
		return false
	}
	delete(r.seqs, name)
	return true
}

// XMLMetaData returns the XML binding of the field's declared type, asking
// the factory for it on a miss.
func (r *Repository) XMLMetaData(field *FieldMetaData) (*XMLClassMetaData, error) {
	unlock := r.mu.lock()
	defer unlock()

	cls := field.declaredType
	if cls == nil {
		return nil, nil
	}
	if x := r.xmlmetas[cls]; x != nil {
		return x, nil
	}
	if err := r.factory.LoadXMLMetaData(r.catalog, field); err != nil {
		return nil, resolutionError(field, err, "failed to load XML metadata for %s", field)
	}
	return r.xmlmetas[cls], nil
}

// AddXMLMetaData creates and caches the XML binding of cls.
func (r *Repository) AddXMLMetaData(cls *Class, name string) *XMLClassMetaData {
	r.preloaded("AddXMLMetaData")
	unlock := r.mu.lock()
	defer unlock()
	return r.addXMLMetaDataInternal(cls, name)
}

func (r *Repository) addXMLMetaDataInternal(cls *Class, name string) *XMLClassMetaData {
	x := &XMLClassMetaData{typ: cls, name: name}
	r.xmlmetas[cls] = x
	return x
}

func (r *Repository) CachedXMLMetaData(cls *Class) *XMLClassMetaData {
	unlock := r.mu.lock()
	defer unlock()
	return r.xmlmetas[cls]
}
