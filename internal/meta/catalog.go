package meta

// catalog is the lock-free view of a Repository handed to its factory. It
// is only valid while the repository lock is held by the caller that
// triggered the load.
type catalog struct {
	r *Repository
}

func (c *catalog) AddMetaData(cls *Class, loader Loader, access AccessType) (*ClassMetaData, error) {
	return c.r.addMetaDataInternal(cls, loader, access)
}

func (c *catalog) CachedMetaData(cls *Class) *ClassMetaData {
	return c.r.metas[cls]
}

func (c *catalog) AddQueryMetaData(cls *Class, name string) *QueryMetaData {
	return c.r.addQueryMetaDataInternal(cls, name)
}

func (c *catalog) CachedQueryMetaData(cls *Class, name string) *QueryMetaData {
	return c.r.queries[newQueryKey(cls, name)]
}

func (c *catalog) AddSequenceMetaData(name string) *SequenceMetaData {
	return c.r.addSequenceMetaDataInternal(name)
}

func (c *catalog) CachedSequenceMetaData(name string) *SequenceMetaData {
	return c.r.seqs[name]
}

func (c *catalog) AddXMLMetaData(cls *Class, name string) *XMLClassMetaData {
	return c.r.addXMLMetaDataInternal(cls, name)
}

func (c *catalog) AddPersistenceAware(cls *Class) (*NonPersistentMetaData, error) {
	if cls == nil {
		return nil, nil
	}
	return c.r.addPersistenceAwareInternal(cls)
}

func (c *catalog) AddNonMappedInterface(iface *Class) (*NonPersistentMetaData, error) {
	if iface == nil {
		return nil, nil
	}
	return c.r.addNonMappedInterfaceInternal(iface)
}
