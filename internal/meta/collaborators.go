package meta

// Factory loads raw metadata into a repository. Implementations must be safe
// for concurrent use; the repository calls Load and LoadXMLMetaData while
// holding its own lock, so they must only touch the repository through the
// Catalog they are handed.
type Factory interface {
	// Load populates cat with metadata for cls at the granularity in mode.
	// A nil cls asks for everything the factory knows at that granularity.
	Load(cat Catalog, cls *Class, mode Mode, loader Loader) error

	// LoadXMLMetaData populates XML binding metadata for the field's type.
	LoadXMLMetaData(cat Catalog, field *FieldMetaData) error

	// Defaults fills newly created metadata.
	Defaults() Defaults

	// PersistentTypeNames lists the configured persistent types; an empty
	// result means there is no restriction.
	PersistentTypeNames(devpath bool, loader Loader) []string

	// QueryScope returns the class that declares the named query, if known.
	QueryScope(name string, loader Loader) *Class

	// Clear drops anything the factory cached.
	Clear()
}

// Defaults populates new class metadata.
type Defaults interface {
	Populate(meta *ClassMetaData, access AccessType)
	DeclaredInterfacePersistent() bool
}

// Catalog is the view of a repository handed to a Factory during loading.
// Its methods never take the repository lock.
type Catalog interface {
	AddMetaData(cls *Class, loader Loader, access AccessType) (*ClassMetaData, error)
	CachedMetaData(cls *Class) *ClassMetaData
	AddQueryMetaData(cls *Class, name string) *QueryMetaData
	CachedQueryMetaData(cls *Class, name string) *QueryMetaData
	AddSequenceMetaData(name string) *SequenceMetaData
	CachedSequenceMetaData(name string) *SequenceMetaData
	AddXMLMetaData(cls *Class, name string) *XMLClassMetaData
	AddPersistenceAware(cls *Class) (*NonPersistentMetaData, error)
	AddNonMappedInterface(iface *Class) (*NonPersistentMetaData, error)
}

// RegisterClassListener is notified when a managed class becomes known to
// the runtime.
type RegisterClassListener interface {
	Register(cls *Class)
}

// ClassRegistry answers what registered managed classes declare about
// themselves.
type ClassRegistry interface {
	PersistentSuperclass(cls *Class) *Class
	TypeAlias(cls *Class) string
	// ObjectIDClass returns the application identity class of cls, or nil
	// when cls has none (abstract types, datastore identity).
	ObjectIDClass(cls *Class) (*Class, error)
	AddListener(l RegisterClassListener)
	// IsRegistered reports whether cls was registered with the runtime.
	IsRegistered(cls *Class) bool
}

// MappingVerifier checks resolved mappings against the datastore when
// mapping validation is on.
type MappingVerifier interface {
	VerifyMapping(meta *ClassMetaData) error
}

// EvictionListener is a system listener told about every eviction. A nil
// class means the whole repository was cleared.
type EvictionListener interface {
	MetaDataEvicted(cls *Class)
}

type nopRegistry struct{}

func (nopRegistry) PersistentSuperclass(*Class) *Class   { return nil }
func (nopRegistry) TypeAlias(*Class) string              { return "" }
func (nopRegistry) ObjectIDClass(*Class) (*Class, error) { return nil, nil }
func (nopRegistry) AddListener(RegisterClassListener)    {}
func (nopRegistry) IsRegistered(*Class) bool             { return true }
