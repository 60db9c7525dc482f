package meta

import (
	"fmt"
	"strings"

	strutil "github.com/conduit-lang/ormeta/internal/util/strings"
)

// AccessType selects how a managed type's state is accessed.
type AccessType int

const (
	AccessUnknown AccessType = iota
	AccessField
	AccessProperty
)

func (a AccessType) String() string {
	switch a {
	case AccessField:
		return "field"
	case AccessProperty:
		return "property"
	default:
		return "unknown"
	}
}

// ParseAccessType converts "field" or "property" to an AccessType.
func ParseAccessType(s string) (AccessType, error) {
	switch strings.ToLower(s) {
	case "", "unknown":
		return AccessUnknown, nil
	case "field":
		return AccessField, nil
	case "property":
		return AccessProperty, nil
	default:
		return AccessUnknown, fmt.Errorf("unknown access type: %s", s)
	}
}

// ClassMetaData is the persistence description of one managed class. It is
// created and owned by a Repository; callers share the same instance and see
// it advance as resolution proceeds.
type ClassMetaData struct {
	repo   *Repository
	typ    *Class
	loader Loader
	access AccessType

	super  *ClassMetaData
	fields []*FieldMetaData
	all    []*FieldMetaData
	ifaces []*Class

	resolve   Mode
	resolving Mode
	source    Mode

	alias            string
	table            string
	identityClass    *Class
	embeddedOnly     bool
	managedInterface bool
}

func newClassMetaData(repo *Repository, cls *Class, loader Loader) *ClassMetaData {
	return &ClassMetaData{repo: repo, typ: cls, loader: loader}
}

// DescribedType returns the class this metadata describes.
func (m *ClassMetaData) DescribedType() *Class { return m.typ }

// EnvLoader returns the loader the metadata was created in.
func (m *ClassMetaData) EnvLoader() Loader { return m.loader }

// Access returns how the runtime reaches persistent state.
func (m *ClassMetaData) Access() AccessType { return m.access }

// SetAccess sets how the runtime reaches persistent state.
func (m *ClassMetaData) SetAccess(access AccessType) { m.access = access }

// Superclass returns the metadata of the nearest managed superclass.
func (m *ClassMetaData) Superclass() *ClassMetaData { return m.super }

// SetSuperclass links the managed superclass. The link can be set once;
// setting a different superclass afterwards fails.
func (m *ClassMetaData) SetSuperclass(sup *ClassMetaData) error {
	if m.super != nil && m.super != sup {
		return fmt.Errorf("%w: %s already extends %s", ErrSuperclassAlreadySet, m.typ, m.super.typ)
	}
	m.super = sup
	return nil
}

// ResolveState returns the resolved granularities.
func (m *ClassMetaData) ResolveState() Mode { return m.resolve }

// SourceMode returns the granularities loaded from the metadata source.
func (m *ClassMetaData) SourceMode() Mode { return m.source }

// SetSourceMode records whether the granularities in mode were loaded.
func (m *ClassMetaData) SetSourceMode(mode Mode, on bool) {
	m.source = m.source.With(mode, on)
}

// Alias returns the explicitly declared alias, or "".
func (m *ClassMetaData) Alias() string { return m.alias }

// SetAlias declares the alias queries may use for the type.
func (m *ClassMetaData) SetAlias(alias string) { m.alias = alias }

// TypeAlias returns the alias, defaulting to the simple class name.
func (m *ClassMetaData) TypeAlias() string {
	if m.alias != "" {
		return m.alias
	}
	return m.typ.SimpleName()
}

// Table returns the table the type is stored in. Mapping resolution fills
// it in from the superclass or the type name when unset.
func (m *ClassMetaData) Table() string { return m.table }

// SetTable overrides the default table.
func (m *ClassMetaData) SetTable(table string) { m.table = table }

// IdentityClass returns the application identity class, if any.
func (m *ClassMetaData) IdentityClass() *Class { return m.identityClass }

// SetIdentityClass sets the application identity class.
func (m *ClassMetaData) SetIdentityClass(cls *Class) { m.identityClass = cls }

// EmbeddedOnly reports whether the type is only stored inside its owners.
func (m *ClassMetaData) EmbeddedOnly() bool { return m.embeddedOnly }

// SetEmbeddedOnly marks the type as stored only inside its owners.
func (m *ClassMetaData) SetEmbeddedOnly(on bool) { m.embeddedOnly = on }

// ManagedInterface reports whether the type is an interface the runtime
// generates an implementation for.
func (m *ClassMetaData) ManagedInterface() bool { return m.managedInterface }

// SetManagedInterface marks the type as a managed interface.
func (m *ClassMetaData) SetManagedInterface(on bool) { m.managedInterface = on }

// Mapped reports whether instances of the type are stored in their own right.
func (m *ClassMetaData) Mapped() bool {
	return !m.embeddedOnly && !m.typ.Interface
}

// DeclaredInterfaces lists persistent interfaces declared in metadata.
func (m *ClassMetaData) DeclaredInterfaces() []*Class { return m.ifaces }

// AddDeclaredInterface declares iface once; repeats are ignored.
func (m *ClassMetaData) AddDeclaredInterface(iface *Class) {
	for _, i := range m.ifaces {
		if i == iface {
			return
		}
	}
	m.ifaces = append(m.ifaces, iface)
}

// Subclasses returns the registered managed subclasses, least derived first.
func (m *ClassMetaData) Subclasses() []*Class {
	if m.repo == nil {
		return nil
	}
	return m.repo.pcSubclasses(m.typ)
}

// DeclaredFields returns the fields declared by this class, in order.
func (m *ClassMetaData) DeclaredFields() []*FieldMetaData { return m.fields }

// DeclaredField returns the named declared field or nil.
func (m *ClassMetaData) DeclaredField(name string) *FieldMetaData {
	for _, f := range m.fields {
		if f.name == name {
			return f
		}
	}
	return nil
}

// AddDeclaredField declares a field. An existing field of the same name is
// returned unchanged apart from its type name when one is given.
func (m *ClassMetaData) AddDeclaredField(name, typeName string) *FieldMetaData {
	if f := m.DeclaredField(name); f != nil {
		if typeName != "" {
			f.typeName = typeName
		}
		return f
	}
	f := &FieldMetaData{owner: m, name: name, typeName: typeName, index: len(m.fields)}
	m.fields = append(m.fields, f)
	m.all = nil
	return f
}

// RemoveDeclaredField drops the named field.
func (m *ClassMetaData) RemoveDeclaredField(name string) bool {
	for i, f := range m.fields {
		if f.name == name {
			m.fields = append(m.fields[:i], m.fields[i+1:]...)
			for j := i; j < len(m.fields); j++ {
				m.fields[j].index = j
			}
			m.all = nil
			return true
		}
	}
	return false
}

// Fields returns inherited fields followed by declared fields.
func (m *ClassMetaData) Fields() []*FieldMetaData {
	if m.all != nil {
		return m.all
	}
	if m.super == nil {
		return m.fields
	}
	inherited := m.super.Fields()
	all := make([]*FieldMetaData, 0, len(inherited)+len(m.fields))
	all = append(all, inherited...)
	return append(all, m.fields...)
}

// Field returns the named field, searching superclasses too.
func (m *ClassMetaData) Field(name string) *FieldMetaData {
	for c := m; c != nil; c = c.super {
		if f := c.DeclaredField(name); f != nil {
			return f
		}
	}
	return nil
}

// PrimaryKeyFields returns every primary key field, inherited ones first.
func (m *ClassMetaData) PrimaryKeyFields() []*FieldMetaData {
	var pks []*FieldMetaData
	for _, f := range m.Fields() {
		if f.primaryKey {
			pks = append(pks, f)
		}
	}
	return pks
}

// VersionField returns the version field or nil.
func (m *ClassMetaData) VersionField() *FieldMetaData {
	for _, f := range m.Fields() {
		if f.version {
			return f
		}
	}
	return nil
}

// DefaultFetchGroupFields returns the fields loaded eagerly by default.
func (m *ClassMetaData) DefaultFetchGroupFields() []*FieldMetaData {
	var dfg []*FieldMetaData
	for _, f := range m.Fields() {
		if f.InDefaultFetchGroup() {
			dfg = append(dfg, f)
		}
	}
	return dfg
}

func (m *ClassMetaData) String() string {
	return m.typ.String()
}

// resolveMode advances the metadata to the given single-bit mode. Resolving
// a mode that is already resolved, or currently being resolved further up
// the stack, is a no-op. Bits are only ever added. The repository lock must
// be held.
func (m *ClassMetaData) resolveMode(mode Mode) error {
	if m.resolve&mode == mode || m.resolving&mode != 0 {
		return nil
	}
	m.resolving |= mode
	defer func() { m.resolving &^= mode }()

	var err error
	switch mode {
	case ModeMeta:
		err = m.resolveMeta()
	case ModeMapping:
		err = m.resolveMapping()
	case ModeMappingInit:
		err = m.initializeMapping()
	default:
		return invalid(m, "cannot resolve %s in mode %s", m, mode)
	}
	if err != nil {
		return err
	}
	m.resolve |= mode
	return nil
}

func (m *ClassMetaData) validation() Validation {
	if m.repo == nil {
		return ValidateNone
	}
	return m.repo.validate
}

func (m *ClassMetaData) resolveMeta() error {
	if m.super != nil {
		if err := m.super.resolveMode(ModeMeta); err != nil {
			return resolutionError(m, err, "superclass of %s failed to resolve", m)
		}
	}

	validate := m.validation()
	if validate.Has(ValidateUnenhanced) && m.repo != nil && m.repo.registry != nil &&
		!m.typ.Abstract && !m.typ.Interface && !m.embeddedOnly &&
		!m.repo.registry.IsRegistered(m.typ) {
		// Initializing the class runs its registration, if it has one.
		loadQuietly(m.loader, m.typ.Name, true)
		if !m.repo.registry.IsRegistered(m.typ) {
			return resolutionError(m, nil, "type %s has not been registered with the runtime", m)
		}
	}

	for _, f := range m.fields {
		if err := f.resolve(); err != nil {
			return err
		}
	}

	if validate.Has(ValidateMeta) {
		if err := m.validateMeta(); err != nil {
			return err
		}
	}

	for _, iface := range m.ifaces {
		if validate.Has(ValidateMeta) && !iface.IsAssignableFrom(m.typ) {
			return resolutionError(m, nil, "type %s declares persistent interface %s but does not implement it", m, iface)
		}
		if m.repo != nil {
			m.repo.addDeclaredInterfaceImpl(m, iface)
		}
	}

	m.defineSuperclassFields()
	return nil
}

func (m *ClassMetaData) validateMeta() error {
	if m.super != nil {
		for _, f := range m.fields {
			if inherited := m.super.Field(f.name); inherited != nil {
				return resolutionError(m, nil, "field %s redefines field %s", f, inherited)
			}
		}
	}
	versions := 0
	for _, f := range m.Fields() {
		if f.version {
			versions++
		}
	}
	if versions > 1 {
		return resolutionError(m, nil, "type %s declares %d version fields", m, versions)
	}
	return nil
}

// defineSuperclassFields caches the combined inherited and declared field list.
func (m *ClassMetaData) defineSuperclassFields() {
	m.all = nil
	m.all = m.Fields()
}

func (m *ClassMetaData) resolveMapping() error {
	if !m.resolve.Has(ModeMeta) {
		if err := m.resolveMode(ModeMeta); err != nil {
			return err
		}
	}
	if m.super != nil {
		if err := m.super.resolveMode(ModeMapping); err != nil {
			return resolutionError(m, err, "superclass mapping of %s failed to resolve", m)
		}
	}

	if m.table == "" && !m.embeddedOnly && !m.typ.Interface {
		if m.super != nil && m.super.table != "" {
			m.table = m.super.table
		} else {
			m.table = strutil.SnakeCase(m.typ.SimpleName())
		}
	}
	for _, f := range m.fields {
		if f.column != "" {
			continue
		}
		f.column = strutil.SnakeCase(f.name)
		if f.typeMeta != nil {
			f.column += "_id"
		}
	}

	if m.validation().Has(ValidateMapping) && m.table != "" {
		seen := make(map[string]*FieldMetaData)
		for _, f := range m.Fields() {
			if f.column == "" {
				continue
			}
			if other, ok := seen[f.column]; ok && other.owner.table == f.owner.table {
				return resolutionError(m, nil, "fields %s and %s both map to column %s.%s", other, f, m.table, f.column)
			}
			seen[f.column] = f
		}
	}
	return nil
}

func (m *ClassMetaData) initializeMapping() error {
	if !m.resolve.Has(ModeMapping) {
		if err := m.resolveMode(ModeMapping); err != nil {
			return err
		}
	}
	if m.repo == nil || m.repo.verifier == nil || !m.validation().Has(ValidateMapping) {
		return nil
	}
	if err := m.repo.verifier.VerifyMapping(m); err != nil {
		return resolutionError(m, err, "mapping of %s does not match the datastore", m)
	}
	return nil
}

// FieldMetaData is a named, typed field of exactly one ClassMetaData.
type FieldMetaData struct {
	owner    *ClassMetaData
	name     string
	typeName string
	index    int

	declaredType *Class
	typeMeta     *ClassMetaData

	primaryKey bool
	version    bool
	dfg        *bool
	column     string
}

// Owner returns the metadata of the type declaring the field.
func (f *FieldMetaData) Owner() *ClassMetaData { return f.owner }

// Name returns the field name.
func (f *FieldMetaData) Name() string { return f.name }

// Index returns the field's position among its owner's declared fields.
func (f *FieldMetaData) Index() int { return f.index }

// TypeName is the declared type as written in metadata.
func (f *FieldMetaData) TypeName() string { return f.typeName }

// DeclaredType is the class the type name resolved to; nil for scalars.
func (f *FieldMetaData) DeclaredType() *Class { return f.declaredType }

// TypeMetaData is the metadata of a managed field type; nil otherwise.
func (f *FieldMetaData) TypeMetaData() *ClassMetaData { return f.typeMeta }

// IsRelation reports whether the field references another managed type.
func (f *FieldMetaData) IsRelation() bool { return f.typeMeta != nil }

// IsPrimaryKey reports whether the field is part of the primary key.
func (f *FieldMetaData) IsPrimaryKey() bool { return f.primaryKey }

// SetPrimaryKey marks the field as part of the primary key.
func (f *FieldMetaData) SetPrimaryKey(pk bool) { f.primaryKey = pk }

// IsVersion reports whether the field holds the optimistic lock version.
func (f *FieldMetaData) IsVersion() bool { return f.version }

// SetVersion marks the field as the version field.
func (f *FieldMetaData) SetVersion(v bool) { f.version = v }

// Column returns the column the field is stored in.
func (f *FieldMetaData) Column() string { return f.column }

// SetColumn overrides the default column.
func (f *FieldMetaData) SetColumn(col string) { f.column = col }

// InDefaultFetchGroup defaults to true for scalars and false for relations.
func (f *FieldMetaData) InDefaultFetchGroup() bool {
	if f.dfg != nil {
		return *f.dfg
	}
	return !f.IsRelation()
}

// SetInDefaultFetchGroup overrides the default fetch group membership.
func (f *FieldMetaData) SetInDefaultFetchGroup(in bool) {
	f.dfg = &in
}

func (f *FieldMetaData) String() string {
	return f.owner.typ.Name + "." + f.name
}

func (f *FieldMetaData) resolve() error {
	if f.typeName == "" || isScalarType(f.typeName) {
		return nil
	}
	if f.declaredType == nil {
		cls, err := loadClass(f.owner.loader, f.typeName, false)
		if err != nil {
			return resolutionError(f, err, "field %s has unresolvable type %s", f, f.typeName)
		}
		f.declaredType = cls
	}
	if f.typeMeta == nil && f.owner.repo != nil {
		tm, err := f.owner.repo.getMetaDataInternal(f.declaredType, f.owner.loader, false)
		if err != nil {
			return err
		}
		f.typeMeta = tm
	}
	return nil
}

var scalarTypes = map[string]bool{
	"string": true, "bool": true, "byte": true, "rune": true,
	"int": true, "int8": true, "int16": true, "int32": true, "int64": true,
	"uint": true, "uint8": true, "uint16": true, "uint32": true, "uint64": true,
	"float32": true, "float64": true, "complex64": true, "complex128": true,
	"time.Time": true, "time.Duration": true, "decimal": true, "uuid": true,
	"json": true, "any": true, "interface{}": true,
}

func isScalarType(name string) bool {
	name = strings.TrimLeft(name, "*")
	if strings.HasPrefix(name, "[]") || strings.HasPrefix(name, "map[") {
		return true
	}
	return scalarTypes[name]
}
