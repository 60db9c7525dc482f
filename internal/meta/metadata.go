package meta

import (
	"io"
	"sync"
)

// QueryMetaData is a named query declared in metadata.
type QueryMetaData struct {
	key        queryKey
	name       string
	definingTy *Class
	resultType *Class
	Language   string
	Query      string
	Hints      map[string]string
	source     Mode
}

func newQueryMetaData(cls *Class, name string) *QueryMetaData {
	return &QueryMetaData{key: newQueryKey(cls, name), name: name, definingTy: cls, Language: "jpql"}
}

func (q *QueryMetaData) Name() string { return q.name }

// DefiningType is the class the query was declared on, or nil.
func (q *QueryMetaData) DefiningType() *Class { return q.definingTy }

// SetDefiningType records where a globally named query was declared. The
// query stays cached under the class it was added with.
func (q *QueryMetaData) SetDefiningType(cls *Class) { q.definingTy = cls }

func (q *QueryMetaData) ResultType() *Class       { return q.resultType }
func (q *QueryMetaData) SetResultType(cls *Class) { q.resultType = cls }
func (q *QueryMetaData) SourceMode() Mode         { return q.source }
func (q *QueryMetaData) SetSourceMode(mode Mode)  { q.source = mode }

func (q *QueryMetaData) String() string {
	if q.definingTy == nil {
		return q.name
	}
	return q.definingTy.Name + ":" + q.name
}

// queryKey identifies a query by the name of its defining class, which may
// be empty, and its own name.
type queryKey struct {
	class string
	name  string
}

func newQueryKey(cls *Class, name string) queryKey {
	key := queryKey{name: name}
	if cls != nil {
		key.class = cls.Name
	}
	return key
}

// SystemSequence names the built-in sequence always available from a
// repository.
const SystemSequence = "system"

// SequenceMetaData describes a value generation source.
type SequenceMetaData struct {
	name      string
	Sequence  string
	Strategy  string
	Initial   int64
	Increment int64
	Allocate  int

	mu       sync.Mutex
	instance io.Closer
	source   Mode
}

func newSequenceMetaData(name string) *SequenceMetaData {
	return &SequenceMetaData{name: name, Strategy: "native", Initial: 1, Increment: 1, Allocate: 50}
}

func (s *SequenceMetaData) Name() string         { return s.name }
func (s *SequenceMetaData) SourceMode() Mode     { return s.source }
func (s *SequenceMetaData) SetSourceMode(m Mode) { s.source = m }

// SetInstance attaches the runtime generator backing the sequence.
func (s *SequenceMetaData) SetInstance(c io.Closer) {
	s.mu.Lock()
	s.instance = c
	s.mu.Unlock()
}

// Instance returns the runtime generator, if any.
func (s *SequenceMetaData) Instance() io.Closer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.instance
}

// Close releases the runtime generator.
func (s *SequenceMetaData) Close() error {
	s.mu.Lock()
	c := s.instance
	s.instance = nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}
	return c.Close()
}

func (s *SequenceMetaData) String() string { return s.name }

// NonPersistentType tells persistence-aware classes from non-mapped
// interfaces.
type NonPersistentType int

const (
	TypePersistenceAware NonPersistentType = iota + 1
	TypeNonMappedInterface
)

// NonPersistentMetaData records a class that touches managed state without
// being managed itself.
type NonPersistentMetaData struct {
	typ    *Class
	kind   NonPersistentType
	loader Loader
}

func (n *NonPersistentMetaData) DescribedType() *Class   { return n.typ }
func (n *NonPersistentMetaData) Type() NonPersistentType { return n.kind }
func (n *NonPersistentMetaData) EnvLoader() Loader       { return n.loader }
func (n *NonPersistentMetaData) String() string          { return n.typ.Name }

// XMLClassMetaData describes the XML binding of a field value type.
type XMLClassMetaData struct {
	typ    *Class
	name   string
	fields []*XMLFieldMetaData
}

func (x *XMLClassMetaData) DescribedType() *Class { return x.typ }
func (x *XMLClassMetaData) XMLName() string       { return x.name }

// AddField declares an XML-bound field.
func (x *XMLClassMetaData) AddField(name, xmlName string, attribute bool) *XMLFieldMetaData {
	f := &XMLFieldMetaData{Name: name, XMLName: xmlName, Attribute: attribute}
	x.fields = append(x.fields, f)
	return f
}

func (x *XMLClassMetaData) Fields() []*XMLFieldMetaData { return x.fields }

// XMLFieldMetaData is one element or attribute of an XML binding.
type XMLFieldMetaData struct {
	Name      string
	XMLName   string
	Attribute bool
}
