package meta

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// ErrClassNotFound is returned by a Loader that cannot see the named class.
var ErrClassNotFound = errors.New("class not found")

// Class is a reference to a type known to the runtime. Two loaders may each
// produce a Class with the same Name; they are distinct types and compare
// unequal.
type Class struct {
	Name       string
	Super      *Class
	Interfaces []*Class
	Interface  bool
	Abstract   bool
	// Builtin marks scalar and standard-library types that never carry metadata.
	Builtin bool
	// GoType optionally binds the class to a Go struct so defaults can be
	// populated from its fields.
	GoType reflect.Type
}

func (c *Class) String() string {
	if c == nil {
		return "<nil>"
	}
	return c.Name
}

// Package returns the dotted package portion of the class name.
func (c *Class) Package() string {
	if i := strings.LastIndexByte(c.Name, '.'); i >= 0 {
		return c.Name[:i]
	}
	return ""
}

// SimpleName returns the class name without its package.
func (c *Class) SimpleName() string {
	if i := strings.LastIndexByte(c.Name, '.'); i >= 0 {
		return c.Name[i+1:]
	}
	return c.Name
}

// Depth is the number of superclasses above c.
func (c *Class) Depth() int {
	depth := 0
	for sup := c.Super; sup != nil; sup = sup.Super {
		depth++
	}
	return depth
}

// IsAssignableFrom reports whether other is c or a subtype of c.
func (c *Class) IsAssignableFrom(other *Class) bool {
	if c == nil || other == nil {
		return false
	}
	if c == other {
		return true
	}
	if other.Super != nil && c.IsAssignableFrom(other.Super) {
		return true
	}
	for _, iface := range other.Interfaces {
		if c.IsAssignableFrom(iface) {
			return true
		}
	}
	return false
}

// Implements reports whether iface is declared directly on c.
func (c *Class) Implements(iface *Class) bool {
	for _, i := range c.Interfaces {
		if i == iface {
			return true
		}
	}
	return false
}

// Loader is the environment a lookup runs in. Loading a class with
// initialize set runs its registration side effects, if any.
type Loader interface {
	LoadClass(name string, initialize bool) (*Class, error)
}

// TypedID is an identity value that already knows its owning managed type.
type TypedID interface {
	Type() *Class
}

// Identity is an application identity value that names its identity class.
type Identity interface {
	IdentityClass() *Class
}

// goTypeClasses holds the one Class describing each Go identity type.
var goTypeClasses sync.Map // reflect.Type -> *Class

// identityClassOf returns the class describing oid's identity type. Values
// that implement neither TypedID nor Identity are described by their Go type;
// every value of one Go type yields the same Class.
func identityClassOf(oid any) *Class {
	if id, ok := oid.(Identity); ok && id.IdentityClass() != nil {
		return id.IdentityClass()
	}
	t := reflect.TypeOf(oid)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	name := t.Name()
	if t.PkgPath() != "" {
		name = strings.ReplaceAll(t.PkgPath(), "/", ".") + "." + name
	}
	if name == "" {
		name = t.String()
	}
	cls, _ := goTypeClasses.LoadOrStore(t, &Class{Name: name, GoType: t})
	return cls.(*Class)
}

// loadQuietly loads name through loader, discarding every failure
// including panics raised by registration side effects.
func loadQuietly(loader Loader, name string, initialize bool) (cls *Class) {
	if loader == nil {
		return nil
	}
	defer func() {
		if recover() != nil {
			cls = nil
		}
	}()
	cls, err := loader.LoadClass(name, initialize)
	if err != nil {
		return nil
	}
	return cls
}

func classNames(classes []*Class) []string {
	names := make([]string, 0, len(classes))
	for _, c := range classes {
		names = append(names, c.Name)
	}
	return names
}

func loadClass(loader Loader, name string, initialize bool) (*Class, error) {
	if loader == nil {
		return nil, fmt.Errorf("%w: %s (no loader)", ErrClassNotFound, name)
	}
	return loader.LoadClass(name, initialize)
}
