package factory

import (
	"reflect"
	"strings"
	"time"

	"github.com/conduit-lang/ormeta/internal/meta"
	strutil "github.com/conduit-lang/ormeta/internal/util/strings"
)

// Defaults fills new metadata before the mapping documents are applied.
// Classes bound to a Go struct get one declared field per exported struct
// field, shaped by `orm` struct tags:
//
//	ID      int64  `orm:"pk"`
//	Dept    *Dept  `orm:"type=com.acme.Department,column=dept_id"`
//	Version int    `orm:"version"`
//	Cache   string `orm:"-"`
type Defaults struct {
	Access              meta.AccessType
	InterfacePersistent bool
}

func (d Defaults) DeclaredInterfacePersistent() bool { return d.InterfacePersistent }

func (d Defaults) Populate(m *meta.ClassMetaData, access meta.AccessType) {
	if access == meta.AccessUnknown {
		access = d.Access
	}
	if access == meta.AccessUnknown {
		access = meta.AccessField
	}
	m.SetAccess(access)

	t := m.DescribedType().GoType
	if t == nil {
		return
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return
	}
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() || sf.Anonymous {
			continue
		}
		tag := parseTag(sf.Tag.Get("orm"))
		if tag.skip {
			continue
		}
		typeName := tag.typeName
		if typeName == "" {
			typeName = goTypeName(sf.Type)
		}
		f := m.AddDeclaredField(strutil.LowerCamel(sf.Name), typeName)
		f.SetPrimaryKey(tag.pk)
		f.SetVersion(tag.version)
		if tag.column != "" {
			f.SetColumn(tag.column)
		}
	}
}

type fieldTag struct {
	skip     bool
	pk       bool
	version  bool
	column   string
	typeName string
}

func parseTag(tag string) fieldTag {
	var ft fieldTag
	if tag == "-" {
		ft.skip = true
		return ft
	}
	for _, part := range strings.Split(tag, ",") {
		key, value, _ := strings.Cut(strings.TrimSpace(part), "=")
		switch key {
		case "pk":
			ft.pk = true
		case "version":
			ft.version = true
		case "column":
			ft.column = value
		case "type":
			ft.typeName = value
		}
	}
	return ft
}

var timeType = reflect.TypeOf(time.Time{})

// goTypeName names a Go field type the way field metadata does: builtin
// kinds by kind name, collections with their element type.
func goTypeName(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch {
	case t == timeType:
		return "time.Time"
	case t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8:
		return "[]byte"
	case t.Kind() == reflect.Slice:
		return "[]" + goTypeName(t.Elem())
	case t.Kind() == reflect.Map:
		return "map[" + goTypeName(t.Key()) + "]" + goTypeName(t.Elem())
	case t.Kind() <= reflect.Complex128 || t.Kind() == reflect.String:
		return t.Kind().String()
	case t.PkgPath() != "":
		return strings.ReplaceAll(t.PkgPath(), "/", ".") + "." + t.Name()
	default:
		return t.String()
	}
}
