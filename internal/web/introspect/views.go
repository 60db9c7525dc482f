package introspect

import (
	"github.com/conduit-lang/ormeta/internal/meta"
)

type classSummary struct {
	Class      string `json:"class"`
	Alias      string `json:"alias,omitempty"`
	Table      string `json:"table,omitempty"`
	Access     string `json:"access"`
	Superclass string `json:"superclass,omitempty"`
	Resolved   string `json:"resolved"`
	Embedded   bool   `json:"embedded,omitempty"`
}

type fieldView struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Column     string `json:"column,omitempty"`
	PrimaryKey bool   `json:"primary_key,omitempty"`
	Version    bool   `json:"version,omitempty"`
	Relation   bool   `json:"relation,omitempty"`
	FetchGroup bool   `json:"default_fetch_group"`
	// Declarer is set for inherited fields.
	Declarer string `json:"declarer,omitempty"`
}

type classView struct {
	classSummary
	IdentityClass string      `json:"identity_class,omitempty"`
	Interfaces    []string    `json:"interfaces,omitempty"`
	Subclasses    []string    `json:"subclasses,omitempty"`
	Fields        []fieldView `json:"fields"`
}

func summarize(m *meta.ClassMetaData) classSummary {
	s := classSummary{
		Class:    m.DescribedType().Name,
		Alias:    m.TypeAlias(),
		Table:    m.Table(),
		Access:   m.Access().String(),
		Resolved: m.ResolveState().String(),
		Embedded: m.EmbeddedOnly(),
	}
	if sup := m.Superclass(); sup != nil {
		s.Superclass = sup.DescribedType().Name
	}
	return s
}

func describe(m *meta.ClassMetaData) classView {
	v := classView{
		classSummary:  summarize(m),
		IdentityClass: className(m.IdentityClass()),
		Interfaces:    classNames(m.DeclaredInterfaces()),
		Subclasses:    classNames(m.Subclasses()),
		Fields:        []fieldView{},
	}
	for _, f := range m.Fields() {
		fv := fieldView{
			Name:       f.Name(),
			Type:       f.TypeName(),
			Column:     f.Column(),
			PrimaryKey: f.IsPrimaryKey(),
			Version:    f.IsVersion(),
			Relation:   f.IsRelation(),
			FetchGroup: f.InDefaultFetchGroup(),
		}
		if owner := f.Owner(); owner != m {
			fv.Declarer = owner.DescribedType().Name
		}
		v.Fields = append(v.Fields, fv)
	}
	return v
}

func className(cls *meta.Class) string {
	if cls == nil {
		return ""
	}
	return cls.Name
}

func classNames(classes []*meta.Class) []string {
	if len(classes) == 0 {
		return nil
	}
	names := make([]string, len(classes))
	for i, cls := range classes {
		names[i] = cls.Name
	}
	return names
}
