package factory

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// Document is one YAML mapping document.
type Document struct {
	Entities            []EntityDoc `yaml:"entities"`
	PersistenceAware    []string    `yaml:"persistence_aware,omitempty"`
	NonMappedInterfaces []string    `yaml:"non_mapped_interfaces,omitempty"`
	XML                 []XMLDoc    `yaml:"xml,omitempty"`

	path string
}

// EntityDoc maps one managed class.
type EntityDoc struct {
	Class            string        `yaml:"class"`
	Access           string        `yaml:"access,omitempty"`
	Alias            string        `yaml:"alias,omitempty"`
	Table            string        `yaml:"table,omitempty"`
	Embedded         bool          `yaml:"embedded,omitempty"`
	ManagedInterface bool          `yaml:"managed_interface,omitempty"`
	IDClass          string        `yaml:"id_class,omitempty"`
	Interfaces       []string      `yaml:"interfaces,omitempty"`
	Fields           []FieldDoc    `yaml:"fields,omitempty"`
	Queries          []QueryDoc    `yaml:"queries,omitempty"`
	Sequences        []SequenceDoc `yaml:"sequences,omitempty"`
}

// FieldDoc maps one persistent field.
type FieldDoc struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	PrimaryKey bool   `yaml:"primary_key,omitempty"`
	Version    bool   `yaml:"version,omitempty"`
	Column     string `yaml:"column,omitempty"`
	// Fetch is "eager" or "lazy"; empty keeps the default fetch group rule.
	Fetch string `yaml:"fetch,omitempty"`
}

type QueryDoc struct {
	Name     string            `yaml:"name"`
	Query    string            `yaml:"query"`
	Language string            `yaml:"language,omitempty"`
	Result   string            `yaml:"result,omitempty"`
	Hints    map[string]string `yaml:"hints,omitempty"`
}

type SequenceDoc struct {
	Name      string `yaml:"name"`
	Sequence  string `yaml:"sequence,omitempty"`
	Strategy  string `yaml:"strategy,omitempty"`
	Initial   int64  `yaml:"initial,omitempty"`
	Increment int64  `yaml:"increment,omitempty"`
	Allocate  int    `yaml:"allocate,omitempty"`
}

// XMLDoc binds a class to an XML element.
type XMLDoc struct {
	Class  string        `yaml:"class"`
	Name   string        `yaml:"name"`
	Fields []XMLFieldDoc `yaml:"fields,omitempty"`
}

type XMLFieldDoc struct {
	Name      string `yaml:"name"`
	XMLName   string `yaml:"xml_name,omitempty"`
	Attribute bool   `yaml:"attribute,omitempty"`
}

// ParseDocument decodes a mapping document and checks it is self-consistent.
func ParseDocument(data []byte, path string) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse mapping document %s: %w", path, err)
	}
	doc.path = path
	if err := doc.validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (d *Document) validate() error {
	var errs error
	seen := make(map[string]bool)
	for i, e := range d.Entities {
		if e.Class == "" {
			errs = multierr.Append(errs, fmt.Errorf("%s: entity %d has no class", d.path, i))
			continue
		}
		if seen[e.Class] {
			errs = multierr.Append(errs, fmt.Errorf("%s: entity %s is mapped twice", d.path, e.Class))
		}
		seen[e.Class] = true

		fields := make(map[string]bool)
		for _, f := range e.Fields {
			switch {
			case f.Name == "":
				errs = multierr.Append(errs, fmt.Errorf("%s: entity %s has a field without a name", d.path, e.Class))
			case fields[f.Name]:
				errs = multierr.Append(errs, fmt.Errorf("%s: field %s.%s is mapped twice", d.path, e.Class, f.Name))
			}
			fields[f.Name] = true
			if f.Fetch != "" && f.Fetch != "eager" && f.Fetch != "lazy" {
				errs = multierr.Append(errs, fmt.Errorf("%s: field %s.%s has unknown fetch %q", d.path, e.Class, f.Name, f.Fetch))
			}
		}
		for _, q := range e.Queries {
			if q.Name == "" {
				errs = multierr.Append(errs, fmt.Errorf("%s: entity %s has a query without a name", d.path, e.Class))
			}
		}
		for _, s := range e.Sequences {
			if s.Name == "" {
				errs = multierr.Append(errs, fmt.Errorf("%s: entity %s has a sequence without a name", d.path, e.Class))
			}
		}
	}
	return errs
}

// ReadDocuments parses every mapping document under the given resources.
// A resource is a file or a directory searched recursively for .yaml and
// .yml files in lexical order. Errors from all documents are combined.
func ReadDocuments(fs afero.Fs, resources []string) ([]*Document, error) {
	var (
		docs []*Document
		errs error
	)
	for _, res := range resources {
		paths, err := documentPaths(fs, res)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		for _, path := range paths {
			data, err := afero.ReadFile(fs, path)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("failed to read mapping document %s: %w", path, err))
				continue
			}
			doc, err := ParseDocument(data, path)
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			docs = append(docs, doc)
		}
	}
	return docs, errs
}

func documentPaths(fs afero.Fs, res string) ([]string, error) {
	info, err := fs.Stat(res)
	if err != nil {
		return nil, fmt.Errorf("mapping resource %s: %w", res, err)
	}
	if !info.IsDir() {
		return []string{res}, nil
	}

	var paths []string
	err = afero.Walk(fs, res, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan mapping resource %s: %w", res, err)
	}
	sort.Strings(paths)
	return paths, nil
}
