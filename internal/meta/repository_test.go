package meta

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	personClass   = &Class{Name: "com.acme.Person"}
	employeeClass = &Class{Name: "com.acme.Employee", Super: personClass}
	managerClass  = &Class{Name: "com.acme.Manager", Super: employeeClass}
	deptClass     = &Class{Name: "com.acme.Department"}
	stringClass   = &Class{Name: "string", Builtin: true}
)

func newTestRepository(t *testing.T, f *testFactory, opts ...func(*Config)) *Repository {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Validate = ValidateMeta
	for _, opt := range opts {
		opt(&cfg)
	}
	r, err := NewRepository(f, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	return r
}

func companyFactory() *testFactory {
	return newTestFactory().
		define(personClass.Name, &typeDef{fields: []fieldDef{
			{name: "id", typ: "int64", pk: true},
			{name: "firstName", typ: "string"},
		}}).
		define(employeeClass.Name, &typeDef{fields: []fieldDef{
			{name: "department", typ: deptClass.Name},
			{name: "salary", typ: "float64"},
		}}).
		define(managerClass.Name, &typeDef{fields: []fieldDef{
			{name: "reports", typ: "[]com.acme.Employee"},
		}}).
		define(deptClass.Name, &typeDef{fields: []fieldDef{
			{name: "id", typ: "int64", pk: true},
			{name: "name", typ: "string"},
		}})
}

func companyLoader() *testLoader {
	return newTestLoader(personClass, employeeClass, managerClass, deptClass)
}

func TestNewRepository(t *testing.T) {
	_, err := NewRepository(nil, DefaultConfig(), nil)
	assert.Error(t, err)

	r, err := NewRepository(newTestFactory(), DefaultConfig(), nil)
	require.NoError(t, err)
	assert.True(t, r.Locking())
	assert.Equal(t, ModeMeta|ModeMapping, r.ResolveMode())
	assert.Equal(t, ModeMeta|ModeMapping|ModeQuery, r.SourceMode())
	assert.Equal(t, ValidateMeta|ValidateUnenhanced, r.Validate())
}

// verifierFunc adapts a function to MappingVerifier.
type verifierFunc func(meta *ClassMetaData) error

func (fn verifierFunc) VerifyMapping(meta *ClassMetaData) error { return fn(meta) }

func TestGetMetaData_ResolvesSuperclassFirst(t *testing.T) {
	f := companyFactory()
	var initialized []*Class
	r := newTestRepository(t, f, func(c *Config) {
		c.ResolveMode |= ModeMappingInit
		c.Validate |= ValidateMapping
		c.Verifier = verifierFunc(func(m *ClassMetaData) error {
			for sup := m.Superclass(); sup != nil; sup = sup.Superclass() {
				assert.True(t, sup.ResolveState().Has(ModeMeta|ModeMapping|ModeMappingInit),
					"%s initialized before its superclass %s", m, sup)
				assert.GreaterOrEqual(t, int(sup.ResolveState()), int(m.ResolveState()|ModeMappingInit))
			}
			if m.DescribedType() != deptClass {
				initialized = append(initialized, m.DescribedType())
			}
			return nil
		})
	})
	loader := companyLoader()

	mgr, err := r.GetMetaData(managerClass, loader, true)
	require.NoError(t, err)
	require.NotNil(t, mgr)

	emp := mgr.Superclass()
	require.NotNil(t, emp)
	person := emp.Superclass()
	require.NotNil(t, person)
	assert.Same(t, employeeClass, emp.DescribedType())
	assert.Same(t, personClass, person.DescribedType())

	for _, m := range []*ClassMetaData{person, emp, mgr} {
		assert.True(t, m.ResolveState().Has(ModeMeta|ModeMapping), m.String())
	}
	assert.GreaterOrEqual(t, int(person.ResolveState()), int(emp.ResolveState()))
	assert.GreaterOrEqual(t, int(emp.ResolveState()), int(mgr.ResolveState()))
	assert.Equal(t, []*Class{personClass, employeeClass, managerClass}, initialized)

	names := make([]string, 0)
	for _, f := range mgr.Fields() {
		names = append(names, f.Name())
	}
	assert.Equal(t, []string{"id", "firstName", "department", "salary", "reports"}, names)

	dept := emp.DeclaredField("department")
	require.NotNil(t, dept.TypeMetaData())
	assert.Same(t, deptClass, dept.DeclaredType())
	assert.True(t, dept.TypeMetaData().ResolveState().Has(ModeMeta))
	assert.Equal(t, "department_id", dept.Column())
	assert.False(t, dept.InDefaultFetchGroup())
	assert.True(t, emp.DeclaredField("salary").InDefaultFetchGroup())

	assert.Equal(t, "person", person.Table())
	assert.Equal(t, "person", mgr.Table())
	assert.Equal(t, []*FieldMetaData{person.DeclaredField("id")}, mgr.PrimaryKeyFields())
}

func TestGetMetaData_Idempotent(t *testing.T) {
	f := companyFactory()
	r := newTestRepository(t, f)
	loader := companyLoader()

	first, err := r.GetMetaData(employeeClass, loader, true)
	require.NoError(t, err)
	second, err := r.GetMetaData(employeeClass, loader, true)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, f.loads(employeeClass.Name))
	assert.Same(t, first, r.CachedMetaData(employeeClass))
}

func TestGetMetaData_MutualReferences(t *testing.T) {
	a := &Class{Name: "com.acme.A"}
	b := &Class{Name: "com.acme.B"}
	f := newTestFactory().
		define(a.Name, &typeDef{fields: []fieldDef{{name: "id", typ: "int", pk: true}, {name: "b", typ: b.Name}}}).
		define(b.Name, &typeDef{fields: []fieldDef{{name: "id", typ: "int", pk: true}, {name: "a", typ: a.Name}}})
	r := newTestRepository(t, f)
	loader := newTestLoader(a, b)

	am, err := r.GetMetaData(a, loader, true)
	require.NoError(t, err)

	bm := r.CachedMetaData(b)
	require.NotNil(t, bm)
	assert.Same(t, bm, am.DeclaredField("b").TypeMetaData())
	assert.Same(t, am, bm.DeclaredField("a").TypeMetaData())
	assert.True(t, am.ResolveState().Has(ModeMeta|ModeMapping))
	assert.True(t, bm.ResolveState().Has(ModeMeta|ModeMapping))
	assert.Equal(t, 1, f.loads(a.Name))
	assert.Equal(t, 1, f.loads(b.Name))
	assert.True(t, r.resolving.isEmpty())
	assert.True(t, r.mapping.isEmpty())
}

func TestGetMetaData_MustExist(t *testing.T) {
	missing := &Class{Name: "com.acme.Ghost"}

	t.Run("silent miss", func(t *testing.T) {
		r := newTestRepository(t, companyFactory())
		meta, err := r.GetMetaData(missing, companyLoader(), false)
		assert.NoError(t, err)
		assert.Nil(t, meta)

		meta, err = r.GetMetaData(nil, companyLoader(), false)
		assert.NoError(t, err)
		assert.Nil(t, meta)
	})

	t.Run("strict miss names the class", func(t *testing.T) {
		r := newTestRepository(t, companyFactory())
		_, err := r.GetMetaData(missing, companyLoader(), true)
		require.Error(t, err)
		assert.True(t, IsNotFound(err))
		assert.Contains(t, err.Error(), "com.acme.Ghost")
	})

	t.Run("strict miss lists configured types", func(t *testing.T) {
		f := companyFactory()
		f.names = []string{personClass.Name}
		r := newTestRepository(t, f)
		_, err := r.GetMetaData(missing, companyLoader(), true)
		require.Error(t, err)
		assert.Contains(t, err.Error(), personClass.Name)
	})

	t.Run("builtin is not managed", func(t *testing.T) {
		r := newTestRepository(t, companyFactory())
		_, err := r.GetMetaData(stringClass, companyLoader(), true)
		require.Error(t, err)
		assert.True(t, IsNotFound(err))
		assert.Contains(t, err.Error(), "not a managed type")
	})
}

func TestGetMetaData_NegativeCacheAndEviction(t *testing.T) {
	missing := &Class{Name: "com.acme.Ghost"}
	f := companyFactory()
	r := newTestRepository(t, f)
	loader := companyLoader()

	_, _ = r.GetMetaData(missing, loader, false)
	_, _ = r.GetMetaData(missing, loader, false)
	assert.Equal(t, 1, f.loads(missing.Name), "miss is cached")

	assert.False(t, r.RemoveMetaData(missing))
	_, _ = r.GetMetaData(missing, loader, false)
	assert.Equal(t, 2, f.loads(missing.Name), "eviction forgets the miss")

	emp, err := r.GetMetaData(employeeClass, loader, true)
	require.NoError(t, err)
	assert.True(t, r.RemoveMetaData(employeeClass))
	assert.Nil(t, r.CachedMetaData(employeeClass))

	reloaded, err := r.GetMetaData(employeeClass, loader, false)
	require.NoError(t, err)
	assert.NotSame(t, emp, reloaded)
	assert.Equal(t, 2, f.loads(employeeClass.Name))

	assert.True(t, r.RemoveMetaDataFor(reloaded))
	assert.False(t, r.RemoveMetaDataFor(nil))
}

func TestGetMetaData_WithoutMetaSource(t *testing.T) {
	partial := &Class{Name: "com.acme.Partial"}
	f := newTestFactory().define(partial.Name, &typeDef{noMetaSource: true})
	r := newTestRepository(t, f)

	meta, err := r.GetMetaData(partial, newTestLoader(partial), false)
	require.NoError(t, err)
	assert.Nil(t, meta)
	_, cached := r.metas[partial]
	assert.True(t, cached)
}

func TestGetMetaData_RuntimeValidation(t *testing.T) {
	f := companyFactory()
	f.names = []string{personClass.Name}
	r := newTestRepository(t, f, func(c *Config) { c.Validate |= ValidateRuntime })
	loader := companyLoader()

	initialized := false
	loader.onInit(personClass.Name, func() { initialized = true })

	meta, err := r.GetMetaData(deptClass, loader, false)
	require.NoError(t, err)
	assert.Nil(t, meta)
	assert.Equal(t, 0, f.loads(deptClass.Name), "types outside the list are never loaded")

	meta, err = r.GetMetaData(personClass, loader, true)
	require.NoError(t, err)
	assert.NotNil(t, meta)
	assert.True(t, initialized, "runtime validation initializes the class")
}

func TestGetMetaData_ResolveModeNone(t *testing.T) {
	r := newTestRepository(t, companyFactory())
	r.SetResolve(ModeNone, true)

	meta, err := r.GetMetaData(employeeClass, companyLoader(), true)
	require.NoError(t, err)
	assert.Equal(t, ModeNone, meta.ResolveState())
	assert.Nil(t, meta.Superclass())
}

func TestResolutionFailures(t *testing.T) {
	t.Run("bad field reference evicts the type", func(t *testing.T) {
		bad := &Class{Name: "com.acme.Bad"}
		f := newTestFactory().define(bad.Name, &typeDef{fields: []fieldDef{{name: "x", typ: "com.acme.Missing"}}})
		r := newTestRepository(t, f)

		meta, err := r.GetMetaData(bad, newTestLoader(bad), true)
		require.Error(t, err)
		assert.Nil(t, meta)
		assert.True(t, errors.Is(err, ErrResolution))
		assert.True(t, errors.Is(err, ErrClassNotFound))
		assert.Nil(t, r.CachedMetaData(bad))
		assert.Nil(t, r.errs, "errors are reported once per pass")

		_, err = r.GetMetaData(bad, newTestLoader(bad), true)
		require.Error(t, err)
		assert.Equal(t, 2, f.loads(bad.Name), "failed types are retried from scratch")
	})

	t.Run("errors of one pass are aggregated", func(t *testing.T) {
		a := &Class{Name: "com.acme.A"}
		b := &Class{Name: "com.acme.B"}
		f := newTestFactory().
			define(a.Name, &typeDef{fields: []fieldDef{{name: "b", typ: b.Name}, {name: "x", typ: "com.acme.Missing"}}}).
			define(b.Name, &typeDef{fields: []fieldDef{{name: "id", typ: "int"}}})
		r := newTestRepository(t, f)

		_, err := r.GetMetaData(a, newTestLoader(a, b), true)
		require.Error(t, err)

		var mde *MetaDataError
		require.True(t, errors.As(err, &mde))
		assert.Len(t, mde.Nested, 2)
		assert.Contains(t, err.Error(), "previous errors")
		assert.Nil(t, r.CachedMetaData(a))
		assert.Nil(t, r.CachedMetaData(b))
		assert.True(t, r.resolving.isEmpty())
	})

	t.Run("field redefinition", func(t *testing.T) {
		f := companyFactory()
		f.defs[employeeClass.Name].fields = append(f.defs[employeeClass.Name].fields, fieldDef{name: "firstName", typ: "string"})
		r := newTestRepository(t, f)

		_, err := r.GetMetaData(employeeClass, companyLoader(), true)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "redefines")
		assert.NotNil(t, r.CachedMetaData(personClass), "superclass stays cached")
	})

	t.Run("multiple version fields", func(t *testing.T) {
		v := &Class{Name: "com.acme.Versioned"}
		f := newTestFactory().define(v.Name, &typeDef{fields: []fieldDef{
			{name: "v1", typ: "int", version: true},
			{name: "v2", typ: "int", version: true},
		}})
		r := newTestRepository(t, f)

		_, err := r.GetMetaData(v, newTestLoader(v), true)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "2 version fields")
	})

	t.Run("duplicate columns under mapping validation", func(t *testing.T) {
		d := &Class{Name: "com.acme.Dup"}
		f := newTestFactory().define(d.Name, &typeDef{fields: []fieldDef{
			{name: "a", typ: "int", column: "col"},
			{name: "b", typ: "int", column: "col"},
		}})
		r := newTestRepository(t, f, func(c *Config) { c.Validate |= ValidateMapping })

		_, err := r.GetMetaData(d, newTestLoader(d), true)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "dup.col")
		assert.Nil(t, r.CachedMetaData(d))
	})

	t.Run("unregistered type under unenhanced validation", func(t *testing.T) {
		reg := newTestRegistry()
		r := newTestRepository(t, companyFactory(), func(c *Config) {
			c.Validate |= ValidateUnenhanced
			c.Registry = reg
		})

		_, err := r.GetMetaData(deptClass, companyLoader(), true)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "has not been registered")

		reg.register(deptClass, nil, "", nil)
		_, err = r.GetMetaData(deptClass, companyLoader(), true)
		assert.NoError(t, err)
	})

	t.Run("initialization registers the type", func(t *testing.T) {
		reg := newTestRegistry()
		r := newTestRepository(t, companyFactory(), func(c *Config) {
			c.Validate |= ValidateUnenhanced
			c.Registry = reg
		})
		loader := companyLoader()
		loader.onInit(deptClass.Name, func() { reg.register(deptClass, nil, "Department", nil) })

		_, err := r.GetMetaData(deptClass, loader, true)
		require.NoError(t, err)
		assert.Equal(t, 1, loader.loaded[deptClass.Name])
	})
}

type failingVerifier struct {
	fail     *Class
	verified []*Class
}

func (v *failingVerifier) VerifyMapping(meta *ClassMetaData) error {
	v.verified = append(v.verified, meta.DescribedType())
	if meta.DescribedType() == v.fail {
		return errors.New("table missing")
	}
	return nil
}

func TestMappingInitialization(t *testing.T) {
	verifier := &failingVerifier{fail: deptClass}
	r := newTestRepository(t, companyFactory(), func(c *Config) {
		c.ResolveMode |= ModeMappingInit
		c.Validate |= ValidateMapping
		c.Verifier = verifier
	})

	person, err := r.GetMetaData(personClass, companyLoader(), true)
	require.NoError(t, err)
	assert.True(t, person.ResolveState().Has(ModeMappingInit))

	_, err = r.GetMetaData(deptClass, companyLoader(), true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "table missing")
	assert.Nil(t, r.CachedMetaData(deptClass))
	assert.Contains(t, verifier.verified, personClass)
}

func TestMetaDatas(t *testing.T) {
	r := newTestRepository(t, companyFactory())
	loader := companyLoader()

	_, err := r.GetMetaData(employeeClass, loader, true)
	require.NoError(t, err)
	_, _ = r.GetMetaData(&Class{Name: "com.acme.Ghost"}, loader, false)

	metas, err := r.MetaDatas()
	require.NoError(t, err)
	names := make([]string, len(metas))
	for i, m := range metas {
		names[i] = m.DescribedType().Name
	}
	assert.Equal(t, []string{deptClass.Name, employeeClass.Name, personClass.Name}, names)
}

func TestAddMetaData(t *testing.T) {
	r := newTestRepository(t, newTestFactory())

	meta, err := r.AddMetaData(deptClass, nil, AccessProperty)
	require.NoError(t, err)
	assert.Equal(t, AccessProperty, meta.Access())
	assert.Same(t, meta, r.CachedMetaData(deptClass))

	meta, err = r.AddMetaData(stringClass, nil, AccessField)
	assert.NoError(t, err)
	assert.Nil(t, meta)

	meta, err = r.AddMetaData(nil, nil, AccessField)
	assert.NoError(t, err)
	assert.Nil(t, meta)
}

func TestSetSuperclass(t *testing.T) {
	r := newTestRepository(t, newTestFactory())
	sub, _ := r.AddMetaData(employeeClass, nil, AccessField)
	sup, _ := r.AddMetaData(personClass, nil, AccessField)
	other, _ := r.AddMetaData(deptClass, nil, AccessField)

	require.NoError(t, sub.SetSuperclass(sup))
	require.NoError(t, sub.SetSuperclass(sup))
	err := sub.SetSuperclass(other)
	assert.ErrorIs(t, err, ErrSuperclassAlreadySet)
	assert.Same(t, sup, sub.Superclass())
}

func TestPersistenceAwareAndNonMapped(t *testing.T) {
	aware := &Class{Name: "com.acme.Service"}
	iface := &Class{Name: "com.acme.Named", Interface: true}

	t.Run("persistence aware", func(t *testing.T) {
		r := newTestRepository(t, newTestFactory())

		pa, err := r.AddPersistenceAware(aware)
		require.NoError(t, err)
		assert.Equal(t, TypePersistenceAware, pa.Type())
		again, err := r.AddPersistenceAware(aware)
		require.NoError(t, err)
		assert.Same(t, pa, again)
		assert.Same(t, pa, r.PersistenceAware(aware))
		assert.Len(t, r.PersistenceAwares(), 1)

		_, err = r.AddMetaData(aware, nil, AccessField)
		assert.ErrorIs(t, err, ErrInvalid)

		assert.True(t, r.RemovePersistenceAware(aware))
		assert.False(t, r.RemovePersistenceAware(aware))

		_, err = r.AddMetaData(deptClass, nil, AccessField)
		require.NoError(t, err)
		_, err = r.AddPersistenceAware(deptClass)
		assert.ErrorIs(t, err, ErrInvalid)
	})

	t.Run("non-mapped interfaces", func(t *testing.T) {
		r := newTestRepository(t, newTestFactory())

		_, err := r.AddNonMappedInterface(deptClass)
		assert.ErrorIs(t, err, ErrInvalid)

		nm, err := r.AddNonMappedInterface(iface)
		require.NoError(t, err)
		assert.Equal(t, TypeNonMappedInterface, nm.Type())
		assert.Same(t, nm, r.NonMappedInterface(iface))
		assert.Len(t, r.NonMappedInterfaces(), 1)
		assert.True(t, r.RemoveNonMappedInterface(iface))
		assert.Nil(t, r.NonMappedInterface(iface))

		managed := &Class{Name: "com.acme.Managed", Interface: true}
		_, err = r.AddMetaData(managed, nil, AccessField)
		require.NoError(t, err)
		_, err = r.AddNonMappedInterface(managed)
		assert.ErrorIs(t, err, ErrInvalid)
	})
}

func TestSystemListeners(t *testing.T) {
	f := companyFactory()
	r := newTestRepository(t, f)
	l := &recordingListener{}
	r.AddSystemListener(l)
	before := r.SystemListeners()

	_, err := r.GetMetaData(deptClass, companyLoader(), true)
	require.NoError(t, err)
	r.RemoveMetaData(deptClass)
	r.Clear()

	assert.Equal(t, []*Class{deptClass, nil}, l.evicted)
	assert.Equal(t, 1, f.clears)
	assert.Nil(t, r.CachedMetaData(deptClass))

	assert.True(t, r.RemoveSystemListener(l))
	assert.False(t, r.RemoveSystemListener(l))
	assert.Len(t, before, 1, "snapshots are never modified in place")
	assert.Empty(t, r.SystemListeners())
}

func TestRemoveMetaDataNamed(t *testing.T) {
	r := newTestRepository(t, companyFactory())
	other := &Class{Name: deptClass.Name}
	_, err := r.AddMetaData(deptClass, nil, AccessField)
	require.NoError(t, err)
	_, err = r.AddMetaData(other, nil, AccessField)
	require.NoError(t, err)

	assert.True(t, r.RemoveMetaDataNamed(deptClass.Name))
	assert.Nil(t, r.CachedMetaData(deptClass))
	assert.Nil(t, r.CachedMetaData(other))
	assert.False(t, r.RemoveMetaDataNamed(deptClass.Name))
}

func TestEvictOnBehalfOfListener(t *testing.T) {
	r := newTestRepository(t, companyFactory())
	source, other := &recordingListener{}, &recordingListener{}
	r.AddSystemListener(source)
	r.AddSystemListener(other)
	_, err := r.GetMetaData(deptClass, companyLoader(), true)
	require.NoError(t, err)

	assert.True(t, r.EvictNamed(deptClass.Name, source))
	r.EvictAll(source)

	assert.Empty(t, source.evicted)
	assert.Equal(t, []*Class{deptClass, nil}, other.evicted)
}

func TestClose(t *testing.T) {
	r := newTestRepository(t, newTestFactory())
	c := &closer{}
	r.AddSequenceMetaData("order_seq").SetInstance(c)

	require.NoError(t, r.Close())
	assert.True(t, c.closed)
	assert.Empty(t, r.SequenceMetaDatas())
}

func TestPreload(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		r := newTestRepository(t, companyFactory())
		require.NoError(t, r.Preload(companyLoader()))
		assert.True(t, r.Locking())
	})

	t.Run("no configured types", func(t *testing.T) {
		r := newTestRepository(t, companyFactory(), func(c *Config) { c.Preload = true })
		err := r.Preload(companyLoader())
		assert.ErrorIs(t, err, ErrInvalid)
		assert.True(t, r.Locking())
	})

	t.Run("loads everything and stops locking", func(t *testing.T) {
		f := companyFactory()
		f.names = []string{personClass.Name, employeeClass.Name, deptClass.Name}
		r := newTestRepository(t, f, func(c *Config) { c.Preload = true })

		require.NoError(t, r.Preload(companyLoader()))
		assert.False(t, r.Locking())
		for _, cls := range []*Class{personClass, employeeClass, deptClass} {
			meta := r.CachedMetaData(cls)
			require.NotNil(t, meta, cls.Name)
			assert.True(t, meta.ResolveState().Has(ModeMeta|ModeMapping))
		}
		assert.Contains(t, f.loadModes, ModeAll)

		loads := f.loads(personClass.Name)
		require.NoError(t, r.Preload(companyLoader()))
		assert.Equal(t, loads, f.loads(personClass.Name), "preload runs once")

		meta, err := r.GetMetaData(employeeClass, companyLoader(), true)
		require.NoError(t, err)
		assert.NotNil(t, meta)
	})
}

func TestConcurrentLookups(t *testing.T) {
	f := companyFactory()
	r := newTestRepository(t, f)
	loader := companyLoader()

	const workers = 16
	results := make([]*ClassMetaData, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			meta, err := r.GetMetaData(managerClass, loader, true)
			assert.NoError(t, err)
			results[i] = meta
			r.Register(deptClass)
			_ = r.AliasNames()
		}(i)
	}
	wg.Wait()

	for _, m := range results {
		assert.Same(t, results[0], m)
	}
	assert.Equal(t, 1, f.loads(managerClass.Name))
}

func TestModeSetters(t *testing.T) {
	r := newTestRepository(t, newTestFactory())

	r.SetResolve(ModeMappingInit, true)
	assert.Equal(t, ModeMeta|ModeMapping|ModeMappingInit, r.ResolveMode())
	r.SetResolve(ModeMapping, false)
	assert.Equal(t, ModeMeta|ModeMappingInit, r.ResolveMode())
	r.SetResolve(ModeNone, true)
	assert.Equal(t, ModeNone, r.ResolveMode())

	r.SetSourceMode(ModeQuery, false)
	assert.Equal(t, ModeMeta|ModeMapping, r.SourceMode())

	r.SetValidate(ValidateRuntime, true)
	assert.True(t, r.Validate().Has(ValidateRuntime))
	r.SetValidate(ValidateNone, true)
	assert.Equal(t, ValidateNone, r.Validate())
}
