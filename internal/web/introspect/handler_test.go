package introspect

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/conduit-lang/ormeta/internal/enhance"
	"github.com/conduit-lang/ormeta/internal/factory"
	"github.com/conduit-lang/ormeta/internal/meta"
)

const classesYAML = `
classes:
  - name: com.acme.Person
    enhanced: true
    alias: Person
  - name: com.acme.Employee
    super: com.acme.Person
    enhanced: true
    alias: Employee
  - name: com.acme.Department
    enhanced: true
    alias: Dept
  - name: com.acme.Util
  - name: com.acme.Broken
    enhanced: true
    alias: Broken
`

const mappingYAML = `
entities:
  - class: com.acme.Person
    table: people
    fields:
      - {name: id, type: int64, primary_key: true}
      - {name: name, type: string}
    queries:
      - name: Person.byName
        query: SELECT p FROM Person p WHERE p.name = :name
        hints: {cacheable: "true"}
    sequences:
      - {name: com.acme.person_seq, sequence: person_seq, allocate: 10}
  - class: com.acme.Employee
    fields:
      - {name: department, type: com.acme.Department}
  - class: com.acme.Department
    fields:
      - {name: id, type: int64, primary_key: true}
  - class: com.acme.Broken
    fields:
      - {name: id, type: int64, primary_key: true}
      - {name: v1, type: int, version: true}
      - {name: v2, type: int, version: true}
persistence_aware: [com.acme.Util]
`

func setup(t *testing.T) *Handler {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/app/classes.yaml", []byte(classesYAML), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/app/mappings/acme.yaml", []byte(mappingYAML), 0o644))

	logger := zaptest.NewLogger(t)
	registry := enhance.NewRegistry()
	manifest, err := enhance.ReadManifest(fs, "/app/classes.yaml")
	require.NoError(t, err)
	loader, err := enhance.NewClassPath("app", registry, manifest.Classes, logger)
	require.NoError(t, err)

	cfg := meta.DefaultConfig()
	cfg.Registry = registry
	f := factory.New(fs, factory.Options{Resources: []string{"/app/mappings"}}, logger)
	repo, err := meta.NewRepository(f, cfg, logger)
	require.NoError(t, err)

	return NewHandler(repo, loader, logger)
}

func get(t *testing.T, h http.Handler, path string, v any) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	if v != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
	}
	return rec
}

func TestHandler_Health(t *testing.T) {
	h := setup(t)
	var body healthResponse
	rec := get(t, h, "/healthz", &body)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, healthResponse{Status: "ok", Locking: true}, body)
}

func TestHandler_MetaData(t *testing.T) {
	h := setup(t)

	var emp classView
	rec := get(t, h, "/metadata/com.acme.Employee", &emp)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "com.acme.Employee", emp.Class)
	assert.Equal(t, "Employee", emp.Alias)
	assert.Equal(t, "com.acme.Person", emp.Superclass)
	assert.Equal(t, "people", emp.Table)
	assert.Equal(t, "[META][MAPPING]", emp.Resolved)
	require.Len(t, emp.Fields, 3)
	assert.Equal(t, "id", emp.Fields[0].Name)
	assert.True(t, emp.Fields[0].PrimaryKey)
	assert.Equal(t, "com.acme.Person", emp.Fields[0].Declarer)
	assert.Equal(t, "department", emp.Fields[2].Name)
	assert.True(t, emp.Fields[2].Relation)
	assert.Empty(t, emp.Fields[2].Declarer)

	var all []classSummary
	rec = get(t, h, "/metadata", &all)
	require.Equal(t, http.StatusOK, rec.Code)
	var names []string
	for _, s := range all {
		names = append(names, s.Class)
	}
	assert.Equal(t, []string{"com.acme.Department", "com.acme.Employee", "com.acme.Person"}, names)
}

func TestHandler_MetaDataErrors(t *testing.T) {
	h := setup(t)

	t.Run("unknown class", func(t *testing.T) {
		var body ErrorResponse
		rec := get(t, h, "/metadata/com.acme.Departmnt", &body)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "not_found", body.Error)
		assert.Equal(t, "com.acme.Department", body.Suggestion)
	})

	t.Run("not persistent", func(t *testing.T) {
		var body ErrorResponse
		rec := get(t, h, "/metadata/com.acme.Util", &body)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, body.Message, "com.acme.Util")
	})

	t.Run("resolution failure", func(t *testing.T) {
		var body ErrorResponse
		rec := get(t, h, "/metadata/com.acme.Broken", &body)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, "resolution_failed", body.Error)
		assert.Contains(t, body.Message, "version fields")
	})

	t.Run("unknown route", func(t *testing.T) {
		var body ErrorResponse
		rec := get(t, h, "/classes", &body)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHandler_Aliases(t *testing.T) {
	h := setup(t)
	// Registration happens when a class is initialized.
	_, err := h.loader.LoadClass("com.acme.Employee", true)
	require.NoError(t, err)

	var emp classView
	rec := get(t, h, "/aliases/Employee", &emp)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "com.acme.Employee", emp.Class)

	var body ErrorResponse
	rec = get(t, h, "/aliases/Employe", &body)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Employee", body.Suggestion)
	assert.Contains(t, body.Message, `perhaps you meant "Employee"`)

	var aliases []aliasEntry
	rec = get(t, h, "/aliases", &aliases)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, aliases, aliasEntry{Alias: "Employee", Class: "com.acme.Employee"})
	assert.Contains(t, aliases, aliasEntry{Alias: "Person", Class: "com.acme.Person"})
	assert.Contains(t, aliases, aliasEntry{Alias: "Dept", Class: "com.acme.Department"})
}

func TestHandler_QueriesAndSequences(t *testing.T) {
	h := setup(t)
	get(t, h, "/metadata/com.acme.Person", nil)

	var queries []queryEntry
	rec := get(t, h, "/queries", &queries)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, queries, 1)
	assert.Equal(t, "Person.byName", queries[0].Name)
	assert.Equal(t, "com.acme.Person", queries[0].DefiningType)
	assert.Equal(t, map[string]string{"cacheable": "true"}, queries[0].Hints)

	var seqs []sequenceEntry
	rec = get(t, h, "/sequences", &seqs)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, seqs, 1)
	assert.Equal(t, "com.acme.person_seq", seqs[0].Name)
	assert.Equal(t, "person_seq", seqs[0].Sequence)
	assert.Equal(t, 10, seqs[0].Allocate)
}

func TestHandler_NonPersistent(t *testing.T) {
	h := setup(t)
	get(t, h, "/metadata/com.acme.Util", nil)

	var body nonPersistentResponse
	rec := get(t, h, "/nonpersistent", &body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"com.acme.Util"}, body.PersistenceAware)
	assert.Empty(t, body.NonMappedInterfaces)
}
