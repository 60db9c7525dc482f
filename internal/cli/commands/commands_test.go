package commands

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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
  - name: com.acme.Badge
    enhanced: true
    alias: Badge
  - name: com.acme.Broken
    enhanced: true
    alias: Broken
`

const mappingYAML = `
entities:
  - class: com.acme.Badge
    fields:
      - {name: employee, type: com.acme.Employee, primary_key: true}
      - {name: code, type: string}
  - class: com.acme.Person
    table: people
    fields:
      - {name: id, type: int64, primary_key: true}
      - {name: name, type: string}
  - class: com.acme.Employee
    fields:
      - {name: department, type: com.acme.Department}
  - class: com.acme.Department
    fields:
      - {name: id, type: int64, primary_key: true}
`

const brokenYAML = `
entities:
  - class: com.acme.Broken
    fields:
      - {name: id, type: int64, primary_key: true}
      - {name: v1, type: int, version: true}
      - {name: v2, type: int, version: true}
`

// writeUnit lays out a unit under a temporary directory and returns the path
// of its configuration file. Relative paths in the configuration resolve
// against that directory.
func writeUnit(t *testing.T, config string, mappings ...string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "mappings"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "classes.yaml"), []byte(classesYAML), 0o644))
	for i, m := range mappings {
		name := filepath.Join(dir, "mappings", "m"+string(rune('a'+i))+".yaml")
		require.NoError(t, os.WriteFile(name, []byte(m), 0o644))
	}
	path := filepath.Join(dir, "ormeta.yml")
	require.NoError(t, os.WriteFile(path, []byte("unit: acme\nlog:\n  level: error\n"+config), 0o644))
	return path
}

// syncBuffer is safe to read while a command writes to it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func run(ctx context.Context, stdout, stderr io.Writer, args ...string) error {
	cmd := NewRootCommand()
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(append([]string{"--no-color"}, args...))
	return cmd.ExecuteContext(ctx)
}

func execute(ctx context.Context, args ...string) (stdout, stderr *syncBuffer, err error) {
	stdout, stderr = &syncBuffer{}, &syncBuffer{}
	err = run(ctx, stdout, stderr, args...)
	return stdout, stderr, err
}

func TestNewRootCommand(t *testing.T) {
	cmd := NewRootCommand()

	assert.Equal(t, "ormeta", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.NotEmpty(t, cmd.Long)
	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))
	assert.NotNil(t, cmd.PersistentFlags().Lookup("no-color"))

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.Subset(t, names, []string{"version", "validate", "aliases", "order", "serve"})
}

func TestVersionCommand(t *testing.T) {
	Version = "1.0.0-test"
	GitCommit = "abc123"
	BuildDate = "2025-01-01"
	GoVersion = "go1.23"

	stdout, _, err := execute(context.Background(), "version")
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "ormeta version: 1.0.0-test")
	assert.Contains(t, stdout.String(), "Git commit: abc123")
	assert.Contains(t, stdout.String(), "Go version: go1.23")
}

func TestValidateCommand(t *testing.T) {
	t.Run("every persistent type", func(t *testing.T) {
		path := writeUnit(t, "", mappingYAML)
		stdout, stderr, err := execute(context.Background(), "validate", "-c", path)
		require.NoError(t, err, stderr.String())

		out := stdout.String()
		assert.Contains(t, out, "CLASS")
		assert.Regexp(t, `com\.acme\.Employee\s+Employee\s+people\s+3\s+\[META\]\[MAPPING\]`, out)
		assert.Contains(t, out, "com.acme.Badge")
		assert.Contains(t, out, "4 types resolved")
	})

	t.Run("named classes", func(t *testing.T) {
		path := writeUnit(t, "", mappingYAML)
		stdout, _, err := execute(context.Background(), "validate", "-c", path, "com.acme.Department")
		require.NoError(t, err)
		assert.Contains(t, stdout.String(), "com.acme.Department")
		assert.NotContains(t, stdout.String(), "com.acme.Person")
		assert.Contains(t, stdout.String(), "1 types resolved")
	})

	t.Run("unknown class suggests a name", func(t *testing.T) {
		path := writeUnit(t, "", mappingYAML)
		_, stderr, err := execute(context.Background(), "validate", "-c", path, "com.acme.Departmnt")
		assert.EqualError(t, err, "1 of 1 types failed to resolve")
		assert.Contains(t, stderr.String(), "CLASS NOT FOUND")
		assert.Contains(t, stderr.String(), "Did you mean: com.acme.Department?")
	})

	t.Run("resolution failure", func(t *testing.T) {
		path := writeUnit(t, "", mappingYAML, brokenYAML)
		stdout, stderr, err := execute(context.Background(), "validate", "-c", path)
		assert.EqualError(t, err, "1 of 5 types failed to resolve")
		assert.Contains(t, stderr.String(), "METADATA RESOLUTION FAILED")
		assert.Contains(t, stderr.String(), "version fields")
		assert.Contains(t, stdout.String(), "com.acme.Person")
	})

	t.Run("missing configuration", func(t *testing.T) {
		_, stderr, err := execute(context.Background(), "validate", "-c", filepath.Join(t.TempDir(), "missing.yml"))
		assert.Error(t, err)
		assert.Contains(t, stderr.String(), "CONFIGURATION ERROR")
	})
}

func TestAliasesCommand(t *testing.T) {
	t.Run("lists aliases", func(t *testing.T) {
		path := writeUnit(t, "", mappingYAML)
		stdout, stderr, err := execute(context.Background(), "aliases", "-c", path)
		require.NoError(t, err, stderr.String())

		out := stdout.String()
		assert.Regexp(t, `Badge\s+com\.acme\.Badge`, out)
		assert.Regexp(t, `Dept\s+com\.acme\.Department`, out)
		assert.Regexp(t, `Employee\s+com\.acme\.Employee`, out)
		assert.Less(t, strings.Index(out, "Dept"), strings.Index(out, "Person"))
	})

	t.Run("resolves one alias", func(t *testing.T) {
		path := writeUnit(t, "", mappingYAML)
		stdout, _, err := execute(context.Background(), "aliases", "-c", path, "Employee")
		require.NoError(t, err)

		out := stdout.String()
		assert.Contains(t, out, "Employee\n")
		assert.Regexp(t, `Class:\s+com\.acme\.Employee`, out)
		assert.Regexp(t, `Superclass:\s+com\.acme\.Person`, out)
		assert.Regexp(t, `Table:\s+people`, out)
	})

	t.Run("unknown alias", func(t *testing.T) {
		path := writeUnit(t, "", mappingYAML)
		_, stderr, err := execute(context.Background(), "aliases", "-c", path, "Employe")
		assert.Error(t, err)
		assert.Contains(t, stderr.String(), "ALIAS NOT FOUND")
		assert.Contains(t, stderr.String(), "Did you mean: Employee?")
	})
}

func TestOrderCommand(t *testing.T) {
	path := writeUnit(t, "", mappingYAML)
	stdout, stderr, err := execute(context.Background(), "order", "-c", path)
	require.NoError(t, err, stderr.String())

	var classes []string
	for _, m := range regexp.MustCompile(`(?m)^\d+\s+(\S+)`).FindAllStringSubmatch(stdout.String(), -1) {
		classes = append(classes, m[1])
	}
	assert.Equal(t, []string{
		"com.acme.Department",
		"com.acme.Employee",
		"com.acme.Badge",
		"com.acme.Person",
	}, classes)
	assert.Regexp(t, `com\.acme\.Badge\s+\S+\s+com\.acme\.Employee`, stdout.String())
}

func TestServeCommand(t *testing.T) {
	mr := miniredis.RunT(t)
	path := writeUnit(t, "redis:\n  addr: "+mr.Addr()+"\n", mappingYAML)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stdout := &syncBuffer{}
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, stdout, &syncBuffer{}, "serve", "-c", path, "--addr", "127.0.0.1:0")
	}()

	addrPattern := regexp.MustCompile(`http://(\S+)`)
	var addr string
	require.Eventually(t, func() bool {
		m := addrPattern.FindStringSubmatch(stdout.String())
		if m == nil {
			return false
		}
		addr = m[1]
		return true
	}, 5*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, map[string]int{"ormeta:evictions": 1}, mr.PubSubNumSub("ormeta:evictions"))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}
}
