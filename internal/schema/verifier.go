// Package schema verifies resolved mappings against a live database catalog.
package schema

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	"github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"go.uber.org/zap"

	"github.com/conduit-lang/ormeta/internal/meta"
)

var (
	// ErrMissingTable is returned when a mapped table does not exist.
	ErrMissingTable = errors.New("mapped table does not exist")

	// ErrMissingColumn is returned when a mapped column does not exist.
	ErrMissingColumn = errors.New("mapped column does not exist")
)

// Dialect selects how the database catalog is queried.
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

func (d Dialect) String() string {
	switch d {
	case DialectSQLite:
		return "sqlite"
	case DialectPostgres:
		return "postgres"
	default:
		return "unknown"
	}
}

// DialectFor returns the dialect of a database/sql driver name.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "sqlite3":
		return DialectSQLite, nil
	case "pgx", "postgres":
		return DialectPostgres, nil
	default:
		return 0, fmt.Errorf("unsupported database driver: %s", driver)
	}
}

const (
	postgresColumnsQuery = `SELECT table_name, column_name FROM information_schema.columns ` +
		`WHERE table_schema = current_schema() AND table_name = ANY($1)`
	sqliteColumnsQuery = `SELECT name FROM pragma_table_info(?)`
)

// DefaultTimeout bounds each catalog query issued from VerifyMapping.
const DefaultTimeout = 5 * time.Second

// Verifier implements meta.MappingVerifier. Table catalogs are cached per
// verifier; call Reset after schema changes.
type Verifier struct {
	db      *sql.DB
	dialect Dialect
	logger  *zap.Logger
	Timeout time.Duration

	mu     sync.Mutex
	tables map[string]map[string]bool
}

// New creates a verifier over an open database.
func New(db *sql.DB, dialect Dialect, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{
		db:      db,
		dialect: dialect,
		logger:  logger,
		Timeout: DefaultTimeout,
		tables:  make(map[string]map[string]bool),
	}
}

// Open connects to the database at url with the named driver ("sqlite3",
// "pgx" or "postgres") and checks the connection.
func Open(ctx context.Context, driver, url string, logger *zap.Logger) (*Verifier, error) {
	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dialect == DialectSQLite {
		// Every connection to an in-memory database is a new database.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return New(db, dialect, logger), nil
}

// DB returns the underlying database.
func (v *Verifier) DB() *sql.DB { return v.db }

func (v *Verifier) Close() error {
	return v.db.Close()
}

// Reset drops cached table catalogs.
func (v *Verifier) Reset() {
	v.mu.Lock()
	v.tables = make(map[string]map[string]bool)
	v.mu.Unlock()
}

// Load fetches the catalogs of tables that are not cached yet, in one query
// where the dialect allows it. Tables that do not exist are cached as empty.
func (v *Verifier) Load(ctx context.Context, tables ...string) error {
	v.mu.Lock()
	var missing []string
	for _, t := range tables {
		key := strings.ToLower(t)
		if _, ok := v.tables[key]; !ok && !containsString(missing, key) {
			missing = append(missing, key)
		}
	}
	v.mu.Unlock()
	if len(missing) == 0 {
		return nil
	}

	var (
		loaded map[string]map[string]bool
		err    error
	)
	switch v.dialect {
	case DialectPostgres:
		loaded, err = v.loadPostgres(ctx, missing)
	default:
		loaded, err = v.loadSQLite(ctx, missing)
	}
	if err != nil {
		return err
	}

	v.mu.Lock()
	for _, t := range missing {
		cols := loaded[t]
		if cols == nil {
			cols = map[string]bool{}
		}
		v.tables[t] = cols
	}
	v.mu.Unlock()
	v.logger.Debug("loaded table catalogs", zap.Strings("tables", missing), zap.Stringer("dialect", v.dialect))
	return nil
}

func (v *Verifier) loadPostgres(ctx context.Context, tables []string) (map[string]map[string]bool, error) {
	rows, err := v.db.QueryContext(ctx, postgresColumnsQuery, pq.Array(tables))
	if err != nil {
		return nil, fmt.Errorf("failed to query table catalog: %w", err)
	}
	defer rows.Close()

	out := make(map[string]map[string]bool)
	for rows.Next() {
		var table, column string
		if err := rows.Scan(&table, &column); err != nil {
			return nil, fmt.Errorf("failed to scan table catalog: %w", err)
		}
		table = strings.ToLower(table)
		if out[table] == nil {
			out[table] = make(map[string]bool)
		}
		out[table][strings.ToLower(column)] = true
	}
	return out, rows.Err()
}

func (v *Verifier) loadSQLite(ctx context.Context, tables []string) (map[string]map[string]bool, error) {
	out := make(map[string]map[string]bool)
	for _, table := range tables {
		cols, err := v.sqliteColumns(ctx, table)
		if err != nil {
			return nil, err
		}
		out[table] = cols
	}
	return out, nil
}

func (v *Verifier) sqliteColumns(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := v.db.QueryContext(ctx, sqliteColumnsQuery, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns of %s: %w", table, err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan columns of %s: %w", table, err)
		}
		cols[strings.ToLower(name)] = true
	}
	return cols, rows.Err()
}

// Columns returns the cached column set of table, loading it on a miss.
func (v *Verifier) Columns(ctx context.Context, table string) (map[string]bool, error) {
	if err := v.Load(ctx, table); err != nil {
		return nil, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.tables[strings.ToLower(table)], nil
}

// VerifyMapping checks that the table of meta exists and that every mapped
// field has a column in the table of the type declaring it. Embedded-only
// types and interfaces are not checked.
func (v *Verifier) VerifyMapping(m *meta.ClassMetaData) error {
	if m.EmbeddedOnly() || m.DescribedType().Interface || m.Table() == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), v.Timeout)
	defer cancel()

	byTable := map[string][]*meta.FieldMetaData{m.Table(): nil}
	tables := []string{m.Table()}
	for _, f := range m.Fields() {
		if !storedInTable(f) {
			continue
		}
		table := f.Owner().Table()
		if table == "" {
			table = m.Table()
		}
		if _, ok := byTable[table]; !ok {
			tables = append(tables, table)
		}
		byTable[table] = append(byTable[table], f)
	}

	for _, table := range tables {
		cols, err := v.Columns(ctx, table)
		if err != nil {
			return err
		}
		if len(cols) == 0 {
			return fmt.Errorf("%w: %s, mapped by %s", ErrMissingTable, table, m)
		}
		var missing []string
		for _, f := range byTable[table] {
			if !cols[strings.ToLower(f.Column())] {
				missing = append(missing, f.Column())
			}
		}
		if len(missing) > 0 {
			sort.Strings(missing)
			return fmt.Errorf("%w: %s lacks %s, mapped by %s",
				ErrMissingColumn, table, strings.Join(missing, ", "), m)
		}
	}
	return nil
}

// storedInTable reports whether f occupies a column of its declaring type's table.
func storedInTable(f *meta.FieldMetaData) bool {
	if f.Column() == "" {
		return false
	}
	if tm := f.TypeMetaData(); tm != nil && tm.EmbeddedOnly() {
		return false
	}
	name := strings.TrimLeft(f.TypeName(), "*")
	if name == "[]byte" {
		return true
	}
	return !strings.HasPrefix(name, "[]") && !strings.HasPrefix(name, "map[")
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
