// Package migrations exposes the embedded mailflow schema per SQL dialect.
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"strings"

	mailflow "github.com/kdevda/go-mailflow"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

const (
	migrationsDir = "data/sql/migrations"
	sqliteSubdir  = "sqlite"
	sourceLabel   = "go-mailflow"
)

// Dialect is one dialect's migration set. Postgres files live at the root of
// the migrations dir, sqlite alternatives in its sqlite/ subdir.
type Dialect struct {
	Name string
	Path string
	FS   fs.FS
}

type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

type registerOptions struct {
	targets []string
	source  fs.FS
}

type Option func(*registerOptions)

// WithValidationTargets limits registration to the named dialects.
func WithValidationTargets(targets ...string) Option {
	return func(o *registerOptions) {
		next := make([]string, 0, len(targets))
		for _, target := range targets {
			name := normalizeDialect(target)
			if name == "" || containsDialect(next, name) {
				continue
			}
			next = append(next, name)
		}
		if len(next) > 0 {
			o.targets = next
		}
	}
}

// WithSource swaps the embedded filesystem, mostly for tests.
func WithSource(source fs.FS) Option {
	return func(o *registerOptions) {
		if source != nil {
			o.source = source
		}
	}
}

// DialectForDriver maps a database/sql driver name to its migration dialect.
func DialectForDriver(driver string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "postgres", "postgresql", "pgx":
		return DialectPostgres, nil
	default:
		return "", fmt.Errorf("migrations: no dialect for driver %q", driver)
	}
}

// Filesystems returns the postgres and sqlite sets, failing when either has
// no *.up.sql files.
func Filesystems(sources ...fs.FS) ([]Dialect, error) {
	root := mailflow.GetMigrationsFS()
	if len(sources) > 0 && sources[0] != nil {
		root = sources[0]
	}
	base, err := fs.Sub(root, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("migrations: open %s: %w", migrationsDir, err)
	}
	sqliteFS, err := fs.Sub(base, sqliteSubdir)
	if err != nil {
		return nil, fmt.Errorf("migrations: open sqlite set: %w", err)
	}

	dialects := []Dialect{
		{Name: DialectPostgres, Path: migrationsDir, FS: base},
		{Name: DialectSQLite, Path: migrationsDir + "/" + sqliteSubdir, FS: sqliteFS},
	}
	for _, dialect := range dialects {
		matches, err := fs.Glob(dialect.FS, "*.up.sql")
		if err != nil {
			return nil, fmt.Errorf("migrations: glob %s: %w", dialect.Path, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("migrations: %s set %q has no *.up.sql files", dialect.Name, dialect.Path)
		}
	}
	return dialects, nil
}

// Register calls registerFn once per targeted dialect, postgres first.
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) ([]Dialect, error) {
	if registerFn == nil {
		return nil, fmt.Errorf("migrations: register function is required")
	}
	options := registerOptions{targets: []string{DialectPostgres, DialectSQLite}}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	dialects, err := Filesystems(options.source)
	if err != nil {
		return nil, err
	}
	registered := make([]Dialect, 0, len(options.targets))
	for _, dialect := range dialects {
		if !containsDialect(options.targets, dialect.Name) {
			continue
		}
		if err := registerFn(ctx, dialect.Name, sourceLabel, dialect.FS); err != nil {
			return registered, fmt.Errorf("migrations: register %s: %w", dialect.Name, err)
		}
		registered = append(registered, dialect)
	}
	if len(registered) == 0 {
		return nil, fmt.Errorf("migrations: no migration set matches %v", options.targets)
	}
	return registered, nil
}

func normalizeDialect(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func containsDialect(values []string, name string) bool {
	for _, value := range values {
		if value == name {
			return true
		}
	}
	return false
}
