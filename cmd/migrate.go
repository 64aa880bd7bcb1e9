package cmd

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/lib/pq"
	"github.com/spf13/cobra"
)

const (
	defaultMigrationsTable = "websso.schema_migrations"
	defaultMigrationsPath  = "pkg/storage/postgres/migrations"
)

type migrateConfig struct {
	DatabaseURL     string
	MigrationsTable string
	MigrationsPath  string
}

func init() {
	rootCmd.AddCommand(newMigrateCommand())
}

func newMigrateCommand() *cobra.Command {
	var cfg migrateConfig

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the postgres request-store schema",
		Long: "Applies the SQL migrations under " + defaultMigrationsPath + ".\n" +
			"Only the postgres backend carries schema migrations; the other\n" +
			"backends provision themselves at startup.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := migrateCmd.PersistentFlags()
	flags.StringVar(&cfg.DatabaseURL, "database-url", "", "Database connection URL. Can also be set via WEBSSO_MIGRATE_DATABASE_URL.")
	flags.StringVar(&cfg.MigrationsTable, "migrations-table", "", "Migration version table, as table or schema.table. Defaults to "+defaultMigrationsTable+"; WEBSSO_MIGRATE_MIGRATIONS_TABLE also overrides it.")
	flags.StringVar(&cfg.MigrationsPath, "migrations-path", "", "Path or source URL of the migration files. Defaults to "+defaultMigrationsPath+".")

	migrateCmd.AddCommand(newMigrateUpCommand(&cfg))
	migrateCmd.AddCommand(newMigrateDownCommand(&cfg))
	migrateCmd.AddCommand(newMigrateForceCommand(&cfg))
	return migrateCmd
}

func newMigrateUpCommand(cfg *migrateConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "up [steps]",
		Short: "Apply pending migrations, optionally capped at a step count",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, err := stepCount(args)
			if err != nil {
				return err
			}

			return withMigrator(cmd, *cfg, func(m *migrate.Migrate, source string) error {
				var err error
				if steps == 0 {
					err = m.Up()
				} else {
					err = m.Steps(steps)
				}

				switch {
				case err == nil:
					if steps == 0 {
						cmd.Printf("Applied all pending migrations from %s\n", source)
					} else {
						cmd.Printf("Applied %d migration step(s) from %s\n", steps, source)
					}
					return nil
				case atBoundary(err):
					cmd.Println("No schema changes to apply.")
					return nil
				default:
					if applied, partial := partialProgress(err, steps); partial {
						if applied == 0 {
							cmd.Println("No schema changes to apply.")
						} else {
							cmd.Printf("Applied %d of the requested %d migration step(s) from %s before reaching the migration boundary\n", applied, steps, source)
						}
						return nil
					}
					return fmt.Errorf("apply migrations: %w", err)
				}
			})
		},
	}
}

func newMigrateDownCommand(cfg *migrateConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "down <steps>",
		Short: "Roll back the given number of migration steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, err := stepCount(args)
			if err != nil {
				return err
			}

			return withMigrator(cmd, *cfg, func(m *migrate.Migrate, source string) error {
				err := m.Steps(-steps)
				switch {
				case err == nil:
					cmd.Printf("Rolled back %d migration step(s) from %s\n", steps, source)
					return nil
				case atBoundary(err):
					cmd.Println("No schema changes to roll back.")
					return nil
				default:
					if rolledBack, partial := partialProgress(err, steps); partial {
						if rolledBack == 0 {
							cmd.Println("No schema changes to roll back.")
						} else {
							cmd.Printf("Rolled back %d of the requested %d migration step(s) from %s before reaching the migration boundary\n", rolledBack, steps, source)
						}
						return nil
					}
					return fmt.Errorf("roll back migrations: %w", err)
				}
			})
		},
	}
}

func newMigrateForceCommand(cfg *migrateConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "force <version>",
		Short: "Force the recorded migration version without running migrations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := forceVersion(args[0])
			if err != nil {
				return err
			}

			return withMigrator(cmd, *cfg, func(m *migrate.Migrate, _ string) error {
				if err := m.Force(version); err != nil {
					return fmt.Errorf("force migration version: %w", err)
				}
				if version == -1 {
					cmd.Println("Forced migration version to -1 (no version).")
				} else {
					cmd.Printf("Forced migration version to %d.\n", version)
				}
				return nil
			})
		},
	}
}

// withMigrator opens the migration runner, hands it to fn, and closes it
// afterwards regardless of the outcome.
func withMigrator(cmd *cobra.Command, cfg migrateConfig, fn func(*migrate.Migrate, string) error) error {
	m, source, err := openMigrator(cfg)
	if err != nil {
		return err
	}
	defer func() {
		sourceErr, databaseErr := m.Close()
		if closeErr := errors.Join(sourceErr, databaseErr); closeErr != nil {
			cmd.PrintErrf("warning: failed to close migration runner cleanly: %v\n", closeErr)
		}
	}()

	return fn(m, source)
}

func openMigrator(cfg migrateConfig) (*migrate.Migrate, string, error) {
	databaseURL, err := resolveDatabaseURL(cfg.DatabaseURL)
	if err != nil {
		return nil, "", err
	}

	target, err := parseTarget(resolveMigrationsTable(cfg.MigrationsTable))
	if err != nil {
		return nil, "", err
	}

	// golang-migrate creates the version table before running anything, so a
	// schema-qualified table needs its schema in place first.
	if target.Schema != "" {
		if err := ensureSchema(databaseURL, target.Schema); err != nil {
			return nil, "", err
		}
	}

	databaseURL, err = withVersionTable(databaseURL, target)
	if err != nil {
		return nil, "", err
	}

	source, err := resolveSourceURL(cfg.MigrationsPath)
	if err != nil {
		return nil, "", err
	}

	m, err := migrate.New(source, databaseURL)
	if err != nil {
		return nil, "", fmt.Errorf("create migrate runner: %w", err)
	}
	return m, source, nil
}

func lookupEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func resolveDatabaseURL(flagValue string) (string, error) {
	candidates := []string{
		strings.TrimSpace(flagValue),
		lookupEnv("WEBSSO_MIGRATE_DATABASE_URL"),
		lookupEnv("WEBSSO_DATABASE_URL"),
	}
	for _, candidate := range candidates {
		if candidate != "" {
			return candidate, nil
		}
	}
	return "", errors.New("missing database URL: set --database-url or WEBSSO_MIGRATE_DATABASE_URL")
}

func resolveMigrationsTable(flagValue string) string {
	if value := strings.TrimSpace(flagValue); value != "" {
		return value
	}
	if value := lookupEnv("WEBSSO_MIGRATE_MIGRATIONS_TABLE"); value != "" {
		return value
	}
	return defaultMigrationsTable
}

// migrationTarget names the version table golang-migrate records progress
// in, optionally qualified by a schema.
type migrationTarget struct {
	Schema string
	Table  string
}

func parseTarget(value string) (migrationTarget, error) {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return migrationTarget{}, nil
	}

	if strings.Contains(raw, `"`) {
		trimmed := strings.Trim(raw, `"`)
		if trimmed == "" {
			return migrationTarget{}, fmt.Errorf("invalid migrations table %q", value)
		}
		if schema, table, qualified := strings.Cut(trimmed, `"."`); qualified {
			if schema == "" || table == "" || strings.Contains(schema, `"`) || strings.Contains(table, `"`) {
				return migrationTarget{}, fmt.Errorf("invalid migrations table %q: expected table or schema.table", value)
			}
			return migrationTarget{Schema: schema, Table: table}, nil
		}
		if strings.Contains(trimmed, `"`) {
			return migrationTarget{}, fmt.Errorf("invalid migrations table %q: expected table or schema.table", value)
		}
		return migrationTarget{Table: trimmed}, nil
	}

	schema, table, qualified := strings.Cut(raw, ".")
	if !qualified {
		return migrationTarget{Table: raw}, nil
	}
	if schema == "" || table == "" || strings.Contains(table, ".") {
		return migrationTarget{}, fmt.Errorf("invalid migrations table %q: expected table or schema.table", value)
	}
	return migrationTarget{Schema: schema, Table: table}, nil
}

// withVersionTable points golang-migrate's postgres driver at the target
// version table. A table already pinned in the URL wins.
func withVersionTable(databaseURL string, target migrationTarget) (string, error) {
	if target.Table == "" {
		return databaseURL, nil
	}

	parsed, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("parse --database-url: %w", err)
	}

	query := parsed.Query()
	if strings.TrimSpace(query.Get("x-migrations-table")) != "" {
		return databaseURL, nil
	}

	if target.Schema == "" {
		query.Set("x-migrations-table", target.Table)
	} else {
		query.Set("x-migrations-table", pq.QuoteIdentifier(target.Schema)+"."+pq.QuoteIdentifier(target.Table))
		query.Set("x-migrations-table-quoted", "true")
	}

	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

func ensureSchema(databaseURL, schema string) error {
	parsed, err := url.Parse(databaseURL)
	if err != nil {
		return fmt.Errorf("parse --database-url: %w", err)
	}

	db, err := sql.Open("postgres", migrate.FilterCustomQuery(parsed).String())
	if err != nil {
		return fmt.Errorf("open database for schema bootstrap: %w", err)
	}
	defer db.Close()

	if _, err := db.Exec("CREATE SCHEMA IF NOT EXISTS " + pq.QuoteIdentifier(schema)); err != nil {
		return fmt.Errorf("ensure schema %q exists: %w", schema, err)
	}
	return nil
}

func resolveSourceURL(migrationsPath string) (string, error) {
	pathOrURL := strings.TrimSpace(migrationsPath)
	if pathOrURL == "" {
		pathOrURL = defaultMigrationsPath
	}
	if strings.Contains(pathOrURL, "://") {
		return pathOrURL, nil
	}

	absPath, err := filepath.Abs(pathOrURL)
	if err != nil {
		return "", fmt.Errorf("resolve migrations path %q: %w", pathOrURL, err)
	}
	return "file://" + filepath.ToSlash(absPath), nil
}

func stepCount(args []string) (int, error) {
	if len(args) == 0 {
		return 0, nil
	}
	steps, err := strconv.Atoi(strings.TrimSpace(args[0]))
	if err != nil || steps <= 0 {
		return 0, fmt.Errorf("invalid migration steps %q: expected a positive integer", args[0])
	}
	return steps, nil
}

func forceVersion(arg string) (int, error) {
	version, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil || version < -1 {
		return 0, fmt.Errorf("invalid force version %q: expected an integer >= -1", arg)
	}
	return version, nil
}

// atBoundary recognizes the two ways golang-migrate reports that there is
// nothing left to do: ErrNoChange from a full run, and a bare os.ErrNotExist
// when a step command runs past the first or last migration.
func atBoundary(err error) bool {
	return errors.Is(err, migrate.ErrNoChange) || err == os.ErrNotExist
}

// partialProgress extracts how many steps landed before a capped run hit the
// migration boundary.
func partialProgress(err error, requested int) (int, bool) {
	var short migrate.ErrShortLimit
	if requested == 0 || !errors.As(err, &short) {
		return 0, false
	}

	applied := requested - int(short.Short)
	if applied < 0 {
		applied = 0
	}
	return applied, true
}
