package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lychee-technology/sigmaql"
	"github.com/spf13/cobra"
)

type initDBOptions struct {
	host        string
	port        int
	database    string
	user        string
	password    string
	sslMode     string
	schemaTable string
	schemaFile  string
}

func newInitDBCommand() *cobra.Command {
	defaults := sigmaql.DefaultConfig().Schema.Postgres
	opts := initDBOptions{}

	cmd := &cobra.Command{
		Use:   "init-db",
		Short: "Create the schema table and optionally load entities into it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return initDatabase(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.host, "db-host", getenvDefault("DB_HOST", defaults.Host), "database host")
	flags.IntVar(&opts.port, "db-port", getenvDefaultInt("DB_PORT", defaults.Port), "database port")
	flags.StringVar(&opts.database, "db-name", getenvDefault("DB_NAME", "sigmaql"), "database name")
	flags.StringVar(&opts.user, "db-user", getenvDefault("DB_USER", "postgres"), "database user")
	flags.StringVar(&opts.password, "db-password", getenvDefault("DB_PASSWORD", "postgres"), "database password")
	flags.StringVar(&opts.sslMode, "db-ssl-mode", getenvDefault("DB_SSL_MODE", defaults.SSLMode), "database sslmode")
	flags.StringVar(&opts.schemaTable, "schema-table", getenvDefault("SCHEMA_TABLE", defaults.Table), "schema table name")
	flags.StringVar(&opts.schemaFile, "schema-file", "", "schema document whose entities are upserted into the table (optional)")
	return cmd
}

func initDatabase(cmd *cobra.Command, opts initDBOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	var rows []entityRow
	if opts.schemaFile != "" {
		registry, err := loadRegistry(ctx, opts.schemaFile)
		if err != nil {
			return err
		}
		rows, err = entityRows(registry)
		if err != nil {
			return err
		}
	}

	pool, err := pgxpool.New(ctx, buildConnString(opts))
	if err != nil {
		return fmt.Errorf("create connection pool: %w", err)
	}
	defer pool.Close()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if err := withTx(ctx, conn, func(tx pgx.Tx) error {
		if err := ensureSchemaTable(ctx, tx, opts.schemaTable); err != nil {
			return err
		}
		fmt.Fprintf(out, "Created schema table: %s\n", opts.schemaTable)
		return upsertEntities(ctx, tx, opts.schemaTable, rows)
	}); err != nil {
		return err
	}

	fmt.Fprintf(out, "Database initialized successfully, entities: %d\n", len(rows))
	return nil
}

// entityRow is one row of the schema table.
type entityRow struct {
	name       string
	definition []byte
}

// entityRows renders every registry entity as a jsonb definition, sorted by name.
func entityRows(registry sigmaql.SchemaRegistry) ([]entityRow, error) {
	names := registry.ListEntities()
	sort.Strings(names)

	rows := make([]entityRow, 0, len(names))
	for _, name := range names {
		entity, err := registry.GetEntity(name)
		if err != nil {
			return nil, err
		}
		definition, err := json.Marshal(entity)
		if err != nil {
			return nil, fmt.Errorf("marshal entity %s: %w", name, err)
		}
		rows = append(rows, entityRow{name: name, definition: definition})
	}
	return rows, nil
}

func ensureSchemaTable(ctx context.Context, tx pgx.Tx, table string) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		entity_name TEXT PRIMARY KEY,
		definition  JSONB NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, quoteIdentifier(table))

	if _, err := tx.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure schema table: %w", err)
	}
	return nil
}

func upsertEntities(ctx context.Context, tx pgx.Tx, table string, rows []entityRow) error {
	insertSQL := fmt.Sprintf(
		`INSERT INTO %s (entity_name, definition) VALUES ($1, $2)
		ON CONFLICT (entity_name) DO UPDATE SET definition = EXCLUDED.definition, updated_at = now()`,
		quoteIdentifier(table),
	)
	for _, row := range rows {
		if _, err := tx.Exec(ctx, insertSQL, row.name, row.definition); err != nil {
			return fmt.Errorf("upsert entity %s: %w", row.name, err)
		}
	}
	return nil
}

func buildConnString(opts initDBOptions) string {
	hostPort := fmt.Sprintf("%s:%d", opts.host, opts.port)

	var userInfo *url.Userinfo
	if opts.password != "" {
		userInfo = url.UserPassword(opts.user, opts.password)
	} else {
		userInfo = url.User(opts.user)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   hostPort,
		Path:   "/" + opts.database,
	}

	q := url.Values{}
	if opts.sslMode != "" {
		q.Set("sslmode", opts.sslMode)
	}
	u.RawQuery = q.Encode()

	return u.String()
}

func withTx(ctx context.Context, conn *pgxpool.Conn, fn func(pgx.Tx) error) error {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%w; rollback failed: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// quoteIdentifier accepts schema-qualified names such as "config.sigmaql_schema".
func quoteIdentifier(name string) string {
	parts := strings.Split(name, ".")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	if len(result) == 0 {
		result = []string{name}
	}
	return pgx.Identifier(result).Sanitize()
}

func getenvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getenvDefaultInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}
