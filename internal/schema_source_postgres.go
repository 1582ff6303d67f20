package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dsql/auth"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lychee-technology/sigmaql"
	"go.uber.org/zap"
)

type schemaQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresSchemaSource reads one EntitySchema per row from a table shaped
// (entity_name text, definition jsonb).
type PostgresSchemaSource struct {
	pool  schemaQuerier
	table string
}

func NewPostgresSchemaSource(pool schemaQuerier, table string) *PostgresSchemaSource {
	return &PostgresSchemaSource{pool: pool, table: table}
}

func (s *PostgresSchemaSource) Load(ctx context.Context) (*sigmaql.SchemaRoot, error) {
	query := fmt.Sprintf("SELECT entity_name, definition FROM %s ORDER BY entity_name", sanitizeIdentifier(s.table))
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, sigmaql.NewSchemaError(sigmaql.ErrCodeSchemaLoadFailed,
			fmt.Sprintf("failed to query schema table %s", s.table), err)
	}
	defer rows.Close()

	entities := make(map[string]json.RawMessage)
	for rows.Next() {
		var name string
		var definition []byte
		if err := rows.Scan(&name, &definition); err != nil {
			return nil, sigmaql.NewSchemaError(sigmaql.ErrCodeSchemaLoadFailed, "failed to scan schema row", err)
		}
		entities[name] = json.RawMessage(definition)
	}
	if err := rows.Err(); err != nil {
		return nil, sigmaql.NewSchemaError(sigmaql.ErrCodeSchemaLoadFailed, "error iterating schema rows", err)
	}

	if len(entities) == 0 {
		return nil, sigmaql.NewSchemaError(sigmaql.ErrCodeSchemaEmpty,
			fmt.Sprintf("no entities found in table: %s", s.table), nil)
	}

	doc, err := json.Marshal(map[string]any{"entities": entities})
	if err != nil {
		return nil, sigmaql.NewSchemaError(sigmaql.ErrCodeSchemaInvalid, "failed to assemble schema document", err)
	}
	root, err := ParseSchemaDocument(doc, FormatJSON)
	if err != nil {
		return nil, err
	}
	zap.S().Infow("schema loaded from postgres", "table", s.table, "entities", len(root.Entities))
	return root, nil
}

// ValidatePostgresConfig performs basic sanity checks on Postgres-related settings.
func ValidatePostgresConfig(cfg sigmaql.PostgresConfig) error {
	if cfg.Host == "" {
		return fmt.Errorf("schema.postgres.host is required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("schema.postgres.port must be a valid TCP port")
	}
	if cfg.MaxConnections <= 0 {
		return fmt.Errorf("schema.postgres.maxConnections must be greater than 0")
	}
	if cfg.UseIAM && cfg.Region == "" {
		return fmt.Errorf("schema.postgres.region is required when useIAM is set")
	}
	return nil
}

// postgresConnString builds a postgres:// URL, escaping the credentials.
func postgresConnString(cfg sigmaql.PostgresConfig) string {
	userInfo := url.User(cfg.Username)
	if cfg.Password != "" {
		userInfo = url.UserPassword(cfg.Username, cfg.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:   "/" + cfg.Database,
	}
	if cfg.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": []string{cfg.SSLMode}}.Encode()
	}
	return u.String()
}

// NewPostgresPool creates a PostgreSQL connection pool for the schema table.
// With UseIAM set, every new connection authenticates with a fresh DSQL token.
func NewPostgresPool(ctx context.Context, cfg sigmaql.PostgresConfig) (*pgxpool.Pool, error) {
	if err := ValidatePostgresConfig(cfg); err != nil {
		return nil, err
	}

	poolConfig, err := pgxpool.ParseConfig(postgresConnString(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.ConnConfig.ConnectTimeout = cfg.Timeout

	if cfg.UseIAM {
		awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		endpoint := cfg.Host
		poolConfig.BeforeConnect = func(ctx context.Context, cc *pgx.ConnConfig) error {
			token, err := auth.GenerateDbConnectAuthToken(ctx, endpoint, awsCfg.Region, awsCfg.Credentials)
			if err != nil {
				return fmt.Errorf("generate dsql auth token: %w", err)
			}
			cc.Password = token
			return nil
		}
		zap.S().Infow("using IAM auth token for schema database", "host", cfg.Host, "region", cfg.Region)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
