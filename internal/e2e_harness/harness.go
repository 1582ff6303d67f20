package e2e_harness

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	pgUser     = "postgres"
	pgPassword = "password"
	pgDatabase = "postgres"

	S3AccessKey = "minio"
	S3SecretKey = "minio"
)

// TestHarness holds the containers backing the remote schema sources.
type TestHarness struct {
	PGContainer testcontainers.Container
	PGHost      string
	PGPort      int
	PGDB        *sql.DB
	S3Container testcontainers.Container
	S3Endpoint  string
}

// StartPostgres starts a postgres container and opens a database/sql handle
// used for seeding. It waits until Postgres accepts connections.
func (h *TestHarness) StartPostgres(ctx context.Context) error {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_PASSWORD": pgPassword,
			"POSTGRES_USER":     pgUser,
			"POSTGRES_DB":       pgDatabase,
		},
		WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return err
	}
	h.PGContainer = container

	host, err := container.Host(ctx)
	if err != nil {
		return err
	}
	mapped, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return err
	}
	h.PGHost = host
	h.PGPort = mapped.Int()

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable", pgUser, pgPassword, host, h.PGPort, pgDatabase)
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(20 * time.Second)
	for {
		if err := db.PingContext(ctx); err == nil {
			h.PGDB = db
			return nil
		}
		if time.Now().After(deadline) {
			db.Close()
			return fmt.Errorf("postgres did not become ready: %w", err)
		}
		time.Sleep(200 * time.Millisecond)
	}
}

// StopPostgres closes the seeding handle and terminates the container.
func (h *TestHarness) StopPostgres(ctx context.Context) error {
	if h.PGDB != nil {
		h.PGDB.Close()
		h.PGDB = nil
	}
	if h.PGContainer != nil {
		if err := h.PGContainer.Terminate(ctx); err != nil {
			return err
		}
		h.PGContainer = nil
	}
	return nil
}

// StartS3 starts an S3-compatible object store and returns its endpoint.
func (h *TestHarness) StartS3(ctx context.Context) (string, error) {
	req := testcontainers.ContainerRequest{
		Image:        "rustfs/rustfs:latest",
		ExposedPorts: []string{"9000/tcp"},
		Env: map[string]string{
			"RUSTFS_ACCESS_KEY": S3AccessKey,
			"RUSTFS_SECRET_KEY": S3SecretKey,
		},
		WaitingFor: wait.ForListeningPort("9000/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", err
	}
	h.S3Container = container
	host, err := container.Host(ctx)
	if err != nil {
		return "", err
	}
	mapped, err := container.MappedPort(ctx, "9000")
	if err != nil {
		return "", err
	}
	h.S3Endpoint = fmt.Sprintf("http://%s:%s", host, mapped.Port())
	return h.S3Endpoint, nil
}

func (h *TestHarness) StopS3(ctx context.Context) error {
	if h.S3Container != nil {
		if err := h.S3Container.Terminate(ctx); err != nil {
			return err
		}
		h.S3Container = nil
	}
	return nil
}
