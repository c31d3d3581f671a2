package testutils

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/ory/dockertest"
)

// RunTestDatabase starts a disposable postgres container and returns its DSN.
// cleanUp is always safe to call.
func RunTestDatabase() (dsn string, cleanUp func(), err error) {
	cleanUp = func() {}

	pool, err := dockertest.NewPool("")
	if err != nil {
		return "", cleanUp, fmt.Errorf("could not connect to docker: %w", err)
	}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "16-alpine",
		Env: []string{
			"POSTGRES_PASSWORD=secret",
			"POSTGRES_USER=orders",
			"POSTGRES_DB=orders",
			"listen_addresses = '*'",
		},
	})
	if err != nil {
		return "", cleanUp, fmt.Errorf("could not start resource: %w", err)
	}
	cleanUp = func() {
		_ = pool.Purge(resource)
	}

	dsn = fmt.Sprintf("postgres://orders:secret@%s/orders?sslmode=disable", "localhost:"+resource.GetPort("5432/tcp"))

	pool.MaxWait = 90 * time.Second
	err = pool.Retry(func() error {
		conn, err := pgx.Connect(context.Background(), dsn)
		if err != nil {
			return err
		}
		defer conn.Close(context.Background())
		return conn.Ping(context.Background())
	})
	if err != nil {
		return "", cleanUp, fmt.Errorf("could not connect to database: %w", err)
	}
	return dsn, cleanUp, nil
}
