// Package pgtest provides a disposable Postgres container for
// pgcollab's integration tests, the way the teacher's IR and cmd packages
// stand up a database per test: one testcontainers-go postgres module
// instance, torn down on test cleanup.
package pgtest

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// DB is a running Postgres container plus an open pgx connection to it.
type DB struct {
	Conn *pgx.Conn
	DSN  string
}

// Start launches a postgres:17 container, connects to it with pgx, and
// registers cleanup to close the connection and terminate the container when
// t finishes. Skips (rather than fails) when run with -short, since spinning
// up a container is too slow for a fast unit-test loop.
func Start(t *testing.T) *DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"postgres:17",
		postgres.WithDatabase("objectplan_test"),
		postgres.WithUsername("objectplan"),
		postgres.WithPassword("objectplan"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("pgtest: starting container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("pgtest: terminating container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("pgtest: connection string: %v", err)
	}

	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("pgtest: connecting: %v", err)
	}
	t.Cleanup(func() {
		if err := conn.Close(context.Background()); err != nil {
			t.Logf("pgtest: closing connection: %v", err)
		}
	})

	return &DB{Conn: conn, DSN: dsn}
}

// Exec runs sql against the container, failing the test on error. Meant for
// loading fixture DDL before handing the connection to the code under test.
func (db *DB) Exec(ctx context.Context, t *testing.T, sql string) {
	t.Helper()
	if _, err := db.Conn.Exec(ctx, sql); err != nil {
		t.Fatalf("pgtest: exec: %v", err)
	}
}
