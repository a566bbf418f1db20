package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// openProject opens a fresh connection pool for one project and verifies it
// with a ping. The pool is short-lived: each logical operation opens its own
// and must close it on every exit path.
//
// sslmode=require encrypts the connection but accepts the server certificate
// without verifying its chain, matching how managed-Postgres poolers are
// typically reached.
func openProject(ctx context.Context, project ProjectConfig, timeout time.Duration) (*sql.DB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=require connect_timeout=%d",
		project.Host,
		project.Port,
		project.Username,
		project.Password,
		project.Database,
		int(timeout.Seconds()),
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}

	// All per-project work is sequential; one connection is all we need,
	// and it bounds the load placed on the target pooler.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}
