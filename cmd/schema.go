package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// requiredTables is the fixed set of tables every registered project must
// expose. It doubles as the allow-list for export queries: table names are
// never interpolated from untrusted input.
var requiredTables = []string{"individual_attempts", "attempt_details", "teams"}

// TableCheck is the result of one existence probe.
type TableCheck struct {
	Table  string `json:"table"`
	Exists bool   `json:"exists"`
}

// isAllowedTable reports whether a table name is in the fixed export allow-list.
func isAllowedTable(name string) bool {
	for _, t := range requiredTables {
		if t == name {
			return true
		}
	}
	return false
}

// checkRequiredTables probes the connection's catalog for each table name.
// Probes run concurrently (the list is small and fixed) but results come
// back in input order. Read-only; used at project registration time only.
func checkRequiredTables(ctx context.Context, db *sql.DB, tables []string) ([]TableCheck, error) {
	type probe struct {
		index int
		check TableCheck
		err   error
	}

	results := make(chan probe, len(tables))
	for i, table := range tables {
		go func(i int, table string) {
			exists, err := tableExists(ctx, db, table)
			results <- probe{
				index: i,
				check: TableCheck{Table: table, Exists: exists},
				err:   err,
			}
		}(i, table)
	}

	checks := make([]TableCheck, len(tables))
	for range tables {
		p := <-results
		if p.err != nil {
			return nil, p.err
		}
		checks[p.index] = p.check
	}

	return checks, nil
}

func tableExists(ctx context.Context, db *sql.DB, table string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_schema = 'public'
			AND table_name = $1
		)
	`

	var exists bool
	if err := db.QueryRowContext(ctx, query, table).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", table, err)
	}
	return exists, nil
}

// missingTables derives the names of tables whose existence probe failed.
func missingTables(checks []TableCheck) []string {
	var missing []string
	for _, c := range checks {
		if !c.Exists {
			missing = append(missing, c.Table)
		}
	}
	return missing
}

// missingTablesMessage formats the registration rejection detail.
func missingTablesMessage(missing []string) string {
	return "Missing required tables: " + strings.Join(missing, ", ")
}
