package cmd

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestIsAllowedTable(t *testing.T) {
	for _, table := range requiredTables {
		if !isAllowedTable(table) {
			t.Errorf("expected %q to be allowed", table)
		}
	}
	for _, table := range []string{"users", "pg_catalog", "", "Teams"} {
		if isAllowedTable(table) {
			t.Errorf("expected %q to be rejected", table)
		}
	}
}

func TestCheckRequiredTables(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	// Probes run concurrently, so expectation order cannot be assumed
	mock.MatchExpectationsInOrder(false)
	mock.ExpectQuery("SELECT EXISTS").WithArgs("individual_attempts").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("SELECT EXISTS").WithArgs("attempt_details").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("SELECT EXISTS").WithArgs("teams").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	checks, err := checkRequiredTables(context.Background(), db, requiredTables)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(checks) != len(requiredTables) {
		t.Fatalf("expected %d checks, got %d", len(requiredTables), len(checks))
	}
	for i, table := range requiredTables {
		if checks[i].Table != table {
			t.Errorf("check %d: expected table %q in input order, got %q", i, table, checks[i].Table)
		}
	}
	if checks[0].Exists != true || checks[1].Exists != false || checks[2].Exists != true {
		t.Errorf("unexpected existence results: %+v", checks)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestMissingTablesMessage(t *testing.T) {
	checks := []TableCheck{
		{Table: "individual_attempts", Exists: true},
		{Table: "attempt_details", Exists: false},
		{Table: "teams", Exists: false},
	}

	missing := missingTables(checks)
	if len(missing) != 2 {
		t.Fatalf("expected 2 missing tables, got %d", len(missing))
	}

	want := "Missing required tables: attempt_details, teams"
	if got := missingTablesMessage(missing); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}
