package cmd

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestExportAllNoProjects(t *testing.T) {
	pipeline := newTestPipeline()

	_, err := pipeline.ExportAll(context.Background(), nil, t.TempDir(), "csv")
	if !errors.Is(err, ErrNoProjects) {
		t.Fatalf("expected ErrNoProjects, got %v", err)
	}
}

func TestExportAllCompletenessAndIsolation(t *testing.T) {
	// alpha exports all tables (teams is empty), beta fails to connect
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}

	mock.ExpectQuery(`SELECT row_to_json\(t\) FROM "individual_attempts" t`).
		WillReturnRows(sqlmock.NewRows([]string{"row_to_json"}).
			AddRow([]byte(`{"id":1,"score":40}`)).
			AddRow([]byte(`{"id":2,"score":55}`)))
	mock.ExpectQuery(`SELECT row_to_json\(t\) FROM "attempt_details" t`).
		WillReturnRows(sqlmock.NewRows([]string{"row_to_json"}).
			AddRow([]byte(`{"id":1,"attempt_id":1}`)))
	mock.ExpectQuery(`SELECT row_to_json\(t\) FROM "teams" t`).
		WillReturnRows(sqlmock.NewRows([]string{"row_to_json"}))
	mock.ExpectClose()

	pipeline := newTestPipeline()
	pipeline.openProject = func(ctx context.Context, project ProjectConfig, timeout time.Duration) (*sql.DB, error) {
		if project.Name == "beta" {
			return nil, errors.New("connection refused")
		}
		return db, nil
	}

	projects := []ProjectConfig{{Name: "alpha"}, {Name: "beta"}}

	outcomes, err := pipeline.ExportAll(context.Background(), projects, t.TempDir(), "csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Every project/table pair gets exactly one outcome
	if len(outcomes) != len(projects)*len(requiredTables) {
		t.Fatalf("expected %d outcomes, got %d", len(projects)*len(requiredTables), len(outcomes))
	}

	index := map[string]ExportOutcome{}
	for _, o := range outcomes {
		checkOutcomeInvariants(t, o)
		index[o.Project+"/"+o.Table] = o
	}

	tests := []struct {
		key      string
		status   string
		rowCount int64
	}{
		{"alpha/individual_attempts", StatusSuccess, 2},
		{"alpha/attempt_details", StatusSuccess, 1},
		{"alpha/teams", StatusEmpty, 0},
		{"beta/individual_attempts", StatusError, 0},
		{"beta/attempt_details", StatusError, 0},
		{"beta/teams", StatusError, 0},
	}

	for _, tt := range tests {
		o, ok := index[tt.key]
		if !ok {
			t.Errorf("missing outcome for %s", tt.key)
			continue
		}
		if o.Status != tt.status {
			t.Errorf("%s: expected status %q, got %q (%s)", tt.key, tt.status, o.Status, o.Error)
		}
		if o.RowCount != tt.rowCount {
			t.Errorf("%s: expected %d rows, got %d", tt.key, tt.rowCount, o.RowCount)
		}
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestScratchWorkspace(t *testing.T) {
	dir, err := createScratchWorkspace()
	if err != nil {
		t.Fatalf("failed to create workspace: %v", err)
	}

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("workspace does not exist: %v", err)
	}
	if !info.IsDir() {
		t.Fatal("workspace is not a directory")
	}

	removeScratchWorkspace(dir, newTestLogger())

	if _, err := os.Stat(dir); err == nil {
		t.Error("expected workspace to be removed")
	}
}
