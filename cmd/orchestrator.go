package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/exporthub/exporthub/cmd/formatters"
	"github.com/google/uuid"
)

// ErrNoProjects is returned when an export or aggregation is attempted with
// an empty project registry.
var ErrNoProjects = errors.New("no projects configured")

// ExportPipeline coordinates the multi-project export: per-project
// connections, per-table export attempts and outcome bookkeeping.
type ExportPipeline struct {
	config *Config
	logger *slog.Logger

	// openProject is swappable so tests can inject prepared connections.
	openProject func(ctx context.Context, project ProjectConfig, timeout time.Duration) (*sql.DB, error)
}

func NewExportPipeline(config *Config, logger *slog.Logger) *ExportPipeline {
	return &ExportPipeline{
		config:      config,
		logger:      logger,
		openProject: openProject,
	}
}

func (p *ExportPipeline) connectTimeout() time.Duration {
	return time.Duration(p.config.ConnectTimeout) * time.Second
}

// ExportAll runs every (project, table) export attempt and writes the
// produced files into dir. The returned slice always has exactly
// len(projects) * len(requiredTables) entries in project-then-table order:
// a project whose connection fails contributes one error outcome per table.
//
// Only an empty project list is an error; everything past that point
// degrades into per-outcome error records.
func (p *ExportPipeline) ExportAll(ctx context.Context, projects []ProjectConfig, dir, format string) ([]ExportOutcome, error) {
	if len(projects) == 0 {
		return nil, ErrNoProjects
	}

	formatter := formatters.GetFormatter(format)
	outcomes := make([]ExportOutcome, 0, len(projects)*len(requiredTables))

	for _, project := range projects {
		outcomes = append(outcomes, p.exportProject(ctx, project, dir, formatter)...)
	}

	return outcomes, nil
}

// exportProject runs every table export for one project over a single
// connection pool, scoped so the pool is closed on every exit path.
func (p *ExportPipeline) exportProject(ctx context.Context, project ProjectConfig, dir string, formatter formatters.Formatter) []ExportOutcome {
	p.logger.Info(fmt.Sprintf("📦 Exporting project '%s'", project.Name))

	outcomes := make([]ExportOutcome, 0, len(requiredTables))

	db, err := p.openProject(ctx, project, p.connectTimeout())
	if err != nil {
		p.logger.Error(fmt.Sprintf("  ❌ Connection to '%s' failed: %v", project.Name, err))
		for _, table := range requiredTables {
			outcomes = append(outcomes, errorOutcome(project.Name, table, err))
		}
		return outcomes
	}
	defer db.Close()

	for _, table := range requiredTables {
		outcome := p.exportTable(ctx, db, project, table, dir, formatter)
		switch outcome.Status {
		case StatusError:
			p.logger.Error(fmt.Sprintf("  ❌ %s.%s: %s", project.Name, table, outcome.Error))
		case StatusEmpty:
			p.logger.Debug(fmt.Sprintf("  ⏭️  %s.%s is empty", project.Name, table))
		}
		outcomes = append(outcomes, outcome)
	}

	return outcomes
}

// createScratchWorkspace creates the uniquely-named transient directory that
// holds per-table export files until they are archived.
func createScratchWorkspace() (string, error) {
	dir, err := os.MkdirTemp("", "exporthub-"+uuid.NewString())
	if err != nil {
		return "", fmt.Errorf("failed to create scratch workspace: %w", err)
	}
	return dir, nil
}

// removeScratchWorkspace deletes the workspace unconditionally. Failure is
// logged but never propagated: cleanup must not mask the primary result.
func removeScratchWorkspace(dir string, logger *slog.Logger) {
	if err := os.RemoveAll(dir); err != nil {
		logger.Warn(fmt.Sprintf("Failed to remove scratch workspace %s: %v", dir, err))
	}
}
