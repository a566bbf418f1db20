package cmd

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/exporthub/exporthub/cmd/formatters"
	"github.com/lib/pq"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// teamSortColumns is the allow-list of columns that may be pushed into the
// per-project SQL ORDER BY. Anything else falls back to created_at DESC at
// the query level; team_code and project are derived cross-project fields
// and are re-sorted in memory after the merge.
var teamSortColumns = map[string]bool{
	"name":       true,
	"email":      true,
	"role":       true,
	"created_at": true,
	"updated_at": true,
}

// teamSearchFields are the row fields matched by the free-text search.
var teamSearchFields = []string{"name", "email", "team_code", "project_name", "role", "join_code"}

const (
	teamPageDefault  = 1
	teamLimitDefault = 12
	teamLimitMax     = 100
)

// TeamQuery carries the paging, filtering and ordering parameters of one
// team member listing request.
type TeamQuery struct {
	Page      int
	Limit     int
	Search    string
	Project   string
	SortBy    string
	SortOrder string
}

// PagedTeamMembers is the paged listing response.
type PagedTeamMembers struct {
	Data        []map[string]interface{} `json:"data"`
	Total       int                      `json:"total"`
	Page        int                      `json:"page"`
	Limit       int                      `json:"limit"`
	TotalPages  int                      `json:"totalPages"`
	HasNextPage bool                     `json:"hasNextPage"`
	HasPrevPage bool                     `json:"hasPrevPage"`
}

// TeamAggregator merges the teams table of every project into one
// cross-project listing, reusing the pipeline's per-project iteration and
// partial-failure discipline: a project that fails to connect or lacks the
// table is logged and skipped, never fatal.
type TeamAggregator struct {
	config *Config
	logger *slog.Logger

	openProject func(ctx context.Context, project ProjectConfig, timeout time.Duration) (*sql.DB, error)
}

func NewTeamAggregator(config *Config, logger *slog.Logger) *TeamAggregator {
	return &TeamAggregator{
		config:      config,
		logger:      logger,
		openProject: openProject,
	}
}

// ListTeamMembers returns one page of the merged, filtered, sorted set.
func (a *TeamAggregator) ListTeamMembers(ctx context.Context, projects []ProjectConfig, query TeamQuery) (*PagedTeamMembers, error) {
	if len(projects) == 0 {
		return nil, ErrNoProjects
	}

	members, _ := a.collect(ctx, projects, query)

	members = filterMembers(members, query.Search)
	a.sortMerged(members, query.SortBy, query.SortOrder)

	page := query.Page
	if page < 1 {
		page = teamPageDefault
	}
	limit := query.Limit
	if limit < 1 {
		limit = teamLimitDefault
	}
	if limit > teamLimitMax {
		limit = teamLimitMax
	}

	total := len(members)
	totalPages := (total + limit - 1) / limit

	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	pageData := members[start:end]
	if pageData == nil {
		pageData = []map[string]interface{}{}
	}

	return &PagedTeamMembers{
		Data:        pageData,
		Total:       total,
		Page:        page,
		Limit:       limit,
		TotalPages:  totalPages,
		HasNextPage: page < totalPages,
		HasPrevPage: page > 1,
	}, nil
}

// ExportCSV streams the full merged set (same aggregation, no pagination)
// as CSV. The header is the union of all row columns in first-seen order,
// since schemas may vary slightly per project; missing cells are blank.
func (a *TeamAggregator) ExportCSV(ctx context.Context, projects []ProjectConfig, query TeamQuery, w io.Writer) error {
	if len(projects) == 0 {
		return ErrNoProjects
	}

	members, columns := a.collect(ctx, projects, query)
	members = filterMembers(members, query.Search)
	a.sortMerged(members, query.SortBy, query.SortOrder)

	writer, err := formatters.NewCSVFormatter().NewWriter(w, columns)
	if err != nil {
		return err
	}
	if err := writer.WriteChunk(members); err != nil {
		return err
	}
	return writer.Close()
}

// collect queries the teams table of every eligible project and merges the
// rows, tagging each with its originating project and derived team code.
// The returned column list is the first-seen union across all rows plus the
// derived fields.
func (a *TeamAggregator) collect(ctx context.Context, projects []ProjectConfig, query TeamQuery) ([]map[string]interface{}, []string) {
	var (
		members []map[string]interface{}
		columns []string
		seen    = map[string]bool{}
	)

	addColumn := func(name string) {
		if !seen[name] {
			seen[name] = true
			columns = append(columns, name)
		}
	}

	timeout := time.Duration(a.config.ConnectTimeout) * time.Second

	for _, project := range projects {
		if query.Project != "" && project.Name != query.Project {
			continue
		}

		rows, rowColumns, err := a.collectProject(ctx, project, timeout, query.SortBy, query.SortOrder)
		if err != nil {
			a.logger.Warn(fmt.Sprintf("⏭️  Skipping project '%s': %v", project.Name, err))
			continue
		}

		for _, col := range rowColumns {
			addColumn(col)
		}
		members = append(members, rows...)
	}

	for _, derived := range []string{"project_name", "team_code", "team_name"} {
		addColumn(derived)
	}

	return members, columns
}

func (a *TeamAggregator) collectProject(ctx context.Context, project ProjectConfig, timeout time.Duration, sortBy, sortOrder string) ([]map[string]interface{}, []string, error) {
	db, err := a.openProject(ctx, project, timeout)
	if err != nil {
		return nil, nil, err
	}
	defer db.Close()

	exists, err := tableExists(ctx, db, "teams")
	if err != nil {
		return nil, nil, err
	}
	if !exists {
		return nil, nil, fmt.Errorf("teams table does not exist")
	}

	orderBy := "created_at DESC"
	if teamSortColumns[sortBy] && isValidTableName(sortBy) {
		direction := "DESC"
		if strings.EqualFold(sortOrder, "asc") {
			direction = "ASC"
		}
		orderBy = pq.QuoteIdentifier(sortBy) + " " + direction
	}

	//nolint:gosec // ORDER BY column is allow-listed and quoted
	sqlQuery := fmt.Sprintf("SELECT row_to_json(t) FROM (SELECT * FROM teams ORDER BY %s) t", orderBy)

	rows, err := db.QueryContext(ctx, sqlQuery)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var (
		members []map[string]interface{}
		columns []string
		seen    = map[string]bool{}
	)

	for rows.Next() {
		var raw json.RawMessage
		if err := rows.Scan(&raw); err != nil {
			return nil, nil, err
		}

		row, err := decodeRow(raw)
		if err != nil {
			return nil, nil, err
		}

		keys, err := orderedJSONKeys(raw)
		if err != nil {
			return nil, nil, err
		}
		for _, key := range keys {
			if !seen[key] {
				seen[key] = true
				columns = append(columns, key)
			}
		}

		row["project_name"] = project.Name
		row["team_code"] = deriveTeamCode(row)
		if stringField(row, "team_name") == "" {
			row["team_name"] = "No Team"
		}

		members = append(members, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	return members, columns, nil
}

// filterMembers applies the case-insensitive free-text search.
func filterMembers(members []map[string]interface{}, search string) []map[string]interface{} {
	if search == "" {
		return members
	}

	needle := strings.ToLower(search)
	filtered := make([]map[string]interface{}, 0, len(members))
	for _, row := range members {
		for _, field := range teamSearchFields {
			if strings.Contains(strings.ToLower(stringField(row, field)), needle) {
				filtered = append(filtered, row)
				break
			}
		}
	}
	return filtered
}

// sortMerged re-sorts the merged set for the derived cross-project fields
// the per-project SQL ORDER BY cannot see. Locale-aware comparison, stable
// so the per-project ordering survives ties.
func (a *TeamAggregator) sortMerged(members []map[string]interface{}, sortBy, sortOrder string) {
	var key string
	switch sortBy {
	case "team_code":
		key = "team_code"
	case "project":
		key = "project_name"
	default:
		return
	}

	desc := !strings.EqualFold(sortOrder, "asc")
	collator := collate.New(language.Und, collate.IgnoreCase)

	sort.SliceStable(members, func(i, j int) bool {
		cmp := collator.CompareString(stringField(members[i], key), stringField(members[j], key))
		if desc {
			return cmp > 0
		}
		return cmp < 0
	})
}
