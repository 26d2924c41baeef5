package store

import (
	"fmt"
	"strings"

	"github.com/danielolaszy/cadence/internal/kpi"
)

const issueColumns = `key, project, summary, issue_type, status, priority, assignee, reporter,
	created, updated, resolved, resolution, labels, components, story_points, sprint_ids`

const sprintColumns = `id, name, board_id, board_name, state, start_date, end_date, complete_date, goal`

// where accumulates conditions and their positional arguments.
type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, arg any) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, fmt.Sprintf(cond, len(w.args)))
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// issueQuery builds the ListIssues statement. Type and status match
// case-insensitively; results are newest-created first.
func issueQuery(f kpi.IssueFilter) (string, []any) {
	var w where
	if f.Project != "" {
		w.add("project = $%d", f.Project)
	}
	if f.Status != "" {
		w.add("lower(status) = lower($%d)", f.Status)
	}
	if f.Type != "" {
		w.add("lower(issue_type) = lower($%d)", f.Type)
	}

	q := "SELECT " + issueColumns + " FROM issues" + w.String() + " ORDER BY created DESC, key"
	if f.Limit > 0 {
		w.args = append(w.args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(w.args))
	}
	return q, w.args
}

// sprintQuery builds the ListSprints statement, most recently ended first
// with undated sprints last.
func sprintQuery(f kpi.SprintFilter) (string, []any) {
	var w where
	if f.BoardID != 0 {
		w.add("board_id = $%d", f.BoardID)
	}
	if f.State != "" {
		w.add("state = $%d", strings.ToLower(f.State))
	}
	return "SELECT " + sprintColumns + " FROM sprints" + w.String() + " ORDER BY end_date DESC NULLS LAST, id DESC", w.args
}
