package jira

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	jira "github.com/andygrunwald/go-jira"

	"github.com/danielolaszy/cadence/internal/logging"
	"github.com/danielolaszy/cadence/pkg/models"
)

// changelogTimeLayout is the timestamp format of changelog histories.
const changelogTimeLayout = "2006-01-02T15:04:05.000-0700"

// Jira Server renders sprint field values as
// "com.atlassian.greenhopper.service.sprint.Sprint@1a2b[id=42,rapidViewId=...]".
var serverSprintID = regexp.MustCompile(`\bid=(\d+)`)

// ConvertIssue maps a go-jira issue onto the shared model. storyPointsField
// and sprintField name the custom fields holding estimates and sprints.
func ConvertIssue(issue jira.Issue, storyPointsField, sprintField string) models.Issue {
	out := models.Issue{
		Key:        issue.Key,
		Project:    projectOf(issue.Key),
		Labels:     []string{},
		Components: []string{},
		SprintIDs:  []int64{},
	}

	f := issue.Fields
	if f == nil {
		return out
	}

	if f.Project.Key != "" {
		out.Project = f.Project.Key
	}
	out.Summary = f.Summary
	out.Type = f.Type.Name
	if f.Status != nil {
		out.Status = f.Status.Name
	}
	if f.Priority != nil {
		out.Priority = f.Priority.Name
	}
	if f.Resolution != nil {
		out.Resolution = f.Resolution.Name
	}
	out.Assignee = userName(f.Assignee)
	out.Reporter = userName(f.Reporter)

	out.Created = time.Time(f.Created).UTC()
	out.Updated = time.Time(f.Updated).UTC()
	if resolved := time.Time(f.Resolutiondate); !resolved.IsZero() {
		resolved = resolved.UTC()
		out.Resolved = &resolved
	}

	out.Labels = append(out.Labels, f.Labels...)
	for _, c := range f.Components {
		if c != nil && c.Name != "" {
			out.Components = append(out.Components, c.Name)
		}
	}

	if storyPointsField != "" {
		out.StoryPoints = storyPoints(f.Unknowns[storyPointsField])
	}
	if sprintField != "" {
		out.SprintIDs = append(out.SprintIDs, SprintIDs(f.Unknowns[sprintField])...)
	}
	return out
}

func projectOf(key string) string {
	if i := strings.LastIndex(key, "-"); i > 0 {
		return key[:i]
	}
	return key
}

func userName(u *jira.User) string {
	if u == nil {
		return ""
	}
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Name
}

func storyPoints(v interface{}) *float64 {
	switch n := v.(type) {
	case float64:
		return &n
	case int:
		f := float64(n)
		return &f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return nil
		}
		return &f
	default:
		return nil
	}
}

// SprintIDs extracts sprint ids from a sprint custom field value. Cloud
// returns a list of objects, Server a list of serialized strings.
func SprintIDs(v interface{}) []int64 {
	list, ok := v.([]interface{})
	if !ok {
		return nil
	}

	var ids []int64
	seen := make(map[int64]struct{}, len(list))
	for _, item := range list {
		id, ok := sprintID(item)
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

func sprintID(item interface{}) (int64, bool) {
	switch v := item.(type) {
	case map[string]interface{}:
		switch id := v["id"].(type) {
		case float64:
			return int64(id), true
		case string:
			n, err := strconv.ParseInt(id, 10, 64)
			return n, err == nil
		}
	case string:
		m := serverSprintID.FindStringSubmatch(v)
		if m == nil {
			return 0, false
		}
		n, err := strconv.ParseInt(m[1], 10, 64)
		return n, err == nil
	}
	return 0, false
}

// ConvertChangelog flattens the histories of an issue into one event per
// changed field. Status changes carry the status names, sprint changes the
// sprint ids. Histories with an unreadable timestamp are skipped.
func ConvertChangelog(key string, changelog *jira.Changelog) []models.ChangeEvent {
	if changelog == nil {
		return nil
	}

	var events []models.ChangeEvent
	skipped := 0
	for _, h := range changelog.Histories {
		at, err := time.Parse(changelogTimeLayout, h.Created)
		if err != nil {
			skipped++
			continue
		}
		author := h.Author.DisplayName
		if author == "" {
			author = h.Author.Name
		}
		for _, item := range h.Items {
			ev := models.ChangeEvent{
				IssueKey: key,
				At:       at.UTC(),
				Author:   author,
				Field:    item.Field,
				From:     item.FromString,
				To:       item.ToString,
			}
			if strings.EqualFold(item.Field, "sprint") {
				ev.From = rawValue(item.From)
				ev.To = rawValue(item.To)
			}
			events = append(events, ev)
		}
	}

	if skipped > 0 {
		logging.Debug("skipped changelog histories", "issue", key, "skipped", skipped)
	}
	return events
}

func rawValue(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}

// ConvertSprint maps an agile sprint onto the shared model.
func ConvertSprint(s jira.Sprint, board models.Board) models.Sprint {
	out := models.Sprint{
		ID:        int64(s.ID),
		Name:      s.Name,
		BoardID:   board.ID,
		BoardName: board.Name,
		State:     strings.ToLower(s.State),
		Start:     utc(s.StartDate),
		End:       utc(s.EndDate),
		Completed: utc(s.CompleteDate),
	}
	if s.OriginBoardID != 0 && int64(s.OriginBoardID) != board.ID {
		out.BoardID = int64(s.OriginBoardID)
		out.BoardName = ""
	}
	return out
}

func utc(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}
