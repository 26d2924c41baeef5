// Package lifecycle reconstructs point-in-time facts about an issue from its
// change history: when it first entered an in-progress state, when it was
// first done, whether it regressed from done, and which sprints it was
// attached to.
//
// Status changes are replayed as a finite-state scan over the sorted event
// sequence. Every rule lives in the transitions table below.
package lifecycle

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/danielolaszy/cadence/pkg/models"
)

// State is the lifecycle position of an issue during replay.
type State int

const (
	NotStarted State = iota
	InProgress
	Done
	Reopened
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not-started"
	case InProgress:
		return "in-progress"
	case Done:
		return "done"
	case Reopened:
		return "reopened"
	default:
		return "unknown"
	}
}

// Signal classifies the target status of a status change.
type Signal int

const (
	ToOther Signal = iota
	ToInProgress
	ToDone
)

type effect uint8

const (
	markStart effect = 1 << iota
	markComplete
	markReopen
)

type transition struct {
	next   State
	effect effect
}

// transitions is the complete rule set of the replay. Reopened absorbs every
// signal: once an issue regressed from done no further completions or
// reopens are counted for it.
var transitions = map[State]map[Signal]transition{
	NotStarted: {
		ToOther:      {NotStarted, 0},
		ToInProgress: {InProgress, markStart},
		ToDone:       {Done, markComplete},
	},
	InProgress: {
		ToOther:      {InProgress, 0},
		ToInProgress: {InProgress, markStart},
		ToDone:       {Done, markComplete},
	},
	Done: {
		ToOther:      {Reopened, markReopen},
		ToInProgress: {Reopened, markReopen | markStart},
		ToDone:       {Done, markComplete},
	},
	Reopened: {
		ToOther:      {Reopened, 0},
		ToInProgress: {Reopened, markStart},
		ToDone:       {Reopened, 0},
	},
}

// Answer is a three-valued result separating "no" from "no data".
type Answer int

const (
	Unknown Answer = iota
	No
	Yes
)

func (a Answer) String() string {
	switch a {
	case No:
		return "no"
	case Yes:
		return "yes"
	default:
		return "unknown"
	}
}

// Timeline is the outcome of replaying an issue's status changes.
type Timeline struct {
	// StatusEvents is the number of status changes replayed; zero means the
	// history is unknown rather than empty.
	StatusEvents int
	State        State

	FirstInProgress *time.Time
	FirstDone       *time.Time
	ReopenedAt      *time.Time

	// Completions counts transitions into a terminal status up to the first reopen.
	Completions int
}

// HasHistory reports whether any status change was replayed.
func (t Timeline) HasHistory() bool {
	return t.StatusEvents > 0
}

// Reopened reports whether the issue regressed from a terminal status.
func (t Timeline) Reopened() Answer {
	return t.answer(t.ReopenedAt != nil)
}

// Started reports whether the issue ever entered an in-progress status.
func (t Timeline) Started() Answer {
	return t.answer(t.FirstInProgress != nil)
}

// Completed reports whether the issue ever entered a terminal status.
func (t Timeline) Completed() Answer {
	return t.answer(t.FirstDone != nil)
}

func (t Timeline) answer(v bool) Answer {
	if !t.HasHistory() {
		return Unknown
	}
	if v {
		return Yes
	}
	return No
}

// Membership is the multiset of sprints an issue was attached to.
type Membership struct {
	// Counts maps a sprint id to the number of times the issue was seen attached to it.
	Counts map[int64]int
}

// Distinct returns the number of different sprints.
func (m Membership) Distinct() int {
	return len(m.Counts)
}

// IDs returns the distinct sprint ids in ascending order.
func (m Membership) IDs() []int64 {
	ids := make([]int64, 0, len(m.Counts))
	for id := range m.Counts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Contains reports whether the issue was ever in the sprint.
func (m Membership) Contains(id int64) bool {
	_, ok := m.Counts[id]
	return ok
}

// Field names of interest in the change log.
const (
	FieldStatus = "status"
	FieldSprint = "sprint"
)

// DefaultTerminalStatuses are the statuses meaning completed.
var DefaultTerminalStatuses = []string{"Done", "Closed", "Resolved"}

// DefaultInProgressMarkers match in-progress-like statuses by substring.
var DefaultInProgressMarkers = []string{"in progress", "in development"}

// Reconstructor answers lifecycle questions for a fixed status vocabulary.
type Reconstructor struct {
	terminal   map[string]struct{}
	inProgress []string
}

// New returns a Reconstructor. Terminal statuses match case-insensitively;
// in-progress markers match as case-insensitive substrings.
func New(terminal, inProgress []string) *Reconstructor {
	if len(terminal) == 0 {
		terminal = DefaultTerminalStatuses
	}
	if len(inProgress) == 0 {
		inProgress = DefaultInProgressMarkers
	}

	r := &Reconstructor{terminal: make(map[string]struct{}, len(terminal))}
	for _, s := range terminal {
		r.terminal[normalizeStatus(s)] = struct{}{}
	}
	for _, m := range inProgress {
		if m = normalizeStatus(m); m != "" {
			r.inProgress = append(r.inProgress, m)
		}
	}
	return r
}

// Default returns a Reconstructor with the default vocabulary.
func Default() *Reconstructor {
	return New(nil, nil)
}

func normalizeStatus(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// IsTerminal reports whether status means completed.
func (r *Reconstructor) IsTerminal(status string) bool {
	_, ok := r.terminal[normalizeStatus(status)]
	return ok
}

// IsInProgress reports whether status is in-progress-like.
func (r *Reconstructor) IsInProgress(status string) bool {
	s := normalizeStatus(status)
	for _, m := range r.inProgress {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// Classify maps a target status to its replay signal.
func (r *Reconstructor) Classify(status string) Signal {
	switch {
	case r.IsTerminal(status):
		return ToDone
	case r.IsInProgress(status):
		return ToInProgress
	default:
		return ToOther
	}
}

// Replay runs the state machine over the status changes in events. Events
// may arrive unordered and duplicated.
func (r *Reconstructor) Replay(events []models.ChangeEvent) Timeline {
	var tl Timeline
	state := NotStarted

	for _, e := range Sorted(events) {
		if !strings.EqualFold(e.Field, FieldStatus) {
			continue
		}
		tl.StatusEvents++

		tr := transitions[state][r.Classify(e.To)]
		at := e.At
		if tr.effect&markStart != 0 && tl.FirstInProgress == nil {
			tl.FirstInProgress = &at
		}
		if tr.effect&markComplete != 0 {
			tl.Completions++
			if tl.FirstDone == nil {
				tl.FirstDone = &at
			}
		}
		if tr.effect&markReopen != 0 {
			tl.ReopenedAt = &at
		}
		state = tr.next
	}

	tl.State = state
	return tl
}

// Membership merges the sprint ids stored on the issue with the ids seen in
// sprint changes of its history. Non-numeric sprint values are ignored.
func (r *Reconstructor) Membership(issue models.Issue, events []models.ChangeEvent) Membership {
	m := Membership{Counts: make(map[int64]int)}
	for _, id := range issue.SprintIDs {
		m.Counts[id]++
	}

	for _, e := range Sorted(events) {
		if !strings.EqualFold(e.Field, FieldSprint) {
			continue
		}
		before := make(map[int64]struct{})
		for _, id := range parseSprintIDs(e.From) {
			before[id] = struct{}{}
		}
		for _, id := range parseSprintIDs(e.To) {
			if _, ok := before[id]; ok {
				continue
			}
			m.Counts[id]++
		}
	}
	return m
}

func parseSprintIDs(v string) []int64 {
	var ids []int64
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// Sorted returns a copy of events in ascending time order with exact
// duplicates and zero-time events removed. Ties keep insertion order.
func Sorted(events []models.ChangeEvent) []models.ChangeEvent {
	out := make([]models.ChangeEvent, 0, len(events))
	seen := make(map[models.ChangeEvent]struct{}, len(events))
	for _, e := range events {
		if e.At.IsZero() {
			continue
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out
}
