// Package kpi derives the delivery KPIs from the issues, sprints and change
// history held in a Repository.
//
// The Engine is the single entry point. Each call to CalculateAllKPIs reads a
// fresh snapshot of the repository, computes every enabled KPI once per
// project and once for the requested scope, and returns a Document. Failures
// never escape: a KPI that cannot be computed is reported through its empty
// record and Document.Warnings.
package kpi

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danielolaszy/cadence/internal/labels"
	"github.com/danielolaszy/cadence/internal/lifecycle"
	"github.com/danielolaszy/cadence/internal/logging"
)

// Query selects the window and projects of a document.
type Query struct {
	// Days is the rolling window in days. Zero uses the configured default.
	Days int
	// Projects restricts the document to these project keys. Empty means all
	// projects known to the repository.
	Projects []string
}

// Engine computes KPI documents. It is safe for concurrent use.
type Engine struct {
	repo     Repository
	settings Settings
	labels   *labels.Table
	life     *lifecycle.Reconstructor
	now      func() time.Time
	log      *slog.Logger

	generation atomic.Uint64

	mu       sync.Mutex
	baseline *CycleTime
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLabels sets the work-category table.
func WithLabels(t *labels.Table) Option {
	return func(e *Engine) { e.labels = t }
}

// WithLogger replaces the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// NewEngine returns an Engine reading from repo. repo may be nil, in which
// case every document carries placeholders.
func NewEngine(repo Repository, settings Settings, opts ...Option) *Engine {
	e := &Engine{
		repo:     repo,
		settings: settings,
		life:     lifecycle.New(settings.TerminalStatuses, settings.InProgressStatuses),
		now:      time.Now,
		log:      logging.With("component", "kpi"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Settings returns the engine settings.
func (e *Engine) Settings() Settings {
	return e.settings
}

// CalculateAllKPIs computes the document for q.
func (e *Engine) CalculateAllKPIs(ctx context.Context, q Query) Document {
	now := e.now()
	doc := Document{
		GeneratedAt:      now,
		Generation:       e.generation.Add(1),
		Projects:         []string{},
		AnalysisPeriod:   e.analysisPeriod(now, q.Days),
		LabelsConfigured: e.labels != nil && len(e.labels.LabelsForProjects(nil)) > 0,
		KPIsByProject:    make(map[string]Records),
		Warnings:         make(map[string]string),
	}

	log := e.log.With("days", q.Days, "projects", q.Projects, "generation", doc.Generation)
	log.Info("calculating KPIs")

	if e.repo == nil {
		doc.KPIs = e.placeholders()
		for _, name := range e.enabled() {
			doc.Warnings[name] = ErrNoRepository.Error()
		}
		log.Error("cannot calculate KPIs", "error", ErrNoRepository)
		return doc
	}

	snap := newSnapshot(e.repo, e.life)
	doc.Projects = e.resolveProjects(ctx, q, &doc, log)

	for _, p := range doc.Projects {
		recs, errs := e.newCalculator(snap, now, q.Days, []string{p}, doc.Projects, log).records(ctx)
		doc.KPIsByProject[p] = recs
		for name, err := range errs {
			log.Error("failed to calculate KPI", "kpi", name, "project", p, "error", err)
			doc.Warnings[p+"/"+name] = err.Error()
		}
	}

	var scope []string
	if len(q.Projects) > 0 {
		scope = doc.Projects
	}
	direct, errs := e.newCalculator(snap, now, q.Days, scope, doc.Projects, log).records(ctx)
	doc.KPIs = e.aggregate(direct, errs, &doc, log)

	stats, err := e.repo.Stats(ctx)
	if err != nil {
		log.Error("failed to get repository stats", "error", err)
		doc.Warnings["database_stats"] = err.Error()
	} else {
		doc.DatabaseStats = stats
	}

	if q.Days <= 0 && len(q.Projects) == 0 && errs[NameCycleTime] == nil && direct.CycleTime != nil {
		e.mu.Lock()
		e.baseline = direct.CycleTime
		e.mu.Unlock()
	}

	if len(doc.Warnings) == 0 {
		doc.Warnings = nil
	}
	log.Info("KPIs calculated", "projects_analyzed", len(doc.Projects))
	return doc
}

// aggregate picks, per KPI, between the direct recompute and the
// combination of per-project records.
func (e *Engine) aggregate(direct Records, errs map[string]error, doc *Document, log *slog.Logger) Records {
	out := direct
	var combined *Records

	for _, name := range e.enabled() {
		strategy, reason := selectAggregation(errs[name])
		if strategy == aggregateDirect {
			log.Debug("aggregation selected", "kpi", name, "strategy", strategy, "reason", reason)
			continue
		}

		log.Warn("aggregation selected", "kpi", name, "strategy", strategy, "reason", reason)
		if combined == nil {
			c := Combine(doc.KPIsByProject, doc.Projects, e.baselineCycleTime(), e.settings)
			combined = &c
		}
		out.take(name, *combined)
		doc.Warnings[name] = reason + "; combined from per-project records"
	}
	return out
}

func (e *Engine) baselineCycleTime() *CycleTime {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.baseline
}

// resolveProjects returns the known projects, restricted to q.Projects when
// given. When the repository cannot list projects the requested ones are
// used as they are.
func (e *Engine) resolveProjects(ctx context.Context, q Query, doc *Document, log *slog.Logger) []string {
	known, err := e.repo.ListProjects(ctx)
	if err != nil {
		log.Error("failed to list projects", "error", err)
		doc.Warnings["projects"] = err.Error()
		return dedupe(q.Projects)
	}
	if len(q.Projects) == 0 {
		return append([]string{}, known...)
	}

	want := make(map[string]struct{}, len(q.Projects))
	for _, p := range q.Projects {
		want[p] = struct{}{}
	}
	out := []string{}
	for _, p := range known {
		if _, ok := want[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

func (e *Engine) newCalculator(snap *snapshot, now time.Time, days int, projects, known []string, log *slog.Logger) *calculator {
	return &calculator{
		snap:     snap,
		settings: e.settings,
		labels:   e.labels,
		life:     e.life,
		log:      log,
		now:      now,
		days:     days,
		projects: projects,
		known:    known,
	}
}

func (e *Engine) analysisPeriod(now time.Time, days int) AnalysisPeriod {
	p := AnalysisPeriod{
		Days:               days,
		Custom:             days > 0,
		End:                now,
		SprintLookback:     e.settings.SprintLookback,
		ReopenedWindowDays: reopenedWindow(e.settings.ReopenedStories, days),
	}
	if !p.Custom {
		p.Days = e.settings.DefaultDays
	}
	p.Start = now.AddDate(0, 0, -p.Days)
	return p
}

// enabled lists the enabled KPI names in document order.
func (e *Engine) enabled() []string {
	s := e.settings
	flags := map[string]bool{
		NameSprintPredictability: s.SprintPredictability.Enabled,
		NameStorySpillover:       s.StorySpillover.Enabled,
		NameCycleTime:            s.CycleTime.Enabled,
		NameWorkMix:              s.WorkMix.Enabled,
		NameUnplannedWork:        s.UnplannedWork.Enabled,
		NameReopenedStories:      s.ReopenedStories.Enabled,
	}
	var out []string
	for _, name := range Names {
		if flags[name] {
			out = append(out, name)
		}
	}
	return out
}

func (e *Engine) placeholders() Records {
	s := e.settings
	var r Records
	if s.SprintPredictability.Enabled {
		r.SprintPredictability = EmptySprintPredictability()
	}
	if s.StorySpillover.Enabled {
		r.StorySpillover = EmptyStorySpillover()
	}
	if s.CycleTime.Enabled {
		r.CycleTime = EmptyCycleTime()
	}
	if s.WorkMix.Enabled {
		r.WorkMix = EmptyWorkMix()
	}
	if s.UnplannedWork.Enabled {
		r.UnplannedWork = EmptyUnplannedWork()
	}
	if s.ReopenedStories.Enabled {
		r.ReopenedStories = EmptyReopenedStories()
	}
	return r
}

// ProjectKeys splits comma-separated values into trimmed, upper-cased
// project keys. Blank entries are dropped.
func ProjectKeys(values []string) []string {
	var keys []string
	for _, v := range values {
		for _, p := range strings.Split(v, ",") {
			if p = strings.ToUpper(strings.TrimSpace(p)); p != "" {
				keys = append(keys, p)
			}
		}
	}
	return keys
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := []string{}
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
