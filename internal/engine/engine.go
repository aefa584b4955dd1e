package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"siteplan/internal/config"
	"siteplan/internal/domain"
	"siteplan/internal/events"
	"siteplan/internal/repo"
	"siteplan/internal/schedule"
)

type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Events  events.Writer
	Config  *config.Config
	Weather WeatherProvider
	Now     func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	r := repo.Repo{DB: db}
	return Engine{
		DB:      db,
		Repo:    r,
		Events:  events.Writer{DB: db},
		Config:  cfg,
		Weather: StoredWeatherProvider{Repo: r},
		Now:     time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) weather() WeatherProvider {
	if e.Weather != nil {
		return e.Weather
	}
	return StoredWeatherProvider{Repo: e.Repo}
}

// schedulingConfig resolves the effective config for a project: the injected
// config if set, else the stored project config, else defaults.
func (e Engine) schedulingConfig(ctx context.Context, projectID string) (*config.Config, error) {
	if e.Config != nil {
		return e.Config, nil
	}
	cfg, err := e.Repo.GetProjectConfig(ctx, projectID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return config.Default(projectID), nil
		}
		return nil, err
	}
	return cfg, nil
}

// InitProject creates a project row with its default scheduling config.
func (e Engine) InitProject(ctx context.Context, projectID, name, locationID, description, actorID string, plannedStart *string) (domain.Project, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	p := domain.Project{
		ID:               projectID,
		Name:             name,
		Status:           "active",
		LocationID:       locationID,
		PlannedStartDate: plannedStart,
		Description:      description,
		CreatedAt:        e.now().UTC().Format(time.RFC3339),
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO projects(id,name,status,location_id,planned_start_date,description,created_at) VALUES (?,?,?,?,?,?,?)`,
		p.ID, p.Name, p.Status, nullable(p.LocationID), p.PlannedStartDate, nullable(p.Description), p.CreatedAt); err != nil {
		return domain.Project{}, fmt.Errorf("insert project: %w", err)
	}
	cfg := config.Default(p.ID)
	cfg.Project.LocationID = locationID
	if err := e.Repo.UpsertProjectConfigTx(ctx, tx, p.ID, cfg); err != nil {
		return domain.Project{}, fmt.Errorf("insert project config: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.ProjectInit, p.ID, "project", p.ID, actorID, events.EventPayload{"status": p.Status}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// GenerateOptions are parameters for generating an initial schedule. With
// neither UseTemplates nor FromJobs the default phase plan is used.
type GenerateOptions struct {
	StartDate          string // RFC3339 or yyyy-mm-dd; defaults to planned start, then now
	UseTemplates       bool
	FromJobs           bool
	IncludeWeatherData bool
	ActorID            string
}

// GenerateSchedule lays out a fresh task list sequentially from the start
// date and persists tasks, dependencies and history in one transaction.
func (e Engine) GenerateSchedule(ctx context.Context, projectID string, opts GenerateOptions) ([]domain.Task, error) {
	if opts.UseTemplates && opts.FromJobs {
		return nil, errors.New("use-templates and from-jobs are mutually exclusive")
	}
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	cfg, err := e.schedulingConfig(ctx, projectID)
	if err != nil {
		return nil, err
	}
	start, err := e.resolveStart(opts.StartDate, p)
	if err != nil {
		return nil, err
	}

	nowStr := e.now().UTC().Format(time.RFC3339)
	var tasks []domain.Task
	var deps []domain.TaskDependency

	switch {
	case opts.UseTemplates:
		tasks, deps, err = e.tasksFromTemplates(ctx, projectID, nowStr, cfg)
	case opts.FromJobs:
		tasks, err = e.tasksFromJobs(ctx, projectID, nowStr, cfg)
	default:
		tasks = e.tasksFromPhases(projectID, nowStr, cfg)
	}
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, errors.New("nothing to schedule")
	}

	// Sequential layout: each task starts where the previous one ended.
	cursor := start
	for i := range tasks {
		days := schedule.DurationDays(tasks[i].EstimatedDuration, cfg.Scheduling.DefaultDurationMinutes, cfg.Scheduling.WorkdayMinutes)
		s := cursor.Format(time.RFC3339)
		end := cursor.AddDate(0, 0, days)
		en := end.Format(time.RFC3339)
		tasks[i].ScheduledStart = &s
		tasks[i].ScheduledEnd = &en
		cursor = end
	}

	if opts.IncludeWeatherData {
		tasks, err = e.applyWeather(ctx, p, cfg, tasks)
		if err != nil {
			return nil, err
		}
	}

	optsJSON, _ := json.Marshal(opts)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	for _, t := range tasks {
		if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
			return nil, fmt.Errorf("insert task %s: %w", t.Name, err)
		}
	}
	for _, d := range deps {
		if err := e.Repo.InsertDependencyTx(ctx, tx, d); err != nil {
			return nil, fmt.Errorf("insert dependency: %w", err)
		}
	}
	if err := e.Repo.InsertHistoryTx(ctx, tx, domain.SchedulingHistory{
		ID:          uuid.New().String(),
		ProjectID:   projectID,
		Operation:   "generate",
		OptionsJSON: string(optsJSON),
		TaskCount:   len(tasks),
		CreatedAt:   nowStr,
	}); err != nil {
		return nil, err
	}
	if err := e.Events.Append(ctx, tx, events.ScheduleGenerated, projectID, "schedule", projectID, opts.ActorID, events.EventPayload{
		"task_count": len(tasks),
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (e Engine) resolveStart(explicit string, p domain.Project) (time.Time, error) {
	if explicit != "" {
		return parseWhen(explicit)
	}
	if p.PlannedStartDate != nil && *p.PlannedStartDate != "" {
		return parseWhen(*p.PlannedStartDate)
	}
	return e.now().UTC().Truncate(24 * time.Hour), nil
}

func parseWhen(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want RFC3339 or yyyy-mm-dd", s)
	}
	return t.UTC(), nil
}

func (e Engine) tasksFromTemplates(ctx context.Context, projectID, nowStr string, cfg *config.Config) ([]domain.Task, []domain.TaskDependency, error) {
	templates, err := e.Repo.ListTemplates(ctx)
	if err != nil {
		return nil, nil, err
	}
	if len(templates) == 0 {
		return nil, nil, errors.New("no task templates defined")
	}
	idByName := make(map[string]string, len(templates))
	var tasks []domain.Task
	for _, tmpl := range templates {
		tmplID := tmpl.ID
		id := uuid.NewSHA1(uuid.NameSpaceOID, []byte(projectID+"|"+tmpl.Name+"|"+nowStr)).String()
		idByName[tmpl.Name] = id
		duration := tmpl.EstimatedDuration
		if duration <= 0 {
			duration = cfg.Scheduling.DefaultDurationMinutes
		}
		tasks = append(tasks, domain.Task{
			ID:                id,
			ProjectID:         projectID,
			TemplateID:        &tmplID,
			Name:              tmpl.Name,
			Description:       tmpl.Description,
			Status:            domain.TaskNotStarted,
			EstimatedDuration: duration,
			CreatedAt:         nowStr,
			UpdatedAt:         nowStr,
		})
	}
	// Dependency edges come from each template's predecessor names, mapped
	// to the freshly generated task ids. Unknown names are skipped.
	var deps []domain.TaskDependency
	for _, tmpl := range templates {
		if tmpl.PredecessorsJSON == nil || *tmpl.PredecessorsJSON == "" {
			continue
		}
		var predNames []string
		if err := json.Unmarshal([]byte(*tmpl.PredecessorsJSON), &predNames); err != nil {
			return nil, nil, fmt.Errorf("template %s predecessors: %w", tmpl.Name, err)
		}
		for _, name := range predNames {
			predID, ok := idByName[name]
			if !ok {
				continue
			}
			deps = append(deps, domain.TaskDependency{
				ID:            uuid.New().String(),
				ProjectID:     projectID,
				PredecessorID: predID,
				SuccessorID:   idByName[tmpl.Name],
				Type:          domain.DepFinishToStart,
				CreatedAt:     nowStr,
			})
		}
	}
	// Predecessor lists can name each other; reject a cyclic template set
	// before anything is inserted.
	g, err := schedule.BuildGraph(tasks, deps)
	if err != nil {
		return nil, nil, err
	}
	if _, err := g.Sequence(); err != nil {
		return nil, nil, err
	}
	return tasks, deps, nil
}

func (e Engine) tasksFromJobs(ctx context.Context, projectID, nowStr string, cfg *config.Config) ([]domain.Task, error) {
	jobs, err := e.Repo.ListJobs(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, errors.New("no jobs to schedule")
	}
	var tasks []domain.Task
	for _, j := range jobs {
		jobID := j.ID
		days := 1
		if j.ScheduledStartDate != nil && j.ScheduledEndDate != nil {
			s, err1 := parseWhen(*j.ScheduledStartDate)
			en, err2 := parseWhen(*j.ScheduledEndDate)
			if err1 == nil && err2 == nil && en.After(s) {
				days = int(en.Sub(s).Hours() / 24)
				if days < 1 {
					days = 1
				}
			}
		}
		tasks = append(tasks, domain.Task{
			ID:                uuid.NewSHA1(uuid.NameSpaceOID, []byte(projectID+"|"+j.Name+"|"+nowStr)).String(),
			ProjectID:         projectID,
			JobID:             &jobID,
			Name:              j.Name,
			Description:       j.Description,
			Status:            domain.TaskNotStarted,
			EstimatedDuration: days * workdayMinutes(cfg),
			CreatedAt:         nowStr,
			UpdatedAt:         nowStr,
		})
	}
	return tasks, nil
}

func (e Engine) tasksFromPhases(projectID, nowStr string, cfg *config.Config) []domain.Task {
	var tasks []domain.Task
	for _, phase := range cfg.Scheduling.DefaultPhases {
		tasks = append(tasks, domain.Task{
			ID:                uuid.NewSHA1(uuid.NameSpaceOID, []byte(projectID+"|"+phase+"|"+nowStr)).String(),
			ProjectID:         projectID,
			Name:              phase,
			Status:            domain.TaskNotStarted,
			EstimatedDuration: cfg.Scheduling.DefaultPhaseDays * workdayMinutes(cfg),
			CreatedAt:         nowStr,
			UpdatedAt:         nowStr,
		})
	}
	return tasks
}

// workdayMinutes is the project's workday length, falling back to the
// package default when the config carries no value.
func workdayMinutes(cfg *config.Config) int {
	if cfg.Scheduling.WorkdayMinutes > 0 {
		return cfg.Scheduling.WorkdayMinutes
	}
	return schedule.WorkdayMinutes
}

// OptimizeOptions select the optimization strategies. All default off; a call
// with the zero value only re-lays tasks against their predecessors.
type OptimizeOptions struct {
	PrioritizeByDeadline     bool
	PrioritizeByDependencies bool
	BalanceResourceLoad      bool
	RespectConstraints       bool
	ConsiderWeather          bool
	ActorID                  string
}

// OptimizeSchedule re-times every task of the project under the requested
// strategies, then detects conflicts, and commits the new schedule, the
// refreshed conflict set and a history row atomically.
func (e Engine) OptimizeSchedule(ctx context.Context, projectID string, opts OptimizeOptions) ([]domain.Task, error) {
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	cfg, err := e.schedulingConfig(ctx, projectID)
	if err != nil {
		return nil, err
	}
	tasks, deps, assignments, constraints, err := e.loadSnapshot(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, errors.New("no tasks to optimize")
	}

	// A cyclic dependency set can never be laid out; reject it before the
	// walk, whatever the strategies, so nothing is written.
	cycleCheck, err := schedule.BuildGraph(tasks, deps)
	if err != nil {
		return nil, err
	}
	if _, err := cycleCheck.Sequence(); err != nil {
		return nil, err
	}

	order := append([]domain.Task(nil), tasks...)
	if opts.PrioritizeByDeadline {
		sort.SliceStable(order, func(i, j int) bool {
			ei, oki := scheduledEnd(order[i])
			ej, okj := scheduledEnd(order[j])
			if oki != okj {
				return oki // scheduled tasks first
			}
			return ei.Before(ej)
		})
	}
	if opts.PrioritizeByDependencies {
		// Dependency ordering is applied last and wins over deadline order.
		g, err := schedule.BuildGraph(order, deps)
		if err != nil {
			return nil, err
		}
		seq, err := g.Sequence()
		if err != nil {
			return nil, err
		}
		byID := make(map[string]domain.Task, len(order))
		for _, t := range order {
			byID[t.ID] = t
		}
		order = order[:0]
		for _, id := range seq {
			order = append(order, byID[id])
		}
	}

	predsOf := make(map[string][]string)
	for _, d := range deps {
		if d.Type != domain.DepFinishToStart {
			continue
		}
		predsOf[d.SuccessorID] = append(predsOf[d.SuccessorID], d.PredecessorID)
	}
	resourcesOf := make(map[string][]string)
	allocOf := make(map[string]map[string]int)
	for _, a := range assignments {
		resourcesOf[a.TaskID] = append(resourcesOf[a.TaskID], a.ResourceID)
		if allocOf[a.TaskID] == nil {
			allocOf[a.TaskID] = make(map[string]int)
		}
		allocOf[a.TaskID][a.ResourceID] = a.AllocationPercentage
	}
	constraintsOf := make(map[string][]domain.SchedulingConstraint)
	for _, c := range constraints {
		constraintsOf[c.TaskID] = append(constraintsOf[c.TaskID], c)
	}

	projectStart, err := e.resolveStart("", p)
	if err != nil {
		return nil, err
	}

	// The ledger starts empty and fills as the walk commits bookings, so
	// each task sees the occupancy produced by everything placed before it.
	ledger := schedule.NewLedger(nil)
	ends := make(map[string]time.Time, len(order))
	updated := make(map[string]domain.Task, len(order))

	for _, t := range order {
		start := projectStart
		if t.ScheduledStart != nil {
			if s, err := time.Parse(time.RFC3339, *t.ScheduledStart); err == nil {
				start = s
			}
		}
		for _, pred := range predsOf[t.ID] {
			if end, ok := ends[pred]; ok {
				if end.After(start) {
					start = end
				}
				continue
			}
			if pt, ok := updated[pred]; ok {
				if end, ok := scheduledEnd(pt); ok && end.After(start) {
					start = end
				}
			}
		}
		if opts.BalanceResourceLoad {
			if latest := ledger.LatestEnd(resourcesOf[t.ID]); latest.After(start) {
				start = latest
			}
		}
		if opts.RespectConstraints {
			for _, c := range constraintsOf[t.ID] {
				cd, err := time.Parse(time.RFC3339, c.ConstraintDate)
				if err != nil {
					return nil, fmt.Errorf("constraint %s: invalid date %q", c.ID, c.ConstraintDate)
				}
				switch c.Type {
				case domain.ConstraintMustStartOn:
					start = cd
				case domain.ConstraintNotEarlierThan:
					if cd.After(start) {
						start = cd
					}
				}
			}
		}

		days := schedule.DurationDays(t.EstimatedDuration, cfg.Scheduling.DefaultDurationMinutes, cfg.Scheduling.WorkdayMinutes)
		end := start.AddDate(0, 0, days)
		s := start.Format(time.RFC3339)
		en := end.Format(time.RFC3339)
		t.ScheduledStart = &s
		t.ScheduledEnd = &en
		ends[t.ID] = end
		updated[t.ID] = t

		for _, rid := range resourcesOf[t.ID] {
			ledger.Book(rid, schedule.Booking{TaskID: t.ID, Start: start, End: end, Allocation: allocOf[t.ID][rid]})
		}
	}

	result := make([]domain.Task, 0, len(order))
	for _, t := range order {
		result = append(result, updated[t.ID])
	}

	if opts.ConsiderWeather {
		result, err = e.applyWeather(ctx, p, cfg, result)
		if err != nil {
			return nil, err
		}
	}

	conflicts := e.buildConflicts(projectID, result, deps, rebuiltAssignments(assignments, result), constraints)

	nowStr := e.now().UTC().Format(time.RFC3339)
	optsJSON, _ := json.Marshal(opts)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	for i := range result {
		result[i].UpdatedAt = nowStr
		if err := e.Repo.UpdateTaskScheduleTx(ctx, tx, result[i]); err != nil {
			return nil, fmt.Errorf("update task %s: %w", result[i].ID, err)
		}
	}
	if err := e.writeConflictsTx(ctx, tx, projectID, conflicts, nowStr); err != nil {
		return nil, err
	}
	if err := e.Repo.InsertHistoryTx(ctx, tx, domain.SchedulingHistory{
		ID:            uuid.New().String(),
		ProjectID:     projectID,
		Operation:     "optimize",
		OptionsJSON:   string(optsJSON),
		TaskCount:     len(result),
		ConflictCount: len(conflicts),
		CreatedAt:     nowStr,
	}); err != nil {
		return nil, err
	}
	if err := e.Events.Append(ctx, tx, events.ScheduleOptimized, projectID, "schedule", projectID, opts.ActorID, events.EventPayload{
		"task_count":     len(result),
		"conflict_count": len(conflicts),
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return result, nil
}

// rebuiltAssignments re-times assignment intervals to the new task schedule
// so conflict detection sees the bookings the optimizer just committed.
func rebuiltAssignments(assignments []domain.ResourceAssignment, tasks []domain.Task) []domain.ResourceAssignment {
	byID := make(map[string]domain.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}
	out := make([]domain.ResourceAssignment, 0, len(assignments))
	for _, a := range assignments {
		if t, ok := byID[a.TaskID]; ok && t.ScheduledStart != nil && t.ScheduledEnd != nil {
			a.Start = *t.ScheduledStart
			a.End = *t.ScheduledEnd
		}
		out = append(out, a)
	}
	return out
}

func scheduledEnd(t domain.Task) (time.Time, bool) {
	if t.ScheduledEnd == nil {
		return time.Time{}, false
	}
	end, err := time.Parse(time.RFC3339, *t.ScheduledEnd)
	if err != nil {
		return time.Time{}, false
	}
	return end, true
}

func (e Engine) loadSnapshot(ctx context.Context, projectID string) ([]domain.Task, []domain.TaskDependency, []domain.ResourceAssignment, []domain.SchedulingConstraint, error) {
	tasks, err := e.Repo.ListTasks(ctx, projectID)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("load tasks: %w", err)
	}
	deps, err := e.Repo.ListDependencies(ctx, projectID)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("load dependencies: %w", err)
	}
	assignments, err := e.Repo.ListAssignments(ctx, projectID)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("load assignments: %w", err)
	}
	constraints, err := e.Repo.ListConstraints(ctx, projectID)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("load constraints: %w", err)
	}
	return tasks, deps, assignments, constraints, nil
}

// applyWeather runs the weather simulator over the scheduled tasks and folds
// its adjustments back into the task list.
func (e Engine) applyWeather(ctx context.Context, p domain.Project, cfg *config.Config, tasks []domain.Task) ([]domain.Task, error) {
	rules, err := e.Repo.ListWeatherRules(ctx)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return tasks, nil
	}
	locationID := cfg.Project.LocationID
	if locationID == "" {
		locationID = p.LocationID
	}
	if locationID == "" {
		return tasks, nil
	}
	windowStart, windowEnd, ok := scheduleWindow(tasks)
	if !ok {
		return tasks, nil
	}
	obs, err := e.weather().Forecast(ctx, locationID, windowStart.Format("2006-01-02"), windowEnd.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("weather forecast: %w", err)
	}
	adjustments := schedule.SimulateWeather(tasks, rules, obs)
	if len(adjustments) == 0 {
		return tasks, nil
	}
	adjByTask := make(map[string]schedule.WeatherAdjustment, len(adjustments))
	for _, adj := range adjustments {
		adjByTask[adj.TaskID] = adj
	}
	out := make([]domain.Task, len(tasks))
	for i, t := range tasks {
		if adj, ok := adjByTask[t.ID]; ok {
			if adj.Cancelled {
				t.Status = domain.TaskCancelled
			} else {
				en := adj.NewEnd.Format(time.RFC3339)
				t.ScheduledEnd = &en
				t.Status = domain.TaskDelayed
			}
		}
		out[i] = t
	}
	return out, nil
}

// scheduleWindow is the [earliest start, latest end] span over scheduled
// tasks; ok is false when nothing is scheduled.
func scheduleWindow(tasks []domain.Task) (time.Time, time.Time, bool) {
	var start, end time.Time
	found := false
	for _, t := range tasks {
		if t.ScheduledStart == nil || t.ScheduledEnd == nil {
			continue
		}
		s, err1 := time.Parse(time.RFC3339, *t.ScheduledStart)
		en, err2 := time.Parse(time.RFC3339, *t.ScheduledEnd)
		if err1 != nil || err2 != nil {
			continue
		}
		if !found || s.Before(start) {
			start = s
		}
		if !found || en.After(end) {
			end = en
		}
		found = true
	}
	return start, end, found
}

// DetectConflicts scans the committed schedule for dependency violations,
// resource overallocation and constraint violations, and replaces the
// project's unresolved conflicts with the fresh set. Resolved and ignored
// conflicts are kept.
func (e Engine) DetectConflicts(ctx context.Context, projectID, actorID string) ([]domain.SchedulingConflict, error) {
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	tasks, deps, assignments, constraints, err := e.loadSnapshot(ctx, projectID)
	if err != nil {
		return nil, err
	}
	conflicts := e.buildConflicts(projectID, tasks, deps, assignments, constraints)

	nowStr := e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	if err := e.writeConflictsTx(ctx, tx, projectID, conflicts, nowStr); err != nil {
		return nil, err
	}
	if err := e.Events.Append(ctx, tx, events.ConflictsDetected, projectID, "schedule", projectID, actorID, events.EventPayload{
		"conflict_count": len(conflicts),
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return conflicts, nil
}

func (e Engine) writeConflictsTx(ctx context.Context, tx *sql.Tx, projectID string, conflicts []domain.SchedulingConflict, nowStr string) error {
	if err := e.Repo.DeleteUnresolvedConflictsTx(ctx, tx, projectID); err != nil {
		return fmt.Errorf("clear unresolved conflicts: %w", err)
	}
	for i := range conflicts {
		conflicts[i].ID = uuid.New().String()
		conflicts[i].ProjectID = projectID
		conflicts[i].ResolutionStatus = domain.ResolutionUnresolved
		conflicts[i].CreatedAt = nowStr
		conflicts[i].UpdatedAt = nowStr
		if err := e.Repo.InsertConflictTx(ctx, tx, conflicts[i]); err != nil {
			return fmt.Errorf("insert conflict: %w", err)
		}
	}
	return nil
}

// buildConflicts runs the three detection scans over an in-memory snapshot.
// Scan outputs are concatenated without cross-scan deduplication.
func (e Engine) buildConflicts(projectID string, tasks []domain.Task, deps []domain.TaskDependency, assignments []domain.ResourceAssignment, constraints []domain.SchedulingConstraint) []domain.SchedulingConflict {
	byID := make(map[string]domain.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}
	var out []domain.SchedulingConflict

	// Dependency violations: predecessor ends after successor starts.
	for _, d := range deps {
		if d.Type != domain.DepFinishToStart {
			continue
		}
		pred, okP := byID[d.PredecessorID]
		succ, okS := byID[d.SuccessorID]
		if !okP || !okS || pred.ScheduledEnd == nil || succ.ScheduledStart == nil {
			continue
		}
		predEnd, err1 := time.Parse(time.RFC3339, *pred.ScheduledEnd)
		succStart, err2 := time.Parse(time.RFC3339, *succ.ScheduledStart)
		if err1 != nil || err2 != nil {
			continue
		}
		if predEnd.After(succStart) {
			out = append(out, domain.SchedulingConflict{
				Type: domain.ConflictDependencyViolation,
				Description: fmt.Sprintf("task %q starts %s, before its predecessor %q finishes %s",
					succ.Name, succStart.Format("2006-01-02"), pred.Name, predEnd.Format("2006-01-02")),
				AffectedTasks: []string{pred.ID, succ.ID},
			})
		}
	}

	// Resource overallocation: overlapping bookings on one resource.
	ledger := schedule.NewLedger(assignments)
	for _, rid := range ledger.ResourceIDs() {
		for _, ov := range ledger.Overlaps(rid) {
			out = append(out, domain.SchedulingConflict{
				Type: domain.ConflictResourceOverallocated,
				Description: fmt.Sprintf("resource %s is booked for %s and %s at the same time (%s to %s)",
					rid, taskName(byID, ov.First.TaskID), taskName(byID, ov.Second.TaskID),
					ov.Second.Start.Format("2006-01-02"), minTime(ov.First.End, ov.Second.End).Format("2006-01-02")),
				AffectedTasks:     []string{ov.First.TaskID, ov.Second.TaskID},
				AffectedResources: []string{rid},
			})
		}
	}

	// Constraint violations.
	violations, err := schedule.ValidateConstraints(byID, constraints)
	if err == nil {
		for _, v := range violations {
			out = append(out, domain.SchedulingConflict{
				Type:          domain.ConflictConstraintViolation,
				Description:   v.Description,
				AffectedTasks: []string{v.TaskID},
			})
		}
	}
	return out
}

func taskName(byID map[string]domain.Task, id string) string {
	if t, ok := byID[id]; ok {
		return fmt.Sprintf("%q", t.Name)
	}
	return id
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

// ResolveConflict sets a conflict's resolution status.
func (e Engine) ResolveConflict(ctx context.Context, id, status, note, actorID string) (domain.SchedulingConflict, error) {
	switch status {
	case domain.ResolutionResolved, domain.ResolutionIgnored, domain.ResolutionUnresolved:
	default:
		return domain.SchedulingConflict{}, fmt.Errorf("invalid resolution status %q", status)
	}
	c, err := e.Repo.GetConflict(ctx, id)
	if err != nil {
		return domain.SchedulingConflict{}, err
	}
	nowStr := e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.SchedulingConflict{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateConflictResolutionTx(ctx, tx, id, status, note, nowStr); err != nil {
		return domain.SchedulingConflict{}, err
	}
	if err := e.Events.Append(ctx, tx, events.ConflictResolved, c.ProjectID, "conflict", id, actorID, events.EventPayload{
		"status": status,
	}); err != nil {
		return domain.SchedulingConflict{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.SchedulingConflict{}, err
	}
	c.ResolutionStatus = status
	c.ResolutionNote = note
	c.UpdatedAt = nowStr
	return c, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
