package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"siteplan/internal/config"
	"siteplan/internal/db"
	"siteplan/internal/domain"
	"siteplan/internal/engine"
	"siteplan/internal/migrate"
	"siteplan/internal/schedule"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("proj-1")
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	if _, err := eng.InitProject(ctx, "proj-1", "Test build", "", "", "tester", nil); err != nil {
		t.Fatalf("init project: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func mustParse(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return ts
}

func TestGenerateDefaultPhases(t *testing.T) {
	env := newTestEnv(t)
	tasks, err := env.Engine.GenerateSchedule(env.Ctx, "proj-1", engine.GenerateOptions{
		StartDate: "2026-03-02",
		ActorID:   "tester",
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	phases := config.Default("proj-1").Scheduling.DefaultPhases
	if len(tasks) != len(phases) {
		t.Fatalf("got %d tasks, want %d", len(tasks), len(phases))
	}
	// Sequential layout: each task starts where the previous one ends.
	for i, task := range tasks {
		if task.Name != phases[i] {
			t.Fatalf("task %d = %q, want %q", i, task.Name, phases[i])
		}
		if task.ScheduledStart == nil || task.ScheduledEnd == nil {
			t.Fatalf("task %q not scheduled", task.Name)
		}
		if i > 0 && *task.ScheduledStart != *tasks[i-1].ScheduledEnd {
			t.Fatalf("task %q starts %s, previous ends %s", task.Name, *task.ScheduledStart, *tasks[i-1].ScheduledEnd)
		}
	}
	start := mustParse(t, *tasks[0].ScheduledStart)
	end := mustParse(t, *tasks[0].ScheduledEnd)
	if days := int(end.Sub(start).Hours() / 24); days != 5 {
		t.Fatalf("phase span = %d days, want 5", days)
	}
	// Persisted too.
	stored, err := env.Engine.Repo.ListTasks(env.Ctx, "proj-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != len(phases) {
		t.Fatalf("stored %d tasks, want %d", len(stored), len(phases))
	}
}

func TestGenerateFromTemplatesCreatesDependencies(t *testing.T) {
	env := newTestEnv(t)
	now := "2026-03-01T00:00:00Z"
	preds := `["Foundation"]`
	templates := []domain.TaskTemplate{
		{ID: "tpl-found", Name: "Foundation", EstimatedDuration: 2 * 480, CreatedAt: now},
		{ID: "tpl-frame", Name: "Framing", EstimatedDuration: 3 * 480, PredecessorsJSON: &preds, CreatedAt: now},
	}
	for _, tmpl := range templates {
		if err := env.Engine.Repo.InsertTemplate(env.Ctx, tmpl); err != nil {
			t.Fatal(err)
		}
	}
	tasks, err := env.Engine.GenerateSchedule(env.Ctx, "proj-1", engine.GenerateOptions{
		StartDate:    "2026-03-02",
		UseTemplates: true,
		ActorID:      "tester",
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("got %d tasks, want 2", len(tasks))
	}
	deps, err := env.Engine.Repo.ListDependencies(env.Ctx, "proj-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(deps) != 1 {
		t.Fatalf("got %d dependencies, want 1", len(deps))
	}
	byName := map[string]domain.Task{}
	for _, task := range tasks {
		byName[task.Name] = task
	}
	if deps[0].PredecessorID != byName["Foundation"].ID || deps[0].SuccessorID != byName["Framing"].ID {
		t.Fatalf("dependency %s -> %s does not map Foundation -> Framing", deps[0].PredecessorID, deps[0].SuccessorID)
	}
}

func TestGenerateHonorsConfiguredWorkday(t *testing.T) {
	env := newTestEnv(t)
	// Half-length workdays: a one-default-workday estimate spans two days.
	env.Engine.Config.Scheduling.WorkdayMinutes = 240
	now := "2026-03-01T00:00:00Z"
	if err := env.Engine.Repo.InsertTemplate(env.Ctx, domain.TaskTemplate{
		ID: "tpl-found", Name: "Foundation", EstimatedDuration: 480, CreatedAt: now,
	}); err != nil {
		t.Fatal(err)
	}
	tasks, err := env.Engine.GenerateSchedule(env.Ctx, "proj-1", engine.GenerateOptions{
		StartDate:    "2026-03-02",
		UseTemplates: true,
		ActorID:      "tester",
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("got %d tasks, want 1", len(tasks))
	}
	start := mustParse(t, *tasks[0].ScheduledStart)
	end := mustParse(t, *tasks[0].ScheduledEnd)
	if days := int(end.Sub(start).Hours() / 24); days != 2 {
		t.Fatalf("span = %d days, want 2 with 240-minute workdays", days)
	}
}

func TestOptimizeRespectsDependencies(t *testing.T) {
	env := newTestEnv(t)
	tasks, err := env.Engine.GenerateSchedule(env.Ctx, "proj-1", engine.GenerateOptions{StartDate: "2026-03-02", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	// Chain the first three phases explicitly.
	for i := 0; i < 2; i++ {
		dep := domain.TaskDependency{
			ID:            tasks[i].ID + "-dep",
			ProjectID:     "proj-1",
			PredecessorID: tasks[i].ID,
			SuccessorID:   tasks[i+1].ID,
			Type:          domain.DepFinishToStart,
			CreatedAt:     "2026-03-01T00:00:00Z",
		}
		tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
		if err != nil {
			t.Fatal(err)
		}
		if err := env.Engine.Repo.InsertDependencyTx(env.Ctx, tx, dep); err != nil {
			t.Fatal(err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatal(err)
		}
	}
	optimized, err := env.Engine.OptimizeSchedule(env.Ctx, "proj-1", engine.OptimizeOptions{
		PrioritizeByDependencies: true,
		ActorID:                  "tester",
	})
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	ends := map[string]time.Time{}
	starts := map[string]time.Time{}
	for _, task := range optimized {
		starts[task.ID] = mustParse(t, *task.ScheduledStart)
		ends[task.ID] = mustParse(t, *task.ScheduledEnd)
	}
	// Every predecessor finishes no later than its successor starts.
	for i := 0; i < 2; i++ {
		if ends[tasks[i].ID].After(starts[tasks[i+1].ID]) {
			t.Fatalf("predecessor %s ends after successor %s starts", tasks[i].ID, tasks[i+1].ID)
		}
	}
}

func TestOptimizeRejectsCyclicDependencies(t *testing.T) {
	env := newTestEnv(t)
	tasks, err := env.Engine.GenerateSchedule(env.Ctx, "proj-1", engine.GenerateOptions{StartDate: "2026-03-02", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	// Two mutually dependent tasks.
	tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, pair := range [][2]int{{0, 1}, {1, 0}} {
		if err := env.Engine.Repo.InsertDependencyTx(env.Ctx, tx, domain.TaskDependency{
			ID:            tasks[pair[0]].ID + "-cycle",
			ProjectID:     "proj-1",
			PredecessorID: tasks[pair[0]].ID,
			SuccessorID:   tasks[pair[1]].ID,
			Type:          domain.DepFinishToStart,
			CreatedAt:     "2026-03-01T00:00:00Z",
		}); err != nil {
			t.Fatal(err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	// Default options must still refuse the cycle, not just the
	// dependency-ordering strategy.
	if _, err := env.Engine.OptimizeSchedule(env.Ctx, "proj-1", engine.OptimizeOptions{ActorID: "tester"}); !errors.Is(err, schedule.ErrCyclicDependency) {
		t.Fatalf("optimize error = %v, want cyclic dependency", err)
	}
	// Nothing committed: only the generation history row exists.
	history, err := env.Engine.Repo.ListHistory(env.Ctx, "proj-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 || history[0].Operation != "generate" {
		t.Fatalf("history = %+v, want only the generate row", history)
	}
}

func TestGenerateFromTemplatesRejectsCycle(t *testing.T) {
	env := newTestEnv(t)
	now := "2026-03-01T00:00:00Z"
	predFound := `["Framing"]`
	predFrame := `["Foundation"]`
	templates := []domain.TaskTemplate{
		{ID: "tpl-found", Name: "Foundation", EstimatedDuration: 2 * 480, PredecessorsJSON: &predFound, CreatedAt: now},
		{ID: "tpl-frame", Name: "Framing", EstimatedDuration: 3 * 480, PredecessorsJSON: &predFrame, CreatedAt: now},
	}
	for _, tmpl := range templates {
		if err := env.Engine.Repo.InsertTemplate(env.Ctx, tmpl); err != nil {
			t.Fatal(err)
		}
	}
	_, err := env.Engine.GenerateSchedule(env.Ctx, "proj-1", engine.GenerateOptions{
		StartDate:    "2026-03-02",
		UseTemplates: true,
		ActorID:      "tester",
	})
	if !errors.Is(err, schedule.ErrCyclicDependency) {
		t.Fatalf("generate error = %v, want cyclic dependency", err)
	}
	stored, err := env.Engine.Repo.ListTasks(env.Ctx, "proj-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 0 {
		t.Fatalf("stored %d tasks from a cyclic template set", len(stored))
	}
}

func TestOptimizeBalancesResourceLoad(t *testing.T) {
	env := newTestEnv(t)
	tasks, err := env.Engine.GenerateSchedule(env.Ctx, "proj-1", engine.GenerateOptions{StartDate: "2026-03-02", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.Repo.InsertResource(env.Ctx, domain.Resource{ID: "crew-1", Name: "Crew 1", IsActive: true, CreatedAt: "2026-03-01T00:00:00Z"}); err != nil {
		t.Fatal(err)
	}
	// Same crew on the first two tasks.
	for i := 0; i < 2; i++ {
		if err := env.Engine.Repo.InsertAssignment(env.Ctx, domain.ResourceAssignment{
			ID:                   tasks[i].ID + "-asg",
			ProjectID:            "proj-1",
			TaskID:               tasks[i].ID,
			ResourceID:           "crew-1",
			Start:                *tasks[i].ScheduledStart,
			End:                  *tasks[i].ScheduledEnd,
			AllocationPercentage: 100,
			CreatedAt:            "2026-03-01T00:00:00Z",
		}); err != nil {
			t.Fatal(err)
		}
	}
	optimized, err := env.Engine.OptimizeSchedule(env.Ctx, "proj-1", engine.OptimizeOptions{
		BalanceResourceLoad: true,
		ActorID:             "tester",
	})
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	byID := map[string]domain.Task{}
	for _, task := range optimized {
		byID[task.ID] = task
	}
	first, second := byID[tasks[0].ID], byID[tasks[1].ID]
	firstEnd := mustParse(t, *first.ScheduledEnd)
	secondStart := mustParse(t, *second.ScheduledStart)
	if firstEnd.After(secondStart) {
		t.Fatalf("crew double-booked: first ends %s, second starts %s", firstEnd, secondStart)
	}
}

func TestOptimizeRespectsConstraints(t *testing.T) {
	env := newTestEnv(t)
	tasks, err := env.Engine.GenerateSchedule(env.Ctx, "proj-1", engine.GenerateOptions{StartDate: "2026-03-02", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	floor := "2026-04-01T00:00:00Z"
	if err := env.Engine.Repo.InsertConstraint(env.Ctx, domain.SchedulingConstraint{
		ID:             "con-1",
		ProjectID:      "proj-1",
		TaskID:         tasks[0].ID,
		Type:           domain.ConstraintNotEarlierThan,
		ConstraintDate: floor,
		CreatedAt:      "2026-03-01T00:00:00Z",
	}); err != nil {
		t.Fatal(err)
	}
	optimized, err := env.Engine.OptimizeSchedule(env.Ctx, "proj-1", engine.OptimizeOptions{
		RespectConstraints: true,
		ActorID:            "tester",
	})
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	for _, task := range optimized {
		if task.ID == tasks[0].ID {
			if mustParse(t, *task.ScheduledStart).Before(mustParse(t, floor)) {
				t.Fatalf("task starts %s before constraint floor %s", *task.ScheduledStart, floor)
			}
			return
		}
	}
	t.Fatal("constrained task missing from result")
}

func TestDetectConflictsFindsOverlapAndIdempotent(t *testing.T) {
	env := newTestEnv(t)
	tasks, err := env.Engine.GenerateSchedule(env.Ctx, "proj-1", engine.GenerateOptions{StartDate: "2026-03-02", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.Repo.InsertResource(env.Ctx, domain.Resource{ID: "crew-1", Name: "Crew 1", IsActive: true, CreatedAt: "2026-03-01T00:00:00Z"}); err != nil {
		t.Fatal(err)
	}
	// Book the crew on two tasks for the same interval.
	for i := 0; i < 2; i++ {
		if err := env.Engine.Repo.InsertAssignment(env.Ctx, domain.ResourceAssignment{
			ID:                   tasks[i].ID + "-asg",
			ProjectID:            "proj-1",
			TaskID:               tasks[i].ID,
			ResourceID:           "crew-1",
			Start:                "2026-03-02T00:00:00Z",
			End:                  "2026-03-07T00:00:00Z",
			AllocationPercentage: 100,
			CreatedAt:            "2026-03-01T00:00:00Z",
		}); err != nil {
			t.Fatal(err)
		}
	}
	first, err := env.Engine.DetectConflicts(env.Ctx, "proj-1", "tester")
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	var overlaps int
	for _, c := range first {
		if c.Type == domain.ConflictResourceOverallocated {
			overlaps++
			if len(c.AffectedTasks) != 2 || len(c.AffectedResources) != 1 || c.AffectedResources[0] != "crew-1" {
				t.Fatalf("unexpected conflict shape: %+v", c)
			}
		}
	}
	if overlaps != 1 {
		t.Fatalf("got %d overlap conflicts, want 1", overlaps)
	}
	// Unchanged schedule: a second run yields a content-equal set.
	second, err := env.Engine.DetectConflicts(env.Ctx, "proj-1", "tester")
	if err != nil {
		t.Fatal(err)
	}
	if len(second) != len(first) {
		t.Fatalf("second run: %d conflicts, first run: %d", len(second), len(first))
	}
	for i := range first {
		if first[i].Type != second[i].Type || first[i].Description != second[i].Description {
			t.Fatalf("run mismatch at %d: %q vs %q", i, first[i].Description, second[i].Description)
		}
	}
	stored, err := env.Engine.Repo.ListConflicts(env.Ctx, "proj-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != len(second) {
		t.Fatalf("stored %d conflicts, want %d", len(stored), len(second))
	}
}

func TestDetectConflictsConstraintViolation(t *testing.T) {
	env := newTestEnv(t)
	tasks, err := env.Engine.GenerateSchedule(env.Ctx, "proj-1", engine.GenerateOptions{StartDate: "2026-03-02", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	// Require the first task to finish before it is scheduled to.
	if err := env.Engine.Repo.InsertConstraint(env.Ctx, domain.SchedulingConstraint{
		ID:             "con-1",
		ProjectID:      "proj-1",
		TaskID:         tasks[0].ID,
		Type:           domain.ConstraintMustFinishBy,
		ConstraintDate: "2026-03-03T00:00:00Z",
		CreatedAt:      "2026-03-01T00:00:00Z",
	}); err != nil {
		t.Fatal(err)
	}
	conflicts, err := env.Engine.DetectConflicts(env.Ctx, "proj-1", "tester")
	if err != nil {
		t.Fatal(err)
	}
	var found int
	for _, c := range conflicts {
		if c.Type == domain.ConflictConstraintViolation {
			found++
			if c.AffectedTasks[0] != tasks[0].ID {
				t.Fatalf("conflict references %s, want %s", c.AffectedTasks[0], tasks[0].ID)
			}
		}
	}
	if found != 1 {
		t.Fatalf("got %d constraint violations, want 1", found)
	}
}

func TestResolveConflictKeptAcrossDetection(t *testing.T) {
	env := newTestEnv(t)
	tasks, err := env.Engine.GenerateSchedule(env.Ctx, "proj-1", engine.GenerateOptions{StartDate: "2026-03-02", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.Repo.InsertConstraint(env.Ctx, domain.SchedulingConstraint{
		ID:             "con-1",
		ProjectID:      "proj-1",
		TaskID:         tasks[0].ID,
		Type:           domain.ConstraintMustFinishBy,
		ConstraintDate: "2026-03-03T00:00:00Z",
		CreatedAt:      "2026-03-01T00:00:00Z",
	}); err != nil {
		t.Fatal(err)
	}
	conflicts, err := env.Engine.DetectConflicts(env.Ctx, "proj-1", "tester")
	if err != nil || len(conflicts) == 0 {
		t.Fatalf("detect: %v (%d conflicts)", err, len(conflicts))
	}
	resolved, err := env.Engine.ResolveConflict(env.Ctx, conflicts[0].ID, domain.ResolutionIgnored, "accepted slip", "tester")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.ResolutionStatus != domain.ResolutionIgnored {
		t.Fatalf("status = %s", resolved.ResolutionStatus)
	}
	// Re-detection replaces only unresolved conflicts.
	again, err := env.Engine.DetectConflicts(env.Ctx, "proj-1", "tester")
	if err != nil {
		t.Fatal(err)
	}
	stored, err := env.Engine.Repo.ListConflicts(env.Ctx, "proj-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != len(again)+1 {
		t.Fatalf("stored %d conflicts, want %d fresh plus 1 ignored", len(stored), len(again))
	}
	var keptIgnored bool
	for _, c := range stored {
		if c.ID == conflicts[0].ID && c.ResolutionStatus == domain.ResolutionIgnored {
			keptIgnored = true
		}
	}
	if !keptIgnored {
		t.Fatal("ignored conflict was not kept across re-detection")
	}
}

func TestGenerateWithWeatherDelaysTask(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Config.Project.LocationID = "site_a"
	now := "2026-03-01T00:00:00Z"
	if err := env.Engine.Repo.InsertTemplate(env.Ctx, domain.TaskTemplate{
		ID: "tpl-roof", Name: "Roofing", EstimatedDuration: 3 * 480, CreatedAt: now,
	}); err != nil {
		t.Fatal(err)
	}
	precip := 0.3
	if err := env.Engine.Repo.InsertWeatherRule(env.Ctx, domain.WeatherImpactRule{
		ID:                     "rule-rain",
		TemplateID:             "tpl-roof",
		PrecipitationThreshold: &precip,
		ImpactType:             domain.ImpactDelay,
		ImpactValue:            1,
		CreatedAt:              now,
	}); err != nil {
		t.Fatal(err)
	}
	// Pin the whole window to heavy rain so the rule fires every day.
	var obs []domain.WeatherObservation
	for d := 2; d <= 10; d++ {
		obs = append(obs, domain.WeatherObservation{
			LocationID:    "site_a",
			Date:          time.Date(2026, 3, d, 0, 0, 0, 0, time.UTC).Format("2006-01-02"),
			Temperature:   55,
			Condition:     "rain",
			Precipitation: 1.2,
			WindSpeed:     5,
		})
	}
	if err := env.Engine.Repo.UpsertWeather(env.Ctx, obs); err != nil {
		t.Fatal(err)
	}
	tasks, err := env.Engine.GenerateSchedule(env.Ctx, "proj-1", engine.GenerateOptions{
		StartDate:          "2026-03-02",
		UseTemplates:       true,
		IncludeWeatherData: true,
		ActorID:            "tester",
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("got %d tasks, want 1", len(tasks))
	}
	task := tasks[0]
	if task.Status != domain.TaskDelayed {
		t.Fatalf("status = %s, want delayed", task.Status)
	}
	end := mustParse(t, *task.ScheduledEnd)
	// 3 workdays plus one delay day per rainy scheduled day (4 days inclusive).
	want := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	if !end.Equal(want) {
		t.Fatalf("end = %s, want %s", end, want)
	}
}

func TestAnalyzeSchedule(t *testing.T) {
	env := newTestEnv(t)
	tasks, err := env.Engine.GenerateSchedule(env.Ctx, "proj-1", engine.GenerateOptions{StartDate: "2026-03-02", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	report, err := env.Engine.AnalyzeSchedule(env.Ctx, "proj-1")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if report.ProjectID != "proj-1" {
		t.Fatalf("project = %s", report.ProjectID)
	}
	// No dependencies: every task is a zero-slack component of its own.
	if len(report.CriticalPath) != len(tasks) {
		t.Fatalf("critical path has %d tasks, want %d", len(report.CriticalPath), len(tasks))
	}
	// Unassigned tasks score 20 (no resources), at the report threshold.
	for _, r := range report.DelayRisks {
		if r.Score <= 20 {
			t.Fatalf("reported risk %d at or below threshold", r.Score)
		}
	}
	if len(report.Utilization) != 0 {
		t.Fatalf("utilization for %d resources without assignments", len(report.Utilization))
	}
}

func TestAnalyzeFlagsBottleneck(t *testing.T) {
	env := newTestEnv(t)
	tasks, err := env.Engine.GenerateSchedule(env.Ctx, "proj-1", engine.GenerateOptions{StartDate: "2026-03-02", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.Repo.InsertResource(env.Ctx, domain.Resource{ID: "crew-1", Name: "Crew 1", IsActive: true, CreatedAt: "2026-03-01T00:00:00Z"}); err != nil {
		t.Fatal(err)
	}
	// Book the crew across every task: full window at 100% allocation is
	// 3x the 8/24 working-hours capacity, so utilization caps at 100.
	for _, task := range tasks {
		if err := env.Engine.Repo.InsertAssignment(env.Ctx, domain.ResourceAssignment{
			ID:                   task.ID + "-asg",
			ProjectID:            "proj-1",
			TaskID:               task.ID,
			ResourceID:           "crew-1",
			Start:                *tasks[0].ScheduledStart,
			End:                  *tasks[len(tasks)-1].ScheduledEnd,
			AllocationPercentage: 100,
			CreatedAt:            "2026-03-01T00:00:00Z",
		}); err != nil {
			t.Fatal(err)
		}
	}
	report, err := env.Engine.AnalyzeSchedule(env.Ctx, "proj-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Bottlenecks) != 1 || report.Bottlenecks[0].ResourceID != "crew-1" {
		t.Fatalf("bottlenecks = %+v, want crew-1", report.Bottlenecks)
	}
	if report.Bottlenecks[0].Percent != 100 {
		t.Fatalf("utilization = %v, want capped at 100", report.Bottlenecks[0].Percent)
	}
}

func TestSchedulingHistoryRecorded(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.GenerateSchedule(env.Ctx, "proj-1", engine.GenerateOptions{StartDate: "2026-03-02", ActorID: "tester"}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.OptimizeSchedule(env.Ctx, "proj-1", engine.OptimizeOptions{ActorID: "tester"}); err != nil {
		t.Fatal(err)
	}
	history, err := env.Engine.Repo.ListHistory(env.Ctx, "proj-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Fatalf("got %d history rows, want 2", len(history))
	}
	ops := map[string]bool{}
	for _, h := range history {
		ops[h.Operation] = true
	}
	if !ops["generate"] || !ops["optimize"] {
		t.Fatalf("history operations = %v", ops)
	}
}

func TestStoredWeatherProviderDeterministic(t *testing.T) {
	env := newTestEnv(t)
	provider := engine.StoredWeatherProvider{Repo: env.Engine.Repo}
	first, err := provider.Forecast(env.Ctx, "site_a", "2026-03-02", "2026-03-06")
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	if len(first) != 5 {
		t.Fatalf("got %d observations, want 5", len(first))
	}
	second, err := provider.Forecast(env.Ctx, "site_a", "2026-03-02", "2026-03-06")
	if err != nil {
		t.Fatal(err)
	}
	if len(second) != 5 {
		t.Fatalf("second call returned %d observations", len(second))
	}
	byDate := map[string]domain.WeatherObservation{}
	for _, o := range first {
		byDate[o.Date] = o
	}
	for _, o := range second {
		if byDate[o.Date] != o {
			t.Fatalf("observation for %s changed between calls", o.Date)
		}
	}
}
