package schedule

import (
	"errors"
	"testing"

	"siteplan/internal/domain"
)

func task(id string, minutes int) domain.Task {
	return domain.Task{ID: id, ProjectID: "p1", Name: id, EstimatedDuration: minutes}
}

func dep(pred, succ string) domain.TaskDependency {
	return domain.TaskDependency{ID: pred + "-" + succ, PredecessorID: pred, SuccessorID: succ, Type: domain.DepFinishToStart}
}

func mustGraph(t *testing.T, tasks []domain.Task, deps []domain.TaskDependency) *Graph {
	t.Helper()
	g, err := BuildGraph(tasks, deps)
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}
	return g
}

func TestSequenceLinearChain(t *testing.T) {
	g := mustGraph(t,
		[]domain.Task{task("c", 60), task("a", 60), task("b", 60)},
		[]domain.TaskDependency{dep("a", "b"), dep("b", "c")},
	)
	order, err := g.Sequence()
	if err != nil {
		t.Fatalf("sequence: %v", err)
	}
	want := []string{"a", "b", "c"}
	for i, id := range want {
		if order[i] != id {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestSequenceRootsLead(t *testing.T) {
	// Two roots and one shared successor; both roots must precede it.
	g := mustGraph(t,
		[]domain.Task{task("x", 60), task("y", 60), task("z", 60)},
		[]domain.TaskDependency{dep("x", "z"), dep("y", "z")},
	)
	order, err := g.Sequence()
	if err != nil {
		t.Fatalf("sequence: %v", err)
	}
	if order[2] != "z" {
		t.Fatalf("expected z last, got %v", order)
	}
}

func TestSequenceCycleFails(t *testing.T) {
	g := mustGraph(t,
		[]domain.Task{task("a", 60), task("b", 60)},
		[]domain.TaskDependency{dep("a", "b"), dep("b", "a")},
	)
	_, err := g.Sequence()
	if !errors.Is(err, ErrCyclicDependency) {
		t.Fatalf("expected ErrCyclicDependency, got %v", err)
	}
}

func TestSelfLoopRejected(t *testing.T) {
	_, err := BuildGraph([]domain.Task{task("a", 60)}, []domain.TaskDependency{dep("a", "a")})
	if err == nil {
		t.Fatal("expected self-loop error")
	}
}

func TestDanglingEdgeIgnored(t *testing.T) {
	g := mustGraph(t,
		[]domain.Task{task("a", 60)},
		[]domain.TaskDependency{dep("ghost", "a")},
	)
	if len(g.Preds["a"]) != 0 {
		t.Fatalf("expected dangling edge dropped, got %v", g.Preds["a"])
	}
}

func TestCriticalPathLinearChain(t *testing.T) {
	// A -> B -> C with durations 2, 3, 4 days.
	g := mustGraph(t,
		[]domain.Task{task("a", 2*WorkdayMinutes), task("b", 3*WorkdayMinutes), task("c", 4*WorkdayMinutes)},
		[]domain.TaskDependency{dep("a", "b"), dep("b", "c")},
	)
	res, err := CriticalPath(g)
	if err != nil {
		t.Fatalf("critical path: %v", err)
	}
	if res.Times["a"].EarliestStart != 0 {
		t.Errorf("ES(a) = %d, want 0", res.Times["a"].EarliestStart)
	}
	if got, want := res.Times["c"].EarliestFinish, 9*WorkdayMinutes; got != want {
		t.Errorf("EF(c) = %d, want %d", got, want)
	}
	if res.TotalDuration != 9*WorkdayMinutes {
		t.Errorf("total duration = %d, want %d", res.TotalDuration, 9*WorkdayMinutes)
	}
	for _, id := range []string{"a", "b", "c"} {
		if res.Times[id].Slack != 0 {
			t.Errorf("slack(%s) = %d, want 0", id, res.Times[id].Slack)
		}
	}
	if len(res.CriticalPath) != 3 {
		t.Errorf("critical path = %v, want all three tasks", res.CriticalPath)
	}
}

func TestCriticalPathDiamond(t *testing.T) {
	// a -> b -> d and a -> c -> d; b is longer, so c has slack.
	g := mustGraph(t,
		[]domain.Task{
			task("a", 1*WorkdayMinutes),
			task("b", 5*WorkdayMinutes),
			task("c", 2*WorkdayMinutes),
			task("d", 1*WorkdayMinutes),
		},
		[]domain.TaskDependency{dep("a", "b"), dep("a", "c"), dep("b", "d"), dep("c", "d")},
	)
	res, err := CriticalPath(g)
	if err != nil {
		t.Fatalf("critical path: %v", err)
	}
	if got, want := res.Times["c"].Slack, 3*WorkdayMinutes; got != want {
		t.Errorf("slack(c) = %d, want %d", got, want)
	}
	want := []string{"a", "b", "d"}
	if len(res.CriticalPath) != len(want) {
		t.Fatalf("critical path = %v, want %v", res.CriticalPath, want)
	}
	for i := range want {
		if res.CriticalPath[i] != want[i] {
			t.Fatalf("critical path = %v, want %v", res.CriticalPath, want)
		}
	}
}

func TestCriticalPathKeepsSnapshotOrder(t *testing.T) {
	// Same diamond as above, but the tasks arrive with d and b ahead of a.
	// The reported path must follow that order, not topological order.
	g := mustGraph(t,
		[]domain.Task{
			task("d", 1*WorkdayMinutes),
			task("b", 5*WorkdayMinutes),
			task("a", 1*WorkdayMinutes),
			task("c", 2*WorkdayMinutes),
		},
		[]domain.TaskDependency{dep("a", "b"), dep("a", "c"), dep("b", "d"), dep("c", "d")},
	)
	res, err := CriticalPath(g)
	if err != nil {
		t.Fatalf("critical path: %v", err)
	}
	want := []string{"d", "b", "a"}
	if len(res.CriticalPath) != len(want) {
		t.Fatalf("critical path = %v, want %v", res.CriticalPath, want)
	}
	for i := range want {
		if res.CriticalPath[i] != want[i] {
			t.Fatalf("critical path = %v, want %v", res.CriticalPath, want)
		}
	}
}

func TestSlackNonNegative(t *testing.T) {
	g := mustGraph(t,
		[]domain.Task{
			task("a", 90), task("b", 480), task("c", 30),
			task("d", 960), task("e", 10),
		},
		[]domain.TaskDependency{dep("a", "c"), dep("b", "c"), dep("c", "d"), dep("b", "e")},
	)
	res, err := CriticalPath(g)
	if err != nil {
		t.Fatalf("critical path: %v", err)
	}
	for id, tt := range res.Times {
		if tt.Slack < 0 {
			t.Errorf("slack(%s) = %d, want >= 0", id, tt.Slack)
		}
		if tt.LatestStart < tt.EarliestStart {
			t.Errorf("LS(%s) = %d < ES %d", id, tt.LatestStart, tt.EarliestStart)
		}
	}
}

func TestDurationDays(t *testing.T) {
	cases := []struct {
		minutes, fallback, workday, want int
	}{
		{480, 480, 480, 1},
		{481, 480, 480, 2},
		{2400, 480, 480, 5},
		{0, 480, 480, 1},
		{-5, 960, 480, 2},
		{1, 480, 480, 1},
		// Configured workday lengths other than the default.
		{600, 480, 600, 1},
		{601, 480, 600, 2},
		{480, 480, 240, 2},
		// Non-positive workday falls back to the package default.
		{960, 480, 0, 2},
		{960, 480, -1, 2},
	}
	for _, c := range cases {
		if got := DurationDays(c.minutes, c.fallback, c.workday); got != c.want {
			t.Errorf("DurationDays(%d, %d, %d) = %d, want %d", c.minutes, c.fallback, c.workday, got, c.want)
		}
	}
}
