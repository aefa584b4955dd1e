// Package schedule holds the pure computation core of the scheduling engine:
// dependency graph construction, topological ordering, critical path analysis,
// resource load tracking, constraint validation and weather impact simulation.
// It never touches storage; callers pass in-memory snapshots.
package schedule

import (
	"errors"
	"fmt"

	"siteplan/internal/domain"
)

// ErrCyclicDependency reports that the dependency edges do not form a DAG.
var ErrCyclicDependency = errors.New("cyclic dependency")

// Graph is a dependency graph over a task snapshot. Adjacency runs
// predecessor -> successors; Preds is the reverse relation. Edges referencing
// tasks outside the snapshot are dropped rather than failing the build.
type Graph struct {
	Tasks map[string]domain.Task
	Order []string // task ids in snapshot order
	Succs map[string][]string
	Preds map[string][]string
}

// BuildGraph indexes tasks and dependency edges. Duplicate edges collapse to
// one; self-loops are rejected.
func BuildGraph(tasks []domain.Task, deps []domain.TaskDependency) (*Graph, error) {
	g := &Graph{
		Tasks: make(map[string]domain.Task, len(tasks)),
		Order: make([]string, 0, len(tasks)),
		Succs: make(map[string][]string),
		Preds: make(map[string][]string),
	}
	for _, t := range tasks {
		if _, ok := g.Tasks[t.ID]; ok {
			continue
		}
		g.Tasks[t.ID] = t
		g.Order = append(g.Order, t.ID)
	}
	seen := make(map[[2]string]bool)
	for _, d := range deps {
		if d.PredecessorID == d.SuccessorID {
			return nil, fmt.Errorf("dependency %s: task %s depends on itself", d.ID, d.SuccessorID)
		}
		if _, ok := g.Tasks[d.PredecessorID]; !ok {
			continue
		}
		if _, ok := g.Tasks[d.SuccessorID]; !ok {
			continue
		}
		key := [2]string{d.PredecessorID, d.SuccessorID}
		if seen[key] {
			continue
		}
		seen[key] = true
		g.Succs[d.PredecessorID] = append(g.Succs[d.PredecessorID], d.SuccessorID)
		g.Preds[d.SuccessorID] = append(g.Preds[d.SuccessorID], d.PredecessorID)
	}
	return g, nil
}

// Sequence returns a topological order over the tasks: every predecessor
// appears before its successors, and no-predecessor tasks lead within their
// component. Kahn's algorithm seeded in snapshot order keeps the result
// deterministic. A cycle fails with ErrCyclicDependency naming the tasks
// left unordered.
func (g *Graph) Sequence() ([]string, error) {
	inDegree := make(map[string]int, len(g.Tasks))
	for _, id := range g.Order {
		inDegree[id] = len(g.Preds[id])
	}

	var queue []string
	for _, id := range g.Order {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	order := make([]string, 0, len(g.Tasks))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, succ := range g.Succs[id] {
			inDegree[succ]--
			if inDegree[succ] == 0 {
				queue = append(queue, succ)
			}
		}
	}

	if len(order) != len(g.Tasks) {
		var stuck []string
		for _, id := range g.Order {
			if inDegree[id] > 0 {
				stuck = append(stuck, id)
			}
		}
		return nil, fmt.Errorf("%w: tasks %v form or depend on a cycle", ErrCyclicDependency, stuck)
	}
	return order, nil
}
