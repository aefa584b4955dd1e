package schedule

// WorkdayMinutes is the fallback minutes of schedulable work in one
// calendar day, assuming 8-hour workdays. Projects override it through
// scheduling.workday_minutes; all minute/day conversions go through
// DurationDays to keep the units from drifting.
const WorkdayMinutes = 8 * 60

// DurationDays converts an estimate in minutes to whole workdays of the
// given length, rounding up. Zero or negative estimates fall back to the
// given default, and a non-positive workday falls back to WorkdayMinutes.
func DurationDays(minutes, defaultMinutes, workdayMinutes int) int {
	if workdayMinutes <= 0 {
		workdayMinutes = WorkdayMinutes
	}
	if minutes <= 0 {
		minutes = defaultMinutes
	}
	return (minutes + workdayMinutes - 1) / workdayMinutes
}

// TaskTimes holds the CPM pass results for one task, in minutes from the
// project origin.
type TaskTimes struct {
	TaskID         string
	EarliestStart  int
	EarliestFinish int
	LatestStart    int
	LatestFinish   int
	Slack          int
	OnCriticalPath bool
}

// CPMResult is the outcome of the forward/backward critical path passes.
type CPMResult struct {
	Times         map[string]*TaskTimes
	CriticalPath  []string // zero-slack task ids in snapshot order
	TotalDuration int      // minutes
}

// CriticalPath runs the classic CPM forward and backward passes over the
// graph. Durations are estimated_duration minutes throughout.
func CriticalPath(g *Graph) (*CPMResult, error) {
	order, err := g.Sequence()
	if err != nil {
		return nil, err
	}

	durations := make(map[string]int, len(order))
	for id, t := range g.Tasks {
		durations[id] = t.EstimatedDuration
		if durations[id] < 0 {
			durations[id] = 0
		}
	}

	res := &CPMResult{Times: make(map[string]*TaskTimes, len(order))}
	for _, id := range order {
		res.Times[id] = &TaskTimes{TaskID: id}
	}

	// Forward pass: ES = max EF over predecessors, 0 for roots.
	for _, id := range order {
		tt := res.Times[id]
		for _, pred := range g.Preds[id] {
			if ef := res.Times[pred].EarliestFinish; ef > tt.EarliestStart {
				tt.EarliestStart = ef
			}
		}
		tt.EarliestFinish = tt.EarliestStart + durations[id]
		if tt.EarliestFinish > res.TotalDuration {
			res.TotalDuration = tt.EarliestFinish
		}
	}

	// Backward pass in reverse topological order: LF = min LS over
	// successors, project end for sinks.
	for i := len(order) - 1; i >= 0; i-- {
		id := order[i]
		tt := res.Times[id]
		if len(g.Succs[id]) == 0 {
			tt.LatestFinish = res.TotalDuration
		} else {
			tt.LatestFinish = res.TotalDuration
			for _, succ := range g.Succs[id] {
				if ls := res.Times[succ].LatestStart; ls < tt.LatestFinish {
					tt.LatestFinish = ls
				}
			}
		}
		tt.LatestStart = tt.LatestFinish - durations[id]
		tt.Slack = tt.LatestStart - tt.EarliestStart
		tt.OnCriticalPath = tt.Slack == 0
	}

	// Report the path in snapshot order, not topological order, so the
	// listing matches how the tasks were loaded.
	for _, id := range g.Order {
		if res.Times[id].OnCriticalPath {
			res.CriticalPath = append(res.CriticalPath, id)
		}
	}
	return res, nil
}
