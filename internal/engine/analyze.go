package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"siteplan/internal/config"
	"siteplan/internal/domain"
	"siteplan/internal/schedule"
)

// AnalysisReport is the read-only aggregation over a project's schedule.
type AnalysisReport struct {
	ProjectID            string                `json:"project_id"`
	CriticalPath         []string              `json:"critical_path"`
	TotalDurationMinutes int                   `json:"total_duration_minutes"`
	TotalDurationDays    int                   `json:"total_duration_days"`
	Utilization          []ResourceUtilization `json:"utilization"`
	Bottlenecks          []ResourceUtilization `json:"bottlenecks"`
	DelayRisks           []DelayRisk           `json:"delay_risks"`
	WeatherImpact        []WeatherImpactDay    `json:"weather_impact"`
}

// ResourceUtilization is one resource's booked share of the project window.
type ResourceUtilization struct {
	ResourceID string  `json:"resource_id"`
	Name       string  `json:"name"`
	Percent    float64 `json:"percent"`
}

// DelayRisk scores how likely a task is to slip, with the contributing
// factors spelled out.
type DelayRisk struct {
	TaskID  string   `json:"task_id"`
	Name    string   `json:"name"`
	Score   int      `json:"score"`
	Factors []string `json:"factors"`
}

// WeatherImpactDay is one severe-weather date intersecting scheduled tasks
// whose template rules would fire on it.
type WeatherImpactDay struct {
	Date          string   `json:"date"`
	Condition     string   `json:"condition"`
	AffectedTasks []string `json:"affected_tasks"`
}

// AnalyzeSchedule composes the critical path, resource utilization,
// delay-risk scores and weather impact summary for a project. It mutates
// nothing.
func (e Engine) AnalyzeSchedule(ctx context.Context, projectID string) (*AnalysisReport, error) {
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	cfg, err := e.schedulingConfig(ctx, projectID)
	if err != nil {
		return nil, err
	}
	tasks, deps, assignments, _, err := e.loadSnapshot(ctx, projectID)
	if err != nil {
		return nil, err
	}
	conflicts, err := e.Repo.ListConflicts(ctx, projectID)
	if err != nil {
		return nil, err
	}

	report := &AnalysisReport{ProjectID: projectID}

	g, err := schedule.BuildGraph(tasks, deps)
	if err != nil {
		return nil, err
	}
	cpm, err := schedule.CriticalPath(g)
	if err != nil {
		return nil, err
	}
	report.CriticalPath = cpm.CriticalPath
	report.TotalDurationMinutes = cpm.TotalDuration
	report.TotalDurationDays = schedule.DurationDays(cpm.TotalDuration, cfg.Scheduling.DefaultDurationMinutes, cfg.Scheduling.WorkdayMinutes)

	resourceName := make(map[string]string)
	resources, err := e.Repo.ListResources(ctx, false)
	if err != nil {
		return nil, err
	}
	for _, r := range resources {
		resourceName[r.ID] = r.Name
	}

	windowStart, windowEnd, windowOK := scheduleWindow(tasks)
	ledger := schedule.NewLedger(assignments)
	if windowOK {
		for _, rid := range ledger.ResourceIDs() {
			u := ResourceUtilization{
				ResourceID: rid,
				Name:       resourceName[rid],
				Percent:    ledger.Utilization(rid, windowStart, windowEnd),
			}
			report.Utilization = append(report.Utilization, u)
			if u.Percent > cfg.Scheduling.BottleneckThresholdPct {
				report.Bottlenecks = append(report.Bottlenecks, u)
			}
		}
		sort.Slice(report.Utilization, func(i, j int) bool { return report.Utilization[i].Percent > report.Utilization[j].Percent })
		sort.Slice(report.Bottlenecks, func(i, j int) bool { return report.Bottlenecks[i].Percent > report.Bottlenecks[j].Percent })
	}

	report.DelayRisks = delayRisks(tasks, deps, assignments, conflicts, cpm, cfg.Scheduling.RiskReportThreshold, workdayMinutes(cfg))

	if windowOK {
		impact, err := e.weatherImpactSummary(ctx, p, cfg, tasks, windowStart, windowEnd)
		if err != nil {
			return nil, err
		}
		report.WeatherImpact = impact
	}
	return report, nil
}

func delayRisks(tasks []domain.Task, deps []domain.TaskDependency, assignments []domain.ResourceAssignment, conflicts []domain.SchedulingConflict, cpm *schedule.CPMResult, threshold, workday int) []DelayRisk {
	conflictCount := make(map[string]int)
	for _, c := range conflicts {
		for _, id := range c.AffectedTasks {
			conflictCount[id]++
		}
	}
	depCount := make(map[string]int)
	for _, d := range deps {
		depCount[d.SuccessorID]++
	}
	assignmentCount := make(map[string]int)
	for _, a := range assignments {
		assignmentCount[a.TaskID]++
	}

	var out []DelayRisk
	for _, t := range tasks {
		risk := DelayRisk{TaskID: t.ID, Name: t.Name}
		if tt, ok := cpm.Times[t.ID]; ok && tt.OnCriticalPath {
			risk.Score += 30
			risk.Factors = append(risk.Factors, "on critical path")
		}
		if n := conflictCount[t.ID]; n > 0 {
			risk.Score += 10 * n
			risk.Factors = append(risk.Factors, fmt.Sprintf("%d scheduling conflicts", n))
		}
		if assignmentCount[t.ID] == 0 {
			risk.Score += 20
			risk.Factors = append(risk.Factors, "no resources assigned")
		}
		if n := depCount[t.ID]; n > 3 {
			risk.Score += 5 * n
			risk.Factors = append(risk.Factors, fmt.Sprintf("%d dependencies", n))
		}
		if scheduledShorterThanEstimate(t, workday) {
			risk.Score += 25
			risk.Factors = append(risk.Factors, "scheduled shorter than estimate")
		}
		if risk.Score > 100 {
			risk.Score = 100
		}
		if risk.Score > threshold {
			out = append(out, risk)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// scheduledShorterThanEstimate compares the scheduled span, converted to
// workday minutes, against the task's estimate.
func scheduledShorterThanEstimate(t domain.Task, workday int) bool {
	if t.ScheduledStart == nil || t.ScheduledEnd == nil {
		return false
	}
	start, err1 := time.Parse(time.RFC3339, *t.ScheduledStart)
	end, err2 := time.Parse(time.RFC3339, *t.ScheduledEnd)
	if err1 != nil || err2 != nil {
		return false
	}
	days := int(end.Sub(start).Hours() / 24)
	return days*workday < t.EstimatedDuration
}

// weatherImpactSummary lists dates where severe weather intersects scheduled
// tasks whose template rules would fire, without mutating anything. Unlike
// the simulator, a severe day here is a plain cutoff on the observation.
func (e Engine) weatherImpactSummary(ctx context.Context, p domain.Project, cfg *config.Config, tasks []domain.Task, windowStart, windowEnd time.Time) ([]WeatherImpactDay, error) {
	rules, err := e.Repo.ListWeatherRules(ctx)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, nil
	}
	locationID := cfg.Project.LocationID
	if locationID == "" {
		locationID = p.LocationID
	}
	if locationID == "" {
		return nil, nil
	}
	obs, err := e.weather().Forecast(ctx, locationID, windowStart.Format("2006-01-02"), windowEnd.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("weather forecast: %w", err)
	}

	rulesByTemplate := make(map[string][]domain.WeatherImpactRule)
	for _, r := range rules {
		rulesByTemplate[r.TemplateID] = append(rulesByTemplate[r.TemplateID], r)
	}

	var out []WeatherImpactDay
	for _, o := range obs {
		if !severeWeather(o, cfg) {
			continue
		}
		day, err := time.Parse("2006-01-02", o.Date)
		if err != nil {
			continue
		}
		var affected []string
		for _, t := range tasks {
			if t.TemplateID == nil || t.ScheduledStart == nil || t.ScheduledEnd == nil {
				continue
			}
			start, err1 := time.Parse(time.RFC3339, *t.ScheduledStart)
			end, err2 := time.Parse(time.RFC3339, *t.ScheduledEnd)
			if err1 != nil || err2 != nil {
				continue
			}
			if day.Before(start) || day.After(end) {
				continue
			}
			for _, rule := range rulesByTemplate[*t.TemplateID] {
				if schedule.RuleFires(rule, o) {
					affected = append(affected, t.Name)
					break
				}
			}
		}
		if len(affected) > 0 {
			out = append(out, WeatherImpactDay{Date: o.Date, Condition: o.Condition, AffectedTasks: affected})
		}
	}
	return out, nil
}

func severeWeather(o domain.WeatherObservation, cfg *config.Config) bool {
	if o.Condition == "rain" && o.Precipitation > cfg.Scheduling.SevereRainPrecipitation {
		return true
	}
	if o.Condition == "snow" {
		return true
	}
	return o.WindSpeed > cfg.Scheduling.SevereWindSpeed
}
