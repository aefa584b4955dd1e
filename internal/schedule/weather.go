package schedule

import (
	"math"
	"time"

	"siteplan/internal/domain"
)

// WeatherAdjustment is the simulated effect of weather on one task. Either
// Cancelled is set, or DelayDays pushes the scheduled end forward.
type WeatherAdjustment struct {
	TaskID    string
	DelayDays int
	Cancelled bool
	NewEnd    time.Time // valid when DelayDays > 0 and not cancelled
}

// RuleFires evaluates one rule against one day of weather. A rule naming a
// weather condition requires an exact match before any threshold is
// considered; it then fires when temperature falls outside the configured
// bounds, precipitation exceeds its threshold, or wind exceeds its threshold.
func RuleFires(rule domain.WeatherImpactRule, obs domain.WeatherObservation) bool {
	if rule.WeatherCondition != "" && rule.WeatherCondition != obs.Condition {
		return false
	}
	if rule.TemperatureMin != nil && obs.Temperature < *rule.TemperatureMin {
		return true
	}
	if rule.TemperatureMax != nil && obs.Temperature > *rule.TemperatureMax {
		return true
	}
	if rule.PrecipitationThreshold != nil && obs.Precipitation > *rule.PrecipitationThreshold {
		return true
	}
	if rule.WindThreshold != nil && obs.WindSpeed > *rule.WindThreshold {
		return true
	}
	return false
}

// SimulateWeather walks each scheduled task's calendar days against the
// observation set and accumulates rule impacts. Only tasks with a template
// that has at least one rule participate; days with no observation are
// skipped. A firing cancel rule cancels the task and stops its day scan. A
// firing delay rule adds one day per firing day. A firing
// reduce_productivity rule adds ceil(span_days * impact_value/100) days once
// per task, not per day. Tasks whose accumulated delay is positive are
// returned with their pushed-out end.
func SimulateWeather(tasks []domain.Task, rules []domain.WeatherImpactRule, observations []domain.WeatherObservation) []WeatherAdjustment {
	rulesByTemplate := make(map[string][]domain.WeatherImpactRule)
	for _, r := range rules {
		rulesByTemplate[r.TemplateID] = append(rulesByTemplate[r.TemplateID], r)
	}
	obsByDate := make(map[string]domain.WeatherObservation, len(observations))
	for _, o := range observations {
		obsByDate[o.Date] = o
	}

	var out []WeatherAdjustment
	for _, t := range tasks {
		if t.TemplateID == nil || t.ScheduledStart == nil || t.ScheduledEnd == nil {
			continue
		}
		taskRules := rulesByTemplate[*t.TemplateID]
		if len(taskRules) == 0 {
			continue
		}
		start, err := time.Parse(time.RFC3339, *t.ScheduledStart)
		if err != nil {
			continue
		}
		end, err := time.Parse(time.RFC3339, *t.ScheduledEnd)
		if err != nil {
			continue
		}

		spanDays := end.Sub(start).Hours() / 24
		delayDays := 0
		cancelled := false
		productivityApplied := make(map[string]bool)

	days:
		for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
			obs, ok := obsByDate[day.UTC().Format("2006-01-02")]
			if !ok {
				continue
			}
			for _, rule := range taskRules {
				if !RuleFires(rule, obs) {
					continue
				}
				switch rule.ImpactType {
				case domain.ImpactDelay:
					delayDays++
				case domain.ImpactCancel:
					cancelled = true
					break days
				case domain.ImpactReduceProductivity:
					if !productivityApplied[rule.ID] {
						productivityApplied[rule.ID] = true
						delayDays += int(math.Ceil(spanDays * rule.ImpactValue / 100))
					}
				}
			}
		}

		switch {
		case cancelled:
			out = append(out, WeatherAdjustment{TaskID: t.ID, Cancelled: true})
		case delayDays > 0:
			out = append(out, WeatherAdjustment{
				TaskID:    t.ID,
				DelayDays: delayDays,
				NewEnd:    end.AddDate(0, 0, delayDays),
			})
		}
	}
	return out
}
