package server

import (
	"siteplan/internal/config"
	"siteplan/internal/domain"
	"siteplan/internal/engine"
)

// Request payloads

type CreateProjectRequest struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	LocationID       *string `json:"location_id,omitempty"`
	PlannedStartDate *string `json:"planned_start_date,omitempty" format:"date-time"`
	Description      *string `json:"description,omitempty"`
}

type GenerateScheduleRequest struct {
	StartDate          *string `json:"start_date,omitempty"`
	UseTemplates       bool    `json:"use_templates,omitempty"`
	FromJobs           bool    `json:"from_jobs,omitempty"`
	IncludeWeatherData bool    `json:"include_weather_data,omitempty"`
}

type OptimizeScheduleRequest struct {
	PrioritizeByDeadline     bool `json:"prioritize_by_deadline,omitempty"`
	PrioritizeByDependencies bool `json:"prioritize_by_dependencies,omitempty"`
	BalanceResourceLoad      bool `json:"balance_resource_load,omitempty"`
	RespectConstraints       bool `json:"respect_constraints,omitempty"`
	ConsiderWeather          bool `json:"consider_weather,omitempty"`
}

type ResolveConflictRequest struct {
	Status string `json:"status" enum:"unresolved,resolved,ignored"`
	Note   string `json:"note,omitempty"`
}

// Response payloads

type ProjectResponse struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	Status           string  `json:"status"`
	LocationID       string  `json:"location_id,omitempty"`
	PlannedStartDate *string `json:"planned_start_date,omitempty" format:"date-time"`
	Description      string  `json:"description,omitempty"`
	CreatedAt        string  `json:"created_at" format:"date-time"`
}

type ProjectConfigResponse struct {
	ProjectID  string         `json:"project_id"`
	Scheduling map[string]any `json:"scheduling"`
}

type ScheduleResponse struct {
	ProjectID string        `json:"project_id"`
	Tasks     []domain.Task `json:"tasks"`
}

type ConflictListResponse struct {
	ProjectID string                      `json:"project_id"`
	Conflicts []domain.SchedulingConflict `json:"conflicts"`
}

func projectResponse(p domain.Project) ProjectResponse {
	return ProjectResponse{
		ID:               p.ID,
		Name:             p.Name,
		Status:           p.Status,
		LocationID:       p.LocationID,
		PlannedStartDate: p.PlannedStartDate,
		Description:      p.Description,
		CreatedAt:        p.CreatedAt,
	}
}

func mapProjects(items []domain.Project) []ProjectResponse {
	out := make([]ProjectResponse, 0, len(items))
	for _, p := range items {
		out = append(out, projectResponse(p))
	}
	return out
}

func configResponse(cfg *config.Config) ProjectConfigResponse {
	return ProjectConfigResponse{
		ProjectID: cfg.Project.ID,
		Scheduling: map[string]any{
			"workday_minutes":           cfg.Scheduling.WorkdayMinutes,
			"default_duration_minutes":  cfg.Scheduling.DefaultDurationMinutes,
			"default_phases":            cfg.Scheduling.DefaultPhases,
			"default_phase_days":        cfg.Scheduling.DefaultPhaseDays,
			"bottleneck_threshold_pct":  cfg.Scheduling.BottleneckThresholdPct,
			"risk_report_threshold":     cfg.Scheduling.RiskReportThreshold,
			"severe_rain_precipitation": cfg.Scheduling.SevereRainPrecipitation,
			"severe_wind_speed":         cfg.Scheduling.SevereWindSpeed,
		},
	}
}

func generateOptions(req GenerateScheduleRequest) engine.GenerateOptions {
	opts := engine.GenerateOptions{
		UseTemplates:       req.UseTemplates,
		FromJobs:           req.FromJobs,
		IncludeWeatherData: req.IncludeWeatherData,
		ActorID:            "api",
	}
	if req.StartDate != nil {
		opts.StartDate = *req.StartDate
	}
	return opts
}

func optimizeOptions(req OptimizeScheduleRequest) engine.OptimizeOptions {
	return engine.OptimizeOptions{
		PrioritizeByDeadline:     req.PrioritizeByDeadline,
		PrioritizeByDependencies: req.PrioritizeByDependencies,
		BalanceResourceLoad:      req.BalanceResourceLoad,
		RespectConstraints:       req.RespectConstraints,
		ConsiderWeather:          req.ConsiderWeather,
		ActorID:                  "api",
	}
}
