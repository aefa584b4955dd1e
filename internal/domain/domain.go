package domain

// Task statuses.
const (
	TaskNotStarted = "not_started"
	TaskInProgress = "in_progress"
	TaskDelayed    = "delayed"
	TaskCancelled  = "cancelled"
	TaskCompleted  = "completed"
)

// Dependency types. Only finish_to_start has enforced scheduling semantics;
// the others are stored and reported but not enforced.
const (
	DepFinishToStart  = "finish_to_start"
	DepStartToStart   = "start_to_start"
	DepFinishToFinish = "finish_to_finish"
	DepStartToFinish  = "start_to_finish"
)

// Constraint types.
const (
	ConstraintMustStartOn    = "must_start_on"
	ConstraintMustFinishBy   = "must_finish_by"
	ConstraintNotEarlierThan = "not_earlier_than"
	ConstraintNotLaterThan   = "not_later_than"
)

// Weather impact types.
const (
	ImpactDelay              = "delay"
	ImpactCancel             = "cancel"
	ImpactReduceProductivity = "reduce_productivity"
)

// Conflict types.
const (
	ConflictDependencyViolation   = "dependency_violation"
	ConflictResourceOverallocated = "resource_overallocation"
	ConflictConstraintViolation   = "constraint_violation"
)

// Conflict resolution statuses.
const (
	ResolutionUnresolved = "unresolved"
	ResolutionResolved   = "resolved"
	ResolutionIgnored    = "ignored"
)

type Project struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	Status           string  `json:"status"`
	LocationID       string  `json:"location_id,omitempty"`
	PlannedStartDate *string `json:"planned_start_date,omitempty" format:"date-time"`
	Description      string  `json:"description,omitempty"`
	CreatedAt        string  `json:"created_at" format:"date-time"`
}

type Task struct {
	ID                string  `json:"id"`
	ProjectID         string  `json:"project_id"`
	TemplateID        *string `json:"template_id,omitempty"`
	JobID             *string `json:"job_id,omitempty"`
	Name              string  `json:"name"`
	Description       string  `json:"description,omitempty"`
	Status            string  `json:"status" enum:"not_started,in_progress,delayed,cancelled,completed"`
	EstimatedDuration int     `json:"estimated_duration"` // minutes
	ScheduledStart    *string `json:"scheduled_start,omitempty" format:"date-time"`
	ScheduledEnd      *string `json:"scheduled_end,omitempty" format:"date-time"`
	IsMilestone       bool    `json:"is_milestone"`
	CreatedAt         string  `json:"created_at" format:"date-time"`
	UpdatedAt         string  `json:"updated_at" format:"date-time"`
}

type TaskDependency struct {
	ID            string `json:"id"`
	ProjectID     string `json:"project_id"`
	PredecessorID string `json:"predecessor_task_id"`
	SuccessorID   string `json:"successor_task_id"`
	Type          string `json:"dependency_type" enum:"finish_to_start,start_to_start,finish_to_finish,start_to_finish"`
	CreatedAt     string `json:"created_at" format:"date-time"`
}

type ResourceType struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type Resource struct {
	ID        string  `json:"id"`
	TypeID    *string `json:"resource_type_id,omitempty"`
	Name      string  `json:"name"`
	IsActive  bool    `json:"is_active"`
	CreatedAt string  `json:"created_at" format:"date-time"`
}

// ResourceAssignment books a resource onto a task for [Start, End).
// AllocationPercentage weights utilization only; overlap checks use the raw
// interval regardless of allocation.
type ResourceAssignment struct {
	ID                   string `json:"id"`
	ProjectID            string `json:"project_id"`
	TaskID               string `json:"task_id"`
	ResourceID           string `json:"resource_id"`
	Start                string `json:"assignment_start" format:"date-time"`
	End                  string `json:"assignment_end" format:"date-time"`
	AllocationPercentage int    `json:"allocation_percentage"`
	CreatedAt            string `json:"created_at" format:"date-time"`
}

type SchedulingConstraint struct {
	ID             string `json:"id"`
	ProjectID      string `json:"project_id"`
	TaskID         string `json:"task_id"`
	Type           string `json:"constraint_type" enum:"must_start_on,must_finish_by,not_earlier_than,not_later_than"`
	ConstraintDate string `json:"constraint_date" format:"date-time"`
	CreatedAt      string `json:"created_at" format:"date-time"`
}

// TaskTemplate is a reusable task definition. PredecessorsJSON holds a JSON
// array of predecessor template names resolved at generation time.
type TaskTemplate struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	Description       string  `json:"description,omitempty"`
	EstimatedDuration int     `json:"estimated_duration"` // minutes
	PredecessorsJSON  *string `json:"predecessors_json,omitempty"`
	CreatedAt         string  `json:"created_at" format:"date-time"`
}

// WeatherImpactRule is attached to a task template, not a task instance.
// Nil thresholds are unset and never fire.
type WeatherImpactRule struct {
	ID                     string   `json:"id"`
	TemplateID             string   `json:"task_template_id"`
	WeatherCondition       string   `json:"weather_condition,omitempty"`
	TemperatureMin         *float64 `json:"temperature_min,omitempty"`
	TemperatureMax         *float64 `json:"temperature_max,omitempty"`
	PrecipitationThreshold *float64 `json:"precipitation_threshold,omitempty"`
	WindThreshold          *float64 `json:"wind_threshold,omitempty"`
	ImpactType             string   `json:"impact_type" enum:"delay,cancel,reduce_productivity"`
	ImpactValue            float64  `json:"impact_value"`
	CreatedAt              string   `json:"created_at" format:"date-time"`
}

// WeatherObservation is one day of weather for a location. Supplied by the
// weather collaborator; the engine never originates it.
type WeatherObservation struct {
	LocationID    string  `json:"location_id"`
	Date          string  `json:"date" format:"date"`
	Temperature   float64 `json:"temperature"`
	Condition     string  `json:"condition"`
	Precipitation float64 `json:"precipitation"`
	WindSpeed     float64 `json:"wind_speed"`
}

type SchedulingConflict struct {
	ID                string   `json:"id"`
	ProjectID         string   `json:"project_id"`
	Type              string   `json:"conflict_type" enum:"dependency_violation,resource_overallocation,constraint_violation"`
	Description       string   `json:"description"`
	AffectedTasks     []string `json:"affected_tasks"`
	AffectedResources []string `json:"affected_resources"`
	ResolutionStatus  string   `json:"resolution_status" enum:"unresolved,resolved,ignored"`
	ResolutionNote    string   `json:"resolution_note,omitempty"`
	CreatedAt         string   `json:"created_at" format:"date-time"`
	UpdatedAt         string   `json:"updated_at" format:"date-time"`
}

// Job is a pre-existing unscheduled work item that job-mode generation turns
// into a task.
type Job struct {
	ID                 string  `json:"id"`
	ProjectID          string  `json:"project_id"`
	Name               string  `json:"name"`
	Description        string  `json:"description,omitempty"`
	ScheduledStartDate *string `json:"scheduled_start_date,omitempty" format:"date-time"`
	ScheduledEndDate   *string `json:"scheduled_end_date,omitempty" format:"date-time"`
	CreatedAt          string  `json:"created_at" format:"date-time"`
}

// SchedulingHistory records one generate or optimize run.
type SchedulingHistory struct {
	ID            string `json:"id"`
	ProjectID     string `json:"project_id"`
	Operation     string `json:"operation" enum:"generate,optimize"`
	OptionsJSON   string `json:"options_json"`
	TaskCount     int    `json:"task_count"`
	ConflictCount int    `json:"conflict_count"`
	CreatedAt     string `json:"created_at" format:"date-time"`
}
