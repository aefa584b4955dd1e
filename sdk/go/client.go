package siteplansdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Siteplan HTTP API client.
type Client struct {
	BaseURL    string
	ProjectID  string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, projectID string) *Client {
	return &Client{
		BaseURL:   baseURL,
		ProjectID: projectID,
		Timeout:   10 * time.Second,
	}
}

// Task represents the API task model (partial).
type Task struct {
	ID                string `json:"id"`
	ProjectID         string `json:"project_id"`
	Name              string `json:"name"`
	Status            string `json:"status"`
	EstimatedDuration int    `json:"estimated_duration"`
	ScheduledStart    string `json:"scheduled_start,omitempty"`
	ScheduledEnd      string `json:"scheduled_end,omitempty"`
	IsMilestone       bool   `json:"is_milestone"`
}

// Schedule wraps a project's task list.
type Schedule struct {
	ProjectID string `json:"project_id"`
	Tasks     []Task `json:"tasks"`
}

// Conflict represents a detected scheduling conflict.
type Conflict struct {
	ID                string   `json:"id"`
	ProjectID         string   `json:"project_id"`
	ConflictType      string   `json:"conflict_type"`
	Severity          string   `json:"severity"`
	Description       string   `json:"description"`
	AffectedTasks     []string `json:"affected_tasks"`
	AffectedResources []string `json:"affected_resources,omitempty"`
	ResolutionStatus  string   `json:"resolution_status"`
}

// ConflictList wraps conflict listings.
type ConflictList struct {
	ProjectID string     `json:"project_id"`
	Conflicts []Conflict `json:"conflicts"`
}

// GenerateRequest configures schedule generation.
type GenerateRequest struct {
	StartDate          string `json:"start_date,omitempty"`
	UseTemplates       bool   `json:"use_templates,omitempty"`
	FromJobs           bool   `json:"from_jobs,omitempty"`
	IncludeWeatherData bool   `json:"include_weather_data,omitempty"`
}

// OptimizeRequest selects optimization strategies.
type OptimizeRequest struct {
	PrioritizeByDeadline     bool `json:"prioritize_by_deadline,omitempty"`
	PrioritizeByDependencies bool `json:"prioritize_by_dependencies,omitempty"`
	BalanceResourceLoad      bool `json:"balance_resource_load,omitempty"`
	RespectConstraints       bool `json:"respect_constraints,omitempty"`
	ConsiderWeather          bool `json:"consider_weather,omitempty"`
}

// AnalysisReport is the schedule health summary (partial).
type AnalysisReport struct {
	ProjectID            string           `json:"project_id"`
	CriticalPath         []string         `json:"critical_path"`
	TotalDurationMinutes int              `json:"total_duration_minutes"`
	TotalDurationDays    int              `json:"total_duration_days"`
	DelayRisks           []map[string]any `json:"delay_risks"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// GenerateSchedule generates a schedule for the project.
func (c *Client) GenerateSchedule(ctx context.Context, req GenerateRequest) (Schedule, error) {
	var resp Schedule
	err := c.do(ctx, http.MethodPost, c.projectPath("schedule/generate"), req, &resp)
	return resp, err
}

// OptimizeSchedule re-times the schedule using the selected strategies.
func (c *Client) OptimizeSchedule(ctx context.Context, req OptimizeRequest) (Schedule, error) {
	var resp Schedule
	err := c.do(ctx, http.MethodPost, c.projectPath("schedule/optimize"), req, &resp)
	return resp, err
}

// Tasks lists the project's scheduled tasks.
func (c *Client) Tasks(ctx context.Context) (Schedule, error) {
	var resp Schedule
	err := c.do(ctx, http.MethodGet, c.projectPath("tasks"), nil, &resp)
	return resp, err
}

// Task fetches a task by id.
func (c *Client) Task(ctx context.Context, id string) (Task, error) {
	var resp Task
	endpoint := c.projectPath(fmt.Sprintf("tasks/%s", url.PathEscape(id)))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// DetectConflicts runs conflict detection and returns the fresh set.
func (c *Client) DetectConflicts(ctx context.Context) (ConflictList, error) {
	var resp ConflictList
	err := c.do(ctx, http.MethodPost, c.projectPath("conflicts/detect"), nil, &resp)
	return resp, err
}

// Conflicts lists stored conflicts.
func (c *Client) Conflicts(ctx context.Context) (ConflictList, error) {
	var resp ConflictList
	err := c.do(ctx, http.MethodGet, c.projectPath("conflicts"), nil, &resp)
	return resp, err
}

// ResolveConflict marks a conflict resolved or ignored.
func (c *Client) ResolveConflict(ctx context.Context, id, status, note string) (Conflict, error) {
	body := map[string]any{
		"status": status,
		"note":   note,
	}
	var resp Conflict
	endpoint := c.projectPath(fmt.Sprintf("conflicts/%s", url.PathEscape(id)))
	err := c.do(ctx, http.MethodPatch, endpoint, body, &resp)
	return resp, err
}

// Analyze returns the schedule analysis report.
func (c *Client) Analyze(ctx context.Context) (AnalysisReport, error) {
	var resp AnalysisReport
	err := c.do(ctx, http.MethodGet, c.projectPath("analysis"), nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) projectPath(p string) string {
	project := url.PathEscape(c.ProjectID)
	return fmt.Sprintf("v0/projects/%s/%s", project, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
