package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"siteplan/internal/domain"
	"siteplan/internal/engine"
	"siteplan/internal/repo"
	"siteplan/internal/schedule"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"project not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Siteplan API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope above.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	hcfg := huma.DefaultConfig("Siteplan API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerProjects(group, cfg.Engine)
	registerTasks(group, cfg.Engine)
	registerSchedule(group, cfg.Engine)
	registerConflicts(group, cfg.Engine)
	registerAnalysis(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if errors.Is(err, schedule.ErrCyclicDependency) {
		return newAPIError(http.StatusUnprocessableEntity, "cyclic_dependency", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "required") ||
		strings.Contains(lowered, "mutually exclusive") || strings.Contains(lowered, "no task templates") ||
		strings.Contains(lowered, "no jobs") || strings.Contains(lowered, "nothing to schedule") ||
		strings.Contains(lowered, "no tasks to optimize"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			spec, _ = json.Marshal(api.OpenAPI())
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Siteplan API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerProjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		if input.Body.ID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "id is required", nil)
		}
		name := input.Body.Name
		if name == "" {
			name = input.Body.ID
		}
		p, err := e.InitProject(ctx, input.Body.ID, name,
			deref(input.Body.LocationID), deref(input.Body.Description),
			"api", input.Body.PlannedStartDate)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []ProjectResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListProjects(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ProjectResponse `json:"body"`
		}{Body: mapProjects(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		p, err := e.Repo.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project-config",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/config",
		Summary:     "Get project scheduling config",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body ProjectConfigResponse `json:"body"`
	}, error) {
		cfg, err := e.Repo.GetProjectConfig(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectConfigResponse `json:"body"`
		}{Body: configResponse(cfg)}, nil
	})
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/tasks",
		Summary:     "List scheduled tasks",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body ScheduleResponse `json:"body"`
	}, error) {
		if _, err := e.Repo.GetProject(ctx, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		tasks, err := e.Repo.ListTasks(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ScheduleResponse `json:"body"`
		}{Body: ScheduleResponse{ProjectID: input.ProjectID, Tasks: tasks}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/tasks/{id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		ID        string `path:"id"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		t, err := e.Repo.GetTask(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if t.ProjectID != input.ProjectID {
			return nil, newAPIError(http.StatusNotFound, "not_found", "task not found in project", nil)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})
}

func registerSchedule(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "generate-schedule",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/schedule/generate",
		Summary:       "Generate schedule",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string                  `path:"project_id"`
		Body      GenerateScheduleRequest `json:"body"`
	}) (*struct {
		Body ScheduleResponse `json:"body"`
	}, error) {
		tasks, err := e.GenerateSchedule(ctx, input.ProjectID, generateOptions(input.Body))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ScheduleResponse `json:"body"`
		}{Body: ScheduleResponse{ProjectID: input.ProjectID, Tasks: tasks}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "optimize-schedule",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/schedule/optimize",
		Summary:     "Optimize schedule",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string                  `path:"project_id"`
		Body      OptimizeScheduleRequest `json:"body"`
	}) (*struct {
		Body ScheduleResponse `json:"body"`
	}, error) {
		tasks, err := e.OptimizeSchedule(ctx, input.ProjectID, optimizeOptions(input.Body))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ScheduleResponse `json:"body"`
		}{Body: ScheduleResponse{ProjectID: input.ProjectID, Tasks: tasks}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "schedule-history",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/schedule/history",
		Summary:     "Scheduling run history",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body []domain.SchedulingHistory `json:"body"`
	}, error) {
		if _, err := e.Repo.GetProject(ctx, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		history, err := e.Repo.ListHistory(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.SchedulingHistory `json:"body"`
		}{Body: history}, nil
	})
}

func registerConflicts(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "detect-conflicts",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/conflicts/detect",
		Summary:     "Detect scheduling conflicts",
		Errors:      []int{http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body ConflictListResponse `json:"body"`
	}, error) {
		conflicts, err := e.DetectConflicts(ctx, input.ProjectID, "api")
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ConflictListResponse `json:"body"`
		}{Body: ConflictListResponse{ProjectID: input.ProjectID, Conflicts: conflicts}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-conflicts",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/conflicts",
		Summary:     "List conflicts",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body ConflictListResponse `json:"body"`
	}, error) {
		if _, err := e.Repo.GetProject(ctx, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		conflicts, err := e.Repo.ListConflicts(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ConflictListResponse `json:"body"`
		}{Body: ConflictListResponse{ProjectID: input.ProjectID, Conflicts: conflicts}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resolve-conflict",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}/conflicts/{id}",
		Summary:     "Resolve or ignore a conflict",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string                 `path:"project_id"`
		ID        string                 `path:"id"`
		Body      ResolveConflictRequest `json:"body"`
	}) (*struct {
		Body domain.SchedulingConflict `json:"body"`
	}, error) {
		existing, err := e.Repo.GetConflict(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if existing.ProjectID != input.ProjectID {
			return nil, newAPIError(http.StatusNotFound, "not_found", "conflict not found in project", nil)
		}
		c, err := e.ResolveConflict(ctx, input.ID, input.Body.Status, input.Body.Note, "api")
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.SchedulingConflict `json:"body"`
		}{Body: c}, nil
	})
}

func registerAnalysis(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "analyze-schedule",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/analysis",
		Summary:     "Analyze schedule",
		Errors: []int{
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body engine.AnalysisReport `json:"body"`
	}, error) {
		report, err := e.AnalyzeSchedule(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.AnalysisReport `json:"body"`
		}{Body: *report}, nil
	})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
