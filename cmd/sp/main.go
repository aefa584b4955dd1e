package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"siteplan/internal/app"
	"siteplan/internal/config"
	"siteplan/internal/db"
	"siteplan/internal/domain"
	"siteplan/internal/engine"
	"siteplan/internal/migrate"
	"siteplan/internal/repo"
	"siteplan/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "sp",
	Short: "Siteplan CLI",
	Long: `Siteplan schedules construction project work from dependencies, resources, and weather.
Core concepts:
- Workspace: your .siteplan directory holding the database; configs are stored in the DB and imported explicitly.
- Project: owns all tasks, dependencies, resources, and constraints.
- Tasks: scheduled work items laid out by generate and re-timed by optimize.
- Templates: reusable task definitions with named predecessors; weather impact rules attach to templates.
- Resources: crews and equipment booked onto tasks via assignments.
- Constraints: date pins (must_start_on, must_finish_by, not_earlier_than, not_later_than).
- Conflicts: dependency violations, resource overlaps, and constraint breaks found by 'sp conflict detect'.
- Analysis: critical path, utilization, delay risks, and weather impact via 'sp analyze'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("SITEPLAN")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("project", "", "project id (overrides config default)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("project", rootCmd.PersistentFlags().Lookup("project"))
}

func registerCommands() {
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(templateCmd())
	rootCmd.AddCommand(resourceCmd())
	rootCmd.AddCommand(assignmentCmd())
	rootCmd.AddCommand(constraintCmd())
	rootCmd.AddCommand(jobCmd())
	rootCmd.AddCommand(weatherCmd())
	rootCmd.AddCommand(scheduleCmd())
	rootCmd.AddCommand(conflictCmd())
	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(serveCmd())
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectUpdateCmd())
	prj.AddCommand(projectDeleteCmd())
	prj.AddCommand(projectConfigCmd())
	return prj
}

func projectListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListProjects(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func projectCreateCmd() *cobra.Command {
	var id, name, location, desc, plannedStart string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create project",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return fmt.Errorf("--id required")
			}
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			if name == "" {
				name = id
			}
			cfg := config.Default(id)
			cfg.Project.LocationID = location
			e := engine.New(conn, cfg)
			var startPtr *string
			if cmd.Flags().Changed("planned-start") {
				startPtr = &plannedStart
			}
			p, err := e.InitProject(cmd.Context(), id, name, location, desc, viper.GetString("actor-id"), startPtr)
			if err != nil {
				return err
			}
			return printJSONOrTable(p)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "project id")
	cmd.Flags().StringVar(&name, "name", "", "project name (defaults to id)")
	cmd.Flags().StringVar(&location, "location", "", "weather location id")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringVar(&plannedStart, "planned-start", "", "planned start date (yyyy-mm-dd)")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func projectShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			target := viper.GetString("project")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if target == "" {
					target = e.Config.Project.ID
				}
				p, err := e.Repo.GetProject(ctx, target)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func projectUpdateCmd() *cobra.Command {
	var status, description, plannedStart string
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			target := viper.GetString("project")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if target == "" {
					target = e.Config.Project.ID
				}
				var descPtr, startPtr *string
				if cmd.Flags().Changed("description") {
					descPtr = &description
				}
				if cmd.Flags().Changed("planned-start") {
					startPtr = &plannedStart
				}
				if err := e.Repo.UpdateProject(ctx, target, status, startPtr, descPtr); err != nil {
					return err
				}
				p, err := e.Repo.GetProject(ctx, target)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status (active, paused, archived)")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&plannedStart, "planned-start", "", "planned start date (yyyy-mm-dd)")
	return cmd
}

func projectDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			target := viper.GetString("project")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if target == "" {
					target = e.Config.Project.ID
				}
				return e.Repo.DeleteProject(ctx, target)
			})
		},
	}
	return cmd
}

func projectConfigCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage project config",
	}
	cfg.AddCommand(projectConfigShowCmd())
	cfg.AddCommand(projectConfigImportCmd())
	cfg.AddCommand(projectConfigInitCmd())
	return cfg
}

func projectConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show project config stored in DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
	return cmd
}

func projectConfigImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import project config from YAML into the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromFile(filePath)
			if err != nil {
				return err
			}
			projectID := cfg.Project.ID
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if projectID == "" {
					projectID = e.Config.Project.ID
				}
				if err := e.Repo.UpsertProjectConfig(ctx, projectID, cfg); err != nil {
					return err
				}
				return printJSONOrTable(cfg)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML config")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func projectConfigInitCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Print default config YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				id = viper.GetString("project")
			}
			if id == "" {
				return fmt.Errorf("--id or --project required")
			}
			fmt.Print(config.GenerateDefault(id))
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "project id")
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Inspect and prune tasks",
		Long:  "Tasks are scheduled work items. Generation creates them from phases, templates, or jobs; optimization re-times them.",
	}
	task.AddCommand(taskListCmd())
	task.AddCommand(taskGetCmd())
	task.AddCommand(taskRemoveCmd())
	task.AddCommand(taskDepsCmd())
	task.AddCommand(taskDepRemoveCmd())
	return task
}

func taskListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tasks, err := e.Repo.ListTasks(ctx, e.Config.Project.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Status", "Start", "End", "Est (min)"})
				for _, t := range tasks {
					tw.AppendRow(table.Row{t.ID, t.Name, t.Status, deref(t.ScheduledStart), deref(t.ScheduledEnd), t.EstimatedDuration})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func taskGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Get task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.Repo.GetTask(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func taskRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteTask(ctx, args[0])
			})
		},
	}
	return cmd
}

func taskDepsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deps",
		Short: "List task dependencies",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				deps, err := e.Repo.ListDependencies(ctx, e.Config.Project.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(deps)
			})
		},
	}
	return cmd
}

func taskDepRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dep-remove <id>",
		Short: "Remove task dependency",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteDependency(ctx, args[0])
			})
		},
	}
	return cmd
}

func templateCmd() *cobra.Command {
	tpl := &cobra.Command{
		Use:   "template",
		Short: "Manage task templates",
		Long:  "Templates are reusable task definitions. Predecessor names are resolved to dependencies at generation time; weather impact rules attach to templates.",
	}
	tpl.AddCommand(templateAddCmd())
	tpl.AddCommand(templateListCmd())
	tpl.AddCommand(templateRemoveCmd())
	tpl.AddCommand(templateRuleCmd())
	return tpl
}

func templateAddCmd() *cobra.Command {
	var t domain.TaskTemplate
	var predecessors []string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add task template",
		RunE: func(cmd *cobra.Command, args []string) error {
			if t.ID == "" {
				t.ID = uuid.New().String()
			}
			if len(predecessors) > 0 {
				preds := toJSONArray(predecessors)
				t.PredecessorsJSON = &preds
			}
			t.CreatedAt = nowRFC3339()
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if err := r.InsertTemplate(ctx, t); err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&t.ID, "id", "", "template id (random if omitted)")
	cmd.Flags().StringVar(&t.Name, "name", "", "template name")
	cmd.Flags().StringVar(&t.Description, "description", "", "description")
	cmd.Flags().IntVar(&t.EstimatedDuration, "duration-minutes", 480, "estimated duration in minutes")
	cmd.Flags().StringArrayVar(&predecessors, "predecessor", []string{}, "predecessor template name (repeatable)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func templateListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List task templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListTemplates(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func templateRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove task template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteTemplate(ctx, args[0])
			})
		},
	}
	return cmd
}

func templateRuleCmd() *cobra.Command {
	rule := &cobra.Command{
		Use:   "rule",
		Short: "Manage weather impact rules",
	}
	rule.AddCommand(templateRuleAddCmd())
	rule.AddCommand(templateRuleListCmd())
	rule.AddCommand(templateRuleRemoveCmd())
	return rule
}

func templateRuleAddCmd() *cobra.Command {
	var w domain.WeatherImpactRule
	var tempMin, tempMax, precip, wind float64
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Attach weather impact rule to a template",
		RunE: func(cmd *cobra.Command, args []string) error {
			if w.ID == "" {
				w.ID = uuid.New().String()
			}
			if cmd.Flags().Changed("temperature-min") {
				w.TemperatureMin = &tempMin
			}
			if cmd.Flags().Changed("temperature-max") {
				w.TemperatureMax = &tempMax
			}
			if cmd.Flags().Changed("precipitation-threshold") {
				w.PrecipitationThreshold = &precip
			}
			if cmd.Flags().Changed("wind-threshold") {
				w.WindThreshold = &wind
			}
			switch w.ImpactType {
			case domain.ImpactDelay, domain.ImpactCancel, domain.ImpactReduceProductivity:
			default:
				return fmt.Errorf("invalid impact type %q", w.ImpactType)
			}
			w.CreatedAt = nowRFC3339()
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if _, err := r.GetTemplate(ctx, w.TemplateID); err != nil {
					return err
				}
				if err := r.InsertWeatherRule(ctx, w); err != nil {
					return err
				}
				return printJSONOrTable(w)
			})
		},
	}
	cmd.Flags().StringVar(&w.ID, "id", "", "rule id (random if omitted)")
	cmd.Flags().StringVar(&w.TemplateID, "template", "", "task template id")
	cmd.Flags().StringVar(&w.WeatherCondition, "condition", "", "weather condition (clear, cloudy, rain, snow)")
	cmd.Flags().Float64Var(&tempMin, "temperature-min", 0, "fires below this temperature")
	cmd.Flags().Float64Var(&tempMax, "temperature-max", 0, "fires above this temperature")
	cmd.Flags().Float64Var(&precip, "precipitation-threshold", 0, "fires above this precipitation")
	cmd.Flags().Float64Var(&wind, "wind-threshold", 0, "fires above this wind speed")
	cmd.Flags().StringVar(&w.ImpactType, "impact", "", "impact type (delay, cancel, reduce_productivity)")
	cmd.Flags().Float64Var(&w.ImpactValue, "value", 0, "impact value (days or percent)")
	_ = cmd.MarkFlagRequired("template")
	_ = cmd.MarkFlagRequired("impact")
	return cmd
}

func templateRuleListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List weather impact rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListWeatherRules(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func templateRuleRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove weather impact rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteWeatherRule(ctx, args[0])
			})
		},
	}
	return cmd
}

func resourceCmd() *cobra.Command {
	res := &cobra.Command{
		Use:   "resource",
		Short: "Manage resources",
		Long:  "Resources are crews and equipment. Assignments book them onto tasks; overlapping bookings surface as conflicts.",
	}
	res.AddCommand(resourceAddCmd())
	res.AddCommand(resourceListCmd())
	res.AddCommand(resourceActivateCmd())
	res.AddCommand(resourceDeactivateCmd())
	res.AddCommand(resourceTypeCmd())
	return res
}

func resourceAddCmd() *cobra.Command {
	var res domain.Resource
	var typeID string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add resource",
		RunE: func(cmd *cobra.Command, args []string) error {
			if res.ID == "" {
				res.ID = uuid.New().String()
			}
			if typeID != "" {
				res.TypeID = &typeID
			}
			res.IsActive = true
			res.CreatedAt = nowRFC3339()
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if err := r.InsertResource(ctx, res); err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&res.ID, "id", "", "resource id (random if omitted)")
	cmd.Flags().StringVar(&res.Name, "name", "", "resource name")
	cmd.Flags().StringVar(&typeID, "type", "", "resource type id")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func resourceListCmd() *cobra.Command {
	var activeOnly bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List resources",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListResources(ctx, activeOnly)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().BoolVar(&activeOnly, "active", false, "only active resources")
	return cmd
}

func resourceActivateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "activate <id>",
		Short: "Mark resource active",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.SetResourceActive(ctx, args[0], true)
			})
		},
	}
	return cmd
}

func resourceDeactivateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deactivate <id>",
		Short: "Mark resource inactive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.SetResourceActive(ctx, args[0], false)
			})
		},
	}
	return cmd
}

func resourceTypeCmd() *cobra.Command {
	rt := &cobra.Command{
		Use:   "type",
		Short: "Manage resource types",
	}
	rt.AddCommand(resourceTypeAddCmd())
	rt.AddCommand(resourceTypeListCmd())
	return rt
}

func resourceTypeAddCmd() *cobra.Command {
	var t domain.ResourceType
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add resource type",
		RunE: func(cmd *cobra.Command, args []string) error {
			if t.ID == "" {
				t.ID = uuid.New().String()
			}
			t.CreatedAt = nowRFC3339()
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if err := r.InsertResourceType(ctx, t); err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&t.ID, "id", "", "type id (random if omitted)")
	cmd.Flags().StringVar(&t.Name, "name", "", "type name")
	cmd.Flags().StringVar(&t.Description, "description", "", "description")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func resourceTypeListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List resource types",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListResourceTypes(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func assignmentCmd() *cobra.Command {
	a := &cobra.Command{
		Use:   "assignment",
		Short: "Manage resource assignments",
	}
	a.AddCommand(assignmentAddCmd())
	a.AddCommand(assignmentListCmd())
	a.AddCommand(assignmentRemoveCmd())
	return a
}

func assignmentAddCmd() *cobra.Command {
	var a domain.ResourceAssignment
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Book a resource onto a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.ID == "" {
				a.ID = uuid.New().String()
			}
			if a.AllocationPercentage <= 0 || a.AllocationPercentage > 100 {
				return fmt.Errorf("invalid allocation percentage %d", a.AllocationPercentage)
			}
			a.CreatedAt = nowRFC3339()
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if a.ProjectID == "" {
					a.ProjectID = e.Config.Project.ID
				}
				if _, err := e.Repo.GetTask(ctx, a.TaskID); err != nil {
					return err
				}
				if _, err := e.Repo.GetResource(ctx, a.ResourceID); err != nil {
					return err
				}
				if err := e.Repo.InsertAssignment(ctx, a); err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&a.ID, "id", "", "assignment id (random if omitted)")
	cmd.Flags().StringVar(&a.ProjectID, "project-id", "", "project id")
	cmd.Flags().StringVar(&a.TaskID, "task", "", "task id")
	cmd.Flags().StringVar(&a.ResourceID, "resource", "", "resource id")
	cmd.Flags().StringVar(&a.Start, "start", "", "assignment start (yyyy-mm-dd)")
	cmd.Flags().StringVar(&a.End, "end", "", "assignment end (yyyy-mm-dd)")
	cmd.Flags().IntVar(&a.AllocationPercentage, "allocation", 100, "allocation percentage")
	_ = cmd.MarkFlagRequired("task")
	_ = cmd.MarkFlagRequired("resource")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func assignmentListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List assignments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListAssignments(ctx, e.Config.Project.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func assignmentRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove assignment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAssignment(ctx, args[0])
			})
		},
	}
	return cmd
}

func constraintCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "constraint",
		Short: "Manage scheduling constraints",
	}
	c.AddCommand(constraintAddCmd())
	c.AddCommand(constraintListCmd())
	c.AddCommand(constraintRemoveCmd())
	return c
}

func constraintAddCmd() *cobra.Command {
	var c domain.SchedulingConstraint
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Pin a task to a date",
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.ID == "" {
				c.ID = uuid.New().String()
			}
			switch c.Type {
			case domain.ConstraintMustStartOn, domain.ConstraintMustFinishBy,
				domain.ConstraintNotEarlierThan, domain.ConstraintNotLaterThan:
			default:
				return fmt.Errorf("invalid constraint type %q", c.Type)
			}
			c.CreatedAt = nowRFC3339()
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if c.ProjectID == "" {
					c.ProjectID = e.Config.Project.ID
				}
				if _, err := e.Repo.GetTask(ctx, c.TaskID); err != nil {
					return err
				}
				if err := e.Repo.InsertConstraint(ctx, c); err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&c.ID, "id", "", "constraint id (random if omitted)")
	cmd.Flags().StringVar(&c.ProjectID, "project-id", "", "project id")
	cmd.Flags().StringVar(&c.TaskID, "task", "", "task id")
	cmd.Flags().StringVar(&c.Type, "type", "", "constraint type (must_start_on, must_finish_by, not_earlier_than, not_later_than)")
	cmd.Flags().StringVar(&c.ConstraintDate, "date", "", "constraint date (yyyy-mm-dd)")
	_ = cmd.MarkFlagRequired("task")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func constraintListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List constraints",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListConstraints(ctx, e.Config.Project.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func constraintRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove constraint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteConstraint(ctx, args[0])
			})
		},
	}
	return cmd
}

func jobCmd() *cobra.Command {
	j := &cobra.Command{
		Use:   "job",
		Short: "Manage jobs",
		Long:  "Jobs are pre-existing unscheduled work items. Generate with --from-jobs to turn them into tasks.",
	}
	j.AddCommand(jobAddCmd())
	j.AddCommand(jobListCmd())
	return j
}

func jobAddCmd() *cobra.Command {
	var j domain.Job
	var start, end string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add job",
		RunE: func(cmd *cobra.Command, args []string) error {
			if j.ID == "" {
				j.ID = uuid.New().String()
			}
			if start != "" {
				j.ScheduledStartDate = &start
			}
			if end != "" {
				j.ScheduledEndDate = &end
			}
			j.CreatedAt = nowRFC3339()
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if j.ProjectID == "" {
					j.ProjectID = e.Config.Project.ID
				}
				if err := e.Repo.InsertJob(ctx, j); err != nil {
					return err
				}
				return printJSONOrTable(j)
			})
		},
	}
	cmd.Flags().StringVar(&j.ID, "id", "", "job id (random if omitted)")
	cmd.Flags().StringVar(&j.ProjectID, "project-id", "", "project id")
	cmd.Flags().StringVar(&j.Name, "name", "", "job name")
	cmd.Flags().StringVar(&j.Description, "description", "", "description")
	cmd.Flags().StringVar(&start, "start", "", "scheduled start date (yyyy-mm-dd)")
	cmd.Flags().StringVar(&end, "end", "", "scheduled end date (yyyy-mm-dd)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func jobListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListJobs(ctx, e.Config.Project.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func weatherCmd() *cobra.Command {
	w := &cobra.Command{
		Use:   "weather",
		Short: "Inspect weather data",
	}
	w.AddCommand(weatherForecastCmd())
	w.AddCommand(weatherListCmd())
	return w
}

func weatherForecastCmd() *cobra.Command {
	var location, start, end string
	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Fetch (and store) the forecast for a date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if location == "" {
					location = e.Config.Project.LocationID
				}
				if location == "" {
					return fmt.Errorf("--location required (project has no location)")
				}
				obs, err := e.Weather.Forecast(ctx, location, start, end)
				if err != nil {
					return err
				}
				return printJSONOrTable(obs)
			})
		},
	}
	cmd.Flags().StringVar(&location, "location", "", "location id (defaults to project location)")
	cmd.Flags().StringVar(&start, "start", "", "start date (yyyy-mm-dd)")
	cmd.Flags().StringVar(&end, "end", "", "end date (yyyy-mm-dd)")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func weatherListCmd() *cobra.Command {
	var location, start, end string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored weather observations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if location == "" {
					location = e.Config.Project.LocationID
				}
				items, err := e.Repo.ListWeather(ctx, location, start, end)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&location, "location", "", "location id (defaults to project location)")
	cmd.Flags().StringVar(&start, "start", "", "start date (yyyy-mm-dd)")
	cmd.Flags().StringVar(&end, "end", "", "end date (yyyy-mm-dd)")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func scheduleCmd() *cobra.Command {
	s := &cobra.Command{
		Use:   "schedule",
		Short: "Generate and optimize schedules",
	}
	s.AddCommand(scheduleGenerateCmd())
	s.AddCommand(scheduleOptimizeCmd())
	s.AddCommand(scheduleHistoryCmd())
	return s
}

func scheduleGenerateCmd() *cobra.Command {
	var opts engine.GenerateOptions
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a schedule",
		Long:  "Lays out tasks sequentially from the project start. Default mode uses configured phases; --use-templates instantiates templates with their dependencies; --from-jobs converts jobs.",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tasks, err := e.GenerateSchedule(ctx, e.Config.Project.ID, opts)
				if err != nil {
					return err
				}
				return printTasks(tasks)
			})
		},
	}
	cmd.Flags().StringVar(&opts.StartDate, "start-date", "", "schedule start date (yyyy-mm-dd)")
	cmd.Flags().BoolVar(&opts.UseTemplates, "use-templates", false, "generate from task templates")
	cmd.Flags().BoolVar(&opts.FromJobs, "from-jobs", false, "generate from jobs")
	cmd.Flags().BoolVar(&opts.IncludeWeatherData, "include-weather", false, "apply weather impact rules")
	return cmd
}

func scheduleOptimizeCmd() *cobra.Command {
	var opts engine.OptimizeOptions
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Re-time the schedule using the selected strategies",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tasks, err := e.OptimizeSchedule(ctx, e.Config.Project.ID, opts)
				if err != nil {
					return err
				}
				return printTasks(tasks)
			})
		},
	}
	cmd.Flags().BoolVar(&opts.PrioritizeByDeadline, "by-deadline", false, "order tasks by current end date")
	cmd.Flags().BoolVar(&opts.PrioritizeByDependencies, "by-dependencies", false, "order tasks topologically")
	cmd.Flags().BoolVar(&opts.BalanceResourceLoad, "balance-load", false, "avoid double-booking resources")
	cmd.Flags().BoolVar(&opts.RespectConstraints, "respect-constraints", false, "honor date constraints")
	cmd.Flags().BoolVar(&opts.ConsiderWeather, "consider-weather", false, "apply weather impact rules")
	return cmd
}

func scheduleHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show scheduling run history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListHistory(ctx, e.Config.Project.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func conflictCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "conflict",
		Short: "Detect and resolve scheduling conflicts",
	}
	c.AddCommand(conflictDetectCmd())
	c.AddCommand(conflictListCmd())
	c.AddCommand(conflictResolveCmd())
	return c
}

func conflictDetectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Scan the schedule for conflicts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				conflicts, err := e.DetectConflicts(ctx, e.Config.Project.ID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printConflicts(conflicts)
			})
		},
	}
	return cmd
}

func conflictListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored conflicts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				conflicts, err := e.Repo.ListConflicts(ctx, e.Config.Project.ID)
				if err != nil {
					return err
				}
				return printConflicts(conflicts)
			})
		},
	}
	return cmd
}

func conflictResolveCmd() *cobra.Command {
	var status, note string
	cmd := &cobra.Command{
		Use:   "resolve <id>",
		Short: "Mark a conflict resolved or ignored",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.ResolveConflict(ctx, args[0], status, note, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "resolved", "resolution status (resolved, ignored)")
	cmd.Flags().StringVar(&note, "note", "", "resolution note")
	return cmd
}

func analyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze the schedule",
		Long:  "Reports the critical path, resource utilization and bottlenecks, delay risks, and severe-weather impact.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				report, err := e.AnalyzeSchedule(ctx, e.Config.Project.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(report)
				}
				fmt.Printf("Project: %s\n", report.ProjectID)
				fmt.Printf("Total duration: %d minutes (%d days)\n", report.TotalDurationMinutes, report.TotalDurationDays)
				fmt.Printf("Critical path: %s\n", strings.Join(report.CriticalPath, " -> "))
				if len(report.Bottlenecks) > 0 {
					fmt.Println("Bottlenecks:")
					for _, b := range report.Bottlenecks {
						fmt.Printf("  %s: %.1f%%\n", b.Name, b.Percent)
					}
				}
				if len(report.DelayRisks) > 0 {
					fmt.Println("Delay risks:")
					for _, risk := range report.DelayRisks {
						fmt.Printf("  %s (score %d): %s\n", risk.Name, risk.Score, strings.Join(risk.Factors, "; "))
					}
				}
				if len(report.WeatherImpact) > 0 {
					fmt.Println("Severe weather days:")
					for _, day := range report.WeatherImpact {
						fmt.Printf("  %s %s: %d task(s) affected\n", day.Date, day.Condition, len(day.AffectedTasks))
					}
				}
				return nil
			})
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			r := repo.Repo{DB: conn}
			_, cfg, err := app.ResolveProjectAndConfig(cmd.Context(), workspace, viper.GetString("project"), r)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Siteplan API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	_, cfg, err := app.ResolveProjectAndConfig(ctx, workspace, viper.GetString("project"), r)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	return fn(ctx, r)
}

func printTasks(tasks []domain.Task) error {
	if viper.GetBool("json") {
		return printJSON(tasks)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Name", "Status", "Start", "End"})
	for _, t := range tasks {
		tw.AppendRow(table.Row{t.ID, t.Name, t.Status, deref(t.ScheduledStart), deref(t.ScheduledEnd)})
	}
	tw.Render()
	return nil
}

func printConflicts(conflicts []domain.SchedulingConflict) error {
	if viper.GetBool("json") {
		return printJSON(conflicts)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Type", "Status", "Description"})
	for _, c := range conflicts {
		tw.AppendRow(table.Row{c.ID, c.Type, c.ResolutionStatus, c.Description})
	}
	tw.Render()
	return nil
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func toJSONArray(items []string) string {
	b, _ := json.Marshal(items)
	return string(b)
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
