package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models siteplan.yml, the per-project scheduling configuration.
type Config struct {
	Project struct {
		ID         string `yaml:"id"`
		LocationID string `yaml:"location_id"`
	} `yaml:"project"`
	Scheduling struct {
		WorkdayMinutes          int      `yaml:"workday_minutes"`
		DefaultDurationMinutes  int      `yaml:"default_duration_minutes"`
		DefaultPhases           []string `yaml:"default_phases"`
		DefaultPhaseDays        int      `yaml:"default_phase_days"`
		BottleneckThresholdPct  float64  `yaml:"bottleneck_threshold_pct"`
		RiskReportThreshold     int      `yaml:"risk_report_threshold"`
		SevereRainPrecipitation float64  `yaml:"severe_rain_precipitation"`
		SevereWindSpeed         float64  `yaml:"severe_wind_speed"`
	} `yaml:"scheduling"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with sp project config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Project.ID == "" {
		return fmt.Errorf("config.project.id is required")
	}
	s := &c.Scheduling
	if s.WorkdayMinutes <= 0 {
		return fmt.Errorf("config.scheduling.workday_minutes must be positive")
	}
	if s.DefaultDurationMinutes <= 0 {
		return fmt.Errorf("config.scheduling.default_duration_minutes must be positive")
	}
	if len(s.DefaultPhases) == 0 {
		return fmt.Errorf("config.scheduling.default_phases is required")
	}
	for _, p := range s.DefaultPhases {
		if p == "" {
			return fmt.Errorf("config.scheduling.default_phases contains an empty name")
		}
	}
	if s.DefaultPhaseDays <= 0 {
		return fmt.Errorf("config.scheduling.default_phase_days must be positive")
	}
	if s.BottleneckThresholdPct <= 0 || s.BottleneckThresholdPct > 100 {
		return fmt.Errorf("config.scheduling.bottleneck_threshold_pct must be in (0,100]")
	}
	if s.RiskReportThreshold < 0 {
		return fmt.Errorf("config.scheduling.risk_report_threshold must not be negative")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "siteplan.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(projectID string) string {
	return fmt.Sprintf(defaultTemplate, projectID)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for a project.
func Default(projectID string) *Config {
	var cfg Config
	cfg.Project.ID = projectID
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, projectID))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `project:
  id: %s
  location_id: ""

scheduling:
  # Minutes of schedulable work in one calendar day (8-hour workdays).
  workday_minutes: 480

  # Duration assumed for tasks with no estimate.
  default_duration_minutes: 480

  # Phases used when generating a schedule without templates or jobs.
  default_phases:
    - Project Initiation
    - Planning
    - Execution
    - Monitoring
    - Project Closure
  default_phase_days: 5

  # A resource above this utilization is reported as a bottleneck.
  bottleneck_threshold_pct: 80

  # Delay-risk scores at or below this are omitted from analysis.
  risk_report_threshold: 20

  # Severe-weather cutoffs for the analysis summary.
  severe_rain_precipitation: 0.5
  severe_wind_speed: 20
`
