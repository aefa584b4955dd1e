package repo

import (
	"context"
	"database/sql"

	"siteplan/internal/domain"
)

func (r Repo) InsertTemplate(ctx context.Context, t domain.TaskTemplate) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO task_templates(id,name,description,estimated_duration,predecessors_json,created_at)
		 VALUES (?,?,?,?,?,?)`,
		t.ID, t.Name, nullable(t.Description), t.EstimatedDuration, t.PredecessorsJSON, t.CreatedAt)
	return err
}

func scanTemplate(sc interface{ Scan(...any) error }) (domain.TaskTemplate, error) {
	var t domain.TaskTemplate
	err := sc.Scan(&t.ID, &t.Name, &t.Description, &t.EstimatedDuration, &t.PredecessorsJSON, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

const templateColumns = `id,name,COALESCE(description,'') AS description,estimated_duration,predecessors_json,created_at`

func (r Repo) GetTemplate(ctx context.Context, id string) (domain.TaskTemplate, error) {
	return scanTemplate(r.DB.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM task_templates WHERE id=?`, id))
}

func (r Repo) ListTemplates(ctx context.Context) ([]domain.TaskTemplate, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+templateColumns+` FROM task_templates ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TaskTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) DeleteTemplate(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM task_templates WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertWeatherRule(ctx context.Context, w domain.WeatherImpactRule) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO weather_impact_rules(id,task_template_id,weather_condition,temperature_min,temperature_max,precipitation_threshold,wind_threshold,impact_type,impact_value,created_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?)`,
		w.ID, w.TemplateID, nullable(w.WeatherCondition), w.TemperatureMin, w.TemperatureMax,
		w.PrecipitationThreshold, w.WindThreshold, w.ImpactType, w.ImpactValue, w.CreatedAt)
	return err
}

func (r Repo) ListWeatherRules(ctx context.Context) ([]domain.WeatherImpactRule, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id,task_template_id,COALESCE(weather_condition,'') AS weather_condition,temperature_min,temperature_max,precipitation_threshold,wind_threshold,impact_type,impact_value,created_at
		 FROM weather_impact_rules ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.WeatherImpactRule
	for rows.Next() {
		var w domain.WeatherImpactRule
		if err := rows.Scan(&w.ID, &w.TemplateID, &w.WeatherCondition, &w.TemperatureMin, &w.TemperatureMax,
			&w.PrecipitationThreshold, &w.WindThreshold, &w.ImpactType, &w.ImpactValue, &w.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, w)
	}
	return res, rows.Err()
}

func (r Repo) DeleteWeatherRule(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM weather_impact_rules WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpsertWeather(ctx context.Context, obs []domain.WeatherObservation) error {
	for _, o := range obs {
		if _, err := r.DB.ExecContext(ctx,
			`INSERT INTO weather_data(location_id,forecast_date,temperature,condition,precipitation,wind_speed) VALUES (?,?,?,?,?,?)
ON CONFLICT(location_id,forecast_date) DO UPDATE SET temperature=excluded.temperature, condition=excluded.condition,
precipitation=excluded.precipitation, wind_speed=excluded.wind_speed`,
			o.LocationID, o.Date, o.Temperature, o.Condition, o.Precipitation, o.WindSpeed); err != nil {
			return err
		}
	}
	return nil
}

// ListWeather returns stored observations for a location ordered by date,
// bounded by inclusive yyyy-mm-dd dates.
func (r Repo) ListWeather(ctx context.Context, locationID, startDate, endDate string) ([]domain.WeatherObservation, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT location_id,forecast_date,temperature,condition,precipitation,wind_speed
		 FROM weather_data WHERE location_id=? AND forecast_date>=? AND forecast_date<=? ORDER BY forecast_date`,
		locationID, startDate, endDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.WeatherObservation
	for rows.Next() {
		var o domain.WeatherObservation
		if err := rows.Scan(&o.LocationID, &o.Date, &o.Temperature, &o.Condition, &o.Precipitation, &o.WindSpeed); err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}
