package engine

import (
	"context"
	"hash/fnv"
	"time"

	"siteplan/internal/domain"
	"siteplan/internal/repo"
)

// WeatherProvider is the weather observation collaborator. Implementations
// return one observation per calendar day in [startDate, endDate], inclusive,
// dates as yyyy-mm-dd. Missing days are allowed and mean "no impact possible".
type WeatherProvider interface {
	Forecast(ctx context.Context, locationID, startDate, endDate string) ([]domain.WeatherObservation, error)
}

// StoredWeatherProvider serves observations from the weather_data table. Days
// the store has no row for are synthesized deterministically from the
// location and date, then persisted so later calls see the same forecast.
type StoredWeatherProvider struct {
	Repo repo.Repo
}

func (p StoredWeatherProvider) Forecast(ctx context.Context, locationID, startDate, endDate string) ([]domain.WeatherObservation, error) {
	stored, err := p.Repo.ListWeather(ctx, locationID, startDate, endDate)
	if err != nil {
		return nil, err
	}
	have := make(map[string]bool, len(stored))
	for _, o := range stored {
		have[o.Date] = true
	}

	start, err := time.Parse("2006-01-02", startDate)
	if err != nil {
		return nil, err
	}
	end, err := time.Parse("2006-01-02", endDate)
	if err != nil {
		return nil, err
	}

	var synthesized []domain.WeatherObservation
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		date := day.Format("2006-01-02")
		if have[date] {
			continue
		}
		synthesized = append(synthesized, synthesizeObservation(locationID, date))
	}
	if len(synthesized) > 0 {
		if err := p.Repo.UpsertWeather(ctx, synthesized); err != nil {
			return nil, err
		}
		stored = append(stored, synthesized...)
	}
	return stored, nil
}

var forecastConditions = []string{"clear", "cloudy", "rain", "snow"}

// synthesizeObservation derives a plausible day of weather from a hash of
// location and date, so repeated requests agree without a stored row.
func synthesizeObservation(locationID, date string) domain.WeatherObservation {
	h := fnv.New64a()
	h.Write([]byte(locationID + "|" + date))
	seed := h.Sum64()

	frac := func(n uint) float64 {
		return float64((seed>>n)&0xffff) / 0xffff
	}
	condition := forecastConditions[seed%uint64(len(forecastConditions))]

	var precipitation float64
	switch condition {
	case "rain":
		precipitation = frac(8) * 1.5
	case "snow":
		precipitation = frac(8) * 6
	}
	windSpeed := frac(16) * 25

	temperature := 70.0
	switch condition {
	case "clear":
		temperature = 65 + frac(24)*20
	case "cloudy":
		temperature = 60 + frac(24)*15
	case "rain":
		temperature = 50 + frac(24)*15
	case "snow":
		temperature = 20 + frac(24)*15
	}

	return domain.WeatherObservation{
		LocationID:    locationID,
		Date:          date,
		Temperature:   temperature,
		Condition:     condition,
		Precipitation: precipitation,
		WindSpeed:     windSpeed,
	}
}
