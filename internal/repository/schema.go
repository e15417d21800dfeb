package repository

import (
	"context"
	"fmt"

	"weather-etl/internal/models"
	"weather-etl/pkg/logging"
)

const createWeatherTable = `
	CREATE TABLE IF NOT EXISTS weather_data (
		date              DATE    NOT NULL,
		max_temp          NUMERIC NOT NULL,
		min_temp          NUMERIC NOT NULL,
		precipitation_amt NUMERIC NULL,
		station_id        TEXT    NULL,
		wid               TEXT    PRIMARY KEY NOT NULL
	)
`

const createCropYieldTable = `
	CREATE TABLE IF NOT EXISTS crop_yield_data (
		year             NUMERIC NOT NULL,
		crop_grain_yield NUMERIC NOT NULL
	)
`

const createTransformedTable = `
	CREATE TABLE IF NOT EXISTS weather_data_transformed (
		years                   NUMERIC NOT NULL,
		station_id              TEXT    NULL,
		avg_min_temp            NUMERIC NOT NULL,
		avg_max_temp            NUMERIC NOT NULL,
		total_precipitation_amt NUMERIC NULL
	)
`

// EnsureWeatherTable creates weather_data if it does not exist
func (r *weatherRepository) EnsureWeatherTable(ctx context.Context) error {
	return r.ensureTable(ctx, models.TableWeather, createWeatherTable)
}

// EnsureCropYieldTable creates crop_yield_data if it does not exist
func (r *weatherRepository) EnsureCropYieldTable(ctx context.Context) error {
	return r.ensureTable(ctx, models.TableCropYield, createCropYieldTable)
}

// EnsureTransformedTable creates weather_data_transformed if it does not exist
func (r *weatherRepository) EnsureTransformedTable(ctx context.Context) error {
	return r.ensureTable(ctx, models.TableWeatherTransformed, createTransformedTable)
}

func (r *weatherRepository) ensureTable(ctx context.Context, table, ddl string) error {
	if _, err := r.db.ExecContext(ctx, "create_table", ddl); err != nil {
		return models.NewStepError("create_table", fmt.Errorf("failed to create table %s: %w", table, err))
	}

	r.logger.Info(ctx, "[SCHEMA] Table ensured", logging.Fields{
		"table": table,
	})

	return nil
}
