package repository

import (
	"context"
	"fmt"

	"weather-etl/internal/models"
	"weather-etl/pkg/database"
	"weather-etl/pkg/logging"
	"weather-etl/pkg/metrics"
)

// WeatherRepository provides data access for the three fixed tables
type WeatherRepository interface {
	// Schema operations
	EnsureWeatherTable(ctx context.Context) error
	EnsureCropYieldTable(ctx context.Context) error
	EnsureTransformedTable(ctx context.Context) error

	// Write operations
	Upsert(ctx context.Context, table string, rows []models.Row) (*UpsertResult, error)

	// Aggregation
	Transform(ctx context.Context, sourceTable string) ([]models.TransformedRecord, error)

	// Read operations
	GetWeather(ctx context.Context, filter WeatherFilter) ([]models.WeatherRecord, error)
	HasRows(ctx context.Context, table string) (bool, error)
	CountRows(ctx context.Context, table string) (int, error)

	// Utility operations
	HealthCheck(ctx context.Context) error
}

// WeatherFilter defines the filters of a paginated weather query.
// All three filter fields are required by the API; Limit and Offset are
// already resolved from page size and number.
type WeatherFilter struct {
	StartDate models.Date
	EndDate   models.Date
	StationID string
	Limit     int
	Offset    int
}

// weatherRepository implements WeatherRepository
type weatherRepository struct {
	db      *database.DB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewWeatherRepository creates a new weather repository on an injected pool
func NewWeatherRepository(db *database.DB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) WeatherRepository {
	return &weatherRepository{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// IsKnownTable reports whether table is one of the fixed tables
func IsKnownTable(table string) bool {
	switch table {
	case models.TableWeather, models.TableCropYield, models.TableWeatherTransformed:
		return true
	default:
		return false
	}
}

// Transform aggregates the weather table into yearly per-station summaries.
// Rows where every measurement is a sentinel are left out.
func (r *weatherRepository) Transform(ctx context.Context, sourceTable string) ([]models.TransformedRecord, error) {
	if sourceTable != models.TableWeather {
		return nil, &UnknownTableError{Table: sourceTable}
	}

	timer := r.metrics.NewTimer(r.metrics.TransformDuration)
	defer func() {
		duration := timer.ObserveDuration()
		r.logger.Debug(ctx, "[REPO_TRANSFORM] Transform query completed", logging.Fields{
			"source_table": sourceTable,
			"duration_ms":  duration.Milliseconds(),
		})
	}()

	query := fmt.Sprintf(`
		SELECT %s AS years,
		       station_id,
		       AVG(min_temp) AS avg_min_temp,
		       AVG(max_temp) AS avg_max_temp,
		       SUM(precipitation_amt) AS total_precipitation_amt
		FROM %s
		WHERE min_temp <> $1 OR max_temp <> $2 OR precipitation_amt <> $3
		GROUP BY years, station_id
		ORDER BY years, station_id
	`, r.db.Dialect().YearOf("date"), sourceTable)

	var records []models.TransformedRecord
	err := r.db.SelectContext(ctx, "transform", &records, query,
		models.MissingTemperature,
		models.MissingTemperature,
		models.MissingPrecipitation,
	)
	if err != nil {
		return nil, models.NewStepError("transform", fmt.Errorf("failed to aggregate %s: %w", sourceTable, err))
	}

	r.metrics.TransformRows.Set(float64(len(records)))

	return records, nil
}

// GetWeather retrieves one page of weather records ordered by date and station
func (r *weatherRepository) GetWeather(ctx context.Context, filter WeatherFilter) ([]models.WeatherRecord, error) {
	query := `
		SELECT date, max_temp, min_temp, precipitation_amt, station_id, wid
		FROM weather_data
		WHERE date >= $1 AND date <= $2 AND station_id = $3
		ORDER BY date, station_id
		LIMIT $4 OFFSET $5
	`

	records := []models.WeatherRecord{}
	err := r.db.SelectContext(ctx, "get_weather", &records, query,
		filter.StartDate,
		filter.EndDate,
		filter.StationID,
		filter.Limit,
		filter.Offset,
	)
	if err != nil {
		return nil, models.NewStepError("get_weather", fmt.Errorf("failed to get weather records: %w", err))
	}

	return records, nil
}

// HasRows reports whether table holds at least one row
func (r *weatherRepository) HasRows(ctx context.Context, table string) (bool, error) {
	if !IsKnownTable(table) {
		return false, &UnknownTableError{Table: table}
	}

	var exists bool
	query := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s)", table)
	if err := r.db.GetContext(ctx, "has_rows", &exists, query); err != nil {
		return false, models.NewStepError("fetch_table", fmt.Errorf("failed to read %s: %w", table, err))
	}

	return exists, nil
}

// CountRows returns the number of rows in table
func (r *weatherRepository) CountRows(ctx context.Context, table string) (int, error) {
	if !IsKnownTable(table) {
		return 0, &UnknownTableError{Table: table}
	}

	var count int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", table)
	if err := r.db.GetContext(ctx, "count_rows", &count, query); err != nil {
		return 0, models.NewStepError("count_rows", fmt.Errorf("failed to count %s: %w", table, err))
	}

	return count, nil
}

// HealthCheck performs a repository health check
func (r *weatherRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

// UnknownTableError is returned for any table outside the fixed set
type UnknownTableError struct {
	Table string
}

func (e *UnknownTableError) Error() string {
	return fmt.Sprintf("unknown table: %q", e.Table)
}

func (e *UnknownTableError) IsTransient() bool {
	return false
}

// EmptyTableError is returned when a step needs a populated source table
type EmptyTableError struct {
	Table string
}

func (e *EmptyTableError) Error() string {
	return fmt.Sprintf("table %s has no rows", e.Table)
}

func (e *EmptyTableError) IsTransient() bool {
	return false
}
