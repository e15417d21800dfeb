package services

import (
	"context"
	"fmt"
	"time"

	"weather-etl/internal/models"
	"weather-etl/internal/repository"
	"weather-etl/pkg/logging"
	"weather-etl/pkg/metrics"
)

// IngestionService sequences schema creation, loading and transforming
type IngestionService struct {
	repo    repository.WeatherRepository
	stats   *StatisticsService
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// LoadResult reports one load or transform run
type LoadResult struct {
	Table    string        `json:"table"`
	Source   string        `json:"source"`
	Loaded   int           `json:"loaded"`
	Inserted int           `json:"inserted"`
	Skipped  int           `json:"skipped"`
	Duration time.Duration `json:"duration"`
}

func (r *LoadResult) String() string {
	return fmt.Sprintf("%s: loaded=%d inserted=%d skipped=%d duration=%s",
		r.Table, r.Loaded, r.Inserted, r.Skipped, r.Duration.Round(time.Millisecond))
}

// TableSelection picks which tables CreateTables ensures
type TableSelection struct {
	Weather     bool
	CropYield   bool
	Transformed bool
}

func (t TableSelection) none() bool {
	return !t.Weather && !t.CropYield && !t.Transformed
}

// NewIngestionService creates a new ingestion service
func NewIngestionService(repo repository.WeatherRepository, stats *StatisticsService, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *IngestionService {
	return &IngestionService{
		repo:    repo,
		stats:   stats,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// CreateTables ensures the selected tables exist. An empty selection
// ensures all three.
func (s *IngestionService) CreateTables(ctx context.Context, sel TableSelection) error {
	all := sel.none()

	if all || sel.Weather {
		if err := s.repo.EnsureWeatherTable(ctx); err != nil {
			return err
		}
	}
	if all || sel.CropYield {
		if err := s.repo.EnsureCropYieldTable(ctx); err != nil {
			return err
		}
	}
	if all || sel.Transformed {
		if err := s.repo.EnsureTransformedTable(ctx); err != nil {
			return err
		}
	}

	return nil
}

// LoadTable fills table from its source. weather_data and crop_yield_data are
// read from files below dir; weather_data_transformed is aggregated from
// sourceTable, which must already be populated.
func (s *IngestionService) LoadTable(ctx context.Context, table, dir, sourceTable string) (*LoadResult, error) {
	switch table {
	case models.TableWeather:
		return s.loadWeather(ctx, dir)
	case models.TableCropYield:
		return s.loadCropYield(ctx, dir)
	case models.TableWeatherTransformed:
		return s.stats.RefreshTransformed(ctx, sourceTable)
	default:
		return nil, &repository.UnknownTableError{Table: table}
	}
}

func (s *IngestionService) loadWeather(ctx context.Context, dir string) (*LoadResult, error) {
	startTime := time.Now()

	s.logger.Info(ctx, "[INGEST_START] Starting data ingestion", logging.Fields{
		"table":    models.TableWeather,
		"data_dir": dir,
		"stage":    "INITIALIZATION",
	})

	records, err := NewLoader(dir, s.logger, s.metrics).LoadWeather(ctx)
	if err != nil {
		return nil, err
	}

	upserted, err := s.repo.Upsert(ctx, models.TableWeather, repository.WeatherRows(records))
	if err != nil {
		s.metrics.RecordLoadError("upsert")
		return nil, err
	}

	return s.complete(ctx, models.TableWeather, dir, len(records), upserted, startTime), nil
}

func (s *IngestionService) loadCropYield(ctx context.Context, dir string) (*LoadResult, error) {
	startTime := time.Now()

	s.logger.Info(ctx, "[INGEST_START] Starting data ingestion", logging.Fields{
		"table":    models.TableCropYield,
		"data_dir": dir,
		"stage":    "INITIALIZATION",
	})

	records, err := NewLoader(dir, s.logger, s.metrics).LoadCropYield(ctx)
	if err != nil {
		return nil, err
	}

	upserted, err := s.repo.Upsert(ctx, models.TableCropYield, repository.CropYieldRows(records))
	if err != nil {
		s.metrics.RecordLoadError("upsert")
		return nil, err
	}

	return s.complete(ctx, models.TableCropYield, dir, len(records), upserted, startTime), nil
}

func (s *IngestionService) complete(ctx context.Context, table, dir string, loaded int, upserted *repository.UpsertResult, startTime time.Time) *LoadResult {
	result := &LoadResult{
		Table:    table,
		Source:   dir,
		Loaded:   loaded,
		Inserted: upserted.Inserted,
		Skipped:  upserted.Skipped,
		Duration: time.Since(startTime),
	}

	s.metrics.LoadDuration.WithLabelValues(table).Observe(result.Duration.Seconds())

	recordsPerSecond := 0.0
	if secs := result.Duration.Seconds(); secs > 0 {
		recordsPerSecond = float64(result.Loaded) / secs
	}

	s.logger.Info(ctx, "[INGEST_COMPLETE] Data ingestion completed", logging.Fields{
		"table":              table,
		"loaded":             result.Loaded,
		"inserted":           result.Inserted,
		"skipped":            result.Skipped,
		"duration_seconds":   result.Duration.Seconds(),
		"records_per_second": recordsPerSecond,
		"stage":              "COMPLETE",
	})

	return result
}

// DryRun parses the source files of table below dir without touching the
// database and returns the prepared record count
func DryRun(ctx context.Context, table, dir string, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) (*LoadResult, error) {
	startTime := time.Now()
	loader := NewLoader(dir, logger, metricsCollector)

	var loaded int
	switch table {
	case models.TableWeather:
		records, err := loader.LoadWeather(ctx)
		if err != nil {
			return nil, err
		}
		loaded = len(records)
	case models.TableCropYield:
		records, err := loader.LoadCropYield(ctx)
		if err != nil {
			return nil, err
		}
		loaded = len(records)
	default:
		return nil, fmt.Errorf("dry run is only available for file-backed tables: %w", &repository.UnknownTableError{Table: table})
	}

	return &LoadResult{
		Table:    table,
		Source:   dir,
		Loaded:   loaded,
		Duration: time.Since(startTime),
	}, nil
}
