package services

import (
	"cmp"
	"context"
	"slices"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"weather-etl/internal/models"
	"weather-etl/internal/repository"
	"weather-etl/pkg/logging"
	"weather-etl/pkg/metrics"
)

// StatisticsService derives yearly per-station summaries, either persisted
// from the whole weather table or computed over a single page of records
type StatisticsService struct {
	repo    repository.WeatherRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewStatisticsService creates a new statistics service
func NewStatisticsService(repo repository.WeatherRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *StatisticsService {
	return &StatisticsService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// RefreshTransformed runs the yearly aggregation over sourceTable and upserts
// the result into weather_data_transformed. The source must already hold rows.
func (s *StatisticsService) RefreshTransformed(ctx context.Context, sourceTable string) (*LoadResult, error) {
	startTime := time.Now()

	s.logger.Info(ctx, "[TRANSFORM_START] Starting transform", logging.Fields{
		"source_table": sourceTable,
		"stage":        "INITIALIZATION",
	})

	populated, err := s.repo.HasRows(ctx, sourceTable)
	if err != nil {
		s.metrics.RecordLoadError("fetch_table")
		return nil, err
	}
	if !populated {
		s.metrics.RecordLoadError("fetch_table")
		return nil, models.NewStepError("fetch_table", &repository.EmptyTableError{Table: sourceTable})
	}

	records, err := s.repo.Transform(ctx, sourceTable)
	if err != nil {
		s.metrics.RecordLoadError("transform")
		return nil, err
	}

	upserted, err := s.repo.Upsert(ctx, models.TableWeatherTransformed, repository.TransformedRows(records))
	if err != nil {
		s.metrics.RecordLoadError("upsert")
		return nil, err
	}

	result := &LoadResult{
		Table:    models.TableWeatherTransformed,
		Source:   sourceTable,
		Loaded:   len(records),
		Inserted: upserted.Inserted,
		Skipped:  upserted.Skipped,
		Duration: time.Since(startTime),
	}

	s.metrics.LoadDuration.WithLabelValues(models.TableWeatherTransformed).Observe(result.Duration.Seconds())
	s.logger.Info(ctx, "[TRANSFORM_COMPLETE] Transform completed", logging.Fields{
		"source_table":     sourceTable,
		"rows":             result.Loaded,
		"inserted":         result.Inserted,
		"skipped":          result.Skipped,
		"duration_seconds": result.Duration.Seconds(),
		"stage":            "COMPLETE",
	})

	return result, nil
}

type statsKey struct {
	year      int
	stationID string
}

// PageStats groups a page of records by (year, station) and computes the
// mean max/min temperature and total precipitation of each group. Values are
// taken as stored, sentinels included. Output is ordered by year then station.
func PageStats(records []models.WeatherRecord) []models.WeatherStats {
	type series struct {
		maxTemp, minTemp, precip []float64
	}

	groups := make(map[statsKey]*series)
	for _, rec := range records {
		key := statsKey{year: rec.Date.Year(), stationID: rec.StationID}
		g, ok := groups[key]
		if !ok {
			g = &series{}
			groups[key] = g
		}
		g.maxTemp = append(g.maxTemp, rec.MaxTemp)
		g.minTemp = append(g.minTemp, rec.MinTemp)
		g.precip = append(g.precip, rec.PrecipitationAmt)
	}

	stats := make([]models.WeatherStats, 0, len(groups))
	for key, g := range groups {
		stats = append(stats, models.WeatherStats{
			Year:                  key.year,
			StationID:             key.stationID,
			AvgMaxTemp:            stat.Mean(g.maxTemp, nil),
			AvgMinTemp:            stat.Mean(g.minTemp, nil),
			TotalPrecipitationAmt: floats.Sum(g.precip),
			ObservationCount:      len(g.maxTemp),
		})
	}

	slices.SortFunc(stats, func(a, b models.WeatherStats) int {
		if c := cmp.Compare(a.Year, b.Year); c != 0 {
			return c
		}
		return cmp.Compare(a.StationID, b.StationID)
	})

	return stats
}
