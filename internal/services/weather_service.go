package services

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/singleflight"

	"weather-etl/internal/models"
	"weather-etl/internal/repository"
	"weather-etl/pkg/logging"
	"weather-etl/pkg/metrics"
)

// Pagination holds the page defaults of the read API
type Pagination struct {
	DefaultPageSize   int
	DefaultPageNumber int
	MaxPageSize       int
}

// WeatherQuery is a filtered page request. Zero or negative page values
// fall back to the defaults.
type WeatherQuery struct {
	StartDate  models.Date
	EndDate    models.Date
	StationID  string
	PageSize   int
	PageNumber int
}

// Fingerprint identifies the query; concurrent identical queries share a fetch
func (q WeatherQuery) Fingerprint() string {
	return fmt.Sprintf("%s|%s|%s|%d|%d", q.StartDate, q.EndDate, q.StationID, q.PageSize, q.PageNumber)
}

// WeatherPage is one page of weather records
type WeatherPage struct {
	Data       []models.WeatherRecord `json:"data"`
	PageNumber int                    `json:"page_number"`
	PageSize   int                    `json:"page_size"`
	Count      int                    `json:"count"`
	Message    string                 `json:"message,omitempty"`
}

// StatsPage holds the yearly summaries of one page of weather records
type StatsPage struct {
	Data       []models.WeatherStats `json:"data"`
	PageNumber int                   `json:"page_number"`
	PageSize   int                   `json:"page_size"`
	Count      int                   `json:"count"`
	Message    string                `json:"message,omitempty"`
}

// NoRecordsMessage accompanies an empty page
const NoRecordsMessage = "No records for this query"

// WeatherService handles weather data reads
type WeatherService struct {
	repo       repository.WeatherRepository
	logger     *logging.StructuredLogger
	metrics    *metrics.Collector
	pagination Pagination
	group      singleflight.Group
}

// NewWeatherService creates a new weather service
func NewWeatherService(repo repository.WeatherRepository, pagination Pagination, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *WeatherService {
	return &WeatherService{
		repo:       repo,
		logger:     logger,
		metrics:    metricsCollector,
		pagination: pagination,
	}
}

// Normalize applies page defaults and the page size cap
func (s *WeatherService) Normalize(q WeatherQuery) WeatherQuery {
	if q.PageSize <= 0 {
		q.PageSize = s.pagination.DefaultPageSize
	}
	if s.pagination.MaxPageSize > 0 && q.PageSize > s.pagination.MaxPageSize {
		q.PageSize = s.pagination.MaxPageSize
	}
	if q.PageNumber <= 0 {
		q.PageNumber = s.pagination.DefaultPageNumber
	}
	return q
}

// GetWeather returns one page of records ordered by date and station
func (s *WeatherService) GetWeather(ctx context.Context, q WeatherQuery) (*WeatherPage, error) {
	q = s.Normalize(q)

	records, err := s.fetch(ctx, q)
	if err != nil {
		return nil, err
	}

	page := &WeatherPage{
		Data:       records,
		PageNumber: q.PageNumber,
		PageSize:   q.PageSize,
		Count:      len(records),
	}
	if len(records) == 0 {
		page.Message = NoRecordsMessage
	}

	return page, nil
}

// GetWeatherStats summarizes the same page GetWeather would return
func (s *WeatherService) GetWeatherStats(ctx context.Context, q WeatherQuery) (*StatsPage, error) {
	q = s.Normalize(q)

	records, err := s.fetch(ctx, q)
	if err != nil {
		return nil, err
	}

	stats := PageStats(records)
	page := &StatsPage{
		Data:       stats,
		PageNumber: q.PageNumber,
		PageSize:   q.PageSize,
		Count:      len(stats),
	}
	if len(records) == 0 {
		page.Message = NoRecordsMessage
	}

	return page, nil
}

// fetch coalesces identical in-flight queries into one repository call.
// The shared query outlives any single caller; each caller still returns
// as soon as its own context is done. The returned slice is shared and
// must not be modified.
func (s *WeatherService) fetch(ctx context.Context, q WeatherQuery) ([]models.WeatherRecord, error) {
	offset, ok := pageOffset(q.PageNumber, q.PageSize)
	if !ok {
		return []models.WeatherRecord{}, nil
	}

	key := q.Fingerprint()
	shared := context.WithoutCancel(ctx)

	ch := s.group.DoChan(key, func() (interface{}, error) {
		return s.repo.GetWeather(shared, repository.WeatherFilter{
			StartDate: q.StartDate,
			EndDate:   q.EndDate,
			StationID: q.StationID,
			Limit:     q.PageSize,
			Offset:    offset,
		})
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("failed to get weather records: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("failed to get weather records: %w", res.Err)
		}
		if res.Shared {
			s.logger.Debug(ctx, "[WEATHER_FETCH] Shared in-flight query result", logging.Fields{
				"fingerprint": key,
			})
		}
		return res.Val.([]models.WeatherRecord), nil
	}
}

// pageOffset returns the row offset of a normalized page. ok is false when
// the offset does not fit in an int, so no row can be on that page.
func pageOffset(pageNumber, pageSize int) (int, bool) {
	if pageSize <= 0 {
		return 0, true
	}
	if pageNumber-1 > math.MaxInt/pageSize {
		return 0, false
	}
	return (pageNumber - 1) * pageSize, true
}
