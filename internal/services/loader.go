package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jszwec/csvutil"

	"weather-etl/internal/models"
	"weather-etl/pkg/logging"
	"weather-etl/pkg/metrics"
)

// Source directory layout below the load root
const (
	WeatherDataDir   = "wx_data"
	CropYieldDataDir = "yld_data"
)

// Loader steps, reported in StepError and load error metrics
const (
	StepPrepareWeather = "prepare_weather_data"
	StepPrepareCrop    = "prepare_crop_data"
)

var (
	weatherHeader   = []string{"date", "max_temp", "min_temp", "precipitation"}
	cropYieldHeader = []string{"year", "crop_grain_yield"}
)

// Loader reads raw station and crop yield files into normalized records.
// Any malformed line aborts the whole load; nothing partial is returned.
type Loader struct {
	root    string
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewLoader creates a loader rooted at dir, which holds wx_data and yld_data
func NewLoader(dir string, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *Loader {
	return &Loader{
		root:    dir,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// StationIDFromFileName returns the file name up to its first '.'
func StationIDFromFileName(name string) string {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return name[:i]
	}
	return name
}

// LoadWeather reads every station file under wx_data. Rows keep file order;
// files are visited in directory listing order.
func (l *Loader) LoadWeather(ctx context.Context) ([]models.WeatherRecord, error) {
	startTime := time.Now()
	dir := filepath.Join(l.root, WeatherDataDir)

	files, err := listFiles(dir)
	if err != nil {
		return nil, l.fail(ctx, StepPrepareWeather, err)
	}

	l.logger.Info(ctx, "[LOAD_FILES] Found station files", logging.Fields{
		"dir":        dir,
		"file_count": len(files),
		"stage":      "FILE_DISCOVERY",
	})

	var records []models.WeatherRecord
	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return nil, l.fail(ctx, StepPrepareWeather, err)
		}

		stationID := StationIDFromFileName(name)
		fileRecords, err := readWeatherFile(filepath.Join(dir, name), stationID)
		if err != nil {
			return nil, l.fail(ctx, StepPrepareWeather, fmt.Errorf("%s: %w", name, err))
		}

		l.logger.Debug(ctx, "[LOAD_FILE] Station file parsed", logging.Fields{
			"file":       name,
			"station_id": stationID,
			"records":    len(fileRecords),
		})

		records = append(records, fileRecords...)
	}

	l.metrics.LoadedRowsTotal.WithLabelValues(models.TableWeather).Add(float64(len(records)))
	l.logger.Info(ctx, "[LOAD_COMPLETE] Weather records prepared", logging.Fields{
		"files":       len(files),
		"records":     len(records),
		"duration_ms": time.Since(startTime).Milliseconds(),
	})

	return records, nil
}

// LoadCropYield reads the files under yld_data. Only the contents of the
// last file visited are returned.
func (l *Loader) LoadCropYield(ctx context.Context) ([]models.CropYieldRecord, error) {
	dir := filepath.Join(l.root, CropYieldDataDir)

	files, err := listFiles(dir)
	if err != nil {
		return nil, l.fail(ctx, StepPrepareCrop, err)
	}

	if len(files) > 1 {
		l.logger.Warn(ctx, "[LOAD_CROP] Multiple crop yield files, keeping the last one only", logging.Fields{
			"dir":        dir,
			"file_count": len(files),
			"kept":       files[len(files)-1],
		})
	}

	var records []models.CropYieldRecord
	for _, name := range files {
		records = nil
		if err := decodeFile(filepath.Join(dir, name), cropYieldHeader, func(dec *csvutil.Decoder) error {
			var rec models.CropYieldRecord
			if err := dec.Decode(&rec); err != nil {
				return err
			}
			records = append(records, rec)
			return nil
		}); err != nil {
			return nil, l.fail(ctx, StepPrepareCrop, fmt.Errorf("%s: %w", name, err))
		}
	}

	l.metrics.LoadedRowsTotal.WithLabelValues(models.TableCropYield).Add(float64(len(records)))
	l.logger.Info(ctx, "[LOAD_COMPLETE] Crop yield records prepared", logging.Fields{
		"files":   len(files),
		"records": len(records),
	})

	return records, nil
}

func (l *Loader) fail(ctx context.Context, step string, err error) error {
	l.metrics.RecordLoadError(step)
	stepErr := models.NewStepError(step, err)
	l.logger.Error(ctx, "[LOAD_ERROR] Load aborted", logging.Fields{
		"step":     step,
		"location": stepErr.Location,
	}, err)
	return stepErr
}

func readWeatherFile(path, stationID string) ([]models.WeatherRecord, error) {
	var records []models.WeatherRecord
	err := decodeFile(path, weatherHeader, func(dec *csvutil.Decoder) error {
		var raw models.RawWeatherRecord
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		rec, err := raw.ToRecord(stationID)
		if err != nil {
			return err
		}
		records = append(records, rec)
		return nil
	})
	return records, err
}

// decodeFile runs next over every tab-delimited line of path until EOF.
// Blank lines are skipped by the csv reader.
func decodeFile(path string, header []string, next func(*csvutil.Decoder) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = '\t'
	r.FieldsPerRecord = len(header)

	dec, err := csvutil.NewDecoder(trimReader{r}, header...)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("failed to create decoder: %w", err)
	}

	for n := 1; ; n++ {
		err := next(dec)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("record %d: %w", n, err)
		}
	}
}

// trimReader strips the padding of right-aligned columns before decoding
type trimReader struct {
	r *csv.Reader
}

func (t trimReader) Read() ([]string, error) {
	record, err := t.r.Read()
	for i := range record {
		record[i] = strings.TrimSpace(record[i])
	}
	return record, err
}

// listFiles returns the regular files of dir in listing order
func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		files = append(files, e.Name())
	}
	return files, nil
}
