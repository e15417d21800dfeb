package repository

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"weather-etl/internal/models"
	"weather-etl/pkg/logging"
)

// UpsertResult summarizes one upsert run
type UpsertResult struct {
	Table    string        `json:"table"`
	Rows     int           `json:"rows"`
	Inserted int           `json:"inserted"`
	Skipped  int           `json:"skipped"`
	Duration time.Duration `json:"duration"`
}

// Upsert inserts every row that has no exact full-row match in table.
// Each row is an independent check-then-insert pair; the batch is not
// atomic, and the first failing row aborts the rest.
func (r *weatherRepository) Upsert(ctx context.Context, table string, rows []models.Row) (*UpsertResult, error) {
	if !IsKnownTable(table) {
		return nil, &UnknownTableError{Table: table}
	}

	result := &UpsertResult{Table: table, Rows: len(rows)}
	if len(rows) == 0 {
		return result, nil
	}

	timer := time.Now()
	defer func() {
		result.Duration = time.Since(timer)
		r.metrics.RecordUpsert(table, result.Inserted, result.Skipped, result.Duration)
	}()

	r.logger.Info(ctx, "[UPSERT_START] Upsert started", logging.Fields{
		"table": table,
		"rows":  len(rows),
	})

	var existsQuery, insertQuery string
	var columns []string

	for i, row := range rows {
		if existsQuery == "" || !slices.Equal(columns, row.Columns()) {
			columns = row.Columns()
			existsQuery, insertQuery = buildUpsertQueries(table, columns)
		}

		values := row.Values()

		var exists bool
		if err := r.db.GetContext(ctx, "upsert_exists", &exists, existsQuery, values...); err != nil {
			return result, models.NewStepError("upsert", fmt.Errorf("existence check for row %d of %s: %w", i, table, err))
		}
		if exists {
			result.Skipped++
			continue
		}

		if _, err := r.db.ExecContext(ctx, "upsert_insert", insertQuery, values...); err != nil {
			return result, models.NewStepError("upsert", fmt.Errorf("insert of row %d into %s: %w", i, table, err))
		}
		result.Inserted++
	}

	r.logger.Info(ctx, "[UPSERT_COMPLETE] Upsert finished", logging.Fields{
		"table":       table,
		"rows":        len(rows),
		"inserted":    result.Inserted,
		"skipped":     result.Skipped,
		"duration_ms": time.Since(timer).Milliseconds(),
	})

	return result, nil
}

// buildUpsertQueries renders the full-row existence check and the insert for
// a whitelisted table. Column names come from the record types, never from input.
func buildUpsertQueries(table string, columns []string) (string, string) {
	conditions := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, col := range columns {
		conditions[i] = fmt.Sprintf("%s = $%d", col, i+1)
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	exists := fmt.Sprintf(
		"SELECT EXISTS (SELECT 1 FROM %s WHERE %s)",
		table, strings.Join(conditions, " AND "),
	)
	insert := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(columns, ", "), strings.Join(placeholders, ", "),
	)

	return exists, insert
}

// WeatherRows adapts weather records to the upsert input
func WeatherRows(records []models.WeatherRecord) []models.Row {
	rows := make([]models.Row, len(records))
	for i := range records {
		rows[i] = records[i]
	}
	return rows
}

// CropYieldRows adapts crop yield records to the upsert input
func CropYieldRows(records []models.CropYieldRecord) []models.Row {
	rows := make([]models.Row, len(records))
	for i := range records {
		rows[i] = records[i]
	}
	return rows
}

// TransformedRows adapts transformed records to the upsert input
func TransformedRows(records []models.TransformedRecord) []models.Row {
	rows := make([]models.Row, len(records))
	for i := range records {
		rows[i] = records[i]
	}
	return rows
}
