package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Fixed tables of the store
const (
	TableWeather            = "weather_data"
	TableCropYield          = "crop_yield_data"
	TableWeatherTransformed = "weather_data_transformed"
)

// Missing-value sentinels after unit conversion. They are stored as literal
// values and excluded only by the aggregation query.
const (
	MissingTemperature   = -999.9
	MissingPrecipitation = -99.99
)

const (
	sourceDateLayout = "20060102"
	isoDateLayout    = "2006-01-02"
)

// Row is a normalized record that knows its own column set, in table order
type Row interface {
	Columns() []string
	Values() []interface{}
}

// Date is a calendar date without time of day. It is stored as an ISO
// date and rendered as YYYY-MM-DD.
type Date struct {
	time.Time
}

// NewDate returns the Date for the given calendar day
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseSourceDate parses the YYYYMMDD form used by station files
func ParseSourceDate(s string) (Date, error) {
	t, err := time.Parse(sourceDateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, err
	}
	return Date{t}, nil
}

// ParseISODate parses YYYY-MM-DD
func ParseISODate(s string) (Date, error) {
	t, err := time.Parse(isoDateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, err
	}
	return Date{t}, nil
}

// String returns the ISO form, YYYY-MM-DD
func (d Date) String() string {
	return d.Time.Format(isoDateLayout)
}

// Value implements driver.Valuer
func (d Date) Value() (driver.Value, error) {
	return d.String(), nil
}

// Scan implements sql.Scanner. Drivers hand back either a time.Time
// (postgres DATE) or text (sqlite).
func (d *Date) Scan(src interface{}) error {
	switch v := src.(type) {
	case time.Time:
		y, m, day := v.Date()
		*d = NewDate(y, m, day)
		return nil
	case string:
		return d.scanText(v)
	case []byte:
		return d.scanText(string(v))
	case nil:
		*d = Date{}
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Date", src)
	}
}

func (d *Date) scanText(s string) error {
	if len(s) < len(isoDateLayout) {
		return fmt.Errorf("invalid date %q", s)
	}
	parsed, err := ParseISODate(s[:len(isoDateLayout)])
	if err != nil {
		return fmt.Errorf("invalid date %q: %w", s, err)
	}
	*d = parsed
	return nil
}

// MarshalJSON renders the date as "YYYY-MM-DD"
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts "YYYY-MM-DD"
func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseISODate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// EncodeMsgpack renders the date as a string in MessagePack responses
func (d Date) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeString(d.String())
}

// DecodeMsgpack reads the string form written by EncodeMsgpack
func (d *Date) DecodeMsgpack(dec *msgpack.Decoder) error {
	s, err := dec.DecodeString()
	if err != nil {
		return err
	}
	parsed, err := ParseISODate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// WeatherRecord is one normalized daily observation of a station
type WeatherRecord struct {
	Date             Date    `json:"date" db:"date"`
	MaxTemp          float64 `json:"max_temp" db:"max_temp"`
	MinTemp          float64 `json:"min_temp" db:"min_temp"`
	PrecipitationAmt float64 `json:"precipitation_amt" db:"precipitation_amt"`
	StationID        string  `json:"station_id" db:"station_id"`
	WID              string  `json:"wid" db:"wid"`
}

var weatherColumns = []string{"date", "max_temp", "min_temp", "precipitation_amt", "station_id", "wid"}

// Columns implements Row
func (r WeatherRecord) Columns() []string { return weatherColumns }

// Values implements Row
func (r WeatherRecord) Values() []interface{} {
	return []interface{}{r.Date, r.MaxTemp, r.MinTemp, r.PrecipitationAmt, r.StationID, r.WID}
}

// WeatherID derives the composite key of a weather row
func WeatherID(stationID string, date Date) string {
	return stationID + "_" + date.String()
}

// CropYieldRecord is one year of total grain yield
type CropYieldRecord struct {
	Year           int     `json:"year" db:"year" csv:"year"`
	CropGrainYield float64 `json:"crop_grain_yield" db:"crop_grain_yield" csv:"crop_grain_yield"`
}

var cropYieldColumns = []string{"year", "crop_grain_yield"}

// Columns implements Row
func (r CropYieldRecord) Columns() []string { return cropYieldColumns }

// Values implements Row
func (r CropYieldRecord) Values() []interface{} {
	return []interface{}{r.Year, r.CropGrainYield}
}

// TransformedRecord is the yearly per-station aggregate persisted by the transform
type TransformedRecord struct {
	Years                 int     `json:"years" db:"years"`
	StationID             string  `json:"station_id" db:"station_id"`
	AvgMinTemp            float64 `json:"avg_min_temp" db:"avg_min_temp"`
	AvgMaxTemp            float64 `json:"avg_max_temp" db:"avg_max_temp"`
	TotalPrecipitationAmt float64 `json:"total_precipitation_amt" db:"total_precipitation_amt"`
}

var transformedColumns = []string{"years", "station_id", "avg_min_temp", "avg_max_temp", "total_precipitation_amt"}

// Columns implements Row
func (r TransformedRecord) Columns() []string { return transformedColumns }

// Values implements Row
func (r TransformedRecord) Values() []interface{} {
	return []interface{}{r.Years, r.StationID, r.AvgMinTemp, r.AvgMaxTemp, r.TotalPrecipitationAmt}
}

// WeatherStats is a yearly per-station summary computed over one API page
type WeatherStats struct {
	Year                  int     `json:"year"`
	StationID             string  `json:"station_id"`
	AvgMaxTemp            float64 `json:"avg_max_temp"`
	AvgMinTemp            float64 `json:"avg_min_temp"`
	TotalPrecipitationAmt float64 `json:"total_precipitation_amt"`
	ObservationCount      int     `json:"observation_count"`
}

// RawWeatherRecord represents a single line from a station file.
// Format: YYYYMMDD\tMAX_TEMP\tMIN_TEMP\tPRECIP
type RawWeatherRecord struct {
	Date                  string `csv:"date"`
	MaxTemperatureTenths  int    `csv:"max_temp"`      // 0.1°C
	MinTemperatureTenths  int    `csv:"min_temp"`      // 0.1°C
	PrecipitationHundreds int    `csv:"precipitation"` // 0.01 cm
}

// ToRecord applies the unit conversions and derives the row key.
// Sentinels (-9999) convert to -999.9 / -99.99 and are kept as values.
func (r *RawWeatherRecord) ToRecord(stationID string) (WeatherRecord, error) {
	date, err := ParseSourceDate(r.Date)
	if err != nil {
		return WeatherRecord{}, &ValidationError{
			Field:   "date",
			Value:   r.Date,
			Message: "invalid date format, expected YYYYMMDD",
		}
	}

	return WeatherRecord{
		Date:             date,
		MaxTemp:          float64(r.MaxTemperatureTenths) / 10.0,
		MinTemp:          float64(r.MinTemperatureTenths) / 10.0,
		PrecipitationAmt: float64(r.PrecipitationHundreds) / 100.0,
		StationID:        stationID,
		WID:              WeatherID(stationID, date),
	}, nil
}
