package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// TestRawWeatherRecord_ToRecord tests the unit conversions and key derivation
func TestRawWeatherRecord_ToRecord(t *testing.T) {
	tests := []struct {
		name      string
		record    RawWeatherRecord
		stationID string
		wantErr   bool
		want      WeatherRecord
	}{
		{
			name: "valid record",
			record: RawWeatherRecord{
				Date:                  "19940701",
				MaxTemperatureTenths:  205,
				MinTemperatureTenths:  100,
				PrecipitationHundreds: 150,
			},
			stationID: "USC001",
			want: WeatherRecord{
				Date:             NewDate(1994, time.July, 1),
				MaxTemp:          20.5,
				MinTemp:          10.0,
				PrecipitationAmt: 1.5,
				StationID:        "USC001",
				WID:              "USC001_1994-07-01",
			},
		},
		{
			name: "sentinels are kept as literal values",
			record: RawWeatherRecord{
				Date:                  "19940702",
				MaxTemperatureTenths:  -9999,
				MinTemperatureTenths:  -9999,
				PrecipitationHundreds: -9999,
			},
			stationID: "USC001",
			want: WeatherRecord{
				Date:             NewDate(1994, time.July, 2),
				MaxTemp:          MissingTemperature,
				MinTemp:          MissingTemperature,
				PrecipitationAmt: MissingPrecipitation,
				StationID:        "USC001",
				WID:              "USC001_1994-07-02",
			},
		},
		{
			name: "negative temperatures",
			record: RawWeatherRecord{
				Date:                  "20230115",
				MaxTemperatureTenths:  -50,
				MinTemperatureTenths:  -100,
				PrecipitationHundreds: 0,
			},
			stationID: "TEST001",
			want: WeatherRecord{
				Date:      NewDate(2023, time.January, 15),
				MaxTemp:   -5.0,
				MinTemp:   -10.0,
				StationID: "TEST001",
				WID:       "TEST001_2023-01-15",
			},
		},
		{
			name: "decimal precision",
			record: RawWeatherRecord{
				Date:                  "20230115",
				MaxTemperatureTenths:  255,
				MinTemperatureTenths:  144,
				PrecipitationHundreds: 123,
			},
			stationID: "TEST001",
			want: WeatherRecord{
				Date:             NewDate(2023, time.January, 15),
				MaxTemp:          25.5,
				MinTemp:          14.4,
				PrecipitationAmt: 1.23,
				StationID:        "TEST001",
				WID:              "TEST001_2023-01-15",
			},
		},
		{
			name:      "invalid date format",
			record:    RawWeatherRecord{Date: "1994-07-01", MaxTemperatureTenths: 1},
			stationID: "USC001",
			wantErr:   true,
		},
		{
			name:      "impossible date",
			record:    RawWeatherRecord{Date: "19940231"},
			stationID: "USC001",
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.record.ToRecord(tt.stationID)

			if (err != nil) != tt.wantErr {
				t.Fatalf("ToRecord() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				var verr *ValidationError
				if !errors.As(err, &verr) {
					t.Errorf("ToRecord() error type = %T, want *ValidationError", err)
				}
				return
			}

			if !got.Date.Equal(tt.want.Date.Time) {
				t.Errorf("Date = %v, want %v", got.Date, tt.want.Date)
			}
			if got.MaxTemp != tt.want.MaxTemp {
				t.Errorf("MaxTemp = %v, want %v", got.MaxTemp, tt.want.MaxTemp)
			}
			if got.MinTemp != tt.want.MinTemp {
				t.Errorf("MinTemp = %v, want %v", got.MinTemp, tt.want.MinTemp)
			}
			if got.PrecipitationAmt != tt.want.PrecipitationAmt {
				t.Errorf("PrecipitationAmt = %v, want %v", got.PrecipitationAmt, tt.want.PrecipitationAmt)
			}
			if got.StationID != tt.want.StationID {
				t.Errorf("StationID = %v, want %v", got.StationID, tt.want.StationID)
			}
			if got.WID != tt.want.WID {
				t.Errorf("WID = %v, want %v", got.WID, tt.want.WID)
			}
		})
	}
}

func TestWeatherRecord_Row(t *testing.T) {
	rec := WeatherRecord{
		Date:             NewDate(1994, time.July, 1),
		MaxTemp:          20.5,
		MinTemp:          10,
		PrecipitationAmt: 1.5,
		StationID:        "USC001",
		WID:              "USC001_1994-07-01",
	}

	cols := rec.Columns()
	vals := rec.Values()
	if len(cols) != len(vals) {
		t.Fatalf("len(Columns()) = %d, len(Values()) = %d", len(cols), len(vals))
	}
	if cols[0] != "date" || cols[5] != "wid" {
		t.Errorf("Columns() = %v", cols)
	}

	v, err := vals[0].(driver.Valuer).Value()
	if err != nil {
		t.Fatalf("Value() error = %v", err)
	}
	if v != "1994-07-01" {
		t.Errorf("date value = %v, want 1994-07-01", v)
	}
}

func TestDate_Scan(t *testing.T) {
	tests := []struct {
		name    string
		src     interface{}
		want    string
		wantErr bool
	}{
		{name: "time", src: time.Date(1985, 1, 3, 0, 0, 0, 0, time.FixedZone("X", 3600)), want: "1985-01-03"},
		{name: "iso string", src: "1985-01-03", want: "1985-01-03"},
		{name: "timestamp string", src: "1985-01-03T00:00:00Z", want: "1985-01-03"},
		{name: "bytes", src: []byte("2014-12-31"), want: "2014-12-31"},
		{name: "short string", src: "1985", wantErr: true},
		{name: "garbage", src: "not-a-date", wantErr: true},
		{name: "unsupported type", src: 42, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Date
			err := d.Scan(tt.src)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Scan() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && d.String() != tt.want {
				t.Errorf("Scan() = %v, want %v", d, tt.want)
			}
		})
	}
}

func TestDate_Encoding(t *testing.T) {
	rec := WeatherRecord{Date: NewDate(2001, time.March, 9), StationID: "USC002"}

	b, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	var asMap map[string]interface{}
	if err := json.Unmarshal(b, &asMap); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if asMap["date"] != "2001-03-09" {
		t.Errorf("json date = %v, want 2001-03-09", asMap["date"])
	}

	var back WeatherRecord
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("json.Unmarshal() into record error = %v", err)
	}
	if back.Date.String() != "2001-03-09" {
		t.Errorf("round trip date = %v", back.Date)
	}

	packed, err := msgpack.Marshal(rec.Date)
	if err != nil {
		t.Fatalf("msgpack.Marshal() error = %v", err)
	}
	var s string
	if err := msgpack.Unmarshal(packed, &s); err != nil {
		t.Fatalf("msgpack.Unmarshal() error = %v", err)
	}
	if s != "2001-03-09" {
		t.Errorf("msgpack date = %v, want 2001-03-09", s)
	}
}

func TestStepError(t *testing.T) {
	cause := errors.New("boom")
	err := NewStepError("load", cause)

	if !errors.Is(err, cause) {
		t.Error("StepError should unwrap to its cause")
	}
	if err.Step != "load" {
		t.Errorf("Step = %v, want load", err.Step)
	}
	if err.Location == "" || err.Location == "unknown" {
		t.Errorf("Location = %q, want file:line", err.Location)
	}
	if err.IsTransient() {
		t.Error("StepError should not be transient")
	}
}

// TestValidationError tests error handling
func TestValidationError(t *testing.T) {
	err := &ValidationError{
		Field:   "date",
		Value:   "invalid",
		Message: "invalid date format",
	}

	if err.Error() != "invalid date format" {
		t.Errorf("Error() = %v, want %v", err.Error(), "invalid date format")
	}

	if err.IsTransient() {
		t.Error("ValidationError should not be transient")
	}
}
