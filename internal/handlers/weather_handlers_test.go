package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/vmihailenco/msgpack/v5"

	"weather-etl/internal/models"
	"weather-etl/internal/repository"
	"weather-etl/internal/services"
	"weather-etl/pkg/database"
	"weather-etl/pkg/logging"
	"weather-etl/pkg/metrics"
	"weather-etl/pkg/responseformat"
)

type fakeHealth struct{ err error }

func (f fakeHealth) HealthCheck(context.Context) error { return f.err }

func newTestRouter(t *testing.T, health HealthChecker) *mux.Router {
	t.Helper()

	logger := logging.NewStructuredLogger("handlers-test", "test", logging.ErrorLevel)
	collector := metrics.NewCollector("handlerstest", prometheus.NewRegistry())

	db, err := database.Open(&database.Config{
		Driver: database.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "weather.db"),
	}, logger, collector)
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	repo := repository.NewWeatherRepository(db, logger, collector)
	ctx := context.Background()
	if err := repo.EnsureWeatherTable(ctx); err != nil {
		t.Fatalf("EnsureWeatherTable() error = %v", err)
	}

	var records []models.WeatherRecord
	for i := 0; i < 12; i++ {
		d := models.NewDate(1994, time.July, 1+i)
		records = append(records, models.WeatherRecord{
			Date:             d,
			MaxTemp:          20 + float64(i),
			MinTemp:          10,
			PrecipitationAmt: 0.5,
			StationID:        "USC001",
			WID:              models.WeatherID("USC001", d),
		})
	}
	if _, err := repo.Upsert(ctx, models.TableWeather, repository.WeatherRows(records)); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	if health == nil {
		health = repo
	}

	svc := services.NewWeatherService(repo, services.Pagination{DefaultPageSize: 10, DefaultPageNumber: 1, MaxPageSize: 1000}, logger, collector)
	router := mux.NewRouter()
	NewWeatherHandler(svc, health, logger, collector).RegisterRoutes(router)
	return router
}

func serve(router http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestGetWeather_IncompleteQuery(t *testing.T) {
	router := newTestRouter(t, nil)

	targets := []string{
		"/api/weather",
		"/api/weather?start_date=1994-07-01&end_date=1994-07-31",
		"/api/weather?station_id=USC001&end_date=1994-07-31",
		"/api/weather/stats?station_id=USC001&start_date=1994-07-01",
	}

	for _, target := range targets {
		rec := serve(router, target)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %v, want %v", target, rec.Code, http.StatusOK)
		}
		var got IncompleteQueryResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("%s: unmarshal: %v", target, err)
		}
		if got.Success != "ok" || got.Message != "Incomplete query params" {
			t.Errorf("%s: body = %+v", target, got)
		}
	}
}

func TestGetWeather_BadDate(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := serve(router, "/api/weather?station_id=USC001&start_date=07/01/1994&end_date=1994-07-31")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %v, want %v", rec.Code, http.StatusBadRequest)
	}

	var got ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Code != http.StatusBadRequest || got.Message != "invalid start_date format, expected YYYY-MM-DD" {
		t.Errorf("body = %+v", got)
	}
}

func TestGetWeather_Pages(t *testing.T) {
	router := newTestRouter(t, nil)
	base := "/api/weather?station_id=USC001&start_date=1994-07-01&end_date=1994-07-31"

	tests := []struct {
		name        string
		query       string
		wantCount   int
		wantPage    int
		wantMessage string
	}{
		{name: "defaults", query: "", wantCount: 10, wantPage: 1},
		{name: "second page", query: "&page_number=2", wantCount: 2, wantPage: 2},
		{name: "out of range", query: "&page_number=9", wantCount: 0, wantPage: 9, wantMessage: "No records for this query"},
		{name: "non numeric falls back", query: "&page_size=lots&page_number=x", wantCount: 10, wantPage: 1},
		{name: "small pages", query: "&page_size=5&page_number=3", wantCount: 2, wantPage: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(router, base+tt.query)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %v, want %v", rec.Code, http.StatusOK)
			}

			var got services.WeatherPage
			if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got.Count != tt.wantCount || len(got.Data) != tt.wantCount {
				t.Errorf("count = %v (len %d), want %v", got.Count, len(got.Data), tt.wantCount)
			}
			if got.PageNumber != tt.wantPage {
				t.Errorf("page_number = %v, want %v", got.PageNumber, tt.wantPage)
			}
			if got.Message != tt.wantMessage {
				t.Errorf("message = %q, want %q", got.Message, tt.wantMessage)
			}
			if got.Data == nil {
				t.Error("data = null, want array")
			}
		})
	}
}

func TestGetWeather_RecordShape(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := serve(router, "/api/weather?station_id=USC001&start_date=1994-07-01&end_date=1994-07-01")
	var body struct {
		Data []map[string]interface{} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(body.Data) != 1 {
		t.Fatalf("len(data) = %v, want 1", len(body.Data))
	}
	first := body.Data[0]
	if first["date"] != "1994-07-01" || first["wid"] != "USC001_1994-07-01" {
		t.Errorf("record = %v", first)
	}
	if first["max_temp"] != 20.0 {
		t.Errorf("max_temp = %v, want 20", first["max_temp"])
	}
}

func TestGetWeatherStats(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := serve(router, "/api/weather/stats?station_id=USC001&start_date=1994-07-01&end_date=1994-07-31&page_size=4")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %v, want %v", rec.Code, http.StatusOK)
	}

	var got services.StatsPage
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got.Data) != 1 {
		t.Fatalf("len(data) = %v, want 1", len(got.Data))
	}
	s := got.Data[0]
	// max temps 20..23 on the first page of four
	if s.Year != 1994 || s.AvgMaxTemp != 21.5 || s.AvgMinTemp != 10 || s.TotalPrecipitationAmt != 2 {
		t.Errorf("stats = %+v", s)
	}
}

func TestGetWeather_MsgPack(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := serve(router, "/api/weather?station_id=USC001&start_date=1994-07-01&end_date=1994-07-02&format=msgpack")
	if ct := rec.Header().Get("Content-Type"); ct != responseformat.ContentTypeMsgPack {
		t.Fatalf("Content-Type = %v, want %v", ct, responseformat.ContentTypeMsgPack)
	}

	var got map[string]interface{}
	if err := msgpack.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("msgpack unmarshal: %v", err)
	}
	data, ok := got["data"].([]interface{})
	if !ok || len(data) != 2 {
		t.Fatalf("data = %v, want two records", got["data"])
	}
	first, _ := data[0].(map[string]interface{})
	if first["date"] != "1994-07-01" {
		t.Errorf("date = %v, want 1994-07-01", first["date"])
	}
}

func TestRequestID(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := serve(router, "/health")
	if _, err := uuid.Parse(rec.Header().Get(RequestIDHeader)); err != nil {
		t.Errorf("generated %s = %q is not a uuid", RequestIDHeader, rec.Header().Get(RequestIDHeader))
	}

	id := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, id)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if got := rec.Header().Get(RequestIDHeader); got != id {
		t.Errorf("%s = %v, want %v", RequestIDHeader, got, id)
	}
}

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name       string
		health     HealthChecker
		wantStatus int
		wantBody   string
	}{
		{name: "healthy", health: nil, wantStatus: http.StatusOK, wantBody: "healthy"},
		{name: "unhealthy", health: fakeHealth{err: errors.New("connection refused")}, wantStatus: http.StatusServiceUnavailable, wantBody: "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(newTestRouter(t, tt.health), "/health")
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %v, want %v", rec.Code, tt.wantStatus)
			}
			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if body["status"] != tt.wantBody {
				t.Errorf("status field = %v, want %v", body["status"], tt.wantBody)
			}
		})
	}
}

func TestDocs(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := serve(router, "/api/docs/openapi.json")
	var doc map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	paths, _ := doc["paths"].(map[string]interface{})
	for _, p := range []string{"/api/weather", "/api/weather/stats", "/health"} {
		if _, ok := paths[p]; !ok {
			t.Errorf("openapi paths missing %s", p)
		}
	}

	rec = serve(router, "/swagger")
	if rec.Code != http.StatusOK {
		t.Errorf("/swagger status = %v, want %v", rec.Code, http.StatusOK)
	}
}
