package handlers

import (
	"encoding/json"
	"net/http"
)

type schema = map[string]interface{}

func queryParam(name, description string, required bool, s schema) schema {
	return schema{
		"name":        name,
		"in":          "query",
		"description": description,
		"required":    required,
		"schema":      s,
	}
}

func jsonContent(description string, s schema) schema {
	return schema{
		"description": description,
		"content": schema{
			"application/json":      schema{"schema": s},
			"application/x-msgpack": schema{"schema": s},
		},
	}
}

var readParams = []schema{
	queryParam("start_date", "First day of the range (YYYY-MM-DD)", true, schema{"type": "string", "format": "date"}),
	queryParam("end_date", "Last day of the range (YYYY-MM-DD)", true, schema{"type": "string", "format": "date"}),
	queryParam("station_id", "Weather station identifier", true, schema{"type": "string"}),
	queryParam("page_size", "Records per page (default: 10)", false, schema{"type": "integer", "default": 10}),
	queryParam("page_number", "Page number, starting at 1 (default: 1)", false, schema{"type": "integer", "default": 1}),
	queryParam("format", "Set to msgpack for a MessagePack body", false, schema{"type": "string", "enum": []string{"json", "msgpack"}}),
}

func pageOf(item schema) schema {
	return schema{
		"type": "object",
		"properties": schema{
			"data":        schema{"type": "array", "items": item},
			"page_number": schema{"type": "integer"},
			"page_size":   schema{"type": "integer"},
			"count":       schema{"type": "integer"},
			"message":     schema{"type": "string", "description": "Set when the page is empty"},
		},
	}
}

var weatherRecordSchema = schema{
	"type": "object",
	"properties": schema{
		"date":              schema{"type": "string", "format": "date"},
		"max_temp":          schema{"type": "number", "description": "Degrees Celsius, -999.9 when missing"},
		"min_temp":          schema{"type": "number", "description": "Degrees Celsius, -999.9 when missing"},
		"precipitation_amt": schema{"type": "number", "description": "Centimeters, -99.99 when missing"},
		"station_id":        schema{"type": "string"},
		"wid":               schema{"type": "string", "description": "station_id + \"_\" + date"},
	},
}

var weatherStatsSchema = schema{
	"type": "object",
	"properties": schema{
		"year":                    schema{"type": "integer"},
		"station_id":              schema{"type": "string"},
		"avg_max_temp":            schema{"type": "number"},
		"avg_min_temp":            schema{"type": "number"},
		"total_precipitation_amt": schema{"type": "number"},
		"observation_count":       schema{"type": "integer"},
	},
}

var incompleteSchema = schema{
	"type": "object",
	"properties": schema{
		"success": schema{"type": "string", "example": "ok"},
		"message": schema{"type": "string", "example": "Incomplete query params"},
	},
}

var errorSchema = schema{
	"type": "object",
	"properties": schema{
		"error":   schema{"type": "string"},
		"message": schema{"type": "string"},
		"code":    schema{"type": "integer"},
	},
}

// OpenAPISpec returns the OpenAPI 3.0 document of the read API
func OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	spec := schema{
		"openapi": "3.0.0",
		"info": schema{
			"title":       "Weather ETL API",
			"description": "Paginated access to station weather records and page-level yearly statistics",
			"version":     "1.0.0",
		},
		"servers": []map[string]string{
			{"url": "http://localhost:5000", "description": "Local development server"},
		},
		"paths": schema{
			"/api/weather": schema{
				"get": schema{
					"summary":     "Get weather records",
					"description": "One page of weather records for a station and date range, ordered by date",
					"parameters":  readParams,
					"responses": schema{
						"200": jsonContent("A page of records, or an incomplete query notice", schema{
							"oneOf": []schema{pageOf(weatherRecordSchema), incompleteSchema},
						}),
						"400": jsonContent("Malformed date", errorSchema),
						"500": jsonContent("Query failed", errorSchema),
					},
				},
			},
			"/api/weather/stats": schema{
				"get": schema{
					"summary":     "Get page statistics",
					"description": "Yearly per-station averages and precipitation totals over the page /api/weather would return",
					"parameters":  readParams,
					"responses": schema{
						"200": jsonContent("Statistics of the page, or an incomplete query notice", schema{
							"oneOf": []schema{pageOf(weatherStatsSchema), incompleteSchema},
						}),
						"400": jsonContent("Malformed date", errorSchema),
						"500": jsonContent("Query failed", errorSchema),
					},
				},
			},
			"/health": schema{
				"get": schema{
					"summary":     "Health check",
					"description": "Reports whether the database answers a ping",
					"responses": schema{
						"200": jsonContent("Healthy", schema{"type": "object"}),
						"503": jsonContent("Database unreachable", schema{"type": "object"}),
					},
				},
			},
			"/metrics": schema{
				"get": schema{
					"summary":     "Prometheus metrics",
					"description": "Prometheus metrics endpoint for monitoring",
					"responses": schema{
						"200": schema{
							"description": "Prometheus metrics in text format",
							"content": schema{
								"text/plain": schema{"schema": schema{"type": "string"}},
							},
						},
					},
				},
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(spec)
}
