package db

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func okCheck(name string) Check {
	return Check{Name: name, Ping: func(context.Context) error { return nil }}
}

func failingCheck(name string) Check {
	return Check{Name: name, Ping: func(context.Context) error { return errors.New("connection refused") }}
}

func TestRunChecks(t *testing.T) {
	results, healthy := runChecks(context.Background(), []Check{okCheck("redis"), failingCheck("amqp")})
	if healthy {
		t.Error("expected unhealthy when one check fails")
	}
	if results["redis"] != "ok" {
		t.Errorf("expected redis ok, got %q", results["redis"])
	}
	if results["amqp"] != "connection refused" {
		t.Errorf("expected amqp error text, got %q", results["amqp"])
	}

	if _, healthy := runChecks(context.Background(), nil); !healthy {
		t.Error("expected healthy with no checks")
	}
}

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name   string
		checks []Check
		status int
		want   string
	}{
		{"all ok", []Check{okCheck("redis")}, http.StatusOK, "healthy"},
		{"redis down", []Check{failingCheck("redis")}, http.StatusServiceUnavailable, "unhealthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health", nil), rec)

			if err := HealthHandler(nil, tt.checks...)(c); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rec.Code != tt.status {
				t.Errorf("expected %d, got %d", tt.status, rec.Code)
			}
			var body map[string]interface{}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if body["status"] != tt.want {
				t.Errorf("expected status %s, got %v", tt.want, body["status"])
			}
			if _, ok := body["pool"]; ok {
				t.Error("expected no pool stats without a pool")
			}
		})
	}
}
