package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestRequestTimeout_FastHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(httptest.NewRequest(http.MethodPost, "/api/v1/bookings/quote", nil), rec)

	err := RequestTimeout(5 * time.Second)(func(c echo.Context) error {
		if _, ok := c.Request().Context().Deadline(); !ok {
			t.Error("expected a deadline on the request context")
		}
		return c.JSON(http.StatusOK, map[string]int64{"total": 3000000})
	})(c)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRequestTimeout_ContextAwareHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/bookings/x/document", nil), rec)

	err := RequestTimeout(50 * time.Millisecond)(func(c echo.Context) error {
		select {
		case <-time.After(5 * time.Second):
			return c.NoContent(http.StatusOK)
		case <-c.Request().Context().Done():
			return c.Request().Context().Err()
		}
	})(c)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["message"] == "" {
		t.Error("expected a message in the timeout response")
	}
}

func TestRequestTimeout_KeepsResponseWrittenBeforeDeadline(t *testing.T) {
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/bookings/mine", nil), rec)

	err := RequestTimeout(20 * time.Millisecond)(func(c echo.Context) error {
		if err := c.JSON(http.StatusOK, map[string]int{"total": 0}); err != nil {
			return err
		}
		<-c.Request().Context().Done()
		return nil
	})(c)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected the written 200 to stand, got %d", rec.Code)
	}
}

func TestRequestTimeout_ZeroDisablesDeadline(t *testing.T) {
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/catalog", nil), httptest.NewRecorder())

	called := false
	err := RequestTimeout(0)(func(c echo.Context) error {
		called = true
		if _, ok := c.Request().Context().Deadline(); ok {
			t.Error("expected no deadline when the timeout is disabled")
		}
		return nil
	})(c)

	if err != nil || !called {
		t.Fatalf("expected handler to run cleanly, called=%v err=%v", called, err)
	}
}

func TestRequestTimeout_PropagatesHandlerError(t *testing.T) {
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/bookings/123", nil), httptest.NewRecorder())

	err := RequestTimeout(5 * time.Second)(func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "booking not found")
	})(c)

	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Errorf("expected the handler's 404, got %v", err)
	}
}

func TestRequestTimeout_PanicReachesCaller(t *testing.T) {
	c := echo.New().NewContext(httptest.NewRequest(http.MethodPost, "/api/v1/confirmations", nil), httptest.NewRecorder())
	defer func() {
		if r := recover(); r != "boom" {
			t.Errorf("expected the panic on the calling goroutine, got %v", r)
		}
	}()
	_ = RequestTimeout(time.Second)(func(c echo.Context) error {
		panic("boom")
	})(c)
}
