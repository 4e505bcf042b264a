// Package testutil provides shared test utilities and fixtures.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t testing.TB, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// NewJSONRequest creates a test request with a JSON body. An empty body
// yields a request without one.
func NewJSONRequest(method, path, body string) *http.Request {
	if body == "" {
		return httptest.NewRequest(method, path, nil)
	}
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// DecodeJSON decodes a recorded response body into v, failing the test on error.
func DecodeJSON(t testing.TB, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
}

// Date returns midnight UTC on the given day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DailyDates returns n consecutive days starting at start.
func DailyDates(start time.Time, n int) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = start.AddDate(0, 0, i)
	}
	return out
}

// LinearWeights returns n weights starting at start and changing by
// perDay, plus an alternating ±jitter so the series is never a perfect line.
func LinearWeights(start, perDay, jitter float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		j := jitter
		if i%2 == 1 {
			j = -jitter
		}
		out[i] = start + perDay*float64(i) + j
	}
	return out
}
