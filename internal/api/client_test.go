// internal/api/client_test.go
package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fleetgrid/fleettrack/pkg/core"
)

func testRange() core.DateRange {
	return core.DateRange{
		Start: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 2, 20, 0, 0, 0, time.UTC),
	}
}

func TestNew_TrimsTrailingSlash(t *testing.T) {
	c := New("http://localhost:5000/", "", nil)
	if c.baseURL != "http://localhost:5000" {
		t.Errorf("expected trailing slash trimmed, got %s", c.baseURL)
	}
	if c.fallbackBaseURL != "http://localhost:5000" {
		t.Errorf("expected fallback to default to base, got %s", c.fallbackBaseURL)
	}
}

func TestFetchPrimary_PathAndQuery(t *testing.T) {
	var gotPath, gotStart, gotEnd string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotStart = r.URL.Query().Get("startTime")
		gotEnd = r.URL.Query().Get("endTime")
		w.Write([]byte(`{"points":[]}`))
	}))
	defer server.Close()

	c := New(server.URL, "", nil)
	body, err := c.FetchPrimary(context.Background(), "860123", testRange())
	if err != nil {
		t.Fatalf("FetchPrimary failed: %v", err)
	}
	if string(body) != `{"points":[]}` {
		t.Errorf("unexpected body %s", body)
	}
	if gotPath != "/api/telemetry/v3/860123/track" {
		t.Errorf("unexpected path %s", gotPath)
	}
	if gotStart != "2024-01-01T08:00:00Z" {
		t.Errorf("unexpected startTime %s", gotStart)
	}
	if gotEnd != "2024-01-02T20:00:00Z" {
		t.Errorf("unexpected endTime %s", gotEnd)
	}
}

func TestFetchFallback_CalendarDayBounds(t *testing.T) {
	var gotPath, gotFrom, gotTo string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotFrom = r.URL.Query().Get("from")
		gotTo = r.URL.Query().Get("to")
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	c := New("http://unused:1", server.URL, nil)
	_, err := c.FetchFallback(context.Background(), "860123", testRange())
	if err != nil {
		t.Fatalf("FetchFallback failed: %v", err)
	}
	if gotPath != "/api/v1/tracks/860123" {
		t.Errorf("unexpected path %s", gotPath)
	}
	if gotFrom != "2024-01-01" || gotTo != "2024-01-02" {
		t.Errorf("unexpected bounds %s..%s", gotFrom, gotTo)
	}
}

func TestBearerToken(t *testing.T) {
	var gotAuth, gotAccept string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c := New(server.URL, "", func() (string, bool) { return "tok123", true })
	if _, err := c.FetchPrimary(context.Background(), "1", testRange()); err != nil {
		t.Fatal(err)
	}
	if gotAuth != "Bearer tok123" {
		t.Errorf("unexpected Authorization header %q", gotAuth)
	}
	if gotAccept != "application/json" {
		t.Errorf("unexpected Accept header %q", gotAccept)
	}
}

func TestNoTokenProceedsUnauthenticated(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c := New(server.URL, "", func() (string, bool) { return "", false })
	if _, err := c.FetchPrimary(context.Background(), "1", testRange()); err != nil {
		t.Fatal(err)
	}
	if gotAuth != "" {
		t.Errorf("expected no Authorization header, got %q", gotAuth)
	}
}

func TestNonSuccessStatusIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := New(server.URL, "", nil)
	if _, err := c.FetchPrimary(context.Background(), "1", testRange()); err == nil {
		t.Error("expected error for 500 response")
	}
}

func TestNetworkFailureIsError(t *testing.T) {
	c := New("http://localhost:59999", "", nil) // unlikely to be listening
	if _, err := c.FetchPrimary(context.Background(), "1", testRange()); err == nil {
		t.Error("expected error for unreachable server")
	}
}
