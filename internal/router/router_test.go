package router

import (
	"context"
	"net/http/httptest"
	"testing"

	"net/http"
)

func TestMatrixLookupAndFallback(t *testing.T) {
	m := NewMatrix(map[string]map[string]float64{
		"a": {"b": 30},
	})
	ctx := context.Background()
	if tt, err := m.TravelTime(ctx, "a", "b"); err != nil || tt != 30 {
		t.Fatalf("forward: %v %v", tt, err)
	}
	// reverse leg falls back to the forward entry
	if tt, err := m.TravelTime(ctx, "b", "a"); err != nil || tt != 30 {
		t.Fatalf("reverse: %v %v", tt, err)
	}
	if tt, err := m.TravelTime(ctx, "a", "a"); err != nil || tt != 0 {
		t.Fatalf("self: %v %v", tt, err)
	}
	if _, err := m.TravelTime(ctx, "a", "zzz"); err == nil {
		t.Fatalf("unknown leg must fail")
	}
}

func TestHTTPOracle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("from") != "a" || r.URL.Query().Get("to") != "b" {
			http.Error(w, "bad query", 400)
			return
		}
		if r.URL.Query().Get("mode") != "ignore_rerouting" {
			http.Error(w, "bad mode", 400)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"durationSec": 42.5}`))
	}))
	defer srv.Close()

	o := NewHTTPOracle(srv.URL, "ignore_rerouting", 100)
	tt, err := o.TravelTime(context.Background(), "a", "b")
	if err != nil || tt != 42.5 {
		t.Fatalf("got %v %v", tt, err)
	}
}

func TestHTTPOracleBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", 500)
	}))
	defer srv.Close()

	o := NewHTTPOracle(srv.URL, "", 100)
	if _, err := o.TravelTime(context.Background(), "a", "b"); err == nil {
		t.Fatalf("500 must surface as error")
	}
}
