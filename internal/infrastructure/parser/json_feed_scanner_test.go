package parser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"FuelPriceMonitor/internal/scanner"
)

func TestJSONFeedScannerMapsFields(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("day") != "2024-06-14" {
			t.Errorf("expected day query, got %q", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"prices":[
			{"town":"Nairobi","product":"Super Petrol","amount":188.84,"date":"2024-06-14","ref":17},
			{"town":"Kisumu","product":"Diesel","amount":"171.60","date":"2024-06-14","currency":"USD"},
			"garbage"
		]}}`))
	}))
	defer srv.Close()

	entries, err := NewJSONFeedScanner(srv.Client()).Scan(context.Background(), scanner.Request{
		Day:        time.Date(2024, time.June, 14, 0, 0, 0, 0, time.UTC),
		SourceName: "feed",
		URL:        srv.URL,
		Options: map[string]string{
			"records_path":   "data.prices",
			"location_field": "town",
			"fuel_field":     "product",
			"price_field":    "amount",
			"id_field":       "ref",
			"date_param":     "day",
			"api_key":        "secret",
			"api_key_header": "X-Api-Key",
			"currency":       "KES",
		},
	})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}

	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Price != "188.84" || entries[0].Location != "Nairobi" || entries[0].SourceID != "17" || entries[0].Currency != "KES" {
		t.Fatalf("unexpected first entry %+v", entries[0])
	}
	if entries[1].Currency != "USD" || entries[1].SourceID != "#1" {
		t.Fatalf("unexpected second entry %+v", entries[1])
	}
	if entries[2].Location != "" || entries[2].Source != "feed" {
		t.Fatalf("malformed record should become an empty entry, got %+v", entries[2])
	}
}

func TestJSONFeedScannerTopLevelArrayAndBearer(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer token" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`[{"location":"Nakuru","fuel_type":"lpg","price":"2900","date":"2024-06-14"}]`))
	}))
	defer srv.Close()

	entries, err := NewJSONFeedScanner(srv.Client()).Scan(context.Background(), scanner.Request{
		URL:     srv.URL,
		Options: map[string]string{"api_key": "token"},
	})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(entries) != 1 || entries[0].FuelType != "lpg" || entries[0].ObservedDate != "2024-06-14" {
		t.Fatalf("unexpected entries %+v", entries)
	}
}

func TestJSONFeedScannerErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/bad":
			_, _ = w.Write([]byte(`{"data":`))
		case "/object":
			_, _ = w.Write([]byte(`{"data":{"prices":{}}}`))
		default:
			http.Error(w, "boom", http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	s := NewJSONFeedScanner(srv.Client())
	for _, path := range []string{"/bad", "/object", "/down"} {
		_, err := s.Scan(context.Background(), scanner.Request{
			URL:     srv.URL + path,
			Options: map[string]string{"records_path": "data.prices"},
		})
		if err == nil {
			t.Fatalf("%s: expected error", path)
		}
	}
}
