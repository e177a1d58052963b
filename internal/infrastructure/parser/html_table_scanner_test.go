package parser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"FuelPriceMonitor/internal/scanner"
)

const widePage = `<html><body>
<p class="effective">Prices effective 15th June, 2024 to 14th July, 2024</p>
<table id="prices">
  <tr><th>Town</th><th>Super</th><th>Diesel</th><th>Kerosene</th></tr>
  <tr><td>Nairobi</td><td>188.84</td><td>171.60</td><td>161.75</td></tr>
  <tr><td> Mombasa </td><td>185.52</td><td>168.28</td><td>-</td></tr>
</table>
</body></html>`

const longPage = `<html><body>
<table>
  <thead><tr><th>Location</th><th>Product</th><th>Price</th><th>Date</th><th>Station</th></tr></thead>
  <tbody>
    <tr><td>Kisumu</td><td>PMS</td><td>KES 190.10</td><td>2024-06-14</td><td>Rubis Kisumu</td></tr>
    <tr><td>Nakuru</td><td>AGO</td><td>172.00</td><td>2024-06-14</td><td></td></tr>
  </tbody>
</table>
</body></html>`

func servePage(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != userAgent {
			t.Errorf("unexpected user agent %q", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTMLTableScannerWideLayout(t *testing.T) {
	t.Parallel()

	srv := servePage(t, widePage)
	entries, err := NewHTMLTableScanner(srv.Client()).Scan(context.Background(), scanner.Request{
		Day:        time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC),
		SourceName: "epra",
		URL:        srv.URL,
		Options:    map[string]string{"table_selector": "#prices", "date_selector": ".effective", "currency": "KES"},
	})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}

	if len(entries) != 5 {
		t.Fatalf("expected 5 priced cells, got %d: %+v", len(entries), entries)
	}
	first := entries[0]
	if first.Location != "Nairobi" || first.FuelType != "Super" || first.Price != "188.84" {
		t.Fatalf("unexpected first entry %+v", first)
	}
	if first.ObservedDate != "15 June 2024" || first.Currency != "KES" || first.Source != "epra" {
		t.Fatalf("unexpected metadata %+v", first)
	}
	if entries[3].Location != "Mombasa" || entries[4].FuelType != "Diesel" {
		t.Fatalf("expected dash cell to be skipped, got %+v", entries[3:])
	}
}

func TestHTMLTableScannerLongLayout(t *testing.T) {
	t.Parallel()

	srv := servePage(t, longPage)
	entries, err := NewHTMLTableScanner(srv.Client()).Scan(context.Background(), scanner.Request{
		Day:        time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC),
		SourceName: "stations",
		URL:        srv.URL,
	})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}

	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].FuelType != "PMS" || entries[0].Price != "KES 190.10" || entries[0].ObservedDate != "2024-06-14" {
		t.Fatalf("unexpected entry %+v", entries[0])
	}
	if entries[0].Station != "Rubis Kisumu" || entries[0].SourceID != "row-1" {
		t.Fatalf("unexpected station metadata %+v", entries[0])
	}
}

func TestHTMLTableScannerErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if _, err := NewHTMLTableScanner(srv.Client()).Scan(context.Background(), scanner.Request{URL: srv.URL}); err == nil {
		t.Fatalf("expected status error")
	}

	empty := servePage(t, `<html><body><p>no prices today</p></body></html>`)
	if _, err := NewHTMLTableScanner(empty.Client()).Scan(context.Background(), scanner.Request{URL: empty.URL}); err == nil {
		t.Fatalf("expected missing table error")
	}
}

func TestFindDate(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"effective 2024-06-14 onwards": "2024-06-14",
		"from 1st Jul 2024":            "1 Jul 2024",
		"valid 22nd September, 2024":   "22 September 2024",
		"no date here":                 "",
	}
	for in, want := range cases {
		if got := findDate(in); got != want {
			t.Fatalf("findDate(%q) = %q, want %q", in, got, want)
		}
	}
}
