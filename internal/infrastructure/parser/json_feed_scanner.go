package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"FuelPriceMonitor/internal/domain"
	"FuelPriceMonitor/internal/scanner"
)

const userAgent = "FuelPriceMonitor/1.0"

// JSONFeedScanner reads price records from a JSON API.
//
// Options: records_path (dot path to the record array, empty for a top-level array),
// *_field overrides for location, fuel, price, date, currency, station and id,
// date_param (query parameter carrying the requested day), api_key and api_key_header.
type JSONFeedScanner struct {
	client *http.Client
}

// NewJSONFeedScanner wires an HTTP client.
func NewJSONFeedScanner(client *http.Client) *JSONFeedScanner {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &JSONFeedScanner{client: client}
}

func (j *JSONFeedScanner) Name() string {
	return "json"
}

// Scan fetches the feed and maps each record to a raw entry. Field values may be
// strings or numbers; validation is left to the normalizer.
func (j *JSONFeedScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.RawEntry, error) {
	endpoint, err := feedURL(req)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", req.SourceName, err)
	}

	body, err := j.fetch(ctx, endpoint, req)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", req.SourceName, err)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("source %s: decode feed: %w", req.SourceName, err)
	}

	records, err := walkPath(doc, req.Option("records_path", ""))
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", req.SourceName, err)
	}

	fields := struct{ location, fuel, price, date, currency, station, id string }{
		location: req.Option("location_field", "location"),
		fuel:     req.Option("fuel_field", "fuel_type"),
		price:    req.Option("price_field", "price"),
		date:     req.Option("date_field", "date"),
		currency: req.Option("currency_field", "currency"),
		station:  req.Option("station_field", "station"),
		id:       req.Option("id_field", "id"),
	}

	entries := make([]domain.RawEntry, 0, len(records))
	for i, rec := range records {
		obj, ok := rec.(map[string]any)
		if !ok {
			// Keep malformed records so the normalizer counts them as rejections.
			entries = append(entries, domain.RawEntry{Source: req.SourceName, SourceID: fmt.Sprintf("#%d", i)})
			continue
		}
		entry := domain.RawEntry{
			Location:     str(obj[fields.location]),
			FuelType:     str(obj[fields.fuel]),
			Price:        str(obj[fields.price]),
			ObservedDate: str(obj[fields.date]),
			Currency:     str(obj[fields.currency]),
			Station:      str(obj[fields.station]),
			Source:       req.SourceName,
			SourceID:     str(obj[fields.id]),
		}
		if entry.Currency == "" {
			entry.Currency = req.Option("currency", "")
		}
		if entry.SourceID == "" {
			entry.SourceID = fmt.Sprintf("#%d", i)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (j *JSONFeedScanner) fetch(ctx context.Context, endpoint string, req scanner.Request) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)
	if key := req.Option("api_key", ""); key != "" {
		header := req.Option("api_key_header", "Authorization")
		if strings.EqualFold(header, "Authorization") {
			key = "Bearer " + key
		}
		httpReq.Header.Set(header, key)
	}

	resp, err := j.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("feed returned %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("read feed: %w", err)
	}
	return body, nil
}

func feedURL(req scanner.Request) (string, error) {
	param := req.Option("date_param", "")
	if param == "" {
		return req.URL, nil
	}
	parsed, err := url.Parse(req.URL)
	if err != nil {
		return "", fmt.Errorf("invalid feed url %s: %w", req.URL, err)
	}
	query := parsed.Query()
	query.Set(param, req.Day.Format(domain.DateLayout))
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

func walkPath(doc any, path string) ([]any, error) {
	current := doc
	if path != "" {
		for _, part := range strings.Split(path, ".") {
			obj, ok := current.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("records path %q: %q is not an object", path, part)
			}
			current, ok = obj[part]
			if !ok {
				return nil, fmt.Errorf("records path %q: missing %q", path, part)
			}
		}
	}
	records, ok := current.([]any)
	if !ok {
		return nil, fmt.Errorf("records path %q does not hold an array", path)
	}
	return records, nil
}

func str(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}
