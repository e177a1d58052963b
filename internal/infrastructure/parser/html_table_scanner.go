package parser

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"FuelPriceMonitor/internal/domain"
	"FuelPriceMonitor/internal/scanner"
)

var (
	isoDateExpr  = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
	longDateExpr = regexp.MustCompile(`(\d{1,2})(?:st|nd|rd|th)?\s+([A-Za-z]{3,9}),?\s+(\d{4})`)
)

var (
	locationHeaders = []string{"town", "location", "city", "region", "county"}
	fuelHeaders     = []string{"fuel", "fuel type", "product"}
	priceHeaders    = []string{"price", "pump price", "retail price"}
	dateHeaders     = []string{"date", "effective date"}
	stationHeaders  = []string{"station", "outlet"}
)

// HTMLTableScanner extracts prices from an HTML table. Two layouts are recognised:
// a long table with location/fuel/price columns, and a wide table whose first
// column is the location and whose remaining headers are fuel types.
//
// Options: table_selector (default "table"), date_selector (element holding the
// effective date), currency.
type HTMLTableScanner struct {
	client *http.Client
}

// NewHTMLTableScanner wires an HTTP client.
func NewHTMLTableScanner(client *http.Client) *HTMLTableScanner {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &HTMLTableScanner{client: client}
}

// Name identifies the strategy inside the registry.
func (h *HTMLTableScanner) Name() string {
	return "html_table"
}

// Scan downloads the page and returns one raw entry per priced cell.
func (h *HTMLTableScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.RawEntry, error) {
	doc, err := h.fetchDocument(ctx, req.URL)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", req.SourceName, err)
	}

	pageDate := req.Day.Format(domain.DateLayout)
	if sel := req.Option("date_selector", ""); sel != "" {
		if found := findDate(doc.Find(sel).First().Text()); found != "" {
			pageDate = found
		}
	}

	table := doc.Find(req.Option("table_selector", "table")).First()
	if table.Length() == 0 {
		return nil, fmt.Errorf("source %s: no table matched", req.SourceName)
	}

	rows := table.Find("tr")
	if rows.Length() < 2 {
		return nil, fmt.Errorf("source %s: table has no data rows", req.SourceName)
	}

	headers := cellTexts(rows.First())
	layout := detectLayout(headers)
	currency := req.Option("currency", "")

	var entries []domain.RawEntry
	rows.Slice(1, rows.Length()).Each(func(i int, row *goquery.Selection) {
		cells := cellTexts(row)
		if len(cells) == 0 {
			return
		}
		entries = append(entries, layout.extract(cells, headers, pageDate, currency, req.SourceName, i+1)...)
	})

	return entries, nil
}

func (h *HTMLTableScanner) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("page returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

type tableLayout struct {
	long     bool
	location int
	fuel     int
	price    int
	date     int
	station  int
}

func detectLayout(headers []string) tableLayout {
	l := tableLayout{
		location: indexOf(headers, locationHeaders),
		fuel:     indexOf(headers, fuelHeaders),
		price:    indexOf(headers, priceHeaders),
		date:     indexOf(headers, dateHeaders),
		station:  indexOf(headers, stationHeaders),
	}
	l.long = l.fuel >= 0 && l.price >= 0
	if l.location < 0 {
		l.location = 0
	}
	return l
}

func (l tableLayout) extract(cells, headers []string, pageDate, currency, source string, row int) []domain.RawEntry {
	base := domain.RawEntry{
		Location:     cell(cells, l.location),
		ObservedDate: pageDate,
		Currency:     currency,
		Station:      cell(cells, l.station),
		Source:       source,
	}
	if d := cell(cells, l.date); d != "" {
		base.ObservedDate = d
	}

	if l.long {
		e := base
		e.FuelType = cell(cells, l.fuel)
		e.Price = cell(cells, l.price)
		e.SourceID = "row-" + strconv.Itoa(row)
		return []domain.RawEntry{e}
	}

	var out []domain.RawEntry
	for col, header := range headers {
		if col == l.location || col == l.date || col == l.station || header == "" {
			continue
		}
		price := cell(cells, col)
		if price == "" || price == "-" {
			continue
		}
		e := base
		e.FuelType = header
		e.Price = price
		e.SourceID = fmt.Sprintf("row-%d-col-%d", row, col)
		out = append(out, e)
	}
	return out
}

// findDate pulls "2024-06-14" or "14th June, 2024" style dates out of free text.
func findDate(text string) string {
	if m := isoDateExpr.FindString(text); m != "" {
		return m
	}
	if m := longDateExpr.FindStringSubmatch(text); m != nil {
		return m[1] + " " + m[2] + " " + m[3]
	}
	return ""
}

func cellTexts(row *goquery.Selection) []string {
	var out []string
	row.Find("th, td").Each(func(_ int, c *goquery.Selection) {
		out = append(out, strings.Join(strings.Fields(c.Text()), " "))
	})
	return out
}

func cell(cells []string, idx int) string {
	if idx < 0 || idx >= len(cells) {
		return ""
	}
	return cells[idx]
}

func indexOf(headers []string, names []string) int {
	for i, h := range headers {
		h = strings.ToLower(strings.TrimSpace(h))
		for _, name := range names {
			if h == name {
				return i
			}
		}
	}
	return -1
}
