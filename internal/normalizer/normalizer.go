// Package normalizer turns raw scraped entries into canonical observations.
package normalizer

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"FuelPriceMonitor/internal/config"
	"FuelPriceMonitor/internal/domain"
)

var fuelTypes = map[string]domain.FuelType{
	"petrol":                domain.FuelPetrol,
	"super":                 domain.FuelPetrol,
	"super petrol":          domain.FuelPetrol,
	"pms":                   domain.FuelPetrol,
	"premium motor spirit":  domain.FuelPetrol,
	"unleaded":              domain.FuelPetrol,
	"gasoline":              domain.FuelPetrol,
	"diesel":                domain.FuelDiesel,
	"ago":                   domain.FuelDiesel,
	"automotive gas oil":    domain.FuelDiesel,
	"kerosene":              domain.FuelKerosene,
	"ik":                    domain.FuelKerosene,
	"illuminating kerosene": domain.FuelKerosene,
	"paraffin":              domain.FuelKerosene,
	"lpg":                   domain.FuelLPG,
	"cooking gas":           domain.FuelLPG,
}

// priceExpr accepts an optional currency prefix ("KES", "Ksh.", "$") and thousands separators.
var priceExpr = regexp.MustCompile(`^(?:[A-Za-z]{1,4}\.?\s*|[$€£]\s*)?([-+]?[0-9][0-9,]*(?:\.[0-9]+)?|[-+]?\.[0-9]+)$`)

var dateLayouts = []string{
	domain.DateLayout,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"02/01/2006",
	"2 Jan 2006",
	"02 Jan 2006",
	"January 2, 2006",
	"2 January 2006",
	"02-01-2006",
}

// Normalizer validates raw entries against a read-only fuel lookup table.
// It is safe for concurrent use.
type Normalizer struct {
	maxPrice        decimal.Decimal
	defaultCurrency string
	loc             *time.Location
	fuels           map[string]domain.FuelType
}

// New builds a normalizer. Aliases from configuration extend the built-in table;
// an alias pointing at an unknown fuel type is ignored.
func New(cfg config.NormalizerConfig, loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}

	fuels := make(map[string]domain.FuelType, len(fuelTypes)+len(cfg.FuelAliases))
	for k, v := range fuelTypes {
		fuels[k] = v
	}
	for alias, target := range cfg.FuelAliases {
		if ft, ok := fuelTypes[foldSpace(target)]; ok {
			fuels[foldSpace(alias)] = ft
		}
	}

	maxPrice := decimal.NewFromFloat(cfg.MaxPrice)
	if cfg.MaxPrice <= 0 {
		maxPrice = decimal.NewFromInt(10000)
	}

	return &Normalizer{
		maxPrice:        maxPrice,
		defaultCurrency: strings.ToUpper(strings.TrimSpace(cfg.DefaultCurrency)),
		loc:             loc,
		fuels:           fuels,
	}
}

// Normalize converts a raw entry into an Observation. Every failure is a
// *domain.ValidationError; now bounds the observed date.
func (n *Normalizer) Normalize(raw domain.RawEntry, now time.Time) (domain.Observation, error) {
	if field := missingField(raw); field != "" {
		return domain.Observation{}, &domain.ValidationError{Reason: domain.RejectMissingField, Field: field}
	}

	price, err := n.parsePrice(raw.Price)
	if err != nil {
		return domain.Observation{}, err
	}

	observed, err := n.parseDate(raw.ObservedDate, now)
	if err != nil {
		return domain.Observation{}, err
	}

	fuel, ok := n.FuelType(raw.FuelType)
	if !ok {
		return domain.Observation{}, &domain.ValidationError{
			Reason: domain.RejectUnknownFuelType,
			Field:  "fuel_type",
			Detail: raw.FuelType,
		}
	}

	currency := strings.ToUpper(strings.TrimSpace(raw.Currency))
	if currency == "" {
		currency = n.defaultCurrency
	}

	captured := raw.CapturedAt
	if captured.IsZero() {
		captured = now
	}

	return domain.Observation{
		Location:        n.Location(raw.Location),
		FuelType:        fuel,
		Price:           price,
		ObservedDate:    observed,
		SourceTimestamp: captured.UTC(),
		Currency:        currency,
		Station:         strings.TrimSpace(raw.Station),
		Source:          strings.TrimSpace(raw.Source),
		SourceID:        strings.TrimSpace(raw.SourceID),
	}, nil
}

// Location canonicalises a town/region name: case-folded, whitespace collapsed, title-cased.
func (n *Normalizer) Location(value string) string {
	// cases.Caser is stateful and must not be shared between goroutines.
	return cases.Title(language.Und).String(foldSpace(value))
}

// FuelType maps a free-form fuel label to a known fuel type. Unknown labels are not guessed.
func (n *Normalizer) FuelType(value string) (domain.FuelType, bool) {
	ft, ok := n.fuels[foldSpace(value)]
	return ft, ok
}

func missingField(raw domain.RawEntry) string {
	switch {
	case strings.TrimSpace(raw.Location) == "":
		return "location"
	case strings.TrimSpace(raw.FuelType) == "":
		return "fuel_type"
	case strings.TrimSpace(raw.Price) == "":
		return "price"
	case strings.TrimSpace(raw.ObservedDate) == "":
		return "observed_date"
	}
	return ""
}

func (n *Normalizer) parsePrice(value string) (decimal.Decimal, error) {
	m := priceExpr.FindStringSubmatch(strings.TrimSpace(value))
	if m == nil {
		return decimal.Decimal{}, &domain.ValidationError{
			Reason: domain.RejectInvalidPrice,
			Field:  "price",
			Detail: value,
		}
	}

	price, err := decimal.NewFromString(strings.ReplaceAll(m[1], ",", ""))
	if err != nil {
		return decimal.Decimal{}, &domain.ValidationError{
			Reason: domain.RejectInvalidPrice,
			Field:  "price",
			Detail: value,
		}
	}
	if !price.IsPositive() || price.GreaterThan(n.maxPrice) {
		return decimal.Decimal{}, &domain.ValidationError{
			Reason: domain.RejectInvalidPrice,
			Field:  "price",
			Detail: "out of range: " + price.String(),
		}
	}
	return price, nil
}

func (n *Normalizer) parseDate(value string, now time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)

	var (
		parsed time.Time
		found  bool
	)
	for _, layout := range dateLayouts {
		t, err := time.ParseInLocation(layout, value, n.loc)
		if err == nil {
			parsed, found = t.In(n.loc), true
			break
		}
	}
	if !found {
		return time.Time{}, &domain.ValidationError{
			Reason: domain.RejectInvalidDate,
			Field:  "observed_date",
			Detail: value,
		}
	}

	observed := domain.CalendarDate(parsed)
	today := domain.CalendarDate(now.In(n.loc))
	if observed.After(today) {
		return time.Time{}, &domain.ValidationError{
			Reason: domain.RejectFutureDate,
			Field:  "observed_date",
			Detail: observed.Format(domain.DateLayout),
		}
	}
	return observed, nil
}

// foldSpace lower-cases, turns separators into spaces and collapses whitespace.
func foldSpace(value string) string {
	value = strings.ToLower(value)
	value = strings.Map(func(r rune) rune {
		if r == '_' || r == '-' {
			return ' '
		}
		return r
	}, value)
	return strings.Join(strings.Fields(value), " ")
}
