package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the canonical calendar-date representation used in keys and storage.
const DateLayout = "2006-01-02"

// FuelType enumerates the fuel products tracked by the monitor.
type FuelType string

const (
	FuelPetrol   FuelType = "petrol"
	FuelDiesel   FuelType = "diesel"
	FuelKerosene FuelType = "kerosene"
	FuelLPG      FuelType = "lpg"
)

// RawEntry is a loosely structured price reading as produced by a source strategy.
type RawEntry struct {
	Location     string
	FuelType     string
	Price        string
	ObservedDate string
	Currency     string
	Station      string
	Source       string
	SourceID     string
	CapturedAt   time.Time
}

// SeriesKey identifies a price series; baselines are kept per series.
type SeriesKey struct {
	Location string
	FuelType FuelType
}

func (k SeriesKey) String() string {
	return fmt.Sprintf("%s/%s", k.Location, k.FuelType)
}

// Key is the identity of an observation: one reading per series per calendar day.
type Key struct {
	Location     string
	FuelType     FuelType
	ObservedDate string
}

// Series drops the date component.
func (k Key) Series() SeriesKey {
	return SeriesKey{Location: k.Location, FuelType: k.FuelType}
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s@%s", k.Location, k.FuelType, k.ObservedDate)
}

// Observation is a validated, canonical price reading.
type Observation struct {
	Location        string          `json:"location"`
	FuelType        FuelType        `json:"fuel_type"`
	Price           decimal.Decimal `json:"price"`
	ObservedDate    time.Time       `json:"observed_date"`
	SourceTimestamp time.Time       `json:"source_timestamp"`
	Currency        string          `json:"currency,omitempty"`
	Station         string          `json:"station,omitempty"`
	Source          string          `json:"source,omitempty"`
	SourceID        string          `json:"source_id,omitempty"`
}

// Key derives the identity key from location, fuel type and observed date.
func (o Observation) Key() Key {
	return Key{
		Location:     o.Location,
		FuelType:     o.FuelType,
		ObservedDate: o.ObservedDate.Format(DateLayout),
	}
}

// Series returns the baseline key of the observation.
func (o Observation) Series() SeriesKey {
	return SeriesKey{Location: o.Location, FuelType: o.FuelType}
}

// PriceFloat is the price as float64 for statistics.
func (o Observation) PriceFloat() float64 {
	return o.Price.InexactFloat64()
}

// CalendarDate strips the time of day, keeping the y/m/d of t in its own location.
func CalendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
