package domain

import (
	"math"
	"time"
)

// Baseline holds online mean/variance statistics for one series.
// M2 is the running sum of squared deviations (Welford); the population
// variance is M2/Count.
type Baseline struct {
	Location  string    `json:"location"`
	FuelType  FuelType  `json:"fuel_type"`
	Count     int       `json:"count"`
	Mean      float64   `json:"mean"`
	M2        float64   `json:"m2"`
	LastPrice float64   `json:"last_price"`
	LastDate  string    `json:"last_date,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewBaseline seeds a baseline from summary statistics.
func NewBaseline(key SeriesKey, mean, stdDev float64, count int) Baseline {
	return Baseline{
		Location: key.Location,
		FuelType: key.FuelType,
		Count:    count,
		Mean:     mean,
		M2:       stdDev * stdDev * float64(count),
	}
}

// Series returns the key the baseline belongs to.
func (b Baseline) Series() SeriesKey {
	return SeriesKey{Location: b.Location, FuelType: b.FuelType}
}

func (b Baseline) Variance() float64 {
	if b.Count == 0 {
		return 0
	}
	return b.M2 / float64(b.Count)
}

func (b Baseline) StdDev() float64 {
	return math.Sqrt(b.Variance())
}
