package normalizer

import (
	"testing"
	"time"

	"FuelPriceMonitor/internal/config"
	"FuelPriceMonitor/internal/domain"
)

var now = time.Date(2024, time.June, 10, 12, 0, 0, 0, time.UTC)

func newTestNormalizer() *Normalizer {
	return New(config.NormalizerConfig{MaxPrice: 5000, DefaultCurrency: "kes"}, time.UTC)
}

func validEntry() domain.RawEntry {
	return domain.RawEntry{
		Location:     "  nairobi ",
		FuelType:     "Super_Petrol",
		Price:        "180.50",
		ObservedDate: "2024-06-01",
		Source:       "epra",
	}
}

func TestNormalizeValidEntry(t *testing.T) {
	t.Parallel()

	n := newTestNormalizer()
	obs, err := n.Normalize(validEntry(), now)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}

	want := domain.Key{Location: "Nairobi", FuelType: domain.FuelPetrol, ObservedDate: "2024-06-01"}
	if obs.Key() != want {
		t.Fatalf("unexpected key: %+v", obs.Key())
	}
	if obs.Price.String() != "180.5" {
		t.Fatalf("unexpected price: %s", obs.Price)
	}
	if obs.Currency != "KES" {
		t.Fatalf("expected default currency KES, got %q", obs.Currency)
	}
	if !obs.SourceTimestamp.Equal(now) {
		t.Fatalf("expected capture time to default to now, got %v", obs.SourceTimestamp)
	}
}

func TestNormalizeKeyDerivation(t *testing.T) {
	t.Parallel()

	n := newTestNormalizer()
	cases := []struct {
		raw  domain.RawEntry
		want domain.Key
	}{
		{
			raw:  domain.RawEntry{Location: "MOMBASA   road", FuelType: "AGO", Price: "KES 1,020.50", ObservedDate: "01/06/2024"},
			want: domain.Key{Location: "Mombasa Road", FuelType: domain.FuelDiesel, ObservedDate: "2024-06-01"},
		},
		{
			raw:  domain.RawEntry{Location: "kisumu", FuelType: "ik", Price: "150", ObservedDate: "2024-06-10T23:30:00Z"},
			want: domain.Key{Location: "Kisumu", FuelType: domain.FuelKerosene, ObservedDate: "2024-06-10"},
		},
		{
			raw:  domain.RawEntry{Location: "Eldoret", FuelType: "diesel", Price: "Ksh. 170.00", ObservedDate: "9 Jun 2024"},
			want: domain.Key{Location: "Eldoret", FuelType: domain.FuelDiesel, ObservedDate: "2024-06-09"},
		},
	}

	for _, tc := range cases {
		obs, err := n.Normalize(tc.raw, now)
		if err != nil {
			t.Fatalf("Normalize(%+v) error: %v", tc.raw, err)
		}
		if obs.Key() != tc.want {
			t.Fatalf("Normalize(%+v) key = %+v, want %+v", tc.raw, obs.Key(), tc.want)
		}
	}
}

func TestNormalizeMissingFields(t *testing.T) {
	t.Parallel()

	n := newTestNormalizer()
	mutations := map[string]func(*domain.RawEntry){
		"location": func(r *domain.RawEntry) { r.Location = "   " },
		"fuel":     func(r *domain.RawEntry) { r.FuelType = "" },
		"price":    func(r *domain.RawEntry) { r.Price = "" },
		"date":     func(r *domain.RawEntry) { r.ObservedDate = "" },
		"all":      func(r *domain.RawEntry) { *r = domain.RawEntry{} },
	}

	for name, mutate := range mutations {
		raw := validEntry()
		mutate(&raw)
		_, err := n.Normalize(raw, now)
		if got := domain.RejectionOf(err); got != domain.RejectMissingField {
			t.Fatalf("%s: expected missing_field, got %q (%v)", name, got, err)
		}
	}
}

func TestNormalizeRejections(t *testing.T) {
	t.Parallel()

	n := newTestNormalizer()
	cases := []struct {
		name   string
		mutate func(*domain.RawEntry)
		want   domain.RejectionReason
	}{
		{"negative price", func(r *domain.RawEntry) { r.Price = "-1" }, domain.RejectInvalidPrice},
		{"zero price", func(r *domain.RawEntry) { r.Price = "0.00" }, domain.RejectInvalidPrice},
		{"above ceiling", func(r *domain.RawEntry) { r.Price = "5000.01" }, domain.RejectInvalidPrice},
		{"garbage price", func(r *domain.RawEntry) { r.Price = "n/a" }, domain.RejectInvalidPrice},
		{"trailing junk", func(r *domain.RawEntry) { r.Price = "180abc" }, domain.RejectInvalidPrice},
		{"bad date", func(r *domain.RawEntry) { r.ObservedDate = "yesterday" }, domain.RejectInvalidDate},
		{"future date", func(r *domain.RawEntry) { r.ObservedDate = "2024-06-11" }, domain.RejectFutureDate},
		{"unknown fuel", func(r *domain.RawEntry) { r.FuelType = "jet a1" }, domain.RejectUnknownFuelType},
		{"price checked before date", func(r *domain.RawEntry) {
			r.Price = "-3"
			r.ObservedDate = "garbage"
		}, domain.RejectInvalidPrice},
		{"date checked before fuel", func(r *domain.RawEntry) {
			r.ObservedDate = "2030-01-01"
			r.FuelType = "plutonium"
		}, domain.RejectFutureDate},
	}

	for _, tc := range cases {
		raw := validEntry()
		tc.mutate(&raw)
		obs, err := n.Normalize(raw, now)
		if err == nil {
			t.Fatalf("%s: expected rejection, got %+v", tc.name, obs)
		}
		if got := domain.RejectionOf(err); got != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.name, tc.want, got)
		}
	}
}

func TestNormalizeTodayIsNotFuture(t *testing.T) {
	t.Parallel()

	nairobi := time.FixedZone("EAT", 3*60*60)
	n := New(config.NormalizerConfig{MaxPrice: 1000}, nairobi)

	// 22:00 UTC on the 10th is already the 11th in Nairobi.
	late := time.Date(2024, time.June, 10, 22, 0, 0, 0, time.UTC)
	raw := validEntry()
	raw.ObservedDate = "2024-06-11"

	if _, err := n.Normalize(raw, late); err != nil {
		t.Fatalf("expected local today to be accepted, got %v", err)
	}
}

func TestFuelAliasesFromConfig(t *testing.T) {
	t.Parallel()

	n := New(config.NormalizerConfig{
		MaxPrice:    1000,
		FuelAliases: map[string]string{"V-Power": "petrol", "bogus": "hydrogen"},
	}, time.UTC)

	if ft, ok := n.FuelType("v power"); !ok || ft != domain.FuelPetrol {
		t.Fatalf("expected alias to resolve to petrol, got %q %v", ft, ok)
	}
	if _, ok := n.FuelType("bogus"); ok {
		t.Fatalf("alias to unknown fuel type must be ignored")
	}
}
