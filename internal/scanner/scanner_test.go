package scanner

import (
	"context"
	"testing"

	"FuelPriceMonitor/internal/domain"
)

type namedScanner string

func (n namedScanner) Name() string { return string(n) }

func (n namedScanner) Scan(context.Context, Request) ([]domain.RawEntry, error) {
	return nil, nil
}

func TestRegistryResolve(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(namedScanner("json"), namedScanner("html_table"))

	if _, err := reg.Resolve("json"); err != nil {
		t.Fatalf("resolve json: %v", err)
	}
	if _, err := reg.Resolve("pdf"); err == nil {
		t.Fatalf("expected error for unknown scanner")
	}
	if names := reg.Names(); len(names) != 2 || names[0] != "html_table" {
		t.Fatalf("unexpected names %v", names)
	}
}

func TestRequestOption(t *testing.T) {
	t.Parallel()

	req := Request{Options: map[string]string{"currency": "KES", "empty": ""}}
	if req.Option("currency", "USD") != "KES" {
		t.Fatalf("expected configured option")
	}
	if req.Option("empty", "x") != "x" || req.Option("missing", "y") != "y" {
		t.Fatalf("expected fallbacks")
	}
}
