package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"FuelPriceMonitor/internal/domain"
	"FuelPriceMonitor/internal/normalizer"
	"FuelPriceMonitor/internal/ports"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// Handlers groups all HTTP handler methods and their dependencies.
type Handlers struct {
	store      ports.Storage
	normalizer *normalizer.Normalizer
	validate   *validator.Validate
	clock      func() time.Time
	logger     *slog.Logger
}

// priceView is the wire form of a stored observation.
type priceView struct {
	Location        string          `json:"location"`
	FuelType        domain.FuelType `json:"fuel_type"`
	Price           string          `json:"price"`
	Currency        string          `json:"currency,omitempty"`
	ObservedDate    string          `json:"observed_date"`
	SourceTimestamp time.Time       `json:"source_timestamp"`
	Station         string          `json:"station,omitempty"`
	Source          string          `json:"source,omitempty"`
}

type alertView struct {
	ID             string             `json:"id"`
	RunID          string             `json:"run_id,omitempty"`
	Kind           domain.AnomalyKind `json:"kind"`
	Severity       domain.Severity    `json:"severity"`
	Direction      domain.Direction   `json:"direction"`
	Deviation      float64            `json:"deviation"`
	BaselineMean   float64            `json:"baseline_mean"`
	BaselineStdDev float64            `json:"baseline_std_dev"`
	Note           string             `json:"note,omitempty"`
	DetectedAt     time.Time          `json:"detected_at"`
	Observation    priceView          `json:"observation"`
}

// createAlertRequest raises an operator alert against a stored observation.
type createAlertRequest struct {
	Location     string `json:"location" validate:"required"`
	FuelType     string `json:"fuel_type" validate:"required"`
	ObservedDate string `json:"observed_date" validate:"required,datetime=2006-01-02"`
	Severity     string `json:"severity" validate:"required,oneof=minor major critical"`
	Note         string `json:"note" validate:"max=500"`
}

func toPriceView(o domain.Observation) priceView {
	return priceView{
		Location:        o.Location,
		FuelType:        o.FuelType,
		Price:           o.Price.StringFixed(2),
		Currency:        o.Currency,
		ObservedDate:    o.ObservedDate.Format(domain.DateLayout),
		SourceTimestamp: o.SourceTimestamp,
		Station:         o.Station,
		Source:          o.Source,
	}
}

func toAlertView(a domain.Anomaly) alertView {
	return alertView{
		ID:             a.ID,
		RunID:          a.RunID,
		Kind:           a.Kind,
		Severity:       a.Severity,
		Direction:      a.Direction,
		Deviation:      a.Deviation,
		BaselineMean:   a.BaselineMean,
		BaselineStdDev: a.BaselineStdDev,
		Note:           a.Note,
		DetectedAt:     a.DetectedAt,
		Observation:    toPriceView(a.Observation),
	}
}

// ListPrices serves GET /prices.
func (h *Handlers) ListPrices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, limit, err := pagination(q.Get("page"), q.Get("limit"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	from, to, err := dateRange(q.Get("from"), q.Get("to"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	fuel, err := h.fuelFilter(q.Get("fuel_type"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	prices, err := h.store.ListPrices(r.Context(), ports.PriceFilter{
		Location: h.locationFilter(q.Get("location")),
		FuelType: fuel,
		From:     from,
		To:       to,
		Limit:    limit,
		Offset:   (page - 1) * limit,
	})
	if err != nil {
		h.serverError(w, "list prices", err)
		return
	}

	out := make([]priceView, 0, len(prices))
	for _, p := range prices {
		out = append(out, toPriceView(p))
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"prices": out,
		"page":   page,
		"limit":  limit,
	})
}

// ListAlerts serves GET /alerts.
func (h *Handlers) ListAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, limit, err := pagination(q.Get("page"), q.Get("limit"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	from, to, err := dateRange(q.Get("from"), q.Get("to"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	fuel, err := h.fuelFilter(q.Get("fuel_type"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	severity := domain.Severity(q.Get("severity"))
	if severity != "" && !severity.Valid() {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown severity %q", severity))
		return
	}

	alerts, err := h.store.ListAlerts(r.Context(), ports.AlertFilter{
		Severity: severity,
		Location: h.locationFilter(q.Get("location")),
		FuelType: fuel,
		From:     from,
		To:       to,
		Limit:    limit,
		Offset:   (page - 1) * limit,
	})
	if err != nil {
		h.serverError(w, "list alerts", err)
		return
	}

	out := make([]alertView, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, toAlertView(a))
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"alerts": out,
		"page":   page,
		"limit":  limit,
	})
}

// CreateAlert serves POST /alerts. The alert is appended; existing anomalies are never touched.
func (h *Handlers) CreateAlert(w http.ResponseWriter, r *http.Request) {
	var req createAlertRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	fuel, ok := h.normalizer.FuelType(req.FuelType)
	if !ok {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown fuel type %q", req.FuelType))
		return
	}
	key := domain.Key{
		Location:     h.normalizer.Location(req.Location),
		FuelType:     fuel,
		ObservedDate: req.ObservedDate,
	}

	obs, err := h.store.LookupObservation(r.Context(), key)
	if errors.Is(err, domain.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "no observation for "+key.String())
		return
	}
	if err != nil {
		h.serverError(w, "lookup observation", err)
		return
	}

	alert := domain.Anomaly{
		ID:          uuid.NewString(),
		Observation: obs,
		Kind:        domain.KindManual,
		Severity:    domain.Severity(req.Severity),
		Direction:   domain.DirectionSpike,
		Note:        req.Note,
		DetectedAt:  h.clock().UTC(),
	}
	h.attachBaseline(r.Context(), &alert)

	if err := h.store.InsertAlert(r.Context(), alert); err != nil {
		h.serverError(w, "insert alert", err)
		return
	}
	h.logger.Info("manual alert raised", "id", alert.ID, "key", key.String(), "severity", alert.Severity)
	h.writeJSON(w, http.StatusCreated, toAlertView(alert))
}

// attachBaseline records where the price sits against the series baseline, when one exists.
func (h *Handlers) attachBaseline(ctx context.Context, a *domain.Anomaly) {
	b, err := h.store.LookupBaseline(ctx, a.Observation.Series())
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			h.logger.Warn("lookup baseline for manual alert", "error", err)
		}
		return
	}
	a.BaselineMean = b.Mean
	a.BaselineStdDev = b.StdDev()
	if sd := b.StdDev(); sd > 0 {
		a.Deviation = (a.Observation.PriceFloat() - b.Mean) / sd
	}
	a.Direction = domain.DirectionOf(a.Deviation)
}

// ListRuns serves GET /runs.
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxLimit)
	}

	runs, err := h.store.ListRuns(r.Context(), limit)
	if err != nil {
		h.serverError(w, "list runs", err)
		return
	}
	if runs == nil {
		runs = []domain.RunReportSummary{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// Health serves GET /healthz.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn("health check failed", "error", err)
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) locationFilter(v string) string {
	if v == "" {
		return ""
	}
	return h.normalizer.Location(v)
}

func (h *Handlers) fuelFilter(v string) (domain.FuelType, error) {
	if v == "" {
		return "", nil
	}
	fuel, ok := h.normalizer.FuelType(v)
	if !ok {
		return "", fmt.Errorf("unknown fuel type %q", v)
	}
	return fuel, nil
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("encode response", "error", err)
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}

func (h *Handlers) serverError(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op, "error", err)
	h.writeError(w, http.StatusInternalServerError, "internal error")
}

func pagination(pageParam, limitParam string) (int, int, error) {
	page, limit := 1, defaultLimit
	if pageParam != "" {
		n, err := strconv.Atoi(pageParam)
		if err != nil || n < 1 {
			return 0, 0, errors.New("page must be a positive integer")
		}
		page = n
	}
	if limitParam != "" {
		n, err := strconv.Atoi(limitParam)
		if err != nil || n < 1 {
			return 0, 0, errors.New("limit must be a positive integer")
		}
		limit = min(n, maxLimit)
	}
	return page, limit, nil
}

// dateRange parses inclusive calendar-date bounds; RFC 3339 instants are truncated to their date.
func dateRange(fromParam, toParam string) (time.Time, time.Time, error) {
	from, err := parseDate("from", fromParam)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := parseDate("to", toParam)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return time.Time{}, time.Time{}, errors.New("to must not be before from")
	}
	return from, to, nil
}

func parseDate(name, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(domain.DateLayout, v); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be YYYY-MM-DD or RFC 3339", name)
	}
	return domain.CalendarDate(t), nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	return fmt.Sprintf("field %s failed %s validation", fe.Field(), fe.Tag())
}
