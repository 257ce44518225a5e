package sources

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func TestHourlySeriesDecodesNullIrradiance(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if !strings.HasPrefix(r.URL.Path, "/seriescalc") {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"outputs":{"hourly":[
			{"time":"20180101:0010","G(i)":10.0,"T2m":5.2},
			{"time":"20180101:0110","G(i)":null,"T2m":4.9},
			{"time":"20180101:0210","G(i)":20.0,"T2m":4.7}
		]}}`)
	}))
	defer srv.Close()

	client := NewPVGISClient(srv.Client(), srv.URL)
	series, err := client.HourlySeries(context.Background(), 59.91, 10.75, 30, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(series.Points) != 3 {
		t.Fatalf("expected 3 points, got %d", len(series.Points))
	}
	if series.Points[1].Gi != nil {
		t.Fatalf("expected null G(i) to decode as nil, got %v", *series.Points[1].Gi)
	}

	// Null points are excluded, not averaged as zero: (10+20)/2 = 15.
	avg, ok := series.AverageIrradiance()
	if !ok {
		t.Fatalf("expected irradiance values to be present")
	}
	if math.Abs(avg-15.0) > 1e-9 {
		t.Fatalf("expected average 15, got %v", avg)
	}

	// Identical parameters hit the cache.
	if _, err := client.HourlySeries(context.Background(), 59.91, 10.75, 30, 0); err != nil {
		t.Fatalf("unexpected error on cached call: %v", err)
	}
	if got := requests.Load(); got != 1 {
		t.Fatalf("expected 1 upstream request, got %d", got)
	}

	// Different parameters do not.
	if _, err := client.HourlySeries(context.Background(), 59.91, 10.75, 45, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := requests.Load(); got != 2 {
		t.Fatalf("expected 2 upstream requests after a different angle, got %d", got)
	}
}

func TestAverageIrradianceAllNull(t *testing.T) {
	series := &HourlySeries{Points: []HourlyPoint{{Time: "20180101:0010"}, {Time: "20180101:0110"}}}
	if _, ok := series.AverageIrradiance(); ok {
		t.Fatalf("expected ok=false when every point is null")
	}
}

func TestProductionTotals(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if !strings.HasPrefix(r.URL.Path, "/PVcalc") {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		if q.Get("peakpower") != "4" || q.Get("loss") != "14" {
			t.Errorf("unexpected simulation parameters: peakpower=%q loss=%q", q.Get("peakpower"), q.Get("loss"))
		}
		fmt.Fprint(w, `{"outputs":{
			"totals":{"fixed":{"E_d":10.9,"E_y":4000.0}},
			"monthly":{"fixed":[{"month":1,"E_m":120.5},{"month":2,"E_m":210.0}]}
		}}`)
	}))
	defer srv.Close()

	client := NewPVGISClient(srv.Client(), srv.URL)
	totals, err := client.ProductionTotals(context.Background(), 59.91, 10.75, 4.0, 14, 30, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if totals.AnnualKWh != 4000.0 || totals.DailyKWh != 10.9 {
		t.Fatalf("unexpected totals: %+v", totals)
	}
	if len(totals.Monthly) != 2 || totals.Monthly[0].Month != 1 || totals.Monthly[0].KWh != 120.5 {
		t.Fatalf("unexpected monthly figures: %+v", totals.Monthly)
	}

	if _, err := client.ProductionTotals(context.Background(), 59.91, 10.75, 4.0, 14, 30, 0); err != nil {
		t.Fatalf("unexpected error on cached call: %v", err)
	}
	if got := requests.Load(); got != 1 {
		t.Fatalf("expected 1 upstream request, got %d", got)
	}
}

func TestProductionTotalsMissingOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"outputs":{}}`)
	}))
	defer srv.Close()

	client := NewPVGISClient(srv.Client(), srv.URL)
	_, err := client.ProductionTotals(context.Background(), 59.91, 10.75, 4.0, 14, 30, 0)
	if !IsKind(err, KindDecode) {
		t.Fatalf("expected decode error for empty outputs, got %v", err)
	}
}
