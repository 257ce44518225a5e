package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func frostTestServer(t *testing.T, stationID string, obsCount int, requests *atomic.Int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)

		user, _, ok := r.BasicAuth()
		if !ok || user != "test-client-id" {
			t.Errorf("expected basic auth with the client ID, got user %q", user)
		}

		switch {
		case strings.HasPrefix(r.URL.Path, "/sources/"):
			if stationID == "" {
				fmt.Fprint(w, `{"data":[]}`)
				return
			}
			fmt.Fprintf(w, `{"data":[{"id":%q,"name":"OSLO - BLINDERN","distance":1.2}]}`, stationID)
		case strings.HasPrefix(r.URL.Path, "/observations/"):
			obs := make([]map[string]interface{}, 0, obsCount)
			for i := 0; i < obsCount; i++ {
				obs = append(obs, map[string]interface{}{"elementId": r.URL.Query().Get("elements"), "value": float64(i)})
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"data": []map[string]interface{}{{"sourceId": stationID, "observations": obs}},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestStationForCachesHits(t *testing.T) {
	var requests atomic.Int64
	srv := frostTestServer(t, "SN18700", 12, &requests)
	client := NewFrostClient(srv.Client(), srv.URL, "test-client-id", "")

	id, err := client.StationFor(context.Background(), 10.75, 59.91, ElementTemperature)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "SN18700" {
		t.Fatalf("expected SN18700, got %q", id)
	}

	if _, err := client.StationFor(context.Background(), 10.75, 59.91, ElementTemperature); err != nil {
		t.Fatalf("unexpected error on cached call: %v", err)
	}
	if got := requests.Load(); got != 1 {
		t.Fatalf("expected 1 upstream request, got %d", got)
	}

	// A different element is a different lookup.
	if _, err := client.StationFor(context.Background(), 10.75, 59.91, ElementCloudCover); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := requests.Load(); got != 2 {
		t.Fatalf("expected 2 upstream requests, got %d", got)
	}
}

func TestStationForEmptyResultNotCached(t *testing.T) {
	var requests atomic.Int64
	srv := frostTestServer(t, "", 12, &requests)
	client := NewFrostClient(srv.Client(), srv.URL, "test-client-id", "")

	for i := 0; i < 2; i++ {
		_, err := client.StationFor(context.Background(), 10.75, 59.91, ElementSnowCover)
		if !IsKind(err, KindNoStation) {
			t.Fatalf("expected KindNoStation, got %v", err)
		}
	}
	// Both calls must reach the server; failures never populate the cache.
	if got := requests.Load(); got != 2 {
		t.Fatalf("expected 2 upstream requests, got %d", got)
	}
}

func TestStationForPreconditionFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "412", http.StatusPreconditionFailed)
	}))
	defer srv.Close()

	client := NewFrostClient(srv.Client(), srv.URL, "test-client-id", "")
	_, err := client.StationFor(context.Background(), 10.75, 59.91, ElementTemperature)
	if !IsKind(err, KindPrecondition) {
		t.Fatalf("expected KindPrecondition for a 412 response, got %v", err)
	}
}

func TestMonthlyObservations(t *testing.T) {
	var requests atomic.Int64
	srv := frostTestServer(t, "SN18700", 12, &requests)
	client := NewFrostClient(srv.Client(), srv.URL, "test-client-id", "")

	values, err := client.MonthlyObservations(context.Background(), "SN18700", ElementTemperature)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(values) != MonthlyObservationCount {
		t.Fatalf("expected %d values, got %d", MonthlyObservationCount, len(values))
	}
	if values[0] != 0 || values[11] != 11 {
		t.Fatalf("unexpected values: %v", values)
	}

	if _, err := client.MonthlyObservations(context.Background(), "SN18700", ElementTemperature); err != nil {
		t.Fatalf("unexpected error on cached call: %v", err)
	}
	if got := requests.Load(); got != 1 {
		t.Fatalf("expected 1 upstream request, got %d", got)
	}
}

// TestMonthlyObservationsWrongCount: 11 and 13 values must both be rejected;
// only exactly 12 is a usable series.
func TestMonthlyObservationsWrongCount(t *testing.T) {
	for _, count := range []int{11, 13} {
		var requests atomic.Int64
		srv := frostTestServer(t, "SN18700", count, &requests)
		client := NewFrostClient(srv.Client(), srv.URL, "test-client-id", "")

		_, err := client.MonthlyObservations(context.Background(), "SN18700", ElementCloudCover)
		if !IsKind(err, KindIncompleteData) {
			t.Fatalf("expected KindIncompleteData for %d of 12 values, got %v", count, err)
		}
	}
}

func TestCurrentTemperatureCachedByStation(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		fmt.Fprint(w, `{"data":[{"sourceId":"SN18700","observations":[{"elementId":"air_temperature","value":7.3,"unit":"degC"}]}]}`)
	}))
	defer srv.Close()

	client := NewFrostClient(srv.Client(), srv.URL, "test-client-id", "")
	for i := 0; i < 2; i++ {
		v, err := client.CurrentTemperature(context.Background(), "SN18700")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v != 7.3 {
			t.Fatalf("expected 7.3, got %v", v)
		}
	}
	if got := requests.Load(); got != 1 {
		t.Fatalf("expected 1 upstream request within the cache window, got %d", got)
	}
}
