package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/sony/gobreaker"
)

// Fixed PVGIS simulation parameters.
const (
	pvgisMountingPlace = "building"
	pvgisTechnology    = "crystSi"
	pvgisSeriesYear    = 2018
)

// HourlyPoint is one entry of the PVGIS seriescalc output. The upstream
// field for tilted-plane irradiance is literally named "G(i)"; pointer
// fields keep null values distinguishable from zero.
type HourlyPoint struct {
	Time string   `json:"time"`
	Gi   *float64 `json:"G(i)"`
	T2m  *float64 `json:"T2m"`
	P    *float64 `json:"P"`
}

// HourlySeries is a year of hourly irradiance/temperature points for a
// tilted plane.
type HourlySeries struct {
	Points []HourlyPoint
}

// AverageIrradiance returns the mean tilted-plane irradiance over all points
// with a non-null G(i) value. Points without a value are excluded from the
// average, not treated as zero. ok is false when no point has a value.
func (s *HourlySeries) AverageIrradiance() (avg float64, ok bool) {
	var sum float64
	var n int
	for _, p := range s.Points {
		if p.Gi != nil {
			sum += *p.Gi
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// MonthlyProduction is one month's raw production estimate. Month is 1-based.
type MonthlyProduction struct {
	Month int
	KWh   float64
}

// ProductionTotals is the raw (weather-uncorrected) production estimate for a
// simulated fixed array.
type ProductionTotals struct {
	AnnualKWh float64
	DailyKWh  float64
	Monthly   []MonthlyProduction
}

type pvgisResponse struct {
	Outputs *struct {
		Hourly []HourlyPoint `json:"hourly"`
		Totals *struct {
			Fixed *struct {
				ED float64 `json:"E_d"`
				EY float64 `json:"E_y"`
			} `json:"fixed"`
		} `json:"totals"`
		Monthly *struct {
			Fixed []struct {
				Month int     `json:"month"`
				EM    float64 `json:"E_m"`
			} `json:"fixed"`
		} `json:"monthly"`
	} `json:"outputs"`
}

// PVGISClient talks to the JRC PVGIS simulation API (seriescalc and PVcalc
// endpoints). Responses are cached indefinitely by their full parameter
// tuple.
type PVGISClient struct {
	name    string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker

	mu          sync.Mutex
	hourlyCache map[string]*HourlySeries
	prodCache   map[string]*ProductionTotals
}

// NewPVGISClient creates a PVGIS client rooted at baseURL (e.g.
// https://re.jrc.ec.europa.eu/api/v5_2).
func NewPVGISClient(client *http.Client, baseURL string) *PVGISClient {
	return &PVGISClient{
		name:    "pvgis",
		baseURL: baseURL,
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: defaultBackoff(),
		},
		circuit:     newCircuit("pvgis"),
		hourlyCache: make(map[string]*HourlySeries),
		prodCache:   make(map[string]*ProductionTotals),
	}
}

// HourlySeries fetches tilted-plane irradiance and 2m temperature for the
// fixed reference year.
func (p *PVGISClient) HourlySeries(ctx context.Context, lat, lon float64, angle, aspect int) (*HourlySeries, error) {
	cacheKey := fmt.Sprintf("series-%v-%v-%d-%d", lat, lon, angle, aspect)

	p.mu.Lock()
	if cached, ok := p.hourlyCache[cacheKey]; ok {
		p.mu.Unlock()
		return cached, nil
	}
	p.mu.Unlock()

	u := fmt.Sprintf("%s/seriescalc?lat=%v&lon=%v&angle=%d&aspect=%d&mountingplace=%s&pvtechchoice=%s&optimalinclination=0&startyear=%d&endyear=%d&outputformat=json",
		p.baseURL, lat, lon, angle, aspect, pvgisMountingPlace, pvgisTechnology, pvgisSeriesYear, pvgisSeriesYear)

	var payload pvgisResponse
	if err := p.getJSON(ctx, u, &payload); err != nil {
		return nil, err
	}
	if payload.Outputs == nil || len(payload.Outputs.Hourly) == 0 {
		return nil, sourceErr(p.name, KindDecode, fmt.Errorf("seriescalc response has no hourly output"))
	}

	series := &HourlySeries{Points: payload.Outputs.Hourly}

	p.mu.Lock()
	p.hourlyCache[cacheKey] = series
	p.mu.Unlock()
	return series, nil
}

// ProductionTotals fetches the raw annual and monthly production estimate for
// an array with the given peak power (kWp) and system loss (percent).
func (p *PVGISClient) ProductionTotals(ctx context.Context, lat, lon, peakPowerKWp float64, lossPct, angle, aspect int) (*ProductionTotals, error) {
	cacheKey := fmt.Sprintf("pvcalc-%v-%v-%v-%d-%d-%d", lat, lon, peakPowerKWp, lossPct, angle, aspect)

	p.mu.Lock()
	if cached, ok := p.prodCache[cacheKey]; ok {
		p.mu.Unlock()
		return cached, nil
	}
	p.mu.Unlock()

	u := fmt.Sprintf("%s/PVcalc?lat=%v&lon=%v&peakpower=%v&loss=%d&angle=%d&aspect=%d&mountingplace=%s&pvtechchoice=%s&optimalinclination=0&outputformat=json",
		p.baseURL, lat, lon, peakPowerKWp, lossPct, angle, aspect, pvgisMountingPlace, pvgisTechnology)

	var payload pvgisResponse
	if err := p.getJSON(ctx, u, &payload); err != nil {
		return nil, err
	}
	if payload.Outputs == nil || payload.Outputs.Totals == nil || payload.Outputs.Totals.Fixed == nil {
		return nil, sourceErr(p.name, KindDecode, fmt.Errorf("PVcalc response has no totals output"))
	}

	totals := &ProductionTotals{
		AnnualKWh: payload.Outputs.Totals.Fixed.EY,
		DailyKWh:  payload.Outputs.Totals.Fixed.ED,
	}
	if payload.Outputs.Monthly != nil {
		for _, m := range payload.Outputs.Monthly.Fixed {
			totals.Monthly = append(totals.Monthly, MonthlyProduction{Month: m.Month, KWh: m.EM})
		}
	}

	p.mu.Lock()
	p.prodCache[cacheKey] = totals
	p.mu.Unlock()
	return totals, nil
}

func (p *PVGISClient) getJSON(ctx context.Context, rawURL string, out interface{}) error {
	buildRequest := func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, rawURL, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return classifyRequestErr(p.name, err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return sourceErr(p.name, KindDecode, err)
	}
	return nil
}
