package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// WeatherElement identifies a Frost monthly climate element.
type WeatherElement string

const (
	ElementTemperature WeatherElement = "mean(air_temperature P1M)"
	ElementCloudCover  WeatherElement = "mean(cloud_area_fraction P1M)"
	ElementSnowCover   WeatherElement = "mean(snow_coverage_type P1M)"
)

// Fixed reference window for monthly observations.
const (
	frostTimeResolution = "P1M"
	frostStartTime      = "2023-01-01"
	frostEndTime        = "2023-12-31"

	// MonthlyObservationCount is the number of data points a station must
	// report over the reference window for the series to be usable.
	MonthlyObservationCount = 12
)

// FrostClient talks to the MET Frost API: nearest-station search and monthly
// climate observations. Frost requires HTTP basic credentials.
type FrostClient struct {
	name         string
	baseURL      string
	clientID     string
	clientSecret string
	httpCfg      HTTPClientConfig
	circuit      *gobreaker.CircuitBreaker

	mu            sync.Mutex
	stationCache  map[string]string    // (element, lon, lat) -> station ID
	obsCache      map[string][]float64 // (station, element, resolution, range) -> monthly values
	tempCache     map[string]float64   // station ID -> last observed temperature
	tempFetchedAt map[string]time.Time
}

// NewFrostClient creates a Frost client. Credentials come from configuration,
// never from source.
func NewFrostClient(client *http.Client, baseURL, clientID, clientSecret string) *FrostClient {
	return &FrostClient{
		name:         "frost",
		baseURL:      baseURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: defaultBackoff(),
		},
		circuit:       newCircuit("frost"),
		stationCache:  make(map[string]string),
		obsCache:      make(map[string][]float64),
		tempCache:     make(map[string]float64),
		tempFetchedAt: make(map[string]time.Time),
	}
}

type frostStationResponse struct {
	Data []struct {
		ID       string  `json:"id"`
		Name     string  `json:"name"`
		Distance float64 `json:"distance"`
	} `json:"data"`
}

type frostObservationResponse struct {
	Data []struct {
		SourceID      string `json:"sourceId"`
		ReferenceTime string `json:"referenceTime"`
		Observations  []struct {
			ElementID string  `json:"elementId"`
			Value     float64 `json:"value"`
			Unit      string  `json:"unit"`
		} `json:"observations"`
	} `json:"data"`
}

// StationFor returns the ID of the nearest SensorSystem station reporting the
// element over the reference window. Successful lookups are cached by
// (element, lon, lat); empty results and failures are not, so they retry on
// the next call.
func (f *FrostClient) StationFor(ctx context.Context, lon, lat float64, element WeatherElement) (string, error) {
	cacheKey := fmt.Sprintf("%s-%v-%v", element, lon, lat)

	f.mu.Lock()
	if id, ok := f.stationCache[cacheKey]; ok {
		f.mu.Unlock()
		return id, nil
	}
	f.mu.Unlock()

	u := fmt.Sprintf("%s/sources/v0.jsonld?types=SensorSystem&elements=%s&geometry=%s&nearestmaxcount=1",
		f.baseURL,
		url.PathEscape(string(element)),
		url.PathEscape(fmt.Sprintf("nearest(POINT(%v %v))", lon, lat)))

	var payload frostStationResponse
	if err := f.getJSON(ctx, u, &payload); err != nil {
		return "", err
	}

	if len(payload.Data) == 0 {
		return "", sourceErr(f.name, KindNoStation, fmt.Errorf("no station reports %s near (%v, %v)", element, lon, lat))
	}
	id := payload.Data[0].ID
	if id == "" {
		return "", sourceErr(f.name, KindNoStation, fmt.Errorf("station search returned an empty ID"))
	}

	f.mu.Lock()
	f.stationCache[cacheKey] = id
	f.mu.Unlock()
	return id, nil
}

// MonthlyObservations fetches the 12 monthly values of an element for a
// station over the fixed 2023 reference window. A response that does not
// cover exactly 12 points is rejected with KindIncompleteData; the caller
// decides whether to substitute a default series. Responses are cached by
// the full request tuple.
func (f *FrostClient) MonthlyObservations(ctx context.Context, stationID string, element WeatherElement) ([]float64, error) {
	cacheKey := fmt.Sprintf("%s-%s-%s-%s-%s", stationID, element, frostTimeResolution, frostStartTime, frostEndTime)

	f.mu.Lock()
	if values, ok := f.obsCache[cacheKey]; ok {
		f.mu.Unlock()
		return values, nil
	}
	f.mu.Unlock()

	u := fmt.Sprintf("%s/observations/v0.jsonld?sources=%s&elements=%s&timeresolutions=%s&referencetime=%s&timeoffsets=default&levels=default",
		f.baseURL,
		url.QueryEscape(stationID),
		url.PathEscape(string(element)),
		url.PathEscape(frostTimeResolution),
		url.PathEscape(frostStartTime+"/"+frostEndTime))

	var payload frostObservationResponse
	if err := f.getJSON(ctx, u, &payload); err != nil {
		return nil, err
	}

	var values []float64
	for _, d := range payload.Data {
		for _, obs := range d.Observations {
			values = append(values, obs.Value)
		}
	}
	if len(values) != MonthlyObservationCount {
		return nil, sourceErr(f.name, KindIncompleteData,
			fmt.Errorf("station %s reported %d values for %s, expected %d", stationID, len(values), element, MonthlyObservationCount))
	}

	f.mu.Lock()
	f.obsCache[cacheKey] = values
	f.mu.Unlock()
	return values, nil
}

// CurrentTemperature returns the latest observed air temperature at a
// station, cached for up to an hour.
func (f *FrostClient) CurrentTemperature(ctx context.Context, stationID string) (float64, error) {
	f.mu.Lock()
	if at, ok := f.tempFetchedAt[stationID]; ok && time.Since(at) < time.Hour {
		if v, ok := f.tempCache[stationID]; ok {
			f.mu.Unlock()
			return v, nil
		}
	}
	f.mu.Unlock()

	u := fmt.Sprintf("%s/observations/v0.jsonld?sources=%s&referencetime=latest&elements=air_temperature",
		f.baseURL, url.QueryEscape(stationID))

	var payload frostObservationResponse
	if err := f.getJSON(ctx, u, &payload); err != nil {
		return 0, err
	}
	if len(payload.Data) == 0 || len(payload.Data[0].Observations) == 0 {
		return 0, sourceErr(f.name, KindIncompleteData, fmt.Errorf("no current temperature for station %s", stationID))
	}
	value := payload.Data[0].Observations[0].Value

	f.mu.Lock()
	f.tempCache[stationID] = value
	f.tempFetchedAt[stationID] = time.Now()
	f.mu.Unlock()
	return value, nil
}

func (f *FrostClient) getJSON(ctx context.Context, rawURL string, out interface{}) error {
	buildRequest := func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		req.SetBasicAuth(f.clientID, f.clientSecret)
		return req, nil
	}

	resp, err := doRequestWithResilience(ctx, f.httpCfg, f.circuit, buildRequest)
	if err != nil {
		return classifyRequestErr(f.name, err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return sourceErr(f.name, KindDecode, err)
	}
	return nil
}
