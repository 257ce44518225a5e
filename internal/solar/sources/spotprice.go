package sources

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/haavardst/solar-estimation/internal/region"
)

//go:embed assets/monthly_prices.json
var monthlyPricesJSON []byte

// PriceItem is one hourly spot price entry, field names as the upstream API
// returns them.
type PriceItem struct {
	EURPerKWh float64 `json:"EUR_per_kWh"`
	EXR       float64 `json:"EXR"`
	NOKPerKWh float64 `json:"NOK_per_kWh"`
	TimeStart string  `json:"time_start"`
	TimeEnd   string  `json:"time_end"`
}

// SpotPriceClient fetches hourly spot prices per zone and serves the bundled
// historical monthly price table. Today's prices are cached per (zone, day);
// a new calendar day invalidates the cache.
type SpotPriceClient struct {
	name    string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	now     func() time.Time

	mu            sync.Mutex
	lastFetchDate map[region.Zone]string
	todaysPrices  map[region.Zone][]PriceItem
}

// NewSpotPriceClient creates a client rooted at baseURL (e.g.
// https://www.hvakosterstrommen.no/api/v1/prices).
func NewSpotPriceClient(client *http.Client, baseURL string) *SpotPriceClient {
	return &SpotPriceClient{
		name:    "spotprice",
		baseURL: baseURL,
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: defaultBackoff(),
		},
		circuit:       newCircuit("spotprice"),
		now:           time.Now,
		lastFetchDate: make(map[region.Zone]string),
		todaysPrices:  make(map[region.Zone][]PriceItem),
	}
}

// PricesToday returns today's 24 hourly prices for a zone, fetching at most
// once per zone per calendar day.
func (s *SpotPriceClient) PricesToday(ctx context.Context, zone region.Zone) ([]PriceItem, error) {
	today := s.now()
	dayKey := today.Format("2006-01-02")

	s.mu.Lock()
	if s.lastFetchDate[zone] == dayKey {
		if items, ok := s.todaysPrices[zone]; ok {
			s.mu.Unlock()
			return items, nil
		}
	}
	s.mu.Unlock()

	items, err := s.Prices(ctx, zone, today)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.todaysPrices[zone] = items
	s.lastFetchDate[zone] = dayKey
	s.mu.Unlock()
	return items, nil
}

// Prices returns the hourly prices for a zone on a specific date. Not cached.
func (s *SpotPriceClient) Prices(ctx context.Context, zone region.Zone, date time.Time) ([]PriceItem, error) {
	u := fmt.Sprintf("%s/%d/%s_%s.json", s.baseURL, date.Year(), date.Format("01-02"), zone)

	buildRequest := func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, s.httpCfg, s.circuit, buildRequest)
	if err != nil {
		return nil, classifyRequestErr(s.name, err)
	}
	defer resp.Body.Close()

	var items []PriceItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, sourceErr(s.name, KindDecode, err)
	}
	return items, nil
}

// CurrentHourPrice returns the formatted price for the current hour.
func (s *SpotPriceClient) CurrentHourPrice(ctx context.Context, zone region.Zone) (string, error) {
	items, err := s.PricesToday(ctx, zone)
	if err != nil {
		return "", err
	}

	thisHour := s.now().Hour()
	for _, item := range items {
		start, err := time.Parse(time.RFC3339, item.TimeStart)
		if err != nil {
			continue
		}
		if start.Hour() == thisHour {
			return FormatHourPrice(item.NOKPerKWh), nil
		}
	}
	return "", sourceErr(s.name, KindNotFound, fmt.Errorf("no price entry for hour %d in zone %s", thisHour, zone))
}

// FormatHourPrice renders a kr/kWh price for display. Prices below 1.00 kr
// are shown in øre rounded to 2 decimal places of øre; prices of 1.00 kr and
// above are shown in kr rounded to 3 decimal places of krone. The threshold
// is inclusive on the kr side.
func FormatHourPrice(nokPerKWh float64) string {
	if nokPerKWh < 1.0 {
		ore := math.Round(nokPerKWh*10000) / 100
		return strconv.FormatFloat(ore, 'f', -1, 64) + " øre"
	}
	kr := math.Round(nokPerKWh*1000) / 1000
	return strconv.FormatFloat(kr, 'f', -1, 64) + " kr"
}

type monthlyPriceFile struct {
	Zones []struct {
		Zone string             `json:"zone"`
		Data map[string]float64 `json:"data"`
	} `json:"zones"`
}

// MonthlyPriceTable returns the bundled historical average price per month
// for a zone, keyed by 3-letter month abbreviation (Jan..Dec). The dataset
// ships with the binary; no network call is made. An unknown zone yields an
// empty map.
func (s *SpotPriceClient) MonthlyPriceTable(zone region.Zone) (map[string]float64, error) {
	var file monthlyPriceFile
	if err := json.Unmarshal(monthlyPricesJSON, &file); err != nil {
		return nil, sourceErr(s.name, KindDecode, err)
	}
	for _, z := range file.Zones {
		if z.Zone == string(zone) {
			return z.Data, nil
		}
	}
	return map[string]float64{}, nil
}
