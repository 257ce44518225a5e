package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/sony/gobreaker"
)

// Address is a geocoded Norwegian address candidate from the Kartverket
// address registry. Field names follow the upstream API.
type Address struct {
	Text             string              `json:"adressetekst"`
	Municipality     string              `json:"kommunenavn"`
	PostalCode       string              `json:"postnummer"`
	Place            string              `json:"poststed"`
	UnitNumbers      []string            `json:"bruksenhetsnummer"`
	RepresentationPt RepresentationPoint `json:"representasjonspunkt"`
}

// RepresentationPoint is the WGS84 coordinate of an address.
type RepresentationPoint struct {
	EPSG string  `json:"epsg"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// IsHouse reports whether the address looks like a standalone house. An
// address carrying unit numbers is treated as an apartment building; this is
// a proxy, not cadastral truth.
func (a Address) IsHouse() bool {
	return len(a.UnitNumbers) == 0
}

type addressResponse struct {
	Adresser []Address `json:"adresser"`
}

// AddressClient searches the Kartverket address registry by text and by
// coordinate point. Responses are cached per query.
type AddressClient struct {
	name    string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker

	mu          sync.Mutex
	searchCache map[string][]Address
	pointCache  map[string][]Address
}

// NewAddressClient creates a client rooted at baseURL (e.g.
// https://ws.geonorge.no/adresser/v1).
func NewAddressClient(client *http.Client, baseURL string) *AddressClient {
	return &AddressClient{
		name:    "address",
		baseURL: baseURL,
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: defaultBackoff(),
		},
		circuit:     newCircuit("address"),
		searchCache: make(map[string][]Address),
		pointCache:  make(map[string][]Address),
	}
}

// Search returns up to 5 fuzzy-matched address candidates for a free-text
// query.
func (a *AddressClient) Search(ctx context.Context, query string) ([]Address, error) {
	cacheKey := strings.ToLower(strings.TrimSpace(query))

	a.mu.Lock()
	if cached, ok := a.searchCache[cacheKey]; ok {
		a.mu.Unlock()
		return cached, nil
	}
	a.mu.Unlock()

	u := fmt.Sprintf("%s/sok?sok=%s&fuzzy=true&utkoordsys=4258&treffPerSide=5&side=0&asciiKompatibel=true",
		a.baseURL, url.QueryEscape(query))

	addresses, err := a.getAddresses(ctx, u)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.searchCache[cacheKey] = addresses
	a.mu.Unlock()
	return addresses, nil
}

// Reverse returns the closest address within 100 m of a coordinate point.
func (a *AddressClient) Reverse(ctx context.Context, lat, lon float64) ([]Address, error) {
	cacheKey := fmt.Sprintf("%v_%v", lat, lon)

	a.mu.Lock()
	if cached, ok := a.pointCache[cacheKey]; ok {
		a.mu.Unlock()
		return cached, nil
	}
	a.mu.Unlock()

	u := fmt.Sprintf("%s/punktsok?radius=100&lat=%v&lon=%v&treffPerSide=1", a.baseURL, lat, lon)

	addresses, err := a.getAddresses(ctx, u)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.pointCache[cacheKey] = addresses
	a.mu.Unlock()
	return addresses, nil
}

func (a *AddressClient) getAddresses(ctx context.Context, rawURL string) ([]Address, error) {
	buildRequest := func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, rawURL, nil)
	}

	resp, err := doRequestWithResilience(ctx, a.httpCfg, a.circuit, buildRequest)
	if err != nil {
		return nil, classifyRequestErr(a.name, err)
	}
	defer resp.Body.Close()

	var payload addressResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, sourceErr(a.name, KindDecode, err)
	}
	return payload.Adresser, nil
}
