package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/haavardst/solar-estimation/internal/solar"
	"github.com/haavardst/solar-estimation/internal/solar/sources"
	"github.com/haavardst/solar-estimation/internal/store"
)

// offlineDeps builds handler dependencies whose outbound clients have no HTTP
// client; any handler that unexpectedly goes to the network fails loudly.
func offlineDeps() Deps {
	return Deps{
		Estimator:   solar.NewEstimator(sources.NewPVGISClient(nil, ""), sources.NewFrostClient(nil, "", "", "")),
		Addresses:   sources.NewAddressClient(nil, ""),
		Prices:      sources.NewSpotPriceClient(nil, ""),
		Store:       store.NewMemoryStore(),
		SellPriceKr: 0.60,
	}
}

func testApp(deps Deps) *fiber.App {
	app := fiber.New()
	RegisterRoutes(app, deps)
	return app
}

func decodeBody(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		t.Fatalf("failed to decode response %q: %v", body, err)
	}
}

func TestEstimateValidation(t *testing.T) {
	app := testApp(offlineDeps())

	cases := []string{
		"/api/v1/estimate/annual",
		"/api/v1/estimate/annual?lat=59.91&lon=10.75&area=0&angle=30&orientation=south",
		"/api/v1/estimate/annual?lat=59.91&lon=10.75&area=20&angle=95&orientation=south",
		"/api/v1/estimate/annual?lat=59.91&lon=10.75&area=20&angle=30&orientation=up",
		"/api/v1/estimate/annual?lat=200&lon=10.75&area=20&angle=30&orientation=south",
		"/api/v1/estimate/monthly?lat=59.91&lon=10.75&area=-5&angle=30&orientation=south",
	}
	for _, target := range cases {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, target, nil))
		if err != nil {
			t.Fatalf("request failed for %s: %v", target, err)
		}
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", target, resp.StatusCode)
		}
	}
}

func TestSavingsValidation(t *testing.T) {
	app := testApp(offlineDeps())

	cases := []string{
		"/api/v1/savings?lat=59.91&lon=10.75&area=20&angle=30&orientation=south",
		"/api/v1/savings?lat=59.91&lon=10.75&area=20&angle=30&orientation=south&postalCode=12a4",
		"/api/v1/savings?lat=59.91&lon=10.75&area=20&angle=30&orientation=south&postalCode=12345",
	}
	for _, target := range cases {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, target, nil))
		if err != nil {
			t.Fatalf("request failed for %s: %v", target, err)
		}
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", target, resp.StatusCode)
		}
	}
}

func TestPricesMonthly(t *testing.T) {
	app := testApp(offlineDeps())

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/prices/monthly?zone=NO1", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		Zone   string             `json:"zone"`
		Prices map[string]float64 `json:"prices"`
	}
	decodeBody(t, resp, &body)
	if body.Zone != "NO1" {
		t.Fatalf("expected zone NO1, got %q", body.Zone)
	}
	if len(body.Prices) != 12 {
		t.Fatalf("expected 12 monthly prices, got %d", len(body.Prices))
	}

	for _, target := range []string{"/api/v1/prices/monthly", "/api/v1/prices/monthly?zone=SE3"} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, target, nil))
		if err != nil {
			t.Fatalf("request failed for %s: %v", target, err)
		}
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", target, resp.StatusCode)
		}
	}
}

func TestPricesTodayRequiresValidZone(t *testing.T) {
	app := testApp(offlineDeps())

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/prices/today?zone=NO7", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestAddressSearchRequiresQuery(t *testing.T) {
	app := testApp(offlineDeps())

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/address/search", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestAddressSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/sok") {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"adresser":[{
			"adressetekst":"Testveien 1",
			"kommunenavn":"OSLO",
			"postnummer":"0150",
			"poststed":"OSLO",
			"bruksenhetsnummer":[],
			"representasjonspunkt":{"epsg":"EPSG:4258","lat":59.91,"lon":10.75}
		}]}`)
	}))
	defer srv.Close()

	deps := offlineDeps()
	deps.Addresses = sources.NewAddressClient(srv.Client(), srv.URL)
	app := testApp(deps)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/address/search?q=Testveien", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		Candidates []solar.Location `json:"candidates"`
	}
	decodeBody(t, resp, &body)
	if len(body.Candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(body.Candidates))
	}
	c := body.Candidates[0]
	if c.Name != "Testveien 1" || c.PostalCode != "0150" || c.Place != "OSLO" {
		t.Fatalf("unexpected candidate: %+v", c)
	}
	if c.Zone != "NO1" {
		t.Fatalf("expected zone NO1 derived from the postal code, got %q", c.Zone)
	}
	if !c.IsHouse {
		t.Fatalf("expected an address without unit numbers to count as a house")
	}
}

func TestLocationsCRUD(t *testing.T) {
	app := testApp(offlineDeps())

	// Create; the zone is derived from the postal code.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/locations",
		strings.NewReader(`{"name":"Testveien 1","lat":63.43,"lon":10.39,"postalCode":"7030","place":"Trondheim","isHouse":true}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var saved store.SavedLocation
	decodeBody(t, resp, &saved)
	if saved.ID == "" {
		t.Fatalf("expected a generated ID")
	}
	if saved.Location.Zone != "NO3" {
		t.Fatalf("expected zone NO3 for postal code 7030, got %q", saved.Location.Zone)
	}

	// List contains it.
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/locations", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	var list struct {
		Locations []store.SavedLocation `json:"locations"`
	}
	decodeBody(t, resp, &list)
	if len(list.Locations) != 1 || list.Locations[0].ID != saved.ID {
		t.Fatalf("unexpected list: %+v", list.Locations)
	}

	// An invalid roof payload is rejected before it reaches the store.
	req = httptest.NewRequest(http.MethodPost, "/api/v1/locations/"+saved.ID+"/roofs",
		strings.NewReader(`{"name":"tak","areaM2":0,"tiltDeg":30,"orientation":"south"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for a zero-area roof, got %d", resp.StatusCode)
	}

	// A valid roof is registered.
	req = httptest.NewRequest(http.MethodPost, "/api/v1/locations/"+saved.ID+"/roofs",
		strings.NewReader(`{"name":"tak","areaM2":20,"tiltDeg":30,"orientation":"south"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var withRoof store.SavedLocation
	decodeBody(t, resp, &withRoof)
	if len(withRoof.Roofs) != 1 || withRoof.Roofs[0].Name != "tak" {
		t.Fatalf("unexpected roofs: %+v", withRoof.Roofs)
	}

	// Flag it as favorite.
	req = httptest.NewRequest(http.MethodPut, "/api/v1/locations/"+saved.ID+"/favorite",
		strings.NewReader(`{"favorite":true}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var favored store.SavedLocation
	decodeBody(t, resp, &favored)
	if !favored.Favorite {
		t.Fatalf("expected favorite flag set")
	}

	// Remove the roof again.
	resp, err = app.Test(httptest.NewRequest(http.MethodDelete, "/api/v1/locations/"+saved.ID+"/roofs/tak", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	// Delete the location.
	resp, err = app.Test(httptest.NewRequest(http.MethodDelete, "/api/v1/locations/"+saved.ID, nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/locations/"+saved.ID, nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", resp.StatusCode)
	}
}

func TestLocationEstimateRequiresRoofs(t *testing.T) {
	deps := offlineDeps()
	app := testApp(deps)

	saved := deps.Store.Save(solar.Location{Name: "Testveien 1", Lat: 59.91, Lon: 10.75, PostalCode: "0150", Zone: "NO1"})
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/locations/"+saved.ID+"/estimate", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without registered roofs, got %d", resp.StatusCode)
	}
}

func TestInvalidPostalCodeOnCreate(t *testing.T) {
	app := testApp(offlineDeps())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/locations",
		strings.NewReader(`{"name":"Testveien 1","lat":59.91,"lon":10.75,"postalCode":"12a4"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for a malformed postal code, got %d", resp.StatusCode)
	}
}
