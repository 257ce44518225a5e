package solar

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/haavardst/solar-estimation/internal/solar/sources"
)

// Empirical correction model constants.
const (
	// PanelEfficiency converts roof area to installed peak power
	// (kWp = area m2 x efficiency).
	PanelEfficiency = 0.20
	// SystemLossPct is the flat PVGIS system loss assumption.
	SystemLossPct = 14
	// CloudFactor dampens irradiance per unit of average cloud cover; cloud
	// attenuates more aggressively than the raw fraction.
	CloudFactor = 0.75
	// SnowFactor dampens irradiance per unit of average snow cover; full
	// coverage nearly eliminates production.
	SnowFactor = 0.90
	// TempCoeff is the linear photovoltaic temperature derating per degree C
	// away from ReferenceTemp.
	TempCoeff     = -0.004
	ReferenceTemp = 25.0
)

// ErrEstimateUnavailable is returned when a hard dependency (irradiance or
// production simulation) fails and no estimate can be produced. Weather
// failures alone never cause it; they fall back to a zero-default series.
var ErrEstimateUnavailable = errors.New("estimate unavailable")

// AdjustIrradianceForCloudAndSnow dampens an irradiance or production figure
// for average cloud and snow cover fractions (both 0.0-1.0).
func AdjustIrradianceForCloudAndSnow(influx, cloudCover, snowCover float64) float64 {
	cloudMultiplier := 1 - cloudCover*CloudFactor
	snowMultiplier := 1 - snowCover*SnowFactor
	return influx * cloudMultiplier * snowMultiplier
}

// AdjustPowerWithTemperature applies linear temperature derating around the
// 25 degree reference: output drops 0.4% per degree above it.
func AdjustPowerWithTemperature(basePower, temperature float64) float64 {
	return basePower * (1 + TempCoeff*(temperature-ReferenceTemp))
}

// weatherData holds one monthly series per measurement type. Series default
// to all zeros when a station or its observations are unavailable.
type weatherData struct {
	Temperature MonthlySeries
	Cloud       MonthlySeries
	Snow        MonthlySeries
}

// Estimator composes the PVGIS simulation and Frost weather sources into
// weather-adjusted production estimates. Final figures are cached
// indefinitely by their full parameter tuple.
type Estimator struct {
	pvgis *sources.PVGISClient
	frost *sources.FrostClient

	mu           sync.Mutex
	annualCache  map[string]float64
	monthlyCache map[string]MonthlySeries
}

// NewEstimator creates an Estimator over the given sources.
func NewEstimator(pvgis *sources.PVGISClient, frost *sources.FrostClient) *Estimator {
	return &Estimator{
		pvgis:        pvgis,
		frost:        frost,
		annualCache:  make(map[string]float64),
		monthlyCache: make(map[string]MonthlySeries),
	}
}

func estimateCacheKey(prefix string, loc Location, roof RoofSurface) string {
	return fmt.Sprintf("%s-%v-%v-%v-%v-%d-%d",
		prefix, loc.Lat, loc.Lon, roof.AreaM2, PanelEfficiency, roof.TiltDeg, roof.Orientation.Aspect())
}

// AnnualProduction estimates the weather- and temperature-adjusted annual
// production (kWh/year) for one roof surface.
//
// The hourly irradiance series is fetched alongside the production totals and
// gates the estimate on G(i) data being present; the averaged influx itself
// does not enter the annual adjustment.
func (e *Estimator) AnnualProduction(ctx context.Context, loc Location, roof RoofSurface) (float64, error) {
	cacheKey := estimateCacheKey("annual", loc, roof)

	e.mu.Lock()
	if v, ok := e.annualCache[cacheKey]; ok {
		e.mu.Unlock()
		log.Printf("DEBUG: cache hit for adjusted annual production: %s", cacheKey)
		return v, nil
	}
	e.mu.Unlock()

	angle := roof.TiltDeg
	aspect := roof.Orientation.Aspect()
	peakPower := roof.AreaM2 * PanelEfficiency

	var (
		wg        sync.WaitGroup
		hourly    *sources.HourlySeries
		hourlyErr error
		totals    *sources.ProductionTotals
		totalsErr error
		weather   weatherData
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		hourly, hourlyErr = e.pvgis.HourlySeries(ctx, loc.Lat, loc.Lon, angle, aspect)
	}()
	go func() {
		defer wg.Done()
		totals, totalsErr = e.pvgis.ProductionTotals(ctx, loc.Lat, loc.Lon, peakPower, SystemLossPct, angle, aspect)
	}()
	go func() {
		defer wg.Done()
		weather = e.weatherData(ctx, loc.Lon, loc.Lat)
	}()
	wg.Wait()

	if hourlyErr != nil {
		log.Printf("ERROR: hourly irradiance fetch failed for (%v, %v): %v", loc.Lat, loc.Lon, hourlyErr)
		return 0, fmt.Errorf("%w: %v", ErrEstimateUnavailable, hourlyErr)
	}
	if totalsErr != nil {
		log.Printf("ERROR: production totals fetch failed for (%v, %v): %v", loc.Lat, loc.Lon, totalsErr)
		return 0, fmt.Errorf("%w: %v", ErrEstimateUnavailable, totalsErr)
	}
	if _, ok := hourly.AverageIrradiance(); !ok {
		return 0, fmt.Errorf("%w: no tilted-plane irradiance values", ErrEstimateUnavailable)
	}

	cloudCover := weather.Cloud.Average() / 100.0
	snowCover := weather.Snow.Average() / 100.0
	temperature := weather.Temperature.Average()

	weatherAdjusted := totals.AnnualKWh * AdjustIrradianceForCloudAndSnow(1.0, cloudCover, snowCover)
	adjusted := AdjustPowerWithTemperature(weatherAdjusted, temperature)

	e.mu.Lock()
	e.annualCache[cacheKey] = adjusted
	e.mu.Unlock()
	return adjusted, nil
}

// MonthlyProduction estimates the adjusted production per month
// (kWh/month, index 0 = January) for one roof surface. Each month's raw
// PVGIS figure is scaled by that month's cloud/snow and temperature factors.
func (e *Estimator) MonthlyProduction(ctx context.Context, loc Location, roof RoofSurface) (MonthlySeries, error) {
	cacheKey := estimateCacheKey("monthly", loc, roof)

	e.mu.Lock()
	if s, ok := e.monthlyCache[cacheKey]; ok {
		e.mu.Unlock()
		log.Printf("DEBUG: cache hit for adjusted monthly production: %s", cacheKey)
		return s, nil
	}
	e.mu.Unlock()

	angle := roof.TiltDeg
	aspect := roof.Orientation.Aspect()
	peakPower := roof.AreaM2 * PanelEfficiency

	var (
		wg        sync.WaitGroup
		totals    *sources.ProductionTotals
		totalsErr error
		weather   weatherData
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		totals, totalsErr = e.pvgis.ProductionTotals(ctx, loc.Lat, loc.Lon, peakPower, SystemLossPct, angle, aspect)
	}()
	go func() {
		defer wg.Done()
		weather = e.weatherData(ctx, loc.Lon, loc.Lat)
	}()
	wg.Wait()

	if totalsErr != nil {
		log.Printf("ERROR: production totals fetch failed for (%v, %v): %v", loc.Lat, loc.Lon, totalsErr)
		return MonthlySeries{}, fmt.Errorf("%w: %v", ErrEstimateUnavailable, totalsErr)
	}

	var result MonthlySeries
	for _, m := range totals.Monthly {
		if m.Month < 1 || m.Month > 12 {
			continue
		}
		i := m.Month - 1

		cloud := weather.Cloud[i] / 100.0
		snow := weather.Snow[i] / 100.0
		temp := weather.Temperature[i]

		weatherFactor := AdjustIrradianceForCloudAndSnow(1.0, cloud, snow)
		tempFactor := AdjustPowerWithTemperature(1.0, temp)
		result[i] = m.KWh * weatherFactor * tempFactor
	}

	e.mu.Lock()
	e.monthlyCache[cacheKey] = result
	e.mu.Unlock()
	return result, nil
}

// Estimate returns the combined annual and monthly adjusted production for
// one roof surface.
func (e *Estimator) Estimate(ctx context.Context, loc Location, roof RoofSurface) (*ProductionEstimate, error) {
	annual, err := e.AnnualProduction(ctx, loc, roof)
	if err != nil {
		return nil, err
	}
	monthly, err := e.MonthlyProduction(ctx, loc, roof)
	if err != nil {
		return nil, err
	}
	return &ProductionEstimate{AnnualKWh: annual, MonthlyKWh: &monthly}, nil
}

// TotalAnnualProduction sums the adjusted annual production over several roof
// surfaces. Any failing surface fails the total.
func (e *Estimator) TotalAnnualProduction(ctx context.Context, loc Location, roofs []RoofSurface) (float64, error) {
	var total float64
	for _, roof := range roofs {
		annual, err := e.AnnualProduction(ctx, loc, roof)
		if err != nil {
			return 0, err
		}
		total += annual
	}
	return total, nil
}

// CurrentTemperature resolves the nearest temperature station for a location
// and returns its latest observed air temperature.
func (e *Estimator) CurrentTemperature(ctx context.Context, loc Location) (float64, error) {
	stationID, err := e.frost.StationFor(ctx, loc.Lon, loc.Lat, sources.ElementTemperature)
	if err != nil {
		return 0, err
	}
	return e.frost.CurrentTemperature(ctx, stationID)
}

// weatherData resolves the nearest station per measurement type and fetches
// each type's 12-month observation series: a fan-out of three station
// resolutions followed by a fan-out of three observation fetches. Any type
// without a station or without exactly 12 observed values keeps its
// zero-default series; weather problems are logged, never fatal.
func (e *Estimator) weatherData(ctx context.Context, lon, lat float64) weatherData {
	elements := []sources.WeatherElement{
		sources.ElementTemperature,
		sources.ElementCloudCover,
		sources.ElementSnowCover,
	}

	stations := make([]string, len(elements))
	var wg sync.WaitGroup
	for i, element := range elements {
		wg.Add(1)
		go func(i int, element sources.WeatherElement) {
			defer wg.Done()
			id, err := e.frost.StationFor(ctx, lon, lat, element)
			if err != nil {
				log.Printf("INFO: no station for %s near (%v, %v): %v", element, lon, lat, err)
				return
			}
			stations[i] = id
		}(i, element)
	}
	wg.Wait()

	// Each goroutine owns its slot; zero-default series stay in place on
	// failure.
	series := make([]MonthlySeries, len(elements))
	for i, element := range elements {
		if stations[i] == "" {
			continue
		}
		wg.Add(1)
		go func(i int, element sources.WeatherElement, stationID string) {
			defer wg.Done()
			values, err := e.frost.MonthlyObservations(ctx, stationID, element)
			if err != nil {
				log.Printf("INFO: using default series for %s from station %s: %v", element, stationID, err)
				return
			}
			copy(series[i][:], values)
		}(i, element, stations[i])
	}
	wg.Wait()

	return weatherData{
		Temperature: series[0],
		Cloud:       series[1],
		Snow:        series[2],
	}
}
