package httpapi

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/haavardst/solar-estimation/internal/region"
	"github.com/haavardst/solar-estimation/internal/solar"
	"github.com/haavardst/solar-estimation/internal/solar/sources"
	"github.com/haavardst/solar-estimation/internal/store"
)

var validate = validator.New()

// Deps bundles everything the HTTP handlers need.
type Deps struct {
	Estimator *solar.Estimator
	Addresses *sources.AddressClient
	Prices    *sources.SpotPriceClient
	Store     *store.MemoryStore

	// SellPriceKr is the flat sell-back tariff applied in savings handlers.
	SellPriceKr float64
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, deps Deps) {
	v1 := app.Group("/api/v1")

	v1.Get("/address/search", func(c *fiber.Ctx) error {
		query := c.Query("q")
		if query == "" {
			return fiber.NewError(fiber.StatusBadRequest, "q query parameter is required")
		}

		addresses, err := deps.Addresses.Search(c.Context(), query)
		if err != nil {
			return fiber.NewError(fiber.StatusBadGateway, "failed to search addresses")
		}
		if len(addresses) == 0 {
			return fiber.NewError(fiber.StatusNotFound, "no addresses matched the query")
		}

		return c.JSON(fiber.Map{"candidates": toLocations(addresses)})
	})

	v1.Get("/address/reverse", func(c *fiber.Ctx) error {
		lat := c.QueryFloat("lat")
		lon := c.QueryFloat("lon")
		if lat == 0 || lon == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "lat and lon query parameters are required")
		}

		addresses, err := deps.Addresses.Reverse(c.Context(), lat, lon)
		if err != nil {
			return fiber.NewError(fiber.StatusBadGateway, "failed to look up point")
		}
		if len(addresses) == 0 {
			return fiber.NewError(fiber.StatusNotFound, "no address near the given point")
		}

		return c.JSON(toLocations(addresses)[0])
	})

	v1.Get("/estimate/annual", func(c *fiber.Ctx) error {
		q, err := parseEstimateQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		annual, err := deps.Estimator.AnnualProduction(c.Context(), q.toLocation(), q.toRoof())
		if err != nil {
			return estimateError(err)
		}

		return c.JSON(fiber.Map{"annualKWh": annual})
	})

	v1.Get("/estimate/monthly", func(c *fiber.Ctx) error {
		q, err := parseEstimateQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		monthly, err := deps.Estimator.MonthlyProduction(c.Context(), q.toLocation(), q.toRoof())
		if err != nil {
			return estimateError(err)
		}

		return c.JSON(fiber.Map{"monthlyKWh": monthly})
	})

	v1.Get("/savings", func(c *fiber.Ctx) error {
		q, err := parseSavingsQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		zone, err := region.ForPostalCode(q.PostalCode)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		loc := q.toLocation()
		roof := q.toRoof()

		annual, err := deps.Estimator.AnnualProduction(c.Context(), loc, roof)
		if err != nil {
			return estimateError(err)
		}
		monthly, err := deps.Estimator.MonthlyProduction(c.Context(), loc, roof)
		if err != nil {
			return estimateError(err)
		}

		prices, err := deps.Prices.MonthlyPriceTable(zone)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to load price table")
		}

		rate := solar.ConsumptionRate(q.Consumption, annual)
		savings := solar.MonthlySavings(monthly, prices, rate, deps.SellPriceKr)
		result := solar.NewSavingsResult(savings)

		return c.JSON(fiber.Map{
			"zone":            zone,
			"annualKWh":       annual,
			"consumptionRate": rate,
			"savings":         result,
		})
	})

	v1.Get("/prices/today", func(c *fiber.Ctx) error {
		zone, err := parseZone(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		items, err := deps.Prices.PricesToday(c.Context(), zone)
		if err != nil {
			return fiber.NewError(fiber.StatusBadGateway, "failed to fetch spot prices")
		}
		return c.JSON(fiber.Map{"zone": zone, "prices": items})
	})

	v1.Get("/prices/current", func(c *fiber.Ctx) error {
		zone, err := parseZone(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		formatted, err := deps.Prices.CurrentHourPrice(c.Context(), zone)
		if err != nil {
			return fiber.NewError(fiber.StatusBadGateway, "couldn't fetch current hour price")
		}
		return c.JSON(fiber.Map{"zone": zone, "price": formatted})
	})

	v1.Get("/prices/monthly", func(c *fiber.Ctx) error {
		zone, err := parseZone(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		table, err := deps.Prices.MonthlyPriceTable(zone)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to load price table")
		}
		return c.JSON(fiber.Map{"zone": zone, "prices": table})
	})

	v1.Get("/weather/temperature", func(c *fiber.Ctx) error {
		lat := c.QueryFloat("lat")
		lon := c.QueryFloat("lon")
		if lat == 0 || lon == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "lat and lon query parameters are required")
		}

		temp, err := deps.Estimator.CurrentTemperature(c.Context(), solar.Location{Lat: lat, Lon: lon})
		if err != nil {
			return fiber.NewError(fiber.StatusBadGateway, "couldn't fetch current temperature")
		}
		return c.JSON(fiber.Map{"temperatureC": temp})
	})

	registerLocationRoutes(v1, deps)
}

func registerLocationRoutes(v1 fiber.Router, deps Deps) {
	v1.Post("/locations", func(c *fiber.Ctx) error {
		var loc solar.Location
		if err := c.BodyParser(&loc); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid location payload")
		}
		if loc.Zone == "" && loc.PostalCode != "" {
			zone, err := region.ForPostalCode(loc.PostalCode)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
			loc.Zone = zone
		}

		saved := deps.Store.Save(loc)
		return c.Status(fiber.StatusCreated).JSON(saved)
	})

	v1.Get("/locations", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"locations": deps.Store.List()})
	})

	v1.Get("/locations/:id", func(c *fiber.Ctx) error {
		saved, err := deps.Store.Get(c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		return c.JSON(saved)
	})

	v1.Delete("/locations/:id", func(c *fiber.Ctx) error {
		if err := deps.Store.Delete(c.Params("id")); err != nil {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	v1.Post("/locations/:id/roofs", func(c *fiber.Ctx) error {
		var roof solar.RoofSurface
		if err := c.BodyParser(&roof); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid roof payload")
		}
		if err := validate.Struct(roof); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		saved, err := deps.Store.AddRoof(c.Params("id"), roof)
		if err != nil {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		return c.JSON(saved)
	})

	v1.Put("/locations/:id/favorite", func(c *fiber.Ctx) error {
		var body struct {
			Favorite bool `json:"favorite"`
		}
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid favorite payload")
		}

		saved, err := deps.Store.SetFavorite(c.Params("id"), body.Favorite)
		if err != nil {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		return c.JSON(saved)
	})

	v1.Delete("/locations/:id/roofs/:name", func(c *fiber.Ctx) error {
		saved, err := deps.Store.RemoveRoof(c.Params("id"), c.Params("name"))
		if err != nil {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		return c.JSON(saved)
	})

	v1.Get("/locations/:id/estimate", func(c *fiber.Ctx) error {
		saved, err := deps.Store.Get(c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		if len(saved.Roofs) == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "location has no registered roof surfaces")
		}

		total, err := deps.Estimator.TotalAnnualProduction(c.Context(), saved.Location, saved.Roofs)
		if err != nil {
			return estimateError(err)
		}
		return c.JSON(fiber.Map{"annualKWh": total})
	})
}

// estimateQuery holds query parameters describing one roof surface at a
// point.
type estimateQuery struct {
	Lat         float64 `validate:"required,gte=-90,lte=90"`
	Lon         float64 `validate:"required,gte=-180,lte=180"`
	Area        float64 `validate:"required,gt=0"`
	Angle       int     `validate:"gte=0,lte=89"`
	Orientation string  `validate:"required,oneof=south west east north"`
}

func (q estimateQuery) toLocation() solar.Location {
	return solar.Location{Lat: q.Lat, Lon: q.Lon}
}

func (q estimateQuery) toRoof() solar.RoofSurface {
	return solar.RoofSurface{
		Name:        "query",
		AreaM2:      q.Area,
		TiltDeg:     q.Angle,
		Orientation: solar.Orientation(q.Orientation),
	}
}

func parseEstimateQuery(c *fiber.Ctx) (estimateQuery, error) {
	q := estimateQuery{
		Lat:         c.QueryFloat("lat"),
		Lon:         c.QueryFloat("lon"),
		Area:        c.QueryFloat("area"),
		Angle:       c.QueryInt("angle"),
		Orientation: c.Query("orientation"),
	}
	if err := validate.Struct(q); err != nil {
		return q, err
	}
	return q, nil
}

// savingsQuery extends estimateQuery with the consumption profile.
type savingsQuery struct {
	estimateQuery
	PostalCode  string  `validate:"required,len=4,numeric"`
	Consumption float64 `validate:"gte=0"`
}

func parseSavingsQuery(c *fiber.Ctx) (savingsQuery, error) {
	eq, err := parseEstimateQuery(c)
	if err != nil {
		return savingsQuery{}, err
	}

	q := savingsQuery{
		estimateQuery: eq,
		PostalCode:    c.Query("postalCode"),
		// 5000 kWh/year is a typical Norwegian household baseline.
		Consumption: c.QueryFloat("consumption", 5000),
	}
	if err := validate.Struct(q); err != nil {
		return q, err
	}
	return q, nil
}

func parseZone(c *fiber.Ctx) (region.Zone, error) {
	zone := region.Zone(c.Query("zone"))
	if !region.Valid(zone) {
		return "", errors.New("zone must be one of NO1..NO5")
	}
	return zone, nil
}

func estimateError(err error) error {
	if errors.Is(err, solar.ErrEstimateUnavailable) {
		return fiber.NewError(fiber.StatusBadGateway, "couldn't fetch estimate data")
	}
	return fiber.NewError(fiber.StatusInternalServerError, "failed to compute estimate")
}

func toLocations(addresses []sources.Address) []solar.Location {
	out := make([]solar.Location, 0, len(addresses))
	for _, a := range addresses {
		zone, err := region.ForPostalCode(a.PostalCode)
		if err != nil {
			zone = ""
		}
		out = append(out, solar.Location{
			Name:       a.Text,
			Lat:        a.RepresentationPt.Lat,
			Lon:        a.RepresentationPt.Lon,
			PostalCode: a.PostalCode,
			Place:      a.Place,
			IsHouse:    a.IsHouse(),
			Zone:       zone,
		})
	}
	return out
}
