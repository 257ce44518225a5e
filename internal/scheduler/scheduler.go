package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/haavardst/solar-estimation/internal/region"
	"github.com/haavardst/solar-estimation/internal/solar/sources"
)

// Scheduler periodically prefetches today's spot prices for every price
// zone, keeping the per-day cache warm so interactive requests rarely pay
// for the network round trip.
type Scheduler struct {
	scheduler *gocron.Scheduler
	prices    *sources.SpotPriceClient
	interval  time.Duration
}

// New creates a new Scheduler.
func New(prices *sources.SpotPriceClient, interval time.Duration) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	return &Scheduler{
		scheduler: s,
		prices:    prices,
		interval:  interval,
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	minutes := int(s.interval.Minutes())
	if minutes <= 0 {
		minutes = 360
	}

	_, err := s.scheduler.Every(minutes).Minutes().Do(func() {
		log.Println("scheduler: running spot price prefetch job")

		var wg sync.WaitGroup
		for _, zone := range region.All() {
			zone := zone
			wg.Add(1)
			go func() {
				defer wg.Done()

				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()

				if _, err := s.prices.PricesToday(ctx, zone); err != nil {
					log.Printf("scheduler: price prefetch failed for %s: %v", zone, err)
				}
			}()
		}
		wg.Wait()
		log.Println("scheduler: completed spot price prefetch job")
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
