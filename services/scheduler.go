// coin-offers-system/services/scheduler.go
package services

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartOfferScheduler owns the periodic triggers for the three lifecycle
// jobs: generation and pricing-sync hourly, awarding every 30 minutes.
// Every job runs in singleton mode so a slow run is never overlapped by the
// next trigger of the same job.
func StartOfferScheduler(ctx context.Context, offers *OfferService, portfolios *PortfolioService) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(1*time.Hour),
		gocron.NewTask(func() {
			if err := offers.GenerateOffers(); err != nil {
				log.Printf("[Scheduler] ❌ Offer generation failed: %v", err)
			}
		}),
		gocron.WithName("generate-offers"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(1*time.Hour),
		gocron.NewTask(func() {
			if err := offers.SyncOffersPrices(ctx); err != nil {
				log.Printf("[Scheduler] ❌ Offer pricing sync failed: %v", err)
			}
		}),
		gocron.WithName("sync-offer-prices"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(30*time.Minute),
		gocron.NewTask(func() {
			if err := portfolios.AwardPortfolios(); err != nil {
				log.Printf("[Scheduler] ❌ Portfolio awarding failed: %v", err)
			}
		}),
		gocron.WithName("award-portfolios"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, err
	}

	sched.Start()
	log.Println("✅ Offer scheduler started (generate/sync hourly, awards every 30m)")
	return sched, nil
}
