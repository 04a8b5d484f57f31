// coin-offers-system/services/offer_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strconv"
	"sync"

	"coin-offers-system/models"
	"coin-offers-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// Defaults for the generation knobs; overridable via env in main.
const (
	DefaultPairsPerOffer = 6
	DefaultBatchDays     = 7
	DefaultMaxLeadDays   = 3
)

// tokenUniverse is the fixed pool offers draw from. 2×PairsPerOffer symbols
// are sampled without replacement per offer, so the pool must stay well above
// twice the configured pair count.
var tokenUniverse = []string{
	"BTC", "ETH", "SOL", "XRP", "ADA", "DOGE", "AVAX", "DOT",
	"LINK", "MATIC", "ATOM", "UNI", "LTC", "NEAR", "APT", "ARB",
	"OP", "FIL", "INJ", "TIA", "SUI", "AAVE", "ALGO", "XLM",
}

// errPriceUnavailable marks the price feed's absence signal: skip the offer
// this tick, retry on the next one.
var errPriceUnavailable = errors.New("price unavailable")

type OfferService struct {
	DB     *gorm.DB
	Prices PriceSource

	PairsPerOffer int // token pairs per offer
	BatchDays     int // consecutive days generated per run
	MaxLeadDays   int // skip generation when already queued this far ahead
}

func NewOfferService(db *gorm.DB, prices PriceSource) *OfferService {
	return &OfferService{
		DB:            db,
		Prices:        prices,
		PairsPerOffer: DefaultPairsPerOffer,
		BatchDays:     DefaultBatchDays,
		MaxLeadDays:   DefaultMaxLeadDays,
	}
}

// --- Scheduled jobs ---

// GenerateOffers extends the offer sequence forward from the latest existing
// day (or from today when the table is empty). When the scheduler has been
// down and offers are already queued more than MaxLeadDays ahead, the run is
// skipped entirely so a backlog never piles up further.
func (s *OfferService) GenerateOffers() error {
	currentDay := utils.CurrentDay()

	nextDay := currentDay
	var latest models.Offer
	err := s.DB.Order("day DESC").First(&latest).Error
	switch {
	case err == nil:
		nextDay = latest.Day + 1
	case errors.Is(err, gorm.ErrRecordNotFound):
		// first run ever, start at today
	default:
		return fmt.Errorf("failed to load latest offer: %w", err)
	}

	if nextDay-currentDay > int64(s.MaxLeadDays) {
		log.Printf("[OFFERS] ⏭️ Skipping generation: next day %d is %d day(s) ahead of today (%d)",
			nextDay, nextDay-currentDay, currentDay)
		return nil
	}

	offers := make([]models.Offer, 0, s.BatchDays)
	for day := nextDay; day < nextDay+int64(s.BatchDays); day++ {
		offers = append(offers, models.Offer{
			ID:          uuid.NewString(),
			Day:         day,
			Date:        utils.DayToDate(day),
			TokenOffers: s.drawTokenPairs(),
			Status:      models.OfferStatusWaitingForPricing,
		})
	}

	// One batch create: either the whole run lands or it is retried next tick.
	if err := s.DB.Create(&offers).Error; err != nil {
		return fmt.Errorf("failed to create offer batch: %w", err)
	}

	log.Printf("[OFFERS] ✅ Generated %d offer(s) for days %d..%d", len(offers), nextDay, nextDay+int64(s.BatchDays)-1)
	return nil
}

// drawTokenPairs samples 2×PairsPerOffer distinct symbols and pairs them
// positionally.
func (s *OfferService) drawTokenPairs() models.TokenPairs {
	idx := rand.Perm(len(tokenUniverse))[:2*s.PairsPerOffer]

	pairs := make(models.TokenPairs, 0, s.PairsPerOffer)
	for i := 0; i < len(idx); i += 2 {
		pairs = append(pairs, models.TokenPair{
			FirstToken:  tokenUniverse[idx[i]],
			SecondToken: tokenUniverse[idx[i+1]],
		})
	}
	return pairs
}

// SyncOffersPrices closes out offers whose trading day has elapsed: it
// resolves every token's day candle and writes the full pricing-change map
// together with the status transition. Offers are processed independently —
// one bad offer never blocks the rest.
func (s *OfferService) SyncOffersPrices(ctx context.Context) error {
	currentDay := utils.CurrentDay()

	var offers []models.Offer
	if err := s.DB.
		Where("status = ? AND day <= ?", models.OfferStatusWaitingForPricing, currentDay).
		Order("day ASC").
		Find(&offers).Error; err != nil {
		return fmt.Errorf("failed to load offers waiting for pricing: %w", err)
	}

	for i := range offers {
		offer := &offers[i]
		if err := s.syncOfferPrices(ctx, offer); err != nil {
			log.Printf("[PRICING] ❌ Offer %s (day %d) failed: %v", offer.ID, offer.Day, err)
		}
	}
	return nil
}

// syncOfferPrices prices a single offer. All token lookups fan out
// concurrently; if any one is unavailable the offer is left untouched in
// waiting_for_pricing — there is never a partially written map.
func (s *OfferService) syncOfferPrices(ctx context.Context, offer *models.Offer) error {
	tokens := distinctTokens(offer.Tokens())

	changes := make(models.PricingChanges, len(tokens))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, token := range tokens {
		token := token
		g.Go(func() error {
			price, found, err := s.Prices.GetPrice(gctx, token, offer.Day)
			if err != nil {
				return fmt.Errorf("token %s: %w", token, err)
			}
			if !found {
				return fmt.Errorf("token %s: %w", token, errPriceUnavailable)
			}

			change := (price.EndDayPrice - price.StartDayPrice) / price.StartDayPrice

			mu.Lock()
			changes[token] = change
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if errors.Is(err, errPriceUnavailable) {
			log.Printf("[PRICING] ⏭️ Offer %s (day %d) not fully priced yet, retrying next tick: %v",
				offer.ID, offer.Day, err)
			return nil
		}
		return err
	}

	// Status and pricing move together in one update so the offer is never
	// observable as advanced-but-unpriced.
	if err := s.DB.Model(&models.Offer{}).
		Where("id = ?", offer.ID).
		Updates(models.Offer{
			Status:         models.OfferStatusWaitingForCompletion,
			PricingChanges: changes,
		}).Error; err != nil {
		return fmt.Errorf("failed to persist pricing: %w", err)
	}

	log.Printf("[PRICING] ✅ Offer %s (day %d) priced: %d token(s)", offer.ID, offer.Day, len(changes))
	return nil
}

func distinctTokens(tokens []string) []string {
	seen := make(map[string]bool, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// --- Accessors ---

func (s *OfferService) GetOfferByID(id string) (*models.Offer, error) {
	var offer models.Offer
	if err := s.DB.First(&offer, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &offer, nil
}

func (s *OfferService) GetOfferByDay(day int64) (*models.Offer, error) {
	var offer models.Offer
	if err := s.DB.First(&offer, "day = ?", day).Error; err != nil {
		return nil, err
	}
	return &offer, nil
}

// ListOffersForDays returns offers in the inclusive window
// [currentDay-days, currentDay], newest first.
func (s *OfferService) ListOffersForDays(days int64) ([]models.Offer, error) {
	currentDay := utils.CurrentDay()

	var offers []models.Offer
	err := s.DB.
		Where("day >= ? AND day <= ?", currentDay-days, currentDay).
		Order("day DESC").
		Find(&offers).Error
	return offers, err
}

func (s *OfferService) ListOffersWaitingForCompletion() ([]models.Offer, error) {
	var offers []models.Offer
	err := s.DB.
		Where("status = ?", models.OfferStatusWaitingForCompletion).
		Order("day ASC").
		Find(&offers).Error
	return offers, err
}

// MarkOfferCompleted is the one-way gate out of awarding: a completed offer
// is never picked up by the awarding job again.
func (s *OfferService) MarkOfferCompleted(id string) error {
	return s.DB.Model(&models.Offer{}).
		Where("id = ?", id).
		Update("status", models.OfferStatusCompleted).Error
}

// --- HTTP Handlers ---

// GetLatestOffer returns the offer with the highest day.
func (s *OfferService) GetLatestOffer(c *fiber.Ctx) error {
	var offer models.Offer
	if err := s.DB.Order("day DESC").First(&offer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no offers exist yet"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(offer)
}

func (s *OfferService) GetOfferByIDEndpoint(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid offer ID"})
	}

	offer, err := s.GetOfferByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Offer not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(offer)
}

func (s *OfferService) GetOfferByDayEndpoint(c *fiber.Ctx) error {
	day, err := strconv.ParseInt(c.Params("day"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid day"})
	}

	offer, err := s.GetOfferByDay(day)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Offer not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(offer)
}

// GetRecentOffers returns the offers for the last ?days=N days (default 7).
func (s *OfferService) GetRecentOffers(c *fiber.Ctx) error {
	days := int64(7)
	if daysStr := c.Query("days"); daysStr != "" {
		d, err := strconv.ParseInt(daysStr, 10, 64)
		if err != nil || d < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid days parameter"})
		}
		days = d
	}

	offers, err := s.ListOffersForDays(days)
	if err != nil {
		log.Printf("DB Error fetching recent offers: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch offers"})
	}
	return c.JSON(offers)
}
