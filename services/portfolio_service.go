// coin-offers-system/services/portfolio_service.go
package services

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"coin-offers-system/models"
	"coin-offers-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Commitment rejection conditions, each mapped to its own HTTP status by the
// handler.
var (
	ErrOfferNotFound      = errors.New("offer not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrOfferNotOpen       = errors.New("offer is not open for commitments")
	ErrInvalidSelection   = errors.New("invalid token selection")
	ErrDuplicatePortfolio = errors.New("portfolio already exists for this offer")
)

type PortfolioService struct {
	DB     *gorm.DB
	Offers *OfferService

	// StrictCompletion gates offer completion on every portfolio being
	// awarded: on any failure the offer stays in waiting_for_completion and
	// the whole batch retries next tick (the conditional award update makes
	// the retry safe). When false, one pass is best-effort and the offer
	// completes regardless.
	StrictCompletion bool
}

func NewPortfolioService(db *gorm.DB, offers *OfferService) *PortfolioService {
	return &PortfolioService{
		DB:               db,
		Offers:           offers,
		StrictCompletion: true,
	}
}

// --- Commitment creation ---

// CreatePortfolio validates and persists a user's commitment to an offer.
// Commitments are accepted only for tomorrow's offer: once a day begins its
// offer is locked. The (user, offer) unique index is the authority on
// duplicates — the insert translates a duplicate-key violation into
// ErrDuplicatePortfolio, so concurrent submissions cannot both land.
func (s *PortfolioService) CreatePortfolio(userID, offerID string, selectedTokens []string) (*models.Portfolio, error) {
	var offer models.Offer
	if err := s.DB.First(&offer, "id = ?", offerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOfferNotFound
		}
		return nil, err
	}

	var user models.User
	if err := s.DB.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	if offer.Day != utils.CurrentDay()+1 {
		return nil, ErrOfferNotOpen
	}

	if len(selectedTokens) != len(offer.TokenOffers) {
		return nil, fmt.Errorf("%w: expected %d selections, got %d",
			ErrInvalidSelection, len(offer.TokenOffers), len(selectedTokens))
	}
	for i, token := range selectedTokens {
		pair := offer.TokenOffers[i]
		if token != pair.FirstToken && token != pair.SecondToken {
			return nil, fmt.Errorf("%w: position %d must be %s or %s",
				ErrInvalidSelection, i, pair.FirstToken, pair.SecondToken)
		}
	}

	portfolio := &models.Portfolio{
		ID:             uuid.NewString(),
		UserID:         userID,
		OfferID:        offerID,
		SelectedTokens: selectedTokens,
		IsAwarded:      false,
	}

	if err := s.DB.Create(portfolio).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicatePortfolio
		}
		return nil, fmt.Errorf("failed to create portfolio: %w", err)
	}

	return portfolio, nil
}

// --- Awarding ---

// AwardPortfolios scores and pays out every non-awarded portfolio of every
// offer waiting for completion. Offers are processed independently; within an
// offer each portfolio's award is its own transaction, so a failure never
// rolls back already-credited siblings.
func (s *PortfolioService) AwardPortfolios() error {
	offers, err := s.Offers.ListOffersWaitingForCompletion()
	if err != nil {
		return fmt.Errorf("failed to load offers waiting for completion: %w", err)
	}
	if len(offers) == 0 {
		return nil
	}

	offerIDs := make([]string, 0, len(offers))
	for _, o := range offers {
		offerIDs = append(offerIDs, o.ID)
	}

	var portfolios []models.Portfolio
	if err := s.DB.
		Where("offer_id IN ? AND is_awarded = ?", offerIDs, false).
		Find(&portfolios).Error; err != nil {
		return fmt.Errorf("failed to load portfolios: %w", err)
	}

	byOffer := make(map[string][]models.Portfolio, len(offers))
	for _, p := range portfolios {
		byOffer[p.OfferID] = append(byOffer[p.OfferID], p)
	}

	for i := range offers {
		offer := &offers[i]
		if err := s.awardOfferPortfolios(offer, byOffer[offer.ID]); err != nil {
			log.Printf("[AWARDS] ❌ Offer %s (day %d): %v", offer.ID, offer.Day, err)
		}
	}
	return nil
}

func (s *PortfolioService) awardOfferPortfolios(offer *models.Offer, portfolios []models.Portfolio) error {
	failures := 0
	for i := range portfolios {
		p := &portfolios[i]

		points, err := scorePortfolio(offer, p)
		if err != nil {
			// Pricing was supposed to be complete before the offer ever
			// reached waiting_for_completion.
			failures++
			log.Printf("[AWARDS] ⚠️ Invariant violation on portfolio %s (offer %s): %v", p.ID, offer.ID, err)
			continue
		}

		if err := s.awardPortfolio(p, points); err != nil {
			failures++
			log.Printf("[AWARDS] ⚠️ Failed to award portfolio %s (user %s): %v", p.ID, p.UserID, err)
			continue
		}
	}

	if failures > 0 && s.StrictCompletion {
		return fmt.Errorf("%d of %d portfolio(s) not awarded, keeping offer for retry", failures, len(portfolios))
	}

	if err := s.Offers.MarkOfferCompleted(offer.ID); err != nil {
		return fmt.Errorf("failed to mark offer completed: %w", err)
	}
	log.Printf("[AWARDS] ✅ Offer %s (day %d) completed: %d portfolio(s), %d failure(s)",
		offer.ID, offer.Day, len(portfolios), failures)
	return nil
}

// awardPortfolio flips the award flag and credits the user's balance as one
// atomic unit. The flip is conditional on is_awarded still being false: if a
// concurrent run got there first, zero rows match and no balance is credited.
func (s *PortfolioService) awardPortfolio(p *models.Portfolio, points float64) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Portfolio{}).
			Where("id = ? AND is_awarded = ?", p.ID, false).
			Updates(map[string]interface{}{
				"is_awarded":    true,
				"earned_points": points,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		return tx.Model(&models.User{}).
			Where("id = ?", p.UserID).
			Update("balance", gorm.Expr("balance + ?", points)).Error
	})
}

// scorePortfolio sums the day's pricing change of every selected token.
func scorePortfolio(offer *models.Offer, p *models.Portfolio) (float64, error) {
	var total float64
	for _, token := range p.SelectedTokens {
		change, ok := offer.PricingChanges[token]
		if !ok {
			return 0, fmt.Errorf("token %s missing from pricing changes", token)
		}
		total += change
	}
	return total, nil
}

// --- HTTP Handlers ---

// CreatePortfolioEndpoint lets the authenticated user commit to tomorrow's
// offer.
func (s *PortfolioService) CreatePortfolioEndpoint(c *fiber.Ctx) error {
	externalUserID := c.Locals("user_id").(string)

	var req struct {
		OfferID        string   `json:"offer_id"`
		SelectedTokens []string `json:"selected_tokens"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if _, err := uuid.Parse(req.OfferID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid offer ID"})
	}

	var user models.User
	if err := s.DB.First(&user, "external_user_id = ?", externalUserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	portfolio, err := s.CreatePortfolio(user.ID, req.OfferID, req.SelectedTokens)
	if err != nil {
		switch {
		case errors.Is(err, ErrOfferNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Offer not found"})
		case errors.Is(err, ErrUserNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
		case errors.Is(err, ErrOfferNotOpen):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Commitments are only accepted for tomorrow's offer"})
		case errors.Is(err, ErrInvalidSelection):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, ErrDuplicatePortfolio):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "You already committed to this offer"})
		default:
			log.Printf("DB Error creating portfolio: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create portfolio"})
		}
	}

	return c.Status(fiber.StatusCreated).JSON(portfolio)
}

// GetMyPortfolios lists the authenticated user's portfolios, optionally
// filtered with ?awarded=true|false (default: all).
func (s *PortfolioService) GetMyPortfolios(c *fiber.Ctx) error {
	externalUserID := c.Locals("user_id").(string)

	var user models.User
	if err := s.DB.First(&user, "external_user_id = ?", externalUserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	query := s.DB.Where("user_id = ?", user.ID)
	switch strings.ToLower(c.Query("awarded")) {
	case "true":
		query = query.Where("is_awarded = ?", true)
	case "false":
		query = query.Where("is_awarded = ?", false)
	}

	var portfolios []models.Portfolio
	if err := query.Order("created_at DESC").Find(&portfolios).Error; err != nil {
		log.Printf("DB Error fetching portfolios: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch portfolios"})
	}

	return c.JSON(portfolios)
}
