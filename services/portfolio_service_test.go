package services

import (
	"testing"

	"coin-offers-system/models"
	"coin-offers-system/utils"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newPortfolioService(db *gorm.DB) *PortfolioService {
	return NewPortfolioService(db, NewOfferService(db, &stubPriceSource{}))
}

func seedUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()

	user := &models.User{
		ID:             uuid.NewString(),
		ExternalUserID: uuid.NewString(),
		Username:       "satoshi",
		Handle:         "satoshi-" + uuid.NewString()[:8],
		Balance:        models.DefaultStartingBalance,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func seedPortfolio(t *testing.T, db *gorm.DB, userID, offerID string, selected models.SelectedTokens) *models.Portfolio {
	t.Helper()

	p := &models.Portfolio{
		ID:             uuid.NewString(),
		UserID:         userID,
		OfferID:        offerID,
		SelectedTokens: selected,
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

// --- CreatePortfolio ---

func TestCreatePortfolio_Succeeds(t *testing.T) {
	db := setupTestDB(t)
	s := newPortfolioService(db)

	user := seedUser(t, db)
	offer := seedOffer(t, db, utils.CurrentDay()+1, models.OfferStatusWaitingForPricing, testPairs, nil)

	p, err := s.CreatePortfolio(user.ID, offer.ID, []string{"BTC", "XRP"})
	require.NoError(t, err)

	assert.False(t, p.IsAwarded)
	assert.Equal(t, models.SelectedTokens{"BTC", "XRP"}, p.SelectedTokens)

	var got models.Portfolio
	require.NoError(t, db.First(&got, "id = ?", p.ID).Error)
	assert.Equal(t, user.ID, got.UserID)
	assert.Equal(t, offer.ID, got.OfferID)
}

func TestCreatePortfolio_RejectsUnknownOfferAndUser(t *testing.T) {
	db := setupTestDB(t)
	s := newPortfolioService(db)

	user := seedUser(t, db)
	offer := seedOffer(t, db, utils.CurrentDay()+1, models.OfferStatusWaitingForPricing, testPairs, nil)

	_, err := s.CreatePortfolio(user.ID, uuid.NewString(), []string{"BTC", "XRP"})
	assert.ErrorIs(t, err, ErrOfferNotFound)

	_, err = s.CreatePortfolio(uuid.NewString(), offer.ID, []string{"BTC", "XRP"})
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestCreatePortfolio_OnlyTomorrowsOfferIsOpen(t *testing.T) {
	db := setupTestDB(t)
	s := newPortfolioService(db)
	user := seedUser(t, db)

	currentDay := utils.CurrentDay()
	for _, day := range []int64{currentDay - 1, currentDay, currentDay + 2} {
		offer := seedOffer(t, db, day, models.OfferStatusWaitingForPricing, testPairs, nil)
		_, err := s.CreatePortfolio(user.ID, offer.ID, []string{"BTC", "XRP"})
		assert.ErrorIs(t, err, ErrOfferNotOpen, "day %d must be locked", day)
	}
}

func TestCreatePortfolio_RejectsInvalidSelections(t *testing.T) {
	db := setupTestDB(t)
	s := newPortfolioService(db)

	user := seedUser(t, db)
	offer := seedOffer(t, db, utils.CurrentDay()+1, models.OfferStatusWaitingForPricing, testPairs, nil)

	// Wrong length
	_, err := s.CreatePortfolio(user.ID, offer.ID, []string{"BTC"})
	assert.ErrorIs(t, err, ErrInvalidSelection)

	// Token not in its pair
	_, err = s.CreatePortfolio(user.ID, offer.ID, []string{"BTC", "DOGE"})
	assert.ErrorIs(t, err, ErrInvalidSelection)

	// Token from the wrong position
	_, err = s.CreatePortfolio(user.ID, offer.ID, []string{"SOL", "XRP"})
	assert.ErrorIs(t, err, ErrInvalidSelection)

	var count int64
	require.NoError(t, db.Model(&models.Portfolio{}).Count(&count).Error)
	assert.Equal(t, int64(0), count, "rejected requests must not mutate state")
}

func TestCreatePortfolio_RejectsDuplicateSubmission(t *testing.T) {
	db := setupTestDB(t)
	s := newPortfolioService(db)

	user := seedUser(t, db)
	offer := seedOffer(t, db, utils.CurrentDay()+1, models.OfferStatusWaitingForPricing, testPairs, nil)

	_, err := s.CreatePortfolio(user.ID, offer.ID, []string{"BTC", "XRP"})
	require.NoError(t, err)

	// The unique index is what rejects the second insert, so even two racing
	// submissions that both pass validation cannot both land.
	_, err = s.CreatePortfolio(user.ID, offer.ID, []string{"ETH", "SOL"})
	assert.ErrorIs(t, err, ErrDuplicatePortfolio)

	var count int64
	require.NoError(t, db.Model(&models.Portfolio{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

// --- AwardPortfolios ---

func TestAwardPortfolios_CreditsBalanceExactlyOnce(t *testing.T) {
	db := setupTestDB(t)
	s := newPortfolioService(db)

	user := seedUser(t, db)
	offer := seedOffer(t, db, utils.CurrentDay()-1, models.OfferStatusWaitingForCompletion, testPairs,
		models.PricingChanges{"BTC": 0.05, "ETH": -0.03, "SOL": 0.02, "XRP": -0.01})
	portfolio := seedPortfolio(t, db, user.ID, offer.ID, models.SelectedTokens{"BTC", "SOL"})

	require.NoError(t, s.AwardPortfolios())

	var gotPortfolio models.Portfolio
	require.NoError(t, db.First(&gotPortfolio, "id = ?", portfolio.ID).Error)
	assert.True(t, gotPortfolio.IsAwarded)
	assert.InDelta(t, 0.07, gotPortfolio.EarnedPoints, 1e-9)

	var gotUser models.User
	require.NoError(t, db.First(&gotUser, "id = ?", user.ID).Error)
	assert.InDelta(t, models.DefaultStartingBalance+0.07, gotUser.Balance, 1e-9)

	var gotOffer models.Offer
	require.NoError(t, db.First(&gotOffer, "id = ?", offer.ID).Error)
	assert.Equal(t, models.OfferStatusCompleted, gotOffer.Status)

	// Re-running must not re-credit: the portfolio is excluded from the
	// non-awarded query and the offer from the waiting list.
	require.NoError(t, s.AwardPortfolios())

	require.NoError(t, db.First(&gotUser, "id = ?", user.ID).Error)
	assert.InDelta(t, models.DefaultStartingBalance+0.07, gotUser.Balance, 1e-9)
}

func TestAwardPortfolios_NegativeScoreDebitsBalance(t *testing.T) {
	db := setupTestDB(t)
	s := newPortfolioService(db)

	user := seedUser(t, db)
	offer := seedOffer(t, db, utils.CurrentDay()-1, models.OfferStatusWaitingForCompletion, testPairs,
		models.PricingChanges{"BTC": -0.10, "ETH": 0.04, "SOL": -0.02, "XRP": 0.01})
	seedPortfolio(t, db, user.ID, offer.ID, models.SelectedTokens{"BTC", "SOL"})

	require.NoError(t, s.AwardPortfolios())

	var gotUser models.User
	require.NoError(t, db.First(&gotUser, "id = ?", user.ID).Error)
	assert.InDelta(t, models.DefaultStartingBalance-0.12, gotUser.Balance, 1e-9)
}

func TestAwardPortfolios_StrictModeKeepsOfferOnInvariantViolation(t *testing.T) {
	db := setupTestDB(t)
	s := newPortfolioService(db)
	require.True(t, s.StrictCompletion, "strict completion is the default")

	good := seedUser(t, db)
	bad := seedUser(t, db)
	// DOGE is missing from the pricing map: an invariant violation, since
	// pricing is complete before an offer reaches waiting_for_completion.
	offer := seedOffer(t, db, utils.CurrentDay()-1, models.OfferStatusWaitingForCompletion, testPairs,
		models.PricingChanges{"BTC": 0.05, "ETH": 0.01, "SOL": 0.02, "XRP": 0.03})
	goodPortfolio := seedPortfolio(t, db, good.ID, offer.ID, models.SelectedTokens{"BTC", "SOL"})
	badPortfolio := seedPortfolio(t, db, bad.ID, offer.ID, models.SelectedTokens{"DOGE", "SOL"})

	require.NoError(t, s.AwardPortfolios())

	// The valid sibling is still awarded — per-portfolio isolation.
	var gotGood models.Portfolio
	require.NoError(t, db.First(&gotGood, "id = ?", goodPortfolio.ID).Error)
	assert.True(t, gotGood.IsAwarded)

	var gotBad models.Portfolio
	require.NoError(t, db.First(&gotBad, "id = ?", badPortfolio.ID).Error)
	assert.False(t, gotBad.IsAwarded)

	// Strict mode: the offer stays for retry instead of stranding the
	// failed portfolio behind a completed offer.
	var gotOffer models.Offer
	require.NoError(t, db.First(&gotOffer, "id = ?", offer.ID).Error)
	assert.Equal(t, models.OfferStatusWaitingForCompletion, gotOffer.Status)

	// The retry only re-attempts the non-awarded portfolio.
	var gotGoodUser models.User
	require.NoError(t, s.AwardPortfolios())
	require.NoError(t, db.First(&gotGoodUser, "id = ?", good.ID).Error)
	assert.InDelta(t, models.DefaultStartingBalance+0.07, gotGoodUser.Balance, 1e-9)
}

func TestAwardPortfolios_BestEffortModeCompletesDespiteFailures(t *testing.T) {
	db := setupTestDB(t)
	s := newPortfolioService(db)
	s.StrictCompletion = false

	user := seedUser(t, db)
	offer := seedOffer(t, db, utils.CurrentDay()-1, models.OfferStatusWaitingForCompletion, testPairs,
		models.PricingChanges{"BTC": 0.05, "ETH": 0.01, "SOL": 0.02, "XRP": 0.03})
	seedPortfolio(t, db, user.ID, offer.ID, models.SelectedTokens{"DOGE", "SOL"})

	require.NoError(t, s.AwardPortfolios())

	var gotOffer models.Offer
	require.NoError(t, db.First(&gotOffer, "id = ?", offer.ID).Error)
	assert.Equal(t, models.OfferStatusCompleted, gotOffer.Status)
}

func TestAwardPortfolio_ConditionalUpdateGuardsDoubleAward(t *testing.T) {
	db := setupTestDB(t)
	s := newPortfolioService(db)

	user := seedUser(t, db)
	offer := seedOffer(t, db, utils.CurrentDay()-1, models.OfferStatusWaitingForCompletion, testPairs,
		models.PricingChanges{"BTC": 0.05, "ETH": 0.01, "SOL": 0.02, "XRP": 0.03})
	portfolio := seedPortfolio(t, db, user.ID, offer.ID, models.SelectedTokens{"BTC", "SOL"})

	// Two awarding runs racing over the same snapshot both call the award
	// path; only the first may credit.
	require.NoError(t, s.awardPortfolio(portfolio, 0.07))
	require.NoError(t, s.awardPortfolio(portfolio, 0.07))

	var gotUser models.User
	require.NoError(t, db.First(&gotUser, "id = ?", user.ID).Error)
	assert.InDelta(t, models.DefaultStartingBalance+0.07, gotUser.Balance, 1e-9)
}
