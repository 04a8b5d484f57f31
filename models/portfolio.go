// models/portfolio.go
package models

// Portfolio is a user's commitment against one offer: one selected token per
// pair. The composite unique index is the authority on "one portfolio per
// (user, offer)" — creation relies on it rather than on a read-then-insert.
type Portfolio struct {
	ID      string `json:"id" gorm:"primaryKey;type:uuid"`
	UserID  string `json:"user_id" gorm:"type:uuid;not null;uniqueIndex:idx_portfolio_user_offer"`
	OfferID string `json:"offer_id" gorm:"type:uuid;not null;uniqueIndex:idx_portfolio_user_offer;index"`

	// One entry per offer pair, positionally either the pair's first or
	// second token.
	SelectedTokens SelectedTokens `json:"selected_tokens" gorm:"type:jsonb;serializer:json"`

	// Flipped exactly once by the awarding job, in the same transaction that
	// credits the user's balance.
	IsAwarded    bool    `json:"is_awarded" gorm:"not null;default:false;index"`
	EarnedPoints float64 `json:"earned_points" gorm:"default:0"` // meaningful only once IsAwarded

	Timestamps
}

type SelectedTokens []string
