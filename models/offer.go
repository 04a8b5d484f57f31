// models/offer.go
package models

import (
	"time"
)

const (
	OfferStatusWaitingForPricing    = "waiting_for_pricing"
	OfferStatusWaitingForCompletion = "waiting_for_completion"
	OfferStatusCompleted            = "completed"
)

// TokenPair is one head-to-head matchup inside an offer. A portfolio picks
// either FirstToken or SecondToken for every pair.
type TokenPair struct {
	FirstToken  string `json:"first_token"`
	SecondToken string `json:"second_token"`
}

// Offer is one day's published set of token pairs.
// Created only by the generation job, priced only by the sync job,
// completed only by the awarding job. Never deleted.
type Offer struct {
	ID   string    `json:"id" gorm:"primaryKey;type:uuid"`
	Day  int64     `json:"day" gorm:"uniqueIndex;not null"` // UTC day index, the lifecycle ordering key
	Date time.Time `json:"date"`                            // UTC midnight of Day, denormalized for display

	TokenOffers TokenPairs `json:"token_offers" gorm:"type:jsonb;serializer:json"`

	// waiting_for_pricing → waiting_for_completion → completed
	Status string `json:"status" gorm:"type:varchar(32);index;default:'waiting_for_pricing'"`

	// token symbol → signed fractional price change over Day.
	// Written together with the status transition out of waiting_for_pricing,
	// never partially.
	PricingChanges PricingChanges `json:"pricing_changes,omitempty" gorm:"type:jsonb;serializer:json"`

	Timestamps
}

type TokenPairs []TokenPair

type PricingChanges map[string]float64

// Tokens returns every symbol referenced by the offer's pairs, in order.
func (o *Offer) Tokens() []string {
	tokens := make([]string, 0, len(o.TokenOffers)*2)
	for _, p := range o.TokenOffers {
		tokens = append(tokens, p.FirstToken, p.SecondToken)
	}
	return tokens
}
