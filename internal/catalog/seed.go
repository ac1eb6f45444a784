// Package catalog holds the static mission and reward catalog served when
// no store has one.
package catalog

import "lifescore_backend/internal/domain"

// Missions returns a fresh copy of the seed mission catalog.
func Missions() []*domain.Mission {
	return []*domain.Mission{
		{
			ID: "m-morning-walk", Title: "Morning walk", Category: "health",
			Description: "Walk for 20 minutes before noon.",
			CoinsReward: 20, XPReward: 30, LifeScoreDelta: 2, IsActive: true, SortOrder: 1,
		},
		{
			ID: "m-budget-review", Title: "Budget review", Category: "finance",
			Description: "Review last week's spending and set one limit.",
			CoinsReward: 35, XPReward: 50, LifeScoreDelta: 3, IsActive: true, SortOrder: 2,
		},
		{
			ID: "m-digital-detox", Title: "Digital detox", Category: "mind",
			Description: "Spend an evening without social media.",
			CoinsReward: 25, XPReward: 40, LifeScoreDelta: 4, IsActive: true, SortOrder: 3,
		},
		{
			ID: "m-call-a-friend", Title: "Call a friend", Category: "social",
			Description: "Reach out to someone you have not talked to in a month.",
			CoinsReward: 15, XPReward: 20, LifeScoreDelta: 2, IsActive: true, SortOrder: 4,
		},
		{
			ID: "m-ai-coach", Title: "Coach's pick", Category: "growth",
			Description: "A mission suggested from your recent progress.",
			CoinsReward: 50, XPReward: 80, LifeScoreDelta: 5, AIDriven: true, IsActive: true, SortOrder: 5,
		},
	}
}

// Rewards returns a fresh copy of the seed reward catalog.
func Rewards() []*domain.Reward {
	return []*domain.Reward{
		{
			ID: "r-early-bird", Title: "Early bird badge", Kind: domain.RewardBadge,
			Description: "Show off your morning streak.",
			CoinsCost:   50, XPReward: 10, IsActive: true, SortOrder: 1,
			Badge: &domain.BadgeDetails{BadgeCode: "early_bird", Tier: 1},
		},
		{
			ID: "r-gym-pass", Title: "Gym day pass", Kind: domain.RewardPartnerOffer,
			Description: "One free day at a partner gym.",
			CoinsCost:   200, XPReward: 25, IsActive: true, SortOrder: 2,
			PartnerOffer: &domain.PartnerOfferDetails{Partner: "FitClub", OfferCode: "LIFESCORE-DAY", ValidDays: 30},
		},
		{
			ID: "r-double-coins", Title: "Coin boost", Kind: domain.RewardCoinBoost,
			Description: "50% more coins on your next three missions.",
			CoinsCost:   120, XPReward: 0, IsActive: true, SortOrder: 3,
			CoinBoost: &domain.CoinBoostDetails{MultiplierPct: 150, Missions: 3},
		},
	}
}
