package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// RewardKind is the closed set of reward variants.
type RewardKind string

const (
	RewardBadge        RewardKind = "badge"
	RewardPartnerOffer RewardKind = "partner_offer"
	RewardCoinBoost    RewardKind = "coin_boost"
)

// BadgeDetails - cosmetic badge
type BadgeDetails struct {
	BadgeCode string `json:"badge_code"`
	Tier      int64  `json:"tier"`
}

// PartnerOfferDetails - discount code from a partner
type PartnerOfferDetails struct {
	Partner   string `json:"partner"`
	OfferCode string `json:"offer_code"`
	ValidDays int64  `json:"valid_days"`
}

// CoinBoostDetails - bonus on future mission coins. Recorded only.
type CoinBoostDetails struct {
	MultiplierPct int64 `json:"multiplier_pct"`
	Missions      int64 `json:"missions"`
}

// Reward is a catalog entry. Exactly one of the detail pointers is set and
// it matches Kind.
type Reward struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	CoinsCost   int64      `json:"coins_cost"`
	XPReward    int64      `json:"xp_reward"`
	Kind        RewardKind `json:"kind"`
	IsActive    bool       `json:"is_active"`
	SortOrder   int64      `json:"sort_order"`

	Badge        *BadgeDetails        `json:"badge,omitempty"`
	PartnerOffer *PartnerOfferDetails `json:"partner_offer,omitempty"`
	CoinBoost    *CoinBoostDetails    `json:"coin_boost,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

var errRewardVariant = errors.New("reward details do not match kind")

// Validate checks that exactly one variant is set and that it matches Kind.
func (r *Reward) Validate() error {
	set := 0
	if r.Badge != nil {
		set++
	}
	if r.PartnerOffer != nil {
		set++
	}
	if r.CoinBoost != nil {
		set++
	}
	if set != 1 {
		return fmt.Errorf("%w: %d variants set on %s", errRewardVariant, set, r.ID)
	}

	switch r.Kind {
	case RewardBadge:
		if r.Badge == nil {
			return fmt.Errorf("%w: %s", errRewardVariant, r.ID)
		}
	case RewardPartnerOffer:
		if r.PartnerOffer == nil {
			return fmt.Errorf("%w: %s", errRewardVariant, r.ID)
		}
	case RewardCoinBoost:
		if r.CoinBoost == nil {
			return fmt.Errorf("%w: %s", errRewardVariant, r.ID)
		}
	default:
		return fmt.Errorf("unknown reward kind %q", r.Kind)
	}
	if r.CoinsCost < 0 || r.XPReward < 0 {
		return fmt.Errorf("reward %s has negative cost or xp", r.ID)
	}
	return nil
}

// Details returns the populated variant as a plain value.
func (r *Reward) Details() interface{} {
	switch r.Kind {
	case RewardBadge:
		return r.Badge
	case RewardPartnerOffer:
		return r.PartnerOffer
	case RewardCoinBoost:
		return r.CoinBoost
	}
	return nil
}

// DetailsMap returns the populated variant as a JSON object.
func (r *Reward) DetailsMap() map[string]interface{} {
	out := map[string]interface{}{}
	raw, err := json.Marshal(r.Details())
	if err != nil {
		return out
	}
	if err := json.Unmarshal(raw, &out); err != nil || out == nil {
		return map[string]interface{}{}
	}
	return out
}

// UserReward - immutable redemption record
type UserReward struct {
	ID         string                 `json:"id"`
	UserID     string                 `json:"user_id"`
	RewardID   string                 `json:"reward_id"`
	CoinsSpent int64                  `json:"coins_spent"`
	Details    map[string]interface{} `json:"details,omitempty"`
	RedeemedAt time.Time              `json:"redeemed_at"`
}
