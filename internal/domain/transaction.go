package domain

import "time"

// Coin transaction types
const (
	TxMissionReward = "mission_reward"
	TxRewardRedeem  = "reward_redeem"
	TxRedeemRefund  = "reward_redeem_refund"
	TxAICall        = "ai_call"
	TxAdjustment    = "adjustment"
)

// CoinTransaction is the append-only audit row of a coin balance change.
type CoinTransaction struct {
	ID           string                 `json:"id"`
	UserID       string                 `json:"user_id"`
	Type         string                 `json:"type"`
	Amount       int64                  `json:"amount"`
	BalanceAfter int64                  `json:"balance_after"`
	Meta         map[string]interface{} `json:"meta,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}

// LifeScoreEntry is the append-only audit row of a LifeScore change. Scores
// are the clamped values actually stored.
type LifeScoreEntry struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	OldScore     int64     `json:"old_score"`
	NewScore     int64     `json:"new_score"`
	ChangeReason string    `json:"change_reason"`
	CreatedAt    time.Time `json:"created_at"`
}
