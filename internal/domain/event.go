package domain

import "time"

// Event types pushed to connected clients
const (
	EventCoins            = "coins"
	EventLifeScore        = "lifescore"
	EventXP               = "xp"
	EventMissionCompleted = "mission_completed"
	EventRewardRedeemed   = "reward_redeemed"
)

// Event is a ledger notification for one user.
type Event struct {
	Type    string                 `json:"type"`
	Payload map[string]interface{} `json:"payload"`
	At      time.Time              `json:"at"`
}

func NewEvent(typ string, payload map[string]interface{}) Event {
	return Event{Type: typ, Payload: payload, At: time.Now().UTC()}
}
