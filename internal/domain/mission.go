package domain

import "time"

// StepsPerMission is the fixed number of steps every user mission has.
const StepsPerMission = 3

// MissionStatus - lifecycle state of a user mission
type MissionStatus string

const (
	MissionAvailable MissionStatus = "available"
	MissionActive    MissionStatus = "active"
	MissionCompleted MissionStatus = "completed"
	MissionLocked    MissionStatus = "locked"
)

// CreditPart is one component of a mission reward. Parts are marked
// applied one by one, so a retried settlement only applies what is missing.
type CreditPart string

const (
	CreditCoins     CreditPart = "coins"
	CreditXP        CreditPart = "xp"
	CreditLifeScore CreditPart = "lifescore"
)

// StepStatus - state of a single mission step
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepCompleted StepStatus = "completed"
)

// Mission - catalog template
type Mission struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Category       string    `json:"category"`
	CoinsReward    int64     `json:"coins_reward"`
	XPReward       int64     `json:"xp_reward"`
	LifeScoreDelta int64     `json:"lifescore_delta"`
	AIDriven       bool      `json:"ai_driven"`
	IsActive       bool      `json:"is_active"`
	SortOrder      int64     `json:"sort_order"`
	CreatedAt      time.Time `json:"created_at"`
}

// UserMission - one user's instance of a mission
type UserMission struct {
	ID             string                 `json:"id"`
	UserID         string                 `json:"user_id"`
	MissionID      string                 `json:"mission_id"`
	Status         MissionStatus          `json:"status"`
	StartedAt      time.Time              `json:"started_at"`
	CompletedAt    *time.Time             `json:"completed_at,omitempty"`
	CompletionData map[string]interface{} `json:"completion_data,omitempty"`
	Credited       bool                   `json:"credited"`
	CreditedAt     *time.Time             `json:"credited_at,omitempty"`

	CoinsCredited     bool `json:"-"`
	XPCredited        bool `json:"-"`
	LifeScoreCredited bool `json:"-"`
}

// MissionStep - ordered sub-task of a user mission
type MissionStep struct {
	ID            string     `json:"id"`
	UserMissionID string     `json:"user_mission_id"`
	UserID        string     `json:"user_id"`
	StepNumber    int64      `json:"step_number"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Status        StepStatus `json:"status"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// UserMissionWithSteps is the API shape of a user mission.
type UserMissionWithSteps struct {
	UserMission
	Steps    []*MissionStep `json:"steps"`
	Progress int            `json:"progress"`
}

// CanSettle reports whether the mission still owes its reward.
func (um *UserMission) CanSettle() bool {
	return um.Status == MissionCompleted && !um.Credited
}

// PartCredited reports whether one reward part has already been applied.
func (um *UserMission) PartCredited(p CreditPart) bool {
	switch p {
	case CreditCoins:
		return um.CoinsCredited
	case CreditXP:
		return um.XPCredited
	case CreditLifeScore:
		return um.LifeScoreCredited
	}
	return false
}

// StepsComplete is true only for exactly StepsPerMission steps numbered
// 1..StepsPerMission, all completed. Anything else (a partial batch, a
// duplicate number) counts as incomplete.
func StepsComplete(steps []*MissionStep) bool {
	if len(steps) != StepsPerMission {
		return false
	}
	seen := make(map[int64]bool, len(steps))
	for _, s := range steps {
		if s.StepNumber < 1 || s.StepNumber > StepsPerMission || seen[s.StepNumber] {
			return false
		}
		seen[s.StepNumber] = true
		if s.Status != StepCompleted {
			return false
		}
	}
	return true
}

// StepProgress returns completion in percent (0-100)
func StepProgress(steps []*MissionStep) int {
	done := 0
	for _, s := range steps {
		if s.Status == StepCompleted {
			done++
		}
	}
	progress := done * 100 / StepsPerMission
	if progress > 100 {
		return 100
	}
	return progress
}
