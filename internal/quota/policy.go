// Package quota implements fixed-window action quotas keyed by identity and
// action class.
package quota

import (
	"strings"
	"time"
)

// Class names an independently limited kind of action.
type Class string

const (
	ClassGeneral           Class = "general"
	ClassMissionCompletion Class = "mission_completion"
	ClassAIDaily           Class = "ai_daily"
)

// Policy is the ceiling for one class over one window.
type Policy struct {
	Class  Class
	Limit  int64
	Window time.Duration
}

// DefaultPolicies returns the built-in ceilings. Development gets a higher
// general ceiling.
func DefaultPolicies(production bool) map[Class]Policy {
	general := int64(1000)
	if production {
		general = 100
	}
	return map[Class]Policy{
		ClassGeneral:           {Class: ClassGeneral, Limit: general, Window: 15 * time.Minute},
		ClassMissionCompletion: {Class: ClassMissionCompletion, Limit: 50, Window: 15 * time.Minute},
		ClassAIDaily:           {Class: ClassAIDaily, Limit: 60, Window: 24 * time.Hour},
	}
}

// Identity is whoever an action is counted against.
type Identity struct {
	UserID    string
	SessionID string
	Addr      string
}

// Key prefers the user id, then the session, then the network address.
func (id Identity) Key() string {
	switch {
	case strings.TrimSpace(id.UserID) != "":
		return "user:" + id.UserID
	case strings.TrimSpace(id.SessionID) != "":
		return "session:" + id.SessionID
	case strings.TrimSpace(id.Addr) != "":
		return "addr:" + id.Addr
	}
	return "anon"
}

// counterKey format: quota:<class>:<window_seconds>:<identity>
func counterKey(class Class, window time.Duration, id Identity) string {
	return "quota:" + string(class) + ":" + formatSeconds(window) + ":" + id.Key()
}
