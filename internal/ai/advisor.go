// Package ai talks to the recommendation service. Only the abstract
// Profile / Recommendation contract is modelled here.
package ai

import (
	"context"
	"sort"

	"lifescore_backend/internal/domain"
)

// Profile is what the advisor gets to know about a user.
type Profile struct {
	UserID            string   `json:"user_id"`
	LifeScore         int64    `json:"lifescore"`
	Level             int64    `json:"level"`
	XP                int64    `json:"xp"`
	CompletedMissions []string `json:"completed_missions"`
	ActiveMissions    []string `json:"active_missions"`
}

// Recommendation is one suggested mission.
type Recommendation struct {
	MissionID string `json:"mission_id"`
	Title     string `json:"title"`
	Reason    string `json:"reason"`
}

type Advisor interface {
	Recommend(ctx context.Context, p Profile) ([]Recommendation, error)
}

// CatalogAdvisor recommends from the mission catalog without any remote
// call: missions the user has not completed or started, biggest LifeScore
// delta first.
type CatalogAdvisor struct {
	missions func(ctx context.Context) ([]*domain.Mission, error)
	max      int
}

func NewCatalogAdvisor(missions func(ctx context.Context) ([]*domain.Mission, error), max int) *CatalogAdvisor {
	if max <= 0 {
		max = 3
	}
	return &CatalogAdvisor{missions: missions, max: max}
}

func (a *CatalogAdvisor) Recommend(ctx context.Context, p Profile) ([]Recommendation, error) {
	all, err := a.missions(ctx)
	if err != nil {
		return nil, err
	}

	skip := make(map[string]bool, len(p.CompletedMissions)+len(p.ActiveMissions))
	for _, id := range p.CompletedMissions {
		skip[id] = true
	}
	for _, id := range p.ActiveMissions {
		skip[id] = true
	}

	candidates := make([]*domain.Mission, 0, len(all))
	for _, m := range all {
		if m.IsActive && !skip[m.ID] {
			candidates = append(candidates, m)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].LifeScoreDelta != candidates[j].LifeScoreDelta {
			return candidates[i].LifeScoreDelta > candidates[j].LifeScoreDelta
		}
		return candidates[i].SortOrder < candidates[j].SortOrder
	})

	if len(candidates) > a.max {
		candidates = candidates[:a.max]
	}
	out := make([]Recommendation, 0, len(candidates))
	for _, m := range candidates {
		out = append(out, Recommendation{
			MissionID: m.ID,
			Title:     m.Title,
			Reason:    reasonFor(m, p),
		})
	}
	return out, nil
}

func reasonFor(m *domain.Mission, p Profile) string {
	if p.LifeScore < domain.DefaultLifeScore {
		return "Quick boost for your LifeScore in " + m.Category
	}
	return "Keep your streak going in " + m.Category
}
