package postgres

// columns whitelists every collection and column the service may name in a
// query. Identifiers are interpolated into SQL, so nothing outside this map
// ever reaches a statement.
var columns = map[string][]string{
	"users": {
		"id", "coins", "lifescore", "xp", "level", "created_at", "updated_at",
	},
	"missions": {
		"id", "title", "description", "category", "coins_reward", "xp_reward",
		"lifescore_delta", "ai_driven", "is_active", "sort_order", "created_at",
	},
	"user_missions": {
		"id", "user_id", "mission_id", "status", "started_at", "completed_at",
		"completion_data", "credited", "credited_at",
		"coins_credited", "xp_credited", "lifescore_credited",
	},
	"mission_steps": {
		"id", "user_mission_id", "user_id", "step_number", "title", "description",
		"status", "completed_at",
	},
	"lifescore_history": {
		"id", "user_id", "old_score", "new_score", "change_reason", "created_at",
	},
	"coin_transactions": {
		"id", "user_id", "type", "amount", "balance_after", "meta", "created_at",
	},
	"rewards": {
		"id", "title", "description", "coins_cost", "xp_reward", "kind", "details",
		"is_active", "sort_order", "created_at",
	},
	"user_rewards": {
		"id", "user_id", "reward_id", "coins_spent", "details", "redeemed_at",
	},
}

type schema map[string]map[string]bool

func defaultSchema() schema {
	s := make(schema, len(columns))
	for table, cols := range columns {
		set := make(map[string]bool, len(cols))
		for _, c := range cols {
			set[c] = true
		}
		s[table] = set
	}
	return s
}

func (s schema) hasTable(table string) bool {
	_, ok := s[table]
	return ok
}

func (s schema) hasColumn(table, column string) bool {
	return s[table][column]
}
