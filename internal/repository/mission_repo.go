package repository

import (
	"context"
	"errors"
	"time"

	"lifescore_backend/internal/catalog"
	"lifescore_backend/internal/domain"
	"lifescore_backend/internal/storage"
)

type MissionRepository struct {
	db  storage.Backend
	now func() time.Time
}

func NewMissionRepository(db storage.Backend) *MissionRepository {
	return &MissionRepository{db: db, now: time.Now}
}

func (r *MissionRepository) With(db storage.Backend) *MissionRepository {
	return &MissionRepository{db: db, now: r.now}
}

// ActiveMissions returns the mission catalog. When no store has a catalog
// the static seed is served.
func (r *MissionRepository) ActiveMissions(ctx context.Context) ([]*domain.Mission, error) {
	rows, err := r.db.Query(ctx, storage.Query{
		Collection: colMissions,
		Op:         storage.OpSelect,
		Filters:    map[string]any{"is_active": true},
		OrderBy: []storage.Order{
			{Column: "sort_order", Direction: storage.Asc},
			{Column: "id", Direction: storage.Asc},
		},
		ExpectRows: true,
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return catalog.Missions(), nil
	}

	out := make([]*domain.Mission, 0, len(rows))
	for _, row := range rows {
		out = append(out, missionFromRow(row))
	}
	return out, nil
}

// MissionByID looks the template up in the stored catalog, then in the seed.
func (r *MissionRepository) MissionByID(ctx context.Context, id string) (*domain.Mission, error) {
	rows, err := r.db.Query(ctx, storage.Query{
		Collection: colMissions,
		Op:         storage.OpSelect,
		Filters:    map[string]any{"id": id},
		Limit:      1,
		ExpectRows: true,
	})
	if err != nil {
		return nil, err
	}
	if len(rows) > 0 {
		return missionFromRow(rows[0]), nil
	}
	for _, m := range catalog.Missions() {
		if m.ID == id {
			return m, nil
		}
	}
	return nil, domain.ErrMissionNotFound
}

// CreateUserMission inserts the mission instance and then all of its steps
// in one batch. A unique violation on the active index surfaces as
// domain.ErrMissionAlreadyActive.
func (r *MissionRepository) CreateUserMission(ctx context.Context, um *domain.UserMission, steps []*domain.MissionStep) error {
	_, err := r.db.Query(ctx, storage.Query{
		Collection: colUserMissions,
		Op:         storage.OpInsert,
		Data:       userMissionRow(um),
	})
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return domain.ErrMissionAlreadyActive
		}
		return err
	}

	batch := make([]storage.Row, 0, len(steps))
	for _, s := range steps {
		batch = append(batch, stepRow(s))
	}
	_, err = r.db.Query(ctx, storage.Query{
		Collection: colSteps,
		Op:         storage.OpInsert,
		Rows:       batch,
	})
	return err
}

// LockUserMission retires an active instance, freeing the active slot.
func (r *MissionRepository) LockUserMission(ctx context.Context, id, userID string) error {
	_, err := r.db.Query(ctx, storage.Query{
		Collection: colUserMissions,
		Op:         storage.OpUpdate,
		Filters:    map[string]any{"id": id, "user_id": userID, "status": string(domain.MissionActive)},
		Data:       storage.Row{"status": string(domain.MissionLocked)},
	})
	return err
}

// ActiveUserMission returns nil, nil when the user has no active instance.
func (r *MissionRepository) ActiveUserMission(ctx context.Context, userID, missionID string) (*domain.UserMission, error) {
	rows, err := r.db.Query(ctx, storage.Query{
		Collection: colUserMissions,
		Op:         storage.OpSelect,
		Filters: map[string]any{
			"user_id":    userID,
			"mission_id": missionID,
			"status":     string(domain.MissionActive),
		},
		Limit: 1,
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return userMissionFromRow(rows[0]), nil
}

func (r *MissionRepository) UserMissionByID(ctx context.Context, id string) (*domain.UserMission, error) {
	rows, err := r.db.Query(ctx, storage.Query{
		Collection: colUserMissions,
		Op:         storage.OpSelect,
		Filters:    map[string]any{"id": id},
		Limit:      1,
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, domain.ErrUserMissionNotFound
	}
	return userMissionFromRow(rows[0]), nil
}

// UserMissions returns every instance the user has, newest first.
func (r *MissionRepository) UserMissions(ctx context.Context, userID string) ([]*domain.UserMission, error) {
	rows, err := r.db.Query(ctx, storage.Query{
		Collection: colUserMissions,
		Op:         storage.OpSelect,
		Filters:    map[string]any{"user_id": userID},
		OrderBy:    []storage.Order{{Column: "started_at", Direction: storage.Desc}},
	})
	if err != nil {
		return nil, err
	}
	out := make([]*domain.UserMission, 0, len(rows))
	for _, row := range rows {
		out = append(out, userMissionFromRow(row))
	}
	return out, nil
}

func (r *MissionRepository) StepsFor(ctx context.Context, userID, userMissionID string) ([]*domain.MissionStep, error) {
	rows, err := r.db.Query(ctx, storage.Query{
		Collection: colSteps,
		Op:         storage.OpSelect,
		Filters:    map[string]any{"user_id": userID, "user_mission_id": userMissionID},
		OrderBy:    []storage.Order{{Column: "step_number", Direction: storage.Asc}},
	})
	if err != nil {
		return nil, err
	}
	out := make([]*domain.MissionStep, 0, len(rows))
	for _, row := range rows {
		out = append(out, stepFromRow(row))
	}
	return out, nil
}

// StepByID only finds steps owned by userID.
func (r *MissionRepository) StepByID(ctx context.Context, userID, stepID string) (*domain.MissionStep, error) {
	rows, err := r.db.Query(ctx, storage.Query{
		Collection: colSteps,
		Op:         storage.OpSelect,
		Filters:    map[string]any{"id": stepID, "user_id": userID},
		Limit:      1,
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, domain.ErrStepNotFound
	}
	return stepFromRow(rows[0]), nil
}

// MarkStepCompleted flips a pending step. It returns false when the step
// was already completed by someone else.
func (r *MissionRepository) MarkStepCompleted(ctx context.Context, userID, stepID string) (*domain.MissionStep, bool, error) {
	rows, err := r.db.Query(ctx, storage.Query{
		Collection: colSteps,
		Op:         storage.OpUpdate,
		Filters: map[string]any{
			"id":      stepID,
			"user_id": userID,
			"status":  string(domain.StepPending),
		},
		Data: storage.Row{
			"status":       string(domain.StepCompleted),
			"completed_at": r.now().UTC(),
		},
	})
	if err != nil {
		return nil, false, err
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	return stepFromRow(rows[0]), true, nil
}

// MarkCompleted moves an active instance to completed. Only one caller can
// win the transition; the rest get false.
func (r *MissionRepository) MarkCompleted(ctx context.Context, userID, userMissionID string, data map[string]interface{}) (*domain.UserMission, bool, error) {
	if data == nil {
		data = map[string]interface{}{}
	}
	rows, err := r.db.Query(ctx, storage.Query{
		Collection: colUserMissions,
		Op:         storage.OpUpdate,
		Filters: map[string]any{
			"id":      userMissionID,
			"user_id": userID,
			"status":  string(domain.MissionActive),
		},
		Data: storage.Row{
			"status":          string(domain.MissionCompleted),
			"completed_at":    r.now().UTC(),
			"completion_data": data,
			"credited":        false,
		},
	})
	if err != nil {
		return nil, false, err
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	return userMissionFromRow(rows[0]), true, nil
}

// ClaimCredit marks a completed instance as credited. The caller that gets
// true owns the credit and must release it if crediting fails.
func (r *MissionRepository) ClaimCredit(ctx context.Context, userMissionID string) (bool, error) {
	rows, err := r.db.Query(ctx, storage.Query{
		Collection: colUserMissions,
		Op:         storage.OpUpdate,
		Filters: map[string]any{
			"id":       userMissionID,
			"status":   string(domain.MissionCompleted),
			"credited": false,
		},
		Data: storage.Row{"credited": true, "credited_at": r.now().UTC()},
	})
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

func (r *MissionRepository) ReleaseCredit(ctx context.Context, userMissionID string) error {
	_, err := r.db.Query(ctx, storage.Query{
		Collection: colUserMissions,
		Op:         storage.OpUpdate,
		Filters:    map[string]any{"id": userMissionID, "credited": true},
		Data:       storage.Row{"credited": false, "credited_at": nil},
	})
	return err
}

func partColumn(p domain.CreditPart) string {
	return string(p) + "_credited"
}

// ClaimPart marks one reward part of a claimed instance as applied. Only
// the holder of the credit claim can mark parts, and each part only once.
func (r *MissionRepository) ClaimPart(ctx context.Context, userMissionID string, part domain.CreditPart) (bool, error) {
	col := partColumn(part)
	rows, err := r.db.Query(ctx, storage.Query{
		Collection: colUserMissions,
		Op:         storage.OpUpdate,
		Filters: map[string]any{
			"id":       userMissionID,
			"credited": true,
			col:        false,
		},
		Data: storage.Row{col: true},
	})
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// ReleasePart undoes ClaimPart for a part that could not be applied.
func (r *MissionRepository) ReleasePart(ctx context.Context, userMissionID string, part domain.CreditPart) error {
	col := partColumn(part)
	_, err := r.db.Query(ctx, storage.Query{
		Collection: colUserMissions,
		Op:         storage.OpUpdate,
		Filters:    map[string]any{"id": userMissionID, col: true},
		Data:       storage.Row{col: false},
	})
	return err
}

// UncreditedCompleted lists completed instances that still owe their reward
// and were completed before the cutoff, oldest first.
func (r *MissionRepository) UncreditedCompleted(ctx context.Context, before time.Time, limit int) ([]*domain.UserMission, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, storage.Query{
		Collection: colUserMissions,
		Op:         storage.OpSelect,
		Filters: map[string]any{
			"status":   string(domain.MissionCompleted),
			"credited": false,
		},
		Guards:  []storage.Guard{{Column: "completed_at", Cmp: storage.Lt, Value: before.UTC()}},
		OrderBy: []storage.Order{{Column: "completed_at", Direction: storage.Asc}},
		Limit:   limit,
	})
	if err != nil {
		return nil, err
	}
	out := make([]*domain.UserMission, 0, len(rows))
	for _, row := range rows {
		out = append(out, userMissionFromRow(row))
	}
	return out, nil
}
