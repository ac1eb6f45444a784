package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lifescore_backend/internal/domain"
	"lifescore_backend/internal/lock"
	"lifescore_backend/internal/logger"
	"lifescore_backend/internal/metrics"
	"lifescore_backend/internal/repository"
	"lifescore_backend/internal/storage"

	"github.com/google/uuid"
)

var stepTemplates = [domain.StepsPerMission]struct{ verb, description string }{
	{"Learn", "Read the mission brief and plan how you will do it."},
	{"Act", "Do the mission."},
	{"Reflect", "Write down how it went and what you would change."},
}

// MissionService runs the mission lifecycle:
// start -> steps completed -> completed -> credited.
type MissionService struct {
	store    storage.Gateway
	missions *repository.MissionRepository
	ledger   *LedgerService
	locks    *lock.Keyed
	notifier Notifier
	now      func() time.Time
}

func NewMissionService(store storage.Gateway, ledger *LedgerService, notifier Notifier) *MissionService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &MissionService{
		store:    store,
		missions: repository.NewMissionRepository(store),
		ledger:   ledger,
		locks:    lock.NewKeyed(),
		notifier: notifier,
		now:      time.Now,
	}
}

// ListMissions returns the active catalog.
func (s *MissionService) ListMissions(ctx context.Context) ([]*domain.Mission, error) {
	return s.missions.ActiveMissions(ctx)
}

// UserMissions returns the user's missions with their steps.
func (s *MissionService) UserMissions(ctx context.Context, userID string) ([]*domain.UserMissionWithSteps, error) {
	ums, err := s.missions.UserMissions(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.UserMissionWithSteps, 0, len(ums))
	for _, um := range ums {
		steps, err := s.missions.StepsFor(ctx, userID, um.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, &domain.UserMissionWithSteps{
			UserMission: *um,
			Steps:       steps,
			Progress:    domain.StepProgress(steps),
		})
	}
	return out, nil
}

// StartMission creates an active instance with its three pending steps.
func (s *MissionService) StartMission(ctx context.Context, userID, missionID string) (*domain.UserMissionWithSteps, error) {
	m, err := s.missions.MissionByID(ctx, missionID)
	if err != nil {
		return nil, err
	}
	if !m.IsActive {
		return nil, domain.ErrMissionNotFound
	}

	unlock := s.locks.Lock(userID + "/" + missionID)
	defer unlock()

	b := s.store.Pick(ctx)
	repo := s.missions.With(b)
	if _, err := s.ledger.accountOn(ctx, s.ledger.users.With(b), userID); err != nil {
		return nil, err
	}

	active, err := repo.ActiveUserMission(ctx, userID, missionID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, domain.ErrMissionAlreadyActive
	}

	now := s.now().UTC()
	um := &domain.UserMission{
		ID:        uuid.NewString(),
		UserID:    userID,
		MissionID: m.ID,
		Status:    domain.MissionActive,
		StartedAt: now,
	}
	steps := make([]*domain.MissionStep, 0, domain.StepsPerMission)
	for i, tpl := range stepTemplates {
		n := int64(i + 1)
		steps = append(steps, &domain.MissionStep{
			ID:            uuid.NewString(),
			UserMissionID: um.ID,
			UserID:        userID,
			StepNumber:    n,
			Title:         fmt.Sprintf("%s: step %d of %d", m.Title, n, domain.StepsPerMission),
			Description:   tpl.verb + ": " + tpl.description,
			Status:        domain.StepPending,
		})
	}

	if err := repo.CreateUserMission(ctx, um, steps); err != nil {
		if !errors.Is(err, domain.ErrMissionAlreadyActive) {
			// the instance may exist without its steps; retire it so the
			// user can start again
			if lerr := repo.LockUserMission(ctx, um.ID, userID); lerr != nil {
				logger.FromContext(ctx).Error("failed to retire partial mission", "user_mission_id", um.ID, "error", lerr)
			}
		}
		return nil, err
	}

	metrics.MissionTransitions.WithLabelValues("start").Inc()
	logger.FromContext(ctx).Info("mission started", "user_id", userID, "mission_id", m.ID, "user_mission_id", um.ID)
	return &domain.UserMissionWithSteps{UserMission: *um, Steps: steps}, nil
}

// CompleteStep marks one of the user's steps completed. Completing a step
// twice returns it unchanged.
func (s *MissionService) CompleteStep(ctx context.Context, userID, stepID string) (*domain.MissionStep, error) {
	step, err := s.missions.StepByID(ctx, userID, stepID)
	if err != nil {
		return nil, err
	}
	um, err := s.missions.UserMissionByID(ctx, step.UserMissionID)
	if err != nil {
		if errors.Is(err, domain.ErrUserMissionNotFound) {
			return nil, domain.ErrStepNotFound
		}
		return nil, err
	}
	if um.UserID != userID || um.Status != domain.MissionActive {
		return nil, domain.ErrStepNotFound
	}
	if step.Status == domain.StepCompleted {
		return step, nil
	}

	updated, ok, err := s.missions.MarkStepCompleted(ctx, userID, stepID)
	if err != nil {
		return nil, err
	}
	if !ok {
		// completed concurrently
		return s.missions.StepByID(ctx, userID, stepID)
	}
	metrics.MissionTransitions.WithLabelValues("step").Inc()
	return updated, nil
}

// AreAllStepsCompleted is true only when the instance has exactly its three
// steps and all of them are completed.
func (s *MissionService) AreAllStepsCompleted(ctx context.Context, userMissionID string) (bool, error) {
	um, err := s.missions.UserMissionByID(ctx, userMissionID)
	if err != nil {
		return false, err
	}
	steps, err := s.missions.StepsFor(ctx, um.UserID, um.ID)
	if err != nil {
		return false, err
	}
	return domain.StepsComplete(steps), nil
}

// CompleteMission finishes the user's active instance of missionID and then
// settles its reward. The status change is written before any credit, so a
// failure in between leaves a completed, uncredited mission for the sweeper.
func (s *MissionService) CompleteMission(ctx context.Context, userID, missionID string, data map[string]interface{}) (*domain.UserMission, error) {
	um, err := s.missions.ActiveUserMission(ctx, userID, missionID)
	if err != nil {
		return nil, err
	}
	if um == nil {
		return nil, domain.ErrMissionNotActive
	}

	steps, err := s.missions.StepsFor(ctx, userID, um.ID)
	if err != nil {
		return nil, err
	}
	if !domain.StepsComplete(steps) {
		return nil, domain.ErrMissionNotActive
	}

	completed, ok, err := s.missions.MarkCompleted(ctx, userID, um.ID, data)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrMissionNotActive
	}
	metrics.MissionTransitions.WithLabelValues("complete").Inc()
	s.notifier.Notify(userID, domain.NewEvent(domain.EventMissionCompleted, map[string]interface{}{
		"mission_id":      missionID,
		"user_mission_id": um.ID,
	}))

	credited, err := s.Settle(ctx, completed.ID)
	if err != nil {
		logger.FromContext(ctx).Error("settlement failed, left for sweeper",
			"user_id", userID, "user_mission_id", completed.ID, "error", err)
		return completed, nil
	}
	if credited {
		now := s.now().UTC()
		completed.Credited = true
		completed.CreditedAt = &now
	}
	return completed, nil
}

// Settle credits a completed mission exactly once. The credit flag is
// claimed first; if crediting then fails the claim is released so a later
// Settle can try again, and parts that did land are skipped on that retry.
// Settlement ignores cancellation of ctx. It reports whether this call
// applied the credit.
func (s *MissionService) Settle(ctx context.Context, userMissionID string) (bool, error) {
	ctx, cancel := detach(ctx)
	defer cancel()

	um, err := s.missions.UserMissionByID(ctx, userMissionID)
	if err != nil {
		return false, err
	}
	if !um.CanSettle() {
		if um.Status != domain.MissionCompleted {
			return false, domain.ErrMissionNotActive
		}
		metrics.Settlements.WithLabelValues("noop").Inc()
		return false, nil
	}

	claimed, err := s.missions.ClaimCredit(ctx, um.ID)
	if err != nil {
		return false, err
	}
	if !claimed {
		metrics.Settlements.WithLabelValues("noop").Inc()
		return false, nil
	}

	if err := s.credit(ctx, um); err != nil {
		metrics.Settlements.WithLabelValues("failed").Inc()
		if rerr := s.missions.ReleaseCredit(ctx, um.ID); rerr != nil {
			logger.FromContext(ctx).Error("failed to release credit claim",
				"user_mission_id", um.ID, "error", rerr)
		}
		return false, err
	}
	metrics.Settlements.WithLabelValues("credited").Inc()
	return true, nil
}

// SettleForUser is Settle restricted to the caller's own missions.
func (s *MissionService) SettleForUser(ctx context.Context, userID, userMissionID string) (bool, error) {
	um, err := s.missions.UserMissionByID(ctx, userMissionID)
	if err != nil {
		return false, err
	}
	if um.UserID != userID {
		return false, domain.ErrUserMissionNotFound
	}
	return s.Settle(ctx, userMissionID)
}

func (s *MissionService) credit(ctx context.Context, um *domain.UserMission) error {
	m, err := s.missions.MissionByID(ctx, um.MissionID)
	if err != nil {
		return fmt.Errorf("load mission %s: %w", um.MissionID, err)
	}
	return s.ledger.CreditMission(ctx, um.UserID, m, um.ID, s.missions)
}

// SettleUnsettled credits completed missions that are still uncredited
// after grace. It returns how many were credited.
func (s *MissionService) SettleUnsettled(ctx context.Context, grace time.Duration, limit int) (int, error) {
	pending, err := s.missions.UncreditedCompleted(ctx, s.now().Add(-grace), limit)
	if err != nil {
		return 0, err
	}

	credited := 0
	for _, um := range pending {
		if ctx.Err() != nil {
			return credited, ctx.Err()
		}
		ok, err := s.Settle(ctx, um.ID)
		if err != nil {
			logger.FromContext(ctx).Warn("sweep settlement failed", "user_mission_id", um.ID, "error", err)
			continue
		}
		if ok {
			credited++
		}
	}
	return credited, nil
}
