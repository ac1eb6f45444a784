package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lifescore_backend/internal/domain"
	"lifescore_backend/internal/logger"
	"lifescore_backend/internal/metrics"
	"lifescore_backend/internal/repository"
	"lifescore_backend/internal/storage"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
)

// LedgerService owns every balance change. Each change is a single atomic
// increment at the storage layer; audit rows are written after it and
// their failure never fails the change.
type LedgerService struct {
	store     storage.Gateway
	users     *repository.UserRepository
	lifescore *repository.LifeScoreRepository
	txs       *repository.TransactionRepository
	rewards   *repository.RewardRepository
	notifier  Notifier

	initialCoins  int64
	retryTries    uint
	retryInterval time.Duration
}

// LedgerOption configures a LedgerService.
type LedgerOption func(*LedgerService)

func WithInitialCoins(n int64) LedgerOption {
	return func(s *LedgerService) {
		if n >= 0 {
			s.initialCoins = n
		}
	}
}

func WithNotifier(n Notifier) LedgerOption {
	return func(s *LedgerService) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithRedeemRetry sets how often the redemption write is tried and the
// first backoff interval.
func WithRedeemRetry(tries uint, interval time.Duration) LedgerOption {
	return func(s *LedgerService) {
		if tries > 0 {
			s.retryTries = tries
		}
		if interval > 0 {
			s.retryInterval = interval
		}
	}
}

func NewLedgerService(store storage.Gateway, opts ...LedgerOption) *LedgerService {
	s := &LedgerService{
		store:         store,
		users:         repository.NewUserRepository(store),
		lifescore:     repository.NewLifeScoreRepository(store),
		txs:           repository.NewTransactionRepository(store),
		rewards:       repository.NewRewardRepository(store),
		notifier:      nopNotifier{},
		retryTries:    3,
		retryInterval: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Account returns the user, creating it with starting balances on first use.
func (s *LedgerService) Account(ctx context.Context, userID string) (*domain.User, error) {
	return s.accountOn(ctx, s.users, userID)
}

func (s *LedgerService) accountOn(ctx context.Context, users *repository.UserRepository, userID string) (*domain.User, error) {
	if userID == "" {
		return nil, domain.ErrUserNotFound
	}
	u, created, err := users.GetOrCreate(ctx, userID, s.initialCoins)
	if err != nil {
		return nil, err
	}
	if created {
		logger.FromContext(ctx).Info("account created", "user_id", userID, "coins", u.Coins)
	}
	return u, nil
}

// increment runs fn and, if the user row does not exist yet, creates the
// account and runs it once more.
func (s *LedgerService) increment(ctx context.Context, userID string, fn func() (storage.IncrementResult, error)) (storage.IncrementResult, error) {
	if userID == "" {
		return storage.IncrementResult{}, domain.ErrUserNotFound
	}
	res, err := fn()
	if !errors.Is(err, storage.ErrConditionFailed) {
		return res, err
	}
	if _, err := s.Account(ctx, userID); err != nil {
		return storage.IncrementResult{}, err
	}
	return fn()
}

// AdjustCoins adds delta to the balance, flooring at zero, and returns the
// new balance.
func (s *LedgerService) AdjustCoins(ctx context.Context, userID string, delta int64, reason string) (int64, error) {
	res, err := s.increment(ctx, userID, func() (storage.IncrementResult, error) {
		return s.users.AdjustCoins(ctx, userID, delta)
	})
	if err != nil {
		return 0, fmt.Errorf("adjust coins: %w", err)
	}
	metrics.LedgerAdjustments.WithLabelValues("coins").Inc()

	applied := res.Current - res.Previous
	s.recordCoins(ctx, userID, reason, applied, res.Current, map[string]interface{}{"requested": delta})
	s.notifier.Notify(userID, domain.NewEvent(domain.EventCoins, map[string]interface{}{
		"coins":  res.Current,
		"delta":  applied,
		"reason": reason,
	}))
	return res.Current, nil
}

// AdjustLifeScore adds delta clamped into [0,100]. Every call appends an
// audit entry with the values actually stored.
func (s *LedgerService) AdjustLifeScore(ctx context.Context, userID string, delta int64, reason string) (int64, error) {
	res, err := s.increment(ctx, userID, func() (storage.IncrementResult, error) {
		return s.users.AdjustLifeScore(ctx, userID, delta)
	})
	if err != nil {
		return 0, fmt.Errorf("adjust lifescore: %w", err)
	}
	metrics.LedgerAdjustments.WithLabelValues("lifescore").Inc()

	entry := &domain.LifeScoreEntry{
		UserID:       userID,
		OldScore:     res.Previous,
		NewScore:     res.Current,
		ChangeReason: reason,
	}
	if err := s.lifescore.Create(ctx, entry); err != nil {
		metrics.AuditWriteFailures.WithLabelValues("lifescore").Inc()
		logger.FromContext(ctx).Error("lifescore audit write failed", "user_id", userID, "error", err)
	}

	s.notifier.Notify(userID, domain.NewEvent(domain.EventLifeScore, map[string]interface{}{
		"lifescore": res.Current,
		"previous":  res.Previous,
		"reason":    reason,
	}))
	return res.Current, nil
}

// AddXP grants XP and raises the level when the new total crosses a level
// boundary. The stored level is never lowered.
func (s *LedgerService) AddXP(ctx context.Context, userID string, delta int64) (*domain.User, error) {
	res, err := s.increment(ctx, userID, func() (storage.IncrementResult, error) {
		return s.users.AddXP(ctx, userID, delta)
	})
	if err != nil {
		return nil, fmt.Errorf("add xp: %w", err)
	}
	metrics.LedgerAdjustments.WithLabelValues("xp").Inc()

	u := repository.UserFromRow(res.Row)
	level := domain.LevelForXP(res.Current)
	if level > u.Level {
		// the XP has landed; a missed raise is repaired by the next grant
		raised, err := s.users.RaiseLevel(ctx, userID, level)
		if err != nil {
			logger.FromContext(ctx).Error("raise level failed", "user_id", userID, "level", level, "error", err)
		} else if raised {
			u.Level = level
		}
	}

	s.notifier.Notify(userID, domain.NewEvent(domain.EventXP, map[string]interface{}{
		"xp":    res.Current,
		"level": u.Level,
	}))
	return u, nil
}

// PartTracker records which parts of a mission reward have been applied.
type PartTracker interface {
	ClaimPart(ctx context.Context, userMissionID string, part domain.CreditPart) (bool, error)
	ReleasePart(ctx context.Context, userMissionID string, part domain.CreditPart) error
}

// CreditMission applies a mission's reward: coins, XP, then the LifeScore
// delta. Each part is claimed through parts before it is applied, so a
// retry after a partial failure never applies a part twice.
func (s *LedgerService) CreditMission(ctx context.Context, userID string, m *domain.Mission, userMissionID string, parts PartTracker) error {
	reason := "mission:" + m.ID
	steps := []struct {
		part   domain.CreditPart
		amount int64
		apply  func() error
	}{
		{domain.CreditCoins, m.CoinsReward, func() error {
			_, err := s.AdjustCoins(ctx, userID, m.CoinsReward, domain.TxMissionReward)
			return err
		}},
		{domain.CreditXP, m.XPReward, func() error {
			_, err := s.AddXP(ctx, userID, m.XPReward)
			return err
		}},
		{domain.CreditLifeScore, m.LifeScoreDelta, func() error {
			_, err := s.AdjustLifeScore(ctx, userID, m.LifeScoreDelta, reason)
			return err
		}},
	}

	log := logger.FromContext(ctx).With("user_id", userID, "user_mission_id", userMissionID)
	for _, step := range steps {
		if step.amount == 0 {
			continue
		}
		claimed, err := parts.ClaimPart(ctx, userMissionID, step.part)
		if err != nil {
			return fmt.Errorf("claim %s credit: %w", step.part, err)
		}
		if !claimed {
			log.Debug("mission reward part already applied", "part", step.part)
			continue
		}
		if err := step.apply(); err != nil {
			if rerr := parts.ReleasePart(ctx, userMissionID, step.part); rerr != nil {
				log.Error("failed to release reward part", "part", step.part, "error", rerr)
			}
			return err
		}
	}
	log.Info("mission credited", "mission_id", m.ID,
		"coins", m.CoinsReward, "xp", m.XPReward, "lifescore_delta", m.LifeScoreDelta)
	return nil
}

// RedeemReward spends coins on a catalog reward. The whole operation runs
// on one backend. The debit only happens if the balance covers the cost;
// if the redemption record cannot be written afterwards the coins are
// credited back and the error is returned. Once the debit has landed the
// rest runs to completion even if ctx is cancelled.
func (s *LedgerService) RedeemReward(ctx context.Context, userID, rewardID string) (*domain.UserReward, error) {
	reward, err := s.rewards.RewardByID(ctx, rewardID)
	if err != nil {
		return nil, err
	}
	if !reward.IsActive {
		return nil, domain.ErrRewardNotFound
	}

	b := s.store.Pick(ctx)
	users := s.users.With(b)
	rewards := s.rewards.With(b)
	log := logger.FromContext(ctx).With("user_id", userID, "reward_id", rewardID, "backend", b.Name())

	if _, err := s.accountOn(ctx, users, userID); err != nil {
		return nil, err
	}

	debit, err := users.DebitCoins(ctx, userID, reward.CoinsCost)
	if err != nil {
		if errors.Is(err, storage.ErrConditionFailed) {
			return nil, domain.ErrInsufficientCoins
		}
		return nil, fmt.Errorf("debit coins: %w", err)
	}

	ctx, cancel := detach(ctx)
	defer cancel()

	ur := &domain.UserReward{
		ID:         uuid.NewString(),
		UserID:     userID,
		RewardID:   reward.ID,
		CoinsSpent: reward.CoinsCost,
		Details:    reward.DetailsMap(),
		RedeemedAt: time.Now().UTC(),
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.retryInterval
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		err := rewards.CreateRedemption(ctx, ur)
		if errors.Is(err, storage.ErrConflict) {
			// an earlier attempt landed
			return struct{}{}, nil
		}
		return struct{}{}, err
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(s.retryTries))
	if err != nil {
		if _, cerr := users.AdjustCoins(ctx, userID, reward.CoinsCost); cerr != nil {
			log.Error("redemption refund failed", "coins", reward.CoinsCost, "error", cerr)
			metrics.AuditWriteFailures.WithLabelValues("refund").Inc()
		} else {
			s.recordCoins(ctx, userID, domain.TxRedeemRefund, reward.CoinsCost, debit.Previous, map[string]interface{}{"reward_id": reward.ID})
		}
		log.Warn("redemption failed, debit compensated", "error", err)
		return nil, fmt.Errorf("redeem reward: %w", err)
	}
	metrics.LedgerAdjustments.WithLabelValues("coins").Inc()

	s.recordCoins(ctx, userID, domain.TxRewardRedeem, -reward.CoinsCost, debit.Current, map[string]interface{}{
		"reward_id":      reward.ID,
		"user_reward_id": ur.ID,
	})
	s.notifier.Notify(userID, domain.NewEvent(domain.EventCoins, map[string]interface{}{
		"coins":  debit.Current,
		"delta":  -reward.CoinsCost,
		"reason": domain.TxRewardRedeem,
	}))

	if reward.XPReward > 0 {
		if _, err := s.AddXP(ctx, userID, reward.XPReward); err != nil {
			log.Error("reward xp credit failed", "xp", reward.XPReward, "error", err)
		}
	}

	s.notifier.Notify(userID, domain.NewEvent(domain.EventRewardRedeemed, map[string]interface{}{
		"reward_id":      reward.ID,
		"user_reward_id": ur.ID,
		"kind":           string(reward.Kind),
	}))
	log.Info("reward redeemed", "coins_spent", reward.CoinsCost, "balance", debit.Current)
	return ur, nil
}

func (s *LedgerService) Rewards(ctx context.Context) ([]*domain.Reward, error) {
	return s.rewards.ActiveRewards(ctx)
}

func (s *LedgerService) UserRewards(ctx context.Context, userID string) ([]*domain.UserReward, error) {
	return s.rewards.UserRewards(ctx, userID)
}

// History returns the LifeScore audit trail, newest first.
func (s *LedgerService) History(ctx context.Context, userID string, limit int) ([]*domain.LifeScoreEntry, error) {
	return s.lifescore.GetByUserID(ctx, userID, limit)
}

// Transactions returns the coin audit trail, newest first.
func (s *LedgerService) Transactions(ctx context.Context, userID string, limit int) ([]*domain.CoinTransaction, error) {
	return s.txs.GetByUserID(ctx, userID, limit)
}

func (s *LedgerService) Leaderboard(ctx context.Context, limit int) ([]*domain.User, error) {
	return s.users.Top(ctx, limit)
}

func (s *LedgerService) recordCoins(ctx context.Context, userID, txType string, amount, balance int64, meta map[string]interface{}) {
	err := s.txs.Create(ctx, &domain.CoinTransaction{
		UserID:       userID,
		Type:         txType,
		Amount:       amount,
		BalanceAfter: balance,
		Meta:         meta,
	})
	if err != nil {
		metrics.AuditWriteFailures.WithLabelValues("coins").Inc()
		logger.FromContext(ctx).Error("coin audit write failed", "user_id", userID, "type", txType, "error", err)
	}
}
