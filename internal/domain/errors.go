package domain

import "errors"

var (
	ErrMissionAlreadyActive = errors.New("mission already active")
	ErrMissionNotActive     = errors.New("mission not active or steps incomplete")
	ErrStepNotFound         = errors.New("step not found")
	ErrInsufficientCoins    = errors.New("insufficient coins")
	ErrMissionNotFound      = errors.New("mission not found")
	ErrRewardNotFound       = errors.New("reward not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrUserMissionNotFound  = errors.New("user mission not found")
)
