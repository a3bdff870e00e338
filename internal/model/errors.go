package model

import (
	"errors"
	"fmt"
)

// 予約処理で呼び出し元に返すエラーの分類です
// 呼び出し元は errors.Is / errors.As で判定します
var (
	ErrValidation        = errors.New("invalid booking request")
	ErrInvalidTime       = errors.New("requested time is outside operating hours")
	ErrSlotFull          = errors.New("time slot is fully booked")
	ErrNotFound          = errors.New("reservation not found")
	ErrIllegalTransition = errors.New("illegal status transition")
	ErrStoreUnavailable  = errors.New("reservation store unavailable")
)

// ValidationError は入力値の不備を表します
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
	}
	return fmt.Sprintf("%s: %s %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// InvalidTimeError は営業時間外の時刻が指定されたことを表します
type InvalidTimeError struct {
	Requested TimeOfDay
	Open      TimeOfDay
	Close     TimeOfDay
}

func (e *InvalidTimeError) Error() string {
	return fmt.Sprintf("%s: %s is not within %s-%s", ErrInvalidTime, e.Requested, e.Open, e.Close)
}

func (e *InvalidTimeError) Is(target error) bool { return target == ErrInvalidTime }

// IllegalTransitionError は許可されていないステータス遷移を表します
type IllegalTransitionError struct {
	From Status
	To   Status
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("%s: %s -> %s", ErrIllegalTransition, e.From, e.To)
}

func (e *IllegalTransitionError) Is(target error) bool { return target == ErrIllegalTransition }
