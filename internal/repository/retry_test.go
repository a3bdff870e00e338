package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/uma-arai/sbcntr-booking/internal/model"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "serialization_failure", err: &pq.Error{Code: "40001"}, want: true},
		{name: "deadlock_detected", err: &pq.Error{Code: "40P01"}, want: true},
		{name: "ラップされたエラー", err: fmt.Errorf("insert: %w", &pq.Error{Code: "40001"}), want: true},
		{name: "unique_violation", err: &pq.Error{Code: "23505"}, want: false},
		{name: "満席", err: model.ErrSlotFull, want: false},
		{name: "nil", err: nil, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestRetryPolicy_Do(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond}

	t.Run("一時的なエラーの後に成功", func(t *testing.T) {
		calls := 0
		err := policy.Do(context.Background(), "test", func(context.Context) error {
			calls++
			if calls < 3 {
				return &pq.Error{Code: "40001"}
			}
			return nil
		})
		if err != nil || calls != 3 {
			t.Errorf("Do() error = %v, calls = %d", err, calls)
		}
	})

	t.Run("上限回数で打ち切り", func(t *testing.T) {
		calls := 0
		err := policy.Do(context.Background(), "test", func(context.Context) error {
			calls++
			return &pq.Error{Code: "40P01"}
		})
		if !errors.Is(err, model.ErrStoreUnavailable) {
			t.Errorf("Do() error = %v, want ErrStoreUnavailable", err)
		}
		if errors.Is(err, model.ErrSlotFull) {
			t.Error("exhaustion must not be reported as ErrSlotFull")
		}
		if calls != 3 {
			t.Errorf("calls = %d, want 3", calls)
		}
	})

	t.Run("満席は再試行しない", func(t *testing.T) {
		calls := 0
		err := policy.Do(context.Background(), "test", func(context.Context) error {
			calls++
			return model.ErrSlotFull
		})
		if !errors.Is(err, model.ErrSlotFull) || calls != 1 {
			t.Errorf("Do() error = %v, calls = %d", err, calls)
		}
	})

	t.Run("接続エラーはストア利用不可", func(t *testing.T) {
		err := policy.Do(context.Background(), "test", func(context.Context) error {
			return driver.ErrBadConn
		})
		if !errors.Is(err, model.ErrStoreUnavailable) {
			t.Errorf("Do() error = %v, want ErrStoreUnavailable", err)
		}
	})

	t.Run("キャンセルされたコンテキスト", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		slow := RetryPolicy{MaxAttempts: 3, Backoff: time.Hour}
		err := slow.Do(ctx, "test", func(context.Context) error {
			return &pq.Error{Code: "40001"}
		})
		if !errors.Is(err, model.ErrStoreUnavailable) {
			t.Errorf("Do() error = %v, want ErrStoreUnavailable", err)
		}
	})
}
