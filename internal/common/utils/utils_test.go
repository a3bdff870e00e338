package utils

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRunWithTimeout(t *testing.T) {
	errBoom := errors.New("boom")

	tests := []struct {
		name    string
		timeout time.Duration
		fn      func(context.Context) error
		wantErr error
		timeOut bool
	}{
		{
			name:    "正常終了",
			timeout: time.Second,
			fn:      func(context.Context) error { return nil },
		},
		{
			name:    "処理のエラーをそのまま返す",
			timeout: time.Second,
			fn:      func(context.Context) error { return errBoom },
			wantErr: errBoom,
		},
		{
			name:    "タイムアウト",
			timeout: 10 * time.Millisecond,
			fn: func(ctx context.Context) error {
				<-ctx.Done()
				time.Sleep(50 * time.Millisecond)
				return nil
			},
			timeOut: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := RunWithTimeout(context.Background(), tt.timeout, tt.fn)
			switch {
			case tt.timeOut:
				if !errors.Is(err, context.DeadlineExceeded) || !strings.Contains(err.Error(), "timed out") {
					t.Errorf("RunWithTimeout() error = %v, want timeout", err)
				}
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("RunWithTimeout() error = %v, want %v", err, tt.wantErr)
				}
			default:
				if err != nil {
					t.Errorf("RunWithTimeout() error = %v", err)
				}
			}
		})
	}
}

func TestGetStackWithError(t *testing.T) {
	if GetStackWithError(nil) != nil {
		t.Error("GetStackWithError(nil) should be nil")
	}

	base := errors.New("base")
	err := GetStackWithError(base)
	if !errors.Is(err, base) {
		t.Error("wrapped error should match the original")
	}
	if !strings.Contains(err.Error(), "Stack trace:") {
		t.Errorf("error should contain a stack trace: %v", err)
	}
	if again := GetStackWithError(err); again != err {
		t.Error("an error with a stack trace should not be wrapped twice")
	}
}

func TestRunWithTimeout_ParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RunWithTimeout(ctx, time.Second, func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("RunWithTimeout() error = %v, want context.Canceled", err)
	}
}
