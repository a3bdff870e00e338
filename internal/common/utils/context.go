package utils

import (
	"context"
	"fmt"
	"time"
)

// RunWithTimeout は指定されたタイムアウト時間内で fn を実行する
// タイムアウトを超えた場合は fn の終了を待たずに context.DeadlineExceeded を含むエラーを返す
// 親のコンテキストがキャンセルされた場合はそのエラーを返す
func RunWithTimeout(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		errChan <- fn(runCtx)
	}()

	select {
	case err := <-errChan:
		return err
	case <-runCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("process timed out after %v: %w", timeout, context.DeadlineExceeded)
	}
}
