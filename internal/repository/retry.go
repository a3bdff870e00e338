package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/lib/pq"
	"github.com/uma-arai/sbcntr-booking/internal/model"
)

// 再試行すれば成功し得るPostgreSQLのエラーコード
const (
	codeSerializationFailure pq.ErrorCode = "40001"
	codeDeadlockDetected     pq.ErrorCode = "40P01"
)

// RetryPolicy は一時的な競合エラーに対する再試行の設定です
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultRetryPolicy は5回まで、20ms刻みで待ち時間を延ばします
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, Backoff: 20 * time.Millisecond}
}

// IsTransient はシリアライズ失敗・デッドロックのエラーかを判定します
func IsTransient(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == codeSerializationFailure || pqErr.Code == codeDeadlockDetected
	}
	return false
}

// isConnectionError はDBに到達できないことを示すエラーかを判定します
func isConnectionError(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// 08: connection_exception, 57P: operator_intervention (admin_shutdown など)
		class := string(pqErr.Code)
		return len(class) >= 3 && (class[:2] == "08" || class[:3] == "57P")
	}
	return false
}

// Do はfnを実行し、一時的な競合エラーの場合は上限回数まで再試行します
// 上限に達した場合と接続エラーの場合は model.ErrStoreUnavailable を返します
func (p RetryPolicy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			if isConnectionError(err) {
				return fmt.Errorf("%w: %s: %v", model.ErrStoreUnavailable, op, err)
			}
			return err
		}
		if attempt == attempts {
			break
		}

		wait := p.Backoff * time.Duration(attempt)
		log.Printf("%s: transient conflict (attempt %d/%d), retrying in %v: %v", op, attempt, attempts, wait, err)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s: %v", model.ErrStoreUnavailable, op, ctx.Err())
		case <-time.After(wait):
		}
	}

	return fmt.Errorf("%w: %s gave up after %d attempts: %v", model.ErrStoreUnavailable, op, attempts, err)
}
