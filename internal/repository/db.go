package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type DB struct {
	*sqlx.DB
}

// NewDB は接続済みのsqlx.DBをラップします
func NewDB(conn *sqlx.DB) *DB {
	return &DB{conn}
}

// WithTx はトランザクション内でfnを実行します
// fnがエラーを返した場合はロールバックし、そうでなければコミットします
func (db *DB) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	ctx, seg := xray.BeginSubsegment(ctx, "DB.WithTx")
	defer seg.Close(nil)

	tx, err := db.DB.BeginTxx(ctx, nil)
	if err != nil {
		seg.Close(err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Printf("rollback failed: %v, original error: %v", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		seg.Close(err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetContext は sqlx.DB.GetContext をX-Rayのサブセグメントで計測します
func (db *DB) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	ctx, seg := xray.BeginSubsegment(ctx, "DB.Get")
	defer seg.Close(nil)

	// クエリをメタデータとして追加
	if err := seg.AddMetadata("query", query); err != nil {
		log.Printf("Failed to add query metadata: %v", err)
	}

	// 行なしは呼び出し側で扱うためエラーとして記録しない
	err := db.DB.GetContext(ctx, dest, query, args...)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		seg.Close(err)
	}
	return err
}

// SelectContext は sqlx.DB.SelectContext をX-Rayのサブセグメントで計測します
func (db *DB) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	ctx, seg := xray.BeginSubsegment(ctx, "DB.Select")
	defer seg.Close(nil)

	if err := seg.AddMetadata("query", query); err != nil {
		log.Printf("Failed to add query metadata: %v", err)
	}

	if err := db.DB.SelectContext(ctx, dest, query, args...); err != nil {
		seg.Close(err)
		return err
	}
	return nil
}
