package migrate

import (
	"context"
	"embed"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/jmoiron/sqlx"
)

//go:embed *.sql
var fs embed.FS

// Files は適用順に並べたマイグレーションファイル名を返します
func Files() ([]string, error) {
	entries, err := fs.ReadDir(".")
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// Up は未適用のマイグレーションを順に適用します。適用済みのものはスキップします
func Up(ctx context.Context, db *sqlx.DB) error {
	ctx, seg := xray.BeginSubsegment(ctx, "migrate.Up")
	defer seg.Close(nil)

	files, err := Files()
	if err != nil {
		seg.Close(err)
		return fmt.Errorf("failed to list migrations: %w", err)
	}

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY)`); err != nil {
		seg.Close(err)
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	for _, f := range files {
		var applied bool
		if err := db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version=$1)`, f).Scan(&applied); err != nil {
			seg.Close(err)
			return fmt.Errorf("failed to check migration %s: %w", f, err)
		}
		if applied {
			continue
		}

		if err := apply(ctx, db, f); err != nil {
			seg.Close(err)
			return err
		}
		log.Printf("Applied migration %s", f)
	}

	return nil
}

func apply(ctx context.Context, db *sqlx.DB, name string) error {
	b, err := fs.ReadFile(name)
	if err != nil {
		return err
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if _, err := tx.ExecContext(ctx, string(b)); err != nil {
		return rollback(tx, fmt.Errorf("apply %s: %w", name, err))
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version) VALUES ($1)`, name); err != nil {
		return rollback(tx, fmt.Errorf("record %s: %w", name, err))
	}
	return tx.Commit()
}

type rollbacker interface {
	Rollback() error
}

// rollback はトランザクションをロールバックし、元のエラーを返します
func rollback(tx rollbacker, err error) error {
	if rbErr := tx.Rollback(); rbErr != nil {
		log.Printf("rollback failed: %v, original error: %v", rbErr, err)
	}
	return err
}
