package database

import (
	"fmt"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type DB struct {
	*sqlx.DB
}

type Config struct {
	Host     string
	Port     int
	UserName string
	Password string
	DBName   string
	SSLMode  string
}

// DSN はlib/pq形式の接続文字列を返します
func (c Config) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		// localhostのDBの場合はSSLを無効化
		if c.Host == "localhost" || c.Host == "127.0.0.1" {
			sslMode = "disable"
		} else {
			sslMode = "require" // 本番環境ではSSLを有効にする
		}
	}

	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.UserName,
		c.Password,
		c.DBName,
		sslMode,
	)
}

func NewDB(cfg Config) (*DB, error) {
	return Open(cfg.DSN())
}

// Open はDSNを指定して接続します
func Open(dsn string) (*DB, error) {
	// X-Ray対応のSQLコンテキストを作成
	db, err := xray.SQLContext("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database with X-Ray: %w", err)
	}

	// コネクションプールの設定
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	// 接続テスト
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{sqlx.NewDb(db, "postgres")}, nil
}
