package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/uma-arai/sbcntr-booking/internal/common/database"
	"github.com/uma-arai/sbcntr-booking/internal/model"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DB        database.Config
	Admission AdmissionConfig
	Redis     RedisConfig
	SFN       struct {
		TaskToken string
	}
	MetricsAddr   string
	EnableTracing bool
}

// AdmissionConfig は予約受付の設定です
type AdmissionConfig struct {
	Hours    model.OperatingHours
	Capacity int
	Location *time.Location

	// TryInsert の一時的な競合エラーに対するリトライ設定
	MaxAttempts int
	Backoff     time.Duration
}

type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// Enabled はRedisのアドレスが設定されているかを返します
func (c RedisConfig) Enabled() bool {
	return c.Address != ""
}

// fileConfig は SBCNTR_CONFIG_FILE で指定したYAMLの構造です
// 環境変数が設定されている項目は環境変数が優先されます
type fileConfig struct {
	Admission struct {
		OpenTime    string `yaml:"open_time"`
		CloseTime   string `yaml:"close_time"`
		Capacity    int    `yaml:"capacity"`
		Timezone    string `yaml:"timezone"`
		MaxAttempts int    `yaml:"max_attempts"`
		BackoffMS   int    `yaml:"backoff_ms"`
	} `yaml:"admission"`
	Redis struct {
		Address string `yaml:"address"`
		DB      int    `yaml:"db"`
	} `yaml:"redis"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// DefaultAdmissionConfig は 10:00〜22:00、1枠10件の既定値を返します
func DefaultAdmissionConfig() AdmissionConfig {
	return AdmissionConfig{
		Hours:       model.DefaultOperatingHours(),
		Capacity:    model.DefaultSlotCapacity,
		Location:    time.Local,
		MaxAttempts: 5,
		Backoff:     20 * time.Millisecond,
	}
}

// LoadConfig は設定を読み込みます
func LoadConfig(taskToken string) (*Config, error) {
	// .envがあれば読み込む（既に設定済みの環境変数は上書きしない）
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var file fileConfig
	if path := os.Getenv("SBCNTR_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &file); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg := &Config{
		DB: database.Config{
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getEnvAsIntOrDefault("DB_PORT", 5432),
			UserName: getEnvOrDefault("DB_USERNAME", "sbcntrapp"),
			Password: getEnvOrDefault("DB_PASSWORD", "password"),
			DBName:   getEnvOrDefault("DB_NAME", "sbcntrapp"),
			SSLMode:  os.Getenv("DB_SSL_MODE"),
		},
		Redis: RedisConfig{
			Address:  getEnvOrDefault("REDIS_ADDR", file.Redis.Address),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getEnvAsIntOrDefault("REDIS_DB", file.Redis.DB),
		},
		SFN: struct {
			TaskToken string
		}{
			TaskToken: taskToken,
		},
		MetricsAddr:   getEnvOrDefault("SBCNTR_METRICS_ADDR", file.MetricsAddr),
		EnableTracing: false,
	}

	admission, err := loadAdmission(file)
	if err != nil {
		return nil, err
	}
	cfg.Admission = admission

	// 環境変数[SBCNTR_ENABLE_TRACING]を見てトレースを有効にする。対応しているTracingはAWS_XRAYのみ。
	// 環境変数[AWS_XRAY_SDK_DISABLED]がtrueの場合は必ずトレースを無効にする。
	enableKey := os.Getenv("SBCNTR_ENABLE_TRACING")
	if !sdkDisabled() && (strings.ToLower(enableKey) == "true" || enableKey == "1") {
		os.Setenv("AWS_XRAY_SDK_DISABLED", "FALSE")
		cfg.EnableTracing = true
	} else {
		os.Setenv("AWS_XRAY_SDK_DISABLED", "TRUE")
		cfg.EnableTracing = false
	}

	return cfg, nil
}

func loadAdmission(file fileConfig) (AdmissionConfig, error) {
	def := DefaultAdmissionConfig()
	fa := file.Admission

	open, err := model.ParseTimeOfDay(getEnvOrDefault("SBCNTR_OPEN_TIME", orString(fa.OpenTime, def.Hours.Open.String())))
	if err != nil {
		return AdmissionConfig{}, fmt.Errorf("SBCNTR_OPEN_TIME: %w", err)
	}
	closeAt, err := model.ParseTimeOfDay(getEnvOrDefault("SBCNTR_CLOSE_TIME", orString(fa.CloseTime, def.Hours.Close.String())))
	if err != nil {
		return AdmissionConfig{}, fmt.Errorf("SBCNTR_CLOSE_TIME: %w", err)
	}
	if closeAt < open {
		return AdmissionConfig{}, fmt.Errorf("close time %s is before open time %s", closeAt, open)
	}

	capacity := getEnvAsIntOrDefault("SBCNTR_SLOT_CAPACITY", orInt(fa.Capacity, def.Capacity))
	if capacity < 1 {
		return AdmissionConfig{}, fmt.Errorf("SBCNTR_SLOT_CAPACITY must be >= 1 (got %d)", capacity)
	}

	loc := def.Location
	if tz := getEnvOrDefault("SBCNTR_TIMEZONE", fa.Timezone); tz != "" {
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return AdmissionConfig{}, fmt.Errorf("SBCNTR_TIMEZONE: %w", err)
		}
	}

	attempts := getEnvAsIntOrDefault("SBCNTR_ADMISSION_MAX_ATTEMPTS", orInt(fa.MaxAttempts, def.MaxAttempts))
	if attempts < 1 {
		attempts = 1
	}
	backoffMS := getEnvAsIntOrDefault("SBCNTR_ADMISSION_BACKOFF_MS", orInt(fa.BackoffMS, int(def.Backoff/time.Millisecond)))

	return AdmissionConfig{
		Hours:       model.OperatingHours{Open: open, Close: closeAt},
		Capacity:    capacity,
		Location:    loc,
		MaxAttempts: attempts,
		Backoff:     time.Duration(backoffMS) * time.Millisecond,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	log.Printf("Environment variable %s is not set, using default value", key)
	return defaultValue
}

func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func orString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func orInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

// Check if SDK is disabled
func sdkDisabled() bool {
	disableKey := os.Getenv("AWS_XRAY_SDK_DISABLED")
	return strings.ToLower(disableKey) == "true"
}
