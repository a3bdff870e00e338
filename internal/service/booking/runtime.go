package booking

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
	"github.com/uma-arai/sbcntr-booking/internal/common/config"
	"github.com/uma-arai/sbcntr-booking/internal/common/database"
	"github.com/uma-arai/sbcntr-booking/internal/model"
	"github.com/uma-arai/sbcntr-booking/internal/repository"
)

// Runtime は設定から組み立てたDB接続・Redis接続・AdmissionControllerを保持します
type Runtime struct {
	DB         *database.DB
	Redis      *redis.Client
	Controller *AdmissionController
}

// Open は設定に従って接続を確立し、AdmissionControllerを作成します
// Redisに接続できない場合はキャッシュなしで続行します
func Open(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	db, err := database.NewDB(cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}

	rt := &Runtime{DB: db}

	var opts []Option
	if cfg.Redis.Enabled() {
		client := repository.NewRedisClient(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		if err := repository.PingRedis(ctx, client); err != nil {
			log.Printf("Redis is not available, continuing without availability cache: %v", err)
			_ = client.Close()
		} else {
			rt.Redis = client
			opts = append(opts, WithAvailabilityCache(repository.NewRedisAvailabilityCache(client)))
		}
	}

	repo := repository.NewReservationRepository(
		repository.NewDB(db.DB),
		repository.RetryPolicy{MaxAttempts: cfg.Admission.MaxAttempts, Backoff: cfg.Admission.Backoff},
	)
	rt.Controller = NewAdmissionController(
		repo,
		cfg.Admission.Hours,
		model.SlotPolicy{Capacity: cfg.Admission.Capacity},
		cfg.Admission.Location,
		opts...,
	)
	return rt, nil
}

// Close は終了処理を行います
func (rt *Runtime) Close() error {
	var errs []error
	if rt.Redis != nil {
		errs = append(errs, rt.Redis.Close())
	}
	if rt.DB != nil {
		errs = append(errs, rt.DB.Close())
	}
	return errors.Join(errs...)
}
