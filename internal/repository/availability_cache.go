package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/redis/go-redis/v9"
	"github.com/uma-arai/sbcntr-booking/internal/model"
)

const (
	availabilityKeyPrefix        = "sbcntr:availability:"
	availabilityVersionKeyPrefix = "sbcntr:availability-version:"
	availabilityTTL              = 30 * time.Second
	availabilityVersionTTL       = 48 * time.Hour
)

// AvailabilityCache は日付ごとの受付枠占有数を保持する参照用キャッシュです
// 予約の受付判定には使用しません
//
// Invalidate は日付のバージョンを進めます。Set は Version で取得した値から
// バージョンが変わっていない場合のみ保存するため、読み取り中に破棄された値は残りません
type AvailabilityCache interface {
	Get(ctx context.Context, date time.Time) (map[int]int, bool)
	Version(ctx context.Context, date time.Time) int64
	Set(ctx context.Context, date time.Time, version int64, occupied map[int]int)
	Invalidate(ctx context.Context, date time.Time)
}

// NewRedisClient はRedisクライアントを作成します
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 2 * time.Second,
		ReadTimeout: time.Second,
	})
}

// PingRedis はRedisへの接続を確認します
func PingRedis(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

type RedisAvailabilityCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisAvailabilityCache はclientがnilの場合は何もしないキャッシュを返します
func NewRedisAvailabilityCache(client *redis.Client) *RedisAvailabilityCache {
	return &RedisAvailabilityCache{client: client, ttl: availabilityTTL}
}

func availabilityKey(date time.Time) string {
	return availabilityKeyPrefix + model.FormatDate(date)
}

func availabilityVersionKey(date time.Time) string {
	return availabilityVersionKeyPrefix + model.FormatDate(date)
}

var errStaleAvailability = errors.New("availability changed while reading")

// Get はキャッシュされた時間帯ごとの占有数を返します。Redisのエラーはキャッシュミスとして扱います
func (c *RedisAvailabilityCache) Get(ctx context.Context, date time.Time) (map[int]int, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	ctx, seg := xray.BeginSubsegment(ctx, "AvailabilityCache.Get")
	defer seg.Close(nil)

	values, err := c.client.HGetAll(ctx, availabilityKey(date)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("availability cache get failed: %v", err)
		}
		return nil, false
	}
	if len(values) == 0 {
		return nil, false
	}

	occupied := make(map[int]int, len(values))
	for field, value := range values {
		hour, err := strconv.Atoi(field)
		if err != nil {
			continue
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			continue
		}
		occupied[hour] = n
	}
	return occupied, true
}

// Version は日付の現在のバージョンを返します。未設定やエラーの場合は0です
func (c *RedisAvailabilityCache) Version(ctx context.Context, date time.Time) int64 {
	if c == nil || c.client == nil {
		return 0
	}
	v, err := c.client.Get(ctx, availabilityVersionKey(date)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		log.Printf("availability cache version failed: %v", err)
	}
	return v
}

// Set はバージョンが version のままの場合のみ時間帯ごとの占有数を保存します
func (c *RedisAvailabilityCache) Set(ctx context.Context, date time.Time, version int64, occupied map[int]int) {
	if c == nil || c.client == nil || len(occupied) == 0 {
		return
	}
	ctx, seg := xray.BeginSubsegment(ctx, "AvailabilityCache.Set")
	defer seg.Close(nil)

	fields := make(map[string]interface{}, len(occupied))
	for hour, n := range occupied {
		fields[strconv.Itoa(hour)] = n
	}

	key := availabilityKey(date)
	versionKey := availabilityVersionKey(date)
	err := c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, versionKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != version {
			return errStaleAvailability
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.HSet(ctx, key, fields)
			pipe.Expire(ctx, key, c.ttl)
			return nil
		})
		return err
	}, versionKey)
	switch {
	case err == nil:
	case errors.Is(err, errStaleAvailability), errors.Is(err, redis.TxFailedErr):
		log.Printf("availability cache for %s changed while reading, not stored", model.FormatDate(date))
	default:
		log.Printf("availability cache set failed: %v", err)
	}
}

// Invalidate は日付のキャッシュを破棄し、バージョンを進めます
func (c *RedisAvailabilityCache) Invalidate(ctx context.Context, date time.Time) {
	if c == nil || c.client == nil {
		return
	}
	versionKey := availabilityVersionKey(date)
	pipe := c.client.TxPipeline()
	pipe.Incr(ctx, versionKey)
	pipe.Expire(ctx, versionKey, availabilityVersionTTL)
	pipe.Del(ctx, availabilityKey(date))
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("availability cache invalidate failed: %v", err)
	}
}
