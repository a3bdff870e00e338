package booking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/uma-arai/sbcntr-booking/internal/metrics"
	"github.com/uma-arai/sbcntr-booking/internal/model"
	"github.com/uma-arai/sbcntr-booking/internal/repository"
)

// 管理画面に表示する最近の予約件数
const dashboardRecent = 10

// AdmissionController は予約の受付可否を判定し、ステータス変更を仲介します
// 状態を持たないため複数のゴルーチン・プロセスから同時に呼び出せます
type AdmissionController struct {
	repo   repository.ReservationRepository
	cache  repository.AvailabilityCache
	hours  model.OperatingHours
	policy model.SlotPolicy
	loc    *time.Location
	now    func() time.Time
}

type Option func(*AdmissionController)

// WithClock は現在時刻の取得方法を差し替えます
func WithClock(now func() time.Time) Option {
	return func(c *AdmissionController) { c.now = now }
}

// WithAvailabilityCache は空き状況の参照用キャッシュを設定します
func WithAvailabilityCache(cache repository.AvailabilityCache) Option {
	return func(c *AdmissionController) {
		if cache != nil {
			c.cache = cache
		}
	}
}

// NewAdmissionController は新しいAdmissionControllerを作成します
func NewAdmissionController(repo repository.ReservationRepository, hours model.OperatingHours, policy model.SlotPolicy, loc *time.Location, opts ...Option) *AdmissionController {
	if loc == nil {
		loc = time.Local
	}
	c := &AdmissionController{
		repo:   repo,
		cache:  repository.NewRedisAvailabilityCache(nil),
		hours:  hours,
		policy: policy,
		loc:    loc,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Location は店舗のタイムゾーンを返します
func (c *AdmissionController) Location() *time.Location {
	return c.loc
}

// Now は店舗のタイムゾーンでの現在時刻を返します
func (c *AdmissionController) Now() time.Time {
	return c.now().In(c.loc)
}

// CreateBooking は予約リクエストを検証し、受付枠に空きがあれば pending で登録します
func (c *AdmissionController) CreateBooking(ctx context.Context, in model.BookingInput) (*model.Reservation, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "AdmissionController.CreateBooking")
	defer seg.Close(nil)

	start := time.Now()
	defer func() { metrics.ObserveAdmission(time.Since(start)) }()

	in = in.Normalize()
	if err := in.Validate(); err != nil {
		metrics.IncAdmission(metrics.ResultInvalid)
		return nil, err
	}

	// 予約日時が現在時刻以前のものは受け付けない
	if !in.Time.On(in.Date, c.loc).After(c.Now()) {
		metrics.IncAdmission(metrics.ResultInvalid)
		return nil, &model.ValidationError{Field: "date", Reason: "must be in the future"}
	}

	if err := c.hours.Validate(in.Time); err != nil {
		metrics.IncAdmission(metrics.ResultInvalidTime)
		return nil, err
	}

	slot := c.policy.KeyOf(in.Date, in.Time)
	res := in.ToReservation()
	if err := c.repo.TryInsert(ctx, &res, slot, c.policy.CapacityOf(slot)); err != nil {
		if errors.Is(err, model.ErrSlotFull) {
			metrics.IncAdmission(metrics.ResultSlotFull)
			log.Printf("Slot %s is full, booking rejected", slot)
			return nil, fmt.Errorf("slot %s: %w", slot, model.ErrSlotFull)
		}
		metrics.IncAdmission(metrics.ResultUnavailable)
		err = storeError("create booking", err)
		seg.Close(err)
		return nil, err
	}

	c.cache.Invalidate(ctx, slot.Date)
	metrics.IncAdmission(metrics.ResultAccepted)
	log.Printf("Booking %s accepted for slot %s (party of %d)", res.ID, slot, res.PartySize)
	return &res, nil
}

// UpdateStatus は予約のステータスを変更します。notes は空でない場合のみ管理メモとして保存します
func (c *AdmissionController) UpdateStatus(ctx context.Context, id string, to model.Status, notes string) (*model.Reservation, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "AdmissionController.UpdateStatus")
	defer seg.Close(nil)

	to, err := model.ParseStatus(string(to))
	if err != nil {
		return nil, err
	}
	notes = strings.TrimSpace(notes)
	if utf8.RuneCountInString(notes) > model.MaxAdminNotesLen {
		return nil, &model.ValidationError{Field: "admin_notes", Reason: "is too long"}
	}

	current, err := c.repo.Get(ctx, id)
	if err != nil {
		return nil, c.readError("get reservation", err, seg)
	}
	if err := model.Transition(current.Status, to); err != nil {
		return nil, err
	}

	// 遷移はストア側でも行ロック後に再検証される
	updated, err := c.repo.UpdateStatus(ctx, id, to, notes)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) || errors.Is(err, model.ErrIllegalTransition) {
			return nil, err
		}
		err = storeError("update status", err)
		seg.Close(err)
		return nil, err
	}

	if current.Status.Occupies() != updated.Status.Occupies() {
		c.cache.Invalidate(ctx, updated.Date)
	}
	metrics.IncTransition(string(current.Status), string(updated.Status))
	log.Printf("Reservation %s: %s -> %s", id, current.Status, updated.Status)
	return updated, nil
}

// Lookup は条件に一致する予約を返します
func (c *AdmissionController) Lookup(ctx context.Context, criteria model.Criteria) ([]model.Reservation, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "AdmissionController.Lookup")
	defer seg.Close(nil)

	criteria.ID = strings.TrimSpace(criteria.ID)
	criteria.Email = strings.TrimSpace(criteria.Email)
	if criteria.Status != "" {
		st, err := model.ParseStatus(string(criteria.Status))
		if err != nil {
			return nil, err
		}
		criteria.Status = st
	}

	reservations, err := c.repo.Query(ctx, criteria)
	if err != nil {
		err = storeError("lookup reservations", err)
		seg.Close(err)
		return nil, err
	}
	return reservations, nil
}

// Delete は予約を削除します
func (c *AdmissionController) Delete(ctx context.Context, id string) error {
	ctx, seg := xray.BeginSubsegment(ctx, "AdmissionController.Delete")
	defer seg.Close(nil)

	current, err := c.repo.Get(ctx, id)
	if err != nil {
		return c.readError("get reservation", err, seg)
	}
	if err := c.repo.Delete(ctx, id); err != nil {
		return c.readError("delete reservation", err, seg)
	}

	c.cache.Invalidate(ctx, current.Date)
	log.Printf("Reservation %s deleted", id)
	return nil
}

// Availability は指定日の営業時間内の各受付枠の空き状況を返します
// 表示用の値であり、受付可否は CreateBooking の時点で改めて判定されます
func (c *AdmissionController) Availability(ctx context.Context, date time.Time) ([]model.SlotAvailability, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "AdmissionController.Availability")
	defer seg.Close(nil)

	date = model.DateOf(date)
	occupied, hit := c.cache.Get(ctx, date)
	if !hit {
		// 読み取り中に予約が変わった場合、この値はキャッシュされない
		version := c.cache.Version(ctx, date)
		occupied = make(map[int]int)
		for hour := c.hours.Open.Hour(); hour <= c.hours.Close.Hour(); hour++ {
			n, err := c.repo.Occupancy(ctx, model.SlotKey{Date: date, Hour: hour})
			if err != nil {
				err = storeError("read occupancy", err)
				seg.Close(err)
				return nil, err
			}
			occupied[hour] = n
		}
		c.cache.Set(ctx, date, version, occupied)
	}

	var slots []model.SlotAvailability
	for hour := c.hours.Open.Hour(); hour <= c.hours.Close.Hour(); hour++ {
		key := model.SlotKey{Date: date, Hour: hour}
		slots = append(slots, model.SlotAvailability{
			Slot:     key,
			Capacity: c.policy.CapacityOf(key),
			Occupied: occupied[hour],
		})
	}
	return slots, nil
}

// Dashboard は本日の予約数・承認待ちの件数・最近の予約を返します
func (c *AdmissionController) Dashboard(ctx context.Context) (*model.DashboardStats, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "AdmissionController.Dashboard")
	defer seg.Close(nil)

	stats, err := c.repo.Stats(ctx, model.DateOf(c.Now()), dashboardRecent)
	if err != nil {
		err = storeError("read dashboard", err)
		seg.Close(err)
		return nil, err
	}
	return stats, nil
}

func (c *AdmissionController) readError(op string, err error, seg *xray.Segment) error {
	if errors.Is(err, model.ErrNotFound) {
		return err
	}
	err = storeError(op, err)
	seg.Close(err)
	return err
}

// storeError は分類済みでないストアのエラーを ErrStoreUnavailable として返します
func storeError(op string, err error) error {
	if errors.Is(err, model.ErrStoreUnavailable) {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	return fmt.Errorf("failed to %s: %w: %v", op, model.ErrStoreUnavailable, err)
}
