package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/uma-arai/sbcntr-booking/internal/model"
)

// ReservationRepository は予約の永続化と受付枠の占有数を管理します
type ReservationRepository interface {
	// TryInsert は受付枠に空きがある場合のみ予約を登録します。空きがなければ model.ErrSlotFull を返します
	TryInsert(ctx context.Context, res *model.Reservation, slot model.SlotKey, capacity int) error
	Get(ctx context.Context, id string) (*model.Reservation, error)
	Query(ctx context.Context, c model.Criteria) ([]model.Reservation, error)
	// UpdateStatus は遷移を再検証したうえでステータスを更新し、取消の場合は受付枠を解放します
	UpdateStatus(ctx context.Context, id string, to model.Status, notes string) (*model.Reservation, error)
	Delete(ctx context.Context, id string) error
	Occupancy(ctx context.Context, slot model.SlotKey) (int, error)
	Stats(ctx context.Context, day time.Time, recent int) (*model.DashboardStats, error)
}

type ReservationRepositoryImpl struct {
	db    *DB
	retry RetryPolicy
	now   func() time.Time
}

func NewReservationRepository(db *DB, retry RetryPolicy) *ReservationRepositoryImpl {
	return &ReservationRepositoryImpl{db: db, retry: retry, now: time.Now}
}

const reservationColumns = `
	id,
	customer_name,
	email,
	phone,
	reservation_date,
	reservation_time,
	party_size,
	special_requests,
	admin_notes,
	status,
	created_at,
	updated_at`

// 占有数が上限未満の場合のみ1増やす。行が返らなければ満席
const claimSlotQuery = `
	INSERT INTO slot_occupancy (slot_date, slot_hour, occupied)
	VALUES ($1, $2, 1)
	ON CONFLICT (slot_date, slot_hour) DO UPDATE
		SET occupied = slot_occupancy.occupied + 1
		WHERE slot_occupancy.occupied < $3
	RETURNING occupied
`

const releaseSlotQuery = `
	UPDATE slot_occupancy
	SET occupied = occupied - 1
	WHERE slot_date = $1 AND slot_hour = $2 AND occupied > 0
`

// TryInsert は受付枠の確保と予約の登録を同一トランザクションで行います
func (r *ReservationRepositoryImpl) TryInsert(ctx context.Context, res *model.Reservation, slot model.SlotKey, capacity int) error {
	ctx, seg := xray.BeginSubsegment(ctx, "ReservationRepository.TryInsert")
	defer seg.Close(nil)

	if capacity <= 0 {
		return model.ErrSlotFull
	}

	id := uuid.NewString()
	now := r.now().UTC()

	query := `
		INSERT INTO reservations (` + reservationColumns + `
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11
		)
	`

	err := r.retry.Do(ctx, "TryInsert", func(ctx context.Context) error {
		return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
			var occupied int
			err := tx.QueryRowxContext(ctx, claimSlotQuery, model.FormatDate(slot.Date), slot.Hour, capacity).Scan(&occupied)
			if errors.Is(err, sql.ErrNoRows) {
				return model.ErrSlotFull
			}
			if err != nil {
				return fmt.Errorf("failed to claim slot %s: %w", slot, err)
			}

			_, err = tx.ExecContext(ctx, query,
				id,
				res.CustomerName,
				res.Email,
				res.Phone,
				model.FormatDate(res.Date),
				res.Time,
				res.PartySize,
				res.SpecialRequests,
				res.AdminNotes,
				string(model.StatusPending),
				now,
			)
			if err != nil {
				return fmt.Errorf("failed to insert reservation: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		if !errors.Is(err, model.ErrSlotFull) {
			seg.Close(err)
		}
		return err
	}

	res.ID = id
	res.Date = model.DateOf(res.Date)
	res.Status = model.StatusPending
	res.CreatedAt = now
	res.UpdatedAt = now
	return nil
}

// Get はIDで予約を取得します
func (r *ReservationRepositoryImpl) Get(ctx context.Context, id string) (*model.Reservation, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "ReservationRepository.Get")
	defer seg.Close(nil)

	if _, err := uuid.Parse(id); err != nil {
		return nil, model.ErrNotFound
	}

	var res model.Reservation
	err := r.db.GetContext(ctx, &res, `SELECT `+reservationColumns+` FROM reservations WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		seg.Close(err)
		return nil, fmt.Errorf("failed to get reservation %s: %w", id, err)
	}
	normalize(&res)
	return &res, nil
}

// Query は条件に一致する予約を取得します
func (r *ReservationRepositoryImpl) Query(ctx context.Context, c model.Criteria) ([]model.Reservation, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "ReservationRepository.Query")
	defer seg.Close(nil)

	if c.ID != "" {
		if _, err := uuid.Parse(c.ID); err != nil {
			return []model.Reservation{}, nil
		}
	}

	query, args := buildQuery(c)
	reservations := []model.Reservation{}
	if err := r.db.SelectContext(ctx, &reservations, query, args...); err != nil {
		seg.Close(err)
		return nil, fmt.Errorf("failed to query reservations: %w", err)
	}
	for i := range reservations {
		normalize(&reservations[i])
	}

	if err := seg.AddMetadata("count", len(reservations)); err != nil {
		log.Printf("Failed to add count metadata: %v", err)
	}
	return reservations, nil
}

func buildQuery(c model.Criteria) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if c.ID != "" {
		add("id = $%d", c.ID)
	}
	if c.Email != "" {
		add("email = $%d", c.Email)
	}
	if c.Status != "" {
		add("status = $%d", string(c.Status))
	}
	if c.Date != nil {
		add("reservation_date = $%d", model.FormatDate(*c.Date))
	}
	if c.StartsBefore != nil {
		// 予約日時はタイムゾーンを持たないため壁時計の時刻で比較する
		add("(reservation_date + reservation_time) < $%d", c.StartsBefore.Format("2006-01-02 15:04:05"))
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(reservationColumns)
	b.WriteString("\n\tFROM reservations")
	if len(conds) > 0 {
		b.WriteString("\n\tWHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}
	if c.BySchedule {
		b.WriteString("\n\tORDER BY reservation_date DESC, reservation_time DESC, created_at DESC")
	} else {
		b.WriteString("\n\tORDER BY created_at DESC, reservation_time DESC, id")
	}
	if c.Limit > 0 {
		args = append(args, c.Limit)
		fmt.Fprintf(&b, "\n\tLIMIT $%d", len(args))
	}
	return b.String(), args
}

// UpdateStatus は予約のステータスを更新します
func (r *ReservationRepositoryImpl) UpdateStatus(ctx context.Context, id string, to model.Status, notes string) (*model.Reservation, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "ReservationRepository.UpdateStatus")
	defer seg.Close(nil)

	if _, err := uuid.Parse(id); err != nil {
		return nil, model.ErrNotFound
	}

	query := `
		UPDATE reservations
		SET status = $2,
			admin_notes = CASE WHEN $3::text = '' THEN admin_notes ELSE $3::text END,
			updated_at = $4
		WHERE id = $1
		RETURNING ` + reservationColumns

	var updated model.Reservation
	err := r.retry.Do(ctx, "UpdateStatus", func(ctx context.Context) error {
		return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
			var current model.Reservation
			err := tx.GetContext(ctx, &current, `SELECT `+reservationColumns+` FROM reservations WHERE id = $1 FOR UPDATE`, id)
			if errors.Is(err, sql.ErrNoRows) {
				return model.ErrNotFound
			}
			if err != nil {
				return fmt.Errorf("failed to lock reservation %s: %w", id, err)
			}

			// 行ロック取得後に遷移を再検証する
			if err := model.Transition(current.Status, to); err != nil {
				return err
			}

			if err := tx.GetContext(ctx, &updated, query, id, string(to), notes, r.now().UTC()); err != nil {
				return fmt.Errorf("failed to update reservation status: %w", err)
			}

			if current.Status.Occupies() && !to.Occupies() {
				normalize(&current)
				if err := releaseSlot(ctx, tx, current.Slot()); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) && !errors.Is(err, model.ErrIllegalTransition) {
			seg.Close(err)
		}
		return nil, err
	}

	normalize(&updated)
	return &updated, nil
}

// Delete は予約を削除します。有効な予約の場合は受付枠を解放します
func (r *ReservationRepositoryImpl) Delete(ctx context.Context, id string) error {
	ctx, seg := xray.BeginSubsegment(ctx, "ReservationRepository.Delete")
	defer seg.Close(nil)

	if _, err := uuid.Parse(id); err != nil {
		return model.ErrNotFound
	}

	err := r.retry.Do(ctx, "Delete", func(ctx context.Context) error {
		return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
			var deleted model.Reservation
			err := tx.GetContext(ctx, &deleted, `DELETE FROM reservations WHERE id = $1 RETURNING `+reservationColumns, id)
			if errors.Is(err, sql.ErrNoRows) {
				return model.ErrNotFound
			}
			if err != nil {
				return fmt.Errorf("failed to delete reservation %s: %w", id, err)
			}
			if deleted.Status.Occupies() {
				normalize(&deleted)
				return releaseSlot(ctx, tx, deleted.Slot())
			}
			return nil
		})
	})
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		seg.Close(err)
	}
	return err
}

// Occupancy は受付枠の現在の占有数を返します
func (r *ReservationRepositoryImpl) Occupancy(ctx context.Context, slot model.SlotKey) (int, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "ReservationRepository.Occupancy")
	defer seg.Close(nil)

	var occupied int
	err := r.db.GetContext(ctx, &occupied,
		`SELECT occupied FROM slot_occupancy WHERE slot_date = $1 AND slot_hour = $2`,
		model.FormatDate(slot.Date), slot.Hour,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		seg.Close(err)
		return 0, fmt.Errorf("failed to read occupancy of %s: %w", slot, err)
	}
	return occupied, nil
}

// Stats は管理画面向けの集計を返します
func (r *ReservationRepositoryImpl) Stats(ctx context.Context, day time.Time, recent int) (*model.DashboardStats, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "ReservationRepository.Stats")
	defer seg.Close(nil)

	var counts struct {
		BookingsToday   int `db:"bookings_today"`
		PendingBookings int `db:"pending_bookings"`
	}
	err := r.db.GetContext(ctx, &counts, `
		SELECT
			COUNT(*) FILTER (WHERE reservation_date = $1) AS bookings_today,
			COUNT(*) FILTER (WHERE status = 'pending') AS pending_bookings
		FROM reservations
	`, model.FormatDate(day))
	if err != nil {
		seg.Close(err)
		return nil, fmt.Errorf("failed to count reservations: %w", err)
	}
	stats := &model.DashboardStats{
		BookingsToday:   counts.BookingsToday,
		PendingBookings: counts.PendingBookings,
	}

	stats.Recent, err = r.Query(ctx, model.Criteria{Limit: recent})
	if err != nil {
		seg.Close(err)
		return nil, err
	}
	return stats, nil
}

func releaseSlot(ctx context.Context, tx *sqlx.Tx, slot model.SlotKey) error {
	if _, err := tx.ExecContext(ctx, releaseSlotQuery, model.FormatDate(slot.Date), slot.Hour); err != nil {
		return fmt.Errorf("failed to release slot %s: %w", slot, err)
	}
	return nil
}

// DATE列はドライバによってタイムゾーン付きで返るため日付部分のみに揃える
func normalize(res *model.Reservation) {
	res.Date = model.DateOf(res.Date)
}
