package model

import (
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"
)

// 各テキスト項目の最大長（文字数）
const (
	MaxCustomerNameLen    = 200
	MaxEmailLen           = 200
	MaxPhoneLen           = 20
	MaxSpecialRequestsLen = 1000
	MaxAdminNotesLen      = 1000
)

// Reservation は予約レコードです
type Reservation struct {
	ID              string    `json:"id" db:"id"`
	CustomerName    string    `json:"customer_name" db:"customer_name"`
	Email           string    `json:"email" db:"email"`
	Phone           string    `json:"phone" db:"phone"`
	Date            time.Time `json:"date" db:"reservation_date"`
	Time            TimeOfDay `json:"time" db:"reservation_time"`
	PartySize       int       `json:"party_size" db:"party_size"`
	SpecialRequests string    `json:"special_requests,omitempty" db:"special_requests"`
	AdminNotes      string    `json:"admin_notes,omitempty" db:"admin_notes"`
	Status          Status    `json:"status" db:"status"` // pending, confirmed, cancelled, completed
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// Slot は予約が属する受付枠を返します
func (r Reservation) Slot() SlotKey {
	return SlotKey{Date: DateOf(r.Date), Hour: r.Time.Hour()}
}

// StartsAt は予約開始日時を loc のタイムゾーンで返します
func (r Reservation) StartsAt(loc *time.Location) time.Time {
	return r.Time.On(r.Date, loc)
}

// BookingInput は顧客からの予約リクエストです
type BookingInput struct {
	CustomerName    string
	Email           string
	Phone           string
	Date            time.Time
	Time            TimeOfDay
	PartySize       int
	SpecialRequests string
}

// Normalize は前後の空白を取り除き、メールアドレスを表示名なしの形にした入力を返します
func (in BookingInput) Normalize() BookingInput {
	in.CustomerName = strings.TrimSpace(in.CustomerName)
	in.Email = strings.TrimSpace(in.Email)
	// 表示名付きの形式はアドレス部分のみ保存する
	if addr, err := mail.ParseAddress(in.Email); err == nil {
		in.Email = addr.Address
	}
	in.Phone = strings.TrimSpace(in.Phone)
	in.SpecialRequests = strings.TrimSpace(in.SpecialRequests)
	in.Date = DateOf(in.Date)
	return in
}

// Validate は必須項目・長さ・人数を検証します
// 日時が過去でないかの検証は現在時刻を知る呼び出し側で行います
func (in BookingInput) Validate() error {
	required := []struct {
		field string
		value string
		max   int
	}{
		{"customer_name", in.CustomerName, MaxCustomerNameLen},
		{"email", in.Email, MaxEmailLen},
		{"phone", in.Phone, MaxPhoneLen},
	}
	for _, r := range required {
		if r.value == "" {
			return &ValidationError{Field: r.field, Reason: "is required"}
		}
		if utf8.RuneCountInString(r.value) > r.max {
			return &ValidationError{Field: r.field, Reason: "is too long"}
		}
	}
	addr, err := mail.ParseAddress(in.Email)
	if err != nil {
		return &ValidationError{Field: "email", Reason: "is not a valid address"}
	}
	if addr.Address != in.Email {
		return &ValidationError{Field: "email", Reason: "must be a bare address"}
	}
	if utf8.RuneCountInString(in.SpecialRequests) > MaxSpecialRequestsLen {
		return &ValidationError{Field: "special_requests", Reason: "is too long"}
	}
	if in.PartySize <= 0 {
		return &ValidationError{Field: "party_size", Reason: "must be positive"}
	}
	if in.Date.IsZero() {
		return &ValidationError{Field: "date", Reason: "is required"}
	}
	if !in.Time.Valid() {
		return &ValidationError{Field: "time", Reason: "is not a valid time of day"}
	}
	return nil
}

// ToReservation は入力から受付前の予約レコードを作成します
func (in BookingInput) ToReservation() Reservation {
	return Reservation{
		CustomerName:    in.CustomerName,
		Email:           in.Email,
		Phone:           in.Phone,
		Date:            in.Date,
		Time:            in.Time,
		PartySize:       in.PartySize,
		SpecialRequests: in.SpecialRequests,
		Status:          StatusPending,
	}
}

// Criteria は予約検索の条件です。ゼロ値の項目は条件に含めません
type Criteria struct {
	ID     string
	Email  string
	Status Status
	Date   *time.Time

	// StartsBefore は予約開始日時（店舗のローカル時刻）がこれより前のものに絞り込みます
	StartsBefore *time.Time

	// BySchedule が true の場合は予約日・時刻の降順、false の場合は作成日時の降順で並べます
	BySchedule bool
	Limit      int
}

// ReservationEvent は予約ステータス変更時に発行されるイベントの構造体
type ReservationEvent struct {
	ReservationID string    `json:"reservation_id"`
	From          Status    `json:"from"`
	To            Status    `json:"to"`
	Date          string    `json:"date"`
	Time          string    `json:"time"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewReservationEvent はステータス変更後の予約からイベントを作成します
func NewReservationEvent(r Reservation, from Status) ReservationEvent {
	return ReservationEvent{
		ReservationID: r.ID,
		From:          from,
		To:            r.Status,
		Date:          FormatDate(r.Date),
		Time:          r.Time.String(),
		CreatedAt:     r.UpdatedAt,
	}
}

// DashboardStats は管理画面向けの集計です
type DashboardStats struct {
	BookingsToday   int           `json:"bookings_today"`
	PendingBookings int           `json:"pending_bookings"`
	Recent          []Reservation `json:"recent"`
}
