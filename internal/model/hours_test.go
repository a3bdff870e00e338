package model

import (
	"errors"
	"testing"
	"time"
)

func TestOperatingHours_Validate(t *testing.T) {
	hours := DefaultOperatingHours()

	tests := []struct {
		name    string
		time    TimeOfDay
		wantErr bool
	}{
		{name: "開店時刻ちょうど", time: NewTimeOfDay(10, 0)},
		{name: "閉店時刻ちょうど", time: NewTimeOfDay(22, 0)},
		{name: "営業時間内", time: NewTimeOfDay(12, 30)},
		{name: "開店1分前", time: NewTimeOfDay(9, 59), wantErr: true},
		{name: "閉店1分後", time: NewTimeOfDay(22, 1), wantErr: true},
		{name: "深夜", time: NewTimeOfDay(0, 0), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := hours.Validate(tt.time)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate(%s) error = %v, wantErr %v", tt.time, err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrInvalidTime) {
				t.Errorf("Validate(%s) error should match ErrInvalidTime", tt.time)
			}
		})
	}
}

func TestSlotPolicy(t *testing.T) {
	p := SlotPolicy{Capacity: 5}
	date := time.Date(2025, 12, 1, 15, 4, 5, 0, time.UTC)

	a := p.KeyOf(date, NewTimeOfDay(12, 0))
	b := p.KeyOf(date, NewTimeOfDay(12, 59))
	c := p.KeyOf(date, NewTimeOfDay(13, 0))

	if a != b {
		t.Errorf("12:00 and 12:59 should share a slot: %v vs %v", a, b)
	}
	if a == c {
		t.Errorf("12:00 and 13:00 should be different slots")
	}
	if p.CapacityOf(a) != 5 {
		t.Errorf("CapacityOf() = %d, want 5", p.CapacityOf(a))
	}
}

func TestSlotAvailability(t *testing.T) {
	tests := []struct {
		capacity, occupied, remaining int
		full                          bool
	}{
		{capacity: 10, occupied: 0, remaining: 10},
		{capacity: 10, occupied: 9, remaining: 1},
		{capacity: 10, occupied: 10, remaining: 0, full: true},
		{capacity: 1, occupied: 3, remaining: 0, full: true},
	}
	for _, tt := range tests {
		a := SlotAvailability{Capacity: tt.capacity, Occupied: tt.occupied}
		if a.Remaining() != tt.remaining || a.IsFull() != tt.full {
			t.Errorf("%+v: Remaining() = %d, IsFull() = %v", a, a.Remaining(), a.IsFull())
		}
	}
}

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		in      string
		want    TimeOfDay
		wantErr bool
	}{
		{in: "10:00", want: NewTimeOfDay(10, 0)},
		{in: "22:00:00", want: NewTimeOfDay(22, 0)},
		{in: " 09:59 ", want: NewTimeOfDay(9, 59)},
		{in: "12:30:45", want: NewTimeOfDay(12, 30)},
		{in: "25:00", wantErr: true},
		{in: "noon", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseTimeOfDay(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseTimeOfDay(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseTimeOfDay(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestTimeOfDay_ScanAndValue(t *testing.T) {
	var tod TimeOfDay
	if err := tod.Scan(time.Date(0, 1, 1, 18, 15, 0, 0, time.UTC)); err != nil || tod != NewTimeOfDay(18, 15) {
		t.Errorf("Scan(time.Time) = %v, %v", tod, err)
	}
	if err := tod.Scan([]byte("07:05:00")); err != nil || tod != NewTimeOfDay(7, 5) {
		t.Errorf("Scan([]byte) = %v, %v", tod, err)
	}
	if err := tod.Scan(nil); err == nil {
		t.Error("Scan(nil) should fail")
	}

	v, err := NewTimeOfDay(9, 5).Value()
	if err != nil || v != "09:05:00" {
		t.Errorf("Value() = %v, %v", v, err)
	}
}

func TestTimeOfDay_On(t *testing.T) {
	loc := time.FixedZone("ICT", 7*60*60)
	got := NewTimeOfDay(12, 30).On(time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), loc)
	want := time.Date(2025, 12, 1, 12, 30, 0, 0, loc)
	if !got.Equal(want) {
		t.Errorf("On() = %v, want %v", got, want)
	}
}
