package model

import (
	"fmt"
	"time"
)

// DefaultSlotCapacity は1時間枠あたりの予約受付数の既定値です
const DefaultSlotCapacity = 10

// SlotKey は受付枠（日付と時間帯）を識別します
type SlotKey struct {
	Date time.Time
	Hour int
}

func (k SlotKey) String() string {
	return fmt.Sprintf("%s@%02d", FormatDate(k.Date), k.Hour)
}

// SlotPolicy は予約時刻から受付枠と受付上限を決めます
type SlotPolicy struct {
	Capacity int
}

// KeyOf は日付と時刻が属する受付枠を返します
func (p SlotPolicy) KeyOf(date time.Time, t TimeOfDay) SlotKey {
	return SlotKey{Date: DateOf(date), Hour: t.Hour()}
}

// CapacityOf は受付枠の上限を返します（現状は全枠共通）
func (p SlotPolicy) CapacityOf(SlotKey) int {
	return p.Capacity
}

// SlotAvailability は受付枠の空き状況です
type SlotAvailability struct {
	Slot     SlotKey `json:"-"`
	Capacity int     `json:"capacity"`
	Occupied int     `json:"occupied"`
}

// Remaining は残りの受付可能数を返します
func (a SlotAvailability) Remaining() int {
	if a.Occupied >= a.Capacity {
		return 0
	}
	return a.Capacity - a.Occupied
}

// IsFull は受付枠が満杯かを返します
func (a SlotAvailability) IsFull() bool {
	return a.Remaining() == 0
}
