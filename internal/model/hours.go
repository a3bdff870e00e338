package model

// OperatingHours は予約を受け付ける営業時間です（開始・終了とも含む）
type OperatingHours struct {
	Open  TimeOfDay
	Close TimeOfDay
}

// DefaultOperatingHours は 10:00〜22:00 を返します
func DefaultOperatingHours() OperatingHours {
	return OperatingHours{Open: NewTimeOfDay(10, 0), Close: NewTimeOfDay(22, 0)}
}

// Validate は時刻が営業時間内かを判定します
func (h OperatingHours) Validate(t TimeOfDay) error {
	if t < h.Open || t > h.Close {
		return &InvalidTimeError{Requested: t, Open: h.Open, Close: h.Close}
	}
	return nil
}
