package model

import (
	"fmt"
	"strings"
)

// Status は予約のステータスです
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// Statuses は全ステータスを定義順に返します
func Statuses() []Status {
	return []Status{StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted}
}

// ParseStatus は文字列をステータスに変換します
// 定義済みの名前以外は受け付けません
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return st, nil
	default:
		return "", &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown value %q", s)}
	}
}

// isTerminal はこれ以上遷移できないステータスかを返します
func (s Status) isTerminal() bool {
	return len(transitions[s]) == 0
}

// Occupies は枠の占有数に数えるステータスかを返します
func (s Status) Occupies() bool {
	return s != StatusCancelled
}

var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
}

// Transition は from から to への遷移が許可されているかを判定します
// 許可されていない場合は *IllegalTransitionError を返します
func Transition(from, to Status) error {
	if from.isTerminal() {
		return &IllegalTransitionError{From: from, To: to}
	}
	for _, next := range transitions[from] {
		if next == to {
			return nil
		}
	}
	return &IllegalTransitionError{From: from, To: to}
}
