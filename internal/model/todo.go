package model

import (
	"cmp"
	"time"
)

// Priority はTodoの優先度を表す。値が小さいほど優先度が高い。
type Priority int

// 優先度の定義。DBには数値で保存される。
const (
	PriorityHigh Priority = iota
	PriorityMedium
	PriorityLow
)

// DefaultPriority は優先度未指定時に使用される値。
const DefaultPriority = PriorityMedium

var priorityNames = map[Priority]string{
	PriorityHigh:   "high",
	PriorityMedium: "medium",
	PriorityLow:    "low",
}

// String は優先度の名前（high / medium / low）を返す。
func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return "unknown"
}

// ParsePriority は優先度名をPriorityに変換する。
// 未知の名前の場合はfalseを返す。
func ParsePriority(name string) (Priority, bool) {
	for p, n := range priorityNames {
		if n == name {
			return p, true
		}
	}
	return 0, false
}

// Todo はユーザーが所有するタスクを表す。
type Todo struct {
	ID        string
	UserID    string
	Name      string
	Priority  Priority
	Deadline  string // YYYY-MM-DD。未設定の場合は空文字列
	Completed bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasDeadline は期限が設定されているかを返す。
func (t *Todo) HasDeadline() bool {
	return t.Deadline != ""
}

// TodoFilter は一覧取得時の絞り込み条件を表す。
type TodoFilter struct {
	Priority *Priority
}

// CompareTodos は一覧の表示順を定義する比較関数。
// 優先度の昇順、期限の昇順（期限なしは末尾）、作成日時の降順で並ぶ。
func CompareTodos(a, b *Todo) int {
	if c := cmp.Compare(a.Priority, b.Priority); c != 0 {
		return c
	}
	switch {
	case a.HasDeadline() && !b.HasDeadline():
		return -1
	case !a.HasDeadline() && b.HasDeadline():
		return 1
	}
	// YYYY-MM-DDは文字列比較で日付順になる
	if c := cmp.Compare(a.Deadline, b.Deadline); c != 0 {
		return c
	}
	return b.CreatedAt.Compare(a.CreatedAt)
}
