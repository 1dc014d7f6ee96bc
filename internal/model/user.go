// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// GoogleIDはGoogleアカウントのsubjectで、ユーザーと1対1に対応する。
type User struct {
	ID        string
	GoogleID  string
	Email     string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}
