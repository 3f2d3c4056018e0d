// Package model はドメインモデルを定義する。
package model

import "time"

// GuestUserID はローカルモードで全操作を紐付ける固定ユーザーIDである。
const GuestUserID = "00000000-0000-0000-0000-000000000001"

// User はサービス利用ユーザーを表す。
type User struct {
	ID        string
	Email     string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsGuest はローカルモードのゲストユーザーかを返す。
func (u *User) IsGuest() bool {
	return u != nil && u.ID == GuestUserID
}

// Identity は外部IdPとの紐付け情報を表す。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// Session はユーザーのログインセッションを表す。
// 面接セッション（InterviewSession）とは別物である。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
