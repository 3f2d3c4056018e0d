package model

import "testing"

func TestBlueprint_WeightOf(t *testing.T) {
	bp := &Blueprint{Competencies: []Competency{
		{Name: "communication", Weight: 0.6},
		{Name: "system_design", Weight: 0.4},
		{Name: "trivia", Weight: 0},
	}}

	tests := []struct {
		name   string
		bp     *Blueprint
		want   float64
		wantOK bool
	}{
		{"communication", bp, 0.6, true},
		{"trivia", bp, 0, true},
		{"unknown", bp, 0, false},
		{"communication", nil, 0, false},
	}
	for _, tt := range tests {
		got, ok := tt.bp.WeightOf(tt.name)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("WeightOf(%q) = %v, %v, want %v, %v", tt.name, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestUser_IsGuest(t *testing.T) {
	if !(&User{ID: GuestUserID}).IsGuest() {
		t.Error("ゲストユーザーがIsGuest() = false")
	}
	if (&User{ID: "someone"}).IsGuest() {
		t.Error("通常ユーザーがIsGuest() = true")
	}
	var u *User
	if u.IsGuest() {
		t.Error("nilユーザーがIsGuest() = true")
	}
}
