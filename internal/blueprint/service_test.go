package blueprint

import (
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/interviewcoach/internal/coach"
	"github.com/hitoshi/interviewcoach/internal/model"
)

// mockBlueprintRepo はメモリ上のBlueprintRepository。
type mockBlueprintRepo struct {
	byID    map[string]*model.Blueprint
	upserts int
	findErr error
}

func newMockRepo() *mockBlueprintRepo {
	return &mockBlueprintRepo{byID: make(map[string]*model.Blueprint)}
}

func (m *mockBlueprintRepo) FindByID(_ context.Context, id string) (*model.Blueprint, error) {
	return m.byID[id], nil
}

func (m *mockBlueprintRepo) FindByRoleKey(_ context.Context, userID, roleKey string) (*model.Blueprint, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	for _, bp := range m.byID {
		if bp.UserID == userID && bp.RoleKey == roleKey {
			return bp, nil
		}
	}
	return nil, nil
}

func (m *mockBlueprintRepo) Upsert(_ context.Context, bp *model.Blueprint) error {
	m.upserts++
	for id, existing := range m.byID {
		if existing.UserID == bp.UserID && existing.RoleKey == bp.RoleKey {
			delete(m.byID, id)
			bp.ID = id
		}
	}
	m.byID[bp.ID] = bp
	return nil
}

func (m *mockBlueprintRepo) ListByUserID(_ context.Context, userID string) ([]*model.Blueprint, error) {
	var out []*model.Blueprint
	for _, bp := range m.byID {
		if bp.UserID == userID {
			out = append(out, bp)
		}
	}
	return out, nil
}

func (m *mockBlueprintRepo) DeleteByUserID(_ context.Context, userID string) error {
	for id, bp := range m.byID {
		if bp.UserID == userID {
			delete(m.byID, id)
		}
	}
	return nil
}

// mockGenerator は呼び出し回数を数えるGenerator。
type mockGenerator struct {
	calls int
	class coach.FailureClass
}

func (g *mockGenerator) Blueprint(_ context.Context, req coach.BlueprintRequest) ([]model.Competency, coach.FailureClass) {
	g.calls++
	return []model.Competency{
		{Name: "system_design", Weight: 0.6},
		{Name: "communication", Weight: 0.4},
	}, g.class
}

func TestRoleKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Backend Engineer", "backend engineer"},
		{"  backend   ENGINEER ", "backend engineer"},
		{"バックエンド エンジニア", "バックエンド エンジニア"},
	}
	for _, tt := range tests {
		if got := RoleKey(tt.in); got != tt.want {
			t.Errorf("RoleKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestGetOrGenerate_GeneratesOnceThenReuses(t *testing.T) {
	repo := newMockRepo()
	gen := &mockGenerator{}
	s := NewService(repo, gen, nil)
	ctx := context.Background()

	first, err := s.GetOrGenerate(ctx, "user-1", "Backend Engineer", "")
	if err != nil {
		t.Fatalf("GetOrGenerate: %v", err)
	}
	if first.IsFallback || first.RoleKey != "backend engineer" {
		t.Errorf("unexpected blueprint: %+v", first)
	}

	second, err := s.GetOrGenerate(ctx, "user-1", "backend  engineer", "")
	if err != nil {
		t.Fatalf("GetOrGenerate: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("second ID = %s, want %s", second.ID, first.ID)
	}
	if gen.calls != 1 {
		t.Errorf("generator calls = %d, want 1", gen.calls)
	}
}

func TestGetOrGenerate_RetriesFallbackBlueprint(t *testing.T) {
	repo := newMockRepo()
	gen := &mockGenerator{class: coach.FailureUnavailable}
	s := NewService(repo, gen, nil)
	ctx := context.Background()

	fallback, err := s.GetOrGenerate(ctx, "user-1", "SRE", "")
	if err != nil {
		t.Fatalf("GetOrGenerate: %v", err)
	}
	if !fallback.IsFallback {
		t.Fatal("expected fallback blueprint")
	}

	// AIが引き続き使えない場合は既存の行を返し、保存し直さない
	if _, err := s.GetOrGenerate(ctx, "user-1", "SRE", ""); err != nil {
		t.Fatalf("GetOrGenerate: %v", err)
	}
	if repo.upserts != 1 {
		t.Errorf("upserts = %d, want 1", repo.upserts)
	}

	gen.class = ""
	recovered, err := s.GetOrGenerate(ctx, "user-1", "SRE", "")
	if err != nil {
		t.Fatalf("GetOrGenerate: %v", err)
	}
	if recovered.IsFallback {
		t.Error("blueprint should be regenerated once AI is available")
	}
	if recovered.ID != fallback.ID {
		t.Errorf("upsert should keep the existing ID")
	}
	if gen.calls != 3 {
		t.Errorf("generator calls = %d, want 3", gen.calls)
	}
}

func TestGetOrGenerate_InvalidRole(t *testing.T) {
	s := NewService(newMockRepo(), &mockGenerator{}, nil)
	_, err := s.GetOrGenerate(context.Background(), "user-1", "   ", "")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidRole {
		t.Errorf("err = %v, want INVALID_ROLE", err)
	}
}

func TestGetOrGenerate_RepositoryError(t *testing.T) {
	repo := newMockRepo()
	repo.findErr = errors.New("db down")
	s := NewService(repo, &mockGenerator{}, nil)
	if _, err := s.GetOrGenerate(context.Background(), "user-1", "PM", ""); err == nil {
		t.Error("expected error")
	}
}

func TestGenerate_Replaces(t *testing.T) {
	repo := newMockRepo()
	gen := &mockGenerator{}
	s := NewService(repo, gen, nil)
	ctx := context.Background()

	first, _ := s.GetOrGenerate(ctx, "user-1", "PM", "")
	second, err := s.Generate(ctx, "user-1", "pm", "新規事業のPM")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("Generate should replace the existing blueprint")
	}
	if len(repo.byID) != 1 {
		t.Errorf("stored = %d, want 1", len(repo.byID))
	}
}

func TestGet_OtherUserIsNotFound(t *testing.T) {
	repo := newMockRepo()
	s := NewService(repo, &mockGenerator{}, nil)
	bp, _ := s.GetOrGenerate(context.Background(), "user-1", "PM", "")

	if _, err := s.Get(context.Background(), "user-1", bp.ID); err != nil {
		t.Fatalf("Get own: %v", err)
	}
	_, err := s.Get(context.Background(), "user-2", bp.ID)
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeBlueprintNotFound {
		t.Errorf("err = %v, want BLUEPRINT_NOT_FOUND", err)
	}
}
