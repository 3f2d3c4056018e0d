package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/interviewcoach/internal/model"
)

// mockBlueprintService はBlueprintServiceInterfaceのモック実装。
type mockBlueprintService struct {
	generateFn func(ctx context.Context, userID, role, jobDescription string) (*model.Blueprint, error)
	getFn      func(ctx context.Context, userID, id string) (*model.Blueprint, error)
	listFn     func(ctx context.Context, userID string) ([]*model.Blueprint, error)
}

func (m *mockBlueprintService) Generate(ctx context.Context, userID, role, jobDescription string) (*model.Blueprint, error) {
	return m.generateFn(ctx, userID, role, jobDescription)
}

func (m *mockBlueprintService) Get(ctx context.Context, userID, id string) (*model.Blueprint, error) {
	return m.getFn(ctx, userID, id)
}

func (m *mockBlueprintService) List(ctx context.Context, userID string) ([]*model.Blueprint, error) {
	return m.listFn(ctx, userID)
}

func TestBlueprintHandler_Generate(t *testing.T) {
	svc := &mockBlueprintService{
		generateFn: func(_ context.Context, _, role, jd string) (*model.Blueprint, error) {
			if role != "データエンジニア" || jd != "ETL基盤の開発" {
				t.Errorf("role=%q jd=%q", role, jd)
			}
			return &model.Blueprint{
				ID:   "bp-1",
				Role: role,
				Competencies: []model.Competency{
					{Name: "data_modeling", Weight: 0.6},
					{Name: "communication", Weight: 0.4},
				},
			}, nil
		},
	}
	h := NewBlueprintHandler(svc)

	body := `{"role":"データエンジニア","job_description":"ETL基盤の開発"}`
	req := withUserID(httptest.NewRequest(http.MethodPost, "/api/blueprints", strings.NewReader(body)), "user-1")
	w := httptest.NewRecorder()
	h.Generate(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d (body=%s)", w.Code, w.Body.String())
	}
	var resp blueprintResponse
	decodeBody(t, w, &resp)
	if resp.ID != "bp-1" || len(resp.Competencies) != 2 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestBlueprintHandler_List(t *testing.T) {
	svc := &mockBlueprintService{
		listFn: func(context.Context, string) ([]*model.Blueprint, error) {
			return []*model.Blueprint{{ID: "bp-1", Role: "PM"}, {ID: "bp-2", Role: "SRE", IsFallback: true}}, nil
		},
	}
	h := NewBlueprintHandler(svc)

	req := withUserID(httptest.NewRequest(http.MethodGet, "/api/blueprints", nil), "user-1")
	w := httptest.NewRecorder()
	h.List(w, req)

	var resp struct {
		Items []blueprintResponse `json:"items"`
	}
	decodeBody(t, w, &resp)
	if len(resp.Items) != 2 || !resp.Items[1].IsFallback {
		t.Errorf("items = %+v", resp.Items)
	}
}

func TestBlueprintHandler_Get_NotFound(t *testing.T) {
	svc := &mockBlueprintService{
		getFn: func(_ context.Context, _, id string) (*model.Blueprint, error) {
			return nil, model.NewBlueprintNotFoundError(id)
		},
	}
	h := NewBlueprintHandler(svc)

	req := withUserID(httptest.NewRequest(http.MethodGet, "/api/blueprints/x", nil), "user-1")
	req = withChiURLParams(req, "id", "x")
	w := httptest.NewRecorder()
	h.Get(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
