package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/interviewcoach/internal/model"
)

// BlueprintServiceInterface はブループリントハンドラーが必要とするサービスインターフェース。
type BlueprintServiceInterface interface {
	Generate(ctx context.Context, userID, role, jobDescription string) (*model.Blueprint, error)
	Get(ctx context.Context, userID, id string) (*model.Blueprint, error)
	List(ctx context.Context, userID string) ([]*model.Blueprint, error)
}

// BlueprintHandler はブループリントのHTTPハンドラー。
type BlueprintHandler struct {
	service BlueprintServiceInterface
}

// NewBlueprintHandler はBlueprintHandlerを生成する。
func NewBlueprintHandler(service BlueprintServiceInterface) *BlueprintHandler {
	return &BlueprintHandler{service: service}
}

type generateBlueprintRequest struct {
	Role           string `json:"role"`
	JobDescription string `json:"job_description"`
}

// Generate は職種のブループリントを生成し、既存のものを置き換える。
// POST /api/blueprints
func (h *BlueprintHandler) Generate(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req generateBlueprintRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	bp, err := h.service.Generate(r.Context(), userID, req.Role, req.JobDescription)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBlueprintResponse(bp))
}

// List はブループリントの一覧を返す。
// GET /api/blueprints
func (h *BlueprintHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	bps, err := h.service.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	items := make([]blueprintResponse, 0, len(bps))
	for _, bp := range bps {
		items = append(items, toBlueprintResponse(bp))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// Get はブループリントを返す。
// GET /api/blueprints/{id}
func (h *BlueprintHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	bp, err := h.service.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBlueprintResponse(bp))
}
