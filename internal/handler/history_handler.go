package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/interviewcoach/internal/history"
	"github.com/hitoshi/interviewcoach/internal/model"
)

// HistoryServiceInterface は履歴ハンドラーが必要とするサービスインターフェース。
type HistoryServiceInterface interface {
	List(ctx context.Context, userID, cursor string, limit int) (*history.Page, error)
	Get(ctx context.Context, userID, id string) (*model.SessionHistory, error)
	Delete(ctx context.Context, userID, id string) error
	Summary(ctx context.Context, userID string) (*model.HistorySummary, error)
}

// HistoryHandler は面接履歴のHTTPハンドラー。
type HistoryHandler struct {
	service HistoryServiceInterface
}

// NewHistoryHandler はHistoryHandlerを生成する。
func NewHistoryHandler(service HistoryServiceInterface) *HistoryHandler {
	return &HistoryHandler{service: service}
}

// List は履歴を新しい順に返す。
// GET /api/history?cursor=...&limit=20
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("limitは正の整数で指定してください"))
			return
		}
		limit = n
	}

	page, err := h.service.List(r.Context(), userID, r.URL.Query().Get("cursor"), limit)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toHistoryPageResponse(page))
}

// Summary は履歴の集計を返す。
// GET /api/history/summary
func (h *HistoryHandler) Summary(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	summary, err := h.service.Summary(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryResponse(summary))
}

// Get は履歴をスナップショット付きで返す。
// GET /api/history/{id}
func (h *HistoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	hist, err := h.service.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toHistoryResponse(hist, true))
}

// Delete は履歴を削除する。
// DELETE /api/history/{id}
func (h *HistoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
