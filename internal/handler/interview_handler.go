package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/interviewcoach/internal/interview"
	"github.com/hitoshi/interviewcoach/internal/model"
)

// InterviewServiceInterface は面接ハンドラーが必要とするサービスインターフェース。
type InterviewServiceInterface interface {
	Start(ctx context.Context, userID string, p interview.StartParams) (*model.InterviewSession, error)
	Get(ctx context.Context, userID, id string) (*model.InterviewSession, error)
	List(ctx context.Context, userID, status string) ([]*model.InterviewSession, error)
	Delete(ctx context.Context, userID, id string) error
	Current(ctx context.Context, userID, id string) (*interview.CurrentView, error)
	Next(ctx context.Context, userID, id string) (*interview.CurrentView, error)
	Previous(ctx context.Context, userID, id string) (*interview.CurrentView, error)
	Goto(ctx context.Context, userID, id string, index int) (*interview.CurrentView, error)
	SubmitAnswer(ctx context.Context, userID, id, questionID, text string) (*model.Answer, error)
	SubmitAudioAnswer(ctx context.Context, userID, id, questionID string, audio io.Reader, filename string) (*model.Answer, error)
	Complete(ctx context.Context, userID, id string) (*model.SessionHistory, error)
	Tips(ctx context.Context, userID, id, questionID string) (*model.CoachingTips, error)
	Narration(ctx context.Context, userID, id, questionID string) ([]byte, error)
}

// InterviewHandler は面接セッションのHTTPハンドラー。
type InterviewHandler struct {
	service      InterviewServiceInterface
	audioMaxSize int64
}

// NewInterviewHandler はInterviewHandlerを生成する。audioMaxSizeは録音アップロードの上限バイト数。
func NewInterviewHandler(service InterviewServiceInterface, audioMaxSize int64) *InterviewHandler {
	return &InterviewHandler{service: service, audioMaxSize: audioMaxSize}
}

type startInterviewRequest struct {
	Role           string `json:"role"`
	JobDescription string `json:"job_description"`
	QuestionCount  int    `json:"question_count"`
	BlueprintID    string `json:"blueprint_id"`
}

type gotoRequest struct {
	Index *int `json:"index"`
}

type answerRequest struct {
	QuestionID string `json:"question_id"`
	Text       string `json:"text"`
}

// Start は面接セッションを開始する。
// POST /api/interviews
func (h *InterviewHandler) Start(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req startInterviewRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	session, err := h.service.Start(r.Context(), userID, interview.StartParams{
		Role:           req.Role,
		JobDescription: req.JobDescription,
		QuestionCount:  req.QuestionCount,
		BlueprintID:    req.BlueprintID,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSessionResponse(session))
}

// List は面接セッションの一覧を返す。?status=in_progress 等で絞り込める。
// GET /api/interviews
func (h *InterviewHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	sessions, err := h.service.List(r.Context(), userID, r.URL.Query().Get("status"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": toSessionSummaries(sessions)})
}

// Get は面接セッションを返す。
// GET /api/interviews/{id}
func (h *InterviewHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	session, err := h.service.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

// Delete は面接セッションを削除する。
// DELETE /api/interviews/{id}
func (h *InterviewHandler) Delete(w http.ResponseWriter, r *http.Request) {
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

// Current は現在の質問を返す。
// GET /api/interviews/{id}/current
func (h *InterviewHandler) Current(w http.ResponseWriter, r *http.Request) {
	h.navigate(w, r, h.service.Current)
}

// Next は次の質問に進む。
// POST /api/interviews/{id}/next
func (h *InterviewHandler) Next(w http.ResponseWriter, r *http.Request) {
	h.navigate(w, r, h.service.Next)
}

// Previous は前の質問に戻る。
// POST /api/interviews/{id}/previous
func (h *InterviewHandler) Previous(w http.ResponseWriter, r *http.Request) {
	h.navigate(w, r, h.service.Previous)
}

// Goto は指定した位置の質問に移動する。
// PUT /api/interviews/{id}/position
func (h *InterviewHandler) Goto(w http.ResponseWriter, r *http.Request) {
	var req gotoRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Index == nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("indexが指定されていません"))
		return
	}
	h.navigate(w, r, func(ctx context.Context, userID, id string) (*interview.CurrentView, error) {
		return h.service.Goto(ctx, userID, id, *req.Index)
	})
}

func (h *InterviewHandler) navigate(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, userID, id string) (*interview.CurrentView, error)) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	view, err := fn(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCurrentResponse(view))
}

// SubmitAnswer はテキストの回答を送信する。
// POST /api/interviews/{id}/answers
func (h *InterviewHandler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req answerRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	answer, err := h.service.SubmitAnswer(r.Context(), userID, chi.URLParam(r, "id"), req.QuestionID, req.Text)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

// SubmitAudioAnswer は録音した回答を送信する。
// multipart/form-dataで question_id と audio（ファイル）を受け取る。
// POST /api/interviews/{id}/answers/audio
func (h *InterviewHandler) SubmitAudioAnswer(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	// フォームの他フィールドの分だけ余裕を持たせる
	r.Body = http.MaxBytesReader(w, r.Body, h.audioMaxSize+64*1024)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeAPIErrorResponse(w, http.StatusRequestEntityTooLarge, model.NewAudioTooLargeError(h.audioMaxSize))
			return
		}
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidAudioError("フォームを解析できません"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("audio")
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidAudioError("audioファイルがありません"))
		return
	}
	defer file.Close()

	answer, err := h.service.SubmitAudioAnswer(r.Context(), userID, chi.URLParam(r, "id"),
		r.FormValue("question_id"), file, header.Filename)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

// Complete は面接を完了してスコアを確定する。
// POST /api/interviews/{id}/complete
func (h *InterviewHandler) Complete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	hist, err := h.service.Complete(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toHistoryResponse(hist, false))
}

// Tips は質問への回答のコツを返す。
// GET /api/interviews/{id}/questions/{qid}/tips
func (h *InterviewHandler) Tips(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	tips, err := h.service.Tips(r.Context(), userID, chi.URLParam(r, "id"), chi.URLParam(r, "qid"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tips)
}

// Narration は質問文の読み上げ音声（MP3）を返す。
// GET /api/interviews/{id}/questions/{qid}/narration
func (h *InterviewHandler) Narration(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	audio, err := h.service.Narration(r.Context(), userID, chi.URLParam(r, "id"), chi.URLParam(r, "qid"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(audio)))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	w.Write(audio)
}
