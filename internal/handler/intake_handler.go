package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/hitoshi/interviewcoach/internal/model"
)

// IntakeServiceInterface は求人情報取り込みハンドラーが必要とするサービスインターフェース。
type IntakeServiceInterface interface {
	ImportURL(ctx context.Context, rawURL string) (*model.JobDescription, error)
	ImportPDF(r io.Reader, filename string) (*model.JobDescription, error)
}

// IntakeHandler は求人情報取り込みのHTTPハンドラー。
type IntakeHandler struct {
	service       IntakeServiceInterface
	uploadMaxSize int64
}

// NewIntakeHandler はIntakeHandlerを生成する。uploadMaxSizeはPDFアップロードの上限バイト数。
func NewIntakeHandler(service IntakeServiceInterface, uploadMaxSize int64) *IntakeHandler {
	return &IntakeHandler{service: service, uploadMaxSize: uploadMaxSize}
}

type importRequest struct {
	URL string `json:"url"`
}

// Import はURLから求人情報を取り込む。
// POST /api/job-descriptions/import
func (h *IntakeHandler) Import(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUserID(w, r); !ok {
		return
	}
	var req importRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	jd, err := h.service.ImportURL(r.Context(), req.URL)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobDescriptionResponse(jd))
}

// Upload はアップロードされたPDFから求人情報を取り込む。
// multipart/form-dataの file フィールドで受け取る。
// POST /api/job-descriptions/upload
func (h *IntakeHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUserID(w, r); !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.uploadMaxSize+64*1024)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeAPIErrorResponse(w, http.StatusRequestEntityTooLarge,
				model.NewImportFailedError("ファイルが大きすぎます"))
			return
		}
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("フォームを解析できません"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("fileがありません"))
		return
	}
	defer file.Close()

	jd, err := h.service.ImportPDF(file, header.Filename)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobDescriptionResponse(jd))
}
