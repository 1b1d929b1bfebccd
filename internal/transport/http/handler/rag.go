package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"gopherai-pdfqa/internal/app"
	"gopherai-pdfqa/internal/logger"
	"gopherai-pdfqa/internal/transport/http/middleware"
	"gopherai-pdfqa/internal/transport/http/response"
)

// multipartOverhead leaves room for form boundaries and headers on top of the
// file itself.
const multipartOverhead = 1 << 20

type RAGService interface {
	Ingest(ctx context.Context, filename string, r io.Reader) (*app.IngestResult, error)
	Ask(ctx context.Context, input app.AskInput) (*app.AskResult, error)
}

type RAGHandler struct {
	ragService     RAGService
	maxUploadBytes int64
	log            *slog.Logger
}

type AskRequest struct {
	Msg   string `json:"msg"`
	Model string `json:"model"`
}

func NewRAGHandler(ragService RAGService, maxUploadBytes int64) *RAGHandler {
	return &RAGHandler{
		ragService:     ragService,
		maxUploadBytes: maxUploadBytes,
		log:            logger.New("rag-handler"),
	}
}

// Ask answers a question against the indexed documents.
func (h *RAGHandler) Ask(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.MsgUnauthorized)
		return
	}

	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.MsgInvalidJSON)
		return
	}

	result, err := h.ragService.Ask(c.Request.Context(), app.AskInput{
		UserID:   userID,
		Question: req.Msg,
		Model:    req.Model,
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrEmptyQuestion):
			response.Error(c, http.StatusBadRequest, app.ErrEmptyQuestion.Error())
		case errors.Is(err, app.ErrNoDocuments):
			response.Error(c, http.StatusNotFound, response.MsgNoDocuments)
		default:
			_ = c.Error(err)
			h.log.Error("ask failed", "user_id", userID, "err", err)
			response.Error(c, http.StatusInternalServerError, response.MsgInternal)
		}
		return
	}

	c.JSON(http.StatusOK, response.AskBody{
		Msg:      result.Question,
		Res:      result.Answer,
		Model:    result.Model,
		Degraded: result.Degraded,
	})
}

// UploadPDF indexes the PDF sent in the "pdf_file" form field.
func (h *RAGHandler) UploadPDF(c *gin.Context) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+multipartOverhead)
	}

	file, err := c.FormFile("pdf_file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.String(http.StatusBadRequest, "File too large")
			return
		}
		c.String(http.StatusBadRequest, response.MsgNoFile)
		return
	}
	if h.maxUploadBytes > 0 && file.Size > h.maxUploadBytes {
		c.String(http.StatusBadRequest, "File too large")
		return
	}

	f, err := file.Open()
	if err != nil {
		h.uploadFailed(c, file.Filename, err)
		return
	}
	defer f.Close()

	name := filepath.Base(file.Filename)
	if _, err := h.ragService.Ingest(c.Request.Context(), name, f); err != nil {
		if errors.Is(err, app.ErrNoFile) {
			c.String(http.StatusBadRequest, response.MsgNoFile)
			return
		}
		h.uploadFailed(c, name, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *RAGHandler) uploadFailed(c *gin.Context, filename string, err error) {
	_ = c.Error(err)
	h.log.Error("pdf processing failed", "file", filename, "err", err)
	response.Status(c, http.StatusInternalServerError, "error", response.MsgUploadFailed)
}
