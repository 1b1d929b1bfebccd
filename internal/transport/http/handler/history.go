package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"gopherai-pdfqa/internal/logger"
	"gopherai-pdfqa/internal/model"
	"gopherai-pdfqa/internal/transport/http/middleware"
)

type HistoryService interface {
	Windows(ctx context.Context, userID uint) (*model.HistoryWindows, error)
}

type HistoryHandler struct {
	historyService HistoryService
}

func NewHistoryHandler(historyService HistoryService) *HistoryHandler {
	return &HistoryHandler{historyService: historyService}
}

// Index renders the question history page.
func (h *HistoryHandler) Index(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.Redirect(http.StatusFound, "/signin/")
		return
	}

	windows, err := h.historyService.Windows(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		logger.New("history-handler").Error("load history failed", "user_id", userID, "err", err)
		c.String(http.StatusInternalServerError, "An error occurred")
		return
	}

	c.HTML(http.StatusOK, "index.html", gin.H{
		"username":    c.GetString(middleware.ContextUsernameKey),
		"t_questions": windows.Today,
		"y_questions": windows.Yesterday,
		"s_questions": windows.LastWeek,
	})
}
