package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"gopherai-pdfqa/internal/model"
)

type QuestionAnswerRepository struct {
	db *gorm.DB
}

func NewQuestionAnswerRepository(db *gorm.DB) *QuestionAnswerRepository {
	return &QuestionAnswerRepository{db: db}
}

func (r *QuestionAnswerRepository) Create(ctx context.Context, qa *model.QuestionAnswer) error {
	if err := r.db.WithContext(ctx).Create(qa).Error; err != nil {
		return fmt.Errorf("create question answer failed: %w", err)
	}
	return nil
}

// ListByUserSince returns the user's rows created at or after since, newest first.
func (r *QuestionAnswerRepository) ListByUserSince(ctx context.Context, userID uint, since time.Time) ([]model.QuestionAnswer, error) {
	var rows []model.QuestionAnswer
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Order("created_at DESC, id DESC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list question answers failed: %w", err)
	}
	return rows, nil
}
