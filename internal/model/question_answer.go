package model

import "time"

// QuestionAnswer is one answered query. Rows are append-only.
type QuestionAnswer struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index:idx_qa_user_created,priority:1" json:"user_id"`
	Question  string    `gorm:"type:text;not null" json:"question"`
	Answer    string    `gorm:"type:text;not null" json:"answer"`
	Backend   string    `gorm:"size:32" json:"backend"`
	CreatedAt time.Time `gorm:"index:idx_qa_user_created,priority:2" json:"created_at"`
}

func (QuestionAnswer) TableName() string {
	return "question_answers"
}
