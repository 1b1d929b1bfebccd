package app

import (
	"context"
	"log/slog"
	"time"

	"gopherai-pdfqa/internal/logger"
	"gopherai-pdfqa/internal/model"
)

type HistoryReader interface {
	ListByUserSince(ctx context.Context, userID uint, since time.Time) ([]model.QuestionAnswer, error)
}

type HistoryWriter interface {
	Create(ctx context.Context, qa *model.QuestionAnswer) error
}

type HistoryCache interface {
	GetWindows(ctx context.Context, userID uint, day string) (*model.HistoryWindows, bool, error)
	SetWindows(ctx context.Context, userID uint, windows *model.HistoryWindows) error
	IsDirty(ctx context.Context, userID uint) (bool, error)
}

// SyncRecorder writes history rows straight to the database.
type SyncRecorder struct {
	repo HistoryWriter
}

func NewSyncRecorder(repo HistoryWriter) *SyncRecorder {
	return &SyncRecorder{repo: repo}
}

func (r *SyncRecorder) Record(ctx context.Context, qa *model.QuestionAnswer) error {
	return r.repo.Create(ctx, qa)
}

type HistoryService struct {
	repo  HistoryReader
	cache HistoryCache
	loc   *time.Location
	now   func() time.Time
	log   *slog.Logger
}

func NewHistoryService(repo HistoryReader, cache HistoryCache, loc *time.Location) *HistoryService {
	if loc == nil {
		loc = time.Local
	}
	return &HistoryService{
		repo:  repo,
		cache: cache,
		loc:   loc,
		now:   time.Now,
		log:   logger.New("history"),
	}
}

// Windows returns the user's rows for today, yesterday and the last seven
// days, each newest first. Served from cache unless a write is pending.
func (s *HistoryService) Windows(ctx context.Context, userID uint) (*model.HistoryWindows, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	now := s.now().In(s.loc)
	day := now.Format("2006-01-02")

	if s.cache != nil {
		dirty, err := s.cache.IsDirty(ctx, userID)
		if err == nil && !dirty {
			if cached, hit, cacheErr := s.cache.GetWindows(ctx, userID, day); cacheErr == nil && hit {
				return cached, nil
			} else if cacheErr != nil {
				s.log.Warn("read history cache failed", "user_id", userID, "err", cacheErr)
			}
		}
	}

	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	weekStart := todayStart.AddDate(0, 0, -7)
	rows, err := s.repo.ListByUserSince(ctx, userID, weekStart)
	if err != nil {
		return nil, err
	}
	windows := splitWindows(rows, now, todayStart)
	windows.Day = day

	if s.cache != nil {
		if dirty, err := s.cache.IsDirty(ctx, userID); err == nil && !dirty {
			if err := s.cache.SetWindows(ctx, userID, windows); err != nil {
				s.log.Warn("write history cache failed", "user_id", userID, "err", err)
			}
		}
	}
	return windows, nil
}

// splitWindows classifies rows (newest first) into the three overlapping
// windows: today [todayStart, now], yesterday [todayStart-1d, todayStart),
// last week [todayStart-7d, now].
func splitWindows(rows []model.QuestionAnswer, now, todayStart time.Time) *model.HistoryWindows {
	yesterdayStart := todayStart.AddDate(0, 0, -1)
	weekStart := todayStart.AddDate(0, 0, -7)

	w := &model.HistoryWindows{
		Today:     []model.QuestionAnswer{},
		Yesterday: []model.QuestionAnswer{},
		LastWeek:  []model.QuestionAnswer{},
	}
	for _, row := range rows {
		at := row.CreatedAt
		if at.After(now) || at.Before(weekStart) {
			continue
		}
		w.LastWeek = append(w.LastWeek, row)
		switch {
		case !at.Before(todayStart):
			w.Today = append(w.Today, row)
		case !at.Before(yesterdayStart):
			w.Yesterday = append(w.Yesterday, row)
		}
	}
	return w
}
