package lead

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/leadman/internal/model"
)

// ランキングの集計期間
const (
	PeriodCurrentMonth = "current_month"
	PeriodLastMonth    = "last_month"
	PeriodAllTime      = "all_time"
)

// leaderboardLimit はランキングに含める最大ユーザー数。
const leaderboardLimit = 50

// Leaderboard はperiodの期間に登録したリード件数の多い順にユーザーを返す。
// periodが空の場合は当月（UTC）を集計する。
func (s *Service) Leaderboard(ctx context.Context, period string) ([]model.LeaderboardEntry, error) {
	from, to, err := PeriodRange(period, s.clock.Now())
	if err != nil {
		return nil, err
	}

	entries, err := s.leads.Leaderboard(ctx, from, to, leaderboardLimit)
	if err != nil {
		return nil, fmt.Errorf("ランキングの取得に失敗しました: %w", err)
	}
	if entries == nil {
		entries = []model.LeaderboardEntry{}
	}
	return entries, nil
}

// PeriodRange は集計期間[from, to)を返す。toのゼロ値は上限なしを表す。
func PeriodRange(period string, now time.Time) (time.Time, time.Time, error) {
	y, m, _ := now.UTC().Date()
	monthStart := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)

	switch period {
	case "", PeriodCurrentMonth:
		return monthStart, time.Time{}, nil
	case PeriodLastMonth:
		return monthStart.AddDate(0, -1, 0), monthStart, nil
	case PeriodAllTime:
		return time.Time{}, time.Time{}, nil
	default:
		return time.Time{}, time.Time{}, model.NewValidationError("periodは current_month, last_month, all_time のいずれかを指定してください")
	}
}
