package reputation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
	leaderboardCacheTTL     = 30 * time.Second
	leaderboardKeyPrefix    = "reputation:leaderboard"
)

func leaderboardKey(limit int) string {
	return fmt.Sprintf("%s:top:%d", leaderboardKeyPrefix, limit)
}

// Leaderboard returns accounts ordered by total points descending, ties
// broken by rank level. Results are served from a short-lived redis cache
// when available; the database stays the source of truth.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]*Account, error) {
	if limit <= 0 {
		limit = defaultLeaderboardLimit
	}
	if limit > maxLeaderboardLimit {
		limit = maxLeaderboardLimit
	}

	if cached, ok := s.cachedLeaderboard(ctx, limit); ok {
		return cached, nil
	}

	var accounts []*Account
	err := s.db.WithContext(ctx).
		Model(&Account{}).
		Order("total_points DESC").
		Order("rank_level DESC").
		Limit(limit).
		Find(&accounts).Error
	if err != nil {
		return nil, err
	}

	s.storeLeaderboard(ctx, limit, accounts)

	return accounts, nil
}

// Position is 1 plus the number of accounts with strictly greater totals.
// Users tied on points share nothing; equal scores above do not promote.
func (s *Service) Position(ctx context.Context, userID string) (int64, error) {
	account, err := s.Account(ctx, userID)
	if err != nil {
		return 0, err
	}
	if account == nil {
		return 0, nil
	}

	var greater int64
	err = s.db.WithContext(ctx).
		Model(&Account{}).
		Where("total_points > ?", account.TotalPoints).
		Count(&greater).Error
	if err != nil {
		return 0, err
	}

	return greater + 1, nil
}

func (s *Service) cachedLeaderboard(ctx context.Context, limit int) ([]*Account, bool) {
	if s.rdb == nil {
		return nil, false
	}

	raw, err := s.rdb.Get(ctx, leaderboardKey(limit)).Bytes()
	if err != nil {
		return nil, false
	}

	var accounts []*Account
	if err := json.Unmarshal(raw, &accounts); err != nil {
		zap.L().Warn("discarding malformed leaderboard cache", zap.Error(err))
		return nil, false
	}

	return accounts, true
}

func (s *Service) storeLeaderboard(ctx context.Context, limit int, accounts []*Account) {
	if s.rdb == nil {
		return
	}

	raw, err := json.Marshal(accounts)
	if err != nil {
		return
	}

	if err := s.rdb.Set(ctx, leaderboardKey(limit), raw, leaderboardCacheTTL).Err(); err != nil {
		zap.L().Warn("failed to cache leaderboard", zap.Error(err))
	}
}

// invalidateLeaderboard drops cached pages after an award so reads do not
// serve stale standings for longer than one request.
func (s *Service) invalidateLeaderboard(ctx context.Context) {
	if s.rdb == nil {
		return
	}

	iter := s.rdb.Scan(ctx, 0, leaderboardKeyPrefix+":*", 0).Iterator()
	for iter.Next(ctx) {
		if err := s.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			zap.L().Warn("failed to invalidate leaderboard cache", zap.Error(err))
			return
		}
	}
	if err := iter.Err(); err != nil {
		zap.L().Warn("failed to scan leaderboard cache keys", zap.Error(err))
	}
}
