package logic

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/cache"
	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/logger"
	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/model"
	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/store"
	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/tier"
)

// LeaderboardEntry 排行榜条目
type LeaderboardEntry struct {
	Rank         int          `json:"rank"`
	Address      string       `json:"address"`
	TotalDonated model.BigInt `json:"total_donated"`
	HighestTier  string       `json:"highest_tier"`
}

// StatsLogic 统计读路径业务逻辑
type StatsLogic struct {
	store *store.Store
	cache cache.Cache
	ttl   time.Duration
}

// NewStatsLogic 创建统计业务逻辑
func NewStatsLogic(st *store.Store, c cache.Cache, ttl time.Duration) *StatsLogic {
	return &StatsLogic{store: st, cache: c, ttl: ttl}
}

// GetGlobalStats 获取全局统计
func (s *StatsLogic) GetGlobalStats(ctx context.Context) (*store.GlobalStats, error) {
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cache.GlobalStatsKey); err == nil {
			var stats store.GlobalStats
			if err := json.Unmarshal(data, &stats); err == nil {
				return &stats, nil
			}
		} else if !errors.Is(err, cache.ErrMiss) {
			logger.Warn("Cache read failed for %s: %v", cache.GlobalStatsKey, err)
		}
	}

	stats, err := s.store.GetGlobalStats()
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(stats); err == nil {
			if err := s.cache.Set(ctx, cache.GlobalStatsKey, data, s.ttl); err != nil {
				logger.Warn("Cache fill failed for %s: %v", cache.GlobalStatsKey, err)
			}
		}
	}
	return stats, nil
}

// GetLeaderboard 按捐赠总额取排行榜
// 每个用户的最高档位从持有徽章实时计算
func (s *StatsLogic) GetLeaderboard(limit int) ([]LeaderboardEntry, error) {
	users, err := s.store.Leaderboard(limit)
	if err != nil {
		return nil, err
	}

	entries := make([]LeaderboardEntry, 0, len(users))
	for i, user := range users {
		tokens, err := s.store.GetTokensByOwner(user.Address)
		if err != nil {
			return nil, err
		}
		tokenIds := make([]uint64, len(tokens))
		for j, t := range tokens {
			tokenIds[j] = t.TokenID
		}

		entries = append(entries, LeaderboardEntry{
			Rank:         i + 1,
			Address:      user.Address,
			TotalDonated: user.TotalDonated,
			HighestTier:  tier.Highest(tokenIds).String(),
		})
	}
	return entries, nil
}
