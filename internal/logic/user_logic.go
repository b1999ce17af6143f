package logic

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/cache"
	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/logger"
	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/model"
	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/privilege"
	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/store"
	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/tier"
)

// UserProfile 用户概要视图
// 时间戳字段要一起序列化，缓存命中后冷却/锁定布尔才能重算
type UserProfile struct {
	Address           string       `json:"address"`
	TokenCount        int64        `json:"token_count"`
	TotalDonated      model.BigInt `json:"total_donated"`
	HighestTier       string       `json:"highest_tier"`
	InCooldown        bool         `json:"in_cooldown"`
	Locked            bool         `json:"locked"`
	LastTransactionAt *time.Time   `json:"last_transaction_at,omitempty"`
	LockEndTime       *time.Time   `json:"lock_end_time,omitempty"`
}

// UserLogic 用户读路径业务逻辑
type UserLogic struct {
	store *store.Store
	cache cache.Cache
	ttl   time.Duration
}

// NewUserLogic 创建用户业务逻辑
func NewUserLogic(st *store.Store, c cache.Cache, ttl time.Duration) *UserLogic {
	return &UserLogic{store: st, cache: c, ttl: ttl}
}

// GetProfile 获取用户概要
// 最高档位从持有徽章实时计算，和铸造落库用的是同一张阈值表
func (u *UserLogic) GetProfile(ctx context.Context, address string) (*UserProfile, error) {
	address = model.NormalizeAddress(address)
	key := cache.UserProfileKey(address)

	if u.cache != nil {
		if data, err := u.cache.Get(ctx, key); err == nil {
			var profile UserProfile
			if err := json.Unmarshal(data, &profile); err == nil {
				// 冷却/锁定是时间相关的，不能缓存布尔结果，取出后重算
				u.refreshTimeFields(&profile)
				return &profile, nil
			}
		} else if !errors.Is(err, cache.ErrMiss) {
			logger.Warn("Cache read failed for %s: %v", key, err)
		}
	}

	user, err := u.store.GetUserByAddress(address)
	if err != nil {
		return nil, err
	}

	tokens, err := u.store.GetTokensByOwner(address)
	if err != nil {
		return nil, err
	}
	tokenIds := make([]uint64, len(tokens))
	for i, t := range tokens {
		tokenIds[i] = t.TokenID
	}

	now := time.Now()
	profile := &UserProfile{
		Address:           user.Address,
		TokenCount:        user.TokenCount,
		TotalDonated:      user.TotalDonated,
		HighestTier:       tier.Highest(tokenIds).String(),
		InCooldown:        privilege.IsInCooldown(user, now),
		Locked:            privilege.IsLocked(user, now),
		LastTransactionAt: user.LastTransactionAt,
		LockEndTime:       user.LockEndTime,
	}

	u.fill(ctx, key, profile)
	return profile, nil
}

// refreshTimeFields 重算缓存副本里的时间相关字段
func (u *UserLogic) refreshTimeFields(profile *UserProfile) {
	now := time.Now()
	profile.InCooldown = profile.LastTransactionAt != nil &&
		now.Before(profile.LastTransactionAt.Add(privilege.CooldownWindow))
	profile.Locked = profile.LockEndTime != nil && now.Before(*profile.LockEndTime)
}

// TokenView 徽章视图，附带链上等级对应的档位名
type TokenView struct {
	model.Token
	Tier string `json:"tier"`
}

// GetTokens 获取用户未销毁徽章列表
func (u *UserLogic) GetTokens(ctx context.Context, address string) ([]TokenView, error) {
	address = model.NormalizeAddress(address)
	key := cache.UserTokensKey(address)

	if u.cache != nil {
		if data, err := u.cache.Get(ctx, key); err == nil {
			var views []TokenView
			if err := json.Unmarshal(data, &views); err == nil {
				return views, nil
			}
		} else if !errors.Is(err, cache.ErrMiss) {
			logger.Warn("Cache read failed for %s: %v", key, err)
		}
	}

	tokens, err := u.store.GetTokensByOwner(address)
	if err != nil {
		return nil, err
	}

	views := make([]TokenView, len(tokens))
	for i, t := range tokens {
		views[i] = TokenView{Token: t, Tier: tier.FromLevel(t.Level).String()}
	}

	u.fill(ctx, key, views)
	return views, nil
}

// HasPrivilege 用户是否具备指定特权
func (u *UserLogic) HasPrivilege(address string, p privilege.Privilege) (bool, error) {
	tokens, err := u.store.GetTokensByOwner(address)
	if err != nil {
		return false, err
	}
	tokenIds := make([]uint64, len(tokens))
	for i, t := range tokens {
		tokenIds[i] = t.TokenID
	}
	return privilege.HasPrivilege(tokenIds, p), nil
}

// fill 回填缓存，失败只记日志
func (u *UserLogic) fill(ctx context.Context, key string, value interface{}) {
	if u.cache == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := u.cache.Set(ctx, key, data, u.ttl); err != nil {
		logger.Warn("Cache fill failed for %s: %v", key, err)
	}
}
