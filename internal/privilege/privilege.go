package privilege

import (
	"time"

	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/model"
	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/tier"
)

const (
	// CooldownWindow 交易后的冷却窗口
	CooldownWindow = 5 * time.Minute

	// LockDuration 徽章合成后的锁定窗口
	LockDuration = 10 * time.Minute
)

// Privilege 特权定义，档位达标即可用
type Privilege struct {
	Name         string
	RequiredTier tier.Tier
}

// IsInCooldown 用户是否处于冷却期
// 这里只计算布尔结果，是否拦截由调用方决定
func IsInCooldown(user *model.User, now time.Time) bool {
	if user == nil || user.LastTransactionAt == nil {
		return false
	}
	return now.Before(user.LastTransactionAt.Add(CooldownWindow))
}

// IsLocked 用户是否处于合成锁定期
func IsLocked(user *model.User, now time.Time) bool {
	if user == nil || user.LockEndTime == nil {
		return false
	}
	return now.Before(*user.LockEndTime)
}

// HasPrivilege 持有徽章的最高档位达到要求才有特权，无徽章无特权
func HasPrivilege(tokenIDs []uint64, p Privilege) bool {
	highest := tier.Highest(tokenIDs)
	if highest == tier.None {
		return false
	}
	return highest >= p.RequiredTier
}
