package privilege

import (
	"testing"
	"time"

	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/model"
	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/tier"
	"github.com/stretchr/testify/assert"
)

func TestIsInCooldown(t *testing.T) {
	now := time.Now()

	fourMinAgo := now.Add(-4 * time.Minute)
	assert.True(t, IsInCooldown(&model.User{LastTransactionAt: &fourMinAgo}, now))

	sixMinAgo := now.Add(-6 * time.Minute)
	assert.False(t, IsInCooldown(&model.User{LastTransactionAt: &sixMinAgo}, now))

	// 从未交易过的用户不在冷却期
	assert.False(t, IsInCooldown(&model.User{}, now))
	assert.False(t, IsInCooldown(nil, now))
}

func TestIsLocked(t *testing.T) {
	now := time.Now()

	future := now.Add(5 * time.Minute)
	assert.True(t, IsLocked(&model.User{LockEndTime: &future}, now))

	past := now.Add(-time.Minute)
	assert.False(t, IsLocked(&model.User{LockEndTime: &past}, now))

	assert.False(t, IsLocked(&model.User{}, now))
	assert.False(t, IsLocked(nil, now))
}

func TestHasPrivilege(t *testing.T) {
	goldRequired := Privilege{Name: "early_access", RequiredTier: tier.Gold}

	// 无徽章无特权
	assert.False(t, HasPrivilege(nil, goldRequired))
	assert.False(t, HasPrivilege([]uint64{}, goldRequired))

	// 最高档位不足
	assert.False(t, HasPrivilege([]uint64{1, 100}, goldRequired))

	// 刚好达标和超过
	assert.True(t, HasPrivilege([]uint64{500}, goldRequired))
	assert.True(t, HasPrivilege([]uint64{1, 1000}, goldRequired))
}
