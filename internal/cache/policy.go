package cache

import (
	"context"
	"fmt"

	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/chain"
	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/logger"
	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/model"
)

// 缓存键命名

const GlobalStatsKey = "global:stats"

// ProjectKey 项目详情缓存键
func ProjectKey(onChainId uint64) string {
	return fmt.Sprintf("project:%d", onChainId)
}

// UserProfileKey 用户概要缓存键，地址统一小写和读方保持一致
func UserProfileKey(address string) string {
	return fmt.Sprintf("user:%s:profile", model.NormalizeAddress(address))
}

// UserTokensKey 用户徽章列表缓存键
func UserTokensKey(address string) string {
	return fmt.Sprintf("user:%s:tokens", model.NormalizeAddress(address))
}

// KeysFor 事件类型到需失效缓存键的静态映射
func KeysFor(event chain.Event) []string {
	switch e := event.(type) {
	case chain.DonationMade:
		return []string{ProjectKey(e.ProjectID), UserProfileKey(e.Donor), GlobalStatsKey}
	case chain.TokenMinted:
		return []string{UserTokensKey(e.Owner), UserProfileKey(e.Owner)}
	case chain.TokenConverted:
		return []string{UserTokensKey(e.Owner), UserProfileKey(e.Owner)}
	case chain.ProjectCreated:
		return []string{GlobalStatsKey}
	default:
		return nil
	}
}

// Invalidator 事件处理提交后执行缓存失效
type Invalidator struct {
	cache Cache
}

// NewInvalidator 创建失效执行器
func NewInvalidator(cache Cache) *Invalidator {
	return &Invalidator{cache: cache}
}

// Invalidate 删除事件关联的缓存键
// 必须在数据库事务提交之后调用，提交前删除会让读方用旧数据回填缓存。
// 删除失败只记日志，脏数据靠 TTL 过期
func (i *Invalidator) Invalidate(ctx context.Context, event chain.Event) {
	keys := KeysFor(event)
	if len(keys) == 0 {
		return
	}

	if err := i.cache.Delete(ctx, keys...); err != nil {
		logger.Warn("Cache invalidation failed for %s (tx %s): %v",
			event.EventKind(), event.EventRef().TxHash, err)
	}
}
