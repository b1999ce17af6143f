package model

import (
	"strings"
	"time"
)

// User 捐赠者派生记录
// token_count 和 total_donated 是从链上事件累计出来的非规范化字段，
// 对账时以底层 Donation/Token 记录的汇总为准
type User struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// 钱包地址，统一小写
	Address string `json:"address" gorm:"uniqueIndex;not null;type:varchar(42)"`

	// 未销毁徽章数量
	TokenCount int64 `json:"token_count" gorm:"not null;default:0"`

	// 累计捐赠金额（wei），只增不减
	TotalDonated BigInt `json:"total_donated" gorm:"type:numeric(78,0);default:0"`

	// 最后一次链上交易时间，冷却期计算用
	LastTransactionAt *time.Time `json:"last_transaction_at"`

	// 徽章合成后的锁定截止时间
	LockEndTime *time.Time `json:"lock_end_time"`
}

// NormalizeAddress 地址统一小写，作为 User 的唯一键
func NormalizeAddress(address string) string {
	return strings.ToLower(address)
}
