package model

import (
	"time"
)

// Donation 捐赠记录，创建后不可变
// tx_hash 上的唯一索引是捐赠事件的幂等键：
// 同一事件重复投递时插入冲突即跳过，不会二次累加
type Donation struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	TxHash string `json:"tx_hash" gorm:"uniqueIndex;not null;type:varchar(66)"`

	// 链上项目ID
	ProjectID uint64 `json:"project_id" gorm:"not null;index"`

	// 捐赠者地址，统一小写
	Donor string `json:"donor" gorm:"not null;type:varchar(42);index"`

	// 捐赠金额（wei）
	Amount BigInt `json:"amount" gorm:"type:numeric(78,0);not null"`

	// 本次捐赠对应的徽章等级 0-3
	BadgeLevel uint8 `json:"badge_level" gorm:"not null;default:0"`

	BlockNum  uint64    `json:"block_num" gorm:"not null"`
	Timestamp time.Time `json:"timestamp" gorm:"not null"`
}
