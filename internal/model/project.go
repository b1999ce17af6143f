package model

import (
	"time"
)

// Project 链上项目派生记录
type Project struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// 合约分配的项目ID
	OnChainID uint64 `json:"on_chain_id" gorm:"uniqueIndex;not null"`

	// 创建者地址，统一小写
	Creator string `json:"creator" gorm:"not null;type:varchar(42);index"`

	// 筹款目标（wei）
	FundingGoal BigInt `json:"funding_goal" gorm:"type:numeric(78,0);default:0"`

	// 累计筹款金额（wei），由捐赠事件累加，只增不减
	// 对账时以 SUM(donation.amount) 为准
	TotalRaised BigInt `json:"total_raised" gorm:"type:numeric(78,0);default:0"`

	// 截止时间，链上未提供时取处理时间+90天
	Deadline time.Time `json:"deadline" gorm:"not null"`

	IsActive bool `json:"is_active" gorm:"not null;default:true"`

	// 区块链信息
	TxHash   string `json:"tx_hash" gorm:"type:varchar(66)"`
	BlockNum uint64 `json:"block_num"`
}
