package model

import (
	"time"
)

// IndexerCheckpoint 索引器断点记录
// 记录某条事件流最后一个完整处理的区块号，重启后从下一个区块恢复
type IndexerCheckpoint struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UpdatedAt time.Time `json:"updated_at"`

	// 事件流名称（一条链一个合约一条流）
	Name string `json:"name" gorm:"uniqueIndex;not null;type:varchar(100)"`

	// 最后一个完整处理的区块号
	BlockNum uint64 `json:"block_num" gorm:"not null;default:0"`
}
