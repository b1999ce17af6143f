package model

import (
	"time"
)

// Token 徽章NFT派生记录
// is_burned 只允许 false→true 单向转换
type Token struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// 链上 tokenId，幂等键
	TokenID uint64 `json:"token_id" gorm:"uniqueIndex;not null"`

	// 持有者地址，统一小写
	Owner string `json:"owner" gorm:"not null;type:varchar(42);index"`

	// 徽章等级 0-3
	Level uint8 `json:"level" gorm:"not null;default:0"`

	// 铸造时对应的捐赠金额（wei）
	DonationAmount BigInt `json:"donation_amount" gorm:"type:numeric(78,0);default:0"`

	// 元数据引用（URI）
	MetadataURI string `json:"metadata_uri" gorm:"type:text"`

	MintedAt       time.Time  `json:"minted_at"`
	LastTransferAt *time.Time `json:"last_transfer_at"`

	IsBurned bool `json:"is_burned" gorm:"not null;default:false;index"`
}
