package model

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Uint64List tokenId 列表，数据库中以逗号分隔字符串存储
type Uint64List []uint64

// Value 实现 driver.Valuer
func (l Uint64List) Value() (driver.Value, error) {
	if len(l) == 0 {
		return "", nil
	}
	parts := make([]string, len(l))
	for i, v := range l {
		parts[i] = strconv.FormatUint(v, 10)
	}
	return strings.Join(parts, ","), nil
}

// Scan 实现 sql.Scanner
func (l *Uint64List) Scan(value interface{}) error {
	var s string
	switch v := value.(type) {
	case nil:
		*l = nil
		return nil
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("cannot scan %T into Uint64List", value)
	}

	if s == "" {
		*l = nil
		return nil
	}

	parts := strings.Split(s, ",")
	out := make(Uint64List, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseUint(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid token id %q: %w", p, err)
		}
		out = append(out, n)
	}
	*l = out
	return nil
}

// GormDataType gorm 列类型
func (Uint64List) GormDataType() string {
	return "text"
}

// TokenConversion 徽章合成审计记录，只追加
// tx_hash 上的唯一索引是合成事件的幂等键
type TokenConversion struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	TxHash string `json:"tx_hash" gorm:"uniqueIndex;not null;type:varchar(66)"`

	// 持有者地址，统一小写
	Owner string `json:"owner" gorm:"not null;type:varchar(42);index"`

	// 被销毁的 tokenId 列表
	BurnedTokenIDs Uint64List `json:"burned_token_ids" gorm:"type:text"`

	// 新铸造的 tokenId
	NewTokenID uint64 `json:"new_token_id" gorm:"not null"`

	// 合成前等级：取被销毁徽章中的最高等级
	FromLevel uint8 `json:"from_level" gorm:"not null;default:0"`
	ToLevel   uint8 `json:"to_level" gorm:"not null;default:0"`

	Timestamp time.Time `json:"timestamp" gorm:"not null"`
}
