package model

import (
	"database/sql/driver"
	"fmt"
	"math/big"
)

// BigInt wei级别金额类型，数据库中以十进制数字存储
// 金额永远不用浮点数，避免精度丢失
type BigInt struct {
	big.Int
}

// NewBigInt 从 *big.Int 创建 BigInt
func NewBigInt(x *big.Int) BigInt {
	var b BigInt
	if x != nil {
		b.Set(x)
	}
	return b
}

// NewBigIntFromUint64 从 uint64 创建 BigInt
func NewBigIntFromUint64(x uint64) BigInt {
	var b BigInt
	b.SetUint64(x)
	return b
}

// Value 实现 driver.Valuer
func (b BigInt) Value() (driver.Value, error) {
	return b.String(), nil
}

// Scan 实现 sql.Scanner
func (b *BigInt) Scan(value interface{}) error {
	if value == nil {
		b.SetInt64(0)
		return nil
	}

	var s string
	switch v := value.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	case int64:
		b.SetInt64(v)
		return nil
	default:
		return fmt.Errorf("cannot scan %T into BigInt", value)
	}

	if s == "" {
		b.SetInt64(0)
		return nil
	}
	if _, ok := b.SetString(s, 10); !ok {
		return fmt.Errorf("invalid numeric value %q", s)
	}
	return nil
}

// GormDataType gorm 列类型
func (BigInt) GormDataType() string {
	return "numeric(78,0)"
}

// MarshalJSON 序列化为十进制字符串，避免前端精度问题
func (b BigInt) MarshalJSON() ([]byte, error) {
	return []byte(`"` + b.String() + `"`), nil
}

// UnmarshalJSON 从十进制字符串反序列化
func (b *BigInt) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "null" || s == "" {
		b.SetInt64(0)
		return nil
	}
	if _, ok := b.SetString(s, 10); !ok {
		return fmt.Errorf("invalid numeric value %q", s)
	}
	return nil
}
