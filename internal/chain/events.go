package chain

import (
	"math/big"
	"time"
)

// Kind 事件类型
type Kind string

const (
	KindDonationMade   Kind = "DonationMade"
	KindTokenMinted    Kind = "TokenMinted"
	KindTokenConverted Kind = "TokenConverted"
	KindProjectCreated Kind = "ProjectCreated"
)

// Ref 事件在链上的定位信息，所有事件共有
type Ref struct {
	TxHash      string
	BlockNumber uint64
	LogIndex    uint
	Timestamp   time.Time
}

// EventRef 实现 Event 接口
func (r Ref) EventRef() Ref {
	return r
}

// Event 合约事件的类型化表示
// 投递语义为至少一次：订阅重启或链重组时同一事件可能重复出现，
// 去重靠存储层的幂等键而不是这里
type Event interface {
	EventKind() Kind
	EventRef() Ref
}

// DonationMade 捐赠事件
type DonationMade struct {
	Ref
	ProjectID  uint64
	Donor      string
	Amount     *big.Int
	BadgeLevel uint8
}

func (DonationMade) EventKind() Kind { return KindDonationMade }

// TokenMinted 徽章铸造事件
type TokenMinted struct {
	Ref
	Owner          string
	TokenID        uint64
	Level          uint8
	DonationAmount *big.Int
	MetadataURI    string
}

func (TokenMinted) EventKind() Kind { return KindTokenMinted }

// TokenConverted 徽章合成事件
type TokenConverted struct {
	Ref
	Owner          string
	BurnedTokenIDs []uint64
	NewTokenID     uint64
	NewLevel       uint8
}

func (TokenConverted) EventKind() Kind { return KindTokenConverted }

// ProjectCreated 项目创建事件
type ProjectCreated struct {
	Ref
	ProjectID   uint64
	Creator     string
	FundingGoal *big.Int
	// 链上截止时间，零值表示链上未提供
	Deadline time.Time
}

func (ProjectCreated) EventKind() Kind { return KindProjectCreated }

// Batch 一个区块范围内按顺序排列的事件
// 订阅以批为单位推进，消费方在批边界持久化断点
type Batch struct {
	FromBlock uint64
	ToBlock   uint64
	Events    []Event
}
