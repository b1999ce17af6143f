package tier

// Tier 徽章档位，按数值比较大小
type Tier int

const (
	None Tier = iota
	Bronze
	Silver
	Gold
	Legendary
)

// tokenId 档位阈值
// 写入路径（铸造时落库）和读取路径（排行榜实时计算）共用这一份表，
// 避免两边口径漂移
const (
	legendaryThreshold = 1000
	goldThreshold      = 500
	silverThreshold    = 100
)

func (t Tier) String() string {
	switch t {
	case Bronze:
		return "BRONZE"
	case Silver:
		return "SILVER"
	case Gold:
		return "GOLD"
	case Legendary:
		return "LEGENDARY"
	default:
		return "NONE"
	}
}

// ForTokenID 根据 tokenId 计算档位
func ForTokenID(tokenID uint64) Tier {
	switch {
	case tokenID >= legendaryThreshold:
		return Legendary
	case tokenID >= goldThreshold:
		return Gold
	case tokenID >= silverThreshold:
		return Silver
	default:
		return Bronze
	}
}

// FromLevel 根据链上徽章等级 0-3 计算档位
func FromLevel(level uint8) Tier {
	switch level {
	case 0:
		return Bronze
	case 1:
		return Silver
	case 2:
		return Gold
	default:
		return Legendary
	}
}

// Highest 取一组 tokenId 中的最高档位，空集合返回 None
func Highest(tokenIDs []uint64) Tier {
	highest := None
	for _, id := range tokenIDs {
		if t := ForTokenID(id); t > highest {
			highest = t
		}
	}
	return highest
}
