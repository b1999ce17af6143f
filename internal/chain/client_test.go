package chain

import (
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	parsedABI, err := abi.JSON(strings.NewReader(contractABI))
	require.NoError(t, err)
	return &Client{contractABI: parsedABI}
}

// packEventData 按ABI打包事件的非索引字段
func packEventData(t *testing.T, c *Client, name string, values ...interface{}) []byte {
	t.Helper()
	data, err := c.contractABI.Events[name].Inputs.NonIndexed().Pack(values...)
	require.NoError(t, err)
	return data
}

func addressTopic(hex string) common.Hash {
	return common.BytesToHash(common.HexToAddress(hex).Bytes())
}

func TestParseDonationMade(t *testing.T) {
	c := newTestClient(t)

	amount, _ := new(big.Int).SetString("1000000000000000000", 10)
	l := types.Log{
		Topics: []common.Hash{
			c.contractABI.Events["DonationMade"].ID,
			common.BigToHash(big.NewInt(7)),
			addressTopic("0xAbCdEF0123456789abcdef0123456789ABCDEF01"),
		},
		Data:        packEventData(t, c, "DonationMade", amount, uint8(2)),
		TxHash:      common.HexToHash("0x11"),
		BlockNumber: 42,
		Index:       3,
	}

	ts := time.Unix(1700000000, 0).UTC()
	event, err := c.ParseLog(l, ts)
	require.NoError(t, err)

	donation, ok := event.(DonationMade)
	require.True(t, ok)
	assert.Equal(t, uint64(7), donation.ProjectID)
	assert.Equal(t, "0xabcdef0123456789abcdef0123456789abcdef01", donation.Donor)
	assert.Equal(t, amount, donation.Amount)
	assert.Equal(t, uint8(2), donation.BadgeLevel)
	assert.Equal(t, uint64(42), donation.BlockNumber)
	assert.Equal(t, uint(3), donation.LogIndex)
	assert.Equal(t, ts, donation.Timestamp)
}

func TestParseTokenMinted(t *testing.T) {
	c := newTestClient(t)

	l := types.Log{
		Topics: []common.Hash{
			c.contractABI.Events["TokenMinted"].ID,
			addressTopic("0xAbCdEF0123456789abcdef0123456789ABCDEF01"),
			common.BigToHash(big.NewInt(1024)),
		},
		Data: packEventData(t, c, "TokenMinted", uint8(4), big.NewInt(500000), "ipfs://QmBadge"),
	}

	event, err := c.ParseLog(l, time.Now())
	require.NoError(t, err)

	mint, ok := event.(TokenMinted)
	require.True(t, ok)
	assert.Equal(t, "0xabcdef0123456789abcdef0123456789abcdef01", mint.Owner)
	assert.Equal(t, uint64(1024), mint.TokenID)
	assert.Equal(t, uint8(4), mint.Level)
	assert.Equal(t, int64(500000), mint.DonationAmount.Int64())
	assert.Equal(t, "ipfs://QmBadge", mint.MetadataURI)
}

func TestParseTokenConverted(t *testing.T) {
	c := newTestClient(t)

	burned := []*big.Int{big.NewInt(10), big.NewInt(11), big.NewInt(12)}
	l := types.Log{
		Topics: []common.Hash{
			c.contractABI.Events["TokenConverted"].ID,
			addressTopic("0xAbCdEF0123456789abcdef0123456789ABCDEF01"),
		},
		Data: packEventData(t, c, "TokenConverted", burned, big.NewInt(20), uint8(2)),
	}

	event, err := c.ParseLog(l, time.Now())
	require.NoError(t, err)

	conversion, ok := event.(TokenConverted)
	require.True(t, ok)
	assert.Equal(t, []uint64{10, 11, 12}, conversion.BurnedTokenIDs)
	assert.Equal(t, uint64(20), conversion.NewTokenID)
	assert.Equal(t, uint8(2), conversion.NewLevel)
}

func TestParseProjectCreated(t *testing.T) {
	c := newTestClient(t)

	l := types.Log{
		Topics: []common.Hash{
			c.contractABI.Events["ProjectCreated"].ID,
			common.BigToHash(big.NewInt(7)),
			addressTopic("0xAbCdEF0123456789abcdef0123456789ABCDEF01"),
		},
		Data: packEventData(t, c, "ProjectCreated", big.NewInt(5000), big.NewInt(1700000000)),
	}

	event, err := c.ParseLog(l, time.Now())
	require.NoError(t, err)

	project, ok := event.(ProjectCreated)
	require.True(t, ok)
	assert.Equal(t, uint64(7), project.ProjectID)
	assert.Equal(t, "0xabcdef0123456789abcdef0123456789abcdef01", project.Creator)
	assert.Equal(t, int64(5000), project.FundingGoal.Int64())
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), project.Deadline)
}

func TestParseProjectCreatedZeroDeadline(t *testing.T) {
	c := newTestClient(t)

	l := types.Log{
		Topics: []common.Hash{
			c.contractABI.Events["ProjectCreated"].ID,
			common.BigToHash(big.NewInt(7)),
			addressTopic("0xAbCdEF0123456789abcdef0123456789ABCDEF01"),
		},
		Data: packEventData(t, c, "ProjectCreated", big.NewInt(5000), big.NewInt(0)),
	}

	event, err := c.ParseLog(l, time.Now())
	require.NoError(t, err)

	project := event.(ProjectCreated)
	// 链上未提供截止时间，由物化层兜底
	assert.True(t, project.Deadline.IsZero())
}

func TestParseLogUnknownSignature(t *testing.T) {
	c := newTestClient(t)

	l := types.Log{Topics: []common.Hash{common.HexToHash("0xdead")}}
	_, err := c.ParseLog(l, time.Now())
	assert.ErrorIs(t, err, errUnknownEvent)

	_, err = c.ParseLog(types.Log{}, time.Now())
	assert.ErrorIs(t, err, errUnknownEvent)
}

func TestBackoffDuration(t *testing.T) {
	assert.Equal(t, 10*time.Second, backoffDuration(1))
	assert.Equal(t, 30*time.Second, backoffDuration(3))
	// 上限5分钟
	assert.Equal(t, 5*time.Minute, backoffDuration(100))
}
