package indexer

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/cache"
	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/chain"
	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/config"
	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/database"
	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/model"
	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/store"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

// recordingCache 记录删除调用的假缓存
type recordingCache struct {
	deleted []string
}

func (c *recordingCache) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, cache.ErrMiss
}

func (c *recordingCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return nil
}

func (c *recordingCache) Delete(ctx context.Context, keys ...string) error {
	c.deleted = append(c.deleted, keys...)
	return nil
}

func newTestEngine(t *testing.T) (*Engine, *store.Store, *recordingCache) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
		NamingStrategy: &schema.NamingStrategy{
			SingularTable: true,
		},
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	st := store.New(db)
	rc := &recordingCache{}
	engine := New(nil, st, cache.NewInvalidator(rc), config.IndexerConfig{MaxPendingAge: 600})
	return engine, st, rc
}

func oneEth() *big.Int {
	n := new(big.Int)
	n.SetString("1000000000000000000", 10)
	return n
}

func projectCreated(projectId uint64, block uint64, tx string) chain.ProjectCreated {
	return chain.ProjectCreated{
		Ref:         chain.Ref{TxHash: tx, BlockNumber: block, Timestamp: time.Now()},
		ProjectID:   projectId,
		Creator:     "0xcccccccccccccccccccccccccccccccccccccccc",
		FundingGoal: big.NewInt(5000),
	}
}

func TestDonationEndToEnd(t *testing.T) {
	engine, st, _ := newTestEngine(t)

	require.NoError(t, engine.Apply(projectCreated(1, 5, "0x0")))

	donation := chain.DonationMade{
		Ref:        chain.Ref{TxHash: "0x1", BlockNumber: 10, Timestamp: time.Now()},
		ProjectID:  1,
		Donor:      "0xA",
		Amount:     oneEth(),
		BadgeLevel: 0,
	}
	require.NoError(t, engine.Apply(donation))

	project, err := st.GetProjectByOnChainID(1)
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000", project.TotalRaised.String())

	user, err := st.GetUserByAddress("0xA")
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000", user.TotalDonated.String())
	require.NotNil(t, user.LastTransactionAt)
}

func TestDonationIdempotence(t *testing.T) {
	engine, st, _ := newTestEngine(t)

	require.NoError(t, engine.Apply(projectCreated(1, 5, "0x0")))

	donation := chain.DonationMade{
		Ref:       chain.Ref{TxHash: "0x1", BlockNumber: 10, Timestamp: time.Now()},
		ProjectID: 1,
		Donor:     "0xA",
		Amount:    oneEth(),
	}
	require.NoError(t, engine.Apply(donation))

	// 同一事件重复投递N次，结果和处理一次完全相同
	for i := 0; i < 5; i++ {
		err := engine.Apply(donation)
		assert.ErrorIs(t, err, store.ErrDuplicate)
	}

	project, err := st.GetProjectByOnChainID(1)
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000", project.TotalRaised.String())

	user, err := st.GetUserByAddress("0xa")
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000", user.TotalDonated.String())

	sum, err := st.SumDonationsForProject(1)
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000", sum.String())
}

func TestProjectCreatedIdempotence(t *testing.T) {
	engine, st, _ := newTestEngine(t)

	event := projectCreated(7, 5, "0x0")
	require.NoError(t, engine.Apply(event))
	assert.ErrorIs(t, engine.Apply(event), store.ErrDuplicate)

	project, err := st.GetProjectByOnChainID(7)
	require.NoError(t, err)
	assert.True(t, project.IsActive)
	assert.Equal(t, "0", project.TotalRaised.String())
}

func TestProjectCreatedDefaultDeadline(t *testing.T) {
	engine, st, _ := newTestEngine(t)

	now := time.Now()
	engine.now = func() time.Time { return now }

	// 链上未提供截止时间
	require.NoError(t, engine.Apply(projectCreated(1, 5, "0x0")))

	project, err := st.GetProjectByOnChainID(1)
	require.NoError(t, err)
	assert.WithinDuration(t, now.Add(DefaultProjectDeadline), project.Deadline, time.Second)
}

func TestTokenMintedIdempotence(t *testing.T) {
	engine, st, _ := newTestEngine(t)

	mint := chain.TokenMinted{
		Ref:            chain.Ref{TxHash: "0x5", BlockNumber: 12, Timestamp: time.Now()},
		Owner:          "0xA",
		TokenID:        100,
		Level:          1,
		DonationAmount: big.NewInt(1000),
		MetadataURI:    "ipfs://abc",
	}
	require.NoError(t, engine.Apply(mint))
	assert.ErrorIs(t, engine.Apply(mint), store.ErrDuplicate)

	user, err := st.GetUserByAddress("0xa")
	require.NoError(t, err)
	assert.Equal(t, int64(1), user.TokenCount)
}

func TestTokenConvertedEndToEnd(t *testing.T) {
	engine, st, _ := newTestEngine(t)

	now := time.Now()
	engine.now = func() time.Time { return now }

	mint := func(tokenId uint64, level uint8, tx string) chain.TokenMinted {
		return chain.TokenMinted{
			Ref:     chain.Ref{TxHash: tx, BlockNumber: 10, Timestamp: now},
			Owner:   "0xA",
			TokenID: tokenId,
			Level:   level,
		}
	}
	require.NoError(t, engine.Apply(mint(10, 1, "0xa1")))
	require.NoError(t, engine.Apply(mint(11, 2, "0xa2")))

	conversion := chain.TokenConverted{
		Ref:            chain.Ref{TxHash: "0x2", BlockNumber: 20, Timestamp: now},
		Owner:          "0xA",
		BurnedTokenIDs: []uint64{10, 11},
		NewTokenID:     20,
		NewLevel:       2,
	}
	require.NoError(t, engine.Apply(conversion))

	tokens, err := st.GetTokensByIDs([]uint64{10, 11})
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	for _, token := range tokens {
		assert.True(t, token.IsBurned)
	}

	user, err := st.GetUserByAddress("0xa")
	require.NoError(t, err)
	assert.Equal(t, int64(0), user.TokenCount)
	require.NotNil(t, user.LockEndTime)
	assert.WithinDuration(t, now.Add(10*time.Minute), *user.LockEndTime, time.Second)

	active, err := st.CountActiveTokensByOwner("0xa")
	require.NoError(t, err)
	assert.Equal(t, int64(0), active)

	// 合成前等级取被销毁徽章的最高等级
	conv, err := st.GetConversionByTxHash("0x2")
	require.NoError(t, err)
	assert.Equal(t, uint8(2), conv.FromLevel)
	assert.Equal(t, uint8(2), conv.ToLevel)
	assert.Equal(t, model.Uint64List{10, 11}, conv.BurnedTokenIDs)

	// 重复投递：销毁标记转换0行，计数不再扣减
	assert.ErrorIs(t, engine.Apply(conversion), store.ErrDuplicate)
	user, err = st.GetUserByAddress("0xa")
	require.NoError(t, err)
	assert.Equal(t, int64(0), user.TokenCount)
}

func TestConversionReferentialGap(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	// 被销毁徽章尚未物化
	conversion := chain.TokenConverted{
		Ref:            chain.Ref{TxHash: "0x2", BlockNumber: 20, Timestamp: time.Now()},
		Owner:          "0xA",
		BurnedTokenIDs: []uint64{10, 11},
		NewTokenID:     20,
		NewLevel:       2,
	}
	assert.ErrorIs(t, engine.Apply(conversion), ErrReferentialGap)
}

func TestOutOfOrderDonationConverges(t *testing.T) {
	engine, st, _ := newTestEngine(t)

	donation := chain.DonationMade{
		Ref:       chain.Ref{TxHash: "0x1", BlockNumber: 15, Timestamp: time.Now()},
		ProjectID: 7,
		Donor:     "0xA",
		Amount:    oneEth(),
	}

	// 捐赠先于项目创建到达：进入重试队列，断点停在缺口之前
	engine.ProcessBatch(chain.Batch{FromBlock: 10, ToBlock: 19, Events: []chain.Event{donation}})
	assert.Equal(t, uint64(14), engine.Checkpoint())
	assert.Equal(t, 1, engine.GetStatus().PendingEvents)

	_, err := st.GetProjectByOnChainID(7)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// 项目创建事件在下一批到达，重试队列收敛，断点追上批尾
	engine.ProcessBatch(chain.Batch{FromBlock: 20, ToBlock: 29, Events: []chain.Event{projectCreated(7, 20, "0x0")}})
	assert.Equal(t, uint64(29), engine.Checkpoint())
	assert.Equal(t, 0, engine.GetStatus().PendingEvents)

	// 最终状态和因果序处理一致
	project, err := st.GetProjectByOnChainID(7)
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000", project.TotalRaised.String())

	user, err := st.GetUserByAddress("0xa")
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000", user.TotalDonated.String())
}

func TestCacheInvalidationAfterCommit(t *testing.T) {
	engine, _, rc := newTestEngine(t)

	require.NoError(t, engine.Apply(projectCreated(1, 5, "0x0")))
	assert.Contains(t, rc.deleted, "global:stats")

	donation := chain.DonationMade{
		Ref:       chain.Ref{TxHash: "0x1", BlockNumber: 10, Timestamp: time.Now()},
		ProjectID: 1,
		Donor:     "0xABC",
		Amount:    oneEth(),
	}
	require.NoError(t, engine.Apply(donation))
	assert.Contains(t, rc.deleted, "project:1")
	assert.Contains(t, rc.deleted, "user:0xabc:profile")
}

func TestNoInvalidationOnGap(t *testing.T) {
	engine, _, rc := newTestEngine(t)

	donation := chain.DonationMade{
		Ref:       chain.Ref{TxHash: "0x1", BlockNumber: 10, Timestamp: time.Now()},
		ProjectID: 99,
		Donor:     "0xA",
		Amount:    oneEth(),
	}
	require.ErrorIs(t, engine.Apply(donation), ErrReferentialGap)

	// 事务未提交，不执行缓存失效
	assert.Empty(t, rc.deleted)
}

func TestCheckpointPersistsAcrossBatches(t *testing.T) {
	engine, st, _ := newTestEngine(t)

	engine.ProcessBatch(chain.Batch{FromBlock: 1, ToBlock: 100, Events: nil})
	assert.Equal(t, uint64(100), engine.Checkpoint())

	block, err := st.LoadCheckpoint("donation-hub")
	require.NoError(t, err)
	assert.Equal(t, uint64(100), block)

	// 空批也推进断点，但绝不回退
	engine.ProcessBatch(chain.Batch{FromBlock: 50, ToBlock: 60, Events: nil})
	assert.Equal(t, uint64(100), engine.Checkpoint())
}

func TestCheckpointHeldByGenesisBlockGap(t *testing.T) {
	engine, st, _ := newTestEngine(t)

	// 创世块上的捐赠引用了未物化的项目
	donation := chain.DonationMade{
		Ref:       chain.Ref{TxHash: "0x1", BlockNumber: 0, Timestamp: time.Now()},
		ProjectID: 7,
		Donor:     "0xA",
		Amount:    oneEth(),
	}
	engine.ProcessBatch(chain.Batch{FromBlock: 0, ToBlock: 10, Events: []chain.Event{donation}})

	// 缺口在0号块，断点完全不推进
	assert.Equal(t, uint64(0), engine.Checkpoint())
	block, err := st.LoadCheckpoint("donation-hub")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), block)

	engine.ProcessBatch(chain.Batch{FromBlock: 11, ToBlock: 20, Events: []chain.Event{projectCreated(7, 11, "0x0")}})
	assert.Equal(t, uint64(20), engine.Checkpoint())
}

func TestStartReleasesLockOnCheckpointError(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
		NamingStrategy: &schema.NamingStrategy{
			SingularTable: true,
		},
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	// 关掉底层连接让断点读取失败
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	engine := New(nil, store.New(db), nil, config.IndexerConfig{})
	err = engine.Start(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrLockNotAcquired)
}
