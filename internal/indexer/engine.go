package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/cache"
	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/chain"
	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/config"
	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/logger"
	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/model"
	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/privilege"
	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/store"
	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/tier"
)

const (
	// checkpointName 本合约事件流的断点名称
	checkpointName = "donation-hub"

	// DefaultProjectDeadline 链上未提供截止时间时的默认值
	DefaultProjectDeadline = 90 * 24 * time.Hour
)

var (
	// ErrReferentialGap 事件引用的记录尚未物化，进入重试队列
	ErrReferentialGap = errors.New("事件引用的记录尚未物化")

	// ErrLockNotAcquired 另一个实例已持有事件流的单写者锁
	ErrLockNotAcquired = errors.New("索引器锁已被其他实例持有")
)

// EventSource 事件来源，注入而不是进程级单例
type EventSource interface {
	GetStartBlock() uint64
	Subscribe(ctx context.Context, fromBlock uint64, cfg config.IndexerConfig) *chain.Subscription
}

// Engine 物化引擎
// 按投递顺序消费链上事件序列，每个事件执行一次幂等转换写入派生表，
// 提交后触发缓存失效。重复投递靠存储层唯一索引去重，乱序投递靠
// 引用缺口重试队列收敛
type Engine struct {
	source      EventSource
	store       *store.Store
	invalidator *cache.Invalidator
	cfg         config.IndexerConfig

	sub     *chain.Subscription
	pending *pendingQueue
	ctx     context.Context
	done    chan struct{}

	// now 可注入的时钟，测试用
	now func() time.Time

	mu             sync.RWMutex
	checkpoint     uint64
	processedCount uint64
	pendingCount   int
}

// New 创建物化引擎
func New(source EventSource, st *store.Store, invalidator *cache.Invalidator, cfg config.IndexerConfig) *Engine {
	maxPendingAge := time.Duration(cfg.MaxPendingAge) * time.Second
	if maxPendingAge <= 0 {
		maxPendingAge = 10 * time.Minute
	}

	return &Engine{
		source:      source,
		store:       st,
		invalidator: invalidator,
		cfg:         cfg,
		pending:     newPendingQueue(maxPendingAge),
		done:        make(chan struct{}),
		now:         time.Now,
	}
}

// Start 获取单写者锁，从断点恢复订阅并启动消费循环
func (e *Engine) Start(ctx context.Context) error {
	acquired, err := e.store.AcquireIndexerLock()
	if err != nil {
		return err
	}
	if !acquired {
		return ErrLockNotAcquired
	}

	checkpoint, err := e.store.LoadCheckpoint(checkpointName)
	if err != nil {
		// 锁已到手，失败退出前要还回去
		if relErr := e.store.ReleaseIndexerLock(); relErr != nil {
			logger.Error("Failed to release indexer lock: %v", relErr)
		}
		return err
	}

	fromBlock := e.source.GetStartBlock()
	if checkpoint >= fromBlock {
		fromBlock = checkpoint + 1
	}

	e.mu.Lock()
	e.checkpoint = checkpoint
	e.mu.Unlock()

	logger.Info("Starting materialization engine from block %d (checkpoint %d)", fromBlock, checkpoint)

	e.ctx = ctx
	e.sub = e.source.Subscribe(ctx, fromBlock, e.cfg)
	go e.run()
	return nil
}

// Stop 停止引擎
// 订阅停止后消费循环会把已接收的批次处理完再退出，不会在转换中途中断
func (e *Engine) Stop() {
	if e.sub == nil {
		return
	}
	e.sub.Stop()
	<-e.done
	if err := e.store.ReleaseIndexerLock(); err != nil {
		logger.Error("Failed to release indexer lock: %v", err)
	}
	logger.Info("Materialization engine stopped at checkpoint %d", e.Checkpoint())
}

// run 消费循环
func (e *Engine) run() {
	defer close(e.done)
	for batch := range e.sub.Batches() {
		e.ProcessBatch(batch)
	}
}

// ProcessBatch 按序处理一批事件，然后重试缺口队列并推进断点
func (e *Engine) ProcessBatch(batch chain.Batch) {
	for _, event := range batch.Events {
		e.processEvent(event)
	}

	e.pending.retry(e.now(), e.Apply)
	e.advanceCheckpoint(batch.ToBlock)

	e.mu.Lock()
	e.pendingCount = e.pending.size()
	e.mu.Unlock()
}

// processEvent 处理单个事件
// 存储故障时原地退避重试，事件在转换提交前绝不标记完成
func (e *Engine) processEvent(event chain.Event) {
	for attempt := 1; ; attempt++ {
		err := e.Apply(event)
		switch {
		case err == nil:
			return
		case errors.Is(err, store.ErrDuplicate):
			logger.Debug("Event %s (tx %s) already applied, skipping",
				event.EventKind(), event.EventRef().TxHash)
			return
		case errors.Is(err, ErrReferentialGap):
			e.pending.add(event, e.now())
			return
		default:
			logger.Error("Transition for %s (tx %s) failed (attempt %d): %v",
				event.EventKind(), event.EventRef().TxHash, attempt, err)
			select {
			case <-e.stopping():
				return
			case <-time.After(storeRetryDelay(attempt)):
			}
		}
	}
}

func (e *Engine) stopping() <-chan struct{} {
	if e.ctx != nil {
		return e.ctx.Done()
	}
	return nil
}

func storeRetryDelay(attempt int) time.Duration {
	if attempt > 6 {
		return time.Minute
	}
	return time.Duration(attempt) * time.Second
}

// Apply 对事件执行一次幂等转换
// 转换在单个数据库事务内提交；提交成功后才执行缓存失效，
// 顺序不能颠倒，否则读方会用提交前的旧数据回填缓存。
// 幂等键冲突返回 store.ErrDuplicate，调用方视为已应用
func (e *Engine) Apply(event chain.Event) error {
	var err error
	switch ev := event.(type) {
	case chain.DonationMade:
		err = e.applyDonationMade(ev)
	case chain.TokenMinted:
		err = e.applyTokenMinted(ev)
	case chain.TokenConverted:
		err = e.applyTokenConverted(ev)
	case chain.ProjectCreated:
		err = e.applyProjectCreated(ev)
	default:
		logger.Warn("Unknown event type %s, skipping", event.EventKind())
		return nil
	}

	if err != nil {
		return err
	}

	e.mu.Lock()
	e.processedCount++
	e.mu.Unlock()

	if e.invalidator != nil {
		ctx := e.ctx
		if ctx == nil {
			ctx = context.Background()
		}
		e.invalidator.Invalidate(ctx, event)
	}
	return nil
}

// applyDonationMade 捐赠转换
// 幂等键：donation.tx_hash。插入冲突时整个事务不产生任何自增
func (e *Engine) applyDonationMade(ev chain.DonationMade) error {
	return e.store.Transaction(func(tx *store.Store) error {
		// 项目必须已物化，否则进重试队列等 ProjectCreated 到达
		if _, err := tx.GetProjectByOnChainID(ev.ProjectID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%w: project %d", ErrReferentialGap, ev.ProjectID)
			}
			return err
		}

		donation := model.Donation{
			TxHash:     ev.TxHash,
			ProjectID:  ev.ProjectID,
			Donor:      model.NormalizeAddress(ev.Donor),
			Amount:     model.NewBigInt(ev.Amount),
			BadgeLevel: ev.BadgeLevel,
			BlockNum:   ev.BlockNumber,
			Timestamp:  ev.Timestamp,
		}
		if err := tx.InsertDonation(&donation); err != nil {
			return err
		}

		if err := tx.IncrementProjectRaised(ev.ProjectID, ev.Amount); err != nil {
			return err
		}

		if err := tx.EnsureUser(ev.Donor); err != nil {
			return err
		}
		return tx.IncrementUserDonated(ev.Donor, ev.Amount, e.now())
	})
}

// applyTokenMinted 铸造转换
// 幂等键：token.token_id
func (e *Engine) applyTokenMinted(ev chain.TokenMinted) error {
	return e.store.Transaction(func(tx *store.Store) error {
		token := model.Token{
			TokenID:        ev.TokenID,
			Owner:          model.NormalizeAddress(ev.Owner),
			Level:          ev.Level,
			DonationAmount: model.NewBigInt(ev.DonationAmount),
			MetadataURI:    ev.MetadataURI,
			MintedAt:       ev.Timestamp,
		}
		if err := tx.InsertToken(&token); err != nil {
			return err
		}

		if err := tx.EnsureUser(ev.Owner); err != nil {
			return err
		}
		if err := tx.IncrementUserTokenCount(ev.Owner, 1); err != nil {
			return err
		}

		logger.Info("Minted token %d (%s) for %s", ev.TokenID, tier.ForTokenID(ev.TokenID), ev.Owner)
		return nil
	})
}

// applyTokenConverted 合成转换
// 幂等键：token_conversion.tx_hash。销毁标记本身也是单向的，
// 重复投递时 MarkTokensBurned 转换0行，不会重复扣减
func (e *Engine) applyTokenConverted(ev chain.TokenConverted) error {
	now := e.now()
	return e.store.Transaction(func(tx *store.Store) error {
		// 被销毁徽章必须已物化，合成前等级要从它们身上读
		tokens, err := tx.GetTokensByIDs(ev.BurnedTokenIDs)
		if err != nil {
			return err
		}
		if len(tokens) < len(ev.BurnedTokenIDs) {
			return fmt.Errorf("%w: %d of %d burned tokens", ErrReferentialGap,
				len(ev.BurnedTokenIDs)-len(tokens), len(ev.BurnedTokenIDs))
		}

		// 合成前等级取被销毁徽章的最高等级，必须在标记销毁前读取
		var fromLevel uint8
		for _, t := range tokens {
			if t.Level > fromLevel {
				fromLevel = t.Level
			}
		}

		conversion := model.TokenConversion{
			TxHash:         ev.TxHash,
			Owner:          model.NormalizeAddress(ev.Owner),
			BurnedTokenIDs: model.Uint64List(ev.BurnedTokenIDs),
			NewTokenID:     ev.NewTokenID,
			FromLevel:      fromLevel,
			ToLevel:        ev.NewLevel,
			Timestamp:      ev.Timestamp,
		}
		if err := tx.InsertConversion(&conversion); err != nil {
			return err
		}

		burned, err := tx.MarkTokensBurned(ev.BurnedTokenIDs)
		if err != nil {
			return err
		}

		if err := tx.EnsureUser(ev.Owner); err != nil {
			return err
		}
		if burned > 0 {
			if err := tx.IncrementUserTokenCount(ev.Owner, -burned); err != nil {
				return err
			}
		}
		return tx.SetUserLock(ev.Owner, now.Add(privilege.LockDuration), now)
	})
}

// applyProjectCreated 项目创建转换
// 幂等键：project.on_chain_id
func (e *Engine) applyProjectCreated(ev chain.ProjectCreated) error {
	deadline := ev.Deadline
	if deadline.IsZero() {
		deadline = e.now().Add(DefaultProjectDeadline)
	}

	return e.store.Transaction(func(tx *store.Store) error {
		project := model.Project{
			OnChainID:   ev.ProjectID,
			Creator:     model.NormalizeAddress(ev.Creator),
			FundingGoal: model.NewBigInt(ev.FundingGoal),
			TotalRaised: model.NewBigIntFromUint64(0),
			Deadline:    deadline,
			IsActive:    true,
			TxHash:      ev.TxHash,
			BlockNum:    ev.BlockNumber,
		}
		return tx.InsertProject(&project)
	})
}

// advanceCheckpoint 推进断点
// 断点停在缺口队列最老事件之前的区块，崩溃重启后这些事件会被重新投递
func (e *Engine) advanceCheckpoint(batchEnd uint64) {
	checkpoint := batchEnd
	if oldest, ok := e.pending.oldestBlock(); ok {
		// 创世块事件还悬挂着就完全不推进，也避免无符号下溢
		if oldest == 0 {
			return
		}
		if oldest-1 < checkpoint {
			checkpoint = oldest - 1
		}
	}

	e.mu.RLock()
	current := e.checkpoint
	e.mu.RUnlock()
	if checkpoint <= current {
		return
	}

	if err := e.store.SaveCheckpoint(checkpointName, checkpoint); err != nil {
		logger.Error("Failed to save checkpoint %d: %v", checkpoint, err)
		return
	}

	e.mu.Lock()
	e.checkpoint = checkpoint
	e.mu.Unlock()
}

// Checkpoint 当前断点
func (e *Engine) Checkpoint() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.checkpoint
}

// Status 引擎状态快照
type Status struct {
	Checkpoint      uint64 `json:"checkpoint"`
	PendingEvents   int    `json:"pending_events"`
	ProcessedEvents uint64 `json:"processed_events"`
}

// GetStatus 获取引擎状态
func (e *Engine) GetStatus() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Status{
		Checkpoint:      e.checkpoint,
		PendingEvents:   e.pendingCount,
		ProcessedEvents: e.processedCount,
	}
}
