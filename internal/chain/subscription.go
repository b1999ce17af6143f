package chain

import (
	"context"
	"errors"
	"time"

	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/config"
	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/logger"
)

// Subscription 合约事件的拉式订阅
// 从指定区块开始轮询，按批推送事件，可从任意历史区块重启；
// RPC不可达时指数退避重试，不会终止序列
type Subscription struct {
	client       *Client
	batches      chan Batch
	ctx          context.Context
	cancel       context.CancelFunc
	pollInterval time.Duration
	batchSize    int64
	nextBlock    uint64
}

// Subscribe 从 fromBlock 开始订阅合约事件
// 返回的序列在 Stop 或 ctx 取消前持续产出新批次
func (c *Client) Subscribe(ctx context.Context, fromBlock uint64, cfg config.IndexerConfig) *Subscription {
	subCtx, cancel := context.WithCancel(ctx)

	pollInterval := time.Duration(cfg.PollInterval) * time.Second
	if pollInterval <= 0 {
		pollInterval = 15 * time.Second
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 500
	}

	s := &Subscription{
		client:       c,
		batches:      make(chan Batch),
		ctx:          subCtx,
		cancel:       cancel,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		nextBlock:    fromBlock,
	}

	go s.run()
	return s
}

// Batches 事件批次序列，订阅停止后关闭
func (s *Subscription) Batches() <-chan Batch {
	return s.batches
}

// Stop 停止订阅
func (s *Subscription) Stop() {
	s.cancel()
}

// run 轮询循环
func (s *Subscription) run() {
	defer close(s.batches)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	retryCount := 0
	for {
		if err := s.poll(); err != nil {
			if errors.Is(err, context.Canceled) {
				logger.Info("Subscription stopped at block %d", s.nextBlock)
				return
			}

			retryCount++
			wait := backoffDuration(retryCount)
			logger.Error("Subscription poll failed (retry %d, backing off %s): %v", retryCount, wait, err)

			select {
			case <-s.ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}
		retryCount = 0

		select {
		case <-s.ctx.Done():
			logger.Info("Subscription stopped at block %d", s.nextBlock)
			return
		case <-ticker.C:
		}
	}
}

// poll 追块：从 nextBlock 追到链头，按批推送
func (s *Subscription) poll() error {
	currentBlock, err := s.client.GetCurrentBlockNumber(s.ctx)
	if err != nil {
		return err
	}

	for from := s.nextBlock; from <= currentBlock; from += uint64(s.batchSize) {
		to := from + uint64(s.batchSize) - 1
		if to > currentBlock {
			to = currentBlock
		}

		events, err := s.client.FilterEvents(s.ctx, from, to)
		if err != nil {
			return err
		}

		select {
		case s.batches <- Batch{FromBlock: from, ToBlock: to, Events: events}:
		case <-s.ctx.Done():
			return s.ctx.Err()
		}

		s.nextBlock = to + 1
	}

	return nil
}

// backoffDuration 指数退避，封顶5分钟
func backoffDuration(retryCount int) time.Duration {
	if retryCount > 5 {
		return 5 * time.Minute
	}
	return time.Duration(retryCount) * 10 * time.Second
}
