package indexer

import (
	"errors"
	"time"

	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/chain"
	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/logger"
	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/store"
)

// pendingEvent 引用缺口事件：事件引用的记录尚未物化
// 链上因果序保证被引用记录的事件先发出，这里只是容忍跨批次乱序投递
type pendingEvent struct {
	event     chain.Event
	firstSeen time.Time
	attempts  int
}

// pendingQueue 引用缺口重试队列
// 只被引擎的单一消费协程访问，不需要锁
type pendingQueue struct {
	items  []pendingEvent
	maxAge time.Duration
}

func newPendingQueue(maxAge time.Duration) *pendingQueue {
	return &pendingQueue{maxAge: maxAge}
}

func (q *pendingQueue) add(event chain.Event, now time.Time) {
	q.items = append(q.items, pendingEvent{event: event, firstSeen: now})
	logger.Warn("Event %s (tx %s) references a missing record, queued for retry",
		event.EventKind(), event.EventRef().TxHash)
}

func (q *pendingQueue) size() int {
	return len(q.items)
}

// oldestBlock 队列中最早事件的区块号
// 断点不能越过还有事件悬挂的区块，否则崩溃后这些事件会丢失
func (q *pendingQueue) oldestBlock() (uint64, bool) {
	if len(q.items) == 0 {
		return 0, false
	}
	oldest := q.items[0].event.EventRef().BlockNumber
	for _, item := range q.items[1:] {
		if b := item.event.EventRef().BlockNumber; b < oldest {
			oldest = b
		}
	}
	return oldest, true
}

// retry 重试队列中的全部事件
// 解决的事件出队；超过最大等待时间的事件记录为异常后出队，留待人工对账，
// 绝不静默丢弃
func (q *pendingQueue) retry(now time.Time, apply func(chain.Event) error) {
	if len(q.items) == 0 {
		return
	}

	remaining := q.items[:0]
	for _, item := range q.items {
		item.attempts++
		err := apply(item.event)
		switch {
		case err == nil || errors.Is(err, store.ErrDuplicate):
			logger.Info("Queued event %s (tx %s) resolved after %d attempts",
				item.event.EventKind(), item.event.EventRef().TxHash, item.attempts)
		case errors.Is(err, ErrReferentialGap):
			if now.Sub(item.firstSeen) > q.maxAge {
				logger.Error("ANOMALY: event %s (tx %s, block %d) unresolved after %s, needs manual reconciliation",
					item.event.EventKind(), item.event.EventRef().TxHash,
					item.event.EventRef().BlockNumber, q.maxAge)
				continue
			}
			remaining = append(remaining, item)
		default:
			// 存储故障，保留在队列里下一轮再试
			logger.Error("Retry of queued event %s (tx %s) failed: %v",
				item.event.EventKind(), item.event.EventRef().TxHash, err)
			remaining = append(remaining, item)
		}
	}
	q.items = remaining
}
