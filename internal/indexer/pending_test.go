package indexer

import (
	"errors"
	"testing"
	"time"

	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/chain"
	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/store"
	"github.com/stretchr/testify/assert"
)

func gapEvent(tx string, block uint64) chain.Event {
	return chain.DonationMade{Ref: chain.Ref{TxHash: tx, BlockNumber: block}}
}

func TestPendingQueueOldestBlock(t *testing.T) {
	q := newPendingQueue(10 * time.Minute)

	_, ok := q.oldestBlock()
	assert.False(t, ok)

	now := time.Now()
	q.add(gapEvent("0x1", 30), now)
	q.add(gapEvent("0x2", 15), now)
	q.add(gapEvent("0x3", 20), now)

	oldest, ok := q.oldestBlock()
	assert.True(t, ok)
	assert.Equal(t, uint64(15), oldest)
}

func TestPendingQueueRetryResolves(t *testing.T) {
	q := newPendingQueue(10 * time.Minute)
	now := time.Now()
	q.add(gapEvent("0x1", 10), now)
	q.add(gapEvent("0x2", 11), now)

	// 0x1 解决，0x2 仍有缺口
	q.retry(now, func(e chain.Event) error {
		if e.EventRef().TxHash == "0x1" {
			return nil
		}
		return ErrReferentialGap
	})
	assert.Equal(t, 1, q.size())

	// 重复投递也算解决
	q.retry(now, func(e chain.Event) error {
		return store.ErrDuplicate
	})
	assert.Equal(t, 0, q.size())
}

func TestPendingQueueKeepsOnStoreFailure(t *testing.T) {
	q := newPendingQueue(10 * time.Minute)
	q.add(gapEvent("0x1", 10), time.Now())

	q.retry(time.Now(), func(chain.Event) error {
		return errors.New("db down")
	})
	assert.Equal(t, 1, q.size())
}

func TestPendingQueueDropsStaleGap(t *testing.T) {
	q := newPendingQueue(10 * time.Minute)
	firstSeen := time.Now()
	q.add(gapEvent("0x1", 10), firstSeen)

	alwaysGap := func(chain.Event) error { return ErrReferentialGap }

	// 未超时：保留
	q.retry(firstSeen.Add(5*time.Minute), alwaysGap)
	assert.Equal(t, 1, q.size())

	// 超过最大等待时间：记异常后出队
	q.retry(firstSeen.Add(11*time.Minute), alwaysGap)
	assert.Equal(t, 0, q.size())
}
