package cache

import (
	"context"
	"testing"
	"time"

	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/chain"
	"github.com/stretchr/testify/assert"
)

func TestKeysForDonationMade(t *testing.T) {
	event := chain.DonationMade{ProjectID: 7, Donor: "0xabc"}
	assert.ElementsMatch(t, []string{"project:7", "user:0xabc:profile", "global:stats"}, KeysFor(event))
}

func TestKeysForTokenMinted(t *testing.T) {
	event := chain.TokenMinted{Owner: "0xabc"}
	assert.ElementsMatch(t, []string{"user:0xabc:tokens", "user:0xabc:profile"}, KeysFor(event))
}

func TestKeysForTokenConverted(t *testing.T) {
	event := chain.TokenConverted{Owner: "0xabc"}
	assert.ElementsMatch(t, []string{"user:0xabc:tokens", "user:0xabc:profile"}, KeysFor(event))
}

func TestKeysForProjectCreated(t *testing.T) {
	event := chain.ProjectCreated{ProjectID: 7}
	assert.ElementsMatch(t, []string{"global:stats"}, KeysFor(event))
}

// fakeCache 记录删除调用的假缓存
type fakeCache struct {
	deleted [][]string
	err     error
}

func (f *fakeCache) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, ErrMiss
}

func (f *fakeCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return nil
}

func (f *fakeCache) Delete(ctx context.Context, keys ...string) error {
	f.deleted = append(f.deleted, keys)
	return f.err
}

func TestInvalidatorDeletesMappedKeys(t *testing.T) {
	fake := &fakeCache{}
	inv := NewInvalidator(fake)

	inv.Invalidate(context.Background(), chain.ProjectCreated{ProjectID: 3})

	assert.Len(t, fake.deleted, 1)
	assert.ElementsMatch(t, []string{"global:stats"}, fake.deleted[0])
}

func TestInvalidatorSwallowsDeleteFailure(t *testing.T) {
	fake := &fakeCache{err: assert.AnError}
	inv := NewInvalidator(fake)

	// 删除失败只记日志，不能 panic 也不能返回错误
	assert.NotPanics(t, func() {
		inv.Invalidate(context.Background(), chain.DonationMade{ProjectID: 1, Donor: "0xabc"})
	})
}
