package tier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForTokenID(t *testing.T) {
	cases := []struct {
		tokenID uint64
		want    Tier
	}{
		{0, Bronze},
		{1, Bronze},
		{99, Bronze},
		{100, Silver},
		{101, Silver},
		{499, Silver},
		{500, Gold},
		{501, Gold},
		{999, Gold},
		{1000, Legendary},
		{1001, Legendary},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, ForTokenID(tc.tokenID), "tokenID=%d", tc.tokenID)
	}
}

func TestFromLevel(t *testing.T) {
	assert.Equal(t, Bronze, FromLevel(0))
	assert.Equal(t, Silver, FromLevel(1))
	assert.Equal(t, Gold, FromLevel(2))
	assert.Equal(t, Legendary, FromLevel(3))
}

func TestHighest(t *testing.T) {
	assert.Equal(t, None, Highest(nil))
	assert.Equal(t, None, Highest([]uint64{}))
	assert.Equal(t, Bronze, Highest([]uint64{1, 50, 99}))
	assert.Equal(t, Gold, Highest([]uint64{1, 500, 100}))
	assert.Equal(t, Legendary, Highest([]uint64{1000, 5, 999}))
}

func TestTierOrdering(t *testing.T) {
	assert.True(t, Legendary > Gold)
	assert.True(t, Gold > Silver)
	assert.True(t, Silver > Bronze)
	assert.True(t, Bronze > None)
}

func TestTierString(t *testing.T) {
	assert.Equal(t, "BRONZE", Bronze.String())
	assert.Equal(t, "SILVER", Silver.String())
	assert.Equal(t, "GOLD", Gold.String())
	assert.Equal(t, "LEGENDARY", Legendary.String())
	assert.Equal(t, "NONE", None.String())
}
