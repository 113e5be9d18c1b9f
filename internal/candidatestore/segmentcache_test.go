package candidatestore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLocalSegmentCache_MissThenHit(t *testing.T) {
	c := newLocalSegmentCache()
	key := segmentKey{CurrencyID: 1, PaymentMethodID: 1}

	_, ok := c.get(context.Background(), key)
	assert.False(t, ok)

	view := segmentView{"alpha-pay": segmentMetrics{Count: 10, Successes: 9}}
	c.set(context.Background(), key, view, time.Minute)

	got, ok := c.get(context.Background(), key)
	assert.True(t, ok)
	assert.Equal(t, view, got)
}

func TestLocalSegmentCache_ExpiresAfterTTL(t *testing.T) {
	c := newLocalSegmentCache()
	key := segmentKey{CurrencyID: 1, PaymentMethodID: 2}

	c.set(context.Background(), key, segmentView{}, time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	_, ok := c.get(context.Background(), key)
	assert.False(t, ok)
}

func TestSegmentMetrics_AuthRate(t *testing.T) {
	assert.Equal(t, 0.0, segmentMetrics{}.authRate())
	assert.InDelta(t, 0.9, segmentMetrics{Count: 10, Successes: 9}.authRate(), 1e-9)
}

func TestSegmentKey_String(t *testing.T) {
	assert.Equal(t, "seg:1:2", segmentKey{CurrencyID: 1, PaymentMethodID: 2}.String())
}
