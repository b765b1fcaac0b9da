package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onchain-analytics/internal/domain"
)

func TestView_FreshnessFollowsKind(t *testing.T) {
	c, _, clock := newTestCache()
	census := NewView[*domain.Census](c, domain.CacheKindCensus)
	ctx := context.Background()

	tok, err := census.Begin(ctx, "mint")
	require.NoError(t, err)
	require.NoError(t, census.Save(ctx, tok, &domain.Census{Mint: "mint", TotalHolderCount: 4}))

	got, ok := census.Load(ctx, "mint")
	require.True(t, ok)
	assert.Equal(t, 4, got.TotalHolderCount)

	clock.Advance(DefaultCensusFreshness + time.Millisecond)
	_, ok = census.Load(ctx, "mint")
	assert.False(t, ok)
}

func TestView_SaveAfterClearIsStale(t *testing.T) {
	c, _, _ := newTestCache()
	buyers := NewView[*domain.BuyerCensus](c, domain.CacheKindBuyers)
	ctx := context.Background()

	tok, err := buyers.Begin(ctx, "mint")
	require.NoError(t, err)
	require.NoError(t, buyers.Clear(ctx, "mint"))

	err = buyers.Save(ctx, tok, &domain.BuyerCensus{Mint: "mint"})
	assert.ErrorIs(t, err, domain.ErrStaleWrite)
	assert.Equal(t, domain.CacheKindBuyers, buyers.Kind())
}
