package redis

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-pricing/internal/domain/coupon"
	"github.com/xenking/kart-pricing/internal/domain/outcome"
)

func TestSelectionStore_SelectAndClear(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewSelectionStore(client, "", time.Hour)
	ctx := context.Background()

	got, err := store.Selected(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, got)

	cp := coupon.Defaults()[0]
	require.NoError(t, store.Select(ctx, "s1", &cp))
	assert.True(t, mr.Exists("kart:session:s1:coupon"))
	assert.Equal(t, time.Hour, mr.TTL("kart:session:s1:coupon"))
	assert.False(t, mr.Exists("kart:session:s1:cart"))

	got, err = store.Selected(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, cp.Code, got.Code)
	assert.True(t, cp.DiscountValue.Equal(got.DiscountValue))

	require.NoError(t, store.Select(ctx, "s1", nil))
	assert.False(t, mr.Exists("kart:session:s1:coupon"))
}

func TestSelectionStore_MalformedSelectionIsDropped(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewSelectionStore(client, "", 0)

	for _, raw := range []string{`{nope`, `{"code":"X","discountType":"bogus"}`} {
		require.NoError(t, mr.Set("kart:session:s1:coupon", raw))
		got, err := store.Selected(context.Background(), "s1")
		require.NoError(t, err)
		assert.Nil(t, got)
	}
}

func TestSelectionStore_Revoke(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewSelectionStore(client, "", 0)
	ctx := context.Background()

	amount, percent := coupon.Defaults()[0], coupon.Defaults()[1]
	require.NoError(t, store.Select(ctx, "s1", &amount))
	require.NoError(t, store.Select(ctx, "a:b", &amount))
	require.NoError(t, store.Select(ctx, "s2", &percent))

	revoked, err := store.Revoke(ctx, "amount5000")
	require.NoError(t, err)
	assert.Len(t, revoked, 2)
	assert.Equal(t, amount.Code, revoked["s1"].Code)
	assert.Equal(t, amount.Code, revoked["a:b"].Code)

	assert.False(t, mr.Exists("kart:session:s1:coupon"))
	assert.False(t, mr.Exists("kart:session:a:b:coupon"))
	assert.True(t, mr.Exists("kart:session:s2:coupon"))

	revoked, err = store.Revoke(ctx, "AMOUNT5000")
	require.NoError(t, err)
	assert.Empty(t, revoked)
}

func TestSelectionStore_Notices(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewSelectionStore(client, "", time.Hour)
	ctx := context.Background()

	warning := outcome.Warn(errors.Wrap(coupon.ErrNoLongerValid, "PERCENT10"), "Coupon PERCENT10 is no longer available and was removed.")
	require.NoError(t, store.Notify(ctx, "s1", warning))
	assert.Equal(t, time.Hour, mr.TTL("kart:session:s1:notices"))
	_, err := mr.Lpush("kart:session:s1:notices", "{nope")
	require.NoError(t, err)

	got, n, err := store.Notices(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, got, 1)
	assert.True(t, got[0].Success)
	assert.Equal(t, outcome.KindWarning, got[0].Kind)
	assert.Equal(t, outcome.CodeCouponNoLongerValid, got[0].Code())
	assert.Equal(t, warning.Message, got[0].Message)

	require.NoError(t, store.Notify(ctx, "s1", warning))
	require.NoError(t, store.AckNotices(ctx, "s1", n))

	got, n, err = store.Notices(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, got, 1)

	require.NoError(t, store.AckNotices(ctx, "s1", n))
	got, n, err = store.Notices(ctx, "s1")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, got)
}
