package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viraltok/tokmint/pkg/registry"
)

func record(addr string, ts int64) *registry.Record {
	return &registry.Record{
		Address:   addr,
		Name:      "Token " + addr,
		Symbol:    "TKN",
		Creator:   "creator",
		Signature: "sig-" + addr,
		Timestamp: ts,
	}
}

func TestStore_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	s := New()

	in := record("addr1tok", 1700000000000)
	require.NoError(t, s.Save(ctx, in))

	got, err := s.GetByAddress(ctx, "addr1tok")
	require.NoError(t, err)
	assert.Equal(t, in.Name, got.Name)
	assert.NotEqual(t, uuid.Nil, got.ID)
	assert.False(t, got.CreatedAt.IsZero())

	// Mutating the returned copy must not leak into the store.
	got.Name = "changed"
	again, err := s.GetByAddress(ctx, "addr1tok")
	require.NoError(t, err)
	assert.Equal(t, in.Name, again.Name)
}

func TestStore_SaveDuplicate(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Save(ctx, record("dup", 1)))
	assert.ErrorIs(t, s.Save(ctx, record("dup", 2)), registry.ErrDuplicateKey)
}

func TestStore_SaveInvalid(t *testing.T) {
	s := New()
	r := record("x", 1)
	r.Symbol = ""
	assert.ErrorIs(t, s.Save(context.Background(), r), registry.ErrInvalidInput)
	assert.ErrorIs(t, s.Save(context.Background(), nil), registry.ErrInvalidInput)
}

func TestStore_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := New()
	for i, ts := range []int64{10, 30, 20} {
		require.NoError(t, s.Save(ctx, record(fmt.Sprintf("a%d", i), ts)))
	}

	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int64{30, 20, 10}, []int64{all[0].Timestamp, all[1].Timestamp, all[2].Timestamp})

	two, err := s.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, two, 2)
}

func TestStore_Random(t *testing.T) {
	ctx := context.Background()
	s := New()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Save(ctx, record(fmt.Sprintf("r%d", i), int64(i))))
	}

	got, err := s.Random(ctx, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	seen := map[string]bool{}
	for _, r := range got {
		assert.False(t, seen[r.Address], "duplicate %s", r.Address)
		seen[r.Address] = true
	}

	all, err := s.Random(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	_, err = s.Random(ctx, 0)
	assert.ErrorIs(t, err, registry.ErrInvalidInput)
}

func TestStore_UpdateImageURL(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Save(ctx, record("img", 1)))

	require.NoError(t, s.UpdateImageURL(ctx, "img", "https://ipfs.io/ipfs/QmX"))
	got, err := s.GetByAddress(ctx, "img")
	require.NoError(t, err)
	assert.Equal(t, "https://ipfs.io/ipfs/QmX", got.ImageURL)

	assert.ErrorIs(t, s.UpdateImageURL(ctx, "missing", "u"), registry.ErrNotFound)
}
