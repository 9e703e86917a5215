package region_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/tagalloc/memutils"
	"github.com/vkngwrapper/tagalloc/memutils/region"
	"github.com/vkngwrapper/tagalloc/memutils/region/mocks"
	"go.uber.org/mock/gomock"
)

func TestSliceProviderGrow(t *testing.T) {
	provider, err := region.NewSliceProvider(100)
	require.NoError(t, err)

	offset, err := provider.Grow(32)
	require.NoError(t, err)
	require.Equal(t, 0, offset)
	require.Len(t, provider.Bytes(), 32)

	provider.Bytes()[31] = 0xAA

	offset, err = provider.Grow(64)
	require.NoError(t, err)
	require.Equal(t, 32, offset)
	require.Len(t, provider.Bytes(), 96)
	require.Equal(t, byte(0xAA), provider.Bytes()[31])
	require.Equal(t, make([]byte, 64), provider.Bytes()[32:])

	_, err = provider.Grow(5)
	require.Error(t, err)
	require.True(t, errors.Is(err, memutils.ErrOutOfMemory))
	require.Len(t, provider.Bytes(), 96)

	offset, err = provider.Grow(4)
	require.NoError(t, err)
	require.Equal(t, 96, offset)
}

func TestSliceProviderInvalidSize(t *testing.T) {
	_, err := region.NewSliceProvider(0)
	require.True(t, errors.Is(err, memutils.ErrInvalidOption))
}

func TestRegionWords(t *testing.T) {
	provider, err := region.NewSliceProvider(1 << 12)
	require.NoError(t, err)

	r, err := region.New(provider)
	require.NoError(t, err)
	require.Equal(t, 0, r.Extent())

	offset, err := r.Grow(64)
	require.NoError(t, err)
	require.Equal(t, 0, offset)
	require.Equal(t, 64, r.Extent())

	r.PutWord(8, 0x1001)
	r.PutWord(56, 0xFFFFFFFFFFFFFFF0)
	require.Equal(t, uint64(0x1001), r.Word(8))
	require.Equal(t, uint64(0xFFFFFFFFFFFFFFF0), r.Word(56))
	require.Equal(t, []byte{0x01, 0x10, 0, 0, 0, 0, 0, 0}, r.Slice(8, 8))

	// Contents survive the backing array moving
	_, err = r.Grow(2048)
	require.NoError(t, err)
	require.Equal(t, uint64(0x1001), r.Word(8))
	require.Equal(t, 2112, len(r.Bytes()))
}

func TestRegionFailedGrowLeavesExtent(t *testing.T) {
	provider, err := region.NewSliceProvider(48)
	require.NoError(t, err)

	r, err := region.New(provider)
	require.NoError(t, err)

	_, err = r.Grow(32)
	require.NoError(t, err)

	_, err = r.Grow(32)
	require.True(t, errors.Is(err, memutils.ErrOutOfMemory))
	require.Equal(t, 32, r.Extent())
}

func TestRegionRejectsUsedProvider(t *testing.T) {
	provider, err := region.NewSliceProvider(64)
	require.NoError(t, err)
	_, err = provider.Grow(16)
	require.NoError(t, err)

	_, err = region.New(provider)
	require.Error(t, err)
}

func TestRegionRejectsNonContiguousGrowth(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := mocks.NewMockProvider(ctrl)

	provider.EXPECT().Bytes().Return(nil)
	r, err := region.New(provider)
	require.NoError(t, err)

	provider.EXPECT().Grow(32).Return(16, nil)
	provider.EXPECT().Bytes().Return(make([]byte, 48))

	_, err = r.Grow(32)
	require.Error(t, err)
	require.Contains(t, err.Error(), "non-contiguous")
	require.Equal(t, 0, r.Extent())

	// The region no longer trusts the provider, so it is not asked again
	_, err = r.Grow(32)
	require.Error(t, err)
	require.Contains(t, err.Error(), "non-contiguous")
	require.Equal(t, 0, r.Extent())
}
