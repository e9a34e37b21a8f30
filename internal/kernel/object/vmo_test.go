package object

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshx-org/fiber/internal/fx"
)

func TestNewVmoRoundsToPage(t *testing.T) {
	tests := []struct {
		size uint64
		want uint64
	}{
		{0, 0},
		{1, PageSize},
		{PageSize, PageSize},
		{PageSize + 1, 2 * PageSize},
	}

	for _, tt := range tests {
		v, status := NewVmo(tt.size, nil)
		require.Equal(t, fx.OK, status)
		assert.Equal(t, tt.want, v.Size(), "size %d", tt.size)
	}

	_, status := NewVmo(MaxVmoSize+1, nil)
	assert.Equal(t, fx.ErrOutOfRange, status)
}

func TestVmoReadWrite(t *testing.T) {
	v, status := NewVmo(PageSize, nil)
	require.Equal(t, fx.OK, status)

	require.Equal(t, fx.OK, v.Write(10, []byte("fiber")))
	got, status := v.Read(10, 5)
	require.Equal(t, fx.OK, status)
	assert.Equal(t, "fiber", string(got))

	tests := []struct {
		name   string
		offset uint64
		length uint64
	}{
		{"past the end", PageSize - 2, 4},
		{"offset beyond size", PageSize + 1, 0},
		{"overflow", ^uint64(0), 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, status := v.Read(tt.offset, tt.length)
			assert.Equal(t, fx.ErrOutOfRange, status)
			assert.Equal(t, fx.ErrOutOfRange, v.Write(tt.offset, make([]byte, tt.length)))
		})
	}
}

func TestVmoSetSizeZeroFillsGrowth(t *testing.T) {
	v, status := NewVmo(2*PageSize, nil)
	require.Equal(t, fx.OK, status)
	require.Equal(t, fx.OK, v.Write(PageSize, []byte{0xff}))

	require.Equal(t, fx.OK, v.SetSize(PageSize))
	assert.Equal(t, uint64(PageSize), v.Size())

	require.Equal(t, fx.OK, v.SetSize(3*PageSize))
	got, status := v.Read(PageSize, 1)
	require.Equal(t, fx.OK, status)
	assert.Equal(t, []byte{0}, got)

	assert.Equal(t, fx.ErrOutOfRange, v.SetSize(MaxVmoSize+1))
}
