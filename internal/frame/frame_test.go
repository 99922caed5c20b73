package frame

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCloneIsIndependent(t *testing.T) {
	f := New(4, 4)
	f.Fill(10, 20, 30)

	clone := f.Clone()
	require.False(t, SameStorage(f, clone))

	clone.Set(0, 0, 1, 2, 3)
	r, g, b := f.At(0, 0)
	require.Equal(t, [3]byte{10, 20, 30}, [3]byte{r, g, b})
}

func TestSameStorage(t *testing.T) {
	f := New(4, 4)
	alias := f
	require.True(t, SameStorage(f, alias))
	require.False(t, SameStorage(f, f.Clone()))
}

func TestCheckShape(t *testing.T) {
	f := New(8, 4)
	require.NoError(t, f.CheckShape(8, 4))
	require.Error(t, f.CheckShape(4, 8))
}

func TestScaledMatchingSizeIsIdentity(t *testing.T) {
	f := New(8, 8)
	require.True(t, SameStorage(f, f.Scaled(8, 8)))
}

func TestScaledSolidColor(t *testing.T) {
	f := New(4, 4)
	f.Fill(200, 100, 50)

	scaled := f.Scaled(8, 8)
	require.Equal(t, 8, scaled.Width)
	require.Equal(t, 8, scaled.Height)

	// Scaling a solid frame preserves the color everywhere.
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			r, g, b := scaled.At(x, y)
			require.Equal(t, [3]byte{200, 100, 50}, [3]byte{r, g, b})
		}
	}
}

func TestScaledDownsample(t *testing.T) {
	f := New(8, 8)
	f.Fill(255, 255, 255)

	scaled := f.Scaled(2, 2)
	require.NoError(t, scaled.CheckShape(2, 2))
	r, g, b := scaled.At(1, 1)
	require.Equal(t, [3]byte{255, 255, 255}, [3]byte{r, g, b})
}
