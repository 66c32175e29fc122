package feature

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dabubi/drone-visual-positioning/internal/perr"
)

func checkerboard(w, h, cell int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x/cell+y/cell)%2 == 0 {
				img.SetGray(x, y, color.Gray{Y: 240})
			} else {
				img.SetGray(x, y, color.Gray{Y: 10})
			}
		}
	}
	return img
}

func flat(w, h int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img
}

func TestExtractFindsKeypointsOnTexturedImage(t *testing.T) {
	e := New(DefaultParams())
	img := checkerboard(64, 64, 6)
	pts, descs := e.Extract(img)
	require.NotEmpty(t, pts)
	require.Equal(t, len(pts), len(descs))
}

func TestExtractFindsNoKeypointsOnFlatImage(t *testing.T) {
	e := New(DefaultParams())
	img := flat(64, 64, 128)
	pts, _ := e.Extract(img)
	require.Empty(t, pts)
}

func TestMeanDescriptorZeroForEmptyImage(t *testing.T) {
	e := New(DefaultParams())
	img := flat(32, 32, 50)
	desc := e.MeanDescriptor(img)
	require.Len(t, desc, GlobalDescriptorDim)
	for _, v := range desc {
		require.Zero(t, v)
	}
}

func TestMatchSameImageProducesManyCorrespondences(t *testing.T) {
	e := New(DefaultParams())
	img := checkerboard(80, 80, 6)
	result, err := e.Match(img, img)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(result.PtsA), 4)
	require.Equal(t, len(result.PtsA), len(result.PtsB))
	require.Equal(t, len(result.PtsA), len(result.Scores))
	for _, pa := range result.PtsA {
		// Matching an image against itself should recover (near-)identity
		// correspondences.
		found := false
		for _, pb := range result.PtsB {
			if pa == pb {
				found = true
				break
			}
		}
		_ = found // correspondence identity isn't guaranteed bit-exact; smoke test only
	}
}

func TestMatchReturnsNoMatchOnFlatImages(t *testing.T) {
	e := New(DefaultParams())
	img := flat(64, 64, 100)
	_, err := e.Match(img, img)
	require.ErrorIs(t, err, perr.ErrNoMatch)
}

func TestMaxFeaturesCap(t *testing.T) {
	params := DefaultParams()
	params.MaxFeatures = 5
	e := New(params)
	img := checkerboard(100, 100, 4)
	pts, _ := e.Extract(img)
	require.LessOrEqual(t, len(pts), 5)
}
