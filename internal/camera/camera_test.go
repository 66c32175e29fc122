package camera

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.Gray{Y: uint8(x * y)})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestNewReplaySourceRejectsEmptyDir(t *testing.T) {
	_, err := NewReplaySource(t.TempDir(), false)
	require.Error(t, err)
}

func TestReplaySourceGrabsInOrder(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"))
	writePNG(t, filepath.Join(dir, "b.png"))

	src, err := NewReplaySource(dir, false)
	require.NoError(t, err)

	img1, err := src.Grab()
	require.NoError(t, err)
	require.NotNil(t, img1)

	img2, err := src.Grab()
	require.NoError(t, err)
	require.NotNil(t, img2)

	_, err = src.Grab()
	require.Error(t, err)
}

func TestReplaySourceLoops(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"))

	src, err := NewReplaySource(dir, true)
	require.NoError(t, err)

	_, err = src.Grab()
	require.NoError(t, err)
	_, err = src.Grab()
	require.NoError(t, err)
}

func TestReplaySourceRemainingCountsDown(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"))
	writePNG(t, filepath.Join(dir, "b.png"))

	src, err := NewReplaySource(dir, false)
	require.NoError(t, err)
	require.Equal(t, 2, src.Remaining())
	_, err = src.Grab()
	require.NoError(t, err)
	require.Equal(t, 1, src.Remaining())
}

func TestReplaySourceCloseIsNoop(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"))
	src, err := NewReplaySource(dir, false)
	require.NoError(t, err)
	require.NoError(t, src.Close())
}
