package tileindex

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dabubi/drone-visual-positioning/internal/tilestore"
)

func samplePack() *tilestore.MapPack {
	return &tilestore.MapPack{
		Tiles: []tilestore.TileEntry{
			{Z: 14, X: 0, Y: 0, Path: "a.png", Lat: 1, Lon: 1},
			{Z: 14, X: 1, Y: 0, Path: "b.png", Lat: 2, Lon: 2},
			{Z: 14, X: 2, Y: 0, Path: "c.png", Lat: 3, Lon: 3},
		},
		Descriptors: [][]float32{
			{0, 0, 0, 0},
			{1, 1, 1, 1},
			{10, 10, 10, 10},
		},
	}
}

func TestSearchOrdersByDistanceAscending(t *testing.T) {
	idx := Build(samplePack())
	matches := idx.Search([]float32{0, 0, 0, 0}, 3)
	require.Len(t, matches, 3)
	require.Equal(t, "a.png", matches[0].Entry.Path)
	require.Equal(t, "b.png", matches[1].Entry.Path)
	require.Equal(t, "c.png", matches[2].Entry.Path)
	require.True(t, matches[0].Distance <= matches[1].Distance)
	require.True(t, matches[1].Distance <= matches[2].Distance)
}

func TestSearchClampsKToTileCount(t *testing.T) {
	idx := Build(samplePack())
	matches := idx.Search([]float32{0, 0, 0, 0}, 100)
	require.Len(t, matches, 3)
}

func TestSearchEmptyPackReturnsEmpty(t *testing.T) {
	idx := Build(&tilestore.MapPack{})
	matches := idx.Search([]float32{0, 0, 0, 0}, 5)
	require.Empty(t, matches)
}

func TestSearchRejectsNonPositiveK(t *testing.T) {
	idx := Build(samplePack())
	require.Empty(t, idx.Search([]float32{0, 0, 0, 0}, 0))
}

func TestBuildUsesPartitioningAboveThreshold(t *testing.T) {
	n := exhaustiveThreshold + 500
	tiles := make([]tilestore.TileEntry, n)
	descriptors := make([][]float32, n)
	for i := 0; i < n; i++ {
		tiles[i] = tilestore.TileEntry{Z: 10, X: i, Y: 0, Path: "t.png"}
		v := float32(i % 50)
		descriptors[i] = []float32{v, v, v, v}
	}
	pack := &tilestore.MapPack{Tiles: tiles, Descriptors: descriptors}

	idx := Build(pack)
	require.True(t, idx.partitioned)
	require.LessOrEqual(t, len(idx.centroids), 256)

	matches := idx.Search([]float32{0, 0, 0, 0}, 5)
	require.NotEmpty(t, matches)
	require.LessOrEqual(t, len(matches), 5)
}
