// Package tileindex implements nearest-neighbor search over a MapPack's
// tile global descriptors.
package tileindex

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/dabubi/drone-visual-positioning/internal/tilestore"
)

// Match pairs a tile entry with its squared-Euclidean distance from a
// query descriptor.
type Match struct {
	Entry    tilestore.TileEntry
	Distance float64
}

// exhaustiveThreshold is the tile count below which Index performs a
// brute-force scan instead of partitioning into an inverted file.
const exhaustiveThreshold = 10000

// Index holds the descriptor matrix of a MapPack plus, above
// exhaustiveThreshold tiles, a coarse partition used to prune the search.
type Index struct {
	entries     []tilestore.TileEntry
	descriptors [][]float32

	partitioned bool
	centroids   [][]float32
	buckets     [][]int // buckets[c] holds row indices assigned to centroid c
}

// Build constructs an Index over pack's tiles and descriptors. For packs
// under exhaustiveThreshold entries, search is a brute-force scan. Larger
// packs are partitioned into floor(min(256, N/10)) centroids via a
// single-pass k-means seeded on evenly spaced rows, trading a small amount
// of recall for search time that no longer scales linearly with N.
func Build(pack *tilestore.MapPack) *Index {
	idx := &Index{
		entries:     pack.Tiles,
		descriptors: pack.Descriptors,
	}
	n := len(pack.Descriptors)
	if n < exhaustiveThreshold {
		return idx
	}

	k := n / 10
	if k > 256 {
		k = 256
	}
	if k < 1 {
		return idx
	}

	idx.partitioned = true
	idx.centroids = seedCentroids(pack.Descriptors, k)
	idx.buckets = assignBuckets(pack.Descriptors, idx.centroids)
	idx.centroids = recomputeCentroids(pack.Descriptors, idx.buckets, idx.centroids)
	idx.buckets = assignBuckets(pack.Descriptors, idx.centroids)
	return idx
}

// recomputeCentroids replaces each centroid with the per-dimension mean of
// its assigned descriptors (one Lloyd's-algorithm refinement step). Empty
// buckets keep their seed centroid.
func recomputeCentroids(descriptors [][]float32, buckets [][]int, seeds [][]float32) [][]float32 {
	dim := len(seeds[0])
	refined := make([][]float32, len(seeds))
	column := make([]float64, 0, len(descriptors))
	for c, bucket := range buckets {
		if len(bucket) == 0 {
			refined[c] = seeds[c]
			continue
		}
		newCentroid := make([]float32, dim)
		for d := 0; d < dim; d++ {
			column = column[:0]
			for _, row := range bucket {
				column = append(column, float64(descriptors[row][d]))
			}
			newCentroid[d] = float32(stat.Mean(column, nil))
		}
		refined[c] = newCentroid
	}
	return refined
}

func seedCentroids(descriptors [][]float32, k int) [][]float32 {
	n := len(descriptors)
	centroids := make([][]float32, k)
	stride := n / k
	if stride < 1 {
		stride = 1
	}
	for i := 0; i < k; i++ {
		row := (i * stride) % n
		c := make([]float32, len(descriptors[row]))
		copy(c, descriptors[row])
		centroids[i] = c
	}
	return centroids
}

func assignBuckets(descriptors [][]float32, centroids [][]float32) [][]int {
	buckets := make([][]int, len(centroids))
	for i, d := range descriptors {
		best, bestDist := 0, sqDist(d, centroids[0])
		for c := 1; c < len(centroids); c++ {
			if dist := sqDist(d, centroids[c]); dist < bestDist {
				best, bestDist = c, dist
			}
		}
		buckets[best] = append(buckets[best], i)
	}
	return buckets
}

func sqDist(a, b []float32) float64 {
	var sum float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

// nearestCentroids returns the indices of the nProbe centroids closest to
// query, ordered nearest-first.
func (idx *Index) nearestCentroids(query []float32, nProbe int) []int {
	type scored struct {
		i    int
		dist float64
	}
	scoredCentroids := make([]scored, len(idx.centroids))
	for i, c := range idx.centroids {
		scoredCentroids[i] = scored{i, sqDist(query, c)}
	}
	sort.Slice(scoredCentroids, func(a, b int) bool {
		return scoredCentroids[a].dist < scoredCentroids[b].dist
	})
	if nProbe > len(scoredCentroids) {
		nProbe = len(scoredCentroids)
	}
	out := make([]int, nProbe)
	for i := 0; i < nProbe; i++ {
		out[i] = scoredCentroids[i].i
	}
	return out
}

// Search returns up to k tiles nearest to query by squared Euclidean
// distance, sorted non-decreasing. k is clamped to the number of tiles.
// An empty index returns an empty slice.
func (idx *Index) Search(query []float32, k int) []Match {
	if len(idx.entries) == 0 {
		return nil
	}
	if k > len(idx.entries) {
		k = len(idx.entries)
	}
	if k <= 0 {
		return nil
	}

	var candidates []int
	if idx.partitioned {
		const nProbe = 4
		for _, c := range idx.nearestCentroids(query, nProbe) {
			candidates = append(candidates, idx.buckets[c]...)
		}
		if len(candidates) == 0 {
			// Degenerate partition (e.g. empty buckets); fall back to a
			// full scan rather than return nothing.
			candidates = allIndices(len(idx.entries))
		}
	} else {
		candidates = allIndices(len(idx.entries))
	}

	matches := make([]Match, len(candidates))
	for i, row := range candidates {
		matches[i] = Match{
			Entry:    idx.entries[row],
			Distance: sqDist(query, idx.descriptors[row]),
		}
	}
	sort.Slice(matches, func(a, b int) bool { return matches[a].Distance < matches[b].Distance })

	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

func allIndices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// Len returns the number of tiles held by the index.
func (idx *Index) Len() int { return len(idx.entries) }
