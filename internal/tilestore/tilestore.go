// Package tilestore loads a map pack prepared by the offline programmer
// tool and exposes tile metadata plus on-demand tile image bytes.
package tilestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dabubi/drone-visual-positioning/internal/geo"
	"github.com/dabubi/drone-visual-positioning/internal/perr"
	"github.com/dabubi/drone-visual-positioning/internal/security"
)

// Metadata mirrors metadata.json at the pack root.
type Metadata struct {
	CenterLat  float64 `json:"center_lat"`
	CenterLon  float64 `json:"center_lon"`
	RadiusKm   float64 `json:"radius_km"`
	ZoomLevels []int   `json:"zoom_levels"`
	TileCount  int     `json:"tile_count"`
	CreatedAt  string  `json:"created_at"`
	Version    string  `json:"version"`
}

// TileEntry is one row of index/tile_list.json. Row order matches the
// descriptor matrix row order.
type TileEntry struct {
	Z    int    `json:"z"`
	X    int    `json:"x"`
	Y    int    `json:"y"`
	Path string `json:"path"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// Coord returns the TileCoord this entry addresses.
func (e TileEntry) Coord() geo.TileCoord {
	return geo.TileCoord{Z: e.Z, X: e.X, Y: e.Y}
}

// Center returns the entry's tile-center point.
func (e TileEntry) Center() geo.GeoPoint {
	return geo.GeoPoint{Lat: e.Lat, Lon: e.Lon}
}

// MapPack is the read-only, pack-lifetime-stable product of a Load call.
// It is safe for concurrent reads by any number of goroutines; nothing in
// it is ever mutated after Load returns.
type MapPack struct {
	dir         string
	Metadata    Metadata
	Tiles       []TileEntry
	Descriptors [][]float32 // Descriptors[i] corresponds to Tiles[i]
}

const (
	metadataFile    = "metadata.json"
	tileListFile    = "index/tile_list.json"
	descriptorsFile = "index/descriptors.npy"
)

// Load reads metadata, the tile list, and the descriptor matrix from dir.
// It validates that every tile referenced by the list resolves to a path
// inside dir, but does not read tile image bytes eagerly — those are
// fetched on demand via Image.
//
// The pack also carries an index/faiss.index file produced by the offline
// tool; this loader does not read it; nearest-neighbor search is performed
// directly over Descriptors by the tileindex package instead.
func Load(dir string) (*MapPack, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: pack directory %q not found", perr.ErrInvalidInput, dir)
	}

	meta, err := loadMetadata(dir)
	if err != nil {
		return nil, err
	}

	tiles, err := loadTileList(dir)
	if err != nil {
		return nil, err
	}

	descriptors, err := loadDescriptors(dir)
	if err != nil {
		return nil, err
	}
	if len(descriptors) != len(tiles) {
		return nil, fmt.Errorf("%w: descriptor count %d does not match tile count %d", perr.ErrInvalidInput, len(descriptors), len(tiles))
	}

	if err := validateUniqueCoords(tiles); err != nil {
		return nil, err
	}

	return &MapPack{
		dir:         dir,
		Metadata:    meta,
		Tiles:       tiles,
		Descriptors: descriptors,
	}, nil
}

func validateUniqueCoords(tiles []TileEntry) error {
	seen := make(map[geo.TileCoord]struct{}, len(tiles))
	for _, t := range tiles {
		c := t.Coord()
		if _, dup := seen[c]; dup {
			return fmt.Errorf("%w: duplicate tile coordinate z=%d x=%d y=%d", perr.ErrInvalidInput, c.Z, c.X, c.Y)
		}
		seen[c] = struct{}{}
	}
	return nil
}

func loadMetadata(dir string) (Metadata, error) {
	path := filepath.Join(dir, metadataFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: reading %s: %v", perr.ErrInvalidInput, metadataFile, err)
	}
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return Metadata{}, fmt.Errorf("%w: parsing %s: %v", perr.ErrInvalidInput, metadataFile, err)
	}
	return m, nil
}

func loadTileList(dir string) ([]TileEntry, error) {
	path := filepath.Join(dir, tileListFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", perr.ErrInvalidInput, tileListFile, err)
	}
	var entries []TileEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", perr.ErrInvalidInput, tileListFile, err)
	}
	return entries, nil
}

// Image returns the raw PNG bytes for entry, verifying the resolved path
// stays within the pack directory.
func (p *MapPack) Image(entry TileEntry) ([]byte, error) {
	full := filepath.Join(p.dir, entry.Path)
	if err := security.ValidatePathWithinDirectory(full, p.dir); err != nil {
		return nil, fmt.Errorf("%w: %v", perr.ErrInvalidInput, err)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("%w: reading tile %s: %v", perr.ErrResourceUnavailable, entry.Path, err)
	}
	return data, nil
}

// Len returns the number of tiles in the pack.
func (p *MapPack) Len() int { return len(p.Tiles) }

// DescriptorDim returns the dimensionality of the descriptor vectors, or 0
// for an empty pack.
func (p *MapPack) DescriptorDim() int {
	if len(p.Descriptors) == 0 {
		return 0
	}
	return len(p.Descriptors[0])
}
