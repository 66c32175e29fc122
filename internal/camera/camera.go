// Package camera defines the frame-source capability contract the frame
// loop depends on and a deterministic replay backend for tests and
// offline runs. Real camera backends (V4L2, CSI, RTSP) are outside this
// module's scope; only their capability contract is specified here.
package camera

import (
	"fmt"
	"image"
	"io/fs"
	"path/filepath"
	"sort"
	"time"

	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/dabubi/drone-visual-positioning/internal/perr"
)

// Source yields one captured frame at a time. Implementations abstract
// over the underlying camera backend; Grab is expected to block for at
// most the backend's native grab timeout.
type Source interface {
	// Grab returns the next available frame, or a Transient error if a
	// single grab attempt failed (the frame loop retries next tick).
	Grab() (image.Image, error)
	// Close releases any backend resources.
	Close() error
}

// ReplaySource yields frames from an ordered directory of image files,
// looping back to the first frame once exhausted when created with loop
// set. It is used for
// deterministic tests and offline replay in place of a live camera.
type ReplaySource struct {
	paths []string
	idx   int
	loop  bool
}

// NewReplaySource lists dir for image files (.png, .jpg, .jpeg), sorted
// by name, and returns a ReplaySource over them. loop controls whether
// Grab wraps back to the first frame after the last.
func NewReplaySource(dir string, loop bool) (*ReplaySource, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch filepath.Ext(path) {
		case ".png", ".jpg", ".jpeg":
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: listing replay frames in %q: %v", perr.ErrResourceUnavailable, dir, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no frames found in %q", perr.ErrResourceUnavailable, dir)
	}
	sort.Strings(paths)
	return &ReplaySource{paths: paths, loop: loop}, nil
}

// Grab decodes and returns the next frame in sequence.
func (r *ReplaySource) Grab() (image.Image, error) {
	if r.idx >= len(r.paths) {
		if !r.loop {
			return nil, fmt.Errorf("%w: replay frames exhausted", perr.ErrTransient)
		}
		r.idx = 0
	}
	path := r.paths[r.idx]
	r.idx++

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening replay frame %q: %v", perr.ErrTransient, path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding replay frame %q: %v", perr.ErrTransient, path, err)
	}
	return img, nil
}

// Remaining reports how many distinct frames are left before the replay
// either loops or is exhausted.
func (r *ReplaySource) Remaining() int {
	if r.idx >= len(r.paths) {
		return 0
	}
	return len(r.paths) - r.idx
}

// Close is a no-op; ReplaySource holds no persistent handle between
// Grab calls.
func (r *ReplaySource) Close() error { return nil }

// NativeGrabTimeout is the default per-call budget the frame loop waits
// for a live camera backend; replay sources complete well under this.
const NativeGrabTimeout = 200 * time.Millisecond
