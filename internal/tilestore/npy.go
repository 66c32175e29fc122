package tilestore

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/dabubi/drone-visual-positioning/internal/perr"
)

// loadDescriptors parses index/descriptors.npy: a NumPy .npy file holding
// an N x D float32 matrix, C-contiguous, little-endian. Only the narrow
// slice of the .npy format the offline programmer tool actually emits is
// supported: dtype "<f4", fortran_order False, a 2-tuple shape.
func loadDescriptors(dir string) ([][]float32, error) {
	path := filepath.Join(dir, descriptorsFile)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", perr.ErrInvalidInput, descriptorsFile, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)

	magic := make([]byte, 6)
	if _, err := readFull(r, magic); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", perr.ErrInvalidInput, descriptorsFile, err)
	}
	if string(magic) != "\x93NUMPY" {
		return nil, fmt.Errorf("%w: %s: bad magic", perr.ErrInvalidInput, descriptorsFile)
	}

	ver := make([]byte, 2)
	if _, err := readFull(r, ver); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", perr.ErrInvalidInput, descriptorsFile, err)
	}

	var headerLen int
	if ver[0] == 1 {
		b := make([]byte, 2)
		if _, err := readFull(r, b); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", perr.ErrInvalidInput, descriptorsFile, err)
		}
		headerLen = int(binary.LittleEndian.Uint16(b))
	} else {
		b := make([]byte, 4)
		if _, err := readFull(r, b); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", perr.ErrInvalidInput, descriptorsFile, err)
		}
		headerLen = int(binary.LittleEndian.Uint32(b))
	}

	header := make([]byte, headerLen)
	if _, err := readFull(r, header); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", perr.ErrInvalidInput, descriptorsFile, err)
	}

	rows, cols, err := parseNpyShape(string(header))
	if err != nil {
		return nil, err
	}

	out := make([][]float32, rows)
	rowBuf := make([]byte, cols*4)
	for i := 0; i < rows; i++ {
		if _, err := readFull(r, rowBuf); err != nil {
			return nil, fmt.Errorf("%w: %s: truncated descriptor data: %v", perr.ErrInvalidInput, descriptorsFile, err)
		}
		row := make([]float32, cols)
		for j := 0; j < cols; j++ {
			bits := binary.LittleEndian.Uint32(rowBuf[j*4 : j*4+4])
			row[j] = math.Float32frombits(bits)
		}
		out[i] = row
	}
	return out, nil
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

var npyDtypeRe = regexp.MustCompile(`'descr':\s*'([^']+)'`)
var npyFortranRe = regexp.MustCompile(`'fortran_order':\s*(True|False)`)
var npyShapeRe = regexp.MustCompile(`'shape':\s*\(([^)]*)\)`)

func parseNpyShape(header string) (rows, cols int, err error) {
	dtype := npyDtypeRe.FindStringSubmatch(header)
	if dtype == nil || (dtype[1] != "<f4" && dtype[1] != "|f4") {
		return 0, 0, fmt.Errorf("%w: descriptors.npy: unsupported dtype", perr.ErrInvalidInput)
	}
	fortran := npyFortranRe.FindStringSubmatch(header)
	if fortran != nil && fortran[1] == "True" {
		return 0, 0, fmt.Errorf("%w: descriptors.npy: fortran-ordered arrays unsupported", perr.ErrInvalidInput)
	}
	shape := npyShapeRe.FindStringSubmatch(header)
	if shape == nil {
		return 0, 0, fmt.Errorf("%w: descriptors.npy: missing shape", perr.ErrInvalidInput)
	}
	dims := []int{}
	for _, part := range strings.Split(shape[1], ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, convErr := strconv.Atoi(part)
		if convErr != nil {
			return 0, 0, fmt.Errorf("%w: descriptors.npy: malformed shape component %q", perr.ErrInvalidInput, part)
		}
		dims = append(dims, v)
	}
	if len(dims) != 2 {
		return 0, 0, fmt.Errorf("%w: descriptors.npy: expected a 2D array, got %d dims", perr.ErrInvalidInput, len(dims))
	}
	return dims[0], dims[1], nil
}
