package security

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dabubi/drone-visual-positioning/internal/perr"
)

// ValidatePathWithinDirectory checks if a file path is within a safe directory.
// It prevents path traversal attacks by ensuring the resolved path doesn't escape
// the specified safe directory.
func ValidatePathWithinDirectory(filePath, safeDir string) error {
	// Clean the path to resolve . and .. components
	cleanPath := filepath.Clean(filePath)

	// Get absolute paths for proper validation
	absPath, err := filepath.Abs(cleanPath)
	if err != nil {
		return fmt.Errorf("failed to resolve absolute path: %w", perr.ErrInvalidInput)
	}

	absSafeDir, err := filepath.Abs(safeDir)
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory path: %w", perr.ErrInvalidInput)
	}

	// Resolve symlinks in the longest existing prefix of each path so a link
	// inside the safe directory cannot point outside it.
	resolve := func(p string) string {
		rest := ""
		for cur := p; ; cur = filepath.Dir(cur) {
			if r, err := filepath.EvalSymlinks(cur); err == nil {
				return filepath.Join(r, rest)
			}
			if filepath.Dir(cur) == cur {
				return p
			}
			rest = filepath.Join(filepath.Base(cur), rest)
		}
	}
	absPath, absSafeDir = resolve(absPath), resolve(absSafeDir)

	// Check if path is within safe directory
	relPath, err := filepath.Rel(absSafeDir, absPath)
	if err != nil {
		return fmt.Errorf("path is outside safe directory: %w", perr.ErrInvalidInput)
	}

	// Reject paths that escape the safe directory
	if relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) || filepath.IsAbs(relPath) {
		return fmt.Errorf("path traversal detected: %s attempts to escape %s: %w", filePath, safeDir, perr.ErrInvalidInput)
	}

	return nil
}

// ValidatePathWithinAllowedDirs checks if a file path is within any of the allowed directories.
// Returns nil if the path is valid, or an error describing why it was rejected.
func ValidatePathWithinAllowedDirs(filePath string, allowedDirs []string) error {
	if len(allowedDirs) == 0 {
		return fmt.Errorf("no allowed directories specified: %w", perr.ErrInvalidInput)
	}

	for _, dir := range allowedDirs {
		if err := ValidatePathWithinDirectory(filePath, dir); err == nil {
			return nil // Path is valid within this directory
		}
	}

	// Path is not within any allowed directory
	return fmt.Errorf("path must be within one of the allowed directories: %v: %w", allowedDirs, perr.ErrInvalidInput)
}

// ValidateExportPath validates a file path for export operations.
// It ensures the path is within either the temp directory or current working directory.
func ValidateExportPath(filePath string) error {
	tempDir := os.TempDir()
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", perr.ErrInvalidInput)
	}

	allowedDirs := []string{tempDir, cwd}
	return ValidatePathWithinAllowedDirs(filePath, allowedDirs)
}

// ValidateOutputPath validates a destination path for flight-record and
// telemetry artifacts written by cmd/locator (recorder .bin files, CSV
// telemetry logs). Output artifacts are written under the temp directory or
// the process's working directory, same as an export, so it shares
// ValidateExportPath's rule rather than duplicating it.
func ValidateOutputPath(filePath string) error {
	return ValidateExportPath(filePath)
}

// invalidFilenameRun matches any maximal run of characters that are not
// safe to use unescaped in a filename.
var invalidFilenameRun = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// maxFilenameLen bounds the sanitized result so a pathological session ID
// can't produce a filename exceeding common filesystem limits.
const maxFilenameLen = 128

// SanitizeFilename reduces input to a safe filename component: invalid
// characters (including path separators) collapse to underscores, leading
// and trailing dots/underscores are stripped so ".." and "__" artifacts
// don't survive, and the result is capped at maxFilenameLen bytes. Used to
// derive recorder/telemetry file names from session identifiers that may
// contain arbitrary operator-supplied text.
func SanitizeFilename(input string) string {
	if input == "" {
		return "unknown"
	}

	sanitized := invalidFilenameRun.ReplaceAllString(input, "_")
	sanitized = strings.Trim(sanitized, "._")
	if sanitized == "" {
		return "unknown"
	}

	if len(sanitized) > maxFilenameLen {
		sanitized = sanitized[:maxFilenameLen]
	}
	return sanitized
}
