package pathutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotExist is returned when a path does not exist on disk
var ErrNotExist = errors.New("path does not exist")

// ExpandPath expands tilde (~) to home directory and converts to absolute path
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path cannot be empty")
	}

	if strings.HasPrefix(path, "~/") || path == "~" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get user home directory: %w", err)
		}

		if path == "~" {
			path = homeDir
		} else {
			path = filepath.Join(homeDir, path[2:])
		}
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	return absPath, nil
}

// ValidatePath checks if a path exists on the filesystem
func ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotExist, path)
		}
		return fmt.Errorf("cannot access path: %w", err)
	}

	return nil
}

// ExpandAndValidatePath expands tilde and validates that the path exists
func ExpandAndValidatePath(path string) (string, error) {
	expanded, err := ExpandPath(path)
	if err != nil {
		return "", err
	}

	if err := ValidatePath(expanded); err != nil {
		return "", err
	}

	return expanded, nil
}

// HasSegment reports whether any element of path equals one of segments.
// Matching is on whole elements, so "dist" does not match "distance".
func HasSegment(path string, segments []string) bool {
	if len(segments) == 0 {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		for _, seg := range segments {
			if part == seg {
				return true
			}
		}
	}
	return false
}

// HasExtension reports whether the file name ends in one of exts.
// Extensions are compared case-insensitively and must include the dot.
func HasExtension(path string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return false
	}
	for _, e := range exts {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}
