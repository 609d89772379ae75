// Package files implements the file tools: read_file, write_file, and
// edit_file, all scoped to the session working directory.
package files

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config controls file tool defaults.
type Config struct {
	// WorkDir is the working directory all paths resolve against.
	WorkDir string

	// MaxReadBytes caps read_file output. Default: 256 KiB.
	MaxReadBytes int
}

// Resolver resolves and validates paths relative to the working directory.
type Resolver struct {
	Root string
}

// Resolve returns an absolute, cleaned path within the working directory.
func (r Resolver) Resolve(path string) (string, error) {
	clean := strings.TrimSpace(path)
	if clean == "" {
		return "", fmt.Errorf("path is required")
	}
	root := strings.TrimSpace(r.Root)
	if root == "" {
		root = "."
	}
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve working directory: %w", err)
	}
	var target string
	if filepath.IsAbs(clean) {
		target = filepath.Clean(clean)
	} else {
		target = filepath.Join(rootAbs, clean)
	}
	targetAbs, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	rel, err := filepath.Rel(rootAbs, targetAbs)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("path escapes working directory")
	}
	return targetAbs, nil
}
