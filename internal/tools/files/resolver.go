package files

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Resolver validates the absolute paths the editor is given. When Root is
// set, paths outside it are refused.
type Resolver struct {
	Root string
}

// Resolve returns the cleaned absolute path.
func (r Resolver) Resolve(path string) (string, error) {
	clean := strings.TrimSpace(path)
	if clean == "" {
		return "", fmt.Errorf("path is required")
	}
	if !filepath.IsAbs(clean) {
		suggested := clean
		if cwd, err := os.Getwd(); err == nil {
			suggested = filepath.Join(cwd, clean)
		}
		return "", fmt.Errorf("path '%s' is not absolute. Did you mean '%s'?", clean, suggested)
	}
	target := filepath.Clean(clean)

	root := strings.TrimSpace(r.Root)
	if root == "" {
		return target, nil
	}
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}
	rel, err := filepath.Rel(rootAbs, target)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("path '%s' is outside %s", clean, rootAbs)
	}
	return target, nil
}
