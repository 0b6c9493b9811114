// Package pathguard validates repository roots and enforces glob-based
// write scopes. Glob matching follows git-style patterns via doublestar.
// Enforcement is advisory toward the operator CLI (the globs travel in
// the prompt) and verified post-hoc against the filesystem by the result
// parser.
package pathguard

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrInvalidPath marks a rejected repo root or candidate path.
var ErrInvalidPath = errors.New("invalid path")

// InternalDirName is the per-repo hidden directory owned by ninja.
const InternalDirName = ".ninja"

// builtinDeny always blocks writes regardless of the request's globs.
var builtinDeny = []string{
	".git/**",
	InternalDirName + "/**",
	".DS_Store",
	"Thumbs.db",
	"desktop.ini",
}

// ValidateRepoRoot canonicalizes path and verifies it is an existing
// directory. Symlinks are followed, including outside the tree; the
// resolved path is the one all later containment checks use.
func ValidateRepoRoot(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("%w: empty repo root", ErrInvalidPath)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %s does not resolve: %v", ErrInvalidPath, path, err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidPath, path, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", ErrInvalidPath, path)
	}
	if strings.Contains(filepath.ToSlash(resolved), "/../") {
		return "", fmt.Errorf("%w: %s contains traversal after canonicalization", ErrInvalidPath, path)
	}
	return resolved, nil
}

// IsWithin reports whether candidate resolves inside root. Both sides are
// canonicalized; for a candidate that does not exist yet, its closest
// existing ancestor is resolved instead.
func IsWithin(candidate, root string) bool {
	resolvedRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return false
	}
	abs, err := filepath.Abs(candidate)
	if err != nil {
		return false
	}
	resolved, err := resolveExisting(abs)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(resolvedRoot, resolved)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, ".."+string(filepath.Separator)) && rel != "..")
}

// resolveExisting canonicalizes the longest existing prefix of path and
// re-appends the missing remainder.
func resolveExisting(path string) (string, error) {
	var tail []string
	current := path
	for {
		resolved, err := filepath.EvalSymlinks(current)
		if err == nil {
			for i := len(tail) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, tail[i])
			}
			return resolved, nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", err
		}
		tail = append(tail, filepath.Base(current))
		current = parent
	}
}

// EnsureInternalDirs creates the per-repo hidden directory with its
// standard subfolders, mode 0700.
func EnsureInternalDirs(root string) (string, error) {
	base := filepath.Join(root, InternalDirName)
	for _, sub := range []string{"", "logs", "tasks", "meta"} {
		if err := os.MkdirAll(filepath.Join(base, sub), 0o700); err != nil {
			return "", fmt.Errorf("create internal dir: %w", err)
		}
	}
	return base, nil
}

// Guard holds one request's write scope.
type Guard struct {
	Root    string
	Allowed []string
	Deny    []string
}

// New builds a Guard for a validated repo root.
func New(root string, allowed, deny []string) *Guard {
	return &Guard{Root: root, Allowed: allowed, Deny: deny}
}

// Permits reports whether a write to the repo-relative path is inside the
// scope: within the root, matching at least one allowed glob (an empty
// allow list permits everything), and matching no deny glob and none of
// the built-in deny list.
func (g *Guard) Permits(rel string) bool {
	rel = filepath.ToSlash(filepath.Clean(rel))
	if rel == "." || strings.HasPrefix(rel, "../") || filepath.IsAbs(rel) {
		return false
	}
	if !IsWithin(filepath.Join(g.Root, rel), g.Root) {
		return false
	}
	for _, pattern := range builtinDeny {
		if matchGlob(pattern, rel) {
			return false
		}
	}
	for _, pattern := range g.Deny {
		if matchGlob(pattern, rel) {
			return false
		}
	}
	if len(g.Allowed) == 0 {
		return true
	}
	for _, pattern := range g.Allowed {
		if matchGlob(pattern, rel) {
			return true
		}
	}
	return false
}

// Violations returns the subset of repo-relative paths outside the scope.
func (g *Guard) Violations(paths []string) []string {
	var out []string
	for _, p := range paths {
		if !g.Permits(p) {
			out = append(out, p)
		}
	}
	return out
}

// matchGlob matches one git-style pattern against a slash-separated
// relative path. A bare directory prefix like "src/**" also matches the
// directory itself.
func matchGlob(pattern, rel string) bool {
	ok, err := doublestar.Match(pattern, rel)
	if err != nil {
		return false
	}
	if ok {
		return true
	}
	// "dir/**" should cover "dir" and files directly under it.
	if strings.HasSuffix(pattern, "/**") {
		base := strings.TrimSuffix(pattern, "/**")
		if rel == base {
			return true
		}
		if ok, err := doublestar.Match(base+"/**/*", rel); err == nil && ok {
			return true
		}
	}
	return false
}
