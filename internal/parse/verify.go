package parse

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ninjastack/ninja/internal/pathguard"
)

// VerifyPaths resolves each claimed path against the repo root and keeps
// only those that exist on disk inside the root. Returned paths are
// repo-relative with forward slashes, first-seen order preserved.
func VerifyPaths(claims []string, repoRoot string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, claim := range claims {
		full := claim
		if !filepath.IsAbs(full) {
			full = filepath.Join(repoRoot, claim)
		}
		if !pathguard.IsWithin(full, repoRoot) {
			continue
		}
		info, err := os.Stat(full)
		if err != nil || info.IsDir() {
			continue
		}
		rel, err := filepath.Rel(repoRoot, full)
		if err != nil {
			continue
		}
		rel = filepath.ToSlash(rel)
		if !seen[rel] {
			seen[rel] = true
			out = append(out, rel)
		}
	}
	return out
}

// RecentlyModified scans the repo tree for regular files modified after
// cutoff, excluding hidden directories and the per-repo internal
// directory. At most limit paths are returned, most recent first,
// repo-relative.
func RecentlyModified(repoRoot string, cutoff time.Time, limit int) []string {
	type hit struct {
		rel   string
		mtime time.Time
	}
	var hits []hit

	_ = filepath.WalkDir(repoRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // unreadable entries are skipped, not fatal
		}
		name := d.Name()
		if d.IsDir() {
			if path != repoRoot && (strings.HasPrefix(name, ".") || name == pathguard.InternalDirName) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil //nolint:nilerr
		}
		if info.ModTime().After(cutoff) {
			if rel, err := filepath.Rel(repoRoot, path); err == nil {
				hits = append(hits, hit{rel: filepath.ToSlash(rel), mtime: info.ModTime()})
			}
		}
		return nil
	})

	sort.Slice(hits, func(i, j int) bool { return hits[i].mtime.After(hits[j].mtime) })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.rel
	}
	return out
}
