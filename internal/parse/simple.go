package parse

import (
	"regexp"
	"time"
)

// SimpleResult is the parse product for quick tasks without fenced JSON.
type SimpleResult struct {
	Summary      string
	TouchedPaths []string
}

// barePathRe matches a line that is nothing but a path, as the quick-task
// output contract requests ("one path per line").
var barePathRe = regexp.MustCompile(`(?m)^\s*([\w~-][\w./~-]*[/.][\w./~-]*)\s*$`)

// ParseSimple extracts a summary and verified touched paths from quick
// task output. It is also used standalone for offline log inspection.
func ParseSimple(output, repoRoot string, start time.Time) SimpleResult {
	var claims []string
	for _, m := range barePathRe.FindAllStringSubmatch(output, -1) {
		if c := cleanPathCandidate(m[1]); c != "" {
			claims = append(claims, c)
		}
	}
	claims = append(claims, extractPathClaims(Spec{}, output)...)

	verified := VerifyPaths(claims, repoRoot)
	if len(verified) == 0 && hasActionIntent(output) {
		verified = RecentlyModified(repoRoot, start.Add(-mtimeSlack), recentScanLimit)
	}
	return SimpleResult{
		Summary:      successSummary(output),
		TouchedPaths: verified,
	}
}
