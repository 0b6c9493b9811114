// Package parse turns raw operator CLI output into structured results.
// The pipeline is shared across all CLIs; each strategy plugs in its own
// path-claim regexes. The filesystem, not the CLI's text, is the
// authority on which files were actually touched.
package parse

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ninjastack/ninja/internal/plan"
)

// Spec carries the CLI-specific pieces of the pipeline.
type Spec struct {
	CLIName string
	// PathPatterns claim touched paths in the CLI's own phrasing. Each
	// pattern must expose the path as capture group 1.
	PathPatterns []*regexp.Regexp
}

// Outcome is the normalized parse result for one CLI invocation.
type Outcome struct {
	Success      bool
	Summary      string
	Notes        string
	TouchedPaths []string // repo-relative, verified on disk
	ErrorKind    plan.ErrorKind
	Structured   *plan.ExecutionResult // adopted fenced JSON result, if any
}

// Error taxonomies scanned over combined stdout+stderr.
var (
	authPatterns = regexp.MustCompile(`(?i)AuthenticationError|User not found|Unauthorized|HTTP/?\s*401|HTTP/?\s*403|status(?: code)? 401|status(?: code)? 403|invalid[ _-]?api[ _-]?key`)

	creditPatterns = regexp.MustCompile(`(?i)insufficient credits|requires more credits|can only afford|quota exceeded`)

	apiPatterns = regexp.MustCompile(`APIError|APIConnectionError|BadRequestError|PermissionDeniedError|RateLimitError`)
)

// genericPathPatterns apply regardless of CLI.
var genericPathPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:wrote|created|modified|updated|edited)\s+` + "`?" + `([\w./~-]+)` + "`?"),
	regexp.MustCompile(`(?i)\bwriting (?:to )?` + "`?" + `([\w./~-]+)` + "`?"),
}

// actionKeywords signal that the CLI intended to change files.
var actionKeywords = []string{"write", "creat", "modif", "updat", "edit", "add", "implement"}

// mtimeSlack absorbs clock granularity between our start timestamp and
// the first write the CLI performed.
const mtimeSlack = 2 * time.Second

// recentScanLimit bounds the fallback mtime scan.
const recentScanLimit = 10

// Run executes the full pipeline over one invocation's output.
func Run(spec Spec, stdout, stderr string, exitCode int, repoRoot string, start time.Time) Outcome {
	combined := stdout
	if stderr != "" {
		combined = combined + "\n" + stderr
	}

	// Step 1: error detection. Only authoritative on a non-zero exit.
	if exitCode != 0 {
		if kind, summary := detectError(combined); kind != "" {
			return Outcome{
				Success:   false,
				Summary:   summary,
				Notes:     "see the session log for the full CLI output",
				ErrorKind: kind,
			}
		}
	}

	// Step 3: heuristic path claims (needed for both branches below).
	claimed := extractPathClaims(spec, combined)
	intent := hasActionIntent(combined)

	// Step 4: filesystem verification of the claims.
	verified := VerifyPaths(claimed, repoRoot)
	if len(verified) == 0 && intent {
		verified = RecentlyModified(repoRoot, start.Add(-mtimeSlack), recentScanLimit)
	}

	// Step 2: fenced structured result. Adopted when parseable, but the
	// filesystem stays authoritative: files_modified and every step's
	// files_touched are overwritten from the verification pass.
	if structured, ok := ExtractFencedResult(combined); ok {
		claimedByJSON := structuredClaims(structured)
		jsonVerified := VerifyPaths(claimedByJSON, repoRoot)
		merged := mergePaths(jsonVerified, verified)
		structured.FilesModified = merged
		for i := range structured.Steps {
			structured.Steps[i].FilesTouched = VerifyPaths(structured.Steps[i].FilesTouched, repoRoot)
		}
		success := structured.OverallStatus == plan.OverallSuccess
		// The suspicious-success guard applies to claimed JSON successes
		// too: intent with zero verified files is a parse failure.
		if success && len(merged) == 0 && intent {
			return Outcome{
				Success:   false,
				Summary:   "Task completed but no files were modified",
				Notes:     "the CLI claimed changes but none were found on disk; check the session log",
				ErrorKind: plan.ErrParseFailure,
			}
		}
		return Outcome{
			Success:      success,
			Summary:      summaryFromStructured(structured),
			Notes:        structured.Notes,
			TouchedPaths: merged,
			Structured:   structured,
		}
	}

	if exitCode != 0 {
		return Outcome{
			Success:      false,
			Summary:      failureSummary(combined),
			Notes:        "see the session log for the full CLI output",
			TouchedPaths: verified,
			ErrorKind:    plan.ErrInternal,
		}
	}

	// Step 5: suspicious-success guard.
	if len(verified) == 0 && intent {
		return Outcome{
			Success:   false,
			Summary:   "Task completed but no files were modified",
			Notes:     "the CLI claimed changes but none were found on disk; check the session log",
			ErrorKind: plan.ErrParseFailure,
		}
	}

	// Step 6: summary.
	return Outcome{
		Success:      true,
		Summary:      successSummary(stdout),
		TouchedPaths: verified,
	}
}

func detectError(output string) (plan.ErrorKind, string) {
	if m := authPatterns.FindString(output); m != "" {
		return plan.ErrAuth, "Authentication failed (" + m + "): check your stored credentials with `ninja-config doctor`"
	}
	if m := creditPatterns.FindString(output); m != "" {
		return plan.ErrInsufficientCredits, "Provider rejected the request (" + m + "): add credits in your provider dashboard"
	}
	if m := apiPatterns.FindString(output); m != "" {
		return plan.ErrInternal, "Provider API error (" + m + "): see the session log"
	}
	return "", ""
}

// extractPathClaims applies the CLI-specific and generic regexes and
// filters out matches that cannot plausibly be paths. Order of first
// appearance is preserved.
func extractPathClaims(spec Spec, output string) []string {
	patterns := append(append([]*regexp.Regexp{}, spec.PathPatterns...), genericPathPatterns...)
	seen := make(map[string]bool)
	var out []string
	for _, line := range strings.Split(output, "\n") {
		for _, re := range patterns {
			for _, m := range re.FindAllStringSubmatch(line, -1) {
				candidate := cleanPathCandidate(m[1])
				if candidate == "" || seen[candidate] {
					continue
				}
				seen[candidate] = true
				out = append(out, candidate)
			}
		}
	}
	return out
}

// cleanPathCandidate strips quoting and trailing punctuation, then keeps
// the candidate only if it has a path separator or a file extension and
// does not end with a dot.
func cleanPathCandidate(s string) string {
	s = strings.Trim(s, "`'\"")
	s = strings.TrimRight(s, ",;:)")
	if s == "" || strings.HasSuffix(s, ".") {
		return ""
	}
	hasSep := strings.ContainsAny(s, "/\\")
	dot := strings.LastIndexByte(s, '.')
	hasExt := dot > 0 && dot < len(s)-1
	if !hasSep && !hasExt {
		return ""
	}
	return s
}

func hasActionIntent(output string) bool {
	lower := strings.ToLower(output)
	for _, kw := range actionKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func structuredClaims(res *plan.ExecutionResult) []string {
	var out []string
	out = append(out, res.FilesModified...)
	for _, st := range res.Steps {
		out = append(out, st.FilesTouched...)
	}
	return out
}

func mergePaths(a, b []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range append(append([]string{}, a...), b...) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

func summaryFromStructured(res *plan.ExecutionResult) string {
	switch res.OverallStatus {
	case plan.OverallSuccess:
		return fmt.Sprintf("Plan completed: %d/%d steps ok", len(res.Steps), len(res.Steps))
	case plan.OverallPartial:
		ok := 0
		for _, st := range res.Steps {
			if st.Status == plan.StepOK {
				ok++
			}
		}
		return fmt.Sprintf("Plan partially completed: %d/%d steps ok", ok, len(res.Steps))
	default:
		return "Plan failed"
	}
}

// successSummary prefers a short, sentence-looking line near the end of
// stdout, skipping fences and bare paths.
func successSummary(stdout string) string {
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	scanned := 0
	for i := len(lines) - 1; i >= 0 && scanned < 10; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		scanned++
		if strings.HasPrefix(line, "```") || strings.HasPrefix(line, "{") || strings.HasPrefix(line, "}") {
			continue
		}
		if len(line) <= 200 && strings.ContainsRune(line, ' ') {
			return line
		}
	}
	return "Task completed successfully"
}

func failureSummary(output string) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line != "" && len(line) <= 200 {
			return "Task failed: " + line
		}
	}
	return "Task failed"
}
