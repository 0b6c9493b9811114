package parse

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/ninjastack/ninja/internal/plan"
)

// fencedJSONRe captures the body of a ```json fenced block. The last
// block in the output wins; operators sometimes echo the contract first.
var fencedJSONRe = regexp.MustCompile("(?s)```json\\s*\\n(.*?)\\n\\s*```")

// ExtractFencedResult finds a ```json fenced block that parses into the
// plan execution result shape. Returns false when no block parses.
func ExtractFencedResult(output string) (*plan.ExecutionResult, bool) {
	matches := fencedJSONRe.FindAllStringSubmatch(output, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		body := strings.TrimSpace(matches[i][1])
		var res plan.ExecutionResult
		if err := json.Unmarshal([]byte(body), &res); err != nil {
			continue
		}
		if res.OverallStatus == "" || len(res.Steps) == 0 {
			continue
		}
		return &res, true
	}
	return nil, false
}
