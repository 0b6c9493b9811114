package analyzer

import (
	"errors"
	"fmt"

	"github.com/ninjastack/ninja/internal/logging"
	"github.com/ninjastack/ninja/internal/strategy"
)

// ErrNoOperator reports that no operator CLI is installed at all.
var ErrNoOperator = errors.New("no operator CLI found on PATH")

// Router picks an operator for an analyzed task. It is stateless; the
// strategy lifecycle (config-hash replacement) lives in the executor.
type Router struct {
	Registry *strategy.Registry
	Log      *logging.Logger
}

// Route resolves an operator name. preferred is the user's choice from
// the config document; it wins whenever its binary is available.
func (r *Router) Route(a Analysis, preferred string) (strategy.Strategy, error) {
	if preferred != "" && r.Registry.Available(preferred) {
		return r.Registry.Get(preferred)
	}

	candidates := r.ruleCandidates(a)
	for _, name := range candidates {
		if r.Registry.Available(name) {
			return r.Registry.Get(name)
		}
	}

	// Last resort: any installed operator.
	for _, name := range r.Registry.Names() {
		if r.Registry.Available(name) {
			if r.Log != nil {
				r.Log.Warn("no preferred operator available, falling back", logging.Fields{
					"preferred": preferred,
					"fallback":  name,
				})
			}
			return r.Registry.Get(name)
		}
	}
	return nil, fmt.Errorf("%w (tried %v)", ErrNoOperator, r.Registry.Names())
}

func (r *Router) ruleCandidates(a Analysis) []string {
	var out []string
	if a.RequiresMultiAgent || a.RequiresSession {
		out = append(out, "opencode")
	}
	if a.TaskType == QuickFix && a.Complexity == Simple {
		out = append(out, "aider")
	}
	if a.SuggestedOperator != "" {
		out = append(out, a.SuggestedOperator)
	}
	return out
}
