// Package daemon manages the long-lived HTTP/SSE module servers: the
// per-host controller (start/stop/status/restart with PID files), the
// SSE transport, and the stdio-to-HTTP proxy for editors that only
// speak stdio MCP.
package daemon

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// defaultPorts is the loopback port table, one per module.
var defaultPorts = map[string]int{
	"coder":      8100,
	"researcher": 8101,
	"secretary":  8102,
	"resources":  8106,
	"prompts":    8107,
}

// Modules lists the known module names in port order.
func Modules() []string {
	return []string{"coder", "researcher", "secretary", "resources", "prompts"}
}

// PortFor resolves a module's port: NINJA_<MODULE>_PORT wins over the
// default table.
func PortFor(module string) (int, error) {
	if raw := os.Getenv("NINJA_" + strings.ToUpper(module) + "_PORT"); raw != "" {
		if p, err := strconv.Atoi(raw); err == nil && p > 0 && p < 65536 {
			return p, nil
		}
	}
	p, ok := defaultPorts[module]
	if !ok {
		return 0, fmt.Errorf("unknown module %q", module)
	}
	return p, nil
}
