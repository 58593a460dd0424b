package analyzer

import (
	"fmt"
	"strings"
)

// Error-class families used to size the investigation. Matching is by
// lowercase substring of the error class.
var (
	simpleErrors  = []string{"nomethoderror", "nameerror", "argumenterror", "typeerror", "keyerror", "attributeerror"}
	authErrors    = []string{"notauthorized", "forbidden", "authentication", "unauthorized"}
	dbErrors      = []string{"activerecord", "pg::", "statementinvalid", "deadlock", "mysql"}
	complexErrors = []string{"systemstackerror", "timeout", "connectionerror", "nomemoryerror", "segfault"}
)

// maxIterationsFor sizes the iteration budget to the error class: simple
// lookup errors resolve fast, infrastructure errors need room to dig.
// ceiling is the configured hard cap.
func maxIterationsFor(errorClass string, ceiling int) int {
	ec := strings.ToLower(errorClass)
	switch {
	case matchesAny(ec, simpleErrors):
		return min(7, ceiling)
	case matchesAny(ec, authErrors):
		return min(5, ceiling)
	case matchesAny(ec, dbErrors):
		return min(10, ceiling)
	case matchesAny(ec, complexErrors):
		return min(15, ceiling)
	default:
		return min(10, ceiling)
	}
}

// thinkingBudgetFor scales the thinking token budget down as the loop
// progresses: full budget for the first two iterations, then a linear
// decay to 25%, floored at 2000 tokens.
func thinkingBudgetFor(iteration, maxIterations int, errorClass string) int {
	ec := strings.ToLower(errorClass)
	base := 8000
	switch {
	case matchesAny(ec, simpleErrors):
		base = 4000
	case matchesAny(ec, complexErrors):
		base = 12000
	}

	scale := 1.0
	if iteration > 2 && maxIterations > 2 {
		progress := float64(iteration-2) / float64(maxIterations-2)
		scale = 1.0 - 0.75*progress
	}

	budget := int(float64(base) * scale)
	if budget < 2000 {
		return 2000
	}
	return budget
}

func matchesAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// toolResultLimits caps tool output size per tool, in characters.
var toolResultLimits = map[string]int{
	ToolReadFile:       8000,
	ToolSearchCode:     4000,
	ToolListDirectory:  2000,
	ToolGetErrorTraces: 4000,
}

// truncateToolResult keeps the head and tail of an oversized tool result
// with a marker noting how much was dropped.
func truncateToolResult(result string, maxChars int) string {
	if len(result) <= maxChars {
		return result
	}
	half := maxChars / 2
	return result[:half] +
		fmt.Sprintf("\n\n[... %d chars truncated ...]\n\n", len(result)-maxChars) +
		result[len(result)-half:]
}
