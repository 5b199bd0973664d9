package graph

import "fmt"

// GraphInvalid wraps every load-time defect from spec section 7: malformed
// document, unknown id, cycle, unparseable expression, missing required
// field. It is always fatal — the caller gets no graph and no pattern
// output.
type GraphInvalid struct {
	Reason string
}

func (e *GraphInvalid) Error() string {
	return fmt.Sprintf("graph: invalid block graph: %s", e.Reason)
}

func invalid(format string, args ...interface{}) error {
	return &GraphInvalid{Reason: fmt.Sprintf(format, args...)}
}
