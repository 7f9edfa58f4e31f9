package commsutil

import (
	"fmt"
	"strings"
)

// Default COMMS subjects.
const (
	SubjectDispatch   = "api.dispatch"
	SubjectDispatched = "api.dispatched"
)

// BuildDispatchedSubject builds the granular subject a dispatched event for
// (entity, action, method) is published on.
func BuildDispatchedSubject(base, entity, action, method string) string {
	if base == "" {
		base = SubjectDispatched
	}
	return fmt.Sprintf("%s.%s.%s.%s", base, token(entity), token(action), token(method))
}

// token makes s safe to use as a single subject token.
func token(s string) string {
	if s == "" {
		return "_"
	}
	return strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_").Replace(s)
}
