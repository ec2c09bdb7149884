package manifest

import (
	"fmt"
	"strings"
)

// CompileError represents a single validation failure against one
// manifest entry.
type CompileError struct {
	EntryID string // Capability id of the offending entry, or "" for manifest-level errors
	Field   string // Field that failed validation
	Reason  string // Human-readable reason
}

// Error implements the error interface
func (ce CompileError) Error() string {
	switch {
	case ce.EntryID == "":
		return fmt.Sprintf("manifest: %s", ce.Reason)
	case ce.Field == "":
		return fmt.Sprintf("capability '%s': %s", ce.EntryID, ce.Reason)
	default:
		return fmt.Sprintf("capability '%s', field '%s': %s", ce.EntryID, ce.Field, ce.Reason)
	}
}

// CompileErrors aggregates all validation failures of a compile. A
// compile either succeeds completely or reports every problem it
// found; it never yields a partially valid descriptor set.
type CompileErrors []CompileError

// Error implements the error interface for the collection
func (ce CompileErrors) Error() string {
	if len(ce) == 0 {
		return "no manifest errors"
	}
	if len(ce) == 1 {
		return ce[0].Error()
	}

	var messages []string
	for _, err := range ce {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("manifest compile failed with %d errors: %s", len(ce), strings.Join(messages, "; "))
}

// HasErrors returns true if there are any errors in the collection
func (ce CompileErrors) HasErrors() bool {
	return len(ce) > 0
}

// Add appends a new compile error to the collection
func (ce *CompileErrors) Add(entryID, field, reason string) {
	*ce = append(*ce, CompileError{EntryID: entryID, Field: field, Reason: reason})
}
