package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTransient marks network, timeout, and other retryable failures.
	ErrTransient = errors.New("transient failure")
	// ErrRejected marks a non-retryable rejection from an external backend
	// (content too short, unsupported, generation reported failed).
	ErrRejected = errors.New("rejected by backend")
	// ErrAuth marks an invalid credential or expired session. It is systemic:
	// the orchestrator halts the whole run when it sees one.
	ErrAuth = errors.New("authentication invalid")
	// ErrNotFound marks a missing remote resource.
	ErrNotFound = errors.New("not found")
	// ErrConfiguration marks an unusable local configuration value.
	ErrConfiguration = errors.New("configuration error")
	// ErrStoreCorrupt marks record store damage. Fatal: the run refuses to
	// proceed rather than risk duplicate external side effects.
	ErrStoreCorrupt = errors.New("record store corrupt")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above; nil defaults to ErrTransient.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsSystemic reports whether an error must halt the remainder of the run.
func IsSystemic(err error) bool {
	return errors.Is(err, ErrAuth)
}

// IsRejection reports whether an error is a non-retryable backend rejection.
func IsRejection(err error) bool {
	return errors.Is(err, ErrRejected)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
