package faults

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMetadataUnavailable     = errors.New("metadata unavailable")
	ErrExternalToolUnavailable = errors.New("external tool unavailable")
	ErrDestinationCollision    = errors.New("destination collision")
	ErrMoveIO                  = errors.New("move failed")
	ErrConfigInvalid           = errors.New("invalid configuration")
	ErrTimeout                 = errors.New("timeout")
)

// Reason codes recorded on skipped and failed operations.
const (
	ReasonLeaveInPlace     = "leave_in_place"
	ReasonDryRun           = "dry_run"
	ReasonAlreadyOrganized = "already_organized"
	ReasonDuplicate        = "duplicate"
	ReasonMoveIO           = "move_io"
	ReasonConfigInvalid    = "config_invalid"
	ReasonTimeout          = "timeout"
	ReasonCanceled         = "canceled"
	ReasonUnknown          = "unknown"
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker. The marker should be one of the sentinels above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrMoveIO
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Reason maps an error onto a report reason code.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfigInvalid):
		return ReasonConfigInvalid
	case errors.Is(err, ErrTimeout):
		return ReasonTimeout
	case errors.Is(err, ErrMoveIO):
		return ReasonMoveIO
	case errors.Is(err, ErrDestinationCollision):
		return ReasonDuplicate
	case errors.Is(err, context.Canceled):
		return ReasonCanceled
	default:
		return ReasonUnknown
	}
}

// Fatal reports whether err must abort a pass rather than a single set.
func Fatal(err error) bool {
	return errors.Is(err, ErrConfigInvalid)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "pipeline failure"
	}
	return strings.Join(parts, ": ")
}
