package analyses

import (
	"errors"
	"fmt"
	"strings"

	"insight-backend/internal/capabilities"
	"insight-backend/internal/risk"
	"insight-backend/internal/sessions"
)

var (
	// ErrNotFound is returned for unknown, expired or evicted analyses.
	ErrNotFound = sessions.ErrNotFound
	// ErrUnknownCapability is returned for keys outside the registry.
	ErrUnknownCapability = capabilities.ErrUnknownCapability
	// ErrUploadTooLarge is returned when an upload exceeds the configured size.
	ErrUploadTooLarge = errors.New("upload too large")
)

// ValidationError reports a malformed parameter.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// BlockedError is returned when the risk evaluator refuses a capability.
type BlockedError struct {
	Capability string
	Findings   []risk.Finding
}

func (e *BlockedError) Error() string {
	codes := make([]string, 0, len(e.Findings))
	for _, f := range e.Findings {
		codes = append(codes, f.Code)
	}
	return fmt.Sprintf("analysis %s blocked: %s", e.Capability, strings.Join(codes, ", "))
}
