package automation

import (
	stderrors "errors"
	"strings"

	apperrors "github.com/goliatone/go-errors"
)

// Text codes for configuration errors. These are fatal to the single call
// that hits them but never corrupt registries or other in-flight work.
const (
	ErrCodeWorkflowNotFound = "WORKFLOW_NOT_FOUND"
	ErrCodeWorkflowInactive = "WORKFLOW_INACTIVE"
	ErrCodeActionNotFound   = "ACTION_NOT_FOUND"
	ErrCodeJobTypeUnknown   = "JOB_TYPE_UNKNOWN"
	ErrCodeCycleDetected    = "WORKFLOW_CYCLE_DETECTED"
	ErrCodeDuplicateJob     = "DUPLICATE_JOB"
)

var (
	ErrWorkflowNotFound = apperrors.New("workflow not found", apperrors.CategoryBadInput).
				WithTextCode(ErrCodeWorkflowNotFound)
	ErrWorkflowInactive = apperrors.New("workflow is inactive", apperrors.CategoryBadInput).
				WithTextCode(ErrCodeWorkflowInactive)
	ErrActionNotFound = apperrors.New("action handler not found", apperrors.CategoryBadInput).
				WithTextCode(ErrCodeActionNotFound)
	ErrJobTypeUnknown = apperrors.New("unknown queue job type", apperrors.CategoryBadInput).
				WithTextCode(ErrCodeJobTypeUnknown)
	ErrCycleDetected = apperrors.New("workflow step cycle detected", apperrors.CategoryBadInput).
				WithTextCode(ErrCodeCycleDetected)
)

// ConfigError clones base with a contextual message and metadata attached.
func ConfigError(base *apperrors.Error, message string, metadata map[string]any) *apperrors.Error {
	if base == nil {
		base = ErrWorkflowNotFound
	}
	err := base.Clone()
	if text := strings.TrimSpace(message); text != "" {
		err.Message = text
	}
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

// ErrorCode extracts the text code from a wrapped configuration error.
func ErrorCode(err error) string {
	var ge *apperrors.Error
	if stderrors.As(err, &ge) {
		return ge.TextCode
	}
	return ""
}

// IsConfigError reports whether err carries one of the configuration codes.
func IsConfigError(err error) bool {
	switch ErrorCode(err) {
	case ErrCodeWorkflowNotFound, ErrCodeWorkflowInactive, ErrCodeActionNotFound,
		ErrCodeJobTypeUnknown, ErrCodeCycleDetected:
		return true
	default:
		return false
	}
}
