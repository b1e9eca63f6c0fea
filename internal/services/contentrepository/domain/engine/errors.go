package engine

import (
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/louisbranch/contentgraph/internal/platform/errors"
	"github.com/louisbranch/contentgraph/internal/platform/metrics"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/command"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/journal"
)

// rejectionError turns decider rejections into a coded platform error. The
// first rejection decides the code; messages are joined.
func rejectionError(cmdType command.Type, rejections []command.Rejection) error {
	messages := make([]string, 0, len(rejections))
	for _, rejection := range rejections {
		messages = append(messages, rejection.Message)
	}
	code := apperrors.Code(rejections[0].Code)
	if code == "" {
		code = apperrors.CodeValidationFailed
	}
	return apperrors.WithMetadata(code, strings.Join(messages, "; "), map[string]string{
		"command_type": string(cmdType),
	})
}

func validationError(err error) error {
	return apperrors.Wrap(apperrors.CodeValidationFailed, err.Error(), err)
}

func appendError(err error) error {
	if errors.Is(err, journal.ErrConcurrency) {
		return apperrors.Wrap(apperrors.CodeConcurrencyConflict, err.Error(), err)
	}
	return fmt.Errorf("append events: %w", err)
}

func outcomeOf(err error) string {
	code := apperrors.GetCode(err)
	switch {
	case code.IsConcurrency():
		return metrics.OutcomeConflict
	case code.IsValidation():
		return metrics.OutcomeRejected
	default:
		return metrics.OutcomeError
	}
}
