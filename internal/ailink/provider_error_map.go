package ailink

import (
	"context"
	"errors"
	"strings"

	"github.com/faultlens/faultlens/internal/ailink/driver"
	"github.com/faultlens/faultlens/internal/core"
)

// ClassifyError maps a provider or setup error to an analysis failure.
func ClassifyError(err error) *core.Failure {
	if err == nil {
		return nil
	}

	var failure *core.Failure
	if errors.As(err, &failure) {
		return failure
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return core.NewFailure(core.FailureTimeout, "provider request timed out", err)
	}

	var perr *driver.ProviderError
	if errors.As(err, &perr) && perr != nil {
		status := perr.StatusCode
		switch {
		case perr.Unauthorized():
			return core.NewFailure(core.FailureConfiguration, "provider authentication failed", err)
		case perr.RateLimited():
			return core.NewFailure(core.FailureService, "provider rate limited", err)
		case status >= 500 && status <= 599:
			return core.NewFailure(core.FailureService, "provider unavailable", err)
		case status >= 400 && status <= 499:
			return core.NewFailure(core.FailureService, "provider rejected request", err)
		default:
			return core.NewFailure(core.FailureService, "provider request failed", err)
		}
	}

	var cfgErr *configError
	if errors.As(err, &cfgErr) {
		return core.NewFailure(core.FailureConfiguration, strings.TrimSpace(cfgErr.msg), err)
	}

	return core.NewFailure(core.FailureService, "provider request failed", err)
}

// configError marks missing keys, providers or models.
type configError struct {
	msg string
	err error
}

func (e *configError) Error() string {
	if e.err == nil {
		return e.msg
	}
	return e.msg + ": " + e.err.Error()
}

func (e *configError) Unwrap() error { return e.err }
