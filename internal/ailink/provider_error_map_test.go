package ailink

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/faultlens/faultlens/internal/ailink/driver"
	"github.com/faultlens/faultlens/internal/core"
)

func TestClassifyErrorStatusCodes(t *testing.T) {
	cases := []struct {
		name       string
		statusCode int
		wantKind   core.FailureKind
		wantReason string
	}{
		{"auth", 401, core.FailureConfiguration, "provider authentication failed"},
		{"forbidden", 403, core.FailureConfiguration, "provider authentication failed"},
		{"rate", 429, core.FailureService, "provider rate limited"},
		{"bad", 400, core.FailureService, "provider rejected request"},
		{"unavail", 503, core.FailureService, "provider unavailable"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := &driver.ProviderError{Provider: "groq", StatusCode: tc.statusCode, Message: "boom"}
			failure := ClassifyError(err)
			require.NotNil(t, failure)
			require.Equal(t, tc.wantKind, failure.Kind)
			require.Equal(t, tc.wantReason, failure.Message)
			require.ErrorIs(t, failure, err)
		})
	}
}

func TestClassifyErrorTimeoutAndPassthrough(t *testing.T) {
	require.Nil(t, ClassifyError(nil))

	failure := ClassifyError(fmt.Errorf("post: %w", context.DeadlineExceeded))
	require.Equal(t, core.FailureTimeout, failure.Kind)

	existing := core.NewFailure(core.FailurePersistence, "x", nil)
	require.Same(t, existing, ClassifyError(existing))

	failure = ClassifyError(&configError{msg: "missing API key"})
	require.Equal(t, core.FailureConfiguration, failure.Kind)

	failure = ClassifyError(errors.New("connection refused"))
	require.Equal(t, core.FailureService, failure.Kind)
}
