package prettyprint

import (
	"context"
	"strings"
	"testing"

	"github.com/bimmerbailey/logctx/internal/logctx"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

type quotaError struct{ limit int }

func (e *quotaError) Error() string { return "quota exceeded" }

type multiError []error

func (m multiError) Error() string { return "multiple errors" }

func (m multiError) Unwrap() []error { return m }

func TestFormat(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"plain", errors.New("connection refused"), "connection refused"},
		{
			name: "wrapped chain",
			err:  errors.Wrap(errors.New("connection refused"), "deploying step 2"),
			want: "deploying step 2: connection refused",
		},
		{
			name: "canceled",
			err:  errors.Wrap(context.Canceled, "waiting for tentacle"),
			want: "The operation was canceled.",
		},
		{
			name: "deadline",
			err:  errors.Wrap(context.DeadlineExceeded, "health check"),
			want: "The operation timed out.",
		},
		{
			name: "controlled failure",
			err:  NewControlledFailure("Step %d failed: script returned exit code %d", 3, 1),
			want: "Step 3 failed: script returned exit code 1",
		},
		{
			name: "joined",
			err:  multiError{errors.New("first failure"), errors.New("second failure")},
			want: "2 errors occurred:\n--Error 1--\n  first failure\n--Error 2--\n  second failure",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(tt.err, false))
		})
	}
}

func TestFormat_StackTrace(t *testing.T) {
	err := errors.Wrap(errors.New("boom"), "outer")
	out := Format(err, true)

	lines := strings.Split(out, "\n")
	assert.Equal(t, "outer: boom", lines[0])
	assert.Greater(t, len(lines), 1)
	assert.Contains(t, out, "   at ")
	assert.Contains(t, out, "TestFormat_StackTrace")
}

func TestFormat_NoStackForControlledFailure(t *testing.T) {
	err := WrapControlledFailure(errors.New("exit code 1"), "Deployment failed")
	assert.Equal(t, "Deployment failed", Format(err, true))
}

func TestFormat_NoStackForCancellation(t *testing.T) {
	assert.Equal(t, "The operation was canceled.", Format(errors.WithStack(context.Canceled), true))
}

func TestPrinter_CustomHandlerOrder(t *testing.T) {
	var order []string
	first := For(func(sb *strings.Builder, err *quotaError) bool {
		order = append(order, "first")
		sb.WriteString("quota of ")
		return true
	})
	second := For(func(sb *strings.Builder, err *quotaError) bool {
		order = append(order, "second")
		sb.WriteString("10 reached")
		return false
	})
	never := For(func(sb *strings.Builder, err *quotaError) bool {
		order = append(order, "never")
		return true
	})

	p := New(WithHandler(first), WithHandler(second), WithHandler(never), WithStackTrace(true))
	out := p.Format(errors.Wrap(&quotaError{limit: 10}, "creating release"))

	assert.Equal(t, "quota of 10 reached", out)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestPrinter_UnmatchedHandlerIgnored(t *testing.T) {
	h := For(func(sb *strings.Builder, err *quotaError) bool {
		t.Fatal("handler should not run")
		return true
	})
	assert.Equal(t, "disk full", New(WithHandler(h)).Format(errors.New("disk full")))
}

func TestFormat_SanitizedThroughContext(t *testing.T) {
	c := logctx.New(logctx.WithValues("hunter22"))
	err := errors.Newf("login with password %s rejected", "hunter22")

	out := c.SanitizeString(Format(err, true))
	assert.NotContains(t, out, "hunter22")
	assert.True(t, strings.HasPrefix(out, "login with password <redacted> rejected"))
}
