package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"

	apperrors "github.com/deepdrone/deepdrone/pkg/errors"
)

func testExecutor(t *testing.T, caps starlark.StringDict) *Executor {
	t.Helper()
	return NewExecutor(DefaultConfig(), caps, nil)
}

func TestExecuteCallsCapability(t *testing.T) {
	var gotAlt float64
	caps := starlark.StringDict{
		"takeoff": starlark.NewBuiltin("takeoff", func(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, _ []starlark.Tuple) (starlark.Value, error) {
			var alt float64
			if err := starlark.UnpackPositionalArgs("takeoff", args, nil, 1, &alt); err != nil {
				return nil, err
			}
			gotAlt = alt
			return starlark.Bool(true), nil
		}),
	}

	res := testExecutor(t, caps).Execute(context.Background(), `
ok = takeoff(30)
print("takeoff:", ok)
`)
	require.NoError(t, res.Err)
	assert.Equal(t, 30.0, gotAlt)
	assert.Equal(t, "takeoff: True", res.Output)
}

func TestExecuteCapturesPrintInOrder(t *testing.T) {
	res := testExecutor(t, nil).Execute(context.Background(), `
print("first")
print("second")
`)
	require.NoError(t, res.Err)
	assert.Equal(t, "first\nsecond", res.Output)
}

func TestExecuteSilentSnippetReturnsSentinel(t *testing.T) {
	res := testExecutor(t, nil).Execute(context.Background(), "x = 1 + 2")
	require.NoError(t, res.Err)
	assert.Equal(t, SuccessSentinel, res.Output)
}

func TestExecuteNoAmbientCapabilities(t *testing.T) {
	// Nothing beyond the injected table is visible: no filesystem,
	// no module loading, no host globals.
	for _, code := range []string{
		`f = open("/etc/passwd")`,
		`load("os.star", "os")`,
		`connect_drone("tcp:1.2.3.4:5760")`,
	} {
		res := testExecutor(t, nil).Execute(context.Background(), code)
		assert.Error(t, res.Err, "snippet should have no ambient access: %s", code)
	}
}

func TestExecuteTimeout(t *testing.T) {
	exec := NewExecutor(Config{Timeout: 50 * time.Millisecond}, nil, nil)
	res := exec.Execute(context.Background(), `
x = 0
while True:
    x = x + 1
`)
	require.Error(t, res.Err)
	assert.True(t, res.TimedOut)
	assert.True(t, apperrors.IsCode(res.Err, apperrors.ErrCodeSandboxTimeout))
	assert.Contains(t, res.Error, "timed out")
}

func TestExecuteAllIsolatesFailures(t *testing.T) {
	results := testExecutor(t, nil).ExecuteAll(context.Background(), []string{
		`print("before")`,
		`boom(`,
		`print("after")`,
	})
	require.Len(t, results, 3)

	assert.True(t, results[0].OK())
	assert.Equal(t, "before", results[0].Output)

	require.Error(t, results[1].Err)
	assert.True(t, apperrors.IsCode(results[1].Err, apperrors.ErrCodeSandboxExecution))
	assert.Contains(t, results[1].Error, "Error executing drone command")

	assert.True(t, results[2].OK())
	assert.Equal(t, "after", results[2].Output)
}

func TestExecuteOutputTruncation(t *testing.T) {
	exec := NewExecutor(Config{Timeout: time.Second, MaxOutputBytes: 16}, nil, nil)
	res := exec.Execute(context.Background(), `
for i in range(100):
    print("aaaaaaaa")
`)
	require.NoError(t, res.Err)
	assert.Contains(t, res.Output, "[output truncated]")
}
