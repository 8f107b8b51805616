package clipboard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBoard struct{ value string }

func useFake(t *testing.T) *fakeBoard {
	t.Helper()
	fb := &fakeBoard{}
	origWrite, origRead := writeAll, readAll
	writeAll = func(s string) error { fb.value = s; return nil }
	readAll = func() (string, error) { return fb.value, nil }
	t.Cleanup(func() { writeAll, readAll = origWrite, origRead })
	return fb
}

func TestCopyWithTimeout_ClearsAfterTimeout(t *testing.T) {
	fb := useFake(t)

	require.NoError(t, CopyWithTimeout(context.Background(), "hunter2", 10*time.Millisecond))
	assert.Empty(t, fb.value)
}

func TestCopyWithTimeout_ZeroTimeoutKeepsValue(t *testing.T) {
	fb := useFake(t)

	require.NoError(t, CopyWithTimeout(context.Background(), "hunter2", 0))
	assert.Equal(t, "hunter2", fb.value)
}

func TestCopyWithTimeout_ContextCancelClears(t *testing.T) {
	fb := useFake(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, CopyWithTimeout(ctx, "hunter2", time.Hour))
	assert.Empty(t, fb.value)
}

func TestClearIf_LeavesOtherValue(t *testing.T) {
	fb := useFake(t)
	fb.value = "something else"

	require.NoError(t, ClearIf("hunter2"))
	assert.Equal(t, "something else", fb.value)
}
