package trigger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecLauncher(t *testing.T) {
	script := filepath.Join(t.TempDir(), "noop.sh")
	require.NoError(t, os.WriteFile(script, []byte("exit 0\n"), 0o644))

	assert.NoError(t, NewExecLauncher("sh").Launch(script))
}

func TestExecLauncher_MissingInterpreter(t *testing.T) {
	script := filepath.Join(t.TempDir(), "noop.sh")
	require.NoError(t, os.WriteFile(script, []byte("exit 0\n"), 0o644))

	err := NewExecLauncher("definitely-not-an-interpreter").Launch(script)
	assert.Error(t, err)
}
