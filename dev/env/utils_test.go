package devenv

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolvePathPassthrough(t *testing.T) {
	path, err := ResolvePath("/tmp/dump")
	require.NoError(t, err)
	require.Equal(t, "/tmp/dump", path)
}

func TestResolvePathState(t *testing.T) {
	root, err := GetWorkspaceRoot()
	require.NoError(t, err)

	path, err := ResolvePath("<dev_state>/http")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "dev", ".state", "http"), path)
}
