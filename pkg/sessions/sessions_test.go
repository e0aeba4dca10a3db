package sessions_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roundtablehq/roundtable/pkg/sessions"
)

func TestFileDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sessions.yml")

	content := `sessions:
  - id: sess-1
    name: Bob
    agent: claude
    working_dir: /work/bob
    model: opus
  - id: sess-2
    name: Carol
    agent: codex
    remote:
      name: lab
      host_id: lab
    env:
      CAROL_MODE: fast
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	d := sessions.NewFileDirectory(path)
	got, err := d.ListAvailableSessions()
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "Bob", got[0].Name)
	assert.Equal(t, "claude", got[0].AgentKind)
	assert.Equal(t, "opus", got[0].CustomModel)

	assert.Equal(t, "Carol", got[1].Name)
	require.NotNil(t, got[1].Remote)
	assert.Equal(t, "lab", got[1].Remote.HostID)
	assert.Equal(t, "fast", got[1].CustomEnv["CAROL_MODE"])
}

func TestFileDirectoryMissingFile(t *testing.T) {
	d := sessions.NewFileDirectory(filepath.Join(t.TempDir(), "absent.yml"))
	got, err := d.ListAvailableSessions()
	assert.NoError(t, err)
	assert.Empty(t, got)
}

func TestFileDirectoryInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sessions.yml")
	require.NoError(t, os.WriteFile(path, []byte(":\tnot yaml"), 0644))

	_, err := sessions.NewFileDirectory(path).ListAvailableSessions()
	assert.Error(t, err)
}
