package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RobMal123/ai-helpdesk-chatbot/internal/config"
)

func runInit(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"init"}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestInit_WritesLoadableConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "helpdesk.yaml")

	out, err := runInit(t, "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, 2, cfg.Ingestion.ScheduleHour)
}

func TestInit_RefusesToOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "helpdesk.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 1\n"), 0o644))

	_, err := runInit(t, "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = runInit(t, "--config", path, "--force")
	require.NoError(t, err)
}
