package service

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleProxyCommand(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "sites.yaml")
	require.NoError(t, os.WriteFile(good, []byte(`
upstreams:
  forum: [127.0.0.1:3031]
servers:
  - server_name: [forum.example.org]
    locations:
      - path: /
        uwsgi_pass: forum
`), 0644))
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte(`
servers:
  - server_name: [forum.example.org]
    locations:
      - path: /
        uwsgi_pass: nowhere
`), 0644))

	tests := []struct {
		name           string
		args           []string
		expectedOutput string
		expectedExit   int
	}{
		{"no arguments", []string{}, "Usage: biostar proxy <command>", 1},
		{"help", []string{"help"}, "Usage: biostar proxy <command>", 0},
		{"unknown", []string{"reload"}, "Unknown proxy command: reload", 1},
		{"serve without config", []string{"serve"}, "Error: --config <file> is required", 1},
		{"extra arguments", []string{"check", "--config", good, "now"}, "Unexpected arguments", 1},
		{"check valid", []string{"check", "--config", good}, "configuration file " + good + " test is successful", 0},
		{"check invalid", []string{"check", "--config", bad}, `unknown upstream "nowhere"`, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ret, output := runCommand(HandleProxyCommand, tt.args)

			assert.Contains(t, output, tt.expectedOutput)
			assert.Equal(t, tt.expectedExit, ret)
		})
	}
}

func TestPopFlag(t *testing.T) {
	rest, value, ok := popFlag([]string{"a", "--config", "x.yaml", "b"}, "--config")
	assert.True(t, ok)
	assert.Equal(t, "x.yaml", value)
	assert.Equal(t, []string{"a", "b"}, rest)

	rest, _, ok = popFlag([]string{"a", "--config"}, "--config")
	assert.False(t, ok)
	assert.Equal(t, []string{"a", "--config"}, rest)

	rest, set := popBool([]string{"x", "--moderator", "y"}, "--moderator")
	assert.True(t, set)
	assert.Equal(t, []string{"x", "y"}, rest)
}
