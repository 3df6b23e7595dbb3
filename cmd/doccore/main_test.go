package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_DefaultRunsDemo(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"doccore"}, &stdout, &stderr)
	require.Equal(t, 0, code)
	assert.Empty(t, stderr.String())

	dec := json.NewDecoder(strings.NewReader(stdout.String()))
	var snapshots []map[string]any
	for {
		var snap map[string]any
		if err := dec.Decode(&snap); err != nil {
			break
		}
		snapshots = append(snapshots, snap)
	}
	require.Len(t, snapshots, 2, "demo prints one snapshot after two dispatches and one after undo")
	assert.Equal(t, "after two dispatches", snapshots[0]["label"])
	assert.Equal(t, "after undo", snapshots[1]["label"])
	assert.Equal(t, float64(2), snapshots[0]["version"])
	assert.Equal(t, float64(1), snapshots[1]["version"])
}

func TestRun_ExplicitRunAndDemoCommands(t *testing.T) {
	for _, cmd := range []string{"run", "demo"} {
		var stdout, stderr bytes.Buffer
		code := Run([]string{"doccore", cmd}, &stdout, &stderr)
		require.Equal(t, 0, code)
		assert.NotEmpty(t, stdout.String())
	}
}

func TestRun_DemoAcceptsConfigFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"doccore", "run", "-config", ""}, &stdout, &stderr)
	require.Equal(t, 0, code)
	assert.Empty(t, stderr.String())
}

func TestRun_Version(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"doccore", "version"}, &stdout, &stderr)
	require.Equal(t, 0, code)
	assert.Equal(t, "doccore v0.1.0\n", stdout.String())
	assert.Empty(t, stderr.String())
}

func TestRun_Help(t *testing.T) {
	for _, flagName := range []string{"help", "--help", "-h"} {
		var stdout, stderr bytes.Buffer
		code := Run([]string{"doccore", flagName}, &stdout, &stderr)
		require.Equal(t, 0, code)
		assert.Contains(t, stdout.String(), "USAGE:")
		assert.Empty(t, stderr.String())
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"doccore", "bogus"}, &stdout, &stderr)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr.String(), "unknown command: bogus")
	assert.Contains(t, stderr.String(), "USAGE:")
}
