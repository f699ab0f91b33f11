package procharness

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunSuccess(t *testing.T) {
	err := Run(Config{Command: "true", Stdout: Close, Stderr: Close})
	require.NoError(t, err)
}

func TestRunNonZeroExit(t *testing.T) {
	err := Run(Config{Command: "false", Stdout: Close, Stderr: Close})
	require.Error(t, err)

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	require.Equal(t, 1, exitErr.ExitCode)
}

func TestSpawnFailureMissingBinary(t *testing.T) {
	_, err := Spawn(Config{Command: "/no/such/binary-xyz", Stdout: Close, Stderr: Close})
	require.Error(t, err)

	var spawnErr *SpawnError
	require.True(t, errors.As(err, &spawnErr))
}

func TestCloseWithoutWaitRunsDefaultAction(t *testing.T) {
	h, err := Spawn(Config{Command: "true", Stdout: Close, Stderr: Close, Default: ActionWait})
	require.NoError(t, err)
	require.NoError(t, h.Close())
}

func TestPipedStdout(t *testing.T) {
	h, err := Spawn(Config{Command: "echo", Args: []string{"hello"}, Stdout: Pipe, Stderr: Close})
	require.NoError(t, err)
	defer h.Close()

	buf := make([]byte, 64)
	n, _ := h.Stdout().Read(buf)
	require.Equal(t, "hello\n", string(buf[:n]))
	require.NoError(t, h.Wait())
}
