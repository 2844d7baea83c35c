package main

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const mainJack = `
class Main {
	function int add(int a, int b) {
		return a + b;
	}

	function void main() {
		do Main.add(1, 2);
		return;
	}
}
`

var binaryLine = regexp.MustCompile(`^[01]{16}$`)

func TestPipelineHandlerProducesHackBinary(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Main.jack"), []byte(mainJack), 0o644))

	status := Handler([]string{dir}, map[string]string{})
	require.Equal(t, 0, status)

	out, err := os.ReadFile(filepath.Join(dir, "Main.hack"))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(string(out), "\n"), "\n")
	require.NotEmpty(t, lines)
	for _, line := range lines {
		require.Regexp(t, binaryLine, line)
	}

	_, err = os.Stat(filepath.Join(dir, "Main.vm"))
	require.True(t, os.IsNotExist(err), "intermediate .vm should not be kept by default")
}

func TestPipelineHandlerKeepIntermediates(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Main.jack"), []byte(mainJack), 0o644))

	status := Handler([]string{dir}, map[string]string{"keep-intermediates": "true"})
	require.Equal(t, 0, status)

	_, err := os.Stat(filepath.Join(dir, "Main.vm"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "Main.asm"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "Main.hack"))
	require.NoError(t, err)
}

func TestPipelineHandlerOutDirEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Main.jack"), []byte(mainJack), 0o644))

	outDir := filepath.Join(dir, "out")
	t.Setenv("PIPELINE_OUT_DIR", outDir)

	status := Handler([]string{dir}, map[string]string{})
	require.Equal(t, 0, status)

	_, err := os.Stat(filepath.Join(outDir, "Main.hack"))
	require.NoError(t, err)
}
