package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const addAsm = `
@2
D=A
@3
D=D+A
@0
M=D
`

func TestHackAssemblerHandler(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "Add.asm")
	require.NoError(t, os.WriteFile(input, []byte(addAsm), 0o644))
	output := filepath.Join(dir, "Add.hack")

	status := Handler([]string{input}, map[string]string{"output": output})
	require.Equal(t, 0, status)

	out, err := os.ReadFile(output)
	require.NoError(t, err)

	got := strings.TrimRight(string(out), "\n")
	want := strings.Join([]string{
		"0000000000000010",
		"1110110000010000",
		"0000000000000011",
		"1110000010010000",
		"0000000000000000",
		"1110001100001000",
	}, "\n")

	require.Equal(t, want, got)
}

func TestHackAssemblerHandlerDefaultOutput(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "Add.asm")
	require.NoError(t, os.WriteFile(input, []byte(addAsm), 0o644))

	status := Handler([]string{input}, map[string]string{})
	require.Equal(t, 0, status)

	_, err := os.Stat(filepath.Join(dir, "Add.hack"))
	require.NoError(t, err)
}
