package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const simpleAddVm = `
push constant 7
push constant 8
add
`

func TestVMTranslatorHandler(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "SimpleAdd.vm")
	require.NoError(t, os.WriteFile(input, []byte(simpleAddVm), 0o644))
	output := filepath.Join(dir, "SimpleAdd.asm")

	status := Handler([]string{input}, map[string]string{"output": output})
	require.Equal(t, 0, status)

	out, err := os.ReadFile(output)
	require.NoError(t, err)

	got := strings.TrimRight(string(out), "\n")
	want := strings.Join([]string{
		"@7", "D=A", "@SP", "A=M", "M=D", "@SP", "M=M+1",
		"@8", "D=A", "@SP", "A=M", "M=D", "@SP", "M=M+1",
		"@SP", "AM=M-1", "D=M", "A=A-1", "M=D+M",
	}, "\n")

	require.Equal(t, want, got)
}

func TestVMTranslatorHandlerDefaultOutput(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "SimpleAdd.vm")
	require.NoError(t, os.WriteFile(input, []byte(simpleAddVm), 0o644))

	status := Handler([]string{input}, map[string]string{})
	require.Equal(t, 0, status)

	_, err := os.Stat(filepath.Join(dir, "SimpleAdd.asm"))
	require.NoError(t, err)
}
