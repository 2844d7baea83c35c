// Package cliio implements the shared input-resolution and output-writing conventions
// used by every cmd/* entry point: a single positional argument that may be a file, a
// comma- or space-separated list of files, or a directory (listed non-recursively), plus
// atomic write-then-rename semantics so a failed compilation never leaves a partial
// output file behind.
package cliio

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// NewLogger returns a '*logrus.Logger' configured per the ambient convention shared by
// every cmd/* binary: plain text to stderr, one line per event, info level by default.
func NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.InfoLevel)
	return logger
}

// ResolveInputs turns the raw positional arguments handed to a cmd/* binary by
// 'github.com/teris-io/cli' into a concrete, deterministically ordered list of files
// carrying 'ext' (e.g. ".jack"). 'raw' is joined and re-split on commas and whitespace,
// since a single shell argument may already contain a comma-separated list. Each
// resulting token is either a file path (used as-is) or a directory (listed
// non-recursively for files carrying 'ext'). When 'raw' is empty altogether, the current
// directory is used as the implicit fallback.
func ResolveInputs(raw []string, ext string) ([]string, error) {
	tokens := splitList(strings.Join(raw, " "))
	if len(tokens) == 0 {
		tokens = []string{"."}
	}

	inputs := make([]string, 0, len(tokens))
	for _, token := range tokens {
		info, err := os.Stat(token)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot stat input '%s'", token)
		}

		if !info.IsDir() {
			inputs = append(inputs, token)
			continue
		}

		entries, err := os.ReadDir(token)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot list directory '%s'", token)
		}

		matched := make([]string, 0, len(entries))
		for _, entry := range entries {
			if entry.IsDir() || filepath.Ext(entry.Name()) != ext {
				continue
			}
			matched = append(matched, filepath.Join(token, entry.Name()))
		}
		sort.Strings(matched)
		inputs = append(inputs, matched...)
	}

	if len(inputs) == 0 {
		return nil, errors.Errorf("no '%s' files found among the given inputs", ext)
	}
	return inputs, nil
}

// splitList splits 'raw' on commas and whitespace, discarding empty fragments.
func splitList(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// WriteLinesAtomic writes 'lines' (newline-joined) to 'path' by first writing to a
// sibling temp file and renaming it into place, so a crash or error midway never
// leaves a partially-written output file at 'path'.
func WriteLinesAtomic(path string, lines []string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*"+filepath.Ext(path))
	if err != nil {
		return errors.Wrapf(err, "cannot create temp file for output '%s'", path)
	}
	tmpPath := tmp.Name()

	for _, line := range lines {
		if _, err := tmp.WriteString(line + "\n"); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return errors.Wrapf(err, "cannot write to temp file for output '%s'", path)
		}
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.Wrapf(err, "cannot close temp file for output '%s'", path)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return errors.Wrapf(err, "cannot rename temp file into place at '%s'", path)
	}
	return nil
}

// DeriveOutputPath swaps 'input's extension for 'newExt', e.g. ("Foo.jack", ".vm") ->
// "Foo.vm". Used whenever a stage has no explicit '--output' override.
func DeriveOutputPath(input, newExt string) string {
	ext := filepath.Ext(input)
	return strings.TrimSuffix(input, ext) + newExt
}

// ModuleName strips directory and extension from a path, e.g. "dir/Foo.jack" -> "Foo".
func ModuleName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
