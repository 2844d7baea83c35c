// Package source implements the line-buffered comment stripper shared by every
// front-end stage of the toolchain (Jack tokenizer, VM parser, ASM parser).
package source

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// StripPreserveWhitespace reads 'r' line by line, removes '//' and '/* ... */'
// comments, and returns the resulting lines with interior whitespace intact.
// Used by the Jack tokenizer, which needs to split on whitespace itself later, and by
// the VM and ASM parsers.
func StripPreserveWhitespace(r io.Reader) ([]string, error) {
	return strip(r, false)
}

// StripCompact is identical to StripPreserveWhitespace except all whitespace is
// additionally removed from each line. None of the shipped parsers uses it.
func StripCompact(r io.Reader) ([]string, error) {
	return strip(r, true)
}

// StripPreserveWhitespaceFile and StripCompactFile are convenience wrappers that
// open 'path' and guarantee the handle is released on every exit path.
func StripPreserveWhitespaceFile(path string) ([]string, error) {
	return stripFile(path, false)
}

func StripCompactFile(path string) ([]string, error) {
	return stripFile(path, true)
}

func stripFile(path string, compact bool) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open source file %q", path)
	}
	defer f.Close()

	return strip(f, compact)
}

func strip(r io.Reader, compact bool) ([]string, error) {
	scanner := bufio.NewScanner(r)
	lines := make([]string, 0, 64)
	insideBlockComment := false

	for scanner.Scan() {
		line := scanner.Text()
		if compact {
			line = stripAllWhitespace(line)
		}

		if insideBlockComment {
			if end := strings.Index(line, "*/"); end != -1 {
				line = line[end+2:]
				insideBlockComment = false
			} else {
				lines = append(lines, "")
				continue
			}
		}

		line = stripLineComment(line)
		line = stripInlineBlockComments(line)

		// A line starting with '/*' after the stripping above enters block-comment
		// mode for subsequent lines; this does not handle a block comment that
		// begins mid-line and never closes on the same line (documented limitation,
		// see SPEC_FULL.md).
		if strings.HasPrefix(strings.TrimSpace(line), "/*") {
			insideBlockComment = true
			line = ""
		}

		lines = append(lines, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "error while scanning source")
	}

	return lines, nil
}

func stripAllWhitespace(line string) string {
	var b strings.Builder
	for _, r := range line {
		if r == ' ' || r == '\t' || r == '\r' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func stripLineComment(line string) string {
	if i := strings.Index(line, "//"); i != -1 {
		return line[:i]
	}
	return line
}

// stripInlineBlockComments removes any number of '/* ... */' spans that both
// start and end on the same line, left to right.
func stripInlineBlockComments(line string) string {
	for {
		start := strings.Index(line, "/*")
		if start == -1 {
			return line
		}
		end := strings.Index(line[start:], "*/")
		if end == -1 {
			return line
		}
		line = line[:start] + line[start+end+2:]
	}
}
