package jack

import (
	"io"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/n2t-toolchain/hackc/pkg/source"
)

// ----------------------------------------------------------------------------
// Tokens

// A Token is the smallest meaningful unit of Jack source text, already classified
// by 'Type'. 'Value' never includes the surrounding quotes for a string constant.
type Token struct {
	Type  TokenType
	Value string
}

type TokenType string

const (
	Keyword        TokenType = "keyword"
	Symbol         TokenType = "symbol"
	IntConst       TokenType = "integerConstant"
	StringConst    TokenType = "stringConstant"
	Identifier     TokenType = "identifier"
)

// LexError is returned when a fragment of the source text matches none of the
// recognized token shapes (keyword, symbol, int/string constant, identifier).
type LexError struct {
	Fragment string
}

func (e *LexError) Error() string {
	return errors.Errorf("cannot lex fragment '%s' into any known token type", e.Fragment).Error()
}

var keywords = map[string]bool{
	"class": true, "constructor": true, "function": true, "method": true,
	"field": true, "static": true, "var": true,
	"int": true, "char": true, "boolean": true, "void": true,
	"true": true, "false": true, "null": true, "this": true,
	"let": true, "do": true, "if": true, "else": true, "while": true, "return": true,
}

const symbolChars = `{}()\[\].,;+\-*/&|<>=~`

// splitter matches, in order of preference, a double-quoted string literal (no
// embedded quotes allowed), a single symbol character, or a maximal run of
// anything else that isn't whitespace, a symbol, or a quote.
var splitter = regexp.MustCompile(`"[^"]*"|[` + symbolChars + `]|[^\s` + symbolChars + `"]+`)

var intPattern = regexp.MustCompile(`^[0-9]+$`)
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z_0-9]*$`)

// Tokenize reads Jack source from 'r', strips comments via the shared de-commenter
// and splits what remains into an ordered sequence of classified 'Token's.
func Tokenize(r io.Reader) ([]Token, error) {
	lines, err := source.StripPreserveWhitespace(r)
	if err != nil {
		return nil, errors.Wrap(err, "cannot strip comments from source")
	}

	text := strings.Join(lines, "\n")
	fragments := splitter.FindAllString(text, -1)

	tokens := make([]Token, 0, len(fragments))
	for _, fragment := range fragments {
		token, err := classify(fragment)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}

	return tokens, nil
}

// classify assigns a 'TokenType' to a single already-split fragment, following the
// precedence order: keyword, symbol, integer constant, string constant, identifier.
func classify(fragment string) (Token, error) {
	switch {
	case keywords[fragment]:
		return Token{Type: Keyword, Value: fragment}, nil

	case len(fragment) == 1 && strings.ContainsAny(fragment, symbolChars):
		return Token{Type: Symbol, Value: fragment}, nil

	case intPattern.MatchString(fragment):
		return Token{Type: IntConst, Value: fragment}, nil

	case strings.HasPrefix(fragment, `"`) && strings.HasSuffix(fragment, `"`) && len(fragment) >= 2:
		return Token{Type: StringConst, Value: fragment[1 : len(fragment)-1]}, nil

	case identPattern.MatchString(fragment):
		return Token{Type: Identifier, Value: fragment}, nil

	default:
		return Token{}, &LexError{Fragment: fragment}
	}
}
