package jack_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n2t-toolchain/hackc/pkg/jack"
)

func TestTokenize(t *testing.T) {
	source := `
class Main { // entry point
	/* say hi */
	function void main() {
		var int x;
		let x = 1 + 2;
		do Output.printString("hi");
		return;
	}
}
`
	tokens, err := jack.Tokenize(strings.NewReader(source))
	require.NoError(t, err)

	want := []jack.Token{
		{Type: jack.Keyword, Value: "class"},
		{Type: jack.Identifier, Value: "Main"},
		{Type: jack.Symbol, Value: "{"},
		{Type: jack.Keyword, Value: "function"},
		{Type: jack.Keyword, Value: "void"},
		{Type: jack.Identifier, Value: "main"},
		{Type: jack.Symbol, Value: "("},
		{Type: jack.Symbol, Value: ")"},
		{Type: jack.Symbol, Value: "{"},
		{Type: jack.Keyword, Value: "var"},
		{Type: jack.Keyword, Value: "int"},
		{Type: jack.Identifier, Value: "x"},
		{Type: jack.Symbol, Value: ";"},
		{Type: jack.Keyword, Value: "let"},
		{Type: jack.Identifier, Value: "x"},
		{Type: jack.Symbol, Value: "="},
		{Type: jack.IntConst, Value: "1"},
		{Type: jack.Symbol, Value: "+"},
		{Type: jack.IntConst, Value: "2"},
		{Type: jack.Symbol, Value: ";"},
		{Type: jack.Keyword, Value: "do"},
		{Type: jack.Identifier, Value: "Output"},
		{Type: jack.Symbol, Value: "."},
		{Type: jack.Identifier, Value: "printString"},
		{Type: jack.Symbol, Value: "("},
		{Type: jack.StringConst, Value: "hi"},
		{Type: jack.Symbol, Value: ")"},
		{Type: jack.Symbol, Value: ";"},
		{Type: jack.Keyword, Value: "return"},
		{Type: jack.Symbol, Value: ";"},
		{Type: jack.Symbol, Value: "}"},
		{Type: jack.Symbol, Value: "}"},
	}

	assert.Equal(t, want, tokens)
}

func TestTokenizeLexError(t *testing.T) {
	_, err := jack.Tokenize(strings.NewReader(`let x = @;`))
	require.Error(t, err)

	var lexErr *jack.LexError
	require.ErrorAs(t, err, &lexErr)
	assert.Equal(t, "@", lexErr.Fragment)
}
