package jack_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n2t-toolchain/hackc/pkg/jack"
)

const pointClass = `
class Point {
	field int x, y;
	static int count;

	constructor Point new(int ax, int ay) {
		let x = ax;
		let y = ay;
		let count = count + 1;
		return this;
	}

	method int getX() {
		return x;
	}

	method void move(int dx) {
		let x = x + dx;
		return;
	}
}
`

func TestParseClass(t *testing.T) {
	parser := jack.NewParser(strings.NewReader(pointClass))
	class, err := parser.Parse()
	require.NoError(t, err)

	assert.Equal(t, "Point", class.Name)
	assert.Equal(t, 3, class.Fields.Size())
	assert.Equal(t, 3, class.Subroutines.Size())

	x, err := class.Fields.Get("x")
	require.NoError(t, err)
	assert.Equal(t, jack.Variable{Name: "x", Type: jack.Field, DataType: jack.Int}, x)

	count, err := class.Fields.Get("count")
	require.NoError(t, err)
	assert.Equal(t, jack.Variable{Name: "count", Type: jack.Static, DataType: jack.Int}, count)

	ctor, err := class.Subroutines.Get("new")
	require.NoError(t, err)
	assert.Equal(t, jack.Constructor, ctor.Type)
	assert.Equal(t, 2, ctor.Arguments.Size())
	assert.Len(t, ctor.Statements, 4)

	getX, err := class.Subroutines.Get("getX")
	require.NoError(t, err)
	assert.Equal(t, jack.Method, getX.Type)
	assert.Equal(t, jack.Int, getX.Return)
}

func TestParseClassDuplicateField(t *testing.T) {
	src := `
class Bad {
	field int x;
	field int x;

	function void main() {
		return;
	}
}
`
	parser := jack.NewParser(strings.NewReader(src))
	_, err := parser.Parse()
	require.Error(t, err)

	var compileErr *jack.CompileError
	require.ErrorAs(t, err, &compileErr)
}

func TestParseClassUnexpectedToken(t *testing.T) {
	src := `
class Bad {
	123 int x;
}
`
	parser := jack.NewParser(strings.NewReader(src))
	_, err := parser.Parse()
	require.Error(t, err)

	var parseErr *jack.ParseError
	require.ErrorAs(t, err, &parseErr)
}
