package vm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n2t-toolchain/hackc/pkg/asm"
	"github.com/n2t-toolchain/hackc/pkg/vm"
)

func TestLowererSimpleAdd(t *testing.T) {
	program := vm.Program{
		"SimpleAdd": vm.Module{
			vm.MemoryOp{Operation: vm.Push, Segment: vm.Constant, Offset: 7},
			vm.MemoryOp{Operation: vm.Push, Segment: vm.Constant, Offset: 8},
			vm.ArithmeticOp{Operation: vm.Add},
		},
	}

	lowerer := vm.NewLowerer(program)
	out, err := lowerer.Lower()
	require.NoError(t, err)

	want := asm.Program{
		asm.AInstruction{Location: "7"}, asm.CInstruction{Dest: "D", Comp: "A"},
		asm.AInstruction{Location: "SP"}, asm.CInstruction{Dest: "A", Comp: "M"},
		asm.CInstruction{Dest: "M", Comp: "D"},
		asm.AInstruction{Location: "SP"}, asm.CInstruction{Dest: "M", Comp: "M+1"},

		asm.AInstruction{Location: "8"}, asm.CInstruction{Dest: "D", Comp: "A"},
		asm.AInstruction{Location: "SP"}, asm.CInstruction{Dest: "A", Comp: "M"},
		asm.CInstruction{Dest: "M", Comp: "D"},
		asm.AInstruction{Location: "SP"}, asm.CInstruction{Dest: "M", Comp: "M+1"},

		asm.AInstruction{Location: "SP"}, asm.CInstruction{Dest: "AM", Comp: "M-1"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.CInstruction{Dest: "A", Comp: "A-1"},
		asm.CInstruction{Dest: "M", Comp: "D+M"},
	}

	assert.Equal(t, want, out)
}

func TestLowererBootstrapsWhenSysPresent(t *testing.T) {
	program := vm.Program{
		"Sys": vm.Module{vm.FuncDecl{Name: "Sys.init", NLocal: 0}, vm.ReturnOp{}},
	}

	lowerer := vm.NewLowerer(program)
	out, err := lowerer.Lower()
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(out), 4)
	assert.Equal(t, asm.AInstruction{Location: "256"}, out[0])
	assert.Equal(t, asm.CInstruction{Dest: "D", Comp: "A"}, out[1])
	assert.Equal(t, asm.AInstruction{Location: "SP"}, out[2])
	assert.Equal(t, asm.CInstruction{Dest: "M", Comp: "D"}, out[3])

	found := false
	for _, stmt := range out {
		if inst, ok := stmt.(asm.AInstruction); ok && inst.Location == "Sys.init" {
			found = true
		}
	}
	assert.True(t, found, "bootstrap should jump into Sys.init")
}

func TestLowererPopConstantFails(t *testing.T) {
	program := vm.Program{
		"Bad": vm.Module{vm.MemoryOp{Operation: vm.Pop, Segment: vm.Constant, Offset: 0}},
	}

	lowerer := vm.NewLowerer(program)
	_, err := lowerer.Lower()
	require.Error(t, err)

	var translateErr *vm.TranslateError
	require.ErrorAs(t, err, &translateErr)
	assert.Equal(t, "Bad", translateErr.Module)
	assert.Equal(t, 1, translateErr.Line)
}
