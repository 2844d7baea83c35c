package vm

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/n2t-toolchain/hackc/pkg/asm"
)

// TranslateError marks a lowering failure tied to a specific module and source line: an
// unrecognized VM opcode or a malformed segment/index.
type TranslateError struct {
	Module string
	Line   int
	Reason string
}

func (e *TranslateError) Error() string {
	return errors.Errorf("%s:%d: %s", e.Module, e.Line, e.Reason).Error()
}

// ----------------------------------------------------------------------------
// Vm Lowerer

// The Lowerer takes a 'vm.Program' (one Module per translation unit/source file) and
// produces its 'asm.Program' counterpart, a single concatenated instruction stream.
//
// Each module is visited operation by operation (DFS over a flat list, there's no nesting
// in the VM IR) and translated to a fixed or parameterized block of 'asm.Statement',
// implementing the stack machine's memory model and calling convention along the way.
type Lowerer struct {
	program Program

	retCounters map[string]int // monotonic per-module counter used to build unique return labels
}

// Initializes and returns to the caller a brand new 'Lowerer' struct.
// Requires the argument Program to be not nil nor empty.
func NewLowerer(p Program) Lowerer {
	return Lowerer{program: p, retCounters: map[string]int{}}
}

// Triggers the lowering process. Modules are visited in name order so that, for the same
// input, the generated ASM is always identical run to run. When a 'Sys' module is present
// among the inputs a bootstrap sequence is prepended and 'Sys' is translated first —
// presence is auto-detected, there is no flag to force or suppress it.
func (l *Lowerer) Lower() (asm.Program, error) {
	if len(l.program) == 0 {
		return nil, errors.New("the given 'program' is empty or nil")
	}

	names := make([]string, 0, len(l.program))
	for name := range l.program {
		names = append(names, name)
	}
	sort.Strings(names)

	out := asm.Program{}

	if _, hasSys := l.program["Sys"]; hasSys {
		out = append(out, l.bootstrap()...)

		reordered := []string{"Sys"}
		for _, name := range names {
			if name != "Sys" {
				reordered = append(reordered, name)
			}
		}
		names = reordered
	}

	for _, name := range names {
		ops, err := l.lowerModule(name, l.program[name])
		if err != nil {
			return nil, errors.Wrapf(err, "error lowering module '%s'", name)
		}
		out = append(out, ops...)
	}

	return out, nil
}

// Emits the fixed bootstrap sequence: reset SP to the base of the stack, call Sys.init
// and trap execution in an infinite loop should it ever return.
func (l *Lowerer) bootstrap() []asm.Statement {
	ops := []asm.Statement{
		asm.AInstruction{Location: "256"},
		asm.CInstruction{Dest: "D", Comp: "A"},
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "M", Comp: "D"},
	}
	ops = append(ops, l.lowerFuncCallOp("Bootstrap", FuncCallOp{Name: "Sys.init", NArgs: 0})...)
	ops = append(ops,
		asm.LabelDecl{Name: "Bootstrap_END"},
		asm.AInstruction{Location: "Bootstrap_END"},
		asm.CInstruction{Comp: "0", Jump: "JMP"},
	)
	return ops
}

// Translates a single module/file. 'name' namespaces statics, control-flow labels and
// the per-module return-label counter used by 'call'.
func (l *Lowerer) lowerModule(name string, module Module) ([]asm.Statement, error) {
	out := []asm.Statement{}

	for idx, operation := range module {
		line := idx + 1

		switch op := operation.(type) {
		case MemoryOp:
			ops, err := l.lowerMemoryOp(name, op)
			if err != nil {
				return nil, &TranslateError{Module: name, Line: line, Reason: err.Error()}
			}
			out = append(out, ops...)

		case ArithmeticOp:
			ops, err := l.lowerArithmeticOp(name, op, line)
			if err != nil {
				return nil, &TranslateError{Module: name, Line: line, Reason: err.Error()}
			}
			out = append(out, ops...)

		case LabelDecl:
			out = append(out, asm.LabelDecl{Name: namespacedLabel(name, op.Name)})

		case GotoOp:
			if op.Jump == Conditional {
				out = append(out, popToD()...)
				out = append(out, asm.AInstruction{Location: namespacedLabel(name, op.Label)})
				out = append(out, asm.CInstruction{Comp: "D", Jump: "JNE"})
			} else {
				out = append(out,
					asm.AInstruction{Location: namespacedLabel(name, op.Label)},
					asm.CInstruction{Comp: "0", Jump: "JMP"},
				)
			}

		case FuncDecl:
			ops := []asm.Statement{asm.LabelDecl{Name: op.Name}}
			for i := 0; i < op.NLocal; i++ {
				ops = append(ops, pushConstant(0)...)
			}
			out = append(out, ops...)

		case FuncCallOp:
			out = append(out, l.lowerFuncCallOp(name, op)...)

		case ReturnOp:
			out = append(out, lowerReturnOp()...)

		default:
			return nil, &TranslateError{Module: name, Line: line, Reason: fmt.Sprintf("unrecognized operation '%T'", operation)}
		}
	}

	return out, nil
}

func namespacedLabel(module, name string) string {
	return fmt.Sprintf("%s_%s", module, name)
}

func staticSymbol(module string, offset uint16) string {
	return fmt.Sprintf("%s_%d", module, offset)
}

// ----------------------------------------------------------------------------
// Stack primitives

// pushD writes the current value of D to '*SP' and increments SP.
func pushD() []asm.Statement {
	return []asm.Statement{
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "A", Comp: "M"},
		asm.CInstruction{Dest: "M", Comp: "D"},
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "M", Comp: "M+1"},
	}
}

// popToD decrements SP and loads the value it now points at into D.
func popToD() []asm.Statement {
	return []asm.Statement{
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "M", Comp: "M-1"},
		asm.CInstruction{Dest: "A", Comp: "M"},
		asm.CInstruction{Dest: "D", Comp: "M"},
	}
}

func pushConstant(value uint16) []asm.Statement {
	ops := []asm.Statement{
		asm.AInstruction{Location: fmt.Sprint(value)},
		asm.CInstruction{Dest: "D", Comp: "A"},
	}
	return append(ops, pushD()...)
}

// ----------------------------------------------------------------------------
// Memory Op

func (l *Lowerer) lowerMemoryOp(module string, op MemoryOp) ([]asm.Statement, error) {
	if op.Segment == Pointer && op.Offset > 1 {
		return nil, errors.Errorf("invalid 'pointer' offset, got %d", op.Offset)
	}
	if op.Segment == Temp && op.Offset > 7 {
		return nil, errors.Errorf("invalid 'temp' offset, got %d", op.Offset)
	}

	switch op.Segment {
	case Constant:
		if op.Operation == Pop {
			return nil, errors.New("'constant' segment cannot be popped")
		}
		return pushConstant(op.Offset), nil

	case Local:
		return l.memoryOpBaseOffset(op.Operation, "LCL", op.Offset), nil
	case Argument:
		return l.memoryOpBaseOffset(op.Operation, "ARG", op.Offset), nil
	case This:
		return l.memoryOpBaseOffset(op.Operation, "THIS", op.Offset), nil
	case That:
		return l.memoryOpBaseOffset(op.Operation, "THAT", op.Offset), nil

	case Static:
		symbol := staticSymbol(module, op.Offset)
		if op.Operation == Push {
			return pushDirect(symbol), nil
		}
		return popDirect(symbol), nil

	case Pointer:
		target := "THIS"
		if op.Offset == 1 {
			target = "THAT"
		}
		if op.Operation == Push {
			return pushDirect(target), nil
		}
		return popDirect(target), nil

	case Temp:
		addr := fmt.Sprint(5 + op.Offset)
		if op.Operation == Push {
			return pushDirect(addr), nil
		}
		return popDirect(addr), nil

	default:
		return nil, errors.Errorf("unrecognized segment '%s'", op.Segment)
	}
}

// memoryOpBaseOffset implements push/pop for the 4 pointer-indirected segments, each
// of which resolves to 'base+offset' rather than a fixed address.
func (Lowerer) memoryOpBaseOffset(operation OperationType, base string, offset uint16) []asm.Statement {
	if operation == Push {
		ops := []asm.Statement{
			asm.AInstruction{Location: base},
			asm.CInstruction{Dest: "D", Comp: "M"},
			asm.AInstruction{Location: fmt.Sprint(offset)},
			asm.CInstruction{Dest: "A", Comp: "D+A"},
			asm.CInstruction{Dest: "D", Comp: "M"},
		}
		return append(ops, pushD()...)
	}

	ops := []asm.Statement{
		asm.AInstruction{Location: base},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: fmt.Sprint(offset)},
		asm.CInstruction{Dest: "D", Comp: "D+A"},
		asm.AInstruction{Location: "R13"},
		asm.CInstruction{Dest: "M", Comp: "D"},
	}
	ops = append(ops, popToD()...)
	return append(ops,
		asm.AInstruction{Location: "R13"},
		asm.CInstruction{Dest: "A", Comp: "M"},
		asm.CInstruction{Dest: "M", Comp: "D"},
	)
}

// pushDirect/popDirect implement push/pop for segments that resolve to a single, fixed
// memory address rather than a base+offset computation (static, pointer, temp).
func pushDirect(location string) []asm.Statement {
	ops := []asm.Statement{
		asm.AInstruction{Location: location},
		asm.CInstruction{Dest: "D", Comp: "M"},
	}
	return append(ops, pushD()...)
}

func popDirect(location string) []asm.Statement {
	ops := popToD()
	return append(ops,
		asm.AInstruction{Location: location},
		asm.CInstruction{Dest: "M", Comp: "D"},
	)
}

// ----------------------------------------------------------------------------
// Arithmetic Op

func (l *Lowerer) lowerArithmeticOp(module string, op ArithmeticOp, line int) ([]asm.Statement, error) {
	switch op.Operation {
	case Add:
		return binaryOp("D+M"), nil
	case Sub:
		return binaryOp("M-D"), nil
	case And:
		return binaryOp("D&M"), nil
	case Or:
		return binaryOp("D|M"), nil
	case Neg:
		return unaryOp("-M"), nil
	case Not:
		return unaryOp("!M"), nil
	case Eq:
		return compareOp(fmt.Sprintf("eq_%s_%d", module, line), "JEQ"), nil
	case Gt:
		return compareOp(fmt.Sprintf("gt_%s_%d", module, line), "JGT"), nil
	case Lt:
		return compareOp(fmt.Sprintf("lt_%s_%d", module, line), "JLT"), nil
	default:
		return nil, errors.Errorf("unrecognized arithmetic operation '%s'", op.Operation)
	}
}

// binaryOp pops the top 2 values (x below y) and pushes 'x <comp> y' in their place,
// where 'comp' is expressed in terms of D (= y, popped first) and M (= x).
func binaryOp(comp string) []asm.Statement {
	return []asm.Statement{
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "AM", Comp: "M-1"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.CInstruction{Dest: "A", Comp: "A-1"},
		asm.CInstruction{Dest: "M", Comp: comp},
	}
}

// unaryOp rewrites the top of the stack in place.
func unaryOp(comp string) []asm.Statement {
	return []asm.Statement{
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "A", Comp: "M-1"},
		asm.CInstruction{Dest: "M", Comp: comp},
	}
}

// compareOp subtracts the top 2 values and branches on the result to leave -1 (true)
// or 0 (false) on the stack; 'label' must already be unique within its module.
func compareOp(label, jump string) []asm.Statement {
	trueLabel, endLabel := label+"_TRUE", label+"_END"

	return []asm.Statement{
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "AM", Comp: "M-1"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.CInstruction{Dest: "A", Comp: "A-1"},
		asm.CInstruction{Dest: "D", Comp: "M-D"},

		asm.AInstruction{Location: trueLabel},
		asm.CInstruction{Comp: "D", Jump: jump},

		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "A", Comp: "M-1"},
		asm.CInstruction{Dest: "M", Comp: "0"},
		asm.AInstruction{Location: endLabel},
		asm.CInstruction{Comp: "0", Jump: "JMP"},

		asm.LabelDecl{Name: trueLabel},
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "A", Comp: "M-1"},
		asm.CInstruction{Dest: "M", Comp: "-1"},

		asm.LabelDecl{Name: endLabel},
	}
}

// ----------------------------------------------------------------------------
// Function, Call, Return

func (l *Lowerer) lowerFuncCallOp(module string, op FuncCallOp) []asm.Statement {
	retLabel := fmt.Sprintf("%s$ret.%d", op.Name, l.retCounters[module])
	l.retCounters[module]++

	ops := []asm.Statement{
		asm.AInstruction{Location: retLabel},
		asm.CInstruction{Dest: "D", Comp: "A"},
	}
	ops = append(ops, pushD()...)

	for _, segment := range []string{"LCL", "ARG", "THIS", "THAT"} {
		ops = append(ops,
			asm.AInstruction{Location: segment},
			asm.CInstruction{Dest: "D", Comp: "M"},
		)
		ops = append(ops, pushD()...)
	}

	ops = append(ops,
		// ARG = SP - n - 5
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: fmt.Sprint(op.NArgs + 5)},
		asm.CInstruction{Dest: "D", Comp: "D-A"},
		asm.AInstruction{Location: "ARG"},
		asm.CInstruction{Dest: "M", Comp: "D"},
		// LCL = SP
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "LCL"},
		asm.CInstruction{Dest: "M", Comp: "D"},
		// goto f
		asm.AInstruction{Location: op.Name},
		asm.CInstruction{Comp: "0", Jump: "JMP"},
		// (return address)
		asm.LabelDecl{Name: retLabel},
	)

	return ops
}

func lowerReturnOp() []asm.Statement {
	ops := []asm.Statement{
		// R14 (frame) = LCL
		asm.AInstruction{Location: "LCL"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "R14"},
		asm.CInstruction{Dest: "M", Comp: "D"},
		// R13 (return address) = *(frame-5)
		asm.AInstruction{Location: "5"},
		asm.CInstruction{Dest: "A", Comp: "D-A"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "R13"},
		asm.CInstruction{Dest: "M", Comp: "D"},

		// *ARG = pop()
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "M", Comp: "M-1"},
		asm.CInstruction{Dest: "A", Comp: "M"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "ARG"},
		asm.CInstruction{Dest: "A", Comp: "M"},
		asm.CInstruction{Dest: "M", Comp: "D"},

		// SP = ARG+1
		asm.AInstruction{Location: "ARG"},
		asm.CInstruction{Dest: "D", Comp: "M+1"},
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "M", Comp: "D"},
	}

	// THAT, THIS, ARG, LCL = *(frame-1..4), in this order (ARG/LCL restored last,
	// after they were used above to compute the new SP and return value location)
	ops = append(ops, restoreFromFrame(1, "THAT")...)
	ops = append(ops, restoreFromFrame(2, "THIS")...)
	ops = append(ops, restoreFromFrame(3, "ARG")...)
	ops = append(ops, restoreFromFrame(4, "LCL")...)

	return append(ops,
		// goto return address
		asm.AInstruction{Location: "R13"},
		asm.CInstruction{Dest: "A", Comp: "M"},
		asm.CInstruction{Comp: "0", Jump: "JMP"},
	)
}

// restoreFromFrame reads '*(R14 - offsetFromEnd)' (R14 holding the saved frame pointer)
// and writes it to 'target', used to restore THAT/THIS/ARG/LCL during 'return'.
func restoreFromFrame(offsetFromEnd int, target string) []asm.Statement {
	return []asm.Statement{
		asm.AInstruction{Location: "R14"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: fmt.Sprint(offsetFromEnd)},
		asm.CInstruction{Dest: "A", Comp: "D-A"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: target},
		asm.CInstruction{Dest: "M", Comp: "D"},
	}
}
