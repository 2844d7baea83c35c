package jack

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/n2t-toolchain/hackc/pkg/utils"
	"github.com/n2t-toolchain/hackc/pkg/vm"
)

// ----------------------------------------------------------------------------
// Jack Lowerer

// The Lowerer takes a 'jack.Program' and produces its 'vm.Program' counterpart.
//
// Since we get a tree-like struct we are able to traverse it using a Depth First Search (DFS) algorithm
// on it. For each operation node visited we produce a list of 'vm.Operation' as counterpart as well as
// validating the input before proceeding with the processing.
type Lowerer struct {
	program utils.OrderedMap[string, Class] // The program to lower, it must be not nil nor empty
	scopes  ScopeTable                      // Keeps track of the scopes and declared variables inside each one

	labelCounter int // Per-class monotonic counter for if/while labels, reset on every 'HandleClass' call
}

// Initializes and returns to the caller a brand new 'Lowerer' struct.
// Requires the argument Program to be not nil nor empty.
func NewLowerer(p Program) Lowerer {
	// ? Why do we convert from a jack.Program (a map[string]Class) to an OrderedMap[string, Class]?
	// A plain Go map doesn't guarantee iteration order, so the same input program could produce a
	// different module emission order on every run. Sorting by class name once here and keeping the
	// result in an OrderedMap makes the whole lowering pass, and thus the generated output, reproducible.
	classes := []utils.MapEntry[string, Class]{}
	for _, class := range p {
		classes = append(classes, utils.MapEntry[string, Class]{Key: class.Name, Value: class})
	}

	sort.Slice(classes, func(i, j int) bool { return classes[i].Key < classes[j].Key })

	return Lowerer{program: utils.NewOrderedMapFromList(classes)}
}

// Triggers the lowering process. It iterates class by class and then statement by statement,
// recursively calling the necessary helper function based on the construct type (much like a
// recursive descent parser but for lowering), visiting the AST in DFS order.
func (l *Lowerer) Lower() (vm.Program, error) {
	if l.program.Size() == 0 {
		return nil, errors.New("the given 'program' is empty or nil")
	}

	program := vm.Program{}
	for _, entry := range l.program.Entries() {
		operations, err := l.HandleClass(entry.Value)
		if err != nil {
			return nil, errors.Wrapf(err, "error handling lowering of class '%s'", entry.Key)
		}

		program[entry.Key] = vm.Module(operations)
	}

	return program, nil
}

// Specialized function to convert a 'jack.Class' node to a list of 'vm.Operation'.
func (l *Lowerer) HandleClass(class Class) ([]vm.Operation, error) {
	l.scopes.PushClassScope(class.Name) // Keep track of the current scope being processed
	l.labelCounter = 0                  // Labels are namespaced by class, counter restarts for each one
	defer l.scopes.PopClassScope()      // Reset the class scope after processing

	for _, field := range class.Fields.Entries() {
		if err := l.scopes.RegisterVariable(field.Value); err != nil {
			return nil, errors.Wrapf(err, "error declaring field '%s' in class '%s'", field.Key, class.Name)
		}
	}

	operations := []vm.Operation{}
	for _, subroutine := range class.Subroutines.Entries() {
		ops, err := l.HandleSubroutine(class, subroutine.Value)
		if err != nil {
			return nil, errors.Wrapf(err, "error handling subroutine '%s' in class '%s'", subroutine.Key, class.Name)
		}
		operations = append(operations, ops...)
	}

	return operations, nil
}

// Specialized function to convert a 'jack.Subroutine' node to a list of 'vm.Operation'.
func (l *Lowerer) HandleSubroutine(class Class, subroutine Subroutine) ([]vm.Operation, error) {
	l.scopes.PushSubRoutineScope(subroutine.Name) // Keep track of the current subroutine being processed
	defer l.scopes.PopSubroutineScope()           // Reset the subroutine scope after processing

	// Methods are invoked with the receiver already pushed as the implicit first argument by
	// the caller, so we register it under argument slot 0 before the subroutine's own parameters.
	if subroutine.Type == Method {
		this := Variable{Name: "this", Type: Parameter, DataType: Object, ClassName: class.Name}
		if err := l.scopes.RegisterVariable(this); err != nil {
			return nil, errors.Wrap(err, "error registering implicit 'this' receiver")
		}
	}

	for _, arg := range subroutine.Arguments.Entries() {
		if err := l.scopes.RegisterVariable(arg.Value); err != nil {
			return nil, errors.Wrapf(err, "error registering argument '%s'", arg.Key)
		}
	}

	fName, fBody := l.scopes.GetScope(), []vm.Operation{}
	for _, stmt := range subroutine.Statements {
		ops, err := l.HandleStatement(stmt)
		if err != nil {
			return nil, errors.Wrapf(err, "error handling nested statement %T", stmt)
		}
		fBody = append(fBody, ops...)
	}

	fDecl := vm.FuncDecl{Name: fName, NLocal: l.scopes.local.entries.Count()}

	// Constructors allocate the memory required for the object instance themselves (one word
	// per declared instance field) and set 'this' to the freshly allocated base address.
	if subroutine.Type == Constructor {
		nFields := 0
		for _, field := range class.Fields.Entries() {
			if field.Value.Type == Field {
				nFields++
			}
		}

		prelude := []vm.Operation{
			vm.MemoryOp{Operation: vm.Push, Segment: vm.Constant, Offset: uint16(nFields)},
			vm.FuncCallOp{Name: "Memory.alloc", NArgs: 1},
			vm.MemoryOp{Operation: vm.Pop, Segment: vm.Pointer, Offset: 0},
		}

		return append(append([]vm.Operation{fDecl}, prelude...), fBody...), nil
	}

	// Methods receive the object instance as their first argument; we set the 'this' pointer
	// from it so that field accesses inside the body resolve against the right instance.
	if subroutine.Type == Method {
		prelude := []vm.Operation{
			vm.MemoryOp{Operation: vm.Push, Segment: vm.Argument, Offset: 0},
			vm.MemoryOp{Operation: vm.Pop, Segment: vm.Pointer, Offset: 0},
		}

		return append(append([]vm.Operation{fDecl}, prelude...), fBody...), nil
	}

	return append([]vm.Operation{fDecl}, fBody...), nil
}

// Generalized function to lower multiple statement types, returning a 'vm.Operation' list.
func (l *Lowerer) HandleStatement(stmt Statement) ([]vm.Operation, error) {
	switch tStmt := stmt.(type) {
	case DoStmt:
		return l.HandleDoStmt(tStmt)
	case VarStmt:
		return l.HandleVarStmt(tStmt)
	case LetStmt:
		return l.HandleLetStmt(tStmt)
	case IfStmt:
		return l.HandleIfStmt(tStmt)
	case WhileStmt:
		return l.HandleWhileStmt(tStmt)
	case ReturnStmt:
		return l.HandleReturnStmt(tStmt)
	default:
		return nil, errors.Errorf("unrecognized statement: %T", stmt)
	}
}

// Specialized function to convert a 'jack.DoStmt' to a list of 'vm.Operation'.
func (l *Lowerer) HandleDoStmt(statement DoStmt) ([]vm.Operation, error) {
	ops, err := l.HandleFuncCallExpr(statement.FuncCall)
	if err != nil {
		return nil, errors.Wrap(err, "error handling nested function call expression")
	}

	// 'do' discards whatever the call returns, every Jack subroutine still leaves a value on the stack
	return append(ops, vm.MemoryOp{Operation: vm.Pop, Segment: vm.Temp, Offset: 0}), nil
}

// Specialized function to convert a 'jack.VarStmt' to a list of 'vm.Operation'.
func (l *Lowerer) HandleVarStmt(statement VarStmt) ([]vm.Operation, error) {
	for _, variable := range statement.Vars {
		if err := l.scopes.RegisterVariable(variable); err != nil {
			return nil, errors.Wrapf(err, "error declaring variable '%s'", variable.Name)
		}
	}
	return []vm.Operation{}, nil // No code needed for a bare declaration, only the scope changes
}

// Specialized function to convert a 'jack.LetStmt' to a list of 'vm.Operation'.
func (l *Lowerer) HandleLetStmt(statement LetStmt) ([]vm.Operation, error) {
	rhsOps, err := l.HandleExpression(statement.Rhs)
	if err != nil {
		return nil, errors.Wrap(err, "error handling RHS expression")
	}

	if expr, isVarExpr := statement.Lhs.(VarExpr); isVarExpr {
		offset, variable, err := l.scopes.ResolveVariable(expr.Var)
		if err != nil {
			return nil, errors.Wrapf(err, "error resolving variable '%s'", expr.Var)
		}

		switch variable.Type {
		case Local:
			return append(rhsOps, vm.MemoryOp{Operation: vm.Pop, Segment: vm.Local, Offset: offset}), nil
		case Parameter:
			return append(rhsOps, vm.MemoryOp{Operation: vm.Pop, Segment: vm.Argument, Offset: offset}), nil
		case Field:
			return append(rhsOps, vm.MemoryOp{Operation: vm.Pop, Segment: vm.This, Offset: offset}), nil
		case Static:
			return append(rhsOps, vm.MemoryOp{Operation: vm.Pop, Segment: vm.Static, Offset: offset}), nil
		default:
			return nil, errors.Errorf("variable storage kind '%s' is not supported", variable.Type)
		}
	}

	// Array element assignment: compute the target address, then evaluate the RHS; the RHS
	// value is parked in 'temp 0' while the address is popped into 'pointer 1', and is then
	// written through 'that 0'.
	if expr, isArrayExpr := statement.Lhs.(ArrayExpr); isArrayExpr {
		baseOps, err := l.HandleVarExpr(VarExpr{Var: expr.Var})
		if err != nil {
			return nil, errors.Wrap(err, "error handling base variable expression")
		}

		indexOps, err := l.HandleExpression(expr.Index)
		if err != nil {
			return nil, errors.Wrap(err, "error handling index expression")
		}

		refOps := append(append(indexOps, baseOps...), vm.ArithmeticOp{Operation: vm.Add})

		writeOps := []vm.Operation{
			vm.MemoryOp{Operation: vm.Pop, Segment: vm.Temp, Offset: 0},
			vm.MemoryOp{Operation: vm.Pop, Segment: vm.Pointer, Offset: 1},
			vm.MemoryOp{Operation: vm.Push, Segment: vm.Temp, Offset: 0},
			vm.MemoryOp{Operation: vm.Pop, Segment: vm.That, Offset: 0},
		}

		return append(append(refOps, rhsOps...), writeOps...), nil
	}

	return nil, errors.Errorf("LHS expression must be either a 'VarExpr' or an 'ArrayExpr', got: %T", statement.Lhs)
}

// nextLabel mints the next label in the current class' 'ClassName.L<n>' namespace.
func (l *Lowerer) nextLabel(class string) string {
	label := fmt.Sprintf("%s.L%d", class, l.labelCounter)
	l.labelCounter++
	return label
}

// currentClass recovers the enclosing class name from the scope table's dotted path.
func (l *Lowerer) currentClass() string {
	return strings.Split(l.scopes.GetScope(), ".")[0]
}

// Specialized function to convert a 'jack.WhileStmt' to a list of 'vm.Operation'.
func (l *Lowerer) HandleWhileStmt(statement WhileStmt) ([]vm.Operation, error) {
	class := l.currentClass()
	startLabel, endLabel := l.nextLabel(class), l.nextLabel(class)

	condOps, err := l.HandleExpression(statement.Condition)
	if err != nil {
		return nil, errors.Wrap(err, "error handling while condition expression")
	}

	blockOps := []vm.Operation{}
	for _, stmt := range statement.Block {
		ops, err := l.HandleStatement(stmt)
		if err != nil {
			return nil, errors.Wrap(err, "error handling statement in while block")
		}
		blockOps = append(blockOps, ops...)
	}

	out := []vm.Operation{vm.LabelDecl{Name: startLabel}}
	out = append(out, condOps...)
	out = append(out, vm.ArithmeticOp{Operation: vm.Not}, vm.GotoOp{Label: endLabel, Jump: vm.Conditional})
	out = append(out, blockOps...)
	out = append(out, vm.GotoOp{Label: startLabel, Jump: vm.Unconditional}, vm.LabelDecl{Name: endLabel})
	return out, nil
}

// Specialized function to convert a 'jack.IfStmt' to a list of 'vm.Operation'.
func (l *Lowerer) HandleIfStmt(statement IfStmt) ([]vm.Operation, error) {
	class := l.currentClass()

	condOps, err := l.HandleExpression(statement.Condition)
	if err != nil {
		return nil, errors.Wrap(err, "error handling if condition expression")
	}

	thenOps, elseOps := []vm.Operation{}, []vm.Operation{}

	for _, stmt := range statement.ThenBlock {
		ops, err := l.HandleStatement(stmt)
		if err != nil {
			return nil, errors.Wrap(err, "error handling statement in 'then' block")
		}
		thenOps = append(thenOps, ops...)
	}

	for _, stmt := range statement.ElseBlock {
		ops, err := l.HandleStatement(stmt)
		if err != nil {
			return nil, errors.Wrap(err, "error handling statement in 'else' block")
		}
		elseOps = append(elseOps, ops...)
	}

	elseLabel, endLabel := l.nextLabel(class), l.nextLabel(class)

	out := append([]vm.Operation{}, condOps...)
	out = append(out, vm.ArithmeticOp{Operation: vm.Not}, vm.GotoOp{Label: elseLabel, Jump: vm.Conditional})
	out = append(out, thenOps...)
	out = append(out, vm.GotoOp{Label: endLabel, Jump: vm.Unconditional}, vm.LabelDecl{Name: elseLabel})
	out = append(out, elseOps...)
	out = append(out, vm.LabelDecl{Name: endLabel})
	return out, nil
}

// Specialized function to convert a 'jack.ReturnStmt' to a list of 'vm.Operation'.
func (l *Lowerer) HandleReturnStmt(statement ReturnStmt) ([]vm.Operation, error) {
	if statement.Expr == nil { // 'void' subroutines still push a throwaway zero, callers always pop one value
		return []vm.Operation{
			vm.MemoryOp{Operation: vm.Push, Segment: vm.Constant, Offset: 0},
			vm.ReturnOp{},
		}, nil
	}

	ops, err := l.HandleExpression(statement.Expr)
	if err != nil {
		return nil, errors.Wrap(err, "error handling return expression")
	}

	return append(ops, vm.ReturnOp{}), nil
}

// Generalized function to lower multiple expression types, returning a 'vm.Operation' list.
func (l *Lowerer) HandleExpression(expr Expression) ([]vm.Operation, error) {
	switch tExpr := expr.(type) {
	case VarExpr:
		return l.HandleVarExpr(tExpr)
	case LiteralExpr:
		return l.HandleLiteralExpr(tExpr)
	case ArrayExpr:
		return l.HandleArrayExpr(tExpr)
	case UnaryExpr:
		return l.HandleUnaryExpr(tExpr)
	case BinaryExpr:
		return l.HandleBinaryExpr(tExpr)
	case FuncCallExpr:
		return l.HandleFuncCallExpr(tExpr)
	default:
		return nil, errors.Errorf("unrecognized expression: %T", expr)
	}
}

// Specialized function to convert a 'jack.VarExpr' to a list of 'vm.Operation'.
func (l *Lowerer) HandleVarExpr(expression VarExpr) ([]vm.Operation, error) {
	if expression.Var == "this" {
		return []vm.Operation{vm.MemoryOp{Operation: vm.Push, Segment: vm.Pointer, Offset: 0}}, nil
	}

	offset, variable, err := l.scopes.ResolveVariable(expression.Var)
	if err != nil {
		return nil, errors.Wrapf(err, "error resolving variable '%s'", expression.Var)
	}

	switch variable.Type {
	case Local:
		return []vm.Operation{vm.MemoryOp{Operation: vm.Push, Segment: vm.Local, Offset: offset}}, nil
	case Parameter:
		return []vm.Operation{vm.MemoryOp{Operation: vm.Push, Segment: vm.Argument, Offset: offset}}, nil
	case Field:
		return []vm.Operation{vm.MemoryOp{Operation: vm.Push, Segment: vm.This, Offset: offset}}, nil
	case Static:
		return []vm.Operation{vm.MemoryOp{Operation: vm.Push, Segment: vm.Static, Offset: offset}}, nil
	default:
		return nil, errors.Errorf("variable storage kind '%s' is not supported", variable.Type)
	}
}

// Specialized function to convert a 'jack.LiteralExpr' to a list of 'vm.Operation'.
func (l *Lowerer) HandleLiteralExpr(expression LiteralExpr) ([]vm.Operation, error) {
	switch expression.Type {
	case Int:
		value, err := strconv.ParseUint(expression.Value, 10, 16)
		if err != nil {
			return nil, errors.Wrapf(err, "error parsing integer literal '%s'", expression.Value)
		}
		return []vm.Operation{vm.MemoryOp{Operation: vm.Push, Segment: vm.Constant, Offset: uint16(value)}}, nil

	case Bool:
		value, err := strconv.ParseBool(expression.Value)
		if err != nil {
			return nil, errors.Wrapf(err, "error parsing boolean literal '%s'", expression.Value)
		}
		if value {
			// 'true' is represented as all-ones (-1 in two's complement), 'false' as 0
			return []vm.Operation{
				vm.MemoryOp{Operation: vm.Push, Segment: vm.Constant, Offset: 0},
				vm.ArithmeticOp{Operation: vm.Not},
			}, nil
		}
		return []vm.Operation{vm.MemoryOp{Operation: vm.Push, Segment: vm.Constant, Offset: 0}}, nil

	case Char:
		if len(expression.Value) != 1 {
			return nil, errors.Errorf("error parsing char literal '%s'", expression.Value)
		}
		return []vm.Operation{vm.MemoryOp{Operation: vm.Push, Segment: vm.Constant, Offset: uint16(expression.Value[0])}}, nil

	case Null, Object:
		if expression.Value != "null" {
			return nil, errors.Errorf("object literal is not supported: '%s'", expression.Value)
		}
		return []vm.Operation{vm.MemoryOp{Operation: vm.Push, Segment: vm.Constant, Offset: 0}}, nil

	case String:
		ops := []vm.Operation{
			vm.MemoryOp{Operation: vm.Push, Segment: vm.Constant, Offset: uint16(len(expression.Value))},
			vm.FuncCallOp{Name: "String.new", NArgs: 1},
		}

		for _, char := range expression.Value {
			ops = append(ops,
				vm.MemoryOp{Operation: vm.Push, Segment: vm.Constant, Offset: uint16(char)},
				vm.FuncCallOp{Name: "String.appendChar", NArgs: 2},
			)
		}

		return ops, nil

	default:
		return nil, errors.Errorf("unrecognized literal expression type: %s", expression.Type)
	}
}

// Specialized function to convert a 'jack.ArrayExpr' to a list of 'vm.Operation'.
func (l *Lowerer) HandleArrayExpr(expression ArrayExpr) ([]vm.Operation, error) {
	baseOps, err := l.HandleVarExpr(VarExpr{Var: expression.Var})
	if err != nil {
		return nil, errors.Wrap(err, "error handling base variable expression")
	}

	indexOps, err := l.HandleExpression(expression.Index)
	if err != nil {
		return nil, errors.Wrap(err, "error handling index expression")
	}

	return append(append(indexOps, baseOps...),
		vm.ArithmeticOp{Operation: vm.Add},
		vm.MemoryOp{Operation: vm.Pop, Segment: vm.Pointer, Offset: 1},
		vm.MemoryOp{Operation: vm.Push, Segment: vm.That, Offset: 0},
	), nil
}

// Specialized function to convert a 'jack.UnaryExpr' to a list of 'vm.Operation'.
func (l *Lowerer) HandleUnaryExpr(expression UnaryExpr) ([]vm.Operation, error) {
	ops, err := l.HandleExpression(expression.Rhs)
	if err != nil {
		return nil, errors.Wrap(err, "error handling nested expression")
	}

	switch expression.Type {
	case Minus: // Arithmetic negation, the parser only ever builds a UnaryExpr w/ 'Minus' for '-x'
		return append(ops, vm.ArithmeticOp{Operation: vm.Neg}), nil
	case BoolNot:
		return append(ops, vm.ArithmeticOp{Operation: vm.Not}), nil
	default:
		return nil, errors.Errorf("unrecognized unary expression type: %s", expression.Type)
	}
}

// Specialized function to convert a 'jack.BinaryExpr' to a list of 'vm.Operation'.
func (l *Lowerer) HandleBinaryExpr(expression BinaryExpr) ([]vm.Operation, error) {
	lhsOps, err := l.HandleExpression(expression.Lhs)
	if err != nil {
		return nil, errors.Wrap(err, "error handling nested LHS expression")
	}

	rhsOps, err := l.HandleExpression(expression.Rhs)
	if err != nil {
		return nil, errors.Wrap(err, "error handling nested RHS expression")
	}

	operands := append(lhsOps, rhsOps...)

	switch expression.Type {
	case Plus:
		return append(operands, vm.ArithmeticOp{Operation: vm.Add}), nil
	case Minus:
		return append(operands, vm.ArithmeticOp{Operation: vm.Sub}), nil
	case Divide:
		return append(operands, vm.FuncCallOp{Name: "Math.divide", NArgs: 2}), nil
	case Multiply:
		return append(operands, vm.FuncCallOp{Name: "Math.multiply", NArgs: 2}), nil
	case BoolOr:
		return append(operands, vm.ArithmeticOp{Operation: vm.Or}), nil
	case BoolAnd:
		return append(operands, vm.ArithmeticOp{Operation: vm.And}), nil
	case Equal:
		return append(operands, vm.ArithmeticOp{Operation: vm.Eq}), nil
	case LessThan:
		return append(operands, vm.ArithmeticOp{Operation: vm.Lt}), nil
	case GreatThan:
		return append(operands, vm.ArithmeticOp{Operation: vm.Gt}), nil
	default:
		return nil, errors.Errorf("unrecognized binary expression type: %s", expression.Type)
	}
}

// Specialized function to convert a 'jack.FuncCallExpr' to a list of 'vm.Operation'.
func (l *Lowerer) HandleFuncCallExpr(expression FuncCallExpr) ([]vm.Operation, error) {
	argsInit, argsLen := []vm.Operation{}, len(expression.Arguments)

	for _, expr := range expression.Arguments {
		ops, err := l.HandleExpression(expr)
		if err != nil {
			return nil, errors.Wrap(err, "error handling argument expression")
		}
		argsInit = append(argsInit, ops...)
	}

	if !expression.IsExtCall {
		// A bare call is always treated as a call on the current object: the receiver is
		// pushed implicitly regardless of whether the target subroutine is itself a method
		// or a function, matching the canonical Jack calling convention.
		fName := fmt.Sprintf("%s.%s", l.currentClass(), expression.FuncName)
		thisOp := vm.MemoryOp{Operation: vm.Push, Segment: vm.Pointer, Offset: 0}
		return append(append([]vm.Operation{thisOp}, argsInit...), vm.FuncCallOp{Name: fName, NArgs: argsLen + 1}), nil
	}

	// External call: either '<instance>.method(...)' on a known object variable, or
	// '<Class>.function(...)' / '<Class>.new(...)' naming a class directly. Either way the
	// call target is exactly '<Receiver>.<FuncName>' — Jack source already spells constructor
	// calls as '.new', so there's no renaming to do and no need to consult any class definition.
	if _, variable, err := l.scopes.ResolveVariable(expression.Var); err == nil {
		if variable.DataType != Object {
			return nil, errors.Errorf("variable '%s' is not an object, cannot call a method on it", expression.Var)
		}

		thisArg, err := l.HandleVarExpr(VarExpr{Var: expression.Var})
		if err != nil {
			return nil, errors.Wrap(err, "error handling variable expression for 'this' pointer")
		}

		fName := fmt.Sprintf("%s.%s", variable.ClassName, expression.FuncName)
		return append(append(thisArg, argsInit...), vm.FuncCallOp{Name: fName, NArgs: argsLen + 1}), nil
	}

	fName := fmt.Sprintf("%s.%s", expression.Var, expression.FuncName)
	return append(argsInit, vm.FuncCallOp{Name: fName, NArgs: argsLen}), nil
}
