package jack

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/n2t-toolchain/hackc/pkg/utils"
)

// A Scope groups the variables declared under a single storage_kind within either
// a class or a subroutine; 'name' is purely diagnostic (GetScope()'s dotted path).
type Scope struct {
	name    string
	entries utils.Stack[Variable]
}

// ScopeTable implements the two-level class/subroutine lookup described for the
// compiler's symbol resolution: 'static' and 'field' persist for the whole class,
// 'local' and 'parameter' are scoped to a single subroutine and reset between them.
type ScopeTable struct {
	static utils.Stack[Variable]
	field  Scope

	local     Scope
	parameter Scope
}

func NewScopeTable() *ScopeTable {
	return &ScopeTable{}
}

func (st *ScopeTable) PushClassScope(class string) {
	newScope := fmt.Sprintf("%s.Global", class)
	st.field = Scope{name: newScope}
	st.static = utils.Stack[Variable]{}
}

func (st *ScopeTable) PopClassScope() {
	st.field, st.static = Scope{}, utils.Stack[Variable]{}
}

func (st *ScopeTable) PushSubRoutineScope(method string) {
	newScope := strings.ReplaceAll(st.GetScope(), "Global", method)
	st.local = Scope{name: newScope}
	st.parameter = Scope{name: newScope}
}

func (st *ScopeTable) PopSubroutineScope() { st.local, st.parameter = Scope{}, Scope{} }

func (st *ScopeTable) GetScope() string {
	if st.local.name != "" && st.parameter.name != "" {
		return st.local.name
	}

	if st.field.name != "" {
		return st.field.name
	}

	return "Global"
}

// Registers 'new' under its VarType's scope, failing if a variable of the same
// name already exists in that same scope (re-declaration is a hard error; shadowing
// a name from an enclosing scope by pushing a new scope is unaffected by this check).
func (st *ScopeTable) RegisterVariable(new Variable) error {
	target := st.scopeFor(new.Type)
	if target == nil {
		return errors.Errorf("unknown variable storage kind '%s' for '%s'", new.Type, new.Name)
	}

	for _, entry := range target.Entries() {
		if entry.Name == new.Name {
			return &CompileError{
				ClassName: strings.Split(st.GetScope(), ".")[0],
				Token:     Token{Type: Identifier, Value: new.Name},
				Reason:    fmt.Sprintf("variable '%s' already declared in this scope", new.Name),
			}
		}
	}

	target.Push(new)
	return nil
}

func (st *ScopeTable) scopeFor(kind VarType) *utils.Stack[Variable] {
	switch kind {
	case Local:
		return &st.local.entries
	case Field:
		return &st.field.entries
	case Parameter:
		return &st.parameter.entries
	case Static:
		return &st.static
	default:
		return nil
	}
}

// Resolves 'name' against subroutine scope first, then class scope, matching the
// shadowing rule that a subroutine-local declaration hides a same-named field/static.
func (st *ScopeTable) ResolveVariable(name string) (uint16, Variable, error) {
	scopes := []utils.Stack[Variable]{st.local.entries, st.parameter.entries, st.field.entries, st.static}

	for _, scope := range scopes {
		for idx, entry := range scope.Entries() {
			if entry.Name == name {
				return uint16(idx), entry, nil
			}
		}
	}

	return 0, Variable{}, &CompileError{
		ClassName: strings.Split(st.GetScope(), ".")[0],
		Token:     Token{Type: Identifier, Value: name},
		Reason:    fmt.Sprintf("variable '%s' undeclared, not found in any scope", name),
	}
}
