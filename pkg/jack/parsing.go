package jack

import (
	"fmt"
	"io"

	"github.com/pkg/errors"

	"github.com/n2t-toolchain/hackc/pkg/utils"
)

// ----------------------------------------------------------------------------
// Errors

// ParseError is returned when the token stream doesn't match the expected grammar
// shape at the current position (a syntactic failure, independent of any class).
type ParseError struct {
	Expected []string
	Got      Token
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("expected one of %v, got '%s' (%s)", e.Expected, e.Got.Value, e.Got.Type)
}

// CompileError wraps a semantic failure tied to a specific class: a duplicate
// declaration, an undeclared variable reference, or a class/filename mismatch.
type CompileError struct {
	ClassName string
	Token     Token
	Reason    string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("class '%s': %s (near '%s')", e.ClassName, e.Reason, e.Token.Value)
}

// ----------------------------------------------------------------------------
// Jack Parser

// Single-pass recursive-descent parser over a 'Token' sequence. Tokens are consumed
// destructively from the front; 'peek' only looks ahead, 'expect' consumes and fails
// with a 'ParseError' if the current token isn't a member of the expected set.
type Parser struct {
	reader io.Reader
	tokens []Token
	pos    int
}

// Initializes and returns to the caller a brand new 'Parser' struct.
// Requires the argument io.Reader 'r' to be valid and usable.
func NewParser(r io.Reader) Parser {
	return Parser{reader: r}
}

// Parser entrypoint divides the 2 phases of the parsing pipeline
// Text --> Tokens: Done by the 'pkg/jack' tokenizer
// Tokens --> AST:  Recursive-descent parsing into a 'jack.Class'
func (p *Parser) Parse() (Class, error) {
	tokens, err := Tokenize(p.reader)
	if err != nil {
		return Class{}, errors.Wrap(err, "cannot tokenize input content")
	}

	p.tokens = tokens
	return p.ParseClass()
}

func (p *Parser) peek() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: "", Value: ""}
	}
	return p.tokens[p.pos]
}

func (p *Parser) advance() Token {
	tok := p.peek()
	p.pos++
	return tok
}

func (p *Parser) expectKeyword(keywords ...string) (Token, error) {
	tok := p.peek()
	if tok.Type != Keyword {
		return Token{}, &ParseError{Expected: keywords, Got: tok}
	}
	for _, kw := range keywords {
		if tok.Value == kw {
			return p.advance(), nil
		}
	}
	return Token{}, &ParseError{Expected: keywords, Got: tok}
}

func (p *Parser) expectSymbol(symbols ...string) (Token, error) {
	tok := p.peek()
	if tok.Type != Symbol {
		return Token{}, &ParseError{Expected: symbols, Got: tok}
	}
	for _, sym := range symbols {
		if tok.Value == sym {
			return p.advance(), nil
		}
	}
	return Token{}, &ParseError{Expected: symbols, Got: tok}
}

func (p *Parser) expectIdentifier() (Token, error) {
	tok := p.peek()
	if tok.Type != Identifier {
		return Token{}, &ParseError{Expected: []string{"identifier"}, Got: tok}
	}
	return p.advance(), nil
}

func (p *Parser) isKeyword(values ...string) bool {
	tok := p.peek()
	if tok.Type != Keyword {
		return false
	}
	for _, v := range values {
		if tok.Value == v {
			return true
		}
	}
	return false
}

func (p *Parser) isSymbol(values ...string) bool {
	tok := p.peek()
	if tok.Type != Symbol {
		return false
	}
	for _, v := range values {
		if tok.Value == v {
			return true
		}
	}
	return false
}

// ----------------------------------------------------------------------------
// Class-level grammar: 'class' NAME '{' classVarDec* subroutineDec* '}'

func (p *Parser) ParseClass() (Class, error) {
	if _, err := p.expectKeyword("class"); err != nil {
		return Class{}, errors.Wrap(err, "error parsing class declaration")
	}

	nameTok, err := p.expectIdentifier()
	if err != nil {
		return Class{}, errors.Wrap(err, "error parsing class name")
	}

	class := Class{Name: nameTok.Value}

	if _, err := p.expectSymbol("{"); err != nil {
		return Class{}, errors.Wrap(err, "error parsing class body opening brace")
	}

	for p.isKeyword("static", "field") {
		vars, err := p.ParseClassVarDec()
		if err != nil {
			return Class{}, errors.Wrapf(err, "error parsing field/static declaration in class '%s'", class.Name)
		}
		for _, v := range vars {
			if class.Fields.Has(v.Name) {
				return Class{}, &CompileError{ClassName: class.Name, Token: nameTok, Reason: fmt.Sprintf("field '%s' already declared", v.Name)}
			}
			class.Fields.Set(v.Name, v)
		}
	}

	for p.isKeyword("constructor", "function", "method") {
		subroutine, err := p.ParseSubroutineDec(class)
		if err != nil {
			return Class{}, errors.Wrapf(err, "error parsing subroutine in class '%s'", class.Name)
		}
		if class.Subroutines.Has(subroutine.Name) {
			return Class{}, &CompileError{ClassName: class.Name, Token: nameTok, Reason: fmt.Sprintf("subroutine '%s' already declared", subroutine.Name)}
		}
		class.Subroutines.Set(subroutine.Name, subroutine)
	}

	if _, err := p.expectSymbol("}"); err != nil {
		return Class{}, errors.Wrapf(err, "error parsing closing brace of class '%s'", class.Name)
	}

	return class, nil
}

// classVarDec: ('static'|'field') type name (',' name)* ';'
func (p *Parser) ParseClassVarDec() ([]Variable, error) {
	kindTok, err := p.expectKeyword("static", "field")
	if err != nil {
		return nil, err
	}
	kind := Static
	if kindTok.Value == "field" {
		kind = Field
	}

	dataType, className, err := p.parseType()
	if err != nil {
		return nil, errors.Wrap(err, "error parsing variable type")
	}

	vars := []Variable{}
	for {
		nameTok, err := p.expectIdentifier()
		if err != nil {
			return nil, errors.Wrap(err, "error parsing variable name")
		}
		vars = append(vars, Variable{Name: nameTok.Value, Type: kind, DataType: dataType, ClassName: className})

		if !p.isSymbol(",") {
			break
		}
		p.advance()
	}

	if _, err := p.expectSymbol(";"); err != nil {
		return nil, errors.Wrap(err, "error parsing trailing semicolon")
	}

	return vars, nil
}

// parseType parses a builtin type keyword or a class-name identifier, returning the
// matching 'DataType' (and the referenced class name when DataType == Object).
func (p *Parser) parseType() (DataType, string, error) {
	tok := p.peek()

	switch {
	case tok.Type == Keyword && tok.Value == "int":
		p.advance()
		return Int, "", nil
	case tok.Type == Keyword && tok.Value == "char":
		p.advance()
		return Char, "", nil
	case tok.Type == Keyword && tok.Value == "boolean":
		p.advance()
		return Bool, "", nil
	case tok.Type == Keyword && tok.Value == "void":
		p.advance()
		return Void, "", nil
	case tok.Type == Identifier:
		p.advance()
		return Object, tok.Value, nil
	default:
		return "", "", &ParseError{Expected: []string{"int", "char", "boolean", "void", "<class name>"}, Got: tok}
	}
}

// ----------------------------------------------------------------------------
// Subroutine-level grammar

// subroutineDec: ('constructor'|'function'|'method') type name '(' paramList ')' subroutineBody
func (p *Parser) ParseSubroutineDec(class Class) (Subroutine, error) {
	kindTok, err := p.expectKeyword("constructor", "function", "method")
	if err != nil {
		return Subroutine{}, err
	}

	kind := map[string]SubroutineType{"constructor": Constructor, "function": Function, "method": Method}[kindTok.Value]

	returnType, _, err := p.parseType()
	if err != nil {
		return Subroutine{}, errors.Wrap(err, "error parsing return type")
	}

	nameTok, err := p.expectIdentifier()
	if err != nil {
		return Subroutine{}, errors.Wrap(err, "error parsing subroutine name")
	}

	if _, err := p.expectSymbol("("); err != nil {
		return Subroutine{}, errors.Wrap(err, "error parsing opening parenthesis")
	}

	args, err := p.parseParamList()
	if err != nil {
		return Subroutine{}, errors.Wrap(err, "error parsing parameter list")
	}

	if _, err := p.expectSymbol(")"); err != nil {
		return Subroutine{}, errors.Wrap(err, "error parsing closing parenthesis")
	}

	statements, err := p.parseSubroutineBody()
	if err != nil {
		return Subroutine{}, errors.Wrapf(err, "error parsing body of subroutine '%s'", nameTok.Value)
	}

	return Subroutine{Name: nameTok.Value, Type: kind, Return: returnType, Arguments: args, Statements: statements}, nil
}

// paramList: ((type name) (',' type name)*)?
func (p *Parser) parseParamList() (utils.OrderedMap[string, Variable], error) {
	args := utils.OrderedMap[string, Variable]{}

	if p.isSymbol(")") { // Empty parameter list
		return args, nil
	}

	for {
		dataType, className, err := p.parseType()
		if err != nil {
			return args, errors.Wrap(err, "error parsing parameter type")
		}

		nameTok, err := p.expectIdentifier()
		if err != nil {
			return args, errors.Wrap(err, "error parsing parameter name")
		}

		args.Set(nameTok.Value, Variable{Name: nameTok.Value, Type: Parameter, DataType: dataType, ClassName: className})

		if !p.isSymbol(",") {
			break
		}
		p.advance()
	}

	return args, nil
}

// subroutineBody: '{' varDec* statement* '}'
func (p *Parser) parseSubroutineBody() ([]Statement, error) {
	if _, err := p.expectSymbol("{"); err != nil {
		return nil, errors.Wrap(err, "error parsing opening brace")
	}

	statements := []Statement{}

	for p.isKeyword("var") {
		stmt, err := p.parseVarDec()
		if err != nil {
			return nil, errors.Wrap(err, "error parsing local variable declaration")
		}
		statements = append(statements, stmt)
	}

	for p.isKeyword("let", "if", "while", "do", "return") {
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, errors.Wrap(err, "error parsing statement")
		}
		statements = append(statements, stmt)
	}

	if _, err := p.expectSymbol("}"); err != nil {
		return nil, errors.Wrap(err, "error parsing closing brace")
	}

	return statements, nil
}

// varDec: 'var' type name (',' name)* ';'
func (p *Parser) parseVarDec() (Statement, error) {
	if _, err := p.expectKeyword("var"); err != nil {
		return nil, err
	}

	dataType, className, err := p.parseType()
	if err != nil {
		return nil, errors.Wrap(err, "error parsing variable type")
	}

	vars := []Variable{}
	for {
		nameTok, err := p.expectIdentifier()
		if err != nil {
			return nil, errors.Wrap(err, "error parsing variable name")
		}
		vars = append(vars, Variable{Name: nameTok.Value, Type: Local, DataType: dataType, ClassName: className})

		if !p.isSymbol(",") {
			break
		}
		p.advance()
	}

	if _, err := p.expectSymbol(";"); err != nil {
		return nil, errors.Wrap(err, "error parsing trailing semicolon")
	}

	return VarStmt{Vars: vars}, nil
}

// ----------------------------------------------------------------------------
// Statements

func (p *Parser) parseStatement() (Statement, error) {
	switch {
	case p.isKeyword("let"):
		return p.parseLetStmt()
	case p.isKeyword("if"):
		return p.parseIfStmt()
	case p.isKeyword("while"):
		return p.parseWhileStmt()
	case p.isKeyword("do"):
		return p.parseDoStmt()
	case p.isKeyword("return"):
		return p.parseReturnStmt()
	default:
		return nil, &ParseError{Expected: []string{"let", "if", "while", "do", "return"}, Got: p.peek()}
	}
}

// let: 'let' name ('[' expr ']')? '=' expr ';'
func (p *Parser) parseLetStmt() (Statement, error) {
	p.advance() // 'let'

	nameTok, err := p.expectIdentifier()
	if err != nil {
		return nil, errors.Wrap(err, "error parsing assignment target")
	}

	var lhs Expression = VarExpr{Var: nameTok.Value}

	if p.isSymbol("[") {
		p.advance()
		index, err := p.parseExpression()
		if err != nil {
			return nil, errors.Wrap(err, "error parsing array index expression")
		}
		if _, err := p.expectSymbol("]"); err != nil {
			return nil, errors.Wrap(err, "error parsing closing bracket")
		}
		lhs = ArrayExpr{Var: nameTok.Value, Index: index}
	}

	if _, err := p.expectSymbol("="); err != nil {
		return nil, errors.Wrap(err, "error parsing assignment operator")
	}

	rhs, err := p.parseExpression()
	if err != nil {
		return nil, errors.Wrap(err, "error parsing assignment RHS expression")
	}

	if _, err := p.expectSymbol(";"); err != nil {
		return nil, errors.Wrap(err, "error parsing trailing semicolon")
	}

	return LetStmt{Lhs: lhs, Rhs: rhs}, nil
}

// if: 'if' '(' expr ')' '{' stmts '}' ('else' '{' stmts '}')?
func (p *Parser) parseIfStmt() (Statement, error) {
	p.advance() // 'if'

	if _, err := p.expectSymbol("("); err != nil {
		return nil, errors.Wrap(err, "error parsing opening parenthesis")
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, errors.Wrap(err, "error parsing condition expression")
	}
	if _, err := p.expectSymbol(")"); err != nil {
		return nil, errors.Wrap(err, "error parsing closing parenthesis")
	}

	thenBlock, err := p.parseBlock()
	if err != nil {
		return nil, errors.Wrap(err, "error parsing 'then' block")
	}

	var elseBlock []Statement
	if p.isKeyword("else") {
		p.advance()
		elseBlock, err = p.parseBlock()
		if err != nil {
			return nil, errors.Wrap(err, "error parsing 'else' block")
		}
	}

	return IfStmt{Condition: cond, ThenBlock: thenBlock, ElseBlock: elseBlock}, nil
}

// while: 'while' '(' expr ')' '{' stmts '}'
func (p *Parser) parseWhileStmt() (Statement, error) {
	p.advance() // 'while'

	if _, err := p.expectSymbol("("); err != nil {
		return nil, errors.Wrap(err, "error parsing opening parenthesis")
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, errors.Wrap(err, "error parsing condition expression")
	}
	if _, err := p.expectSymbol(")"); err != nil {
		return nil, errors.Wrap(err, "error parsing closing parenthesis")
	}

	block, err := p.parseBlock()
	if err != nil {
		return nil, errors.Wrap(err, "error parsing loop block")
	}

	return WhileStmt{Condition: cond, Block: block}, nil
}

func (p *Parser) parseBlock() ([]Statement, error) {
	if _, err := p.expectSymbol("{"); err != nil {
		return nil, errors.Wrap(err, "error parsing opening brace")
	}

	statements := []Statement{}
	for p.isKeyword("let", "if", "while", "do", "return") {
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		statements = append(statements, stmt)
	}

	if _, err := p.expectSymbol("}"); err != nil {
		return nil, errors.Wrap(err, "error parsing closing brace")
	}

	return statements, nil
}

// do: 'do' subroutineCall ';'
func (p *Parser) parseDoStmt() (Statement, error) {
	p.advance() // 'do'

	call, err := p.parseSubroutineCall()
	if err != nil {
		return nil, errors.Wrap(err, "error parsing subroutine call")
	}

	if _, err := p.expectSymbol(";"); err != nil {
		return nil, errors.Wrap(err, "error parsing trailing semicolon")
	}

	return DoStmt{FuncCall: call}, nil
}

// return: 'return' expr? ';'
func (p *Parser) parseReturnStmt() (Statement, error) {
	p.advance() // 'return'

	var expr Expression
	if !p.isSymbol(";") {
		var err error
		expr, err = p.parseExpression()
		if err != nil {
			return nil, errors.Wrap(err, "error parsing return expression")
		}
	}

	if _, err := p.expectSymbol(";"); err != nil {
		return nil, errors.Wrap(err, "error parsing trailing semicolon")
	}

	return ReturnStmt{Expr: expr}, nil
}

// ----------------------------------------------------------------------------
// Expressions

var binaryOps = map[string]ExprType{
	"+": Plus, "-": Minus, "*": Multiply, "/": Divide,
	"&": BoolAnd, "|": BoolOr, "<": LessThan, ">": GreatThan, "=": Equal,
}

// expression: term (op term)*, left-associative, flat (no precedence levels)
func (p *Parser) parseExpression() (Expression, error) {
	lhs, err := p.parseTerm()
	if err != nil {
		return nil, err
	}

	for p.isSymbol("+", "-", "*", "/", "&", "|", "<", ">", "=") {
		opTok := p.advance()
		rhs, err := p.parseTerm()
		if err != nil {
			return nil, errors.Wrapf(err, "error parsing RHS of binary operator '%s'", opTok.Value)
		}
		lhs = BinaryExpr{Type: binaryOps[opTok.Value], Lhs: lhs, Rhs: rhs}
	}

	return lhs, nil
}

// term dispatches on the lookahead token to one of the forms in the Terms table:
// literals, 'this', a bare/qualified subroutine call, a variable (plain or indexed),
// a parenthesized sub-expression, or a unary '-'/'~' application.
func (p *Parser) parseTerm() (Expression, error) {
	tok := p.peek()

	switch {
	case tok.Type == IntConst:
		p.advance()
		return LiteralExpr{Type: Int, Value: tok.Value}, nil

	case tok.Type == StringConst:
		p.advance()
		return LiteralExpr{Type: String, Value: tok.Value}, nil

	case tok.Type == Keyword && (tok.Value == "true" || tok.Value == "false"):
		p.advance()
		return LiteralExpr{Type: Bool, Value: tok.Value}, nil

	case tok.Type == Keyword && tok.Value == "null":
		p.advance()
		return LiteralExpr{Type: Null, Value: "null"}, nil

	case tok.Type == Keyword && tok.Value == "this":
		p.advance()
		return VarExpr{Var: "this"}, nil

	case tok.Type == Symbol && tok.Value == "(":
		p.advance()
		inner, err := p.parseExpression()
		if err != nil {
			return nil, errors.Wrap(err, "error parsing parenthesized expression")
		}
		if _, err := p.expectSymbol(")"); err != nil {
			return nil, errors.Wrap(err, "error parsing closing parenthesis")
		}
		return inner, nil

	case tok.Type == Symbol && tok.Value == "-":
		p.advance()
		rhs, err := p.parseTerm()
		if err != nil {
			return nil, errors.Wrap(err, "error parsing operand of unary '-'")
		}
		return UnaryExpr{Type: Minus, Rhs: rhs}, nil

	case tok.Type == Symbol && tok.Value == "~":
		p.advance()
		rhs, err := p.parseTerm()
		if err != nil {
			return nil, errors.Wrap(err, "error parsing operand of unary '~'")
		}
		return UnaryExpr{Type: BoolNot, Rhs: rhs}, nil

	case tok.Type == Identifier:
		return p.parseIdentifierTerm()

	default:
		return nil, &ParseError{Expected: []string{"term"}, Got: tok}
	}
}

// parseIdentifierTerm disambiguates the 4 term shapes that start with an
// identifier: a bare variable, an array access, a bare call, or a qualified call.
func (p *Parser) parseIdentifierTerm() (Expression, error) {
	nameTok := p.advance()

	switch {
	case p.isSymbol("["):
		p.advance()
		index, err := p.parseExpression()
		if err != nil {
			return nil, errors.Wrap(err, "error parsing array index expression")
		}
		if _, err := p.expectSymbol("]"); err != nil {
			return nil, errors.Wrap(err, "error parsing closing bracket")
		}
		return ArrayExpr{Var: nameTok.Value, Index: index}, nil

	case p.isSymbol("("):
		return p.parseCallArgs(FuncCallExpr{FuncName: nameTok.Value, IsExtCall: false})

	case p.isSymbol("."):
		p.advance()
		methodTok, err := p.expectIdentifier()
		if err != nil {
			return nil, errors.Wrap(err, "error parsing qualified call's method name")
		}
		return p.parseCallArgs(FuncCallExpr{Var: nameTok.Value, FuncName: methodTok.Value, IsExtCall: true})

	default:
		return VarExpr{Var: nameTok.Value}, nil
	}
}

// subroutineCall, reached either directly ('do' statements) or via parseIdentifierTerm.
func (p *Parser) parseSubroutineCall() (FuncCallExpr, error) {
	nameTok, err := p.expectIdentifier()
	if err != nil {
		return FuncCallExpr{}, errors.Wrap(err, "error parsing subroutine/receiver name")
	}

	if p.isSymbol(".") {
		p.advance()
		methodTok, err := p.expectIdentifier()
		if err != nil {
			return FuncCallExpr{}, errors.Wrap(err, "error parsing qualified call's method name")
		}
		expr, err := p.parseCallArgs(FuncCallExpr{Var: nameTok.Value, FuncName: methodTok.Value, IsExtCall: true})
		if err != nil {
			return FuncCallExpr{}, err
		}
		return expr.(FuncCallExpr), nil
	}

	expr, err := p.parseCallArgs(FuncCallExpr{FuncName: nameTok.Value, IsExtCall: false})
	if err != nil {
		return FuncCallExpr{}, err
	}
	return expr.(FuncCallExpr), nil
}

// parseCallArgs parses '(' exprList ')' and fills 'call.Arguments'.
func (p *Parser) parseCallArgs(call FuncCallExpr) (Expression, error) {
	if _, err := p.expectSymbol("("); err != nil {
		return nil, errors.Wrap(err, "error parsing opening parenthesis")
	}

	args, err := p.parseExpressionList()
	if err != nil {
		return nil, errors.Wrap(err, "error parsing argument list")
	}
	call.Arguments = args

	if _, err := p.expectSymbol(")"); err != nil {
		return nil, errors.Wrap(err, "error parsing closing parenthesis")
	}

	return call, nil
}

// expressionList: (expr (',' expr)*)?
func (p *Parser) parseExpressionList() ([]Expression, error) {
	if p.isSymbol(")") {
		return nil, nil
	}

	exprs := []Expression{}
	for {
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, expr)

		if !p.isSymbol(",") {
			break
		}
		p.advance()
	}

	return exprs, nil
}
