package expr

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode/utf8"
)

// Scope holds the variables visible to an expression
type Scope map[string]any

// Program is a compiled expression. It is immutable and safe for concurrent use.
type Program struct {
	source string
	root   Node
}

// Compile parses source into a Program
func Compile(source string) (*Program, error) {
	if strings.TrimSpace(source) == "" {
		return nil, &CompileError{Source: source, Errors: []*SyntaxError{{Message: "empty expression"}}}
	}

	tokens, lexErrs := NewLexer(source).ScanTokens()
	if len(lexErrs) > 0 {
		return nil, &CompileError{Source: source, Errors: lexErrs}
	}

	root, parseErrs := NewParser(tokens).Parse()
	if len(parseErrs) > 0 {
		return nil, &CompileError{Source: source, Errors: parseErrs}
	}
	if root == nil {
		return nil, &CompileError{Source: source, Errors: []*SyntaxError{{Message: "no expression"}}}
	}

	return &Program{source: source, root: root}, nil
}

// MustCompile is like Compile but panics on error
func MustCompile(source string) *Program {
	p, err := Compile(source)
	if err != nil {
		panic(err)
	}
	return p
}

// Source returns the expression text
func (p *Program) Source() string {
	return p.source
}

// Functions returns the sorted, de-duplicated names of every function the
// expression calls.
func (p *Program) Functions() []string {
	seen := make(map[string]bool)
	walk(p.root, func(n Node) {
		if call, ok := n.(*CallExpr); ok {
			seen[call.Function] = true
		}
	})
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckFunctions verifies that every called function is in the allow-list
func (p *Program) CheckFunctions(funcs Funcs) error {
	for _, name := range p.Functions() {
		if _, ok := funcs[name]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownFunction, name)
		}
	}
	return nil
}

// Eval evaluates the program against scope. Scope values are normalized first.
func (p *Program) Eval(scope Scope, funcs Funcs) (any, error) {
	vars := make(map[string]any, len(scope))
	for name, v := range scope {
		n, err := Normalize(v)
		if err != nil {
			return nil, &EvalError{Message: "invalid scope value " + name, Err: err}
		}
		vars[name] = n
	}

	ev := &evaluator{vars: vars, funcs: funcs}
	return ev.eval(p.root)
}

type evaluator struct {
	vars  map[string]any
	funcs Funcs
}

//nolint:gocyclo,cyclop // dispatch on node type
func (e *evaluator) eval(node Node) (any, error) {
	switch n := node.(type) {
	case *LiteralExpr:
		return n.Value, nil
	case *IdentifierExpr:
		v, ok := e.vars[n.Name]
		if !ok {
			return nil, &EvalError{Message: "unknown identifier " + n.Name, Pos: n.Pos}
		}
		return v, nil
	case *MemberExpr, *IndexExpr:
		v, _, err := e.evalChain(n)
		return v, err
	case *CallExpr:
		return e.evalCall(n)
	case *UnaryExpr:
		return e.evalUnary(n)
	case *BinaryExpr:
		return e.evalBinary(n)
	case *LogicalExpr:
		return e.evalLogical(n)
	case *ConditionalExpr:
		test, err := e.eval(n.Test)
		if err != nil {
			return nil, err
		}
		if Truthy(test) {
			return e.eval(n.Then)
		}
		return e.eval(n.Else)
	case *TemplateExpr:
		var sb strings.Builder
		for _, part := range n.Parts {
			v, err := e.eval(part)
			if err != nil {
				return nil, err
			}
			sb.WriteString(Stringify(v))
		}
		return sb.String(), nil
	case *ObjectExpr:
		return e.evalObject(n)
	case *ArrayExpr:
		out := make([]any, len(n.Elements))
		for i, elem := range n.Elements {
			v, err := e.eval(elem)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	default:
		return nil, &EvalError{Message: fmt.Sprintf("unsupported node %T", node)}
	}
}

// evalChain evaluates a member/index chain. A nil object under ?. short
// circuits the rest of the chain to null.
func (e *evaluator) evalChain(node Node) (any, bool, error) {
	switch n := node.(type) {
	case *MemberExpr:
		obj, short, err := e.evalChain(n.Object)
		if err != nil || short {
			return nil, short, err
		}
		if obj == nil {
			if n.Optional {
				return nil, true, nil
			}
			return nil, false, &EvalError{Message: "cannot read property " + n.Property + " of null", Pos: n.Pos}
		}
		v, err := property(obj, n.Property, n.Pos)
		return v, false, err
	case *IndexExpr:
		obj, short, err := e.evalChain(n.Object)
		if err != nil || short {
			return nil, short, err
		}
		if obj == nil {
			if n.Optional {
				return nil, true, nil
			}
			return nil, false, &EvalError{Message: "cannot index null", Pos: n.Pos}
		}
		v, err := e.index(n, obj)
		return v, false, err
	default:
		v, err := e.eval(node)
		return v, false, err
	}
}

func (e *evaluator) index(n *IndexExpr, obj any) (any, error) {
	idx, err := e.eval(n.Index)
	if err != nil {
		return nil, err
	}

	switch o := obj.(type) {
	case []any:
		f, ok := idx.(float64)
		if !ok {
			if s, isStr := idx.(string); isStr {
				return property(obj, s, n.Pos)
			}
			return nil, &EvalError{Message: "array index must be a number", Pos: n.Pos}
		}
		i := int(f)
		if float64(i) != f || i < 0 || i >= len(o) {
			return nil, nil
		}
		return o[i], nil
	default:
		return property(obj, Stringify(idx), n.Pos)
	}
}

// property reads a named property. Missing object keys read as null.
func property(obj any, name string, pos int) (any, error) {
	switch o := obj.(type) {
	case map[string]any:
		return o[name], nil
	case []any:
		if name == "length" {
			return float64(len(o)), nil
		}
		return nil, nil
	case string:
		if name == "length" {
			return float64(utf8.RuneCountInString(o)), nil
		}
		return nil, nil
	default:
		return nil, &EvalError{Message: fmt.Sprintf("cannot read property %s of %s", name, typeName(obj)), Pos: pos}
	}
}

func (e *evaluator) evalCall(n *CallExpr) (any, error) {
	fn, ok := e.funcs[n.Function]
	if !ok {
		return nil, &EvalError{Message: n.Function, Pos: n.Pos, Err: ErrUnknownFunction}
	}

	args := make([]any, len(n.Arguments))
	for i, arg := range n.Arguments {
		v, err := e.eval(arg)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}

	out, err := fn(args...)
	if err != nil {
		return nil, &EvalError{Message: "call " + n.Function, Pos: n.Pos, Err: err}
	}
	return Normalize(out)
}

func (e *evaluator) evalUnary(n *UnaryExpr) (any, error) {
	v, err := e.eval(n.Operand)
	if err != nil {
		return nil, err
	}
	if n.Operator == "!" {
		return !Truthy(v), nil
	}
	f, ok := v.(float64)
	if !ok {
		return nil, &EvalError{Message: "unary - expects a number, got " + typeName(v), Pos: n.Pos}
	}
	return -f, nil
}

func (e *evaluator) evalLogical(n *LogicalExpr) (any, error) {
	left, err := e.eval(n.Left)
	if err != nil {
		return nil, err
	}

	switch n.Operator {
	case "??":
		if left != nil {
			return left, nil
		}
	case "||":
		if Truthy(left) {
			return left, nil
		}
	default:
		if !Truthy(left) {
			return left, nil
		}
	}
	return e.eval(n.Right)
}

//nolint:gocyclo,cyclop // dispatch on operator
func (e *evaluator) evalBinary(n *BinaryExpr) (any, error) {
	left, err := e.eval(n.Left)
	if err != nil {
		return nil, err
	}
	right, err := e.eval(n.Right)
	if err != nil {
		return nil, err
	}

	switch n.Operator {
	case "==":
		return equal(left, right), nil
	case "!=":
		return !equal(left, right), nil
	case "+":
		_, ls := left.(string)
		_, rs := right.(string)
		if ls || rs {
			return Stringify(left) + Stringify(right), nil
		}
	case "<", "<=", ">", ">=":
		return compare(n, left, right)
	}

	lf, lok := left.(float64)
	rf, rok := right.(float64)
	if !lok || !rok {
		return nil, &EvalError{
			Message: fmt.Sprintf("operator %s expects numbers, got %s and %s", n.Operator, typeName(left), typeName(right)),
			Pos:     n.Pos,
		}
	}

	switch n.Operator {
	case "+":
		return lf + rf, nil
	case "-":
		return lf - rf, nil
	case "*":
		return lf * rf, nil
	case "/":
		return lf / rf, nil
	case "%":
		return math.Mod(lf, rf), nil
	default:
		return nil, &EvalError{Message: "unknown operator " + n.Operator, Pos: n.Pos}
	}
}

func compare(n *BinaryExpr, left, right any) (any, error) {
	var cmp int
	switch l := left.(type) {
	case float64:
		r, ok := right.(float64)
		if !ok {
			return nil, &EvalError{Message: "cannot compare number with " + typeName(right), Pos: n.Pos}
		}
		switch {
		case l < r:
			cmp = -1
		case l > r:
			cmp = 1
		}
	case string:
		r, ok := right.(string)
		if !ok {
			return nil, &EvalError{Message: "cannot compare string with " + typeName(right), Pos: n.Pos}
		}
		cmp = strings.Compare(l, r)
	default:
		return nil, &EvalError{Message: "cannot compare " + typeName(left), Pos: n.Pos}
	}

	switch n.Operator {
	case "<":
		return cmp < 0, nil
	case "<=":
		return cmp <= 0, nil
	case ">":
		return cmp > 0, nil
	default:
		return cmp >= 0, nil
	}
}

func (e *evaluator) evalObject(n *ObjectExpr) (any, error) {
	out := make(map[string]any, len(n.Entries))
	for _, entry := range n.Entries {
		v, err := e.eval(entry.Value)
		if err != nil {
			return nil, err
		}
		if !entry.Spread {
			out[entry.Key] = v
			continue
		}
		switch src := v.(type) {
		case nil:
		case map[string]any:
			for k, item := range src {
				out[k] = item
			}
		default:
			return nil, &EvalError{Message: "cannot spread " + typeName(v), Pos: n.Pos}
		}
	}
	return out, nil
}

// walk visits every node in the tree in depth-first order
func walk(node Node, visit func(Node)) {
	if node == nil {
		return
	}
	visit(node)

	switch n := node.(type) {
	case *MemberExpr:
		walk(n.Object, visit)
	case *IndexExpr:
		walk(n.Object, visit)
		walk(n.Index, visit)
	case *CallExpr:
		for _, arg := range n.Arguments {
			walk(arg, visit)
		}
	case *UnaryExpr:
		walk(n.Operand, visit)
	case *BinaryExpr:
		walk(n.Left, visit)
		walk(n.Right, visit)
	case *LogicalExpr:
		walk(n.Left, visit)
		walk(n.Right, visit)
	case *ConditionalExpr:
		walk(n.Test, visit)
		walk(n.Then, visit)
		walk(n.Else, visit)
	case *TemplateExpr:
		for _, part := range n.Parts {
			walk(part, visit)
		}
	case *ObjectExpr:
		for _, entry := range n.Entries {
			walk(entry.Value, visit)
		}
	case *ArrayExpr:
		for _, elem := range n.Elements {
			walk(elem, visit)
		}
	}
}
