package expr

// Node is an expression node
type Node interface {
	Position() int
}

// LiteralExpr represents a literal value (string, number, bool, null)
type LiteralExpr struct {
	Value interface{}
	Pos   int
}

// IdentifierExpr references a scope variable
type IdentifierExpr struct {
	Name string
	Pos  int
}

// MemberExpr represents a.b and a?.b
type MemberExpr struct {
	Object   Node
	Property string
	Optional bool
	Pos      int
}

// IndexExpr represents a[b] and a?.[b]
type IndexExpr struct {
	Object   Node
	Index    Node
	Optional bool
	Pos      int
}

// CallExpr represents a call to an allow-listed function
type CallExpr struct {
	Function  string
	Arguments []Node
	Pos       int
}

// UnaryExpr represents !x and -x
type UnaryExpr struct {
	Operator string
	Operand  Node
	Pos      int
}

// BinaryExpr represents arithmetic, comparison and equality operators
type BinaryExpr struct {
	Left     Node
	Operator string
	Right    Node
	Pos      int
}

// LogicalExpr represents &&, || and ??; the right side is evaluated lazily
type LogicalExpr struct {
	Left     Node
	Operator string
	Right    Node
	Pos      int
}

// ConditionalExpr represents test ? then : else
type ConditionalExpr struct {
	Test Node
	Then Node
	Else Node
	Pos  int
}

// TemplateExpr represents a template literal; parts are concatenated
type TemplateExpr struct {
	Parts []Node
	Pos   int
}

// ObjectEntry is one entry of an object literal. Spread entries merge the
// properties of Value into the object.
type ObjectEntry struct {
	Key    string
	Value  Node
	Spread bool
}

// ObjectExpr represents { a: x, ...y }
type ObjectExpr struct {
	Entries []ObjectEntry
	Pos     int
}

// ArrayExpr represents [a, b]
type ArrayExpr struct {
	Elements []Node
	Pos      int
}

func (e *LiteralExpr) Position() int     { return e.Pos }
func (e *IdentifierExpr) Position() int  { return e.Pos }
func (e *MemberExpr) Position() int      { return e.Pos }
func (e *IndexExpr) Position() int       { return e.Pos }
func (e *CallExpr) Position() int        { return e.Pos }
func (e *UnaryExpr) Position() int       { return e.Pos }
func (e *BinaryExpr) Position() int      { return e.Pos }
func (e *LogicalExpr) Position() int     { return e.Pos }
func (e *ConditionalExpr) Position() int { return e.Pos }
func (e *TemplateExpr) Position() int    { return e.Pos }
func (e *ObjectExpr) Position() int      { return e.Pos }
func (e *ArrayExpr) Position() int       { return e.Pos }
