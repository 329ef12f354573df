// Package ast defines the typed syntax tree produced by internal/parser.
// Each closed tagged set from the spec (Statement, Expression, Pattern, ...)
// is represented the idiomatic Go way: a marker interface implemented by one
// struct per variant, every struct carrying a Span.
package ast

import "github.com/qsjs/quicksilver/internal/diag"

// Node is implemented by every AST type so generic tree walkers (e.g. the
// HMR dependency scanner) can fetch a span without a type switch.
type Node interface {
	Span() diag.Span
	node()
}

type Base struct {
	SpanVal diag.Span
}

func (b Base) Span() diag.Span { return b.SpanVal }

// NewStmtBase, NewExprBase, NewPatBase, and NewClassMemberBase build the
// embeddable base for each marker interface from a span, so callers outside
// this package don't need to nest Base{} inside StmtBase{} etc. by hand in
// every composite literal.
func NewStmtBase(sp diag.Span) StmtBase               { return StmtBase{Base{SpanVal: sp}} }
func NewExprBase(sp diag.Span) ExprBase               { return ExprBase{Base{SpanVal: sp}} }
func NewPatBase(sp diag.Span) PatBase                 { return PatBase{Base{SpanVal: sp}} }
func NewClassMemberBase(sp diag.Span) ClassMemberBase { return ClassMemberBase{Base{SpanVal: sp}} }

// ---- Programs & statements ----------------------------------------------

type Program struct {
	Base
	Body       []Statement
	SourceType SourceType
}

type SourceType int

const (
	SourceScript SourceType = iota
	SourceModule
)

// Statement is the marker interface for every statement variant.
type Statement interface {
	Node
	stmt()
}

type StmtBase struct{ Base }

func (StmtBase) stmt() {}
func (StmtBase) node() {}

type ExpressionStatement struct {
	StmtBase
	Expr Expression
}

type BlockStatement struct {
	StmtBase
	Body []Statement
}

type VariableKind int

const (
	VarVar VariableKind = iota
	VarLet
	VarConst
)

type VariableDeclarator struct {
	Base
	ID   Pattern
	Init Expression // nil if no initializer
}

type VariableDeclaration struct {
	StmtBase
	Kind         VariableKind
	Declarations []*VariableDeclarator
}

type FunctionDeclaration struct {
	StmtBase
	ID        *Identifier // nil for default-exported anonymous functions
	Params    []Pattern
	Body      *BlockStatement
	Generator bool
	Async     bool
}

type ClassDeclaration struct {
	StmtBase
	ID         *Identifier
	SuperClass Expression // nil if no extends clause
	Body       []ClassMember
}

type ReturnStatement struct {
	StmtBase
	Argument Expression // nil for bare `return`
}

type IfStatement struct {
	StmtBase
	Test       Expression
	Consequent Statement
	Alternate  Statement // nil if no else
}

type ForStatement struct {
	StmtBase
	Init   Node // VariableDeclaration, Expression, or nil
	Test   Expression
	Update Expression
	Body   Statement
}

type ForInOfKind int

const (
	ForIn ForInOfKind = iota
	ForOf
)

type ForInOfStatement struct {
	StmtBase
	Kind  ForInOfKind
	Left  Node // VariableDeclaration or Pattern
	Right Expression
	Body  Statement
	Await bool
}

type WhileStatement struct {
	StmtBase
	Test Expression
	Body Statement
}

type DoWhileStatement struct {
	StmtBase
	Body Statement
	Test Expression
}

type BreakStatement struct {
	StmtBase
	Label *Identifier
}

type ContinueStatement struct {
	StmtBase
	Label *Identifier
}

type ThrowStatement struct {
	StmtBase
	Argument Expression
}

type CatchClause struct {
	Base
	Param Pattern // nil if catch has no binding
	Body  *BlockStatement
}

type TryStatement struct {
	StmtBase
	Block     *BlockStatement
	Handler   *CatchClause // nil if no catch
	Finalizer *BlockStatement
}

type SwitchCase struct {
	Base
	Test       Expression // nil for default
	Consequent []Statement
}

type SwitchStatement struct {
	StmtBase
	Discriminant Expression
	Cases        []*SwitchCase
}

type LabeledStatement struct {
	StmtBase
	Label Identifier
	Body  Statement
}

type DebuggerStatement struct{ StmtBase }
type EmptyStatement struct{ StmtBase }

// ---- Modules --------------------------------------------------------------

type ImportSpecifierKind int

const (
	ImportDefault ImportSpecifierKind = iota
	ImportNamed
	ImportNamespace
)

type ImportSpecifier struct {
	Base
	Kind     ImportSpecifierKind
	Imported string // source-exported name, meaningful for ImportNamed
	Local    Identifier
}

type ImportDeclaration struct {
	StmtBase
	Specifiers []ImportSpecifier
	Source     string
}

type ExportKind int

const (
	ExportNamed ExportKind = iota
	ExportDefault
	ExportAllFrom
	ExportAllAsFrom
)

type ExportSpecifier struct {
	Local    string
	Exported string
}

type ExportNamedDeclaration struct {
	StmtBase
	Declaration Statement // nil if using specifier list
	Specifiers  []ExportSpecifier
	Source      string // non-empty for `export {..} from "..."`
}

type ExportDefaultDeclaration struct {
	StmtBase
	Declaration Node // Statement or Expression
}

type ExportAllDeclaration struct {
	StmtBase
	Exported string // non-empty for `export * as name from`
	Source   string
}

// ---- Patterns ---------------------------------------------------------

// Pattern is the marker interface for binding targets: identifiers, array
// and object destructuring, defaults, and rest elements. Shared by
// var/let/const declarators, function parameters, catch clauses, and
// for-in/of left-hand sides.
type Pattern interface {
	Node
	pattern()
}

type PatBase struct{ Base }

func (PatBase) pattern() {}
func (PatBase) node()    {}

type Identifier struct {
	PatBase
	Name string
}

type ArrayPatternElement struct {
	Pattern Pattern // nil represents an elision
}

type ArrayPattern struct {
	PatBase
	Elements []ArrayPatternElement
	Rest     Pattern // nil if no rest element; must be last
}

type ObjectPatternProperty struct {
	Key      PropertyKey
	Value    Pattern
	Computed bool
	Shorthand bool
}

type ObjectPattern struct {
	PatBase
	Properties []ObjectPatternProperty
	Rest       Pattern // nil if no rest element
}

type AssignmentPattern struct {
	PatBase
	Left    Pattern
	Default Expression
}

type RestElement struct {
	PatBase
	Argument Pattern
}

// ---- Property keys ------------------------------------------------------

type PropertyKeyKind int

const (
	KeyIdentifier PropertyKeyKind = iota
	KeyString
	KeyNumber
	KeyComputed
	KeyPrivate
)

type PropertyKey struct {
	Kind PropertyKeyKind
	Name string     // for Identifier/String/Private
	Expr Expression // for Computed
}

// ---- Expressions --------------------------------------------------------

type Expression interface {
	Node
	expr()
}

type ExprBase struct{ Base }

func (ExprBase) expr() {}
func (ExprBase) node() {}

type Literal struct {
	ExprBase
	Kind  LiteralKind
	Raw   string
	Value any // decoded value: float64, string, bool, nil, *big.Int (BigInt)
}

type LiteralKind int

const (
	LitNumber LiteralKind = iota
	LitBigInt
	LitString
	LitBoolean
	LitNull
)

// IdentifierReference is an expression-position use of a name; unresolved
// at parse time, resolved by the compiler's scope walk.
type IdentifierReference struct {
	ExprBase
	Name string
}

type ThisExpression struct{ ExprBase }
type SuperExpression struct{ ExprBase }

type TemplateElement struct {
	Cooked string
	Raw    string
}

type TemplateLiteral struct {
	ExprBase
	Quasis      []TemplateElement
	Expressions []Expression
}

type TaggedTemplateExpression struct {
	ExprBase
	Tag   Expression
	Quasi *TemplateLiteral
}

type ArrayElement struct {
	Expr   Expression // nil represents elision
	Spread bool
}

type ArrayExpression struct {
	ExprBase
	Elements []ArrayElement
}

type ObjectPropertyKind int

const (
	PropInit ObjectPropertyKind = iota
	PropGet
	PropSet
	PropSpread
	PropMethod
)

type ObjectProperty struct {
	Kind      ObjectPropertyKind
	Key       PropertyKey
	Value     Expression
	Computed  bool
	Shorthand bool
}

type ObjectExpression struct {
	ExprBase
	Properties []ObjectProperty
}

type FunctionExpression struct {
	ExprBase
	ID        *Identifier
	Params    []Pattern
	Body      *BlockStatement
	Generator bool
	Async     bool
}

// ArrowFunctionExpression's Body is either a *BlockStatement or an
// Expression (concise body).
type ArrowFunctionExpression struct {
	ExprBase
	Params Params
	Body   Node
	Async  bool
}

type Params = []Pattern

type MethodKind int

const (
	MethodNormal MethodKind = iota
	MethodGet
	MethodSet
	MethodConstructor
)

type ClassMember interface {
	Node
	classMember()
}

type ClassMemberBase struct{ Base }

func (ClassMemberBase) classMember() {}
func (ClassMemberBase) node()        {}

type MethodDefinition struct {
	ClassMemberBase
	Key       PropertyKey
	Kind      MethodKind
	Static    bool
	Generator bool
	Async     bool
	Function  *FunctionExpression
}

type PropertyDefinition struct {
	ClassMemberBase
	Key    PropertyKey
	Static bool
	Value  Expression // nil if uninitialized
}

type StaticBlock struct {
	ClassMemberBase
	Body *BlockStatement
}

type ClassExpression struct {
	ExprBase
	ID         *Identifier
	SuperClass Expression
	Body       []ClassMember
}

type UnaryOperator int

const (
	UnaryMinus UnaryOperator = iota
	UnaryPlus
	UnaryBang
	UnaryTilde
	UnaryTypeof
	UnaryVoid
	UnaryDelete
)

type UnaryExpression struct {
	ExprBase
	Operator UnaryOperator
	Argument Expression
}

type UpdateOperator int

const (
	UpdateIncrement UpdateOperator = iota
	UpdateDecrement
)

type UpdateExpression struct {
	ExprBase
	Operator UpdateOperator
	Argument Expression
	Prefix   bool
}

type BinaryOperator int

const (
	BinAdd BinaryOperator = iota
	BinSub
	BinMul
	BinDiv
	BinMod
	BinExp
	BinLeftShift
	BinRightShift
	BinUnsignedRightShift
	BinLess
	BinLessEq
	BinGreater
	BinGreaterEq
	BinEqual
	BinNotEqual
	BinStrictEqual
	BinStrictNotEqual
	BinBitAnd
	BinBitXor
	BinBitOr
	BinIn
	BinInstanceof
)

type BinaryExpression struct {
	ExprBase
	Operator BinaryOperator
	Left     Expression
	Right    Expression
}

type LogicalOperator int

const (
	LogicalAnd LogicalOperator = iota
	LogicalOr
	LogicalNullish
)

type LogicalExpression struct {
	ExprBase
	Operator LogicalOperator
	Left     Expression
	Right    Expression
}

type AssignmentOperator int

const (
	AssignEquals AssignmentOperator = iota
	AssignAdd
	AssignSub
	AssignMul
	AssignDiv
	AssignMod
	AssignExp
	AssignLeftShift
	AssignRightShift
	AssignUnsignedRightShift
	AssignBitAnd
	AssignBitOr
	AssignBitXor
	AssignLogicalAnd
	AssignLogicalOr
	AssignNullish
)

// AssignmentExpression's Left is an Expression (member/identifier) when
// Operator != AssignEquals, or may be a destructuring Pattern-shaped
// expression (array/object) when Operator == AssignEquals.
type AssignmentExpression struct {
	ExprBase
	Operator AssignmentOperator
	Left     Node // Expression or Pattern
	Right    Expression
}

type ConditionalExpression struct {
	ExprBase
	Test       Expression
	Consequent Expression
	Alternate  Expression
}

type CallExpression struct {
	ExprBase
	Callee   Expression
	Args     []ArrayElement // reuses Spread-capable element shape
	Optional bool
}

type NewExpression struct {
	ExprBase
	Callee Expression
	Args   []ArrayElement
}

type MemberExpression struct {
	ExprBase
	Object   Expression
	Property Expression // Identifier-as-expression when !Computed
	Computed bool
	Optional bool
}

type SequenceExpression struct {
	ExprBase
	Expressions []Expression
}

type YieldExpression struct {
	ExprBase
	Argument Expression // nil for bare yield
	Delegate bool        // yield*
}

type AwaitExpression struct {
	ExprBase
	Argument Expression
}

type MetaProperty struct {
	ExprBase
	Meta     string // "new" or "import"
	Property string // "target" or "meta"
}
