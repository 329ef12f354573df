package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qsjs/quicksilver/internal/ast"
)

func parseExpr(t *testing.T, src string) ast.Expression {
	t.Helper()
	p, err := New(src)
	require.NoError(t, err)
	expr, err := p.parseExpression()
	require.NoError(t, err)
	return expr
}

func TestParseLiterals(t *testing.T) {
	prog, err := ParseProgram("42;")
	require.NoError(t, err)
	assert.Len(t, prog.Body, 1)

	prog, err = ParseProgram("'hello';")
	require.NoError(t, err)
	assert.Len(t, prog.Body, 1)

	prog, err = ParseProgram("true; false; null;")
	require.NoError(t, err)
	assert.Len(t, prog.Body, 3)
}

func TestParseBinaryExpression(t *testing.T) {
	expr := parseExpr(t, "1 + 2 * 3")
	bin, ok := expr.(*ast.BinaryExpression)
	require.True(t, ok, "expected binary expression")
	assert.Equal(t, ast.BinAdd, bin.Operator)
}

func TestParseBinaryPrecedenceAndAssociativity(t *testing.T) {
	// `*` binds tighter than `+`, both left-associative.
	expr := parseExpr(t, "2 + 3 * 4")
	bin := expr.(*ast.BinaryExpression)
	assert.Equal(t, ast.BinAdd, bin.Operator)
	rhs := bin.Right.(*ast.BinaryExpression)
	assert.Equal(t, ast.BinMul, rhs.Operator)

	// `**` is right-associative: 2 ** 3 ** 2 == 2 ** (3 ** 2).
	expr = parseExpr(t, "2 ** 3 ** 2")
	bin = expr.(*ast.BinaryExpression)
	assert.Equal(t, ast.BinExp, bin.Operator)
	_, leftIsBinary := bin.Left.(*ast.BinaryExpression)
	assert.False(t, leftIsBinary, "** must not be left-associative")
	rhs = bin.Right.(*ast.BinaryExpression)
	assert.Equal(t, ast.BinExp, rhs.Operator)
}

func TestParseLogicalMixingRejected(t *testing.T) {
	_, err := New("a ?? b || c")
	require.NoError(t, err)
	p, _ := New("a ?? b || c")
	_, err = p.parseExpression()
	assert.Error(t, err)

	p, _ = New("a ?? b ?? c")
	_, err = p.parseExpression()
	assert.NoError(t, err)
}

func TestParseVariableDeclaration(t *testing.T) {
	prog, err := ParseProgram("let x = 1;")
	require.NoError(t, err)
	decl, ok := prog.Body[0].(*ast.VariableDeclaration)
	require.True(t, ok)
	assert.Equal(t, ast.VarLet, decl.Kind)
	assert.Len(t, decl.Declarations, 1)
}

func TestParseConstRequiresInitializer(t *testing.T) {
	_, err := ParseProgram("const x;")
	assert.Error(t, err)
}

func TestParseFunction(t *testing.T) {
	prog, err := ParseProgram("function foo(a, b) { return a + b; }")
	require.NoError(t, err)
	fn, ok := prog.Body[0].(*ast.FunctionDeclaration)
	require.True(t, ok)
	assert.Equal(t, "foo", fn.ID.Name)
	assert.Len(t, fn.Params, 2)
}

func TestParseArrowFunction(t *testing.T) {
	expr := parseExpr(t, "(x) => x * 2")
	arrow, ok := expr.(*ast.ArrowFunctionExpression)
	require.True(t, ok)
	assert.False(t, arrow.Async)
}

func TestParseClass(t *testing.T) {
	prog, err := ParseProgram("class Foo { constructor() {} method() {} }")
	require.NoError(t, err)
	cls, ok := prog.Body[0].(*ast.ClassDeclaration)
	require.True(t, ok)
	assert.Equal(t, "Foo", cls.ID.Name)
	assert.Len(t, cls.Body, 2)
}

func TestParseIfStatement(t *testing.T) {
	prog, err := ParseProgram("if (x) { y; } else { z; }")
	require.NoError(t, err)
	stmt, ok := prog.Body[0].(*ast.IfStatement)
	require.True(t, ok)
	assert.NotNil(t, stmt.Alternate)
}

func TestParseForLoop(t *testing.T) {
	prog, err := ParseProgram("for (let i = 0; i < 10; i++) { console.log(i); }")
	require.NoError(t, err)
	_, ok := prog.Body[0].(*ast.ForStatement)
	assert.True(t, ok)
}

func TestParseForOfLoop(t *testing.T) {
	prog, err := ParseProgram("for (const x of items) { use(x); }")
	require.NoError(t, err)
	stmt, ok := prog.Body[0].(*ast.ForInOfStatement)
	require.True(t, ok)
	assert.Equal(t, ast.ForOf, stmt.Kind)
}

func TestParseForInLoop(t *testing.T) {
	prog, err := ParseProgram("for (const k in obj) { use(k); }")
	require.NoError(t, err)
	stmt, ok := prog.Body[0].(*ast.ForInOfStatement)
	require.True(t, ok)
	assert.Equal(t, ast.ForIn, stmt.Kind)
}

func TestParseDestructuring(t *testing.T) {
	prog, err := ParseProgram("let { a, b: [c, ...d] } = obj;")
	require.NoError(t, err)
	decl := prog.Body[0].(*ast.VariableDeclaration)
	_, ok := decl.Declarations[0].ID.(*ast.ObjectPattern)
	assert.True(t, ok)
}

func TestParseBreakOutsideLoopIsIllegal(t *testing.T) {
	_, err := ParseProgram("break;")
	assert.Error(t, err)
}

func TestParseContinueOutsideLoopIsIllegal(t *testing.T) {
	_, err := ParseProgram("continue;")
	assert.Error(t, err)
}

func TestParseReturnOutsideFunctionIsIllegal(t *testing.T) {
	_, err := ParseProgram("return 1;")
	assert.Error(t, err)
}

func TestParseTryCatchFinally(t *testing.T) {
	prog, err := ParseProgram("try { a(); } catch (e) { b(); } finally { c(); }")
	require.NoError(t, err)
	stmt, ok := prog.Body[0].(*ast.TryStatement)
	require.True(t, ok)
	assert.NotNil(t, stmt.Handler)
	assert.NotNil(t, stmt.Finalizer)
}

func TestParseTryWithoutCatchOrFinallyIsIllegal(t *testing.T) {
	_, err := ParseProgram("try { a(); }")
	assert.Error(t, err)
}

func TestParseSwitchStatement(t *testing.T) {
	prog, err := ParseProgram("switch (x) { case 1: a(); break; default: b(); }")
	require.NoError(t, err)
	stmt, ok := prog.Body[0].(*ast.SwitchStatement)
	require.True(t, ok)
	assert.Len(t, stmt.Cases, 2)
}

func TestParseLabeledStatement(t *testing.T) {
	prog, err := ParseProgram("outer: for (;;) { break outer; }")
	require.NoError(t, err)
	stmt, ok := prog.Body[0].(*ast.LabeledStatement)
	require.True(t, ok)
	assert.Equal(t, "outer", stmt.Label.Name)
}

func TestParseTemplateLiteral(t *testing.T) {
	expr := parseExpr(t, "`hello ${name}!`")
	tpl, ok := expr.(*ast.TemplateLiteral)
	require.True(t, ok)
	assert.Len(t, tpl.Expressions, 1)
	assert.Len(t, tpl.Quasis, 2)
}

func TestParseTaggedTemplate(t *testing.T) {
	expr := parseExpr(t, "tag`hello ${name}`")
	tagged, ok := expr.(*ast.TaggedTemplateExpression)
	require.True(t, ok)
	ref, ok := tagged.Tag.(*ast.IdentifierReference)
	require.True(t, ok)
	assert.Equal(t, "tag", ref.Name)
}

func TestParseOptionalChaining(t *testing.T) {
	expr := parseExpr(t, "a?.b?.c")
	member, ok := expr.(*ast.MemberExpression)
	require.True(t, ok)
	assert.True(t, member.Optional)
}

func TestParseSpreadInCallArguments(t *testing.T) {
	expr := parseExpr(t, "f(1, ...rest)")
	call, ok := expr.(*ast.CallExpression)
	require.True(t, ok)
	require.Len(t, call.Args, 2)
	assert.True(t, call.Args[1].Spread)
}

func TestParseObjectSpread(t *testing.T) {
	expr := parseExpr(t, "({ ...a, b: 1 })")
	obj, ok := expr.(*ast.ObjectExpression)
	require.True(t, ok)
	require.Len(t, obj.Properties, 2)
	assert.Equal(t, ast.PropSpread, obj.Properties[0].Kind)
}

func TestParseAsyncIdentifierNotFunction(t *testing.T) {
	expr := parseExpr(t, "async")
	ref, ok := expr.(*ast.IdentifierReference)
	require.True(t, ok)
	assert.Equal(t, "async", ref.Name)
}

func TestParseAutomaticSemicolonInsertion(t *testing.T) {
	prog, err := ParseProgram("let a = 1\nlet b = 2\n")
	require.NoError(t, err)
	assert.Len(t, prog.Body, 2)
}

func TestParseImportDeclaration(t *testing.T) {
	prog, err := ParseProgram(`import foo, { bar as baz } from "mod";`)
	require.NoError(t, err)
	imp, ok := prog.Body[0].(*ast.ImportDeclaration)
	require.True(t, ok)
	assert.Equal(t, "mod", imp.Source)
	require.Len(t, imp.Specifiers, 2)
	assert.Equal(t, ast.ImportDefault, imp.Specifiers[0].Kind)
	assert.Equal(t, ast.ImportNamed, imp.Specifiers[1].Kind)
	assert.Equal(t, "bar", imp.Specifiers[1].Imported)
	assert.Equal(t, "baz", imp.Specifiers[1].Local.Name)
}

func TestParseExportNamed(t *testing.T) {
	prog, err := ParseProgram("export const x = 1;")
	require.NoError(t, err)
	exp, ok := prog.Body[0].(*ast.ExportNamedDeclaration)
	require.True(t, ok)
	assert.NotNil(t, exp.Declaration)
}

func TestParseExportDefault(t *testing.T) {
	prog, err := ParseProgram("export default function foo() {}")
	require.NoError(t, err)
	_, ok := prog.Body[0].(*ast.ExportDefaultDeclaration)
	assert.True(t, ok)
}

func TestParseExportAllFrom(t *testing.T) {
	prog, err := ParseProgram(`export * as ns from "mod";`)
	require.NoError(t, err)
	exp, ok := prog.Body[0].(*ast.ExportAllDeclaration)
	require.True(t, ok)
	assert.Equal(t, "ns", exp.Exported)
	assert.Equal(t, "mod", exp.Source)
}

func TestParseProgramWithRecoveryCollectsMultipleErrors(t *testing.T) {
	_, diags := ParseProgramWithRecovery("let ; let ; let ;")
	assert.NotEmpty(t, diags)
}

func TestParseDuplicateParamsRejectedInStrictMode(t *testing.T) {
	_, err := ParseProgram(`"use strict"; function f(a, a) {}`)
	assert.Error(t, err)
}

func TestParseDuplicateParamsAllowedOutsideStrictMode(t *testing.T) {
	_, err := ParseProgram("function f(a, a) {}")
	assert.NoError(t, err)
}
