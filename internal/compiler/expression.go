package compiler

import (
	"math/big"

	"github.com/qsjs/quicksilver/internal/ast"
	"github.com/qsjs/quicksilver/internal/bytecode"
	"github.com/qsjs/quicksilver/internal/value"
)

// compileExpression dispatches on every ast.Expression variant. Every
// case leaves exactly one value on the operand stack, matching the
// invariant `other_examples/…funvibe-funxy__internal-vm-compiler.go.go`
// states directly in its own comment ("each expression pushes exactly
// ONE value").
func (c *Compiler) compileExpression(expr ast.Expression) error {
	ln := line(expr)
	switch e := expr.(type) {
	case *ast.Literal:
		return c.compileLiteral(e)

	case *ast.IdentifierReference:
		c.resolveName(e.Name, ln)
		return nil

	case *ast.ThisExpression:
		c.emit(bytecode.OpLoadThis, ln)
		return nil

	case *ast.SuperExpression:
		return c.errorf(e, "compiler: 'super' keyword is only valid in a member or call expression")

	case *ast.TemplateLiteral:
		return c.compileTemplateLiteral(e)

	case *ast.TaggedTemplateExpression:
		return c.compileTaggedTemplate(e)

	case *ast.ArrayExpression:
		return c.compileArrayExpression(e)

	case *ast.ObjectExpression:
		return c.compileObjectExpression(e)

	case *ast.FunctionExpression:
		return c.compileFunctionExpression(e)

	case *ast.ArrowFunctionExpression:
		return c.compileArrowFunction(e)

	case *ast.ClassExpression:
		name := ""
		if e.ID != nil {
			name = e.ID.Name
		}
		return c.compileClassValue(name, e.SuperClass, e.Body, ln)

	case *ast.UnaryExpression:
		return c.compileUnary(e)

	case *ast.UpdateExpression:
		return c.compileUpdate(e)

	case *ast.BinaryExpression:
		return c.compileBinary(e)

	case *ast.LogicalExpression:
		return c.compileLogical(e)

	case *ast.AssignmentExpression:
		return c.compileAssignment(e)

	case *ast.ConditionalExpression:
		return c.compileConditional(e)

	case *ast.CallExpression:
		jumps, err := c.compileChainExpr(e)
		if err != nil {
			return err
		}
		for _, j := range jumps {
			c.patchJump(j)
		}
		return nil

	case *ast.NewExpression:
		return c.compileNew(e)

	case *ast.MemberExpression:
		jumps, err := c.compileChainExpr(e)
		if err != nil {
			return err
		}
		for _, j := range jumps {
			c.patchJump(j)
		}
		return nil

	case *ast.SequenceExpression:
		for i, sub := range e.Expressions {
			if err := c.compileExpression(sub); err != nil {
				return err
			}
			if i < len(e.Expressions)-1 {
				c.emit(bytecode.OpPop, ln)
			}
		}
		return nil

	case *ast.YieldExpression:
		return c.compileYield(e)

	case *ast.AwaitExpression:
		if err := c.compileExpression(e.Argument); err != nil {
			return err
		}
		c.emit(bytecode.OpAwait, ln)
		return nil

	case *ast.MetaProperty:
		return c.compileMetaProperty(e)
	}
	return c.errorf(expr, "compiler: unsupported expression %T", expr)
}

func (c *Compiler) compileLiteral(lit *ast.Literal) error {
	ln := line(lit)
	switch lit.Kind {
	case ast.LitNumber:
		c.constantValue(value.Num(lit.Value.(float64)), ln)
	case ast.LitBigInt:
		c.constantValue(value.BigIntVal(lit.Value.(*big.Int)), ln)
	case ast.LitString:
		c.constantValue(value.Str(lit.Value.(string)), ln)
	case ast.LitBoolean:
		if lit.Value.(bool) {
			c.emit(bytecode.OpTrue, ln)
		} else {
			c.emit(bytecode.OpFalse, ln)
		}
	case ast.LitNull:
		c.emit(bytecode.OpNull, ln)
	default:
		return c.errorf(lit, "compiler: unsupported literal kind %v", lit.Kind)
	}
	return nil
}

func (c *Compiler) compileTemplateLiteral(t *ast.TemplateLiteral) error {
	ln := line(t)
	// quasis[0] + expr[0] + quasis[1] + expr[1] + ... + quasis[n], folded
	// with a chain of string-concatenating OpAdd (the string runtime
	// coerces non-string operands, so this reuses ordinary `+`).
	c.constantValue(value.Str(t.Quasis[0].Cooked), ln)
	for i, ex := range t.Expressions {
		if err := c.compileExpression(ex); err != nil {
			return err
		}
		c.emit(bytecode.OpAdd, ln)
		c.constantValue(value.Str(t.Quasis[i+1].Cooked), ln)
		c.emit(bytecode.OpAdd, ln)
	}
	return nil
}

// compileTaggedTemplate implements the call-site quasi caching spec.md
// §4.E requires: the strings array passed to the tag function is built
// once, as a constant, rather than re-allocated on every call.
func (c *Compiler) compileTaggedTemplate(t *ast.TaggedTemplateExpression) error {
	ln := line(t)
	raw := make([]string, len(t.Quasi.Quasis))
	cooked := make([]string, len(t.Quasi.Quasis))
	for i, q := range t.Quasi.Quasis {
		raw[i] = q.Raw
		cooked[i] = q.Cooked
	}
	// OpCall's calling convention is callee, then args, then the argc
	// operand: the tag function must be pushed before the strings
	// array/interpolations, not after.
	if err := c.compileExpression(t.Tag); err != nil {
		return err
	}
	idx := c.addConstant(&bytecode.TaggedTemplateQuasis{Raw: raw, Cooked: cooked})
	c.emitOpIndex(bytecode.OpConstant, idx, ln)
	for _, ex := range t.Quasi.Expressions {
		if err := c.compileExpression(ex); err != nil {
			return err
		}
	}
	argc := len(t.Quasi.Expressions) + 1
	c.emitOpIndex(bytecode.OpCall, uint16(argc), ln)
	c.emitArgMarkers(make([]byte, argc))
	return nil
}

// ---- arrays / objects ------------------------------------------------------

// compileArrayExpression builds the array incrementally so spread
// elements can splice their source's elements in by reference (an
// ObjectID Value copy aliases the same heap slot, so merging into a
// duplicated array reference mutates the one array being built).
func (c *Compiler) compileArrayExpression(a *ast.ArrayExpression) error {
	ln := line(a)
	c.emit(bytecode.OpNewArray, ln)
	c.emitUint16(0)
	for _, el := range a.Elements {
		c.emit(bytecode.OpDup, ln)
		if el.Expr == nil {
			c.emit(bytecode.OpUndefined, ln)
			c.emit(bytecode.OpArrayPush, ln)
			continue
		}
		if err := c.compileExpression(el.Expr); err != nil {
			return err
		}
		if el.Spread {
			c.emit(bytecode.OpSpread, ln)
		} else {
			c.emit(bytecode.OpArrayPush, ln)
		}
	}
	return nil
}

func (c *Compiler) compileObjectExpression(o *ast.ObjectExpression) error {
	ln := line(o)
	c.emit(bytecode.OpNewObject, ln)
	c.emitUint16(0)
	for _, prop := range o.Properties {
		if prop.Kind == ast.PropSpread {
			c.emit(bytecode.OpDup, ln)
			if err := c.compileExpression(prop.Value); err != nil {
				return err
			}
			c.emit(bytecode.OpSpread, ln)
			continue
		}
		c.emit(bytecode.OpDup, ln)
		if err := c.compilePropertyKey(prop.Key, prop.Computed, ln); err != nil {
			return err
		}
		switch prop.Kind {
		case ast.PropGet, ast.PropSet, ast.PropMethod:
			fe := prop.Value.(*ast.FunctionExpression)
			if err := c.compileFunctionExpression(fe); err != nil {
				return err
			}
		default:
			if err := c.compileExpression(prop.Value); err != nil {
				return err
			}
		}
		switch prop.Kind {
		case ast.PropGet:
			c.emit(bytecode.OpDefineGetter, ln)
		case ast.PropSet:
			c.emit(bytecode.OpDefineSetter, ln)
		default:
			c.emit(bytecode.OpSetProperty, ln)
			c.emit(bytecode.OpPop, ln)
		}
	}
	return nil
}

func (c *Compiler) compilePropertyKey(key ast.PropertyKey, computed bool, ln uint32) error {
	if computed {
		return c.compileExpression(key.Expr)
	}
	switch key.Kind {
	case ast.KeyNumber:
		c.constantValue(value.Str(key.Name), ln)
	default:
		c.constantValue(value.Str(key.Name), ln)
	}
	return nil
}

// ---- unary / update ---------------------------------------------------

func (c *Compiler) compileUnary(u *ast.UnaryExpression) error {
	ln := line(u)
	if u.Operator == ast.UnaryDelete {
		return c.compileDelete(u)
	}
	if u.Operator == ast.UnaryTypeof {
		if ref, ok := u.Argument.(*ast.IdentifierReference); ok {
			// typeof on an unresolved global must not throw; resolveName
			// falls back to OpLoadGlobal, and the VM pushes undefined
			// rather than throwing a ReferenceError when a missing
			// global's OpLoadGlobal is directly followed by OpTypeof.
			c.resolveName(ref.Name, ln)
			c.emit(bytecode.OpTypeof, ln)
			return nil
		}
	}
	if err := c.compileExpression(u.Argument); err != nil {
		return err
	}
	switch u.Operator {
	case ast.UnaryMinus:
		c.emit(bytecode.OpNeg, ln)
	case ast.UnaryPlus:
		c.emit(bytecode.OpPos, ln)
	case ast.UnaryBang:
		c.emit(bytecode.OpNot, ln)
	case ast.UnaryTilde:
		c.emit(bytecode.OpBitNot, ln)
	case ast.UnaryTypeof:
		c.emit(bytecode.OpTypeof, ln)
	case ast.UnaryVoid:
		c.emit(bytecode.OpPop, ln)
		c.emit(bytecode.OpUndefined, ln)
	default:
		return c.errorf(u, "compiler: unsupported unary operator %v", u.Operator)
	}
	return nil
}

// compileDelete only supports member-expression operands (the common
// case); deleting a plain binding is a no-op that evaluates to false in
// strict mode code and true otherwise — simplified here to always `true`
// since bindings introduced by this compiler are never configurable.
func (c *Compiler) compileDelete(u *ast.UnaryExpression) error {
	ln := line(u)
	m, ok := u.Argument.(*ast.MemberExpression)
	if !ok {
		c.emit(bytecode.OpTrue, ln)
		return nil
	}
	if err := c.compileExpression(m.Object); err != nil {
		return err
	}
	if err := c.compileMemberKey(m, ln); err != nil {
		return err
	}
	c.emit(bytecode.OpDelete, ln)
	return nil
}

func (c *Compiler) compileUpdate(u *ast.UpdateExpression) error {
	ln := line(u)
	delta := bytecode.OpAdd
	if u.Operator == ast.UpdateDecrement {
		delta = bytecode.OpSub
	}

	switch target := u.Argument.(type) {
	case *ast.IdentifierReference:
		// assignName's Store* opcodes peek (leave the stored value on top
		// without popping), so after the store the stack still holds
		// [old, new]; a single pop or swap-pop selects the result.
		c.resolveName(target.Name, ln)
		c.emit(bytecode.OpDup, ln)
		c.constantValue(value.Num(1), ln)
		c.emit(delta, ln) // [old, new]
		c.assignName(target.Name, ln)
		if u.Prefix {
			c.emitSwapPop(ln) // drop old, keep new
		} else {
			c.emit(bytecode.OpPop, ln) // drop new, keep old
		}
		return nil

	case *ast.MemberExpression:
		return c.compileMemberUpdate(target, delta, u.Prefix, ln)

	default:
		return c.errorf(u, "compiler: invalid update target %T", u.Argument)
	}
}

// compileMemberUpdate lowers `obj.prop++`/`--obj[expr]`. obj/old/new are
// tracked as temporary locals (rather than loose, unnamed stack values)
// so their frame-relative slot indices stay valid for OpLoadLocal; the
// key is re-evaluated for the write half (a second evaluation for
// computed keys is a documented, rare tradeoff of this scheme — member
// update expressions with a side-effecting computed key are unusual).
func (c *Compiler) compileMemberUpdate(target *ast.MemberExpression, delta bytecode.Op, prefix bool, ln uint32) error {
	base := len(c.locals)

	if err := c.compileExpression(target.Object); err != nil {
		return err
	}
	objSlot := c.declareLocal("")

	c.emitOpIndex(bytecode.OpLoadLocal, uint16(objSlot), ln)
	if err := c.compileMemberKey(target, ln); err != nil {
		return err
	}
	c.emit(bytecode.OpGetIndex, ln)
	oldSlot := c.declareLocal("")

	c.emitOpIndex(bytecode.OpLoadLocal, uint16(oldSlot), ln)
	c.constantValue(value.Num(1), ln)
	c.emit(delta, ln)
	newSlot := c.declareLocal("")

	c.emitOpIndex(bytecode.OpLoadLocal, uint16(objSlot), ln)
	if err := c.compileMemberKey(target, ln); err != nil {
		return err
	}
	c.emitOpIndex(bytecode.OpLoadLocal, uint16(newSlot), ln)
	c.emit(bytecode.OpSetIndex, ln)
	c.emit(bytecode.OpPop, ln) // discard SetIndex's peeked-back value

	if prefix {
		c.emitOpIndex(bytecode.OpLoadLocal, uint16(newSlot), ln)
	} else {
		c.emitOpIndex(bytecode.OpLoadLocal, uint16(oldSlot), ln)
	}
	c.emit(bytecode.OpSwapPop, ln) // drop newSlot's resident copy
	c.emit(bytecode.OpSwapPop, ln) // drop oldSlot's resident copy
	c.emit(bytecode.OpSwapPop, ln) // drop objSlot's resident copy

	c.locals = c.locals[:base]
	return nil
}

// compileMemberCompoundAssign lowers `obj.prop += rhs` and friends: read
// the current property value, apply op against the compiled rhs, write
// the result back, leaving it as the assignment expression's value. Uses
// the same temp-local technique as compileMemberUpdate, and re-evaluates
// a computed key for the same documented reason.
func (c *Compiler) compileMemberCompoundAssign(target *ast.MemberExpression, rhs ast.Expression, op bytecode.Op, ln uint32) error {
	base := len(c.locals)

	if err := c.compileExpression(target.Object); err != nil {
		return err
	}
	objSlot := c.declareLocal("")

	c.emitOpIndex(bytecode.OpLoadLocal, uint16(objSlot), ln)
	if err := c.compileMemberKey(target, ln); err != nil {
		return err
	}
	c.emit(bytecode.OpGetIndex, ln)
	if err := c.compileExpression(rhs); err != nil {
		return err
	}
	c.emit(op, ln)
	newSlot := c.declareLocal("")

	c.emitOpIndex(bytecode.OpLoadLocal, uint16(objSlot), ln)
	if err := c.compileMemberKey(target, ln); err != nil {
		return err
	}
	c.emitOpIndex(bytecode.OpLoadLocal, uint16(newSlot), ln)
	c.emit(bytecode.OpSetIndex, ln) // stack: [obj, new, setIndexResult]

	c.emit(bytecode.OpSwapPop, ln) // drop newSlot's resident copy, keep result
	c.emit(bytecode.OpSwapPop, ln) // drop objSlot's resident copy, keep result

	c.locals = c.locals[:base]
	return nil
}

// emitSwapPop removes the second-from-top stack value, keeping top.
func (c *Compiler) emitSwapPop(ln uint32) {
	c.emit(bytecode.OpSwapPop, ln)
}

// ---- binary / logical ---------------------------------------------------

var binaryOps = map[ast.BinaryOperator]bytecode.Op{
	ast.BinAdd: bytecode.OpAdd, ast.BinSub: bytecode.OpSub,
	ast.BinMul: bytecode.OpMul, ast.BinDiv: bytecode.OpDiv,
	ast.BinMod: bytecode.OpMod, ast.BinExp: bytecode.OpExp,
	ast.BinLeftShift: bytecode.OpShl, ast.BinRightShift: bytecode.OpShr,
	ast.BinUnsignedRightShift: bytecode.OpUShr,
	ast.BinLess:                bytecode.OpLess,
	ast.BinLessEq:              bytecode.OpLessEq,
	ast.BinGreater:             bytecode.OpGreater,
	ast.BinGreaterEq:           bytecode.OpGreaterEq,
	ast.BinEqual:               bytecode.OpEqual,
	ast.BinNotEqual:            bytecode.OpNotEqual,
	ast.BinStrictEqual:         bytecode.OpStrictEqual,
	ast.BinStrictNotEqual:      bytecode.OpStrictNotEqual,
	ast.BinBitAnd:              bytecode.OpBitAnd,
	ast.BinBitXor:              bytecode.OpBitXor,
	ast.BinBitOr:               bytecode.OpBitOr,
	ast.BinIn:                  bytecode.OpIn,
	ast.BinInstanceof:          bytecode.OpInstanceof,
}

func (c *Compiler) compileBinary(b *ast.BinaryExpression) error {
	ln := line(b)
	if err := c.compileExpression(b.Left); err != nil {
		return err
	}
	if err := c.compileExpression(b.Right); err != nil {
		return err
	}
	op, ok := binaryOps[b.Operator]
	if !ok {
		return c.errorf(b, "compiler: unsupported binary operator %v", b.Operator)
	}
	c.emit(op, ln)
	return nil
}

func (c *Compiler) compileLogical(l *ast.LogicalExpression) error {
	ln := line(l)
	if err := c.compileExpression(l.Left); err != nil {
		return err
	}
	var op bytecode.Op
	switch l.Operator {
	case ast.LogicalAnd:
		op = bytecode.OpAnd
	case ast.LogicalOr:
		op = bytecode.OpOr
	case ast.LogicalNullish:
		op = bytecode.OpNullishCoalesce
	}
	shortCircuit := c.emitJump(op, ln)
	c.emit(bytecode.OpPop, ln)
	if err := c.compileExpression(l.Right); err != nil {
		return err
	}
	c.patchJump(shortCircuit)
	return nil
}

// ---- assignment / conditional -------------------------------------------

var compoundOps = map[ast.AssignmentOperator]bytecode.Op{
	ast.AssignAdd: bytecode.OpAdd, ast.AssignSub: bytecode.OpSub,
	ast.AssignMul: bytecode.OpMul, ast.AssignDiv: bytecode.OpDiv,
	ast.AssignMod: bytecode.OpMod, ast.AssignExp: bytecode.OpExp,
	ast.AssignLeftShift: bytecode.OpShl, ast.AssignRightShift: bytecode.OpShr,
	ast.AssignUnsignedRightShift: bytecode.OpUShr,
	ast.AssignBitAnd:             bytecode.OpBitAnd,
	ast.AssignBitOr:              bytecode.OpBitOr,
	ast.AssignBitXor:             bytecode.OpBitXor,
}

func (c *Compiler) compileAssignment(a *ast.AssignmentExpression) error {
	ln := line(a)

	if a.Operator == ast.AssignLogicalAnd || a.Operator == ast.AssignLogicalOr || a.Operator == ast.AssignNullish {
		return c.compileLogicalAssign(a)
	}

	if a.Operator == ast.AssignEquals {
		if pat, ok := a.Left.(ast.Pattern); ok {
			if _, isID := pat.(*ast.Identifier); !isID {
				if err := c.compileExpression(a.Right); err != nil {
					return err
				}
				c.emit(bytecode.OpDup, ln)
				return c.assignFromStack(pat, ln)
			}
		}
	}

	switch target := a.Left.(type) {
	case *ast.IdentifierReference:
		if err := c.compileRHS(a, target.Name, ln); err != nil {
			return err
		}
		c.assignName(target.Name, ln)
		return nil

	case *ast.Identifier: // destructuring surface reusing Pattern's Identifier
		if err := c.compileRHS(a, target.Name, ln); err != nil {
			return err
		}
		c.assignName(target.Name, ln)
		return nil

	case *ast.MemberExpression:
		if a.Operator == ast.AssignEquals {
			if err := c.compileExpression(target.Object); err != nil {
				return err
			}
			if err := c.compileMemberKey(target, ln); err != nil {
				return err
			}
			if err := c.compileExpression(a.Right); err != nil {
				return err
			}
			c.emit(bytecode.OpSetProperty, ln)
			return nil
		}
		op, ok := compoundOps[a.Operator]
		if !ok {
			return c.errorf(a, "compiler: unsupported compound assignment %v", a.Operator)
		}
		return c.compileMemberCompoundAssign(target, a.Right, op, ln)
	}
	return c.errorf(a, "compiler: unsupported assignment target %T", a.Left)
}

// compileRHS compiles the right-hand side for a simple-name target,
// folding in the current value for compound assignment operators.
func (c *Compiler) compileRHS(a *ast.AssignmentExpression, name string, ln uint32) error {
	if a.Operator == ast.AssignEquals {
		return c.compileExpression(a.Right)
	}
	c.resolveName(name, ln)
	if err := c.compileExpression(a.Right); err != nil {
		return err
	}
	op, ok := compoundOps[a.Operator]
	if !ok {
		return c.errorf(a, "compiler: unsupported compound assignment %v", a.Operator)
	}
	c.emit(op, ln)
	return nil
}

// compileLogicalAssign lowers `a &&= b` / `a ||= b` / `a ??= b`: b is
// only evaluated (and assigned) when the short-circuit condition holds.
func (c *Compiler) compileLogicalAssign(a *ast.AssignmentExpression) error {
	ln := line(a)
	name, ok := a.Left.(*ast.IdentifierReference)
	if !ok {
		return c.errorf(a, "compiler: logical assignment to non-identifier targets is unsupported")
	}
	c.resolveName(name.Name, ln)
	var op bytecode.Op
	switch a.Operator {
	case ast.AssignLogicalAnd:
		op = bytecode.OpAnd
	case ast.AssignLogicalOr:
		op = bytecode.OpOr
	case ast.AssignNullish:
		op = bytecode.OpNullishCoalesce
	}
	shortCircuit := c.emitJump(op, ln)
	c.emit(bytecode.OpPop, ln)
	if err := c.compileExpression(a.Right); err != nil {
		return err
	}
	c.assignName(name.Name, ln)
	c.patchJump(shortCircuit)
	return nil
}

func (c *Compiler) compileConditional(cond *ast.ConditionalExpression) error {
	ln := line(cond)
	if err := c.compileExpression(cond.Test); err != nil {
		return err
	}
	elseJump := c.emitJump(bytecode.OpJumpIfFalse, ln)
	c.emit(bytecode.OpPop, ln)
	if err := c.compileExpression(cond.Consequent); err != nil {
		return err
	}
	endJump := c.emitJump(bytecode.OpJump, ln)
	c.patchJump(elseJump)
	c.emit(bytecode.OpPop, ln)
	if err := c.compileExpression(cond.Alternate); err != nil {
		return err
	}
	c.patchJump(endJump)
	return nil
}

// ---- member / call chains (optional-chaining aware) ----------------------

// compileMemberKey pushes m's property key for a non-chained context
// (computed expression, or the string constant for `.name`).
func (c *Compiler) compileMemberKey(m *ast.MemberExpression, ln uint32) error {
	if m.Computed {
		return c.compileExpression(m.Property)
	}
	name := m.Property.(*ast.IdentifierReference).Name
	c.constantValue(value.Str(name), ln)
	return nil
}

// compileChainExpr compiles a MemberExpression/CallExpression that may
// be the outermost link of an optional chain (`a?.b.c`, `a?.b?.()`) and
// returns every short-circuit jump collected along the way so the
// caller — whichever compileExpression case started the chain — can
// patch them all to the single point just after the whole chain's
// final value is pushed, per the chain-wide short-circuit semantics of
// `?.`.
func (c *Compiler) compileChainExpr(expr ast.Expression) ([]int, error) {
	switch e := expr.(type) {
	case *ast.MemberExpression:
		return c.compileMemberLink(e)
	case *ast.CallExpression:
		return c.compileCallLink(e)
	default:
		if err := c.compileExpression(expr); err != nil {
			return nil, err
		}
		return nil, nil
	}
}

// emitOptionalCheck tests the top-of-stack value for strict-equal-
// undefined. On no-match it drops the bool and falls through to continue
// the chain. On match it drops the bool, strips `extra` additional stack
// values already pushed since the value being tested (e.g. a duplicated
// receiver a method-call link is still holding), and jumps to the shared
// end of the chain with the tested value — itself already undefined —
// left as the chain's sole, final result. Returns that jump's offset for
// the caller's pending-jumps list.
func (c *Compiler) emitOptionalCheck(ln uint32, extra int) int {
	c.emit(bytecode.OpDup, ln)
	c.emit(bytecode.OpUndefined, ln)
	c.emit(bytecode.OpStrictEqual, ln)
	toCleanup := c.emitJump(bytecode.OpJumpIfTrue, ln)
	c.emit(bytecode.OpPop, ln) // fallthrough: not nullish, drop the bool and continue the chain
	skipCleanup := c.emitJump(bytecode.OpJump, ln)
	c.patchJump(toCleanup)
	c.emit(bytecode.OpPop, ln) // drop the bool
	for i := 0; i < extra; i++ {
		c.emit(bytecode.OpSwapPop, ln)
	}
	toEnd := c.emitJump(bytecode.OpJump, ln)
	c.patchJump(skipCleanup)
	return toEnd
}

func (c *Compiler) compileMemberLink(m *ast.MemberExpression) ([]int, error) {
	ln := line(m)
	if _, ok := m.Object.(*ast.SuperExpression); ok {
		if m.Computed {
			return nil, c.errorf(m, "compiler: computed super member access is unsupported")
		}
		name := m.Property.(*ast.IdentifierReference).Name
		idx := c.addConstant(value.Str(name))
		c.emitOpIndex(bytecode.OpGetSuperProperty, idx, ln)
		return nil, nil
	}

	jumps, err := c.compileChainExpr(m.Object)
	if err != nil {
		return nil, err
	}

	if m.Optional {
		jumps = append(jumps, c.emitOptionalCheck(ln, 0))
	}

	if m.Computed {
		if err := c.compileExpression(m.Property); err != nil {
			return nil, err
		}
		c.emit(bytecode.OpGetIndex, ln)
	} else {
		name := m.Property.(*ast.IdentifierReference).Name
		idx := c.addConstant(value.Str(name))
		c.emitOpIndex(bytecode.OpGetProperty, idx, ln)
	}
	return jumps, nil
}

func (c *Compiler) compileCallLink(call *ast.CallExpression) ([]int, error) {
	ln := line(call)

	if sup, ok := call.Callee.(*ast.SuperExpression); ok {
		_ = sup
		argc, markers, err := c.compileArgs(call.Args)
		if err != nil {
			return nil, err
		}
		c.emitOpIndex(bytecode.OpSuperCall, uint16(argc), ln)
		c.emitArgMarkers(markers)
		return nil, nil
	}

	// `obj.method(args)` binds `this` to `obj`: compile the receiver
	// once, dup it for the call's implicit `this`, fetch the method, then
	// push args and use OpCallMethod rather than OpCall.
	if m, ok := call.Callee.(*ast.MemberExpression); ok {
		if _, isSuper := m.Object.(*ast.SuperExpression); !isSuper {
			jumps, err := c.compileChainExpr(m.Object)
			if err != nil {
				return nil, err
			}
			if m.Optional {
				jumps = append(jumps, c.emitOptionalCheck(ln, 0))
			}
			c.emit(bytecode.OpDup, ln) // receiver for OpCallMethod
			if m.Computed {
				if err := c.compileExpression(m.Property); err != nil {
					return nil, err
				}
				c.emit(bytecode.OpGetIndex, ln)
			} else {
				name := m.Property.(*ast.IdentifierReference).Name
				idx := c.addConstant(value.Str(name))
				c.emitOpIndex(bytecode.OpGetProperty, idx, ln)
			}
			if call.Optional {
				// The method value sits above the still-held receiver
				// duplicate; short-circuiting here must also drop that
				// receiver before joining the chain's shared end.
				jumps = append(jumps, c.emitOptionalCheck(ln, 1))
			}
			argc, markers, err := c.compileArgs(call.Args)
			if err != nil {
				return nil, err
			}
			c.emitOpIndex(bytecode.OpCallMethod, uint16(argc), ln)
			c.emitArgMarkers(markers)
			return jumps, nil
		}
	}

	jumps, err := c.compileChainExpr(call.Callee)
	if err != nil {
		return nil, err
	}
	if call.Optional {
		jumps = append(jumps, c.emitOptionalCheck(ln, 0))
	}
	argc, markers, err := c.compileArgs(call.Args)
	if err != nil {
		return nil, err
	}
	c.emitOpIndex(bytecode.OpCall, uint16(argc), ln)
	c.emitArgMarkers(markers)
	return jumps, nil
}

// compileArgs pushes each argument's value in order and returns one marker
// byte per argument (0 = plain value, 1 = spread: the VM flattens that
// argument's iterable into the call's actual argument list at dispatch
// time). The markers are compile-time-known data, not pushed values, so
// the caller emits them as raw operand bytes immediately after the call
// opcode's argc operand — never before it, since a marker byte sitting
// ahead of the opcode in the code stream would otherwise be reached (and
// misdecoded as an opcode) by ordinary sequential IP stepping before the
// call instruction itself is ever read.
func (c *Compiler) compileArgs(args []ast.ArrayElement) (int, []byte, error) {
	markers := make([]byte, len(args))
	for i, a := range args {
		if err := c.compileExpression(a.Expr); err != nil {
			return 0, nil, err
		}
		if a.Spread {
			markers[i] = 1
		}
	}
	return len(args), markers, nil
}

// emitArgMarkers appends markers as raw operand bytes right after a call
// opcode's argc operand.
func (c *Compiler) emitArgMarkers(markers []byte) {
	for _, m := range markers {
		c.emitByte(m)
	}
}

func (c *Compiler) compileNew(n *ast.NewExpression) error {
	ln := line(n)
	if err := c.compileExpression(n.Callee); err != nil {
		return err
	}
	argc, markers, err := c.compileArgs(n.Args)
	if err != nil {
		return err
	}
	c.emitOpIndex(bytecode.OpConstruct, uint16(argc), ln)
	c.emitArgMarkers(markers)
	return nil
}

// ---- yield / meta -------------------------------------------------------

func (c *Compiler) compileYield(y *ast.YieldExpression) error {
	ln := line(y)
	if y.Argument != nil {
		if err := c.compileExpression(y.Argument); err != nil {
			return err
		}
	} else {
		c.emit(bytecode.OpUndefined, ln)
	}
	if y.Delegate {
		c.emit(bytecode.OpResume, ln)
	}
	c.emit(bytecode.OpYield, ln)
	return nil
}

func (c *Compiler) compileMetaProperty(m *ast.MetaProperty) error {
	ln := line(m)
	switch {
	case m.Meta == "new" && m.Property == "target":
		c.emitGlobalRef(bytecode.OpLoadGlobal, "%new.target%", ln)
	case m.Meta == "import" && m.Property == "meta":
		c.emitGlobalRef(bytecode.OpLoadGlobal, "%import.meta%", ln)
	default:
		return c.errorf(m, "compiler: unsupported meta property %s.%s", m.Meta, m.Property)
	}
	return nil
}
