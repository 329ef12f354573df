package compiler

import (
	"github.com/qsjs/quicksilver/internal/ast"
	"github.com/qsjs/quicksilver/internal/bytecode"
)

// compileStatement dispatches on every ast.Statement variant, mirroring
// the parser's parseStatement dispatch shape (statement.go) even though
// there is no Rust original to port here — this stage is grounded on
// spec.md §4.E's lowering contract instead.
func (c *Compiler) compileStatement(stmt ast.Statement) error {
	ln := line(stmt)
	switch s := stmt.(type) {
	case *ast.ExpressionStatement:
		if err := c.compileExpression(s.Expr); err != nil {
			return err
		}
		c.emit(bytecode.OpPop, ln)
		return nil

	case *ast.BlockStatement:
		c.beginScope()
		if err := c.compileBlockBody(s.Body); err != nil {
			return err
		}
		c.endScope(ln)
		return nil

	case *ast.VariableDeclaration:
		return c.compileVariableDeclaration(s)

	case *ast.FunctionDeclaration:
		// Hoisted to the top of the enclosing block by hoistDeclarations;
		// nothing left to do at this textual position.
		return nil

	case *ast.ClassDeclaration:
		return c.compileClassDeclaration(s)

	case *ast.ReturnStatement:
		return c.compileReturn(s)

	case *ast.IfStatement:
		return c.compileIf(s)

	case *ast.ForStatement:
		return c.compileFor(s)

	case *ast.ForInOfStatement:
		return c.compileForInOf(s)

	case *ast.WhileStatement:
		return c.compileWhile(s)

	case *ast.DoWhileStatement:
		return c.compileDoWhile(s)

	case *ast.BreakStatement:
		return c.compileBreak(s)

	case *ast.ContinueStatement:
		return c.compileContinue(s)

	case *ast.ThrowStatement:
		if err := c.compileExpression(s.Argument); err != nil {
			return err
		}
		c.emit(bytecode.OpThrow, ln)
		return nil

	case *ast.TryStatement:
		return c.compileTry(s)

	case *ast.SwitchStatement:
		return c.compileSwitch(s)

	case *ast.LabeledStatement:
		return c.compileLabeled(s)

	case *ast.DebuggerStatement:
		c.emit(bytecode.OpDebuggerNop, ln)
		return nil

	case *ast.EmptyStatement:
		return nil

	case *ast.ImportDeclaration:
		return c.compileImport(s)

	case *ast.ExportNamedDeclaration:
		return c.compileExportNamed(s)

	case *ast.ExportDefaultDeclaration:
		return c.compileExportDefault(s)

	case *ast.ExportAllDeclaration:
		// Re-exports are resolved entirely by internal/engine after the
		// module runs (harvestExports copies the source module's exports
		// into this module's export table); the compiled chunk for the
		// exporting module itself has nothing to emit here.
		return nil
	}
	return c.errorf(stmt, "compiler: unsupported statement %T", stmt)
}

// compileBlockBody binds the function declarations local to this block
// and then compiles each statement in order. `var` names inside the block
// were already declared by the enclosing function's (or program's)
// hoistDeclarations pass, so they are not declared again here.
func (c *Compiler) compileBlockBody(body []ast.Statement) error {
	for _, stmt := range body {
		if fn, ok := stmt.(*ast.FunctionDeclaration); ok {
			if err := c.compileFunctionDeclaration(fn); err != nil {
				return err
			}
		}
	}
	for _, stmt := range body {
		if err := c.compileStatement(stmt); err != nil {
			return err
		}
	}
	return nil
}

// hoistDeclarations implements `var`/function-declaration hoisting:
// `var` bindings are pre-declared as undefined (so forward references
// before the textual declaration see undefined rather than erroring),
// and function declarations are fully compiled and bound up front (so
// mutually-recursive top-level functions can call each other regardless
// of source order). Neither descends into nested function bodies. The
// `var` scan walks through block statements (matching `var`'s lack of
// block scoping); function declarations inside a nested block are not
// hoisted here but bound at the top of that block by compileBlockBody.
func (c *Compiler) hoistDeclarations(body []ast.Statement) error {
	names := map[string]bool{}
	c.collectVarNames(body, names)
	for name := range names {
		ln := uint32(0)
		c.declareBindingTarget(name, ln)
	}
	for _, stmt := range body {
		if fn, ok := stmt.(*ast.FunctionDeclaration); ok {
			if err := c.compileFunctionDeclaration(fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// collectVarNames recurses through nested statements (blocks, if, loops,
// try, switch, labels) collecting every `var`-kind declarator's bound
// names, stopping at function/class boundaries.
func (c *Compiler) collectVarNames(body []ast.Statement, out map[string]bool) {
	for _, stmt := range body {
		switch s := stmt.(type) {
		case *ast.VariableDeclaration:
			if s.Kind == ast.VarVar {
				for _, d := range s.Declarations {
					for _, n := range boundNames(d.ID) {
						out[n] = true
					}
				}
			}
		case *ast.BlockStatement:
			c.collectVarNames(s.Body, out)
		case *ast.IfStatement:
			c.collectVarNames([]ast.Statement{s.Consequent}, out)
			if s.Alternate != nil {
				c.collectVarNames([]ast.Statement{s.Alternate}, out)
			}
		case *ast.ForStatement:
			if decl, ok := s.Init.(*ast.VariableDeclaration); ok && decl.Kind == ast.VarVar {
				for _, d := range decl.Declarations {
					for _, n := range boundNames(d.ID) {
						out[n] = true
					}
				}
			}
			c.collectVarNames([]ast.Statement{s.Body}, out)
		case *ast.ForInOfStatement:
			if decl, ok := s.Left.(*ast.VariableDeclaration); ok && decl.Kind == ast.VarVar {
				for _, d := range decl.Declarations {
					for _, n := range boundNames(d.ID) {
						out[n] = true
					}
				}
			}
			c.collectVarNames([]ast.Statement{s.Body}, out)
		case *ast.WhileStatement:
			c.collectVarNames([]ast.Statement{s.Body}, out)
		case *ast.DoWhileStatement:
			c.collectVarNames([]ast.Statement{s.Body}, out)
		case *ast.TryStatement:
			c.collectVarNames(s.Block.Body, out)
			if s.Handler != nil {
				c.collectVarNames(s.Handler.Body.Body, out)
			}
			if s.Finalizer != nil {
				c.collectVarNames(s.Finalizer.Body, out)
			}
		case *ast.SwitchStatement:
			for _, cs := range s.Cases {
				c.collectVarNames(cs.Consequent, out)
			}
		case *ast.LabeledStatement:
			c.collectVarNames([]ast.Statement{s.Body}, out)
		}
	}
}

func (c *Compiler) compileVariableDeclaration(decl *ast.VariableDeclaration) error {
	ln := line(decl)
	for _, d := range decl.Declarations {
		if d.Init != nil {
			if err := c.compileExpression(d.Init); err != nil {
				return err
			}
		} else {
			c.emit(bytecode.OpUndefined, ln)
		}
		if decl.Kind == ast.VarVar {
			// Already hoisted: this is an assignment to the pre-declared
			// binding, not a fresh declaration.
			if err := c.assignFromStack(d.ID, ln); err != nil {
				return err
			}
			continue
		}
		if err := c.initBindingFromStack(d.ID, ln); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compiler) compileIf(s *ast.IfStatement) error {
	ln := line(s)
	if err := c.compileExpression(s.Test); err != nil {
		return err
	}
	elseJump := c.emitJump(bytecode.OpJumpIfFalse, ln)
	c.emit(bytecode.OpPop, ln)
	if err := c.compileStatement(s.Consequent); err != nil {
		return err
	}
	endJump := c.emitJump(bytecode.OpJump, ln)
	c.patchJump(elseJump)
	c.emit(bytecode.OpPop, ln)
	if s.Alternate != nil {
		if err := c.compileStatement(s.Alternate); err != nil {
			return err
		}
	}
	c.patchJump(endJump)
	return nil
}

func (c *Compiler) compileWhile(s *ast.WhileStatement) error {
	ln := line(s)
	loopStart := len(c.chunk.Code)
	if err := c.compileExpression(s.Test); err != nil {
		return err
	}
	exitJump := c.emitJump(bytecode.OpJumpIfFalse, ln)
	c.emit(bytecode.OpPop, ln)

	loop := &loopContext{continueTarget: loopStart, labels: c.takePendingLabels()}
	c.loopStack = append(c.loopStack, loop)
	if err := c.compileStatement(s.Body); err != nil {
		return err
	}
	c.loopStack = c.loopStack[:len(c.loopStack)-1]

	c.emitLoop(loopStart, ln)
	c.patchJump(exitJump)
	c.emit(bytecode.OpPop, ln)
	c.patchBreaks(loop)
	return nil
}

func (c *Compiler) compileDoWhile(s *ast.DoWhileStatement) error {
	ln := line(s)
	loopStart := len(c.chunk.Code)

	loop := &loopContext{labels: c.takePendingLabels()}
	c.loopStack = append(c.loopStack, loop)
	if err := c.compileStatement(s.Body); err != nil {
		return err
	}
	c.loopStack = c.loopStack[:len(c.loopStack)-1]

	// continue jumps to the test, which sits after the body.
	testStart := len(c.chunk.Code)
	loop.continueTarget = testStart
	if err := c.compileExpression(s.Test); err != nil {
		return err
	}
	// Jump back to loopStart when true (OpJumpIfTrue), otherwise fall
	// through past it.
	backJump := c.emitJump(bytecode.OpJumpIfTrue, ln)
	c.emit(bytecode.OpPop, ln)
	exitJump := c.emitJump(bytecode.OpJump, ln)
	c.patchJump(backJump)
	c.emit(bytecode.OpPop, ln)
	c.emitLoop(loopStart, ln)
	c.patchJump(exitJump)
	c.patchBreaks(loop)
	return nil
}

func (c *Compiler) compileFor(s *ast.ForStatement) error {
	ln := line(s)
	c.beginScope()
	if s.Init != nil {
		switch init := s.Init.(type) {
		case *ast.VariableDeclaration:
			if err := c.compileVariableDeclaration(init); err != nil {
				return err
			}
		case ast.Expression:
			if err := c.compileExpression(init); err != nil {
				return err
			}
			c.emit(bytecode.OpPop, ln)
		}
	}

	loopStart := len(c.chunk.Code)
	var exitJump int
	hasTest := s.Test != nil
	if hasTest {
		if err := c.compileExpression(s.Test); err != nil {
			return err
		}
		exitJump = c.emitJump(bytecode.OpJumpIfFalse, ln)
		c.emit(bytecode.OpPop, ln)
	}

	loop := &loopContext{labels: c.takePendingLabels()}
	c.loopStack = append(c.loopStack, loop)
	if err := c.compileStatement(s.Body); err != nil {
		return err
	}
	c.loopStack = c.loopStack[:len(c.loopStack)-1]

	updateStart := len(c.chunk.Code)
	loop.continueTarget = updateStart
	if s.Update != nil {
		if err := c.compileExpression(s.Update); err != nil {
			return err
		}
		c.emit(bytecode.OpPop, ln)
	}
	c.emitLoop(loopStart, ln)
	if hasTest {
		c.patchJump(exitJump)
		c.emit(bytecode.OpPop, ln)
	}
	c.patchBreaks(loop)
	c.endScope(ln)
	return nil
}

// compileForInOf lowers `for (x in obj)`/`for (x of iterable)` to the
// iterator-protocol loop spec.md §4.E describes: evaluate the source,
// obtain an iterator/enumerator (OpForOfInit/OpForInInit), then loop {
// next -> done-check -> destructure -> body }. The iterator value stays
// on the operand stack for the duration of the loop (peeked by Next each
// iteration), so the loop's own scope never needs a hidden local for it.
func (c *Compiler) compileForInOf(s *ast.ForInOfStatement) error {
	ln := line(s)
	c.beginScope()
	if err := c.compileExpression(s.Right); err != nil {
		return err
	}
	if s.Kind == ast.ForOf {
		c.emit(bytecode.OpForOfInit, ln)
	} else {
		c.emit(bytecode.OpForInInit, ln)
	}

	loopStart := len(c.chunk.Code)
	if s.Kind == ast.ForOf {
		c.emit(bytecode.OpForOfNext, ln)
	} else {
		c.emit(bytecode.OpForInNext, ln)
	}
	// Stack: [..., iterator, value, doneBool]
	exitJump := c.emitJump(bytecode.OpJumpIfTrue, ln)
	c.emit(bytecode.OpPop, ln) // drop doneBool

	c.beginScope()
	switch left := s.Left.(type) {
	case *ast.VariableDeclaration:
		if len(left.Declarations) != 1 {
			return c.errorf(s, "compiler: for-in/of binding must declare exactly one name")
		}
		if err := c.initBindingFromStack(left.Declarations[0].ID, ln); err != nil {
			return err
		}
	case ast.Pattern:
		if err := c.assignFromStack(left, ln); err != nil {
			return err
		}
	default:
		return c.errorf(s, "compiler: unsupported for-in/of left-hand side %T", s.Left)
	}

	loop := &loopContext{labels: c.takePendingLabels()}
	c.loopStack = append(c.loopStack, loop)
	if err := c.compileStatement(s.Body); err != nil {
		return err
	}
	c.loopStack = c.loopStack[:len(c.loopStack)-1]
	c.endScope(ln)

	loop.continueTarget = len(c.chunk.Code)
	c.emitLoop(loopStart, ln)

	c.patchJump(exitJump)
	c.emit(bytecode.OpPop, ln) // doneBool (true)
	c.emit(bytecode.OpPop, ln) // value (unused on the terminal iteration)
	c.emit(bytecode.OpPop, ln) // iterator
	c.patchBreaks(loop)
	c.endScope(ln)
	return nil
}

// takePendingLabels consumes (and clears) the label(s) a wrapping
// LabeledStatement staged for the next loop/switch this compiler
// compiles, so they attach to the correct loopContext/switchContext.
func (c *Compiler) takePendingLabels() []string {
	if len(c.pendingLabels) == 0 {
		return nil
	}
	labels := c.pendingLabels
	c.pendingLabels = nil
	return labels
}

func (c *Compiler) compileBreak(s *ast.BreakStatement) error {
	ln := line(s)
	if s.Label != nil {
		for i := len(c.loopStack) - 1; i >= 0; i-- {
			if hasLabel(c.loopStack[i].labels, s.Label.Name) {
				c.loopStack[i].breakJumps = append(c.loopStack[i].breakJumps, c.emitJump(bytecode.OpJump, ln))
				return nil
			}
		}
		for i := len(c.switchStack) - 1; i >= 0; i-- {
			if hasLabel(c.switchStack[i].labels, s.Label.Name) {
				c.switchStack[i].breakJumps = append(c.switchStack[i].breakJumps, c.emitJump(bytecode.OpJump, ln))
				return nil
			}
		}
		return c.errorf(s, "undefined label '%s'", s.Label.Name)
	}
	if len(c.loopStack) > 0 {
		loop := c.loopStack[len(c.loopStack)-1]
		loop.breakJumps = append(loop.breakJumps, c.emitJump(bytecode.OpJump, ln))
		return nil
	}
	if len(c.switchStack) > 0 {
		sw := c.switchStack[len(c.switchStack)-1]
		sw.breakJumps = append(sw.breakJumps, c.emitJump(bytecode.OpJump, ln))
		return nil
	}
	return c.errorf(s, "illegal break statement outside loop or switch")
}

func (c *Compiler) compileContinue(s *ast.ContinueStatement) error {
	ln := line(s)
	if len(c.loopStack) == 0 {
		return c.errorf(s, "illegal continue statement outside loop")
	}
	if s.Label != nil {
		for i := len(c.loopStack) - 1; i >= 0; i-- {
			if hasLabel(c.loopStack[i].labels, s.Label.Name) {
				c.emitLoop(c.loopStack[i].continueTarget, ln)
				return nil
			}
		}
		return c.errorf(s, "undefined label '%s'", s.Label.Name)
	}
	loop := c.loopStack[len(c.loopStack)-1]
	c.emitLoop(loop.continueTarget, ln)
	return nil
}

func (c *Compiler) patchBreaks(loop *loopContext) {
	for _, off := range loop.breakJumps {
		c.patchJump(off)
	}
}

func hasLabel(labels []string, name string) bool {
	for _, l := range labels {
		if l == name {
			return true
		}
	}
	return false
}

// compileLabeled attaches s.Label to the nearest loop/switch directly
// inside it so labeled break/continue can find it, then compiles the
// body as normal. Non-loop labeled statements (`foo: { ... }`) only
// support labeled break, handled via a synthetic loopContext-less jump
// target recorded on switchStack-style bookkeeping.
func (c *Compiler) compileLabeled(s *ast.LabeledStatement) error {
	switch body := s.Body.(type) {
	case *ast.ForStatement, *ast.ForInOfStatement, *ast.WhileStatement, *ast.DoWhileStatement:
		return c.compileLabeledLoop(s.Label.Name, body)
	case *ast.SwitchStatement:
		return c.compileLabeledSwitch(s.Label.Name, body)
	default:
		sw := &switchContext{labels: []string{s.Label.Name}}
		c.switchStack = append(c.switchStack, sw)
		if err := c.compileStatement(s.Body); err != nil {
			return err
		}
		c.switchStack = c.switchStack[:len(c.switchStack)-1]
		c.patchBreaksSwitch(sw)
		return nil
	}
}

func (c *Compiler) patchBreaksSwitch(sw *switchContext) {
	for _, off := range sw.breakJumps {
		c.patchJump(off)
	}
}

// compileLabeledLoop threads label into the loopContext the loop's own
// compileX function pushes, by pre-registering the label and letting the
// loop compiler discover it already on top of loopStack. Since the loop
// compile functions push their own *loopContext, we instead wrap: push a
// placeholder marker, compile the loop, then copy the label onto the
// loopContext the loop pushed (found as the top of loopStack immediately
// after the loop-specific push, before the loop body runs) is awkward
// without changing those signatures, so labeled loops carry their label
// via pendingLabel instead.
func (c *Compiler) compileLabeledLoop(label string, body ast.Statement) error {
	c.pendingLabels = append(c.pendingLabels, label)
	err := c.compileStatement(body)
	c.pendingLabels = c.pendingLabels[:len(c.pendingLabels)-1]
	return err
}

func (c *Compiler) compileLabeledSwitch(label string, s *ast.SwitchStatement) error {
	c.pendingLabels = append(c.pendingLabels, label)
	err := c.compileStatement(s)
	c.pendingLabels = c.pendingLabels[:len(c.pendingLabels)-1]
	return err
}

func (c *Compiler) compileTry(s *ast.TryStatement) error {
	ln := line(s)
	tryStart := len(c.chunk.Code)

	c.beginScope()
	if err := c.compileBlockBody(s.Block.Body); err != nil {
		return err
	}
	c.endScope(ln)
	tryEnd := len(c.chunk.Code)
	skipHandler := c.emitJump(bytecode.OpJump, ln)

	handlerPC := -1
	if s.Handler != nil {
		handlerPC = len(c.chunk.Code)
		c.beginScope()
		if s.Handler.Param != nil {
			if err := c.initBindingFromStack(s.Handler.Param, ln); err != nil {
				return err
			}
		} else {
			c.emit(bytecode.OpPop, ln) // discard the exception value
		}
		if err := c.compileBlockBody(s.Handler.Body.Body); err != nil {
			return err
		}
		c.endScope(ln)
	}
	c.patchJump(skipHandler)

	finallyPC := -1
	if s.Finalizer != nil {
		finallyPC = len(c.chunk.Code)
		c.beginScope()
		if err := c.compileBlockBody(s.Finalizer.Body); err != nil {
			return err
		}
		c.endScope(ln)
	}

	c.chunk.Handlers = append(c.chunk.Handlers, bytecode.HandlerEntry{
		TryStart:  tryStart,
		TryEnd:    tryEnd,
		HandlerPC: handlerPC,
		FinallyPC: finallyPC,
	})
	c.emit(bytecode.OpTryEnd, ln)
	return nil
}

// compileSwitch lowers a switch statement to a chain of strict-equality
// tests against the discriminant followed by case bodies emitted
// consecutively in source order, so fallthrough (no `break`) is simply
// "no jump" between adjacent bodies. The initial no-match jump targets
// the default clause's body wherever it falls in that sequence, or the
// end of the switch if there is no default.
func (c *Compiler) compileSwitch(s *ast.SwitchStatement) error {
	ln := line(s)
	if err := c.compileExpression(s.Discriminant); err != nil {
		return err
	}
	sw := &switchContext{labels: c.takePendingLabels()}
	c.switchStack = append(c.switchStack, sw)

	matchJumps := make([]int, len(s.Cases))
	defaultIndex := -1
	for i, cs := range s.Cases {
		if cs.Test == nil {
			defaultIndex = i
			continue
		}
		c.emit(bytecode.OpDup, ln)
		if err := c.compileExpression(cs.Test); err != nil {
			return err
		}
		c.emit(bytecode.OpStrictEqual, ln)
		matchJumps[i] = c.emitJump(bytecode.OpJumpIfTrue, ln)
		c.emit(bytecode.OpPop, ln)
	}
	noMatchJump := c.emitJump(bytecode.OpJump, ln)

	bodyStarts := make([]int, len(s.Cases))
	for i, cs := range s.Cases {
		if cs.Test != nil {
			c.patchJump(matchJumps[i])
			c.emit(bytecode.OpPop, ln) // pop the true comparison result
		}
		bodyStarts[i] = len(c.chunk.Code)
		c.beginScope()
		if err := c.compileBlockBody(cs.Consequent); err != nil {
			return err
		}
		c.endScope(ln)
	}
	if defaultIndex >= 0 {
		c.chunk.PatchUint16(noMatchJump, uint16(bodyStarts[defaultIndex]))
	} else {
		c.patchJump(noMatchJump)
	}

	c.emit(bytecode.OpPop, ln) // discard discriminant
	c.switchStack = c.switchStack[:len(c.switchStack)-1]
	c.patchBreaksSwitch(sw)
	return nil
}

func (c *Compiler) compileReturn(s *ast.ReturnStatement) error {
	ln := line(s)
	if s.Argument != nil {
		if err := c.compileExpression(s.Argument); err != nil {
			return err
		}
	} else {
		c.emit(bytecode.OpUndefined, ln)
	}
	c.emit(bytecode.OpReturn, ln)
	return nil
}

// ---- function & class declarations -----------------------------------

func (c *Compiler) compileFunctionDeclaration(fn *ast.FunctionDeclaration) error {
	ln := line(fn)
	chunk, err := c.compileFunctionBody(fn.ID.Name, fn.Params, fn.Body, fn.Generator, fn.Async)
	if err != nil {
		return err
	}
	idx := c.addConstant(chunk)
	c.emitOpIndex(bytecode.OpClosure, idx, ln)
	if c.atGlobalScope() {
		c.emitGlobalRef(bytecode.OpDefineGlobal, fn.ID.Name, ln)
		return nil
	}
	c.declareLocal(fn.ID.Name)
	return nil
}

func (c *Compiler) compileClassDeclaration(cd *ast.ClassDeclaration) error {
	ln := line(cd)
	if err := c.compileClassValue(cd.ID.Name, cd.SuperClass, cd.Body, ln); err != nil {
		return err
	}
	if c.atGlobalScope() {
		c.emitGlobalRef(bytecode.OpDefineGlobal, cd.ID.Name, ln)
		return nil
	}
	c.declareLocal(cd.ID.Name)
	return nil
}

// ---- modules ------------------------------------------------------------

// compileImport emits no bytecode of its own: internal/module resolves
// and evaluates the dependency graph ahead of this module's chunk
// running, then pre-populates this chunk's globals with the imported
// bindings before execution (see spec.md §4.J). The declaration's only
// compiler-visible effect is reserving the local names so references to
// them resolve instead of falling through to an unbound global.
//
// At module (global) scope this is a true no-op: resolveName already
// falls back to OpLoadGlobal for any name with no local slot, so the
// binding the engine seeded into vm.Globals before running this chunk is
// read as-is. Routing imports through declareBindingTarget like an
// ordinary `var` would instead emit OpUndefined/OpDefineGlobal at this
// statement's position and stomp that seeded value back to undefined the
// moment execution reached it. A future non-global import (were this
// compiler ever used to compile a function body standalone) still needs
// a local slot reserved, hence the scope check rather than dropping the
// declaration outright.
func (c *Compiler) compileImport(imp *ast.ImportDeclaration) error {
	for _, spec := range imp.Specifiers {
		if c.atGlobalScope() {
			continue
		}
		c.declareLocal(spec.Local.Name)
	}
	return nil
}

func (c *Compiler) compileExportNamed(exp *ast.ExportNamedDeclaration) error {
	ln := line(exp)
	if exp.Declaration != nil {
		if err := c.compileStatement(exp.Declaration); err != nil {
			return err
		}
		for _, name := range declarationNames(exp.Declaration) {
			c.resolveName(name, ln)
			idx := c.addConstant(name)
			c.emitOpIndex(bytecode.OpExportSet, idx, ln)
			c.emit(bytecode.OpPop, ln)
		}
		return nil
	}
	for _, spec := range exp.Specifiers {
		c.resolveName(spec.Local, ln)
		idx := c.addConstant(spec.Exported)
		c.emitOpIndex(bytecode.OpExportSet, idx, ln)
		c.emit(bytecode.OpPop, ln)
	}
	return nil
}

func (c *Compiler) compileExportDefault(exp *ast.ExportDefaultDeclaration) error {
	ln := line(exp)
	switch d := exp.Declaration.(type) {
	case ast.Statement:
		if err := c.compileStatement(d); err != nil {
			return err
		}
		names := declarationNames(d)
		if len(names) == 1 {
			c.resolveName(names[0], ln)
		} else {
			c.emit(bytecode.OpUndefined, ln)
		}
	case ast.Expression:
		if err := c.compileExpression(d); err != nil {
			return err
		}
	}
	idx := c.addConstant("default")
	c.emitOpIndex(bytecode.OpExportSet, idx, ln)
	c.emit(bytecode.OpPop, ln)
	return nil
}

func declarationNames(stmt ast.Statement) []string {
	switch s := stmt.(type) {
	case *ast.FunctionDeclaration:
		if s.ID != nil {
			return []string{s.ID.Name}
		}
	case *ast.ClassDeclaration:
		if s.ID != nil {
			return []string{s.ID.Name}
		}
	case *ast.VariableDeclaration:
		var names []string
		for _, d := range s.Declarations {
			names = append(names, boundNames(d.ID)...)
		}
		return names
	}
	return nil
}
