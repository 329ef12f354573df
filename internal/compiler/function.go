package compiler

import (
	"github.com/qsjs/quicksilver/internal/ast"
	"github.com/qsjs/quicksilver/internal/bytecode"
)

// compileFunctionBody compiles a function/method/arrow body into its own
// Chunk: a child Compiler inherits the enclosing scope chain (for
// upvalue resolution) but starts a fresh locals/scope-depth stack of its
// own, matching how `other_examples/…funvibe-funxy__internal-vm-compiler.go.go`'s
// NewCompiler nests one Compiler per function with an `enclosing` link.
func (c *Compiler) compileFunctionBody(name string, params []ast.Pattern, body *ast.BlockStatement, isGenerator, isAsync bool) (*bytecode.Chunk, error) {
	fc := c.childFunction(name, isGenerator, isAsync)
	fc.beginScope()
	if err := fc.bindParams(params); err != nil {
		return nil, err
	}
	if err := fc.hoistDeclarations(body.Body); err != nil {
		return nil, err
	}
	for _, stmt := range body.Body {
		if err := fc.compileStatement(stmt); err != nil {
			return nil, err
		}
	}
	endLn := body.Span().End.Line
	fc.emit(bytecode.OpUndefined, endLn)
	fc.emit(bytecode.OpReturn, endLn)

	fc.chunk.NumLocals = uint16(len(fc.locals))
	fc.chunk.NumUpvalues = uint8(len(fc.upvalues))
	fc.chunk.Upvalues = fc.upvalues
	fc.chunk.ParamCount = len(params)
	return fc.chunk, nil
}

// bindParams declares each parameter as a local in frame-entry order.
// Simple identifiers and defaulted/destructured parameters are bound the
// same way a `let` declarator would be (the argument value having
// already been placed in that slot by the calling convention); a
// trailing rest parameter instead uses OpDestructureRest to collect the
// extra call arguments into one array.
func (c *Compiler) bindParams(params []ast.Pattern) error {
	for i, p := range params {
		if rest, ok := p.(*ast.RestElement); ok {
			c.emit(bytecode.OpDestructureRest, 0)
			c.emitByte(byte(i))
			if err := c.bindPattern(rest.Argument, 0, true); err != nil {
				return err
			}
			continue
		}
		// Parameters are passed as pre-pushed stack values by the VM's
		// calling convention (callee frame base = stack_top - n); a bare
		// identifier parameter needs no further bytecode; only params
		// with defaults or destructuring require reading the slot back.
		if id, ok := p.(*ast.Identifier); ok {
			c.declareLocal(id.Name)
			continue
		}
		slot := c.declareLocal("")
		c.emitOpIndex(bytecode.OpLoadLocal, uint16(slot), 0)
		if err := c.bindPattern(p, 0, true); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compiler) compileFunctionExpression(fe *ast.FunctionExpression) error {
	name := ""
	if fe.ID != nil {
		name = fe.ID.Name
	}
	chunk, err := c.compileFunctionBody(name, fe.Params, fe.Body, fe.Generator, fe.Async)
	if err != nil {
		return err
	}
	idx := c.addConstant(chunk)
	c.emitOpIndex(bytecode.OpClosure, idx, line(fe))
	return nil
}

func (c *Compiler) compileArrowFunction(af *ast.ArrowFunctionExpression) error {
	fc := c.childFunction("", false, af.Async)
	fc.beginScope()
	if err := fc.bindParams(af.Params); err != nil {
		return err
	}
	ln := line(af)
	switch body := af.Body.(type) {
	case *ast.BlockStatement:
		if err := fc.hoistDeclarations(body.Body); err != nil {
			return err
		}
		for _, stmt := range body.Body {
			if err := fc.compileStatement(stmt); err != nil {
				return err
			}
		}
		fc.emit(bytecode.OpUndefined, ln)
		fc.emit(bytecode.OpReturn, ln)
	case ast.Expression:
		if err := fc.compileExpression(body); err != nil {
			return err
		}
		fc.emit(bytecode.OpReturn, ln)
	}
	fc.chunk.NumLocals = uint16(len(fc.locals))
	fc.chunk.NumUpvalues = uint8(len(fc.upvalues))
	fc.chunk.Upvalues = fc.upvalues
	fc.chunk.ParamCount = len(af.Params)

	idx := c.addConstant(fc.chunk)
	c.emitOpIndex(bytecode.OpClosure, idx, ln)
	return nil
}
