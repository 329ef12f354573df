package compiler

import (
	"github.com/qsjs/quicksilver/internal/ast"
	"github.com/qsjs/quicksilver/internal/bytecode"
)

// boundNames collects every identifier a pattern binds, recursing through
// array/object destructuring, defaults, and rest elements. Used by the
// var/function-declaration hoisting pre-pass and by duplicate-binding
// diagnostics.
func boundNames(pat ast.Pattern) []string {
	switch p := pat.(type) {
	case *ast.Identifier:
		return []string{p.Name}
	case *ast.ArrayPattern:
		var names []string
		for _, el := range p.Elements {
			if el.Pattern != nil {
				names = append(names, boundNames(el.Pattern)...)
			}
		}
		if p.Rest != nil {
			names = append(names, boundNames(p.Rest)...)
		}
		return names
	case *ast.ObjectPattern:
		var names []string
		for _, prop := range p.Properties {
			names = append(names, boundNames(prop.Value)...)
		}
		if p.Rest != nil {
			names = append(names, boundNames(p.Rest)...)
		}
		return names
	case *ast.AssignmentPattern:
		return boundNames(p.Left)
	case *ast.RestElement:
		return boundNames(p.Argument)
	}
	return nil
}

// declareBindingTarget records a new binding for name in the current
// scope: a local slot if we're inside a function (or a nested block of
// one), or a global if this is top-level script code. Unlike
// initBindingFromStack, this does not consume a stack value — it is used
// by the hoisting pre-pass, which pushes undefined itself.
func (c *Compiler) declareBindingTarget(name string, ln uint32) {
	if c.atGlobalScope() {
		c.emit(bytecode.OpUndefined, ln)
		c.emitGlobalRef(bytecode.OpDefineGlobal, name, ln)
		return
	}
	c.declareLocal(name)
}

// atGlobalScope reports whether a new `var`/function binding here should
// become a process-wide global rather than a local slot: true only for
// the top-level script compiler at its outermost (function) scope.
func (c *Compiler) atGlobalScope() bool {
	return c.enclosing == nil && !c.inFunction
}

// initBindingFromStack consumes the value on top of the stack (already
// evaluated by the caller) and binds it to pat, declaring every name the
// pattern introduces. Used for let/const declarators, function
// parameters, and catch clause bindings — contexts where every name is
// always a fresh binding.
func (c *Compiler) initBindingFromStack(pat ast.Pattern, ln uint32) error {
	return c.bindPattern(pat, ln, true)
}

// assignFromStack consumes the value on top of the stack and assigns it
// to pat's target(s), resolving existing bindings rather than declaring
// new ones. Used for plain assignment-expression destructuring
// (`[a, b] = pair`) and for `var` declarators, whose names were already
// hoisted.
func (c *Compiler) assignFromStack(pat ast.Pattern, ln uint32) error {
	return c.bindPattern(pat, ln, false)
}

// bindPattern is the shared recursive lowering for both declare-and-bind
// and assign-to-existing-binding. Destructuring uses no temporary local:
// OpDestructureArray/OpDestructureObject replace the source value on the
// stack with the extracted element/property values, and each target is
// then bound from the stack.
func (c *Compiler) bindPattern(pat ast.Pattern, ln uint32, declare bool) error {
	switch p := pat.(type) {
	case *ast.Identifier:
		if declare {
			if c.atGlobalScope() {
				c.emitGlobalRef(bytecode.OpDefineGlobal, p.Name, ln)
			} else {
				c.declareLocal(p.Name)
			}
			return nil
		}
		c.assignName(p.Name, ln)
		c.emit(bytecode.OpPop, ln)
		return nil

	case *ast.AssignmentPattern:
		// Value already on stack; substitute the default when undefined.
		c.emit(bytecode.OpDup, ln)
		c.emit(bytecode.OpUndefined, ln)
		c.emit(bytecode.OpStrictEqual, ln)
		elseJump := c.emitJump(bytecode.OpJumpIfFalse, ln)
		c.emit(bytecode.OpPop, ln) // drop the comparison result
		c.emit(bytecode.OpPop, ln) // drop the stale undefined
		if err := c.compileExpression(p.Default); err != nil {
			return err
		}
		endJump := c.emitJump(bytecode.OpJump, ln)
		c.patchJump(elseJump)
		c.emit(bytecode.OpPop, ln) // drop the comparison result
		c.patchJump(endJump)
		return c.bindPattern(p.Left, ln, declare)

	case *ast.ArrayPattern:
		return c.bindArrayPattern(p, ln, declare)

	case *ast.ObjectPattern:
		return c.bindObjectPattern(p, ln, declare)

	case *ast.RestElement:
		return c.bindPattern(p.Argument, ln, declare)
	}
	return c.errorf(pat, "compiler: unsupported binding pattern %T", pat)
}

// bindArrayPattern destructures the array/iterable on top of the stack
// via OpDestructureArray, which the VM specifies as: pop the source,
// push each fixed-position element (undefined for holes/short source) in
// left-to-right order, then (if a rest element is present) push one
// array collecting the remainder.
func (c *Compiler) bindArrayPattern(p *ast.ArrayPattern, ln uint32, declare bool) error {
	c.emit(bytecode.OpDestructureArray, ln)
	c.emitByte(byte(len(p.Elements)))
	if p.Rest != nil {
		c.emitByte(1)
	} else {
		c.emitByte(0)
	}
	for _, el := range p.Elements {
		if el.Pattern == nil {
			c.emit(bytecode.OpPop, ln) // elision: discard the pushed slot
			continue
		}
		if err := c.bindPattern(el.Pattern, ln, declare); err != nil {
			return err
		}
	}
	if p.Rest != nil {
		if err := c.bindPattern(p.Rest, ln, declare); err != nil {
			return err
		}
	}
	return nil
}

// bindObjectPattern destructures the object on top of the stack via
// OpDestructureObject: pop the source, push each named property's value
// (undefined if absent) in declaration order, then (if a rest element is
// present) push one object of the remaining own enumerable properties.
func (c *Compiler) bindObjectPattern(p *ast.ObjectPattern, ln uint32, declare bool) error {
	keys := make([]string, len(p.Properties))
	for i, prop := range p.Properties {
		if prop.Computed {
			return c.errorf(p, "compiler: computed keys are not supported in object destructuring")
		}
		keys[i] = prop.Key.Name
	}
	c.emit(bytecode.OpDestructureObject, ln)
	idx := c.addConstant(keys)
	c.emitUint16(idx)
	if p.Rest != nil {
		c.emitByte(1)
	} else {
		c.emitByte(0)
	}
	for _, prop := range p.Properties {
		if err := c.bindPattern(prop.Value, ln, declare); err != nil {
			return err
		}
	}
	if p.Rest != nil {
		if err := c.bindPattern(p.Rest, ln, declare); err != nil {
			return err
		}
	}
	return nil
}
