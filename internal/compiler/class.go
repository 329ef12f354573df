package compiler

import (
	"github.com/qsjs/quicksilver/internal/ast"
	"github.com/qsjs/quicksilver/internal/bytecode"
	"github.com/qsjs/quicksilver/internal/diag"
)

// fieldInit is one instance or static field initializer pending
// compilation into a Fields/StaticFields chunk.
type fieldInit struct {
	key      ast.PropertyKey
	computed bool
	value    ast.Expression // nil means `undefined`
}

// compileClassValue lowers a class declaration/expression body into a
// bytecode.ClassTemplate constant and an OpNewClass. There's no
// precedent in the teacher (quicksilver predates bytecode compilation
// entirely — see compiler.go's package doc); the member-as-compiled-
// chunk shape mirrors how compileFunctionBody already treats any
// function body, just gathered under one constant-pool payload instead
// of one OpClosure per member.
func (c *Compiler) compileClassValue(name string, superClass ast.Expression, body []ast.ClassMember, ln uint32) error {
	if superClass != nil {
		if err := c.compileExpression(superClass); err != nil {
			return err
		}
	} else {
		c.emit(bytecode.OpUndefined, ln)
	}

	tmpl := &bytecode.ClassTemplate{
		Name:          name,
		HasSuper:      superClass != nil,
		Methods:       map[string]*bytecode.Chunk{},
		Getters:       map[string]*bytecode.Chunk{},
		Setters:       map[string]*bytecode.Chunk{},
		StaticMethods: map[string]*bytecode.Chunk{},
		StaticGetters: map[string]*bytecode.Chunk{},
		StaticSetters: map[string]*bytecode.Chunk{},
	}

	var instanceFields []fieldInit
	var staticInits []any // fieldInit or *ast.BlockStatement, in declaration order

	for _, member := range body {
		switch m := member.(type) {
		case *ast.MethodDefinition:
			if err := c.compileClassMethod(tmpl, m); err != nil {
				return err
			}

		case *ast.PropertyDefinition:
			if m.Key.Kind == ast.KeyComputed {
				return c.errorf(m, "compiler: computed class field names are unsupported")
			}
			fi := fieldInit{key: m.Key, computed: false, value: m.Value}
			if m.Static {
				staticInits = append(staticInits, fi)
			} else {
				instanceFields = append(instanceFields, fi)
			}

		case *ast.StaticBlock:
			staticInits = append(staticInits, m.Body)

		default:
			return c.errorf(member, "compiler: unsupported class member %T", member)
		}
	}

	if tmpl.Ctor == nil {
		ctor, err := c.compileDefaultConstructor(tmpl.HasSuper, ln)
		if err != nil {
			return err
		}
		tmpl.Ctor = ctor
	}

	fieldsChunk, err := c.compileFieldsChunk("<fields>", instanceFields)
	if err != nil {
		return err
	}
	tmpl.Fields = fieldsChunk

	staticChunk, err := c.compileStaticChunk("<static-fields>", staticInits)
	if err != nil {
		return err
	}
	tmpl.StaticFields = staticChunk

	idx := c.addConstant(tmpl)
	c.emitOpIndex(bytecode.OpNewClass, idx, ln)
	return nil
}

func (c *Compiler) compileClassMethod(tmpl *bytecode.ClassTemplate, m *ast.MethodDefinition) error {
	if m.Key.Kind == ast.KeyComputed {
		return c.errorf(m, "compiler: computed method names are unsupported")
	}
	name := m.Key.Name

	if m.Kind == ast.MethodConstructor {
		chunk, err := c.compileFunctionBody(name, m.Function.Params, m.Function.Body, m.Generator, m.Async)
		if err != nil {
			return err
		}
		tmpl.Ctor = chunk
		return nil
	}

	chunk, err := c.compileFunctionBody(name, m.Function.Params, m.Function.Body, m.Generator, m.Async)
	if err != nil {
		return err
	}

	switch {
	case m.Kind == ast.MethodGet && m.Static:
		tmpl.StaticGetters[name] = chunk
	case m.Kind == ast.MethodSet && m.Static:
		tmpl.StaticSetters[name] = chunk
	case m.Kind == ast.MethodGet:
		tmpl.Getters[name] = chunk
	case m.Kind == ast.MethodSet:
		tmpl.Setters[name] = chunk
	case m.Static:
		tmpl.StaticMethods[name] = chunk
	default:
		tmpl.Methods[name] = chunk
	}
	return nil
}

// compileDefaultConstructor synthesizes `constructor() {}` (no super) or
// `constructor(...args) { super(...args); }` (HasSuper), the standard
// implicit-constructor forms, built as real AST so it reuses the normal
// rest-parameter and super-call lowering paths rather than hand-rolled
// bytecode.
func (c *Compiler) compileDefaultConstructor(hasSuper bool, ln uint32) (*bytecode.Chunk, error) {
	sp := diag.Span{Start: diag.Location{Line: ln}, End: diag.Location{Line: ln}}
	if !hasSuper {
		body := &ast.BlockStatement{StmtBase: ast.NewStmtBase(sp)}
		return c.compileFunctionBody("constructor", nil, body, false, false)
	}

	argsParam := &ast.RestElement{
		PatBase:  ast.NewPatBase(sp),
		Argument: &ast.Identifier{PatBase: ast.NewPatBase(sp), Name: "args"},
	}
	superCall := &ast.CallExpression{
		ExprBase: ast.NewExprBase(sp),
		Callee:   &ast.SuperExpression{ExprBase: ast.NewExprBase(sp)},
		Args: []ast.ArrayElement{
			{Expr: &ast.IdentifierReference{ExprBase: ast.NewExprBase(sp), Name: "args"}, Spread: true},
		},
	}
	body := &ast.BlockStatement{
		StmtBase: ast.NewStmtBase(sp),
		Body: []ast.Statement{
			&ast.ExpressionStatement{StmtBase: ast.NewStmtBase(sp), Expr: superCall},
		},
	}
	return c.compileFunctionBody("constructor", []ast.Pattern{argsParam}, body, false, false)
}

// compileFieldsChunk compiles a sequence of instance-field initializers
// into one chunk, run with `this` bound to the fresh instance.
func (c *Compiler) compileFieldsChunk(name string, fields []fieldInit) (*bytecode.Chunk, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	fc := c.childFunction(name, false, false)
	fc.beginScope()
	for _, f := range fields {
		if err := fc.emitFieldAssign(f); err != nil {
			return nil, err
		}
	}
	fc.emit(bytecode.OpUndefined, 0)
	fc.emit(bytecode.OpReturn, 0)
	fc.chunk.NumLocals = uint16(len(fc.locals))
	fc.chunk.NumUpvalues = uint8(len(fc.upvalues))
	fc.chunk.Upvalues = fc.upvalues
	return fc.chunk, nil
}

// compileStaticChunk compiles static field initializers and static
// blocks, in declaration order, into one chunk run with `this` bound to
// the class object itself.
func (c *Compiler) compileStaticChunk(name string, inits []any) (*bytecode.Chunk, error) {
	if len(inits) == 0 {
		return nil, nil
	}
	fc := c.childFunction(name, false, false)
	fc.beginScope()
	for _, init := range inits {
		switch v := init.(type) {
		case fieldInit:
			if err := fc.emitFieldAssign(v); err != nil {
				return nil, err
			}
		case *ast.BlockStatement:
			if err := fc.hoistDeclarations(v.Body); err != nil {
				return nil, err
			}
			for _, stmt := range v.Body {
				if err := fc.compileStatement(stmt); err != nil {
					return nil, err
				}
			}
		}
	}
	fc.emit(bytecode.OpUndefined, 0)
	fc.emit(bytecode.OpReturn, 0)
	fc.chunk.NumLocals = uint16(len(fc.locals))
	fc.chunk.NumUpvalues = uint8(len(fc.upvalues))
	fc.chunk.Upvalues = fc.upvalues
	return fc.chunk, nil
}

// emitFieldAssign emits `this[key] = value` (or `= undefined`) directly,
// rather than building it as AST: field initializers have no natural
// Pattern/Expression target to reuse beyond the property-key/value pair
// already in hand.
func (c *Compiler) emitFieldAssign(f fieldInit) error {
	c.emit(bytecode.OpLoadThis, 0)
	if err := c.compilePropertyKey(f.key, f.computed, 0); err != nil {
		return err
	}
	if f.value != nil {
		if err := c.compileExpression(f.value); err != nil {
			return err
		}
	} else {
		c.emit(bytecode.OpUndefined, 0)
	}
	c.emit(bytecode.OpSetProperty, 0)
	c.emit(bytecode.OpPop, 0)
	return nil
}
