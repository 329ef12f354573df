package parser

import (
	"github.com/qsjs/quicksilver/internal/ast"
	"github.com/qsjs/quicksilver/internal/diag"
	"github.com/qsjs/quicksilver/internal/lexer"
)

// parseFunctionDeclaration parses `[async] function [*] name(...) { ... }`
// as a statement; the name is mandatory here (unlike a function expression).
func (p *Parser) parseFunctionDeclaration() (ast.Statement, error) {
	start := p.location()
	id, params, body, isGenerator, isAsync, err := p.parseFunctionCore(true)
	if err != nil {
		return nil, err
	}
	return &ast.FunctionDeclaration{
		StmtBase:  ast.NewStmtBase(p.span(start)),
		ID:        id,
		Params:    params,
		Body:      body,
		Generator: isGenerator,
		Async:     isAsync,
	}, nil
}

// parseFunction parses a function EXPRESSION. requireName governs whether
// an identifier is mandatory; every current caller passes false.
// `export default function` does not come through here: it is parsed by
// parseFunctionDeclaration, so it requires a name.
func (p *Parser) parseFunction(requireName bool) (*ast.FunctionExpression, error) {
	start := p.location()
	id, params, body, isGenerator, isAsync, err := p.parseFunctionCore(requireName)
	if err != nil {
		return nil, err
	}
	return &ast.FunctionExpression{
		ExprBase:  ast.NewExprBase(p.span(start)),
		ID:        id,
		Params:    params,
		Body:      body,
		Generator: isGenerator,
		Async:     isAsync,
	}, nil
}

func (p *Parser) parseFunctionCore(requireName bool) (id *ast.Identifier, params []ast.Pattern, body *ast.BlockStatement, isGenerator, isAsync bool, err error) {
	start := p.location()
	isAsync = p.consumeKeyword(lexer.KwAsync)
	if _, err = p.expectKeyword(lexer.KwFunction); err != nil {
		return
	}
	isGenerator = p.consume(lexer.Star)

	if p.peek() == lexer.Identifier {
		id, err = p.parseIdentifier()
		if err != nil {
			return
		}
	} else if requireName {
		err = p.errorf(p.location(), "function declaration requires a name")
		return
	}

	if _, err = p.expect(lexer.LeftParen); err != nil {
		return
	}
	params, err = p.parseFunctionParams()
	if err != nil {
		return
	}
	if _, err = p.expect(lexer.RightParen); err != nil {
		return
	}

	if err = p.checkDuplicateParams(params, start); err != nil {
		return
	}

	oldFlags := p.flags
	p.flags.inFunction = true
	p.flags.inAsync = isAsync
	p.flags.inGenerator = isGenerator
	p.flags.inLoop = false
	p.flags.inSwitch = false

	body, err = p.parseFunctionBlockStatement(params, start)
	p.flags = oldFlags
	return
}

func (p *Parser) parseFunctionParams() ([]ast.Pattern, error) {
	var params []ast.Pattern
	for p.peek() != lexer.RightParen {
		if p.consume(lexer.DotDotDot) {
			pat, err := p.parseBindingPattern()
			if err != nil {
				return nil, err
			}
			rest := &ast.RestElement{PatBase: ast.NewPatBase(pat.Span()), Argument: pat}
			params = append(params, rest)
			break
		}

		param, err := p.parseBindingPatternWithDefault()
		if err != nil {
			return nil, err
		}
		params = append(params, param)

		if !p.consume(lexer.Comma) {
			break
		}
	}
	return params, nil
}

// checkDuplicateParams rejects repeated parameter names in strict mode,
// re-run once a function body's "use strict" directive flips strict on
// (since params were parsed before the body was seen).
func (p *Parser) checkDuplicateParams(params []ast.Pattern, start diag.Location) error {
	if !p.flags.strict {
		return nil
	}
	seen := make(map[string]bool)
	for _, param := range params {
		for _, name := range boundNames(param) {
			if seen[name] {
				return p.errorf(start, "duplicate parameter name %q not allowed in strict mode", name)
			}
			seen[name] = true
		}
	}
	return nil
}

// boundNames collects every identifier a pattern binds, recursing through
// array/object destructuring, defaults, and rest elements.
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
	default:
		return nil
	}
}

func (p *Parser) parseBlockStatement() (*ast.BlockStatement, error) {
	start := p.location()
	if _, err := p.expect(lexer.LeftBrace); err != nil {
		return nil, err
	}

	var body []ast.Statement
	for !p.consume(lexer.RightBrace) {
		if p.isEOF() {
			return nil, p.errorf(p.location(), "unexpected end of input")
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		body = append(body, stmt)
	}

	return &ast.BlockStatement{StmtBase: ast.NewStmtBase(p.span(start)), Body: body}, nil
}

// parseFunctionBlockStatement parses a function body, detecting a leading
// "use strict" directive and re-validating params for duplicates once
// strict mode is known to be active (it may not have been when params were
// first parsed).
func (p *Parser) parseFunctionBlockStatement(params []ast.Pattern, funcStart diag.Location) (*ast.BlockStatement, error) {
	start := p.location()
	if _, err := p.expect(lexer.LeftBrace); err != nil {
		return nil, err
	}

	var body []ast.Statement

	if p.checkUseStrictDirective() {
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		body = append(body, stmt)

		if !p.flags.strict {
			p.flags.strict = true
			if err := p.checkDuplicateParams(params, funcStart); err != nil {
				return nil, err
			}
		}
	}

	for !p.consume(lexer.RightBrace) {
		if p.isEOF() {
			return nil, p.errorf(p.location(), "unexpected end of input")
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		body = append(body, stmt)
	}

	return &ast.BlockStatement{StmtBase: ast.NewStmtBase(p.span(start)), Body: body}, nil
}
