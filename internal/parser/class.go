package parser

import (
	"github.com/qsjs/quicksilver/internal/ast"
	"github.com/qsjs/quicksilver/internal/lexer"
)

func (p *Parser) parseClassDeclaration() (ast.Statement, error) {
	start := p.location()
	id, superClass, body, err := p.parseClassCore(true)
	if err != nil {
		return nil, err
	}
	return &ast.ClassDeclaration{
		StmtBase:   ast.NewStmtBase(p.span(start)),
		ID:         id,
		SuperClass: superClass,
		Body:       body,
	}, nil
}

func (p *Parser) parseClass(requireName bool) (ast.Expression, error) {
	start := p.location()
	id, superClass, body, err := p.parseClassCore(requireName)
	if err != nil {
		return nil, err
	}
	return &ast.ClassExpression{
		ExprBase:   ast.NewExprBase(p.span(start)),
		ID:         id,
		SuperClass: superClass,
		Body:       body,
	}, nil
}

func (p *Parser) parseClassCore(requireName bool) (id *ast.Identifier, superClass ast.Expression, body []ast.ClassMember, err error) {
	if _, err = p.expectKeyword(lexer.KwClass); err != nil {
		return
	}

	if p.peek() == lexer.Identifier {
		id, err = p.parseIdentifier()
		if err != nil {
			return
		}
	} else if requireName {
		err = p.errorf(p.location(), "class declaration requires a name")
		return
	}

	if p.consumeKeyword(lexer.KwExtends) {
		superClass, err = p.parseLeftHandSideExpression()
		if err != nil {
			return
		}
	}

	body, err = p.parseClassBody()
	return
}

func (p *Parser) parseClassBody() ([]ast.ClassMember, error) {
	if _, err := p.expect(lexer.LeftBrace); err != nil {
		return nil, err
	}

	var body []ast.ClassMember
	for !p.consume(lexer.RightBrace) {
		if p.consume(lexer.Semicolon) {
			continue
		}
		elem, err := p.parseClassElement()
		if err != nil {
			return nil, err
		}
		body = append(body, elem)
	}
	return body, nil
}

func (p *Parser) parseClassElement() (ast.ClassMember, error) {
	start := p.location()
	isStatic := p.consumeKeyword(lexer.KwStatic)

	if isStatic && p.peek() == lexer.LeftBrace {
		block, err := p.parseBlockStatement()
		if err != nil {
			return nil, err
		}
		return &ast.StaticBlock{ClassMemberBase: ast.NewClassMemberBase(p.span(start)), Body: block}, nil
	}

	isAsync := p.consumeKeyword(lexer.KwAsync)
	isGenerator := p.consume(lexer.Star)

	kind := ast.MethodNormal
	if p.isKeyword(lexer.KwGet) && p.peekAt(1) != lexer.LeftParen {
		p.advance()
		kind = ast.MethodGet
	} else if p.isKeyword(lexer.KwSet) && p.peekAt(1) != lexer.LeftParen {
		p.advance()
		kind = ast.MethodSet
	}

	computed := p.peek() == lexer.LeftBracket
	key, err := p.parsePropertyKey()
	if err != nil {
		return nil, err
	}

	if !computed && key.Kind == ast.KeyIdentifier && key.Name == "constructor" {
		kind = ast.MethodConstructor
	}

	if p.peek() == lexer.LeftParen {
		p.advance()
		params, err := p.parseFunctionParams()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.RightParen); err != nil {
			return nil, err
		}

		oldFlags := p.flags
		p.flags.inFunction = true
		p.flags.inAsync = isAsync
		p.flags.inGenerator = isGenerator
		body, err := p.parseBlockStatement()
		p.flags = oldFlags
		if err != nil {
			return nil, err
		}

		fn := &ast.FunctionExpression{
			ExprBase: ast.NewExprBase(p.span(start)), Params: params, Body: body,
			Generator: isGenerator, Async: isAsync,
		}
		return &ast.MethodDefinition{
			ClassMemberBase: ast.NewClassMemberBase(p.span(start)),
			Key:             key,
			Kind:            kind,
			Static:          isStatic,
			Generator:       isGenerator,
			Async:           isAsync,
			Function:        fn,
		}, nil
	}

	var value ast.Expression
	if p.consume(lexer.Equals) {
		value, err = p.parseAssignmentExpression()
		if err != nil {
			return nil, err
		}
	}
	p.consumeSemicolon()

	return &ast.PropertyDefinition{
		ClassMemberBase: ast.NewClassMemberBase(p.span(start)),
		Key:             key,
		Static:          isStatic,
		Value:           value,
	}, nil
}
