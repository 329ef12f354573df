package parser

import (
	"github.com/qsjs/quicksilver/internal/ast"
	"github.com/qsjs/quicksilver/internal/lexer"
)

// parseStatement dispatches on the current token to the statement-level
// parse function responsible for it.
func (p *Parser) parseStatement() (ast.Statement, error) {
	switch p.peek() {
	case lexer.LeftBrace:
		return p.parseBlockStatement()
	case lexer.Semicolon:
		start := p.location()
		p.advance()
		return &ast.EmptyStatement{StmtBase: ast.NewStmtBase(p.span(start))}, nil
	case lexer.KeywordTok:
		switch p.current().Keyword {
		case lexer.KwVar:
			return p.parseVariableDeclaration(ast.VarVar)
		case lexer.KwLet:
			return p.parseVariableDeclaration(ast.VarLet)
		case lexer.KwConst:
			return p.parseVariableDeclaration(ast.VarConst)
		case lexer.KwFunction:
			return p.parseFunctionDeclaration()
		case lexer.KwAsync:
			if p.peekAt(1) == lexer.KeywordTok && p.tokens[p.pos+1].Keyword == lexer.KwFunction {
				return p.parseFunctionDeclaration()
			}
		case lexer.KwClass:
			return p.parseClassDeclaration()
		case lexer.KwIf:
			return p.parseIfStatement()
		case lexer.KwWhile:
			return p.parseWhileStatement()
		case lexer.KwDo:
			return p.parseDoWhileStatement()
		case lexer.KwFor:
			return p.parseForStatement()
		case lexer.KwSwitch:
			return p.parseSwitchStatement()
		case lexer.KwBreak:
			return p.parseBreakStatement()
		case lexer.KwContinue:
			return p.parseContinueStatement()
		case lexer.KwReturn:
			return p.parseReturnStatement()
		case lexer.KwThrow:
			return p.parseThrowStatement()
		case lexer.KwTry:
			return p.parseTryStatement()
		case lexer.KwDebugger:
			start := p.location()
			p.advance()
			p.consumeSemicolon()
			return &ast.DebuggerStatement{StmtBase: ast.NewStmtBase(p.span(start))}, nil
		case lexer.KwImport:
			return p.parseImportDeclaration()
		case lexer.KwExport:
			return p.parseExportDeclaration()
		}
	case lexer.Identifier:
		if p.peekAt(1) == lexer.Colon {
			return p.parseLabeledStatement()
		}
	}

	return p.parseExpressionStatement()
}

func (p *Parser) parseLabeledStatement() (ast.Statement, error) {
	start := p.location()
	label, err := p.parseIdentifier()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.Colon); err != nil {
		return nil, err
	}
	body, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	return &ast.LabeledStatement{
		StmtBase: ast.NewStmtBase(p.span(start)),
		Label:    *label,
		Body:     body,
	}, nil
}

func (p *Parser) parseVariableDeclaration(kind ast.VariableKind) (ast.Statement, error) {
	decl, err := p.parseVariableDeclarationNoSemi(kind)
	if err != nil {
		return nil, err
	}
	p.consumeSemicolon()
	return decl, nil
}

// parseVariableDeclarationNoSemi parses `var/let/const decl, decl, ...`
// without consuming a trailing semicolon, so for-statement init clauses can
// reuse it.
func (p *Parser) parseVariableDeclarationNoSemi(kind ast.VariableKind) (*ast.VariableDeclaration, error) {
	start := p.location()
	p.advance() // var/let/const

	var declarations []*ast.VariableDeclarator
	for {
		decl, err := p.parseVariableDeclarator(kind)
		if err != nil {
			return nil, err
		}
		declarations = append(declarations, decl)

		if !p.consume(lexer.Comma) {
			break
		}
	}

	return &ast.VariableDeclaration{
		StmtBase:     ast.NewStmtBase(p.span(start)),
		Kind:         kind,
		Declarations: declarations,
	}, nil
}

func (p *Parser) parseVariableDeclarator(kind ast.VariableKind) (*ast.VariableDeclarator, error) {
	start := p.location()
	id, err := p.parseBindingPattern()
	if err != nil {
		return nil, err
	}

	var init ast.Expression
	if p.consume(lexer.Equals) {
		init, err = p.parseAssignmentExpression()
		if err != nil {
			return nil, err
		}
	} else if kind == ast.VarConst && !p.isKeyword(lexer.KwIn) && !p.isKeyword(lexer.KwOf) {
		return nil, p.errorf(start, "const declarations must be initialized")
	}

	return &ast.VariableDeclarator{
		Base: ast.Base{SpanVal: p.span(start)},
		ID:   id,
		Init: init,
	}, nil
}

func (p *Parser) parseIfStatement() (ast.Statement, error) {
	start := p.location()
	if _, err := p.expectKeyword(lexer.KwIf); err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.LeftParen); err != nil {
		return nil, err
	}
	test, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.RightParen); err != nil {
		return nil, err
	}

	consequent, err := p.parseStatement()
	if err != nil {
		return nil, err
	}

	var alternate ast.Statement
	if p.consumeKeyword(lexer.KwElse) {
		alternate, err = p.parseStatement()
		if err != nil {
			return nil, err
		}
	}

	return &ast.IfStatement{
		StmtBase:   ast.NewStmtBase(p.span(start)),
		Test:       test,
		Consequent: consequent,
		Alternate:  alternate,
	}, nil
}

func (p *Parser) parseWhileStatement() (ast.Statement, error) {
	start := p.location()
	if _, err := p.expectKeyword(lexer.KwWhile); err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.LeftParen); err != nil {
		return nil, err
	}
	test, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.RightParen); err != nil {
		return nil, err
	}

	oldInLoop := p.flags.inLoop
	p.flags.inLoop = true
	body, err := p.parseStatement()
	p.flags.inLoop = oldInLoop
	if err != nil {
		return nil, err
	}

	return &ast.WhileStatement{StmtBase: ast.NewStmtBase(p.span(start)), Test: test, Body: body}, nil
}

func (p *Parser) parseDoWhileStatement() (ast.Statement, error) {
	start := p.location()
	if _, err := p.expectKeyword(lexer.KwDo); err != nil {
		return nil, err
	}

	oldInLoop := p.flags.inLoop
	p.flags.inLoop = true
	body, err := p.parseStatement()
	p.flags.inLoop = oldInLoop
	if err != nil {
		return nil, err
	}

	if _, err := p.expectKeyword(lexer.KwWhile); err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.LeftParen); err != nil {
		return nil, err
	}
	test, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.RightParen); err != nil {
		return nil, err
	}
	p.consumeSemicolon()

	return &ast.DoWhileStatement{StmtBase: ast.NewStmtBase(p.span(start)), Body: body, Test: test}, nil
}

func (p *Parser) parseForStatement() (ast.Statement, error) {
	start := p.location()
	if _, err := p.expectKeyword(lexer.KwFor); err != nil {
		return nil, err
	}
	isAwait := p.consumeKeyword(lexer.KwAwait)
	if _, err := p.expect(lexer.LeftParen); err != nil {
		return nil, err
	}

	var init ast.Node
	switch {
	case p.peek() == lexer.Semicolon:
		init = nil
	case p.isKeyword(lexer.KwVar):
		decl, err := p.parseVariableDeclarationNoSemi(ast.VarVar)
		if err != nil {
			return nil, err
		}
		init = decl
	case p.isKeyword(lexer.KwLet):
		decl, err := p.parseVariableDeclarationNoSemi(ast.VarLet)
		if err != nil {
			return nil, err
		}
		init = decl
	case p.isKeyword(lexer.KwConst):
		decl, err := p.parseVariableDeclarationNoSemi(ast.VarConst)
		if err != nil {
			return nil, err
		}
		init = decl
	default:
		expr, err := p.parseExpressionNoIn()
		if err != nil {
			return nil, err
		}
		init = expr
	}

	if p.consumeKeyword(lexer.KwIn) {
		left, err := p.forInOfLeft(init, "for-in")
		if err != nil {
			return nil, err
		}
		right, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.RightParen); err != nil {
			return nil, err
		}

		oldInLoop := p.flags.inLoop
		p.flags.inLoop = true
		body, err := p.parseStatement()
		p.flags.inLoop = oldInLoop
		if err != nil {
			return nil, err
		}

		return &ast.ForInOfStatement{
			StmtBase: ast.NewStmtBase(p.span(start)),
			Kind:     ast.ForIn,
			Left:     left,
			Right:    right,
			Body:     body,
		}, nil
	}

	if p.consumeKeyword(lexer.KwOf) {
		left, err := p.forInOfLeft(init, "for-of")
		if err != nil {
			return nil, err
		}
		right, err := p.parseAssignmentExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.RightParen); err != nil {
			return nil, err
		}

		oldInLoop := p.flags.inLoop
		p.flags.inLoop = true
		body, err := p.parseStatement()
		p.flags.inLoop = oldInLoop
		if err != nil {
			return nil, err
		}

		return &ast.ForInOfStatement{
			StmtBase: ast.NewStmtBase(p.span(start)),
			Kind:     ast.ForOf,
			Left:     left,
			Right:    right,
			Body:     body,
			Await:    isAwait,
		}, nil
	}

	if _, err := p.expect(lexer.Semicolon); err != nil {
		return nil, err
	}

	var test ast.Expression
	if p.peek() != lexer.Semicolon {
		t, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		test = t
	}
	if _, err := p.expect(lexer.Semicolon); err != nil {
		return nil, err
	}

	var update ast.Expression
	if p.peek() != lexer.RightParen {
		u, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		update = u
	}
	if _, err := p.expect(lexer.RightParen); err != nil {
		return nil, err
	}

	oldInLoop := p.flags.inLoop
	p.flags.inLoop = true
	body, err := p.parseStatement()
	p.flags.inLoop = oldInLoop
	if err != nil {
		return nil, err
	}

	return &ast.ForStatement{
		StmtBase: ast.NewStmtBase(p.span(start)),
		Init:     init,
		Test:     test,
		Update:   update,
		Body:     body,
	}, nil
}

// forInOfLeft normalizes a for-statement's already-parsed init clause into
// the Node a for-in/for-of statement's Left expects: a VariableDeclaration
// or a Pattern (an expression is treated as an assignment target).
func (p *Parser) forInOfLeft(init ast.Node, kind string) (ast.Node, error) {
	switch v := init.(type) {
	case *ast.VariableDeclaration:
		return v, nil
	case ast.Expression:
		return exprToPattern(v), nil
	default:
		return nil, p.errorf(p.location(), "%s statement requires a left-hand side", kind)
	}
}

// exprToPattern recasts an already-parsed expression for use as a for-in/
// for-of left-hand side: a plain identifier becomes a binding Identifier,
// anything else (member expressions, destructuring targets) is kept as the
// expression it already is — Left's type accepts any Node.
func exprToPattern(expr ast.Expression) ast.Node {
	if ref, ok := expr.(*ast.IdentifierReference); ok {
		return &ast.Identifier{PatBase: ast.NewPatBase(ref.Span()), Name: ref.Name}
	}
	return expr
}

func (p *Parser) parseSwitchStatement() (ast.Statement, error) {
	start := p.location()
	if _, err := p.expectKeyword(lexer.KwSwitch); err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.LeftParen); err != nil {
		return nil, err
	}
	discriminant, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.RightParen); err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.LeftBrace); err != nil {
		return nil, err
	}

	oldInSwitch := p.flags.inSwitch
	p.flags.inSwitch = true

	var cases []*ast.SwitchCase
	for !p.consume(lexer.RightBrace) {
		c, err := p.parseSwitchCase()
		if err != nil {
			p.flags.inSwitch = oldInSwitch
			return nil, err
		}
		cases = append(cases, c)
	}

	p.flags.inSwitch = oldInSwitch

	return &ast.SwitchStatement{
		StmtBase:     ast.NewStmtBase(p.span(start)),
		Discriminant: discriminant,
		Cases:        cases,
	}, nil
}

func (p *Parser) parseSwitchCase() (*ast.SwitchCase, error) {
	start := p.location()

	var test ast.Expression
	if p.consumeKeyword(lexer.KwCase) {
		t, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		test = t
	} else if _, err := p.expectKeyword(lexer.KwDefault); err != nil {
		return nil, err
	}

	if _, err := p.expect(lexer.Colon); err != nil {
		return nil, err
	}

	var consequent []ast.Statement
	for !(p.isKeyword(lexer.KwCase) || p.isKeyword(lexer.KwDefault) || p.peek() == lexer.RightBrace) {
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		consequent = append(consequent, stmt)
	}

	return &ast.SwitchCase{
		Base:       ast.Base{SpanVal: p.span(start)},
		Test:       test,
		Consequent: consequent,
	}, nil
}

func (p *Parser) parseBreakStatement() (ast.Statement, error) {
	start := p.location()
	if _, err := p.expectKeyword(lexer.KwBreak); err != nil {
		return nil, err
	}

	var label *ast.Identifier
	if !p.consumeSemicolon() && p.peek() == lexer.Identifier {
		id, err := p.parseIdentifier()
		if err != nil {
			return nil, err
		}
		label = id
	}
	p.consumeSemicolon()

	if label == nil && !p.flags.inLoop && !p.flags.inSwitch {
		return nil, p.errorf(start, "illegal break statement")
	}

	return &ast.BreakStatement{StmtBase: ast.NewStmtBase(p.span(start)), Label: label}, nil
}

func (p *Parser) parseContinueStatement() (ast.Statement, error) {
	start := p.location()
	if _, err := p.expectKeyword(lexer.KwContinue); err != nil {
		return nil, err
	}

	var label *ast.Identifier
	if !p.consumeSemicolon() && p.peek() == lexer.Identifier {
		id, err := p.parseIdentifier()
		if err != nil {
			return nil, err
		}
		label = id
	}
	p.consumeSemicolon()

	if !p.flags.inLoop {
		return nil, p.errorf(start, "illegal continue statement")
	}

	return &ast.ContinueStatement{StmtBase: ast.NewStmtBase(p.span(start)), Label: label}, nil
}

func (p *Parser) parseReturnStatement() (ast.Statement, error) {
	start := p.location()
	if _, err := p.expectKeyword(lexer.KwReturn); err != nil {
		return nil, err
	}

	if !p.flags.inFunction {
		return nil, p.errorf(start, "illegal return statement")
	}

	var argument ast.Expression
	if !p.consumeSemicolon() {
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		p.consumeSemicolon()
		argument = expr
	}

	return &ast.ReturnStatement{StmtBase: ast.NewStmtBase(p.span(start)), Argument: argument}, nil
}

func (p *Parser) parseThrowStatement() (ast.Statement, error) {
	start := p.location()
	if _, err := p.expectKeyword(lexer.KwThrow); err != nil {
		return nil, err
	}

	argument, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	p.consumeSemicolon()

	return &ast.ThrowStatement{StmtBase: ast.NewStmtBase(p.span(start)), Argument: argument}, nil
}

func (p *Parser) parseTryStatement() (ast.Statement, error) {
	start := p.location()
	if _, err := p.expectKeyword(lexer.KwTry); err != nil {
		return nil, err
	}

	block, err := p.parseBlockStatement()
	if err != nil {
		return nil, err
	}

	var handler *ast.CatchClause
	if p.consumeKeyword(lexer.KwCatch) {
		catchStart := p.location()

		var param ast.Pattern
		if p.consume(lexer.LeftParen) {
			pat, err := p.parseBindingPattern()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(lexer.RightParen); err != nil {
				return nil, err
			}
			param = pat
		}

		body, err := p.parseBlockStatement()
		if err != nil {
			return nil, err
		}

		handler = &ast.CatchClause{Base: ast.Base{SpanVal: p.span(catchStart)}, Param: param, Body: body}
	}

	var finalizer *ast.BlockStatement
	if p.consumeKeyword(lexer.KwFinally) {
		f, err := p.parseBlockStatement()
		if err != nil {
			return nil, err
		}
		finalizer = f
	}

	if handler == nil && finalizer == nil {
		return nil, p.errorf(start, "try statement must have catch or finally")
	}

	return &ast.TryStatement{
		StmtBase:  ast.NewStmtBase(p.span(start)),
		Block:     block,
		Handler:   handler,
		Finalizer: finalizer,
	}, nil
}

func (p *Parser) parseExpressionStatement() (ast.Statement, error) {
	start := p.location()
	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	p.consumeSemicolon()

	return &ast.ExpressionStatement{StmtBase: ast.NewStmtBase(p.span(start)), Expr: expr}, nil
}
