package parser

import (
	"math/big"
	"strings"

	"github.com/qsjs/quicksilver/internal/ast"
	"github.com/qsjs/quicksilver/internal/lexer"
)

// parseExpression parses a full expression, including top-level commas
// (SequenceExpression).
func (p *Parser) parseExpression() (ast.Expression, error) {
	return p.parseSequenceExpression(true)
}

func (p *Parser) parseExpressionNoIn() (ast.Expression, error) {
	return p.parseSequenceExpression(false)
}

func (p *Parser) parseSequenceExpression(allowIn bool) (ast.Expression, error) {
	start := p.location()
	expr, err := p.parseAssignmentExpressionImpl(allowIn)
	if err != nil {
		return nil, err
	}
	if p.peek() == lexer.Comma {
		exprs := []ast.Expression{expr}
		for p.consume(lexer.Comma) {
			next, err := p.parseAssignmentExpressionImpl(allowIn)
			if err != nil {
				return nil, err
			}
			exprs = append(exprs, next)
		}
		return &ast.SequenceExpression{
			ExprBase:    ast.NewExprBase(p.span(start)),
			Expressions: exprs,
		}, nil
	}
	return expr, nil
}

func (p *Parser) parseAssignmentExpression() (ast.Expression, error) {
	return p.parseAssignmentExpressionImpl(true)
}

func (p *Parser) parseAssignmentExpressionNoIn() (ast.Expression, error) {
	return p.parseAssignmentExpressionImpl(false)
}

func (p *Parser) parseAssignmentExpressionImpl(allowIn bool) (ast.Expression, error) {
	if arrow, err := p.tryParseArrowFunction(); err != nil {
		return nil, err
	} else if arrow != nil {
		return arrow, nil
	}

	start := p.location()
	var left ast.Expression
	var err error
	if allowIn {
		left, err = p.parseConditionalExpression()
	} else {
		left, err = p.parseConditionalExpressionNoIn()
	}
	if err != nil {
		return nil, err
	}

	if p.peek().IsAssignmentOperator() {
		op, err := p.parseAssignmentOperator()
		if err != nil {
			return nil, err
		}
		right, err := p.parseAssignmentExpressionImpl(allowIn)
		if err != nil {
			return nil, err
		}
		if !isValidAssignmentTarget(left) {
			return nil, p.errorf(p.location(), "invalid left-hand side in assignment")
		}
		return &ast.AssignmentExpression{
			ExprBase: ast.NewExprBase(p.span(start)),
			Operator: op,
			Left:     left,
			Right:    right,
		}, nil
	}

	return left, nil
}

// isValidAssignmentTarget reports whether expr may appear on the left of an
// assignment: identifiers, member accesses, or array/object literals used
// as destructuring targets.
func isValidAssignmentTarget(expr ast.Expression) bool {
	switch expr.(type) {
	case *ast.IdentifierReference, *ast.MemberExpression, *ast.ArrayExpression, *ast.ObjectExpression:
		return true
	default:
		return false
	}
}

// tryParseArrowFunction speculatively parses `(params) => body` or
// `ident => body`, rewinding the token position if the `=>` never
// materializes. Must run before conditional-expression parsing since both
// grammars start with the same tokens.
func (p *Parser) tryParseArrowFunction() (ast.Expression, error) {
	startPos := p.pos
	start := p.location()

	isAsync := p.isKeyword(lexer.KwAsync) && p.peekAt(1) != lexer.Arrow
	if isAsync {
		p.advance()
	}

	var params []ast.Pattern
	switch p.peek() {
	case lexer.Identifier:
		id, err := p.parseIdentifier()
		if err != nil {
			p.pos = startPos
			return nil, nil
		}
		if p.peek() != lexer.Arrow {
			p.pos = startPos
			return nil, nil
		}
		params = []ast.Pattern{id}
	case lexer.LeftParen:
		p.advance()
		ps, err := p.parseFunctionParams()
		if err != nil {
			p.pos = startPos
			return nil, nil
		}
		if _, err := p.expect(lexer.RightParen); err != nil || p.peek() != lexer.Arrow {
			p.pos = startPos
			return nil, nil
		}
		params = ps
	default:
		p.pos = startPos
		return nil, nil
	}

	if err := p.checkDuplicateParams(params, start); err != nil {
		return nil, err
	}

	if _, err := p.expect(lexer.Arrow); err != nil {
		p.pos = startPos
		return nil, nil
	}

	oldFlags := p.flags
	p.flags.inFunction = true
	p.flags.inAsync = isAsync

	var body ast.Node
	if p.peek() == lexer.LeftBrace {
		block, err := p.parseFunctionBlockStatement(params, start)
		if err != nil {
			p.flags = oldFlags
			return nil, err
		}
		body = block
	} else {
		expr, err := p.parseAssignmentExpression()
		if err != nil {
			p.flags = oldFlags
			return nil, err
		}
		body = expr
	}
	p.flags = oldFlags

	return &ast.ArrowFunctionExpression{
		ExprBase: ast.NewExprBase(p.span(start)),
		Params:   params,
		Body:     body,
		Async:    isAsync,
	}, nil
}

func (p *Parser) parseAssignmentOperator() (ast.AssignmentOperator, error) {
	var op ast.AssignmentOperator
	switch p.peek() {
	case lexer.Equals:
		op = ast.AssignEquals
	case lexer.PlusEquals:
		op = ast.AssignAdd
	case lexer.MinusEquals:
		op = ast.AssignSub
	case lexer.StarEquals:
		op = ast.AssignMul
	case lexer.SlashEquals:
		op = ast.AssignDiv
	case lexer.PercentEquals:
		op = ast.AssignMod
	case lexer.StarStarEquals:
		op = ast.AssignExp
	case lexer.LessLessEquals:
		op = ast.AssignLeftShift
	case lexer.GreaterGreaterEquals:
		op = ast.AssignRightShift
	case lexer.GreaterGreaterGreaterEquals:
		op = ast.AssignUnsignedRightShift
	case lexer.AmpersandEquals:
		op = ast.AssignBitAnd
	case lexer.PipeEquals:
		op = ast.AssignBitOr
	case lexer.CaretEquals:
		op = ast.AssignBitXor
	case lexer.AmpersandAmpersandEquals:
		op = ast.AssignLogicalAnd
	case lexer.PipePipeEquals:
		op = ast.AssignLogicalOr
	case lexer.QuestionQuestionEquals:
		op = ast.AssignNullish
	default:
		return 0, p.errorf(p.location(), "expected assignment operator")
	}
	p.advance()
	return op, nil
}

func (p *Parser) parseConditionalExpression() (ast.Expression, error) {
	return p.parseConditionalExpressionImpl(true)
}

func (p *Parser) parseConditionalExpressionNoIn() (ast.Expression, error) {
	return p.parseConditionalExpressionImpl(false)
}

func (p *Parser) parseConditionalExpressionImpl(allowIn bool) (ast.Expression, error) {
	start := p.location()
	test, err := p.parseBinaryExpression(allowIn, 0)
	if err != nil {
		return nil, err
	}

	if p.consume(lexer.Question) {
		consequent, err := p.parseAssignmentExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.Colon); err != nil {
			return nil, err
		}
		alternate, err := p.parseAssignmentExpressionImpl(allowIn)
		if err != nil {
			return nil, err
		}
		return &ast.ConditionalExpression{
			ExprBase:   ast.NewExprBase(p.span(start)),
			Test:       test,
			Consequent: consequent,
			Alternate:  alternate,
		}, nil
	}

	return test, nil
}

// parseBinaryExpression implements precedence climbing over the table in
// binaryPrecedence. Every operator recurses at prec+1 (left-associative)
// except `**`, which recurses at prec (right-associative per spec).
func (p *Parser) parseBinaryExpression(allowIn bool, minPrec int) (ast.Expression, error) {
	start := p.location()
	left, err := p.parseUnaryExpression()
	if err != nil {
		return nil, err
	}

	for {
		prec := p.binaryPrecedence(allowIn)
		if prec == 0 || prec < minPrec {
			break
		}

		isLogical := p.peek() == lexer.AmpersandAmpersand || p.peek() == lexer.PipePipe || p.peek() == lexer.QuestionQuestion
		nextMin := prec + 1
		if p.peek() == lexer.StarStar {
			nextMin = prec // right-associative
		}

		if isLogical {
			nullish := p.peek() == lexer.QuestionQuestion
			if err := p.checkNoMixedLogical(left, left.Span().Start == start, nullish); err != nil {
				return nil, err
			}
			op, err := p.parseLogicalOperator()
			if err != nil {
				return nil, err
			}
			rightStart := p.location()
			right, err := p.parseBinaryExpression(allowIn, nextMin)
			if err != nil {
				return nil, err
			}
			if err := p.checkNoMixedLogical(right, right.Span().Start == rightStart, nullish); err != nil {
				return nil, err
			}
			left = &ast.LogicalExpression{
				ExprBase: ast.NewExprBase(p.span(start)),
				Operator: op,
				Left:     left,
				Right:    right,
			}
		} else {
			op, err := p.parseBinaryOperator()
			if err != nil {
				return nil, err
			}
			right, err := p.parseBinaryExpression(allowIn, nextMin)
			if err != nil {
				return nil, err
			}
			left = &ast.BinaryExpression{
				ExprBase: ast.NewExprBase(p.span(start)),
				Operator: op,
				Left:     left,
				Right:    right,
			}
		}
	}

	return left, nil
}

// checkNoMixedLogical rejects `a ?? b || c`, `a || b ?? c`, `a ?? b && c`
// and the like without parentheses — `??` may not be mixed with `&&`/`||`
// at the same level, per the spec's Open Question resolution. side is one
// operand of a logical operator (nullish says whether that operator is
// `??`); bare says the operand's own span starts where its parse began, so
// it was not wrapped in parentheses. Parenthesized operands are allowed.
func (p *Parser) checkNoMixedLogical(side ast.Expression, bare, nullish bool) error {
	if logical, ok := side.(*ast.LogicalExpression); ok && bare {
		if (logical.Operator == ast.LogicalNullish) != nullish {
			return p.errorf(p.location(), "cannot mix '??' with '&&' or '||' without parentheses")
		}
	}
	return nil
}

func (p *Parser) binaryPrecedence(allowIn bool) int {
	switch p.peek() {
	case lexer.PipePipe, lexer.QuestionQuestion:
		return 4
	case lexer.AmpersandAmpersand:
		return 5
	case lexer.Pipe:
		return 6
	case lexer.Caret:
		return 7
	case lexer.Ampersand:
		return 8
	case lexer.EqualsEquals, lexer.BangEquals, lexer.EqualsEqualsEquals, lexer.BangEqualsEquals:
		return 9
	case lexer.Less, lexer.Greater, lexer.LessEquals, lexer.GreaterEquals:
		return 10
	case lexer.KeywordTok:
		if p.current().Keyword == lexer.KwInstanceof {
			return 10
		}
		if p.current().Keyword == lexer.KwIn && allowIn {
			return 10
		}
		return 0
	case lexer.LessLess, lexer.GreaterGreater, lexer.GreaterGreaterGreater:
		return 11
	case lexer.Plus, lexer.Minus:
		return 12
	case lexer.Star, lexer.Slash, lexer.Percent:
		return 13
	case lexer.StarStar:
		return 14
	default:
		return 0
	}
}

func (p *Parser) parseBinaryOperator() (ast.BinaryOperator, error) {
	var op ast.BinaryOperator
	switch p.peek() {
	case lexer.Plus:
		op = ast.BinAdd
	case lexer.Minus:
		op = ast.BinSub
	case lexer.Star:
		op = ast.BinMul
	case lexer.Slash:
		op = ast.BinDiv
	case lexer.Percent:
		op = ast.BinMod
	case lexer.StarStar:
		op = ast.BinExp
	case lexer.EqualsEquals:
		op = ast.BinEqual
	case lexer.BangEquals:
		op = ast.BinNotEqual
	case lexer.EqualsEqualsEquals:
		op = ast.BinStrictEqual
	case lexer.BangEqualsEquals:
		op = ast.BinStrictNotEqual
	case lexer.Less:
		op = ast.BinLess
	case lexer.LessEquals:
		op = ast.BinLessEq
	case lexer.Greater:
		op = ast.BinGreater
	case lexer.GreaterEquals:
		op = ast.BinGreaterEq
	case lexer.LessLess:
		op = ast.BinLeftShift
	case lexer.GreaterGreater:
		op = ast.BinRightShift
	case lexer.GreaterGreaterGreater:
		op = ast.BinUnsignedRightShift
	case lexer.Ampersand:
		op = ast.BinBitAnd
	case lexer.Pipe:
		op = ast.BinBitOr
	case lexer.Caret:
		op = ast.BinBitXor
	case lexer.KeywordTok:
		switch p.current().Keyword {
		case lexer.KwIn:
			op = ast.BinIn
		case lexer.KwInstanceof:
			op = ast.BinInstanceof
		default:
			return 0, p.errorf(p.location(), "expected binary operator")
		}
	default:
		return 0, p.errorf(p.location(), "expected binary operator")
	}
	p.advance()
	return op, nil
}

func (p *Parser) parseLogicalOperator() (ast.LogicalOperator, error) {
	var op ast.LogicalOperator
	switch p.peek() {
	case lexer.AmpersandAmpersand:
		op = ast.LogicalAnd
	case lexer.PipePipe:
		op = ast.LogicalOr
	case lexer.QuestionQuestion:
		op = ast.LogicalNullish
	default:
		return 0, p.errorf(p.location(), "expected logical operator")
	}
	p.advance()
	return op, nil
}

func (p *Parser) parseUnaryExpression() (ast.Expression, error) {
	start := p.location()

	if p.peek() == lexer.PlusPlus || p.peek() == lexer.MinusMinus {
		op := ast.UpdateIncrement
		if p.peek() == lexer.MinusMinus {
			op = ast.UpdateDecrement
		}
		p.advance()
		arg, err := p.parseUnaryExpression()
		if err != nil {
			return nil, err
		}
		return &ast.UpdateExpression{
			ExprBase: ast.NewExprBase(p.span(start)),
			Operator: op,
			Argument: arg,
			Prefix:   true,
		}, nil
	}

	var unaryOp ast.UnaryOperator
	hasUnary := true
	switch p.peek() {
	case lexer.Plus:
		unaryOp = ast.UnaryPlus
	case lexer.Minus:
		unaryOp = ast.UnaryMinus
	case lexer.Bang:
		unaryOp = ast.UnaryBang
	case lexer.Tilde:
		unaryOp = ast.UnaryTilde
	case lexer.KeywordTok:
		switch p.current().Keyword {
		case lexer.KwTypeof:
			unaryOp = ast.UnaryTypeof
		case lexer.KwVoid:
			unaryOp = ast.UnaryVoid
		case lexer.KwDelete:
			unaryOp = ast.UnaryDelete
		default:
			hasUnary = false
		}
	default:
		hasUnary = false
	}

	if hasUnary {
		p.advance()
		arg, err := p.parseUnaryExpression()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryExpression{
			ExprBase: ast.NewExprBase(p.span(start)),
			Operator: unaryOp,
			Argument: arg,
		}, nil
	}

	if p.isKeyword(lexer.KwAwait) && p.flags.inAsync {
		p.advance()
		arg, err := p.parseUnaryExpression()
		if err != nil {
			return nil, err
		}
		return &ast.AwaitExpression{ExprBase: ast.NewExprBase(p.span(start)), Argument: arg}, nil
	}

	if p.isKeyword(lexer.KwYield) && p.flags.inGenerator {
		p.advance()
		delegate := p.consume(lexer.Star)
		var arg ast.Expression
		if p.current().CanStartExpression() {
			a, err := p.parseAssignmentExpression()
			if err != nil {
				return nil, err
			}
			arg = a
		}
		return &ast.YieldExpression{
			ExprBase: ast.NewExprBase(p.span(start)),
			Argument: arg,
			Delegate: delegate,
		}, nil
	}

	return p.parseUpdateExpression()
}

func (p *Parser) parseUpdateExpression() (ast.Expression, error) {
	start := p.location()
	arg, err := p.parseLeftHandSideExpression()
	if err != nil {
		return nil, err
	}

	if p.peek() == lexer.PlusPlus || p.peek() == lexer.MinusMinus {
		op := ast.UpdateIncrement
		if p.peek() == lexer.MinusMinus {
			op = ast.UpdateDecrement
		}
		p.advance()
		return &ast.UpdateExpression{
			ExprBase: ast.NewExprBase(p.span(start)),
			Operator: op,
			Argument: arg,
			Prefix:   false,
		}, nil
	}

	return arg, nil
}

func (p *Parser) parseLeftHandSideExpression() (ast.Expression, error) {
	start := p.location()

	var expr ast.Expression
	if p.consumeKeyword(lexer.KwNew) {
		if p.peek() == lexer.Dot {
			p.advance()
			if _, err := p.expectKeyword(lexer.KwTarget); err != nil {
				return nil, err
			}
			expr = &ast.MetaProperty{ExprBase: ast.NewExprBase(p.span(start)), Meta: "new", Property: "target"}
		} else {
			callee, err := p.parseMemberExpression()
			if err != nil {
				return nil, err
			}
			var args []ast.ArrayElement
			if p.consume(lexer.LeftParen) {
				args, err = p.parseArguments()
				if err != nil {
					return nil, err
				}
			}
			expr = &ast.NewExpression{ExprBase: ast.NewExprBase(p.span(start)), Callee: callee, Args: args}
		}
	} else {
		e, err := p.parseMemberExpression()
		if err != nil {
			return nil, err
		}
		expr = e
	}

	for {
		switch p.peek() {
		case lexer.LeftParen:
			p.advance()
			args, err := p.parseArguments()
			if err != nil {
				return nil, err
			}
			expr = &ast.CallExpression{ExprBase: ast.NewExprBase(p.span(start)), Callee: expr, Args: args}
		case lexer.Dot:
			p.advance()
			prop, err := p.parseMemberPropertyName()
			if err != nil {
				return nil, err
			}
			expr = &ast.MemberExpression{ExprBase: ast.NewExprBase(p.span(start)), Object: expr, Property: prop, Computed: false}
		case lexer.LeftBracket:
			p.advance()
			prop, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(lexer.RightBracket); err != nil {
				return nil, err
			}
			expr = &ast.MemberExpression{ExprBase: ast.NewExprBase(p.span(start)), Object: expr, Property: prop, Computed: true}
		case lexer.QuestionDot:
			p.advance()
			switch p.peek() {
			case lexer.LeftParen:
				p.advance()
				args, err := p.parseArguments()
				if err != nil {
					return nil, err
				}
				expr = &ast.CallExpression{ExprBase: ast.NewExprBase(p.span(start)), Callee: expr, Args: args, Optional: true}
			case lexer.LeftBracket:
				p.advance()
				prop, err := p.parseExpression()
				if err != nil {
					return nil, err
				}
				if _, err := p.expect(lexer.RightBracket); err != nil {
					return nil, err
				}
				expr = &ast.MemberExpression{ExprBase: ast.NewExprBase(p.span(start)), Object: expr, Property: prop, Computed: true, Optional: true}
			default:
				prop, err := p.parseMemberPropertyName()
				if err != nil {
					return nil, err
				}
				expr = &ast.MemberExpression{ExprBase: ast.NewExprBase(p.span(start)), Object: expr, Property: prop, Computed: false, Optional: true}
			}
		case lexer.TemplateLiteral, lexer.TemplateHead:
			quasi, err := p.parseTemplateLiteral()
			if err != nil {
				return nil, err
			}
			expr = &ast.TaggedTemplateExpression{
				ExprBase: ast.NewExprBase(p.span(start)),
				Tag:      expr,
				Quasi:    quasi.(*ast.TemplateLiteral),
			}
		default:
			return expr, nil
		}
	}
}

// parseMemberPropertyName parses the name after `.`/`?.`: either a regular
// identifier-as-name (keywords allowed) or a `#private` name.
func (p *Parser) parseMemberPropertyName() (ast.Expression, error) {
	start := p.location()
	if p.peek() == lexer.PrivateName {
		tok := p.advance()
		return &ast.IdentifierReference{ExprBase: ast.NewExprBase(p.span(start)), Name: tok.Text}, nil
	}
	id, err := p.parseIdentifierName()
	if err != nil {
		return nil, err
	}
	return &ast.IdentifierReference{ExprBase: ast.NewExprBase(id.Span()), Name: id.Name}, nil
}

func (p *Parser) parseMemberExpression() (ast.Expression, error) {
	start := p.location()
	expr, err := p.parsePrimaryExpression()
	if err != nil {
		return nil, err
	}

	for {
		switch p.peek() {
		case lexer.Dot:
			p.advance()
			prop, err := p.parseMemberPropertyName()
			if err != nil {
				return nil, err
			}
			expr = &ast.MemberExpression{ExprBase: ast.NewExprBase(p.span(start)), Object: expr, Property: prop, Computed: false}
		case lexer.LeftBracket:
			p.advance()
			prop, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(lexer.RightBracket); err != nil {
				return nil, err
			}
			expr = &ast.MemberExpression{ExprBase: ast.NewExprBase(p.span(start)), Object: expr, Property: prop, Computed: true}
		default:
			return expr, nil
		}
	}
}

func (p *Parser) parsePrimaryExpression() (ast.Expression, error) {
	start := p.location()

	switch p.peek() {
	case lexer.Identifier:
		id, err := p.parseIdentifier()
		if err != nil {
			return nil, err
		}
		return &ast.IdentifierReference{ExprBase: ast.NewExprBase(id.Span()), Name: id.Name}, nil
	case lexer.NumberLiteral:
		tok := p.advance()
		n, err := p.parseNumberValue(tok.Text)
		if err != nil {
			return nil, err
		}
		return &ast.Literal{ExprBase: ast.NewExprBase(p.span(start)), Kind: ast.LitNumber, Raw: tok.Text, Value: n}, nil
	case lexer.BigIntLiteral:
		tok := p.advance()
		text := strings.TrimSuffix(tok.Text, "n")
		bi := new(big.Int)
		bi.SetString(strings.ReplaceAll(text, "_", ""), 0)
		return &ast.Literal{ExprBase: ast.NewExprBase(p.span(start)), Kind: ast.LitBigInt, Raw: tok.Text, Value: bi}, nil
	case lexer.StringLiteral:
		tok := p.advance()
		s, err := lexer.StringValue(tok.Text)
		if err != nil {
			return nil, p.errorf(tok.Location, "%s", err.Error())
		}
		return &ast.Literal{ExprBase: ast.NewExprBase(p.span(start)), Kind: ast.LitString, Raw: tok.Text, Value: s}, nil
	case lexer.KeywordTok:
		switch p.current().Keyword {
		case lexer.KwTrue:
			p.advance()
			return &ast.Literal{ExprBase: ast.NewExprBase(p.span(start)), Kind: ast.LitBoolean, Raw: "true", Value: true}, nil
		case lexer.KwFalse:
			p.advance()
			return &ast.Literal{ExprBase: ast.NewExprBase(p.span(start)), Kind: ast.LitBoolean, Raw: "false", Value: false}, nil
		case lexer.KwNull:
			p.advance()
			return &ast.Literal{ExprBase: ast.NewExprBase(p.span(start)), Kind: ast.LitNull, Raw: "null"}, nil
		case lexer.KwThis:
			p.advance()
			return &ast.ThisExpression{ExprBase: ast.NewExprBase(p.span(start))}, nil
		case lexer.KwSuper:
			p.advance()
			return &ast.SuperExpression{ExprBase: ast.NewExprBase(p.span(start))}, nil
		case lexer.KwFunction:
			fn, err := p.parseFunction(false)
			if err != nil {
				return nil, err
			}
			return fn, nil
		case lexer.KwAsync:
			if p.peekAt(1) == lexer.KeywordTok && p.tokens[p.pos+1].Keyword == lexer.KwFunction {
				fn, err := p.parseFunction(false)
				if err != nil {
					return nil, err
				}
				return fn, nil
			}
			// async is a contextual keyword: bare `async` not followed by
			// `function` is just an identifier (e.g. `async` used as a
			// variable name, or the start of `async (x) => x`, handled by
			// tryParseArrowFunction before we ever reach here).
			p.advance()
			return &ast.IdentifierReference{ExprBase: ast.NewExprBase(p.span(start)), Name: "async"}, nil
		case lexer.KwClass:
			cls, err := p.parseClass(false)
			if err != nil {
				return nil, err
			}
			return cls, nil
		}
		return nil, p.errorf(p.location(), "unexpected token")
	case lexer.LeftParen:
		p.advance()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.RightParen); err != nil {
			return nil, err
		}
		return expr, nil
	case lexer.LeftBracket:
		return p.parseArrayLiteral()
	case lexer.LeftBrace:
		return p.parseObjectLiteral()
	case lexer.TemplateLiteral, lexer.TemplateHead:
		return p.parseTemplateLiteral()
	default:
		return nil, p.errorf(p.location(), "unexpected token")
	}
}

func (p *Parser) parseArrayLiteral() (ast.Expression, error) {
	start := p.location()
	if _, err := p.expect(lexer.LeftBracket); err != nil {
		return nil, err
	}

	var elements []ast.ArrayElement
	for !p.consume(lexer.RightBracket) {
		if p.consume(lexer.Comma) {
			elements = append(elements, ast.ArrayElement{})
			continue
		}

		spread := p.consume(lexer.DotDotDot)
		expr, err := p.parseAssignmentExpression()
		if err != nil {
			return nil, err
		}
		elements = append(elements, ast.ArrayElement{Expr: expr, Spread: spread})

		if !p.consume(lexer.Comma) {
			if _, err := p.expect(lexer.RightBracket); err != nil {
				return nil, err
			}
			break
		}
	}

	return &ast.ArrayExpression{ExprBase: ast.NewExprBase(p.span(start)), Elements: elements}, nil
}

func (p *Parser) parseObjectLiteral() (ast.Expression, error) {
	start := p.location()
	if _, err := p.expect(lexer.LeftBrace); err != nil {
		return nil, err
	}

	var properties []ast.ObjectProperty
	for !p.consume(lexer.RightBrace) {
		prop, err := p.parseObjectProperty()
		if err != nil {
			return nil, err
		}
		properties = append(properties, prop)

		if !p.consume(lexer.Comma) {
			if _, err := p.expect(lexer.RightBrace); err != nil {
				return nil, err
			}
			break
		}
	}

	return &ast.ObjectExpression{ExprBase: ast.NewExprBase(p.span(start)), Properties: properties}, nil
}

func (p *Parser) parseObjectProperty() (ast.ObjectProperty, error) {
	start := p.location()

	if p.consume(lexer.DotDotDot) {
		arg, err := p.parseAssignmentExpression()
		if err != nil {
			return ast.ObjectProperty{}, err
		}
		return ast.ObjectProperty{Kind: ast.PropSpread, Value: arg}, nil
	}

	if (p.isKeyword(lexer.KwGet) || p.isKeyword(lexer.KwSet)) && p.peekAt(1) != lexer.Colon && p.peekAt(1) != lexer.LeftParen {
		kind := ast.PropGet
		mkind := ast.MethodGet
		if p.current().Keyword == lexer.KwSet {
			kind = ast.PropSet
			mkind = ast.MethodSet
		}
		p.advance()

		computed := p.peek() == lexer.LeftBracket
		key, err := p.parsePropertyKey()
		if err != nil {
			return ast.ObjectProperty{}, err
		}
		if _, err := p.expect(lexer.LeftParen); err != nil {
			return ast.ObjectProperty{}, err
		}
		params, err := p.parseFunctionParams()
		if err != nil {
			return ast.ObjectProperty{}, err
		}
		if _, err := p.expect(lexer.RightParen); err != nil {
			return ast.ObjectProperty{}, err
		}

		oldFlags := p.flags
		p.flags.inFunction = true
		body, err := p.parseBlockStatement()
		p.flags = oldFlags
		if err != nil {
			return ast.ObjectProperty{}, err
		}

		fn := &ast.FunctionExpression{ExprBase: ast.NewExprBase(p.span(start)), Params: params, Body: body}
		_ = mkind
		return ast.ObjectProperty{Kind: kind, Key: key, Value: fn, Computed: computed}, nil
	}

	isAsync := p.consumeKeyword(lexer.KwAsync)
	isGenerator := p.consume(lexer.Star)

	computed := p.peek() == lexer.LeftBracket
	key, err := p.parsePropertyKey()
	if err != nil {
		return ast.ObjectProperty{}, err
	}

	if p.peek() == lexer.LeftParen {
		p.advance()
		params, err := p.parseFunctionParams()
		if err != nil {
			return ast.ObjectProperty{}, err
		}
		if _, err := p.expect(lexer.RightParen); err != nil {
			return ast.ObjectProperty{}, err
		}

		oldFlags := p.flags
		p.flags.inFunction = true
		p.flags.inAsync = isAsync
		p.flags.inGenerator = isGenerator
		body, err := p.parseBlockStatement()
		p.flags = oldFlags
		if err != nil {
			return ast.ObjectProperty{}, err
		}

		fn := &ast.FunctionExpression{
			ExprBase: ast.NewExprBase(p.span(start)), Params: params, Body: body,
			Generator: isGenerator, Async: isAsync,
		}
		return ast.ObjectProperty{Kind: ast.PropMethod, Key: key, Value: fn, Computed: computed}, nil
	}

	if !computed && !p.consume(lexer.Colon) {
		if key.Kind != ast.KeyIdentifier {
			return ast.ObjectProperty{}, p.errorf(start, "shorthand property must be an identifier")
		}
		ref := &ast.IdentifierReference{ExprBase: ast.NewExprBase(p.span(start)), Name: key.Name}
		return ast.ObjectProperty{Kind: ast.PropInit, Key: key, Value: ref, Shorthand: true}, nil
	}

	if computed {
		if _, err := p.expect(lexer.Colon); err != nil {
			return ast.ObjectProperty{}, err
		}
	}

	value, err := p.parseAssignmentExpression()
	if err != nil {
		return ast.ObjectProperty{}, err
	}
	return ast.ObjectProperty{Kind: ast.PropInit, Key: key, Value: value, Computed: computed}, nil
}

// parseTemplateLiteral consumes the full TemplateHead/expr/RightBrace/
// TemplateMiddle.../TemplateTail token sequence the lexer produced, or a
// single no-substitution TemplateLiteral token.
func (p *Parser) parseTemplateLiteral() (ast.Expression, error) {
	start := p.location()
	var quasis []ast.TemplateElement
	var expressions []ast.Expression

	if p.peek() == lexer.TemplateLiteral {
		tok := p.advance()
		raw := stripTemplateDelims(tok.Text)
		quasis = append(quasis, ast.TemplateElement{Raw: raw, Cooked: parseTemplateString(raw)})
		return &ast.TemplateLiteral{ExprBase: ast.NewExprBase(p.span(start)), Quasis: quasis}, nil
	}

	for {
		switch p.peek() {
		case lexer.TemplateHead, lexer.TemplateMiddle:
			tok := p.advance()
			raw := stripTemplateDelims(tok.Text)
			quasis = append(quasis, ast.TemplateElement{Raw: raw, Cooked: parseTemplateString(raw)})
		case lexer.TemplateTail:
			tok := p.advance()
			raw := stripTemplateDelims(tok.Text)
			quasis = append(quasis, ast.TemplateElement{Raw: raw, Cooked: parseTemplateString(raw)})
			return &ast.TemplateLiteral{ExprBase: ast.NewExprBase(p.span(start)), Quasis: quasis, Expressions: expressions}, nil
		default:
			expr, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			expressions = append(expressions, expr)
			if _, err := p.expect(lexer.RightBrace); err != nil {
				return nil, err
			}
		}
	}
}

func (p *Parser) parseArguments() ([]ast.ArrayElement, error) {
	var args []ast.ArrayElement
	for !p.consume(lexer.RightParen) {
		spread := p.consume(lexer.DotDotDot)
		expr, err := p.parseAssignmentExpression()
		if err != nil {
			return nil, err
		}
		args = append(args, ast.ArrayElement{Expr: expr, Spread: spread})

		if !p.consume(lexer.Comma) {
			if _, err := p.expect(lexer.RightParen); err != nil {
				return nil, err
			}
			break
		}
	}
	return args, nil
}

func (p *Parser) parseIdentifier() (*ast.Identifier, error) {
	if p.peek() != lexer.Identifier {
		return nil, p.errorf(p.location(), "expected identifier")
	}
	start := p.location()
	tok := p.advance()
	return &ast.Identifier{PatBase: ast.NewPatBase(p.span(start)), Name: tok.Text}, nil
}

// parseIdentifierName allows keywords as identifier-like names (property
// names, member access after `.`).
func (p *Parser) parseIdentifierName() (*ast.Identifier, error) {
	switch p.peek() {
	case lexer.Identifier, lexer.KeywordTok:
		start := p.location()
		tok := p.advance()
		return &ast.Identifier{PatBase: ast.NewPatBase(p.span(start)), Name: tok.Text}, nil
	default:
		return nil, p.errorf(p.location(), "expected identifier")
	}
}
